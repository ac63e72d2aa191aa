package dataset

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

const (
	topValuesLimit   = 5
	outlierThreshold = 3.5
)

// Summary is the describe-style aggregation of a dataset.
type Summary struct {
	Name     string          `json:"name"`
	Rows     int             `json:"rows"`
	Total    int             `json:"total_rows"`
	Columns  []ColumnSummary `json:"columns"`
	Corr     []PairCorr      `json:"correlations,omitempty"`
	Warnings []string        `json:"warnings,omitempty"`
}

// ColumnSummary holds per-column statistics. Numeric fields are only meaningful
// for numeric columns, Unique/Top/Freq for the rest.
type ColumnSummary struct {
	Name    string `json:"name"`
	Kind    Kind   `json:"kind"`
	Count   int    `json:"count"`
	Missing int    `json:"missing"`

	Mean     float64 `json:"mean"`
	Std      float64 `json:"std"`
	Min      float64 `json:"min"`
	P25      float64 `json:"p25"`
	P50      float64 `json:"p50"`
	P75      float64 `json:"p75"`
	Max      float64 `json:"max"`
	Outliers int     `json:"outliers,omitempty"`

	Unique    int             `json:"unique,omitempty"`
	Top       string          `json:"top,omitempty"`
	Freq      int             `json:"freq,omitempty"`
	TopValues []CategoryCount `json:"top_values,omitempty"`

	First string `json:"first,omitempty"`
	Last  string `json:"last,omitempty"`
}

// MarshalJSON omits the numeric statistics for non-numeric columns while
// keeping zero values of numeric ones.
func (c ColumnSummary) MarshalJSON() ([]byte, error) {
	type plain ColumnSummary
	out := struct {
		plain
		Mean *float64 `json:"mean,omitempty"`
		Std  *float64 `json:"std,omitempty"`
		Min  *float64 `json:"min,omitempty"`
		P25  *float64 `json:"p25,omitempty"`
		P50  *float64 `json:"p50,omitempty"`
		P75  *float64 `json:"p75,omitempty"`
		Max  *float64 `json:"max,omitempty"`
	}{plain: plain(c)}
	if c.Kind == KindNumeric && c.Count > 0 {
		out.Mean, out.Std, out.Min = &c.Mean, &c.Std, &c.Min
		out.P25, out.P50, out.P75, out.Max = &c.P25, &c.P50, &c.P75, &c.Max
	}
	return json.Marshal(out)
}

// CategoryCount is one value and its frequency.
type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// PairCorr is a Pearson correlation between two numeric columns.
type PairCorr struct {
	A string  `json:"a"`
	B string  `json:"b"`
	R float64 `json:"r"`
}

// Summary computes statistics across all columns. It does not cache; repeated
// calls on the same dataset return equal results.
func (d *Dataset) Summary() *Summary {
	s := &Summary{Name: d.name, Rows: len(d.cells), Total: d.total, Warnings: d.Warnings()}
	for j, c := range d.cols {
		cs := ColumnSummary{Name: c.Name, Kind: c.Kind}
		if c.Kind == KindNumeric {
			d.describeNumeric(j, &cs)
		} else {
			d.describeCategorical(j, &cs)
		}
		s.Columns = append(s.Columns, cs)
	}
	s.Corr = d.correlations()
	return s
}

func (d *Dataset) describeNumeric(j int, cs *ColumnSummary) {
	var vals []float64
	var mean, m2 float64
	for _, v := range d.nums[j] {
		if math.IsNaN(v) {
			cs.Missing++
			continue
		}
		vals = append(vals, v)
		// Welford
		n := float64(len(vals))
		delta := v - mean
		mean += delta / n
		m2 += delta * (v - mean)
	}
	cs.Count = len(vals)
	if cs.Count == 0 {
		return
	}
	cs.Mean = mean
	if cs.Count > 1 {
		cs.Std = math.Sqrt(m2 / float64(cs.Count-1))
	}
	sort.Float64s(vals)
	cs.Min = vals[0]
	cs.Max = vals[len(vals)-1]
	cs.P25 = quantile(vals, 0.25)
	cs.P50 = quantile(vals, 0.5)
	cs.P75 = quantile(vals, 0.75)

	med, mad := medianMAD(vals)
	if mad > 0 {
		for _, v := range vals {
			if math.Abs(0.6745*(v-med)/mad) > outlierThreshold {
				cs.Outliers++
			}
		}
	}
}

func (d *Dataset) describeCategorical(j int, cs *ColumnSummary) {
	counts := map[string]int{}
	var first, last time.Time
	for _, row := range d.cells {
		v := row[j]
		if IsMissing(v) {
			cs.Missing++
			continue
		}
		cs.Count++
		counts[v]++
		if cs.Kind == KindDatetime {
			if t, ok := ParseTime(v); ok {
				if first.IsZero() || t.Before(first) {
					first = t
				}
				if last.IsZero() || t.After(last) {
					last = t
				}
			}
		}
	}
	cs.Unique = len(counts)
	top := make([]CategoryCount, 0, len(counts))
	for k, v := range counts {
		top = append(top, CategoryCount{Value: k, Count: v})
	}
	sort.Slice(top, func(a, b int) bool {
		if top[a].Count == top[b].Count {
			return top[a].Value < top[b].Value
		}
		return top[a].Count > top[b].Count
	})
	if len(top) > 0 {
		cs.Top, cs.Freq = top[0].Value, top[0].Count
	}
	if len(top) > topValuesLimit {
		top = top[:topValuesLimit]
	}
	cs.TopValues = top
	if !first.IsZero() {
		cs.First = first.Format(time.DateOnly)
		cs.Last = last.Format(time.DateOnly)
	}
}

// correlations returns the strongest pairwise Pearson correlations, ordered by |r|.
func (d *Dataset) correlations() []PairCorr {
	var idx []int
	for j, c := range d.cols {
		if c.Kind == KindNumeric {
			idx = append(idx, j)
		}
	}
	var pairs []PairCorr
	for a := 0; a < len(idx); a++ {
		for b := a + 1; b < len(idx); b++ {
			r, ok := pearson(d.nums[idx[a]], d.nums[idx[b]])
			if !ok {
				continue
			}
			pairs = append(pairs, PairCorr{A: d.cols[idx[a]].Name, B: d.cols[idx[b]].Name, R: r})
		}
	}
	sort.Slice(pairs, func(i, j int) bool {
		ai, aj := math.Abs(pairs[i].R), math.Abs(pairs[j].R)
		if ai == aj {
			return pairs[i].A+pairs[i].B < pairs[j].A+pairs[j].B
		}
		return ai > aj
	})
	if len(pairs) > 10 {
		pairs = pairs[:10]
	}
	return pairs
}

func pearson(xs, ys []float64) (float64, bool) {
	var n, sx, sy, sxx, syy, sxy float64
	for i := range xs {
		x, y := xs[i], ys[i]
		if math.IsNaN(x) || math.IsNaN(y) {
			continue
		}
		n++
		sx += x
		sy += y
		sxx += x * x
		syy += y * y
		sxy += x * y
	}
	if n < 3 {
		return 0, false
	}
	den := math.Sqrt((n*sxx - sx*sx) * (n*syy - sy*sy))
	if den == 0 || math.IsNaN(den) {
		return 0, false
	}
	return (n*sxy - sx*sy) / den, true
}

// Describe returns the summary as a column-keyed map of statistic name to
// value, in the shape of a describe() table.
func (s *Summary) Describe() map[string]map[string]any {
	out := make(map[string]map[string]any, len(s.Columns))
	for _, c := range s.Columns {
		m := map[string]any{"count": c.Count}
		if c.Kind == KindNumeric {
			m["mean"] = c.Mean
			m["std"] = c.Std
			m["min"] = c.Min
			m["25%"] = c.P25
			m["50%"] = c.P50
			m["75%"] = c.P75
			m["max"] = c.Max
		} else {
			m["unique"] = c.Unique
			m["top"] = c.Top
			m["freq"] = c.Freq
		}
		out[c.Name] = m
	}
	return out
}

// Markdown renders a compact report suitable for prompts or terminal output.
func (s *Summary) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if s.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", s.Name))
	}
	if s.Total > s.Rows {
		b.WriteString(fmt.Sprintf("Rows: ~%d (processed %d)\n", s.Total, s.Rows))
	} else {
		b.WriteString(fmt.Sprintf("Rows: %d\n", s.Rows))
	}
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(s.Columns)))

	b.WriteString("[SCHEMA]\n")
	for _, c := range s.Columns {
		total := c.Count + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (count %d, missing %.1f%%)", safeName(c.Name), c.Kind, c.Count, missPct))
		switch c.Kind {
		case KindNumeric:
			if c.Count > 0 {
				b.WriteString(fmt.Sprintf(": mean %.4g, std %.4g, min %.4g, 25%% %.4g, 50%% %.4g, 75%% %.4g, max %.4g",
					c.Mean, c.Std, c.Min, c.P25, c.P50, c.P75, c.Max))
				if c.Outliers > 0 {
					b.WriteString(fmt.Sprintf("; outliers: %d above |z|>%.1f", c.Outliers, outlierThreshold))
				}
			}
		default:
			if c.Count > 0 {
				b.WriteString(fmt.Sprintf(": unique %d, top %s (%d)", c.Unique, safeVal(c.Top), c.Freq))
				if c.First != "" {
					b.WriteString(fmt.Sprintf(", range %s to %s", c.First, c.Last))
				}
			}
		}
		b.WriteString("\n")
	}
	if len(s.Corr) > 0 {
		b.WriteString("\n[CORRELATIONS]\n")
		for _, p := range s.Corr {
			b.WriteString(fmt.Sprintf("- %s ~ %s: r=%.3f\n", p.A, p.B, p.R))
		}
	}
	if len(s.Warnings) > 0 {
		b.WriteString("\n[NOTES]\n")
		for _, w := range s.Warnings {
			b.WriteString("- ")
			b.WriteString(w)
			b.WriteString("\n")
		}
	}
	return b.String()
}

// MarkdownTable renders records as a pipe table.
func MarkdownTable(cols []Column, rows []Record) string {
	var b strings.Builder
	b.WriteString("|")
	for _, c := range cols {
		b.WriteString(" " + safeName(c.Name) + " |")
	}
	b.WriteString("\n|")
	for range cols {
		b.WriteString(" --- |")
	}
	b.WriteString("\n")
	for _, r := range rows {
		b.WriteString("|")
		for _, f := range r {
			v := f.Value
			if rs := []rune(v); len(rs) > 80 {
				v = string(rs[:77]) + "..."
			}
			b.WriteString(" " + safeVal(v) + " |")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func safeName(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "(unnamed)"
	}
	return s
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

// medianMAD computes median and MAD (median absolute deviation) of sorted values.
func medianMAD(sorted []float64) (median, mad float64) {
	if len(sorted) == 0 {
		return 0, 0
	}
	median = quantile(sorted, 0.5)
	dev := make([]float64, len(sorted))
	for i, v := range sorted {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = quantile(dev, 0.5)
	return
}

// quantile uses linear interpolation between closest ranks.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}

// Quantile exposes linear-interpolated quantiles over an already sorted slice.
func Quantile(sorted []float64, q float64) float64 { return quantile(sorted, q) }

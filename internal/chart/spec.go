package chart

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	"github.com/KaramelBytes/insightcopilot/internal/dataset"
)

// DefaultBins is the histogram bin count when nbins is not given.
const DefaultBins = 10

// Columns is one or more column names; in JSON it accepts a string or an array.
type Columns []string

func (c *Columns) UnmarshalJSON(b []byte) error {
	var one string
	if err := json.Unmarshal(b, &one); err == nil {
		if strings.TrimSpace(one) == "" {
			*c = nil
		} else {
			*c = Columns{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(b, &many); err != nil {
		return errors.New("expected a column name or a list of column names")
	}
	*c = many
	return nil
}

// Spec is the constrained chart description. Every field is data; nothing in
// it is executed.
type Spec struct {
	Kind        string  `json:"kind" validate:"required,oneof=bar line scatter histogram pie box area"`
	X           string  `json:"x,omitempty" validate:"max=256"`
	Y           Columns `json:"y,omitempty" validate:"max=8,dive,required,max=256"`
	Color       string  `json:"color,omitempty" validate:"max=256"`
	Agg         string  `json:"agg,omitempty" validate:"omitempty,oneof=sum mean count"`
	NBins       int     `json:"nbins,omitempty" validate:"omitempty,min=1,max=200"`
	Orientation string  `json:"orientation,omitempty" validate:"omitempty,oneof=v h"`
	Title       string  `json:"title,omitempty" validate:"max=300"`
	XTitle      string  `json:"x_title,omitempty" validate:"max=300"`
	YTitle      string  `json:"y_title,omitempty" validate:"max=300"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func specValidator() *validator.Validate {
	validateOnce.Do(func() { validate = validator.New() })
	return validate
}

// Validate checks the spec's shape. Column existence is checked by Build.
func (s Spec) Validate() error {
	err := specValidator().Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", strings.ToLower(fe.Field()), fe.Tag(), fe.Value()))
		}
		return &ExecutionError{Msg: "invalid chart spec: " + strings.Join(msgs, "; ")}
	}
	return &ExecutionError{Msg: "invalid chart spec", Err: err}
}

// ParseSpec decodes and validates a JSON chart spec.
func ParseSpec(text string) (Spec, error) {
	var s Spec
	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Spec{}, &ExecutionError{Msg: "decode chart spec", Err: err}
	}
	s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
	s.Agg = strings.ToLower(strings.TrimSpace(s.Agg))
	if err := s.Validate(); err != nil {
		return Spec{}, err
	}
	return s, nil
}

// Build computes a Figure from the spec using only read accessors of ds.
func Build(s Spec, ds *dataset.Dataset) (*Figure, error) {
	return build(s, ds, 0)
}

type column struct {
	idx  int
	name string
	kind dataset.Kind
}

func resolve(ds *dataset.Dataset, name string, line int) (column, error) {
	i, ok := ds.ColumnIndex(name)
	if !ok {
		return column{}, execErrorf(line, "unknown column %q", name)
	}
	c := ds.Columns()[i]
	return column{idx: i, name: c.Name, kind: c.Kind}, nil
}

func build(s Spec, ds *dataset.Dataset, line int) (*Figure, error) {
	if ds == nil {
		return nil, execErrorf(line, "no dataset loaded")
	}
	if err := s.Validate(); err != nil {
		var ee *ExecutionError
		if errors.As(err, &ee) {
			ee.Line = line
		}
		return nil, err
	}
	fig := &Figure{
		Kind:       Kind(s.Kind),
		Title:      s.Title,
		XTitle:     s.XTitle,
		YTitle:     s.YTitle,
		Horizontal: s.Orientation == "h",
		SourceRows: ds.Len(),
	}

	var x, color *column
	if s.X != "" {
		c, err := resolve(ds, s.X, line)
		if err != nil {
			return nil, err
		}
		x = &c
	}
	var ys []column
	for _, name := range s.Y {
		c, err := resolve(ds, name, line)
		if err != nil {
			return nil, err
		}
		ys = append(ys, c)
	}
	if s.Color != "" {
		c, err := resolve(ds, s.Color, line)
		if err != nil {
			return nil, err
		}
		color = &c
	}

	agg := s.Agg
	var err error
	switch fig.Kind {
	case Bar, Line, Area, Pie:
		if x == nil {
			return nil, execErrorf(line, "%s chart needs x", fig.Kind)
		}
		if agg == "" {
			agg = "sum"
		}
		if len(ys) == 0 {
			agg = "count"
		}
		if agg != "count" {
			for _, y := range ys {
				if y.kind != dataset.KindNumeric {
					return nil, execErrorf(line, "column %q is %s; %s needs a numeric y", y.name, y.kind, agg)
				}
			}
		}
		if fig.Kind == Pie && (len(ys) > 1 || color != nil) {
			return nil, execErrorf(line, "pie chart takes a single value column and no color")
		}
		err = buildCategorical(fig, ds, *x, ys, color, agg)
	case Scatter:
		if x == nil || len(ys) != 1 {
			return nil, execErrorf(line, "scatter chart needs x and one y")
		}
		if ys[0].kind != dataset.KindNumeric {
			return nil, execErrorf(line, "column %q is %s; scatter needs a numeric y", ys[0].name, ys[0].kind)
		}
		buildScatter(fig, ds, *x, ys[0], color)
	case Histogram:
		if x == nil {
			if len(ys) != 1 {
				return nil, execErrorf(line, "histogram needs x")
			}
			x, ys = &ys[0], nil
		}
		if x.kind == dataset.KindNumeric {
			n := s.NBins
			if n <= 0 {
				n = DefaultBins
			}
			buildHistogram(fig, ds, *x, n)
		} else {
			err = buildCategorical(fig, ds, *x, nil, color, "count")
		}
	case Box:
		var val column
		var group *column
		switch {
		case len(ys) == 1:
			val, group = ys[0], x
		case len(ys) == 0 && x != nil:
			val = *x
		default:
			return nil, execErrorf(line, "box plot needs one numeric y")
		}
		if val.kind != dataset.KindNumeric {
			return nil, execErrorf(line, "column %q is %s; box plot needs numeric values", val.name, val.kind)
		}
		buildBox(fig, ds, val, group)
	default:
		return nil, execErrorf(line, "unsupported chart kind %q", s.Kind)
	}
	if err != nil {
		var ee *ExecutionError
		if errors.As(err, &ee) && ee.Line == 0 {
			ee.Line = line
		}
		return nil, err
	}
	defaultTitles(fig, x, ys, agg)
	if fig.Points() == 0 {
		return nil, execErrorf(line, "chart has no plottable values")
	}
	return fig, nil
}

func defaultTitles(fig *Figure, x *column, ys []column, agg string) {
	if fig.XTitle == "" && x != nil {
		fig.XTitle = x.name
	}
	if fig.YTitle != "" {
		return
	}
	switch {
	case fig.Kind == Histogram || agg == "count" && len(ys) == 0:
		fig.YTitle = "count"
	case len(ys) == 1 && (fig.Kind == Scatter || fig.Kind == Box):
		fig.YTitle = ys[0].name
	case len(ys) == 1 && agg != "" && agg != "sum":
		fig.YTitle = agg + " of " + ys[0].name
	case len(ys) == 1:
		fig.YTitle = ys[0].name
	}
	if fig.Kind == Box && len(ys) == 0 && x != nil {
		fig.YTitle, fig.XTitle = x.name, ""
	}
}

type accum struct {
	sum   float64
	count int
}

func (a accum) value(agg string) float64 {
	switch agg {
	case "count":
		return float64(a.count)
	case "mean":
		if a.count == 0 {
			return 0
		}
		return a.sum / float64(a.count)
	}
	return a.sum
}

// buildCategorical aggregates y by x, one trace per y column or per color value.
func buildCategorical(fig *Figure, ds *dataset.Dataset, x column, ys []column, color *column, agg string) error {
	if len(ys) > 1 && color != nil {
		return &ExecutionError{Msg: "use either several y columns or color, not both"}
	}
	var labels []string
	seen := map[string]bool{}
	// parsed x per label, in the locale the dataset was loaded with
	num := map[string]float64{}
	type key struct{ series, label string }
	acc := map[key]accum{}
	var series []string
	seenSeries := map[string]bool{}
	addSeries := func(s string) {
		if !seenSeries[s] {
			seenSeries[s] = true
			series = append(series, s)
		}
	}

	for r := 0; r < ds.Len(); r++ {
		lbl := ds.Value(r, x.idx)
		if dataset.IsMissing(lbl) {
			fig.SkippedRows++
			continue
		}
		if !seen[lbl] {
			seen[lbl] = true
			labels = append(labels, lbl)
			if v, ok := ds.Float(r, x.idx); ok {
				num[lbl] = v
			}
		}
		switch {
		case len(ys) == 0:
			s := ""
			if color != nil {
				s = ds.Value(r, color.idx)
			}
			addSeries(s)
			a := acc[key{s, lbl}]
			a.count++
			acc[key{s, lbl}] = a
		default:
			for _, y := range ys {
				s := y.name
				if color != nil {
					s = ds.Value(r, color.idx)
				}
				addSeries(s)
				k := key{s, lbl}
				a := acc[k]
				if agg == "count" {
					if !dataset.IsMissing(ds.Value(r, y.idx)) {
						a.count++
					}
				} else if v, ok := ds.Float(r, y.idx); ok {
					a.sum += v
					a.count++
				}
				acc[k] = a
			}
		}
	}
	if fig.Kind == Line || fig.Kind == Area {
		sortLabels(labels, x.kind, num)
	}
	for _, s := range series {
		t := Trace{Name: s, Labels: labels, Y: make([]float64, len(labels))}
		for i, l := range labels {
			t.Y[i] = acc[key{s, l}].value(agg)
		}
		if len(series) == 1 && color == nil && len(ys) <= 1 {
			t.Name = ""
		}
		fig.Traces = append(fig.Traces, t)
	}
	return nil
}

// sortLabels orders x values for line-like charts by time, number or text.
// Numeric labels sort by their parsed values in num.
func sortLabels(labels []string, kind dataset.Kind, num map[string]float64) {
	switch kind {
	case dataset.KindDatetime:
		sort.SliceStable(labels, func(i, j int) bool {
			a, _ := dataset.ParseTime(labels[i])
			b, _ := dataset.ParseTime(labels[j])
			return a.Before(b)
		})
	case dataset.KindNumeric:
		sort.SliceStable(labels, func(i, j int) bool {
			return num[labels[i]] < num[labels[j]]
		})
	default:
		sort.Strings(labels)
	}
}

func buildScatter(fig *Figure, ds *dataset.Dataset, x, y column, color *column) {
	bySeries := map[string]*Trace{}
	var order []string
	for r := 0; r < ds.Len(); r++ {
		yv, ok := ds.Float(r, y.idx)
		if !ok {
			fig.SkippedRows++
			continue
		}
		s := ""
		if color != nil {
			s = ds.Value(r, color.idx)
		}
		t, ok := bySeries[s]
		if !ok {
			t = &Trace{Name: s}
			bySeries[s] = t
			order = append(order, s)
		}
		if x.kind == dataset.KindNumeric {
			xv, ok := ds.Float(r, x.idx)
			if !ok {
				fig.SkippedRows++
				continue
			}
			t.X = append(t.X, xv)
		} else {
			lbl := ds.Value(r, x.idx)
			if dataset.IsMissing(lbl) {
				fig.SkippedRows++
				continue
			}
			t.Labels = append(t.Labels, lbl)
		}
		t.Y = append(t.Y, yv)
	}
	for _, s := range order {
		fig.Traces = append(fig.Traces, *bySeries[s])
	}
}

func buildHistogram(fig *Figure, ds *dataset.Dataset, x column, bins int) {
	var vals []float64
	for r := 0; r < ds.Len(); r++ {
		if v, ok := ds.Float(r, x.idx); ok {
			vals = append(vals, v)
		} else {
			fig.SkippedRows++
		}
	}
	if len(vals) == 0 {
		return
	}
	lo, hi := vals[0], vals[0]
	for _, v := range vals {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	width := (hi - lo) / float64(bins)
	if width == 0 {
		width = 1
	}
	counts := make([]float64, bins)
	for _, v := range vals {
		b := int((v - lo) / width)
		if b >= bins {
			b = bins - 1
		}
		if b < 0 {
			b = 0
		}
		counts[b]++
	}
	t := Trace{Labels: make([]string, bins), X: make([]float64, bins), Y: counts}
	for i := range counts {
		edge := lo + float64(i)*width
		t.X[i] = edge
		t.Labels[i] = fmt.Sprintf("%.4g–%.4g", edge, edge+width)
	}
	fig.Traces = []Trace{t}
}

func buildBox(fig *Figure, ds *dataset.Dataset, val column, group *column) {
	groups := map[string][]float64{}
	var order []string
	for r := 0; r < ds.Len(); r++ {
		v, ok := ds.Float(r, val.idx)
		if !ok {
			fig.SkippedRows++
			continue
		}
		g := val.name
		if group != nil {
			g = ds.Value(r, group.idx)
			if dataset.IsMissing(g) {
				fig.SkippedRows++
				continue
			}
		}
		if _, ok := groups[g]; !ok {
			order = append(order, g)
		}
		groups[g] = append(groups[g], v)
	}
	t := Trace{}
	for _, g := range order {
		vs := groups[g]
		sort.Float64s(vs)
		t.Labels = append(t.Labels, g)
		t.Box = append(t.Box, BoxStats{
			Min:    vs[0],
			Q1:     dataset.Quantile(vs, 0.25),
			Median: dataset.Quantile(vs, 0.5),
			Q3:     dataset.Quantile(vs, 0.75),
			Max:    vs[len(vs)-1],
			N:      len(vs),
		})
	}
	if len(t.Box) > 0 {
		fig.Traces = []Trace{t}
	}
}

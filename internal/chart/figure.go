// Package chart turns chart descriptions produced by a model into figures
// without running untrusted code. Two artifact forms are accepted: a JSON
// chart spec, and a small allow-listed subset of the plotting idiom
// `fig = px.<kind>(df, ...)` interpreted against a read-only dataset.
package chart

// Kind is a supported chart type.
type Kind string

const (
	Bar       Kind = "bar"
	Line      Kind = "line"
	Scatter   Kind = "scatter"
	Histogram Kind = "histogram"
	Pie       Kind = "pie"
	Box       Kind = "box"
	Area      Kind = "area"
)

// Kinds lists every supported chart kind.
var Kinds = []Kind{Bar, Line, Scatter, Histogram, Pie, Box, Area}

func validKind(k string) bool {
	for _, v := range Kinds {
		if string(v) == k {
			return true
		}
	}
	return false
}

// Figure is an in-memory chart ready for rendering.
type Figure struct {
	Kind        Kind    `json:"kind"`
	Title       string  `json:"title,omitempty"`
	XTitle      string  `json:"x_title,omitempty"`
	YTitle      string  `json:"y_title,omitempty"`
	Horizontal  bool    `json:"horizontal,omitempty"`
	Traces      []Trace `json:"traces"`
	SourceRows  int     `json:"source_rows"`
	SkippedRows int     `json:"skipped_rows,omitempty"`
}

// Trace is one series. Categorical charts use Labels with Y; scatter uses X
// with Y (Labels set instead of X when x is not numeric); box uses Labels with Box.
type Trace struct {
	Name   string     `json:"name,omitempty"`
	Labels []string   `json:"labels,omitempty"`
	X      []float64  `json:"x,omitempty"`
	Y      []float64  `json:"y,omitempty"`
	Box    []BoxStats `json:"box,omitempty"`
}

// BoxStats is a five-number summary.
type BoxStats struct {
	Min    float64 `json:"min"`
	Q1     float64 `json:"q1"`
	Median float64 `json:"median"`
	Q3     float64 `json:"q3"`
	Max    float64 `json:"max"`
	N      int     `json:"n"`
}

// Points returns the number of plotted values across traces.
func (f *Figure) Points() int {
	n := 0
	for _, t := range f.Traces {
		n += len(t.Y) + len(t.Box)
	}
	return n
}

package chart

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/KaramelBytes/insightcopilot/internal/dataset"
)

const salesCSV = "region,units,price,month\n" +
	"north,10,2.5,2024-03\n" +
	"south,20,3.0,2024-01\n" +
	"north,30,,2024-02\n" +
	"east,40,4.5,2024-04\n"

func mustLoad(t *testing.T, body string) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.Load(strings.NewReader(body), "sales.csv", dataset.DefaultOptions())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return ds
}

func execute(t *testing.T, src string, ds *dataset.Dataset) (*Figure, error) {
	t.Helper()
	return NewExecutor().Execute(context.Background(), src, ds)
}

func TestExecuteBarFromGeneratedCode(t *testing.T) {
	ds := mustLoad(t, "a,b,c\nx,1,2\ny,2,3\nx,3,4\n")
	fig, err := execute(t, "fig = px.bar(df, x='a', y='b')", ds)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if fig == nil || fig.Kind != Bar {
		t.Fatalf("fig = %+v", fig)
	}
	tr := fig.Traces[0]
	if strings.Join(tr.Labels, ",") != "x,y" || tr.Y[0] != 4 || tr.Y[1] != 2 {
		t.Fatalf("trace = %+v", tr)
	}
	if fig.XTitle != "a" || fig.YTitle != "b" {
		t.Fatalf("titles = %q %q", fig.XTitle, fig.YTitle)
	}
}

func TestExecuteWithoutFigReturnsNil(t *testing.T) {
	ds := mustLoad(t, salesCSV)
	fig, err := execute(t, "chart = px.bar(df, x='region', y='units')", ds)
	if err != nil || fig != nil {
		t.Fatalf("fig=%v err=%v", fig, err)
	}
}

func TestExecuteSyntaxErrorLeavesDatasetUnchanged(t *testing.T) {
	ds := mustLoad(t, salesCSV)
	before := ds.Fingerprint()
	for _, src := range []string{
		"fig = px.bar(df, x='region', y='units'",
		"fig = px.bar(df x='region')",
		"fig = = px.bar(df)",
		"fig = px.bar(df, x='region') +",
		"fig = 'unterminated",
	} {
		fig, err := execute(t, src, ds)
		var ee *ExecutionError
		if fig != nil || !errors.As(err, &ee) {
			t.Fatalf("%q: fig=%v err=%v", src, fig, err)
		}
	}
	if ds.Fingerprint() != before {
		t.Fatalf("dataset changed")
	}
}

func TestExecuteDeniesCapabilities(t *testing.T) {
	ds := mustLoad(t, salesCSV)
	before := ds.Fingerprint()
	cases := map[string]string{
		"import os":                         "import",
		"from os import system":             "not allowed",
		"open('x')":                         "not allowed",
		"f = open('/etc/passwd')":           "not allowed",
		"__import__('os').system('ls')":     "not allowed",
		"df.to_csv('x')":                    "attribute access",
		"df = 1":                            "cannot rebind",
		"px = None":                         "cannot rebind",
		"fig = px.bar(df.head(), x='a')":    "attribute access",
		"fig = px.bar(df, x=df['region'])":  "indexing",
		"fig = px.imshow(df)":               "not supported",
		"fig = px.bar(df, x='region', z=1)": "unsupported argument",
		"fig = eval('1')":                   "not allowed",
		"exec('x = 1')":                     "not allowed",
		"x = y":                             "not defined",
		"fig = px.bar(df, x='region')\nfig.write_html('x.html')": "not allowed",
		"fig = px.bar(df, x='region')\nfig.__class__":            "not allowed",
	}
	for src, want := range cases {
		fig, err := execute(t, src, ds)
		var ee *ExecutionError
		if fig != nil || !errors.As(err, &ee) || !strings.Contains(err.Error(), want) {
			t.Errorf("%q: fig=%v err=%v, want error containing %q", src, fig, err, want)
		}
	}
	if ds.Fingerprint() != before {
		t.Fatalf("dataset changed")
	}
}

func TestExecuteReportsLine(t *testing.T) {
	ds := mustLoad(t, salesCSV)
	_, err := execute(t, "import plotly.express as px\n\nfig = px.bar(df, x='nope', y='units')", ds)
	var ee *ExecutionError
	if !errors.As(err, &ee) || ee.Line != 3 || !strings.Contains(err.Error(), `unknown column "nope"`) {
		t.Fatalf("err = %#v", err)
	}
}

func TestExecuteFencedCodeAndLayout(t *testing.T) {
	ds := mustLoad(t, salesCSV)
	src := "Here you go:\n```python\nimport plotly.express as px\n" +
		"col = 'units'\n" +
		"fig = px.line(df, x='month', y=col, labels={'month': 'Month'}, markers=True)\n" +
		"fig.update_layout(title='Units by month', yaxis_title='Units')\n" +
		"fig.show()\n```\nThis shows the trend."
	fig, err := execute(t, src, ds)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if fig.Title != "Units by month" || fig.XTitle != "Month" || fig.YTitle != "Units" {
		t.Fatalf("titles = %q %q %q", fig.Title, fig.XTitle, fig.YTitle)
	}
	if got := strings.Join(fig.Traces[0].Labels, ","); got != "2024-01,2024-02,2024-03,2024-04" {
		t.Fatalf("line labels not sorted by time: %s", got)
	}
}

func TestExecuteChartKinds(t *testing.T) {
	ds := mustLoad(t, salesCSV)
	cases := []struct {
		src    string
		kind   Kind
		points int
	}{
		{"fig = px.pie(df, names='region', values='units')", Pie, 3},
		{"fig = px.scatter(df, x='units', y='price')", Scatter, 3},
		{"fig = px.histogram(df, x='units', nbins=4)", Histogram, 4},
		{"fig = px.histogram(df, x='region')", Histogram, 3},
		{"fig = px.box(df, x='region', y='units')", Box, 3},
		{"fig = px.area(df, x='month', y='units')", Area, 4},
		{"fig = px.bar(df, x='region', y=['units', 'price'], agg='mean')", Bar, 6},
		{"fig = px.bar(df, x='region', y='units', orientation='h')", Bar, 3},
	}
	for _, c := range cases {
		fig, err := execute(t, c.src, ds)
		if err != nil {
			t.Fatalf("%s: %v", c.src, err)
		}
		if fig.Kind != c.kind || fig.Points() != c.points {
			t.Errorf("%s: kind=%s points=%d, want %s %d", c.src, fig.Kind, fig.Points(), c.kind, c.points)
		}
	}
}

func TestScatterSkipsMissing(t *testing.T) {
	ds := mustLoad(t, salesCSV)
	fig, err := execute(t, "fig = px.scatter(df, x='units', y='price')", ds)
	if err != nil {
		t.Fatal(err)
	}
	if fig.SkippedRows != 1 || fig.SourceRows != 4 {
		t.Fatalf("skipped=%d source=%d", fig.SkippedRows, fig.SourceRows)
	}
}

func TestExecuteRespectsCancellation(t *testing.T) {
	ds := mustLoad(t, salesCSV)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewExecutor().Execute(ctx, "fig = px.bar(df, x='region')", ds)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestExecuteLimits(t *testing.T) {
	ds := mustLoad(t, salesCSV)
	e := &Executor{MaxSource: 10}
	if _, err := e.Execute(context.Background(), "fig = px.bar(df, x='region')", ds); err == nil {
		t.Fatalf("expected source length error")
	}
	e = &Executor{MaxStatements: 2}
	if _, err := e.Execute(context.Background(), "a = 1\nb = 2\nc = 3", ds); err == nil {
		t.Fatalf("expected statement limit error")
	}
}

func TestFigBoundToNonChart(t *testing.T) {
	ds := mustLoad(t, salesCSV)
	_, err := execute(t, "fig = 'bar'", ds)
	var ee *ExecutionError
	if !errors.As(err, &ee) {
		t.Fatalf("err = %v", err)
	}
}

func TestExecuteArtifactSpec(t *testing.T) {
	ds := mustLoad(t, salesCSV)
	res, err := NewExecutor().ExecuteArtifact(context.Background(), "```json\n{\"kind\": \"bar\", \"x\": \"region\", \"y\": \"units\", \"title\": \"Units\"}\n```", ds)
	if err != nil {
		t.Fatalf("artifact: %v", err)
	}
	if res.Form != "spec" || res.Figure == nil || res.Figure.Title != "Units" {
		t.Fatalf("res = %+v", res)
	}
	res, err = NewExecutor().ExecuteArtifact(context.Background(), "fig = px.bar(df, x='region')", ds)
	if err != nil || res.Form != "code" || res.Figure.YTitle != "count" {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestParseSpecRejects(t *testing.T) {
	for _, text := range []string{
		`{"kind": "sunburst", "x": "a"}`,
		`{"kind": "bar", "x": "a", "exec": "rm"}`,
		`{"kind": "bar", "agg": "median"}`,
		`{"kind": "histogram", "nbins": 0, "x": "a", "orientation": "diag"}`,
		`not json`,
	} {
		if _, err := ParseSpec(text); err == nil {
			t.Errorf("%s: expected error", text)
		}
	}
	s, err := ParseSpec(`{"kind": "BAR", "x": "region", "y": ["units"]}`)
	if err != nil || s.Kind != "bar" || len(s.Y) != 1 {
		t.Fatalf("spec=%+v err=%v", s, err)
	}
}

func TestBuildRejectsTextValues(t *testing.T) {
	ds := mustLoad(t, salesCSV)
	_, err := Build(Spec{Kind: "bar", X: "units", Y: Columns{"region"}}, ds)
	if err == nil || !strings.Contains(err.Error(), "numeric") {
		t.Fatalf("err = %v", err)
	}
}

func TestSVGRendering(t *testing.T) {
	ds := mustLoad(t, salesCSV)
	for _, src := range []string{
		"fig = px.bar(df, x='region', y='units', title='A <b> & c')",
		"fig = px.pie(df, names='region', values='units')",
		"fig = px.box(df, y='units')",
		"fig = px.line(df, x='month', y='units', color='region')",
		"fig = px.scatter(df, x='region', y='units')",
	} {
		fig, err := execute(t, src, ds)
		if err != nil {
			t.Fatalf("%s: %v", src, err)
		}
		svg := fig.SVG(0, 0)
		if !strings.HasPrefix(svg, `<svg xmlns="http://www.w3.org/2000/svg"`) || !strings.HasSuffix(svg, "</svg>") {
			t.Fatalf("%s: bad svg envelope", src)
		}
		if strings.Contains(svg, "<b>") {
			t.Fatalf("%s: title not escaped", src)
		}
	}
	fig, _ := execute(t, "fig = px.bar(df, x='region', y='units', title='A <b> & c')", ds)
	if !strings.Contains(fig.SVG(0, 0), "A &lt;b&gt; &amp; c") {
		t.Fatalf("escaped title missing")
	}
	page := fig.HTML()
	if !strings.HasPrefix(page, "<!DOCTYPE html>") || !strings.Contains(page, "<svg") {
		t.Fatalf("html = %s", page)
	}
}

func TestExtractCode(t *testing.T) {
	if got := ExtractCode("```python\nfig = 1\n```"); got != "fig = 1" {
		t.Fatalf("got %q", got)
	}
	if got := ExtractCode("  fig = 1  "); got != "fig = 1" {
		t.Fatalf("got %q", got)
	}
}

func TestLineOrdersDecimalCommaLabels(t *testing.T) {
	ds := mustLoad(t, "dose;effect\n2,5;3\n1,5;2\n10;4\n0,5;1\n")
	fig, err := execute(t, "fig = px.line(df, x='dose', y='effect')", ds)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	tr := fig.Traces[0]
	if got := strings.Join(tr.Labels, " "); got != "0,5 1,5 2,5 10" {
		t.Fatalf("labels = %s", got)
	}
	if tr.Y[0] != 1 || tr.Y[3] != 4 {
		t.Fatalf("y = %v", tr.Y)
	}
}

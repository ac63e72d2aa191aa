package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/insightcopilot/internal/ai"
	"github.com/KaramelBytes/insightcopilot/internal/dataset"
	"github.com/KaramelBytes/insightcopilot/internal/session"
)

const salesCSV = "region,units,price\n" +
	"north,10,2.5\n" +
	"south,20,3.0\n" +
	"north,30,4.0\n"

// scriptedRuntime answers every request with reply (or err) and records the last request.
type scriptedRuntime struct {
	reply string
	err   error
	last  ai.GenerateRequest
	calls int
}

func (r *scriptedRuntime) Generate(_ context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	r.calls++
	r.last = req
	if r.err != nil {
		return nil, r.err
	}
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Role: "assistant", Content: r.reply}}}}, nil
}

func (r *scriptedRuntime) userPrompt() string {
	for _, m := range r.last.Messages {
		if m.Role == "user" {
			return m.Content
		}
	}
	return ""
}

func newLoaded(t *testing.T, rt ai.Runtime, opt Options) (*Service, *session.Session) {
	t.Helper()
	svc := NewService(rt, nil, opt)
	sess := session.New()
	res := svc.Upload(context.Background(), sess, "sales.csv", strings.NewReader(salesCSV))
	require.NotNil(t, sess.Dataset(), "upload notice: %+v", res.Notice)
	require.Equal(t, LevelInfo, res.Notice.Level)
	return svc, sess
}

func TestUploadAndPreview(t *testing.T) {
	svc, sess := newLoaded(t, &scriptedRuntime{}, Options{})
	p := svc.Preview(sess, 0)
	require.Nil(t, p.Notice)
	assert.Len(t, p.Rows, 3)
	v, _ := p.Rows[0].Get("region")
	assert.Equal(t, "north", v)

	d := svc.Describe(sess)
	require.Nil(t, d.Notice)
	assert.Contains(t, d.Markdown, "[SCHEMA]")
}

func TestUploadFailureKeepsPreviousDataset(t *testing.T) {
	svc, sess := newLoaded(t, &scriptedRuntime{}, Options{})
	before := sess.Dataset()
	res := svc.Upload(context.Background(), sess, "broken.csv", strings.NewReader("a,b\n1,2,3\n"))
	require.NotNil(t, res.Notice)
	assert.Equal(t, LevelError, res.Notice.Level)
	assert.Contains(t, res.Notice.Message, "Could not read")
	assert.Same(t, before, sess.Dataset())
}

func TestActionsWithoutDataset(t *testing.T) {
	svc := NewService(&scriptedRuntime{}, nil, Options{})
	sess := session.New()
	ctx := context.Background()
	for _, n := range []*Notice{
		svc.Preview(sess, 5).Notice,
		svc.Describe(sess).Notice,
		svc.Insights(ctx, sess).Notice,
		svc.Ask(ctx, sess, "why").Notice,
		svc.SuggestChart(ctx, sess).Notice,
		svc.GenerateChart(ctx, sess, "bar").Notice,
	} {
		require.NotNil(t, n)
		assert.Equal(t, LevelWarning, n.Level)
	}
}

func TestInsightsEmbedsSummary(t *testing.T) {
	rt := &scriptedRuntime{reply: "- North sells the most"}
	svc, sess := newLoaded(t, rt, Options{Model: "gpt-4o-mini", InsightsCount: 3})
	res := svc.Insights(context.Background(), sess)
	require.Nil(t, res.Notice)
	assert.Equal(t, "- North sells the most", res.Text)
	assert.Contains(t, rt.userPrompt(), "Write 3 business insights")
	assert.Equal(t, "gpt-4o-mini", rt.last.Model)
}

func TestAsk(t *testing.T) {
	rt := &scriptedRuntime{reply: "The average is 20."}
	svc, sess := newLoaded(t, rt, Options{})
	res := svc.Ask(context.Background(), sess, "What's the average units?")
	require.Nil(t, res.Notice)
	assert.Equal(t, "The average is 20.", res.Text)
	assert.Contains(t, rt.userPrompt(), "What's the average units?")

	empty := svc.Ask(context.Background(), sess, "  ")
	require.NotNil(t, empty.Notice)
	assert.Equal(t, 1, rt.calls)
}

func TestSuggestionBecomesDefaultChartPrompt(t *testing.T) {
	rt := &scriptedRuntime{reply: "A bar chart of units by region"}
	svc, sess := newLoaded(t, rt, Options{})
	sug := svc.SuggestChart(context.Background(), sess)
	require.Nil(t, sug.Notice)
	assert.Equal(t, "A bar chart of units by region", sess.LastSuggestion())

	rt.reply = `{"kind": "bar", "x": "region", "y": "units"}`
	res := svc.GenerateChart(context.Background(), sess, "")
	require.Nil(t, res.Notice)
	assert.Equal(t, "A bar chart of units by region", res.Prompt)
	assert.Contains(t, rt.userPrompt(), "A bar chart of units by region")
	assert.Equal(t, "spec", res.Form)
	require.NotNil(t, res.Figure)
	assert.Equal(t, []float64{40, 20}, res.Figure.Traces[0].Y)
	assert.True(t, strings.HasPrefix(res.SVG, "<svg"))
}

func TestGenerateChartFromCode(t *testing.T) {
	rt := &scriptedRuntime{reply: "```python\nfig = px.bar(df, x='region', y='units')\n```"}
	svc, sess := newLoaded(t, rt, Options{ChartMode: ChartModeCode})
	res := svc.GenerateChart(context.Background(), sess, "units by region")
	require.Nil(t, res.Notice)
	require.NotNil(t, res.Figure)
	assert.Equal(t, "code", res.Form)
	assert.Equal(t, "fig = px.bar(df, x='region', y='units')", res.Code)
	assert.Contains(t, rt.userPrompt(), "`fig`")
	fig, code := sess.LastChart()
	assert.Same(t, res.Figure, fig)
	assert.Equal(t, res.Code, code)
}

func TestGenerateChartWithoutFig(t *testing.T) {
	rt := &scriptedRuntime{reply: "chart = px.bar(df, x='region')"}
	svc, sess := newLoaded(t, rt, Options{ChartMode: ChartModeCode})
	res := svc.GenerateChart(context.Background(), sess, "units by region")
	require.NotNil(t, res.Notice)
	assert.Equal(t, LevelWarning, res.Notice.Level)
	assert.Equal(t, NoChartMessage, res.Notice.Message)
	assert.Nil(t, res.Figure)
	assert.NotEmpty(t, res.Code)
}

func TestGenerateChartRejectedCodeLeavesDataset(t *testing.T) {
	rt := &scriptedRuntime{reply: "import os\nos.remove('data.csv')"}
	svc, sess := newLoaded(t, rt, Options{ChartMode: ChartModeCode})
	before := sess.Dataset().Fingerprint()
	res := svc.GenerateChart(context.Background(), sess, "delete everything")
	require.NotNil(t, res.Notice)
	assert.Equal(t, LevelWarning, res.Notice.Level)
	assert.Contains(t, res.Notice.Message, "Try rewording")
	assert.Nil(t, res.Figure)
	assert.Equal(t, before, sess.Dataset().Fingerprint())
}

func TestLLMErrorsBecomeNotices(t *testing.T) {
	cases := map[string]error{
		"API key":       &ai.AuthError{APIError: &ai.APIError{StatusCode: 401, Message: "bad key"}},
		"rate":          &ai.RateLimitError{APIError: &ai.APIError{StatusCode: 429}},
		"not available": &ai.ModelNotFoundError{APIError: &ai.APIError{StatusCode: 404}},
		"reach":         &ai.UnreachableError{Host: "http://127.0.0.1:1", Err: errors.New("connection refused")},
	}
	for want, cause := range cases {
		rt := &scriptedRuntime{err: cause}
		svc, sess := newLoaded(t, rt, Options{})
		res := svc.Insights(context.Background(), sess)
		require.NotNil(t, res.Notice, want)
		assert.Equal(t, LevelError, res.Notice.Level)
		assert.Contains(t, res.Notice.Message, want)
		assert.NotNil(t, sess.Dataset())
	}
}

func TestMalformedResponseNotice(t *testing.T) {
	rt := &scriptedRuntime{reply: "   "}
	svc, sess := newLoaded(t, rt, Options{})
	res := svc.Ask(context.Background(), sess, "anything?")
	require.NotNil(t, res.Notice)
	assert.Contains(t, res.Notice.Message, "empty or unreadable")
}

func TestStreamReceivesText(t *testing.T) {
	var got []string
	rt := &scriptedRuntime{reply: "streamed?"}
	svc, sess := newLoaded(t, rt, Options{Stream: func(d string) { got = append(got, d) }})
	res := svc.Insights(context.Background(), sess)
	require.Nil(t, res.Notice)
	// scriptedRuntime does not implement streaming, so Complete falls back to Generate.
	assert.Empty(t, got)
	assert.Equal(t, "streamed?", res.Text)
}

func TestNoticeForParseError(t *testing.T) {
	n := NoticeFor("reading file", &dataset.ParseError{Name: "x.csv", Line: 2})
	assert.Equal(t, LevelError, n.Level)
	assert.Nil(t, NoticeFor("x", nil))
}

// Package app runs the user-facing flows (upload, preview, insights, Q&A and
// chart generation) against an explicit session. Every flow returns content
// or a Notice; errors are logged here and never returned raw.
package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/KaramelBytes/insightcopilot/internal/ai"
	"github.com/KaramelBytes/insightcopilot/internal/chart"
	"github.com/KaramelBytes/insightcopilot/internal/dataset"
	"github.com/KaramelBytes/insightcopilot/internal/logger"
	"github.com/KaramelBytes/insightcopilot/internal/prompt"
	"github.com/KaramelBytes/insightcopilot/internal/session"
	"github.com/KaramelBytes/insightcopilot/internal/tracer"
	"github.com/KaramelBytes/insightcopilot/internal/utils"
)

const module = "app"

// Chart generation modes.
const (
	ChartModeSpec = "spec"
	ChartModeCode = "code"
)

// Options tunes a Service.
type Options struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	RequestTimeout time.Duration
	PreviewRows    int
	InsightsCount  int
	ChartMode      string
	Load           dataset.Options
	// Stream receives partial text of insights, answers and suggestions.
	Stream func(string)
}

// Service wires the LLM runtime, the chart executor and logging together.
type Service struct {
	rt   ai.Runtime
	log  logger.ILogger
	exec *chart.Executor
	opt  Options
}

func NewService(rt ai.Runtime, log logger.ILogger, opt Options) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	if opt.ChartMode == "" {
		opt.ChartMode = ChartModeSpec
	}
	if opt.PreviewRows <= 0 {
		opt.PreviewRows = dataset.DefaultPreviewRows
	}
	if opt.InsightsCount <= 0 {
		opt.InsightsCount = prompt.DefaultInsightCount
	}
	return &Service{rt: rt, log: log, exec: chart.NewExecutor(), opt: opt}
}

// UploadResult describes a newly loaded dataset.
type UploadResult struct {
	Name     string           `json:"name,omitempty"`
	Rows     int              `json:"rows"`
	Columns  []dataset.Column `json:"columns,omitempty"`
	Warnings []string         `json:"warnings,omitempty"`
	Notice   *Notice          `json:"notice,omitempty"`
}

// PreviewResult holds the first rows of the dataset.
type PreviewResult struct {
	Columns []dataset.Column `json:"columns,omitempty"`
	Rows    []dataset.Record `json:"rows,omitempty"`
	Notice  *Notice          `json:"notice,omitempty"`
}

// DescribeResult holds the schema summary.
type DescribeResult struct {
	Summary  *dataset.Summary `json:"summary,omitempty"`
	Markdown string           `json:"markdown,omitempty"`
	Notice   *Notice          `json:"notice,omitempty"`
}

// TextResult holds model-written text.
type TextResult struct {
	Text   string  `json:"text,omitempty"`
	Notice *Notice `json:"notice,omitempty"`
}

// ChartResult holds a generated figure and the artifact it was built from.
// Code is kept even when the figure could not be built so it can be shown.
type ChartResult struct {
	Figure *chart.Figure `json:"figure,omitempty"`
	SVG    string        `json:"svg,omitempty"`
	Code   string        `json:"code,omitempty"`
	Form   string        `json:"form,omitempty"`
	Prompt string        `json:"prompt,omitempty"`
	Notice *Notice       `json:"notice,omitempty"`
}

// Upload reads r as a table and replaces the session's dataset. On failure the
// previous dataset is kept.
func (s *Service) Upload(ctx context.Context, sess *session.Session, name string, r io.Reader) *UploadResult {
	defer sess.Begin()()
	_, span := tracer.Start(ctx, "app.upload")
	defer span.End()

	ds, err := dataset.LoadNamed(r, name, s.opt.Load)
	if err != nil {
		s.fail(span, "upload failed", err, map[string]any{"session": sess.ID, "file": name})
		return &UploadResult{Notice: NoticeFor("reading file", err)}
	}
	sess.SetDataset(ds)
	span.SetAttributes(attribute.Int("rows", ds.Len()), attribute.Int("columns", len(ds.Columns())))
	s.log.Info(module, "dataset loaded", map[string]any{"session": sess.ID, "file": name, "rows": ds.Len(), "columns": len(ds.Columns())})

	res := &UploadResult{Name: ds.Name(), Rows: ds.Len(), Columns: ds.Columns(), Warnings: ds.Warnings()}
	if len(res.Warnings) > 0 {
		res.Notice = warnf("Loaded %d rows with warnings: %s", ds.Len(), strings.Join(res.Warnings, "; "))
	} else {
		res.Notice = infof("Loaded %d rows and %d columns from %s.", ds.Len(), len(ds.Columns()), ds.Name())
	}
	return res
}

// Preview returns the first n rows; n <= 0 uses the configured default.
func (s *Service) Preview(sess *session.Session, n int) *PreviewResult {
	ds := sess.Dataset()
	if ds == nil {
		return &PreviewResult{Notice: NoticeFor("previewing data", ErrNoDataset)}
	}
	if n <= 0 {
		n = s.opt.PreviewRows
	}
	return &PreviewResult{Columns: ds.Columns(), Rows: ds.Preview(n)}
}

// Describe computes the schema summary.
func (s *Service) Describe(sess *session.Session) *DescribeResult {
	ds := sess.Dataset()
	if ds == nil {
		return &DescribeResult{Notice: NoticeFor("describing data", ErrNoDataset)}
	}
	sum := ds.Summary()
	return &DescribeResult{Summary: sum, Markdown: sum.Markdown()}
}

// Insights asks the model for business insights about the whole dataset.
func (s *Service) Insights(ctx context.Context, sess *session.Session) *TextResult {
	defer sess.Begin()()
	ctx, span := tracer.Start(ctx, "app.insights")
	defer span.End()

	ds := sess.Dataset()
	if ds == nil {
		return &TextResult{Notice: NoticeFor("generating insights", ErrNoDataset)}
	}
	in := prompt.Input{Summary: ds.Summary(), Columns: ds.Columns(), Count: s.opt.InsightsCount}
	text, err := s.complete(ctx, prompt.Insights, in, s.opt.Temperature, true)
	if err != nil {
		s.fail(span, "insights failed", err, map[string]any{"session": sess.ID})
		return &TextResult{Notice: NoticeFor("generating insights", err)}
	}
	return &TextResult{Text: text}
}

// Ask answers a natural-language question about the dataset.
func (s *Service) Ask(ctx context.Context, sess *session.Session, question string) *TextResult {
	defer sess.Begin()()
	ctx, span := tracer.Start(ctx, "app.ask")
	defer span.End()

	ds := sess.Dataset()
	if ds == nil {
		return &TextResult{Notice: NoticeFor("answering", ErrNoDataset)}
	}
	if strings.TrimSpace(question) == "" {
		return &TextResult{Notice: warnf("Ask a question first, for example: What's the average revenue?")}
	}
	in := prompt.Input{
		Summary:  ds.Summary(),
		Columns:  ds.Columns(),
		Preview:  ds.Preview(s.opt.PreviewRows),
		Question: question,
	}
	text, err := s.complete(ctx, prompt.Question, in, 0, true)
	if err != nil {
		s.fail(span, "question failed", err, map[string]any{"session": sess.ID})
		return &TextResult{Notice: NoticeFor("answering", err)}
	}
	return &TextResult{Text: text}
}

// SuggestChart asks for one plain-language chart idea and remembers it in the
// session as the default chart description.
func (s *Service) SuggestChart(ctx context.Context, sess *session.Session) *TextResult {
	defer sess.Begin()()
	ctx, span := tracer.Start(ctx, "app.suggest_chart")
	defer span.End()

	ds := sess.Dataset()
	if ds == nil {
		return &TextResult{Notice: NoticeFor("suggesting chart", ErrNoDataset)}
	}
	text, err := s.complete(ctx, prompt.ChartSuggestion, prompt.Input{Columns: ds.Columns()}, s.opt.Temperature, true)
	if err != nil {
		s.fail(span, "chart suggestion failed", err, map[string]any{"session": sess.ID})
		return &TextResult{Notice: NoticeFor("suggesting chart", err)}
	}
	sess.SetSuggestion(text)
	return &TextResult{Text: text}
}

// GenerateChart turns a description (or, when empty, the last suggestion)
// into a figure. The model's artifact is never executed as code: it is either
// a validated chart spec or source for the restricted chart interpreter.
func (s *Service) GenerateChart(ctx context.Context, sess *session.Session, description string) *ChartResult {
	defer sess.Begin()()
	ctx, span := tracer.Start(ctx, "app.generate_chart")
	defer span.End()

	ds := sess.Dataset()
	if ds == nil {
		return &ChartResult{Notice: NoticeFor("generating chart", ErrNoDataset)}
	}
	desc := strings.TrimSpace(description)
	if desc == "" {
		desc = sess.LastSuggestion()
	}
	if desc == "" {
		return &ChartResult{Notice: warnf("Describe the chart you want, or ask for a suggestion first.")}
	}
	kind := prompt.ChartSpec
	if s.opt.ChartMode == ChartModeCode {
		kind = prompt.ChartCode
	}
	span.SetAttributes(attribute.String("chart.mode", s.opt.ChartMode))

	text, err := s.complete(ctx, kind, prompt.Input{Columns: ds.Columns(), Description: desc}, 0, false)
	if err != nil {
		s.fail(span, "chart generation failed", err, map[string]any{"session": sess.ID})
		return &ChartResult{Prompt: desc, Notice: NoticeFor("generating chart", err)}
	}

	out := &ChartResult{Prompt: desc, Code: text}
	res, err := s.exec.ExecuteArtifact(ctx, text, ds)
	if res != nil {
		out.Code, out.Form = res.Code, res.Form
	}
	if err != nil {
		s.fail(span, "chart execution failed", err, map[string]any{"session": sess.ID, "code": out.Code})
		out.Notice = NoticeFor("generating chart", err)
		return out
	}
	if res.Figure == nil {
		s.log.Warn(module, "chart code produced no figure", map[string]any{"session": sess.ID, "code": out.Code})
		out.Notice = warnf(NoChartMessage)
		return out
	}
	out.Figure = res.Figure
	out.SVG = res.Figure.SVG(0, 0)
	sess.SetChart(res.Figure, out.Code)
	s.log.Info(module, "chart generated", map[string]any{"session": sess.ID, "kind": res.Figure.Kind, "form": res.Form})
	return out
}

func (s *Service) complete(ctx context.Context, kind prompt.Kind, in prompt.Input, temperature float64, stream bool) (string, error) {
	p, err := prompt.Build(kind, in)
	if err != nil {
		return "", fmt.Errorf("build %s prompt: %w", kind, err)
	}
	opts := []ai.CallOption{
		ai.WithTemperature(temperature),
		ai.WithMaxTokens(s.opt.MaxTokens),
		ai.WithTimeout(s.opt.RequestTimeout),
	}
	if stream && s.opt.Stream != nil {
		opts = append(opts, ai.WithStream(s.opt.Stream))
	}
	details := map[string]any{
		"kind":   kind,
		"model":  s.opt.Model,
		"tokens": utils.TokenBreakdown(map[string]string{"system": p.System, "user": p.User}),
	}
	if usd, ok := ai.EstimateCostUSD(s.opt.Model, p.Tokens(), s.opt.MaxTokens); ok {
		details["max_cost_usd"] = usd
	}
	s.log.Debug(module, "calling model", details)
	return ai.Complete(ctx, s.rt, p.System, p.User, s.opt.Model, opts...)
}

func (s *Service) fail(span trace.Span, msg string, err error, details map[string]any) {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	details["error"] = err
	s.log.Error(module, msg, details)
}

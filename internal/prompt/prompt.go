// Package prompt assembles the system and user messages sent to the model for
// each dataset action. Build is pure: the same input always yields the same prompt.
package prompt

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/KaramelBytes/insightcopilot/internal/dataset"
	"github.com/KaramelBytes/insightcopilot/internal/utils"
)

// Kind selects a prompt template.
type Kind string

const (
	Insights        Kind = "insights"
	ChartSuggestion Kind = "chart_suggestion"
	ChartCode       Kind = "chart_code"
	ChartSpec       Kind = "chart_spec"
	Question        Kind = "question"
)

// DefaultInsightCount is the number of insights requested when Input.Count is 0.
const DefaultInsightCount = 5

// ErrUnknownKind is returned for an unsupported Kind.
var ErrUnknownKind = errors.New("unknown prompt kind")

// Input carries everything a template may embed.
type Input struct {
	Summary     *dataset.Summary
	Columns     []dataset.Column
	Preview     []dataset.Record
	Description string
	Question    string
	Count       int
}

// Prompt is a system/user message pair.
type Prompt struct {
	System string
	User   string
}

// Tokens estimates the combined size of both messages.
func (p Prompt) Tokens() int {
	return utils.CountTokens(p.System) + utils.CountTokens(p.User)
}

// ChartKinds lists the chart kinds the model may choose from.
var ChartKinds = []string{"bar", "line", "scatter", "histogram", "pie", "box", "area"}

// Build renders the template for kind.
func Build(kind Kind, in Input) (Prompt, error) {
	switch kind {
	case Insights:
		if in.Summary == nil {
			return Prompt{}, errors.New("insights prompt requires a dataset summary")
		}
		n := in.Count
		if n <= 0 {
			n = DefaultInsightCount
		}
		return Prompt{
			System: "You are a data analyst. Write concise business-style insights.",
			User: fmt.Sprintf("Given the dataset summary:\n%s\nStatistics by column (describe):\n%s\n\nWrite %d business insights in markdown bullet points.",
				in.Summary.Markdown(), describeJSON(in.Summary), n),
		}, nil

	case ChartSuggestion:
		if len(in.Columns) == 0 {
			return Prompt{}, errors.New("chart suggestion prompt requires columns")
		}
		return Prompt{
			System: "You are a data analyst helping generate ideas for visualizations.",
			User: fmt.Sprintf("Based on this dataset schema: %s, suggest one useful chart a business analyst might want to see. Just provide the plain-English idea.",
				schemaMap(in.Columns)),
		}, nil

	case ChartCode:
		if err := requireDescription(in); err != nil {
			return Prompt{}, err
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Write code using the plotting entry point `px` to create an interactive chart from this instruction: %q.\n", strings.TrimSpace(in.Description))
		fmt.Fprintf(&b, "Assume `df` is the table with columns: %s.\n", columnList(in.Columns))
		b.WriteString("Rules:\n")
		b.WriteString("- Assign the chart to a variable called `fig`, for example: fig = px.bar(df, x='region', y='sales', title='Sales by region')\n")
		fmt.Fprintf(&b, "- Available functions: %s. Keyword arguments: x, y, color, title, nbins, agg ('sum', 'mean' or 'count'), orientation.\n", pxList())
		b.WriteString("- You may call fig.update_layout(title=..., xaxis_title=..., yaxis_title=...).\n")
		b.WriteString("- Do not import anything. Do not call show(). Do not read or write files.\n")
		b.WriteString("- Reply with the code only.")
		return Prompt{
			System: "You write short, safe chart code for a restricted plotting interpreter.",
			User:   b.String(),
		}, nil

	case ChartSpec:
		if err := requireDescription(in); err != nil {
			return Prompt{}, err
		}
		var b strings.Builder
		fmt.Fprintf(&b, "Choose a chart for this instruction: %q.\n", strings.TrimSpace(in.Description))
		fmt.Fprintf(&b, "The table has columns (name: kind): %s.\n", schemaList(in.Columns))
		b.WriteString("Reply with a single JSON object and nothing else, using these fields:\n")
		fmt.Fprintf(&b, `{"kind": one of %s, "x": column, "y": column or "", "color": column or "", "agg": "sum"|"mean"|"count", "nbins": integer, "title": text, "x_title": text, "y_title": text}`, strings.Join(quoted(ChartKinds), "|"))
		b.WriteString("\nUse only the column names listed above.")
		return Prompt{
			System: "You are a data visualization assistant. You answer with strict JSON.",
			User:   b.String(),
		}, nil

	case Question:
		if strings.TrimSpace(in.Question) == "" {
			return Prompt{}, errors.New("question prompt requires a question")
		}
		if in.Summary == nil {
			return Prompt{}, errors.New("question prompt requires a dataset summary")
		}
		var b strings.Builder
		b.WriteString(in.Summary.Markdown())
		if len(in.Preview) > 0 {
			b.WriteString("\n[HEAD ROWS]\n")
			b.WriteString(dataset.MarkdownTable(in.Columns, in.Preview))
		}
		fmt.Fprintf(&b, "\n[QUESTION]\n%s\n\nAnswer concisely using only the data described above. If the summary is not enough to answer exactly, say what is missing.", strings.TrimSpace(in.Question))
		return Prompt{
			System: "You are a data analyst answering questions about a tabular dataset.",
			User:   b.String(),
		}, nil
	}
	return Prompt{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
}

func requireDescription(in Input) error {
	if strings.TrimSpace(in.Description) == "" {
		return errors.New("chart prompt requires a description")
	}
	if len(in.Columns) == 0 {
		return errors.New("chart prompt requires columns")
	}
	return nil
}

func describeJSON(s *dataset.Summary) string {
	b, err := json.Marshal(s.Describe())
	if err != nil {
		return "{}"
	}
	return string(b)
}

// schemaMap renders {'name': 'kind', ...} in column order.
func schemaMap(cols []dataset.Column) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("'%s': '%s'", c.Name, c.Kind)
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func schemaList(cols []dataset.Column) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%s: %s", c.Name, c.Kind)
	}
	return strings.Join(parts, ", ")
}

func columnList(cols []dataset.Column) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = "'" + c.Name + "'"
	}
	return strings.Join(parts, ", ")
}

func pxList() string {
	parts := make([]string, len(ChartKinds))
	for i, k := range ChartKinds {
		parts[i] = "px." + k
	}
	return strings.Join(parts, ", ")
}

func quoted(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = `"` + s + `"`
	}
	return out
}

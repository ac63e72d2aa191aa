package chart

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/KaramelBytes/insightcopilot/internal/dataset"
)

const (
	defaultMaxSource     = 16 << 10
	defaultMaxStatements = 64
)

// Executor runs chart artifacts against a dataset. The only bindings visible
// to source are df (the dataset, read-only) and px (the chart constructors).
type Executor struct {
	MaxSource     int
	MaxStatements int
}

// NewExecutor returns an Executor with default limits.
func NewExecutor() *Executor {
	return &Executor{MaxSource: defaultMaxSource, MaxStatements: defaultMaxStatements}
}

// Result is the outcome of running an artifact. Figure is nil when the source
// ran but never bound fig.
type Result struct {
	Figure *Figure
	Code   string
	Form   string // "spec" or "code"
}

// ExecuteArtifact accepts either a JSON chart spec or chart code, optionally
// wrapped in a markdown fence.
func (e *Executor) ExecuteArtifact(ctx context.Context, artifact string, ds *dataset.Dataset) (*Result, error) {
	code := ExtractCode(artifact)
	if strings.HasPrefix(code, "{") {
		spec, err := ParseSpec(code)
		if err != nil {
			return &Result{Code: code, Form: "spec"}, err
		}
		fig, err := Build(spec, ds)
		return &Result{Figure: fig, Code: code, Form: "spec"}, err
	}
	fig, err := e.Execute(ctx, code, ds)
	return &Result{Figure: fig, Code: code, Form: "code"}, err
}

// Execute interprets source and returns the figure bound to fig, or (nil, nil)
// when no such binding exists.
func (e *Executor) Execute(ctx context.Context, source string, ds *dataset.Dataset) (*Figure, error) {
	if ds == nil {
		return nil, &ExecutionError{Msg: "no dataset loaded"}
	}
	maxSrc := e.MaxSource
	if maxSrc <= 0 {
		maxSrc = defaultMaxSource
	}
	if len(source) > maxSrc {
		return nil, &ExecutionError{Msg: fmt.Sprintf("source too long (%d bytes, limit %d)", len(source), maxSrc)}
	}
	toks, err := lex(ExtractCode(source))
	if err != nil {
		return nil, err
	}
	maxStmt := e.MaxStatements
	if maxStmt <= 0 {
		maxStmt = defaultMaxStatements
	}
	in := &interp{toks: toks, ds: ds, env: map[string]any{}, maxStmt: maxStmt}
	if err := in.run(ctx); err != nil {
		return nil, err
	}
	v, ok := in.env["fig"]
	if !ok {
		return nil, nil
	}
	fig, ok := v.(*Figure)
	if !ok {
		return nil, &ExecutionError{Msg: fmt.Sprintf("fig is %s, not a chart", describe(v))}
	}
	return fig, nil
}

// ExtractCode returns the first fenced block of text, or the trimmed text when
// there is no fence.
func ExtractCode(text string) string {
	s := strings.TrimSpace(text)
	start := strings.Index(s, "```")
	if start < 0 {
		return s
	}
	rest := s[start+3:]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[nl+1:]
	} else {
		rest = ""
	}
	if end := strings.Index(rest, "```"); end >= 0 {
		rest = rest[:end]
	}
	return strings.TrimSpace(rest)
}

type dfRef struct{}
type pxRef struct{}
type none struct{}

type dictEntry struct {
	key string
	val any
}
type dict []dictEntry

// forbidden names get a dedicated message; every other unbound name is simply undefined.
var forbidden = map[string]bool{
	"import": true, "from": true, "exec": true, "eval": true, "compile": true, "open": true,
	"__import__": true, "getattr": true, "setattr": true, "delattr": true, "globals": true,
	"locals": true, "vars": true, "def": true, "class": true, "lambda": true, "for": true,
	"while": true, "with": true, "try": true, "if": true, "del": true, "global": true,
	"nonlocal": true, "async": true, "await": true, "yield": true, "return": true,
	"input": true, "print": true, "breakpoint": true, "os": true, "sys": true, "subprocess": true,
}

type interp struct {
	toks    []token
	pos     int
	ds      *dataset.Dataset
	env     map[string]any
	maxStmt int
}

func (p *interp) peek() token { return p.toks[p.pos] }
func (p *interp) peekN(n int) token {
	if p.pos+n < len(p.toks) {
		return p.toks[p.pos+n]
	}
	return p.toks[len(p.toks)-1]
}
func (p *interp) next() token {
	t := p.toks[p.pos]
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *interp) expect(text string) (token, error) {
	t := p.next()
	if !t.is(tokPunct, text) {
		return t, execErrorf(t.line, "expected %q, found %s", text, show(t))
	}
	return t, nil
}

func show(t token) string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokNewline:
		return "end of line"
	case tokString:
		return strconv.Quote(t.text)
	}
	return fmt.Sprintf("%q", t.text)
}

func (p *interp) run(ctx context.Context) error {
	n := 0
	for {
		for p.peek().kind == tokNewline {
			p.next()
		}
		if p.peek().kind == tokEOF {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return &ExecutionError{Msg: "cancelled", Err: err}
		}
		n++
		if n > p.maxStmt {
			return execErrorf(p.peek().line, "too many statements (limit %d)", p.maxStmt)
		}
		if err := p.statement(); err != nil {
			return err
		}
		if t := p.peek(); t.kind != tokNewline && t.kind != tokEOF {
			return execErrorf(t.line, "unexpected %s after statement", show(t))
		}
	}
}

func (p *interp) statement() error {
	t := p.next()
	if t.kind != tokIdent {
		return execErrorf(t.line, "unexpected %s at start of statement", show(t))
	}
	if t.text == "import" {
		return p.importStmt(t)
	}
	if forbidden[t.text] || isDunder(t.text) {
		return execErrorf(t.line, "%q is not allowed", t.text)
	}
	nt := p.peek()
	switch {
	case nt.is(tokPunct, "="):
		p.next()
		if t.text == "df" || t.text == "px" || t.text == "True" || t.text == "False" || t.text == "None" {
			return execErrorf(t.line, "cannot rebind %q", t.text)
		}
		v, err := p.expr()
		if err != nil {
			return err
		}
		p.env[t.text] = v
		return nil
	case nt.is(tokPunct, "."):
		switch t.text {
		case "px":
			_, err := p.pxCall(t)
			return err
		case "df":
			return execErrorf(t.line, "attribute access df.%s is not allowed", p.peekN(1).text)
		}
		fig, ok := p.env[t.text].(*Figure)
		if !ok {
			if _, bound := p.env[t.text]; bound {
				return execErrorf(t.line, "attribute access on %s is not allowed", t.text)
			}
			return execErrorf(t.line, "name %q is not defined", t.text)
		}
		return p.figureMethod(fig)
	case nt.is(tokPunct, "("):
		return execErrorf(t.line, "call to %s is not allowed", t.text)
	case nt.kind == tokNewline || nt.kind == tokEOF:
		if _, ok := p.env[t.text]; ok || t.text == "df" || t.text == "px" {
			return nil
		}
		return execErrorf(t.line, "name %q is not defined", t.text)
	}
	return execErrorf(nt.line, "unexpected %s", show(nt))
}

// importStmt accepts only the import that binds px, which is already bound.
func (p *interp) importStmt(t token) error {
	parts := []string{}
	for p.peek().kind == tokIdent || p.peek().is(tokPunct, ".") {
		parts = append(parts, p.next().text)
	}
	got := strings.Join(parts, " ")
	if got == "plotly . express as px" {
		return nil
	}
	return execErrorf(t.line, "import statements are not allowed")
}

func isDunder(s string) bool { return strings.HasPrefix(s, "__") }

func (p *interp) expr() (any, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		s := t.text
		for p.peek().kind == tokString {
			s += p.next().text
		}
		return s, nil
	case tokNumber:
		f, err := strconv.ParseFloat(t.text, 64)
		if err != nil {
			return nil, execErrorf(t.line, "invalid number %q", t.text)
		}
		return f, nil
	case tokPunct:
		switch t.text {
		case "[", "(":
			return p.list(t)
		case "{":
			return p.dict(t)
		}
	case tokIdent:
		switch t.text {
		case "True":
			return true, nil
		case "False":
			return false, nil
		case "None":
			return none{}, nil
		}
		if forbidden[t.text] || isDunder(t.text) {
			return nil, execErrorf(t.line, "%q is not allowed", t.text)
		}
		nt := p.peek()
		if t.text == "px" {
			if !nt.is(tokPunct, ".") {
				return pxRef{}, nil
			}
			return p.pxCall(t)
		}
		if nt.is(tokPunct, "(") {
			return nil, execErrorf(t.line, "call to %s is not allowed", t.text)
		}
		if nt.is(tokPunct, "[") {
			return nil, execErrorf(t.line, "indexing %s is not allowed", t.text)
		}
		if nt.is(tokPunct, ".") {
			return nil, execErrorf(t.line, "attribute access %s.%s is not allowed", t.text, p.peekN(1).text)
		}
		if t.text == "df" {
			return dfRef{}, nil
		}
		if v, ok := p.env[t.text]; ok {
			return v, nil
		}
		return nil, execErrorf(t.line, "name %q is not defined", t.text)
	}
	return nil, execErrorf(t.line, "unexpected %s in expression", show(t))
}

func (p *interp) list(open token) (any, error) {
	closer := "]"
	if open.text == "(" {
		closer = ")"
	}
	var out []any
	for !p.peek().is(tokPunct, closer) {
		v, err := p.expr()
		if err != nil {
			return nil, err
		}
		out = append(out, v)
		if p.peek().is(tokPunct, ",") {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect(closer); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *interp) dict(open token) (any, error) {
	var out dict
	for !p.peek().is(tokPunct, "}") {
		k, err := p.expr()
		if err != nil {
			return nil, err
		}
		ks, ok := k.(string)
		if !ok {
			return nil, execErrorf(open.line, "dictionary keys must be strings")
		}
		if _, err := p.expect(":"); err != nil {
			return nil, err
		}
		v, err := p.expr()
		if err != nil {
			return nil, err
		}
		out = append(out, dictEntry{key: ks, val: v})
		if p.peek().is(tokPunct, ",") {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect("}"); err != nil {
		return nil, err
	}
	return out, nil
}

type kwarg struct {
	name string
	val  any
	line int
}

// args parses a call's argument list after '('.
func (p *interp) args() ([]any, []kwarg, error) {
	var pos []any
	var kws []kwarg
	for !p.peek().is(tokPunct, ")") {
		t := p.peek()
		if t.kind == tokIdent && p.peekN(1).is(tokPunct, "=") {
			p.next()
			p.next()
			v, err := p.expr()
			if err != nil {
				return nil, nil, err
			}
			for _, kw := range kws {
				if kw.name == t.text {
					return nil, nil, execErrorf(t.line, "duplicate argument %q", t.text)
				}
			}
			kws = append(kws, kwarg{name: t.text, val: v, line: t.line})
		} else {
			if len(kws) > 0 {
				return nil, nil, execErrorf(t.line, "positional argument after keyword argument")
			}
			v, err := p.expr()
			if err != nil {
				return nil, nil, err
			}
			pos = append(pos, v)
		}
		if p.peek().is(tokPunct, ",") {
			p.next()
			continue
		}
		break
	}
	if _, err := p.expect(")"); err != nil {
		return nil, nil, err
	}
	return pos, kws, nil
}

// cosmetic arguments are accepted and have no effect on the figure.
var cosmeticPx = map[string]bool{
	"template": true, "markers": true, "barmode": true, "width": true, "height": true,
	"opacity": true, "hole": true, "text_auto": true, "color_discrete_sequence": true,
	"hover_data": true, "hover_name": true, "line_shape": true,
}

func (p *interp) pxCall(pxTok token) (*Figure, error) {
	if _, err := p.expect("."); err != nil {
		return nil, err
	}
	name := p.next()
	if name.kind != tokIdent {
		return nil, execErrorf(name.line, "expected chart function after px.")
	}
	if !validKind(name.text) {
		return nil, execErrorf(name.line, "px.%s is not supported (use one of %s)", name.text, kindList())
	}
	if _, err := p.expect("("); err != nil {
		return nil, err
	}
	pos, kws, err := p.args()
	if err != nil {
		return nil, err
	}
	switch {
	case len(pos) > 1:
		return nil, execErrorf(name.line, "px.%s takes df as its only positional argument", name.text)
	case len(pos) == 1:
		if _, ok := pos[0].(dfRef); !ok {
			return nil, execErrorf(name.line, "px.%s expects df as first argument, got %s", name.text, describe(pos[0]))
		}
	}
	spec := Spec{Kind: name.text}
	var labels dict
	for _, kw := range kws {
		switch kw.name {
		case "data_frame":
			if _, ok := kw.val.(dfRef); !ok {
				return nil, execErrorf(kw.line, "data_frame must be df")
			}
		case "x", "names":
			if spec.X, err = optString(kw); err != nil {
				return nil, err
			}
		case "y", "values":
			if spec.Y, err = columnsArg(kw); err != nil {
				return nil, err
			}
		case "color":
			if spec.Color, err = optString(kw); err != nil {
				return nil, err
			}
		case "title":
			if spec.Title, err = optString(kw); err != nil {
				return nil, err
			}
		case "agg", "histfunc":
			s, err := optString(kw)
			if err != nil {
				return nil, err
			}
			if s == "avg" {
				s = "mean"
			}
			spec.Agg = s
		case "nbins":
			f, ok := kw.val.(float64)
			if !ok || f != float64(int(f)) {
				return nil, execErrorf(kw.line, "nbins must be an integer")
			}
			spec.NBins = int(f)
		case "orientation":
			if spec.Orientation, err = optString(kw); err != nil {
				return nil, err
			}
		case "labels":
			d, ok := kw.val.(dict)
			if !ok {
				return nil, execErrorf(kw.line, "labels must be a dictionary of column to title")
			}
			labels = d
		default:
			if !cosmeticPx[kw.name] {
				return nil, execErrorf(kw.line, "unsupported argument %q for px.%s", kw.name, name.text)
			}
		}
	}
	for _, e := range labels {
		s, ok := e.val.(string)
		if !ok {
			return nil, execErrorf(pxTok.line, "label for %q must be a string", e.key)
		}
		switch {
		case e.key == spec.X:
			spec.XTitle = s
		case len(spec.Y) == 1 && e.key == spec.Y[0]:
			spec.YTitle = s
		}
	}
	return build(spec, p.ds, pxTok.line)
}

var cosmeticLayout = map[string]bool{
	"template": true, "showlegend": true, "legend_title": true, "legend_title_text": true,
	"height": true, "width": true, "bargap": true, "margin": true, "hovermode": true,
	"title_x": true, "font": true, "xaxis_tickangle": true,
}

func (p *interp) figureMethod(fig *Figure) error {
	p.next() // '.'
	m := p.next()
	if m.kind != tokIdent {
		return execErrorf(m.line, "expected method name")
	}
	switch m.text {
	case "show", "update_layout", "update_xaxes", "update_yaxes":
	default:
		return execErrorf(m.line, "method %s is not allowed", m.text)
	}
	if _, err := p.expect("("); err != nil {
		return err
	}
	pos, kws, err := p.args()
	if err != nil {
		return err
	}
	if len(pos) > 0 && m.text != "show" {
		return execErrorf(m.line, "%s takes keyword arguments only", m.text)
	}
	switch m.text {
	case "show":
		return nil
	case "update_layout":
		for _, kw := range kws {
			switch kw.name {
			case "title", "title_text":
				s, err := titleArg(kw)
				if err != nil {
					return err
				}
				fig.Title = s
			case "xaxis_title", "xaxis_title_text":
				if fig.XTitle, err = optString(kw); err != nil {
					return err
				}
			case "yaxis_title", "yaxis_title_text":
				if fig.YTitle, err = optString(kw); err != nil {
					return err
				}
			default:
				if !cosmeticLayout[kw.name] {
					return execErrorf(kw.line, "unsupported layout argument %q", kw.name)
				}
			}
		}
		return nil
	case "update_xaxes", "update_yaxes":
		for _, kw := range kws {
			switch kw.name {
			case "title", "title_text":
				s, err := titleArg(kw)
				if err != nil {
					return err
				}
				if m.text == "update_xaxes" {
					fig.XTitle = s
				} else {
					fig.YTitle = s
				}
			case "tickangle", "showgrid":
			default:
				return execErrorf(kw.line, "unsupported axis argument %q", kw.name)
			}
		}
	}
	return nil
}

func optString(kw kwarg) (string, error) {
	switch v := kw.val.(type) {
	case string:
		return v, nil
	case none:
		return "", nil
	}
	return "", execErrorf(kw.line, "%s must be a string, got %s", kw.name, describe(kw.val))
}

func titleArg(kw kwarg) (string, error) {
	if d, ok := kw.val.(dict); ok {
		for _, e := range d {
			if e.key == "text" {
				return optString(kwarg{name: kw.name, val: e.val, line: kw.line})
			}
		}
		return "", nil
	}
	return optString(kw)
}

func columnsArg(kw kwarg) (Columns, error) {
	switch v := kw.val.(type) {
	case string:
		return Columns{v}, nil
	case none:
		return nil, nil
	case []any:
		out := make(Columns, 0, len(v))
		for _, e := range v {
			s, ok := e.(string)
			if !ok {
				return nil, execErrorf(kw.line, "%s list must contain column names", kw.name)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, execErrorf(kw.line, "%s must be a column name or list of column names", kw.name)
}

func describe(v any) string {
	switch v.(type) {
	case string:
		return "a string"
	case float64:
		return "a number"
	case bool:
		return "a boolean"
	case none:
		return "None"
	case []any:
		return "a list"
	case dict:
		return "a dictionary"
	case dfRef:
		return "df"
	case pxRef:
		return "px"
	case *Figure:
		return "a chart"
	}
	return fmt.Sprintf("%T", v)
}

func kindList() string {
	parts := make([]string, len(Kinds))
	for i, k := range Kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}

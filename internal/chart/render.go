package chart

import (
	"fmt"
	"html"
	"math"
	"strings"
)

const (
	DefaultWidth  = 800
	DefaultHeight = 480
	padding       = 60
)

func defaultColors() []string {
	return []string{"#4a90d9", "#e74c3c", "#2ecc71", "#f39c12", "#9b59b6", "#1abc9c", "#34495e", "#e91e63"}
}

// scale maps a value range onto a pixel range.
type scale struct {
	lo, hi float64
	a, b   int
}

func newScale(lo, hi float64, a, b int) scale {
	if hi == lo {
		hi = lo + 1
	}
	return scale{lo: lo, hi: hi, a: a, b: b}
}

func (s scale) at(v float64) int {
	return s.a + int(math.Round(float64(s.b-s.a)*(v-s.lo)/(s.hi-s.lo)))
}

// SVG renders the figure as a standalone SVG document. Non-positive sizes use
// the defaults.
func (f *Figure) SVG(width, height int) string {
	if width <= 0 {
		width = DefaultWidth
	}
	if height <= 0 {
		height = DefaultHeight
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf(`<svg xmlns="http://www.w3.org/2000/svg" viewBox="0 0 %d %d" font-family="sans-serif">`, width, height))
	sb.WriteString(fmt.Sprintf(`<rect width="%d" height="%d" fill="white"/>`, width, height))
	if f.Title != "" {
		sb.WriteString(fmt.Sprintf(`<text x="%d" y="25" text-anchor="middle" font-size="16" font-weight="bold">%s</text>`, width/2, esc(f.Title)))
	}
	switch f.Kind {
	case Pie:
		f.pie(&sb, width, height)
	case Box:
		f.box(&sb, width, height)
	case Scatter:
		f.scatter(&sb, width, height)
	case Line, Area:
		f.lines(&sb, width, height)
	default:
		f.bars(&sb, width, height)
	}
	if f.Kind != Pie {
		f.axisTitles(&sb, width, height)
	}
	sb.WriteString(`</svg>`)
	return sb.String()
}

// HTML wraps the SVG in a minimal standalone page.
func (f *Figure) HTML() string {
	title := f.Title
	if title == "" {
		title = string(f.Kind) + " chart"
	}
	return fmt.Sprintf("<!DOCTYPE html>\n<html><head><meta charset=\"utf-8\"><title>%s</title></head>\n<body style=\"margin:0\">\n%s\n</body></html>\n", esc(title), f.SVG(0, 0))
}

func esc(s string) string { return html.EscapeString(s) }

func (f *Figure) axisTitles(sb *strings.Builder, width, height int) {
	xt, yt := f.XTitle, f.YTitle
	if f.Horizontal {
		xt, yt = yt, xt
	}
	if xt != "" {
		sb.WriteString(fmt.Sprintf(`<text x="%d" y="%d" text-anchor="middle" font-size="12">%s</text>`, width/2, height-10, esc(xt)))
	}
	if yt != "" {
		sb.WriteString(fmt.Sprintf(`<text x="15" y="%d" text-anchor="middle" font-size="12" transform="rotate(-90, 15, %d)">%s</text>`, height/2, height/2, esc(yt)))
	}
}

func (f *Figure) legend(sb *strings.Builder, width int, names []string) {
	colors := defaultColors()
	if len(names) < 2 {
		return
	}
	for i, n := range names {
		y := 40 + i*16
		sb.WriteString(fmt.Sprintf(`<rect x="%d" y="%d" width="10" height="10" fill="%s"/>`, width-padding-100, y, colors[i%len(colors)]))
		sb.WriteString(fmt.Sprintf(`<text x="%d" y="%d" font-size="11">%s</text>`, width-padding-85, y+9, esc(n)))
	}
}

func (f *Figure) traceNames() []string {
	names := make([]string, len(f.Traces))
	for i, t := range f.Traces {
		names[i] = t.Name
	}
	return names
}

func (f *Figure) valueRange(withZero bool) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, t := range f.Traces {
		for _, v := range t.Y {
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
		for _, b := range t.Box {
			lo = math.Min(lo, b.Min)
			hi = math.Max(hi, b.Max)
		}
	}
	if math.IsInf(lo, 1) {
		return 0, 1
	}
	if withZero {
		lo = math.Min(lo, 0)
		hi = math.Max(hi, 0)
	}
	return lo, hi
}

// ticks draws value gridlines along the vertical axis, or the horizontal one
// when horizontal is set.
func ticks(sb *strings.Builder, s scale, width, height int, horizontal bool) {
	const n = 5
	for i := 0; i <= n; i++ {
		v := s.lo + (s.hi-s.lo)*float64(i)/n
		p := s.at(v)
		if horizontal {
			sb.WriteString(fmt.Sprintf(`<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#eee"/>`, p, padding, p, height-padding))
			sb.WriteString(fmt.Sprintf(`<text x="%d" y="%d" text-anchor="middle" font-size="10">%s</text>`, p, height-padding+15, formatTick(v)))
			continue
		}
		sb.WriteString(fmt.Sprintf(`<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#eee"/>`, padding, p, width-padding, p))
		sb.WriteString(fmt.Sprintf(`<text x="%d" y="%d" text-anchor="end" font-size="10">%s</text>`, padding-5, p+4, formatTick(v)))
	}
}

func formatTick(v float64) string {
	if math.Abs(v) < 1e-9 {
		return "0"
	}
	return fmt.Sprintf("%.4g", v)
}

func (f *Figure) categories() []string {
	for _, t := range f.Traces {
		if len(t.Labels) > 0 {
			return t.Labels
		}
	}
	return nil
}

func (f *Figure) bars(sb *strings.Builder, width, height int) {
	labels := f.categories()
	if len(labels) == 0 {
		return
	}
	colors := defaultColors()
	chartW, chartH := width-2*padding, height-2*padding
	lo, hi := f.valueRange(true)
	groups := len(f.Traces)
	if f.Horizontal {
		s := newScale(lo, hi, padding, padding+chartW)
		ticks(sb, s, width, height, true)
		slot := chartH / len(labels)
		gap := slot / 5
		if f.Kind == Histogram {
			gap = 0
		}
		barH := maxInt((slot-gap)/groups, 1)
		for ti, t := range f.Traces {
			for i, v := range t.Y {
				y := padding + i*slot + gap/2 + ti*barH
				x0, x1 := s.at(math.Min(0, v)), s.at(math.Max(0, v))
				sb.WriteString(fmt.Sprintf(`<rect x="%d" y="%d" width="%d" height="%d" fill="%s"/>`, x0, y, x1-x0, barH, colors[ti%len(colors)]))
			}
		}
		for i, l := range labels {
			sb.WriteString(fmt.Sprintf(`<text x="%d" y="%d" text-anchor="end" font-size="12">%s</text>`, padding-5, padding+i*slot+slot/2+4, esc(l)))
		}
	} else {
		s := newScale(lo, hi, padding+chartH, padding)
		ticks(sb, s, width, height, false)
		slot := chartW / len(labels)
		gap := slot / 5
		if f.Kind == Histogram {
			gap = 0
		}
		barW := maxInt((slot-gap)/groups, 1)
		for ti, t := range f.Traces {
			for i, v := range t.Y {
				x := padding + i*slot + gap/2 + ti*barW
				y0, y1 := s.at(math.Max(0, v)), s.at(math.Min(0, v))
				sb.WriteString(fmt.Sprintf(`<rect x="%d" y="%d" width="%d" height="%d" fill="%s"/>`, x, y0, barW, y1-y0, colors[ti%len(colors)]))
			}
		}
		for i, l := range labels {
			sb.WriteString(fmt.Sprintf(`<text x="%d" y="%d" text-anchor="middle" font-size="10">%s</text>`, padding+i*slot+slot/2, height-padding+15, esc(l)))
		}
	}
	f.legend(sb, width, f.traceNames())
}

func (f *Figure) lines(sb *strings.Builder, width, height int) {
	labels := f.categories()
	if len(labels) == 0 {
		return
	}
	colors := defaultColors()
	chartW, chartH := width-2*padding, height-2*padding
	lo, hi := f.valueRange(f.Kind == Area)
	s := newScale(lo, hi, padding+chartH, padding)
	ticks(sb, s, width, height, false)
	divisor := maxInt(len(labels)-1, 1)
	xAt := func(i int) int { return padding + i*chartW/divisor }
	for ti, t := range f.Traces {
		color := colors[ti%len(colors)]
		points := make([]string, len(t.Y))
		for i, v := range t.Y {
			points[i] = fmt.Sprintf("%d,%d", xAt(i), s.at(v))
		}
		if f.Kind == Area && len(t.Y) > 0 {
			base := s.at(0)
			path := fmt.Sprintf("M %d,%d L %s L %d,%d Z", xAt(0), base, strings.Join(points, " L "), xAt(len(t.Y)-1), base)
			sb.WriteString(fmt.Sprintf(`<path d="%s" fill="%s" fill-opacity="0.3" stroke="none"/>`, path, color))
		}
		sb.WriteString(fmt.Sprintf(`<polyline points="%s" fill="none" stroke="%s" stroke-width="2"/>`, strings.Join(points, " "), color))
		for i, v := range t.Y {
			sb.WriteString(fmt.Sprintf(`<circle cx="%d" cy="%d" r="3" fill="%s"/>`, xAt(i), s.at(v), color))
		}
	}
	step := maxInt(len(labels)/12, 1)
	for i := 0; i < len(labels); i += step {
		sb.WriteString(fmt.Sprintf(`<text x="%d" y="%d" text-anchor="middle" font-size="10">%s</text>`, xAt(i), height-padding+15, esc(labels[i])))
	}
	f.legend(sb, width, f.traceNames())
}

func (f *Figure) scatter(sb *strings.Builder, width, height int) {
	colors := defaultColors()
	chartW, chartH := width-2*padding, height-2*padding
	lo, hi := f.valueRange(false)
	ys := newScale(lo, hi, padding+chartH, padding)
	ticks(sb, ys, width, height, false)

	// categorical x collapses to the order of first appearance
	var cats []string
	catIdx := map[string]int{}
	xlo, xhi := math.Inf(1), math.Inf(-1)
	for _, t := range f.Traces {
		for _, v := range t.X {
			xlo = math.Min(xlo, v)
			xhi = math.Max(xhi, v)
		}
		for _, l := range t.Labels {
			if _, ok := catIdx[l]; !ok {
				catIdx[l] = len(cats)
				cats = append(cats, l)
			}
		}
	}
	if len(cats) > 0 {
		xlo, xhi = 0, float64(maxInt(len(cats)-1, 1))
	}
	if math.IsInf(xlo, 1) {
		return
	}
	xs := newScale(xlo, xhi, padding, padding+chartW)
	for ti, t := range f.Traces {
		color := colors[ti%len(colors)]
		for i, y := range t.Y {
			var x float64
			switch {
			case i < len(t.X):
				x = t.X[i]
			case i < len(t.Labels):
				x = float64(catIdx[t.Labels[i]])
			default:
				continue
			}
			sb.WriteString(fmt.Sprintf(`<circle cx="%d" cy="%d" r="4" fill="%s" fill-opacity="0.7"/>`, xs.at(x), ys.at(y), color))
		}
	}
	if len(cats) > 0 {
		for i, c := range cats {
			sb.WriteString(fmt.Sprintf(`<text x="%d" y="%d" text-anchor="middle" font-size="10">%s</text>`, xs.at(float64(i)), height-padding+15, esc(c)))
		}
	} else {
		sb.WriteString(fmt.Sprintf(`<text x="%d" y="%d" text-anchor="start" font-size="10">%s</text>`, padding, height-padding+15, formatTick(xlo)))
		sb.WriteString(fmt.Sprintf(`<text x="%d" y="%d" text-anchor="end" font-size="10">%s</text>`, padding+chartW, height-padding+15, formatTick(xhi)))
	}
	f.legend(sb, width, f.traceNames())
}

func (f *Figure) pie(sb *strings.Builder, width, height int) {
	if len(f.Traces) == 0 {
		return
	}
	t := f.Traces[0]
	colors := defaultColors()
	cx, cy := width/2-60, height/2+10
	radius := minInt(width, height)/2 - 50
	total := 0.0
	for _, v := range t.Y {
		if v > 0 {
			total += v
		}
	}
	if total == 0 {
		return
	}
	start := -90.0
	for i, v := range t.Y {
		if v <= 0 {
			continue
		}
		end := start + 360*v/total
		color := colors[i%len(colors)]
		if end-start >= 359.999 {
			sb.WriteString(fmt.Sprintf(`<circle cx="%d" cy="%d" r="%d" fill="%s"/>`, cx, cy, radius, color))
		} else {
			sb.WriteString(fmt.Sprintf(`<path d="%s" fill="%s" stroke="white" stroke-width="2"/>`, describeArc(float64(cx), float64(cy), float64(radius), start, end), color))
		}
		start = end
	}
	for i, l := range t.Labels {
		y := 50 + i*16
		pct := 0.0
		if i < len(t.Y) && t.Y[i] > 0 {
			pct = 100 * t.Y[i] / total
		}
		sb.WriteString(fmt.Sprintf(`<rect x="%d" y="%d" width="10" height="10" fill="%s"/>`, width-170, y, colors[i%len(colors)]))
		sb.WriteString(fmt.Sprintf(`<text x="%d" y="%d" font-size="11">%s (%.1f%%)</text>`, width-155, y+9, esc(l), pct))
	}
}

func describeArc(cx, cy, r, startAngle, endAngle float64) string {
	startRad := startAngle * math.Pi / 180
	endRad := endAngle * math.Pi / 180
	x1 := cx + r*math.Cos(startRad)
	y1 := cy + r*math.Sin(startRad)
	x2 := cx + r*math.Cos(endRad)
	y2 := cy + r*math.Sin(endRad)
	largeArc := 0
	if endAngle-startAngle > 180 {
		largeArc = 1
	}
	return fmt.Sprintf("M %.2f %.2f A %.2f %.2f 0 %d 1 %.2f %.2f L %.2f %.2f Z", x1, y1, r, r, largeArc, x2, y2, cx, cy)
}

func (f *Figure) box(sb *strings.Builder, width, height int) {
	if len(f.Traces) == 0 || len(f.Traces[0].Box) == 0 {
		return
	}
	t := f.Traces[0]
	color := defaultColors()[0]
	chartW, chartH := width-2*padding, height-2*padding
	lo, hi := f.valueRange(false)
	s := newScale(lo, hi, padding+chartH, padding)
	ticks(sb, s, width, height, false)
	slot := chartW / len(t.Box)
	boxW := slot * 2 / 3
	for i, b := range t.Box {
		cx := padding + i*slot + slot/2
		yMin, y1, y2, y3, yMax := s.at(b.Min), s.at(b.Q1), s.at(b.Median), s.at(b.Q3), s.at(b.Max)
		sb.WriteString(fmt.Sprintf(`<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s"/>`, cx, yMin, cx, y1, color))
		sb.WriteString(fmt.Sprintf(`<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s"/>`, cx, y3, cx, yMax, color))
		sb.WriteString(fmt.Sprintf(`<rect x="%d" y="%d" width="%d" height="%d" fill="%s" fill-opacity="0.5" stroke="%s"/>`, cx-boxW/2, y3, boxW, y1-y3, color, color))
		sb.WriteString(fmt.Sprintf(`<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s" stroke-width="2"/>`, cx-boxW/2, y2, cx+boxW/2, y2, color))
		capW := boxW / 2
		sb.WriteString(fmt.Sprintf(`<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s"/>`, cx-capW/2, yMin, cx+capW/2, yMin, color))
		sb.WriteString(fmt.Sprintf(`<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="%s"/>`, cx-capW/2, yMax, cx+capW/2, yMax, color))
		if i < len(t.Labels) {
			sb.WriteString(fmt.Sprintf(`<text x="%d" y="%d" text-anchor="middle" font-size="10">%s</text>`, cx, height-padding+15, esc(t.Labels[i])))
		}
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

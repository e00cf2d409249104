// Package render prints a snapshot as indented plain text for terminals.
package render

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"raisu/pkg/domain"
	"raisu/pkg/icon"
)

const indentUnit = "  "

type Renderer struct {
	Icons icon.Resolver
	// Width bounds bars and sparklines. Zero means 20 cells.
	Width int
	// Location formats timestamps. Nil means UTC.
	Location *time.Location
}

func New(icons icon.Resolver) *Renderer {
	if icons == nil {
		icons = icon.Literal
	}
	return &Renderer{Icons: icons}
}

type printer struct {
	r   *Renderer
	w   io.Writer
	err error
}

func (p *printer) line(depth int, format string, args ...interface{}) {
	if p.err != nil {
		return
	}
	s := norm.NFC.String(fmt.Sprintf(format, args...))
	_, p.err = io.WriteString(p.w, strings.Repeat(indentUnit, depth)+s+"\n")
}

// Snapshot writes s to w. Categories come out in display order.
func (r *Renderer) Snapshot(w io.Writer, s *domain.Snapshot) error {
	p := &printer{r: r, w: w}
	header := "snapshot v" + strconv.FormatInt(s.SchemaVersion, 10)
	if s.CapturedAt != 0 {
		header += " captured " + r.time(s.CapturedTime())
	}
	p.line(0, "%s", header)
	if s.ServerLabel != "" {
		p.line(0, "server: %s", s.ServerLabel)
	}
	if s.RuntimeLabel != "" {
		p.line(0, "java: %s", s.RuntimeLabel)
	}
	for _, c := range s.Categories {
		p.line(0, "")
		title := c.DisplayName
		if g := r.Icons.Resolve(c.Icon).Glyph; g != "" {
			title = g + " " + title
		}
		p.line(0, "== %s ==", title)
		r.components(p, c.Components, 1)
	}
	return p.err
}

func (r *Renderer) components(p *printer, cs domain.Components, depth int) {
	for _, c := range cs {
		r.component(p, c, depth)
	}
}

func (r *Renderer) component(p *printer, c domain.Component, d int) {
	switch v := c.(type) {
	case *domain.KeyValue:
		p.line(d, "%s: %s", v.Key, v.Value)
	case *domain.Text:
		for _, l := range strings.Split(v.Content, "\n") {
			p.line(d, "%s", l)
		}
	case *domain.Table:
		r.table(p, v, d)
	case *domain.List:
		for _, it := range v.Items {
			p.line(d, "- %s", it)
		}
	case *domain.ProgressBar:
		p.line(d, "%s %s %s/%s", v.Label, r.bar(v.Current, v.Max), num(v.Current), num(v.Max))
	case *domain.Graph:
		p.line(d, "%s", v.Title)
		for _, dp := range v.DataPoints {
			p.line(d+1, "%s: %s", dp.Label, num(dp.Value))
		}
	case *domain.Tree:
		r.tree(p, v.Root, d)
	case *domain.Column:
		r.components(p, v.Children, d)
	case *domain.Row:
		r.components(p, v.Children, d)
	case *domain.Grid:
		p.line(d, "[grid %d columns]", v.Columns)
		r.components(p, v.Children, d+1)
	case *domain.Panel:
		marker := "▾"
		if v.Collapsed {
			marker = "▸"
		}
		p.line(d, "%s %s", marker, v.Title)
		if !v.Collapsed {
			r.components(p, v.Children, d+1)
		}
	case *domain.Badge:
		p.line(d, "[%s] %s", v.Severity, v.Text)
	case *domain.Stat:
		s := v.Label + ": " + v.Value
		if v.Unit != nil {
			s += " " + *v.Unit
		}
		if v.Trend != nil {
			s += " (" + trend(*v.Trend) + ")"
		}
		p.line(d, "%s", s)
		if v.Description != nil {
			p.line(d+1, "%s", *v.Description)
		}
	case *domain.Alert:
		if v.Title != nil {
			p.line(d, "!%s %s: %s", v.Severity, *v.Title, v.Message)
		} else {
			p.line(d, "!%s %s", v.Severity, v.Message)
		}
	case *domain.CodeBlock:
		p.line(d, "```%s", v.Language)
		for _, l := range strings.Split(v.Content, "\n") {
			p.line(d, "%s", l)
		}
		p.line(d, "```")
	case *domain.LogView:
		for _, e := range v.Entries {
			p.line(d, "%s %-7s %s", r.time(time.UnixMilli(e.Timestamp)), e.Severity, e.Message)
		}
	case *domain.Timeline:
		for _, e := range v.Events {
			p.line(d, "%s  %s", r.time(time.UnixMilli(e.Timestamp)), e.Label)
			if e.Description != "" {
				p.line(d+1, "%s", e.Description)
			}
		}
	case *domain.Sparkline:
		s := v.Label + " " + spark(v.Values)
		if v.Unit != nil {
			s += " " + *v.Unit
		}
		p.line(d, "%s", s)
	case *domain.Gauge:
		s := fmt.Sprintf("%s %s %s/%s", v.Label, r.bar(v.Current, v.Max), num(v.Current), num(v.Max))
		if v.Unit != nil {
			s += " " + *v.Unit
		}
		p.line(d, "%s", s)
	case *domain.Link:
		p.line(d, "%s <%s>", v.Label, v.URL)
	case *domain.Iframe:
		if v.Title != nil {
			p.line(d, "[embed %s] %s", *v.Title, v.URL)
		} else {
			p.line(d, "[embed] %s", v.URL)
		}
	default:
		p.line(d, "[%s]", c.Kind())
	}
}

func (r *Renderer) table(p *printer, t *domain.Table, d int) {
	widths := make([]int, len(t.Headers))
	for i, h := range t.Headers {
		widths[i] = len([]rune(h))
	}
	for _, row := range t.Rows {
		for i, cell := range row {
			if i < len(widths) && len([]rune(cell)) > widths[i] {
				widths[i] = len([]rune(cell))
			}
		}
	}
	format := func(cells []string) string {
		parts := make([]string, len(widths))
		for i := range widths {
			var cell string
			if i < len(cells) {
				cell = cells[i]
			}
			parts[i] = cell + strings.Repeat(" ", widths[i]-len([]rune(cell)))
		}
		return strings.TrimRight(strings.Join(parts, " | "), " ")
	}
	p.line(d, "%s", format(t.Headers))
	seps := make([]string, len(widths))
	for i, w := range widths {
		seps[i] = strings.Repeat("-", w)
	}
	p.line(d, "%s", strings.Join(seps, "-+-"))
	for _, row := range t.Rows {
		p.line(d, "%s", format(row))
	}
}

func (r *Renderer) tree(p *printer, n domain.TreeNode, d int) {
	p.line(d, "%s", n.Label)
	for _, c := range n.Children {
		r.tree(p, c, d+1)
	}
}

func (r *Renderer) width() int {
	if r.Width <= 0 {
		return 20
	}
	return r.Width
}

func (r *Renderer) bar(cur, max float64) string {
	w := r.width()
	filled := 0
	if max > 0 {
		filled = int(cur / max * float64(w))
	}
	if filled < 0 {
		filled = 0
	}
	if filled > w {
		filled = w
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", w-filled) + "]"
}

func (r *Renderer) time(t time.Time) string {
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format("2006-01-02 15:04:05")
}

var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

func spark(values []float64) string {
	if len(values) == 0 {
		return ""
	}
	lo, hi := values[0], values[0]
	for _, v := range values {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	out := make([]rune, len(values))
	for i, v := range values {
		idx := 0
		if hi > lo {
			idx = int((v - lo) / (hi - lo) * float64(len(sparkBlocks)-1))
		}
		out[i] = sparkBlocks[idx]
	}
	return string(out)
}

func trend(t float64) string {
	switch {
	case t > 0:
		return "▲" + num(t)
	case t < 0:
		return "▼" + num(-t)
	}
	return "±0"
}

func num(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

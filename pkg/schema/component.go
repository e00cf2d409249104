package schema

import (
	"math"

	"raisu/pkg/domain"
	"raisu/pkg/wire"
)

const (
	minGridColumns     = 1
	maxGridColumns     = 4
	defaultGridColumns = 2
)

func (m *mapper) components(list []any, path string, depth int) (domain.Components, error) {
	out := make(domain.Components, 0, len(list))
	for i, e := range list {
		c, err := m.component(e, index(path, i), depth)
		if err != nil {
			return nil, err
		}
		if c != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

// component dispatches on the wire tag. A nil component with a nil error
// means the tag was not recognized and the entry is skipped.
func (m *mapper) component(v any, path string, depth int) (domain.Component, error) {
	if depth > m.maxDepth {
		return nil, mismatch(path, "component nesting exceeds %d levels", m.maxDepth)
	}
	rec, err := asRecord(v, path)
	if err != nil {
		return nil, err
	}
	typ, err := rec.str("type")
	if err != nil {
		return nil, err
	}
	data := record{obj: wire.NewObject(0), path: rec.at("data")}
	if dv, ok := rec.lookup("data"); ok {
		if data, err = asRecord(dv, rec.at("data")); err != nil {
			return nil, err
		}
	}

	switch domain.Kind(typ) {
	case domain.KindKeyValue:
		return keyValue(data)
	case domain.KindText:
		return text(data)
	case domain.KindTable:
		return table(data)
	case domain.KindList:
		return list(data)
	case domain.KindProgressBar:
		return progressBar(data)
	case domain.KindGraph:
		return graph(data)
	case domain.KindTree:
		return m.tree(data, depth)
	case domain.KindColumn:
		return m.column(data, depth)
	case domain.KindRow:
		return m.row(data, depth)
	case domain.KindGrid:
		return m.grid(data, depth)
	case domain.KindPanel:
		return m.panel(data, depth)
	case domain.KindBadge:
		return m.badge(data)
	case domain.KindStat:
		return stat(data)
	case domain.KindAlert:
		return m.alert(data)
	case domain.KindCodeBlock:
		return codeBlock(data)
	case domain.KindLogView:
		return m.logView(data)
	case domain.KindTimeline:
		return timeline(data)
	case domain.KindSparkline:
		return sparkline(data)
	case domain.KindGauge:
		return gauge(data)
	case domain.KindLink:
		return link(data)
	case domain.KindIframe:
		return iframe(data)
	default:
		m.warn(WarnUnknownType, path, "unknown component type %q skipped", typ)
		return nil, nil
	}
}

func (m *mapper) children(data record, depth int) (domain.Components, error) {
	l, err := data.listOr("children")
	if err != nil {
		return nil, err
	}
	return m.components(l, data.at("children"), depth+1)
}

// enum reads an optional enum name. Absent means def; an unrecognized name
// also means def, with a warning.
func enum[T ~string](m *mapper, r record, key string, def T, valid func(T) bool) (T, error) {
	s, err := r.optStr(key)
	if err != nil || s == nil {
		return def, err
	}
	v := T(*s)
	if !valid(v) {
		m.warn(WarnUnknownEnum, r.at(key), "unknown value %q, using %s", *s, def)
		return def, nil
	}
	return v, nil
}

func keyValue(r record) (domain.Component, error) {
	var c domain.KeyValue
	var err error
	if c.Key, err = r.str("key"); err != nil {
		return nil, err
	}
	if c.Value, err = r.str("value"); err != nil {
		return nil, err
	}
	return &c, nil
}

func text(r record) (domain.Component, error) {
	s, err := r.str("content")
	if err != nil {
		return nil, err
	}
	return &domain.Text{Content: s}, nil
}

func table(r record) (domain.Component, error) {
	var c domain.Table
	var err error
	if c.Headers, err = r.strings("headers"); err != nil {
		return nil, err
	}
	rows, err := r.list("rows")
	if err != nil {
		return nil, err
	}
	c.Rows = make([][]string, len(rows))
	for i, row := range rows {
		p := index(r.at("rows"), i)
		cells, ok := row.([]any)
		if !ok {
			return nil, wrongType(p, "array", row)
		}
		if c.Rows[i], err = toStrings(cells, p); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func list(r record) (domain.Component, error) {
	items, err := r.strings("items")
	if err != nil {
		return nil, err
	}
	return &domain.List{Items: items}, nil
}

func progressBar(r record) (domain.Component, error) {
	var c domain.ProgressBar
	var err error
	if c.Label, err = r.str("label"); err != nil {
		return nil, err
	}
	if c.Current, err = r.float("current"); err != nil {
		return nil, err
	}
	if c.Max, err = r.float("max"); err != nil {
		return nil, err
	}
	return &c, nil
}

func graph(r record) (domain.Component, error) {
	var c domain.Graph
	var err error
	if c.Title, err = r.str("title"); err != nil {
		return nil, err
	}
	points, err := r.record("dataPoints")
	if err != nil {
		return nil, err
	}
	c.DataPoints = make(domain.DataPoints, 0, points.obj.Len())
	for _, f := range points.obj.Fields {
		v, err := toFloat(f.Value, points.at(f.Key))
		if err != nil {
			return nil, err
		}
		c.DataPoints = append(c.DataPoints, domain.DataPoint{Label: f.Key, Value: v})
	}
	return &c, nil
}

func (m *mapper) tree(r record, depth int) (domain.Component, error) {
	root, err := r.record("root")
	if err != nil {
		return nil, err
	}
	node, err := m.treeNode(root, depth+1)
	if err != nil {
		return nil, err
	}
	return &domain.Tree{Root: node}, nil
}

func (m *mapper) treeNode(r record, depth int) (domain.TreeNode, error) {
	var n domain.TreeNode
	if depth > m.maxDepth {
		return n, mismatch(r.path, "tree nesting exceeds %d levels", m.maxDepth)
	}
	var err error
	if n.Label, err = r.str("label"); err != nil {
		return n, err
	}
	kids, err := r.listOr("children")
	if err != nil {
		return n, err
	}
	n.Children = make([]domain.TreeNode, len(kids))
	for i, k := range kids {
		kr, err := asRecord(k, index(r.at("children"), i))
		if err != nil {
			return n, err
		}
		if n.Children[i], err = m.treeNode(kr, depth+1); err != nil {
			return n, err
		}
	}
	return n, nil
}

func (m *mapper) column(r record, depth int) (domain.Component, error) {
	var c domain.Column
	var err error
	if c.Alignment, err = enum(m, r, "alignment", domain.AlignStretch, domain.Alignment.Valid); err != nil {
		return nil, err
	}
	if c.Gap, err = enum(m, r, "gap", domain.GapMedium, domain.Gap.Valid); err != nil {
		return nil, err
	}
	if c.Children, err = m.children(r, depth); err != nil {
		return nil, err
	}
	return &c, nil
}

func (m *mapper) row(r record, depth int) (domain.Component, error) {
	var c domain.Row
	var err error
	if c.Alignment, err = enum(m, r, "alignment", domain.AlignStart, domain.Alignment.Valid); err != nil {
		return nil, err
	}
	if c.Gap, err = enum(m, r, "gap", domain.GapMedium, domain.Gap.Valid); err != nil {
		return nil, err
	}
	if c.Wrap, err = r.boolOr("wrap", false); err != nil {
		return nil, err
	}
	if c.Children, err = m.children(r, depth); err != nil {
		return nil, err
	}
	return &c, nil
}

func (m *mapper) grid(r record, depth int) (domain.Component, error) {
	var c domain.Grid
	cols, err := r.intOr("columns", defaultGridColumns)
	if err != nil {
		return nil, err
	}
	if cols < minGridColumns || cols > maxGridColumns {
		m.warn(WarnClamped, r.at("columns"), "columns %d outside %d..%d, using %d",
			cols, minGridColumns, maxGridColumns, defaultGridColumns)
		cols = defaultGridColumns
	}
	c.Columns = int(cols)
	if c.Gap, err = enum(m, r, "gap", domain.GapMedium, domain.Gap.Valid); err != nil {
		return nil, err
	}
	if c.Children, err = m.children(r, depth); err != nil {
		return nil, err
	}
	return &c, nil
}

func (m *mapper) panel(r record, depth int) (domain.Component, error) {
	var c domain.Panel
	var err error
	if c.Title, err = r.str("title"); err != nil {
		return nil, err
	}
	if c.Collapsible, err = r.boolOr("collapsible", false); err != nil {
		return nil, err
	}
	if c.Collapsed, err = r.boolOr("collapsed", false); err != nil {
		return nil, err
	}
	if c.Children, err = m.children(r, depth); err != nil {
		return nil, err
	}
	return &c, nil
}

func (m *mapper) badge(r record) (domain.Component, error) {
	var c domain.Badge
	var err error
	if c.Text, err = r.str("text"); err != nil {
		return nil, err
	}
	if c.Severity, err = enum(m, r, "severity", domain.SeverityDefault, domain.Severity.Valid); err != nil {
		return nil, err
	}
	return &c, nil
}

func stat(r record) (domain.Component, error) {
	var c domain.Stat
	var err error
	if c.Label, err = r.str("label"); err != nil {
		return nil, err
	}
	if c.Value, err = r.str("value"); err != nil {
		return nil, err
	}
	if c.Unit, err = r.optStr("unit"); err != nil {
		return nil, err
	}
	if c.Trend, err = r.optFloat("trend"); err != nil {
		return nil, err
	}
	if c.Description, err = r.optStr("description"); err != nil {
		return nil, err
	}
	return &c, nil
}

func (m *mapper) alert(r record) (domain.Component, error) {
	var c domain.Alert
	var err error
	if c.Severity, err = enum(m, r, "severity", domain.SeverityDefault, domain.Severity.Valid); err != nil {
		return nil, err
	}
	if c.Title, err = r.optStr("title"); err != nil {
		return nil, err
	}
	if c.Message, err = r.str("message"); err != nil {
		return nil, err
	}
	return &c, nil
}

func codeBlock(r record) (domain.Component, error) {
	var c domain.CodeBlock
	var err error
	if c.Content, err = r.str("content"); err != nil {
		return nil, err
	}
	if c.Language, err = r.str("language"); err != nil {
		return nil, err
	}
	return &c, nil
}

func (m *mapper) logView(r record) (domain.Component, error) {
	entries, err := r.list("entries")
	if err != nil {
		return nil, err
	}
	c := domain.LogView{Entries: make([]domain.LogEntry, len(entries))}
	for i, e := range entries {
		er, err := asRecord(e, index(r.at("entries"), i))
		if err != nil {
			return nil, err
		}
		le := &c.Entries[i]
		if le.Timestamp, err = er.int("timestamp"); err != nil {
			return nil, err
		}
		if le.Severity, err = enum(m, er, "severity", domain.SeverityDefault, domain.Severity.Valid); err != nil {
			return nil, err
		}
		if le.Message, err = er.str("message"); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func timeline(r record) (domain.Component, error) {
	events, err := r.list("events")
	if err != nil {
		return nil, err
	}
	c := domain.Timeline{Events: make([]domain.TimelineEvent, len(events))}
	for i, e := range events {
		er, err := asRecord(e, index(r.at("events"), i))
		if err != nil {
			return nil, err
		}
		ev := &c.Events[i]
		if ev.Label, err = er.str("label"); err != nil {
			return nil, err
		}
		if ev.Description, err = er.str("description"); err != nil {
			return nil, err
		}
		if ev.Timestamp, err = er.int("timestamp"); err != nil {
			return nil, err
		}
	}
	return &c, nil
}

func sparkline(r record) (domain.Component, error) {
	var c domain.Sparkline
	var err error
	if c.Label, err = r.str("label"); err != nil {
		return nil, err
	}
	values, err := r.list("values")
	if err != nil {
		return nil, err
	}
	c.Values = make([]float64, len(values))
	for i, v := range values {
		if c.Values[i], err = toFloat(v, index(r.at("values"), i)); err != nil {
			return nil, err
		}
	}
	if c.Unit, err = r.optStr("unit"); err != nil {
		return nil, err
	}
	return &c, nil
}

func gauge(r record) (domain.Component, error) {
	var c domain.Gauge
	var err error
	if c.Label, err = r.str("label"); err != nil {
		return nil, err
	}
	if c.Current, err = r.float("current"); err != nil {
		return nil, err
	}
	if c.Max, err = r.float("max"); err != nil {
		return nil, err
	}
	if c.Unit, err = r.optStr("unit"); err != nil {
		return nil, err
	}
	return &c, nil
}

func link(r record) (domain.Component, error) {
	var c domain.Link
	var err error
	if c.Label, err = r.str("label"); err != nil {
		return nil, err
	}
	if c.URL, err = r.str("url"); err != nil {
		return nil, err
	}
	return &c, nil
}

func iframe(r record) (domain.Component, error) {
	var c domain.Iframe
	var err error
	if c.URL, err = r.str("url"); err != nil {
		return nil, err
	}
	if c.Title, err = r.optStr("title"); err != nil {
		return nil, err
	}
	h, err := r.optInt("height")
	if err != nil {
		return nil, err
	}
	if h != nil {
		if *h < math.MinInt32 || *h > math.MaxInt32 {
			return nil, mismatch(r.at("height"), "height %d does not fit in int32", *h)
		}
		v := int32(*h)
		c.Height = &v
	}
	return &c, nil
}

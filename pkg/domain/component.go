package domain

import (
	"bytes"
	"encoding/json"
)

// Kind is the wire tag of a component variant.
type Kind string

const (
	KindKeyValue    Kind = "KEY_VALUE"
	KindText        Kind = "TEXT"
	KindTable       Kind = "TABLE"
	KindList        Kind = "LIST"
	KindProgressBar Kind = "PROGRESS_BAR"
	KindGraph       Kind = "GRAPH"
	KindTree        Kind = "TREE"

	KindColumn Kind = "COLUMN"
	KindRow    Kind = "ROW"
	KindGrid   Kind = "GRID"
	KindPanel  Kind = "PANEL"

	KindBadge     Kind = "BADGE"
	KindStat      Kind = "STAT"
	KindAlert     Kind = "ALERT"
	KindCodeBlock Kind = "CODE_BLOCK"
	KindLogView   Kind = "LOG_VIEW"
	KindTimeline  Kind = "TIMELINE"
	KindSparkline Kind = "SPARKLINE"
	KindGauge     Kind = "GAUGE"
	KindLink      Kind = "LINK"
	KindIframe    Kind = "IFRAME"
)

// Kinds lists every variant in wire-declaration order.
func Kinds() []Kind {
	return []Kind{
		KindKeyValue, KindText, KindTable, KindList, KindProgressBar, KindGraph, KindTree,
		KindColumn, KindRow, KindGrid, KindPanel,
		KindBadge, KindStat, KindAlert, KindCodeBlock, KindLogView, KindTimeline,
		KindSparkline, KindGauge, KindLink, KindIframe,
	}
}

// IsContainer reports whether k carries child components.
func (k Kind) IsContainer() bool {
	switch k {
	case KindColumn, KindRow, KindGrid, KindPanel:
		return true
	}
	return false
}

// Component is the closed set of snapshot widgets. Only types in this
// package implement it.
type Component interface {
	Kind() Kind
	component()
}

type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

type Text struct {
	Content string `json:"content"`
}

type Table struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

type List struct {
	Items []string `json:"items"`
}

type ProgressBar struct {
	Label   string  `json:"label"`
	Current float64 `json:"current"`
	Max     float64 `json:"max"`
}

type Graph struct {
	Title      string     `json:"title"`
	DataPoints DataPoints `json:"dataPoints"`
}

type TreeNode struct {
	Label    string     `json:"label"`
	Children []TreeNode `json:"children"`
}

type Tree struct {
	Root TreeNode `json:"root"`
}

type Column struct {
	Alignment Alignment  `json:"alignment"`
	Gap       Gap        `json:"gap"`
	Children  Components `json:"children"`
}

type Row struct {
	Alignment Alignment  `json:"alignment"`
	Gap       Gap        `json:"gap"`
	Wrap      bool       `json:"wrap"`
	Children  Components `json:"children"`
}

type Grid struct {
	Columns  int        `json:"columns"`
	Gap      Gap        `json:"gap"`
	Children Components `json:"children"`
}

type Panel struct {
	Title       string     `json:"title"`
	Collapsible bool       `json:"collapsible"`
	Collapsed   bool       `json:"collapsed"`
	Children    Components `json:"children"`
}

type Badge struct {
	Text     string   `json:"text"`
	Severity Severity `json:"severity"`
}

type Stat struct {
	Label       string   `json:"label"`
	Value       string   `json:"value"`
	Unit        *string  `json:"unit,omitempty"`
	Trend       *float64 `json:"trend,omitempty"`
	Description *string  `json:"description,omitempty"`
}

type Alert struct {
	Severity Severity `json:"severity"`
	Title    *string  `json:"title,omitempty"`
	Message  string   `json:"message"`
}

type CodeBlock struct {
	Content  string `json:"content"`
	Language string `json:"language"`
}

type LogEntry struct {
	Timestamp int64    `json:"timestamp"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
}

type LogView struct {
	Entries []LogEntry `json:"entries"`
}

type TimelineEvent struct {
	Label       string `json:"label"`
	Description string `json:"description"`
	Timestamp   int64  `json:"timestamp"`
}

type Timeline struct {
	Events []TimelineEvent `json:"events"`
}

type Sparkline struct {
	Label  string    `json:"label"`
	Values []float64 `json:"values"`
	Unit   *string   `json:"unit,omitempty"`
}

type Gauge struct {
	Label   string  `json:"label"`
	Current float64 `json:"current"`
	Max     float64 `json:"max"`
	Unit    *string `json:"unit,omitempty"`
}

type Link struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

type Iframe struct {
	URL    string  `json:"url"`
	Title  *string `json:"title,omitempty"`
	Height *int32  `json:"height,omitempty"`
}

func (*KeyValue) Kind() Kind    { return KindKeyValue }
func (*Text) Kind() Kind        { return KindText }
func (*Table) Kind() Kind       { return KindTable }
func (*List) Kind() Kind        { return KindList }
func (*ProgressBar) Kind() Kind { return KindProgressBar }
func (*Graph) Kind() Kind       { return KindGraph }
func (*Tree) Kind() Kind        { return KindTree }
func (*Column) Kind() Kind      { return KindColumn }
func (*Row) Kind() Kind         { return KindRow }
func (*Grid) Kind() Kind        { return KindGrid }
func (*Panel) Kind() Kind       { return KindPanel }
func (*Badge) Kind() Kind       { return KindBadge }
func (*Stat) Kind() Kind        { return KindStat }
func (*Alert) Kind() Kind       { return KindAlert }
func (*CodeBlock) Kind() Kind   { return KindCodeBlock }
func (*LogView) Kind() Kind     { return KindLogView }
func (*Timeline) Kind() Kind    { return KindTimeline }
func (*Sparkline) Kind() Kind   { return KindSparkline }
func (*Gauge) Kind() Kind       { return KindGauge }
func (*Link) Kind() Kind        { return KindLink }
func (*Iframe) Kind() Kind      { return KindIframe }

func (*KeyValue) component()    {}
func (*Text) component()        {}
func (*Table) component()       {}
func (*List) component()        {}
func (*ProgressBar) component() {}
func (*Graph) component()       {}
func (*Tree) component()        {}
func (*Column) component()      {}
func (*Row) component()         {}
func (*Grid) component()        {}
func (*Panel) component()       {}
func (*Badge) component()       {}
func (*Stat) component()        {}
func (*Alert) component()       {}
func (*CodeBlock) component()   {}
func (*LogView) component()     {}
func (*Timeline) component()    {}
func (*Sparkline) component()   {}
func (*Gauge) component()       {}
func (*Link) component()        {}
func (*Iframe) component()      {}

// ChildrenOf returns the children of a container and nil for leaves.
func ChildrenOf(c Component) Components {
	switch v := c.(type) {
	case *Column:
		return v.Children
	case *Row:
		return v.Children
	case *Grid:
		return v.Children
	case *Panel:
		return v.Children
	}
	return nil
}

// Walk visits components depth-first in display order. Returning false from
// fn skips the visited component's children.
func Walk(cs Components, fn func(c Component, depth int) bool) {
	walk(cs, 0, fn)
}

func walk(cs Components, depth int, fn func(Component, int) bool) {
	for _, c := range cs {
		if fn(c, depth) {
			walk(ChildrenOf(c), depth+1, fn)
		}
	}
}

// Components marshals as the wire's [{type, data}] list and never as null.
type Components []Component

type taggedComponent struct {
	Type Kind      `json:"type"`
	Data Component `json:"data"`
}

func (cs Components) MarshalJSON() ([]byte, error) {
	out := make([]taggedComponent, 0, len(cs))
	for _, c := range cs {
		out = append(out, taggedComponent{Type: c.Kind(), Data: c})
	}
	return json.Marshal(out)
}

type DataPoint struct {
	Label string
	Value float64
}

// DataPoints is an ordered label -> value map. It marshals as a JSON object
// whose keys keep wire order.
type DataPoints []DataPoint

func (dp DataPoints) Get(label string) (float64, bool) {
	for _, p := range dp {
		if p.Label == label {
			return p.Value, true
		}
	}
	return 0, false
}

func (dp DataPoints) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range dp {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(p.Label)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(p.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

package schema

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"raisu/pkg/domain"
	"raisu/pkg/wire"
)

// obj builds an ordered wire map from alternating keys and values.
func obj(kv ...any) *wire.Object {
	o := wire.NewObject(len(kv) / 2)
	for i := 0; i+1 < len(kv); i += 2 {
		o.Set(kv[i].(string), kv[i+1])
	}
	return o
}

func comp(typ string, data *wire.Object) *wire.Object {
	return obj("type", typ, "data", data)
}

func category(id string, priority int64, comps ...any) *wire.Object {
	return obj("id", id, "name", id, "icon", "", "priority", priority, "components", comps)
}

func doc(cats ...any) *wire.Object {
	return obj("version", int64(2), "timestamp", int64(1700000000000),
		"serverVersion", "Paper 1.21", "javaVersion", "21", "categories", cats)
}

func TestMap_VersionAbsentIsLegacy(t *testing.T) {
	body := []any{category("a", 0, comp("TEXT", obj("content", "hi")))}
	withZero, _, err := Map(obj("version", int64(0), "categories", body))
	if err != nil {
		t.Fatalf("version 0: %v", err)
	}
	absent, warns, err := Map(obj("categories", body))
	if err != nil {
		t.Fatalf("version absent: %v", err)
	}
	if len(warns) != 0 {
		t.Errorf("unexpected warnings %v", warns)
	}
	if !reflect.DeepEqual(withZero, absent) {
		t.Fatalf("absent version differs from version 0")
	}
	if absent.SchemaVersion != domain.SchemaLegacy {
		t.Fatalf("SchemaVersion = %d", absent.SchemaVersion)
	}
}

func TestMap_UnknownVersionWarns(t *testing.T) {
	d := doc(category("a", 0))
	d.Set("version", int64(7))
	s, warns, err := Map(d)
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if s.SchemaVersion != 7 {
		t.Errorf("SchemaVersion = %d", s.SchemaVersion)
	}
	if len(warns) != 1 || warns[0].Kind != WarnUnknownVersion {
		t.Fatalf("warnings = %v", warns)
	}
}

func TestMap_StablePrioritySort(t *testing.T) {
	s, _, err := Map(doc(
		category("idx0", 3),
		category("idx1", 1),
		category("idx2", 1),
		category("idx3", 2),
	))
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	var got []string
	for _, c := range s.Categories {
		got = append(got, c.ID)
	}
	if strings.Join(got, ",") != "idx1,idx2,idx3,idx0" {
		t.Fatalf("order = %v", got)
	}
}

func TestMap_UnknownTypeDropped(t *testing.T) {
	children := []any{
		comp("TEXT", obj("content", "a")),
		comp("FROBNICATE", obj("x", int64(1))),
		comp("TEXT", obj("content", "b")),
	}
	s, warns, err := Map(doc(category("c", 0, comp("COLUMN", obj("children", children)))))
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	col := s.Categories[0].Components[0].(*domain.Column)
	if len(col.Children) != 2 {
		t.Fatalf("children = %d, want 2", len(col.Children))
	}
	if col.Children[0].(*domain.Text).Content != "a" || col.Children[1].(*domain.Text).Content != "b" {
		t.Fatalf("sibling order not preserved")
	}
	if len(warns) != 1 || warns[0].Kind != WarnUnknownType || warns[0].Path != "categories[0].components[0].data.children[1]" {
		t.Fatalf("warnings = %v", warns)
	}
}

func TestNormalizeDisplayName(t *testing.T) {
	tests := []struct{ in, want string }{
		{`Server Status`, "Server Status"},
		{`"Server Status"`, "Server Status"},
		{`{"text":"Server Status"}`, "Server Status"},
		{`[{"text":"Server Status"},{"text":"x"}]`, "Server Status"},
		{`not json {`, "not json {"},
		{`[]`, "[]"},
		{`{"color":"red"}`, `{"color":"red"}`},
		{`42`, "42"},
	}
	for _, tt := range tests {
		if got := NormalizeDisplayName(tt.in); got != tt.want {
			t.Errorf("NormalizeDisplayName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMap_StructuredName(t *testing.T) {
	c := category("a", 0)
	c.Set("name", []any{obj("text", "Server Status", "color", "gold")})
	s, _, err := Map(doc(c))
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	if got := s.Categories[0].DisplayName; got != "Server Status" {
		t.Fatalf("DisplayName = %q", got)
	}
}

func TestMap_MissingRequiredFieldFails(t *testing.T) {
	s, _, err := Map(doc(category("a", 0, comp("STAT", obj("label", "TPS")))))
	if s != nil {
		t.Fatalf("partial snapshot returned")
	}
	var fe *domain.FormatError
	if !errors.As(err, &fe) || fe.Kind != domain.FormatSchemaMismatch {
		t.Fatalf("err = %v, want SCHEMA_MISMATCH", err)
	}
	if fe.Path != "categories[0].components[0].data.value" {
		t.Fatalf("path = %q", fe.Path)
	}
}

func TestMap_WrongTypeMessage(t *testing.T) {
	bad := comp("PROGRESS_BAR", obj("label", "mem", "current", "high", "max", 1.0))
	_, _, err := Map(doc(category("a", 0), category("b", 0), category("c", 0, bad)))
	want := "categories[2].components[0].data.current: expected float64, found string"
	if err == nil || err.Error() != want {
		t.Fatalf("err = %v, want %q", err, want)
	}
	if !errors.Is(err, domain.ErrSchemaMismatch) {
		t.Fatalf("err kind mismatch")
	}
}

func minimalData() map[domain.Kind]*wire.Object {
	return map[domain.Kind]*wire.Object{
		domain.KindKeyValue:    obj("key", "k", "value", "v"),
		domain.KindText:        obj("content", "c"),
		domain.KindTable:       obj("headers", []any{"h"}, "rows", []any{[]any{"c"}}),
		domain.KindList:        obj("items", []any{"i"}),
		domain.KindProgressBar: obj("label", "l", "current", int64(1), "max", 2.0),
		domain.KindGraph:       obj("title", "t", "dataPoints", obj("a", 1.0)),
		domain.KindTree:        obj("root", obj("label", "r")),
		domain.KindColumn:      obj(),
		domain.KindRow:         obj(),
		domain.KindGrid:        obj(),
		domain.KindPanel:       obj("title", "p"),
		domain.KindBadge:       obj("text", "b"),
		domain.KindStat:        obj("label", "l", "value", "v"),
		domain.KindAlert:       obj("message", "m"),
		domain.KindCodeBlock:   obj("content", "c", "language", "go"),
		domain.KindLogView:     obj("entries", []any{obj("timestamp", int64(1), "message", "m")}),
		domain.KindTimeline:    obj("events", []any{obj("label", "l", "description", "d", "timestamp", int64(1))}),
		domain.KindSparkline:   obj("label", "l", "values", []any{1.0, int64(2)}),
		domain.KindGauge:       obj("label", "l", "current", 1.0, "max", 2.0),
		domain.KindLink:        obj("label", "l", "url", "https://example.com"),
		domain.KindIframe:      obj("url", "https://example.com"),
	}
}

func TestMap_EveryKindIsMapped(t *testing.T) {
	data := minimalData()
	for _, k := range domain.Kinds() {
		t.Run(string(k), func(t *testing.T) {
			d, ok := data[k]
			if !ok {
				t.Fatalf("no fixture for %s", k)
			}
			s, warns, err := Map(doc(category("a", 0, comp(string(k), d))))
			if err != nil {
				t.Fatalf("Map() error = %v", err)
			}
			if len(warns) != 0 {
				t.Fatalf("warnings = %v", warns)
			}
			cs := s.Categories[0].Components
			if len(cs) != 1 || cs[0].Kind() != k {
				t.Fatalf("components = %#v", cs)
			}
		})
	}
}

func TestMap_OptionalFieldsAbsent(t *testing.T) {
	s, _, err := Map(doc(category("a", 0,
		comp("STAT", obj("label", "l", "value", "v", "unit", "", "trend", nil)),
		comp("ALERT", obj("message", "m", "title", nil)),
		comp("IFRAME", obj("url", "u", "height", 300.0, "title", "")),
		comp("GAUGE", obj("label", "l", "current", 1.0, "max", 2.0, "unit", "%")),
	)))
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	cs := s.Categories[0].Components
	st := cs[0].(*domain.Stat)
	if st.Unit != nil || st.Trend != nil || st.Description != nil {
		t.Errorf("stat optionals = %v %v %v", st.Unit, st.Trend, st.Description)
	}
	if cs[1].(*domain.Alert).Title != nil {
		t.Errorf("alert title should be absent")
	}
	fr := cs[2].(*domain.Iframe)
	if fr.Title != nil || fr.Height == nil || *fr.Height != 300 {
		t.Errorf("iframe = %+v", fr)
	}
	if u := cs[3].(*domain.Gauge).Unit; u == nil || *u != "%" {
		t.Errorf("gauge unit = %v", u)
	}
	b, _ := json.Marshal(st)
	if strings.Contains(string(b), "unit") {
		t.Errorf("absent unit serialized: %s", b)
	}
}

func TestMap_IntegerCoercion(t *testing.T) {
	ok := doc()
	ok.Set("timestamp", 1.7e12)
	s, _, err := Map(ok)
	if err != nil || s.CapturedAt != 1700000000000 {
		t.Fatalf("integral float: %v, %v", s, err)
	}
	for _, bad := range []any{1.5, float64(1 << 60), "123"} {
		d := doc()
		d.Set("timestamp", bad)
		if _, _, err := Map(d); !errors.Is(err, domain.ErrSchemaMismatch) {
			t.Errorf("timestamp %v: err = %v", bad, err)
		}
	}
}

func TestMap_UnknownEnumAndClamp(t *testing.T) {
	s, warns, err := Map(doc(category("a", 0,
		comp("BADGE", obj("text", "x", "severity", "CRITICAL")),
		comp("GRID", obj("columns", int64(9), "gap", "HUGE")),
	)))
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	cs := s.Categories[0].Components
	if sev := cs[0].(*domain.Badge).Severity; sev != domain.SeverityDefault {
		t.Errorf("severity = %s", sev)
	}
	g := cs[1].(*domain.Grid)
	if g.Columns != defaultGridColumns || g.Gap != domain.GapMedium {
		t.Errorf("grid = %+v", g)
	}
	kinds := map[WarningKind]int{}
	for _, w := range warns {
		kinds[w.Kind]++
	}
	if kinds[WarnUnknownEnum] != 2 || kinds[WarnClamped] != 1 {
		t.Fatalf("warnings = %v", warns)
	}
}

func TestMap_GridColumns(t *testing.T) {
	tests := []struct {
		columns any
		want    int
		warned  bool
	}{
		{nil, 2, false},
		{int64(1), 1, false},
		{int64(4), 4, false},
		{int64(0), 2, true},
		{int64(-3), 2, true},
		{int64(5), 2, true},
		{int64(99), 2, true},
	}
	for _, tt := range tests {
		data := obj("gap", "SMALL")
		if tt.columns != nil {
			data.Set("columns", tt.columns)
		}
		s, warns, err := Map(doc(category("a", 0, comp("GRID", data))))
		if err != nil {
			t.Fatalf("columns %v: %v", tt.columns, err)
		}
		g := s.Categories[0].Components[0].(*domain.Grid)
		if g.Columns != tt.want {
			t.Errorf("columns %v: got %d, want %d", tt.columns, g.Columns, tt.want)
		}
		if warned := len(warns) == 1 && warns[0].Kind == WarnClamped; warned != tt.warned {
			t.Errorf("columns %v: warnings = %v", tt.columns, warns)
		}
	}
}

func TestMap_ChildrenNeverNull(t *testing.T) {
	s, _, err := Map(doc(category("a", 0, comp("PANEL", obj("title", "p", "children", nil)))))
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	p := s.Categories[0].Components[0].(*domain.Panel)
	if p.Children == nil {
		t.Fatalf("children is nil")
	}
	b, _ := json.Marshal(s.Categories[0].Components)
	if !strings.Contains(string(b), `"children":[]`) {
		t.Fatalf("json = %s", b)
	}
}

func TestMap_DepthGuard(t *testing.T) {
	inner := comp("TEXT", obj("content", "leaf"))
	for i := 0; i < 4; i++ {
		inner = comp("COLUMN", obj("children", []any{inner}))
	}
	d := doc(category("a", 0, inner))
	if _, _, err := (Mapper{MaxDepth: 3}).Map(d); !errors.Is(err, domain.ErrSchemaMismatch) {
		t.Fatalf("err = %v", err)
	}
	if _, _, err := (Mapper{MaxDepth: 5}).Map(d); err != nil {
		t.Fatalf("depth 5: %v", err)
	}
}

func TestMap_GraphKeepsPointOrder(t *testing.T) {
	s, _, err := Map(doc(category("a", 0,
		comp("GRAPH", obj("title", "t", "dataPoints", obj("mon", int64(3), "tue", 1.5, "wed", 2.0))))))
	if err != nil {
		t.Fatalf("Map() error = %v", err)
	}
	dp := s.Categories[0].Components[0].(*domain.Graph).DataPoints
	if len(dp) != 3 || dp[0].Label != "mon" || dp[2].Label != "wed" || dp[0].Value != 3 {
		t.Fatalf("dataPoints = %v", dp)
	}
}

func TestMap_TopLevel(t *testing.T) {
	s, _, err := Map(obj())
	if err != nil || len(s.Categories) != 0 || s.Categories == nil {
		t.Fatalf("empty map: %v, %v", s, err)
	}
	if _, _, err := Map([]any{}); !errors.Is(err, domain.ErrSchemaMismatch) {
		t.Fatalf("array root: err = %v", err)
	}
	bad := doc()
	bad.Set("serverVersion", int64(5))
	if _, _, err := Map(bad); !errors.Is(err, domain.ErrSchemaMismatch) {
		t.Fatalf("typed header: err = %v", err)
	}
}

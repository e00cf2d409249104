package render

import (
	"bytes"
	"strings"
	"testing"

	"raisu/pkg/domain"
	"raisu/pkg/icon"
)

func ptr[T any](v T) *T { return &v }

func TestRenderer_Snapshot(t *testing.T) {
	s := &domain.Snapshot{
		SchemaVersion: 2,
		CapturedAt:    1700000000000,
		ServerLabel:   "Paper 1.21.4",
		RuntimeLabel:  "21.0.5",
		Categories: []domain.Category{{
			ID:          "status",
			DisplayName: "Server Status",
			Icon:        ":lucide:server",
			Components: domain.Components{
				&domain.Badge{Text: "Online", Severity: domain.SeveritySuccess},
				&domain.Panel{Title: "Memory", Children: domain.Components{
					&domain.Gauge{Label: "heap", Current: 5, Max: 10, Unit: ptr("GB")},
				}},
				&domain.Panel{Title: "Hidden", Collapsed: true, Children: domain.Components{
					&domain.Text{Content: "secret"},
				}},
				&domain.Table{Headers: []string{"name", "tps"}, Rows: [][]string{{"world", "20"}}},
				&domain.Stat{Label: "players", Value: "12", Trend: ptr(-2.5)},
			},
		}},
	}
	var buf bytes.Buffer
	if err := New(icon.Default()).Snapshot(&buf, s); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"snapshot v2 captured 2023-11-14 22:13:20",
		"server: Paper 1.21.4",
		"== 🖥️ Server Status ==",
		"  [SUCCESS] Online",
		"  ▾ Memory",
		"    heap [##########..........] 5/10 GB",
		"  ▸ Hidden",
		"  name  | tps",
		"  world | 20",
		"  players: 12 (▼2.5)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "secret") {
		t.Error("collapsed panel children rendered")
	}
}

func TestRenderer_EveryKind(t *testing.T) {
	cs := domain.Components{
		&domain.KeyValue{Key: "k", Value: "v"},
		&domain.Text{Content: "a\nb"},
		&domain.Table{Headers: []string{"h"}},
		&domain.List{Items: []string{"x"}},
		&domain.ProgressBar{Label: "p", Current: 1, Max: 2},
		&domain.Graph{Title: "g", DataPoints: domain.DataPoints{{Label: "mon", Value: 3}}},
		&domain.Tree{Root: domain.TreeNode{Label: "root", Children: []domain.TreeNode{{Label: "leaf"}}}},
		&domain.Column{Children: domain.Components{&domain.Text{Content: "in column"}}},
		&domain.Row{Children: domain.Components{&domain.Text{Content: "in row"}}},
		&domain.Grid{Columns: 2},
		&domain.Panel{Title: "panel"},
		&domain.Badge{Text: "b", Severity: domain.SeverityInfo},
		&domain.Stat{Label: "s", Value: "1"},
		&domain.Alert{Severity: domain.SeverityError, Message: "boom"},
		&domain.CodeBlock{Content: "x := 1", Language: "go"},
		&domain.LogView{Entries: []domain.LogEntry{{Timestamp: 0, Severity: domain.SeverityWarning, Message: "careful"}}},
		&domain.Timeline{Events: []domain.TimelineEvent{{Label: "boot", Timestamp: 0}}},
		&domain.Sparkline{Label: "tps", Values: []float64{1, 2, 3}},
		&domain.Gauge{Label: "cpu", Current: 1, Max: 4},
		&domain.Link{Label: "docs", URL: "https://example.com"},
		&domain.Iframe{URL: "https://example.com/embed"},
	}
	if len(cs) != len(domain.Kinds()) {
		t.Fatalf("test covers %d kinds, model has %d", len(cs), len(domain.Kinds()))
	}
	var buf bytes.Buffer
	s := &domain.Snapshot{Categories: []domain.Category{{DisplayName: "all", Components: cs}}}
	if err := New(nil).Snapshot(&buf, s); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"k: v", "  a\n  b", "- x", "[##########..........] 1/2", "mon: 3", "    leaf",
		"in column", "in row", "[grid 2 columns]", "▾ panel", "[INFO] b", "!ERROR boom",
		"```go", "1970-01-01 00:00:00 WARNING careful", "boot", "tps ▁▄█", "cpu [#####", "docs <https://example.com>",
		"[embed] https://example.com/embed",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
	if strings.Contains(out, "[TEXT]") {
		t.Error("fell through to the default case")
	}
}

func TestSpark(t *testing.T) {
	if got := spark([]float64{5, 5}); got != "▁▁" {
		t.Fatalf("flat spark = %q", got)
	}
	if spark(nil) != "" {
		t.Fatal("empty spark not empty")
	}
}

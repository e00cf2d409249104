package icon

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		raw      string
		ns, name string
		ok       bool
	}{
		{":lucide:server", "lucide", "server", true},
		{":Lucide:HardDrive", "lucide", "hard-drive", true},
		{":lucide:bar_chart_2", "lucide", "bar-chart-2", true},
		{":lucide:BarChart2", "lucide", "bar-chart-2", true},
		{"🔥", "", "", false},
		{":lucide:", "", "", false},
		{"::server", "", "", false},
		{"lucide:server", "", "", false},
	}
	for _, tt := range tests {
		ns, name, ok := Parse(tt.raw)
		if ns != tt.ns || name != tt.name || ok != tt.ok {
			t.Errorf("Parse(%q) = %q, %q, %v", tt.raw, ns, name, ok)
		}
	}
}

func TestDefault_Resolve(t *testing.T) {
	r := Default()
	tests := []struct {
		raw     string
		name    string
		glyph   string
		literal bool
	}{
		{":lucide:server", "lucide:server", "🖥️", false},
		{":lucide:HardDrive", "lucide:hard-drive", "💾", false},
		{":lucide:no-such-icon", "", ":lucide:no-such-icon", true},
		{":material:server", "", ":material:server", true},
		{"💻", "lucide:server", "💻", false},
		{"🦄", "", "🦄", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		got := r.Resolve(tt.raw)
		if got.Name != tt.name || got.Glyph != tt.glyph || got.Literal != tt.literal {
			t.Errorf("Resolve(%q) = %+v", tt.raw, got)
		}
	}
}

func TestTable_IsSwappable(t *testing.T) {
	tbl := NewTable()
	tbl.Register("custom", "Ping", "P")
	if got := tbl.Resolve(":custom:ping"); got.Glyph != "P" || got.Name != "custom:ping" {
		t.Fatalf("Resolve = %+v", got)
	}
	if got := tbl.Resolve(":lucide:server"); !got.Literal {
		t.Fatalf("empty table resolved a default icon: %+v", got)
	}
	if got := Literal.Resolve(":lucide:server"); got.Glyph != ":lucide:server" || !got.Literal {
		t.Fatalf("Literal = %+v", got)
	}
}

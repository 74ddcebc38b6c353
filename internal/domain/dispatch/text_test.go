package dispatch

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestOutputText(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"empty", ``, ""},
		{"string", `"2"`, "2"},
		{"result field", `{"result": "final answer", "output": "ignored"}`, "final answer"},
		{"output field", `{"output": "from output"}`, "from output"},
		{"consensus field", `{"consensus": "yes", "votes": {"yes": 2, "no": 1}}`, "yes"},
		{"non-string field", `{"result": {"a": 1}}`, `{"a":1}`},
		{"null field skipped", `{"result": null, "output": "next"}`, "next"},
		{"fallback json", `{"results": [{"writer": "x"}], "summary": "writer: x"}`, `{"results":[{"writer":"x"}],"summary":"writer: x"}`},
		{"array", `[1, 2]`, `[1,2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := OutputText(json.RawMessage(tt.raw)); got != tt.want {
				t.Fatalf("OutputText(%s) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestOutputTextTruncates(t *testing.T) {
	long := strings.Repeat("a", 2500)
	raw, _ := json.Marshal(long)
	got := OutputText(raw)
	if len(got) != MaxOutputTextLen {
		t.Fatalf("expected %d chars, got %d", MaxOutputTextLen, len(got))
	}

	raw, _ = json.Marshal(map[string]any{"items": strings.Split(strings.Repeat("word ", 1000), " ")})
	if got := OutputText(raw); utf8.RuneCountInString(got) != MaxOutputTextLen {
		t.Fatalf("expected JSON rendering truncated to %d, got %d", MaxOutputTextLen, utf8.RuneCountInString(got))
	}
}

func TestTruncateMultibyte(t *testing.T) {
	s := strings.Repeat("ç", 10)
	got := Truncate(s, 4)
	if got != "çççç" {
		t.Fatalf("unexpected truncation: %q", got)
	}
	if Truncate("short", 10) != "short" {
		t.Fatal("short strings must be returned unchanged")
	}
}

func TestCounts(t *testing.T) {
	c := Counts([]Record{{Status: StatusSent}, {Status: StatusFailed}, {Status: StatusSent}})
	if c[StatusSent] != 2 || c[StatusFailed] != 1 || c[StatusSkipped] != 0 {
		t.Fatalf("unexpected counts: %v", c)
	}
}

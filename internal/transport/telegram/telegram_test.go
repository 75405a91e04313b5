package telegram

import (
	"strings"
	"testing"

	logx "moviebot/pkg/logx"
)

func TestSplitTextShort(t *testing.T) {
	t.Parallel()
	got := splitText("hello", 100)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	lines := make([]string, 0, 40)
	for i := 0; i < 40; i++ {
		lines = append(lines, strings.Repeat("x", 10))
	}
	text := strings.Join(lines, "\n")

	chunks := splitText(text, 100)
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > 100 {
			t.Errorf("chunk %d exceeds limit: %d runes", i, len([]rune(c)))
		}
		// newline-preferring split never cuts a line in half
		for _, line := range strings.Split(c, "\n") {
			if len(line) != 10 {
				t.Errorf("chunk %d has a partial line %q", i, line)
			}
		}
	}

	joined := strings.Join(chunks, "\n")
	if strings.ReplaceAll(joined, "\n", "") != strings.ReplaceAll(text, "\n", "") {
		t.Error("content lost in splitting")
	}
}

func TestSplitTextHardBreakWithoutNewlines(t *testing.T) {
	t.Parallel()
	text := strings.Repeat("a", 250)
	chunks := splitText(text, 100)
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if got := strings.Join(chunks, ""); got != text {
		t.Error("content lost in splitting")
	}
}

func TestNewRejectsEmptyToken(t *testing.T) {
	t.Parallel()
	if _, err := New(Config{Token: "  "}, logx.Nop()); err == nil {
		t.Fatal("expected error for empty token")
	}
}

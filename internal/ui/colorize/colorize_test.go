package colorize

import (
	"strings"
	"testing"
)

func TestDisabled(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	if got := Address(0x40001000); got != "40001000" {
		t.Errorf("Address = %q", got)
	}
	if got := Confidence(0.7); got != "0.70" {
		t.Errorf("Confidence = %q", got)
	}
	if got := Instruction("ret"); got != "ret" {
		t.Errorf("Instruction = %q", got)
	}
}

func TestConfidenceTiers(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("OFFSCAN_NO_COLOR", "")
	seen := map[string]bool{}
	for _, c := range []float64{0.99, 0.85, 0.75, 0.70} {
		s := Confidence(c)
		if !strings.Contains(s, "\033[38;2;") {
			t.Errorf("Confidence(%v) = %q, not colored", c, s)
		}
		seen[s[:strings.Index(s, "m")]] = true
	}
	if len(seen) != 4 {
		t.Errorf("expected four distinct colors, got %d", len(seen))
	}
}

func TestStyleRegistered(t *testing.T) {
	if style().Name != StyleName {
		t.Errorf("style = %q", style().Name)
	}
}

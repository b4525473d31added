package money

import (
	"strings"
	"testing"
)

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		code string
		want int64
	}{
		{"25.50", "EGP", 2550},
		{"10", "USD", 1000},
		{"", "EGP", 0},
		{"1200", "JPY", 1200},
	}
	for _, tc := range cases {
		got, err := Parse(tc.in, tc.code)
		if err != nil {
			t.Fatalf("Parse(%q) error: %v", tc.in, err)
		}
		if got != tc.want {
			t.Errorf("Parse(%q, %s) = %d, want %d", tc.in, tc.code, got, tc.want)
		}
	}
}

func TestParseRejectsGarbage(t *testing.T) {
	if _, err := Parse("ten", "EGP"); err == nil {
		t.Fatalf("expected error for non-numeric input")
	}
}

func TestFormatIncludesAmount(t *testing.T) {
	got := Format(21000, "EGP", "en")
	if !strings.Contains(got, "210") {
		t.Fatalf("expected formatted amount to contain 210, got %q", got)
	}
	if got == "" {
		t.Fatalf("expected non-empty formatted value")
	}
}

func TestScaleDefaultsToTwo(t *testing.T) {
	if Scale("") != 2 {
		t.Fatalf("expected default scale 2")
	}
	if Scale("JPY") != 0 {
		t.Fatalf("expected JPY scale 0, got %d", Scale("JPY"))
	}
}

package nano

import (
	"testing"
)

func TestParse_ValidAmounts(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected int64
	}{
		{"one ton", "1", 1_000_000_000},
		{"half ton", "0.5", 500_000_000},
		{"hundred", "100", 100_000_000_000},
		{"smallest unit", "0.000000001", 1},
		{"whole and frac", "1.500000000", 1_500_000_000},
		{"short frac", "1.5", 1_500_000_000},
		{"three decimals", "1.123", 1_123_000_000},
		{"nine decimals", "1.123456789", 1_123_456_789},
		{"large amount", "999999.999999999", 999_999_999_999_999},
		{"leading zeros in whole", "007.50", 7_500_000_000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Parse(tt.input)
			if !ok {
				t.Fatalf("Parse(%q) returned ok=false", tt.input)
			}
			if got != tt.expected {
				t.Errorf("Parse(%q) = %d, want %d", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParse_InvalidAmounts(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"negative", "-1"},
		{"two dots", "1.2.3"},
		{"letters", "abc"},
		{"whole overflow", "99999999999999999999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, ok := Parse(tt.input); ok {
				t.Errorf("Parse(%q) returned ok=true, want false", tt.input)
			}
		})
	}
}

func TestParse_Empty(t *testing.T) {
	got, ok := Parse("")
	if !ok || got != 0 {
		t.Errorf("Parse(\"\") = (%d, %v), want (0, true)", got, ok)
	}
}

func TestFormat(t *testing.T) {
	tests := []struct {
		name     string
		input    int64
		expected string
	}{
		{"one ton", 1_000_000_000, "1"},
		{"half ton", 500_000_000, "0.5"},
		{"single nano", 1, "0.000000001"},
		{"zero", 0, "0"},
		{"mixed", 1_234_500_000, "1.2345"},
		{"negative", -2_500_000_000, "-2.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Format(tt.input); got != tt.expected {
				t.Errorf("Format(%d) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

// Round-trip must be exact with no drift, well past 10^9 smallest units.
func TestRoundTrip(t *testing.T) {
	values := []int64{
		0, 1, 999, 1_000_000_000, 1_000_000_001,
		123_456_789_012, 999_999_999_999_999,
	}
	for _, v := range values {
		got, ok := Parse(Format(v))
		if !ok {
			t.Fatalf("Parse(Format(%d)) returned ok=false", v)
		}
		if got != v {
			t.Errorf("round trip %d -> %q -> %d", v, Format(v), got)
		}
	}
}

func TestBigConversions(t *testing.T) {
	v := int64(1_500_000_000)
	b := ToBig(v)
	back, ok := FromBig(b)
	if !ok || back != v {
		t.Errorf("FromBig(ToBig(%d)) = (%d, %v)", v, back, ok)
	}
	if _, ok := FromBig(nil); ok {
		t.Error("FromBig(nil) should return ok=false")
	}
}

package cues

import (
	"math"
	"testing"
)

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"00:00:01,250", 1.25},
		{"00:01:01.5", 61.5},
		{"01:02", 62},
		{"12.75", 12.75},
		{"00m05s123ms", 5.123},
		{"1h2m3s", 3723},
		{"500ms", 0.5},
		{"2.5s", 2.5},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTimestamp(tt.in)
			if err != nil {
				t.Fatalf("ParseTimestamp(%q): %v", tt.in, err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Fatalf("ParseTimestamp(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseTimestamp_Rejects(t *testing.T) {
	for _, in := range []string{"", "abc", "1:2:3:4", "00:", "-1", "NaN", "inf", "99999999999999999999h5s", "1m99999999999999999999ms"} {
		t.Run(in, func(t *testing.T) {
			if v, err := ParseTimestamp(in); err == nil {
				t.Fatalf("expected error for %q, got %v", in, v)
			}
		})
	}
}

package vatsim

import "testing"

func TestParseFrequencyMHz(t *testing.T) {
	tests := []struct {
		input string
		want  int64
	}{
		{"118.500", 118500000},
		{"120.800", 120800000},
		{"122.800", 122800000},
		{"199.998", 199998000},
		{"136.975", 136975000},
		{" 121.500 ", 121500000},
	}
	for _, tt := range tests {
		got, err := ParseFrequencyMHz(tt.input)
		if err != nil {
			t.Fatalf("ParseFrequencyMHz(%q) error: %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("ParseFrequencyMHz(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestParseFrequencyMHz_Invalid(t *testing.T) {
	for _, input := range []string{"", "tower", "118.500.1"} {
		if _, err := ParseFrequencyMHz(input); err == nil {
			t.Errorf("ParseFrequencyMHz(%q) succeeded, want error", input)
		}
	}
}

func TestFormatFrequencyMHz(t *testing.T) {
	tests := []struct {
		hz   int64
		want string
	}{
		{118500000, "118.500"},
		{120800000, "120.800"},
		{122798000, "122.798"},
		{0, "0.000"},
	}
	for _, tt := range tests {
		if got := FormatFrequencyMHz(tt.hz); got != tt.want {
			t.Errorf("FormatFrequencyMHz(%d) = %q, want %q", tt.hz, got, tt.want)
		}
	}
}

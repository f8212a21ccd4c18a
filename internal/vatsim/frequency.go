package vatsim

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseFrequencyMHz converts a feed frequency string such as "118.500"
// to integer Hz. Transceivers already arrive as Hz; controller rows
// carry this MHz form, so everything is normalized to Hz before it
// reaches storage.
func ParseFrequencyMHz(s string) (int64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("invalid frequency %q: %w", s, err)
	}
	return int64(math.Round(v * 1e6)), nil
}

// FormatFrequencyMHz renders integer Hz in the feed's MHz form with
// three decimal places.
func FormatFrequencyMHz(hz int64) string {
	return strconv.FormatFloat(float64(hz)/1e6, 'f', 3, 64)
}

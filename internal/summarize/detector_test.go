package summarize

import (
	"math"
	"testing"
	"time"

	"github.com/snarg/vatsim-engine/internal/database"
	"github.com/snarg/vatsim-engine/internal/geo"
)

func testConfig() Config {
	return Config{
		FrequencyToleranceMHz: 0.005,
		TimeWindow:            180 * time.Second,
		ProximityNM:           300,
	}
}

// ── matchPoints ──────────────────────────────────────────────────────

func TestMatchPoints(t *testing.T) {
	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	t.Run("tower_contact_matched", func(t *testing.T) {
		// Canberra tower working a departure 0.6 NM away, 30s apart,
		// both on 124.700.
		flight := []database.TransceiverPoint{
			{FrequencyHz: 124700000, Lat: -35.3076, Lon: 149.1913, Timestamp: base},
		}
		atc := []database.TransceiverPoint{
			{FrequencyHz: 124700000, Lat: -35.3000, Lon: 149.2000, Timestamp: base.Add(30 * time.Second)},
		}

		m := matchPoints(flight, atc, testConfig())
		if m == nil {
			t.Fatal("expected a match, got none")
		}
		if !m.first.Equal(base) || !m.last.Equal(base) {
			t.Errorf("window = [%v, %v], want [%v, %v]", m.first, m.last, base, base)
		}
		if m.minutes() != 0 {
			t.Errorf("minutes = %d, want 0", m.minutes())
		}
		if m.freqHz != 124700000 {
			t.Errorf("freqHz = %d, want 124700000", m.freqHz)
		}
	})

	t.Run("frequency_mismatch_rejected", func(t *testing.T) {
		// Same geometry and timing, but the controller is on 124.800.
		flight := []database.TransceiverPoint{
			{FrequencyHz: 124700000, Lat: -35.3076, Lon: 149.1913, Timestamp: base},
		}
		atc := []database.TransceiverPoint{
			{FrequencyHz: 124800000, Lat: -35.3000, Lon: 149.2000, Timestamp: base.Add(30 * time.Second)},
		}

		if m := matchPoints(flight, atc, testConfig()); m != nil {
			t.Errorf("expected no match, got %+v", m)
		}
	})

	t.Run("distant_station_rejected", func(t *testing.T) {
		// Adelaide controller against a Sydney flight, same frequency
		// and instant. Roughly 620 NM apart.
		flight := []database.TransceiverPoint{
			{FrequencyHz: 124700000, Lat: -33.9393, Lon: 151.1647, Timestamp: base},
		}
		atc := []database.TransceiverPoint{
			{FrequencyHz: 124700000, Lat: -34.9524, Lon: 138.5320, Timestamp: base},
		}

		if m := matchPoints(flight, atc, testConfig()); m != nil {
			t.Errorf("expected no match, got %+v", m)
		}
	})

	t.Run("frequency_at_exact_tolerance_included", func(t *testing.T) {
		flight := []database.TransceiverPoint{
			{FrequencyHz: 124700000, Timestamp: base},
		}
		atc := []database.TransceiverPoint{
			{FrequencyHz: 124705000, Timestamp: base},
		}

		if m := matchPoints(flight, atc, testConfig()); m == nil {
			t.Error("pair exactly 0.005 MHz apart should match")
		}
	})

	t.Run("time_at_exact_window_included", func(t *testing.T) {
		flight := []database.TransceiverPoint{
			{FrequencyHz: 124700000, Timestamp: base},
		}
		atc := []database.TransceiverPoint{
			{FrequencyHz: 124700000, Timestamp: base.Add(180 * time.Second)},
		}

		if m := matchPoints(flight, atc, testConfig()); m == nil {
			t.Error("pair exactly 180s apart should match")
		}
	})

	t.Run("time_beyond_window_rejected", func(t *testing.T) {
		flight := []database.TransceiverPoint{
			{FrequencyHz: 124700000, Timestamp: base},
		}
		atc := []database.TransceiverPoint{
			{FrequencyHz: 124700000, Timestamp: base.Add(181 * time.Second)},
		}

		if m := matchPoints(flight, atc, testConfig()); m != nil {
			t.Errorf("expected no match, got %+v", m)
		}
	})

	t.Run("proximity_at_exact_boundary_included", func(t *testing.T) {
		// The threshold comparison is inclusive: a pair sitting at
		// exactly the configured radius matches, one ulp tighter does
		// not.
		flight := []database.TransceiverPoint{
			{FrequencyHz: 124700000, Lat: 0, Lon: 0, Timestamp: base},
		}
		atc := []database.TransceiverPoint{
			{FrequencyHz: 124700000, Lat: 2, Lon: 0, Timestamp: base},
		}
		dist := geo.DistanceNM(0, 0, 2, 0)

		cfg := testConfig()
		cfg.ProximityNM = dist
		if m := matchPoints(flight, atc, cfg); m == nil {
			t.Error("pair at exactly the proximity bound should match")
		}

		cfg.ProximityNM = math.Nextafter(dist, 0)
		if m := matchPoints(flight, atc, cfg); m != nil {
			t.Errorf("pair beyond the proximity bound matched: %+v", m)
		}
	})

	t.Run("window_spans_all_matching_points", func(t *testing.T) {
		flight := []database.TransceiverPoint{
			{FrequencyHz: 124700000, Timestamp: base},
			{FrequencyHz: 124700000, Timestamp: base.Add(60 * time.Second)},
			{FrequencyHz: 124700000, Timestamp: base.Add(120 * time.Second)},
		}
		atc := []database.TransceiverPoint{
			{FrequencyHz: 124700000, Timestamp: base.Add(30 * time.Second)},
		}

		m := matchPoints(flight, atc, testConfig())
		if m == nil {
			t.Fatal("expected a match, got none")
		}
		if !m.first.Equal(base) {
			t.Errorf("first = %v, want %v", m.first, base)
		}
		if want := base.Add(120 * time.Second); !m.last.Equal(want) {
			t.Errorf("last = %v, want %v", m.last, want)
		}
		if m.minutes() != 2 {
			t.Errorf("minutes = %d, want 2", m.minutes())
		}
	})

	t.Run("empty_sides_no_match", func(t *testing.T) {
		pts := []database.TransceiverPoint{{FrequencyHz: 124700000, Timestamp: base}}
		if m := matchPoints(nil, pts, testConfig()); m != nil {
			t.Errorf("expected no match with no flight points, got %+v", m)
		}
		if m := matchPoints(pts, nil, testConfig()); m != nil {
			t.Errorf("expected no match with no atc points, got %+v", m)
		}
	})
}

// ── frequency helpers ────────────────────────────────────────────────

func TestModeFrequency(t *testing.T) {
	t.Run("most_frequent_wins", func(t *testing.T) {
		counts := map[int64]int{124700000: 3, 118100000: 1}
		if got := modeFrequency(counts); got != 124700000 {
			t.Errorf("modeFrequency = %d, want 124700000", got)
		}
	})

	t.Run("tie_breaks_toward_lower", func(t *testing.T) {
		counts := map[int64]int{124700000: 2, 118100000: 2}
		if got := modeFrequency(counts); got != 118100000 {
			t.Errorf("modeFrequency = %d, want 118100000", got)
		}
	})
}

func TestRoundToKHz(t *testing.T) {
	cases := []struct {
		in   int64
		want int64
	}{
		{124700000, 124700000},
		{124700499, 124700000},
		{124700500, 124701000},
		{124699501, 124700000},
	}
	for _, tc := range cases {
		if got := roundToKHz(tc.in); got != tc.want {
			t.Errorf("roundToKHz(%d) = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestFrequenciesUsed(t *testing.T) {
	pts := []database.TransceiverPoint{
		{FrequencyHz: 134500000},
		{FrequencyHz: 124700000},
		{FrequencyHz: 124700020}, // same channel, jittered reading
		{FrequencyHz: 118100000},
		{FrequencyHz: 124700000},
	}

	got := frequenciesUsed(pts)
	want := []string{"118.100", "124.700", "134.500"}
	if len(got) != len(want) {
		t.Fatalf("got %d frequencies %v, want %d", len(got), got, len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("frequencies[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// ── facility lookup ──────────────────────────────────────────────────

func TestFacilityType(t *testing.T) {
	cases := []struct {
		code int
		want string
	}{
		{0, "OBS"},
		{1, "FSS"},
		{2, "DEL"},
		{3, "GND"},
		{4, "TWR"},
		{5, "APP"},
		{6, "CTR"},
		{9, "UNK"},
		{-1, "UNK"},
	}
	for _, tc := range cases {
		if got := FacilityType(tc.code); got != tc.want {
			t.Errorf("FacilityType(%d) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

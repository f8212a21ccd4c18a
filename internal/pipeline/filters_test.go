package pipeline

import (
	"testing"

	"github.com/snarg/vatsim-engine/internal/geo"
	"github.com/snarg/vatsim-engine/internal/vatsim"
)

// staticBoundary serves a fixed ring without a file on disk.
type staticBoundary struct{ ring geo.Polygon }

func (s staticBoundary) Current() geo.Polygon { return s.ring }

// canberraBox loosely covers the Canberra area.
var canberraBox = staticBoundary{ring: geo.Polygon{
	{148.0, -36.0}, {150.5, -36.0}, {150.5, -34.5}, {148.0, -34.5},
}}

func ptr(v float64) *float64 { return &v }

func pilot(callsign string, lat, lon *float64) vatsim.Pilot {
	return vatsim.Pilot{Callsign: callsign, Latitude: lat, Longitude: lon}
}

func TestFilterFlights_Boundary(t *testing.T) {
	f := New(canberraBox, nil, false, nil)

	pilots := []vatsim.Pilot{
		pilot("QFA1", ptr(-35.3), ptr(149.19)),  // inside
		pilot("JST2", ptr(-33.94), ptr(151.17)), // Sydney, outside the box
		pilot("VOZ3", nil, nil),                 // no coordinates
	}

	got := f.FilterFlights(pilots)
	if len(got) != 1 || got[0].Callsign != "QFA1" {
		t.Fatalf("kept %v, want only QFA1", callsigns(got))
	}

	totals := f.BoundaryStats.Totals()
	if totals.Processed != 3 || totals.Included != 1 || totals.Excluded != 2 {
		t.Errorf("boundary stats = %+v, want processed 3 included 1 excluded 2", totals)
	}
}

func TestFilterFlights_BoundaryDisabled(t *testing.T) {
	f := New(nil, nil, false, nil)

	pilots := []vatsim.Pilot{
		pilot("QFA1", ptr(-35.3), ptr(149.19)),
		pilot("VOZ3", nil, nil),
	}
	if got := f.FilterFlights(pilots); len(got) != 2 {
		t.Errorf("kept %d, want all 2 when boundary disabled", len(got))
	}
}

func TestFilterFlights_CallsignPatterns(t *testing.T) {
	patterns, err := CompilePatterns([]string{"QFA", "JST[0-9]+"})
	if err != nil {
		t.Fatalf("CompilePatterns error: %v", err)
	}
	f := New(nil, patterns, false, nil)

	pilots := []vatsim.Pilot{
		pilot("QFA123", ptr(0), ptr(0)),
		pilot("JST211", ptr(0), ptr(0)),
		pilot("VOZ99", ptr(0), ptr(0)),
		pilot("XQFA1", ptr(0), ptr(0)), // prefix anchored, no match
	}

	got := f.FilterFlights(pilots)
	if len(got) != 2 {
		t.Fatalf("kept %v, want QFA123 and JST211", callsigns(got))
	}
}

func TestCompilePatterns_Invalid(t *testing.T) {
	if _, err := CompilePatterns([]string{"QF[", "JST"}); err == nil {
		t.Fatal("want error for unterminated character class")
	}
}

func TestFilterControllers_Observers(t *testing.T) {
	ctrls := []vatsim.Controller{
		{Callsign: "CB_TWR", Facility: 4},
		{Callsign: "SOMEONE_OBS", Facility: 0},
		{Callsign: "ML_CTR", Facility: 6},
	}

	t.Run("dropped_by_default", func(t *testing.T) {
		f := New(nil, nil, false, nil)
		got := f.FilterControllers(ctrls)
		if len(got) != 2 {
			t.Fatalf("kept %d controllers, want 2", len(got))
		}
		for _, c := range got {
			if c.Facility == 0 {
				t.Errorf("observer %s not dropped", c.Callsign)
			}
		}
	})

	t.Run("kept_when_configured", func(t *testing.T) {
		f := New(nil, nil, true, nil)
		if got := f.FilterControllers(ctrls); len(got) != 3 {
			t.Errorf("kept %d controllers, want all 3", len(got))
		}
	})
}

func TestFilterTransceivers_FrequencyExclusion(t *testing.T) {
	f := New(nil, nil, false, []float64{122.800, 121.500})

	stations := []vatsim.StationTransceivers{
		{Callsign: "QFA1", Transceivers: []vatsim.Transceiver{
			{ID: 0, Frequency: 122800000}, // unicom, excluded
			{ID: 1, Frequency: 124700000},
		}},
		{Callsign: "JST2", Transceivers: []vatsim.Transceiver{
			{ID: 0, Frequency: 121500250}, // rounds to 121.500, excluded
		}},
		{Callsign: "VOZ3", Transceivers: []vatsim.Transceiver{
			{ID: 0, Frequency: 0}, // zero frequency passes
		}},
	}

	got := f.FilterTransceivers(stations)
	if len(got) != 2 {
		t.Fatalf("kept %d stations, want 2 (JST2 fully excluded)", len(got))
	}
	if got[0].Callsign != "QFA1" || len(got[0].Transceivers) != 1 || got[0].Transceivers[0].Frequency != 124700000 {
		t.Errorf("QFA1 radios = %+v, want only 124700000", got[0].Transceivers)
	}
	if got[1].Callsign != "VOZ3" {
		t.Errorf("zero-frequency station dropped: %v", got[1].Callsign)
	}

	totals := f.FrequencyStats.Totals()
	if totals.Processed != 4 || totals.Included != 2 {
		t.Errorf("frequency stats = %+v, want processed 4 included 2", totals)
	}
}

func TestFilterTransceivers_CallsignAppliesToStations(t *testing.T) {
	patterns, _ := CompilePatterns([]string{"QFA"})
	f := New(nil, patterns, false, nil)

	stations := []vatsim.StationTransceivers{
		{Callsign: "QFA1", Transceivers: []vatsim.Transceiver{{Frequency: 124700000}}},
		{Callsign: "JST2", Transceivers: []vatsim.Transceiver{{Frequency: 124700000}}},
	}
	got := f.FilterTransceivers(stations)
	if len(got) != 1 || got[0].Callsign != "QFA1" {
		t.Errorf("kept %d stations, want only QFA1", len(got))
	}
}

func callsigns(pilots []vatsim.Pilot) []string {
	out := make([]string, len(pilots))
	for i, p := range pilots {
		out[i] = p.Callsign
	}
	return out
}

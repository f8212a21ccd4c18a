package summarize

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/vatsim-engine/internal/database"
	"github.com/snarg/vatsim-engine/internal/geo"
	"github.com/snarg/vatsim-engine/internal/vatsim"
)

// Config holds the three interaction thresholds. Every comparison is
// inclusive: a pair sitting exactly on a threshold matches.
type Config struct {
	FrequencyToleranceMHz float64
	TimeWindow            time.Duration
	ProximityNM           float64
}

// ControllerInteraction is one entry in a flight summary's controller
// array: a controller the flight talked to, with the contact window.
type ControllerInteraction struct {
	ControllerCallsign string    `json:"controller_callsign"`
	Type               string    `json:"type"`
	FrequencyMHz       string    `json:"frequency_mhz"`
	TimeMinutes        int       `json:"time_minutes"`
	FirstSeen          time.Time `json:"first_seen"`
	LastSeen           time.Time `json:"last_seen"`
}

// AircraftInteraction is the mirror entry in a controller summary's
// aircraft array.
type AircraftInteraction struct {
	Callsign     string    `json:"callsign"`
	FrequencyMHz string    `json:"frequency_mhz"`
	TimeMinutes  int       `json:"time_minutes"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
}

// InteractionStore supplies the pre-scoped radio observations and
// candidate sessions the detector joins. Implemented by database.DB.
type InteractionStore interface {
	FlightTransceivers(ctx context.Context, callsign string, start, end time.Time) ([]database.TransceiverPoint, error)
	CandidateControllers(ctx context.Context, start, end time.Time) ([]database.CandidateController, error)
	ATCTransceivers(ctx context.Context, callsigns []string, start, end time.Time) (map[string][]database.TransceiverPoint, error)
	ATCTransceiversForCallsign(ctx context.Context, callsign string, start, end time.Time) ([]database.TransceiverPoint, error)
	FlightTransceiversInWindow(ctx context.Context, start, end time.Time) (map[string][]database.TransceiverPoint, error)
}

// Detector pairs flight and controller radio observations. Both sides
// of the join are pre-scoped to the session window and candidate
// entity set before any pairwise work happens; matching the full
// transceiver history against itself does not finish on a live
// network's data volume.
type Detector struct {
	db  InteractionStore
	cfg Config
	log zerolog.Logger
}

// NewDetector creates a detector over the given store and thresholds.
func NewDetector(db InteractionStore, cfg Config, log zerolog.Logger) *Detector {
	return &Detector{
		db:  db,
		cfg: cfg,
		log: log.With().Str("component", "detector").Logger(),
	}
}

// ControllersForFlight builds the controller interaction array for one
// completed flight session, ordered by first contact. Candidate
// controllers are sessions overlapping [start, end] with observers
// excluded; their radio points and the flight's own are fetched only
// inside that window.
func (d *Detector) ControllersForFlight(ctx context.Context, callsign string, start, end time.Time) ([]ControllerInteraction, error) {
	flightPts, err := d.db.FlightTransceivers(ctx, callsign, start, end)
	if err != nil {
		return nil, fmt.Errorf("flight transceivers: %w", err)
	}
	if len(flightPts) == 0 {
		return nil, nil
	}

	cands, err := d.db.CandidateControllers(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("candidate controllers: %w", err)
	}
	if len(cands) == 0 {
		return nil, nil
	}

	// Radio observations are keyed by callsign only, so back-to-back
	// sessions of the same position collapse to one candidate here.
	// The latest session's facility supplies the type label.
	facility := make(map[string]int, len(cands))
	names := make([]string, 0, len(cands))
	for _, c := range cands {
		if _, ok := facility[c.Callsign]; !ok {
			names = append(names, c.Callsign)
		}
		facility[c.Callsign] = c.Facility
	}

	atcPts, err := d.db.ATCTransceivers(ctx, names, start, end)
	if err != nil {
		return nil, fmt.Errorf("atc transceivers: %w", err)
	}

	var out []ControllerInteraction
	for _, name := range names {
		m := matchPoints(flightPts, atcPts[name], d.cfg)
		if m == nil {
			continue
		}
		out = append(out, ControllerInteraction{
			ControllerCallsign: name,
			Type:               FacilityType(facility[name]),
			FrequencyMHz:       vatsim.FormatFrequencyMHz(m.freqHz),
			TimeMinutes:        m.minutes(),
			FirstSeen:          m.first,
			LastSeen:           m.last,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FirstSeen.Before(out[j].FirstSeen) })
	return out, nil
}

// AircraftForController builds the aircraft interaction array for one
// completed controller session, ordered by first contact, plus the
// distinct frequencies the position transmitted on, ascending. The
// candidate aircraft are all flights with any radio observation inside
// the session window.
func (d *Detector) AircraftForController(ctx context.Context, callsign string, start, end time.Time) ([]AircraftInteraction, []string, error) {
	atcPts, err := d.db.ATCTransceiversForCallsign(ctx, callsign, start, end)
	if err != nil {
		return nil, nil, fmt.Errorf("atc transceivers: %w", err)
	}
	if len(atcPts) == 0 {
		return nil, nil, nil
	}

	flights, err := d.db.FlightTransceiversInWindow(ctx, start, end)
	if err != nil {
		return nil, nil, fmt.Errorf("flight transceivers: %w", err)
	}

	names := make([]string, 0, len(flights))
	for name := range flights {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []AircraftInteraction
	for _, name := range names {
		m := matchPoints(flights[name], atcPts, d.cfg)
		if m == nil {
			continue
		}
		out = append(out, AircraftInteraction{
			Callsign:     name,
			FrequencyMHz: vatsim.FormatFrequencyMHz(m.freqHz),
			TimeMinutes:  m.minutes(),
			FirstSeen:    m.first,
			LastSeen:     m.last,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].FirstSeen.Before(out[j].FirstSeen) })

	return out, frequenciesUsed(atcPts), nil
}

// matchWindow aggregates every matched pair between one flight and one
// controller.
type matchWindow struct {
	first  time.Time
	last   time.Time
	freqHz int64
}

func (m *matchWindow) minutes() int {
	return int(m.last.Sub(m.first).Minutes())
}

// matchPoints applies the three-predicate test to every candidate
// pair. The flight side supplies first/last contact timestamps and the
// controller side supplies the reported frequency, so the flight-side
// and controller-side detectors agree on both whenever they see the
// same pair. Returns nil when nothing matches.
func matchPoints(flightPts, atcPts []database.TransceiverPoint, cfg Config) *matchWindow {
	if len(flightPts) == 0 || len(atcPts) == 0 {
		return nil
	}
	tolHz := int64(math.Round(cfg.FrequencyToleranceMHz * 1e6))

	var (
		found     bool
		first     time.Time
		last      time.Time
		freqCount = make(map[int64]int)
	)
	for _, f := range flightPts {
		for _, a := range atcPts {
			dHz := a.FrequencyHz - f.FrequencyHz
			if dHz < 0 {
				dHz = -dHz
			}
			if dHz > tolHz {
				continue
			}

			dt := a.Timestamp.Sub(f.Timestamp)
			if dt < 0 {
				dt = -dt
			}
			if dt > cfg.TimeWindow {
				continue
			}

			if geo.DistanceNM(f.Lat, f.Lon, a.Lat, a.Lon) > cfg.ProximityNM {
				continue
			}

			if !found || f.Timestamp.Before(first) {
				first = f.Timestamp
			}
			if !found || f.Timestamp.After(last) {
				last = f.Timestamp
			}
			found = true
			freqCount[roundToKHz(a.FrequencyHz)]++
		}
	}
	if !found {
		return nil
	}
	return &matchWindow{first: first, last: last, freqHz: modeFrequency(freqCount)}
}

// roundToKHz snaps a raw Hz reading to the nearest kHz so readings a
// few Hz apart count as the same channel.
func roundToKHz(hz int64) int64 {
	if hz >= 0 {
		return (hz + 500) / 1000 * 1000
	}
	return -((-hz + 500) / 1000 * 1000)
}

// modeFrequency returns the most frequent entry, ties breaking toward
// the lower frequency so output is stable across runs.
func modeFrequency(counts map[int64]int) int64 {
	var (
		best      int64
		bestCount int
	)
	for hz, n := range counts {
		if n > bestCount || (n == bestCount && hz < best) {
			best, bestCount = hz, n
		}
	}
	return best
}

// frequenciesUsed returns the distinct kHz-rounded frequencies among
// the points, rendered in MHz form, ascending.
func frequenciesUsed(pts []database.TransceiverPoint) []string {
	seen := make(map[int64]struct{})
	hzs := make([]int64, 0, 4)
	for _, p := range pts {
		hz := roundToKHz(p.FrequencyHz)
		if _, ok := seen[hz]; ok {
			continue
		}
		seen[hz] = struct{}{}
		hzs = append(hzs, hz)
	}
	sort.Slice(hzs, func(i, j int) bool { return hzs[i] < hzs[j] })

	out := make([]string, len(hzs))
	for i, hz := range hzs {
		out[i] = vatsim.FormatFrequencyMHz(hz)
	}
	return out
}

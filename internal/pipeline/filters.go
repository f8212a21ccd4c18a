// Package pipeline applies the record filters between the feed fetch
// and persistence: geographic boundary, callsign pattern, observer
// exclusion, and frequency exclusion, each with a rolling per-day
// statistics window.
package pipeline

import (
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/snarg/vatsim-engine/internal/geo"
	"github.com/snarg/vatsim-engine/internal/vatsim"
)

// BoundarySource yields the current boundary ring. The hot-reloading
// geo.BoundaryWatcher satisfies it.
type BoundarySource interface {
	Current() geo.Polygon
}

// CompilePatterns turns the configured callsign patterns into
// regexps anchored at the start of the callsign. A plain prefix like
// "QF" is a valid pattern; full regular expressions work too.
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile("^(?:" + p + ")")
		if err != nil {
			return nil, fmt.Errorf("callsign pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

// Filters applies the stream filters in their fixed order: boundary,
// callsign, observer, frequency exclusion. Disabled filters are
// pass-throughs: a nil boundary source disables the boundary test, an
// empty pattern list passes every callsign, an empty exclusion set
// passes every frequency.
type Filters struct {
	boundary         BoundarySource
	patterns         []*regexp.Regexp
	includeObservers bool
	excludedHz       map[int64]struct{} // normalized to the nearest kHz

	BoundaryStats  *FilterStats
	CallsignStats  *FilterStats
	ObserverStats  *FilterStats
	FrequencyStats *FilterStats
}

// New builds the filter set. Patterns must already be compiled via
// CompilePatterns; excludedMHz values are normalized to Hz.
func New(boundary BoundarySource, patterns []*regexp.Regexp, includeObservers bool, excludedMHz []float64) *Filters {
	excluded := make(map[int64]struct{}, len(excludedMHz))
	for _, mhz := range excludedMHz {
		excluded[int64(math.Round(mhz*1e6))] = struct{}{}
	}
	return &Filters{
		boundary:         boundary,
		patterns:         patterns,
		includeObservers: includeObservers,
		excludedHz:       excluded,
		BoundaryStats:    NewFilterStats(),
		CallsignStats:    NewFilterStats(),
		ObserverStats:    NewFilterStats(),
		FrequencyStats:   NewFilterStats(),
	}
}

// FilterFlights applies the boundary filter and then the callsign
// filter to the snapshot's pilots. Pilots without coordinates are
// excluded by the boundary filter.
func (f *Filters) FilterFlights(pilots []vatsim.Pilot) []vatsim.Pilot {
	out := pilots

	if f.boundary != nil {
		ring := f.boundary.Current()
		kept := make([]vatsim.Pilot, 0, len(out))
		for _, p := range out {
			if p.Latitude != nil && p.Longitude != nil && ring.Contains(*p.Latitude, *p.Longitude) {
				kept = append(kept, p)
			}
		}
		f.BoundaryStats.Add(len(out), len(kept))
		out = kept
	}

	if len(f.patterns) > 0 {
		kept := make([]vatsim.Pilot, 0, len(out))
		for _, p := range out {
			if f.matchesCallsign(p.Callsign) {
				kept = append(kept, p)
			}
		}
		f.CallsignStats.Add(len(out), len(kept))
		out = kept
	}

	return out
}

// FilterControllers drops observer rows (facility 0) unless observers
// are configured in.
func (f *Filters) FilterControllers(ctrls []vatsim.Controller) []vatsim.Controller {
	if f.includeObservers {
		return ctrls
	}
	kept := make([]vatsim.Controller, 0, len(ctrls))
	for _, c := range ctrls {
		if c.Facility != 0 {
			kept = append(kept, c)
		}
	}
	f.ObserverStats.Add(len(ctrls), len(kept))
	return kept
}

// FilterTransceivers applies the callsign filter per station and the
// frequency exclusion per radio. Stations whose radios are all
// excluded are dropped entirely. Radios with zero frequency pass
// through unchanged.
func (f *Filters) FilterTransceivers(stations []vatsim.StationTransceivers) []vatsim.StationTransceivers {
	out := stations

	if len(f.patterns) > 0 {
		kept := make([]vatsim.StationTransceivers, 0, len(out))
		for _, st := range out {
			if f.matchesCallsign(st.Callsign) {
				kept = append(kept, st)
			}
		}
		f.CallsignStats.Add(len(out), len(kept))
		out = kept
	}

	if len(f.excludedHz) > 0 {
		processed, included := 0, 0
		kept := make([]vatsim.StationTransceivers, 0, len(out))
		for _, st := range out {
			radios := make([]vatsim.Transceiver, 0, len(st.Transceivers))
			for _, tx := range st.Transceivers {
				processed++
				if tx.Frequency != 0 && f.isExcluded(tx.Frequency) {
					continue
				}
				included++
				radios = append(radios, tx)
			}
			if len(radios) > 0 {
				st.Transceivers = radios
				kept = append(kept, st)
			}
		}
		f.FrequencyStats.Add(processed, included)
		out = kept
	}

	return out
}

// Stats returns the rolling window for every filter, keyed by filter
// name then day.
func (f *Filters) Stats() map[string]map[string]DayStat {
	return map[string]map[string]DayStat{
		"boundary":  f.BoundaryStats.Snapshot(),
		"callsign":  f.CallsignStats.Snapshot(),
		"observer":  f.ObserverStats.Snapshot(),
		"frequency": f.FrequencyStats.Snapshot(),
	}
}

func (f *Filters) matchesCallsign(callsign string) bool {
	for _, re := range f.patterns {
		if re.MatchString(callsign) {
			return true
		}
	}
	return false
}

// isExcluded matches the exclusion set at 3-decimal MHz precision,
// which is the nearest kHz in Hz terms.
func (f *Filters) isExcluded(hz int64) bool {
	_, ok := f.excludedHz[((hz+500)/1000)*1000]
	return ok
}

package summarize

import (
	"math"
	"sort"
	"time"
)

// interval is the closed time span of one interaction, taken from its
// first_seen/last_seen pair.
type interval struct {
	start, end time.Time
}

// coveragePercent returns how much of [sessionStart, sessionEnd] the
// union of the spans covers, as a percentage rounded to one decimal
// place and clamped to [0, 100]. Overlapping spans are merged first so
// stacked controllers cannot push coverage past the session length.
func coveragePercent(spans []interval, sessionStart, sessionEnd time.Time) float64 {
	total := sessionEnd.Sub(sessionStart)
	if total <= 0 || len(spans) == 0 {
		return 0
	}

	var covered time.Duration
	for _, iv := range mergeIntervals(spans) {
		s, e := iv.start, iv.end
		if s.Before(sessionStart) {
			s = sessionStart
		}
		if e.After(sessionEnd) {
			e = sessionEnd
		}
		if e.After(s) {
			covered += e.Sub(s)
		}
	}

	pct := math.Round(float64(covered)/float64(total)*1000) / 10
	if pct > 100 {
		return 100
	}
	if pct < 0 {
		return 0
	}
	return pct
}

// mergeIntervals sorts spans by start and coalesces any that overlap
// or touch.
func mergeIntervals(spans []interval) []interval {
	sorted := make([]interval, len(spans))
	copy(sorted, spans)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].start.Before(sorted[j].start) })

	merged := []interval{sorted[0]}
	for _, iv := range sorted[1:] {
		last := &merged[len(merged)-1]
		if !iv.start.After(last.end) {
			if iv.end.After(last.end) {
				last.end = iv.end
			}
			continue
		}
		merged = append(merged, iv)
	}
	return merged
}

// peakConcurrent returns the maximum number of spans active at any
// instant. Spans are closed, so one ending exactly as another starts
// counts both at that instant.
func peakConcurrent(spans []interval) int {
	if len(spans) == 0 {
		return 0
	}

	type event struct {
		at    time.Time
		delta int
	}
	events := make([]event, 0, len(spans)*2)
	for _, iv := range spans {
		events = append(events, event{iv.start, +1}, event{iv.end, -1})
	}
	sort.Slice(events, func(i, j int) bool {
		if events[i].at.Equal(events[j].at) {
			return events[i].delta > events[j].delta
		}
		return events[i].at.Before(events[j].at)
	})

	var cur, peak int
	for _, ev := range events {
		cur += ev.delta
		if cur > peak {
			peak = cur
		}
	}
	return peak
}

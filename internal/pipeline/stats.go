package pipeline

import (
	"sync"
	"time"
)

// statsWindowDays is the rolling window length: today plus six prior
// calendar days.
const statsWindowDays = 7

// DayStat is one calendar day's counts for a single filter.
type DayStat struct {
	Processed int64 `json:"processed"`
	Included  int64 `json:"included"`
	Excluded  int64 `json:"excluded"`
}

// FilterStats keeps a rolling window of per-day counts for one
// filter. Days that fall out of the window are pruned on every
// update, so the map never grows past the window length.
type FilterStats struct {
	mu   sync.Mutex
	days map[string]*DayStat // keyed "2006-01-02", UTC

	now func() time.Time // test hook
}

func NewFilterStats() *FilterStats {
	return &FilterStats{
		days: make(map[string]*DayStat),
		now:  time.Now,
	}
}

// Add records the outcome of one filter pass: processed records seen,
// included records kept.
func (fs *FilterStats) Add(processed, included int) {
	if processed == 0 {
		return
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	day := fs.now().UTC().Format("2006-01-02")
	st := fs.days[day]
	if st == nil {
		st = &DayStat{}
		fs.days[day] = st
	}
	st.Processed += int64(processed)
	st.Included += int64(included)
	st.Excluded += int64(processed - included)

	fs.prune()
}

// prune drops buckets older than the window. Caller holds the lock.
// ISO day strings compare correctly as strings.
func (fs *FilterStats) prune() {
	cutoff := fs.now().UTC().AddDate(0, 0, -(statsWindowDays - 1)).Format("2006-01-02")
	for day := range fs.days {
		if day < cutoff {
			delete(fs.days, day)
		}
	}
}

// Snapshot returns a copy of the current window keyed by day.
func (fs *FilterStats) Snapshot() map[string]DayStat {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	out := make(map[string]DayStat, len(fs.days))
	for day, st := range fs.days {
		out[day] = *st
	}
	return out
}

// Totals sums the whole window into a single DayStat.
func (fs *FilterStats) Totals() DayStat {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	var total DayStat
	for _, st := range fs.days {
		total.Processed += st.Processed
		total.Included += st.Included
		total.Excluded += st.Excluded
	}
	return total
}

package pipeline

import (
	"testing"
	"time"
)

func TestFilterStats_Accumulates(t *testing.T) {
	fs := NewFilterStats()
	fs.Add(10, 7)
	fs.Add(5, 5)

	totals := fs.Totals()
	if totals.Processed != 15 || totals.Included != 12 || totals.Excluded != 3 {
		t.Errorf("totals = %+v, want processed 15 included 12 excluded 3", totals)
	}

	snap := fs.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("snapshot days = %d, want 1", len(snap))
	}
}

func TestFilterStats_ZeroProcessedIgnored(t *testing.T) {
	fs := NewFilterStats()
	fs.Add(0, 0)
	if len(fs.Snapshot()) != 0 {
		t.Error("zero-record pass should not create a bucket")
	}
}

func TestFilterStats_PrunesOldDays(t *testing.T) {
	fs := NewFilterStats()

	base := time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)
	clock := base.AddDate(0, 0, -10)
	fs.now = func() time.Time { return clock }

	// One bucket per day for 11 days, ending today.
	for i := 0; i <= 10; i++ {
		fs.Add(1, 1)
		clock = clock.AddDate(0, 0, 1)
	}

	// The last Add ran with "today", pruning anything older than the
	// 7-day window.
	snap := fs.Snapshot()
	if len(snap) != statsWindowDays {
		t.Fatalf("snapshot days = %d, want %d", len(snap), statsWindowDays)
	}
	if _, ok := snap["2026-08-24"]; !ok {
		t.Error("today's bucket missing")
	}
	if _, ok := snap["2026-08-18"]; !ok {
		t.Error("window start (today-6) missing")
	}
	if _, ok := snap["2026-08-17"]; ok {
		t.Error("today-7 should have been pruned")
	}
}

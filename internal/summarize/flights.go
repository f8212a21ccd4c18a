package summarize

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/vatsim-engine/internal/database"
	"github.com/snarg/vatsim-engine/internal/metrics"
)

// Fallbacks when the pass options leave these unset.
const (
	defaultBatchLimit = 500
	defaultWorkers    = 4
)

// SummaryPublisher receives an event for each summary row a pass
// writes. Implemented by mqttclient.Client.
type SummaryPublisher interface {
	PublishSummary(kind string, payload []byte)
}

// FlightStore is the slice of the database layer the flight pass
// drives. Implemented by database.DB.
type FlightStore interface {
	CompletedFlightCandidates(ctx context.Context, cutoff time.Time, limit int) ([]database.FlightCandidate, error)
	FinalizeFlight(ctx context.Context, cand database.FlightCandidate, summary *database.FlightSummaryRow, deleteBefore time.Time) (database.FinalizeResult, error)
	PruneExpiredFlights(ctx context.Context, cutoff time.Time) (int64, error)
}

// FlightPassOptions configures the flight summarization pass.
type FlightPassOptions struct {
	DB            FlightStore
	Detector      *Detector
	CompletionAge time.Duration // silent this long counts as complete
	Retention     time.Duration // live rows older than this are swept
	BatchLimit    int           // candidates per pass
	Workers       int           // sessions finalized concurrently
	Publisher     SummaryPublisher
	Log           zerolog.Logger
}

// FlightPass summarizes, archives and prunes completed flights.
type FlightPass struct {
	db   FlightStore
	det  *Detector
	pub  SummaryPublisher
	opts FlightPassOptions
	log  zerolog.Logger
}

// NewFlightPass creates a flight summarization pass.
func NewFlightPass(opts FlightPassOptions) *FlightPass {
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = defaultBatchLimit
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	return &FlightPass{
		db:   opts.DB,
		det:  opts.Detector,
		pub:  opts.Publisher,
		opts: opts,
		log:  opts.Log.With().Str("component", "flight_summary").Logger(),
	}
}

// Run executes one pass: select candidates, finalize each in its own
// transaction across a bounded worker set, then sweep live rows past
// retention. Per-session failures are logged and skipped; only
// candidate selection errors abort the pass.
func (p *FlightPass) Run(ctx context.Context) error {
	started := time.Now()
	now := started.UTC()
	completedBefore := now.Add(-p.opts.CompletionAge)
	deleteBefore := now.Add(-p.opts.Retention)

	cands, err := p.db.CompletedFlightCandidates(ctx, completedBefore, p.opts.BatchLimit)
	if err != nil {
		return fmt.Errorf("select candidates: %w", err)
	}

	var summarized, archived, skipped, failed atomic.Int64

	workers := p.opts.Workers
	if workers > len(cands) {
		workers = len(cands)
	}
	jobs := make(chan database.FlightCandidate)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cand := range jobs {
				res, err := p.finalize(ctx, cand, deleteBefore)
				if err != nil {
					failed.Add(1)
					metrics.SummariesTotal.WithLabelValues("flight", "error").Inc()
					p.log.Error().Err(err).
						Str("callsign", cand.Callsign).
						Time("logon_time", cand.LogonTime).
						Msg("flight summarization failed")
					continue
				}
				if res.Skipped {
					skipped.Add(1)
					metrics.SummariesTotal.WithLabelValues("flight", "skipped").Inc()
					continue
				}
				if res.SummaryInserted {
					summarized.Add(1)
					metrics.SummariesTotal.WithLabelValues("flight", "ok").Inc()
				}
				if res.Archived {
					archived.Add(1)
					metrics.ArchivedRowsTotal.WithLabelValues("flight").Inc()
				}
			}
		}()
	}

feed:
	for _, cand := range cands {
		select {
		case jobs <- cand:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	pruned, err := p.db.PruneExpiredFlights(ctx, deleteBefore)
	if err != nil {
		p.log.Warn().Err(err).Msg("retention sweep failed")
	} else if pruned > 0 {
		metrics.PrunedRowsTotal.WithLabelValues("flights").Add(float64(pruned))
	}

	p.log.Info().
		Int("candidates", len(cands)).
		Int64("summarized", summarized.Load()).
		Int64("archived", archived.Load()).
		Int64("skipped", skipped.Load()).
		Int64("failed", failed.Load()).
		Int64("pruned", pruned).
		Int64("elapsed_ms", time.Since(started).Milliseconds()).
		Msg("flight pass complete")
	return nil
}

// finalize assembles one flight's summary and runs the
// summary/archive/delete transaction. Flights without a filed plan age
// out and archive on the same cadence but never produce a summary row.
func (p *FlightPass) finalize(ctx context.Context, cand database.FlightCandidate, deleteBefore time.Time) (database.FinalizeResult, error) {
	var summary *database.FlightSummaryRow

	if cand.Departure != "" && cand.Arrival != "" {
		interactions, err := p.det.ControllersForFlight(ctx, cand.Callsign, cand.LogonTime, cand.LastUpdated)
		if err != nil {
			return database.FinalizeResult{}, fmt.Errorf("detect interactions: %w", err)
		}
		if interactions == nil {
			interactions = []ControllerInteraction{}
		}
		doc, err := json.Marshal(interactions)
		if err != nil {
			return database.FinalizeResult{}, fmt.Errorf("marshal interactions: %w", err)
		}

		spans := make([]interval, len(interactions))
		for i, it := range interactions {
			spans[i] = interval{start: it.FirstSeen, end: it.LastSeen}
		}

		summary = &database.FlightSummaryRow{
			Callsign:                 cand.Callsign,
			LogonTime:                cand.LogonTime,
			CID:                      cand.CID,
			AircraftType:             cand.AircraftType,
			Departure:                cand.Departure,
			Arrival:                  cand.Arrival,
			Route:                    cand.Route,
			CompletionTime:           cand.LastUpdated,
			SessionDurationMinutes:   int(cand.LastUpdated.Sub(cand.LogonTime).Minutes()),
			TotalUpdates:             cand.UpdatesCount,
			ControllerCallsigns:      doc,
			ControllerTimePercentage: coveragePercent(spans, cand.LogonTime, cand.LastUpdated),
		}
	}

	res, err := p.db.FinalizeFlight(ctx, cand, summary, deleteBefore)
	if err != nil {
		return res, err
	}
	if res.SummaryInserted && p.pub != nil {
		payload, _ := json.Marshal(summary)
		p.pub.PublishSummary("flight", payload)
	}
	return res, nil
}

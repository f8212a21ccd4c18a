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

// ControllerStore is the slice of the database layer the controller
// pass drives. Implemented by database.DB.
type ControllerStore interface {
	CompletedControllerCandidates(ctx context.Context, cutoff time.Time, limit int) ([]database.ControllerCandidate, error)
	FinalizeController(ctx context.Context, cand database.ControllerCandidate, summary *database.ControllerSummaryRow, deleteBefore time.Time) (database.FinalizeResult, error)
	PruneExpiredControllers(ctx context.Context, cutoff time.Time) (int64, error)
}

// ControllerPassOptions configures the controller summarization pass.
type ControllerPassOptions struct {
	DB            ControllerStore
	Detector      *Detector
	CompletionAge time.Duration
	Retention     time.Duration
	BatchLimit    int
	Workers       int
	Publisher     SummaryPublisher
	Log           zerolog.Logger
}

// ControllerPass summarizes, archives and prunes completed controller
// sessions. It mirrors FlightPass with the controller thresholds and
// the aircraft interaction array in place of the controller one.
type ControllerPass struct {
	db   ControllerStore
	det  *Detector
	pub  SummaryPublisher
	opts ControllerPassOptions
	log  zerolog.Logger
}

// NewControllerPass creates a controller summarization pass.
func NewControllerPass(opts ControllerPassOptions) *ControllerPass {
	if opts.BatchLimit <= 0 {
		opts.BatchLimit = defaultBatchLimit
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	return &ControllerPass{
		db:   opts.DB,
		det:  opts.Detector,
		pub:  opts.Publisher,
		opts: opts,
		log:  opts.Log.With().Str("component", "controller_summary").Logger(),
	}
}

// Run executes one pass. Per-session failures are logged and skipped;
// only candidate selection errors abort the pass.
func (p *ControllerPass) Run(ctx context.Context) error {
	started := time.Now()
	now := started.UTC()
	completedBefore := now.Add(-p.opts.CompletionAge)
	deleteBefore := now.Add(-p.opts.Retention)

	cands, err := p.db.CompletedControllerCandidates(ctx, completedBefore, p.opts.BatchLimit)
	if err != nil {
		return fmt.Errorf("select candidates: %w", err)
	}

	var summarized, archived, skipped, failed atomic.Int64

	workers := p.opts.Workers
	if workers > len(cands) {
		workers = len(cands)
	}
	jobs := make(chan database.ControllerCandidate)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cand := range jobs {
				res, err := p.finalize(ctx, cand, deleteBefore)
				if err != nil {
					failed.Add(1)
					metrics.SummariesTotal.WithLabelValues("controller", "error").Inc()
					p.log.Error().Err(err).
						Str("callsign", cand.Callsign).
						Time("logon_time", cand.LogonTime).
						Msg("controller summarization failed")
					continue
				}
				if res.Skipped {
					skipped.Add(1)
					metrics.SummariesTotal.WithLabelValues("controller", "skipped").Inc()
					continue
				}
				if res.SummaryInserted {
					summarized.Add(1)
					metrics.SummariesTotal.WithLabelValues("controller", "ok").Inc()
				}
				if res.Archived {
					archived.Add(1)
					metrics.ArchivedRowsTotal.WithLabelValues("controller").Inc()
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

	pruned, err := p.db.PruneExpiredControllers(ctx, deleteBefore)
	if err != nil {
		p.log.Warn().Err(err).Msg("retention sweep failed")
	} else if pruned > 0 {
		metrics.PrunedRowsTotal.WithLabelValues("controllers").Add(float64(pruned))
	}

	p.log.Info().
		Int("candidates", len(cands)).
		Int64("summarized", summarized.Load()).
		Int64("archived", archived.Load()).
		Int64("skipped", skipped.Load()).
		Int64("failed", failed.Load()).
		Int64("pruned", pruned).
		Int64("elapsed_ms", time.Since(started).Milliseconds()).
		Msg("controller pass complete")
	return nil
}

// finalize assembles one controller's summary and runs the
// summary/archive/delete transaction. Every completed session gets a
// summary row; observers just keep empty interaction arrays because
// the detector never considers them.
func (p *ControllerPass) finalize(ctx context.Context, cand database.ControllerCandidate, deleteBefore time.Time) (database.FinalizeResult, error) {
	var (
		aircraft []AircraftInteraction
		freqs    []string
	)
	if cand.Facility != facilityObserver {
		var err error
		aircraft, freqs, err = p.det.AircraftForController(ctx, cand.Callsign, cand.LogonTime, cand.LastUpdated)
		if err != nil {
			return database.FinalizeResult{}, fmt.Errorf("detect interactions: %w", err)
		}
	}
	if aircraft == nil {
		aircraft = []AircraftInteraction{}
	}
	if freqs == nil {
		freqs = []string{}
	}

	aircraftDoc, err := json.Marshal(aircraft)
	if err != nil {
		return database.FinalizeResult{}, fmt.Errorf("marshal aircraft: %w", err)
	}
	freqDoc, err := json.Marshal(freqs)
	if err != nil {
		return database.FinalizeResult{}, fmt.Errorf("marshal frequencies: %w", err)
	}

	spans := make([]interval, len(aircraft))
	for i, it := range aircraft {
		spans[i] = interval{start: it.FirstSeen, end: it.LastSeen}
	}

	summary := &database.ControllerSummaryRow{
		Callsign:               cand.Callsign,
		SessionStartTime:       cand.LogonTime,
		SessionEndTime:         cand.LastUpdated,
		SessionDurationMinutes: int(cand.LastUpdated.Sub(cand.LogonTime).Minutes()),
		CID:                    cand.CID,
		Name:                   cand.Name,
		Rating:                 cand.Rating,
		Facility:               cand.Facility,
		Server:                 cand.Server,
		TotalAircraftHandled:   len(aircraft),
		PeakAircraftCount:      peakConcurrent(spans),
		FrequenciesUsed:        freqDoc,
		AircraftDetails:        aircraftDoc,
	}
	res, err := p.db.FinalizeController(ctx, cand, summary, deleteBefore)
	if err != nil {
		return res, err
	}
	if res.SummaryInserted && p.pub != nil {
		payload, _ := json.Marshal(summary)
		p.pub.PublishSummary("controller", payload)
	}
	return res, nil
}

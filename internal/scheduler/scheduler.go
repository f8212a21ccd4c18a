package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/vatsim-engine/internal/metrics"
)

// DefaultGrace is how long in-flight ticks get to finish after a
// shutdown signal before their context is canceled.
const DefaultGrace = 30 * time.Second

// Track is one periodic job: a name for logs and metrics, a cadence,
// and the tick body.
type Track struct {
	Name     string
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler drives independent periodic tracks. Each track runs once
// at startup and then on its cadence. A track is serial with itself: a
// tick that would overlap the previous one is skipped and counted.
// Tracks run concurrently with each other, and one track's failure
// never stops another.
type Scheduler struct {
	tracks []Track
	grace  time.Duration
	log    zerolog.Logger
	wg     sync.WaitGroup
}

// New creates a scheduler over the given tracks. grace <= 0 selects
// DefaultGrace.
func New(grace time.Duration, log zerolog.Logger, tracks ...Track) *Scheduler {
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Scheduler{
		tracks: tracks,
		grace:  grace,
		log:    log.With().Str("component", "scheduler").Logger(),
	}
}

// Run starts every track and blocks until ctx is canceled, then waits
// up to the grace period for in-flight ticks to drain. Ticks still
// running when the grace expires have their context canceled and are
// waited out; I/O inside them fails fast at that point.
func (s *Scheduler) Run(ctx context.Context) {
	// Tick bodies get a context that outlives ctx by the grace period
	// so a shutdown signal does not abort work mid-transaction.
	tickCtx, cancelTicks := context.WithCancel(context.Background())
	defer cancelTicks()

	for _, t := range s.tracks {
		s.wg.Add(1)
		go func(t Track) {
			defer s.wg.Done()
			s.runTrack(ctx, tickCtx, t)
		}(t)
	}
	s.log.Info().Int("tracks", len(s.tracks)).Msg("scheduler started")

	<-ctx.Done()
	s.log.Info().Dur("grace", s.grace).Msg("shutdown signal received, draining in-flight ticks")

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(s.grace)
	defer timer.Stop()
	select {
	case <-done:
		s.log.Info().Msg("scheduler stopped")
	case <-timer.C:
		cancelTicks()
		<-done
		s.log.Warn().Msg("scheduler stopped after grace period expired")
	}
}

// runTrack fires t on its cadence until ctx is canceled. The tick body
// runs on tickCtx in its own goroutine, guarded by a busy flag so an
// overlong tick causes later ones to be skipped rather than queued.
func (s *Scheduler) runTrack(ctx, tickCtx context.Context, t Track) {
	if t.Interval <= 0 {
		t.Interval = time.Minute
	}
	log := s.log.With().Str("track", t.Name).Logger()

	var busy atomic.Bool
	tick := func() {
		if !busy.CompareAndSwap(false, true) {
			metrics.TicksSkippedTotal.WithLabelValues(t.Name).Inc()
			log.Warn().Msg("previous tick still running, skipping")
			return
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer busy.Store(false)
			started := time.Now()
			err := t.Run(tickCtx)
			metrics.TickDuration.WithLabelValues(t.Name).Observe(time.Since(started).Seconds())
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("tick failed")
			}
		}()
	}

	tick()

	ticker := time.NewTicker(t.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tick()
		case <-ctx.Done():
			return
		}
	}
}

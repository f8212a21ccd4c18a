package ingest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/vatsim-engine/internal/database"
	"github.com/snarg/vatsim-engine/internal/metrics"
	"github.com/snarg/vatsim-engine/internal/pipeline"
	"github.com/snarg/vatsim-engine/internal/vatsim"
)

// Poller runs one ingest pass per scheduler tick: fetch the two feeds,
// run the filter pipeline, upsert live flight/controller rows, and
// append the radio observations. Ticks never overlap (the scheduler
// serializes each track), so per-tick state needs no locking; only the
// fields read by the metrics collector are atomic.
type Poller struct {
	db      *database.DB
	client  *vatsim.Client
	filters *pipeline.Filters
	log     zerolog.Logger

	txBatcher *Batcher[database.TransceiverRow]

	// update_timestamp of the previous snapshot, for duplicate detection.
	lastSnapshot time.Time

	// Cumulative batcher counts at the end of the previous tick.
	prevFlushed int64
	prevDropped int64

	lastPollUnix atomic.Int64
	pollCount    atomic.Int64
}

type PollerOptions struct {
	DB        *database.DB
	Client    *vatsim.Client
	Filters   *pipeline.Filters
	BatchSize int
	Log       zerolog.Logger
}

func NewPoller(opts PollerOptions) *Poller {
	log := opts.Log.With().Str("component", "ingest").Logger()
	p := &Poller{
		db:      opts.DB,
		client:  opts.Client,
		filters: opts.Filters,
		log:     log,
	}
	p.txBatcher = NewBatcher(opts.BatchSize, log, p.flushTransceivers)
	return p
}

// Start begins periodic filter-stats logging. The poll work itself is
// driven by the scheduler calling Tick.
func (p *Poller) Start(ctx context.Context) {
	go p.statsLoop(ctx)
}

// Tick runs one complete ingest pass. An error means the whole tick
// produced nothing (the fetch failed); per-record problems are logged,
// counted, and never fail the tick.
func (p *Poller) Tick(ctx context.Context) error {
	start := time.Now()

	snap, err := p.client.FetchSnapshot(ctx)
	if err != nil {
		metrics.PollsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("fetch snapshot: %w", err)
	}
	stations, err := p.client.FetchTransceivers(ctx)
	if err != nil {
		metrics.PollsTotal.WithLabelValues("failed").Inc()
		return fmt.Errorf("fetch transceivers: %w", err)
	}

	if ts := snap.General.UpdateTimestamp; !ts.IsZero() && ts.Equal(p.lastSnapshot) {
		// Processed anyway: the upserts are idempotent and last_updated
		// must keep advancing for the completion thresholds.
		metrics.DuplicateSnapshotsTotal.Inc()
		p.log.Debug().Time("update_timestamp", ts).Msg("upstream snapshot unchanged since last poll")
	}
	p.lastSnapshot = snap.General.UpdateTimestamp

	now := time.Now().UTC()

	pilots := p.filters.FilterFlights(snap.Pilots)
	ctrls := p.filters.FilterControllers(snap.Controllers)
	stations = p.filters.FilterTransceivers(stations)

	flightIDs := p.upsertFlights(ctx, pilots, now)
	controllerIDs := p.upsertControllers(ctx, ctrls, now)

	var radioRows, unknownStations int
	for _, st := range stations {
		var (
			entityType string
			entityID   int64
		)
		switch {
		case flightIDs[st.Callsign] != 0:
			entityType, entityID = database.EntityFlight, flightIDs[st.Callsign]
		case controllerIDs[st.Callsign] != 0:
			entityType, entityID = database.EntityATC, controllerIDs[st.Callsign]
		default:
			// Station absent from both lists: usually an ATIS or a
			// client that disconnected between the two feed fetches.
			unknownStations++
			metrics.RecordsDroppedTotal.WithLabelValues("transceiver", "unknown_station").Inc()
			continue
		}
		for _, row := range transceiverRows(st, entityType, entityID, now) {
			p.txBatcher.Add(row)
			radioRows++
		}
	}
	p.txBatcher.Flush()

	flushed, dropped := p.txBatcher.Counts()
	tickFlushed := flushed - p.prevFlushed
	tickDropped := dropped - p.prevDropped
	p.prevFlushed, p.prevDropped = flushed, dropped
	metrics.TransceiverRowsTotal.WithLabelValues("inserted").Add(float64(tickFlushed))
	metrics.TransceiverRowsTotal.WithLabelValues("dropped").Add(float64(tickDropped))

	metrics.PollsTotal.WithLabelValues("ok").Inc()
	p.lastPollUnix.Store(now.Unix())
	p.pollCount.Add(1)

	p.log.Info().
		Int("pilots", len(snap.Pilots)).
		Int("pilots_kept", len(pilots)).
		Int("flights_upserted", len(flightIDs)).
		Int("controllers", len(snap.Controllers)).
		Int("controllers_upserted", len(controllerIDs)).
		Int("stations", len(stations)).
		Int("stations_unmatched", unknownStations).
		Int("radio_rows", radioRows).
		Int64("radio_rows_dropped", tickDropped).
		Dur("elapsed_ms", time.Since(start)).
		Msg("poll complete")
	return nil
}

// upsertFlights writes the filtered pilots in source order and returns
// callsign -> row id for transceiver attribution.
func (p *Poller) upsertFlights(ctx context.Context, pilots []vatsim.Pilot, now time.Time) map[string]int64 {
	ids := make(map[string]int64, len(pilots))
	for _, pl := range pilots {
		if pl.Callsign == "" || pl.LogonTime.IsZero() {
			metrics.RecordsDroppedTotal.WithLabelValues("flight", "missing_fields").Inc()
			continue
		}
		row := flightRowFromPilot(pl, now)
		id, err := p.db.UpsertFlight(ctx, row)
		if err != nil {
			// One retry for transient connection faults, then drop.
			if id, err = p.db.UpsertFlight(ctx, row); err != nil {
				metrics.RecordsDroppedTotal.WithLabelValues("flight", "db_error").Inc()
				p.log.Error().Err(err).Str("callsign", pl.Callsign).Msg("flight upsert failed")
				continue
			}
		}
		ids[pl.Callsign] = id
	}
	metrics.RecordsUpsertedTotal.WithLabelValues("flight").Add(float64(len(ids)))
	return ids
}

// upsertControllers mirrors upsertFlights for the controller stream.
func (p *Poller) upsertControllers(ctx context.Context, ctrls []vatsim.Controller, now time.Time) map[string]int64 {
	ids := make(map[string]int64, len(ctrls))
	for _, c := range ctrls {
		if c.Callsign == "" || c.LogonTime.IsZero() {
			metrics.RecordsDroppedTotal.WithLabelValues("controller", "missing_fields").Inc()
			continue
		}
		row, err := controllerRowFromWire(c, now)
		if err != nil {
			metrics.RecordsDroppedTotal.WithLabelValues("controller", "parse_error").Inc()
			p.log.Warn().Err(err).Str("callsign", c.Callsign).Str("frequency", c.Frequency).
				Msg("controller record dropped")
			continue
		}
		id, err := p.db.UpsertController(ctx, row)
		if err != nil {
			if id, err = p.db.UpsertController(ctx, row); err != nil {
				metrics.RecordsDroppedTotal.WithLabelValues("controller", "db_error").Inc()
				p.log.Error().Err(err).Str("callsign", c.Callsign).Msg("controller upsert failed")
				continue
			}
		}
		ids[c.Callsign] = id
	}
	metrics.RecordsUpsertedTotal.WithLabelValues("controller").Add(float64(len(ids)))
	return ids
}

func (p *Poller) flushTransceivers(rows []database.TransceiverRow) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	n, err := p.db.InsertTransceivers(ctx, rows)
	if err != nil {
		return err
	}
	p.log.Debug().Int64("inserted", n).Msg("flushed radio observations")
	return nil
}

// statsLoop logs the rolling filter windows every ten minutes.
func (p *Poller) statsLoop(ctx context.Context) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			evt := p.log.Info().Int64("polls", p.pollCount.Load())
			for name, total := range p.filterTotals() {
				evt = evt.Dict(name, zerolog.Dict().
					Int64("processed", total.Processed).
					Int64("included", total.Included).
					Int64("excluded", total.Excluded))
			}
			evt.Msg("filter stats")
		}
	}
}

func (p *Poller) filterTotals() map[string]pipeline.DayStat {
	return map[string]pipeline.DayStat{
		"boundary":  p.filters.BoundaryStats.Totals(),
		"callsign":  p.filters.CallsignStats.Totals(),
		"observer":  p.filters.ObserverStats.Totals(),
		"frequency": p.filters.FrequencyStats.Totals(),
	}
}

// LastPollUnix reports the completion time of the most recent
// successful tick. Implements metrics.PollerStats.
func (p *Poller) LastPollUnix() int64 {
	return p.lastPollUnix.Load()
}

// FilterTotals reports records excluded per filter over the rolling
// window. Implements metrics.PollerStats.
func (p *Poller) FilterTotals() map[string]int64 {
	out := make(map[string]int64, 4)
	for name, total := range p.filterTotals() {
		out[name] = total.Excluded
	}
	return out
}

package storage

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/snarg/vatsim-engine/internal/database"
	"github.com/snarg/vatsim-engine/internal/metrics"
)

// transceiverStore is the slice of the database layer the sweeper
// drives. Implemented by database.DB.
type transceiverStore interface {
	ExportTransceivers(ctx context.Context, cutoff time.Time, fn func(*database.TransceiverRow) error) (int64, error)
	PruneTransceivers(ctx context.Context, cutoff time.Time) (int64, error)
}

// objectPutter uploads one archive object. Implemented by S3Export.
type objectPutter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// Sweeper enforces the transceiver retention window. When an export
// target is configured, expiring rows are written to object storage as
// gzipped JSONL before deletion; an export failure leaves the rows in
// place so the next sweep retries them.
type Sweeper struct {
	db        transceiverStore
	retention time.Duration
	export    objectPutter // nil disables export
	log       zerolog.Logger
}

func NewSweeper(db transceiverStore, retention time.Duration, export *S3Export, log zerolog.Logger) *Sweeper {
	s := &Sweeper{
		db:        db,
		retention: retention,
		log:       log.With().Str("component", "transceiver_sweep").Logger(),
	}
	if export != nil {
		s.export = export
	}
	return s
}

// Sweep runs one retention pass.
func (s *Sweeper) Sweep(ctx context.Context) error {
	cutoff := time.Now().UTC().Add(-s.retention)

	if s.export != nil {
		if err := s.exportBefore(ctx, cutoff); err != nil {
			return fmt.Errorf("export expiring transceivers: %w", err)
		}
	}

	pruned, err := s.db.PruneTransceivers(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("prune transceivers: %w", err)
	}
	if pruned > 0 {
		metrics.PrunedRowsTotal.WithLabelValues("transceivers").Add(float64(pruned))
		s.log.Info().
			Int64("pruned", pruned).
			Time("cutoff", cutoff).
			Msg("transceiver sweep complete")
	}
	return nil
}

func (s *Sweeper) exportBefore(ctx context.Context, cutoff time.Time) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)

	n, err := s.db.ExportTransceivers(ctx, cutoff, func(r *database.TransceiverRow) error {
		return enc.Encode(r)
	})
	if err != nil {
		return err
	}
	if err := gz.Close(); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}

	key := exportKey(cutoff)
	if err := s.export.Put(ctx, key, buf.Bytes(), "application/gzip"); err != nil {
		return err
	}
	s.log.Info().Int64("rows", n).Str("key", key).Msg("expiring transceivers exported")
	return nil
}

// exportKey names archive objects by the data date they cover, so a
// bucket listing groups files chronologically.
func exportKey(cutoff time.Time) string {
	return fmt.Sprintf("%s/transceivers-%s.jsonl.gz",
		cutoff.Format("2006/01/02"), cutoff.Format("20060102T150405Z"))
}

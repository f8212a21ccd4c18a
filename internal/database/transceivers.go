package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// Transceiver entity kinds. A radio either belongs to a pilot session
// or an ATC session; the kind partitions the table for the detector.
const (
	EntityFlight = "flight"
	EntityATC    = "atc"
)

// TransceiverRow is one append-only radio observation.
type TransceiverRow struct {
	Callsign      string    `json:"callsign"`
	TransceiverID int       `json:"transceiver_id"`
	FrequencyHz   int64     `json:"frequency_hz"`
	Lat           float64   `json:"lat"`
	Lon           float64   `json:"lon"`
	HeightMSL     float64   `json:"height_msl"`
	HeightAGL     float64   `json:"height_agl"`
	EntityType    string    `json:"entity_type"`
	EntityID      int64     `json:"entity_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// InsertTransceivers batch-inserts radio observations using CopyFrom.
func (db *DB) InsertTransceivers(ctx context.Context, rows []TransceiverRow) (int64, error) {
	copyRows := make([][]any, len(rows))
	for i, r := range rows {
		copyRows[i] = []any{
			r.Callsign, r.TransceiverID, r.FrequencyHz,
			r.Lat, r.Lon, r.HeightMSL, r.HeightAGL,
			r.EntityType, r.EntityID, r.Timestamp,
		}
	}

	return db.Pool.CopyFrom(ctx,
		pgx.Identifier{"transceivers"},
		[]string{
			"callsign", "transceiver_id", "frequency",
			"position_lat", "position_lon", "height_msl", "height_agl",
			"entity_type", "entity_id", "timestamp",
		},
		pgx.CopyFromRows(copyRows),
	)
}

// ExportTransceivers streams rows older than cutoff to fn in timestamp
// order and reports how many were visited. A non-nil error from fn
// stops the scan.
func (db *DB) ExportTransceivers(ctx context.Context, cutoff time.Time, fn func(*TransceiverRow) error) (int64, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT callsign, transceiver_id, frequency,
		       COALESCE(position_lat, 0), COALESCE(position_lon, 0),
		       COALESCE(height_msl, 0), COALESCE(height_agl, 0),
		       entity_type, COALESCE(entity_id, 0), "timestamp"
		FROM transceivers
		WHERE "timestamp" < $1
		ORDER BY "timestamp"
	`, cutoff)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var n int64
	for rows.Next() {
		var r TransceiverRow
		if err := rows.Scan(
			&r.Callsign, &r.TransceiverID, &r.FrequencyHz,
			&r.Lat, &r.Lon, &r.HeightMSL, &r.HeightAGL,
			&r.EntityType, &r.EntityID, &r.Timestamp,
		); err != nil {
			return n, err
		}
		if err := fn(&r); err != nil {
			return n, err
		}
		n++
	}
	return n, rows.Err()
}

// PruneTransceivers deletes radio observations older than cutoff.
func (db *DB) PruneTransceivers(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `DELETE FROM transceivers WHERE "timestamp" < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

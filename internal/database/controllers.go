package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ControllerRow is one observation of an ATC session, keyed on
// (callsign, logon_time). FrequencyHz is the primary frequency already
// normalized from the upstream MHz string.
type ControllerRow struct {
	Callsign    string
	CID         int
	Name        string
	Rating      int
	Facility    int
	FrequencyHz int64
	Server      string
	VisualRange int
	TextAtis    []string
	LogonTime   time.Time
	LastUpdated time.Time
}

// UpsertController inserts or updates the live row for a controller
// session and returns its id.
func (db *DB) UpsertController(ctx context.Context, c *ControllerRow) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO controllers (
			callsign, cid, name, rating, facility, frequency, server,
			visual_range, text_atis, logon_time, last_updated
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (callsign, logon_time) DO UPDATE SET
			cid           = EXCLUDED.cid,
			name          = COALESCE(NULLIF(EXCLUDED.name, ''), controllers.name),
			rating        = EXCLUDED.rating,
			facility      = EXCLUDED.facility,
			frequency     = EXCLUDED.frequency,
			server        = EXCLUDED.server,
			visual_range  = EXCLUDED.visual_range,
			text_atis     = EXCLUDED.text_atis,
			last_updated  = EXCLUDED.last_updated,
			updates_count = controllers.updates_count + 1,
			updated_at    = now()
		RETURNING id
	`,
		c.Callsign, c.CID, c.Name, c.Rating, c.Facility, c.FrequencyHz, c.Server,
		c.VisualRange, c.TextAtis, c.LogonTime, c.LastUpdated,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert controller %s: %w", c.Callsign, err)
	}
	return id, nil
}

// ControllerCandidate is a live controller row selected for
// summarization.
type ControllerCandidate struct {
	ID           int64
	Callsign     string
	CID          int
	Name         string
	Rating       int
	Facility     int
	FrequencyHz  int64
	Server       string
	LogonTime    time.Time
	LastUpdated  time.Time
	UpdatesCount int
}

// CompletedControllerCandidates returns controllers not seen since
// cutoff that have neither a summary nor an archive row yet, oldest
// first.
func (db *DB) CompletedControllerCandidates(ctx context.Context, cutoff time.Time, limit int) ([]ControllerCandidate, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT c.id, c.callsign, COALESCE(c.cid, 0), COALESCE(c.name, ''),
			COALESCE(c.rating, 0), c.facility, COALESCE(c.frequency, 0),
			COALESCE(c.server, ''), c.logon_time, c.last_updated, c.updates_count
		FROM controllers c
		WHERE c.last_updated < $1
		  AND NOT EXISTS (
			SELECT 1 FROM controller_summaries s
			WHERE s.callsign = c.callsign AND s.session_start_time = c.logon_time)
		  AND NOT EXISTS (
			SELECT 1 FROM controllers_archive a
			WHERE a.callsign = c.callsign AND a.logon_time = c.logon_time)
		ORDER BY c.last_updated
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ControllerCandidate
	for rows.Next() {
		var c ControllerCandidate
		if err := rows.Scan(
			&c.ID, &c.Callsign, &c.CID, &c.Name,
			&c.Rating, &c.Facility, &c.FrequencyHz,
			&c.Server, &c.LogonTime, &c.LastUpdated, &c.UpdatesCount,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FinalizeController runs the summary/archive/delete steps for one
// controller session in a single transaction, with the same
// lock-and-recheck and conditional-delete behavior as FinalizeFlight.
func (db *DB) FinalizeController(ctx context.Context, cand ControllerCandidate, summary *ControllerSummaryRow, deleteBefore time.Time) (FinalizeResult, error) {
	var res FinalizeResult

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var lastUpdated time.Time
	err = tx.QueryRow(ctx, `
		SELECT last_updated FROM controllers WHERE id = $1 FOR UPDATE
	`, cand.ID).Scan(&lastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		res.Skipped = true
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("lock controller row: %w", err)
	}
	if !lastUpdated.Equal(cand.LastUpdated) {
		res.Skipped = true
		return res, nil
	}

	if summary != nil {
		inserted, err := insertControllerSummaryTx(ctx, tx, summary)
		if err != nil {
			return res, fmt.Errorf("insert controller summary: %w", err)
		}
		res.SummaryInserted = inserted
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO controllers_archive (
			callsign, cid, name, rating, facility, frequency, server,
			visual_range, text_atis, logon_time, last_updated,
			updates_count, created_at, updated_at
		)
		SELECT callsign, cid, name, rating, facility, frequency, server,
			visual_range, text_atis, logon_time, last_updated,
			updates_count, created_at, updated_at
		FROM controllers WHERE id = $1
		ON CONFLICT (callsign, logon_time) DO NOTHING
	`, cand.ID)
	if err != nil {
		return res, fmt.Errorf("archive controller: %w", err)
	}
	res.Archived = tag.RowsAffected() == 1

	if cand.LastUpdated.Before(deleteBefore) {
		if _, err := tx.Exec(ctx, `DELETE FROM controllers WHERE id = $1`, cand.ID); err != nil {
			return res, fmt.Errorf("delete controller: %w", err)
		}
		res.Deleted = true
	}

	if err := tx.Commit(ctx); err != nil {
		return FinalizeResult{}, fmt.Errorf("commit tx: %w", err)
	}
	return res, nil
}

// PruneExpiredControllers deletes live controller rows past the
// retention cutoff whose archive copy already exists.
func (db *DB) PruneExpiredControllers(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM controllers c
		WHERE c.last_updated < $1
		  AND EXISTS (
			SELECT 1 FROM controllers_archive a
			WHERE a.callsign = c.callsign AND a.logon_time = c.logon_time)
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

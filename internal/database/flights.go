package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// FlightRow is one observation of a pilot session, keyed on
// (callsign, logon_time). Latitude/Longitude are pointers because the
// upstream feed may omit a position entirely.
type FlightRow struct {
	Callsign       string
	CID            int
	Name           string
	Server         string
	AircraftType   string
	Departure      string
	Arrival        string
	Route          string
	CruiseTAS      string
	Altitude       int
	Heading        int
	Groundspeed    int
	Transponder    string
	Deptime        string
	Latitude       *float64
	Longitude      *float64
	LogonTime      time.Time
	LastUpdated    time.Time
	LastUpdatedAPI time.Time
}

// UpsertFlight inserts or updates the live row for a pilot session and
// returns its id. Flight-plan fields are sticky: a later observation
// without a plan never wipes one already stored. Position and status
// fields always track the latest observation.
func (db *DB) UpsertFlight(ctx context.Context, f *FlightRow) (int64, error) {
	var id int64
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO flights (
			callsign, cid, name, server, aircraft_type, departure, arrival,
			route, cruise_tas, altitude, heading, groundspeed, transponder,
			deptime, latitude, longitude, logon_time, last_updated, last_updated_api
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (callsign, logon_time) DO UPDATE SET
			cid              = EXCLUDED.cid,
			name             = COALESCE(NULLIF(EXCLUDED.name, ''), flights.name),
			server           = EXCLUDED.server,
			aircraft_type    = COALESCE(NULLIF(EXCLUDED.aircraft_type, ''), flights.aircraft_type),
			departure        = COALESCE(NULLIF(EXCLUDED.departure, ''), flights.departure),
			arrival          = COALESCE(NULLIF(EXCLUDED.arrival, ''), flights.arrival),
			route            = COALESCE(NULLIF(EXCLUDED.route, ''), flights.route),
			cruise_tas       = COALESCE(NULLIF(EXCLUDED.cruise_tas, ''), flights.cruise_tas),
			deptime          = COALESCE(NULLIF(EXCLUDED.deptime, ''), flights.deptime),
			altitude         = EXCLUDED.altitude,
			heading          = EXCLUDED.heading,
			groundspeed      = EXCLUDED.groundspeed,
			transponder      = EXCLUDED.transponder,
			latitude         = EXCLUDED.latitude,
			longitude        = EXCLUDED.longitude,
			last_updated     = EXCLUDED.last_updated,
			last_updated_api = EXCLUDED.last_updated_api,
			updates_count    = flights.updates_count + 1,
			updated_at       = now()
		RETURNING id
	`,
		f.Callsign, f.CID, f.Name, f.Server, f.AircraftType, f.Departure, f.Arrival,
		f.Route, f.CruiseTAS, f.Altitude, f.Heading, f.Groundspeed, f.Transponder,
		f.Deptime, f.Latitude, f.Longitude, f.LogonTime, f.LastUpdated, f.LastUpdatedAPI,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("upsert flight %s: %w", f.Callsign, err)
	}
	return id, nil
}

// FlightCandidate is a live flight row selected for summarization. It
// carries everything the summary needs so finalization does not have
// to read the row again.
type FlightCandidate struct {
	ID           int64
	Callsign     string
	CID          int
	AircraftType string
	Departure    string
	Arrival      string
	Route        string
	LogonTime    time.Time
	LastUpdated  time.Time
	UpdatesCount int
}

// CompletedFlightCandidates returns flights not seen since cutoff that
// have neither a summary nor an archive row yet, oldest first.
func (db *DB) CompletedFlightCandidates(ctx context.Context, cutoff time.Time, limit int) ([]FlightCandidate, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT f.id, f.callsign, COALESCE(f.cid, 0),
			COALESCE(f.aircraft_type, ''), COALESCE(f.departure, ''),
			COALESCE(f.arrival, ''), COALESCE(f.route, ''),
			f.logon_time, f.last_updated, f.updates_count
		FROM flights f
		WHERE f.last_updated < $1
		  AND NOT EXISTS (
			SELECT 1 FROM flight_summaries s
			WHERE s.callsign = f.callsign AND s.logon_time = f.logon_time)
		  AND NOT EXISTS (
			SELECT 1 FROM flights_archive a
			WHERE a.callsign = f.callsign AND a.logon_time = f.logon_time)
		ORDER BY f.last_updated
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []FlightCandidate
	for rows.Next() {
		var c FlightCandidate
		if err := rows.Scan(
			&c.ID, &c.Callsign, &c.CID,
			&c.AircraftType, &c.Departure, &c.Arrival, &c.Route,
			&c.LogonTime, &c.LastUpdated, &c.UpdatesCount,
		); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FinalizeResult reports what a finalize transaction actually did.
type FinalizeResult struct {
	SummaryInserted bool
	Archived        bool
	Deleted         bool
	Skipped         bool // a newer observation arrived, nothing committed
}

// FinalizeFlight runs the summary/archive/delete steps for one flight
// in a single transaction. summary may be nil for flights with an
// incomplete plan; those are archived without a summary row. The live
// row is deleted inside the transaction only when its last_updated is
// already past deleteBefore; otherwise the retention sweep removes it
// later. If the live row changed since the candidate was selected the
// whole transaction rolls back and Skipped is set.
func (db *DB) FinalizeFlight(ctx context.Context, cand FlightCandidate, summary *FlightSummaryRow, deleteBefore time.Time) (FinalizeResult, error) {
	var res FinalizeResult

	tx, err := db.Pool.Begin(ctx)
	if err != nil {
		return res, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the row and confirm it has not advanced since selection.
	var lastUpdated time.Time
	err = tx.QueryRow(ctx, `
		SELECT last_updated FROM flights WHERE id = $1 FOR UPDATE
	`, cand.ID).Scan(&lastUpdated)
	if errors.Is(err, pgx.ErrNoRows) {
		res.Skipped = true
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("lock flight row: %w", err)
	}
	if !lastUpdated.Equal(cand.LastUpdated) {
		res.Skipped = true
		return res, nil
	}

	if summary != nil {
		inserted, err := insertFlightSummaryTx(ctx, tx, summary)
		if err != nil {
			return res, fmt.Errorf("insert flight summary: %w", err)
		}
		res.SummaryInserted = inserted
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO flights_archive (
			callsign, cid, name, server, aircraft_type, departure, arrival,
			route, cruise_tas, altitude, heading, groundspeed, transponder,
			deptime, latitude, longitude, logon_time, last_updated,
			last_updated_api, updates_count, created_at, updated_at
		)
		SELECT callsign, cid, name, server, aircraft_type, departure, arrival,
			route, cruise_tas, altitude, heading, groundspeed, transponder,
			deptime, latitude, longitude, logon_time, last_updated,
			last_updated_api, updates_count, created_at, updated_at
		FROM flights WHERE id = $1
		ON CONFLICT (callsign, logon_time) DO NOTHING
	`, cand.ID)
	if err != nil {
		return res, fmt.Errorf("archive flight: %w", err)
	}
	res.Archived = tag.RowsAffected() == 1

	if cand.LastUpdated.Before(deleteBefore) {
		if _, err := tx.Exec(ctx, `DELETE FROM flights WHERE id = $1`, cand.ID); err != nil {
			return res, fmt.Errorf("delete flight: %w", err)
		}
		res.Deleted = true
	}

	if err := tx.Commit(ctx); err != nil {
		return FinalizeResult{}, fmt.Errorf("commit tx: %w", err)
	}
	return res, nil
}

// PruneExpiredFlights deletes live flight rows past the retention
// cutoff whose archive copy already exists. Rows without an archive
// copy are left for the summarization pass to handle first.
func (db *DB) PruneExpiredFlights(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := db.Pool.Exec(ctx, `
		DELETE FROM flights f
		WHERE f.last_updated < $1
		  AND EXISTS (
			SELECT 1 FROM flights_archive a
			WHERE a.callsign = f.callsign AND a.logon_time = f.logon_time)
	`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

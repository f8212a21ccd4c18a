package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// TransceiverPoint is one radio observation as consumed by the
// interaction detector: frequency, position, instant.
type TransceiverPoint struct {
	FrequencyHz int64
	Lat         float64
	Lon         float64
	Timestamp   time.Time
}

// CandidateController is a controller session whose interval overlaps
// a flight's session window. Observers never appear here.
type CandidateController struct {
	Callsign    string
	Facility    int
	LogonTime   time.Time
	LastUpdated time.Time
}

// CandidateControllers returns controller sessions overlapping
// [start, end], drawing from both the live and archive tables so a
// flight summarized late still sees controllers that have already been
// aged out. When a session exists in both tables the fresher copy wins.
func (db *DB) CandidateControllers(ctx context.Context, start, end time.Time) ([]CandidateController, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT DISTINCT ON (callsign, logon_time)
			callsign, facility, logon_time, last_updated
		FROM (
			SELECT callsign, facility, logon_time, last_updated
			FROM controllers
			WHERE logon_time <= $2 AND last_updated >= $1 AND facility > 0
			UNION ALL
			SELECT callsign, facility, logon_time, last_updated
			FROM controllers_archive
			WHERE logon_time <= $2 AND last_updated >= $1 AND facility > 0
		) c
		ORDER BY callsign, logon_time, last_updated DESC
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CandidateController
	for rows.Next() {
		var c CandidateController
		if err := rows.Scan(&c.Callsign, &c.Facility, &c.LogonTime, &c.LastUpdated); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FlightTransceivers returns one flight's radio observations inside
// the window, timestamp ascending.
func (db *DB) FlightTransceivers(ctx context.Context, callsign string, start, end time.Time) ([]TransceiverPoint, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT frequency, COALESCE(position_lat, 0), COALESCE(position_lon, 0), "timestamp"
		FROM transceivers
		WHERE entity_type = 'flight' AND callsign = $1
		  AND "timestamp" BETWEEN $2 AND $3
		ORDER BY "timestamp"
	`, callsign, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransceiverPoint
	for rows.Next() {
		var p TransceiverPoint
		if err := rows.Scan(&p.FrequencyHz, &p.Lat, &p.Lon, &p.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ATCTransceivers returns radio observations inside the window for the
// given controller callsigns, grouped by callsign.
func (db *DB) ATCTransceivers(ctx context.Context, callsigns []string, start, end time.Time) (map[string][]TransceiverPoint, error) {
	if len(callsigns) == 0 {
		return map[string][]TransceiverPoint{}, nil
	}
	rows, err := db.Pool.Query(ctx, `
		SELECT callsign, frequency, COALESCE(position_lat, 0), COALESCE(position_lon, 0), "timestamp"
		FROM transceivers
		WHERE entity_type = 'atc' AND callsign = ANY($1)
		  AND "timestamp" BETWEEN $2 AND $3
		ORDER BY callsign, "timestamp"
	`, callsigns, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPointsByCallsign(rows)
}

// FlightTransceiversInWindow returns every flight radio observation
// inside the window, grouped by callsign. The controller-side detector
// uses this to find the aircraft active during a session.
func (db *DB) FlightTransceiversInWindow(ctx context.Context, start, end time.Time) (map[string][]TransceiverPoint, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT callsign, frequency, COALESCE(position_lat, 0), COALESCE(position_lon, 0), "timestamp"
		FROM transceivers
		WHERE entity_type = 'flight'
		  AND "timestamp" BETWEEN $1 AND $2
		ORDER BY callsign, "timestamp"
	`, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPointsByCallsign(rows)
}

// ATCTransceiversForCallsign returns one controller's radio
// observations inside the window, timestamp ascending.
func (db *DB) ATCTransceiversForCallsign(ctx context.Context, callsign string, start, end time.Time) ([]TransceiverPoint, error) {
	rows, err := db.Pool.Query(ctx, `
		SELECT frequency, COALESCE(position_lat, 0), COALESCE(position_lon, 0), "timestamp"
		FROM transceivers
		WHERE entity_type = 'atc' AND callsign = $1
		  AND "timestamp" BETWEEN $2 AND $3
		ORDER BY "timestamp"
	`, callsign, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TransceiverPoint
	for rows.Next() {
		var p TransceiverPoint
		if err := rows.Scan(&p.FrequencyHz, &p.Lat, &p.Lon, &p.Timestamp); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanPointsByCallsign(rows pgx.Rows) (map[string][]TransceiverPoint, error) {
	out := make(map[string][]TransceiverPoint)
	for rows.Next() {
		var (
			callsign string
			p        TransceiverPoint
		)
		if err := rows.Scan(&callsign, &p.FrequencyHz, &p.Lat, &p.Lon, &p.Timestamp); err != nil {
			return nil, err
		}
		out[callsign] = append(out[callsign], p)
	}
	return out, rows.Err()
}

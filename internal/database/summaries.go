package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
)

// FlightSummaryRow is the durable artifact for a completed flight
// session. ControllerCallsigns holds the ordered interaction array as
// produced by the detector.
type FlightSummaryRow struct {
	Callsign                 string          `json:"callsign"`
	LogonTime                time.Time       `json:"logon_time"`
	CID                      int             `json:"cid"`
	AircraftType             string          `json:"aircraft_type,omitempty"`
	Departure                string          `json:"departure,omitempty"`
	Arrival                  string          `json:"arrival,omitempty"`
	Route                    string          `json:"route,omitempty"`
	CompletionTime           time.Time       `json:"completion_time"`
	SessionDurationMinutes   int             `json:"session_duration_minutes"`
	TotalUpdates             int             `json:"total_updates"`
	ControllerCallsigns      json.RawMessage `json:"controller_callsigns"`
	ControllerTimePercentage float64         `json:"controller_time_percentage"`
}

// ControllerSummaryRow is the durable artifact for a completed
// controller session. AircraftDetails holds the mirror interaction
// array keyed on flight callsign.
type ControllerSummaryRow struct {
	Callsign               string          `json:"callsign"`
	SessionStartTime       time.Time       `json:"session_start_time"`
	SessionEndTime         time.Time       `json:"session_end_time"`
	SessionDurationMinutes int             `json:"session_duration_minutes"`
	CID                    int             `json:"cid"`
	Name                   string          `json:"name,omitempty"`
	Rating                 int             `json:"rating"`
	Facility               int             `json:"facility"`
	Server                 string          `json:"server,omitempty"`
	TotalAircraftHandled   int             `json:"total_aircraft_handled"`
	PeakAircraftCount      int             `json:"peak_aircraft_count"`
	FrequenciesUsed        json.RawMessage `json:"frequencies_used"`
	AircraftDetails        json.RawMessage `json:"aircraft_details"`
}

// emptyArray substitutes a JSON empty array for a nil document so the
// jsonb NOT NULL columns never see a SQL NULL.
func emptyArray(doc json.RawMessage) json.RawMessage {
	if len(doc) == 0 {
		return json.RawMessage("[]")
	}
	return doc
}

// insertFlightSummaryTx writes a flight summary inside the caller's
// transaction. Reports whether a row was actually inserted; a conflict
// on (callsign, logon_time) means an earlier pass already summarized
// this session and is not an error.
func insertFlightSummaryTx(ctx context.Context, tx pgx.Tx, s *FlightSummaryRow) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO flight_summaries (
			callsign, logon_time, cid, aircraft_type, departure, arrival,
			route, completion_time, session_duration_minutes, total_updates,
			controller_callsigns, controller_time_percentage
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (callsign, logon_time) DO NOTHING
	`,
		s.Callsign, s.LogonTime, s.CID, s.AircraftType, s.Departure, s.Arrival,
		s.Route, s.CompletionTime, s.SessionDurationMinutes, s.TotalUpdates,
		emptyArray(s.ControllerCallsigns), s.ControllerTimePercentage,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// insertControllerSummaryTx writes a controller summary inside the
// caller's transaction, ignoring conflicts on (callsign, session_start_time).
func insertControllerSummaryTx(ctx context.Context, tx pgx.Tx, s *ControllerSummaryRow) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO controller_summaries (
			callsign, session_start_time, session_end_time,
			session_duration_minutes, cid, name, rating, facility, server,
			total_aircraft_handled, peak_aircraft_count,
			frequencies_used, aircraft_details
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (callsign, session_start_time) DO NOTHING
	`,
		s.Callsign, s.SessionStartTime, s.SessionEndTime,
		s.SessionDurationMinutes, s.CID, s.Name, s.Rating, s.Facility, s.Server,
		s.TotalAircraftHandled, s.PeakAircraftCount,
		emptyArray(s.FrequenciesUsed), emptyArray(s.AircraftDetails),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// FlightSummaryExists reports whether a summary has already been
// written for the session key.
func (db *DB) FlightSummaryExists(ctx context.Context, callsign string, logonTime time.Time) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM flight_summaries
			WHERE callsign = $1 AND logon_time = $2
		)
	`, callsign, logonTime).Scan(&exists)
	return exists, err
}

// ControllerSummaryExists reports whether a summary has already been
// written for the session key.
func (db *DB) ControllerSummaryExists(ctx context.Context, callsign string, sessionStart time.Time) (bool, error) {
	var exists bool
	err := db.Pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM controller_summaries
			WHERE callsign = $1 AND session_start_time = $2
		)
	`, callsign, sessionStart).Scan(&exists)
	return exists, err
}

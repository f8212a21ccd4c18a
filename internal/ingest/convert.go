package ingest

import (
	"time"

	"github.com/snarg/vatsim-engine/internal/database"
	"github.com/snarg/vatsim-engine/internal/vatsim"
)

// flightRowFromPilot maps a wire pilot onto a live flight row. now
// becomes last_updated (our write time); the feed's own timestamp is
// kept separately as last_updated_api.
func flightRowFromPilot(p vatsim.Pilot, now time.Time) *database.FlightRow {
	row := &database.FlightRow{
		Callsign:       p.Callsign,
		CID:            p.CID,
		Name:           p.Name,
		Server:         p.Server,
		Altitude:       p.Altitude,
		Heading:        p.Heading,
		Groundspeed:    p.Groundspeed,
		Transponder:    p.Transponder,
		Latitude:       p.Latitude,
		Longitude:      p.Longitude,
		LogonTime:      p.LogonTime,
		LastUpdated:    now,
		LastUpdatedAPI: p.LastUpdated,
	}
	if fp := p.FlightPlan; fp != nil {
		row.AircraftType = fp.AircraftShort
		if row.AircraftType == "" {
			row.AircraftType = fp.Aircraft
		}
		row.Departure = fp.Departure
		row.Arrival = fp.Arrival
		row.Route = fp.Route
		row.CruiseTAS = fp.CruiseTAS
		row.Deptime = fp.DepartureTime
	}
	return row
}

// controllerRowFromWire maps a wire controller onto a live controller
// row, normalizing the MHz frequency string to Hz. A frequency that
// does not parse fails the record.
func controllerRowFromWire(c vatsim.Controller, now time.Time) (*database.ControllerRow, error) {
	hz, err := vatsim.ParseFrequencyMHz(c.Frequency)
	if err != nil {
		return nil, err
	}
	return &database.ControllerRow{
		Callsign:    c.Callsign,
		CID:         c.CID,
		Name:        c.Name,
		Rating:      c.Rating,
		Facility:    c.Facility,
		FrequencyHz: hz,
		Server:      c.Server,
		VisualRange: c.VisualRange,
		TextAtis:    c.TextATIS,
		LogonTime:   c.LogonTime,
		LastUpdated: now,
	}, nil
}

// transceiverRows flattens one station's radios into table rows tagged
// with the owning entity.
func transceiverRows(st vatsim.StationTransceivers, entityType string, entityID int64, now time.Time) []database.TransceiverRow {
	rows := make([]database.TransceiverRow, 0, len(st.Transceivers))
	for _, tx := range st.Transceivers {
		rows = append(rows, database.TransceiverRow{
			Callsign:      st.Callsign,
			TransceiverID: tx.ID,
			FrequencyHz:   tx.Frequency,
			Lat:           tx.LatDeg,
			Lon:           tx.LonDeg,
			HeightMSL:     tx.HeightMSLM,
			HeightAGL:     tx.HeightAGLM,
			EntityType:    entityType,
			EntityID:      entityID,
			Timestamp:     now,
		})
	}
	return rows
}

// Package vatsim fetches and decodes the public network data feeds:
// the combined pilots/controllers snapshot, the per-station
// transceivers feed, and the status document that advertises both.
package vatsim

import "time"

// FlightPlan is the filed plan attached to a pilot, when present.
type FlightPlan struct {
	FlightRules         string `json:"flight_rules"`
	Aircraft            string `json:"aircraft"`
	AircraftFAA         string `json:"aircraft_faa"`
	AircraftShort       string `json:"aircraft_short"`
	Departure           string `json:"departure"`
	Arrival             string `json:"arrival"`
	Alternate           string `json:"alternate"`
	CruiseTAS           string `json:"cruise_tas"`
	Altitude            string `json:"altitude"`
	DepartureTime       string `json:"deptime"`
	EnrouteTime         string `json:"enroute_time"`
	FuelTime            string `json:"fuel_time"`
	Remarks             string `json:"remarks"`
	Route               string `json:"route"`
	RevisionID          int    `json:"revision_id"`
	AssignedTransponder string `json:"assigned_transponder"`
}

// Pilot is one connected aircraft in the snapshot feed. Latitude and
// Longitude are pointers so a record that omits them can be told apart
// from one parked at (0, 0).
type Pilot struct {
	CID         int         `json:"cid"`
	Name        string      `json:"name"`
	Callsign    string      `json:"callsign"`
	Server      string      `json:"server"`
	PilotRating int         `json:"pilot_rating"`
	Latitude    *float64    `json:"latitude"`
	Longitude   *float64    `json:"longitude"`
	Altitude    int         `json:"altitude"`
	Groundspeed int         `json:"groundspeed"`
	Transponder string      `json:"transponder"`
	Heading     int         `json:"heading"`
	FlightPlan  *FlightPlan `json:"flight_plan"`
	LogonTime   time.Time   `json:"logon_time"`
	LastUpdated time.Time   `json:"last_updated"`
}

// Controller is one staffed position in the snapshot feed. Frequency
// is the human-readable MHz string ("118.500"); facility 0 marks an
// observer.
type Controller struct {
	CID         int       `json:"cid"`
	Name        string    `json:"name"`
	Callsign    string    `json:"callsign"`
	Frequency   string    `json:"frequency"`
	Facility    int       `json:"facility"`
	Rating      int       `json:"rating"`
	Server      string    `json:"server"`
	VisualRange int       `json:"visual_range"`
	TextATIS    []string  `json:"text_atis"`
	LogonTime   time.Time `json:"logon_time"`
	LastUpdated time.Time `json:"last_updated"`
}

// General carries feed-level metadata. UpdateTimestamp changes only
// when the network publishes a fresh snapshot, so it doubles as a
// duplicate-detection token for pollers.
type General struct {
	Version          int       `json:"version"`
	UpdateTimestamp  time.Time `json:"update_timestamp"`
	ConnectedClients int       `json:"connected_clients"`
	UniqueUsers      int       `json:"unique_users"`
}

// Snapshot is the combined data feed payload. Unknown fields in the
// feed are ignored.
type Snapshot struct {
	General     General      `json:"general"`
	Pilots      []Pilot      `json:"pilots"`
	Controllers []Controller `json:"controllers"`
}

// Transceiver is one radio of a station: tuned frequency in Hz,
// position, and antenna heights in metres.
type Transceiver struct {
	ID         int     `json:"id"`
	Frequency  int64   `json:"frequency"`
	LatDeg     float64 `json:"latDeg"`
	LonDeg     float64 `json:"lonDeg"`
	HeightMSLM float64 `json:"heightMslM"`
	HeightAGLM float64 `json:"heightAglM"`
}

// StationTransceivers groups the transceivers feed by callsign.
type StationTransceivers struct {
	Callsign     string        `json:"callsign"`
	Transceivers []Transceiver `json:"transceivers"`
}

// Status is the network status document listing the current feed URLs.
type Status struct {
	Data struct {
		V3           []string `json:"v3"`
		Transceivers []string `json:"transceivers"`
	} `json:"data"`
}

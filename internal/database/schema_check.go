package database

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// requiredColumns lists what the engine expects to find in the live
// database before it will serve writes. Extra columns are tolerated;
// missing ones are not.
var requiredColumns = map[string][]string{
	"flights": {
		"id", "callsign", "cid", "name", "server", "aircraft_type",
		"departure", "arrival", "route", "cruise_tas", "altitude",
		"heading", "groundspeed", "transponder", "deptime",
		"latitude", "longitude", "logon_time", "last_updated",
		"last_updated_api", "updates_count", "created_at", "updated_at",
	},
	"controllers": {
		"id", "callsign", "cid", "name", "rating", "facility",
		"frequency", "server", "visual_range", "text_atis",
		"logon_time", "last_updated", "updates_count",
		"created_at", "updated_at",
	},
	"transceivers": {
		"id", "callsign", "transceiver_id", "frequency",
		"position_lat", "position_lon", "height_msl", "height_agl",
		"entity_type", "entity_id", "timestamp", "updated_at",
	},
	"flights_archive": {
		"id", "callsign", "departure", "arrival", "logon_time",
		"last_updated", "archived_at",
	},
	"controllers_archive": {
		"id", "callsign", "facility", "logon_time", "last_updated",
		"archived_at",
	},
	"flight_summaries": {
		"id", "callsign", "logon_time", "aircraft_type", "departure",
		"arrival", "route", "completion_time",
		"session_duration_minutes", "total_updates",
		"controller_callsigns", "controller_time_percentage",
		"created_at",
	},
	"controller_summaries": {
		"id", "callsign", "session_start_time", "session_end_time",
		"session_duration_minutes", "cid", "name", "rating", "facility",
		"server", "total_aircraft_handled", "peak_aircraft_count",
		"frequencies_used", "aircraft_details", "created_at",
	},
}

// SchemaError reports tables or columns the database is missing.
type SchemaError struct {
	MissingTables  []string
	MissingColumns map[string][]string // table -> columns
}

func (e *SchemaError) Error() string {
	var b strings.Builder
	b.WriteString("database schema mismatch:")
	for _, t := range e.MissingTables {
		fmt.Fprintf(&b, "\n  missing table %q", t)
	}
	tables := make([]string, 0, len(e.MissingColumns))
	for t := range e.MissingColumns {
		tables = append(tables, t)
	}
	sort.Strings(tables)
	for _, t := range tables {
		fmt.Fprintf(&b, "\n  table %q missing columns: %s", t, strings.Join(e.MissingColumns[t], ", "))
	}
	b.WriteString("\n\nApply the bundled schema.sql, or let the engine initialize a fresh database.")
	return b.String()
}

// ValidateSchema checks the live database against requiredColumns and
// returns a *SchemaError describing every discrepancy at once.
func (db *DB) ValidateSchema(ctx context.Context) error {
	rows, err := db.Pool.Query(ctx, `
		SELECT table_name, column_name
		FROM information_schema.columns
		WHERE table_schema = 'public'
	`)
	if err != nil {
		return fmt.Errorf("inspect schema: %w", err)
	}
	defer rows.Close()

	have := make(map[string]map[string]bool)
	for rows.Next() {
		var table, column string
		if err := rows.Scan(&table, &column); err != nil {
			return fmt.Errorf("scan schema row: %w", err)
		}
		if have[table] == nil {
			have[table] = make(map[string]bool)
		}
		have[table][column] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read schema rows: %w", err)
	}

	se := &SchemaError{MissingColumns: make(map[string][]string)}

	tables := make([]string, 0, len(requiredColumns))
	for t := range requiredColumns {
		tables = append(tables, t)
	}
	sort.Strings(tables)

	for _, table := range tables {
		haveCols, ok := have[table]
		if !ok {
			se.MissingTables = append(se.MissingTables, table)
			continue
		}
		for _, col := range requiredColumns[table] {
			if !haveCols[col] {
				se.MissingColumns[table] = append(se.MissingColumns[table], col)
			}
		}
	}

	if len(se.MissingTables) > 0 || len(se.MissingColumns) > 0 {
		return se
	}
	return nil
}

// EnsureSchema brings the database to a usable state: validate, apply
// the bundled schema on a fresh database, run the idempotent
// migrations, and validate again. An error from the final validation
// means the database cannot serve writes and startup must abort.
func (db *DB) EnsureSchema(ctx context.Context) error {
	err := db.ValidateSchema(ctx)
	if err == nil {
		return db.Migrate(ctx)
	}

	var se *SchemaError
	if !errors.As(err, &se) {
		return err // connection-level failure, not a drift report
	}
	db.log.Warn().Err(err).Msg("schema validation failed, attempting initialization")

	if err := db.InitSchema(ctx); err != nil {
		return fmt.Errorf("apply bundled schema: %w", err)
	}
	if err := db.Migrate(ctx); err != nil {
		return err
	}
	return db.ValidateSchema(ctx)
}

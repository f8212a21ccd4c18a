package database

import (
	"context"
	"fmt"
	"strings"
)

// migration defines a single idempotent schema migration.
type migration struct {
	name  string
	sql   string
	check string // query that returns true if the migration is already applied
}

// migrations is the ordered list of schema migrations to apply.
// Each must be idempotent (use IF NOT EXISTS, IF EXISTS, etc.).
// Fresh databases get all of this from schema.sql; the list exists for
// databases created by earlier builds.
var migrations = []migration{
	{
		name:  "add flights.last_updated_api",
		sql:   `ALTER TABLE flights ADD COLUMN IF NOT EXISTS last_updated_api timestamptz`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'flights' AND column_name = 'last_updated_api')`,
	},
	{
		name:  "add flights.updates_count",
		sql:   `ALTER TABLE flights ADD COLUMN IF NOT EXISTS updates_count int NOT NULL DEFAULT 1`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'flights' AND column_name = 'updates_count')`,
	},
	{
		name:  "add controllers.updates_count",
		sql:   `ALTER TABLE controllers ADD COLUMN IF NOT EXISTS updates_count int NOT NULL DEFAULT 1`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'controllers' AND column_name = 'updates_count')`,
	},
	{
		name: "widen transceivers.frequency to bigint",
		sql:  `ALTER TABLE transceivers ALTER COLUMN frequency TYPE bigint`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns
			WHERE table_name = 'transceivers' AND column_name = 'frequency' AND data_type = 'bigint')`,
	},
	{
		name: "add transceivers entity columns",
		sql: `ALTER TABLE transceivers
			ADD COLUMN IF NOT EXISTS entity_type text,
			ADD COLUMN IF NOT EXISTS entity_id bigint`,
		check: `SELECT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_name = 'transceivers' AND column_name = 'entity_type')`,
	},
	{
		name:  "add flights last_updated index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_flights_last_updated ON flights (last_updated)`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_flights_last_updated')`,
	},
	{
		name:  "add controllers last_updated index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_controllers_last_updated ON controllers (last_updated)`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_controllers_last_updated')`,
	},
	{
		name:  "add transceivers entity/time index",
		sql:   `CREATE INDEX IF NOT EXISTS idx_transceivers_entity_time ON transceivers (entity_type, "timestamp")`,
		check: `SELECT EXISTS (SELECT 1 FROM pg_indexes WHERE indexname = 'idx_transceivers_entity_time')`,
	},
}

// Migrate runs all pending schema migrations.
// For each migration, it first checks whether the change is already present.
// If not, it attempts to apply it. If the apply fails (e.g. insufficient
// privileges), the error is returned — the caller should treat this as fatal
// since the engine's queries depend on these columns existing.
func (db *DB) Migrate(ctx context.Context) error {
	var pending []migration
	for _, m := range migrations {
		if m.check != "" {
			var exists bool
			if err := db.Pool.QueryRow(ctx, m.check).Scan(&exists); err == nil && exists {
				continue
			}
		}
		pending = append(pending, m)
	}

	if len(pending) == 0 {
		return nil
	}

	// Try to apply each pending migration
	applied := 0
	for _, m := range pending {
		if _, err := db.Pool.Exec(ctx, m.sql); err != nil {
			return &MigrationError{
				failed:  m,
				pending: pending[applied:],
				err:     err,
			}
		}
		db.log.Info().Str("migration", m.name).Msg("schema migration applied")
		applied++
	}
	db.log.Info().Int("applied", applied).Msg("schema migrations complete")
	return nil
}

// MigrationError is returned when a migration fails.
// It includes the SQL needed to apply all remaining migrations manually.
type MigrationError struct {
	failed  migration
	pending []migration
	err     error
}

func (e *MigrationError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "migration %q failed: %v\n\n", e.failed.name, e.err)
	b.WriteString("Run the following SQL as a database superuser to fix this:\n\n")
	for _, m := range e.pending {
		fmt.Fprintf(&b, "  %s;\n", m.sql)
	}
	b.WriteString("\nThen restart vatsim-engine.")
	return b.String()
}

func (e *MigrationError) Unwrap() error {
	return e.err
}

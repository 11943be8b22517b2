package sqlstore

import (
	"context"
	"fmt"
)

// schema is shared by both dialects; {TS}, {FLOAT} and {JSON} are filled per
// dialect. Ids are TEXT uuids. Snapshots carry no foreign key into the catalog.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS app_users (
		id            TEXT PRIMARY KEY,
		dni           TEXT NOT NULL UNIQUE,
		first_name    TEXT NOT NULL DEFAULT '',
		last_name     TEXT NOT NULL DEFAULT '',
		role          TEXT NOT NULL,
		active        BOOLEAN NOT NULL DEFAULT TRUE,
		trainer_id    TEXT REFERENCES app_users(id),
		password_hash TEXT NOT NULL DEFAULT '',
		created_at    {TS} NOT NULL,
		updated_at    {TS} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_app_users_trainer ON app_users(trainer_id)`,

	`CREATE TABLE IF NOT EXISTS exercises (
		id           TEXT PRIMARY KEY,
		external_id  TEXT NOT NULL UNIQUE,
		name         TEXT NOT NULL,
		category     TEXT NOT NULL DEFAULT '',
		muscle_group TEXT NOT NULL DEFAULT '',
		description  TEXT NOT NULL DEFAULT '',
		video_url    TEXT NOT NULL DEFAULT '',
		updated_at   {TS} NOT NULL
	)`,

	`CREATE TABLE IF NOT EXISTS base_routines (
		id           TEXT PRIMARY KEY,
		code         TEXT NOT NULL,
		name         TEXT NOT NULL,
		version      INTEGER NOT NULL CHECK (version > 0),
		content_hash TEXT NOT NULL,
		created_at   {TS} NOT NULL,
		UNIQUE (code, version)
	)`,
	`CREATE TABLE IF NOT EXISTS base_routine_items (
		id            TEXT PRIMARY KEY,
		routine_id    TEXT NOT NULL REFERENCES base_routines(id),
		day_index     INTEGER NOT NULL CHECK (day_index > 0),
		order_index   INTEGER NOT NULL CHECK (order_index > 0),
		exercise_key  TEXT NOT NULL,
		exercise_name TEXT NOT NULL DEFAULT '',
		category      TEXT NOT NULL DEFAULT '',
		sets          TEXT NOT NULL DEFAULT '',
		reps          TEXT NOT NULL DEFAULT '',
		load_kg       {FLOAT},
		rest_seconds  INTEGER,
		notes         TEXT NOT NULL DEFAULT '',
		UNIQUE (routine_id, day_index, order_index)
	)`,

	`CREATE TABLE IF NOT EXISTS routine_snapshots (
		id                TEXT PRIMARY KEY,
		client_id         TEXT NOT NULL REFERENCES app_users(id),
		source_routine_id TEXT NOT NULL,
		source_code       TEXT NOT NULL,
		source_name       TEXT NOT NULL,
		source_version    INTEGER NOT NULL,
		created_at        {TS} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_routine_snapshots_client ON routine_snapshots(client_id)`,
	`CREATE TABLE IF NOT EXISTS snapshot_items (
		id            TEXT PRIMARY KEY,
		snapshot_id   TEXT NOT NULL REFERENCES routine_snapshots(id),
		day_index     INTEGER NOT NULL,
		order_index   INTEGER NOT NULL,
		exercise_key  TEXT NOT NULL,
		exercise_name TEXT NOT NULL DEFAULT '',
		category      TEXT NOT NULL DEFAULT '',
		sets          TEXT NOT NULL DEFAULT '',
		reps          TEXT NOT NULL DEFAULT '',
		load_kg       {FLOAT},
		rest_seconds  INTEGER,
		notes         TEXT NOT NULL DEFAULT '',
		active        BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at    {TS} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_snapshot_items_snapshot ON snapshot_items(snapshot_id)`,

	`CREATE TABLE IF NOT EXISTS plans (
		id          TEXT PRIMARY KEY,
		client_id   TEXT NOT NULL REFERENCES app_users(id),
		snapshot_id TEXT NOT NULL REFERENCES routine_snapshots(id),
		status      TEXT NOT NULL CHECK (status IN ('ACTIVE', 'ARCHIVED')),
		frequency   INTEGER NOT NULL DEFAULT 0 CHECK (frequency BETWEEN 0 AND 7),
		created_at  {TS} NOT NULL,
		archived_at {TS}
	)`,
	// At most one ACTIVE plan per client; a racing second activation fails here.
	`CREATE UNIQUE INDEX IF NOT EXISTS uq_plans_one_active ON plans(client_id) WHERE status = 'ACTIVE'`,
	`CREATE INDEX IF NOT EXISTS ix_plans_client ON plans(client_id, created_at)`,

	`CREATE TABLE IF NOT EXISTS executions (
		id           TEXT PRIMARY KEY,
		plan_id      TEXT NOT NULL REFERENCES plans(id),
		client_id    TEXT NOT NULL REFERENCES app_users(id),
		routine_day  INTEGER NOT NULL CHECK (routine_day > 0),
		recorded_at  {TS} NOT NULL,
		performed_on TEXT,
		note         TEXT NOT NULL DEFAULT '',
		recorded_by  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_executions_plan ON executions(plan_id, recorded_at)`,

	`CREATE TABLE IF NOT EXISTS measurements (
		id          TEXT PRIMARY KEY,
		client_id   TEXT NOT NULL REFERENCES app_users(id),
		metric_date TEXT NOT NULL,
		weight_kg   {FLOAT},
		perimeters  {JSON},
		notes       TEXT NOT NULL DEFAULT '',
		created_at  {TS} NOT NULL,
		updated_at  {TS} NOT NULL,
		recorded_by TEXT NOT NULL,
		UNIQUE (client_id, metric_date)
	)`,
}

// Migrate creates missing tables and indexes. It is idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	types := s.dialect.columnTypes()
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, types.Replace(stmt)); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

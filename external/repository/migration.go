package repository

import (
	"context"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`DO $$ BEGIN CREATE TYPE session_status AS ENUM ('running', 'completed'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id UUID PRIMARY KEY,
		guild_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		status session_status NOT NULL DEFAULT 'running',
		stop_reason TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_running ON sessions (guild_id, channel_id) WHERE status = 'running'`,
	`CREATE TABLE IF NOT EXISTS session_participants (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		display_name TEXT NOT NULL,
		is_bot BOOLEAN NOT NULL DEFAULT FALSE,
		joined_at TIMESTAMPTZ NOT NULL,
		left_at TIMESTAMPTZ NOT NULL,
		duration_seconds BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_session_participants_session ON session_participants (session_id)`,
	`CREATE TABLE IF NOT EXISTS session_transcripts (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		content TEXT NOT NULL,
		word_count INTEGER NOT NULL,
		confidence DOUBLE PRECISION NOT NULL,
		language TEXT NOT NULL,
		processing_ms BIGINT NOT NULL,
		error_marker TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_session_transcripts_session ON session_transcripts (session_id)`,
}

func RunMigration(ctx context.Context, pool *pgxpool.Pool) error {
	for _, s := range migrationStatements {
		stmt := strings.TrimSpace(s)
		if stmt == "" {
			continue
		}
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

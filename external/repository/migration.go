package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/foxseedlab/voicememo/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	fmt.Sprintf(`DO $$ BEGIN CREATE TYPE transcription_session_status AS ENUM ('%s', '%s'); EXCEPTION WHEN duplicate_object THEN NULL; END $$`,
		repository.SessionStatusStreaming, repository.SessionStatusClosed),
	fmt.Sprintf(`CREATE TABLE IF NOT EXISTS transcription_sessions (
		id UUID PRIMARY KEY,
		language_code TEXT NOT NULL,
		document_id TEXT NOT NULL,
		document_mode TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		status transcription_session_status NOT NULL DEFAULT '%s',
		close_code INTEGER,
		close_reason TEXT,
		segment_count INTEGER NOT NULL DEFAULT 0
	)`, repository.SessionStatusStreaming),
	`CREATE INDEX IF NOT EXISTS idx_transcription_sessions_document ON transcription_sessions (document_id, started_at)`,
	`CREATE TABLE IF NOT EXISTS transcription_segments (
		session_id UUID NOT NULL REFERENCES transcription_sessions(id) ON DELETE CASCADE,
		segment_index INTEGER NOT NULL,
		content TEXT NOT NULL,
		spoken_at TIMESTAMPTZ NOT NULL,
		document_written BOOLEAN NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (session_id, segment_index)
	)`,
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

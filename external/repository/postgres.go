package repository

import (
	"context"

	"github.com/foxseedlab/voicememo/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(pool *pgxpool.Pool) repository.Repository {
	return &PostgresRepository{pool: pool}
}

func (r *PostgresRepository) CreateSession(ctx context.Context, input repository.CreateSessionInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO transcription_sessions (id, language_code, document_id, document_mode, started_at, status)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		input.ID, input.LanguageCode, input.DocumentID, input.DocumentMode, input.StartedAt, string(repository.SessionStatusStreaming))
	return err
}

func (r *PostgresRepository) CompleteSession(ctx context.Context, input repository.CompleteSessionInput) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE transcription_sessions
		 SET status = $2, ended_at = $3, close_code = $4, close_reason = $5, segment_count = $6
		 WHERE id = $1`,
		input.SessionID, string(repository.SessionStatusClosed), input.EndedAt, input.CloseCode, input.CloseReason, input.SegmentCount)
	return err
}

func (r *PostgresRepository) InsertSegment(ctx context.Context, input repository.InsertSegmentInput) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO transcription_segments (session_id, segment_index, content, spoken_at, document_written)
		 VALUES ($1, $2, $3, $4, $5)`,
		input.SessionID, input.SegmentIndex, input.Content, input.SpokenAt, input.DocumentWritten)
	return err
}

// Shutdown is called by the injector on process exit.
func (r *PostgresRepository) Shutdown() {
	r.pool.Close()
}

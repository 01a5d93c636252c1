package repository

import (
	"context"

	"github.com/foxseedlab/voicememo/internal/repository"
)

// NoopRepository is used when DATABASE_URL is not configured.
type NoopRepository struct{}

func NewNoopRepository() repository.Repository {
	return NoopRepository{}
}

func (NoopRepository) CreateSession(context.Context, repository.CreateSessionInput) error {
	return nil
}

func (NoopRepository) CompleteSession(context.Context, repository.CompleteSessionInput) error {
	return nil
}

func (NoopRepository) InsertSegment(context.Context, repository.InsertSegmentInput) error {
	return nil
}

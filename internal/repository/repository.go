package repository

import (
	"context"
	"time"
)

type CreateSessionInput struct {
	ID           string
	LanguageCode string
	DocumentID   string
	DocumentMode string
	StartedAt    time.Time
}

type CompleteSessionInput struct {
	SessionID    string
	EndedAt      time.Time
	CloseCode    int
	CloseReason  string
	SegmentCount int
}

type InsertSegmentInput struct {
	SessionID       string
	Content         string
	SegmentIndex    int
	SpokenAt        time.Time
	DocumentWritten bool
}

type SessionRepository interface {
	CreateSession(ctx context.Context, input CreateSessionInput) error
	CompleteSession(ctx context.Context, input CompleteSessionInput) error
}

type TranscriptRepository interface {
	InsertSegment(ctx context.Context, input InsertSegmentInput) error
}

type Repository interface {
	SessionRepository
	TranscriptRepository
}

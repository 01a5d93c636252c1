package webhook

import "context"

const SessionClosedSchemaVersion = 1

type SessionClosedSegment struct {
	Index           int    `json:"index"`
	SpokenAt        string `json:"spoken_at"`
	Elapsed         string `json:"elapsed"`
	Transcript      string `json:"transcript"`
	DocumentWritten bool   `json:"document_written"`
}

type SessionClosedPayload struct {
	SchemaVersion   int                    `json:"schema_version"`
	SessionID       string                 `json:"session_id"`
	DocumentID      string                 `json:"document_id"`
	DocumentMode    string                 `json:"document_mode"`
	LanguageCode    string                 `json:"language_code"`
	StartAt         string                 `json:"start_at"`
	EndAt           string                 `json:"end_at"`
	DurationSeconds int64                  `json:"duration_seconds"`
	CloseCode       int                    `json:"close_code"`
	CloseReason     string                 `json:"close_reason"`
	SegmentCount    int                    `json:"segment_count"`
	FailedAppends   int                    `json:"failed_appends"`
	Segments        []SessionClosedSegment `json:"segments"`
	Transcript      string                 `json:"transcript"`
}

type Sender interface {
	SendSessionClosed(ctx context.Context, payload SessionClosedPayload) error
}

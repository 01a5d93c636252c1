package repository

// SessionStatus is stored in transcription_sessions.status.
type SessionStatus string

const (
	SessionStatusStreaming SessionStatus = "streaming"
	SessionStatusClosed    SessionStatus = "closed"
)

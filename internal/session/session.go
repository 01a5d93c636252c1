package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/voicememo/internal/transcriber"
	"github.com/foxseedlab/voicememo/internal/transport"
)

type State int

const (
	StateAwaitingConfig State = iota
	StateAwaitingDocTarget
	StateStreaming
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateAwaitingConfig:
		return "AWAITING_CONFIG"
	case StateAwaitingDocTarget:
		return "AWAITING_DOC_TARGET"
	case StateStreaming:
		return "STREAMING"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

type stateChange struct {
	to    State
	cause string
}

type session struct {
	id        string
	startedAt time.Time
	transport transport.Transport
	logger    *slog.Logger

	// Owned by the goroutine running Coordinator.Run.
	descriptor Descriptor
	documentID string
	journaled  bool
	queue      *appendQueue
	events     transcriber.EventStream
	stopAudio  context.CancelCauseFunc

	mu        sync.Mutex
	state     State
	changes   []stateChange
	code      int
	reason    string
	reasonSet bool
}

func (c *Coordinator) newSession(t transport.Transport) *session {
	id := c.newID()
	return &session{
		id:        id,
		startedAt: c.now(),
		transport: t,
		logger:    slog.With("session_id", id),
		state:     StateAwaitingConfig,
		changes:   []stateChange{{to: StateAwaitingConfig, cause: "connection accepted"}},
	}
}

func (s *session) transition(to State, cause string) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.changes = append(s.changes, stateChange{to: to, cause: cause})
	s.mu.Unlock()
	s.logger.Info("session state changed", "from", from.String(), "to", to.String(), "cause", cause)
}

// closeWith records the close code and reason. The first caller wins.
func (s *session) closeWith(code int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reasonSet {
		return
	}
	s.code, s.reason, s.reasonSet = code, reason, true
}

func (s *session) closeReason() (int, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.reasonSet {
		return transport.CloseNormal, "session ended"
	}
	return s.code, s.reason
}

func (s *session) history() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.changes))
	for _, ch := range s.changes {
		out = append(out, ch.to.String())
	}
	return out
}

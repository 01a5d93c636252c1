package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/foxseedlab/voicememo/internal/config"
	"github.com/foxseedlab/voicememo/internal/document"
	"github.com/foxseedlab/voicememo/internal/metrics"
	"github.com/foxseedlab/voicememo/internal/repository"
	"github.com/foxseedlab/voicememo/internal/transcriber"
	"github.com/foxseedlab/voicememo/internal/transport"
	"github.com/foxseedlab/voicememo/internal/webhook"
	"github.com/google/uuid"
)

const (
	messageDocumentFailed  = "document creation failed"
	messageTargetNotFound  = "document not found or not accessible"
	messageRecognizeFailed = "speech recognition failed"
	messageUnauthenticated = "unauthenticated"
	messageServerError     = "server error"
)

// Authorizer gates every session before the handshake is read.
type Authorizer interface {
	Authorize(ctx context.Context) error
}

// Coordinator runs transcription sessions. One Coordinator serves every
// connection; all per-session state lives in session.
type Coordinator struct {
	auth       Authorizer
	sink       document.Sink
	recognizer transcriber.Recognizer
	journal    repository.Repository
	webhook    webhook.Sender
	metrics    *metrics.Metrics

	defaults             Defaults
	speechModel          string
	validateAppendTarget bool
	handshakeTimeout     time.Duration
	idleTimeout          time.Duration
	maxDuration          time.Duration
	drainTimeout         time.Duration
	appendDrainTimeout   time.Duration

	now   func() time.Time
	newID func() string

	sessions   sync.WaitGroup
	finalizers sync.WaitGroup
}

func NewCoordinator(cfg *config.Config, authz Authorizer, sink document.Sink, recognizer transcriber.Recognizer, journal repository.Repository, wh webhook.Sender, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		auth:       authz,
		sink:       sink,
		recognizer: recognizer,
		journal:    journal,
		webhook:    wh,
		metrics:    m,
		defaults: Defaults{
			LanguageCode:  cfg.DefaultLanguage,
			DocumentTitle: cfg.DefaultDocumentTitle,
		},
		speechModel:          cfg.SpeechModel,
		validateAppendTarget: cfg.ValidateAppendTarget,
		handshakeTimeout:     cfg.HandshakeTimeout(),
		idleTimeout:          cfg.SessionIdleTimeout(),
		maxDuration:          cfg.MaxSessionDuration(),
		drainTimeout:         cfg.RecognizerDrainTimeout(),
		appendDrainTimeout:   cfg.AppendDrainTimeout(),
		now:                  time.Now,
		newID:                uuid.NewString,
	}
}

// Run drives one session to CLOSED and closes t. It never panics.
func (c *Coordinator) Run(ctx context.Context, t transport.Transport) {
	c.sessions.Add(1)
	defer c.sessions.Done()
	s := c.newSession(t)
	c.metrics.SessionOpened()
	s.logger.Info("session started")
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("session panicked", "panic", r, "stack", string(debug.Stack()))
			s.closeWith(transport.CloseServerError, messageServerError)
		}
		c.finish(ctx, s)
	}()
	c.run(ctx, s)
}

// Shutdown waits for running sessions and for session-closed webhooks still
// in flight. Sessions end on their own once their context is cancelled.
func (c *Coordinator) Shutdown() {
	c.sessions.Wait()
	c.finalizers.Wait()
}

func (c *Coordinator) run(ctx context.Context, s *session) {
	if err := c.auth.Authorize(ctx); err != nil {
		s.logger.Warn("session rejected: no valid credentials", "error", err)
		s.closeWith(transport.CloseUnauthenticated, messageUnauthenticated)
		return
	}

	desc, ok := c.awaitConfig(ctx, s)
	if !ok {
		return
	}
	s.descriptor = desc
	s.logger = s.logger.With("language", desc.LanguageCode, "document_mode", string(desc.Mode))
	s.transition(StateAwaitingDocTarget, "handshake accepted")

	docID, ok := c.resolveDocumentTarget(ctx, s)
	if !ok {
		return
	}
	s.documentID = docID
	s.logger = s.logger.With("document_id", docID)
	s.transition(StateStreaming, "document target resolved")

	c.stream(ctx, s)
}

func (c *Coordinator) awaitConfig(ctx context.Context, s *session) (Descriptor, bool) {
	hsCtx, cancel := context.WithTimeout(ctx, c.handshakeTimeout)
	defer cancel()

	hs, err := s.transport.ReceiveHandshake(hsCtx)
	if err != nil {
		switch {
		case errors.Is(err, transport.ErrMalformedHandshake):
			c.rejectConfig(ctx, s, err)
		case errors.Is(err, transport.ErrDisconnected) || errors.Is(err, io.EOF):
			s.logger.Info("client disconnected before handshake")
			s.closeWith(transport.CloseNormal, "client disconnected")
		case ctx.Err() != nil:
			s.closeWith(transport.CloseGoingAway, "server shutting down")
		case errors.Is(err, context.DeadlineExceeded):
			c.rejectConfig(ctx, s, fmt.Errorf("%w: handshake not received within %s", ErrConfig, c.handshakeTimeout))
		default:
			s.logger.Error("failed to receive handshake", "error", err)
			s.closeWith(transport.CloseServerError, messageServerError)
		}
		return Descriptor{}, false
	}

	desc, err := Resolve(hs, c.defaults)
	if err != nil {
		c.rejectConfig(ctx, s, err)
		return Descriptor{}, false
	}
	if desc.Mode == DocumentModeNew && strings.TrimSpace(hs.DocID) != "" {
		s.logger.Info("ignoring docId for new document mode")
	}
	return desc, true
}

func (c *Coordinator) rejectConfig(ctx context.Context, s *session, err error) {
	s.logger.Warn("session rejected: invalid configuration", "error", err)
	c.sendError(ctx, s, transport.CloseConfigError, err.Error())
	s.closeWith(transport.CloseConfigError, "invalid configuration")
}

func (c *Coordinator) resolveDocumentTarget(ctx context.Context, s *session) (string, bool) {
	switch s.descriptor.Mode {
	case DocumentModeAppend:
		id := s.descriptor.DocumentID
		if !c.validateAppendTarget {
			return id, true
		}
		err := c.sink.CheckDocument(ctx, id)
		switch {
		case err == nil:
		case errors.Is(err, document.ErrDocumentNotFound):
			s.logger.Warn("append target not found", "document_id", id, "error", err)
			c.sendError(ctx, s, transport.CloseTargetNotFound, messageTargetNotFound)
			s.closeWith(transport.CloseTargetNotFound, messageTargetNotFound)
			return "", false
		default:
			s.logger.Warn("could not verify append target; continuing", "document_id", id, "error", err)
		}
		return id, true
	default:
		id, err := c.sink.CreateDocument(ctx, s.descriptor.DocumentTitle)
		if err != nil {
			s.logger.Error("failed to create document", "error", err, "title", s.descriptor.DocumentTitle)
			c.sendError(ctx, s, transport.CloseDocumentFailed, messageDocumentFailed)
			s.closeWith(transport.CloseDocumentFailed, messageDocumentFailed)
			return "", false
		}
		s.logger.Info("document created", "document_id", id, "title", s.descriptor.DocumentTitle)
		if err := s.transport.Send(ctx, transport.DocCreated(id)); err != nil {
			s.logger.Info("client unreachable after document creation", "error", err)
			s.closeWith(transport.CloseNormal, "client disconnected")
			return "", false
		}
		return id, true
	}
}

func (c *Coordinator) stream(ctx context.Context, s *session) {
	if err := c.journal.CreateSession(ctx, repository.CreateSessionInput{
		ID:           s.id,
		LanguageCode: s.descriptor.LanguageCode,
		DocumentID:   s.documentID,
		DocumentMode: string(s.descriptor.Mode),
		StartedAt:    s.startedAt,
	}); err != nil {
		s.logger.Error("failed to create session in repository", "error", err)
	} else {
		s.journaled = true
	}

	s.queue = newAppendQueue(s.id, s.documentID, c.sink, c.journal, c.metrics, s.logger)

	maxCtx, cancelMax := context.WithTimeoutCause(ctx, c.maxDuration, errMaxDuration)
	defer cancelMax()
	audioCtx, stopAudio := context.WithCancelCause(maxCtx)
	s.stopAudio = stopAudio
	pump := newAudioPump(audioCtx, s.transport, c.idleTimeout, c.metrics, s.logger, s.closeWith)

	// The recognizer outlives the audio so it can flush finals for audio
	// already sent; drainTimeout bounds that.
	recCtx, cancelRec := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelRec()
	events, err := c.recognizer.StreamRecognize(recCtx, transcriber.NewConfig(s.descriptor.LanguageCode, c.speechModel), pump)
	if err != nil {
		s.logger.Error("failed to start speech recognition", "error", err)
		c.sendError(ctx, s, transport.CloseServerError, messageRecognizeFailed)
		s.closeWith(transport.CloseServerError, messageRecognizeFailed)
		return
	}
	s.events = events
	s.logger.Info("speech recognition started")

	relayDone := make(chan struct{})
	defer close(relayDone)
	go func() {
		select {
		case <-pump.Done():
		case <-relayDone:
			return
		}
		timer := time.NewTimer(c.drainTimeout)
		defer timer.Stop()
		select {
		case <-timer.C:
			s.logger.Warn("recognizer did not finish after audio ended; cancelling", "timeout", c.drainTimeout)
			cancelRec()
		case <-relayDone:
		}
	}()

	c.relay(ctx, s, events)
}

// relay forwards recognizer events in order until the stream ends.
func (c *Coordinator) relay(ctx context.Context, s *session, events transcriber.EventStream) {
	clientGone := false
	segmentIndex := 0
	for {
		ev, err := events.Recv()
		if errors.Is(err, io.EOF) {
			s.closeWith(transport.CloseNormal, "recognition ended")
			return
		}
		if err != nil {
			s.logger.Error("speech recognition failed", "error", err)
			if !clientGone {
				c.sendError(ctx, s, transport.CloseServerError, messageRecognizeFailed)
			}
			s.closeWith(transport.CloseServerError, messageRecognizeFailed)
			return
		}

		c.metrics.TranscriptRelayed(ev.IsFinal)
		if !clientGone {
			if err := s.transport.Send(ctx, transport.Transcript(ev.Text, ev.IsFinal)); err != nil {
				s.logger.Info("client unreachable; draining recognizer", "error", err)
				clientGone = true
				s.closeWith(transport.CloseNormal, "client disconnected")
				s.stopAudio(errAudioStopped)
			}
		}

		text := strings.TrimSpace(ev.Text)
		if !ev.IsFinal || text == "" {
			continue
		}
		s.queue.push(appendSegment{index: segmentIndex, text: text, spokenAt: c.now()})
		segmentIndex++
	}
}

func (c *Coordinator) sendError(ctx context.Context, s *session, code int, message string) {
	if err := s.transport.Send(ctx, transport.Error(code, message)); err != nil {
		s.logger.Debug("failed to send error event", "code", code, "error", err)
	}
}

func (c *Coordinator) finish(ctx context.Context, s *session) {
	code, reason := s.closeReason()
	s.transition(StateClosing, reason)

	if s.stopAudio != nil {
		s.stopAudio(errAudioStopped)
	}
	if s.events != nil {
		if err := s.events.Close(); err != nil {
			s.logger.Warn("failed to close recognition stream", "error", err)
		}
	}
	if s.queue != nil {
		s.queue.closeAndDrain(c.appendDrainTimeout)
	}

	if err := s.transport.Close(code, reason); err != nil {
		s.logger.Debug("transport close returned error", "error", err)
	}
	endedAt := c.now()
	s.transition(StateClosed, reason)
	c.metrics.SessionClosed(code)
	s.logger.Info("session closed", "close_code", code, "close_reason", reason, "states", s.history())

	if s.queue == nil {
		return
	}
	results := s.queue.snapshot()
	if s.journaled {
		jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalWriteTimeout)
		if err := c.journal.CompleteSession(jctx, repository.CompleteSessionInput{
			SessionID:    s.id,
			EndedAt:      endedAt,
			CloseCode:    code,
			CloseReason:  reason,
			SegmentCount: len(results),
		}); err != nil {
			s.logger.Error("failed to complete session", "error", err)
		}
		cancel()
	}

	payload := buildSessionClosedPayload(s, endedAt, code, reason, results)
	c.finalizers.Add(1)
	go func() {
		defer c.finalizers.Done()
		if err := c.webhook.SendSessionClosed(context.Background(), payload); err != nil {
			s.logger.Error("failed to send session-closed webhook", "error", err)
		}
	}()
}

package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/foxseedlab/voicememo/internal/config"
	"github.com/foxseedlab/voicememo/internal/document"
	"github.com/foxseedlab/voicememo/internal/metrics"
	"github.com/foxseedlab/voicememo/internal/repository"
	"github.com/foxseedlab/voicememo/internal/transcriber"
	"github.com/foxseedlab/voicememo/internal/transport"
	"github.com/foxseedlab/voicememo/internal/webhook"
	"github.com/prometheus/client_golang/prometheus"
)

type mockTransport struct {
	handshake    transport.Handshake
	handshakeErr error
	audio        chan []byte
	sendErr      error

	mu                 sync.Mutex
	handshakeCalls     int
	disconnectReported bool
	sent               []transport.OutboundEvent
	closeCalls         int
	closeCode          int
	closeReason        string
}

func newMockTransport(hs transport.Handshake) *mockTransport {
	return &mockTransport{handshake: hs, audio: make(chan []byte, 16)}
}

func (m *mockTransport) ReceiveHandshake(context.Context) (transport.Handshake, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handshakeCalls++
	if m.handshakeErr != nil {
		return transport.Handshake{}, m.handshakeErr
	}
	return m.handshake, nil
}

// ReceiveAudio reports a disconnect once the audio channel is closed.
func (m *mockTransport) ReceiveAudio(ctx context.Context) ([]byte, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case chunk, ok := <-m.audio:
		if ok {
			return chunk, nil
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.disconnectReported {
		return nil, io.EOF
	}
	m.disconnectReported = true
	return nil, transport.ErrDisconnected
}

func (m *mockTransport) Send(_ context.Context, event transport.OutboundEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sent = append(m.sent, event)
	return nil
}

func (m *mockTransport) Close(code int, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeCalls++
	if m.closeCalls == 1 {
		m.closeCode = code
		m.closeReason = reason
	}
	return nil
}

func (m *mockTransport) events() []transport.OutboundEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]transport.OutboundEvent(nil), m.sent...)
}

func (m *mockTransport) closed() (int, string, int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCode, m.closeReason, m.closeCalls
}

func (m *mockTransport) transcripts() []transport.OutboundEvent {
	var out []transport.OutboundEvent
	for _, ev := range m.events() {
		if ev.Type == transport.EventTranscript {
			out = append(out, ev)
		}
	}
	return out
}

type appendCall struct {
	documentID string
	text       string
}

type mockSink struct {
	createID  string
	createErr error
	checkErr  error
	// appendErrs is consumed one entry per append; nil entries succeed.
	appendErrs []error
	appendHook func(text string)

	mu          sync.Mutex
	createCalls []string
	checkCalls  []string
	appends     []appendCall
}

func (m *mockSink) CreateDocument(_ context.Context, title string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createCalls = append(m.createCalls, title)
	if m.createErr != nil {
		return "", m.createErr
	}
	return m.createID, nil
}

func (m *mockSink) AppendText(ctx context.Context, documentID, text string) error {
	if m.appendHook != nil {
		m.appendHook(text)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appends = append(m.appends, appendCall{documentID: documentID, text: text})
	if len(m.appendErrs) > 0 {
		err := m.appendErrs[0]
		m.appendErrs = m.appendErrs[1:]
		return err
	}
	return ctx.Err()
}

func (m *mockSink) ReadFullText(context.Context, string) (string, error) {
	return "", nil
}

func (m *mockSink) CheckDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkCalls = append(m.checkCalls, documentID)
	return m.checkErr
}

func (m *mockSink) appended() []appendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]appendCall(nil), m.appends...)
}

type scriptStep struct {
	event transcriber.Event
	err   error
}

// scriptedRecognizer emits a fixed script without reading audio.
type scriptedRecognizer struct {
	script   []scriptStep
	startErr error
	panicMsg string

	mu      sync.Mutex
	calls   int
	configs []transcriber.Config
	streams []*scriptedStream
}

func (r *scriptedRecognizer) StreamRecognize(_ context.Context, cfg transcriber.Config, _ transcriber.AudioSource) (transcriber.EventStream, error) {
	r.mu.Lock()
	r.calls++
	r.configs = append(r.configs, cfg)
	r.mu.Unlock()
	if r.startErr != nil {
		return nil, r.startErr
	}
	stream := &scriptedStream{steps: r.script, panicMsg: r.panicMsg}
	r.mu.Lock()
	r.streams = append(r.streams, stream)
	r.mu.Unlock()
	return stream, nil
}

// allClosed reports whether every stream handed out has been closed.
func (r *scriptedRecognizer) allClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.streams) == 0 {
		return false
	}
	for _, s := range r.streams {
		if !s.closed.Load() {
			return false
		}
	}
	return true
}

func (r *scriptedRecognizer) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type scriptedStream struct {
	steps    []scriptStep
	panicMsg string
	closed   atomic.Bool
}

func (s *scriptedStream) Recv() (transcriber.Event, error) {
	if len(s.steps) == 0 {
		if s.panicMsg != "" {
			panic(s.panicMsg)
		}
		return transcriber.Event{}, io.EOF
	}
	step := s.steps[0]
	s.steps = s.steps[1:]
	return step.event, step.err
}

func (s *scriptedStream) Close() error {
	s.closed.Store(true)
	return nil
}

// echoRecognizer turns every audio chunk into a final transcript and ends
// once the audio source is exhausted.
type echoRecognizer struct {
	mu      sync.Mutex
	streams []*echoStream
}

func (r *echoRecognizer) StreamRecognize(ctx context.Context, _ transcriber.Config, audio transcriber.AudioSource) (transcriber.EventStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	out := make(chan transcriber.Event, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		for {
			chunk, err := audio.Next(ctx)
			if err != nil {
				return
			}
			select {
			case out <- transcriber.Event{Text: string(chunk), IsFinal: true}:
			case <-ctx.Done():
				return
			}
		}
	}()
	stream := &echoStream{out: out, cancel: cancel, done: done}
	r.mu.Lock()
	r.streams = append(r.streams, stream)
	r.mu.Unlock()
	return stream, nil
}

func (r *echoRecognizer) allClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.streams) == 0 {
		return false
	}
	for _, s := range r.streams {
		if !s.closed.Load() {
			return false
		}
	}
	return true
}

type echoStream struct {
	out    chan transcriber.Event
	cancel context.CancelFunc
	done   chan struct{}
	closed atomic.Bool
}

func (s *echoStream) Recv() (transcriber.Event, error) {
	ev, ok := <-s.out
	if !ok {
		return transcriber.Event{}, io.EOF
	}
	return ev, nil
}

func (s *echoStream) Close() error {
	s.closed.Store(true)
	s.cancel()
	<-s.done
	return nil
}

type mockAuthorizer struct {
	err error
}

func (m mockAuthorizer) Authorize(context.Context) error { return m.err }

type mockRepository struct {
	mu        sync.Mutex
	created   []repository.CreateSessionInput
	completed []repository.CompleteSessionInput
	segments  []repository.InsertSegmentInput
	createErr error
}

func (m *mockRepository) CreateSession(_ context.Context, input repository.CreateSessionInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.created = append(m.created, input)
	return nil
}

func (m *mockRepository) CompleteSession(_ context.Context, input repository.CompleteSessionInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.completed = append(m.completed, input)
	return nil
}

func (m *mockRepository) InsertSegment(_ context.Context, input repository.InsertSegmentInput) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.segments = append(m.segments, input)
	return nil
}

type mockWebhook struct {
	mu       sync.Mutex
	payloads []webhook.SessionClosedPayload
}

func (m *mockWebhook) SendSessionClosed(_ context.Context, payload webhook.SessionClosedPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payloads = append(m.payloads, payload)
	return nil
}

func (m *mockWebhook) sentPayloads() []webhook.SessionClosedPayload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]webhook.SessionClosedPayload(nil), m.payloads...)
}

type testEnv struct {
	coordinator *Coordinator
	sink        *mockSink
	repo        *mockRepository
	webhook     *mockWebhook
	metrics     *metrics.Metrics
}

func testConfig() *config.Config {
	return &config.Config{
		DefaultLanguage:           "ko-KR",
		DefaultDocumentTitle:      "새 음성 메모",
		SpeechModel:               "default",
		HandshakeTimeoutSec:       10,
		SessionIdleTimeoutSec:     0,
		MaxSessionDurationMin:     120,
		RecognizerDrainTimeoutSec: 5,
		AppendDrainTimeoutSec:     10,
		ValidateAppendTarget:      true,
	}
}

func newTestEnv(t *testing.T, sink *mockSink, recognizer transcriber.Recognizer) *testEnv {
	t.Helper()
	env := &testEnv{
		sink:    sink,
		repo:    &mockRepository{},
		webhook: &mockWebhook{},
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	env.coordinator = NewCoordinator(testConfig(), mockAuthorizer{}, sink, recognizer, env.repo, env.webhook, env.metrics)
	env.coordinator.newID = func() string { return "session-1" }
	return env
}

func (e *testEnv) run(t *testing.T, tr *mockTransport) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		defer close(done)
		e.coordinator.Run(context.Background(), tr)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("session did not finish")
	}
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, message string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal(message)
}

func final(text string) scriptStep {
	return scriptStep{event: transcriber.Event{Text: text, IsFinal: true}}
}

func interim(text string) scriptStep {
	return scriptStep{event: transcriber.Event{Text: text}}
}

var errBoom = errors.New("boom")

var _ document.Sink = (*mockSink)(nil)

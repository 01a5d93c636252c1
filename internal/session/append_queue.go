package session

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/foxseedlab/voicememo/internal/document"
	"github.com/foxseedlab/voicememo/internal/metrics"
	"github.com/foxseedlab/voicememo/internal/repository"
)

const journalWriteTimeout = 5 * time.Second

type appendSegment struct {
	index    int
	text     string
	spokenAt time.Time
}

type appendResult struct {
	appendSegment
	written bool
}

// appendQueue writes final transcripts to one document, one at a time, in
// the order they were pushed.
type appendQueue struct {
	sessionID  string
	documentID string
	sink       document.Sink
	journal    repository.TranscriptRepository
	metrics    *metrics.Metrics
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	notify chan struct{}
	done   chan struct{}

	mu      sync.Mutex
	pending []appendSegment
	results []appendResult
	closed  bool
	stopped bool
}

func newAppendQueue(sessionID, documentID string, sink document.Sink, journal repository.TranscriptRepository, m *metrics.Metrics, logger *slog.Logger) *appendQueue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &appendQueue{
		sessionID:  sessionID,
		documentID: documentID,
		sink:       sink,
		journal:    journal,
		metrics:    m,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		notify:     make(chan struct{}, 1),
		done:       make(chan struct{}),
	}
	go q.run()
	return q
}

// push never blocks. It reports false once the queue is closed.
func (q *appendQueue) push(seg appendSegment) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, seg)
	q.mu.Unlock()
	q.wake()
	return true
}

func (q *appendQueue) wake() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

func (q *appendQueue) run() {
	defer close(q.done)
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("append worker panicked", "panic", r)
		}
	}()
	for {
		seg, ok := q.next()
		if !ok {
			return
		}
		q.process(seg)
	}
}

func (q *appendQueue) next() (appendSegment, bool) {
	for {
		q.mu.Lock()
		if q.stopped {
			q.mu.Unlock()
			return appendSegment{}, false
		}
		if len(q.pending) > 0 {
			seg := q.pending[0]
			q.pending = q.pending[1:]
			q.mu.Unlock()
			return seg, true
		}
		if q.closed {
			q.mu.Unlock()
			return appendSegment{}, false
		}
		q.mu.Unlock()
		<-q.notify
	}
}

func (q *appendQueue) process(seg appendSegment) {
	err := q.sink.AppendText(q.ctx, q.documentID, seg.text)
	written := err == nil
	if err != nil {
		q.logger.Error("failed to append transcript to document", "error", err, "document_id", q.documentID, "segment_index", seg.index)
		q.metrics.AppendResult("failed")
	} else {
		q.logger.Debug("appended transcript to document", "document_id", q.documentID, "segment_index", seg.index)
		q.metrics.AppendResult("ok")
	}

	ctx, cancel := context.WithTimeout(context.Background(), journalWriteTimeout)
	defer cancel()
	if err := q.journal.InsertSegment(ctx, repository.InsertSegmentInput{
		SessionID:       q.sessionID,
		Content:         seg.text,
		SegmentIndex:    seg.index,
		SpokenAt:        seg.spokenAt,
		DocumentWritten: written,
	}); err != nil {
		q.logger.Error("failed to insert segment", "error", err, "segment_index", seg.index)
	}

	q.mu.Lock()
	q.results = append(q.results, appendResult{appendSegment: seg, written: written})
	q.mu.Unlock()
}

// closeAndDrain stops intake and waits for queued appends. Whatever is
// still pending after timeout is dropped and an in-flight append is aborted.
func (q *appendQueue) closeAndDrain(timeout time.Duration) {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-q.done:
		q.cancel()
		return
	case <-timer.C:
	}

	q.mu.Lock()
	q.stopped = true
	dropped := q.pending
	q.pending = nil
	for _, seg := range dropped {
		q.results = append(q.results, appendResult{appendSegment: seg})
	}
	q.mu.Unlock()
	for range dropped {
		q.metrics.AppendResult("dropped")
	}
	q.logger.Warn("append drain timed out; dropping pending transcripts", "dropped", len(dropped), "timeout", timeout)
	q.cancel()
	q.wake()
	<-q.done
}

// snapshot returns processed and dropped segments ordered by index.
func (q *appendQueue) snapshot() []appendResult {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]appendResult, len(q.results))
	copy(out, q.results)
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

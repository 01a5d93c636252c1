package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/foxseedlab/voicememo/internal/metrics"
	"github.com/foxseedlab/voicememo/internal/transport"
)

var (
	errIdleTimeout  = errors.New("idle timeout")
	errMaxDuration  = errors.New("maximum session duration reached")
	errAudioStopped = errors.New("audio stopped")
)

// audioPump is the recognizer's audio source. It pulls binary frames from
// the transport until the client goes away, stays silent for idleTimeout,
// or ctx ends.
type audioPump struct {
	ctx         context.Context
	transport   transport.Transport
	idleTimeout time.Duration
	metrics     *metrics.Metrics
	logger      *slog.Logger
	// onEnd records why audio stopped; it is not called when the stop was
	// requested through ctx with errAudioStopped.
	onEnd func(code int, reason string)

	chunks int64
	bytes  int64

	doneOnce sync.Once
	done     chan struct{}
}

func newAudioPump(ctx context.Context, t transport.Transport, idleTimeout time.Duration, m *metrics.Metrics, logger *slog.Logger, onEnd func(code int, reason string)) *audioPump {
	return &audioPump{
		ctx:         ctx,
		transport:   t,
		idleTimeout: idleTimeout,
		metrics:     m,
		logger:      logger,
		onEnd:       onEnd,
		done:        make(chan struct{}),
	}
}

// Done is closed once the pump has returned io.EOF.
func (p *audioPump) Done() <-chan struct{} {
	return p.done
}

func (p *audioPump) Next(ctx context.Context) ([]byte, error) {
	select {
	case <-p.done:
		return nil, io.EOF
	default:
	}
	for {
		chunk, err := p.receive(ctx)
		if err != nil {
			return nil, err
		}
		if len(chunk) == 0 {
			continue
		}
		p.chunks++
		p.bytes += int64(len(chunk))
		p.metrics.AudioReceived(len(chunk))
		return chunk, nil
	}
}

func (p *audioPump) receive(ctx context.Context) ([]byte, error) {
	readCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	stop := context.AfterFunc(p.ctx, func() { cancel(context.Cause(p.ctx)) })
	defer stop()
	if p.idleTimeout > 0 {
		var cancelIdle context.CancelFunc
		readCtx, cancelIdle = context.WithTimeoutCause(readCtx, p.idleTimeout, errIdleTimeout)
		defer cancelIdle()
	}

	chunk, err := p.transport.ReceiveAudio(readCtx)
	if err == nil {
		return chunk, nil
	}
	p.end(ctx, readCtx, err)
	return nil, io.EOF
}

func (p *audioPump) end(callerCtx, readCtx context.Context, err error) {
	switch {
	case errors.Is(err, transport.ErrDisconnected) || errors.Is(err, io.EOF):
		p.onEnd(transport.CloseNormal, "client disconnected")
	case p.ctx.Err() != nil:
		cause := context.Cause(p.ctx)
		switch {
		case errors.Is(cause, errAudioStopped):
		case errors.Is(cause, errMaxDuration):
			p.onEnd(transport.CloseNormal, errMaxDuration.Error())
		default:
			p.onEnd(transport.CloseGoingAway, "server shutting down")
		}
	case callerCtx.Err() != nil:
		// The recognizer stopped pulling; its own result explains why.
	case errors.Is(context.Cause(readCtx), errIdleTimeout):
		p.onEnd(transport.CloseNormal, errIdleTimeout.Error())
	default:
		p.logger.Error("failed to receive audio", "error", err)
		p.onEnd(transport.CloseServerError, "server error")
	}
	p.doneOnce.Do(func() {
		p.logger.Info("audio input ended", "chunks", p.chunks, "bytes", p.bytes)
		close(p.done)
	})
}

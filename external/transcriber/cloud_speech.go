package transcriber

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/foxseedlab/voicememo/internal/auth"
	"github.com/foxseedlab/voicememo/internal/transcriber"
	gax "github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type CloudSpeechConfig struct {
	Credentials auth.Provider
	Endpoint    string
}

type streamingClient interface {
	StreamingRecognize(ctx context.Context, opts ...gax.CallOption) (speechpb.Speech_StreamingRecognizeClient, error)
	Close() error
}

type CloudSpeechRecognizer struct {
	credentials auth.Provider
	endpoint    string
	newClient   func(ctx context.Context, opts ...option.ClientOption) (streamingClient, error)
}

func NewCloudSpeechRecognizer(cfg CloudSpeechConfig) transcriber.Recognizer {
	return &CloudSpeechRecognizer{
		credentials: cfg.Credentials,
		endpoint:    strings.TrimSpace(cfg.Endpoint),
		newClient: func(ctx context.Context, opts ...option.ClientOption) (streamingClient, error) {
			return speech.NewClient(ctx, opts...)
		},
	}
}

func (r *CloudSpeechRecognizer) StreamRecognize(ctx context.Context, cfg transcriber.Config, audio transcriber.AudioSource) (transcriber.EventStream, error) {
	slog.Info("starting cloud speech streaming", "language", cfg.LanguageCode, "model", cfg.Model, "endpoint", r.endpoint)
	configReq, err := streamingConfigRequest(cfg)
	if err != nil {
		return nil, err
	}

	opts, err := r.credentials.ClientOptions(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: credentials: %w", transcriber.ErrStreamFailed, err)
	}
	if r.endpoint != "" {
		opts = append(opts, option.WithEndpoint(r.endpoint))
	}
	client, err := r.newClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: create client: %w", transcriber.ErrStreamFailed, err)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := client.StreamingRecognize(streamCtx)
	if err != nil {
		cancel()
		_ = client.Close()
		return nil, fmt.Errorf("%w: open stream: %w", transcriber.ErrStreamFailed, err)
	}
	if err := stream.Send(configReq); err != nil {
		cancel()
		_ = stream.CloseSend()
		_ = client.Close()
		return nil, fmt.Errorf("%w: send config: %w", transcriber.ErrStreamFailed, err)
	}
	slog.Info("cloud speech stream initialized", "language", cfg.LanguageCode)

	s := &cloudSpeechStream{
		ctx:      streamCtx,
		cancel:   cancel,
		client:   client,
		stream:   stream,
		pumpDone: make(chan struct{}),
	}
	go s.pump(audio)
	return s, nil
}

func streamingConfigRequest(cfg transcriber.Config) (*speechpb.StreamingRecognizeRequest, error) {
	encoding, ok := speechpb.RecognitionConfig_AudioEncoding_value[cfg.Encoding]
	if !ok {
		return nil, fmt.Errorf("unsupported audio encoding %q", cfg.Encoding)
	}
	return &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_AudioEncoding(encoding),
					SampleRateHertz:            int32(cfg.SampleRateHertz),
					LanguageCode:               cfg.LanguageCode,
					EnableAutomaticPunctuation: cfg.EnableAutomaticPunctuation,
					Model:                      cfg.Model,
					UseEnhanced:                cfg.UseEnhanced,
				},
				InterimResults: cfg.InterimResults,
			},
		},
	}, nil
}

type cloudSpeechStream struct {
	ctx      context.Context
	cancel   context.CancelFunc
	client   streamingClient
	stream   speechpb.Speech_StreamingRecognizeClient
	pumpDone chan struct{}

	// Recv is single-consumer.
	pending []transcriber.Event

	closeOnce sync.Once
	closeErr  error
}

// pump forwards audio until the source ends, then half-closes the stream
// so the recognizer flushes its last results and ends the response stream.
func (s *cloudSpeechStream) pump(audio transcriber.AudioSource) {
	defer close(s.pumpDone)
	defer func() {
		if err := s.stream.CloseSend(); err != nil {
			slog.Debug("cloud speech close send failed", "error", err)
		}
	}()
	var chunks int64
	for {
		chunk, err := audio.Next(s.ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) && s.ctx.Err() == nil {
				slog.Warn("audio source ended with error", "error", err)
			}
			slog.Info("audio pump stopped", "chunks", chunks)
			return
		}
		if len(chunk) == 0 {
			continue
		}
		err = s.stream.Send(&speechpb.StreamingRecognizeRequest{
			StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{AudioContent: chunk},
		})
		if err != nil {
			// The real cause, if any, is reported by Recv.
			slog.Debug("cloud speech send failed", "error", err)
			return
		}
		chunks++
	}
}

func (s *cloudSpeechStream) Recv() (transcriber.Event, error) {
	for len(s.pending) == 0 {
		resp, err := s.stream.Recv()
		if err != nil {
			return transcriber.Event{}, s.translateRecvError(err)
		}
		if st := resp.GetError(); st != nil && st.GetCode() != 0 {
			return transcriber.Event{}, fmt.Errorf("%w: %s (code %d)", transcriber.ErrStreamFailed, st.GetMessage(), st.GetCode())
		}
		for _, result := range resp.GetResults() {
			alts := result.GetAlternatives()
			if len(alts) == 0 {
				continue
			}
			s.pending = append(s.pending, transcriber.Event{
				Text:    alts[0].GetTranscript(),
				IsFinal: result.GetIsFinal(),
			})
		}
	}
	ev := s.pending[0]
	s.pending = s.pending[1:]
	return ev, nil
}

func (s *cloudSpeechStream) translateRecvError(err error) error {
	if errors.Is(err, io.EOF) {
		return io.EOF
	}
	code := status.Code(err)
	if s.ctx.Err() != nil || code == codes.Canceled {
		slog.Info("cloud speech receive stopped", "grpc_code", code.String())
		return io.EOF
	}
	return fmt.Errorf("%w: %s: %w", transcriber.ErrStreamFailed, code, err)
}

func (s *cloudSpeechStream) Close() error {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.pumpDone
		s.closeErr = s.client.Close()
	})
	return s.closeErr
}

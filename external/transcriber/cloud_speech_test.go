package transcriber

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"github.com/foxseedlab/voicememo/internal/transcriber"
	gax "github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type staticProvider struct{}

func (staticProvider) Authorize(context.Context) error { return nil }
func (staticProvider) ClientOptions(context.Context) ([]option.ClientOption, error) {
	return nil, nil
}

type recvResult struct {
	resp *speechpb.StreamingRecognizeResponse
	err  error
}

type fakeStream struct {
	grpc.ClientStream

	mu            sync.Mutex
	sent          []*speechpb.StreamingRecognizeRequest
	closeSent     chan struct{}
	closeSendOnce sync.Once
	responses     chan recvResult
}

func newFakeStream() *fakeStream {
	return &fakeStream{
		closeSent: make(chan struct{}),
		responses: make(chan recvResult, 16),
	}
}

func (s *fakeStream) Send(req *speechpb.StreamingRecognizeRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, req)
	return nil
}

func (s *fakeStream) CloseSend() error {
	s.closeSendOnce.Do(func() { close(s.closeSent) })
	return nil
}

func (s *fakeStream) Recv() (*speechpb.StreamingRecognizeResponse, error) {
	r, ok := <-s.responses
	if !ok {
		return nil, io.EOF
	}
	return r.resp, r.err
}

func (s *fakeStream) sentRequests() []*speechpb.StreamingRecognizeRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*speechpb.StreamingRecognizeRequest(nil), s.sent...)
}

type fakeClient struct {
	stream *fakeStream
	closed chan struct{}
}

func (c *fakeClient) StreamingRecognize(context.Context, ...gax.CallOption) (speechpb.Speech_StreamingRecognizeClient, error) {
	return c.stream, nil
}

func (c *fakeClient) Close() error {
	close(c.closed)
	return nil
}

func newTestRecognizer(stream *fakeStream) (*CloudSpeechRecognizer, *fakeClient) {
	client := &fakeClient{stream: stream, closed: make(chan struct{})}
	return &CloudSpeechRecognizer{
		credentials: staticProvider{},
		newClient: func(context.Context, ...option.ClientOption) (streamingClient, error) {
			return client, nil
		},
	}, client
}

type sliceSource struct {
	chunks [][]byte
}

func (s *sliceSource) Next(ctx context.Context) ([]byte, error) {
	if len(s.chunks) == 0 {
		return nil, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

type blockingSource struct{}

func (blockingSource) Next(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func result(text string, final bool) *speechpb.StreamingRecognitionResult {
	return &speechpb.StreamingRecognitionResult{
		IsFinal:      final,
		Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: text}},
	}
}

func TestStreamRecognize_SendsConfigThenAudioAndEndsAfterSource(t *testing.T) {
	stream := newFakeStream()
	r, client := newTestRecognizer(stream)

	go func() {
		<-stream.closeSent
		stream.responses <- recvResult{resp: &speechpb.StreamingRecognizeResponse{
			Results: []*speechpb.StreamingRecognitionResult{result("hel", false)},
		}}
		stream.responses <- recvResult{resp: &speechpb.StreamingRecognizeResponse{
			Results: []*speechpb.StreamingRecognitionResult{result("hello", true)},
		}}
		close(stream.responses)
	}()

	cfg := transcriber.NewConfig("ko-KR", "default")
	events, err := r.StreamRecognize(context.Background(), cfg, &sliceSource{chunks: [][]byte{{1, 2}, {}, {3}}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got []transcriber.Event
	for {
		ev, err := events.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("unexpected recv error: %v", err)
		}
		got = append(got, ev)
	}
	if err := events.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	if len(got) != 2 || got[0] != (transcriber.Event{Text: "hel"}) || got[1] != (transcriber.Event{Text: "hello", IsFinal: true}) {
		t.Fatalf("unexpected events: %+v", got)
	}

	sent := stream.sentRequests()
	if len(sent) != 3 {
		t.Fatalf("expected config and two audio requests, got %d", len(sent))
	}
	sc := sent[0].GetStreamingConfig()
	if sc == nil {
		t.Fatal("first request must carry the streaming config")
	}
	rc := sc.GetConfig()
	if rc.GetEncoding() != speechpb.RecognitionConfig_LINEAR16 || rc.GetSampleRateHertz() != 16000 ||
		rc.GetLanguageCode() != "ko-KR" || !rc.GetEnableAutomaticPunctuation() || !rc.GetUseEnhanced() || !sc.GetInterimResults() {
		t.Fatalf("unexpected streaming config: %+v", sc)
	}
	if string(sent[1].GetAudioContent()) != "\x01\x02" || string(sent[2].GetAudioContent()) != "\x03" {
		t.Fatalf("unexpected audio order: %v %v", sent[1].GetAudioContent(), sent[2].GetAudioContent())
	}

	select {
	case <-client.closed:
	default:
		t.Fatal("expected client to be closed")
	}
}

func TestStreamRecognize_FlattensResultsAndSkipsEmptyAlternatives(t *testing.T) {
	stream := newFakeStream()
	r, _ := newTestRecognizer(stream)
	stream.responses <- recvResult{resp: &speechpb.StreamingRecognizeResponse{
		Results: []*speechpb.StreamingRecognitionResult{
			result("a", true),
			{IsFinal: false},
			result("b", false),
		},
	}}
	close(stream.responses)

	events, err := r.StreamRecognize(context.Background(), transcriber.NewConfig("en-US", ""), blockingSource{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer events.Close()

	first, err := events.Recv()
	if err != nil || first.Text != "a" || !first.IsFinal {
		t.Fatalf("unexpected first event: %+v, %v", first, err)
	}
	second, err := events.Recv()
	if err != nil || second.Text != "b" || second.IsFinal {
		t.Fatalf("unexpected second event: %+v, %v", second, err)
	}
	if _, err := events.Recv(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestStreamRecognize_TransportErrorIsStreamFailed(t *testing.T) {
	stream := newFakeStream()
	r, _ := newTestRecognizer(stream)
	stream.responses <- recvResult{err: errors.New("unavailable")}

	events, err := r.StreamRecognize(context.Background(), transcriber.NewConfig("en-US", ""), blockingSource{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer events.Close()

	if _, err := events.Recv(); !errors.Is(err, transcriber.ErrStreamFailed) {
		t.Fatalf("expected ErrStreamFailed, got %v", err)
	}
}

func TestStreamRecognize_ResponseStatusIsStreamFailed(t *testing.T) {
	stream := newFakeStream()
	r, _ := newTestRecognizer(stream)
	stream.responses <- recvResult{resp: &speechpb.StreamingRecognizeResponse{
		Error: &rpcstatus.Status{Code: 11, Message: "audio timeout"},
	}}

	events, err := r.StreamRecognize(context.Background(), transcriber.NewConfig("en-US", ""), blockingSource{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer events.Close()

	if _, err := events.Recv(); !errors.Is(err, transcriber.ErrStreamFailed) {
		t.Fatalf("expected ErrStreamFailed, got %v", err)
	}
}

func TestStreamRecognize_CloseStopsPumpAndClient(t *testing.T) {
	stream := newFakeStream()
	r, client := newTestRecognizer(stream)

	events, err := r.StreamRecognize(context.Background(), transcriber.NewConfig("en-US", ""), blockingSource{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done := make(chan struct{})
	go func() {
		_ = events.Close()
		_ = events.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("close did not return")
	}
	select {
	case <-stream.closeSent:
	default:
		t.Fatal("expected half-close after pump stopped")
	}
	select {
	case <-client.closed:
	default:
		t.Fatal("expected client to be closed")
	}
}

func TestStreamRecognize_UnsupportedEncoding(t *testing.T) {
	r, _ := newTestRecognizer(newFakeStream())
	cfg := transcriber.NewConfig("en-US", "")
	cfg.Encoding = "WAV"

	if _, err := r.StreamRecognize(context.Background(), cfg, blockingSource{}); err == nil {
		t.Fatal("expected error for unsupported encoding")
	}
}

func TestStreamRecognize_GRPCStatusIsReported(t *testing.T) {
	stream := newFakeStream()
	r, _ := newTestRecognizer(stream)
	stream.responses <- recvResult{err: status.Error(codes.ResourceExhausted, "quota")}

	events, err := r.StreamRecognize(context.Background(), transcriber.NewConfig("en-US", ""), blockingSource{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer events.Close()

	_, err = events.Recv()
	if !errors.Is(err, transcriber.ErrStreamFailed) || !strings.Contains(err.Error(), "ResourceExhausted") {
		t.Fatalf("expected ErrStreamFailed naming the grpc code, got %v", err)
	}
}

func TestStreamRecognize_RemoteCancelEndsStream(t *testing.T) {
	stream := newFakeStream()
	r, _ := newTestRecognizer(stream)
	stream.responses <- recvResult{err: status.Error(codes.Canceled, "canceled")}

	events, err := r.StreamRecognize(context.Background(), transcriber.NewConfig("en-US", ""), blockingSource{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer events.Close()

	if _, err := events.Recv(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

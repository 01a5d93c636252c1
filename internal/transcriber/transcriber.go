package transcriber

import (
	"context"
	"errors"
)

const (
	EncodingLinear16       = "LINEAR16"
	DefaultSampleRateHertz = 16000
)

// ErrStreamFailed wraps a terminal recognizer-side fault.
var ErrStreamFailed = errors.New("recognition stream failed")

// Config is fixed for the lifetime of one stream.
type Config struct {
	LanguageCode               string
	Encoding                   string
	SampleRateHertz            int
	EnableAutomaticPunctuation bool
	Model                      string
	UseEnhanced                bool
	InterimResults             bool
}

// NewConfig returns the stream settings used for browser PCM capture.
func NewConfig(languageCode, model string) Config {
	return Config{
		LanguageCode:               languageCode,
		Encoding:                   EncodingLinear16,
		SampleRateHertz:            DefaultSampleRateHertz,
		EnableAutomaticPunctuation: true,
		Model:                      model,
		UseEnhanced:                true,
		InterimResults:             true,
	}
}

type Event struct {
	Text    string
	IsFinal bool
}

// AudioSource yields audio chunks on demand. io.EOF ends the sequence.
// Next must return promptly once ctx is done.
type AudioSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// EventStream yields recognition events in recognizer order. io.EOF ends
// the sequence; any other error is terminal.
type EventStream interface {
	Recv() (Event, error)
	Close() error
}

type Recognizer interface {
	StreamRecognize(ctx context.Context, cfg Config, audio AudioSource) (EventStream, error)
}

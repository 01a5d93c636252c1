package transport

import (
	"encoding/json"
	"fmt"
)

type EventType string

const (
	EventDocCreated EventType = "doc_created"
	EventTranscript EventType = "transcript"
	EventError      EventType = "error"
)

// OutboundEvent is the vocabulary sent to the client. Only the fields of
// the event's Type are serialized.
type OutboundEvent struct {
	Type    EventType
	DocID   string
	Text    string
	IsFinal bool
	Code    int
	Message string
}

func DocCreated(docID string) OutboundEvent {
	return OutboundEvent{Type: EventDocCreated, DocID: docID}
}

func Transcript(text string, isFinal bool) OutboundEvent {
	return OutboundEvent{Type: EventTranscript, Text: text, IsFinal: isFinal}
}

func Error(code int, message string) OutboundEvent {
	return OutboundEvent{Type: EventError, Code: code, Message: message}
}

type docCreatedWire struct {
	Type  EventType `json:"type"`
	DocID string    `json:"doc_id"`
}

type transcriptWire struct {
	Type    EventType `json:"type"`
	Text    string    `json:"text"`
	IsFinal bool      `json:"is_final"`
}

type errorWire struct {
	Type    EventType `json:"type"`
	Code    int       `json:"code"`
	Message string    `json:"message"`
}

func (e OutboundEvent) MarshalJSON() ([]byte, error) {
	switch e.Type {
	case EventDocCreated:
		return json.Marshal(docCreatedWire{Type: e.Type, DocID: e.DocID})
	case EventTranscript:
		return json.Marshal(transcriptWire{Type: e.Type, Text: e.Text, IsFinal: e.IsFinal})
	case EventError:
		return json.Marshal(errorWire{Type: e.Type, Code: e.Code, Message: e.Message})
	default:
		return nil, fmt.Errorf("unknown outbound event type %q", e.Type)
	}
}

// DecodeHandshake parses the first client message.
func DecodeHandshake(data []byte) (Handshake, error) {
	var hs Handshake
	if err := json.Unmarshal(data, &hs); err != nil {
		return Handshake{}, fmt.Errorf("%w: %w", ErrMalformedHandshake, err)
	}
	return hs, nil
}

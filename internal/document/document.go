package document

import (
	"context"
	"errors"
)

var (
	ErrCreateFailed     = errors.New("document creation failed")
	ErrAppendFailed     = errors.New("document append failed")
	ErrReadFailed       = errors.New("document read failed")
	ErrDocumentNotFound = errors.New("document not found or not accessible")
)

// Sink is the remote document service. AppendText resolves the document
// end on every call so concurrent external edits are respected.
type Sink interface {
	CreateDocument(ctx context.Context, title string) (string, error)
	AppendText(ctx context.Context, documentID, text string) error
	ReadFullText(ctx context.Context, documentID string) (string, error)
	CheckDocument(ctx context.Context, documentID string) error
}

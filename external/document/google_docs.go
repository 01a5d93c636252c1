package document

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/foxseedlab/voicememo/internal/auth"
	"github.com/foxseedlab/voicememo/internal/document"
	docs "google.golang.org/api/docs/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type GoogleDocsSink struct {
	credentials  auth.Provider
	extraOptions []option.ClientOption
}

// NewGoogleDocsSink builds a Docs client per call from the provider's
// current credentials, so token refreshes are picked up between calls.
func NewGoogleDocsSink(credentials auth.Provider, extraOptions ...option.ClientOption) document.Sink {
	return &GoogleDocsSink{
		credentials:  credentials,
		extraOptions: extraOptions,
	}
}

func (s *GoogleDocsSink) CreateDocument(ctx context.Context, title string) (string, error) {
	srv, err := s.service(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", document.ErrCreateFailed, err)
	}
	doc, err := srv.Documents.Create(&docs.Document{Title: title}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("%w: %w", document.ErrCreateFailed, err)
	}
	if doc.DocumentId == "" {
		return "", fmt.Errorf("%w: response has no document id", document.ErrCreateFailed)
	}
	slog.Info("google doc created", "title", title, "doc_id", doc.DocumentId)
	return doc.DocumentId, nil
}

func (s *GoogleDocsSink) AppendText(ctx context.Context, documentID, text string) error {
	srv, err := s.service(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", document.ErrAppendFailed, err)
	}
	doc, err := srv.Documents.Get(documentID).Fields("body/content/endIndex").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%w: read end index: %w", document.ErrAppendFailed, err)
	}
	req := &docs.BatchUpdateDocumentRequest{
		Requests: []*docs.Request{
			{
				InsertText: &docs.InsertTextRequest{
					Location: &docs.Location{Index: bodyInsertIndex(doc)},
					Text:     text + "\n",
				},
			},
		},
	}
	if _, err := srv.Documents.BatchUpdate(documentID, req).Context(ctx).Do(); err != nil {
		return fmt.Errorf("%w: %w", document.ErrAppendFailed, err)
	}
	return nil
}

func (s *GoogleDocsSink) ReadFullText(ctx context.Context, documentID string) (string, error) {
	srv, err := s.service(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", document.ErrReadFailed, err)
	}
	doc, err := srv.Documents.Get(documentID).Fields("body").Context(ctx).Do()
	if err != nil {
		return "", classifyReadError(err)
	}
	return bodyText(doc), nil
}

func (s *GoogleDocsSink) CheckDocument(ctx context.Context, documentID string) error {
	srv, err := s.service(ctx)
	if err != nil {
		return fmt.Errorf("%w: %w", document.ErrReadFailed, err)
	}
	if _, err := srv.Documents.Get(documentID).Fields("documentId").Context(ctx).Do(); err != nil {
		return classifyReadError(err)
	}
	return nil
}

func (s *GoogleDocsSink) service(ctx context.Context) (*docs.Service, error) {
	opts, err := s.credentials.ClientOptions(ctx)
	if err != nil {
		return nil, err
	}
	opts = append(opts, s.extraOptions...)
	return docs.NewService(ctx, opts...)
}

// bodyInsertIndex is the last index before the body's trailing newline.
func bodyInsertIndex(doc *docs.Document) int64 {
	if doc.Body == nil || len(doc.Body.Content) == 0 {
		return 1
	}
	end := doc.Body.Content[len(doc.Body.Content)-1].EndIndex - 1
	if end < 1 {
		return 1
	}
	return end
}

func bodyText(doc *docs.Document) string {
	if doc.Body == nil {
		return ""
	}
	var b strings.Builder
	for _, el := range doc.Body.Content {
		if el.Paragraph == nil {
			continue
		}
		for _, pe := range el.Paragraph.Elements {
			if pe.TextRun != nil {
				b.WriteString(pe.TextRun.Content)
			}
		}
	}
	return b.String()
}

func classifyReadError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && (apiErr.Code == http.StatusNotFound || apiErr.Code == http.StatusForbidden) {
		return fmt.Errorf("%w: %w", document.ErrDocumentNotFound, err)
	}
	return fmt.Errorf("%w: %w", document.ErrReadFailed, err)
}

package session

import (
	"errors"
	"fmt"
	"strings"

	"github.com/foxseedlab/voicememo/internal/transport"
)

type DocumentMode string

const (
	DocumentModeNew    DocumentMode = "new"
	DocumentModeAppend DocumentMode = "append"
)

var (
	// ErrConfig is wrapped by every handshake rejection.
	ErrConfig              = errors.New("invalid session configuration")
	ErrMissingDocumentID   = errors.New("docId is required when docMode is append")
	ErrInvalidDocumentMode = errors.New("docMode must be new or append")
)

// Descriptor is a handshake with defaults applied.
type Descriptor struct {
	LanguageCode  string
	DocumentTitle string
	Mode          DocumentMode
	DocumentID    string
}

type Defaults struct {
	LanguageCode  string
	DocumentTitle string
}

func Resolve(hs transport.Handshake, defaults Defaults) (Descriptor, error) {
	d := Descriptor{
		LanguageCode:  strings.TrimSpace(hs.Language),
		DocumentTitle: strings.TrimSpace(hs.DocTitle),
	}
	if d.LanguageCode == "" {
		d.LanguageCode = defaults.LanguageCode
	}
	if d.DocumentTitle == "" {
		d.DocumentTitle = defaults.DocumentTitle
	}

	switch DocumentMode(strings.ToLower(strings.TrimSpace(hs.DocMode))) {
	case "", DocumentModeNew:
		d.Mode = DocumentModeNew
	case DocumentModeAppend:
		d.Mode = DocumentModeAppend
		d.DocumentID = strings.TrimSpace(hs.DocID)
		if d.DocumentID == "" {
			return Descriptor{}, fmt.Errorf("%w: %w", ErrConfig, ErrMissingDocumentID)
		}
	default:
		return Descriptor{}, fmt.Errorf("%w: %w (got %q)", ErrConfig, ErrInvalidDocumentMode, hs.DocMode)
	}
	return d, nil
}

package auth

import (
	"context"
	"errors"

	"google.golang.org/api/option"
)

var ErrUnauthenticated = errors.New("no valid google credentials")

// Scopes requested for speech recognition and document editing.
var Scopes = []string{
	"https://www.googleapis.com/auth/cloud-platform",
	"https://www.googleapis.com/auth/documents",
	"https://www.googleapis.com/auth/drive.file",
}

// Provider hands out the current credential handle. Implementations may
// refresh tokens behind the scenes; callers treat the result as read-only.
type Provider interface {
	Authorize(ctx context.Context) error
	ClientOptions(ctx context.Context) ([]option.ClientOption, error)
}

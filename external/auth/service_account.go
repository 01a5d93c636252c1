package auth

import (
	"context"
	"fmt"

	cloudauth "cloud.google.com/go/auth"
	"cloud.google.com/go/auth/credentials"
	"github.com/foxseedlab/voicememo/internal/auth"
	"google.golang.org/api/option"
)

type ServiceAccountProvider struct {
	creds *cloudauth.Credentials
}

func NewServiceAccountProvider(credentialsJSON []byte) (auth.Provider, error) {
	creds, err := credentials.DetectDefault(&credentials.DetectOptions{
		CredentialsJSON: credentialsJSON,
		Scopes:          auth.Scopes,
	})
	if err != nil {
		return nil, fmt.Errorf("detect credentials: %w", err)
	}
	return &ServiceAccountProvider{creds: creds}, nil
}

func (p *ServiceAccountProvider) Authorize(ctx context.Context) error {
	if _, err := p.creds.Token(ctx); err != nil {
		return fmt.Errorf("%w: %w", auth.ErrUnauthenticated, err)
	}
	return nil
}

func (p *ServiceAccountProvider) ClientOptions(context.Context) ([]option.ClientOption, error) {
	return []option.ClientOption{option.WithAuthCredentials(p.creds)}, nil
}

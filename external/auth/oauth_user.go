package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"

	"github.com/foxseedlab/voicememo/internal/auth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// OAuthUserProvider serves the authorized user token that the /login and
// /oauth2callback routes store in tokenFile. Refreshed tokens are written
// back to the same file.
type OAuthUserProvider struct {
	oauthConfig *oauth2.Config
	tokenFile   string

	mu sync.Mutex
}

func NewOAuthUserProvider(credentialsJSON []byte, tokenFile string) (auth.Provider, error) {
	conf, err := google.ConfigFromJSON(credentialsJSON, auth.Scopes...)
	if err != nil {
		return nil, fmt.Errorf("parse oauth client credentials: %w", err)
	}
	return &OAuthUserProvider{oauthConfig: conf, tokenFile: tokenFile}, nil
}

func (p *OAuthUserProvider) Authorize(ctx context.Context) error {
	ts, err := p.tokenSource()
	if err != nil {
		return err
	}
	if _, err := ts.Token(); err != nil {
		return fmt.Errorf("%w: refresh token: %w", auth.ErrUnauthenticated, err)
	}
	return nil
}

func (p *OAuthUserProvider) ClientOptions(ctx context.Context) ([]option.ClientOption, error) {
	ts, err := p.tokenSource()
	if err != nil {
		return nil, err
	}
	return []option.ClientOption{option.WithTokenSource(ts)}, nil
}

// AuthCodeURL returns the consent page URL. Offline access is requested so
// the stored token carries a refresh token.
func (p *OAuthUserProvider) AuthCodeURL(redirectURL, state string) string {
	return p.configFor(redirectURL).AuthCodeURL(state, oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("include_granted_scopes", "true"),
		oauth2.SetAuthURLParam("prompt", "consent"))
}

// CompleteLogin exchanges an authorization code and stores the token.
func (p *OAuthUserProvider) CompleteLogin(ctx context.Context, redirectURL, code string) error {
	tok, err := p.configFor(redirectURL).Exchange(ctx, code)
	if err != nil {
		return fmt.Errorf("exchange authorization code: %w", err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := writeToken(p.tokenFile, tok); err != nil {
		return fmt.Errorf("store oauth token: %w", err)
	}
	return nil
}

// Logout forgets the stored token. A missing file is not an error.
func (p *OAuthUserProvider) Logout() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := os.Remove(p.tokenFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove token file: %w", err)
	}
	return nil
}

func (p *OAuthUserProvider) configFor(redirectURL string) *oauth2.Config {
	conf := *p.oauthConfig
	conf.RedirectURL = redirectURL
	return &conf
}

func (p *OAuthUserProvider) tokenSource() (oauth2.TokenSource, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tok, err := readToken(p.tokenFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, auth.ErrUnauthenticated
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", auth.ErrUnauthenticated, err)
	}
	if !tok.Valid() && tok.RefreshToken == "" {
		return nil, fmt.Errorf("%w: token expired and no refresh token", auth.ErrUnauthenticated)
	}
	// Refreshes outlive any single request.
	base := p.oauthConfig.TokenSource(context.Background(), tok)
	return &persistingTokenSource{base: base, path: p.tokenFile, last: tok}, nil
}

type persistingTokenSource struct {
	base oauth2.TokenSource
	path string

	mu   sync.Mutex
	last *oauth2.Token
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || s.last.AccessToken != tok.AccessToken {
		if err := writeToken(s.path, tok); err != nil {
			slog.Warn("failed to persist refreshed oauth token", "error", err, "path", s.path)
		}
		s.last = tok
	}
	return tok, nil
}

func readToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode token file: %w", err)
	}
	return &tok, nil
}

func writeToken(path string, tok *oauth2.Token) error {
	b, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

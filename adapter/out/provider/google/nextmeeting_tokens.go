// Package google implements the Google Calendar provider: OAuth 2.0 PKCE
// token lifecycle and the calendar/v3 backed event source.
package google

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"nextmeeting_server/pkg/apperr"
)

// expiryMargin refreshes tokens slightly before they actually expire.
const expiryMargin = 60 * time.Second

// TokenInfo is the persisted token state for one account.
type TokenInfo struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token,omitempty"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Scopes       []string   `json:"scopes,omitempty"`
	LastRefresh  time.Time  `json:"last_refresh,omitempty"`
}

// IsExpired reports whether the access token is past (or within the safety
// margin of) its expiry. Tokens without expiry never expire client-side.
func (t *TokenInfo) IsExpired(now time.Time) bool {
	if t.ExpiresAt == nil {
		return false
	}
	return !now.Before(t.ExpiresAt.Add(-expiryMargin))
}

// HasScopes reports whether required is a subset of the stored scopes.
// Re-authorization is required when it is not.
func (t *TokenInfo) HasScopes(required []string) bool {
	stored := make(map[string]struct{}, len(t.Scopes))
	for _, s := range t.Scopes {
		stored[s] = struct{}{}
	}
	for _, r := range required {
		if _, ok := stored[r]; !ok {
			return false
		}
	}
	return true
}

// TokenFilePath returns the default token location for an account:
// $XDG_DATA_HOME/nextmeeting/google-tokens-{account}.json.
func TokenFilePath(account string) string {
	dataHome := os.Getenv("XDG_DATA_HOME")
	if dataHome == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		dataHome = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dataHome, "nextmeeting", fmt.Sprintf("google-tokens-%s.json", account))
}

// TokenStore owns one account's tokens: load, atomic persist with 0600
// permissions, and single-flight refresh.
type TokenStore struct {
	path        string
	oauthConfig *oauth2.Config
	log         zerolog.Logger

	mu    sync.RWMutex
	token *TokenInfo

	// refreshMu serializes refreshes; concurrent callers wait for the
	// in-flight result instead of issuing their own grant.
	refreshMu sync.Mutex
}

// NewTokenStore creates a store bound to path. The token file is read once,
// here; a missing or unreadable file just means not authenticated yet.
func NewTokenStore(path string, oauthConfig *oauth2.Config, log zerolog.Logger) *TokenStore {
	store := &TokenStore{
		path:        path,
		oauthConfig: oauthConfig,
		log:         log.With().Str("component", "token_store").Logger(),
	}
	if token, err := loadTokenFile(path); err == nil {
		store.token = token
	}
	return store
}

func loadTokenFile(path string) (*TokenInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var token TokenInfo
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, err
	}
	return &token, nil
}

// Save persists tokens atomically: write .json.tmp, then rename over the
// target, both with 0600 permissions.
func (s *TokenStore) Save(token *TokenInfo) error {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Current returns a copy of the stored token, nil when unauthenticated.
func (s *TokenStore) Current() *TokenInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.token == nil {
		return nil
	}
	copied := *s.token
	return &copied
}

// IsAuthenticated reports whether any usable credential is present.
func (s *TokenStore) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token != nil && (s.token.RefreshToken != "" || !s.token.IsExpired(time.Now()))
}

// AccessToken returns a valid access token, refreshing first when expired.
func (s *TokenStore) AccessToken(ctx context.Context) (string, error) {
	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token == nil {
		return "", apperr.AuthenticationFailed("no stored tokens; run the auth command first")
	}
	if !token.IsExpired(time.Now()) {
		return token.AccessToken, nil
	}
	if err := s.Refresh(ctx); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token.AccessToken, nil
}

// Refresh exchanges the refresh token for a new access token and persists
// it. At most one refresh runs at a time; latecomers observe its result.
func (s *TokenStore) Refresh(ctx context.Context) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	s.mu.RLock()
	token := s.token
	s.mu.RUnlock()

	if token == nil {
		return apperr.AuthenticationFailed("no stored tokens; run the auth command first")
	}
	// Another caller may have refreshed while we waited for the lock.
	if !token.IsExpired(time.Now()) {
		return nil
	}
	if token.RefreshToken == "" {
		return apperr.AuthenticationFailed("access token expired and no refresh token stored; re-authorization required")
	}

	source := s.oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: token.RefreshToken})
	fresh, err := source.Token()
	if err != nil {
		return apperr.AuthenticationFailed("token refresh failed: " + err.Error())
	}

	updated := *token
	updated.AccessToken = fresh.AccessToken
	if fresh.RefreshToken != "" {
		updated.RefreshToken = fresh.RefreshToken
	}
	if !fresh.Expiry.IsZero() {
		expiry := fresh.Expiry
		updated.ExpiresAt = &expiry
	}
	updated.LastRefresh = time.Now()

	if err := s.Save(&updated); err != nil {
		return apperr.Wrap(err, apperr.CodeInternalError, "failed to persist refreshed tokens")
	}
	s.log.Debug().Msg("access token refreshed")
	return nil
}

// TokenSource adapts the store to the oauth2.TokenSource contract so the
// Google API client refreshes through the store's single-flight path.
func (s *TokenStore) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &storeTokenSource{ctx: ctx, store: s}
}

type storeTokenSource struct {
	ctx   context.Context
	store *TokenStore
}

func (ts *storeTokenSource) Token() (*oauth2.Token, error) {
	access, err := ts.store.AccessToken(ts.ctx)
	if err != nil {
		return nil, err
	}
	token := &oauth2.Token{AccessToken: access, TokenType: "Bearer"}
	if current := ts.store.Current(); current != nil && current.ExpiresAt != nil {
		token.Expiry = *current.ExpiresAt
	}
	return token, nil
}

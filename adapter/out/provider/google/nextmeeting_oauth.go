package google

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	oauthgoogle "golang.org/x/oauth2/google"

	"nextmeeting_server/pkg/apperr"
)

// callbackTimeout bounds the wait for the browser redirect.
const callbackTimeout = 5 * time.Minute

// DefaultScopes are the Calendar scopes the daemon needs.
var DefaultScopes = []string{
	"https://www.googleapis.com/auth/calendar.readonly",
	"https://www.googleapis.com/auth/calendar.events",
}

// OAuthCredentials identify the OAuth client application.
type OAuthCredentials struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	// PortRange is scanned for a free loopback port for the redirect.
	PortRangeStart uint16
	PortRangeEnd   uint16
}

// OAuthConfig builds the oauth2 configuration for the credentials.
func OAuthConfig(creds OAuthCredentials) *oauth2.Config {
	scopes := creds.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	return &oauth2.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		Scopes:       scopes,
		Endpoint:     oauthgoogle.Endpoint,
	}
}

type callbackResult struct {
	code  string
	state string
	err   string
}

// Authorize runs the interactive authorization-code flow with PKCE: bind a
// loopback listener, send the user's browser to the consent page, wait for
// the single-shot /callback redirect, verify the CSRF state, and exchange
// the code for tokens. Invoked by the auth command, never by the daemon.
func Authorize(ctx context.Context, creds OAuthCredentials, log zerolog.Logger) (*TokenInfo, error) {
	log = log.With().Str("component", "oauth").Logger()
	conf := OAuthConfig(creds)

	verifier := oauth2.GenerateVerifier()
	state, err := randomState()
	if err != nil {
		return nil, apperr.InternalWithError(err)
	}

	listener, port, err := bindLoopback(creds.PortRangeStart, creds.PortRangeEnd)
	if err != nil {
		return nil, err
	}
	conf.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d/callback", port)

	authURL := conf.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", "consent"),
	)

	log.Info().Msg("starting OAuth flow, opening browser")
	if err := openBrowser(authURL); err != nil {
		log.Warn().Err(err).Msg("could not open browser")
		fmt.Printf("\nPlease open this URL in your browser:\n\n%s\n\n", authURL)
	}

	result, err := waitForCallback(listener)
	if err != nil {
		return nil, err
	}
	if result.err != "" {
		return nil, apperr.AuthenticationFailed("authorization denied: " + result.err)
	}
	if result.state != state {
		return nil, apperr.AuthenticationFailed("OAuth state mismatch, possible CSRF")
	}

	log.Info().Msg("received authorization code, exchanging for tokens")
	token, err := conf.Exchange(ctx, result.code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, apperr.AuthenticationFailed("token exchange failed: " + err.Error())
	}

	info := &TokenInfo{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		Scopes:       conf.Scopes,
		LastRefresh:  time.Now(),
	}
	if !token.Expiry.IsZero() {
		expiry := token.Expiry
		info.ExpiresAt = &expiry
	}
	return info, nil
}

// randomState produces 16 random bytes, URL-safe base64 without padding.
func randomState() (string, error) {
	var buf [16]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf[:]), nil
}

// bindLoopback scans the port range for a free loopback port.
func bindLoopback(start, end uint16) (net.Listener, uint16, error) {
	if start == 0 {
		start, end = 8400, 8420
	}
	if end < start {
		end = start
	}
	for port := start; port <= end; port++ {
		listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
		if err == nil {
			return listener, port, nil
		}
	}
	return nil, 0, apperr.ConfigError(fmt.Sprintf("no available loopback port in range %d-%d", start, end))
}

// waitForCallback serves the single-shot callback handler and returns the
// redirect parameters, failing after the callback timeout.
func waitForCallback(listener net.Listener) (*callbackResult, error) {
	results := make(chan callbackResult, 1)

	mux := http.NewServeMux()
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		result := callbackResult{
			code:  query.Get("code"),
			state: query.Get("state"),
			err:   query.Get("error"),
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if result.err != "" {
			fmt.Fprint(w, "<html><body><h2>Authorization failed</h2><p>You can close this window.</p></body></html>")
		} else {
			fmt.Fprint(w, "<html><body><h2>Authorization complete</h2><p>You can close this window and return to the terminal.</p></body></html>")
		}

		select {
		case results <- result:
		default:
		}
	})

	server := &http.Server{Handler: mux}
	go server.Serve(listener)
	defer server.Close()

	select {
	case result := <-results:
		return &result, nil
	case <-time.After(callbackTimeout):
		return nil, apperr.Timeout("waiting for OAuth callback")
	}
}

// openBrowser asks the desktop to open url.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}

package bootstrap

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"nextmeeting_server/adapter/out/provider/google"
	"nextmeeting_server/config"
	"nextmeeting_server/pkg/apperr"
)

// RunAuth executes the interactive Google OAuth PKCE flow and persists the
// obtained tokens for the configured account.
func RunAuth(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	if !cfg.HasGoogle() {
		return apperr.ConfigError("GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET must be set")
	}

	creds := google.OAuthCredentials{
		ClientID:       cfg.GoogleClientID,
		ClientSecret:   cfg.GoogleClientSecret,
		PortRangeStart: cfg.OAuthPortStart,
		PortRangeEnd:   cfg.OAuthPortEnd,
	}

	token, err := google.Authorize(ctx, creds, log)
	if err != nil {
		return err
	}

	path := google.TokenFilePath(cfg.GoogleAccount)
	store := google.NewTokenStore(path, google.OAuthConfig(creds), log)
	if err := store.Save(token); err != nil {
		return err
	}

	fmt.Printf("Authorization complete. Tokens saved to %s\n", path)
	return nil
}

package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	gsheet "google.golang.org/api/sheets/v4"
)

// OAuth environment variables. A user token takes precedence over service
// account credentials when both the client and the token are present.
const (
	EnvOAuthClientJSON = "GOOGLE_OAUTH_CLIENT_JSON"
	EnvOAuthClientFile = "GOOGLE_OAUTH_CLIENT_FILE"
	EnvOAuthTokenJSON  = "GOOGLE_OAUTH_TOKEN_JSON"
	EnvOAuthTokenFile  = "GOOGLE_OAUTH_TOKEN_FILE"
)

var errNoOAuth = errors.New("oauth credentials not configured")

// OAuthConfigFromEnv loads the OAuth client from GOOGLE_OAUTH_CLIENT_JSON or
// GOOGLE_OAUTH_CLIENT_FILE with the spreadsheets scope.
func OAuthConfigFromEnv() (*oauth2.Config, error) {
	b, err := readEnvOrFile(EnvOAuthClientJSON, EnvOAuthClientFile)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, fmt.Errorf("set %s or %s: %w", EnvOAuthClientJSON, EnvOAuthClientFile, errNoOAuth)
	}
	cfg, err := goauth.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

// SaveToken writes tok to path, readable only by the owner.
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return fmt.Errorf("write token: %w", err)
	}
	return f.Close()
}

// oauthTokenSource returns errNoOAuth when neither a client nor a token is
// configured, so the caller can fall back to a service account.
func oauthTokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	tokJSON, err := readEnvOrFile(EnvOAuthTokenJSON, EnvOAuthTokenFile)
	if err != nil {
		return nil, err
	}
	cfg, err := OAuthConfigFromEnv()
	switch {
	case errors.Is(err, errNoOAuth) && tokJSON == nil:
		return nil, errNoOAuth
	case errors.Is(err, errNoOAuth):
		return nil, fmt.Errorf("oauth token configured without a client: set %s or %s", EnvOAuthClientJSON, EnvOAuthClientFile)
	case err != nil:
		return nil, err
	case tokJSON == nil:
		return nil, fmt.Errorf("oauth client configured without a token: set %s or %s", EnvOAuthTokenJSON, EnvOAuthTokenFile)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(tokJSON, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}
	return cfg.TokenSource(ctx, &tok), nil
}

// readEnvOrFile returns the inline value of jsonKey, else the contents of the
// file named by fileKey, else nil.
func readEnvOrFile(jsonKey, fileKey string) ([]byte, error) {
	if v := strings.TrimSpace(os.Getenv(jsonKey)); v != "" {
		return []byte(v), nil
	}
	path := strings.TrimSpace(os.Getenv(fileKey))
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileKey, err)
	}
	return b, nil
}

package google

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

const testOAuthClient = `{"installed":{"client_id":"id.apps.googleusercontent.com","client_secret":"secret",` +
	`"auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token",` +
	`"redirect_uris":["http://localhost"]}}`

func TestOAuthTokenSource(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{name: "nothing configured", wantErr: errNoOAuth.Error()},
		{
			name:    "invalid client",
			env:     map[string]string{EnvOAuthClientJSON: "invalid-json", EnvOAuthTokenJSON: `{"access_token":"test"}`},
			wantErr: "oauth config",
		},
		{
			name:    "client without token",
			env:     map[string]string{EnvOAuthClientJSON: testOAuthClient},
			wantErr: "without a token",
		},
		{
			name:    "token without client",
			env:     map[string]string{EnvOAuthTokenJSON: `{"access_token":"test"}`},
			wantErr: "without a client",
		},
		{
			name:    "malformed token",
			env:     map[string]string{EnvOAuthClientJSON: testOAuthClient, EnvOAuthTokenJSON: "{"},
			wantErr: "parse oauth token",
		},
		{
			name:    "missing token file",
			env:     map[string]string{EnvOAuthClientJSON: testOAuthClient, EnvOAuthTokenFile: "/non/existent/token.json"},
			wantErr: "read GOOGLE_OAUTH_TOKEN_FILE",
		},
		{
			name: "client and token",
			env:  map[string]string{EnvOAuthClientJSON: testOAuthClient, EnvOAuthTokenJSON: `{"access_token":"test"}`},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearCredentials(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			ts, err := oauthTokenSource(context.Background())
			if tt.wantErr == "" {
				if err != nil || ts == nil {
					t.Fatalf("oauthTokenSource() = %v, %v", ts, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("oauthTokenSource() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestNewFromEnvWithInvalidOAuthClient(t *testing.T) {
	clearCredentials(t)
	t.Setenv(EnvOAuthClientJSON, "invalid-json")
	t.Setenv(EnvOAuthTokenJSON, `{"access_token":"test"}`)

	_, err := NewFromEnv(context.Background(), "sheet-1", nil)
	if err == nil || !strings.Contains(err.Error(), "oauth config") {
		t.Fatalf("expected oauth config error, got: %v", err)
	}
}

func TestNewFromEnvWithOAuthToken(t *testing.T) {
	clearCredentials(t)
	t.Setenv(EnvOAuthClientJSON, testOAuthClient)
	t.Setenv(EnvOAuthTokenJSON, `{"access_token":"test","token_type":"Bearer"}`)

	c, err := NewFromEnv(context.Background(), "sheet-1", nil)
	if err != nil {
		t.Fatalf("NewFromEnv: %v", err)
	}
	if c.svc == nil || c.spreadsheetID != "sheet-1" {
		t.Fatalf("unexpected client: %+v", c)
	}
}

func TestSaveToken(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	want := &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}
	if err := SaveToken(path, want); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("token file mode = %v, want 0600", perm)
	}

	b, _ := os.ReadFile(path)
	var got oauth2.Token
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.AccessToken != want.AccessToken || got.RefreshToken != want.RefreshToken || !got.Expiry.Equal(want.Expiry) {
		t.Fatalf("token = %+v, want %+v", got, want)
	}

	// The saved file feeds straight back in as GOOGLE_OAUTH_TOKEN_FILE.
	clearCredentials(t)
	t.Setenv(EnvOAuthClientJSON, testOAuthClient)
	t.Setenv(EnvOAuthTokenFile, path)
	if _, err := oauthTokenSource(context.Background()); err != nil {
		t.Fatalf("token file should load: %v", err)
	}
}

func TestSaveTokenUnwritable(t *testing.T) {
	err := SaveToken(filepath.Join(t.TempDir(), "missing", "token.json"), &oauth2.Token{})
	if err == nil || !strings.Contains(err.Error(), "open token file") {
		t.Fatalf("unexpected error: %v", err)
	}
	if errors.Is(err, errNoOAuth) {
		t.Fatal("write failure must not look like missing configuration")
	}
}

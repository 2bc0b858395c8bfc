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
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

var (
	errMissingOAuthClient = errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	errMissingOAuthToken  = errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
)

// OAuthConfigFromEnv builds the installed-app OAuth config used to mirror
// into a personal spreadsheet instead of one shared with a service account.
func OAuthConfigFromEnv() (*oauth2.Config, error) {
	b, err := readEnvOrFile("GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE")
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errMissingOAuthClient
	}
	cfg, err := goauth.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

func tokenFromEnv() (*oauth2.Token, error) {
	b, err := readEnvOrFile("GOOGLE_OAUTH_TOKEN_JSON", "GOOGLE_OAUTH_TOKEN_FILE")
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errMissingOAuthToken
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}
	return &tok, nil
}

// oauthOptionFromEnv returns a refreshing token source for the Sheets
// service, or ok=false when no OAuth client is configured at all.
func oauthOptionFromEnv(ctx context.Context) (opt goption.ClientOption, ok bool, err error) {
	cfg, err := OAuthConfigFromEnv()
	if errors.Is(err, errMissingOAuthClient) {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, err
	}
	tok, err := tokenFromEnv()
	if err != nil {
		return nil, true, err
	}
	return goption.WithTokenSource(cfg.TokenSource(ctx, tok)), true, nil
}

// SaveToken writes tok as JSON readable only by the owner.
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return fmt.Errorf("write token: %w", err)
	}
	return f.Close()
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

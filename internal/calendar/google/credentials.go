package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	gcal "google.golang.org/api/calendar/v3"
)

// TokenFileCredentials authorises calendar calls with an OAuth token that was
// obtained ahead of time and stored as JSON on disk.
type TokenFileCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	TokenFile    string
}

func (c TokenFileCredentials) OAuthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
		RedirectURL:  c.RedirectURL,
		Endpoint:     googleoauth.Endpoint,
		Scopes:       []string{gcal.CalendarScope},
	}
}

// HTTPClient returns a client that attaches and refreshes the stored token.
func (c TokenFileCredentials) HTTPClient(ctx context.Context) (*http.Client, error) {
	if strings.TrimSpace(c.ClientID) == "" || strings.TrimSpace(c.ClientSecret) == "" {
		return nil, errors.New("google client id and secret are required")
	}
	tok, err := readToken(c.TokenFile)
	if err != nil {
		return nil, err
	}
	return c.OAuthConfig().Client(ctx, tok), nil
}

func readToken(path string) (*oauth2.Token, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("google token file is required")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decode token file: %w", err)
	}
	if tok.AccessToken == "" && tok.RefreshToken == "" {
		return nil, errors.New("token file has neither access nor refresh token")
	}
	return tok, nil
}

// Package auth handles the Twitch implicit-grant flow for the bot: building
// the login link, pulling the access token out of the redirect fragment and
// handing it to the bot API.
package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/twitch"
)

// DefaultScopes are the scopes the bot needs to read, write and moderate chat.
var DefaultScopes = []string{"chat:read", "chat:edit", "user:edit", "moderation:read"}

var ErrNoAccessToken = errors.New("no access_token in fragment")

// ExtractAccessToken returns the raw access_token value from a redirect
// fragment such as "#access_token=ABC&scope=chat%3Aread". The leading '#' is
// optional. The value is not unescaped.
func ExtractAccessToken(fragment string) (string, error) {
	fragment = strings.TrimPrefix(fragment, "#")
	for _, param := range strings.Split(fragment, "&") {
		key, value, found := strings.Cut(param, "=")
		if !found || key != "access_token" {
			continue
		}
		if value == "" {
			return "", ErrNoAccessToken
		}
		return value, nil
	}
	return "", ErrNoAccessToken
}

// OAuthConfig identifies the Twitch application used for login.
type OAuthConfig struct {
	ClientID    string
	RedirectURI string
	Scopes      []string
}

// LoginURL builds the Twitch authorize link. Twitch redirects back to
// RedirectURI with the token in the fragment.
func LoginURL(cfg OAuthConfig) string {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = DefaultScopes
	}
	oc := &oauth2.Config{
		ClientID:    cfg.ClientID,
		Endpoint:    twitch.Endpoint,
		RedirectURL: cfg.RedirectURI,
		Scopes:      scopes,
	}
	return oc.AuthCodeURL("", oauth2.SetAuthURLParam("response_type", "token"))
}

// Backend is the part of the bot API the authenticator needs.
type Backend interface {
	CheckAuth(ctx context.Context) (bool, error)
	AddOAuth(ctx context.Context, token string) error
}

// Authenticator checks and updates the bot's OAuth state.
type Authenticator struct {
	backend Backend
}

// NewAuthenticator wraps a bot API backend.
func NewAuthenticator(b Backend) *Authenticator {
	return &Authenticator{backend: b}
}

// Authenticated reports the bot's auth status. Any failure counts as false.
func (a *Authenticator) Authenticated(ctx context.Context) bool {
	ok, err := a.backend.CheckAuth(ctx)
	if err != nil {
		slog.Warn("checking bot authentication failed", "err", err)
		return false
	}
	return ok
}

// SendToken extracts the token from a redirect fragment and forwards it.
func (a *Authenticator) SendToken(ctx context.Context, fragment string) error {
	token, err := ExtractAccessToken(fragment)
	if err != nil {
		return err
	}
	return a.SendRawToken(ctx, token)
}

// SendRawToken forwards an already extracted token.
func (a *Authenticator) SendRawToken(ctx context.Context, token string) error {
	if token == "" {
		return ErrNoAccessToken
	}
	if err := a.backend.AddOAuth(ctx, token); err != nil {
		slog.Error("sending oauth token to bot failed", "err", err)
		return err
	}
	slog.Info("oauth token forwarded to bot")
	return nil
}

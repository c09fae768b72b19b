// Package identity authenticates users against external OAuth providers.
package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/dom/rally-league/internal/config"
	"golang.org/x/oauth2"
)

const (
	discordAuthURL  = "https://discord.com/oauth2/authorize"
	discordTokenURL = "https://discord.com/api/oauth2/token"
	discordAPIURL   = "https://discord.com/api"
)

var ErrExchangeFailed = errors.New("oauth code exchange failed")

// Profile is the subset of an external account this service relies on.
type Profile struct {
	ExternalID  string
	Username    string
	DisplayName string
}

// Provider drives an OAuth authorization-code login.
type Provider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (*Profile, error)
}

type DiscordProvider struct {
	oauth  *oauth2.Config
	apiURL string
}

type DiscordOption func(*DiscordProvider)

// WithDiscordEndpoints points the provider at a different host, used by tests.
func WithDiscordEndpoints(authURL, tokenURL, apiURL string) DiscordOption {
	return func(p *DiscordProvider) {
		p.oauth.Endpoint = oauth2.Endpoint{AuthURL: authURL, TokenURL: tokenURL, AuthStyle: oauth2.AuthStyleInParams}
		p.apiURL = apiURL
	}
}

func NewDiscordProvider(cfg *config.Config, opts ...DiscordOption) *DiscordProvider {
	p := &DiscordProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.DiscordClientID,
			ClientSecret: cfg.DiscordClientSecret,
			RedirectURL:  cfg.DiscordRedirectURL,
			Scopes:       []string{"identify"},
			Endpoint: oauth2.Endpoint{
				AuthURL:   discordAuthURL,
				TokenURL:  discordTokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		apiURL: discordAPIURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *DiscordProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

type discordUser struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	GlobalName *string `json:"global_name"`
}

func (p *DiscordProvider) Exchange(ctx context.Context, code string) (*Profile, error) {
	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}

	client := p.oauth.Client(ctx, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.apiURL+"/users/@me", nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch discord user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch discord user: status %d", resp.StatusCode)
	}

	var u discordUser
	if err := json.NewDecoder(resp.Body).Decode(&u); err != nil {
		return nil, fmt.Errorf("decode discord user: %w", err)
	}
	if u.ID == "" {
		return nil, errors.New("discord user has no id")
	}

	profile := &Profile{
		ExternalID:  u.ID,
		Username:    u.Username,
		DisplayName: u.Username,
	}
	if u.GlobalName != nil && *u.GlobalName != "" {
		profile.DisplayName = *u.GlobalName
	}
	return profile, nil
}

// NewState returns a random value for the OAuth state parameter.
func NewState() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

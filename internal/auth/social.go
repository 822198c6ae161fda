package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"samarpan/internal/domain"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

const (
	googleProfileURL   = "https://www.googleapis.com/oauth2/v3/userinfo"
	facebookProfileURL = "https://graph.facebook.com/me?fields=id,name,email,picture.type(large)"
)

// Profile is the identity an external provider vouches for.
type Profile struct {
	ExternalID string
	Email      string
	Name       string
	Avatar     string
}

// SocialProvider runs the OAuth2 authorization-code handshake with one identity provider and reads
// the user's profile afterwards.
type SocialProvider struct {
	Name       domain.Provider
	config     *oauth2.Config
	profileURL string
	decode     func(io.Reader) (Profile, error)
}

// OAuthCredentials are the client registration values for one provider.
type OAuthCredentials struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
}

// Configured reports whether the provider has client credentials.
func (c OAuthCredentials) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

func NewGoogleProvider(creds OAuthCredentials) *SocialProvider {
	return &SocialProvider{
		Name: domain.ProviderGoogle,
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.CallbackURL,
			Endpoint:     endpoints.Google,
			Scopes:       []string{"openid", "profile", "email"},
		},
		profileURL: googleProfileURL,
		decode:     decodeGoogleProfile,
	}
}

func NewFacebookProvider(creds OAuthCredentials) *SocialProvider {
	return &SocialProvider{
		Name: domain.ProviderFacebook,
		config: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.CallbackURL,
			Endpoint:     endpoints.Facebook,
			Scopes:       []string{"email", "public_profile"},
		},
		profileURL: facebookProfileURL,
		decode:     decodeFacebookProfile,
	}
}

// WithEndpoints points the provider at different token and profile URLs (tests, proxies).
func (p *SocialProvider) WithEndpoints(endpoint oauth2.Endpoint, profileURL string) *SocialProvider {
	cfg := *p.config
	cfg.Endpoint = endpoint
	return &SocialProvider{Name: p.Name, config: &cfg, profileURL: profileURL, decode: p.decode}
}

// AuthCodeURL is where the browser is sent to consent.
func (p *SocialProvider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

// Exchange trades an authorization code for a token and fetches the profile with it.
func (p *SocialProvider) Exchange(ctx context.Context, code string) (Profile, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return Profile{}, fmt.Errorf("%s token exchange: %w", p.Name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.profileURL, nil)
	if err != nil {
		return Profile{}, err
	}
	resp, err := p.config.Client(ctx, tok).Do(req)
	if err != nil {
		return Profile{}, fmt.Errorf("%s profile: %w", p.Name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Profile{}, fmt.Errorf("%s profile returned status %d", p.Name, resp.StatusCode)
	}
	return p.decode(resp.Body)
}

func decodeGoogleProfile(r io.Reader) (Profile, error) {
	var payload struct {
		Sub           string `json:"sub"`
		Name          string `json:"name"`
		Email         string `json:"email"`
		EmailVerified any    `json:"email_verified"`
		Picture       string `json:"picture"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return Profile{}, fmt.Errorf("decode google profile: %w", err)
	}
	email := payload.Email
	// An unverified address must not reach reconciliation, where email is the only key.
	if unverified(payload.EmailVerified) {
		email = ""
	}
	return Profile{ExternalID: payload.Sub, Email: email, Name: payload.Name, Avatar: payload.Picture}, nil
}

// unverified reports an explicit false; some responses encode the flag as a string.
func unverified(v any) bool {
	switch flag := v.(type) {
	case bool:
		return !flag
	case string:
		return strings.EqualFold(flag, "false")
	default:
		return false
	}
}

func decodeFacebookProfile(r io.Reader) (Profile, error) {
	var payload struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Email   string `json:"email"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return Profile{}, fmt.Errorf("decode facebook profile: %w", err)
	}
	return Profile{ExternalID: payload.ID, Email: payload.Email, Name: payload.Name, Avatar: payload.Picture.Data.URL}, nil
}

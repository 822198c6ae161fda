package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"golang.org/x/oauth2"
)

func fakeProvider(t *testing.T, profile any) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.Form.Get("code") != "good-code" {
			http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","token_type":"Bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/me", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer at-1" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(profile)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGoogleExchangeReadsProfile(t *testing.T) {
	srv := fakeProvider(t, map[string]string{
		"sub":     "g-123",
		"email":   "bob@example.com",
		"name":    "Bob",
		"picture": "https://img/bob.png",
	})
	creds := OAuthCredentials{ClientID: "id", ClientSecret: "secret", CallbackURL: "http://localhost/auth/google/callback"}
	provider := NewGoogleProvider(creds).WithEndpoints(oauth2.Endpoint{
		AuthURL:  srv.URL + "/auth",
		TokenURL: srv.URL + "/token",
	}, srv.URL+"/me")

	consent, err := url.Parse(provider.AuthCodeURL("state-1"))
	if err != nil {
		t.Fatalf("parse consent url: %v", err)
	}
	if consent.Query().Get("state") != "state-1" || !strings.Contains(consent.Query().Get("scope"), "email") {
		t.Fatalf("unexpected consent url %s", consent)
	}

	profile, err := provider.Exchange(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if profile.ExternalID != "g-123" || profile.Email != "bob@example.com" || profile.Avatar != "https://img/bob.png" {
		t.Fatalf("unexpected profile %+v", profile)
	}

	if _, err := provider.Exchange(context.Background(), "bad-code"); err == nil {
		t.Fatalf("expected a rejected code to fail")
	}
}

func TestGoogleUnverifiedEmailIsDropped(t *testing.T) {
	for _, flag := range []any{false, "false"} {
		srv := fakeProvider(t, map[string]any{
			"sub":            "g-7",
			"email":          "mallory@example.com",
			"email_verified": flag,
		})
		creds := OAuthCredentials{ClientID: "id", ClientSecret: "secret", CallbackURL: "http://localhost/auth/google/callback"}
		provider := NewGoogleProvider(creds).WithEndpoints(oauth2.Endpoint{
			AuthURL:  srv.URL + "/auth",
			TokenURL: srv.URL + "/token",
		}, srv.URL+"/me")

		profile, err := provider.Exchange(context.Background(), "good-code")
		if err != nil {
			t.Fatalf("exchange: %v", err)
		}
		if profile.ExternalID != "g-7" || profile.Email != "" {
			t.Fatalf("email_verified=%v: unexpected profile %+v", flag, profile)
		}
	}

	verified, err := decodeGoogleProfile(strings.NewReader(`{"sub":"g-8","email":"ok@example.com","email_verified":true}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if verified.Email != "ok@example.com" {
		t.Fatalf("verified email was dropped: %+v", verified)
	}
}

func TestFacebookProfileWithoutEmail(t *testing.T) {
	srv := fakeProvider(t, map[string]any{
		"id":   "fb-9",
		"name": "Eve",
		"picture": map[string]any{
			"data": map[string]string{"url": "https://img/eve.png"},
		},
	})
	provider := NewFacebookProvider(OAuthCredentials{ClientID: "id", ClientSecret: "secret"}).WithEndpoints(oauth2.Endpoint{
		AuthURL:  srv.URL + "/auth",
		TokenURL: srv.URL + "/token",
	}, srv.URL+"/me")

	profile, err := provider.Exchange(context.Background(), "good-code")
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}
	if profile.ExternalID != "fb-9" || profile.Email != "" || profile.Avatar != "https://img/eve.png" {
		t.Fatalf("unexpected profile %+v", profile)
	}
}

func TestCredentialsConfigured(t *testing.T) {
	if (OAuthCredentials{ClientID: "id"}).Configured() {
		t.Fatalf("expected missing secret to be unconfigured")
	}
	if !(OAuthCredentials{ClientID: "id", ClientSecret: "s"}).Configured() {
		t.Fatalf("expected id and secret to be configured")
	}
}

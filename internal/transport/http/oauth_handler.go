package http

import (
	"crypto/subtle"
	"net/http"
	"net/url"
	"time"

	"samarpan/internal/app"
	"samarpan/internal/auth"
	"samarpan/internal/domain"

	"github.com/sirupsen/logrus"
)

const (
	stateCookie    = "samarpan_oauth_state"
	stateCookieTTL = 10 * time.Minute
)

func (s *Server) provider(r *http.Request) (*auth.SocialProvider, bool) {
	p, ok := s.providers[domain.Provider(r.PathValue("provider"))]
	return p, ok
}

// startSocial sends the browser to the provider's consent page with a state bound to a cookie.
func (s *Server) startSocial(w http.ResponseWriter, r *http.Request) {
	p, ok := s.provider(r)
	if !ok {
		writeError(w, r, s.log, domain.NewError(domain.KindNotFound, "login provider is not configured"))
		return
	}
	state, err := auth.RandomState()
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     stateCookie,
		Value:    state,
		Path:     "/auth/",
		MaxAge:   int(stateCookieTTL / time.Second),
		HttpOnly: true,
		Secure:   s.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, p.AuthCodeURL(state), http.StatusFound)
}

// socialCallback finishes the handshake, reconciles the identity and hands the browser a one-time
// code instead of a credential.
func (s *Server) socialCallback(w http.ResponseWriter, r *http.Request) {
	p, ok := s.provider(r)
	if !ok {
		writeError(w, r, s.log, domain.NewError(domain.KindNotFound, "login provider is not configured"))
		return
	}
	log := s.log.WithField("provider", p.Name)

	// The state cookie is single use.
	http.SetCookie(w, &http.Cookie{Name: stateCookie, Value: "", Path: "/auth/", MaxAge: -1, HttpOnly: true})

	q := r.URL.Query()
	if denied := q.Get("error"); denied != "" {
		log.WithField("reason", denied).Info("social login declined")
		s.redirectFrontend(w, r, "error", "login_cancelled")
		return
	}
	cookie, err := r.Cookie(stateCookie)
	if err != nil || cookie.Value == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(q.Get("state"))) != 1 {
		log.Warn("social login state mismatch")
		s.redirectFrontend(w, r, "error", "invalid_state")
		return
	}
	code := q.Get("code")
	if code == "" {
		s.redirectFrontend(w, r, "error", "missing_code")
		return
	}

	profile, err := p.Exchange(r.Context(), code)
	if err != nil {
		log.WithError(err).Warn("social login exchange failed")
		s.redirectFrontend(w, r, "error", "provider_failed")
		return
	}
	user, err := s.identity.ReconcileSocialIdentity(r.Context(), app.SocialProfile{
		Provider:   p.Name,
		ExternalID: profile.ExternalID,
		Email:      profile.Email,
		Name:       profile.Name,
		Avatar:     profile.Avatar,
	})
	if err != nil {
		kind := domain.KindOf(err)
		log.WithError(err).WithField("kind", kind).Warn("social login reconcile failed")
		s.redirectFrontend(w, r, "error", string(kind))
		return
	}
	loginCode, err := s.exchanger.Mint(r.Context(), user.ID)
	if err != nil {
		log.WithError(err).Error("mint login code")
		s.redirectFrontend(w, r, "error", string(domain.KindInternal))
		return
	}
	log.WithFields(logrus.Fields{"user_id": user.ID}).Info("social login completed")
	s.redirectFrontend(w, r, "code", loginCode)
}

func (s *Server) redirectFrontend(w http.ResponseWriter, r *http.Request, key, value string) {
	target, err := url.Parse(s.frontendURL)
	if err != nil || s.frontendURL == "" {
		target = &url.URL{Path: "/"}
	}
	q := target.Query()
	q.Set(key, value)
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

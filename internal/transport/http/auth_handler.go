package http

import (
	"net"
	"net/http"
	"strings"

	"samarpan/internal/auth"
	"samarpan/internal/domain"
)

type signupRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Emails are matched trimmed and case-insensitively; trimming first keeps the format check from
// rejecting padded input.
func (r *signupRequest) normalize() {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
}

func (r *loginRequest) normalize() {
	r.Email = strings.TrimSpace(r.Email)
}

type exchangeRequest struct {
	Code string `json:"code" validate:"required"`
}

// authResponse is the body of every call that signs a user in.
type authResponse struct {
	Message      string              `json:"message,omitempty"`
	UserID       string              `json:"userId"`
	Name         string              `json:"name"`
	Email        string              `json:"email"`
	Avatar       string              `json:"avatar,omitempty"`
	GlobalRating int                 `json:"globalRating"`
	Ratings      map[domain.Mode]int `json:"ratings"`
	XP           int                 `json:"xp"`
	Token        string              `json:"token,omitempty"`
}

func profileOf(u domain.User) authResponse {
	return authResponse{
		UserID:       u.ID,
		Name:         u.Name,
		Email:        u.Email,
		Avatar:       u.Avatar,
		GlobalRating: u.GlobalRating,
		Ratings:      u.Ratings,
		XP:           u.XP,
	}
}

func (s *Server) signedIn(w http.ResponseWriter, r *http.Request, status int, user domain.User, message string) {
	token, err := s.issuer.Issue(user)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	body := profileOf(user)
	body.Message = message
	body.Token = token
	writeJSON(w, status, body)
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	user, err := s.identity.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	s.log.WithField("user_id", user.ID).Info("user registered")
	s.signedIn(w, r, http.StatusCreated, user, "Signup Successful")
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	user, err := s.identity.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	s.signedIn(w, r, http.StatusOK, user, "Login Successful")
}

// exchange trades a one-time social login code for a bearer credential.
func (s *Server) exchange(w http.ResponseWriter, r *http.Request) {
	var req exchangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	userID, err := s.exchanger.Redeem(r.Context(), req.Code)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	user, err := s.identity.User(r.Context(), userID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	s.signedIn(w, r, http.StatusOK, user, "Login Successful")
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, s.log, domain.ErrUnauthorized)
		return
	}
	user, err := s.identity.User(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, profileOf(user))
}

func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

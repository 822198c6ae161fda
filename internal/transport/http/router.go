// Package http exposes the platform over JSON HTTP endpoints and a websocket session feed.
package http

import (
	"context"
	"net/http"

	"samarpan/internal/app"
	"samarpan/internal/auth"
	"samarpan/internal/domain"

	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

// Limiter budgets expensive calls per caller. A nil Limiter allows everything.
type Limiter interface {
	Allow(ctx context.Context, subject string) error
}

// Options wires the services the handlers need.
type Options struct {
	Identity  *app.IdentityService
	Quizzes   *app.QuizService
	Sessions  *app.SessionService
	Ratings   *app.RatingService
	Issuer    *auth.Issuer
	Exchanger *auth.Exchanger
	// Providers holds the configured social login providers; unconfigured ones are absent.
	Providers map[domain.Provider]*auth.SocialProvider
	// GenerateLimiter guards quiz generation.
	GenerateLimiter Limiter
	FrontendURL     string
	AllowedOrigins  []string
	SecureCookies   bool
	Logger          logrus.FieldLogger
}

// Server holds the HTTP handlers.
type Server struct {
	identity      *app.IdentityService
	quizzes       *app.QuizService
	sessions      *app.SessionService
	ratings       *app.RatingService
	issuer        *auth.Issuer
	exchanger     *auth.Exchanger
	providers     map[domain.Provider]*auth.SocialProvider
	limiter       Limiter
	frontendURL   string
	origins       []string
	secureCookies bool
	log           logrus.FieldLogger
	upgrader      websocket.Upgrader
}

func NewServer(opts Options) *Server {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	providers := opts.Providers
	if providers == nil {
		providers = map[domain.Provider]*auth.SocialProvider{}
	}
	return &Server{
		identity:      opts.Identity,
		quizzes:       opts.Quizzes,
		sessions:      opts.Sessions,
		ratings:       opts.Ratings,
		issuer:        opts.Issuer,
		exchanger:     opts.Exchanger,
		providers:     providers,
		limiter:       opts.GenerateLimiter,
		frontendURL:   opts.FrontendURL,
		origins:       opts.AllowedOrigins,
		secureCookies: opts.SecureCookies,
		log:           log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handler returns the routed, middleware-wrapped handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.health)

	mux.HandleFunc("POST /api/signup", s.signup)
	mux.HandleFunc("POST /api/login", s.login)
	mux.HandleFunc("POST /api/auth/exchange", s.exchange)
	mux.HandleFunc("GET /api/me", s.me)
	mux.HandleFunc("GET /auth/{provider}", s.startSocial)
	mux.HandleFunc("GET /auth/{provider}/callback", s.socialCallback)

	mux.HandleFunc("POST /api/ai/generate-quiz", s.generateQuiz)
	mux.HandleFunc("POST /api/quizzes", s.createQuiz)
	mux.HandleFunc("GET /api/quizzes/public", s.listPublicQuizzes)
	mux.HandleFunc("GET /api/quizzes/{id}", s.getQuiz)

	mux.HandleFunc("POST /api/sessions", s.createSession)
	mux.HandleFunc("GET /api/sessions/{pin}", s.getSession)
	mux.HandleFunc("GET /ws/sessions/{pin}", s.watchSession)

	mux.HandleFunc("GET /api/leaderboard", s.leaderboard)
	mux.HandleFunc("GET /api/ratings/{user}", s.ratingHistory)

	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         600,
	})

	var h http.Handler = mux
	h = auth.WithAuth(s.issuer)(h)
	h = c.Handler(h)
	h = requestLogger(s.log)(h)
	h = recoverer(s.log)(h)
	return h
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"server": "Samarpan Backend", "status": "Running"})
}

// callerOr returns the authenticated caller's id, or resolves ref when nobody is signed in.
// An empty ref without a caller yields "".
func (s *Server) callerOr(r *http.Request, ref string) (string, error) {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		return claims.UserID, nil
	}
	if ref == "" {
		return "", nil
	}
	return s.identity.ResolveUserReference(r.Context(), ref)
}

// subject identifies a caller for rate limiting: the user when signed in, else the client address.
func subject(r *http.Request) string {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok {
		return "user:" + claims.UserID
	}
	return "addr:" + clientIP(r)
}

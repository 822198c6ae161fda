package cli

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"samarpan/internal/app"
	"samarpan/internal/auth"
	"samarpan/internal/config"
	"samarpan/internal/domain"
	"samarpan/internal/generator"
	"samarpan/internal/infra/memory"
	"samarpan/internal/infra/postgres"
	redisstore "samarpan/internal/infra/redis"
	"samarpan/internal/infra/sqlite"
	transport "samarpan/internal/transport/http"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

// stores is the persistence selected by storage.driver.
type stores struct {
	users    app.UserRepository
	quizzes  app.QuizRepository
	sessions app.SessionRepository
	ratings  app.RatingRepository
	// persistent is false for the in-process driver, which needs no read cache.
	persistent bool
	close      func()
}

func openStores(ctx context.Context, cfg config.Config, log logrus.FieldLogger) (stores, error) {
	switch cfg.Storage.Driver {
	case config.DriverPostgres:
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
			return stores{}, err
		}
		pool, err := postgres.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return stores{}, err
		}
		return postgresStores(pool), nil
	case config.DriverSQLite:
		db, err := sqlite.Open(ctx, cfg.SQLite.Path)
		if err != nil {
			return stores{}, err
		}
		return sqliteStores(db), nil
	default:
		return stores{
			users:    memory.NewUserStore(),
			quizzes:  memory.NewQuizStore(),
			sessions: memory.NewSessionStore(),
			ratings:  memory.NewRatingStore(),
			close:    func() {},
		}, nil
	}
}

func postgresStores(pool *pgxpool.Pool) stores {
	return stores{
		users:      postgres.NewUserStore(pool),
		quizzes:    postgres.NewQuizStore(pool),
		sessions:   postgres.NewSessionStore(pool),
		ratings:    postgres.NewRatingStore(pool),
		persistent: true,
		close:      pool.Close,
	}
}

func sqliteStores(db *sql.DB) stores {
	return stores{
		users:      sqlite.NewUserStore(db),
		quizzes:    sqlite.NewQuizStore(db),
		sessions:   sqlite.NewSessionStore(db),
		ratings:    sqlite.NewRatingStore(db),
		persistent: true,
		close:      func() { _ = db.Close() },
	}
}

func resolvePort(flag string, cfg config.Config) string {
	if flag != "" {
		return flag
	}
	if cfg.Server.Port != "" {
		return cfg.Server.Port
	}
	return "8080"
}

func socialProviders(cfg config.Config, log logrus.FieldLogger) map[domain.Provider]*auth.SocialProvider {
	providers := map[domain.Provider]*auth.SocialProvider{}
	google := auth.OAuthCredentials(cfg.OAuth.Google)
	if google.Configured() {
		providers[domain.ProviderGoogle] = auth.NewGoogleProvider(google)
	}
	facebook := auth.OAuthCredentials(cfg.OAuth.Facebook)
	if facebook.Configured() {
		providers[domain.ProviderFacebook] = auth.NewFacebookProvider(facebook)
	}
	for name := range providers {
		log.WithField("provider", name).Info("social login enabled")
	}
	return providers
}

// buildServer wires storage, caches and services into the HTTP server handler.
func buildServer(cfg config.Config, st stores, redisClient *redis.Client, log *logrus.Logger) (*transport.Server, error) {
	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	quizzes := st.quizzes
	sessions := st.sessions
	var codes auth.CodeStore = memory.NewExchangeStore()
	var limiter transport.Limiter

	if redisClient != nil {
		quizzes = redisstore.NewQuizCache(redisClient, quizzes, quizTTL)
		sessions = redisstore.NewSessionCache(redisClient, sessions, config.TTLDuration(cfg.Redis.TTL, 6*time.Hour))
		codes = redisstore.NewExchangeStore(redisClient)
		if cfg.Generator.RateLimit > 0 {
			window := config.TTLDuration(cfg.Generator.RateWindow, time.Minute)
			limiter = redisstore.NewRateLimiter(redisClient, "generate", cfg.Generator.RateLimit, window)
		}
	} else if st.persistent {
		quizzes = memory.NewQuizCache(quizzes, quizTTL)
	}

	var gen app.Generator
	if cfg.Generator.APIKey != "" {
		groq, err := generator.NewGroq(generator.Config{
			APIKey:  cfg.Generator.APIKey,
			BaseURL: cfg.Generator.BaseURL,
			Model:   cfg.Generator.Model,
			Timeout: config.TTLDuration(cfg.Generator.Timeout, generator.DefaultTimeout),
			Retries: cfg.Generator.Retries,
		}, log.WithField("component", "generator"))
		if err != nil {
			return nil, err
		}
		gen = groq
	} else {
		log.Warn("GROQ_API_KEY not set, quiz generation disabled")
	}

	issuer, err := auth.NewIssuer(cfg.Auth.JWTSecret, config.TTLDuration(cfg.Auth.TokenTTL, auth.DefaultTokenTTL))
	if err != nil {
		return nil, err
	}

	var sessionOpts []app.SessionOption
	if cfg.Session.PinAttempts > 0 {
		sessionOpts = append(sessionOpts, app.WithPinAttempts(cfg.Session.PinAttempts))
	}

	return transport.NewServer(transport.Options{
		Identity:        app.NewIdentityService(st.users),
		Quizzes:         app.NewQuizService(quizzes, gen),
		Sessions:        app.NewSessionService(sessions, quizzes, st.users, st.ratings, sessionOpts...),
		Ratings:         app.NewRatingService(st.users, st.ratings),
		Issuer:          issuer,
		Exchanger:       auth.NewExchanger(codes, config.TTLDuration(cfg.Auth.ExchangeTTL, auth.DefaultExchangeTTL)),
		Providers:       socialProviders(cfg, log),
		GenerateLimiter: limiter,
		FrontendURL:     cfg.Server.FrontendURL,
		AllowedOrigins:  cfg.Server.AllowedOrigins,
		SecureCookies:   cfg.Server.SecureCookies,
		Logger:          log,
	}), nil
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		log.WithError(err).Error("invalid configuration")
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.WithError(err).WithField("driver", cfg.Storage.Driver).Error("storage unavailable, refusing to serve")
		return err
	}
	defer st.close()

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient, err = redisstore.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			log.WithError(err).WithField("addr", cfg.Redis.Addr).Error("redis unavailable")
			return err
		}
		defer redisClient.Close()
	}

	server, err := buildServer(cfg, st, redisClient, log)
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              ":" + resolvePort(portFlag, cfg),
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		// generation may wait on the model for several attempts
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithFields(logrus.Fields{
			"addr":    httpServer.Addr,
			"storage": cfg.Storage.Driver,
			"redis":   redisClient != nil,
		}).Info("starting samarpan backend")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.TTLDuration(cfg.Server.ShutdownTimeout, 10*time.Second))
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

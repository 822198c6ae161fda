package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"samarpan/internal/app"
	"samarpan/internal/auth"
	"samarpan/internal/domain"
	"samarpan/internal/infra/postgres"
	pgmigrations "samarpan/internal/infra/postgres/migrations"
	infraredis "samarpan/internal/infra/redis"

	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"
)

// hostWins credits the host with a fixed gain when a session finishes.
type hostWins struct{}

func (hostWins) Settle(_ context.Context, s domain.GameSession) ([]domain.RatingHistory, error) {
	return []domain.RatingHistory{{UserID: s.HostID, Before: 1200, After: 1216, Delta: 16}}, nil
}

func TestPostgresAndRedisEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	applyMigrations(t, ctx, pgURL)

	pool, err := postgres.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	defer redisClient.Close()

	users := postgres.NewUserStore(pool)
	ratings := postgres.NewRatingStore(pool)
	quizzes := infraredis.NewQuizCache(redisClient, postgres.NewQuizStore(pool), 5*time.Minute)
	sessions := infraredis.NewSessionCache(redisClient, postgres.NewSessionStore(pool), time.Hour)

	identity := app.NewIdentityService(users, app.WithHashCost(bcrypt.MinCost))
	quizSvc := app.NewQuizService(quizzes, nil)
	sessionSvc := app.NewSessionService(sessions, quizzes, users, ratings, app.WithSettler(hostWins{}))
	ratingSvc := app.NewRatingService(users, ratings)

	// Concurrent signups for one email: the unique index admits exactly one.
	var created int32
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			_, err := identity.Register(gctx, fmt.Sprintf("Host %d", i), "host@example.com", "secret-pass")
			switch {
			case err == nil:
				atomic.AddInt32(&created, 1)
			case !errors.Is(err, domain.ErrEmailTaken):
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("register: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected exactly one account, got %d", created)
	}
	host, err := identity.Authenticate(ctx, "HOST@example.com", "secret-pass")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	merged, err := identity.ReconcileSocialIdentity(ctx, app.SocialProfile{
		Provider: domain.ProviderGoogle, ExternalID: "g-1", Email: "host@example.com", Name: "Google Name", Avatar: "http://img/a.png",
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if merged.ID != host.ID || merged.GoogleID != "g-1" || merged.Name != host.Name || merged.Provider != domain.ProviderLocal {
		t.Fatalf("expected fill-only merge onto %s, got %+v", host.ID, merged)
	}
	again, err := identity.ReconcileSocialIdentity(ctx, app.SocialProfile{
		Provider: domain.ProviderGoogle, ExternalID: "g-2", Email: "host@example.com", Avatar: "http://img/b.png",
	})
	if err != nil || again.GoogleID != "g-1" || again.Avatar != "http://img/a.png" {
		t.Fatalf("existing identity fields must not be overwritten: %+v (%v)", again, err)
	}

	quiz, err := quizSvc.CreateQuiz(ctx, app.QuizDraft{
		Title:    "Integration",
		Topic:    "Testing",
		AuthorID: host.ID,
		Questions: []domain.Question{
			{Question: "2 + 2?", Options: []string{"3", "4"}, CorrectIndex: 1},
		},
	})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	if cached, err := quizSvc.GetQuiz(ctx, quiz.ID); err != nil || cached.Questions[0].Options[1] != "4" {
		t.Fatalf("get quiz: %+v (%v)", cached, err)
	}

	// Concurrent allocations never share a live pin.
	const n = 32
	pins := make([]string, n)
	g, gctx = errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			s, err := sessionSvc.StartSession(gctx, app.SessionRequest{QuizID: quiz.ID, HostID: host.ID, Rated: true})
			if err != nil {
				return err
			}
			pins[i] = s.Pin
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("start sessions: %v", err)
	}
	seen := map[string]bool{}
	for _, pin := range pins {
		if seen[pin] {
			t.Fatalf("pin %s allocated twice", pin)
		}
		seen[pin] = true
	}

	live, err := sessionSvc.SessionByPin(ctx, pins[0])
	if err != nil || live.Status != domain.StatusWaiting {
		t.Fatalf("session by pin: %+v (%v)", live, err)
	}
	if _, err := sessionSvc.Advance(ctx, live.ID, domain.StatusRunning); err != nil {
		t.Fatalf("advance running: %v", err)
	}
	finished, err := sessionSvc.Advance(ctx, live.ID, domain.StatusFinished)
	if err != nil || finished.EndedAt == nil || finished.StartedAt == nil {
		t.Fatalf("advance finished: %+v (%v)", finished, err)
	}
	if _, err := sessionSvc.Advance(ctx, live.ID, domain.StatusRunning); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected backward transition rejected, got %v", err)
	}
	if _, err := sessionSvc.SessionByPin(ctx, pins[0]); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("finished session must release its pin, got %v", err)
	}

	history, err := ratingSvc.History(ctx, host.ID)
	if err != nil || len(history) != 1 || history[0].SessionID != live.ID || history[0].Delta != 16 {
		t.Fatalf("unexpected ledger %+v (%v)", history, err)
	}
	board, err := ratingSvc.Leaderboard(ctx, "global", 10)
	if err != nil || len(board) != 1 || board[0].UserID != host.ID {
		t.Fatalf("unexpected leaderboard %+v (%v)", board, err)
	}

	exchanger := auth.NewExchanger(infraredis.NewExchangeStore(redisClient), time.Minute)
	code, err := exchanger.Mint(ctx, host.ID)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if userID, err := exchanger.Redeem(ctx, code); err != nil || userID != host.ID {
		t.Fatalf("redeem: %q (%v)", userID, err)
	}
	if _, err := exchanger.Redeem(ctx, code); !errors.Is(err, domain.ErrExchangeCodeInvalid) {
		t.Fatalf("expected single use, got %v", err)
	}
}

func applyMigrations(t *testing.T, ctx context.Context, dsn string) {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	// down then up again proves the rollback path
	if _, err := migrator.Rollback(ctx); err != nil {
		t.Fatalf("rollback: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("re-migrate: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "samarpan", "POSTGRES_PASSWORD": "samarpan", "POSTGRES_DB": "samarpan"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithOccurrence(2).WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://samarpan:samarpan@%s:%s/samarpan?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}

package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"samarpan/internal/app"
	"samarpan/internal/domain"
	"samarpan/internal/infra/memory"

	"golang.org/x/sync/errgroup"
)

type sessionFixture struct {
	sessions *memory.SessionStore
	quizzes  *memory.QuizStore
	users    *memory.UserStore
	ratings  *memory.RatingStore
	hostID   string
	quizID   string
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	ctx := context.Background()
	f := &sessionFixture{
		sessions: memory.NewSessionStore(),
		quizzes:  memory.NewQuizStore(),
		users:    memory.NewUserStore(),
		ratings:  memory.NewRatingStore(),
		hostID:   "host-1",
		quizID:   "quiz-1",
	}
	if err := f.users.InsertUser(ctx, domain.NewUser(f.hostID, "host@example.com", "Host", time.Now())); err != nil {
		t.Fatalf("seed host: %v", err)
	}
	quiz := domain.Quiz{
		ID:    f.quizID,
		Title: "Capitals",
		Topic: "geography",
		Questions: []domain.Question{{
			Question:     "Capital of France?",
			Options:      []string{"Paris", "Rome"},
			CorrectIndex: 0,
			Difficulty:   domain.DifficultyEasy,
		}},
	}
	if err := f.quizzes.InsertQuiz(ctx, quiz); err != nil {
		t.Fatalf("seed quiz: %v", err)
	}
	return f
}

func (f *sessionFixture) service(opts ...app.SessionOption) *app.SessionService {
	return app.NewSessionService(f.sessions, f.quizzes, f.users, f.ratings, opts...)
}

func (f *sessionFixture) request() app.SessionRequest {
	return app.SessionRequest{QuizID: f.quizID, HostID: f.hostID, Rated: true}
}

func TestStartSessionDefaults(t *testing.T) {
	f := newSessionFixture(t)
	svc := f.service()

	session, err := svc.StartSession(context.Background(), f.request())
	if err != nil {
		t.Fatalf("start session: %v", err)
	}
	if len(session.Pin) != 6 {
		t.Fatalf("expected a 6-digit pin, got %q", session.Pin)
	}
	if session.Status != domain.StatusWaiting || session.Mode != domain.ModeRapid || session.TimerSeconds != domain.DefaultTimerSeconds {
		t.Fatalf("unexpected defaults %+v", session)
	}
	if session.Participants == nil || len(session.Participants) != 0 {
		t.Fatalf("expected empty participant list, got %v", session.Participants)
	}

	byPin, err := svc.SessionByPin(context.Background(), session.Pin)
	if err != nil {
		t.Fatalf("session by pin: %v", err)
	}
	if byPin.ID != session.ID {
		t.Fatalf("expected %s, got %s", session.ID, byPin.ID)
	}
}

func TestStartSessionRejectsUnknownReferences(t *testing.T) {
	f := newSessionFixture(t)
	svc := f.service()
	ctx := context.Background()

	req := f.request()
	req.QuizID = "missing"
	if _, err := svc.StartSession(ctx, req); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected quiz not found, got %v", err)
	}

	req = f.request()
	req.HostID = "ghost"
	if _, err := svc.StartSession(ctx, req); !errors.Is(err, domain.ErrUserNotFound) {
		t.Fatalf("expected host not found, got %v", err)
	}

	req = f.request()
	req.Mode = "bullet"
	if _, err := svc.StartSession(ctx, req); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error for mode, got %v", err)
	}

	req = f.request()
	req.TimerSeconds = 1
	if _, err := svc.StartSession(ctx, req); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected validation error for timer, got %v", err)
	}
}

func TestConcurrentStartSessionAllocatesDistinctPins(t *testing.T) {
	f := newSessionFixture(t)
	svc := f.service()

	const n = 64
	pins := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			s, err := svc.StartSession(context.Background(), f.request())
			pins[i] = s.Pin
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("start session: %v", err)
	}
	assertDistinct(t, pins)
}

func TestConcurrentStartSessionWithCollidingDraws(t *testing.T) {
	f := newSessionFixture(t)

	// Every code is drawn twice, so half of all draws race another caller for the same pin.
	var counter atomic.Int64
	src := func() (string, error) {
		return fmt.Sprintf("%06d", (counter.Add(1)-1)/2), nil
	}
	const n = 32
	svc := f.service(app.WithPinSource(src), app.WithPinAttempts(n+1))

	pins := make([]string, n)
	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			s, err := svc.StartSession(context.Background(), f.request())
			pins[i] = s.Pin
			return err
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("start session: %v", err)
	}
	assertDistinct(t, pins)
}

func TestStartSessionExhaustsAttempts(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()

	occupied := domain.GameSession{
		ID:           "existing",
		QuizID:       f.quizID,
		HostID:       f.hostID,
		Pin:          "111111",
		Mode:         domain.ModeRapid,
		TimerSeconds: 30,
		Status:       domain.StatusWaiting,
	}
	if err := f.sessions.InsertSession(ctx, occupied); err != nil {
		t.Fatalf("seed: %v", err)
	}

	var draws atomic.Int32
	svc := f.service(app.WithPinSource(func() (string, error) {
		draws.Add(1)
		return "111111", nil
	}))
	_, err := svc.StartSession(ctx, f.request())
	if !errors.Is(err, domain.ErrAllocationExhausted) {
		t.Fatalf("expected allocation exhausted, got %v", err)
	}
	if domain.KindOf(err) != domain.KindAllocationExhausted {
		t.Fatalf("expected allocation_exhausted kind, got %s", domain.KindOf(err))
	}
	if draws.Load() != app.DefaultPinAttempts {
		t.Fatalf("expected %d attempts, got %d", app.DefaultPinAttempts, draws.Load())
	}
}

func TestStartSessionReusesPinOfFinishedSession(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	svc := f.service(app.WithPinSource(func() (string, error) { return "424242", nil }))

	first, err := svc.StartSession(ctx, f.request())
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := svc.StartSession(ctx, f.request()); !errors.Is(err, domain.ErrAllocationExhausted) {
		t.Fatalf("expected live pin to block allocation, got %v", err)
	}
	if _, err := svc.Advance(ctx, first.ID, domain.StatusFinished); err != nil {
		t.Fatalf("finish: %v", err)
	}
	second, err := svc.StartSession(ctx, f.request())
	if err != nil {
		t.Fatalf("expected pin to be free after finish: %v", err)
	}
	if second.Pin != "424242" || second.ID == first.ID {
		t.Fatalf("unexpected second session %+v", second)
	}
}

func TestAdvanceMovesForwardOnly(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	svc := f.service(app.WithSessionClock(func() time.Time { return now }))

	session, err := svc.StartSession(ctx, f.request())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	running, err := svc.Advance(ctx, session.ID, domain.StatusRunning)
	if err != nil {
		t.Fatalf("advance to running: %v", err)
	}
	if running.StartedAt == nil || !running.StartedAt.Equal(now) {
		t.Fatalf("expected startedAt %v, got %v", now, running.StartedAt)
	}
	if _, err := svc.Advance(ctx, session.ID, domain.StatusWaiting); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected backward move to fail, got %v", err)
	}
	finished, err := svc.Advance(ctx, session.ID, domain.StatusFinished)
	if err != nil {
		t.Fatalf("advance to finished: %v", err)
	}
	if finished.EndedAt == nil {
		t.Fatalf("expected endedAt stamped")
	}
	if _, err := svc.Advance(ctx, session.ID, domain.StatusFinished); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("expected finished to be terminal, got %v", err)
	}
	if _, err := svc.Advance(ctx, "missing", domain.StatusRunning); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

type fixedSettler struct {
	userID string
	delta  int
}

func (s fixedSettler) Settle(_ context.Context, session domain.GameSession) ([]domain.RatingHistory, error) {
	return []domain.RatingHistory{{
		UserID: s.userID,
		Before: domain.DefaultRating,
		After:  domain.DefaultRating + s.delta,
		Delta:  s.delta,
	}}, nil
}

func TestFinishingSessionAppendsSettlement(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	svc := f.service(app.WithSettler(fixedSettler{userID: f.hostID, delta: 16}))
	ratings := app.NewRatingService(f.users, f.ratings)

	session, err := svc.StartSession(ctx, app.SessionRequest{QuizID: f.quizID, HostID: f.hostID, Mode: domain.ModeBlitz, Rated: true})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := svc.Advance(ctx, session.ID, domain.StatusRunning); err != nil {
		t.Fatalf("running: %v", err)
	}
	history, err := ratings.History(ctx, f.hostID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("expected no ledger entries before finish, got %d", len(history))
	}

	if _, err := svc.Advance(ctx, session.ID, domain.StatusFinished); err != nil {
		t.Fatalf("finish: %v", err)
	}
	history, err = ratings.History(ctx, f.hostID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(history))
	}
	entry := history[0]
	if entry.SessionID != session.ID || entry.Mode != domain.ModeBlitz || entry.Delta != 16 || entry.ID == "" {
		t.Fatalf("unexpected ledger entry %+v", entry)
	}
}

// flakySettler fails its first call and then settles like fixedSettler.
type flakySettler struct {
	fixedSettler
	calls atomic.Int32
}

func (s *flakySettler) Settle(ctx context.Context, session domain.GameSession) ([]domain.RatingHistory, error) {
	if s.calls.Add(1) == 1 {
		return nil, errors.New("ledger backend unavailable")
	}
	return s.fixedSettler.Settle(ctx, session)
}

func TestFailedSettlementCanBeRetried(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	settler := &flakySettler{fixedSettler: fixedSettler{userID: f.hostID, delta: 8}}
	svc := f.service(app.WithSettler(settler))
	ratings := app.NewRatingService(f.users, f.ratings)

	session, err := svc.StartSession(ctx, f.request())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	updates, cancel, err := svc.Watch(ctx, session.Pin)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()
	receive(t, updates)

	if err := svc.Settle(ctx, session.ID); domain.KindOf(err) != domain.KindConflict {
		t.Fatalf("expected settling a waiting session to conflict, got %v", err)
	}

	finished, err := svc.Advance(ctx, session.ID, domain.StatusFinished)
	if err == nil {
		t.Fatalf("expected the settlement failure to be reported")
	}
	if finished.Status != domain.StatusFinished {
		t.Fatalf("expected the committed snapshot back, got %+v", finished)
	}
	if got := receive(t, updates); got.Status != domain.StatusFinished {
		t.Fatalf("watchers must see the finished snapshot, got %s", got.Status)
	}
	stored, err := svc.Session(ctx, session.ID)
	if err != nil || stored.Status != domain.StatusFinished {
		t.Fatalf("expected stored session finished, got %+v (%v)", stored, err)
	}
	if history, _ := ratings.History(ctx, f.hostID); len(history) != 0 {
		t.Fatalf("expected no ledger entries after the failure, got %d", len(history))
	}

	if err := svc.Settle(ctx, session.ID); err != nil {
		t.Fatalf("retry settle: %v", err)
	}
	if err := svc.Settle(ctx, session.ID); err != nil {
		t.Fatalf("second settle: %v", err)
	}
	history, err := ratings.History(ctx, f.hostID)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].SessionID != session.ID || history[0].Delta != 8 {
		t.Fatalf("expected exactly one ledger entry after retries, got %+v", history)
	}
	if !history[0].CreatedAt.Equal(*stored.EndedAt) {
		t.Fatalf("expected entry stamped at the finish time, got %s want %s", history[0].CreatedAt, *stored.EndedAt)
	}
}

func TestWatchReceivesStatusChanges(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	svc := f.service()

	session, err := svc.StartSession(ctx, f.request())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	updates, cancel, err := svc.Watch(ctx, session.Pin)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	defer cancel()

	if got := receive(t, updates); got.Status != domain.StatusWaiting {
		t.Fatalf("expected initial waiting snapshot, got %s", got.Status)
	}
	if _, err := svc.Advance(ctx, session.ID, domain.StatusRunning); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if got := receive(t, updates); got.Status != domain.StatusRunning {
		t.Fatalf("expected running snapshot, got %s", got.Status)
	}

	if _, _, err := svc.Watch(ctx, "12ab56"); domain.KindOf(err) != domain.KindValidation {
		t.Fatalf("expected malformed pin to be rejected, got %v", err)
	}
}

func TestWatchCancelIsIdempotent(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	svc := f.service()

	session, err := svc.StartSession(ctx, f.request())
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	updates, cancel, err := svc.Watch(ctx, session.Pin)
	if err != nil {
		t.Fatalf("watch: %v", err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cancel()
		}()
	}
	wg.Wait()

	<-updates // initial snapshot
	if _, ok := <-updates; ok {
		t.Fatalf("expected channel closed after cancel")
	}
	// Publishing to a session without watchers must not block or panic.
	if _, err := svc.Advance(ctx, session.ID, domain.StatusRunning); err != nil {
		t.Fatalf("advance: %v", err)
	}
}

func receive(t *testing.T, ch <-chan domain.GameSession) domain.GameSession {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for session update")
	}
	return domain.GameSession{}
}

func assertDistinct(t *testing.T, pins []string) {
	t.Helper()
	seen := make(map[string]struct{}, len(pins))
	for _, pin := range pins {
		if len(pin) != 6 {
			t.Fatalf("expected 6-digit pin, got %q", pin)
		}
		if _, dup := seen[pin]; dup {
			t.Fatalf("pin %s allocated twice", pin)
		}
		seen[pin] = struct{}{}
	}
}

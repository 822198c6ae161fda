package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"samarpan/internal/domain"

	"github.com/google/uuid"
)

const (
	// DefaultPinAttempts bounds join code allocation before giving up.
	DefaultPinAttempts = 5
	pinSpace           = 1_000_000
	minTimerSeconds    = 5
	maxTimerSeconds    = 600
)

// PinSource produces join code candidates.
type PinSource func() (string, error)

// RandomPin draws a 6-digit code uniformly from 000000-999999.
func RandomPin() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(pinSpace))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// Settler turns a finished session into rating ledger entries. Rating math lives behind this hook.
type Settler interface {
	Settle(ctx context.Context, session domain.GameSession) ([]domain.RatingHistory, error)
}

// NoSettlement is the default Settler; it records nothing.
type NoSettlement struct{}

func (NoSettlement) Settle(context.Context, domain.GameSession) ([]domain.RatingHistory, error) {
	return nil, nil
}

// SessionRequest holds already resolved references and play configuration.
type SessionRequest struct {
	QuizID       string
	HostID       string
	Mode         domain.Mode
	TimerSeconds int
	Rated        bool
}

// SessionService hosts game sessions.
type SessionService struct {
	sessions SessionRepository
	quizzes  QuizRepository
	users    UserRepository
	ratings  RatingRepository
	settler  Settler
	pins     PinSource
	attempts int
	watchers *watchHub
	now      func() time.Time
	newID    func() string
}

// SessionOption customizes a SessionService.
type SessionOption func(*SessionService)

// WithPinSource replaces the random join code source.
func WithPinSource(src PinSource) SessionOption {
	return func(s *SessionService) { s.pins = src }
}

// WithPinAttempts sets the allocation bound; values below one keep the default.
func WithPinAttempts(n int) SessionOption {
	return func(s *SessionService) {
		if n > 0 {
			s.attempts = n
		}
	}
}

// WithSettler installs the rating settlement hook run when a session finishes.
func WithSettler(settler Settler) SessionOption {
	return func(s *SessionService) { s.settler = settler }
}

// WithSessionClock is test-only for deterministic timestamps.
func WithSessionClock(now func() time.Time) SessionOption {
	return func(s *SessionService) { s.now = now }
}

func NewSessionService(sessions SessionRepository, quizzes QuizRepository, users UserRepository, ratings RatingRepository, opts ...SessionOption) *SessionService {
	s := &SessionService{
		sessions: sessions,
		quizzes:  quizzes,
		users:    users,
		ratings:  ratings,
		settler:  NoSettlement{},
		pins:     RandomPin,
		attempts: DefaultPinAttempts,
		watchers: newWatchHub(),
		now:      func() time.Time { return time.Now().UTC() },
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// StartSession creates a waiting session for quiz hosted by host and allocates its join code.
// Pin uniqueness is decided by the store at insert time; a conflict only triggers another draw.
func (s *SessionService) StartSession(ctx context.Context, req SessionRequest) (domain.GameSession, error) {
	if strings.TrimSpace(req.QuizID) == "" || strings.TrimSpace(req.HostID) == "" {
		return domain.GameSession{}, domain.NewError(domain.KindValidation, "quiz and host are required")
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.ModeRapid
	}
	if !mode.Valid() {
		return domain.GameSession{}, domain.NewError(domain.KindValidation, "mode must be rapid, blitz or casual")
	}
	timer := req.TimerSeconds
	if timer == 0 {
		timer = domain.DefaultTimerSeconds
	}
	if timer < minTimerSeconds || timer > maxTimerSeconds {
		return domain.GameSession{}, domain.NewError(domain.KindValidation, "timerSeconds must be between 5 and 600")
	}

	if _, err := s.quizzes.GetQuiz(ctx, req.QuizID); err != nil {
		return domain.GameSession{}, err
	}
	if _, err := s.users.GetUser(ctx, req.HostID); err != nil {
		return domain.GameSession{}, err
	}

	now := s.now()
	session := domain.GameSession{
		ID:           s.newID(),
		QuizID:       req.QuizID,
		HostID:       req.HostID,
		Mode:         mode,
		TimerSeconds: timer,
		Rated:        req.Rated,
		Status:       domain.StatusWaiting,
		Participants: []domain.Participant{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for attempt := 0; attempt < s.attempts; attempt++ {
		pin, err := s.pins()
		if err != nil {
			return domain.GameSession{}, fmt.Errorf("draw join code: %w", err)
		}
		session.Pin = pin
		err = s.sessions.InsertSession(ctx, session)
		if err == nil {
			return session, nil
		}
		if !errors.Is(err, domain.ErrJoinCodeTaken) {
			return domain.GameSession{}, err
		}
	}
	return domain.GameSession{}, domain.ErrAllocationExhausted
}

// Session returns a session by id.
func (s *SessionService) Session(ctx context.Context, id string) (domain.GameSession, error) {
	return s.sessions.GetSession(ctx, id)
}

// SessionByPin returns the live session holding a join code.
func (s *SessionService) SessionByPin(ctx context.Context, pin string) (domain.GameSession, error) {
	pin = strings.TrimSpace(pin)
	if !validPin(pin) {
		return domain.GameSession{}, domain.NewError(domain.KindValidation, "join code must be 6 digits")
	}
	return s.sessions.GetSessionByPin(ctx, pin)
}

// Advance moves a session forward through waiting -> running -> finished. It is the extension point
// for whatever drives play; no route calls it. Watchers get the committed snapshot before finishing
// runs the settlement hook. A settlement error leaves the session finished; Settle retries it.
func (s *SessionService) Advance(ctx context.Context, id string, to domain.Status) (domain.GameSession, error) {
	current, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return domain.GameSession{}, err
	}
	if !current.Status.CanAdvanceTo(to) {
		return domain.GameSession{}, domain.ErrInvalidTransition
	}
	now := s.now()
	updated, err := s.sessions.AdvanceSession(ctx, id, current.Status, to, now)
	if err != nil {
		return domain.GameSession{}, err
	}
	s.watchers.publish(updated)

	if to == domain.StatusFinished {
		if err := s.settle(ctx, updated, now); err != nil {
			return updated, err
		}
	}
	return updated, nil
}

// Settle runs the settlement hook again for a finished session. Ledger entries already recorded for
// the session are kept, so retrying after a partial failure is safe.
func (s *SessionService) Settle(ctx context.Context, id string) error {
	session, err := s.sessions.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if session.Status != domain.StatusFinished {
		return domain.NewError(domain.KindConflict, "session is not finished")
	}
	at := s.now()
	if session.EndedAt != nil {
		at = *session.EndedAt
	}
	return s.settle(ctx, session, at)
}

func (s *SessionService) settle(ctx context.Context, session domain.GameSession, now time.Time) error {
	entries, err := s.settler.Settle(ctx, session)
	if err != nil {
		return fmt.Errorf("settle session %s: %w", session.ID, err)
	}
	if len(entries) == 0 {
		return nil
	}
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = s.newID()
		}
		entries[i].SessionID = session.ID
		if entries[i].Mode == "" {
			entries[i].Mode = session.Mode
		}
		if entries[i].CreatedAt.IsZero() {
			entries[i].CreatedAt = now
		}
	}
	return s.ratings.AppendRatings(ctx, entries)
}

// Watch returns a channel receiving the session snapshot now and after every status change.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *SessionService) Watch(ctx context.Context, pin string) (<-chan domain.GameSession, func(), error) {
	session, err := s.SessionByPin(ctx, pin)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := s.watchers.subscribe(session)
	return ch, cancel, nil
}

func validPin(pin string) bool {
	if len(pin) != 6 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"samarpan/internal/app"
	"samarpan/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const sessionColumns = `id, quiz_id, host_id, pin, mode, timer_seconds, rated, status, participants,
	created_at, updated_at, started_at, ended_at`

// SessionStore keeps game sessions in Postgres. game_sessions_live_pin_uniq is a partial unique
// index over unfinished sessions, so join code allocation is decided by the insert itself.
type SessionStore struct {
	pool *pgxpool.Pool
}

func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) InsertSession(ctx context.Context, session domain.GameSession) error {
	participants, err := json.Marshal(nonNilParticipants(session.Participants))
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO game_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		session.ID, session.QuizID, session.HostID, session.Pin, string(session.Mode), session.TimerSeconds,
		session.Rated, string(session.Status), string(participants), session.CreatedAt, session.UpdatedAt,
		session.StartedAt, session.EndedAt)
	if isUniqueViolation(err, "game_sessions_live_pin_uniq") {
		return domain.ErrJoinCodeTaken
	}
	if err != nil {
		return unavailable("insert session", err)
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, id string) (domain.GameSession, error) {
	return s.one(s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM game_sessions WHERE id = $1`, id), "get session")
}

func (s *SessionStore) GetSessionByPin(ctx context.Context, pin string) (domain.GameSession, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM game_sessions
		WHERE pin = $1 AND status <> 'finished'`, pin)
	return s.one(row, "get session by pin")
}

// AdvanceSession is a compare-and-set on status; a lost race reports ErrInvalidTransition.
func (s *SessionStore) AdvanceSession(ctx context.Context, id string, from, to domain.Status, at time.Time) (domain.GameSession, error) {
	if !from.CanAdvanceTo(to) {
		return domain.GameSession{}, domain.ErrInvalidTransition
	}
	var startedAt, endedAt *time.Time
	switch to {
	case domain.StatusRunning:
		startedAt = &at
	case domain.StatusFinished:
		endedAt = &at
	}
	row := s.pool.QueryRow(ctx, `UPDATE game_sessions SET
		status     = $3,
		updated_at = $4,
		started_at = COALESCE($5, started_at),
		ended_at   = COALESCE($6, ended_at)
		WHERE id = $1 AND status = $2
		RETURNING `+sessionColumns,
		id, string(from), string(to), at, startedAt, endedAt)
	session, err := scanSession(row)
	if err == nil {
		return session, nil
	}
	if !isNoRows(err) {
		return domain.GameSession{}, unavailable("advance session", err)
	}
	if _, err := s.GetSession(ctx, id); err != nil {
		return domain.GameSession{}, err
	}
	return domain.GameSession{}, domain.ErrInvalidTransition
}

func (s *SessionStore) one(row pgx.Row, op string) (domain.GameSession, error) {
	session, err := scanSession(row)
	if isNoRows(err) {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.GameSession{}, unavailable(op, err)
	}
	return session, nil
}

func scanSession(row pgx.Row) (domain.GameSession, error) {
	var (
		session      domain.GameSession
		mode, status string
		participants []byte
	)
	err := row.Scan(&session.ID, &session.QuizID, &session.HostID, &session.Pin, &mode, &session.TimerSeconds,
		&session.Rated, &status, &participants, &session.CreatedAt, &session.UpdatedAt, &session.StartedAt, &session.EndedAt)
	if err != nil {
		return domain.GameSession{}, err
	}
	session.Mode = domain.Mode(mode)
	session.Status = domain.Status(status)
	if err := json.Unmarshal(participants, &session.Participants); err != nil {
		return domain.GameSession{}, fmt.Errorf("unmarshal participants: %w", err)
	}
	return session, nil
}

func nonNilParticipants(p []domain.Participant) []domain.Participant {
	if p == nil {
		return []domain.Participant{}
	}
	return p
}

var _ app.SessionRepository = (*SessionStore)(nil)

package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"samarpan/internal/app"
	"samarpan/internal/domain"
)

const sessionColumns = `id, quiz_id, host_id, pin, mode, timer_seconds, rated, status, participants,
	created_at, updated_at, started_at, ended_at`

// SessionStore relies on the partial unique index game_sessions_live_pin_uniq for join codes.
type SessionStore struct {
	db *sql.DB
}

func NewSessionStore(db *sql.DB) *SessionStore {
	return &SessionStore{db: db}
}

func (s *SessionStore) InsertSession(ctx context.Context, session domain.GameSession) error {
	participants := session.Participants
	if participants == nil {
		participants = []domain.Participant{}
	}
	raw, err := json.Marshal(participants)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO game_sessions (`+sessionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.QuizID, session.HostID, session.Pin, string(session.Mode), session.TimerSeconds,
		session.Rated, string(session.Status), string(raw), session.CreatedAt.UTC(), session.UpdatedAt.UTC(),
		utcPtr(session.StartedAt), utcPtr(session.EndedAt))
	if isUniqueViolation(err, "game_sessions.pin") {
		return domain.ErrJoinCodeTaken
	}
	if err != nil {
		return unavailable("insert session", err)
	}
	return nil
}

func (s *SessionStore) GetSession(ctx context.Context, id string) (domain.GameSession, error) {
	return s.one(s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM game_sessions WHERE id = ?`, id), "get session")
}

func (s *SessionStore) GetSessionByPin(ctx context.Context, pin string) (domain.GameSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM game_sessions
		WHERE pin = ? AND status <> 'finished'`, pin)
	return s.one(row, "get session by pin")
}

func (s *SessionStore) AdvanceSession(ctx context.Context, id string, from, to domain.Status, at time.Time) (domain.GameSession, error) {
	if !from.CanAdvanceTo(to) {
		return domain.GameSession{}, domain.ErrInvalidTransition
	}
	at = at.UTC()
	var startedAt, endedAt *time.Time
	switch to {
	case domain.StatusRunning:
		startedAt = &at
	case domain.StatusFinished:
		endedAt = &at
	}
	row := s.db.QueryRowContext(ctx, `UPDATE game_sessions SET
		status     = ?,
		updated_at = ?,
		started_at = COALESCE(?, started_at),
		ended_at   = COALESCE(?, ended_at)
		WHERE id = ? AND status = ?
		RETURNING `+sessionColumns,
		string(to), at, startedAt, endedAt, id, string(from))
	session, err := scanSession(row)
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.GameSession{}, unavailable("advance session", err)
	}
	if _, err := s.GetSession(ctx, id); err != nil {
		return domain.GameSession{}, err
	}
	return domain.GameSession{}, domain.ErrInvalidTransition
}

func (s *SessionStore) one(row scanner, op string) (domain.GameSession, error) {
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.GameSession{}, unavailable(op, err)
	}
	return session, nil
}

func scanSession(row scanner) (domain.GameSession, error) {
	var (
		session            domain.GameSession
		mode, status, raw  string
		startedAt, endedAt sql.NullTime
	)
	err := row.Scan(&session.ID, &session.QuizID, &session.HostID, &session.Pin, &mode, &session.TimerSeconds,
		&session.Rated, &status, &raw, &session.CreatedAt, &session.UpdatedAt, &startedAt, &endedAt)
	if err != nil {
		return domain.GameSession{}, err
	}
	session.Mode = domain.Mode(mode)
	session.Status = domain.Status(status)
	if startedAt.Valid {
		session.StartedAt = &startedAt.Time
	}
	if endedAt.Valid {
		session.EndedAt = &endedAt.Time
	}
	if err := json.Unmarshal([]byte(raw), &session.Participants); err != nil {
		return domain.GameSession{}, fmt.Errorf("unmarshal participants: %w", err)
	}
	return session, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

var _ app.SessionRepository = (*SessionStore)(nil)

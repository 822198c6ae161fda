package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"samarpan/internal/app"
	"samarpan/internal/domain"
)

const userColumns = `id, email, name, password_hash, avatar, provider, google_id, facebook_id,
	global_rating, rating_rapid, rating_blitz, rating_casual, xp, created_at, updated_at`

var ratingColumn = map[domain.Mode]string{
	"":                "global_rating",
	domain.ModeRapid:  "rating_rapid",
	domain.ModeBlitz:  "rating_blitz",
	domain.ModeCasual: "rating_casual",
}

type UserStore struct {
	db *sql.DB
}

func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

func (s *UserStore) InsertUser(ctx context.Context, user domain.User) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, domain.NormalizeEmail(user.Email), user.Name, user.PasswordHash, user.Avatar,
		string(user.Provider), user.GoogleID, user.FacebookID, user.GlobalRating,
		user.Rating(domain.ModeRapid), user.Rating(domain.ModeBlitz), user.Rating(domain.ModeCasual),
		user.XP, user.CreatedAt.UTC(), user.UpdatedAt.UTC())
	if isUniqueViolation(err, "users.email") {
		return domain.ErrEmailTaken
	}
	if err != nil {
		return unavailable("insert user", err)
	}
	return nil
}

func (s *UserStore) GetUser(ctx context.Context, id string) (domain.User, error) {
	return s.one(s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id), "get user")
}

func (s *UserStore) FindUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, domain.NormalizeEmail(email))
	return s.one(row, "find user")
}

func (s *UserStore) FillIdentity(ctx context.Context, id string, patch domain.IdentityPatch, at time.Time) (domain.User, error) {
	row := s.db.QueryRowContext(ctx, `UPDATE users SET
		provider    = CASE WHEN provider = '' THEN ? ELSE provider END,
		google_id   = CASE WHEN google_id = '' THEN ? ELSE google_id END,
		facebook_id = CASE WHEN facebook_id = '' THEN ? ELSE facebook_id END,
		avatar      = CASE WHEN avatar = '' THEN ? ELSE avatar END,
		updated_at  = ?
		WHERE id = ?
		RETURNING `+userColumns,
		string(patch.Provider), patch.GoogleID, patch.FacebookID, patch.Avatar, at.UTC(), id)
	return s.one(row, "fill identity")
}

func (s *UserStore) TopUsers(ctx context.Context, mode domain.Mode, limit int) ([]domain.User, error) {
	column, ok := ratingColumn[mode]
	if !ok {
		return nil, domain.NewError(domain.KindValidation, "unknown mode")
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users
		ORDER BY `+column+` DESC, created_at ASC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, unavailable("top users", err)
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, unavailable("scan user", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("top users", err)
	}
	return users, nil
}

func (s *UserStore) one(row scanner, op string) (domain.User, error) {
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, unavailable(op, err)
	}
	return user, nil
}

func scanUser(row scanner) (domain.User, error) {
	var (
		u                    domain.User
		provider             string
		rapid, blitz, casual int
	)
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.Avatar, &provider, &u.GoogleID, &u.FacebookID,
		&u.GlobalRating, &rapid, &blitz, &casual, &u.XP, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return domain.User{}, err
	}
	u.Provider = domain.Provider(provider)
	u.Ratings = map[domain.Mode]int{
		domain.ModeRapid:  rapid,
		domain.ModeBlitz:  blitz,
		domain.ModeCasual: casual,
	}
	return u, nil
}

var _ app.UserRepository = (*UserStore)(nil)

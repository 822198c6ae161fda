package postgres

import (
	"context"
	"time"

	"samarpan/internal/app"
	"samarpan/internal/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

const userColumns = `id, email, name, password_hash, avatar, provider, google_id, facebook_id,
	global_rating, rating_rapid, rating_blitz, rating_casual, xp, created_at, updated_at`

// ratingColumn maps a mode to its rating column; the empty mode ranks by global rating.
var ratingColumn = map[domain.Mode]string{
	"":                "global_rating",
	domain.ModeRapid:  "rating_rapid",
	domain.ModeBlitz:  "rating_blitz",
	domain.ModeCasual: "rating_casual",
}

// UserStore persists users in Postgres. users_email_uniq decides concurrent registrations.
type UserStore struct {
	pool *pgxpool.Pool
}

func NewUserStore(pool *pgxpool.Pool) *UserStore {
	return &UserStore{pool: pool}
}

func (s *UserStore) InsertUser(ctx context.Context, user domain.User) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		user.ID, domain.NormalizeEmail(user.Email), user.Name, user.PasswordHash, user.Avatar,
		string(user.Provider), user.GoogleID, user.FacebookID, user.GlobalRating,
		user.Rating(domain.ModeRapid), user.Rating(domain.ModeBlitz), user.Rating(domain.ModeCasual),
		user.XP, user.CreatedAt, user.UpdatedAt)
	if isUniqueViolation(err, "users_email_uniq") {
		return domain.ErrEmailTaken
	}
	if err != nil {
		return unavailable("insert user", err)
	}
	return nil
}

func (s *UserStore) GetUser(ctx context.Context, id string) (domain.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
	return s.one(row, "get user")
}

func (s *UserStore) FindUserByEmail(ctx context.Context, email string) (domain.User, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, domain.NormalizeEmail(email))
	return s.one(row, "find user")
}

// FillIdentity is a single conditional UPDATE, so concurrent merges never overwrite each other.
func (s *UserStore) FillIdentity(ctx context.Context, id string, patch domain.IdentityPatch, at time.Time) (domain.User, error) {
	row := s.pool.QueryRow(ctx, `UPDATE users SET
		provider    = CASE WHEN provider = '' THEN $2 ELSE provider END,
		google_id   = CASE WHEN google_id = '' THEN $3 ELSE google_id END,
		facebook_id = CASE WHEN facebook_id = '' THEN $4 ELSE facebook_id END,
		avatar      = CASE WHEN avatar = '' THEN $5 ELSE avatar END,
		updated_at  = $6
		WHERE id = $1
		RETURNING `+userColumns,
		id, string(patch.Provider), patch.GoogleID, patch.FacebookID, patch.Avatar, at)
	return s.one(row, "fill identity")
}

func (s *UserStore) TopUsers(ctx context.Context, mode domain.Mode, limit int) ([]domain.User, error) {
	column, ok := ratingColumn[mode]
	if !ok {
		return nil, domain.NewError(domain.KindValidation, "unknown mode")
	}
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users
		ORDER BY `+column+` DESC, created_at ASC, id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, unavailable("top users", err)
	}
	defer rows.Close()

	users := make([]domain.User, 0, limit)
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

func (s *UserStore) one(row pgx.Row, op string) (domain.User, error) {
	user, err := scanUser(row)
	if isNoRows(err) {
		return domain.User{}, domain.ErrUserNotFound
	}
	if err != nil {
		return domain.User{}, unavailable(op, err)
	}
	return user, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
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

package domain

import (
	"strings"
	"time"
)

// Provider identifies how an account authenticated.
type Provider string

const (
	ProviderLocal    Provider = "local"
	ProviderGoogle   Provider = "google"
	ProviderFacebook Provider = "facebook"
)

// Social reports whether the provider is an external identity provider.
func (p Provider) Social() bool {
	return p == ProviderGoogle || p == ProviderFacebook
}

// Mode is a game play mode. Every user carries one rating per mode.
type Mode string

const (
	ModeRapid  Mode = "rapid"
	ModeBlitz  Mode = "blitz"
	ModeCasual Mode = "casual"
)

// Modes lists every play mode in display order.
var Modes = []Mode{ModeRapid, ModeBlitz, ModeCasual}

func (m Mode) Valid() bool {
	for _, mode := range Modes {
		if m == mode {
			return true
		}
	}
	return false
}

const (
	DefaultRating       = 1200
	DefaultTimerSeconds = 30
)

// User is an identity record keyed by its normalized email.
type User struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	Name         string       `json:"name"`
	PasswordHash []byte       `json:"-"`
	Avatar       string       `json:"avatar,omitempty"`
	Provider     Provider     `json:"provider,omitempty"`
	GoogleID     string       `json:"googleId,omitempty"`
	FacebookID   string       `json:"facebookId,omitempty"`
	GlobalRating int          `json:"globalRating"`
	Ratings      map[Mode]int `json:"ratings"`
	XP           int          `json:"xp"`
	CreatedAt    time.Time    `json:"createdAt"`
	UpdatedAt    time.Time    `json:"updatedAt"`
}

// NewUser returns a user with default ratings.
func NewUser(id, email, name string, now time.Time) User {
	return User{
		ID:           id,
		Email:        NormalizeEmail(email),
		Name:         name,
		GlobalRating: DefaultRating,
		Ratings:      DefaultRatings(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// DefaultRatings returns a fresh per-mode rating map.
func DefaultRatings() map[Mode]int {
	ratings := make(map[Mode]int, len(Modes))
	for _, m := range Modes {
		ratings[m] = DefaultRating
	}
	return ratings
}

// ExternalID returns the provider-specific identifier stored on the user.
func (u User) ExternalID(p Provider) string {
	switch p {
	case ProviderGoogle:
		return u.GoogleID
	case ProviderFacebook:
		return u.FacebookID
	}
	return ""
}

// Rating returns the rating for a mode, or the global rating for an empty mode.
func (u User) Rating(m Mode) int {
	if m == "" {
		return u.GlobalRating
	}
	if r, ok := u.Ratings[m]; ok {
		return r
	}
	return DefaultRating
}

// IdentityPatch carries fields that may be filled on an existing user. Empty fields are ignored,
// and stores only apply a field when the stored value is empty.
type IdentityPatch struct {
	Provider   Provider
	GoogleID   string
	FacebookID string
	Avatar     string
}

// Empty reports whether the patch would not change anything.
func (p IdentityPatch) Empty() bool {
	return p == IdentityPatch{}
}

// Apply fills the patch into u and returns the merged user. Non-empty fields on u win.
func (p IdentityPatch) Apply(u User) User {
	if u.Provider == "" {
		u.Provider = p.Provider
	}
	if u.GoogleID == "" {
		u.GoogleID = p.GoogleID
	}
	if u.FacebookID == "" {
		u.FacebookID = p.FacebookID
	}
	if u.Avatar == "" {
		u.Avatar = p.Avatar
	}
	return u
}

// NormalizeEmail trims and lower-cases an email address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Difficulty is the difficulty tier of a question.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

func (d Difficulty) Valid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

const (
	MinOptions = 2
	MaxOptions = 4
)

// Question models a multiple-choice question with a single correct option.
type Question struct {
	Question     string     `json:"question"`
	Options      []string   `json:"options"`
	CorrectIndex int        `json:"correctIndex"`
	Explanation  string     `json:"explanation,omitempty"`
	Difficulty   Difficulty `json:"difficulty"`
}

// Validate checks the question shape; Difficulty defaults to medium when empty.
func (q *Question) Validate() error {
	q.Question = strings.TrimSpace(q.Question)
	if q.Question == "" {
		return NewError(KindValidation, "question text is required")
	}
	if len(q.Options) < MinOptions || len(q.Options) > MaxOptions {
		return NewError(KindValidation, "a question needs between 2 and 4 options")
	}
	for i, opt := range q.Options {
		q.Options[i] = strings.TrimSpace(opt)
		if q.Options[i] == "" {
			return NewError(KindValidation, "options must not be empty")
		}
	}
	if q.CorrectIndex < 0 || q.CorrectIndex >= len(q.Options) {
		return NewError(KindValidation, "correct option index is out of range")
	}
	if q.Difficulty == "" {
		q.Difficulty = DifficultyMedium
	}
	if !q.Difficulty.Valid() {
		return NewError(KindValidation, "difficulty must be easy, medium or hard")
	}
	return nil
}

// Quiz is a named, ordered set of questions.
type Quiz struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Topic       string     `json:"topic,omitempty"`
	AuthorID    string     `json:"authorId,omitempty"`
	Questions   []Question `json:"questions"`
	AIGenerated bool       `json:"aiGenerated"`
	Tags        []string   `json:"tags"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Status is the lifecycle stage of a game session.
type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusRunning  Status = "running"
	StatusFinished Status = "finished"
)

func (s Status) rank() int {
	switch s {
	case StatusWaiting:
		return 0
	case StatusRunning:
		return 1
	case StatusFinished:
		return 2
	}
	return -1
}

// CanAdvanceTo reports whether moving from s to next is a forward transition.
func (s Status) CanAdvanceTo(next Status) bool {
	from, to := s.rank(), next.rank()
	return from >= 0 && to >= 0 && to > from
}

// Live reports whether the session still holds its join code.
func (s Status) Live() bool {
	return s != StatusFinished
}

// Participant is a player record within a session.
type Participant struct {
	UserID       string `json:"userId"`
	DisplayName  string `json:"displayName"`
	Score        int    `json:"score"`
	RatingBefore int    `json:"ratingBefore"`
	RatingAfter  int    `json:"ratingAfter"`
	Delta        int    `json:"delta"`
}

// GameSession is a hosted, joinable instance of a quiz.
type GameSession struct {
	ID           string        `json:"id"`
	QuizID       string        `json:"quizId"`
	HostID       string        `json:"hostId"`
	Pin          string        `json:"pin"`
	Mode         Mode          `json:"mode"`
	TimerSeconds int           `json:"timerSeconds"`
	Rated        bool          `json:"rated"`
	Status       Status        `json:"status"`
	Participants []Participant `json:"participants"`
	StartedAt    *time.Time    `json:"startedAt,omitempty"`
	EndedAt      *time.Time    `json:"endedAt,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// RatingHistory is an append-only ledger entry of a rating change.
type RatingHistory struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	SessionID string    `json:"sessionId"`
	Mode      Mode      `json:"mode"`
	Before    int       `json:"before"`
	After     int       `json:"after"`
	Delta     int       `json:"delta"`
	CreatedAt time.Time `json:"createdAt"`
}

// LeaderboardEntry is a ranked view of a user.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	Rating int    `json:"rating"`
	XP     int    `json:"xp"`
}

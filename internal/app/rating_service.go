package app

import (
	"context"
	"strings"

	"samarpan/internal/domain"
)

// RatingService serves the read side of ratings: the leaderboard and per-user history.
type RatingService struct {
	users   UserRepository
	ratings RatingRepository
}

func NewRatingService(users UserRepository, ratings RatingRepository) *RatingService {
	return &RatingService{users: users, ratings: ratings}
}

// Leaderboard ranks users by the rating of mode; "" or "global" ranks by global rating.
func (s *RatingService) Leaderboard(ctx context.Context, mode string, limit int) ([]domain.LeaderboardEntry, error) {
	m := domain.Mode(strings.ToLower(strings.TrimSpace(mode)))
	if m == "global" {
		m = ""
	}
	if m != "" && !m.Valid() {
		return nil, domain.NewError(domain.KindValidation, "mode must be global, rapid, blitz or casual")
	}
	users, err := s.users.TopUsers(ctx, m, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	entries := make([]domain.LeaderboardEntry, 0, len(users))
	for i, u := range users {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:   i + 1,
			UserID: u.ID,
			Name:   u.Name,
			Avatar: u.Avatar,
			Rating: u.Rating(m),
			XP:     u.XP,
		})
	}
	return entries, nil
}

// History returns a user's rating ledger, newest first.
func (s *RatingService) History(ctx context.Context, userID string) ([]domain.RatingHistory, error) {
	if _, err := s.users.GetUser(ctx, userID); err != nil {
		return nil, err
	}
	return s.ratings.ListRatings(ctx, userID)
}

package http

import (
	"net/http"

	"samarpan/internal/domain"
)

func (s *Server) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = "global"
	}
	entries, err := s.ratings.Leaderboard(r.Context(), mode, limit)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mode": mode, "entries": entries})
}

func (s *Server) ratingHistory(w http.ResponseWriter, r *http.Request) {
	userID, err := s.identity.ResolveUserReference(r.Context(), r.PathValue("user"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	history, err := s.ratings.History(r.Context(), userID)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if history == nil {
		history = []domain.RatingHistory{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": userID, "history": history})
}

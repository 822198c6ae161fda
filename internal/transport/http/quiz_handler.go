package http

import (
	"net/http"
	"strconv"

	"samarpan/internal/app"
	"samarpan/internal/domain"

	"github.com/sirupsen/logrus"
)

type generateQuizRequest struct {
	Title      string   `json:"title"`
	Topic      string   `json:"topic" validate:"required"`
	Difficulty string   `json:"difficulty" validate:"omitempty,oneof=easy medium hard"`
	Count      int      `json:"count" validate:"omitempty,min=1,max=20"`
	Author     string   `json:"author"`
	UserID     string   `json:"userId"` // older clients send the author here
	Tags       []string `json:"tags"`
}

type createQuizRequest struct {
	Title     string            `json:"title" validate:"required"`
	Topic     string            `json:"topic"`
	Author    string            `json:"author"`
	Questions []domain.Question `json:"questions" validate:"required,min=1"`
	Tags      []string          `json:"tags"`
}

type quizResponse struct {
	Message string      `json:"message"`
	QuizID  string      `json:"quizId"`
	Quiz    domain.Quiz `json:"quiz"`
}

func (s *Server) generateQuiz(w http.ResponseWriter, r *http.Request) {
	if s.limiter != nil {
		if err := s.limiter.Allow(r.Context(), subject(r)); err != nil {
			writeError(w, r, s.log, err)
			return
		}
	}
	var req generateQuizRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	ref := req.Author
	if ref == "" {
		ref = req.UserID
	}
	authorID, err := s.callerOr(r, ref)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	quiz, err := s.quizzes.GenerateQuiz(r.Context(), app.GenerationDraft{
		Title:      req.Title,
		Topic:      req.Topic,
		Difficulty: domain.Difficulty(req.Difficulty),
		Count:      req.Count,
		AuthorID:   authorID,
		Tags:       req.Tags,
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	s.log.WithFields(logrus.Fields{
		"quiz_id":   quiz.ID,
		"topic":     quiz.Topic,
		"questions": len(quiz.Questions),
	}).Info("quiz generated")
	writeJSON(w, http.StatusCreated, quizResponse{Message: "Quiz generated successfully", QuizID: quiz.ID, Quiz: quiz})
}

func (s *Server) createQuiz(w http.ResponseWriter, r *http.Request) {
	var req createQuizRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	authorID, err := s.callerOr(r, req.Author)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	quiz, err := s.quizzes.CreateQuiz(r.Context(), app.QuizDraft{
		Title:     req.Title,
		Topic:     req.Topic,
		AuthorID:  authorID,
		Questions: req.Questions,
		Tags:      req.Tags,
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, quizResponse{Message: "Quiz created", QuizID: quiz.ID, Quiz: quiz})
}

func (s *Server) getQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := s.quizzes.GetQuiz(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (s *Server) listPublicQuizzes(w http.ResponseWriter, r *http.Request) {
	limit, err := queryLimit(r)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	quizzes, err := s.quizzes.ListPublic(r.Context(), limit)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"quizzes": quizzes})
}

// queryLimit parses ?limit=; zero means the service default.
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, domain.NewError(domain.KindValidation, "limit must be a non-negative integer")
	}
	return n, nil
}

package http

import (
	"net/http"

	"samarpan/internal/app"
	"samarpan/internal/domain"

	"github.com/sirupsen/logrus"
)

type createSessionRequest struct {
	QuizID       string `json:"quizId" validate:"required"`
	Host         string `json:"host"`
	Mode         string `json:"mode" validate:"omitempty,oneof=rapid blitz casual"`
	TimerSeconds int    `json:"timerSeconds" validate:"omitempty,min=5,max=600"`
	Rated        *bool  `json:"rated"`
}

type createSessionResponse struct {
	SessionID string        `json:"sessionId"`
	Pin       string        `json:"pin"`
	Status    domain.Status `json:"status"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, s.log, err)
		return
	}
	hostID, err := s.callerOr(r, req.Host)
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	if hostID == "" {
		writeError(w, r, s.log, domain.NewError(domain.KindValidation, "host is required"))
		return
	}
	rated := true
	if req.Rated != nil {
		rated = *req.Rated
	}
	session, err := s.sessions.StartSession(r.Context(), app.SessionRequest{
		QuizID:       req.QuizID,
		HostID:       hostID,
		Mode:         domain.Mode(req.Mode),
		TimerSeconds: req.TimerSeconds,
		Rated:        rated,
	})
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	s.log.WithFields(logrus.Fields{
		"session_id": session.ID,
		"quiz_id":    session.QuizID,
		"host_id":    session.HostID,
	}).Info("session created")
	writeJSON(w, http.StatusCreated, createSessionResponse{SessionID: session.ID, Pin: session.Pin, Status: session.Status})
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.sessions.SessionByPin(r.Context(), r.PathValue("pin"))
	if err != nil {
		writeError(w, r, s.log, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

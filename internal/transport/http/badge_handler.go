package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"learnpath-service/internal/domain"
)

type grantRequest struct {
	BadgeID string `json:"badgeId" validate:"required"`
	StoryID string `json:"storyId"`
	ClassID string `json:"classId"`
}

type evaluateRequest struct {
	StoryID string `json:"storyId"`
	ClassID string `json:"classId"`
}

type grantResponse struct {
	Award   domain.BadgeAward `json:"award"`
	Granted bool              `json:"granted"`
}

func (s *Server) handleBadgeCatalog(w http.ResponseWriter, r *http.Request) {
	badges, err := s.svc.Badges.Catalog(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, badges)
}

func (s *Server) handleListAwards(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentId")
	if !selfOrStaff(w, r, studentID) {
		return
	}
	awards, err := s.svc.Badges.Awards(r.Context(), studentID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, awards)
}

// handleGrantBadge is idempotent: granting a held badge answers 200 with granted=false.
func (s *Server) handleGrantBadge(w http.ResponseWriter, r *http.Request) {
	var req grantRequest
	if !s.decode(w, r, &req) {
		return
	}
	trigger := domain.Trigger{StoryID: req.StoryID, ClassID: req.ClassID}
	award, err := s.svc.Badges.Grant(r.Context(), chi.URLParam(r, "studentId"), req.BadgeID, trigger)
	switch {
	case errors.Is(err, domain.ErrAlreadyGranted):
		writeJSON(w, http.StatusOK, grantResponse{Award: award, Granted: false})
	case err != nil:
		writeDomainError(w, r, err)
	default:
		writeJSON(w, http.StatusCreated, grantResponse{Award: award, Granted: true})
	}
}

func (s *Server) handleEvaluateBadges(w http.ResponseWriter, r *http.Request) {
	var req evaluateRequest
	if r.ContentLength != 0 && !s.decode(w, r, &req) {
		return
	}
	trigger := domain.Trigger{StoryID: req.StoryID, ClassID: req.ClassID}
	awards, err := s.svc.Badges.Evaluate(r.Context(), chi.URLParam(r, "studentId"), trigger)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, awards)
}

func (s *Server) handleRevokeBadge(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Badges.Revoke(r.Context(), chi.URLParam(r, "studentId"), chi.URLParam(r, "badgeId")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"learnpath-service/internal/app"
	"learnpath-service/internal/auth"
	"learnpath-service/internal/report"
)

var errNotMember = errors.New("not a member of this section")

type sectionRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type enrollRequest struct {
	StudentID   string `json:"studentId" validate:"required"`
	DisplayName string `json:"displayName" validate:"required,max=200"`
}

type progressRequest struct {
	NodeID string `json:"nodeId" validate:"required"`
}

func (s *Server) handleCreateSection(w http.ResponseWriter, r *http.Request) {
	var req sectionRequest
	if !s.decode(w, r, &req) {
		return
	}
	section, err := s.svc.Sections.Create(r.Context(), req.Name, identity(r).UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, section)
}

func (s *Server) handleGetSection(w http.ResponseWriter, r *http.Request) {
	sectionID := chi.URLParam(r, "sectionId")
	if !s.sectionAccess(w, r, sectionID) {
		return
	}
	section, err := s.svc.Sections.Get(r.Context(), sectionID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, section)
}

func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := s.svc.Sections.Members(r.Context(), chi.URLParam(r, "sectionId"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (s *Server) handleEnroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if !s.decode(w, r, &req) {
		return
	}
	enrollment, err := s.svc.Sections.Enroll(r.Context(), chi.URLParam(r, "sectionId"), req.StudentID, req.DisplayName)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, enrollment)
}

func (s *Server) handleRecordProgress(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentId")
	if !selfOrStaff(w, r, studentID) {
		return
	}
	var req progressRequest
	if !s.decode(w, r, &req) {
		return
	}
	progress, created, err := s.svc.Sections.RecordProgress(r.Context(), studentID, req.NodeID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, progress)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	sectionID := chi.URLParam(r, "sectionId")
	if !s.sectionAccess(w, r, sectionID) {
		return
	}
	board, err := s.svc.Boards.Rank(r.Context(), sectionID, r.URL.Query().Get("category"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (s *Server) handleLeaderboardExport(w http.ResponseWriter, r *http.Request) {
	sectionID := chi.URLParam(r, "sectionId")
	board, err := s.svc.Boards.Rank(r.Context(), sectionID, r.URL.Query().Get("category"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="leaderboard-%s.xlsx"`, sectionID))
	if err := report.WriteLeaderboard(w, board); err != nil {
		writeDomainError(w, r, err)
	}
}

func (s *Server) sectionAccess(w http.ResponseWriter, r *http.Request, sectionID string) bool {
	if err := memberOrStaff(r.Context(), s.svc.Sections, identity(r), sectionID); err != nil {
		if errors.Is(err, errNotMember) {
			writeError(w, http.StatusForbidden, "forbidden", err.Error())
			return false
		}
		writeDomainError(w, r, err)
		return false
	}
	return true
}

// memberOrStaff allows staff and students enrolled in the section.
func memberOrStaff(ctx context.Context, sections *app.SectionService, id auth.Identity, sectionID string) error {
	members, err := sections.Members(ctx, sectionID)
	if err != nil {
		return err
	}
	if id.Role.Staff() {
		return nil
	}
	for _, m := range members {
		if m.StudentID == id.UserID {
			return nil
		}
	}
	return errNotMember
}

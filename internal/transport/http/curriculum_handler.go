package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"learnpath-service/internal/domain"
)

type nodeRequest struct {
	Kind         string `json:"kind" validate:"required,oneof=phase lesson activity"`
	ParentID     string `json:"parentId" validate:"required_unless=Kind phase"`
	Title        string `json:"title" validate:"required,max=200"`
	Description  string `json:"description" validate:"max=2000"`
	ActivityType string `json:"activityType" validate:"omitempty,oneof=quiz drag_drop matching story"`
	QuizID       string `json:"quizId"`
}

type renameRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"max=2000"`
}

type positionRequest struct {
	Index *int `json:"index" validate:"required"`
}

// handleListNodes lists one sibling set: ?kind=phase, or ?kind=lesson&parentId=...
func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	kind := domain.NodeKind(r.URL.Query().Get("kind"))
	if kind == "" {
		kind = domain.KindPhase
	}
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_kind", string(kind))
		return
	}
	scope := domain.Scope{Kind: kind, ParentID: r.URL.Query().Get("parentId")}
	nodes, err := s.svc.Curriculum.Children(r.Context(), scope)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	node, err := s.svc.Curriculum.Get(r.Context(), chi.URLParam(r, "nodeId"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	var req nodeRequest
	if !s.decode(w, r, &req) {
		return
	}
	node, err := s.svc.Curriculum.Append(r.Context(), domain.Node{
		Kind:         domain.NodeKind(req.Kind),
		ParentID:     req.ParentID,
		Title:        req.Title,
		Description:  req.Description,
		ActivityType: domain.ActivityType(req.ActivityType),
		QuizID:       req.QuizID,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, node)
}

func (s *Server) handleRenameNode(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if !s.decode(w, r, &req) {
		return
	}
	node, err := s.svc.Curriculum.Rename(r.Context(), chi.URLParam(r, "nodeId"), req.Title, req.Description)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleMoveNode(w http.ResponseWriter, r *http.Request) {
	var req positionRequest
	if !s.decode(w, r, &req) {
		return
	}
	node, err := s.svc.Curriculum.Reorder(r.Context(), chi.URLParam(r, "nodeId"), *req.Index)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, node)
}

func (s *Server) handleDeleteNode(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Curriculum.Delete(r.Context(), chi.URLParam(r, "nodeId")); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

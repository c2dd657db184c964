package http

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"learnpath-service/internal/domain"
	"learnpath-service/internal/quizfile"
)

type submitRequest struct {
	Answers map[string]domain.Answer `json:"answers" validate:"required"`
}

// handleSaveQuiz accepts a quiz document as JSON, or YAML when the request
// is sent with a yaml content type.
func (s *Server) handleSaveQuiz(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	format := "json"
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		format = "yaml"
	}
	quiz, err := quizfile.Parse(body, format)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	saved, err := s.svc.Quizzes.SaveQuiz(r.Context(), quiz)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// handleGetQuiz hides the answer key from students.
func (s *Server) handleGetQuiz(w http.ResponseWriter, r *http.Request) {
	quiz, err := s.svc.Quizzes.Quiz(r.Context(), chi.URLParam(r, "quizId"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if !identity(r).Role.Staff() {
		quiz = quiz.Public()
	}
	writeJSON(w, http.StatusOK, quiz)
}

func (s *Server) handleStartAttempt(w http.ResponseWriter, r *http.Request) {
	attempt, err := s.svc.Quizzes.Start(r.Context(), chi.URLParam(r, "quizId"), identity(r).UserID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, attempt)
}

func (s *Server) handleSubmitAttempt(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !s.decode(w, r, &req) {
		return
	}
	out, err := s.svc.Quizzes.Submit(r.Context(), chi.URLParam(r, "attemptId"), identity(r).UserID, domain.Submission{Answers: req.Answers})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleListAttempts(w http.ResponseWriter, r *http.Request) {
	studentID := chi.URLParam(r, "studentId")
	if !selfOrStaff(w, r, studentID) {
		return
	}
	attempts, err := s.svc.Quizzes.Attempts(r.Context(), studentID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, attempts)
}

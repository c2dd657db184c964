package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"learnpath-service/internal/app"
	"learnpath-service/internal/auth"
	"learnpath-service/internal/domain"
	"learnpath-service/internal/quizfile"
)

const maxBodyBytes = 1 << 20

// Services bundles the use cases the API exposes.
type Services struct {
	Curriculum *app.CurriculumService
	Quizzes    *app.QuizService
	Badges     *app.BadgeService
	Sections   *app.SectionService
	Boards     *app.LeaderboardService
}

type Server struct {
	svc      Services
	signer   *auth.Signer
	validate *validator.Validate
	ws       *WSHandler
}

func NewServer(svc Services, signer *auth.Signer) *Server {
	return &Server{
		svc:      svc,
		signer:   signer,
		validate: validator.New(),
		ws:       NewWSHandler(svc.Boards, svc.Sections),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/curriculum", s.handleListNodes)
		r.Get("/curriculum/{nodeId}", s.handleGetNode)
		r.With(requireStaff).Post("/curriculum", s.handleCreateNode)
		r.With(requireStaff).Patch("/curriculum/{nodeId}", s.handleRenameNode)
		r.With(requireStaff).Put("/curriculum/{nodeId}/position", s.handleMoveNode)
		r.With(requireStaff).Delete("/curriculum/{nodeId}", s.handleDeleteNode)

		r.With(requireStaff).Post("/quizzes", s.handleSaveQuiz)
		r.Get("/quizzes/{quizId}", s.handleGetQuiz)
		r.Post("/quizzes/{quizId}/attempts", s.handleStartAttempt)
		r.Post("/attempts/{attemptId}/submit", s.handleSubmitAttempt)
		r.Get("/students/{studentId}/attempts", s.handleListAttempts)

		r.Get("/badges", s.handleBadgeCatalog)
		r.Get("/students/{studentId}/badges", s.handleListAwards)
		r.With(requireStaff).Post("/students/{studentId}/badges", s.handleGrantBadge)
		r.With(requireStaff).Post("/students/{studentId}/badges/evaluate", s.handleEvaluateBadges)
		r.With(requireAdmin).Delete("/students/{studentId}/badges/{badgeId}", s.handleRevokeBadge)

		r.With(requireStaff).Post("/sections", s.handleCreateSection)
		r.Get("/sections/{sectionId}", s.handleGetSection)
		r.With(requireStaff).Get("/sections/{sectionId}/members", s.handleListMembers)
		r.With(requireStaff).Post("/sections/{sectionId}/enrollments", s.handleEnroll)
		r.Post("/students/{studentId}/progress", s.handleRecordProgress)
		r.Get("/sections/{sectionId}/leaderboard", s.handleLeaderboard)
		r.With(requireStaff).Get("/sections/{sectionId}/leaderboard.xlsx", s.handleLeaderboardExport)

		r.Get("/ws/leaderboard", s.ws.ServeWS)
	})
	return r
}

// Auth

// authMiddleware accepts a bearer header, or a token query parameter for
// WebSocket clients that cannot set headers.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			token = r.URL.Query().Get("token")
		}
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token", "")
			return
		}
		id, err := s.signer.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid_token", "")
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

func identity(r *http.Request) auth.Identity {
	id, _ := auth.FromContext(r.Context())
	return id
}

func requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !identity(r).Role.Staff() {
			writeError(w, http.StatusForbidden, "forbidden", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if identity(r).Role != auth.RoleAdmin {
			writeError(w, http.StatusForbidden, "forbidden", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// selfOrStaff lets students act on their own records only.
func selfOrStaff(w http.ResponseWriter, r *http.Request, studentID string) bool {
	id := identity(r)
	if id.Role.Staff() || id.UserID == studentID {
		return true
	}
	writeError(w, http.StatusForbidden, "forbidden", "")
	return false
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

// Helpers

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// decode reads a JSON body into out and runs struct validation on it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return false
	}
	if err := s.validate.Struct(out); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: code, Message: message})
}

// writeDomainError maps service errors to HTTP statuses.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrOutOfRange):
		writeError(w, http.StatusUnprocessableEntity, "out_of_range", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, domain.ErrAlreadyGranted), errors.Is(err, domain.ErrConflict):
		writeError(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, domain.ErrInvalidState):
		writeError(w, http.StatusConflict, "invalid_state", err.Error())
	case errors.Is(err, quizfile.ErrInvalid):
		writeError(w, http.StatusBadRequest, "invalid_quiz", err.Error())
	default:
		slog.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "")
	}
}

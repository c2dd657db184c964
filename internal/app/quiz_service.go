package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"learnpath-service/internal/domain"
	"learnpath-service/internal/metrics"
)

// QuizStore is the backing store for quiz definitions (static map, Postgres, ...).
type QuizStore interface {
	LoadQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	SaveQuiz(ctx context.Context, quiz domain.Quiz) error
}

// QuizRepository loads quiz content through a cache in front of a QuizStore.
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
	Invalidate(ctx context.Context, quizID string) error
}

// AttemptRepository persists quiz attempts. Attempts are never deleted.
type AttemptRepository interface {
	CreateAttempt(ctx context.Context, attempt domain.Attempt) error
	GetAttempt(ctx context.Context, id string) (domain.Attempt, error)
	// CompleteAttempt stores the scored attempt only if it has not been
	// completed yet, returning domain.ErrAttemptCompleted otherwise.
	CompleteAttempt(ctx context.Context, attempt domain.Attempt) error
	// ListAttempts returns a student's attempts, most recent start first.
	ListAttempts(ctx context.Context, studentID string) ([]domain.Attempt, error)
	// ListCompleted returns completed attempts of the given students, most
	// recent completion first.
	ListCompleted(ctx context.Context, studentIDs ...string) ([]domain.Attempt, error)
}

// SubmitResult is everything a submission produces.
type SubmitResult struct {
	Attempt domain.Attempt       `json:"attempt"`
	Result  domain.ScoringResult `json:"result"`
	Badges  []domain.BadgeAward  `json:"badges"`
}

// QuizService contains the quiz-taking use cases.
type QuizService struct {
	attempts AttemptRepository
	quizzes  QuizRepository
	store    QuizStore
	badges   *BadgeService
	boards   *LeaderboardService
	now      func() time.Time
}

// NewQuizService wires the quiz use cases. badges and boards may be nil, in
// which case submissions skip badge evaluation and leaderboard refreshes.
func NewQuizService(attempts AttemptRepository, quizzes QuizRepository, store QuizStore, badges *BadgeService, boards *LeaderboardService) *QuizService {
	return NewQuizServiceWithClock(attempts, quizzes, store, badges, boards, time.Now)
}

// NewQuizServiceWithClock allows deterministic timestamps in tests.
func NewQuizServiceWithClock(attempts AttemptRepository, quizzes QuizRepository, store QuizStore, badges *BadgeService, boards *LeaderboardService, now func() time.Time) *QuizService {
	return &QuizService{
		attempts: attempts,
		quizzes:  quizzes,
		store:    store,
		badges:   badges,
		boards:   boards,
		now:      now,
	}
}

// Quiz returns a quiz definition.
func (s *QuizService) Quiz(ctx context.Context, quizID string) (domain.Quiz, error) {
	return s.quizzes.GetQuiz(ctx, quizID)
}

// SaveQuiz creates or replaces a quiz definition.
func (s *QuizService) SaveQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	if strings.TrimSpace(quiz.ID) == "" {
		quiz.ID = uuid.NewString()
	}
	for i := range quiz.Questions {
		if quiz.Questions[i].ID == "" {
			quiz.Questions[i].ID = fmt.Sprintf("q%d", i+1)
		}
	}
	quiz.UpdatedAt = s.now().UTC()
	if err := s.store.SaveQuiz(ctx, quiz); err != nil {
		return domain.Quiz{}, err
	}
	if err := s.quizzes.Invalidate(ctx, quiz.ID); err != nil {
		slog.Warn("quiz cache invalidation failed", "quiz_id", quiz.ID, "error", err)
	}
	return quiz, nil
}

// Start opens a new attempt for a student. The quiz must be open.
func (s *QuizService) Start(ctx context.Context, quizID, studentID string) (domain.Attempt, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.Attempt{}, err
	}
	now := s.now().UTC()
	if err := CheckOpen(quiz, now); err != nil {
		return domain.Attempt{}, err
	}

	attempt := domain.Attempt{
		ID:        uuid.NewString(),
		QuizID:    quiz.ID,
		StudentID: studentID,
		Category:  quiz.Category,
		StartedAt: now,
		MaxScore:  quiz.MaxScore(),
	}
	if err := s.attempts.CreateAttempt(ctx, attempt); err != nil {
		return domain.Attempt{}, err
	}
	return attempt, nil
}

// Submit scores an attempt exactly once, then runs badge evaluation and
// refreshes the student's leaderboards.
func (s *QuizService) Submit(ctx context.Context, attemptID, studentID string, submission domain.Submission) (SubmitResult, error) {
	attempt, err := s.attempts.GetAttempt(ctx, attemptID)
	if err != nil {
		return SubmitResult{}, err
	}
	// Other students' attempts are reported as missing rather than forbidden.
	if attempt.StudentID != studentID {
		return SubmitResult{}, domain.ErrAttemptNotFound
	}
	if attempt.Completed() {
		return SubmitResult{}, domain.ErrAttemptCompleted
	}

	quiz, err := s.quizzes.GetQuiz(ctx, attempt.QuizID)
	if err != nil {
		return SubmitResult{}, err
	}
	now := s.now().UTC()
	if err := CheckOpen(quiz, now); err != nil {
		return SubmitResult{}, err
	}

	result := Score(quiz, submission)
	attempt.Answers = submission.Answers
	attempt.Score = result.RawScore
	attempt.MaxScore = result.MaxScore
	attempt.Percentage = result.Percentage
	attempt.CompletedAt = &now
	attempt.TimeSpentSeconds = int(now.Sub(attempt.StartedAt).Seconds())
	if attempt.TimeSpentSeconds < 0 {
		attempt.TimeSpentSeconds = 0
	}

	if err := s.attempts.CompleteAttempt(ctx, attempt); err != nil {
		return SubmitResult{}, err
	}
	metrics.AttemptsSubmitted.Inc()
	metrics.AttemptPercentage.Observe(attempt.Percentage)

	out := SubmitResult{Attempt: attempt, Result: result, Badges: []domain.BadgeAward{}}
	if s.badges != nil {
		awards, err := s.badges.Evaluate(ctx, studentID, domain.Trigger{Attempt: &attempt})
		if err != nil {
			slog.Error("badge evaluation failed", "student_id", studentID, "attempt_id", attempt.ID, "error", err)
		} else {
			out.Badges = awards
		}
	}
	if s.boards != nil {
		s.boards.StudentChanged(ctx, studentID)
	}
	return out, nil
}

// Attempts returns a student's attempt history, most recent first.
func (s *QuizService) Attempts(ctx context.Context, studentID string) ([]domain.Attempt, error) {
	return s.attempts.ListAttempts(ctx, studentID)
}

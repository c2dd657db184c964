package postgres

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"learnpath-service/internal/domain"
)

// AttemptStore persists quiz attempts. Rows are never deleted.
type AttemptStore struct {
	db *bun.DB
}

func NewAttemptStore(db *bun.DB) *AttemptStore {
	return &AttemptStore{db: db}
}

func (s *AttemptStore) CreateAttempt(ctx context.Context, attempt domain.Attempt) error {
	row := newAttemptRow(attempt)
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if pgCode(err) == codeUniqueViolation {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

func (s *AttemptStore) GetAttempt(ctx context.Context, id string) (domain.Attempt, error) {
	var row attemptRow
	if err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx); err != nil {
		return domain.Attempt{}, notFound(err, domain.ErrAttemptNotFound)
	}
	return row.toDomain(), nil
}

// CompleteAttempt updates the row only while completed_at is still NULL, so
// of several concurrent submissions exactly one is recorded.
func (s *AttemptStore) CompleteAttempt(ctx context.Context, attempt domain.Attempt) error {
	row := newAttemptRow(attempt)
	res, err := s.db.NewUpdate().Model(&row).
		Column("completed_at", "answers", "score", "max_score", "percentage", "time_spent_seconds").
		Where("id = ?", attempt.ID).
		Where("completed_at IS NULL").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("complete attempt: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := s.GetAttempt(ctx, attempt.ID); err != nil {
		return err
	}
	return domain.ErrAttemptCompleted
}

func (s *AttemptStore) ListAttempts(ctx context.Context, studentID string) ([]domain.Attempt, error) {
	var rows []attemptRow
	err := s.db.NewSelect().Model(&rows).
		Where("student_id = ?", studentID).
		OrderExpr("started_at DESC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	return attemptsToDomain(rows), nil
}

func (s *AttemptStore) ListCompleted(ctx context.Context, studentIDs ...string) ([]domain.Attempt, error) {
	if len(studentIDs) == 0 {
		return []domain.Attempt{}, nil
	}
	var rows []attemptRow
	err := s.db.NewSelect().Model(&rows).
		Where("student_id IN (?)", bun.In(studentIDs)).
		Where("completed_at IS NOT NULL").
		OrderExpr("completed_at DESC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list completed attempts: %w", err)
	}
	return attemptsToDomain(rows), nil
}

func attemptsToDomain(rows []attemptRow) []domain.Attempt {
	out := make([]domain.Attempt, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out
}

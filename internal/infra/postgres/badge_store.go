package postgres

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"learnpath-service/internal/domain"
)

// BadgeStore keeps the badge catalog and awards. A partial unique index on
// badge_awards (student_id, badge_id) WHERE active makes granting idempotent.
type BadgeStore struct {
	db *bun.DB
}

func NewBadgeStore(db *bun.DB) *BadgeStore {
	return &BadgeStore{db: db}
}

func (s *BadgeStore) UpsertBadges(ctx context.Context, badges []domain.Badge) error {
	if len(badges) == 0 {
		return nil
	}
	rows := make([]badgeRow, 0, len(badges))
	for _, b := range badges {
		rows = append(rows, badgeRow{
			ID:          b.ID,
			Title:       b.Title,
			Category:    b.Category,
			Criteria:    b.Criteria,
			PointsValue: b.PointsValue,
			Active:      b.Active,
		})
	}
	_, err := s.db.NewInsert().Model(&rows).
		On("CONFLICT (id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("category = EXCLUDED.category").
		Set("criteria = EXCLUDED.criteria").
		Set("points_value = EXCLUDED.points_value").
		Set("active = EXCLUDED.active").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert badges: %w", err)
	}
	return nil
}

func (s *BadgeStore) ListBadges(ctx context.Context) ([]domain.Badge, error) {
	var rows []badgeRow
	err := s.db.NewSelect().Model(&rows).
		OrderExpr("category ASC, points_value ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list badges: %w", err)
	}
	out := make([]domain.Badge, 0, len(rows))
	for _, row := range rows {
		out = append(out, badgeFromRow(row))
	}
	return out, nil
}

func (s *BadgeStore) GetBadge(ctx context.Context, id string) (domain.Badge, error) {
	var row badgeRow
	if err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx); err != nil {
		return domain.Badge{}, notFound(err, domain.ErrBadgeNotFound)
	}
	return badgeFromRow(row), nil
}

func (s *BadgeStore) GrantIfAbsent(ctx context.Context, award domain.BadgeAward) (bool, error) {
	row := awardRow{
		ID:               award.ID,
		StudentID:        award.StudentID,
		BadgeID:          award.BadgeID,
		EarnedAt:         award.EarnedAt,
		PerformanceScore: award.PerformanceScore,
		SourceQuizID:     award.SourceQuizID,
		SourceStoryID:    award.SourceStoryID,
		SourceClassID:    award.SourceClassID,
		Active:           true,
	}
	res, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (student_id, badge_id) WHERE active DO NOTHING").
		Exec(ctx)
	if err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return false, domain.ErrBadgeNotFound
		}
		return false, fmt.Errorf("grant badge: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *BadgeStore) ListAwards(ctx context.Context, studentID string) ([]domain.BadgeAward, error) {
	var rows []awardRow
	err := s.db.NewSelect().Model(&rows).
		Where("student_id = ?", studentID).
		OrderExpr("earned_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list awards: %w", err)
	}
	out := make([]domain.BadgeAward, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *BadgeStore) RevokeAward(ctx context.Context, studentID, badgeID string) error {
	res, err := s.db.NewUpdate().Model((*awardRow)(nil)).
		Set("active = FALSE").
		Where("student_id = ?", studentID).
		Where("badge_id = ?", badgeID).
		Where("active").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("revoke award: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrAwardNotFound
	}
	return nil
}

func badgeFromRow(row badgeRow) domain.Badge {
	return domain.Badge{
		ID:          row.ID,
		Title:       row.Title,
		Category:    row.Category,
		Criteria:    row.Criteria,
		PointsValue: row.PointsValue,
		Active:      row.Active,
	}
}

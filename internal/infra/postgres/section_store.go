package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/uptrace/bun"

	"learnpath-service/internal/domain"
)

// SectionStore persists sections, memberships and completion progress.
type SectionStore struct {
	db *bun.DB
}

func NewSectionStore(db *bun.DB) *SectionStore {
	return &SectionStore{db: db}
}

func (s *SectionStore) CreateSection(ctx context.Context, section domain.Section) error {
	row := sectionRow{
		ID:        section.ID,
		Name:      section.Name,
		TeacherID: section.TeacherID,
		CreatedAt: section.CreatedAt,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		if pgCode(err) == codeUniqueViolation {
			return domain.ErrConflict
		}
		return fmt.Errorf("insert section: %w", err)
	}
	return nil
}

func (s *SectionStore) GetSection(ctx context.Context, id string) (domain.Section, error) {
	var row sectionRow
	if err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx); err != nil {
		return domain.Section{}, notFound(err, domain.ErrSectionNotFound)
	}
	return domain.Section{ID: row.ID, Name: row.Name, TeacherID: row.TeacherID, CreatedAt: row.CreatedAt}, nil
}

func (s *SectionStore) Enroll(ctx context.Context, enrollment domain.Enrollment) error {
	row := memberRow{
		SectionID:   enrollment.SectionID,
		StudentID:   enrollment.StudentID,
		DisplayName: enrollment.DisplayName,
		EnrolledAt:  enrollment.EnrolledAt,
	}
	if _, err := s.db.NewInsert().Model(&row).Exec(ctx); err != nil {
		switch pgCode(err) {
		case codeUniqueViolation:
			return domain.ErrAlreadyEnrolled
		case codeForeignKeyViolation:
			return domain.ErrSectionNotFound
		}
		return fmt.Errorf("enroll: %w", err)
	}
	return nil
}

func (s *SectionStore) Members(ctx context.Context, sectionID string) ([]domain.Enrollment, error) {
	var rows []memberRow
	err := s.db.NewSelect().Model(&rows).
		Where("section_id = ?", sectionID).
		OrderExpr("student_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	out := make([]domain.Enrollment, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.Enrollment{
			SectionID:   row.SectionID,
			StudentID:   row.StudentID,
			DisplayName: row.DisplayName,
			EnrolledAt:  row.EnrolledAt,
		})
	}
	return out, nil
}

func (s *SectionStore) SectionsOf(ctx context.Context, studentID string) ([]string, error) {
	var ids []string
	err := s.db.NewSelect().Model((*memberRow)(nil)).
		Column("section_id").
		Where("student_id = ?", studentID).
		OrderExpr("section_id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, fmt.Errorf("list sections of student: %w", err)
	}
	return ids, nil
}

// RecordProgress keeps the first completion of a node. A repeat returns the
// stored row with created false.
func (s *SectionStore) RecordProgress(ctx context.Context, progress domain.Progress) (domain.Progress, bool, error) {
	row := progressRow{
		StudentID:   progress.StudentID,
		NodeID:      progress.NodeID,
		Kind:        string(progress.Kind),
		CompletedAt: progress.CompletedAt,
	}
	res, err := s.db.NewInsert().Model(&row).
		On("CONFLICT (student_id, node_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return domain.Progress{}, false, fmt.Errorf("record progress: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return domain.Progress{}, false, err
	}
	if n == 1 {
		return progress, true, nil
	}

	var existing progressRow
	err = s.db.NewSelect().Model(&existing).
		Where("student_id = ?", progress.StudentID).
		Where("node_id = ?", progress.NodeID).
		Scan(ctx)
	if err != nil {
		return domain.Progress{}, false, fmt.Errorf("load progress: %w", err)
	}
	return existing.toDomain(), false, nil
}

// ListProgress skips rows whose curriculum node no longer exists.
func (s *SectionStore) ListProgress(ctx context.Context, studentIDs ...string) ([]domain.Progress, error) {
	if len(studentIDs) == 0 {
		return []domain.Progress{}, nil
	}
	var rows []progressRow
	err := s.db.NewSelect().Model(&rows).
		Join("JOIN curriculum_nodes AS n ON n.id = p.node_id").
		Where("p.student_id IN (?)", bun.In(studentIDs)).
		OrderExpr("p.student_id ASC, p.node_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	out := make([]domain.Progress, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *SectionStore) DeleteProgress(ctx context.Context, nodeIDs ...string) ([]string, error) {
	if len(nodeIDs) == 0 {
		return []string{}, nil
	}
	var removed []string
	err := s.db.NewDelete().Model((*progressRow)(nil)).
		Where("node_id IN (?)", bun.In(nodeIDs)).
		Returning("student_id").
		Scan(ctx, &removed)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("delete progress: %w", err)
	}
	seen := make(map[string]struct{}, len(removed))
	students := make([]string, 0, len(removed))
	for _, id := range removed {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		students = append(students, id)
	}
	sort.Strings(students)
	return students, nil
}

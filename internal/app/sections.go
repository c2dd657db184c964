package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"learnpath-service/internal/domain"
)

// SectionRepository stores sections, their enrollments and student progress.
type SectionRepository interface {
	CreateSection(ctx context.Context, section domain.Section) error
	GetSection(ctx context.Context, id string) (domain.Section, error)
	// Enroll returns domain.ErrAlreadyEnrolled for a duplicate (section, student).
	Enroll(ctx context.Context, enrollment domain.Enrollment) error
	Members(ctx context.Context, sectionID string) ([]domain.Enrollment, error)
	SectionsOf(ctx context.Context, studentID string) ([]string, error)
	// RecordProgress is idempotent per (student, node); the first completion
	// time wins. It returns the stored record and whether this call created it.
	RecordProgress(ctx context.Context, progress domain.Progress) (domain.Progress, bool, error)
	ListProgress(ctx context.Context, studentIDs ...string) ([]domain.Progress, error)
	// DeleteProgress removes progress on the given nodes and returns the
	// distinct students that lost a record.
	DeleteProgress(ctx context.Context, nodeIDs ...string) ([]string, error)
}

// SectionService manages classes, enrollments and completion progress.
type SectionService struct {
	repo       SectionRepository
	curriculum CurriculumRepository
	boards     *LeaderboardService
	now        func() time.Time
}

func NewSectionService(repo SectionRepository, curriculum CurriculumRepository, boards *LeaderboardService) *SectionService {
	return &SectionService{repo: repo, curriculum: curriculum, boards: boards, now: time.Now}
}

func (s *SectionService) Create(ctx context.Context, name, teacherID string) (domain.Section, error) {
	section := domain.Section{
		ID:        uuid.NewString(),
		Name:      name,
		TeacherID: teacherID,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateSection(ctx, section); err != nil {
		return domain.Section{}, err
	}
	return section, nil
}

func (s *SectionService) Get(ctx context.Context, id string) (domain.Section, error) {
	return s.repo.GetSection(ctx, id)
}

// Enroll adds a student to a section.
func (s *SectionService) Enroll(ctx context.Context, sectionID, studentID, displayName string) (domain.Enrollment, error) {
	if _, err := s.repo.GetSection(ctx, sectionID); err != nil {
		return domain.Enrollment{}, err
	}
	enrollment := domain.Enrollment{
		SectionID:   sectionID,
		StudentID:   studentID,
		DisplayName: displayName,
		EnrolledAt:  s.now().UTC(),
	}
	if err := s.repo.Enroll(ctx, enrollment); err != nil {
		return domain.Enrollment{}, err
	}
	if s.boards != nil {
		s.boards.SectionChanged(ctx, sectionID)
	}
	return enrollment, nil
}

func (s *SectionService) Members(ctx context.Context, sectionID string) ([]domain.Enrollment, error) {
	if _, err := s.repo.GetSection(ctx, sectionID); err != nil {
		return nil, err
	}
	return s.repo.Members(ctx, sectionID)
}

// RecordProgress marks a lesson or activity as completed by the student.
// Repeating it returns the original record with created set to false.
func (s *SectionService) RecordProgress(ctx context.Context, studentID, nodeID string) (domain.Progress, bool, error) {
	node, err := s.curriculum.GetNode(ctx, nodeID)
	if err != nil {
		return domain.Progress{}, false, err
	}
	if node.Kind != domain.KindLesson && node.Kind != domain.KindActivity {
		return domain.Progress{}, false, domain.ErrInvalidProgressFor
	}
	progress, created, err := s.repo.RecordProgress(ctx, domain.Progress{
		StudentID:   studentID,
		NodeID:      node.ID,
		Kind:        node.Kind,
		CompletedAt: s.now().UTC(),
	})
	if err != nil {
		return domain.Progress{}, false, err
	}
	if created && s.boards != nil {
		s.boards.StudentChanged(ctx, studentID)
	}
	return progress, created, nil
}

// NodesRemoved drops progress on deleted curriculum nodes and refreshes the
// boards of every affected student.
func (s *SectionService) NodesRemoved(ctx context.Context, nodeIDs []string) {
	students, err := s.repo.DeleteProgress(ctx, nodeIDs...)
	if err != nil {
		slog.Warn("progress cleanup failed", "nodes", len(nodeIDs), "error", err)
		return
	}
	if s.boards == nil {
		return
	}
	for _, studentID := range students {
		s.boards.StudentChanged(ctx, studentID)
	}
}

package memory

import (
	"context"
	"sort"
	"sync"

	"learnpath-service/internal/domain"
)

// SectionStore is an in-memory implementation of app.SectionRepository.
type SectionStore struct {
	mu       sync.RWMutex
	sections map[string]domain.Section
	members  map[string][]domain.Enrollment
	progress map[string]map[string]domain.Progress
}

func NewSectionStore() *SectionStore {
	return &SectionStore{
		sections: make(map[string]domain.Section),
		members:  make(map[string][]domain.Enrollment),
		progress: make(map[string]map[string]domain.Progress),
	}
}

func (s *SectionStore) CreateSection(_ context.Context, section domain.Section) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sections[section.ID]; ok {
		return domain.ErrConflict
	}
	s.sections[section.ID] = section
	return nil
}

func (s *SectionStore) GetSection(_ context.Context, id string) (domain.Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	section, ok := s.sections[id]
	if !ok {
		return domain.Section{}, domain.ErrSectionNotFound
	}
	return section, nil
}

func (s *SectionStore) Enroll(_ context.Context, enrollment domain.Enrollment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sections[enrollment.SectionID]; !ok {
		return domain.ErrSectionNotFound
	}
	for _, m := range s.members[enrollment.SectionID] {
		if m.StudentID == enrollment.StudentID {
			return domain.ErrAlreadyEnrolled
		}
	}
	s.members[enrollment.SectionID] = append(s.members[enrollment.SectionID], enrollment)
	return nil
}

func (s *SectionStore) Members(_ context.Context, sectionID string) ([]domain.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.Enrollment(nil), s.members[sectionID]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].StudentID < out[j].StudentID })
	return out, nil
}

func (s *SectionStore) SectionsOf(_ context.Context, studentID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0)
	for sectionID, members := range s.members {
		for _, m := range members {
			if m.StudentID == studentID {
				out = append(out, sectionID)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *SectionStore) RecordProgress(_ context.Context, progress domain.Progress) (domain.Progress, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byNode, ok := s.progress[progress.StudentID]
	if !ok {
		byNode = make(map[string]domain.Progress)
		s.progress[progress.StudentID] = byNode
	}
	if existing, done := byNode[progress.NodeID]; done {
		return existing, false, nil
	}
	byNode[progress.NodeID] = progress
	return progress, true, nil
}

func (s *SectionStore) DeleteProgress(_ context.Context, nodeIDs ...string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	students := make([]string, 0)
	for studentID, byNode := range s.progress {
		removed := false
		for _, nodeID := range nodeIDs {
			if _, ok := byNode[nodeID]; ok {
				delete(byNode, nodeID)
				removed = true
			}
		}
		if removed {
			students = append(students, studentID)
		}
	}
	sort.Strings(students)
	return students, nil
}

func (s *SectionStore) ListProgress(_ context.Context, studentIDs ...string) ([]domain.Progress, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Progress, 0)
	for _, id := range studentIDs {
		for _, p := range s.progress[id] {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StudentID != out[j].StudentID {
			return out[i].StudentID < out[j].StudentID
		}
		return out[i].NodeID < out[j].NodeID
	})
	return out, nil
}

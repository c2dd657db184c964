package memory

import (
	"context"
	"sort"
	"sync"

	"learnpath-service/internal/domain"
)

// BadgeStore keeps the badge catalog and awards in memory.
type BadgeStore struct {
	mu     sync.RWMutex
	badges map[string]domain.Badge
	awards []domain.BadgeAward
}

func NewBadgeStore() *BadgeStore {
	return &BadgeStore{badges: make(map[string]domain.Badge)}
}

func (s *BadgeStore) UpsertBadges(_ context.Context, badges []domain.Badge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range badges {
		s.badges[b.ID] = b
	}
	return nil
}

func (s *BadgeStore) ListBadges(_ context.Context) ([]domain.Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Badge, 0, len(s.badges))
	for _, b := range s.badges {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		if out[i].PointsValue != out[j].PointsValue {
			return out[i].PointsValue < out[j].PointsValue
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *BadgeStore) GetBadge(_ context.Context, id string) (domain.Badge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.badges[id]
	if !ok {
		return domain.Badge{}, domain.ErrBadgeNotFound
	}
	return b, nil
}

func (s *BadgeStore) GrantIfAbsent(_ context.Context, award domain.BadgeAward) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.awards {
		if a.Active && a.StudentID == award.StudentID && a.BadgeID == award.BadgeID {
			return false, nil
		}
	}
	award.Active = true
	s.awards = append(s.awards, award)
	return true, nil
}

func (s *BadgeStore) ListAwards(_ context.Context, studentID string) ([]domain.BadgeAward, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.BadgeAward, 0)
	for _, a := range s.awards {
		if a.StudentID == studentID {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EarnedAt.Before(out[j].EarnedAt) })
	return out, nil
}

func (s *BadgeStore) RevokeAward(_ context.Context, studentID, badgeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.awards {
		if a.Active && a.StudentID == studentID && a.BadgeID == badgeID {
			s.awards[i].Active = false
			return nil
		}
	}
	return domain.ErrAwardNotFound
}

package app

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"learnpath-service/internal/domain"
	"learnpath-service/internal/metrics"
)

// LeaderboardCache stores computed leaderboards per section and category.
// Each section carries a generation that Invalidate advances; Set only stores
// a board computed under the current generation.
type LeaderboardCache interface {
	Get(ctx context.Context, sectionID, category string) (domain.Leaderboard, bool)
	Generation(ctx context.Context, sectionID string) uint64
	// Set is a no-op when the section was invalidated after gen was read.
	Set(ctx context.Context, board domain.Leaderboard, gen uint64)
	// Invalidate drops every cached category of the section.
	Invalidate(ctx context.Context, sectionID string)
}

// Aggregate ranks the members of a section. Only the most recent completed
// attempt per (student, quiz) counts, so retries replace earlier results.
// A non-empty category limits the attempts to quizzes of that category.
//
// Rows are sorted by total score desc, average percentage desc, student ID
// asc, and numbered sequentially: ties receive distinct consecutive ranks.
func Aggregate(members []domain.Enrollment, attempts []domain.Attempt, progress []domain.Progress, category string) []domain.Ranking {
	type quizKey struct{ student, quiz string }

	latest := make(map[quizKey]domain.Attempt)
	for _, a := range attempts {
		if !a.Completed() || (category != "" && a.Category != category) {
			continue
		}
		key := quizKey{a.StudentID, a.QuizID}
		if prev, ok := latest[key]; ok && !a.CompletedAt.After(*prev.CompletedAt) {
			continue
		}
		latest[key] = a
	}

	rows := make(map[string]*domain.Ranking, len(members))
	sums := make(map[string]float64, len(members))
	entries := make([]domain.Ranking, 0, len(members))
	order := make([]string, 0, len(members))
	for _, m := range members {
		if _, ok := rows[m.StudentID]; ok {
			continue
		}
		rows[m.StudentID] = &domain.Ranking{StudentID: m.StudentID, DisplayName: m.DisplayName}
		order = append(order, m.StudentID)
	}

	for key, a := range latest {
		row, ok := rows[key.student]
		if !ok {
			continue
		}
		row.TotalScore += a.Score
		row.CompletedQuizzes++
		sums[key.student] += a.Percentage
	}
	for _, p := range progress {
		row, ok := rows[p.StudentID]
		if !ok {
			continue
		}
		switch p.Kind {
		case domain.KindLesson:
			row.CompletedLessons++
		case domain.KindActivity:
			row.CompletedActivities++
		}
	}

	for _, id := range order {
		row := rows[id]
		if row.CompletedQuizzes > 0 {
			row.AveragePercentage = sums[id] / float64(row.CompletedQuizzes)
		}
		entries = append(entries, *row)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalScore != entries[j].TotalScore {
			return entries[i].TotalScore > entries[j].TotalScore
		}
		if entries[i].AveragePercentage != entries[j].AveragePercentage {
			return entries[i].AveragePercentage > entries[j].AveragePercentage
		}
		return entries[i].StudentID < entries[j].StudentID
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}
	return entries
}

// LeaderboardService computes, caches and publishes section leaderboards.
type LeaderboardService struct {
	sections SectionRepository
	attempts AttemptRepository
	cache    LeaderboardCache
	hub      *Hub
	now      func() time.Time
}

func NewLeaderboardService(sections SectionRepository, attempts AttemptRepository, cache LeaderboardCache, hub *Hub) *LeaderboardService {
	return &LeaderboardService{
		sections: sections,
		attempts: attempts,
		cache:    cache,
		hub:      hub,
		now:      time.Now,
	}
}

// Hub returns the hub boards are published on.
func (s *LeaderboardService) Hub() *Hub {
	return s.hub
}

// Rank returns the section leaderboard, served from cache when possible.
func (s *LeaderboardService) Rank(ctx context.Context, sectionID, category string) (domain.Leaderboard, error) {
	if _, err := s.sections.GetSection(ctx, sectionID); err != nil {
		return domain.Leaderboard{}, err
	}
	if board, ok := s.cache.Get(ctx, sectionID, category); ok {
		metrics.LeaderboardCache.WithLabelValues("hit").Inc()
		return board, nil
	}
	metrics.LeaderboardCache.WithLabelValues("miss").Inc()
	return s.compute(ctx, sectionID, category)
}

func (s *LeaderboardService) compute(ctx context.Context, sectionID, category string) (domain.Leaderboard, error) {
	// Read the generation before any data so a concurrent invalidation
	// keeps this board out of the cache.
	gen := s.cache.Generation(ctx, sectionID)
	members, err := s.sections.Members(ctx, sectionID)
	if err != nil {
		return domain.Leaderboard{}, err
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.StudentID)
	}

	var attempts []domain.Attempt
	var progress []domain.Progress
	if len(ids) > 0 {
		if attempts, err = s.attempts.ListCompleted(ctx, ids...); err != nil {
			return domain.Leaderboard{}, err
		}
		if progress, err = s.sections.ListProgress(ctx, ids...); err != nil {
			return domain.Leaderboard{}, err
		}
	}

	board := domain.Leaderboard{
		SectionID: sectionID,
		Category:  category,
		Entries:   Aggregate(members, attempts, progress, category),
		UpdatedAt: s.now().UTC(),
	}
	s.cache.Set(ctx, board, gen)
	return board, nil
}

// StudentChanged recomputes the overall board of every section the student
// belongs to and publishes it. Failures are logged, not returned.
func (s *LeaderboardService) StudentChanged(ctx context.Context, studentID string) {
	sectionIDs, err := s.sections.SectionsOf(ctx, studentID)
	if err != nil {
		slog.Warn("leaderboard refresh skipped", "student_id", studentID, "error", err)
		return
	}
	for _, sectionID := range sectionIDs {
		s.SectionChanged(ctx, sectionID)
	}
}

// SectionChanged drops cached boards of a section and pushes a fresh overall board.
func (s *LeaderboardService) SectionChanged(ctx context.Context, sectionID string) {
	s.cache.Invalidate(ctx, sectionID)
	if s.hub == nil || !s.hub.HasSubscribers(sectionID) {
		return
	}
	board, err := s.compute(ctx, sectionID, "")
	if err != nil {
		slog.Warn("leaderboard recompute failed", "section_id", sectionID, "error", err)
		return
	}
	s.hub.Publish(board)
}

// Hub fans leaderboard updates out to per-section subscribers.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[chan domain.Leaderboard]struct{}
}

func NewHub() *Hub {
	return &Hub{subscribers: make(map[string]map[chan domain.Leaderboard]struct{})}
}

// Subscribe returns a channel receiving boards for the section.
// The caller must invoke the returned cancel function to avoid leaks.
func (h *Hub) Subscribe(sectionID string) (<-chan domain.Leaderboard, func()) {
	ch := make(chan domain.Leaderboard, 8)

	h.mu.Lock()
	if h.subscribers[sectionID] == nil {
		h.subscribers[sectionID] = make(map[chan domain.Leaderboard]struct{})
	}
	h.subscribers[sectionID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		subs := h.subscribers[sectionID]
		if _, ok := subs[ch]; ok {
			delete(subs, ch)
			close(ch)
		}
		if len(subs) == 0 {
			delete(h.subscribers, sectionID)
		}
	}
	return ch, cancel
}

func (h *Hub) HasSubscribers(sectionID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[sectionID]) > 0
}

// Publish delivers the board to every subscriber of its section. A full
// subscriber loses its oldest pending board instead of blocking the publisher.
func (h *Hub) Publish(board domain.Leaderboard) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subscribers[board.SectionID] {
		select {
		case ch <- board:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- board
		}
	}
}

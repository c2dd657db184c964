package memory

import (
	"context"
	"sync"
	"time"

	"learnpath-service/internal/domain"
)

// LeaderboardCache keeps computed boards per section and category for a TTL.
type LeaderboardCache struct {
	ttl   time.Duration
	clock func() time.Time

	mu          sync.RWMutex
	boards      map[string]map[string]cachedBoard
	generations map[string]uint64
}

type cachedBoard struct {
	board     domain.Leaderboard
	expiresAt time.Time
}

func NewLeaderboardCache(ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{
		ttl:         ttl,
		clock:       time.Now,
		boards:      make(map[string]map[string]cachedBoard),
		generations: make(map[string]uint64),
	}
}

func (c *LeaderboardCache) Get(_ context.Context, sectionID, category string) (domain.Leaderboard, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.boards[sectionID][category]
	if !ok || !entry.expiresAt.After(c.clock()) {
		return domain.Leaderboard{}, false
	}
	return entry.board, true
}

func (c *LeaderboardCache) Generation(_ context.Context, sectionID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.generations[sectionID]
}

func (c *LeaderboardCache) Set(_ context.Context, board domain.Leaderboard, gen uint64) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generations[board.SectionID] != gen {
		return
	}
	byCategory, ok := c.boards[board.SectionID]
	if !ok {
		byCategory = make(map[string]cachedBoard)
		c.boards[board.SectionID] = byCategory
	}
	byCategory[board.Category] = cachedBoard{board: board, expiresAt: c.clock().Add(c.ttl)}
}

func (c *LeaderboardCache) Invalidate(_ context.Context, sectionID string) {
	c.mu.Lock()
	delete(c.boards, sectionID)
	c.generations[sectionID]++
	c.mu.Unlock()
}

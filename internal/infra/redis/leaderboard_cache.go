package redis

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"learnpath-service/internal/domain"
)

const overallField = "_all"

var errStaleGeneration = errors.New("leaderboard generation changed")

// LeaderboardCache keeps computed boards in Redis so every instance serves the
// same snapshot. Each section is one hash with a field per category, plus a
// counter bumped on every invalidation:
//
//	HSET leaderboard:{sectionID} {category|_all} {json}
//	INCR leaderboard:{sectionID}:gen
//
// The hash expires after ttl and is deleted on invalidation. Writes WATCH the
// counter so a board computed before an invalidation is never stored.
type LeaderboardCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewLeaderboardCache(client *redis.Client, ttl time.Duration) *LeaderboardCache {
	return &LeaderboardCache{client: client, ttl: ttl}
}

func (c *LeaderboardCache) Get(ctx context.Context, sectionID, category string) (domain.Leaderboard, bool) {
	payload, err := c.client.HGet(ctx, leaderboardKey(sectionID), field(category)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			slog.Warn("leaderboard cache read failed", "section_id", sectionID, "error", err)
		}
		return domain.Leaderboard{}, false
	}
	var board domain.Leaderboard
	if err := json.Unmarshal(payload, &board); err != nil {
		return domain.Leaderboard{}, false
	}
	return board, true
}

func (c *LeaderboardCache) Generation(ctx context.Context, sectionID string) uint64 {
	gen, err := c.client.Get(ctx, generationKey(sectionID)).Uint64()
	if err != nil && !errors.Is(err, redis.Nil) {
		slog.Warn("leaderboard generation read failed", "section_id", sectionID, "error", err)
	}
	return gen
}

func (c *LeaderboardCache) Set(ctx context.Context, board domain.Leaderboard, gen uint64) {
	if c.ttl <= 0 {
		return
	}
	payload, err := json.Marshal(board)
	if err != nil {
		return
	}
	key := leaderboardKey(board.SectionID)
	genKey := generationKey(board.SectionID)
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Uint64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if current != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field(board.Category), payload)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, genKey)
	switch {
	case err == nil, errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
	default:
		slog.Warn("leaderboard cache write failed", "section_id", board.SectionID, "error", err)
	}
}

func (c *LeaderboardCache) Invalidate(ctx context.Context, sectionID string) {
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, generationKey(sectionID))
	pipe.Del(ctx, leaderboardKey(sectionID))
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("leaderboard cache invalidation failed", "section_id", sectionID, "error", err)
	}
}

func leaderboardKey(sectionID string) string {
	return "leaderboard:" + sectionID
}

func generationKey(sectionID string) string {
	return "leaderboard:" + sectionID + ":gen"
}

func field(category string) string {
	if category == "" {
		return overallField
	}
	return category
}

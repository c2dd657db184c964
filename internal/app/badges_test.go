package app_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"learnpath-service/internal/app"
	"learnpath-service/internal/domain"
)

// completeAttempt stores a finished attempt at the harness clock and advances it.
func completeAttempt(t *testing.T, h *harness, studentID string, percentage float64, seconds int) domain.Attempt {
	t.Helper()
	ctx := context.Background()
	done := h.clock.Now()
	attempt := domain.Attempt{
		ID:               fmt.Sprintf("%s-%d", studentID, done.UnixNano()),
		QuizID:           "quiz-1",
		StudentID:        studentID,
		StartedAt:        done.Add(-time.Duration(seconds) * time.Second),
		CompletedAt:      &done,
		Score:            int(percentage),
		MaxScore:         100,
		Percentage:       percentage,
		TimeSpentSeconds: seconds,
	}
	if err := h.attempts.CreateAttempt(ctx, domain.Attempt{ID: attempt.ID, StudentID: studentID, StartedAt: attempt.StartedAt}); err != nil {
		t.Fatalf("create attempt: %v", err)
	}
	if err := h.attempts.CompleteAttempt(ctx, attempt); err != nil {
		t.Fatalf("complete attempt: %v", err)
	}
	h.clock.Advance(time.Minute)
	return attempt
}

func badgeIDs(awards []domain.BadgeAward) map[string]bool {
	ids := make(map[string]bool, len(awards))
	for _, a := range awards {
		ids[a.BadgeID] = true
	}
	return ids
}

func TestPerfectScoreGrantsEveryThresholdOnce(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	attempt := completeAttempt(t, h, "stu", 100, 30*60)

	first, err := h.badges.Evaluate(ctx, "stu", domain.Trigger{Attempt: &attempt})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	got := badgeIDs(first)
	for _, id := range []string{"good-work", "high-achiever", "excellence", "perfect-score"} {
		if !got[id] {
			t.Fatalf("expected %s in %v", id, got)
		}
	}
	if len(first) != 4 {
		t.Fatalf("expected exactly the 4 threshold badges, got %v", got)
	}
	for _, a := range first {
		if a.SourceQuizID != "quiz-1" || a.PerformanceScore != 100 || !a.Active {
			t.Fatalf("unexpected award provenance: %+v", a)
		}
	}

	second, err := h.badges.Evaluate(ctx, "stu", domain.Trigger{Attempt: &attempt})
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("expected nothing new, got %v", badgeIDs(second))
	}
	awards, _ := h.badges.Awards(ctx, "stu")
	if len(awards) != 4 {
		t.Fatalf("expected 4 stored awards, got %d", len(awards))
	}
}

func TestThresholdBoundary(t *testing.T) {
	h := newHarness()
	attempt := completeAttempt(t, h, "stu", 89.99, 30*60)

	awards, err := h.badges.Evaluate(context.Background(), "stu", domain.Trigger{Attempt: &attempt})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	got := badgeIDs(awards)
	if !got["good-work"] || got["high-achiever"] {
		t.Fatalf("expected only good-work, got %v", got)
	}
}

func TestSpeedBadges(t *testing.T) {
	h := newHarness()
	attempt := completeAttempt(t, h, "stu", 40, 5*60)

	awards, _ := h.badges.Evaluate(context.Background(), "stu", domain.Trigger{Attempt: &attempt})
	got := badgeIDs(awards)
	if !got["quick-thinker"] || !got["speed-demon"] {
		t.Fatalf("expected both speed badges at 5 minutes, got %v", got)
	}

	slow := completeAttempt(t, h, "other", 40, 5*60+1)
	awards, _ = h.badges.Evaluate(context.Background(), "other", domain.Trigger{Attempt: &slow})
	got = badgeIDs(awards)
	if !got["quick-thinker"] || got["speed-demon"] {
		t.Fatalf("expected only quick-thinker, got %v", got)
	}
}

func TestStreakGrantedAndReset(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		completeAttempt(t, h, "stu", 85, 30*60)
	}

	awards, err := h.badges.Evaluate(ctx, "stu", domain.Trigger{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !badgeIDs(awards)["streak-3"] {
		t.Fatalf("expected streak-3, got %v", badgeIDs(awards))
	}

	completeAttempt(t, h, "stu", 60, 30*60)
	history, _ := h.attempts.ListCompleted(ctx, "stu")
	summary := app.Summarize(history, domain.Trigger{}, h.clock.Now(), app.DefaultBadgeConfig())
	if summary.Streak != 0 {
		t.Fatalf("expected streak reset to 0, got %d", summary.Streak)
	}
	awards, _ = h.badges.Evaluate(ctx, "stu", domain.Trigger{})
	if len(awards) != 0 {
		t.Fatalf("expected no awards after broken streak, got %v", badgeIDs(awards))
	}
}

func TestStreakIgnoresAttemptsOutsideLookback(t *testing.T) {
	h := newHarness()
	for i := 0; i < 3; i++ {
		completeAttempt(t, h, "stu", 95, 30*60)
	}
	h.clock.Advance(31 * 24 * time.Hour)

	history, _ := h.attempts.ListCompleted(context.Background(), "stu")
	summary := app.Summarize(history, domain.Trigger{}, h.clock.Now(), app.DefaultBadgeConfig())
	if summary.Streak != 0 {
		t.Fatalf("expected stale attempts ignored, got streak %d", summary.Streak)
	}
	if summary.Completed != 3 {
		t.Fatalf("expected lifetime count 3, got %d", summary.Completed)
	}
}

func TestImprovement(t *testing.T) {
	mk := func(pcts ...float64) []domain.Attempt {
		out := make([]domain.Attempt, len(pcts))
		for i, p := range pcts {
			out[i] = domain.Attempt{Percentage: p}
		}
		return out
	}

	if _, ok := app.Improvement(mk(50), 3); ok {
		t.Fatalf("expected no improvement with one attempt")
	}
	delta, ok := app.Improvement(mk(90, 50), 3)
	if !ok || delta != 40 {
		t.Fatalf("expected +40 with two attempts, got %v %v", delta, ok)
	}
	// recent first: newest three average 90, oldest three average 60
	delta, _ = app.Improvement(mk(90, 90, 90, 80, 70, 60, 60, 60), 3)
	if delta != 30 {
		t.Fatalf("expected +30, got %v", delta)
	}
}

func TestGrantAndRevoke(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	if err := h.badges.SeedCatalog(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}

	if _, err := h.badges.Grant(ctx, "stu", "unknown", domain.Trigger{}); !errors.Is(err, domain.ErrBadgeNotFound) {
		t.Fatalf("expected badge not found, got %v", err)
	}
	award, err := h.badges.Grant(ctx, "stu", "rising-star", domain.Trigger{ClassID: "class-1"})
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if award.SourceClassID != "class-1" {
		t.Fatalf("expected class provenance, got %+v", award)
	}
	if _, err := h.badges.Grant(ctx, "stu", "rising-star", domain.Trigger{}); !errors.Is(err, domain.ErrAlreadyGranted) {
		t.Fatalf("expected already granted, got %v", err)
	}

	if err := h.badges.Revoke(ctx, "stu", "rising-star"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := h.badges.Grant(ctx, "stu", "rising-star", domain.Trigger{}); err != nil {
		t.Fatalf("regrant after revoke: %v", err)
	}
}

func TestCatalogSeeded(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	if err := h.badges.SeedCatalog(ctx); err != nil {
		t.Fatalf("seed: %v", err)
	}
	catalog, err := h.badges.Catalog(ctx)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	if len(catalog) != len(app.DefaultRules()) {
		t.Fatalf("expected %d badges, got %d", len(app.DefaultRules()), len(catalog))
	}
}

func TestVolumeBadgeBoundaries(t *testing.T) {
	repeat := func(pct float64, n int) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = pct
		}
		return out
	}

	tests := []struct {
		name    string
		pcts    []float64
		badge   string
		granted bool
	}{
		{"4 attempts", repeat(40, 4), "getting-started", false},
		{"5 attempts", repeat(40, 5), "getting-started", true},
		{"19 attempts", repeat(40, 19), "dedicated-learner", false},
		{"20 attempts", repeat(40, 20), "dedicated-learner", true},
		{"10 attempts averaging 84.9", append(repeat(85, 9), 84), "consistent-performer", false},
		{"10 attempts averaging 85", repeat(85, 10), "consistent-performer", true},
		{"9 attempts averaging 100", repeat(100, 9), "consistent-performer", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness()
			for _, pct := range tc.pcts {
				completeAttempt(t, h, "stu", pct, 30*60)
			}
			awards, err := h.badges.Evaluate(context.Background(), "stu", domain.Trigger{})
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if got := badgeIDs(awards)[tc.badge]; got != tc.granted {
				t.Fatalf("expected %s granted=%v, got %v", tc.badge, tc.granted, badgeIDs(awards))
			}
		})
	}
}

func TestConcurrentEvaluateGrantsEachBadgeOnce(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	var attempt domain.Attempt
	for i := 0; i < 5; i++ {
		attempt = completeAttempt(t, h, "stu", 100, 60)
	}

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := h.badges.Evaluate(ctx, "stu", domain.Trigger{Attempt: &attempt}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("evaluate: %v", err)
	}

	awards, err := h.badges.Awards(ctx, "stu")
	if err != nil {
		t.Fatalf("awards: %v", err)
	}
	active := make(map[string]int)
	for _, a := range awards {
		if a.Active {
			active[a.BadgeID]++
		}
	}
	if len(active) == 0 {
		t.Fatalf("expected awards to be granted")
	}
	for id, n := range active {
		if n != 1 {
			t.Fatalf("expected one active %s award, got %d", id, n)
		}
	}
}

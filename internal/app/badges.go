package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"learnpath-service/internal/domain"
	"learnpath-service/internal/metrics"
)

// BadgeRepository stores the badge catalog and awards.
type BadgeRepository interface {
	UpsertBadges(ctx context.Context, badges []domain.Badge) error
	ListBadges(ctx context.Context) ([]domain.Badge, error)
	GetBadge(ctx context.Context, id string) (domain.Badge, error)
	// GrantIfAbsent inserts the award unless an active award for the same
	// student and badge exists. It reports whether a row was inserted and
	// must be atomic per (student, badge).
	GrantIfAbsent(ctx context.Context, award domain.BadgeAward) (bool, error)
	ListAwards(ctx context.Context, studentID string) ([]domain.BadgeAward, error)
	// RevokeAward deactivates the active award, or returns domain.ErrAwardNotFound.
	RevokeAward(ctx context.Context, studentID, badgeID string) error
}

// Badge rule categories.
const (
	CategoryThreshold   = "threshold"
	CategorySpeed       = "speed"
	CategoryStreak      = "streak"
	CategoryImprovement = "improvement"
	CategoryVolume      = "volume"
)

// BadgeConfig holds the product constants the history-based rules depend on.
type BadgeConfig struct {
	LookbackDays        int
	StreakCutoff        float64
	ImprovementGroupMax int
}

// DefaultBadgeConfig is a 30-day lookback, an 80% streak cutoff and
// improvement groups of at most 3 attempts.
func DefaultBadgeConfig() BadgeConfig {
	return BadgeConfig{LookbackDays: 30, StreakCutoff: 80, ImprovementGroupMax: 3}
}

// Summary is the view of a student's history every rule is evaluated against.
type Summary struct {
	HasTrigger        bool
	TriggerPercentage float64
	TriggerSeconds    int

	Streak int

	HasImprovement bool
	Improvement    float64

	Completed int
	Average   float64
}

// Rule awards Badge whenever Qualifies holds. Score extracts the figure
// recorded as the award's performance score.
type Rule struct {
	Badge     domain.Badge
	Qualifies func(Summary) bool
	Score     func(Summary) float64
}

func thresholdRule(id, title string, cutoff float64, points int) Rule {
	return Rule{
		Badge: domain.Badge{ID: id, Title: title, Category: CategoryThreshold, PointsValue: points, Active: true,
			Criteria: fmt.Sprintf("Score at least %.0f%% on a quiz", cutoff)},
		Qualifies: func(s Summary) bool { return s.HasTrigger && s.TriggerPercentage >= cutoff },
		Score:     func(s Summary) float64 { return s.TriggerPercentage },
	}
}

func speedRule(id, title string, minutes int, points int) Rule {
	return Rule{
		Badge: domain.Badge{ID: id, Title: title, Category: CategorySpeed, PointsValue: points, Active: true,
			Criteria: fmt.Sprintf("Finish a quiz in %d minutes or less", minutes)},
		Qualifies: func(s Summary) bool { return s.HasTrigger && s.TriggerSeconds <= minutes*60 },
		Score:     func(s Summary) float64 { return s.TriggerPercentage },
	}
}

func streakRule(id, title string, length int, points int) Rule {
	return Rule{
		Badge: domain.Badge{ID: id, Title: title, Category: CategoryStreak, PointsValue: points, Active: true,
			Criteria: fmt.Sprintf("Pass %d quizzes in a row", length)},
		Qualifies: func(s Summary) bool { return s.Streak >= length },
		Score:     func(s Summary) float64 { return float64(s.Streak) },
	}
}

func improvementRule(id, title string, delta float64, points int) Rule {
	return Rule{
		Badge: domain.Badge{ID: id, Title: title, Category: CategoryImprovement, PointsValue: points, Active: true,
			Criteria: fmt.Sprintf("Improve your recent average by %.0f points", delta)},
		Qualifies: func(s Summary) bool { return s.HasImprovement && s.Improvement >= delta },
		Score:     func(s Summary) float64 { return s.Improvement },
	}
}

func volumeRule(id, title string, count int, minAverage float64, points int) Rule {
	criteria := fmt.Sprintf("Complete %d quizzes", count)
	if minAverage > 0 {
		criteria = fmt.Sprintf("Complete %d quizzes with an average of %.0f%% or more", count, minAverage)
	}
	return Rule{
		Badge: domain.Badge{ID: id, Title: title, Category: CategoryVolume, PointsValue: points, Active: true,
			Criteria: criteria},
		Qualifies: func(s Summary) bool { return s.Completed >= count && s.Average >= minAverage },
		Score:     func(s Summary) float64 { return s.Average },
	}
}

// DefaultRules is the badge catalog, lowest to highest threshold per category.
func DefaultRules() []Rule {
	return []Rule{
		thresholdRule("good-work", "Good Work", 80, 10),
		thresholdRule("high-achiever", "High Achiever", 90, 20),
		thresholdRule("excellence", "Excellence", 95, 30),
		thresholdRule("perfect-score", "Perfect Score", 100, 50),

		speedRule("quick-thinker", "Quick Thinker", 10, 15),
		speedRule("speed-demon", "Speed Demon", 5, 25),

		streakRule("streak-3", "On a Roll", 3, 20),
		streakRule("streak-5", "Unstoppable", 5, 40),
		streakRule("streak-10", "Legendary Streak", 10, 80),

		improvementRule("rising-star", "Rising Star", 20, 30),
		improvementRule("comeback-kid", "Comeback Kid", 30, 50),

		volumeRule("getting-started", "Getting Started", 5, 0, 10),
		volumeRule("consistent-performer", "Consistent Performer", 10, 85, 60),
		volumeRule("dedicated-learner", "Dedicated Learner", 20, 0, 40),
	}
}

// Summarize builds the rule input from a student's completed attempts, most
// recent completion first, as returned by AttemptRepository.ListCompleted.
func Summarize(history []domain.Attempt, trigger domain.Trigger, now time.Time, cfg BadgeConfig) Summary {
	var s Summary
	if trigger.Attempt != nil && trigger.Attempt.Completed() {
		s.HasTrigger = true
		s.TriggerPercentage = trigger.Attempt.Percentage
		s.TriggerSeconds = trigger.Attempt.TimeSpentSeconds
	}

	s.Completed = len(history)
	if len(history) > 0 {
		var sum float64
		for _, a := range history {
			sum += a.Percentage
		}
		s.Average = sum / float64(len(history))
	}

	cutoff := now.AddDate(0, 0, -cfg.LookbackDays)
	window := make([]domain.Attempt, 0, len(history))
	for _, a := range history {
		if a.CompletedAt != nil && !a.CompletedAt.Before(cutoff) {
			window = append(window, a)
		}
	}

	s.Streak = CurrentStreak(window, cfg.StreakCutoff)
	s.Improvement, s.HasImprovement = Improvement(window, cfg.ImprovementGroupMax)
	return s
}

// CurrentStreak counts qualifying attempts from the most recent backwards,
// stopping at the first one below cutoff.
func CurrentStreak(recentFirst []domain.Attempt, cutoff float64) int {
	streak := 0
	for _, a := range recentFirst {
		if a.Percentage < cutoff {
			break
		}
		streak++
	}
	return streak
}

// Improvement compares the newest group of attempts against the oldest one,
// each of size min(groupMax, n/2). It needs at least two attempts.
func Improvement(recentFirst []domain.Attempt, groupMax int) (float64, bool) {
	n := len(recentFirst)
	if n < 2 {
		return 0, false
	}
	size := n / 2
	if groupMax > 0 && size > groupMax {
		size = groupMax
	}
	newest := averagePercentage(recentFirst[:size])
	oldest := averagePercentage(recentFirst[n-size:])
	return newest - oldest, true
}

func averagePercentage(attempts []domain.Attempt) float64 {
	if len(attempts) == 0 {
		return 0
	}
	var sum float64
	for _, a := range attempts {
		sum += a.Percentage
	}
	return sum / float64(len(attempts))
}

// BadgeService evaluates badge rules and manages awards.
type BadgeService struct {
	repo     BadgeRepository
	attempts AttemptRepository
	rules    []Rule
	cfg      BadgeConfig
	now      func() time.Time
}

func NewBadgeService(repo BadgeRepository, attempts AttemptRepository, cfg BadgeConfig) *BadgeService {
	return NewBadgeServiceWithClock(repo, attempts, cfg, time.Now)
}

// NewBadgeServiceWithClock allows deterministic lookback windows in tests.
func NewBadgeServiceWithClock(repo BadgeRepository, attempts AttemptRepository, cfg BadgeConfig, now func() time.Time) *BadgeService {
	defaults := DefaultBadgeConfig()
	if cfg.LookbackDays <= 0 {
		cfg.LookbackDays = defaults.LookbackDays
	}
	if cfg.StreakCutoff <= 0 {
		cfg.StreakCutoff = defaults.StreakCutoff
	}
	if cfg.ImprovementGroupMax <= 0 {
		cfg.ImprovementGroupMax = defaults.ImprovementGroupMax
	}
	return &BadgeService{repo: repo, attempts: attempts, rules: DefaultRules(), cfg: cfg, now: now}
}

// SeedCatalog writes the rule catalog to the badge store.
func (s *BadgeService) SeedCatalog(ctx context.Context) error {
	badges := make([]domain.Badge, 0, len(s.rules))
	for _, rule := range s.rules {
		badges = append(badges, rule.Badge)
	}
	return s.repo.UpsertBadges(ctx, badges)
}

func (s *BadgeService) Catalog(ctx context.Context) ([]domain.Badge, error) {
	return s.repo.ListBadges(ctx)
}

func (s *BadgeService) Awards(ctx context.Context, studentID string) ([]domain.BadgeAward, error) {
	return s.repo.ListAwards(ctx, studentID)
}

// Evaluate runs every rule against the student's history and returns the
// awards created by this call. Badges the student already holds are skipped.
func (s *BadgeService) Evaluate(ctx context.Context, studentID string, trigger domain.Trigger) ([]domain.BadgeAward, error) {
	history, err := s.attempts.ListCompleted(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("load attempt history: %w", err)
	}
	now := s.now().UTC()
	summary := Summarize(history, trigger, now, s.cfg)

	granted := make([]domain.BadgeAward, 0)
	for _, rule := range s.rules {
		if !rule.Qualifies(summary) {
			continue
		}
		award := newAward(studentID, rule.Badge.ID, rule.Score(summary), trigger, now)
		ok, err := s.repo.GrantIfAbsent(ctx, award)
		if err != nil {
			return granted, fmt.Errorf("grant %s: %w", rule.Badge.ID, err)
		}
		if !ok {
			continue
		}
		metrics.BadgesGranted.WithLabelValues(rule.Badge.ID).Inc()
		slog.Info("badge granted", "student_id", studentID, "badge_id", rule.Badge.ID)
		granted = append(granted, award)
	}
	return granted, nil
}

// Grant awards a badge by hand. It returns domain.ErrAlreadyGranted together
// with the requested award when the student already holds the badge.
func (s *BadgeService) Grant(ctx context.Context, studentID, badgeID string, trigger domain.Trigger) (domain.BadgeAward, error) {
	if _, err := s.repo.GetBadge(ctx, badgeID); err != nil {
		return domain.BadgeAward{}, err
	}
	var score float64
	if trigger.Attempt != nil {
		score = trigger.Attempt.Percentage
	}
	award := newAward(studentID, badgeID, score, trigger, s.now().UTC())
	ok, err := s.repo.GrantIfAbsent(ctx, award)
	if err != nil {
		return domain.BadgeAward{}, err
	}
	if !ok {
		return award, domain.ErrAlreadyGranted
	}
	metrics.BadgesGranted.WithLabelValues(badgeID).Inc()
	return award, nil
}

// Revoke deactivates an award. The badge can be earned again afterwards.
func (s *BadgeService) Revoke(ctx context.Context, studentID, badgeID string) error {
	return s.repo.RevokeAward(ctx, studentID, badgeID)
}

func newAward(studentID, badgeID string, score float64, trigger domain.Trigger, now time.Time) domain.BadgeAward {
	award := domain.BadgeAward{
		ID:               uuid.NewString(),
		StudentID:        studentID,
		BadgeID:          badgeID,
		EarnedAt:         now,
		PerformanceScore: score,
		SourceStoryID:    trigger.StoryID,
		SourceClassID:    trigger.ClassID,
		Active:           true,
	}
	if trigger.Attempt != nil {
		award.SourceQuizID = trigger.Attempt.QuizID
	}
	return award
}

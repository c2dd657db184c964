package app_test

import (
	"context"
	"fmt"
	"sync"
	"time"

	"learnpath-service/internal/app"
	"learnpath-service/internal/domain"
	"learnpath-service/internal/infra/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type harness struct {
	clock      *fakeClock
	quizStore  *memory.QuizStore
	attempts   *memory.AttemptStore
	badgeStore *memory.BadgeStore
	sectionDB  *memory.SectionStore
	curriculum *memory.CurriculumStore

	quizzes  *app.QuizService
	badges   *app.BadgeService
	boards   *app.LeaderboardService
	sections *app.SectionService
	nodes    *app.CurriculumService
}

func newHarness(quizzes ...domain.Quiz) *harness {
	h := &harness{
		clock:      newFakeClock(),
		quizStore:  memory.NewQuizStore(nil),
		attempts:   memory.NewAttemptStore(),
		badgeStore: memory.NewBadgeStore(),
		sectionDB:  memory.NewSectionStore(),
		curriculum: memory.NewCurriculumStore(),
	}
	for _, quiz := range quizzes {
		_ = h.quizStore.SaveQuiz(context.Background(), quiz)
	}
	h.badges = app.NewBadgeServiceWithClock(h.badgeStore, h.attempts, app.DefaultBadgeConfig(), h.clock.Now)
	h.boards = app.NewLeaderboardService(h.sectionDB, h.attempts, memory.NewLeaderboardCache(time.Minute), app.NewHub())
	h.quizzes = app.NewQuizServiceWithClock(h.attempts, memory.NewQuizRepository(h.quizStore, 0), h.quizStore, h.badges, h.boards, h.clock.Now)
	h.sections = app.NewSectionService(h.sectionDB, h.curriculum, h.boards)
	h.nodes = app.NewCurriculumService(h.curriculum)
	h.nodes.OnRemove(h.sections)
	return h
}

func intPtr(v int) *int { return &v }

// pointsQuiz builds an open quiz of n choice questions worth points each.
// The correct option of every question is index 1.
func pointsQuiz(id, category string, n, points int) domain.Quiz {
	quiz := domain.Quiz{ID: id, Title: id, Category: category, Active: true}
	for i := 0; i < n; i++ {
		quiz.Questions = append(quiz.Questions, domain.Question{
			ID:           fmt.Sprintf("q%d", i+1),
			Text:         "question",
			Options:      []string{"a", "b", "c"},
			CorrectIndex: 1,
			Points:       points,
		})
	}
	return quiz
}

// answers answers the first correct questions of quiz right and the rest wrong.
func answers(quiz domain.Quiz, correct int) domain.Submission {
	sub := domain.Submission{Answers: make(map[string]domain.Answer)}
	for i, q := range quiz.Questions {
		choice := 0
		if i < correct {
			choice = q.CorrectIndex
		}
		sub.Answers[q.ID] = domain.Answer{OptionIndex: intPtr(choice)}
	}
	return sub
}

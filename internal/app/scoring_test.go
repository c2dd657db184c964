package app_test

import (
	"errors"
	"testing"
	"time"

	"learnpath-service/internal/app"
	"learnpath-service/internal/domain"
)

func TestScoreThreeOfFour(t *testing.T) {
	quiz := pointsQuiz("quiz-1", "", 4, 25)

	result := app.Score(quiz, answers(quiz, 3))
	if result.RawScore != 75 || result.MaxScore != 100 {
		t.Fatalf("expected 75/100, got %d/%d", result.RawScore, result.MaxScore)
	}
	if result.Percentage != 75.0 {
		t.Fatalf("expected 75%%, got %v", result.Percentage)
	}
	if result.Correct != 3 || len(result.Questions) != 4 {
		t.Fatalf("unexpected breakdown: %+v", result)
	}
	if result.Questions[3].IsCorrect || result.Questions[3].PointsAwarded != 0 {
		t.Fatalf("expected last question wrong, got %+v", result.Questions[3])
	}
}

func TestScoreMissingAnswersAreWrong(t *testing.T) {
	quiz := pointsQuiz("quiz-1", "", 2, 0)

	result := app.Score(quiz, domain.Submission{Answers: map[string]domain.Answer{
		"q1": {OptionIndex: intPtr(1)},
	}})
	if result.RawScore != 1 || result.MaxScore != 2 {
		t.Fatalf("expected zero-point questions worth 1, got %d/%d", result.RawScore, result.MaxScore)
	}
	if result.Questions[1].Submitted != nil {
		t.Fatalf("expected no submitted answer for q2")
	}
}

// Questions stored without points are worth 1 rather than 0, so a quiz made
// only of them still has a non-zero maximum and a meaningful percentage.
func TestScoreZeroPointQuestionsCountAsOne(t *testing.T) {
	quiz := pointsQuiz("quiz-1", "", 3, 0)
	quiz.Questions[2].Points = 3

	result := app.Score(quiz, answers(quiz, 1))
	if result.MaxScore != 5 || result.RawScore != 1 {
		t.Fatalf("expected 1/5, got %d/%d", result.RawScore, result.MaxScore)
	}
	if result.Percentage != 20 {
		t.Fatalf("expected 20%%, got %v", result.Percentage)
	}
	if result.Questions[0].PointsAwarded != 1 {
		t.Fatalf("expected zero-point question to award 1, got %+v", result.Questions[0])
	}
}

func TestScoreTextAnswers(t *testing.T) {
	quiz := domain.Quiz{ID: "story", Active: true, Questions: []domain.Question{
		{ID: "q1", Text: "Who found the key?", CorrectText: "Mia", CorrectIndex: -1, Points: 2},
		{ID: "q2", Text: "Color?", Options: []string{"red", "blue"}, CorrectIndex: 1, Points: 2},
	}}

	result := app.Score(quiz, domain.Submission{Answers: map[string]domain.Answer{
		"q1": {Text: "Mia"},
		"q2": {Text: "blue"},
	}})
	if result.RawScore != 4 {
		t.Fatalf("expected both text answers correct, got %d", result.RawScore)
	}
	if result.Questions[0].CorrectIndex != -1 || result.Questions[0].CorrectAnswer != "Mia" {
		t.Fatalf("unexpected free-text breakdown: %+v", result.Questions[0])
	}
}

func TestScoreEmptyQuiz(t *testing.T) {
	result := app.Score(domain.Quiz{ID: "empty"}, domain.Submission{})
	if result.MaxScore != 0 || result.Percentage != 0 {
		t.Fatalf("expected zero percentage for empty quiz, got %+v", result)
	}
}

func TestCheckOpen(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)

	cases := []struct {
		name string
		quiz domain.Quiz
		open bool
	}{
		{"active without window", domain.Quiz{Active: true}, true},
		{"inactive", domain.Quiz{Active: false}, false},
		{"inside window", domain.Quiz{Active: true, OpensAt: &before, ClosesAt: &after}, true},
		{"not yet open", domain.Quiz{Active: true, OpensAt: &after}, false},
		{"closed", domain.Quiz{Active: true, ClosesAt: &before}, false},
	}
	for _, tc := range cases {
		err := app.CheckOpen(tc.quiz, now)
		if tc.open && err != nil {
			t.Fatalf("%s: expected open, got %v", tc.name, err)
		}
		if !tc.open && !errors.Is(err, domain.ErrQuizClosed) {
			t.Fatalf("%s: expected closed, got %v", tc.name, err)
		}
	}
}

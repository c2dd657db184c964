package app

import (
	"time"

	"learnpath-service/internal/domain"
)

// Score grades a submission against a quiz. Missing answers count as wrong;
// only exact matches earn the question's points.
func Score(quiz domain.Quiz, submission domain.Submission) domain.ScoringResult {
	result := domain.ScoringResult{
		QuizID:    quiz.ID,
		Questions: make([]domain.QuestionResult, 0, len(quiz.Questions)),
	}

	for _, question := range quiz.Questions {
		qr := domain.QuestionResult{
			QuestionID:    question.ID,
			CorrectIndex:  question.CorrectIndex,
			CorrectAnswer: question.CorrectAnswer(),
		}
		if len(question.Options) == 0 {
			qr.CorrectIndex = -1
		}
		if answer, ok := submission.Answers[question.ID]; ok {
			answer := answer
			qr.Submitted = &answer
			qr.IsCorrect = isCorrect(question, answer)
		}
		if qr.IsCorrect {
			qr.PointsAwarded = question.Weight()
			result.RawScore += qr.PointsAwarded
			result.Correct++
		}
		result.MaxScore += question.Weight()
		result.Questions = append(result.Questions, qr)
	}

	result.Percentage = Percentage(result.RawScore, result.MaxScore)
	return result
}

// Percentage returns score/max*100, or 0 when max is 0.
func Percentage(score, max int) float64 {
	if max <= 0 {
		return 0
	}
	return float64(score) / float64(max) * 100
}

func isCorrect(question domain.Question, answer domain.Answer) bool {
	if len(question.Options) == 0 {
		return answer.Text != "" && answer.Text == question.CorrectText
	}
	if answer.OptionIndex != nil {
		return *answer.OptionIndex == question.CorrectIndex
	}
	return answer.Text != "" && answer.Text == question.CorrectAnswer()
}

// CheckOpen fails with ErrQuizClosed when the quiz is inactive or now falls
// outside its window. Both window bounds are optional.
func CheckOpen(quiz domain.Quiz, now time.Time) error {
	if !quiz.Active {
		return domain.ErrQuizClosed
	}
	if quiz.OpensAt != nil && now.Before(*quiz.OpensAt) {
		return domain.ErrQuizClosed
	}
	if quiz.ClosesAt != nil && now.After(*quiz.ClosesAt) {
		return domain.ErrQuizClosed
	}
	return nil
}

package domain

import "time"

// Question models one quiz question. Choice questions carry Options and a
// CorrectIndex; free-text questions (story comprehension) carry CorrectText.
type Question struct {
	ID           string   `json:"id" yaml:"id"`
	Text         string   `json:"text" yaml:"text"`
	Options      []string `json:"options,omitempty" yaml:"options,omitempty"`
	CorrectIndex int      `json:"correctIndex" yaml:"correctIndex"`
	CorrectText  string   `json:"correctText,omitempty" yaml:"correctText,omitempty"`
	Points       int      `json:"points" yaml:"points"` // defaults to 1 if zero
}

// Weight returns the points the question is worth.
func (q Question) Weight() int {
	if q.Points <= 0 {
		return 1
	}
	return q.Points
}

// CorrectAnswer returns the expected answer in text form.
func (q Question) CorrectAnswer() string {
	if len(q.Options) == 0 {
		return q.CorrectText
	}
	if q.CorrectIndex >= 0 && q.CorrectIndex < len(q.Options) {
		return q.Options[q.CorrectIndex]
	}
	return ""
}

// Quiz is a scored collection of questions with an optional open window.
type Quiz struct {
	ID        string     `json:"id" yaml:"id"`
	Title     string     `json:"title" yaml:"title"`
	Category  string     `json:"category,omitempty" yaml:"category,omitempty"`
	Questions []Question `json:"questions" yaml:"questions"`
	OpensAt   *time.Time `json:"opensAt,omitempty" yaml:"opensAt,omitempty"`
	ClosesAt  *time.Time `json:"closesAt,omitempty" yaml:"closesAt,omitempty"`
	Active    bool       `json:"active" yaml:"active"`
	UpdatedAt time.Time  `json:"updatedAt" yaml:"-"`
}

// MaxScore sums the weight of every question.
func (q Quiz) MaxScore() int {
	total := 0
	for _, question := range q.Questions {
		total += question.Weight()
	}
	return total
}

// Public returns a copy safe to hand to students: correct answers are removed.
func (q Quiz) Public() Quiz {
	out := q
	out.Questions = make([]Question, len(q.Questions))
	for i, question := range q.Questions {
		question.CorrectIndex = -1
		question.CorrectText = ""
		out.Questions[i] = question
	}
	return out
}

// Answer is a student's response to one question. OptionIndex wins when set.
type Answer struct {
	OptionIndex *int   `json:"optionIndex,omitempty"`
	Text        string `json:"text,omitempty"`
}

// Submission maps question IDs to answers.
type Submission struct {
	Answers map[string]Answer `json:"answers"`
}

// QuestionResult is the per-question breakdown of a scored submission.
type QuestionResult struct {
	QuestionID    string  `json:"questionId"`
	Submitted     *Answer `json:"submitted,omitempty"`
	CorrectIndex  int     `json:"correctIndex"`
	CorrectAnswer string  `json:"correctAnswer"`
	IsCorrect     bool    `json:"isCorrect"`
	PointsAwarded int     `json:"pointsAwarded"`
}

// ScoringResult summarizes a scored submission.
type ScoringResult struct {
	QuizID     string           `json:"quizId"`
	RawScore   int              `json:"rawScore"`
	MaxScore   int              `json:"maxScore"`
	Percentage float64          `json:"percentage"`
	Correct    int              `json:"correct"`
	Questions  []QuestionResult `json:"questions"`
}

// Attempt is one student's run at one quiz. It is completed exactly once.
type Attempt struct {
	ID               string            `json:"id"`
	QuizID           string            `json:"quizId"`
	StudentID        string            `json:"studentId"`
	Category         string            `json:"category,omitempty"`
	StartedAt        time.Time         `json:"startedAt"`
	CompletedAt      *time.Time        `json:"completedAt,omitempty"`
	Answers          map[string]Answer `json:"answers,omitempty"`
	Score            int               `json:"score"`
	MaxScore         int               `json:"maxScore"`
	Percentage       float64           `json:"percentage"`
	TimeSpentSeconds int               `json:"timeSpentSeconds"`
}

// Completed reports whether the attempt has been submitted.
func (a Attempt) Completed() bool {
	return a.CompletedAt != nil
}

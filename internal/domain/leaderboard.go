package domain

import "time"

// Section is a class taught by one teacher.
type Section struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TeacherID string    `json:"teacherId"`
	CreatedAt time.Time `json:"createdAt"`
}

// Enrollment places a student in a section.
type Enrollment struct {
	SectionID   string    `json:"sectionId"`
	StudentID   string    `json:"studentId"`
	DisplayName string    `json:"displayName"`
	EnrolledAt  time.Time `json:"enrolledAt"`
}

// Progress records a completed lesson or activity.
type Progress struct {
	StudentID   string    `json:"studentId"`
	NodeID      string    `json:"nodeId"`
	Kind        NodeKind  `json:"kind"`
	CompletedAt time.Time `json:"completedAt"`
}

// Ranking is one row of a section leaderboard.
type Ranking struct {
	Rank                int     `json:"rank"`
	StudentID           string  `json:"studentId"`
	DisplayName         string  `json:"displayName"`
	TotalScore          int     `json:"totalScore"`
	AveragePercentage   float64 `json:"averagePercentage"`
	CompletedQuizzes    int     `json:"completedQuizzes"`
	CompletedLessons    int     `json:"completedLessons"`
	CompletedActivities int     `json:"completedActivities"`
}

// Leaderboard captures the ordered rankings of a section.
type Leaderboard struct {
	SectionID string    `json:"sectionId"`
	Category  string    `json:"category,omitempty"`
	Entries   []Ranking `json:"entries"`
	UpdatedAt time.Time `json:"updatedAt"`
}

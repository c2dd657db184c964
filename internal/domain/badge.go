package domain

import "time"

// Badge is a catalog entry. The ID is a stable slug such as "perfect-score".
type Badge struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Category    string `json:"category"`
	Criteria    string `json:"criteria"`
	PointsValue int    `json:"pointsValue"`
	Active      bool   `json:"active"`
}

// BadgeAward records that a student earned a badge.
// At most one active award exists per (StudentID, BadgeID).
type BadgeAward struct {
	ID               string    `json:"id"`
	StudentID        string    `json:"studentId"`
	BadgeID          string    `json:"badgeId"`
	EarnedAt         time.Time `json:"earnedAt"`
	PerformanceScore float64   `json:"performanceScore"`
	SourceQuizID     string    `json:"sourceQuizId,omitempty"`
	SourceStoryID    string    `json:"sourceStoryId,omitempty"`
	SourceClassID    string    `json:"sourceClassId,omitempty"`
	Active           bool      `json:"active"`
}

// Trigger is the context an evaluation runs in. Attempt is nil when the
// evaluation was requested without a fresh submission.
type Trigger struct {
	Attempt *Attempt
	StoryID string
	ClassID string
}

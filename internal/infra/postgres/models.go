package postgres

import (
	"time"

	"github.com/uptrace/bun"

	"learnpath-service/internal/domain"
)

type nodeRow struct {
	bun.BaseModel `bun:"table:curriculum_nodes,alias:n"`

	ID           string    `bun:"id,pk"`
	Kind         string    `bun:"kind,notnull"`
	ParentID     string    `bun:"parent_id,nullzero"`
	Title        string    `bun:"title,notnull"`
	Description  string    `bun:"description,notnull"`
	ActivityType string    `bun:"activity_type,nullzero"`
	QuizID       string    `bun:"quiz_id,nullzero"`
	OrderIndex   int       `bun:"order_index,notnull"`
	CreatedAt    time.Time `bun:"created_at,notnull"`
}

func newNodeRow(n domain.Node) nodeRow {
	return nodeRow{
		ID:           n.ID,
		Kind:         string(n.Kind),
		ParentID:     n.ParentID,
		Title:        n.Title,
		Description:  n.Description,
		ActivityType: string(n.ActivityType),
		QuizID:       n.QuizID,
		OrderIndex:   n.OrderIndex,
		CreatedAt:    n.CreatedAt,
	}
}

func (r nodeRow) toDomain() domain.Node {
	return domain.Node{
		ID:           r.ID,
		Kind:         domain.NodeKind(r.Kind),
		ParentID:     r.ParentID,
		Title:        r.Title,
		Description:  r.Description,
		ActivityType: domain.ActivityType(r.ActivityType),
		QuizID:       r.QuizID,
		OrderIndex:   r.OrderIndex,
		CreatedAt:    r.CreatedAt,
	}
}

type attemptRow struct {
	bun.BaseModel `bun:"table:quiz_attempts,alias:a"`

	ID               string                   `bun:"id,pk"`
	QuizID           string                   `bun:"quiz_id,notnull"`
	StudentID        string                   `bun:"student_id,notnull"`
	Category         string                   `bun:"category,notnull"`
	StartedAt        time.Time                `bun:"started_at,notnull"`
	CompletedAt      *time.Time               `bun:"completed_at"`
	Answers          map[string]domain.Answer `bun:"answers,type:jsonb"`
	Score            int                      `bun:"score,notnull"`
	MaxScore         int                      `bun:"max_score,notnull"`
	Percentage       float64                  `bun:"percentage,notnull"`
	TimeSpentSeconds int                      `bun:"time_spent_seconds,notnull"`
}

func newAttemptRow(a domain.Attempt) attemptRow {
	return attemptRow{
		ID:               a.ID,
		QuizID:           a.QuizID,
		StudentID:        a.StudentID,
		Category:         a.Category,
		StartedAt:        a.StartedAt,
		CompletedAt:      a.CompletedAt,
		Answers:          a.Answers,
		Score:            a.Score,
		MaxScore:         a.MaxScore,
		Percentage:       a.Percentage,
		TimeSpentSeconds: a.TimeSpentSeconds,
	}
}

func (r attemptRow) toDomain() domain.Attempt {
	return domain.Attempt{
		ID:               r.ID,
		QuizID:           r.QuizID,
		StudentID:        r.StudentID,
		Category:         r.Category,
		StartedAt:        r.StartedAt,
		CompletedAt:      r.CompletedAt,
		Answers:          r.Answers,
		Score:            r.Score,
		MaxScore:         r.MaxScore,
		Percentage:       r.Percentage,
		TimeSpentSeconds: r.TimeSpentSeconds,
	}
}

type badgeRow struct {
	bun.BaseModel `bun:"table:badges,alias:b"`

	ID          string `bun:"id,pk"`
	Title       string `bun:"title,notnull"`
	Category    string `bun:"category,notnull"`
	Criteria    string `bun:"criteria,notnull"`
	PointsValue int    `bun:"points_value,notnull"`
	Active      bool   `bun:"active,notnull"`
}

type awardRow struct {
	bun.BaseModel `bun:"table:badge_awards,alias:ba"`

	ID               string    `bun:"id,pk"`
	StudentID        string    `bun:"student_id,notnull"`
	BadgeID          string    `bun:"badge_id,notnull"`
	EarnedAt         time.Time `bun:"earned_at,notnull"`
	PerformanceScore float64   `bun:"performance_score,notnull"`
	SourceQuizID     string    `bun:"source_quiz_id,nullzero"`
	SourceStoryID    string    `bun:"source_story_id,nullzero"`
	SourceClassID    string    `bun:"source_class_id,nullzero"`
	Active           bool      `bun:"active,notnull"`
}

func (r awardRow) toDomain() domain.BadgeAward {
	return domain.BadgeAward{
		ID:               r.ID,
		StudentID:        r.StudentID,
		BadgeID:          r.BadgeID,
		EarnedAt:         r.EarnedAt,
		PerformanceScore: r.PerformanceScore,
		SourceQuizID:     r.SourceQuizID,
		SourceStoryID:    r.SourceStoryID,
		SourceClassID:    r.SourceClassID,
		Active:           r.Active,
	}
}

type sectionRow struct {
	bun.BaseModel `bun:"table:sections,alias:s"`

	ID        string    `bun:"id,pk"`
	Name      string    `bun:"name,notnull"`
	TeacherID string    `bun:"teacher_id,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
}

type memberRow struct {
	bun.BaseModel `bun:"table:section_members,alias:m"`

	SectionID   string    `bun:"section_id,pk"`
	StudentID   string    `bun:"student_id,pk"`
	DisplayName string    `bun:"display_name,notnull"`
	EnrolledAt  time.Time `bun:"enrolled_at,notnull"`
}

type progressRow struct {
	bun.BaseModel `bun:"table:student_progress,alias:p"`

	StudentID   string    `bun:"student_id,pk"`
	NodeID      string    `bun:"node_id,pk"`
	Kind        string    `bun:"kind,notnull"`
	CompletedAt time.Time `bun:"completed_at,notnull"`
}

func (r progressRow) toDomain() domain.Progress {
	return domain.Progress{
		StudentID:   r.StudentID,
		NodeID:      r.NodeID,
		Kind:        domain.NodeKind(r.Kind),
		CompletedAt: r.CompletedAt,
	}
}

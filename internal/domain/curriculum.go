package domain

import "time"

// NodeKind is one level of the phase → lesson → activity hierarchy.
type NodeKind string

const (
	KindPhase    NodeKind = "phase"
	KindLesson   NodeKind = "lesson"
	KindActivity NodeKind = "activity"
)

// ParentKind returns the kind a node of this kind must hang under.
// Phases have no parent and report ok=false.
func (k NodeKind) ParentKind() (NodeKind, bool) {
	switch k {
	case KindLesson:
		return KindPhase, true
	case KindActivity:
		return KindLesson, true
	default:
		return "", false
	}
}

// Valid reports whether k is a known kind.
func (k NodeKind) Valid() bool {
	return k == KindPhase || k == KindLesson || k == KindActivity
}

// ActivityType distinguishes the interactive formats an activity can take.
type ActivityType string

const (
	ActivityQuiz     ActivityType = "quiz"
	ActivityDragDrop ActivityType = "drag_drop"
	ActivityMatching ActivityType = "matching"
	ActivityStory    ActivityType = "story"
)

// Node is an ordered curriculum entity: a phase, a lesson, or an activity.
type Node struct {
	ID           string       `json:"id"`
	Kind         NodeKind     `json:"kind"`
	ParentID     string       `json:"parentId,omitempty"`
	Title        string       `json:"title"`
	Description  string       `json:"description,omitempty"`
	ActivityType ActivityType `json:"activityType,omitempty"`
	QuizID       string       `json:"quizId,omitempty"`
	OrderIndex   int          `json:"orderIndex"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// Scope returns the sibling set the node is ordered within.
func (n Node) Scope() Scope {
	return Scope{Kind: n.Kind, ParentID: n.ParentID}
}

// Scope identifies a set of siblings sharing one orderIndex sequence.
type Scope struct {
	Kind     NodeKind
	ParentID string
}

// Key is a stable string form used for locks and cache keys.
func (s Scope) Key() string {
	if s.ParentID == "" {
		return string(s.Kind) + ":root"
	}
	return string(s.Kind) + ":" + s.ParentID
}

package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"learnpath-service/internal/domain"
	"learnpath-service/internal/metrics"
)

// ScopeTx is a view of one sibling set held under its lock or transaction.
// Changes made through it become visible to readers only when the enclosing
// InScope call returns nil.
type ScopeTx interface {
	// Siblings returns the scope's nodes ordered by OrderIndex.
	Siblings(ctx context.Context) ([]domain.Node, error)
	Insert(ctx context.Context, node domain.Node) error
	// Shift adds delta to the OrderIndex of every sibling with from <= index <= to.
	Shift(ctx context.Context, from, to, delta int) error
	SetIndex(ctx context.Context, id string, index int) error
	// Remove deletes the node and everything below it.
	Remove(ctx context.Context, id string) error
}

// CurriculumRepository persists curriculum nodes.
type CurriculumRepository interface {
	// InScope runs fn atomically with respect to every other InScope call on the same scope.
	InScope(ctx context.Context, scope domain.Scope, fn func(tx ScopeTx) error) error
	GetNode(ctx context.Context, id string) (domain.Node, error)
	Children(ctx context.Context, scope domain.Scope) ([]domain.Node, error)
	UpdateNode(ctx context.Context, node domain.Node) error
}

// NodeRemovalListener is told which nodes a successful Delete removed.
type NodeRemovalListener interface {
	NodesRemoved(ctx context.Context, nodeIDs []string)
}

// CurriculumService maintains the phase → lesson → activity tree and the
// contiguous ordering of every sibling set in it.
type CurriculumService struct {
	repo      CurriculumRepository
	now       func() time.Time
	listeners []NodeRemovalListener
}

func NewCurriculumService(repo CurriculumRepository) *CurriculumService {
	return &CurriculumService{repo: repo, now: time.Now}
}

// OnRemove registers l to run after every successful Delete.
func (s *CurriculumService) OnRemove(l NodeRemovalListener) {
	s.listeners = append(s.listeners, l)
}

// Append adds node as the last child of its parent and returns it with its assigned ID and OrderIndex.
func (s *CurriculumService) Append(ctx context.Context, node domain.Node) (domain.Node, error) {
	if !node.Kind.Valid() {
		return domain.Node{}, fmt.Errorf("unknown node kind %q: %w", node.Kind, domain.ErrInvalidState)
	}
	if parentKind, ok := node.Kind.ParentKind(); ok {
		parent, err := s.repo.GetNode(ctx, node.ParentID)
		if err != nil {
			return domain.Node{}, parentErr(err)
		}
		if parent.Kind != parentKind {
			return domain.Node{}, domain.ErrParentNotFound
		}
	} else {
		node.ParentID = ""
	}
	if node.Kind != domain.KindActivity {
		node.ActivityType = ""
		node.QuizID = ""
	}

	node.ID = uuid.NewString()
	node.CreatedAt = s.now().UTC()

	err := s.repo.InScope(ctx, node.Scope(), func(tx ScopeTx) error {
		siblings, err := tx.Siblings(ctx)
		if err != nil {
			return err
		}
		node.OrderIndex = nextIndex(siblings)
		if err := tx.Insert(ctx, node); err != nil {
			return err
		}
		return verifyScope(ctx, tx, node.Scope())
	})
	if err != nil {
		return domain.Node{}, err
	}
	metrics.OrderingOps.WithLabelValues("append").Inc()
	return node, nil
}

// Reorder moves a node to newIndex within its sibling set, shifting the
// siblings in between by one.
func (s *CurriculumService) Reorder(ctx context.Context, id string, newIndex int) (domain.Node, error) {
	node, err := s.repo.GetNode(ctx, id)
	if err != nil {
		return domain.Node{}, err
	}

	err = s.repo.InScope(ctx, node.Scope(), func(tx ScopeTx) error {
		siblings, err := tx.Siblings(ctx)
		if err != nil {
			return err
		}
		current, ok := indexOf(siblings, id)
		if !ok {
			return domain.ErrNodeNotFound
		}
		if newIndex < 0 || newIndex >= len(siblings) {
			return fmt.Errorf("move to %d among %d siblings: %w", newIndex, len(siblings), domain.ErrOutOfRange)
		}
		from, to, delta, moved := reorderShift(current, newIndex)
		if !moved {
			node = siblings[current]
			return nil
		}
		if err := tx.Shift(ctx, from, to, delta); err != nil {
			return err
		}
		if err := tx.SetIndex(ctx, id, newIndex); err != nil {
			return err
		}
		node = siblings[current]
		node.OrderIndex = newIndex
		return verifyScope(ctx, tx, node.Scope())
	})
	if err != nil {
		return domain.Node{}, err
	}
	metrics.OrderingOps.WithLabelValues("reorder").Inc()
	return node, nil
}

// Delete removes a node with its descendants and closes the gap it leaves.
func (s *CurriculumService) Delete(ctx context.Context, id string) error {
	node, err := s.repo.GetNode(ctx, id)
	if err != nil {
		return err
	}
	removed, err := s.subtree(ctx, node)
	if err != nil {
		return err
	}

	err = s.repo.InScope(ctx, node.Scope(), func(tx ScopeTx) error {
		siblings, err := tx.Siblings(ctx)
		if err != nil {
			return err
		}
		current, ok := indexOf(siblings, id)
		if !ok {
			return domain.ErrNodeNotFound
		}
		if err := tx.Remove(ctx, id); err != nil {
			return err
		}
		if current < len(siblings)-1 {
			if err := tx.Shift(ctx, current+1, len(siblings)-1, -1); err != nil {
				return err
			}
		}
		return verifyScope(ctx, tx, node.Scope())
	})
	if err != nil {
		return err
	}
	metrics.OrderingOps.WithLabelValues("delete").Inc()
	for _, l := range s.listeners {
		l.NodesRemoved(ctx, removed)
	}
	return nil
}

// subtree returns the IDs of node and all of its descendants.
func (s *CurriculumService) subtree(ctx context.Context, node domain.Node) ([]string, error) {
	ids := []string{node.ID}
	kind, ok := childKind(node.Kind)
	if !ok {
		return ids, nil
	}
	children, err := s.repo.Children(ctx, domain.Scope{Kind: kind, ParentID: node.ID})
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		below, err := s.subtree(ctx, child)
		if err != nil {
			return nil, err
		}
		ids = append(ids, below...)
	}
	return ids, nil
}

func childKind(k domain.NodeKind) (domain.NodeKind, bool) {
	switch k {
	case domain.KindPhase:
		return domain.KindLesson, true
	case domain.KindLesson:
		return domain.KindActivity, true
	default:
		return "", false
	}
}

func (s *CurriculumService) Get(ctx context.Context, id string) (domain.Node, error) {
	return s.repo.GetNode(ctx, id)
}

func (s *CurriculumService) Children(ctx context.Context, scope domain.Scope) ([]domain.Node, error) {
	if _, ok := scope.Kind.ParentKind(); ok {
		if _, err := s.repo.GetNode(ctx, scope.ParentID); err != nil {
			return nil, parentErr(err)
		}
	}
	return s.repo.Children(ctx, scope)
}

// Rename updates the descriptive fields of a node. Ordering is untouched.
func (s *CurriculumService) Rename(ctx context.Context, id, title, description string) (domain.Node, error) {
	node, err := s.repo.GetNode(ctx, id)
	if err != nil {
		return domain.Node{}, err
	}
	node.Title = title
	node.Description = description
	if err := s.repo.UpdateNode(ctx, node); err != nil {
		return domain.Node{}, err
	}
	return node, nil
}

// nextIndex is max(OrderIndex)+1, or 0 for an empty scope.
func nextIndex(siblings []domain.Node) int {
	next := 0
	for _, sibling := range siblings {
		if sibling.OrderIndex >= next {
			next = sibling.OrderIndex + 1
		}
	}
	return next
}

// reorderShift returns the inclusive index range to shift and the shift
// direction for moving an item from current to target.
func reorderShift(current, target int) (from, to, delta int, moved bool) {
	switch {
	case target > current:
		return current + 1, target, -1, true
	case target < current:
		return target, current - 1, 1, true
	default:
		return 0, 0, 0, false
	}
}

// indexOf returns the position of id in an ordered, contiguous sibling list,
// which is also its OrderIndex.
func indexOf(siblings []domain.Node, id string) (int, bool) {
	for i, sibling := range siblings {
		if sibling.ID == id {
			return i, true
		}
	}
	return 0, false
}

// Contiguous reports whether the nodes carry exactly the indexes 0..len-1.
func Contiguous(nodes []domain.Node) bool {
	seen := make([]bool, len(nodes))
	for _, node := range nodes {
		if node.OrderIndex < 0 || node.OrderIndex >= len(nodes) || seen[node.OrderIndex] {
			return false
		}
		seen[node.OrderIndex] = true
	}
	return true
}

func verifyScope(ctx context.Context, tx ScopeTx, scope domain.Scope) error {
	siblings, err := tx.Siblings(ctx)
	if err != nil {
		return err
	}
	if !Contiguous(siblings) {
		slog.Error("ordering invariant violated, rolling back", "scope", scope.Key(), "count", len(siblings))
		return fmt.Errorf("scope %s: %w", scope.Key(), domain.ErrOrderCorrupted)
	}
	return nil
}

func parentErr(err error) error {
	if errors.Is(err, domain.ErrNotFound) {
		return domain.ErrParentNotFound
	}
	return err
}

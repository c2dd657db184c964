package memory

import (
	"context"
	"sort"
	"sync"

	"learnpath-service/internal/app"
	"learnpath-service/internal/domain"
)

// CurriculumStore is an in-memory app.CurriculumRepository. Each InScope call
// works on a staged copy of its scope under a per-scope lock and publishes the
// result in one step, so readers never observe a half-applied shift.
type CurriculumStore struct {
	mu    sync.RWMutex
	nodes map[string]domain.Node

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewCurriculumStore() *CurriculumStore {
	return &CurriculumStore{
		nodes: make(map[string]domain.Node),
		locks: make(map[string]*sync.Mutex),
	}
}

func (s *CurriculumStore) scopeLock(key string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

func (s *CurriculumStore) InScope(ctx context.Context, scope domain.Scope, fn func(tx app.ScopeTx) error) error {
	lock := s.scopeLock(scope.Key())
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &scopeTx{
		scope:    scope,
		staged:   make(map[string]domain.Node),
		inserted: make(map[string]bool),
	}
	s.mu.RLock()
	for id, node := range s.nodes {
		if node.Kind == scope.Kind && node.ParentID == scope.ParentID {
			tx.staged[id] = node
		}
	}
	s.mu.RUnlock()

	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *CurriculumStore) commit(tx *scopeTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tx.scope.ParentID != "" {
		if _, ok := s.nodes[tx.scope.ParentID]; !ok && len(tx.inserted) > 0 {
			return domain.ErrParentNotFound
		}
	}
	for _, id := range tx.removed {
		s.removeLocked(id)
	}
	for id, node := range tx.staged {
		if tx.inserted[id] {
			s.nodes[id] = node
			continue
		}
		if stored, ok := s.nodes[id]; ok {
			stored.OrderIndex = node.OrderIndex
			s.nodes[id] = stored
		}
	}
	return nil
}

// removeLocked deletes a node and all of its descendants.
func (s *CurriculumStore) removeLocked(id string) {
	delete(s.nodes, id)
	for childID, node := range s.nodes {
		if node.ParentID == id {
			s.removeLocked(childID)
		}
	}
}

func (s *CurriculumStore) GetNode(_ context.Context, id string) (domain.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	node, ok := s.nodes[id]
	if !ok {
		return domain.Node{}, domain.ErrNodeNotFound
	}
	return node, nil
}

func (s *CurriculumStore) Children(_ context.Context, scope domain.Scope) ([]domain.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Node, 0)
	for _, node := range s.nodes {
		if node.Kind == scope.Kind && node.ParentID == scope.ParentID {
			out = append(out, node)
		}
	}
	sortByIndex(out)
	return out, nil
}

// UpdateNode stores the descriptive fields of an existing node.
func (s *CurriculumStore) UpdateNode(_ context.Context, node domain.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.nodes[node.ID]
	if !ok {
		return domain.ErrNodeNotFound
	}
	stored.Title = node.Title
	stored.Description = node.Description
	s.nodes[node.ID] = stored
	return nil
}

type scopeTx struct {
	scope    domain.Scope
	staged   map[string]domain.Node
	inserted map[string]bool
	removed  []string
}

func (tx *scopeTx) Siblings(_ context.Context) ([]domain.Node, error) {
	out := make([]domain.Node, 0, len(tx.staged))
	for _, node := range tx.staged {
		out = append(out, node)
	}
	sortByIndex(out)
	return out, nil
}

func (tx *scopeTx) Insert(_ context.Context, node domain.Node) error {
	tx.staged[node.ID] = node
	tx.inserted[node.ID] = true
	return nil
}

func (tx *scopeTx) Shift(_ context.Context, from, to, delta int) error {
	for id, node := range tx.staged {
		if node.OrderIndex >= from && node.OrderIndex <= to {
			node.OrderIndex += delta
			tx.staged[id] = node
		}
	}
	return nil
}

func (tx *scopeTx) SetIndex(_ context.Context, id string, index int) error {
	node, ok := tx.staged[id]
	if !ok {
		return domain.ErrNodeNotFound
	}
	node.OrderIndex = index
	tx.staged[id] = node
	return nil
}

func (tx *scopeTx) Remove(_ context.Context, id string) error {
	if _, ok := tx.staged[id]; !ok {
		return domain.ErrNodeNotFound
	}
	delete(tx.staged, id)
	delete(tx.inserted, id)
	tx.removed = append(tx.removed, id)
	return nil
}

func sortByIndex(nodes []domain.Node) {
	sort.Slice(nodes, func(i, j int) bool {
		if nodes[i].OrderIndex != nodes[j].OrderIndex {
			return nodes[i].OrderIndex < nodes[j].OrderIndex
		}
		return nodes[i].ID < nodes[j].ID
	})
}

package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/uptrace/bun"

	"learnpath-service/internal/app"
	"learnpath-service/internal/domain"
)

// CurriculumStore keeps curriculum nodes in a single self-referencing table.
// Deleting a node cascades to its descendants through the parent_id foreign key.
type CurriculumStore struct {
	db *bun.DB
}

func NewCurriculumStore(db *bun.DB) *CurriculumStore {
	return &CurriculumStore{db: db}
}

// InScope runs fn in one transaction that holds an advisory lock on the scope,
// serializing every mutation of the same sibling set across instances.
func (s *CurriculumStore) InScope(ctx context.Context, scope domain.Scope, fn func(tx app.ScopeTx) error) error {
	return s.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", scope.Key()); err != nil {
			return fmt.Errorf("lock scope %s: %w", scope.Key(), err)
		}
		return fn(&scopeTx{tx: tx, scope: scope})
	})
}

func (s *CurriculumStore) GetNode(ctx context.Context, id string) (domain.Node, error) {
	var row nodeRow
	if err := s.db.NewSelect().Model(&row).Where("id = ?", id).Scan(ctx); err != nil {
		return domain.Node{}, notFound(err, domain.ErrNodeNotFound)
	}
	return row.toDomain(), nil
}

func (s *CurriculumStore) Children(ctx context.Context, scope domain.Scope) ([]domain.Node, error) {
	return selectScope(ctx, s.db, scope)
}

func (s *CurriculumStore) UpdateNode(ctx context.Context, node domain.Node) error {
	res, err := s.db.NewUpdate().Model((*nodeRow)(nil)).
		Set("title = ?", node.Title).
		Set("description = ?", node.Description).
		Where("id = ?", node.ID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update node: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNodeNotFound
	}
	return nil
}

type scopeTx struct {
	tx    bun.Tx
	scope domain.Scope
}

func (t *scopeTx) Siblings(ctx context.Context) ([]domain.Node, error) {
	return selectScope(ctx, t.tx, t.scope)
}

func (t *scopeTx) Insert(ctx context.Context, node domain.Node) error {
	row := newNodeRow(node)
	if _, err := t.tx.NewInsert().Model(&row).Exec(ctx); err != nil {
		if pgCode(err) == codeForeignKeyViolation {
			return domain.ErrParentNotFound
		}
		return fmt.Errorf("insert node: %w", err)
	}
	return nil
}

func (t *scopeTx) Shift(ctx context.Context, from, to, delta int) error {
	cond, args := scopeCondition(t.scope)
	_, err := t.tx.NewUpdate().Model((*nodeRow)(nil)).
		Set("order_index = order_index + ?", delta).
		Where(cond, args...).
		Where("order_index BETWEEN ? AND ?", from, to).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("shift scope %s: %w", t.scope.Key(), err)
	}
	return nil
}

func (t *scopeTx) SetIndex(ctx context.Context, id string, index int) error {
	cond, args := scopeCondition(t.scope)
	res, err := t.tx.NewUpdate().Model((*nodeRow)(nil)).
		Set("order_index = ?", index).
		Where("id = ?", id).
		Where(cond, args...).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("set index: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNodeNotFound
	}
	return nil
}

func (t *scopeTx) Remove(ctx context.Context, id string) error {
	cond, args := scopeCondition(t.scope)
	res, err := t.tx.NewDelete().Model((*nodeRow)(nil)).
		Where("id = ?", id).
		Where(cond, args...).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return err
	}
	if n == 0 {
		return domain.ErrNodeNotFound
	}
	return nil
}

func selectScope(ctx context.Context, db bun.IDB, scope domain.Scope) ([]domain.Node, error) {
	var rows []nodeRow
	cond, args := scopeCondition(scope)
	err := db.NewSelect().Model(&rows).
		Where(cond, args...).
		OrderExpr("order_index ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select scope %s: %w", scope.Key(), err)
	}
	out := make([]domain.Node, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func scopeCondition(scope domain.Scope) (string, []interface{}) {
	if scope.ParentID == "" {
		return "kind = ? AND parent_id IS NULL", []interface{}{string(scope.Kind)}
	}
	return "kind = ? AND parent_id = ?", []interface{}{string(scope.Kind), scope.ParentID}
}

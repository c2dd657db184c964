package migrations

import (
	"context"
	_ "embed"

	"github.com/uptrace/bun"
)

// Progress rows outlive their node until the curriculum service clears them,
// so the leaderboard can be refreshed for the students that lose them.
//
//go:embed 2024112206_detach_progress_nodes.sql
var detachProgressNodesSQL string

func init() {
	Migrations.MustRegister(
		func(ctx context.Context, db *bun.DB) error {
			return execScript(ctx, db, detachProgressNodesSQL)
		},
		func(ctx context.Context, db *bun.DB) error {
			return execScript(ctx, db, `DROP INDEX IF EXISTS student_progress_node_idx;
ALTER TABLE student_progress ADD CONSTRAINT student_progress_node_id_fkey
    FOREIGN KEY (node_id) REFERENCES curriculum_nodes (id) ON DELETE CASCADE;`)
		},
	)
}

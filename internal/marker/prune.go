package marker

import (
	"context"
	"log/slog"
	"time"

	"github.com/reelpoint/reelpoint/internal/database"
)

func pruneOrphanedState(ctx context.Context, db database.DBTX) {
	tag, err := db.Exec(ctx,
		`DELETE FROM asset_markers WHERE asset_id NOT IN (SELECT id::text FROM assets)`)
	if err != nil {
		slog.Error("marker-prune: failed to prune snapshots", "error", err)
		return
	}
	removed := tag.RowsAffected()

	tag, err = db.Exec(ctx,
		`DELETE FROM marker_overrides WHERE asset_id NOT IN (SELECT id::text FROM assets)`)
	if err != nil {
		slog.Error("marker-prune: failed to prune overrides", "error", err)
		return
	}
	removed += tag.RowsAffected()

	if removed > 0 {
		slog.Info("marker-prune: removed orphaned marker state", "rows", removed)
	}
}

// StartPruneWorker sweeps marker state whose asset no longer exists. Marker
// rows carry no foreign key (embedded hosts write ids this service never
// catalogued), so orphans are collected here instead of by the database.
func StartPruneWorker(ctx context.Context, db database.DBTX, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				slog.Info("marker-prune: shutting down")
				return
			case <-ticker.C:
				pruneOrphanedState(ctx, db)
			}
		}
	}()
}

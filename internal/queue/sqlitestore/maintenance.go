package sqlitestore

import (
	"context"
	"fmt"
	"time"

	"courier/internal/queue"
)

// RequeueStale returns PROCESSING items started before now-timeout to QUEUED.
// A zero timeout requeues every PROCESSING item.
func (s *Store) RequeueStale(ctx context.Context, timeout time.Duration) (int64, error) {
	query := `UPDATE queue_items SET status = ?, worker_id = NULL, started_at = NULL WHERE status = ?`
	args := []any{queue.StatusQueued, queue.StatusProcessing}
	if timeout > 0 {
		query += ` AND (started_at IS NULL OR started_at < ?)`
		args = append(args, queue.FormatTime(s.now().Add(-timeout)))
	}
	res, err := s.execWithRetry(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("requeue stale items: %w", err)
	}
	return res.RowsAffected()
}

// PurgeCompleted deletes COMPLETED items finished more than olderThan ago.
func (s *Store) PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.purge(ctx, queue.StatusCompleted, olderThan)
}

// PurgeDead deletes DEAD items dead-lettered more than olderThan ago.
func (s *Store) PurgeDead(ctx context.Context, olderThan time.Duration) (int64, error) {
	return s.purge(ctx, queue.StatusDead, olderThan)
}

func (s *Store) purge(ctx context.Context, status queue.Status, olderThan time.Duration) (int64, error) {
	cutoff := queue.FormatTime(s.now().Add(-olderThan))
	res, err := s.execWithRetry(ctx,
		`DELETE FROM queue_items WHERE status = ? AND completed_at IS NOT NULL AND completed_at < ?`,
		status, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("purge %s items: %w", status, err)
	}
	return res.RowsAffected()
}

// StatusCounts returns a count of items for every status.
func (s *Store) StatusCounts(ctx context.Context) (map[queue.Status]int, error) {
	rows, err := s.db.QueryContext(ensureContext(ctx), `SELECT status, COUNT(1) FROM queue_items GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()

	counts := queue.ZeroCounts()
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[queue.Status(status)] = count
	}
	return counts, rows.Err()
}

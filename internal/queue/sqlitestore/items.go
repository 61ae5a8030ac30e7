package sqlitestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"courier/internal/queue"
)

// Enqueue persists a new QUEUED item.
func (s *Store) Enqueue(ctx context.Context, item *queue.Item) (string, error) {
	if item == nil {
		return "", fmt.Errorf("%w: nil item", queue.ErrInvalidItem)
	}
	item.NormalizeForEnqueue(s.now())
	if err := item.Validate(); err != nil {
		return "", err
	}
	payload, err := queue.EncodePayload(item.Payload)
	if err != nil {
		return "", err
	}
	if _, err := s.execWithRetry(ctx,
		`INSERT INTO queue_items (`+itemColumns+`)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID,
		int(item.Priority),
		string(item.Status),
		string(item.TaskType),
		string(payload),
		item.AttemptCount,
		item.MaxAttempts,
		nullableString(item.LastError),
		nil,
		queue.FormatTime(item.CreatedAt),
		queue.FormatTime(item.ScheduledFor),
		nil,
		nil,
		nullableString(item.CorrelationID),
		nullableString(item.ParentID),
		nullableString(item.UserID),
		nullableString(item.ChannelID),
	); err != nil {
		return "", fmt.Errorf("insert queue item: %w", err)
	}
	return item.ID, nil
}

// Dequeue claims the best eligible item in [min, max] with one statement.
func (s *Store) Dequeue(ctx context.Context, min, max queue.Priority, workerID string) (*queue.Item, error) {
	ctx = ensureContext(ctx)
	now := queue.FormatTime(s.now())
	var item *queue.Item
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`UPDATE queue_items
            SET status = ?, worker_id = ?, started_at = ?
            WHERE id = (
                SELECT id FROM queue_items
                WHERE status = ? AND priority BETWEEN ? AND ? AND scheduled_for <= ?
                ORDER BY priority ASC, scheduled_for ASC, created_at ASC, id ASC
                LIMIT 1
            ) AND status = ?
            RETURNING `+itemColumns,
			queue.StatusProcessing, workerID, now,
			queue.StatusQueued, int(min), int(max), now,
			queue.StatusQueued,
		)
		claimed, scanErr := scanItem(row)
		if scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				item = nil
				return nil
			}
			return scanErr
		}
		item = claimed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	return item, nil
}

// Complete marks a live item COMPLETED; terminal items are left untouched.
func (s *Store) Complete(ctx context.Context, id string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE queue_items
        SET status = ?, completed_at = ?, worker_id = NULL
        WHERE id = ? AND status IN (?, ?)`,
		queue.StatusCompleted, queue.FormatTime(s.now()), id,
		queue.StatusQueued, queue.StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("complete item: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return nil
}

// Fail records a failed attempt and requeues or dead-letters the item.
func (s *Store) Fail(ctx context.Context, id, errMsg string) (queue.Status, error) {
	var result queue.Status
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		item, err := getTx(ctx, tx, id)
		if err != nil {
			return err
		}
		previous := item.Status
		result = queue.ResolveFailure(item, errMsg, s.now(), s.backoff)
		if previous.Terminal() {
			return nil
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE queue_items
            SET status = ?, attempt_count = ?, last_error = ?, worker_id = NULL, started_at = NULL,
                scheduled_for = ?, completed_at = ?
            WHERE id = ? AND status = ?`,
			string(item.Status), item.AttemptCount, nullableString(item.LastError),
			queue.FormatTime(item.ScheduledFor), nullableTime(item.CompletedAt),
			id, string(previous),
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("item %s changed status concurrently", id)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, queue.ErrNotFound) {
			return "", err
		}
		return "", fmt.Errorf("fail item: %w", err)
	}
	return result, nil
}

// Get returns a single item.
func (s *Store) Get(ctx context.Context, id string) (*queue.Item, error) {
	row := s.db.QueryRowContext(ensureContext(ctx), `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", queue.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

func getTx(ctx context.Context, tx *sql.Tx, id string) (*queue.Item, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = ?`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", queue.ErrNotFound, id)
	}
	return item, err
}

// List returns items matching filter ordered by creation.
func (s *Store) List(ctx context.Context, filter queue.ListFilter) ([]*queue.Item, error) {
	var (
		clauses []string
		args    []any
	)
	if len(filter.Statuses) > 0 {
		clauses = append(clauses, "status IN ("+makePlaceholders(len(filter.Statuses))+")")
		for _, status := range filter.Statuses {
			args = append(args, string(status))
		}
	}
	if filter.TaskType != "" {
		clauses = append(clauses, "task_type = ?")
		args = append(args, string(filter.TaskType))
	}
	query := `SELECT ` + itemColumns + ` FROM queue_items`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ensureContext(ctx), query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*queue.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// Retry moves a DEAD item back to QUEUED with its attempts reset.
func (s *Store) Retry(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		item, err := getTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if item.Status != queue.StatusDead {
			return fmt.Errorf("%w: item %s is %s", queue.ErrInvalidTransition, id, item.Status)
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE queue_items
            SET status = ?, attempt_count = 0, scheduled_for = ?, completed_at = NULL, worker_id = NULL, started_at = NULL
            WHERE id = ? AND status = ?`,
			queue.StatusQueued, queue.FormatTime(maxTime(s.now(), item.CreatedAt)), id, queue.StatusDead,
		)
		return err
	})
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

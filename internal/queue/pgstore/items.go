package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
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
	item.CreatedAt = item.CreatedAt.Truncate(time.Microsecond)
	item.ScheduledFor = item.ScheduledFor.Truncate(time.Microsecond)
	if err := item.Validate(); err != nil {
		return "", err
	}
	payload, err := queue.EncodePayload(item.Payload)
	if err != nil {
		return "", err
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO queue_items (`+itemColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULL, $9, $10, NULL, NULL, $11, $12, $13, $14)`,
		item.ID, int(item.Priority), string(item.Status), string(item.TaskType), string(payload),
		item.AttemptCount, item.MaxAttempts, nullableString(item.LastError),
		item.CreatedAt, item.ScheduledFor,
		nullableString(item.CorrelationID), nullableString(item.ParentID),
		nullableString(item.UserID), nullableString(item.ChannelID),
	); err != nil {
		return "", fmt.Errorf("insert queue item: %w", err)
	}
	return item.ID, nil
}

// Dequeue claims the best eligible item in [min, max], skipping rows other
// transactions hold.
func (s *Store) Dequeue(ctx context.Context, min, max queue.Priority, workerID string) (*queue.Item, error) {
	now := s.now()
	row := s.db.QueryRowContext(ctx,
		`UPDATE queue_items
        SET status = $1, worker_id = $2, started_at = $3
        WHERE id = (
            SELECT id FROM queue_items
            WHERE status = $4 AND priority BETWEEN $5 AND $6 AND scheduled_for <= $3
            ORDER BY priority ASC, scheduled_for ASC, created_at ASC, id ASC
            LIMIT 1
            FOR UPDATE SKIP LOCKED
        )
        RETURNING `+itemColumns,
		string(queue.StatusProcessing), workerID, now,
		string(queue.StatusQueued), int(min), int(max),
	)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	return item, nil
}

// Complete marks a live item COMPLETED; terminal items are left untouched.
func (s *Store) Complete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE queue_items SET status = $1, completed_at = $2, worker_id = NULL
        WHERE id = $3 AND status IN ($4, $5)`,
		string(queue.StatusCompleted), s.now(), id,
		string(queue.StatusQueued), string(queue.StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("complete item: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	_, err = s.Get(ctx, id)
	return err
}

// Fail records a failed attempt and requeues or dead-letters the item.
func (s *Store) Fail(ctx context.Context, id, errMsg string) (queue.Status, error) {
	var result queue.Status
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = $1 FOR UPDATE`, id)
		item, err := scanItem(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", queue.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		if item.Status.Terminal() {
			result = item.Status
			return nil
		}
		result = queue.ResolveFailure(item, errMsg, s.now(), s.backoff)
		_, err = tx.ExecContext(ctx,
			`UPDATE queue_items
            SET status = $1, attempt_count = $2, last_error = $3, worker_id = NULL, started_at = NULL,
                scheduled_for = $4, completed_at = $5
            WHERE id = $6`,
			string(item.Status), item.AttemptCount, nullableString(item.LastError),
			item.ScheduledFor.Truncate(time.Microsecond), nullableTime(item.CompletedAt), id,
		)
		return err
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
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = $1`, id)
	item, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", queue.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

// List returns items matching filter ordered by creation.
func (s *Store) List(ctx context.Context, filter queue.ListFilter) ([]*queue.Item, error) {
	var (
		clauses []string
		args    []any
	)
	next := func(value any) string {
		args = append(args, value)
		return "$" + strconv.Itoa(len(args))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, 0, len(filter.Statuses))
		for _, status := range filter.Statuses {
			placeholders = append(placeholders, next(string(status)))
		}
		clauses = append(clauses, "status IN ("+strings.Join(placeholders, ", ")+")")
	}
	if filter.TaskType != "" {
		clauses = append(clauses, "task_type = "+next(string(filter.TaskType)))
	}
	query := `SELECT ` + itemColumns + ` FROM queue_items`
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT " + next(filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
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
		row := tx.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM queue_items WHERE id = $1 FOR UPDATE`, id)
		item, err := scanItem(row)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", queue.ErrNotFound, id)
		}
		if err != nil {
			return err
		}
		if item.Status != queue.StatusDead {
			return fmt.Errorf("%w: item %s is %s", queue.ErrInvalidTransition, id, item.Status)
		}
		scheduled := s.now()
		if scheduled.Before(item.CreatedAt) {
			scheduled = item.CreatedAt
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE queue_items
            SET status = $1, attempt_count = 0, scheduled_for = $2, completed_at = NULL, worker_id = NULL, started_at = NULL
            WHERE id = $3`,
			string(queue.StatusQueued), scheduled, id,
		)
		return err
	})
}

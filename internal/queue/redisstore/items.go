package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/redis/go-redis/v9"

	"courier/internal/queue"
)

// Enqueue persists a new QUEUED item and indexes it in its band.
func (s *Store) Enqueue(ctx context.Context, item *queue.Item) (string, error) {
	if item == nil {
		return "", fmt.Errorf("%w: nil item", queue.ErrInvalidItem)
	}
	item.NormalizeForEnqueue(s.now())
	if err := item.Validate(); err != nil {
		return "", err
	}
	fields, err := encodeHash(item)
	if err != nil {
		return "", err
	}
	key := s.itemKey(item.ID)
	err = s.watch(ctx, key, func(tx *redis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return fmt.Errorf("%w: duplicate id %s", queue.ErrInvalidItem, item.ID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			pipe.ZAdd(ctx, s.queuedKey(item.Priority), redis.Z{Score: score(item.ScheduledFor), Member: item.ID})
			return nil
		})
		return err
	})
	if err != nil {
		if errors.Is(err, queue.ErrInvalidItem) {
			return "", err
		}
		return "", fmt.Errorf("enqueue item: %w", err)
	}
	return item.ID, nil
}

// Dequeue claims the best eligible item in [min, max] with one script call.
func (s *Store) Dequeue(ctx context.Context, min, max queue.Priority, workerID string) (*queue.Item, error) {
	if min > max {
		return nil, nil
	}
	keys := make([]string, 0, int(max-min)+2)
	for p := min; p <= max; p++ {
		keys = append(keys, s.queuedKey(p))
	}
	keys = append(keys, s.statusKey(queue.StatusProcessing))
	now := s.now()
	res, err := claimScript.Run(ctx, s.client, keys,
		now.UnixMicro(), queue.FormatTime(now), workerID, s.itemPrefix(),
	).Slice()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}
	return decodeFlat(res)
}

// Complete marks a live item COMPLETED; terminal items are left untouched.
func (s *Store) Complete(ctx context.Context, id string) error {
	key := s.itemKey(id)
	return s.watch(ctx, key, func(tx *redis.Tx) error {
		item, err := s.loadTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if item.Status.Terminal() {
			return nil
		}
		now := s.now()
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, s.queuedKey(item.Priority), id)
			pipe.ZRem(ctx, s.statusKey(queue.StatusProcessing), id)
			pipe.HSet(ctx, key,
				queue.FieldStatus, string(queue.StatusCompleted),
				queue.FieldCompletedAt, queue.FormatTime(now),
				queue.FieldWorkerID, "",
			)
			pipe.ZAdd(ctx, s.statusKey(queue.StatusCompleted), redis.Z{Score: score(now), Member: id})
			return nil
		})
		return err
	})
}

// Fail records a failed attempt and requeues or dead-letters the item.
func (s *Store) Fail(ctx context.Context, id, errMsg string) (queue.Status, error) {
	key := s.itemKey(id)
	var result queue.Status
	err := s.watch(ctx, key, func(tx *redis.Tx) error {
		item, err := s.loadTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if item.Status.Terminal() {
			result = item.Status
			return nil
		}
		previous := item.Status
		result = queue.ResolveFailure(item, errMsg, s.now(), s.backoff)
		fields, err := encodeHash(item)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if previous == queue.StatusProcessing {
				pipe.ZRem(ctx, s.statusKey(queue.StatusProcessing), id)
			} else {
				pipe.ZRem(ctx, s.queuedKey(item.Priority), id)
			}
			pipe.HSet(ctx, key, fields)
			if result == queue.StatusDead {
				pipe.ZAdd(ctx, s.statusKey(queue.StatusDead), redis.Z{Score: score(*item.CompletedAt), Member: id})
			} else {
				pipe.ZAdd(ctx, s.queuedKey(item.Priority), redis.Z{Score: score(item.ScheduledFor), Member: id})
			}
			return nil
		})
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
	values, err := s.client.HGetAll(ctx, s.itemKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: %s", queue.ErrNotFound, id)
	}
	return decodeHash(values)
}

func (s *Store) indexKeys(statuses []queue.Status) []string {
	if len(statuses) == 0 {
		statuses = queue.AllStatuses()
	}
	var keys []string
	for _, status := range statuses {
		switch status {
		case queue.StatusQueued:
			for p := queue.PriorityInteractive; p <= queue.PriorityBulk; p++ {
				keys = append(keys, s.queuedKey(p))
			}
		case queue.StatusProcessing, queue.StatusCompleted, queue.StatusDead:
			keys = append(keys, s.statusKey(status))
		}
	}
	return keys
}

// List returns items matching filter ordered by creation.
func (s *Store) List(ctx context.Context, filter queue.ListFilter) ([]*queue.Item, error) {
	keys := s.indexKeys(filter.Statuses)
	if len(keys) == 0 {
		return nil, nil
	}
	idCmds := make([]*redis.StringSliceCmd, len(keys))
	if _, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			idCmds[i] = pipe.ZRange(ctx, key, 0, -1)
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("list item ids: %w", err)
	}
	var ids []string
	for _, cmd := range idCmds {
		ids = append(ids, cmd.Val()...)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	hashCmds := make([]*redis.MapStringStringCmd, len(ids))
	if _, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range ids {
			hashCmds[i] = pipe.HGetAll(ctx, s.itemKey(id))
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}

	var (
		items []*queue.Item
		errs  *multierror.Error
	)
	for i, cmd := range hashCmds {
		values := cmd.Val()
		if len(values) == 0 {
			continue
		}
		item, err := decodeHash(values)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("decode %s: %w", ids[i], err))
			continue
		}
		if filter.TaskType != "" && item.TaskType != filter.TaskType {
			continue
		}
		items = append(items, item)
	}
	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.Before(items[j].CreatedAt)
		}
		return items[i].ID < items[j].ID
	})
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, nil
}

// Retry moves a DEAD item back to QUEUED with its attempts reset.
func (s *Store) Retry(ctx context.Context, id string) error {
	key := s.itemKey(id)
	return s.watch(ctx, key, func(tx *redis.Tx) error {
		item, err := s.loadTx(ctx, tx, id)
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
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.ZRem(ctx, s.statusKey(queue.StatusDead), id)
			pipe.HSet(ctx, key,
				queue.FieldStatus, string(queue.StatusQueued),
				queue.FieldAttemptCount, 0,
				queue.FieldScheduledFor, queue.FormatTime(scheduled),
				scheduledScore, scheduled.UnixMicro(),
				queue.FieldCompletedAt, "",
				queue.FieldWorkerID, "",
				queue.FieldStartedAt, "",
			)
			pipe.ZAdd(ctx, s.queuedKey(item.Priority), redis.Z{Score: score(scheduled), Member: id})
			return nil
		})
		return err
	})
}

// RequeueStale returns PROCESSING items started before now-timeout to QUEUED.
func (s *Store) RequeueStale(ctx context.Context, timeout time.Duration) (int64, error) {
	max := "+inf"
	if timeout > 0 {
		max = "(" + strconv.FormatInt(s.now().Add(-timeout).UnixMicro(), 10)
	}
	n, err := requeueScript.Run(ctx, s.client,
		[]string{s.statusKey(queue.StatusProcessing)},
		max, s.itemPrefix(), s.queuedPrefix(),
	).Int64()
	if err != nil {
		return 0, fmt.Errorf("requeue stale items: %w", err)
	}
	return n, nil
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
	cutoff := "(" + strconv.FormatInt(s.now().Add(-olderThan).UnixMicro(), 10)
	n, err := purgeScript.Run(ctx, s.client, []string{s.statusKey(status)}, cutoff, s.itemPrefix()).Int64()
	if err != nil {
		return 0, fmt.Errorf("purge %s items: %w", status, err)
	}
	return n, nil
}

// StatusCounts returns a count of items for every status.
func (s *Store) StatusCounts(ctx context.Context) (map[queue.Status]int, error) {
	queued := make([]*redis.IntCmd, 0, 4)
	byStatus := make(map[queue.Status]*redis.IntCmd, 3)
	if _, err := s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for p := queue.PriorityInteractive; p <= queue.PriorityBulk; p++ {
			queued = append(queued, pipe.ZCard(ctx, s.queuedKey(p)))
		}
		for _, status := range []queue.Status{queue.StatusProcessing, queue.StatusCompleted, queue.StatusDead} {
			byStatus[status] = pipe.ZCard(ctx, s.statusKey(status))
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	counts := queue.ZeroCounts()
	for _, cmd := range queued {
		counts[queue.StatusQueued] += int(cmd.Val())
	}
	for status, cmd := range byStatus {
		counts[status] = int(cmd.Val())
	}
	return counts, nil
}

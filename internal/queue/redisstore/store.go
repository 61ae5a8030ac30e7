package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"courier/internal/queue"
)

const (
	defaultPrefix  = "courier:"
	watchRetries   = 10
	scheduledScore = "scheduled_score"
)

// Store manages queue persistence backed by Redis.
type Store struct {
	client  *redis.Client
	prefix  string
	owned   bool
	clock   queue.Clock
	backoff queue.Backoff
}

var _ queue.AdminStore = (*Store)(nil)

// Config describes how to reach Redis.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Open dials Redis, verifies the connection, and returns a Store that closes
// the client on Close.
func Open(ctx context.Context, cfg Config, opts queue.Options) (*Store, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		return nil, errors.New("redis address is empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	store := New(client, cfg.Prefix, opts)
	store.owned = true
	return store, nil
}

// New wraps an existing client. The caller keeps ownership of client.
func New(client *redis.Client, prefix string, opts queue.Options) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	opts = opts.WithDefaults()
	return &Store{client: client, prefix: prefix, clock: opts.Clock, backoff: opts.Backoff}
}

func (s *Store) itemPrefix() string {
	return s.prefix + "item:"
}

func (s *Store) itemKey(id string) string {
	return s.itemPrefix() + id
}

func (s *Store) queuedPrefix() string {
	return s.prefix + "queued:"
}

func (s *Store) queuedKey(p queue.Priority) string {
	return s.queuedPrefix() + strconv.Itoa(int(p))
}

func (s *Store) statusKey(status queue.Status) string {
	return s.prefix + string(status)
}

func (s *Store) now() time.Time {
	return s.clock.Now().UTC().Truncate(time.Microsecond)
}

func score(t time.Time) float64 {
	return float64(t.UnixMicro())
}

// Ping verifies Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close releases the client when the store opened it.
func (s *Store) Close() error {
	if s == nil || s.client == nil || !s.owned {
		return nil
	}
	return s.client.Close()
}

// Reset removes every key under the store prefix. Used by tests.
func (s *Store) Reset(ctx context.Context) error {
	iter := s.client.Scan(ctx, 0, s.prefix+"*", 200).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.client.Del(ctx, keys...).Err()
}

func encodeHash(item *queue.Item) (map[string]any, error) {
	payload, err := queue.EncodePayload(item.Payload)
	if err != nil {
		return nil, err
	}
	optionalTime := func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return queue.FormatTime(*t)
	}
	return map[string]any{
		queue.FieldID:            item.ID,
		queue.FieldPriority:      int(item.Priority),
		queue.FieldStatus:        string(item.Status),
		queue.FieldTaskType:      string(item.TaskType),
		queue.FieldPayload:       string(payload),
		queue.FieldAttemptCount:  item.AttemptCount,
		queue.FieldMaxAttempts:   item.MaxAttempts,
		queue.FieldLastError:     item.LastError,
		queue.FieldWorkerID:      item.WorkerID,
		queue.FieldCreatedAt:     queue.FormatTime(item.CreatedAt),
		queue.FieldScheduledFor:  queue.FormatTime(item.ScheduledFor),
		queue.FieldStartedAt:     optionalTime(item.StartedAt),
		queue.FieldCompletedAt:   optionalTime(item.CompletedAt),
		queue.FieldCorrelationID: item.CorrelationID,
		queue.FieldParentID:      item.ParentID,
		queue.FieldUserID:        item.UserID,
		queue.FieldChannelID:     item.ChannelID,
		scheduledScore:           item.ScheduledFor.UnixMicro(),
	}, nil
}

func decodeHash(values map[string]string) (*queue.Item, error) {
	rec := make(queue.Record, len(values))
	for k, v := range values {
		if k == scheduledScore {
			continue
		}
		rec[k] = v
	}
	return queue.FromRecord(rec)
}

func decodeFlat(values []any) (*queue.Item, error) {
	if len(values)%2 != 0 {
		return nil, fmt.Errorf("unexpected hash reply length %d", len(values))
	}
	hash := make(map[string]string, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		k, _ := values[i].(string)
		v, _ := values[i+1].(string)
		hash[k] = v
	}
	return decodeHash(hash)
}

// watch runs fn in an optimistic transaction on key, retrying when another
// client modifies the key first.
func (s *Store) watch(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for attempt := 0; attempt < watchRetries; attempt++ {
		err := s.client.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("transaction on %s kept conflicting", key)
}

func (s *Store) loadTx(ctx context.Context, tx *redis.Tx, id string) (*queue.Item, error) {
	values, err := tx.HGetAll(ctx, s.itemKey(id)).Result()
	if err != nil {
		return nil, err
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%w: %s", queue.ErrNotFound, id)
	}
	return decodeHash(values)
}

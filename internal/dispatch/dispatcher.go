package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"courier/internal/logging"
	"courier/internal/queue"
)

const (
	// DefaultHistoryLimit bounds the conversation turns handed to the generator.
	DefaultHistoryLimit = 20
	// DefaultTimeout bounds a single Process call.
	DefaultTimeout = 5 * time.Minute
)

// Result is the outcome of processing one item. Data is attached to the
// completion log and returned to operators; it is never persisted.
type Result struct {
	Success bool
	Error   string
	Data    map[string]any
}

func success(data map[string]any) Result {
	return Result{Success: true, Data: data}
}

func failure(format string, args ...any) Result {
	return Result{Success: false, Error: fmt.Sprintf(format, args...)}
}

// Options wires a Dispatcher. Collaborators may be nil; a handler whose
// collaborator is missing reports a failed Result.
type Options struct {
	Delivery      MessageDelivery
	Skills        Skills
	Actions       Actions
	Generator     Generator
	Conversations ConversationStore

	HistoryLimit int
	// ContextTTL controls how long channel history stays cached. Zero disables caching.
	ContextTTL time.Duration
	// Timeout bounds each Process call. Zero disables the bound.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Dispatcher maps task types to handlers.
type Dispatcher struct {
	delivery      MessageDelivery
	skills        Skills
	actions       Actions
	generator     Generator
	conversations ConversationStore

	historyLimit int
	timeout      time.Duration
	logger       *slog.Logger

	history   *ttlcache.Cache[string, []Turn]
	closeOnce sync.Once
}

// New constructs a dispatcher.
func New(opts Options) *Dispatcher {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	limit := opts.HistoryLimit
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	d := &Dispatcher{
		delivery:      opts.Delivery,
		skills:        opts.Skills,
		actions:       opts.Actions,
		generator:     opts.Generator,
		conversations: opts.Conversations,
		historyLimit:  limit,
		timeout:       opts.Timeout,
		logger:        logging.NewComponentLogger(logger, "dispatch"),
	}
	if opts.ContextTTL > 0 {
		d.history = ttlcache.New[string, []Turn](
			ttlcache.WithTTL[string, []Turn](opts.ContextTTL),
			ttlcache.WithDisableTouchOnHit[string, []Turn](),
		)
		go d.history.Start()
	}
	return d
}

// Close stops the history cache janitor. Safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		if d.history != nil {
			d.history.Stop()
			d.history.DeleteAll()
		}
	})
}

// Process runs the handler for taskType. It never panics; handler panics,
// errors, and timeouts all surface as Result.Success=false.
//
// On timeout or cancellation Process returns without waiting for the handler
// goroutine. The handler sees its context done and must not deliver anything
// further; the message reply handler checks before every part it sends.
func (d *Dispatcher) Process(ctx context.Context, taskType queue.TaskType, payload map[string]any) Result {
	if payload == nil {
		payload = map[string]any{}
	}
	runCtx := ctx
	cancel := func() {}
	if d.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, d.timeout)
	}
	defer cancel()

	done := make(chan Result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logging.ErrorWithContext(
					logging.WithContext(ctx, d.logger),
					"handler panicked",
					"handler_panic",
					logging.String(logging.FieldTaskType, string(taskType)),
					logging.Any("panic", r),
					logging.String("stack", string(debug.Stack())),
					logging.String(logging.FieldErrorHint, "inspect the handler for the task type; the item will be retried"),
				)
				done <- failure("handler panic: %v", r)
			}
		}()
		done <- d.route(runCtx, taskType, payload)
	}()

	select {
	case result := <-done:
		return result
	case <-runCtx.Done():
		err := runCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			logging.WarnWithContext(
				logging.WithContext(ctx, d.logger),
				"handler timed out",
				"handler_timeout",
				logging.String(logging.FieldTaskType, string(taskType)),
				logging.Duration("timeout", d.timeout),
				logging.String(logging.FieldErrorHint, "raise queue.handler_timeout_seconds or check the downstream service"),
				logging.String(logging.FieldImpact, "item will be retried with backoff"),
			)
			return failure("handler timed out after %s", d.timeout)
		}
		return failure("handler cancelled: %v", err)
	}
}

func (d *Dispatcher) route(ctx context.Context, taskType queue.TaskType, payload map[string]any) Result {
	switch taskType {
	case queue.TaskMessageReply:
		return d.handleMessageReply(ctx, payload)
	case queue.TaskSkillInvocation:
		return d.handleSkillInvocation(ctx, payload)
	case queue.TaskScheduledAction:
		return d.handleScheduledAction(ctx, payload)
	case queue.TaskBulkIngestion:
		return d.handleBulkIngestion(ctx, payload)
	default:
		logging.WarnWithContext(
			logging.WithContext(ctx, d.logger),
			"unknown task type; completing without processing",
			"unknown_task_type",
			logging.String(logging.FieldTaskType, string(taskType)),
			logging.String(logging.FieldErrorHint, "check the producer that enqueued this item"),
			logging.String(logging.FieldImpact, "item marked completed so it is not retried"),
		)
		return Result{Success: true, Error: fmt.Sprintf("unknown task type %q; skipped", taskType)}
	}
}

func stringField(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func paramsField(payload map[string]any) map[string]any {
	if params, ok := payload["params"].(map[string]any); ok {
		return params
	}
	return map[string]any{}
}

package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/hashicorp/go-multierror"

	"courier/internal/api"
	"courier/internal/config"
	"courier/internal/logging"
	"courier/internal/notifications"
	"courier/internal/orchestrator"
	"courier/internal/preflight"
	"courier/internal/queue"
	"courier/internal/queue/backend"
)

// ErrAlreadyRunning is returned by Start when processing is already active.
var ErrAlreadyRunning = errors.New("daemon already running")

// PreflightFunc runs readiness checks before the pools start.
type PreflightFunc func(ctx context.Context, cfg *config.Config, store preflight.Pinger) []preflight.Result

// Daemon coordinates the background processing services and enforces single-instance execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    queue.AdminStore
	orch     *orchestrator.Orchestrator
	notifier notifications.Service
	queueSvc *api.QueueService
	logPath  string
	runCheck PreflightFunc
	shutdown func()

	lockPath string
	lock     *flock.Flock
	api      *apiServer

	lifecycle sync.Mutex
	running   atomic.Bool
	closed    atomic.Bool

	checksMu sync.RWMutex
	checks   []preflight.Result
}

// Option customizes a Daemon.
type Option func(*Daemon)

// WithLogPath records the current log file for tailing.
func WithLogPath(path string) Option {
	return func(d *Daemon) { d.logPath = path }
}

// WithNotifier sets the notifier used by TestNotification.
func WithNotifier(notifier notifications.Service) Option {
	return func(d *Daemon) { d.notifier = notifier }
}

// WithPreflight replaces the readiness checks run by Start.
func WithPreflight(fn PreflightFunc) Option {
	return func(d *Daemon) { d.runCheck = fn }
}

// WithShutdown registers a callback that ends the hosting process.
func WithShutdown(fn func()) Option {
	return func(d *Daemon) { d.shutdown = fn }
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store queue.AdminStore, orch *orchestrator.Orchestrator, logger *slog.Logger, opts ...Option) (*Daemon, error) {
	if cfg == nil || store == nil || orch == nil {
		return nil, errors.New("daemon requires config, store, and orchestrator")
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		orch:     orch,
		queueSvc: api.NewQueueService(store),
		runCheck: preflight.RunAll,
		lockPath: cfg.LockPath(),
		lock:     flock.New(cfg.LockPath()),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.notifier == nil {
		d.notifier = notifications.NewService(cfg)
	}
	d.api = newAPIServer(cfg, d, logger)
	return d, nil
}

// Start acquires the daemon lock, runs preflight checks, and launches the
// orchestrator and the admin API.
func (d *Daemon) Start(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if d.running.Load() {
		return ErrAlreadyRunning
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another courier daemon instance is already running")
	}

	if err := d.preflight(ctx); err != nil {
		_ = d.lock.Unlock()
		return err
	}

	// Worker pools outlive the caller's context; Stop drains them.
	if err := d.orch.Start(context.WithoutCancel(ctx)); err != nil {
		_ = d.lock.Unlock()
		return fmt.Errorf("start orchestrator: %w", err)
	}

	if err := d.api.start(ctx); err != nil {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.stopTimeout())
		_ = d.orch.Stop(stopCtx)
		cancel()
		_ = d.lock.Unlock()
		return err
	}

	d.running.Store(true)
	d.logger.Info("courier daemon started",
		logging.String("lock", d.lockPath),
		logging.String("store", backend.Describe(d.cfg)),
		logging.String(logging.FieldEventType, "daemon_started"),
	)
	return nil
}

func (d *Daemon) preflight(ctx context.Context) error {
	if d.runCheck == nil {
		return nil
	}
	results := d.runCheck(ctx, d.cfg, d.store)
	d.checksMu.Lock()
	d.checks = results
	d.checksMu.Unlock()

	for _, r := range results {
		if r.Passed || !r.Optional {
			continue
		}
		logging.WarnWithContext(d.logger, "optional check failed", "preflight_optional_failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldErrorHint, "verify the collaborator URL and credentials in config"),
			logging.String(logging.FieldImpact, "items depending on it will fail and retry"),
		)
	}

	failed := preflight.Failed(results)
	if len(failed) == 0 {
		return nil
	}
	parts := make([]string, 0, len(failed))
	for _, r := range failed {
		parts = append(parts, r.Name+": "+r.Detail)
	}
	return fmt.Errorf("preflight failed: %s", strings.Join(parts, "; "))
}

func (d *Daemon) stopTimeout() time.Duration {
	return time.Duration(d.cfg.Queue.DrainTimeoutSeconds)*time.Second + 15*time.Second
}

// Stop drains the orchestrator, stops the admin API, and releases the daemon
// lock. Stop when not running is a no-op.
func (d *Daemon) Stop(ctx context.Context) error {
	d.lifecycle.Lock()
	defer d.lifecycle.Unlock()

	if !d.running.Load() {
		return nil
	}

	d.api.stop(ctx)
	err := d.orch.Stop(ctx)
	if unlockErr := d.lock.Unlock(); unlockErr != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(unlockErr))
	}
	d.running.Store(false)
	d.logger.Info("courier daemon stopped", logging.String(logging.FieldEventType, "daemon_stopped"))
	return err
}

// RequestShutdown stops processing and asks the hosting process to exit.
func (d *Daemon) RequestShutdown(ctx context.Context) error {
	err := d.Stop(ctx)
	if d.shutdown != nil {
		d.shutdown()
	}
	return err
}

// Close stops the daemon and releases the store. Errors from each step are
// aggregated.
func (d *Daemon) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	var result *multierror.Error
	stopCtx, cancel := context.WithTimeout(context.Background(), d.stopTimeout())
	defer cancel()
	if err := d.Stop(stopCtx); err != nil {
		result = multierror.Append(result, fmt.Errorf("stop daemon: %w", err))
	}
	if err := d.store.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("close store: %w", err))
	}
	return result.ErrorOrNil()
}

// Running reports whether the worker pools are active.
func (d *Daemon) Running() bool {
	return d.running.Load()
}

// Enqueue validates an API request and hands it to the orchestrator.
func (d *Daemon) Enqueue(ctx context.Context, req api.EnqueueRequest) (string, error) {
	orchReq, err := req.ToOrchestrator()
	if err != nil {
		return "", err
	}
	return d.orch.Enqueue(ctx, orchReq)
}

// ListQueue returns queue items matching the filter.
func (d *Daemon) ListQueue(ctx context.Context, filter queue.ListFilter) ([]api.QueueItem, error) {
	return d.queueSvc.List(ctx, filter)
}

// QueueStats returns per-status counts with every status present.
func (d *Daemon) QueueStats(ctx context.Context) (map[string]int, error) {
	return d.queueSvc.Stats(ctx)
}

// DescribeItem returns a single item, or nil when it does not exist.
func (d *Daemon) DescribeItem(ctx context.Context, id string) (*api.QueueItem, error) {
	return d.queueSvc.Describe(ctx, id)
}

// RetryDead moves the given DEAD items back to QUEUED.
func (d *Daemon) RetryDead(ctx context.Context, ids []string) (api.RetryItemsResult, error) {
	result, err := api.RetryDeadItemsByID(ctx, daemonActions{d}, ids)
	if err != nil {
		return result, err
	}
	if result.UpdatedCount > 0 {
		d.logger.Info("dead items retried",
			logging.Int64("updated_count", result.UpdatedCount),
			logging.String(logging.FieldEventType, "queue_retry"),
		)
	}
	return result, nil
}

type daemonActions struct{ d *Daemon }

func (a daemonActions) Describe(ctx context.Context, id string) (*api.QueueItem, error) {
	return a.d.queueSvc.Describe(ctx, id)
}

func (a daemonActions) Retry(ctx context.Context, id string) error {
	return a.d.store.Retry(ctx, id)
}

// RequeueStale returns PROCESSING items older than timeout to QUEUED. A nil
// timeout uses the configured stale timeout; zero requeues every PROCESSING item.
func (d *Daemon) RequeueStale(ctx context.Context, timeout *time.Duration) (int64, error) {
	window := time.Duration(d.cfg.Queue.StaleTimeoutSeconds) * time.Second
	if timeout != nil {
		window = *timeout
	}
	n, err := d.store.RequeueStale(ctx, window)
	if err != nil {
		return 0, err
	}
	d.logger.Info("stale items requeued",
		logging.Int64("count", n),
		logging.Duration("stale_timeout", window),
		logging.String(logging.FieldEventType, "queue_requeue_stale"),
	)
	return n, nil
}

// Purge removes COMPLETED and DEAD items older than the given windows. Nil
// windows use the configured retention.
func (d *Daemon) Purge(ctx context.Context, completedOlderThan, deadOlderThan *time.Duration) (api.MaintenanceResult, error) {
	completed := time.Duration(d.cfg.Queue.CompletedRetentionHours) * time.Hour
	if completedOlderThan != nil {
		completed = *completedOlderThan
	}
	dead := time.Duration(d.cfg.Queue.DeadRetentionDays) * 24 * time.Hour
	if deadOlderThan != nil {
		dead = *deadOlderThan
	}

	var result api.MaintenanceResult
	var errs *multierror.Error
	n, err := d.store.PurgeCompleted(ctx, completed)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("purge completed: %w", err))
	}
	result.PurgedCompleted = n
	n, err = d.store.PurgeDead(ctx, dead)
	if err != nil {
		errs = multierror.Append(errs, fmt.Errorf("purge dead: %w", err))
	}
	result.PurgedDead = n

	d.logger.Info("queue purged",
		logging.Int64("completed", result.PurgedCompleted),
		logging.Int64("dead", result.PurgedDead),
		logging.String(logging.FieldEventType, "queue_purge"),
	)
	return result, errs.ErrorOrNil()
}

// TestNotification triggers a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) api.DaemonStatus {
	d.checksMu.RLock()
	checks := api.FromPreflight(d.checks)
	d.checksMu.RUnlock()

	status := api.DaemonStatus{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StoreBackend: d.cfg.Store.Backend,
		LockFilePath: d.lockPath,
		APIBind:      d.api.address(),
		Queue:        api.FromOrchestratorStatus(d.orch.Status(ctx)),
		Checks:       checks,
	}
	if d.cfg.Store.Backend == config.BackendSQLite {
		status.QueueDBPath = d.cfg.QueueDBPath()
	}
	return status
}

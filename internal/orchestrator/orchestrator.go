package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"courier/internal/dispatch"
	"courier/internal/logging"
	"courier/internal/notifications"
	"courier/internal/queue"
)

// Processor runs one item's task. dispatch.Dispatcher satisfies it.
type Processor interface {
	Process(ctx context.Context, taskType queue.TaskType, payload map[string]any) dispatch.Result
}

// State is the orchestrator lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateRunning  State = "running"
	StateStopping State = "stopping"
)

// Orchestrator owns the worker pools and the housekeeping loop.
type Orchestrator struct {
	cfg       Config
	store     queue.Store
	processor Processor
	logger    *slog.Logger
	notifier  notifications.Service
	clock     queue.Clock
	metrics   *metrics

	// lifecycle serializes Start and Stop; mu guards the fields below it.
	lifecycle sync.Mutex

	mu               sync.RWMutex
	state            State
	workers          int
	drain            chan struct{}
	cancelWorkers    context.CancelFunc
	cancelHousekeep  context.CancelFunc
	workerWG         sync.WaitGroup
	housekeepWG      sync.WaitGroup
	lastErr          error
	lastHousekeeping housekeepingReport
}

// Option customizes an Orchestrator.
type Option func(*options)

type options struct {
	logger        *slog.Logger
	notifier      notifications.Service
	clock         queue.Clock
	meterProvider metric.MeterProvider
}

// WithLogger sets the base logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithNotifier sets the dead-letter notifier.
func WithNotifier(notifier notifications.Service) Option {
	return func(o *options) { o.notifier = notifier }
}

// WithClock overrides the clock used for enqueue timestamps.
func WithClock(clock queue.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithMeterProvider overrides the global otel meter provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = provider }
}

// New constructs a stopped orchestrator.
func New(cfg Config, store queue.Store, processor Processor, opts ...Option) *Orchestrator {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NewNop()
	}
	if o.notifier == nil {
		o.notifier = notifications.NewService(nil)
	}
	if o.clock == nil {
		o.clock = queue.SystemClock
	}
	if o.meterProvider == nil {
		o.meterProvider = otel.GetMeterProvider()
	}
	logger := logging.NewComponentLogger(o.logger, "orchestrator")
	return &Orchestrator{
		cfg:       cfg.withDefaults(),
		store:     store,
		processor: processor,
		logger:    logger,
		notifier:  o.notifier,
		clock:     o.clock,
		metrics:   newMetrics(o.meterProvider, store, logger),
		state:     StateStopped,
	}
}

func (o *Orchestrator) setState(state State) {
	o.mu.Lock()
	o.state = state
	o.mu.Unlock()
}

func (o *Orchestrator) setLastError(err error) {
	if err == nil {
		return
	}
	o.mu.Lock()
	o.lastErr = err
	o.mu.Unlock()
}

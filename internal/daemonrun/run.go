package daemonrun

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"courier/internal/config"
	"courier/internal/daemon"
	"courier/internal/ipc"
	"courier/internal/logging"
	"courier/internal/notifications"
	"courier/internal/orchestrator"
	"courier/internal/queue/backend"
)

const (
	currentLogName    = "courier.log"
	retentionInterval = 24 * time.Hour
	shutdownGrace     = 10 * time.Second
)

// Options configures daemon process runtime behavior.
type Options struct {
	LogLevel    string
	Development bool
	Diagnostic  bool
}

// Run starts the courier daemon and blocks until a signal or a shutdown
// request ends it.
func Run(cmdCtx context.Context, cfg *config.Config, opts Options) error {
	if cfg == nil {
		return fmt.Errorf("config is required")
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	signalCtx, stopSignals := signal.NotifyContext(cmdCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()
	runCtx, cancel := context.WithCancel(signalCtx)
	defer cancel()

	runID := time.Now().UTC().Format("20060102T150405.000Z")
	logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("courier-%s.log", runID))
	level := opts.LogLevel
	if level == "" {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stdout", logPath},
		Development: opts.Development,
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	if opts.Diagnostic {
		logger = withDiagnosticLog(logger, cfg.Paths.LogDir, runID)
	}

	if err := ensureCurrentLogPointer(cfg.Paths.LogDir, logPath); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to update %s link: %v\n", currentLogName, err)
	}
	pruneLogs(logger, cfg, logPath)

	pidPath := cfg.PIDPath()
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("write pid file: %w", err)
	}
	defer os.Remove(pidPath)

	store, err := backend.Open(runCtx, cfg, nil)
	if err != nil {
		logging.ErrorWithContext(logger, "open queue store", "store_open_failed",
			logging.Error(err),
			logging.String("backend", cfg.Store.Backend),
			logging.String(logging.FieldErrorHint, "check store settings in config.toml"),
		)
		return err
	}

	dispatcher, err := BuildDispatcher(runCtx, cfg, logger)
	if err != nil {
		_ = store.Close()
		return err
	}
	defer dispatcher.Close()

	notifier := notifications.NewService(cfg)
	orch := orchestrator.New(orchestrator.FromConfig(cfg), store, dispatcher,
		orchestrator.WithLogger(logger),
		orchestrator.WithNotifier(notifier),
	)
	d, err := daemon.New(cfg, store, orch, logger,
		daemon.WithLogPath(logPath),
		daemon.WithNotifier(notifier),
		daemon.WithShutdown(cancel),
	)
	if err != nil {
		_ = store.Close()
		return fmt.Errorf("create daemon: %w", err)
	}
	defer d.Close()

	ipcServer, err := ipc.NewServer(runCtx, cfg.SocketPath(), d, logger)
	if err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	ipcServer.Serve()

	if err := d.Start(runCtx); err != nil {
		logging.WarnWithContext(logger, "daemon start failed", "daemon_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the reported problem, then run courier start"),
			logging.String(logging.FieldImpact, "queue items are not processed until the daemon starts"),
		)
	}

	group, groupCtx := errgroup.WithContext(runCtx)
	group.Go(func() error {
		ticker := time.NewTicker(retentionInterval)
		defer ticker.Stop()
		for {
			select {
			case <-groupCtx.Done():
				return nil
			case <-ticker.C:
				pruneLogs(logger, cfg, logPath)
			}
		}
	})
	group.Go(func() error {
		<-groupCtx.Done()
		logger.Info("courier daemon shutting down", logging.String(logging.FieldEventType, "daemon_shutdown"))
		stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(groupCtx),
			time.Duration(cfg.Queue.DrainTimeoutSeconds)*time.Second+shutdownGrace)
		defer stopCancel()
		err := d.Stop(stopCtx)
		ipcServer.Close()
		return err
	})

	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("daemon shutdown: %w", err)
	}
	return nil
}

// withDiagnosticLog tees a debug-level JSON log next to the regular one.
func withDiagnosticLog(logger *slog.Logger, logDir, runID string) *slog.Logger {
	debugDir := filepath.Join(logDir, "debug")
	if err := os.MkdirAll(debugDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to create debug log directory: %v\n", err)
		return logger
	}
	debugPath := filepath.Join(debugDir, fmt.Sprintf("courier-%s.log", runID))
	debugLogger, err := logging.New(logging.Options{
		Level:       "debug",
		Format:      "json",
		OutputPaths: []string{debugPath},
		Development: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warn: unable to initialize debug logger: %v\n", err)
		return logger
	}
	logger = logging.TeeLogger(logger, debugLogger.Handler())
	logger.Info("diagnostic mode enabled",
		logging.String(logging.FieldEventType, "diagnostic_mode_enabled"),
		logging.String("debug_log_path", debugPath),
	)
	return logger
}

func pruneLogs(logger *slog.Logger, cfg *config.Config, current string) {
	logging.CleanupOldLogs(logger, cfg.Logging.RetentionDays,
		logging.RetentionTarget{Dir: cfg.Paths.LogDir, Pattern: "courier-*.log", Exclude: []string{current}},
		logging.RetentionTarget{Dir: filepath.Join(cfg.Paths.LogDir, "debug"), Pattern: "courier-*.log"},
	)
}

// ensureCurrentLogPointer points logDir/courier.log at target, falling back
// to a hard link where symlinks are unavailable.
func ensureCurrentLogPointer(logDir, target string) error {
	if logDir == "" || target == "" {
		return nil
	}
	current := filepath.Join(logDir, currentLogName)
	if err := os.Remove(current); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove existing log pointer: %w", err)
	}
	if err := os.Symlink(target, current); err == nil {
		return nil
	}
	if err := os.Link(target, current); err != nil {
		return fmt.Errorf("link log pointer: %w", err)
	}
	return nil
}

func writePIDFile(path string) error {
	if path == "" {
		return nil
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

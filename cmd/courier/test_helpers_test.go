package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"courier/internal/config"
	"courier/internal/daemon"
	"courier/internal/dispatch"
	"courier/internal/ipc"
	"courier/internal/logging"
	"courier/internal/orchestrator"
	"courier/internal/preflight"
	"courier/internal/queue"
	"courier/internal/testsupport"
)

type okProcessor struct{}

func (okProcessor) Process(context.Context, queue.TaskType, map[string]any) dispatch.Result {
	return dispatch.Result{Success: true}
}

func passingPreflight(context.Context, *config.Config, preflight.Pinger) []preflight.Result {
	return []preflight.Result{{Name: "Data directory", Passed: true}}
}

type cliTestEnv struct {
	cfg        *config.Config
	store      queue.AdminStore
	configPath string
	logPath    string
}

// setupCLITestEnv writes a config file pointing at a short temp directory so
// the control socket path stays under the unix socket length limit.
func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base, err := os.MkdirTemp("", "ccli")
	if err != nil {
		t.Fatalf("mkdir temp: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(base) })

	cfg := testsupport.NewConfig(t, testsupport.WithWorkers(1, 1))
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.LogDir = filepath.Join(base, "logs")

	configPath := filepath.Join(base, "config.toml")
	writeTestConfig(t, configPath, cfg)

	store := testsupport.MustOpenStore(t, cfg)
	return &cliTestEnv{
		cfg:        cfg,
		store:      store,
		configPath: configPath,
		logPath:    filepath.Join(cfg.Paths.LogDir, currentLogName),
	}
}

// startDaemon serves the control socket in-process for the env.
func (env *cliTestEnv) startDaemon(t *testing.T) *daemon.Daemon {
	t.Helper()

	logger := logging.NewNop()
	orch := orchestrator.New(orchestrator.FromConfig(env.cfg), env.store, okProcessor{}, orchestrator.WithLogger(logger))
	d, err := daemon.New(env.cfg, env.store, orch, logger,
		daemon.WithPreflight(passingPreflight),
		daemon.WithLogPath(env.logPath),
	)
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = d.Stop(stopCtx)
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	srv, err := ipc.NewServer(ctx, env.cfg.SocketPath(), d, logger)
	if err != nil {
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping socket test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()
	t.Cleanup(srv.Close)
	return d
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	flags := []string{}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\ndata_dir = %q\nlog_dir = %q\napi_bind = %q\n\n[queue]\ninteractive_workers = %d\nbackground_workers = %d\ndrain_timeout_seconds = %d\n",
		cfg.Paths.DataDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
		cfg.Queue.InteractiveWorkers,
		cfg.Queue.BackgroundWorkers,
		cfg.Queue.DrainTimeoutSeconds,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func appendLine(path, line string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(line + "\n")
	return err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

package daemonctl

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"courier/internal/api"
	"courier/internal/testsupport"
)

func TestReadPID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "courierd.pid")

	pid, err := ReadPID(path)
	if err != nil || pid != 0 {
		t.Fatalf("missing pid file = %d, %v", pid, err)
	}

	if err := os.WriteFile(path, []byte("4242\n"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	pid, err = ReadPID(path)
	if err != nil || pid != 4242 {
		t.Fatalf("pid = %d, %v", pid, err)
	}

	if err := os.WriteFile(path, []byte("garbage"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := ReadPID(path); err == nil {
		t.Fatal("expected error for malformed pid file")
	}
}

func TestForceKillRefusesSelf(t *testing.T) {
	path := filepath.Join(t.TempDir(), "courierd.pid")
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if _, err := ForceKillProcess(path, "", 0); err == nil || !strings.Contains(err.Error(), "refusing") {
		t.Fatalf("expected refusal, got %v", err)
	}
}

func TestForceKillWithoutPID(t *testing.T) {
	if _, err := ForceKillProcess(filepath.Join(t.TempDir(), "none.pid"), "", 0); err == nil {
		t.Fatal("expected error without pid")
	}
}

func TestStopAndTerminateNotRunning(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := StopAndTerminate(cfg, 0); err != ErrDaemonNotRunning {
		t.Fatalf("expected ErrDaemonNotRunning, got %v", err)
	}
}

func TestBuildStatusSnapshotOffline(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	testsupport.MustOpenStore(t, cfg)

	snap, err := BuildStatusSnapshot(context.Background(), cfg)
	if err != nil {
		t.Fatalf("BuildStatusSnapshot: %v", err)
	}
	if snap.Reachable {
		t.Fatal("expected daemon to be unreachable")
	}
	if snap.Stats["queued"] != 0 {
		t.Fatalf("unexpected stats: %v", snap.Stats)
	}
	if _, ok := snap.Stats["dead"]; !ok {
		t.Fatalf("expected zero-filled stats, got %v", snap.Stats)
	}
	if len(snap.System) == 0 || snap.System[0].Label != "Courier" || snap.System[0].Severity != SeverityWarn {
		t.Fatalf("unexpected system lines: %+v", snap.System)
	}
	if snap.Summary.Severity == SeverityError {
		t.Fatalf("unexpected failing checks: %+v", snap.Checks)
	}
}

func TestBuildCheckSummary(t *testing.T) {
	tests := []struct {
		name     string
		checks   []api.CheckStatus
		severity string
		detail   string
	}{
		{name: "none", severity: SeverityInfo, detail: "No checks ran"},
		{name: "all passed", checks: []api.CheckStatus{{Passed: true}, {Passed: true}}, severity: SeverityOK, detail: "2/2 passed"},
		{name: "optional failing", checks: []api.CheckStatus{{Passed: true}, {Optional: true}}, severity: SeverityWarn, detail: "1/2 passed (failing: 0 required, 1 optional)"},
		{name: "required failing", checks: []api.CheckStatus{{}, {Optional: true}}, severity: SeverityError, detail: "0/2 passed (failing: 1 required, 1 optional)"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BuildCheckSummary(tt.checks)
			if got.Severity != tt.severity || got.Detail != tt.detail {
				t.Fatalf("summary = %+v", got)
			}
		})
	}
}

package daemonctl

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"courier/internal/api"
	"courier/internal/config"
	"courier/internal/ipc"
	"courier/internal/preflight"
	"courier/internal/queue/backend"
)

// Severity levels used by status lines.
const (
	SeverityOK    = "ok"
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// StatusLine is one row of the human status view.
type StatusLine struct {
	Label    string
	Severity string
	Detail   string
}

// Snapshot combines daemon status with offline fallbacks.
type Snapshot struct {
	Reachable bool
	Daemon    api.DaemonStatus
	Stats     map[string]int
	Checks    []api.CheckStatus
	System    []StatusLine
	Summary   StatusLine
}

// BuildStatusSnapshot asks the daemon for status. When it is not reachable,
// queue counts are read straight from the store and preflight runs locally.
func BuildStatusSnapshot(ctx context.Context, cfg *config.Config) (*Snapshot, error) {
	if cfg == nil {
		return nil, errors.New("configuration not available")
	}
	snap := &Snapshot{}

	if client, err := ipc.Dial(cfg.SocketPath()); err == nil {
		defer client.Close()
		if status, statusErr := client.Status(); statusErr == nil {
			snap.Reachable = true
			snap.Daemon = *status
			snap.Checks = status.Checks
			snap.Stats = status.Queue.Counts
		}
	}

	if !snap.Reachable {
		queryCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		snap.Daemon.StoreBackend = cfg.Store.Backend
		snap.Daemon.LockFilePath = cfg.LockPath()

		store, openErr := backend.Open(queryCtx, cfg, nil)
		if openErr == nil {
			if stats, statsErr := api.NewQueueService(store).Stats(queryCtx); statsErr == nil {
				snap.Stats = stats
			}
			snap.Checks = api.FromPreflight(preflight.RunAll(queryCtx, cfg, store))
			_ = store.Close()
		} else {
			snap.Checks = api.FromPreflight(preflight.RunAll(queryCtx, cfg, nil))
			snap.Checks = append(snap.Checks, api.CheckStatus{
				Name:   fmt.Sprintf("Store (%s)", cfg.Store.Backend),
				Detail: openErr.Error(),
			})
		}
	}
	if snap.Stats == nil {
		snap.Stats = map[string]int{}
	}

	snap.System = BuildSystemChecks(cfg, snap)
	snap.Summary = BuildCheckSummary(snap.Checks)
	return snap, nil
}

// BuildSystemChecks renders the headline status lines.
func BuildSystemChecks(cfg *config.Config, snap *Snapshot) []StatusLine {
	lines := make([]StatusLine, 0, 5)
	switch {
	case snap.Reachable && snap.Daemon.Running:
		lines = append(lines, StatusLine{Label: "Courier", Severity: SeverityOK, Detail: fmt.Sprintf("Running (pid %d)", snap.Daemon.PID)})
	case snap.Reachable:
		lines = append(lines, StatusLine{Label: "Courier", Severity: SeverityWarn, Detail: "Process up, worker pools stopped (run `courier start`)"})
	default:
		lines = append(lines, StatusLine{Label: "Courier", Severity: SeverityWarn, Detail: "Not running (run `courier start`)"})
	}

	lines = append(lines, StatusLine{Label: "Store", Severity: SeverityInfo, Detail: backend.Describe(cfg)})

	if snap.Reachable && snap.Daemon.APIBind != "" {
		lines = append(lines, StatusLine{Label: "Admin API", Severity: SeverityOK, Detail: snap.Daemon.APIBind})
	}

	if strings.TrimSpace(cfg.Gateway.BaseURL) != "" {
		lines = append(lines, StatusLine{Label: "Gateway", Severity: SeverityOK, Detail: cfg.Gateway.BaseURL})
	} else {
		lines = append(lines, StatusLine{Label: "Gateway", Severity: SeverityWarn, Detail: "Not configured"})
	}

	if strings.TrimSpace(cfg.Notifications.NtfyTopic) != "" {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: SeverityOK, Detail: "Configured"})
	} else {
		lines = append(lines, StatusLine{Label: "Notifications", Severity: SeverityInfo, Detail: "Not configured"})
	}
	return lines
}

// BuildCheckSummary computes aggregate preflight readiness.
func BuildCheckSummary(checks []api.CheckStatus) StatusLine {
	summary := StatusLine{Label: "Checks"}
	if len(checks) == 0 {
		summary.Severity = SeverityInfo
		summary.Detail = "No checks ran"
		return summary
	}

	missingRequired, missingOptional := 0, 0
	for _, check := range checks {
		if check.Passed {
			continue
		}
		if check.Optional {
			missingOptional++
		} else {
			missingRequired++
		}
	}
	passed := len(checks) - missingRequired - missingOptional
	summary.Severity = SeverityOK
	if missingRequired > 0 {
		summary.Severity = SeverityError
	} else if missingOptional > 0 {
		summary.Severity = SeverityWarn
	}
	summary.Detail = fmt.Sprintf("%d/%d passed", passed, len(checks))
	if passed != len(checks) {
		summary.Detail = fmt.Sprintf("%d/%d passed (failing: %d required, %d optional)", passed, len(checks), missingRequired, missingOptional)
	}
	return summary
}

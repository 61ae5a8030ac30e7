package logging

import (
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// RetentionTarget selects files in Dir whose names match Pattern. Paths in
// Exclude are never removed.
type RetentionTarget struct {
	Dir     string
	Pattern string
	Exclude []string
}

// PruneResult counts what a retention pass did.
type PruneResult struct {
	Removed int
	Failed  int
}

// CleanupOldLogs removes regular files older than retentionDays from each
// target. Symlinks such as the current-log pointer are left alone. A
// retentionDays of 0 disables pruning.
func CleanupOldLogs(logger *slog.Logger, retentionDays int, targets ...RetentionTarget) PruneResult {
	var result PruneResult
	if retentionDays <= 0 {
		return result
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	for _, target := range targets {
		pruneTarget(logger, target, cutoff, &result)
	}
	if result.Removed > 0 && logger != nil {
		logger.Info("old logs pruned",
			Int("removed", result.Removed),
			Int("failed", result.Failed),
			Int("retention_days", retentionDays),
			String(FieldEventType, "logs_pruned"),
		)
	}
	return result
}

func pruneTarget(logger *slog.Logger, target RetentionTarget, cutoff time.Time, result *PruneResult) {
	dir := strings.TrimSpace(target.Dir)
	if dir == "" {
		return
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	excluded := absPaths(target.Exclude)
	pattern := strings.TrimSpace(target.Pattern)

	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		if pattern != "" {
			if ok, err := filepath.Match(pattern, entry.Name()); err != nil || !ok {
				continue
			}
		}
		path := filepath.Join(dir, entry.Name())
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		if _, skip := excluded[path]; skip {
			continue
		}
		if !olderThan(entry, cutoff) {
			continue
		}
		if err := os.Remove(path); err != nil {
			result.Failed++
			WarnWithContext(logger, "log retention could not remove file", "log_retention_failed",
				String("path", path),
				Error(err),
				String(FieldErrorHint, "check permissions on logging.log_dir"),
				String(FieldImpact, "old log file stays on disk"),
			)
			continue
		}
		result.Removed++
	}
}

func olderThan(entry fs.DirEntry, cutoff time.Time) bool {
	info, err := entry.Info()
	if err != nil {
		return false
	}
	return info.ModTime().Before(cutoff)
}

func absPaths(paths []string) map[string]struct{} {
	out := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			out[abs] = struct{}{}
		}
	}
	return out
}

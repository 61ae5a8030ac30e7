package preflight

import (
	"context"

	"courier/internal/config"
)

// minFreeBytes is the free space the SQLite data volume must keep available.
const minFreeBytes = 256 << 20

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Detail   string
	Optional bool
}

// Pinger is satisfied by every queue store backend.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RunAll executes all applicable preflight checks for the given config. A
// nil store skips the store check.
func RunAll(ctx context.Context, cfg *config.Config, store Pinger) []Result {
	if cfg == nil {
		return nil
	}

	var results []Result
	results = append(results, CheckDirectoryAccess("Data directory", cfg.Paths.DataDir))
	results = append(results, CheckDirectoryAccess("Log directory", cfg.Paths.LogDir))

	if cfg.Store.Backend == config.BackendSQLite {
		results = append(results, CheckDiskSpace("Data volume", cfg.Paths.DataDir, minFreeBytes))
	}
	if store != nil {
		results = append(results, CheckStore(ctx, cfg.Store.Backend, store))
	}

	if cfg.Gateway.BaseURL != "" {
		gateway := CheckGateway(ctx, cfg.Gateway.BaseURL, cfg.Gateway.Token)
		gateway.Optional = true
		results = append(results, gateway)
	}
	if cfg.LLM.Provider == config.ProviderOpenAI && cfg.LLM.APIKey != "" {
		llmResult := CheckLLM(ctx, "Reply LLM", cfg.LLM)
		llmResult.Optional = true
		results = append(results, llmResult)
	}
	return results
}

// Failed returns the required checks that did not pass.
func Failed(results []Result) []Result {
	var failed []Result
	for _, r := range results {
		if !r.Passed && !r.Optional {
			failed = append(failed, r)
		}
	}
	return failed
}

package preflight

import (
	"context"
	"errors"
	"fmt"

	"galleria/internal/config"
	"galleria/internal/services"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name     string
	Passed   bool
	Detail   string
	Optional bool
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckEngineBinary(cfg.Engine.Binary),
		CheckDirectoryAccess("Output directory", cfg.Paths.OutputDir),
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckLock(cfg.LockPath()),
	}
	if len(cfg.Proxy.EnabledHosts) > 0 {
		proxy := CheckProxy(ctx, cfg.Proxy.URL)
		proxy.Optional = true
		results = append(results, proxy)
	}
	return results
}

// Err folds failed required checks into one error, or nil when all passed.
func Err(results []Result) error {
	var errs []error
	for _, r := range results {
		if r.Passed || r.Optional {
			continue
		}
		errs = append(errs, fmt.Errorf("%s: %s", r.Name, r.Detail))
	}
	if len(errs) == 0 {
		return nil
	}
	return services.Wrap(services.ErrConfiguration, "preflight", "checks", "Preflight failed", errors.Join(errs...))
}

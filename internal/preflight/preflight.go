package preflight

import (
	"context"

	"boletodesk/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes every preflight check for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDirectoryAccess("Preview directory", cfg.Paths.PreviewDir),
	}
	results = append(results, CheckBackend(ctx, cfg.Backend.BaseURL, cfg.Backend.Token))
	return results
}

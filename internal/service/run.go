package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gelecek/folder-uploader/internal/model"
	"github.com/gelecek/folder-uploader/internal/observability"
)

// RegistryFromConfig resolves the upload executable and returns an empty
// Registry. observer and metrics may be nil.
func RegistryFromConfig(ctx context.Context, cfg model.Config, defaults model.Settings, observer Observer, metrics *observability.Metrics) (*Registry, error) {
	cmd, err := CommandFromConfig(cfg.Uploader)
	if err != nil {
		return nil, fmt.Errorf("resolving upload executable: %w", err)
	}
	slog.DebugContext(ctx, "upload executable", "interpreter", cmd.Interpreter, "script", cmd.Script)

	return NewRegistry(cmd,
		WithDefaults(defaults),
		WithObserver(observer),
		WithMetrics(metrics),
	), nil
}

// SupervisorFromConfig builds a Supervisor polling a new Registry at the
// configured interval.
func SupervisorFromConfig(ctx context.Context, cfg model.Config, defaults model.Settings, observer Observer, metrics *observability.Metrics) (*Supervisor, error) {
	registry, err := RegistryFromConfig(ctx, cfg, defaults, observer, metrics)
	if err != nil {
		return nil, err
	}
	return NewSupervisor(registry, cfg.Poll.Interval.Std()), nil
}

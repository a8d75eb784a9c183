package commands

import (
	"context"
	"fmt"

	"github.com/FranksOps/partscout/internal/config"
	"github.com/FranksOps/partscout/internal/storage"
	"github.com/FranksOps/partscout/internal/storage/csvbackend"
	"github.com/FranksOps/partscout/internal/storage/jsonbackend"
	"github.com/FranksOps/partscout/internal/storage/postgres"
	"github.com/FranksOps/partscout/internal/storage/sqlite"
)

// openBackends opens every configured output backend in order.
func openBackends(ctx context.Context, cfg *config.Config) (storage.Backend, error) {
	var opened []storage.Backend
	for _, name := range cfg.Output.Backends {
		var (
			b   storage.Backend
			err error
		)
		switch name {
		case config.BackendJSON:
			b, err = jsonbackend.New(cfg.Output.Dir)
		case config.BackendCSV:
			b, err = csvbackend.New(cfg.Output.Dir)
		case config.BackendSQLite:
			b, err = sqlite.New(cfg.Output.SQLiteDSN)
		case config.BackendPostgres:
			b, err = postgres.New(ctx, cfg.Output.PostgresDSN)
		default:
			err = fmt.Errorf("unknown output backend %q", name)
		}
		if err != nil {
			for _, o := range opened {
				_ = o.Close()
			}
			return nil, fmt.Errorf("open %s backend: %w", name, err)
		}
		opened = append(opened, b)
	}
	return storage.Multi(opened...), nil
}

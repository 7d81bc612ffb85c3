package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BDNK1/lowflow/cli/internal/config"
	"github.com/BDNK1/lowflow/plugins/memory"
	"github.com/BDNK1/lowflow/plugins/postgres"
	"github.com/BDNK1/lowflow/plugins/redis"
	"github.com/BDNK1/lowflow/plugins/rest"
	"github.com/BDNK1/lowflow/runtime"
)

// projectWriter is implemented by stores that can be seeded.
type projectWriter interface {
	runtime.RecordStore
	PutProject(ctx context.Context, project runtime.Project, fields []runtime.Field) error
}

// openStore builds the configured record store. The returned function
// releases it.
func openStore(ctx context.Context, l *slog.Logger, cfg *config.AppConfig) (runtime.RecordStore, func(), error) {
	noop := func() {}

	switch cfg.Store.Kind {
	case "rest":
		s, err := rest.New(cfg.Store.Rest)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil

	case "redis":
		s, err := redis.New(cfg.Store.Redis)
		if err != nil {
			return nil, nil, err
		}
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, nil, fmt.Errorf("redis store: %w", err)
		}
		closer := func() { s.Close() }
		if err := seed(ctx, l, cfg, s); err != nil {
			closer()
			return nil, nil, err
		}
		return s, closer, nil

	case "postgres":
		s, err := postgres.Open(ctx, cfg.Store.Postgres)
		if err != nil {
			return nil, nil, err
		}
		closer := func() { s.Close() }
		if err := s.Migrate(ctx); err != nil {
			closer()
			return nil, nil, err
		}
		if err := seed(ctx, l, cfg, s); err != nil {
			closer()
			return nil, nil, err
		}
		return s, closer, nil

	default:
		if cfg.Store.Seed == "" {
			return nil, nil, fmt.Errorf("memory store needs a seed file")
		}
		s, err := memory.LoadFile(cfg.Store.Seed)
		if err != nil {
			return nil, nil, err
		}
		l.InfoContext(ctx, fmt.Sprintf("Loaded seed %s into memory store", cfg.Store.Seed))
		return s, noop, nil
	}
}

// seed copies the configured project from the seed document into dst,
// unless dst already holds it.
func seed(ctx context.Context, l *slog.Logger, cfg *config.AppConfig, dst projectWriter) error {
	if cfg.Store.Seed == "" {
		return nil
	}
	if _, err := dst.GetProject(ctx, cfg.Project); err == nil {
		l.InfoContext(ctx, fmt.Sprintf("Project %s already stored, skipping seed", cfg.Project))
		return nil
	}
	src, err := memory.LoadFile(cfg.Store.Seed)
	if err != nil {
		return err
	}
	project, err := src.GetProject(ctx, cfg.Project)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	fields, err := src.ListFields(ctx, cfg.Project)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if err := dst.PutProject(ctx, *project, fields); err != nil {
		return fmt.Errorf("seed: %w", err)
	}

	total := 0
	for _, c := range project.Collections {
		for _, row := range src.Records(c.ID) {
			if _, err := dst.InsertRecord(ctx, c.ID, row); err != nil {
				return fmt.Errorf("seed %s: %w", c.ID, err)
			}
			total++
		}
	}
	l.InfoContext(ctx, fmt.Sprintf("Seeded project %s with %d record(s)", cfg.Project, total))
	return nil
}

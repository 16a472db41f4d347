package store

import (
	"context"
	"fmt"

	"github.com/corvex/corvex/internal/store/local"
	"github.com/corvex/corvex/internal/store/memory"
	"github.com/corvex/corvex/internal/store/postgres"
	s3store "github.com/corvex/corvex/internal/store/s3"
)

// Config selects and configures a backend.
type Config struct {
	Backend string // memory, local, s3, postgres

	Local    local.Config
	S3       s3store.Config
	Postgres postgres.Config
}

// New opens the configured backend, wrapped with metrics.
func New(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case "memory":
		s = memory.New()
	case "local", "":
		s, err = local.New(cfg.Local)
	case "s3":
		s, err = s3store.New(ctx, cfg.S3)
	case "postgres":
		s, err = postgres.New(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Backend, err)
	}
	return Instrument(s), nil
}

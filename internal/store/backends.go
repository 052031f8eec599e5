package store

import (
	"context"
	"fmt"

	"github.com/soyeahso/hotline/internal/config"
	"github.com/soyeahso/hotline/internal/domain"
)

// OpenCheckpointStore returns the checkpoint backend named by cfg. The
// SQLite backend reuses db.
func OpenCheckpointStore(ctx context.Context, cfg config.CheckpointConfig, db *DB) (domain.CheckpointStore, error) {
	switch cfg.Backend {
	case "", "sqlite":
		if db == nil {
			return nil, fmt.Errorf("sqlite checkpoint backend needs a database")
		}
		return NewSQLiteCheckpointStore(db), nil
	case "mongo":
		s, err := NewMongoCheckpointStore(ctx, cfg.URI, cfg.Database, cfg.Collection)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		s, err := NewRedisCheckpointStore(ctx, cfg.URI, cfg.KeyPrefix)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemoryCheckpointStore(), nil
	default:
		return nil, fmt.Errorf("unknown checkpoint backend %q", cfg.Backend)
	}
}

// OpenCaseStore returns the case backend named by cfg.
func OpenCaseStore(ctx context.Context, cfg config.CasesConfig, db *DB) (domain.CaseStore, error) {
	switch cfg.Backend {
	case "", "sqlite":
		if db == nil {
			return nil, fmt.Errorf("sqlite case backend needs a database")
		}
		return NewSQLiteCaseStore(db), nil
	case "postgres":
		s, err := NewPostgresCaseStore(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemoryCaseStore(), nil
	default:
		return nil, fmt.Errorf("unknown case backend %q", cfg.Backend)
	}
}

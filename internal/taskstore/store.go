// Package taskstore persists scan state so the API can report on scans that
// run in a worker.
package taskstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"viammo.app/tripscan/core/config"
	"viammo.app/tripscan/core/db"
	"viammo.app/tripscan/internal/model"
)

var ErrNotFound = errors.New("scan not found")

// Store holds one ScanState per scan id.
type Store interface {
	Put(ctx context.Context, state *model.ScanState) error
	Get(ctx context.Context, id int64) (*model.ScanState, error)

	// Update applies fn to the stored state atomically. fn errors abort the
	// update and are returned unchanged.
	Update(ctx context.Context, id int64, fn func(*model.ScanState) error) error
}

// Open builds the store selected by cfg.TaskStore.Backend. The returned
// closer releases anything Open created; rdb is borrowed.
func Open(ctx context.Context, cfg config.Config, rdb *redis.Client) (Store, func(), error) {
	switch cfg.TaskStore.Backend {
	case "memory":
		return NewMemoryStore(), func() {}, nil
	case "redis":
		if rdb == nil {
			return nil, nil, errors.New("redis task store needs a redis client")
		}
		return NewRedisStore(rdb, cfg.TaskStore.TTL), func() {}, nil
	case "postgres":
		database, err := db.New(ctx, cfg.DB)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to database: %w", err)
		}
		store := NewPostgresStore(database.Pool())
		if err := store.EnsureSchema(ctx); err != nil {
			database.Close()
			return nil, nil, err
		}
		return store, database.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown task store backend %q", cfg.TaskStore.Backend)
	}
}

func touch(state *model.ScanState) {
	now := time.Now().UTC()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = now
	}
}

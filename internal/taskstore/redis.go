package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"viammo.app/tripscan/internal/model"
)

const maxUpdateAttempts = 5

// RedisStore keeps each scan as a JSON string that expires ttl after its last write.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func scanKey(id int64) string {
	return fmt.Sprintf("tripscan:scan:%d", id)
}

func (s *RedisStore) Put(ctx context.Context, state *model.ScanState) error {
	touch(state)
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal scan %d: %w", state.ID, err)
	}
	if err := s.rdb.Set(ctx, scanKey(state.ID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("put scan %d: %w", state.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id int64) (*model.ScanState, error) {
	raw, err := s.rdb.Get(ctx, scanKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("get scan %d: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get scan %d: %w", id, err)
	}
	var state model.ScanState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode scan %d: %w", id, err)
	}
	return &state, nil
}

// Update uses WATCH so concurrent writers never lose each other's changes.
func (s *RedisStore) Update(ctx context.Context, id int64, fn func(*model.ScanState) error) error {
	key := scanKey(id)

	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					return fmt.Errorf("update scan %d: %w", id, ErrNotFound)
				}
				return err
			}

			var state model.ScanState
			if err := json.Unmarshal(raw, &state); err != nil {
				return fmt.Errorf("decode scan %d: %w", id, err)
			}
			if err := fn(&state); err != nil {
				return err
			}

			data, err := json.Marshal(state)
			if err != nil {
				return fmt.Errorf("marshal scan %d: %w", id, err)
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, data, s.ttl)
				return nil
			})
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("update scan %d: gave up after %d conflicting writes", id, maxUpdateAttempts)
}

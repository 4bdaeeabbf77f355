package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"viammo.app/tripscan/core/db"
	"viammo.app/tripscan/internal/model"
)

const schema = `CREATE TABLE IF NOT EXISTS scan_tasks (
	id         BIGINT PRIMARY KEY,
	status     TEXT NOT NULL,
	state      JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore keeps one scan_tasks row per scan. It does not expire rows.
type PostgresStore struct {
	q db.Querier
}

func NewPostgresStore(q db.Querier) *PostgresStore {
	return &PostgresStore{q: q}
}

func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.q.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating scan_tasks table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, state *model.ScanState) error {
	touch(state)
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal scan %d: %w", state.ID, err)
	}
	_, err = s.q.Exec(ctx, `
		INSERT INTO scan_tasks (id, status, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET status = EXCLUDED.status, state = EXCLUDED.state, updated_at = EXCLUDED.updated_at`,
		state.ID, string(state.Status), data, state.CreatedAt, state.UpdatedAt)
	if err != nil {
		return fmt.Errorf("put scan %d: %w", state.ID, err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id int64) (*model.ScanState, error) {
	var raw []byte
	err := s.q.QueryRow(ctx, `SELECT state FROM scan_tasks WHERE id = $1`, id).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
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

func (s *PostgresStore) Update(ctx context.Context, id int64, fn func(*model.ScanState) error) error {
	return db.WithTx(ctx, s.q, func(tx pgx.Tx) error {
		var raw []byte
		err := tx.QueryRow(ctx, `SELECT state FROM scan_tasks WHERE id = $1 FOR UPDATE`, id).Scan(&raw)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("update scan %d: %w", id, ErrNotFound)
			}
			return fmt.Errorf("lock scan %d: %w", id, err)
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
		if _, err := tx.Exec(ctx,
			`UPDATE scan_tasks SET status = $2, state = $3, updated_at = $4 WHERE id = $1`,
			id, string(state.Status), data, state.UpdatedAt); err != nil {
			return fmt.Errorf("update scan %d: %w", id, err)
		}
		return nil
	})
}

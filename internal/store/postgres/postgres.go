// Package postgres is the durable Store backend, modeled on
// leanlp-BTC-coinjoin/internal/db's pgxpool connect/init-schema/persist
// shape but scoped to this protocol's one table: one row per named
// preprocessed server.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/moya-app/overlap-psi/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS preprocessed_servers (
	name        TEXT PRIMARY KEY,
	parameters  JSONB NOT NULL,
	oprf_key    TEXT NOT NULL,
	transposed  JSONB NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// Store is a Postgres-backed store.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Connect opens a pool against connStr and verifies connectivity.
func Connect(ctx context.Context, connStr string) (*Store, error) {
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("postgres: connecting: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

// InitSchema creates the preprocessed_servers table if it doesn't exist.
func (s *Store) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: initializing schema: %w", err)
	}
	return nil
}

// SavePreprocessed upserts data under name.
func (s *Store) SavePreprocessed(ctx context.Context, name string, data store.PreprocessedServer) error {
	paramsJSON, err := json.Marshal(data.Parameters)
	if err != nil {
		return fmt.Errorf("postgres: marshaling parameters: %w", err)
	}
	transposedJSON, err := json.Marshal(data.Transposed)
	if err != nil {
		return fmt.Errorf("postgres: marshaling transposed coefficients: %w", err)
	}

	const q = `
		INSERT INTO preprocessed_servers (name, parameters, oprf_key, transposed, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (name) DO UPDATE
		SET parameters = EXCLUDED.parameters, oprf_key = EXCLUDED.oprf_key,
		    transposed = EXCLUDED.transposed, updated_at = NOW()
	`
	if _, err := s.pool.Exec(ctx, q, name, paramsJSON, data.OPRFKey, transposedJSON); err != nil {
		return fmt.Errorf("postgres: saving %q: %w", name, err)
	}
	return nil
}

// LoadPreprocessed fetches the row stored under name.
func (s *Store) LoadPreprocessed(ctx context.Context, name string) (store.PreprocessedServer, bool, error) {
	const q = `SELECT parameters, oprf_key, transposed FROM preprocessed_servers WHERE name = $1`

	var paramsJSON, transposedJSON []byte
	var out store.PreprocessedServer
	err := s.pool.QueryRow(ctx, q, name).Scan(&paramsJSON, &out.OPRFKey, &transposedJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.PreprocessedServer{}, false, nil
		}
		return store.PreprocessedServer{}, false, fmt.Errorf("postgres: loading %q: %w", name, err)
	}
	if err := json.Unmarshal(paramsJSON, &out.Parameters); err != nil {
		return store.PreprocessedServer{}, false, fmt.Errorf("postgres: unmarshaling parameters: %w", err)
	}
	if err := json.Unmarshal(transposedJSON, &out.Transposed); err != nil {
		return store.PreprocessedServer{}, false, fmt.Errorf("postgres: unmarshaling transposed coefficients: %w", err)
	}
	return out, true, nil
}

// Package store persists the server's preprocessed polynomial table so
// `overlap-server` doesn't have to rebuild it from the raw set on every
// restart (spec.md §4.6 "Preprocess (once)" — "once" spans process
// lifetimes too, not just a single run). Grounded on
// leanlp-BTC-coinjoin/internal/db's connect/init-schema/persist shape.
package store

import (
	"context"
	"sync"

	"github.com/moya-app/overlap-psi/internal/psiparams"
)

// PreprocessedServer is the durable form of a servercore.Server's
// preprocessing output: everything needed to answer queries without
// rerunning OPRF/SimpleHash/PolynomialEval against the raw set again.
type PreprocessedServer struct {
	Parameters psiparams.Parameters
	OPRFKey    string   // decimal big.Int
	Transposed [][]uint64
}

// Store is the persistence boundary cmd/overlap-server uses to save and
// reload servercore's Transposed table. Implementations live in this
// package (Memory) and in store/postgres (Postgres).
type Store interface {
	SavePreprocessed(ctx context.Context, name string, data PreprocessedServer) error
	LoadPreprocessed(ctx context.Context, name string) (PreprocessedServer, bool, error)
}

// Memory is an in-memory Store, used by tests and by overlap-server when no
// database is configured or reachable, where no durability is required.
type Memory struct {
	mu   sync.RWMutex
	data map[string]PreprocessedServer
}

// NewMemory builds an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]PreprocessedServer)}
}

// SavePreprocessed stores data under name, overwriting any prior value.
func (m *Memory) SavePreprocessed(ctx context.Context, name string, data PreprocessedServer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[name] = data
	return nil
}

// LoadPreprocessed returns the value stored under name, if any.
func (m *Memory) LoadPreprocessed(ctx context.Context, name string) (PreprocessedServer, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[name]
	return v, ok, nil
}

// Package storage provides persistence backends for cost entries, budget
// limits and admin overrides.
//
// The external document store is the system of record and the sole
// synchronization point; in-process objects are transient views. Two
// backends are provided:
//
//   - MemoryBackend: map-based, for tests and ephemeral deployments
//   - SQLiteBackend: durable single-instance storage (WAL mode)
//
// Backends implement the costs.Store and budget.Store interfaces declared in
// the domain packages. Money columns are stored as decimal strings; binary
// floating point never round-trips a cost figure.
package storage

import (
	"github.com/vedprakash-m/sutra-ledger/pkg/budget"
	"github.com/vedprakash-m/sutra-ledger/pkg/costs"
)

// Backend is the full persistence surface consumed by the engine.
type Backend interface {
	costs.Store
	budget.Store

	// Close releases resources held by the backend.
	Close() error
}

var (
	_ Backend = (*MemoryBackend)(nil)
	_ Backend = (*SQLiteBackend)(nil)
)

// Package kv is the persistence seam of pmohub. Every record the system
// owns lives under one of a handful of disjoint key namespaces in a flat,
// synchronous key-value store. Backends are interface-driven so the domain
// services can run against memory in tests and Redis or Postgres in
// production without rewiring business code.
package kv

import (
	"context"
	"errors"
)

// Sentinel errors for storage facts. Backends return these (optionally
// wrapped) so services can translate them into domain errors.
var (
	// ErrNotFound: no value stored under the key.
	ErrNotFound = errors.New("key not found")
	// ErrQuotaExceeded: the backing store rejected a write for lack of
	// space. Surfaced distinctly because the caller can act on it.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
)

// Store is the narrow contract every backend implements. Values are opaque
// bytes; serialization and corruption handling belong to the services that
// own each namespace.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Keys lists all keys with the given prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
}

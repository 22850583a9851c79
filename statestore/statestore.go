// Package statestore defines the keyed, searchable persistence contract an
// agent uses for durable memory, distinct from the transcript itself.
// Entries are JSON values addressed by a namespace+key pair, matching the
// teacher's agentID/runID-scoped memory.Store generalized to an arbitrary
// caller-chosen namespace.
package statestore

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound indicates Read found no entry at the given namespace/key.
var ErrNotFound = errors.New("statestore: not found")

// Entry is a single stored value plus the key it was written under.
type Entry struct {
	Key   string
	Value json.RawMessage
}

// SearchResult is one hit from Search: Score is backend-defined (higher is
// more relevant) and Snippet is an optional highlighted excerpt.
type SearchResult struct {
	Key     string
	Score   float64
	Snippet string
}

// Reader is the read-only projection of Store, for components (like a
// prompt-rendering hook) that must never write to state.
type Reader interface {
	Read(ctx context.Context, namespace, key string) (json.RawMessage, error)
	List(ctx context.Context, namespace, prefix string) ([]string, error)
	Search(ctx context.Context, namespace, query string, limit int) ([]SearchResult, error)
}

// Store is the full read/write state contract a Turn's WriteMemory/
// DeleteMemory effects are interpreted against.
type Store interface {
	Reader
	Write(ctx context.Context, namespace, key string, value json.RawMessage) error
	Delete(ctx context.Context, namespace, key string) error
}

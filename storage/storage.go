// Package storage defines the persistence boundary consumed by the
// collection query layer. The engine treats the store as a black box:
// it pushes predicate clauses, eager-load hints, visibility filtering,
// and ordering down in one Options value and expects the same result
// regardless of how the caller composed them.
package storage

import (
	"context"

	"github.com/geoforge/terrane"
	"github.com/geoforge/terrane/synth"
)

// Options carries the declarative parts of one collection retrieval.
type Options struct {
	// Clauses are AND-composed predicate clauses to push down.
	Clauses []synth.Clause
	// Related names the relations to prefetch in bulk, so accessing
	// them afterward costs no per-record lookup.
	Related []string
	// OrderBy sorts the result by the named field, ascending, with the
	// instance ID as tiebreaker. Empty means ID order.
	OrderBy string
	// ExcludePrivate drops instances whose visibility is private,
	// including instances that never set a visibility at all.
	ExcludePrivate bool
}

// Store is the persistence collaborator.
type Store interface {
	// List retrieves a collection of the named entity type.
	List(ctx context.Context, typeName string, opts Options) ([]terrane.Entity, error)

	// Get retrieves one instance by ID, or terrane.ErrNotFound.
	Get(ctx context.Context, typeName, id string) (terrane.Entity, error)
}

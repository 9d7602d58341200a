// Package query is the default entry point for retrieving entity
// collections. Default excludes private instances; AllIncludingPrivate
// is the conspicuous, separately named opt-in. Collections compose
// declaratively: predicates, eager-load presets, and ordering are
// collected on the collection and applied once at execution, so the
// final result is the same regardless of composition order.
package query

import (
	"context"
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/geoforge/terrane"
	"github.com/geoforge/terrane/registry"
	"github.com/geoforge/terrane/storage"
	"github.com/geoforge/terrane/synth"
)

// unfilteredQueries counts explicit opt-ins to the unfiltered view, so
// operators can see how often private data is being reached for.
var unfilteredQueries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "terrane",
	Subsystem: "query",
	Name:      "unfiltered_total",
	Help:      "Collection queries explicitly including private instances.",
}, []string{"entity_type"})

// Collection is a lazily executed collection retrieval. Chaining
// methods return a derived collection; nothing touches the store until
// All runs.
type Collection struct {
	ledger         *registry.Ledger
	store          storage.Store
	typeName       string
	includePrivate bool
	predicates     []synth.Predicate
	presets        []string
	orderBy        string
}

// Default returns the privacy-filtered collection of the entity type.
// Instances whose visibility is private are excluded. This is the entry
// point ordinary application code should use.
func Default(ledger *registry.Ledger, store storage.Store, entityType string) *Collection {
	return &Collection{ledger: ledger, store: store, typeName: entityType}
}

// AllIncludingPrivate returns the unfiltered collection, private
// instances included. It exists as a separate name so the opt-in is
// conspicuous in code review; it is never reachable through a flag on
// Default.
func AllIncludingPrivate(ledger *registry.Ledger, store storage.Store, entityType string) *Collection {
	unfilteredQueries.WithLabelValues(entityType).Inc()
	return &Collection{ledger: ledger, store: store, typeName: entityType, includePrivate: true}
}

func (c *Collection) clone() *Collection {
	cp := *c
	cp.predicates = append([]synth.Predicate(nil), c.predicates...)
	cp.presets = append([]string(nil), c.presets...)
	return &cp
}

// Where AND-composes a predicate built by the entity type's filter
// builder.
func (c *Collection) Where(p synth.Predicate) *Collection {
	cp := c.clone()
	cp.predicates = append(cp.predicates, p)
	return cp
}

// WithRelated tags the collection with a named eager-load preset.
// Presets are declared once per entity type and compose: applying two
// presets prefetches the union of their relations. The tag is advisory;
// it changes lookup cost, never membership.
func (c *Collection) WithRelated(preset string) *Collection {
	cp := c.clone()
	for _, existing := range cp.presets {
		if existing == preset {
			return cp
		}
	}
	cp.presets = append(cp.presets, preset)
	return cp
}

// Order sorts the result by the named field, ascending, with the
// instance ID as tiebreaker.
func (c *Collection) Order(field string) *Collection {
	cp := c.clone()
	cp.orderBy = field
	return cp
}

// All executes the collection against the store.
func (c *Collection) All(ctx context.Context) ([]terrane.Entity, error) {
	rec, err := c.ledger.ResolveConcrete(c.typeName)
	if err != nil {
		return nil, err
	}
	related, err := c.expandPresets(rec)
	if err != nil {
		return nil, err
	}
	return c.store.List(ctx, c.typeName, storage.Options{
		Clauses:        synth.And(c.predicates...).Clauses(),
		Related:        related,
		OrderBy:        c.orderBy,
		ExcludePrivate: !c.includePrivate,
	})
}

// expandPresets resolves the applied presets to the union of their
// relation names, sorted so the store sees a canonical prefetch list.
func (c *Collection) expandPresets(rec *registry.Record) ([]string, error) {
	if len(c.presets) == 0 {
		return nil, nil
	}
	set := make(map[string]bool)
	for _, preset := range c.presets {
		relations, ok := rec.Type.Presets[preset]
		if !ok {
			return nil, fmt.Errorf("terrane/query: %q declares no eager-load preset %q", c.typeName, preset)
		}
		for _, rel := range relations {
			set[rel] = true
		}
	}
	out := make([]string, 0, len(set))
	for rel := range set {
		out = append(out, rel)
	}
	sort.Strings(out)
	return out, nil
}

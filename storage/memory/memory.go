// Package memory provides an in-process Store used by tests and small
// deployments. It evaluates pushed-down clauses with the synthesized
// predicates and batch-attaches prefetched relations, so the eager
// loading contract is observable without a database.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/geoforge/terrane"
	"github.com/geoforge/terrane/registry"
	"github.com/geoforge/terrane/storage"
	"github.com/geoforge/terrane/synth"
)

// Store is an in-memory implementation of storage.Store.
type Store struct {
	ledger *registry.Ledger

	mu       sync.RWMutex
	entities map[string][]terrane.Entity // type name -> insertion order
}

// New returns an empty Store. The ledger resolves relation declarations
// for eager loading.
func New(ledger *registry.Ledger) *Store {
	return &Store{
		ledger:   ledger,
		entities: make(map[string][]terrane.Entity),
	}
}

// Put inserts a snapshot of the entity. Later mutations of the caller's
// instance never reach the store.
func (s *Store) Put(e terrane.Entity) {
	snap := snapshot(e)
	s.mu.Lock()
	s.entities[e.EntityType()] = append(s.entities[e.EntityType()], snap)
	s.mu.Unlock()
}

// Get implements storage.Store. The returned entity is a copy; stored
// instances are never handed out.
func (s *Store) Get(_ context.Context, typeName, id string) (terrane.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entities[typeName] {
		if e.ID() == id {
			return snapshot(e), nil
		}
	}
	return nil, terrane.ErrNotFound
}

// List implements storage.Store. Results are per-call copies: prefetched
// relations attach to the copies, so one query's eager loading never
// leaks into stored state or into other queries.
func (s *Store) List(_ context.Context, typeName string, opts storage.Options) ([]terrane.Entity, error) {
	s.mu.RLock()
	pred := synth.NewPredicate(opts.Clauses...)
	var out []terrane.Entity
	for _, e := range s.entities[typeName] {
		if opts.ExcludePrivate && terrane.VisibilityOf(e) == terrane.VisibilityPrivate {
			continue
		}
		if !pred.Match(e) {
			continue
		}
		out = append(out, snapshot(e))
	}
	s.mu.RUnlock()

	if opts.OrderBy != "" {
		orderBy(out, opts.OrderBy)
	} else {
		sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	}
	if len(opts.Related) > 0 {
		if err := s.prefetch(typeName, out, opts.Related); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func orderBy(entities []terrane.Entity, field string) {
	sort.SliceStable(entities, func(i, j int) bool {
		a, _ := entities[i].Get(field)
		b, _ := entities[j].Get(field)
		if c := compare(a, b); c != 0 {
			return c < 0
		}
		return entities[i].ID() < entities[j].ID()
	})
}

func compare(a, b terrane.Value) int {
	switch av := a.(type) {
	case string:
		if bv, ok := b.(string); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case int:
		if bv, ok := b.(int); ok {
			return av - bv
		}
	case float64:
		if bv, ok := b.(float64); ok {
			switch {
			case av < bv:
				return -1
			case av > bv:
				return 1
			}
			return 0
		}
	case time.Time:
		if bv, ok := b.(time.Time); ok {
			return av.Compare(bv)
		}
	}
	// Mixed or unhandled types fall back to their string form.
	as, bs := fmt.Sprint(a), fmt.Sprint(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}

// snapshot copies an entity so the store and its callers never share a
// field map.
func snapshot(e terrane.Entity) terrane.Entity {
	if r, ok := e.(*terrane.Record); ok {
		return r.Clone()
	}
	cp := terrane.NewRecordWithID(e.EntityType(), e.ID())
	if f, ok := e.(interface{ Fields() map[string]terrane.Value }); ok {
		for name, v := range f.Fields() {
			_ = cp.Set(name, v)
		}
	}
	return cp
}

// prefetch batch-loads each requested relation and attaches the related
// instances under the relation name on every parent, replacing the
// one-lookup-per-record pattern with a single grouped pass. Parents are
// the per-call copies produced by List; stored children are copied too.
func (s *Store) prefetch(typeName string, parents []terrane.Entity, related []string) error {
	rec, err := s.ledger.ResolveConcrete(typeName)
	if err != nil {
		return err
	}
	fk := typeName + "_id"
	for _, name := range related {
		rel, ok := rec.Type.Relation(name)
		if !ok {
			return fmt.Errorf("terrane/storage: %q declares no relation %q", typeName, name)
		}
		s.mu.RLock()
		grouped := make(map[string][]terrane.Entity)
		for _, child := range s.entities[rel.Target] {
			owner, ok := child.Get(fk)
			if !ok {
				continue
			}
			if id, ok := owner.(string); ok {
				grouped[id] = append(grouped[id], snapshot(child))
			}
		}
		s.mu.RUnlock()
		for _, parent := range parents {
			children := grouped[parent.ID()]
			if children == nil {
				children = []terrane.Entity{}
			}
			if err := parent.Set(rel.Name, children); err != nil {
				return err
			}
		}
	}
	return nil
}

var _ storage.Store = (*Store)(nil)

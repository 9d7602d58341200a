package synth

import (
	"fmt"
	"sort"
	"strings"

	"github.com/geoforge/terrane"
	"github.com/geoforge/terrane/registry"
	"github.com/geoforge/terrane/schema/field"
)

// SearchKey is the designated free-text predicate key. It matches
// case-insensitively across the entity type's Searchable string fields
// only; unbounded text fields are excluded for cost reasons. The key is
// reserved: registration rejects filter views that claim it for a
// declared field.
const SearchKey = terrane.SearchKey

// ClauseOp identifies a predicate clause kind.
type ClauseOp string

// Supported clause kinds. Stores translate OpEQ to attribute equality
// and OpSearch to a case-insensitive substring match OR-ed across the
// clause's fields.
const (
	OpEQ     ClauseOp = "eq"
	OpSearch ClauseOp = "search"
)

// Clause is one storage-pushable predicate condition.
type Clause struct {
	Op     ClauseOp
	Field  string        // equality field (OpEQ)
	Fields []string      // searchable fields (OpSearch)
	Value  terrane.Value // compared or matched value
}

// Predicate is an AND-composition of clauses. The zero value matches
// everything.
type Predicate struct {
	clauses []Clause
}

// NewPredicate returns a predicate over the given clauses. Stores use
// it to evaluate pushed-down clauses in process.
func NewPredicate(clauses ...Clause) Predicate {
	return Predicate{clauses: clauses}
}

// And returns the conjunction of the given predicates.
func And(ps ...Predicate) Predicate {
	var out Predicate
	for _, p := range ps {
		out.clauses = append(out.clauses, p.clauses...)
	}
	return out
}

// Empty reports whether the predicate has no clauses.
func (p Predicate) Empty() bool { return len(p.clauses) == 0 }

// Clauses returns the predicate's clauses for storage pushdown.
func (p Predicate) Clauses() []Clause {
	out := make([]Clause, len(p.clauses))
	copy(out, p.clauses)
	return out
}

// Match evaluates the predicate against an entity in process. Stores
// that cannot push a clause down fall back to this.
func (p Predicate) Match(e terrane.Entity) bool {
	for _, c := range p.clauses {
		if !c.match(e) {
			return false
		}
	}
	return true
}

func (c Clause) match(e terrane.Entity) bool {
	switch c.Op {
	case OpEQ:
		got, ok := e.Get(c.Field)
		// Field values are comparable scalars by construction.
		return ok && got == c.Value
	case OpSearch:
		needle, ok := c.Value.(string)
		if !ok {
			return false
		}
		needle = strings.ToLower(needle)
		for _, name := range c.Fields {
			if v, ok := e.Get(name); ok {
				if s, ok := v.(string); ok && strings.Contains(strings.ToLower(s), needle) {
					return true
				}
			}
		}
		return false
	}
	return false
}

// FilterBuilder turns requested predicates keyed by the entity type's
// filter view into a composable Predicate.
type FilterBuilder struct {
	typeName     string
	allowed      map[string]*field.Descriptor
	keys         []string
	searchFields []string
}

func newFilterBuilder(rec *registry.Record) (*FilterBuilder, error) {
	descs, err := descriptorsFor(rec.Type, rec.Spec.FilterFields)
	if err != nil {
		return nil, err
	}
	b := &FilterBuilder{
		typeName: rec.Type.Name,
		allowed:  make(map[string]*field.Descriptor, len(descs)),
		keys:     rec.Spec.FilterFields,
	}
	for _, fd := range descs {
		b.allowed[fd.Name] = fd
	}
	// The free-text predicate spans the declared searchable fields,
	// regardless of the filter view.
	for _, fd := range rec.Type.Fields {
		if fd.Searchable {
			b.searchFields = append(b.searchFields, fd.Name)
		}
	}
	return b, nil
}

// Keys returns the allowed predicate keys in filter view order.
func (b *FilterBuilder) Keys() []string {
	out := make([]string, len(b.keys))
	copy(out, b.keys)
	return out
}

// SearchFields returns the fields covered by the free-text predicate.
func (b *FilterBuilder) SearchFields() []string {
	out := make([]string, len(b.searchFields))
	copy(out, b.searchFields)
	return out
}

// Build validates the requested predicates and returns their
// conjunction. A key outside the filter view is a BadFilterKeyError;
// the SearchKey key builds the free-text clause. Clause order is
// deterministic (sorted by key) so composed queries are reproducible.
func (b *FilterBuilder) Build(requested map[string]terrane.Value) (Predicate, error) {
	keys := make([]string, 0, len(requested))
	for key := range requested {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var p Predicate
	for _, key := range keys {
		value := requested[key]
		if key == SearchKey {
			term, ok := value.(string)
			if !ok {
				return Predicate{}, terrane.NewValidationError(SearchKey,
					fmt.Errorf("expects string, got %T", value))
			}
			if len(b.searchFields) == 0 {
				return Predicate{}, &terrane.BadFilterKeyError{TypeName: b.typeName, Key: SearchKey}
			}
			p.clauses = append(p.clauses, Clause{Op: OpSearch, Fields: b.searchFields, Value: term})
			continue
		}
		fd, ok := b.allowed[key]
		if !ok {
			return Predicate{}, &terrane.BadFilterKeyError{TypeName: b.typeName, Key: key}
		}
		if err := fd.Validate(value); err != nil {
			return Predicate{}, terrane.NewValidationError(key, err)
		}
		p.clauses = append(p.clauses, Clause{Op: OpEQ, Field: key, Value: value})
	}
	return p, nil
}

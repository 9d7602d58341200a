package registry

import (
	"fmt"
	"sync"

	"github.com/geoforge/terrane"
)

// Ledger is the process-wide registration table. Registration happens
// sequentially during initialization; after Freeze the ledger is
// immutable and safe for unsynchronized concurrent reads.
type Ledger struct {
	mu         sync.RWMutex
	records    map[string]*Record
	order      []string
	categories map[string]bool
	families   map[string][]*Record // lazily cached FamilyOf views
	actions    map[string]map[terrane.Action]terrane.Action
	frozen     bool
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{
		records:    make(map[string]*Record),
		categories: make(map[string]bool),
		families:   make(map[string][]*Record),
		actions:    make(map[string]map[terrane.Action]terrane.Action),
	}
}

// Register validates the spec against the type's declared attributes
// and inserts a Record. It performs no synthesis: validation failing
// here fails the process at start, not at first request.
//
// Category may be empty for freestanding types. Registering the same
// type twice, registering after Freeze, or registering an abstract
// category root as a concrete leaf are fatal configuration errors.
func (l *Ledger) Register(typ *Type, spec Spec, category string) (*Record, error) {
	if typ == nil || typ.Name == "" {
		return nil, fmt.Errorf("terrane/registry: nil or unnamed type")
	}
	if typ.Abstract {
		return nil, &terrane.AbstractInstantiationError{TypeName: typ.Name}
	}
	for _, fd := range typ.Fields {
		if fd.Err != nil {
			return nil, fmt.Errorf("terrane/registry: invalid field on %q: %w", typ.Name, fd.Err)
		}
	}

	resolved := spec.resolve(typ.Name)
	if len(resolved.DetailFields) == 0 {
		// Derive the detail view from the full declaration when the
		// contributor left it out entirely.
		for _, fd := range typ.Fields {
			resolved.DetailFields = append(resolved.DetailFields, fd.Name)
		}
		if resolved.ListFields == nil {
			resolved.ListFields = cloneFields(resolved.DetailFields)
		}
		if resolved.FilterFields == nil {
			resolved.FilterFields = cloneFields(resolved.DetailFields)
		}
		if resolved.SerializationFields == nil {
			resolved.SerializationFields = cloneFields(resolved.DetailFields)
		}
	}
	if len(resolved.DetailFields) == 0 {
		return nil, &terrane.EmptyConfigurationError{TypeName: typ.Name}
	}
	if err := validateViews(typ, resolved); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frozen {
		return nil, fmt.Errorf("terrane/registry: register %q: %w", typ.Name, terrane.ErrLedgerFrozen)
	}
	if _, exists := l.records[typ.Name]; exists {
		return nil, &terrane.DuplicateRegistrationError{TypeName: typ.Name}
	}
	rec := &Record{
		Type:     typ,
		Spec:     resolved,
		Category: category,
		order:    len(l.order),
	}
	l.records[typ.Name] = rec
	l.order = append(l.order, typ.Name)
	if category != "" {
		l.categories[category] = true
		delete(l.families, category)
	}
	return rec, nil
}

// validateViews checks every configured field name against the type's
// declared attributes, reporting the first unresolved name and the view
// it came from.
func validateViews(typ *Type, spec Spec) error {
	views := []struct {
		name   string
		fields []string
	}{
		{"detail", spec.DetailFields},
		{"list", spec.ListFields},
		{"filter", spec.FilterFields},
		{"serialization", spec.SerializationFields},
	}
	for _, view := range views {
		for _, name := range view.fields {
			if view.name == "filter" && name == terrane.SearchKey {
				return fmt.Errorf(
					"terrane/registry: filter view of %q: %q is reserved for the free-text predicate", typ.Name, name)
			}
			if !typ.HasField(name) {
				return &terrane.UnknownFieldError{TypeName: typ.Name, View: view.name, Field: name}
			}
		}
	}
	return nil
}

// Freeze ends the initialization phase. Every later Register fails with
// ErrLedgerFrozen; reads need no synchronization afterward.
func (l *Ledger) Freeze() {
	l.mu.Lock()
	l.frozen = true
	l.mu.Unlock()
}

// Get returns the Record registered for the entity type name.
func (l *Ledger) Get(name string) (*Record, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.records[name]
	return rec, ok
}

// Records returns every Record in registration order.
func (l *Ledger) Records() []*Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*Record, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, l.records[name])
	}
	return out
}

// FamilyOf returns every registered type sharing the category, in
// registration order. The view is cached and invalidated whenever a new
// member registers, so a type-selection surface presents subtypes in
// the same order across runs.
func (l *Ledger) FamilyOf(category string) []*Record {
	l.mu.RLock()
	if family, ok := l.families[category]; ok {
		l.mu.RUnlock()
		return cloneRecords(family)
	}
	l.mu.RUnlock()

	l.mu.Lock()
	defer l.mu.Unlock()
	if family, ok := l.families[category]; ok {
		return cloneRecords(family)
	}
	var family []*Record
	for _, name := range l.order {
		if rec := l.records[name]; rec.Category == category {
			family = append(family, rec)
		}
	}
	l.families[category] = family
	return cloneRecords(family)
}

// cloneRecords copies the slice so callers cannot write into the cached
// backing array.
func cloneRecords(records []*Record) []*Record {
	out := make([]*Record, len(records))
	copy(out, records)
	return out
}

// ResolveConcrete maps a stored discriminator back to its registered
// Record. A discriminator referencing a type no longer registered is a
// data-integrity condition surfaced as UnresolvedSubtypeError.
func (l *Ledger) ResolveConcrete(discriminator string) (*Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if rec, ok := l.records[discriminator]; ok {
		return rec, nil
	}
	if l.categories[discriminator] {
		return nil, &terrane.AbstractInstantiationError{TypeName: discriminator}
	}
	return nil, &terrane.UnresolvedSubtypeError{Discriminator: discriminator}
}

// ResolveEntity resolves a stored record's concrete type.
func (l *Ledger) ResolveEntity(e terrane.Entity) (*Record, error) {
	return l.ResolveConcrete(e.EntityType())
}

// NewEntity creates an empty instance of the registered type with field
// defaults applied. Creating an instance of an abstract category root
// is rejected.
func (l *Ledger) NewEntity(discriminator string) (*terrane.Record, error) {
	rec, err := l.ResolveConcrete(discriminator)
	if err != nil {
		return nil, err
	}
	instance := terrane.NewRecord(rec.Type.Name)
	for _, fd := range rec.Type.Fields {
		if fd.Default != nil {
			if err := instance.Set(fd.Name, fd.Default); err != nil {
				return nil, err
			}
		}
	}
	return instance, nil
}

// MapActions declares the permission cascade's action remapping for a
// category. Declared once per category so sibling subtypes cannot
// drift; a second declaration is a configuration error.
func (l *Ledger) MapActions(category string, m map[terrane.Action]terrane.Action) error {
	if category == "" {
		return fmt.Errorf("terrane/registry: action map requires a category")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.frozen {
		return fmt.Errorf("terrane/registry: action map for %q: %w", category, terrane.ErrLedgerFrozen)
	}
	if _, exists := l.actions[category]; exists {
		return fmt.Errorf("terrane/registry: action map for %q: %w", category, terrane.ErrDuplicateRegistration)
	}
	cp := make(map[terrane.Action]terrane.Action, len(m))
	for k, v := range m {
		cp[k] = v
	}
	l.actions[category] = cp
	return nil
}

// RemapAction translates a child action into the action checked on the
// parent, per the child's category table. The second return is false
// when no mapping is declared; absence of a rule never grants.
func (l *Ledger) RemapAction(category string, action terrane.Action) (terrane.Action, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.actions[category]
	if !ok {
		return "", false
	}
	mapped, ok := m[action]
	return mapped, ok
}

// Validate re-checks every Record's field references against its type
// declaration, one error per problem. Used by the diagnostic command to
// catch fields removed from a type after its registration was written.
func (l *Ledger) Validate() []error {
	var problems []error
	for _, rec := range l.Records() {
		for _, fd := range rec.Type.Fields {
			if fd.Err != nil {
				problems = append(problems, fmt.Errorf("terrane/registry: %q: %w", rec.Type.Name, fd.Err))
			}
		}
		if err := validateViews(rec.Type, rec.Spec); err != nil {
			problems = append(problems, err)
		}
		if rec.Type.Parent != nil && !rec.Type.HasField(rec.Type.Parent.Field) {
			problems = append(problems, fmt.Errorf(
				"terrane/registry: %q: parent link field %q is not declared", rec.Type.Name, rec.Type.Parent.Field))
		}
		for name, relations := range rec.Type.Presets {
			for _, rel := range relations {
				if _, ok := rec.Type.Relation(rel); !ok {
					problems = append(problems, fmt.Errorf(
						"terrane/registry: %q: preset %q references unknown relation %q", rec.Type.Name, name, rel))
				}
			}
		}
		// Hierarchy links must form a forest: a cycle would wedge the
		// permission cascade.
		seen := map[string]bool{rec.Type.Name: true}
		for cur := rec; cur.Type.Parent != nil; {
			next, ok := l.Get(cur.Type.Parent.Parent)
			if !ok {
				break
			}
			if seen[next.Type.Name] {
				problems = append(problems, fmt.Errorf(
					"terrane/registry: %q: hierarchy link cycle through %q", rec.Type.Name, next.Type.Name))
				break
			}
			seen[next.Type.Name] = true
			cur = next
		}
	}
	return problems
}

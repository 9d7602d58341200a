// Package terrane provides the core of an entity registration and
// multi-view synthesis engine for research data portals: contributor
// modules declare entity types once, and the engine derives forms, list
// projections, filter predicates, serialization contracts, and
// administrative surfaces from that single declaration.
package terrane

import (
	"fmt"

	"github.com/google/uuid"
)

// Value is the dynamic value type carried by entity fields.
type Value = any

// Entity is a structured record participating in registration.
// Concrete stores may back it however they like; the engine only needs
// field access by name and the persisted discriminator tag.
type Entity interface {
	// EntityType returns the discriminator identifying the concrete
	// registered type this instance belongs to.
	EntityType() string

	// ID returns the instance identifier.
	ID() string

	// Get returns the named field value and whether it is set.
	Get(name string) (Value, bool)

	// Set assigns the named field value.
	Set(name string, value Value) error
}

// Record is a map-backed Entity. It is the representation produced by
// deserialization and used by dynamic callers that have no generated
// struct for the entity type.
type Record struct {
	typ    string
	id     string
	fields map[string]Value
}

// NewRecord returns an empty Record of the given entity type with a
// fresh identifier.
func NewRecord(entityType string) *Record {
	return &Record{
		typ:    entityType,
		id:     uuid.NewString(),
		fields: make(map[string]Value),
	}
}

// NewRecordWithID returns an empty Record with an explicit identifier.
func NewRecordWithID(entityType, id string) *Record {
	return &Record{
		typ:    entityType,
		id:     id,
		fields: make(map[string]Value),
	}
}

// EntityType returns the record's discriminator.
func (r *Record) EntityType() string { return r.typ }

// ID returns the record identifier.
func (r *Record) ID() string { return r.id }

// Get returns the named field value and whether it is set.
func (r *Record) Get(name string) (Value, bool) {
	v, ok := r.fields[name]
	return v, ok
}

// Set assigns the named field value.
func (r *Record) Set(name string, value Value) error {
	if name == "" {
		return fmt.Errorf("terrane: empty field name")
	}
	r.fields[name] = value
	return nil
}

// Fields returns a copy of the record's field map.
func (r *Record) Fields() map[string]Value {
	out := make(map[string]Value, len(r.fields))
	for k, v := range r.fields {
		out[k] = v
	}
	return out
}

// Clone returns a copy of the record with its own field map, so
// mutating the copy never touches the original.
func (r *Record) Clone() *Record {
	cp := &Record{typ: r.typ, id: r.id, fields: make(map[string]Value, len(r.fields))}
	for k, v := range r.fields {
		cp.fields[k] = v
	}
	return cp
}

// VisibilityLevel is the privacy tier of an entity instance. The zero
// value is Private: an instance that never had its visibility set is
// not exposed by default collection queries.
type VisibilityLevel int

// Visibility tiers, most restrictive first.
const (
	VisibilityPrivate VisibilityLevel = iota
	VisibilityInternal
	VisibilityPublic
)

// FieldVisibility is the conventional field name carrying an instance's
// VisibilityLevel.
const FieldVisibility = "visibility"

// SearchKey is the reserved predicate key selecting the free-text
// match across an entity type's searchable fields. Registration rejects
// filter views claiming it for a declared field.
const SearchKey = "search"

// String returns the lowercase tier name.
func (v VisibilityLevel) String() string {
	switch v {
	case VisibilityPublic:
		return "public"
	case VisibilityInternal:
		return "internal"
	default:
		return "private"
	}
}

// ParseVisibility maps a stored tier name back to a VisibilityLevel.
func ParseVisibility(s string) (VisibilityLevel, error) {
	switch s {
	case "public":
		return VisibilityPublic, nil
	case "internal":
		return VisibilityInternal, nil
	case "private":
		return VisibilityPrivate, nil
	}
	return VisibilityPrivate, fmt.Errorf("terrane: unknown visibility %q", s)
}

// VisibilityOf reads an entity's visibility field. A missing or
// malformed value is Private.
func VisibilityOf(e Entity) VisibilityLevel {
	raw, ok := e.Get(FieldVisibility)
	if !ok {
		return VisibilityPrivate
	}
	switch v := raw.(type) {
	case VisibilityLevel:
		return v
	case string:
		level, err := ParseVisibility(v)
		if err != nil {
			return VisibilityPrivate
		}
		return level
	}
	return VisibilityPrivate
}

// Action identifies an operation subject to permission checks.
type Action string

// Canonical actions. ActionImport is the dataset-import action that the
// permission cascade remaps to a change-level action on the parent.
const (
	ActionView   Action = "view"
	ActionAdd    Action = "add"
	ActionChange Action = "change"
	ActionDelete Action = "delete"
	ActionImport Action = "import_data"
)

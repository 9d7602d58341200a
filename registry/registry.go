// Package registry implements the entity registration ledger: a
// process-wide, write-once-per-type table mapping each concrete entity
// type to its configuration spec and category. Contributor modules
// register at process start; everything downstream (artifact synthesis,
// permission cascades, collection queries) only reads.
package registry

import (
	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/geoforge/terrane"
	"github.com/geoforge/terrane/schema/field"
)

// HierarchyLink is the fixed structural relationship between an entity
// type and its owning parent type. It is declared per type, never per
// instance: permission cascades follow it and nothing else.
type HierarchyLink struct {
	// Field is the attribute on the child holding the parent's ID.
	Field string
	// Parent is the parent entity type name.
	Parent string
}

// Relation declares a 1-to-many metadata relation of an entity type
// (descriptions, dates, identifiers). One relation type parameterized
// by owner and vocabulary, rather than per-owner subtypes.
type Relation struct {
	// Name identifies the relation on the owning type.
	Name string
	// Target is the related entity type name.
	Target string
	// Vocabulary bounds the relation: at most one row per vocabulary
	// entry. Empty means unbounded.
	Vocabulary []string
}

// Type describes a registrable entity type: its discriminator name,
// declared fields, structural parent, and metadata relations. The
// declared fields are the single source of truth for field types and
// labels across all synthesized artifacts.
type Type struct {
	// Name is the persisted discriminator for instances of this type.
	Name string
	// Abstract marks a category root that must never be instantiated
	// or registered as a concrete leaf.
	Abstract bool
	// Fields are the type's declared attributes.
	Fields []*field.Descriptor
	// Parent is the structural owner link, nil for root-level types.
	Parent *HierarchyLink
	// Relations are the type's 1-to-many metadata relations.
	Relations []Relation
	// Presets name eager-loading bundles: preset name to the relation
	// names it prefetches.
	Presets map[string][]string
}

// Field returns the descriptor for the named field, or nil.
func (t *Type) Field(name string) *field.Descriptor {
	for _, fd := range t.Fields {
		if fd.Name == name {
			return fd
		}
	}
	return nil
}

// intrinsic attributes present on every entity instance.
var intrinsicFields = map[string]bool{
	"id":                    true,
	terrane.FieldVisibility: true,
}

// HasField reports whether name resolves against the type's declared
// attributes, including the intrinsic id and visibility attributes.
func (t *Type) HasField(name string) bool {
	if intrinsicFields[name] {
		return true
	}
	return t.Field(name) != nil
}

// Relation returns the named relation and whether it is declared.
func (t *Type) Relation(name string) (Relation, bool) {
	for _, rel := range t.Relations {
		if rel.Name == name {
			return rel, true
		}
	}
	return Relation{}, false
}

// Spec is the declarative configuration selecting which fields of an
// entity type participate in each synthesized view. A Spec is copied on
// registration and never mutated afterward.
type Spec struct {
	// DetailFields drive the creation/detail form. Required.
	DetailFields []string
	// ListFields drive the tabular projection. Defaults to DetailFields.
	ListFields []string
	// FilterFields name the allowed predicate keys. Defaults to DetailFields.
	FilterFields []string
	// SerializationFields restrict the serialization contract. Defaults
	// to DetailFields.
	SerializationFields []string
	// DisplayName is the human name of the type. Defaults to the
	// title-cased, humanized type name.
	DisplayName string
	// Description is free-form documentation for the admin surface.
	Description string
}

var titler = cases.Title(language.English)

// resolve fills view defaults and returns an independent copy.
func (s Spec) resolve(typeName string) Spec {
	out := Spec{
		DetailFields:        cloneFields(s.DetailFields),
		ListFields:          cloneFields(s.ListFields),
		FilterFields:        cloneFields(s.FilterFields),
		SerializationFields: cloneFields(s.SerializationFields),
		DisplayName:         s.DisplayName,
		Description:         s.Description,
	}
	if out.ListFields == nil {
		out.ListFields = cloneFields(out.DetailFields)
	}
	if out.FilterFields == nil {
		out.FilterFields = cloneFields(out.DetailFields)
	}
	if out.SerializationFields == nil {
		out.SerializationFields = cloneFields(out.DetailFields)
	}
	if out.DisplayName == "" {
		out.DisplayName = titler.String(inflect.Humanize(typeName))
	}
	return out
}

func cloneFields(fields []string) []string {
	if fields == nil {
		return nil
	}
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

// Record pairs a registered entity type with its resolved Spec and
// category. Records are immutable after registration.
type Record struct {
	Type     *Type
	Spec     Spec
	Category string

	order int // registration order within the ledger
}

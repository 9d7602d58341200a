// Package synth derives the five per-entity artifacts (form validator,
// list projector, filter predicate builder, serialization contract, and
// administrative surface) from a registration record. Artifacts are
// pure functions of the record: synthesizing twice from the same record
// yields behaviorally identical artifacts, so results are memoized
// indefinitely.
package synth

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/geoforge/terrane"
	"github.com/geoforge/terrane/registry"
	"github.com/geoforge/terrane/schema/field"
)

// Artifacts bundles the five views synthesized from one registration
// record. All five agree on field types and labels because each reads
// them from the same field descriptors.
type Artifacts struct {
	Form       *Form
	Projector  *Projector
	Filters    *FilterBuilder
	Serializer *Serializer
	Admin      *Surface
}

var (
	cache sync.Map // *registry.Record -> *Artifacts
	group singleflight.Group
)

// Synthesize returns the artifacts for the record, memoized per record.
// Records are immutable after registration, so cached artifacts never
// go stale. Safe for concurrent use.
func Synthesize(rec *registry.Record) (*Artifacts, error) {
	if rec == nil {
		return nil, fmt.Errorf("terrane/synth: nil registration record")
	}
	if cached, ok := cache.Load(rec); ok {
		return cached.(*Artifacts), nil
	}
	v, err, _ := group.Do(fmt.Sprintf("%p", rec), func() (any, error) {
		if cached, ok := cache.Load(rec); ok {
			return cached, nil
		}
		arts, err := build(rec)
		if err != nil {
			return nil, err
		}
		cache.Store(rec, arts)
		return arts, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Artifacts), nil
}

func build(rec *registry.Record) (*Artifacts, error) {
	form, err := newForm(rec)
	if err != nil {
		return nil, err
	}
	projector, err := newProjector(rec)
	if err != nil {
		return nil, err
	}
	filters, err := newFilterBuilder(rec)
	if err != nil {
		return nil, err
	}
	serializer, err := newSerializer(rec)
	if err != nil {
		return nil, err
	}
	return &Artifacts{
		Form:       form,
		Projector:  projector,
		Filters:    filters,
		Serializer: serializer,
		Admin:      newSurface(rec, form, projector),
	}, nil
}

// descriptorFor resolves a configured view field name to its
// descriptor, synthesizing descriptors for the intrinsic id and
// visibility attributes so every view field is handled uniformly.
func descriptorFor(typ *registry.Type, name string) (*field.Descriptor, error) {
	if fd := typ.Field(name); fd != nil {
		return fd, nil
	}
	switch name {
	case "id":
		return field.String("id").Immutable().Optional().Descriptor(), nil
	case terrane.FieldVisibility:
		return field.Enum(terrane.FieldVisibility).
			Values(
				terrane.VisibilityPublic.String(),
				terrane.VisibilityInternal.String(),
				terrane.VisibilityPrivate.String(),
			).
			Optional().
			Descriptor(), nil
	}
	return nil, &terrane.UnknownFieldError{TypeName: typ.Name, View: "synthesized", Field: name}
}

func descriptorsFor(typ *registry.Type, names []string) ([]*field.Descriptor, error) {
	out := make([]*field.Descriptor, 0, len(names))
	for _, name := range names {
		fd, err := descriptorFor(typ, name)
		if err != nil {
			return nil, err
		}
		out = append(out, fd)
	}
	return out, nil
}

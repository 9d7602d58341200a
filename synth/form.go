package synth

import (
	"fmt"
	"sort"

	"github.com/geoforge/terrane"
	"github.com/geoforge/terrane/registry"
	"github.com/geoforge/terrane/schema/field"
)

// FormField describes one form input for renderers. Renderers present
// it; field-selection and validation logic stay here.
type FormField struct {
	Name       string
	Label      string
	Type       field.Type
	Required   bool
	Vocabulary []string // allowed values for bounded fields, nil otherwise
}

// Form validates proposed field values against the entity type's
// detail view.
type Form struct {
	typeName string
	order    []string
	fields   map[string]*field.Descriptor
}

func newForm(rec *registry.Record) (*Form, error) {
	descs, err := descriptorsFor(rec.Type, rec.Spec.DetailFields)
	if err != nil {
		return nil, err
	}
	f := &Form{
		typeName: rec.Type.Name,
		order:    rec.Spec.DetailFields,
		fields:   make(map[string]*field.Descriptor, len(descs)),
	}
	for _, fd := range descs {
		f.fields[fd.Name] = fd
	}
	return f, nil
}

// Fields returns the form's inputs in detail view order.
func (f *Form) Fields() []FormField {
	out := make([]FormField, 0, len(f.order))
	for _, name := range f.order {
		fd := f.fields[name]
		out = append(out, FormField{
			Name:       name,
			Label:      fd.DisplayLabel(),
			Type:       fd.Type,
			Required:   !fd.Optional && fd.Default == nil,
			Vocabulary: fd.Values,
		})
	}
	return out
}

// Validate checks a proposed set of field values. Problems are
// collected per field rather than failing on the first, so a caller can
// present all of them at once. Unknown fields, missing required fields,
// type mismatches, and vocabulary violations are all reported.
func (f *Form) Validate(values map[string]terrane.Value) error {
	var errs []error

	unknown := make([]string, 0)
	for name := range values {
		if _, ok := f.fields[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		errs = append(errs, terrane.NewValidationError(name,
			fmt.Errorf("not a field of %q", f.typeName)))
	}

	for _, name := range f.order {
		fd := f.fields[name]
		v, present := values[name]
		if !present {
			if !fd.Optional && fd.Default == nil {
				errs = append(errs, terrane.NewValidationError(name, fmt.Errorf("required")))
			}
			continue
		}
		if err := fd.Validate(v); err != nil {
			errs = append(errs, terrane.NewValidationError(name, err))
		}
	}
	return terrane.NewAggregateError(errs...)
}

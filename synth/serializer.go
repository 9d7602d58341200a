package synth

import (
	"fmt"
	"sort"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/geoforge/terrane"
	"github.com/geoforge/terrane/registry"
	"github.com/geoforge/terrane/schema/field"
)

// Serializer is the bidirectional mapping between an entity instance
// and a flat representation restricted to the serialization view.
// Round-trip law: Deserialize(Serialize(x)) reconstructs an instance
// equal on every writable serialized field. Immutable fields are
// serialized for consumers but never restored by deserialization.
type Serializer struct {
	typeName string
	order    []string
	fields   map[string]*field.Descriptor
}

func newSerializer(rec *registry.Record) (*Serializer, error) {
	descs, err := descriptorsFor(rec.Type, rec.Spec.SerializationFields)
	if err != nil {
		return nil, err
	}
	s := &Serializer{
		typeName: rec.Type.Name,
		order:    rec.Spec.SerializationFields,
		fields:   make(map[string]*field.Descriptor, len(descs)),
	}
	for _, fd := range descs {
		s.fields[fd.Name] = fd
	}
	return s, nil
}

// Fields returns the serialized field names in view order.
func (s *Serializer) Fields() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Serialize flattens an entity to the serialization view. Unset fields
// are omitted.
func (s *Serializer) Serialize(e terrane.Entity) map[string]terrane.Value {
	out := make(map[string]terrane.Value, len(s.order))
	for _, name := range s.order {
		if v, ok := e.Get(name); ok {
			out[name] = v
		}
	}
	return out
}

// Deserialize reconstructs an instance from a flat representation.
// Keys outside the serialization view and values failing the field's
// type check are collected into one aggregate error. Immutable fields
// are skipped: they are set at creation, not rewritten through the
// contract.
func (s *Serializer) Deserialize(values map[string]terrane.Value) (*terrane.Record, error) {
	var errs []error

	unknown := make([]string, 0)
	for name := range values {
		if _, ok := s.fields[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		errs = append(errs, terrane.NewValidationError(name,
			fmt.Errorf("not serialized for %q", s.typeName)))
	}

	rec := terrane.NewRecord(s.typeName)
	for _, name := range s.order {
		v, ok := values[name]
		if !ok {
			continue
		}
		fd := s.fields[name]
		if fd.Immutable {
			continue
		}
		if err := fd.Validate(v); err != nil {
			errs = append(errs, terrane.NewValidationError(name, err))
			continue
		}
		if err := rec.Set(name, v); err != nil {
			errs = append(errs, terrane.NewValidationError(name, err))
		}
	}
	if err := terrane.NewAggregateError(errs...); err != nil {
		return nil, err
	}
	return rec, nil
}

// Marshal encodes the entity's serialization view as msgpack. This is
// the contract boundary: transports wrap these bytes, they do not
// re-select fields.
func (s *Serializer) Marshal(e terrane.Entity) ([]byte, error) {
	return msgpack.Marshal(s.Serialize(e))
}

// Unmarshal decodes a msgpack payload and reconstructs an instance.
func (s *Serializer) Unmarshal(data []byte) (*terrane.Record, error) {
	var values map[string]terrane.Value
	if err := msgpack.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("terrane/synth: decode %s payload: %w", s.typeName, err)
	}
	return s.Deserialize(values)
}

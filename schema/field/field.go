// Package field provides builders for declaring entity type fields.
// A field declaration is the single source of truth for the field's
// type, label, and vocabulary: every synthesized artifact (form, list
// projection, filter predicate, serializer, admin surface) derives its
// behavior from the Descriptor produced here, never from a per-artifact
// re-declaration.
package field

import (
	"fmt"
	"time"

	"github.com/go-openapi/inflect"
)

// A Type represents a field's data type.
type Type uint8

// List of field types.
const (
	TypeInvalid Type = iota
	TypeBool
	TypeInt
	TypeFloat
	TypeString
	TypeText
	TypeEnum
	TypeTime
)

var typeNames = [...]string{
	TypeInvalid: "invalid",
	TypeBool:    "bool",
	TypeInt:     "int",
	TypeFloat:   "float",
	TypeString:  "string",
	TypeText:    "text",
	TypeEnum:    "enum",
	TypeTime:    "time",
}

// String returns the type name.
func (t Type) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return typeNames[TypeInvalid]
}

// A Descriptor for field configuration. Descriptors are immutable once
// built; builders accumulate options and Descriptor() finalizes.
type Descriptor struct {
	Name       string   // field name
	Type       Type     // data type
	Label      string   // display label; humanized Name when unset
	Comment    string   // declaration comment
	Optional   bool     // may be absent on a valid instance
	Immutable  bool     // set once at creation, never rewritten
	Searchable bool     // participates in the free-text predicate
	Default    any      // default value, nil when none
	Values     []string // bounded vocabulary (enum only)
	Err        error    // deferred builder error
}

// DisplayLabel returns the configured label, or the humanized field
// name when no label was set.
func (d *Descriptor) DisplayLabel() string {
	if d.Label != "" {
		return d.Label
	}
	return inflect.Humanize(d.Name)
}

// HasVocabulary reports whether the field is bounded to a fixed set of
// values.
func (d *Descriptor) HasVocabulary() bool {
	return d.Type == TypeEnum && len(d.Values) > 0
}

// InVocabulary reports whether v is one of the field's allowed values.
func (d *Descriptor) InVocabulary(v string) bool {
	for _, allowed := range d.Values {
		if v == allowed {
			return true
		}
	}
	return false
}

// Validate type-checks a value against the descriptor. It does not
// enforce presence; required-field checks belong to the form artifact.
func (d *Descriptor) Validate(v any) error {
	switch d.Type {
	case TypeBool:
		if _, ok := v.(bool); !ok {
			return fmt.Errorf("field %q expects bool, got %T", d.Name, v)
		}
	case TypeInt:
		switch v.(type) {
		case int, int32, int64:
		default:
			return fmt.Errorf("field %q expects int, got %T", d.Name, v)
		}
	case TypeFloat:
		switch v.(type) {
		case float32, float64:
		default:
			return fmt.Errorf("field %q expects float, got %T", d.Name, v)
		}
	case TypeString, TypeText:
		if _, ok := v.(string); !ok {
			return fmt.Errorf("field %q expects string, got %T", d.Name, v)
		}
	case TypeEnum:
		s, ok := v.(string)
		if !ok {
			return fmt.Errorf("field %q expects string, got %T", d.Name, v)
		}
		if !d.InVocabulary(s) {
			return fmt.Errorf("field %q value %q not in allowed set %v", d.Name, s, d.Values)
		}
	case TypeTime:
		if _, ok := v.(time.Time); !ok {
			return fmt.Errorf("field %q expects time.Time, got %T", d.Name, v)
		}
	default:
		return fmt.Errorf("field %q has invalid type", d.Name)
	}
	return nil
}

// String returns a new string field builder. String fields hold short,
// bounded-length text and may be marked Searchable.
func String(name string) *StringBuilder {
	return &StringBuilder{desc: &Descriptor{Name: name, Type: TypeString}}
}

// Text returns a new text field builder. Text fields hold unbounded
// prose and are excluded from the free-text predicate for cost reasons.
func Text(name string) *TextBuilder {
	return &TextBuilder{desc: &Descriptor{Name: name, Type: TypeText}}
}

// Int returns a new integer field builder.
func Int(name string) *IntBuilder {
	return &IntBuilder{desc: &Descriptor{Name: name, Type: TypeInt}}
}

// Float returns a new float field builder.
func Float(name string) *FloatBuilder {
	return &FloatBuilder{desc: &Descriptor{Name: name, Type: TypeFloat}}
}

// Bool returns a new bool field builder.
func Bool(name string) *BoolBuilder {
	return &BoolBuilder{desc: &Descriptor{Name: name, Type: TypeBool}}
}

// Time returns a new time field builder.
func Time(name string) *TimeBuilder {
	return &TimeBuilder{desc: &Descriptor{Name: name, Type: TypeTime}}
}

// Enum returns a new enum field builder. The vocabulary set with
// Values bounds both form validation and the row limits of inline
// editors derived from relations over this field.
func Enum(name string) *EnumBuilder {
	return &EnumBuilder{desc: &Descriptor{Name: name, Type: TypeEnum}}
}

// StringBuilder is the builder for string fields.
type StringBuilder struct {
	desc *Descriptor
}

// Optional marks the field as not required at creation.
func (b *StringBuilder) Optional() *StringBuilder {
	b.desc.Optional = true
	return b
}

// Immutable marks the field as set once and never rewritten. Immutable
// fields are serialized but not restored by deserialization.
func (b *StringBuilder) Immutable() *StringBuilder {
	b.desc.Immutable = true
	return b
}

// Searchable includes the field in the free-text predicate.
func (b *StringBuilder) Searchable() *StringBuilder {
	b.desc.Searchable = true
	return b
}

// Label sets the display label.
func (b *StringBuilder) Label(l string) *StringBuilder {
	b.desc.Label = l
	return b
}

// Comment sets the declaration comment.
func (b *StringBuilder) Comment(c string) *StringBuilder {
	b.desc.Comment = c
	return b
}

// Default sets the default value.
func (b *StringBuilder) Default(v string) *StringBuilder {
	b.desc.Default = v
	return b
}

// Descriptor returns the built field descriptor.
func (b *StringBuilder) Descriptor() *Descriptor {
	return b.desc
}

// TextBuilder is the builder for text fields.
type TextBuilder struct {
	desc *Descriptor
}

// Optional marks the field as not required at creation.
func (b *TextBuilder) Optional() *TextBuilder {
	b.desc.Optional = true
	return b
}

// Label sets the display label.
func (b *TextBuilder) Label(l string) *TextBuilder {
	b.desc.Label = l
	return b
}

// Comment sets the declaration comment.
func (b *TextBuilder) Comment(c string) *TextBuilder {
	b.desc.Comment = c
	return b
}

// Searchable is rejected for text fields: the free-text predicate
// covers only bounded string fields.
func (b *TextBuilder) Searchable() *TextBuilder {
	b.desc.Err = fmt.Errorf("field %q: text fields cannot be searchable", b.desc.Name)
	return b
}

// Descriptor returns the built field descriptor.
func (b *TextBuilder) Descriptor() *Descriptor {
	return b.desc
}

// IntBuilder is the builder for int fields.
type IntBuilder struct {
	desc *Descriptor
}

// Optional marks the field as not required at creation.
func (b *IntBuilder) Optional() *IntBuilder {
	b.desc.Optional = true
	return b
}

// Immutable marks the field as set once and never rewritten.
func (b *IntBuilder) Immutable() *IntBuilder {
	b.desc.Immutable = true
	return b
}

// Label sets the display label.
func (b *IntBuilder) Label(l string) *IntBuilder {
	b.desc.Label = l
	return b
}

// Comment sets the declaration comment.
func (b *IntBuilder) Comment(c string) *IntBuilder {
	b.desc.Comment = c
	return b
}

// Default sets the default value.
func (b *IntBuilder) Default(v int) *IntBuilder {
	b.desc.Default = v
	return b
}

// Descriptor returns the built field descriptor.
func (b *IntBuilder) Descriptor() *Descriptor {
	return b.desc
}

// FloatBuilder is the builder for float fields.
type FloatBuilder struct {
	desc *Descriptor
}

// Optional marks the field as not required at creation.
func (b *FloatBuilder) Optional() *FloatBuilder {
	b.desc.Optional = true
	return b
}

// Label sets the display label.
func (b *FloatBuilder) Label(l string) *FloatBuilder {
	b.desc.Label = l
	return b
}

// Comment sets the declaration comment.
func (b *FloatBuilder) Comment(c string) *FloatBuilder {
	b.desc.Comment = c
	return b
}

// Default sets the default value.
func (b *FloatBuilder) Default(v float64) *FloatBuilder {
	b.desc.Default = v
	return b
}

// Descriptor returns the built field descriptor.
func (b *FloatBuilder) Descriptor() *Descriptor {
	return b.desc
}

// BoolBuilder is the builder for bool fields.
type BoolBuilder struct {
	desc *Descriptor
}

// Optional marks the field as not required at creation.
func (b *BoolBuilder) Optional() *BoolBuilder {
	b.desc.Optional = true
	return b
}

// Label sets the display label.
func (b *BoolBuilder) Label(l string) *BoolBuilder {
	b.desc.Label = l
	return b
}

// Default sets the default value.
func (b *BoolBuilder) Default(v bool) *BoolBuilder {
	b.desc.Default = v
	return b
}

// Descriptor returns the built field descriptor.
func (b *BoolBuilder) Descriptor() *Descriptor {
	return b.desc
}

// TimeBuilder is the builder for time fields.
type TimeBuilder struct {
	desc *Descriptor
}

// Optional marks the field as not required at creation.
func (b *TimeBuilder) Optional() *TimeBuilder {
	b.desc.Optional = true
	return b
}

// Immutable marks the field as set once and never rewritten.
func (b *TimeBuilder) Immutable() *TimeBuilder {
	b.desc.Immutable = true
	return b
}

// Label sets the display label.
func (b *TimeBuilder) Label(l string) *TimeBuilder {
	b.desc.Label = l
	return b
}

// Descriptor returns the built field descriptor.
func (b *TimeBuilder) Descriptor() *Descriptor {
	return b.desc
}

// EnumBuilder is the builder for enum fields.
type EnumBuilder struct {
	desc *Descriptor
}

// Values sets the bounded vocabulary.
func (b *EnumBuilder) Values(vs ...string) *EnumBuilder {
	b.desc.Values = append(b.desc.Values, vs...)
	return b
}

// Optional marks the field as not required at creation.
func (b *EnumBuilder) Optional() *EnumBuilder {
	b.desc.Optional = true
	return b
}

// Label sets the display label.
func (b *EnumBuilder) Label(l string) *EnumBuilder {
	b.desc.Label = l
	return b
}

// Comment sets the declaration comment.
func (b *EnumBuilder) Comment(c string) *EnumBuilder {
	b.desc.Comment = c
	return b
}

// Default sets the default value. The value must be added to the
// vocabulary via Values; Descriptor reports a mismatch through Err.
func (b *EnumBuilder) Default(v string) *EnumBuilder {
	b.desc.Default = v
	return b
}

// Descriptor returns the built field descriptor.
func (b *EnumBuilder) Descriptor() *Descriptor {
	if b.desc.Err == nil && len(b.desc.Values) == 0 {
		b.desc.Err = fmt.Errorf("field %q: enum requires a vocabulary", b.desc.Name)
	}
	if b.desc.Err == nil && b.desc.Default != nil {
		if s, ok := b.desc.Default.(string); !ok || !b.desc.InVocabulary(s) {
			b.desc.Err = fmt.Errorf("field %q: default %v not in vocabulary", b.desc.Name, b.desc.Default)
		}
	}
	return b.desc
}

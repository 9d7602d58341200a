package synth

import (
	"github.com/geoforge/terrane"
	"github.com/geoforge/terrane/registry"
)

// Inline describes a secondary editor embedded in a subtype's admin
// surface, one per declared 1-to-many metadata relation. MaxRows is
// bounded by the relation's vocabulary size rather than a constant:
// a relation keyed by a five-entry vocabulary gets five rows.
type Inline struct {
	Relation string
	Target   string
	MaxRows  int // 0 means unbounded
}

// Surface is the subtype-specific administrative surface. Renderers
// consume it for presentation only; field selection stays in the
// synthesized form and projector it embeds.
type Surface struct {
	typeName    string
	displayName string
	description string
	form        *Form
	projector   *Projector
	inlines     []Inline
}

func newSurface(rec *registry.Record, form *Form, projector *Projector) *Surface {
	s := &Surface{
		typeName:    rec.Type.Name,
		displayName: rec.Spec.DisplayName,
		description: rec.Spec.Description,
		form:        form,
		projector:   projector,
	}
	for _, rel := range rec.Type.Relations {
		s.inlines = append(s.inlines, Inline{
			Relation: rel.Name,
			Target:   rel.Target,
			MaxRows:  len(rel.Vocabulary),
		})
	}
	return s
}

// TypeName returns the surface's entity type discriminator.
func (s *Surface) TypeName() string { return s.typeName }

// DisplayName returns the human name of the entity type.
func (s *Surface) DisplayName() string { return s.displayName }

// Description returns the entity type's documentation.
func (s *Surface) Description() string { return s.description }

// Form returns the surface's creation/detail form.
func (s *Surface) Form() *Form { return s.form }

// Projector returns the surface's list projector.
func (s *Surface) Projector() *Projector { return s.projector }

// Inlines returns the embedded relation editors.
func (s *Surface) Inlines() []Inline {
	out := make([]Inline, len(s.inlines))
	copy(out, s.inlines)
	return out
}

// SubtypeChoice is one entry of the type-selection step a family
// surface presents before delegating to a subtype surface.
type SubtypeChoice struct {
	Name        string
	DisplayName string
}

// FamilyRow is one listed instance of a polymorphic family, projected
// through its own concrete subtype's list view.
type FamilyRow struct {
	Subtype string
	Columns []string
	Cells   []terrane.Value
}

// FamilyAdmin is the parent surface of a polymorphic category. It lists
// instances across the whole family and, on creation, offers the
// subtype selection step before handing off to the subtype surface.
type FamilyAdmin struct {
	ledger   *registry.Ledger
	category string
}

// NewFamilyAdmin returns the parent admin surface for a category.
func NewFamilyAdmin(ledger *registry.Ledger, category string) *FamilyAdmin {
	return &FamilyAdmin{ledger: ledger, category: category}
}

// Category returns the family's category tag.
func (a *FamilyAdmin) Category() string { return a.category }

// Subtypes returns the concrete subtype choices in registration order.
// The order is stable across runs, so operators see a predictable
// selection list.
func (a *FamilyAdmin) Subtypes() []SubtypeChoice {
	family := a.ledger.FamilyOf(a.category)
	out := make([]SubtypeChoice, 0, len(family))
	for _, rec := range family {
		out = append(out, SubtypeChoice{Name: rec.Type.Name, DisplayName: rec.Spec.DisplayName})
	}
	return out
}

// SurfaceFor resolves the chosen subtype and delegates to its surface.
func (a *FamilyAdmin) SurfaceFor(discriminator string) (*Surface, error) {
	rec, err := a.ledger.ResolveConcrete(discriminator)
	if err != nil {
		return nil, err
	}
	arts, err := Synthesize(rec)
	if err != nil {
		return nil, err
	}
	return arts.Admin, nil
}

// ListAll projects instances from across the family, each through its
// own subtype's list view. A row whose discriminator no longer resolves
// surfaces an UnresolvedSubtypeError; stale rows are reported, never
// silently coerced.
func (a *FamilyAdmin) ListAll(entities []terrane.Entity) ([]FamilyRow, error) {
	rows := make([]FamilyRow, 0, len(entities))
	for _, e := range entities {
		rec, err := a.ledger.ResolveEntity(e)
		if err != nil {
			return nil, err
		}
		arts, err := Synthesize(rec)
		if err != nil {
			return nil, err
		}
		projected := arts.Projector.Project([]terrane.Entity{e})
		rows = append(rows, FamilyRow{
			Subtype: rec.Type.Name,
			Columns: arts.Projector.Columns(),
			Cells:   projected[0],
		})
	}
	return rows, nil
}

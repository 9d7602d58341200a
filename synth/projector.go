package synth

import (
	"github.com/geoforge/terrane"
	"github.com/geoforge/terrane/registry"
)

// Projector produces ordered row tuples limited to the entity type's
// list view, without materializing unrelated fields.
type Projector struct {
	columns []string
	headers []string
}

func newProjector(rec *registry.Record) (*Projector, error) {
	descs, err := descriptorsFor(rec.Type, rec.Spec.ListFields)
	if err != nil {
		return nil, err
	}
	p := &Projector{columns: rec.Spec.ListFields}
	for _, fd := range descs {
		p.headers = append(p.headers, fd.DisplayLabel())
	}
	return p, nil
}

// Columns returns the projected field names in list view order.
func (p *Projector) Columns() []string {
	out := make([]string, len(p.columns))
	copy(out, p.columns)
	return out
}

// Headers returns the display labels matching Columns.
func (p *Projector) Headers() []string {
	out := make([]string, len(p.headers))
	copy(out, p.headers)
	return out
}

// Project maps a collection to row tuples. Each row holds exactly the
// list view's columns; unset fields project as nil.
func (p *Projector) Project(entities []terrane.Entity) [][]terrane.Value {
	rows := make([][]terrane.Value, 0, len(entities))
	for _, e := range entities {
		row := make([]terrane.Value, len(p.columns))
		for i, name := range p.columns {
			if v, ok := e.Get(name); ok {
				row[i] = v
			}
		}
		rows = append(rows, row)
	}
	return rows
}

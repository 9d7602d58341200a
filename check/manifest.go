package check

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/geoforge/terrane/registry"
	"github.com/geoforge/terrane/schema/field"
)

// Manifest is the YAML description of a deployment's registrations,
// used to validate them in CI without compiling the registering
// modules.
type Manifest struct {
	Types []ManifestType `yaml:"types"`
}

// ManifestType declares one entity type and its configuration spec.
type ManifestType struct {
	Name      string              `yaml:"name"`
	Category  string              `yaml:"category"`
	Abstract  bool                `yaml:"abstract"`
	Fields    []ManifestField     `yaml:"fields"`
	Parent    *ManifestParent     `yaml:"parent"`
	Relations []ManifestRelation  `yaml:"relations"`
	Presets   map[string][]string `yaml:"presets"`
	Spec      ManifestSpec        `yaml:"spec"`
}

// ManifestField declares one field of an entity type.
type ManifestField struct {
	Name       string   `yaml:"name"`
	Type       string   `yaml:"type"` // bool, int, float, string, text, enum, time
	Optional   bool     `yaml:"optional"`
	Immutable  bool     `yaml:"immutable"`
	Searchable bool     `yaml:"searchable"`
	Label      string   `yaml:"label"`
	Values     []string `yaml:"values"`
}

// ManifestParent declares the structural parent link.
type ManifestParent struct {
	Field  string `yaml:"field"`
	Parent string `yaml:"parent"`
}

// ManifestRelation declares a 1-to-many metadata relation.
type ManifestRelation struct {
	Name       string   `yaml:"name"`
	Target     string   `yaml:"target"`
	Vocabulary []string `yaml:"vocabulary"`
}

// ManifestSpec mirrors registry.Spec.
type ManifestSpec struct {
	DetailFields        []string `yaml:"detail_fields"`
	ListFields          []string `yaml:"list_fields"`
	FilterFields        []string `yaml:"filter_fields"`
	SerializationFields []string `yaml:"serialization_fields"`
	DisplayName         string   `yaml:"display_name"`
	Description         string   `yaml:"description"`
}

// LoadManifest reads and decodes a manifest file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("terrane/check: read manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("terrane/check: decode manifest: %w", err)
	}
	return &m, nil
}

// Build registers every manifest type into a fresh ledger, reporting
// each failed registration as a problem instead of stopping at the
// first. The returned ledger holds the registrations that succeeded.
func (m *Manifest) Build() (*registry.Ledger, Report) {
	ledger := registry.New()
	var report Report
	for _, mt := range m.Types {
		typ, err := mt.toType()
		if err != nil {
			report.Problems = append(report.Problems, err.Error())
			continue
		}
		if _, err := ledger.Register(typ, registry.Spec{
			DetailFields:        mt.Spec.DetailFields,
			ListFields:          mt.Spec.ListFields,
			FilterFields:        mt.Spec.FilterFields,
			SerializationFields: mt.Spec.SerializationFields,
			DisplayName:         mt.Spec.DisplayName,
			Description:         mt.Spec.Description,
		}, mt.Category); err != nil {
			report.Problems = append(report.Problems, err.Error())
		}
	}
	return ledger, report
}

func (mt ManifestType) toType() (*registry.Type, error) {
	typ := &registry.Type{
		Name:     mt.Name,
		Abstract: mt.Abstract,
		Presets:  mt.Presets,
	}
	for _, mf := range mt.Fields {
		fd, err := mf.descriptor()
		if err != nil {
			return nil, fmt.Errorf("terrane/check: type %q: %w", mt.Name, err)
		}
		typ.Fields = append(typ.Fields, fd)
	}
	if mt.Parent != nil {
		typ.Parent = &registry.HierarchyLink{Field: mt.Parent.Field, Parent: mt.Parent.Parent}
	}
	for _, mr := range mt.Relations {
		typ.Relations = append(typ.Relations, registry.Relation{
			Name:       mr.Name,
			Target:     mr.Target,
			Vocabulary: mr.Vocabulary,
		})
	}
	return typ, nil
}

func (mf ManifestField) descriptor() (*field.Descriptor, error) {
	var fd *field.Descriptor
	switch mf.Type {
	case "bool":
		fd = field.Bool(mf.Name).Descriptor()
	case "int":
		fd = field.Int(mf.Name).Descriptor()
	case "float":
		fd = field.Float(mf.Name).Descriptor()
	case "string":
		fd = field.String(mf.Name).Descriptor()
	case "text":
		fd = field.Text(mf.Name).Descriptor()
	case "enum":
		fd = field.Enum(mf.Name).Values(mf.Values...).Descriptor()
	case "time":
		fd = field.Time(mf.Name).Descriptor()
	default:
		return nil, fmt.Errorf("field %q: unknown type %q", mf.Name, mf.Type)
	}
	if fd.Err != nil {
		return nil, fd.Err
	}
	fd.Optional = mf.Optional
	fd.Immutable = mf.Immutable
	fd.Label = mf.Label
	if mf.Searchable {
		if mf.Type != "string" {
			return nil, fmt.Errorf("field %q: only string fields can be searchable", mf.Name)
		}
		fd.Searchable = true
	}
	return fd, nil
}

// ValidateFile loads a manifest, builds its ledger, and runs the full
// validation pass over it.
func ValidateFile(path string) (Report, error) {
	m, err := LoadManifest(path)
	if err != nil {
		return Report{}, err
	}
	ledger, report := m.Build()
	report.Problems = append(report.Problems, Run(ledger).Problems...)
	return report, nil
}

package synth_test

import (
	"testing"

	"github.com/geoforge/terrane"
	"github.com/geoforge/terrane/registry"
	"github.com/geoforge/terrane/schema/field"
	"github.com/geoforge/terrane/synth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLedger(t *testing.T) *registry.Ledger {
	t.Helper()
	ledger := registry.New()

	_, err := ledger.Register(&registry.Type{
		Name: "rock_sample",
		Fields: []*field.Descriptor{
			field.String("name").Searchable().Descriptor(),
			field.Enum("rock_type").Values("igneous", "sedimentary", "metamorphic").Descriptor(),
			field.Text("notes").Optional().Descriptor(),
			field.String("igsn").Immutable().Optional().Descriptor(),
		},
		Relations: []registry.Relation{
			{Name: "descriptions", Target: "description", Vocabulary: []string{"abstract", "methods", "origin"}},
			{Name: "dates", Target: "date", Vocabulary: []string{"collected", "archived"}},
		},
	}, registry.Spec{
		DetailFields:        []string{"name", "rock_type", "notes"},
		ListFields:          []string{"name"},
		FilterFields:        []string{"name", "rock_type"},
		SerializationFields: []string{"name", "rock_type", "igsn"},
	}, "sample")
	require.NoError(t, err)

	_, err = ledger.Register(&registry.Type{
		Name: "water_sample",
		Fields: []*field.Descriptor{
			field.String("name").Searchable().Descriptor(),
			field.Float("ph").Optional().Descriptor(),
		},
	}, registry.Spec{
		DetailFields: []string{"name", "ph"},
		ListFields:   []string{"name", "ph"},
	}, "sample")
	require.NoError(t, err)

	return ledger
}

func mustSynthesize(t *testing.T, ledger *registry.Ledger, name string) *synth.Artifacts {
	t.Helper()
	rec, ok := ledger.Get(name)
	require.True(t, ok)
	arts, err := synth.Synthesize(rec)
	require.NoError(t, err)
	return arts
}

func rockSample(t *testing.T, ledger *registry.Ledger, name, rockType string) terrane.Entity {
	t.Helper()
	e, err := ledger.NewEntity("rock_sample")
	require.NoError(t, err)
	require.NoError(t, e.Set("name", name))
	require.NoError(t, e.Set("rock_type", rockType))
	return e
}

func TestProjector(t *testing.T) {
	ledger := testLedger(t)
	arts := mustSynthesize(t, ledger, "rock_sample")

	entities := []terrane.Entity{
		rockSample(t, ledger, "granite-01", "igneous"),
		rockSample(t, ledger, "shale-02", "sedimentary"),
		rockSample(t, ledger, "gneiss-03", "metamorphic"),
	}
	rows := arts.Projector.Project(entities)
	require.Len(t, rows, 3)
	for _, row := range rows {
		require.Len(t, row, 1, "list view selects only name")
	}
	assert.Equal(t, []terrane.Value{"granite-01"}, rows[0])
	assert.Equal(t, []terrane.Value{"shale-02"}, rows[1])
	assert.Equal(t, []terrane.Value{"gneiss-03"}, rows[2])
	assert.Equal(t, []string{"name"}, arts.Projector.Columns())
	assert.Equal(t, []string{"Name"}, arts.Projector.Headers())
}

func TestForm_Validate(t *testing.T) {
	ledger := testLedger(t)
	form := mustSynthesize(t, ledger, "rock_sample").Form

	assert.NoError(t, form.Validate(map[string]terrane.Value{
		"name":      "granite-01",
		"rock_type": "igneous",
	}))

	err := form.Validate(map[string]terrane.Value{
		"rock_type": "granite",
		"hardness":  7,
	})
	require.Error(t, err)
	var agg *terrane.AggregateError
	require.ErrorAs(t, err, &agg)
	require.Len(t, agg.Errors, 3, "all problems reported at once")

	messages := err.Error()
	assert.Contains(t, messages, `"hardness"`, "unknown field named")
	assert.Contains(t, messages, `"name"`, "missing required field named")
	assert.Contains(t, messages, "allowed set", "vocabulary violation names the allowed set")
	assert.Contains(t, messages, "igneous")
}

func TestForm_Fields(t *testing.T) {
	ledger := testLedger(t)
	form := mustSynthesize(t, ledger, "rock_sample").Form

	fields := form.Fields()
	require.Len(t, fields, 3)
	assert.Equal(t, "name", fields[0].Name)
	assert.True(t, fields[0].Required)
	assert.Equal(t, "Rock type", fields[1].Label)
	assert.Equal(t, []string{"igneous", "sedimentary", "metamorphic"}, fields[1].Vocabulary)
	assert.False(t, fields[2].Required, "notes is optional")
}

func TestSynthesize_Idempotent(t *testing.T) {
	ledger := testLedger(t)
	rec, ok := ledger.Get("rock_sample")
	require.True(t, ok)

	first, err := synth.Synthesize(rec)
	require.NoError(t, err)
	second, err := synth.Synthesize(rec)
	require.NoError(t, err)

	samples := []map[string]terrane.Value{
		{"name": "granite-01", "rock_type": "igneous"},
		{"name": "granite-01", "rock_type": "granite"},
		{"rock_type": "igneous"},
		{"name": "granite-01", "rock_type": "igneous", "hardness": 7},
	}
	for _, sample := range samples {
		a, b := first.Form.Validate(sample), second.Form.Validate(sample)
		if a == nil {
			assert.NoError(t, b)
		} else {
			require.Error(t, b)
			assert.Equal(t, a.Error(), b.Error())
		}
	}
}

func TestFilterBuilder(t *testing.T) {
	ledger := testLedger(t)
	filters := mustSynthesize(t, ledger, "rock_sample").Filters

	assert.Equal(t, []string{"name", "rock_type"}, filters.Keys())
	assert.Equal(t, []string{"name"}, filters.SearchFields(), "text fields excluded from search")

	pred, err := filters.Build(map[string]terrane.Value{"rock_type": "igneous"})
	require.NoError(t, err)
	granite := rockSample(t, ledger, "granite-01", "igneous")
	shale := rockSample(t, ledger, "shale-02", "sedimentary")
	assert.True(t, pred.Match(granite))
	assert.False(t, pred.Match(shale))

	// Predicates combine with AND.
	pred, err = filters.Build(map[string]terrane.Value{
		"rock_type": "igneous",
		"name":      "basalt-09",
	})
	require.NoError(t, err)
	assert.False(t, pred.Match(granite))

	_, err = filters.Build(map[string]terrane.Value{"notes": "x"})
	require.Error(t, err)
	assert.True(t, terrane.IsBadFilterKey(err))

	pred, err = filters.Build(map[string]terrane.Value{synth.SearchKey: "GRAN"})
	require.NoError(t, err)
	assert.True(t, pred.Match(granite), "free-text match is case-insensitive")
	assert.False(t, pred.Match(shale))

	_, err = filters.Build(map[string]terrane.Value{"rock_type": 3})
	require.Error(t, err)
	assert.True(t, terrane.IsValidationError(err))
}

func TestPredicate_And(t *testing.T) {
	ledger := testLedger(t)
	filters := mustSynthesize(t, ledger, "rock_sample").Filters

	byType, err := filters.Build(map[string]terrane.Value{"rock_type": "igneous"})
	require.NoError(t, err)
	byName, err := filters.Build(map[string]terrane.Value{"name": "granite-01"})
	require.NoError(t, err)

	combined := synth.And(byType, byName)
	assert.Len(t, combined.Clauses(), 2)
	assert.True(t, combined.Match(rockSample(t, ledger, "granite-01", "igneous")))
	assert.False(t, combined.Match(rockSample(t, ledger, "granite-01", "sedimentary")))
}

func TestSerializer_RoundTrip(t *testing.T) {
	ledger := testLedger(t)
	serializer := mustSynthesize(t, ledger, "rock_sample").Serializer

	e, err := ledger.NewEntity("rock_sample")
	require.NoError(t, err)
	require.NoError(t, e.Set("name", "granite-01"))
	require.NoError(t, e.Set("rock_type", "igneous"))
	require.NoError(t, e.Set("igsn", "IEGF0001"))
	require.NoError(t, e.Set("notes", "coarse grained"))

	flat := serializer.Serialize(e)
	assert.Equal(t, map[string]terrane.Value{
		"name":      "granite-01",
		"rock_type": "igneous",
		"igsn":      "IEGF0001",
	}, flat, "restricted to serialization fields")

	back, err := serializer.Deserialize(flat)
	require.NoError(t, err)
	for _, name := range []string{"name", "rock_type"} {
		want, _ := e.Get(name)
		got, ok := back.Get(name)
		require.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}
	// Immutable fields are serialized but not restored.
	_, ok := back.Get("igsn")
	assert.False(t, ok)

	_, err = serializer.Deserialize(map[string]terrane.Value{"notes": "x"})
	require.Error(t, err)
	assert.True(t, terrane.IsValidationError(err))
}

func TestSerializer_Binary(t *testing.T) {
	ledger := testLedger(t)
	serializer := mustSynthesize(t, ledger, "rock_sample").Serializer

	e := rockSample(t, ledger, "granite-01", "igneous")
	data, err := serializer.Marshal(e)
	require.NoError(t, err)

	back, err := serializer.Unmarshal(data)
	require.NoError(t, err)
	name, ok := back.Get("name")
	require.True(t, ok)
	assert.Equal(t, "granite-01", name)
}

func TestAdminSurface_Inlines(t *testing.T) {
	ledger := testLedger(t)
	admin := mustSynthesize(t, ledger, "rock_sample").Admin

	assert.Equal(t, "rock_sample", admin.TypeName())
	assert.Equal(t, "Rock Sample", admin.DisplayName())

	inlines := admin.Inlines()
	require.Len(t, inlines, 2)
	assert.Equal(t, "descriptions", inlines[0].Relation)
	assert.Equal(t, 3, inlines[0].MaxRows, "row limit tracks the vocabulary size")
	assert.Equal(t, 2, inlines[1].MaxRows)
}

func TestFamilyAdmin(t *testing.T) {
	ledger := testLedger(t)
	admin := synth.NewFamilyAdmin(ledger, "sample")

	subtypes := admin.Subtypes()
	require.Len(t, subtypes, 2)
	assert.Equal(t, "rock_sample", subtypes[0].Name, "registration order is preserved")
	assert.Equal(t, "water_sample", subtypes[1].Name)

	surface, err := admin.SurfaceFor("water_sample")
	require.NoError(t, err)
	assert.Equal(t, "water_sample", surface.TypeName())

	_, err = admin.SurfaceFor("fossil_sample")
	require.Error(t, err)
	assert.True(t, terrane.IsUnresolvedSubtype(err))

	water, err := ledger.NewEntity("water_sample")
	require.NoError(t, err)
	require.NoError(t, water.Set("name", "spring-07"))
	require.NoError(t, water.Set("ph", 6.8))

	rows, err := admin.ListAll([]terrane.Entity{
		rockSample(t, ledger, "granite-01", "igneous"),
		water,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "rock_sample", rows[0].Subtype)
	assert.Equal(t, []terrane.Value{"granite-01"}, rows[0].Cells)
	assert.Equal(t, "water_sample", rows[1].Subtype)
	assert.Equal(t, []terrane.Value{"spring-07", 6.8}, rows[1].Cells)

	stale := terrane.NewRecord("fossil_sample")
	_, err = admin.ListAll([]terrane.Entity{stale})
	require.Error(t, err)
	assert.True(t, terrane.IsUnresolvedSubtype(err))
}

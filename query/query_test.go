package query_test

import (
	"context"
	"testing"

	"github.com/geoforge/terrane"
	"github.com/geoforge/terrane/query"
	"github.com/geoforge/terrane/registry"
	"github.com/geoforge/terrane/schema/field"
	"github.com/geoforge/terrane/storage/memory"
	"github.com/geoforge/terrane/synth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func datasetLedger(t *testing.T) *registry.Ledger {
	t.Helper()
	ledger := registry.New()
	_, err := ledger.Register(&registry.Type{
		Name: "dataset",
		Fields: []*field.Descriptor{
			field.String("title").Searchable().Descriptor(),
			field.Enum("license").Values("cc-by", "cc0").Optional().Descriptor(),
		},
		Relations: []registry.Relation{
			{Name: "contributors", Target: "contributor"},
			{Name: "descriptions", Target: "description", Vocabulary: []string{"abstract", "methods"}},
		},
		Presets: map[string][]string{
			"owner":    {"contributors"},
			"metadata": {"descriptions"},
		},
	}, registry.Spec{
		DetailFields: []string{"title", "license", "visibility"},
		FilterFields: []string{"title", "license"},
	}, "")
	require.NoError(t, err)
	return ledger
}

func dataset(t *testing.T, store *memory.Store, id, title string, visibility terrane.VisibilityLevel) terrane.Entity {
	t.Helper()
	e := terrane.NewRecordWithID("dataset", id)
	require.NoError(t, e.Set("title", title))
	require.NoError(t, e.Set(terrane.FieldVisibility, visibility.String()))
	store.Put(e)
	return e
}

func ids(entities []terrane.Entity) []string {
	out := make([]string, len(entities))
	for i, e := range entities {
		out[i] = e.ID()
	}
	return out
}

func TestDefault_ExcludesPrivate(t *testing.T) {
	ledger := datasetLedger(t)
	store := memory.New(ledger)
	dataset(t, store, "d1", "basalt survey", terrane.VisibilityPublic)
	dataset(t, store, "d2", "core log", terrane.VisibilityInternal)
	dataset(t, store, "d3", "draft", terrane.VisibilityPrivate)

	ctx := context.Background()
	visible, err := query.Default(ledger, store, "dataset").Order("title").All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2"}, ids(visible))

	all, err := query.AllIncludingPrivate(ledger, store, "dataset").Order("title").All(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"d1", "d2", "d3"}, ids(all))
}

func TestDefault_UnsetVisibilityIsPrivate(t *testing.T) {
	ledger := datasetLedger(t)
	store := memory.New(ledger)
	e := terrane.NewRecordWithID("dataset", "d1")
	require.NoError(t, e.Set("title", "no visibility set"))
	store.Put(e)

	visible, err := query.Default(ledger, store, "dataset").All(context.Background())
	require.NoError(t, err)
	assert.Empty(t, visible)
}

func TestWhere(t *testing.T) {
	ledger := datasetLedger(t)
	store := memory.New(ledger)
	dataset(t, store, "d1", "basalt survey", terrane.VisibilityPublic)
	dataset(t, store, "d2", "core log", terrane.VisibilityPublic)

	rec, ok := ledger.Get("dataset")
	require.True(t, ok)
	arts, err := synth.Synthesize(rec)
	require.NoError(t, err)
	pred, err := arts.Filters.Build(map[string]terrane.Value{synth.SearchKey: "basalt"})
	require.NoError(t, err)

	got, err := query.Default(ledger, store, "dataset").Where(pred).All(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"d1"}, ids(got))
}

func TestWithRelated_UnionAndPrefetch(t *testing.T) {
	ledger := datasetLedger(t)
	store := memory.New(ledger)
	dataset(t, store, "d1", "basalt survey", terrane.VisibilityPublic)

	abstract := terrane.NewRecordWithID("description", "desc1")
	require.NoError(t, abstract.Set("dataset_id", "d1"))
	store.Put(abstract)
	person := terrane.NewRecordWithID("contributor", "c1")
	require.NoError(t, person.Set("dataset_id", "d1"))
	store.Put(person)

	got, err := query.Default(ledger, store, "dataset").
		WithRelated("owner").
		WithRelated("metadata").
		All(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 1)

	contributors, ok := got[0].Get("contributors")
	require.True(t, ok, "preset union prefetches contributors")
	assert.Len(t, contributors, 1)
	descriptions, ok := got[0].Get("descriptions")
	require.True(t, ok, "preset union prefetches descriptions")
	assert.Len(t, descriptions, 1)
}

func TestWithRelated_UnknownPreset(t *testing.T) {
	ledger := datasetLedger(t)
	store := memory.New(ledger)
	_, err := query.Default(ledger, store, "dataset").WithRelated("everything").All(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"everything"`)
}

func TestComposition_Commutes(t *testing.T) {
	ledger := datasetLedger(t)
	store := memory.New(ledger)
	dataset(t, store, "d1", "basalt survey", terrane.VisibilityPublic)
	dataset(t, store, "d2", "basalt follow-up", terrane.VisibilityInternal)
	dataset(t, store, "d3", "basalt draft", terrane.VisibilityPrivate)
	dataset(t, store, "d4", "core log", terrane.VisibilityPublic)

	rec, ok := ledger.Get("dataset")
	require.True(t, ok)
	arts, err := synth.Synthesize(rec)
	require.NoError(t, err)
	pred, err := arts.Filters.Build(map[string]terrane.Value{synth.SearchKey: "basalt"})
	require.NoError(t, err)

	ctx := context.Background()
	orders := []*query.Collection{
		query.Default(ledger, store, "dataset").Where(pred).WithRelated("owner").Order("title"),
		query.Default(ledger, store, "dataset").Order("title").Where(pred).WithRelated("owner"),
		query.Default(ledger, store, "dataset").WithRelated("owner").Order("title").Where(pred),
	}
	want := []string{"d2", "d1"} // "basalt follow-up" < "basalt survey"
	for i, c := range orders {
		got, err := c.All(ctx)
		require.NoError(t, err, "composition %d", i)
		assert.Equal(t, want, ids(got), "composition %d", i)
	}
}

func TestChaining_DoesNotMutateBase(t *testing.T) {
	ledger := datasetLedger(t)
	store := memory.New(ledger)
	dataset(t, store, "d1", "basalt survey", terrane.VisibilityPublic)
	dataset(t, store, "d2", "core log", terrane.VisibilityPublic)

	base := query.Default(ledger, store, "dataset").Order("title")
	narrowed := base.WithRelated("owner")
	_ = narrowed

	got, err := base.All(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	_, prefetched := got[0].Get("contributors")
	assert.False(t, prefetched, "derived collection must not leak into its base")
}

func TestUnknownEntityType(t *testing.T) {
	ledger := datasetLedger(t)
	store := memory.New(ledger)
	_, err := query.Default(ledger, store, "borehole").All(context.Background())
	require.Error(t, err)
	assert.True(t, terrane.IsUnresolvedSubtype(err))
}

package memory_test

import (
	"context"
	"testing"

	"github.com/geoforge/terrane"
	"github.com/geoforge/terrane/registry"
	"github.com/geoforge/terrane/schema/field"
	"github.com/geoforge/terrane/storage"
	"github.com/geoforge/terrane/storage/memory"
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
			field.Enum("rock_type").Values("igneous", "sedimentary").Optional().Descriptor(),
		},
		Relations: []registry.Relation{
			{Name: "dates", Target: "date", Vocabulary: []string{"collected", "archived"}},
		},
	}, registry.Spec{DetailFields: []string{"name", "rock_type"}}, "sample")
	require.NoError(t, err)
	return ledger
}

func put(t *testing.T, store *memory.Store, typ, id string, fields map[string]terrane.Value) {
	t.Helper()
	e := terrane.NewRecordWithID(typ, id)
	for k, v := range fields {
		require.NoError(t, e.Set(k, v))
	}
	store.Put(e)
}

func TestGet(t *testing.T) {
	store := memory.New(testLedger(t))
	put(t, store, "rock_sample", "s1", map[string]terrane.Value{"name": "granite-01"})

	ctx := context.Background()
	e, err := store.Get(ctx, "rock_sample", "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", e.ID())

	_, err = store.Get(ctx, "rock_sample", "s2")
	require.ErrorIs(t, err, terrane.ErrNotFound)
}

func TestList_ClausesAndOrder(t *testing.T) {
	store := memory.New(testLedger(t))
	put(t, store, "rock_sample", "s2", map[string]terrane.Value{
		"name": "shale-02", "rock_type": "sedimentary", terrane.FieldVisibility: "public",
	})
	put(t, store, "rock_sample", "s1", map[string]terrane.Value{
		"name": "granite-01", "rock_type": "igneous", terrane.FieldVisibility: "public",
	})
	put(t, store, "rock_sample", "s3", map[string]terrane.Value{
		"name": "basalt-03", "rock_type": "igneous", terrane.FieldVisibility: "private",
	})

	ctx := context.Background()
	got, err := store.List(ctx, "rock_sample", storage.Options{
		Clauses:        []synth.Clause{{Op: synth.OpEQ, Field: "rock_type", Value: "igneous"}},
		OrderBy:        "name",
		ExcludePrivate: true,
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "s1", got[0].ID())

	got, err = store.List(ctx, "rock_sample", storage.Options{OrderBy: "name"})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "s3", got[0].ID(), "basalt sorts first when private rows are included")
}

func TestList_Prefetch(t *testing.T) {
	store := memory.New(testLedger(t))
	put(t, store, "rock_sample", "s1", map[string]terrane.Value{
		"name": "granite-01", terrane.FieldVisibility: "public",
	})
	put(t, store, "date", "dt1", map[string]terrane.Value{"rock_sample_id": "s1"})

	got, err := store.List(context.Background(), "rock_sample", storage.Options{
		Related: []string{"dates"},
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	dates, ok := got[0].Get("dates")
	require.True(t, ok)
	assert.Len(t, dates, 1)

	_, err = store.List(context.Background(), "rock_sample", storage.Options{
		Related: []string{"locations"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"locations"`)
}

func TestList_PrefetchDoesNotLeakIntoStore(t *testing.T) {
	store := memory.New(testLedger(t))
	put(t, store, "rock_sample", "s1", map[string]terrane.Value{"name": "granite-01"})
	put(t, store, "date", "dt1", map[string]terrane.Value{"rock_sample_id": "s1"})

	ctx := context.Background()
	eager, err := store.List(ctx, "rock_sample", storage.Options{Related: []string{"dates"}})
	require.NoError(t, err)
	require.Len(t, eager, 1)
	_, ok := eager[0].Get("dates")
	require.True(t, ok)

	plain, err := store.List(ctx, "rock_sample", storage.Options{})
	require.NoError(t, err)
	require.Len(t, plain, 1)
	_, ok = plain[0].Get("dates")
	assert.False(t, ok, "eager loading must not write into stored instances")

	got, err := store.Get(ctx, "rock_sample", "s1")
	require.NoError(t, err)
	_, ok = got.Get("dates")
	assert.False(t, ok)
}

func TestSnapshotIsolation(t *testing.T) {
	store := memory.New(testLedger(t))
	original := terrane.NewRecordWithID("rock_sample", "s1")
	require.NoError(t, original.Set("name", "granite-01"))
	store.Put(original)

	// Mutating the inserted instance after Put changes nothing.
	require.NoError(t, original.Set("name", "mutated"))

	ctx := context.Background()
	got, err := store.Get(ctx, "rock_sample", "s1")
	require.NoError(t, err)
	name, _ := got.Get("name")
	assert.Equal(t, "granite-01", name)

	// Mutating a retrieved instance changes nothing either.
	require.NoError(t, got.Set("name", "also mutated"))
	again, err := store.Get(ctx, "rock_sample", "s1")
	require.NoError(t, err)
	name, _ = again.Get("name")
	assert.Equal(t, "granite-01", name)
}

func TestList_DefaultIDOrder(t *testing.T) {
	store := memory.New(testLedger(t))
	put(t, store, "rock_sample", "s2", map[string]terrane.Value{"name": "shale-02"})
	put(t, store, "rock_sample", "s3", map[string]terrane.Value{"name": "basalt-03"})
	put(t, store, "rock_sample", "s1", map[string]terrane.Value{"name": "granite-01"})

	got, err := store.List(context.Background(), "rock_sample", storage.Options{})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "s1", got[0].ID(), "unset OrderBy means ID order, not insertion order")
	assert.Equal(t, "s2", got[1].ID())
	assert.Equal(t, "s3", got[2].ID())
}

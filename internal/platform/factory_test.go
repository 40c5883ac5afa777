package platform_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/tessera/internal/platform"
	"github.com/aretw0/tessera/pkg/adapters/memory"
	"github.com/aretw0/tessera/pkg/core"
	"github.com/aretw0/tessera/pkg/graph"
	"github.com/aretw0/tessera/pkg/model"
)

const peopleSchema = `
types:
  - name: Person
    id: name
    fields:
      name: {type: string, readonly: true}
      best: Person
`

func writeSchema(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, platform.SchemaFile)
	require.NoError(t, os.WriteFile(path, []byte(peopleSchema), 0644))
	return path
}

func saveAndFind(t *testing.T, store *graph.Store) {
	t.Helper()
	ctx := context.Background()

	desc, ok := store.Catalog().Lookup("Person")
	require.True(t, ok)
	bob := model.MustNew(desc, map[string]any{"name": "bob"})
	_, err := store.Save(ctx, bob)
	require.NoError(t, err)

	got, err := store.FindByID(ctx, "Person", "bob")
	require.NoError(t, err)
	name, err := got.Get("name")
	require.NoError(t, err)
	assert.Equal(t, "bob", name)
}

func TestOpen_Adapters(t *testing.T) {
	schemaDir := t.TempDir()
	schemaPath := writeSchema(t, schemaDir)

	t.Run("FS Loads Schema From Directory", func(t *testing.T) {
		dir := t.TempDir()
		writeSchema(t, dir)

		store, err := platform.Open(dir)
		require.NoError(t, err)
		defer store.Close()

		saveAndFind(t, store)
		_, err = os.Stat(filepath.Join(dir, "person_bob.json"))
		assert.NoError(t, err)
	})

	t.Run("FS YAML Format", func(t *testing.T) {
		dir := t.TempDir()
		store, err := platform.Open(dir, platform.WithSchemaFile(schemaPath), platform.WithFormat("yaml"))
		require.NoError(t, err)
		defer store.Close()

		saveAndFind(t, store)
		_, err = os.Stat(filepath.Join(dir, "person_bob.yaml"))
		assert.NoError(t, err)
	})

	t.Run("Badger In Memory", func(t *testing.T) {
		store, err := platform.Open("", platform.WithAdapter(platform.AdapterBadger),
			platform.WithInMemory(true), platform.WithSchemaFile(schemaPath))
		require.NoError(t, err)
		defer store.Close()
		saveAndFind(t, store)
	})

	t.Run("Badger On Disk", func(t *testing.T) {
		dir := t.TempDir()
		store, err := platform.Open(dir, platform.WithAdapter(platform.AdapterBadger),
			platform.WithSchemaFile(schemaPath))
		require.NoError(t, err)
		saveAndFind(t, store)
		require.NoError(t, store.Close())

		_, err = os.Stat(filepath.Join(dir, ".tessera", "db"))
		assert.NoError(t, err)
	})

	t.Run("Memory", func(t *testing.T) {
		store, err := platform.Open("", platform.WithAdapter(platform.AdapterMemory),
			platform.WithSchemaFile(schemaPath))
		require.NoError(t, err)
		saveAndFind(t, store)
	})

	t.Run("Injected Bucket And Catalog", func(t *testing.T) {
		catalog, err := platform.LoadCatalog("", platform.WithSchemaFile(schemaPath))
		require.NoError(t, err)

		bucket := memory.New()
		store, err := platform.Open("ignored", platform.WithBucket(bucket), platform.WithCatalog(catalog))
		require.NoError(t, err)
		assert.Same(t, catalog, store.Catalog())

		saveAndFind(t, store)
		assert.Equal(t, 1, bucket.Len())
	})
}

func TestOpen_Errors(t *testing.T) {
	_, err := platform.Open(t.TempDir(), platform.WithAdapter("s3"))
	assert.ErrorContains(t, err, "unknown adapter")

	_, err = platform.Open(t.TempDir(), platform.WithSchemaFile(filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)

	_, err = platform.Open(t.TempDir(), platform.WithFormat(".toml"))
	assert.Error(t, err)

	_, err = platform.Open(filepath.Join(t.TempDir(), "missing"), platform.WithMustExist(true))
	assert.Error(t, err)
}

func TestOpen_ReadOnly(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeSchema(t, dir)

	store, err := platform.Open(dir, platform.WithReadOnly(true), platform.WithSchemaFile(schemaPath))
	require.NoError(t, err)

	desc, _ := store.Catalog().Lookup("Person")
	_, err = store.Save(context.Background(), model.MustNew(desc, map[string]any{"name": "bob"}))
	assert.ErrorIs(t, err, core.ErrBucketRO)
}

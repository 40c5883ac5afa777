package fs_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/tessera/pkg/adapters/fs"
	"github.com/aretw0/tessera/pkg/core"
)

func sampleDoc() core.Value {
	return core.Map(map[string]core.Value{
		"_type":   core.String("Person"),
		"name":    core.String("bob"),
		"age":     core.Number(42),
		"best":    core.RefTo("Person", "person_alice"),
		"friends": core.List(core.RefTo("Person", "person_carol")),
	})
}

func TestBucket_RoundTrip(t *testing.T) {
	for _, format := range []string{".json", "yaml"} {
		t.Run(format, func(t *testing.T) {
			ctx := context.Background()
			b, err := fs.New(fs.Config{Path: t.TempDir(), Format: format})
			require.NoError(t, err)

			tok, err := b.Set(ctx, "person_bob", sampleDoc(), "")
			require.NoError(t, err)

			got, gotTok, err := b.Get(ctx, "person_bob")
			require.NoError(t, err)
			assert.Equal(t, tok, gotTok)
			assert.True(t, sampleDoc().Equal(got), "got %s", got)
		})
	}
}

func TestBucket_Preconditions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := fs.New(fs.Config{Path: dir})
	require.NoError(t, err)

	_, err = b.Set(ctx, "k", core.Null(), "abc")
	assert.ErrorIs(t, err, core.ErrConflict)

	t1, err := b.Set(ctx, "k", core.Number(1), "")
	require.NoError(t, err)
	t2, err := b.Set(ctx, "k", core.Number(2), t1)
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)

	t.Run("External Edit Is A Conflict", func(t *testing.T) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, "k.json"), []byte("3\n"), 0644))
		_, err := b.Set(ctx, "k", core.Number(4), t2)
		assert.ErrorIs(t, err, core.ErrConflict)

		v, tok, err := b.Get(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, core.Number(3), v)
		require.NoError(t, b.Remove(ctx, "k", tok))
	})

	_, _, err = b.Get(ctx, "k")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestBucket_KeepsExistingFormat(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "note_1.yaml"), []byte("_type: Note\nbody: hi\n"), 0644))

	b, err := fs.New(fs.Config{Path: dir})
	require.NoError(t, err)

	doc, tok, err := b.Get(ctx, "note_1")
	require.NoError(t, err)
	body, _ := doc.Field("body")
	assert.Equal(t, core.String("hi"), body)

	_, err = b.Set(ctx, "note_1", core.Map(map[string]core.Value{"body": core.String("bye")}), tok)
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "note_1.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestBucket_Keys(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	b, err := fs.New(fs.Config{Path: dir})
	require.NoError(t, err)

	for _, k := range []string{"person_a", "blog/post_1", "blog/post_2"} {
		_, err := b.Set(ctx, k, core.Null(), "")
		require.NoError(t, err)
	}
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ".tessera"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".tessera", "x.json"), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("#"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, fs.TempFilePrefix+"1"), []byte("{}"), 0644))

	keys, err := b.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"blog/post_1", "blog/post_2", "person_a"}, keys)

	keys, err = b.Keys(ctx, "blog/**")
	require.NoError(t, err)
	assert.Equal(t, []string{"blog/post_1", "blog/post_2"}, keys)
}

func TestBucket_InvalidKeys(t *testing.T) {
	ctx := context.Background()
	b, err := fs.New(fs.Config{Path: t.TempDir()})
	require.NoError(t, err)

	for _, key := range []string{"", "../escape", "/abs", "a//b", ".hidden", `a\b`} {
		_, err := b.Set(ctx, key, core.Null(), "")
		assert.Error(t, err, key)
	}
}

func TestBucket_ReadOnly(t *testing.T) {
	b, err := fs.New(fs.Config{Path: t.TempDir(), ReadOnly: true})
	require.NoError(t, err)
	_, err = b.Set(context.Background(), "k", core.Null(), "")
	assert.ErrorIs(t, err, core.ErrBucketRO)

	_, err = fs.New(fs.Config{Path: filepath.Join(t.TempDir(), "missing"), MustExist: true})
	assert.Error(t, err)

	_, err = fs.New(fs.Config{Path: t.TempDir(), Format: ".csv"})
	assert.Error(t, err)
}

func TestBucket_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	dir := t.TempDir()
	b, err := fs.New(fs.Config{Path: dir})
	require.NoError(t, err)

	events, err := b.Watch(ctx, "person_*")
	require.NoError(t, err)

	_, err = b.Set(ctx, "note_1", core.Null(), "")
	require.NoError(t, err)
	_, err = b.Set(ctx, "person_a", core.Null(), "")
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, "person_a", ev.Key)
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
	}

	cancel()
	require.Eventually(t, func() bool {
		for {
			select {
			case _, ok := <-events:
				if !ok {
					return true
				}
			default:
				return false
			}
		}
	}, 3*time.Second, 20*time.Millisecond)
	assert.Equal(t, 0, b.State().(fs.BucketState).Watchers)
}

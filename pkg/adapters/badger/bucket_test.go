package badger_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/tessera/pkg/adapters/badger"
	"github.com/aretw0/tessera/pkg/core"
)

func openBucket(t *testing.T) *badger.Bucket {
	t.Helper()
	b, err := badger.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBucket_GetSet(t *testing.T) {
	ctx := context.Background()
	b := openBucket(t)
	doc := core.Map(map[string]core.Value{
		"_type": core.String("Person"),
		"best":  core.RefTo("Person", "person_b"),
		"tags":  core.List(core.String("x")),
	})

	_, _, err := b.Get(ctx, "person_a")
	assert.ErrorIs(t, err, core.ErrNotFound)

	t1, err := b.Set(ctx, "person_a", doc, "")
	require.NoError(t, err)

	got, tok, err := b.Get(ctx, "person_a")
	require.NoError(t, err)
	assert.Equal(t, t1, tok)
	assert.True(t, doc.Equal(got), "got %s", got)

	t2, err := b.Set(ctx, "person_a", doc, t1)
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)

	_, err = b.Set(ctx, "person_a", doc, t1)
	assert.ErrorIs(t, err, core.ErrConflict)

	_, err = b.Set(ctx, "person_z", doc, t1)
	assert.ErrorIs(t, err, core.ErrConflict, "precondition on a missing key")
}

func TestBucket_TokensDoNotRepeatAfterRemove(t *testing.T) {
	ctx := context.Background()
	b := openBucket(t)

	t1, err := b.Set(ctx, "k", core.Null(), "")
	require.NoError(t, err)
	require.NoError(t, b.Remove(ctx, "k", t1))

	t2, err := b.Set(ctx, "k", core.Null(), "")
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)

	assert.ErrorIs(t, b.Remove(ctx, "k", t1), core.ErrConflict)
	assert.ErrorIs(t, b.Remove(ctx, "missing", ""), core.ErrNotFound)
}

func TestBucket_ConcurrentWritersConflict(t *testing.T) {
	ctx := context.Background()
	b := openBucket(t)
	base, err := b.Set(ctx, "k", core.Number(0), "")
	require.NoError(t, err)

	const writers = 8
	var wg sync.WaitGroup
	results := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := b.Set(ctx, "k", core.Number(float64(n)), base)
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, core.ErrConflict)
	}
	assert.Equal(t, 1, wins)
}

func TestBucket_Keys(t *testing.T) {
	ctx := context.Background()
	b := openBucket(t)
	for _, k := range []string{"person_a", "person_b", "note_1"} {
		_, err := b.Set(ctx, k, core.Null(), "")
		require.NoError(t, err)
	}

	keys, err := b.Keys(ctx, "person_*")
	require.NoError(t, err)
	assert.Equal(t, []string{"person_a", "person_b"}, keys)

	keys, err = b.Keys(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"note_1", "person_a", "person_b"}, keys)
}

func TestBucket_ReadOnlyAndClosed(t *testing.T) {
	ctx := context.Background()
	cfg := badger.InMemoryConfig()
	cfg.ReadOnly = true
	b, err := badger.Open(cfg)
	require.NoError(t, err)

	_, err = b.Set(ctx, "k", core.Null(), "")
	assert.ErrorIs(t, err, core.ErrBucketRO)

	require.NoError(t, b.Close())
	_, _, err = b.Get(ctx, "k")
	assert.ErrorIs(t, err, core.ErrBucketClosed)
	assert.True(t, b.State().(badger.BucketState).Closed)
}

func TestBucket_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	b := openBucket(t)

	events, err := b.Watch(ctx, "person_*")
	require.NoError(t, err)

	// The subscription registers asynchronously; keep writing until it reports.
	var got core.Event
	require.Eventually(t, func() bool {
		_, _ = b.Set(ctx, "note_1", core.Null(), "")
		_, _ = b.Set(ctx, "person_a", core.String("x"), "")
		select {
		case got = <-events:
			return true
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "person_a", got.Key)
	assert.Contains(t, []core.EventType{core.EventCreate, core.EventModify}, got.Type)
}

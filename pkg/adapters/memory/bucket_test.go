package memory_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/tessera/pkg/adapters/memory"
	"github.com/aretw0/tessera/pkg/core"
)

func TestBucket_Tokens(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	doc := core.Map(map[string]core.Value{"a": core.Number(1)})

	_, _, err := b.Get(ctx, "k")
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = b.Set(ctx, "k", doc, "7")
	assert.ErrorIs(t, err, core.ErrConflict, "precondition on a missing key")

	t1, err := b.Set(ctx, "k", doc, "")
	require.NoError(t, err)
	require.NotEmpty(t, t1)

	got, tok, err := b.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, t1, tok)
	assert.True(t, doc.Equal(got))

	t2, err := b.Set(ctx, "k", doc, t1)
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)

	_, err = b.Set(ctx, "k", doc, t1)
	assert.ErrorIs(t, err, core.ErrConflict, "stale token")

	assert.ErrorIs(t, b.Remove(ctx, "k", t1), core.ErrConflict)
	require.NoError(t, b.Remove(ctx, "k", t2))
	assert.ErrorIs(t, b.Remove(ctx, "k", ""), core.ErrNotFound)
}

func TestBucket_Keys(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	for _, k := range []string{"person_a", "person_b", "note_1"} {
		_, err := b.Set(ctx, k, core.Null(), "")
		require.NoError(t, err)
	}

	keys, err := b.Keys(ctx, "person_*")
	require.NoError(t, err)
	assert.Equal(t, []string{"person_a", "person_b"}, keys)

	keys, err = b.Keys(ctx, "")
	require.NoError(t, err)
	assert.Len(t, keys, 3)

	_, err = b.Keys(ctx, "[")
	assert.Error(t, err)
}

func TestBucket_ReadOnly(t *testing.T) {
	b := memory.New(memory.WithReadOnly(true))
	_, err := b.Set(context.Background(), "k", core.Null(), "")
	assert.ErrorIs(t, err, core.ErrBucketRO)
}

func TestBucket_Watch(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := memory.New()

	events, err := b.Watch(ctx, "person_*")
	require.NoError(t, err)

	_, err = b.Set(ctx, "note_1", core.Null(), "")
	require.NoError(t, err)
	_, err = b.Set(ctx, "person_a", core.Null(), "")
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, core.EventCreate, ev.Type)
		assert.Equal(t, "person_a", ev.Key)
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

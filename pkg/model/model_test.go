package model_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/tessera/pkg/core"
	"github.com/aretw0/tessera/pkg/model"
	"github.com/aretw0/tessera/pkg/schema"
)

type fixture struct {
	catalog *schema.Catalog
	codec   *model.Codec
	person  *schema.Descriptor
	address *schema.Descriptor
	note    *schema.Descriptor
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	r := schema.NewRegistry()
	person := r.MustRegister(schema.Descriptor{
		Name: "Person",
		Fields: []schema.Field{
			{Name: "name", Type: schema.TypeString, ReadOnly: true},
			{Name: "age", Type: schema.TypeInteger},
			{Name: "best", Type: "Person"},
			{Name: "friends", Type: schema.TypeList, Subtype: "Person"},
			{Name: "home", Type: "Address"},
			{Name: "extra"},
		},
		ID: []string{"name"},
	})
	address := r.MustRegister(schema.Descriptor{
		Name:  "Address",
		Embed: true,
		Fields: []schema.Field{
			{Name: "city", Type: schema.TypeString},
			{Name: "next", Type: "Address"},
		},
	})
	note := r.MustRegister(schema.Descriptor{
		Name:   "Note",
		Fields: []schema.Field{{Name: "body", Type: schema.TypeString, Required: true}},
	})
	catalog, err := r.Freeze()
	require.NoError(t, err)
	return fixture{catalog: catalog, codec: model.NewCodec(catalog), person: person, address: address, note: note}
}

func TestInstance_Key(t *testing.T) {
	f := newFixture(t)

	t.Run("Lowercased Type And Identifiers", func(t *testing.T) {
		p := model.MustNew(f.person, map[string]any{"name": "Bob"})
		key, err := p.Key()
		require.NoError(t, err)
		assert.Equal(t, "person_bob", key)

		key, err = model.KeyFor(f.person, "Bob")
		require.NoError(t, err)
		assert.Equal(t, "person_bob", key)
	})

	t.Run("Missing Identifier", func(t *testing.T) {
		_, err := model.MustNew(f.person, nil).Key()
		assert.ErrorIs(t, err, core.ErrMissingIdentifier)

		_, err = model.KeyFor(f.person)
		assert.ErrorIs(t, err, core.ErrMissingIdentifier)
	})

	t.Run("Missing Required", func(t *testing.T) {
		_, err := model.MustNew(f.note, nil).Key()
		assert.ErrorIs(t, err, core.ErrMissingRequired)
	})

	t.Run("Auto UUID Identifier", func(t *testing.T) {
		n := model.MustNew(f.note, map[string]any{"body": "hi"})
		id, err := n.Get("_id")
		require.NoError(t, err)
		require.NotEmpty(t, id)

		again, err := n.Get("_id")
		require.NoError(t, err)
		assert.Equal(t, id, again)

		key, err := n.Key()
		require.NoError(t, err)
		assert.Equal(t, "note_"+id.(string), key)
	})
}

func TestInstance_FieldAccess(t *testing.T) {
	f := newFixture(t)
	p := model.MustNew(f.person, map[string]any{"name": "a"})

	assert.ErrorIs(t, p.Set("name", "b"), core.ErrReadOnly)
	assert.ErrorIs(t, p.Set("nope", 1), core.ErrUnknownField)
	require.NoError(t, p.Set("age", 3))

	v, err := p.Get("age")
	require.NoError(t, err)
	assert.Equal(t, 3, v)

	v, err = p.Get("best")
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.False(t, p.Has("best"))

	_, err = model.New(f.person, map[string]any{"nope": 1})
	assert.ErrorIs(t, err, core.ErrUnknownField)
}

func TestEncode_ReferencesBelowRoot(t *testing.T) {
	f := newFixture(t)
	a := model.MustNew(f.person, map[string]any{"name": "a"})
	b := model.MustNew(f.person, map[string]any{"name": "b"})
	require.NoError(t, a.Set("best", b))
	require.NoError(t, b.Set("best", a))
	require.NoError(t, a.Set("friends", []any{b, b}))

	res, err := f.codec.EncodeRoot(a)
	require.NoError(t, err)

	want := core.Map(map[string]core.Value{
		"_type":   core.String("Person"),
		"name":    core.String("a"),
		"best":    core.RefTo("Person", "person_b"),
		"friends": core.List(core.RefTo("Person", "person_b"), core.RefTo("Person", "person_b")),
	})
	assert.True(t, want.Equal(res.Doc), "got %s", res.Doc)
	require.Len(t, res.Refs, 1)
	assert.Same(t, b, res.Refs[0])
}

func TestEncode_Embedded(t *testing.T) {
	f := newFixture(t)
	home := model.MustNew(f.address, map[string]any{"city": "Lisbon"})
	p := model.MustNew(f.person, map[string]any{"name": "a", "home": home})

	res, err := f.codec.EncodeRoot(p)
	require.NoError(t, err)
	assert.Empty(t, res.Refs)

	got, ok := res.Doc.Field("home")
	require.True(t, ok)
	city, _ := got.Field("city")
	assert.Equal(t, core.String("Lisbon"), city)
	tag, _ := got.Field("_type")
	assert.Equal(t, core.String("Address"), tag)

	t.Run("Cycle", func(t *testing.T) {
		require.NoError(t, home.Set("next", home))
		_, err := f.codec.EncodeRoot(p)
		assert.ErrorIs(t, err, core.ErrEmbeddedCycle)
	})
}

func TestEncode_Errors(t *testing.T) {
	f := newFixture(t)

	t.Run("Composite In Scalar Field", func(t *testing.T) {
		p := model.MustNew(f.person, map[string]any{"name": "a", "age": []any{1}})
		_, err := f.codec.EncodeRoot(p)
		assert.ErrorIs(t, err, core.ErrTypeMismatch)

		var me *core.MarshalError
		require.ErrorAs(t, err, &me)
		assert.Equal(t, []string{"age"}, me.Path)
	})

	t.Run("Wrong Object Type", func(t *testing.T) {
		n := model.MustNew(f.note, map[string]any{"body": "x"})
		p := model.MustNew(f.person, map[string]any{"name": "a", "best": n})
		_, err := f.codec.EncodeRoot(p)
		assert.ErrorIs(t, err, core.ErrTypeMismatch)
	})

	t.Run("Reference Without Key", func(t *testing.T) {
		p := model.MustNew(f.person, map[string]any{"name": "a", "best": model.MustNew(f.person, nil)})
		_, err := f.codec.EncodeRoot(p)
		assert.ErrorIs(t, err, core.ErrMissingIdentifier)
	})

	t.Run("Reference Marker Key In Composite", func(t *testing.T) {
		p := model.MustNew(f.person, map[string]any{"name": "a", "extra": map[string]any{core.RefField: "note"}})
		_, err := f.codec.EncodeRoot(p)
		assert.ErrorIs(t, err, core.ErrTypeMismatch)

		var me *core.MarshalError
		require.ErrorAs(t, err, &me)
		assert.Equal(t, []string{"extra"}, me.Path)

		nested := core.List(core.Map(map[string]core.Value{core.RefField: core.String("x")}))
		p = model.MustNew(f.person, map[string]any{"name": "a", "extra": nested})
		_, err = f.codec.EncodeRoot(p)
		assert.ErrorIs(t, err, core.ErrTypeMismatch)

		p = model.MustNew(f.person, map[string]any{"name": "a", "extra": core.RefTo("Person", "person_b")})
		_, err = f.codec.EncodeRoot(p)
		assert.NoError(t, err, "a reference marker itself is fine")
	})

	t.Run("Unknown Type In Mixed", func(t *testing.T) {
		stray := &schema.Descriptor{Name: "Stray"}
		p := model.MustNew(f.person, map[string]any{"name": "a", "extra": model.MustNew(stray, nil)})
		_, err := f.codec.EncodeRoot(p)
		assert.ErrorIs(t, err, core.ErrUnknownType)
	})
}

func TestEncode_Mixed(t *testing.T) {
	f := newFixture(t)
	b := model.MustNew(f.person, map[string]any{"name": "b"})
	p := model.MustNew(f.person, map[string]any{
		"name":  "a",
		"extra": map[string]any{"tags": []string{"x", "y"}, "who": b, "n": 2},
	})

	res, err := f.codec.EncodeRoot(p)
	require.NoError(t, err)

	extra, _ := res.Doc.Field("extra")
	want := core.Map(map[string]core.Value{
		"tags": core.List(core.String("x"), core.String("y")),
		"who":  core.RefTo("Person", "person_b"),
		"n":    core.Number(2),
	})
	assert.True(t, want.Equal(extra), "got %s", extra)
	assert.Equal(t, []*model.Instance{b}, res.Refs)
}

func TestDecode_SharedReferences(t *testing.T) {
	f := newFixture(t)
	doc := core.Map(map[string]core.Value{
		"_type":   core.String("Person"),
		"name":    core.String("a"),
		"age":     core.Number(30),
		"best":    core.RefTo("Person", "person_b"),
		"friends": core.List(core.RefTo("Person", "person_b"), core.RefTo("Person", "person_c")),
	})

	cache := model.NewCache()
	a, err := f.codec.DecodeRoot(doc, "Person", "person_a", cache)
	require.NoError(t, err)
	assert.True(t, a.Loaded())

	cached, ok := cache.Get("person_a")
	require.True(t, ok)
	assert.Same(t, a, cached)

	best, err := a.Get("best")
	require.NoError(t, err)
	friends, err := a.Get("friends")
	require.NoError(t, err)

	b := best.(*model.Instance)
	assert.Same(t, b, friends.([]any)[0])
	assert.False(t, b.Loaded())
	assert.Equal(t, []string{"person_a", "person_b", "person_c"}, cache.Keys())

	age, err := a.Get("age")
	require.NoError(t, err)
	assert.Equal(t, int64(30), age)

	_, err = b.Get("name")
	assert.ErrorIs(t, err, core.ErrNotLoaded)
	key, err := b.Key()
	require.NoError(t, err)
	assert.Equal(t, "person_b", key)

	snap, ok := a.Snapshot()
	require.True(t, ok)
	assert.True(t, doc.Equal(snap))
}

func TestDecode_RoundTrip(t *testing.T) {
	f := newFixture(t)
	b := model.MustNew(f.person, map[string]any{"name": "b"})
	home := model.MustNew(f.address, map[string]any{"city": "Porto"})
	a := model.MustNew(f.person, map[string]any{
		"name": "a", "age": int64(4), "best": b, "home": home,
		"extra": map[string]any{"plain": true},
	})

	res, err := f.codec.EncodeRoot(a)
	require.NoError(t, err)

	back, err := f.codec.DecodeRoot(res.Doc, "Person", "person_a", nil)
	require.NoError(t, err)

	again, err := f.codec.EncodeRoot(back)
	require.NoError(t, err)
	assert.True(t, res.Doc.Equal(again.Doc))

	extra, err := back.Get("extra")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"plain": true}, extra)
}

func TestDecode_Errors(t *testing.T) {
	f := newFixture(t)
	tagged := func(fields map[string]core.Value) core.Value {
		fields["_type"] = core.String("Person")
		return core.Map(fields)
	}

	cases := map[string]struct {
		doc  core.Value
		want error
	}{
		"fractional integer": {
			doc:  tagged(map[string]core.Value{"name": core.String("a"), "age": core.Number(2.5)}),
			want: core.ErrTypeMismatch,
		},
		"scalar where object declared": {
			doc:  tagged(map[string]core.Value{"best": core.String("b")}),
			want: core.ErrTypeMismatch,
		},
		"reference to another type": {
			doc:  tagged(map[string]core.Value{"best": core.RefTo("Note", "note_1")}),
			want: core.ErrRefTypeMismatch,
		},
		"untagged root": {
			doc:  core.Map(map[string]core.Value{"name": core.String("a")}),
			want: core.ErrTypeMismatch,
		},
		"reference to unknown type in mixed": {
			doc:  tagged(map[string]core.Value{"extra": core.RefTo("Ghost", "ghost_1")}),
			want: core.ErrUnknownType,
		},
		"list field holding a map": {
			doc:  tagged(map[string]core.Value{"friends": core.Map(nil)}),
			want: core.ErrTypeMismatch,
		},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.codec.DecodeRoot(tc.doc, "Person", "person_a", nil)
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestCache_Conflict(t *testing.T) {
	f := newFixture(t)
	cache := model.NewCache()

	p1, err := cache.Resolve(core.Ref{Type: "Person", Key: "k"}, f.person)
	require.NoError(t, err)
	p2, err := cache.Resolve(core.Ref{Type: "Person", Key: "k"}, f.person)
	require.NoError(t, err)
	assert.Same(t, p1, p2)

	_, err = cache.Resolve(core.Ref{Type: "Note", Key: "k"}, f.note)
	assert.ErrorIs(t, err, core.ErrCacheConflict)

	other := model.MustNew(f.person, map[string]any{"name": "k"})
	require.NoError(t, cache.Put(model.MustNew(f.person, map[string]any{"name": "z"})))
	require.NoError(t, cache.Put(other))
	assert.Error(t, cache.Put(model.MustNew(f.person, map[string]any{"name": "K"})))
}

func TestHydrate(t *testing.T) {
	f := newFixture(t)
	cache := model.NewCache()
	b, err := cache.Resolve(core.Ref{Type: "Person", Key: "person_b"}, f.person)
	require.NoError(t, err)

	err = f.codec.Hydrate(b, core.Map(map[string]core.Value{
		"_type": core.String("Person"),
		"name":  core.String("b"),
		"best":  core.RefTo("Person", "person_b"),
	}))
	require.NoError(t, err)
	require.True(t, b.Loaded())

	best, err := b.Get("best")
	require.NoError(t, err)
	assert.Same(t, b, best)
	assert.Same(t, cache, b.Cache())

	err = f.codec.Hydrate(b, core.Map(map[string]core.Value{"_type": core.String("Note")}))
	assert.ErrorIs(t, err, core.ErrTypeMismatch)
}

package model_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jacentio/lattice/model"
)

func TestUserScenario(t *testing.T) {
	r := model.NewRegistry()
	require.NoError(t, r.Declare("User", model.Declaration{
		PrimaryKey: []string{"id"},
		Properties: []model.Property{model.Field("id"), model.FieldDefault("name", "anon")},
	}))

	u, err := r.New("User", model.Values{"id": 7})
	require.NoError(t, err)

	name, err := u.Get("name")
	require.NoError(t, err)
	require.Equal(t, "anon", name)

	require.NoError(t, u.Set("name", "bob"))
	name, err = u.Get("name")
	require.NoError(t, err)
	require.Equal(t, "bob", name)

	err = u.Set("id", 9)
	require.ErrorIs(t, err, model.ErrImmutableKey)

	loaded, err := r.Hydrate("User", model.Values{"id": 7, "name": "bob"}, "")
	require.NoError(t, err)
	got, ok := r.Lookup("User", "7")
	require.True(t, ok)
	require.Same(t, loaded, got)
}

func TestNew_Defaults(t *testing.T) {
	r := newUserRegistry(t)

	e, err := r.New("User", model.Values{"id": 1, "unknown": "ignored"})
	require.NoError(t, err)

	require.Equal(t, model.Values{"id": 1, "name": "anon"}, e.Values())
	_, ok := e.Lookup("unknown")
	require.False(t, ok)
	_, ok = e.Lookup("email")
	require.False(t, ok)

	// Reading an unset declared property materialises it as nil.
	v, err := e.Get("email")
	require.NoError(t, err)
	require.Nil(t, v)
	v, ok = e.Lookup("email")
	require.True(t, ok)
	require.Nil(t, v)
}

func TestNew_ProvidedValueBeatsDefault(t *testing.T) {
	r := newUserRegistry(t)
	e, err := r.New("User", model.Values{"name": "zoe"})
	require.NoError(t, err)

	v, err := e.Get("name")
	require.NoError(t, err)
	require.Equal(t, "zoe", v)
}

func TestGet_NotFound(t *testing.T) {
	r := newUserRegistry(t)
	e, err := r.New("User", nil)
	require.NoError(t, err)

	_, err = e.Get("avatar")
	require.ErrorIs(t, err, model.ErrNotFound)

	var nf *model.NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, "avatar", nf.Field)
	require.Equal(t, "User", nf.Class)
}

func TestViewIsolation(t *testing.T) {
	r := newUserRegistry(t)

	withView, err := r.Hydrate("User", model.Values{"id": 1, "avatar": "a.png"}, "card")
	require.NoError(t, err)
	require.Equal(t, "card", withView.View())

	require.False(t, withView.Has("avatar"))
	v, err := withView.Get("avatar")
	require.NoError(t, err)
	require.Equal(t, "a.png", v)

	// View columns stay read-only through Set.
	require.ErrorIs(t, withView.Set("avatar", "b.png"), model.ErrNotFound)

	noView, err := r.Hydrate("User", model.Values{"id": 2, "avatar": "a.png"}, "")
	require.NoError(t, err)
	_, err = noView.Get("avatar")
	require.ErrorIs(t, err, model.ErrNotFound)

	unknownView, err := r.Hydrate("User", model.Values{"id": 3, "avatar": "a.png"}, "nope")
	require.NoError(t, err)
	require.Equal(t, "", unknownView.View())
	_, err = unknownView.Get("avatar")
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestSet_Errors(t *testing.T) {
	r := newUserRegistry(t)
	e, err := r.New("User", nil)
	require.NoError(t, err)

	require.ErrorIs(t, e.Set("bogus", 1), model.ErrNotFound)

	// A nil key may be assigned once.
	require.NoError(t, e.Set("id", 5))
	err = e.Set("id", 6)
	require.ErrorIs(t, err, model.ErrImmutableKey)
	var ik *model.ImmutableKeyError
	require.ErrorAs(t, err, &ik)
	require.Equal(t, "id", ik.Field)

	v, err := e.Get("id")
	require.NoError(t, err)
	require.Equal(t, 5, v)
}

func TestSet_KeyClearedCanBeSetAgain(t *testing.T) {
	r := newUserRegistry(t)
	e, err := r.New("User", model.Values{"id": 1})
	require.NoError(t, err)

	e.Clear("id")
	require.NoError(t, e.Set("id", 2))
}

func TestFrozen(t *testing.T) {
	r := newUserRegistry(t)
	e, err := r.New("User", model.Values{"id": 1, "name": "bob"})
	require.NoError(t, err)

	e.Freeze()
	require.True(t, e.Frozen())
	before := e.Values()

	require.ErrorIs(t, e.Set("name", "alice"), model.ErrFrozen)
	require.ErrorIs(t, e.Set("bogus", 1), model.ErrFrozen)
	require.ErrorIs(t, e.SetMany(model.Values{"name": "alice", "email": "a@b"}), model.ErrFrozen)
	require.ErrorIs(t, e.Reload(model.Values{"name": "alice"}), model.ErrFrozen)
	e.Clear("name")

	require.Equal(t, before, e.Values())
}

func TestSetMany_NoRollback(t *testing.T) {
	r := newUserRegistry(t)
	e, err := r.New("User", model.Values{"id": 1})
	require.NoError(t, err)

	// Applied in key order: "email", "id" (fails), "name" (never reached).
	err = e.SetMany(model.Values{"email": "e@x", "id": 2, "name": "late"})
	require.ErrorIs(t, err, model.ErrImmutableKey)

	v, _ := e.Get("email")
	require.Equal(t, "e@x", v)
	v, _ = e.Get("name")
	require.Equal(t, "anon", v)

	require.NoError(t, e.SetMany(model.Values{"name": "ok", "email": "f@x"}))
	v, _ = e.Get("name")
	require.Equal(t, "ok", v)
}

func TestSetPairs_InputOrder(t *testing.T) {
	r := newUserRegistry(t)
	e, err := r.New("User", model.Values{"id": 1})
	require.NoError(t, err)

	// "name" precedes "id" here, unlike lexical order.
	err = e.SetPairs([]model.Pair{
		{Field: "name", Value: "first"},
		{Field: "id", Value: 2},
		{Field: "email", Value: "never@x"},
	})
	require.ErrorIs(t, err, model.ErrImmutableKey)

	v, _ := e.Get("name")
	require.Equal(t, "first", v)
	v, _ = e.Get("email")
	require.Nil(t, v)

	require.NoError(t, e.SetPairs([]model.Pair{
		{Field: "name", Value: "a"},
		{Field: "name", Value: "b"},
	}))
	v, _ = e.Get("name")
	require.Equal(t, "b", v)

	e.Freeze()
	require.ErrorIs(t, e.SetPairs([]model.Pair{{Field: "name", Value: "c"}}), model.ErrFrozen)
}

func TestHasAndClear(t *testing.T) {
	r := newUserRegistry(t)
	e, err := r.New("User", model.Values{"id": 1, "name": "bob"})
	require.NoError(t, err)

	require.True(t, e.Has("name"))
	require.True(t, e.Has("email"))
	require.False(t, e.Has("bogus"))

	e.Clear("name")
	v, err := e.Get("name")
	require.NoError(t, err)
	require.Nil(t, v)

	// Unknown fields are ignored.
	e.Clear("bogus")
	_, ok := e.Lookup("bogus")
	require.False(t, ok)
}

func TestClear_Frozen(t *testing.T) {
	r := newUserRegistry(t)
	e, err := r.New("User", model.Values{"id": 1, "name": "bob"})
	require.NoError(t, err)
	e.Freeze()

	e.Clear("name")
	v, err := e.Get("name")
	require.NoError(t, err)
	require.Equal(t, "bob", v)
	require.ErrorIs(t, e.Set("name", nil), model.ErrFrozen)
}

func TestHydrate_Original(t *testing.T) {
	r := newUserRegistry(t)
	e, err := r.Hydrate("User", model.Values{"id": 1, "name": "bob"}, "")
	require.NoError(t, err)
	require.False(t, e.IsNew())
	require.Empty(t, e.Changed())

	require.NoError(t, e.Set("name", "alice"))
	require.True(t, e.IsChanged("name"))
	require.False(t, e.IsChanged("id"))
	require.Equal(t, []string{"name"}, e.Changed())
	require.Equal(t, model.Values{"id": 1, "name": "bob"}, e.Original())

	require.NoError(t, e.Set("email", "a@x"))
	require.Equal(t, []string{"name", "email"}, e.Changed())
}

func TestNew_AllChanged(t *testing.T) {
	r := newUserRegistry(t)
	e, err := r.New("User", model.Values{"id": 1})
	require.NoError(t, err)
	require.Equal(t, []string{"id", "name"}, e.Changed())
}

func TestReload(t *testing.T) {
	r := newUserRegistry(t)
	e, err := r.Hydrate("User", model.Values{"id": 1, "name": "bob"}, "")
	require.NoError(t, err)

	require.NoError(t, e.Reload(model.Values{"name": "robert", "id": 99, "email": "r@x"}))

	require.Equal(t, model.Values{"id": 1, "name": "robert", "email": "r@x"}, e.Values())
	require.Equal(t, model.Values{"id": 1, "name": "robert", "email": "r@x"}, e.Original())
	require.Empty(t, e.Changed())
}

func TestKey(t *testing.T) {
	r := newUserRegistry(t)
	e, err := r.New("User", nil)
	require.NoError(t, err)

	_, ok := e.Key()
	require.False(t, ok)

	require.NoError(t, e.Set("id", "u1"))
	key, ok := e.Key()
	require.True(t, ok)
	require.Equal(t, "u1", key)
	require.Equal(t, "User", e.Class())
	require.Equal(t, "User", e.Schema().Class())
}

func TestPairs_Order(t *testing.T) {
	r := newUserRegistry(t)
	e, err := r.Hydrate("User", model.Values{"zeta": 1, "email": "e@x", "id": 1, "alpha": 2}, "")
	require.NoError(t, err)

	e.SetRelation("posts", []string{"p1"})
	e.SetRelation("email", "relation-wins")

	require.Equal(t, []model.Pair{
		{Field: "id", Value: 1},
		{Field: "email", Value: "relation-wins"},
		{Field: "alpha", Value: 2},
		{Field: "zeta", Value: 1},
		{Field: "posts", Value: []string{"p1"}},
	}, e.Pairs())

	rel, ok := e.Relation("posts")
	require.True(t, ok)
	require.Equal(t, []string{"p1"}, rel)
}

func TestAll_SnapshotStability(t *testing.T) {
	r := newUserRegistry(t)
	e, err := r.New("User", model.Values{"id": 1, "name": "bob", "email": "b@x"})
	require.NoError(t, err)

	var seen []model.Pair
	for field, value := range e.All() {
		if field == "id" {
			require.NoError(t, e.Set("name", "changed"))
			require.NoError(t, e.Set("email", "changed"))
		}
		seen = append(seen, model.Pair{Field: field, Value: value})
	}

	require.Equal(t, []model.Pair{
		{Field: "id", Value: 1},
		{Field: "name", Value: "bob"},
		{Field: "email", Value: "b@x"},
	}, seen)

	// A new range starts from a fresh snapshot.
	var names []any
	for field, value := range e.All() {
		if field == "name" {
			names = append(names, value)
		}
	}
	require.Equal(t, []any{"changed"}, names)
}

func TestAll_EarlyBreak(t *testing.T) {
	r := newUserRegistry(t)
	e, err := r.New("User", model.Values{"id": 1, "email": "b@x"})
	require.NoError(t, err)

	n := 0
	for range e.All() {
		n++
		break
	}
	require.Equal(t, 1, n)
}

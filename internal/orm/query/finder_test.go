package query

import (
	"context"
	"testing"

	"github.com/perry-go/perry/internal/orm/ormerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFind_SingleID(t *testing.T) {
	ctx := context.Background()
	src := people()

	rec, err := New(src).Find(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, "Grace", rec.Get("name"))

	rec, err = New(src).Find(ctx, "3")
	require.NoError(t, err)
	assert.Equal(t, "Linus", rec.Get("name"))
	assert.Equal(t, []interface{}{map[string]interface{}{"id": 3}}, src.payloads[1].Where())

	_, err = New(src).Find(ctx, 99)
	assert.True(t, ormerr.IsRecordNotFound(err))
	assert.Contains(t, err.Error(), "blog.Person with id = 99")
}

func TestFind_RejectsUnknownArguments(t *testing.T) {
	_, err := New(people()).Find(context.Background(), 1.5)
	assert.Error(t, err)
	assert.False(t, ormerr.IsRecordNotFound(err))
}

func TestFindMany(t *testing.T) {
	ctx := context.Background()
	src := people()

	records, err := New(src).FindMany(ctx, 1, 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	_, err = New(src).FindMany(ctx, 1, 2, 3, 4)
	require.Error(t, err)
	assert.True(t, ormerr.IsRecordNotFound(err))
	assert.Contains(t, err.Error(), "expected 4 records but got 3")
}

func TestFindBy(t *testing.T) {
	ctx := context.Background()
	src := people()

	rec, err := New(src).FindBy(ctx, "name", "Ada")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 1, rec.ID())

	all, err := New(src).FindAllBy(ctx, "age", 28)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	_, err = New(src).FindBy(ctx, "shoe_size", 9)
	assert.ErrorIs(t, err, ormerr.ErrNoSuchQueryMethod)
}

func TestApplyFinderOptions(t *testing.T) {
	limit, offset := 10, 20
	fresh := true
	opts := FinderOptions{
		Select:     []string{"name"},
		Order:      []string{"age DESC"},
		Conditions: map[string]interface{}{"site_id": 1},
		Where:      []interface{}{"age > 18"},
		Limit:      &limit,
		Offset:     &offset,
		Includes:   "site",
		Search:     map[string]interface{}{"name_ew": "a"},
		Modifiers:  map[string]interface{}{"noop": true},
		Fresh:      &fresh,
	}
	assert.False(t, opts.IsZero())
	assert.True(t, FinderOptions{}.IsZero())

	r := New(people()).ApplyFinderOptions(opts)
	p, err := r.ToHash(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"name"}, p[KeySelect])
	assert.Equal(t, []string{"age DESC"}, p[KeyOrder])
	assert.Equal(t, []interface{}{
		map[string]interface{}{"site_id": 1},
		"age > 18",
		map[string]interface{}{"name_ends_with": "a"},
	}, p[KeyWhere])
	assert.Equal(t, 10, p[KeyLimit])
	assert.Equal(t, 20, p[KeyOffset])
	assert.Equal(t, []string{"site"}, r.IncludesValue().Names())
	assert.True(t, r.IsFresh())
	assert.Equal(t, true, r.ModifiersValue()[ModifierNoop])
}

func TestNamedScopes(t *testing.T) {
	src := people()
	src.scopes.Register("adults", OptionsScope(FinderOptions{Where: []interface{}{"age >= 18"}}))
	src.scopes.Register("named", LambdaScope(func(args ...interface{}) FinderOptions {
		return FinderOptions{Conditions: map[string]interface{}{"name": args[0]}}
	}))
	assert.Equal(t, []string{"adults", "named"}, src.scopes.List())

	r, err := New(src).Limit(1).Scope("adults")
	require.NoError(t, err)
	r, err = r.Scope("named", "Ada")
	require.NoError(t, err)

	p, err := r.ToHash(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []interface{}{"age >= 18", map[string]interface{}{"name": "Ada"}}, p[KeyWhere])
	assert.Equal(t, 1, p[KeyLimit])

	_, err = New(src).Scope("missing")
	assert.ErrorIs(t, err, ormerr.ErrNoSuchQueryMethod)
}

func TestCacheModifierScopes(t *testing.T) {
	r := New(people()).ResetCache().Noop()
	mods := r.ModifiersValue()
	assert.Equal(t, true, mods[ModifierResetCache])
	assert.Equal(t, true, mods[ModifierNoop])
}

package crud

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/perry-go/perry/internal/adapter"
	"github.com/perry-go/perry/internal/cache"
	"github.com/perry-go/perry/internal/orm/ormerr"
	"github.com/perry-go/perry/internal/orm/record"
	"github.com/perry-go/perry/internal/orm/schema"
	"github.com/perry-go/perry/internal/transport/memory"
)

func setupPosts(t *testing.T) (*schema.Model, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	m := schema.NewModel("blog.Post", "id", "title", "body")

	cfg := adapter.Config{Service: "posts", Caching: cache.NewCaching()}
	require.NoError(t, m.ReadWith(memory.TypeName, store.Context(), cfg))
	require.NoError(t, m.WriteWith(memory.TypeName, store.Context(), cfg))

	store.Seed("posts", adapter.Row{"id": 1, "title": "Hello", "body": "first"})
	store.Validate("posts", func(row adapter.Row) map[string]interface{} {
		if row["title"] == "" || row["title"] == nil {
			return map[string]interface{}{"title": "can't be blank"}
		}
		return nil
	})
	return m, store
}

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "save", OperationSave.String())
	assert.Equal(t, "destroy", OperationDestroy.String())
	assert.Equal(t, "unknown", Operation(9).String())
}

func TestSave_NewRecord(t *testing.T) {
	m, store := setupPosts(t)
	ctx := context.Background()

	rec := m.New(map[string]interface{}{"title": "Second", "body": "more"})
	ok, err := Save(ctx, rec)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, rec.IsNew())
	assert.True(t, rec.IsSaved())
	assert.Equal(t, 2, rec.ID())
	assert.Len(t, store.Rows("posts"), 2)
}

func TestSave_Rejected(t *testing.T) {
	m, store := setupPosts(t)
	ctx := context.Background()

	rec := m.New(map[string]interface{}{"body": "untitled"})
	ok, err := Save(ctx, rec)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, rec.IsNew())
	assert.Equal(t, "can't be blank", rec.Errors()["title"])
	assert.Len(t, store.Rows("posts"), 1)

	err = SaveBang(ctx, rec)
	assert.ErrorIs(t, err, ormerr.ErrRecordNotSaved)
	assert.True(t, ormerr.IsRecordNotSaved(err))
}

func TestSave_ClearsStaleErrors(t *testing.T) {
	m, _ := setupPosts(t)
	ctx := context.Background()

	rec := m.New(map[string]interface{}{})
	ok, err := Save(ctx, rec)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, rec.Set("title", "Fixed"))
	ok, err = Save(ctx, rec)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, rec.Errors())
}

func TestUpdateAttributes(t *testing.T) {
	m, store := setupPosts(t)
	ctx := context.Background()

	rec, err := m.Find(ctx, 1)
	require.NoError(t, err)

	ok, err := UpdateAttributes(ctx, rec, map[string]interface{}{"title": "Hello again", "color": "red"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Hello again", store.Rows("posts")[0]["title"])
	assert.False(t, rec.Has("color"))

	err = UpdateAttributesBang(ctx, rec, map[string]interface{}{"title": ""})
	assert.ErrorIs(t, err, ormerr.ErrRecordNotSaved)
	assert.Equal(t, "Hello again", store.Rows("posts")[0]["title"])
}

func TestDestroy(t *testing.T) {
	m, store := setupPosts(t)
	ctx := context.Background()

	rec, err := m.Find(ctx, 1)
	require.NoError(t, err)

	ok, err := Destroy(ctx, rec)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, rec.IsFrozen())
	assert.Empty(t, store.Rows("posts"))

	_, err = Destroy(ctx, rec)
	assert.ErrorIs(t, err, ormerr.ErrFrozenRecord)
	_, err = Save(ctx, rec)
	assert.ErrorIs(t, err, ormerr.ErrFrozenRecord)
	_, err = UpdateAttributes(ctx, rec, map[string]interface{}{"title": "zombie"})
	assert.ErrorIs(t, err, ormerr.ErrFrozenRecord)
	assert.ErrorIs(t, Reload(ctx, rec), ormerr.ErrFrozenRecord)
}

func TestDestroy_NotDispatched(t *testing.T) {
	m, store := setupPosts(t)
	ctx := context.Background()

	ok, err := Destroy(ctx, m.New(map[string]interface{}{"title": "draft"}))
	require.NoError(t, err)
	assert.False(t, ok)

	keyless := record.FromStore(m, map[string]interface{}{"title": "keyless"})
	ok, err = Destroy(ctx, keyless)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Zero(t, store.CallCount(adapter.ModeDelete))
	assert.ErrorIs(t, DestroyBang(ctx, keyless), ormerr.ErrRecordNotSaved)
}

func TestDestroy_Rejected(t *testing.T) {
	m, _ := setupPosts(t)
	ctx := context.Background()

	ghost := record.FromStore(m, map[string]interface{}{"id": 99, "title": "ghost"})
	ok, err := Destroy(ctx, ghost)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, ghost.IsFrozen())
	assert.NotEmpty(t, ghost.Errors())
}

func TestReload(t *testing.T) {
	m, store := setupPosts(t)
	ctx := context.Background()

	rec, err := m.Find(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, rec.Set("title", "local edit"))

	require.NoError(t, Reload(ctx, rec))
	assert.Equal(t, "Hello", rec.Get("title"))

	store.Clear()
	err = Reload(ctx, rec)
	assert.True(t, ormerr.IsRecordNotFound(err))
}

func TestTransportErrorsPropagate(t *testing.T) {
	m, store := setupPosts(t)
	ctx := context.Background()
	store.Fail(assert.AnError)

	_, err := Save(ctx, m.New(map[string]interface{}{"title": "x"}))
	assert.ErrorIs(t, err, assert.AnError)
	assert.False(t, ormerr.IsRecordNotSaved(err))

	rec := record.FromStore(m, map[string]interface{}{"id": 1})
	err = DestroyBang(ctx, rec)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestMissingWriteAdapter(t *testing.T) {
	m := schema.NewModel("blog.Draft", "id", "title")
	ctx := context.Background()

	_, err := Save(ctx, m.New(map[string]interface{}{"title": "x"}))
	assert.True(t, ormerr.IsConfigurationError(err))

	_, err = Destroy(ctx, record.FromStore(m, map[string]interface{}{"id": 1}))
	assert.True(t, ormerr.IsConfigurationError(err))

	_, err = Save(ctx, record.New(nil, map[string]interface{}{"title": "x"}))
	assert.True(t, ormerr.IsConfigurationError(err))
}

func TestOperations_Validator(t *testing.T) {
	m, store := setupPosts(t)
	ctx := context.Background()

	ops := NewOperations(WithValidator(ValidatorFunc(func(ctx context.Context, rec *record.Record, op Operation) map[string]interface{} {
		if s, _ := rec.Get("body").(string); len(s) < 3 {
			return map[string]interface{}{"body": "is too short"}
		}
		return nil
	})))

	rec := m.New(map[string]interface{}{"title": "Short", "body": "hi"})
	ok, err := ops.Save(ctx, rec)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "is too short", rec.Errors()["body"])
	assert.Zero(t, store.CallCount(adapter.ModeWrite), "invalid records are not dispatched")
}

func TestOperations_Hooks(t *testing.T) {
	m, _ := setupPosts(t)
	ctx := context.Background()

	var trail []string
	mark := func(name string) Hook {
		return func(ctx context.Context, rec *record.Record) error {
			trail = append(trail, name)
			return nil
		}
	}
	ops := NewOperations(
		WithHook(BeforeSave, mark("before_save")),
		WithHook(AfterSave, mark("after_save")),
		WithHook(BeforeDestroy, mark("before_destroy")),
		WithHook(AfterDestroy, mark("after_destroy")),
	)

	rec := m.New(map[string]interface{}{"title": "Hooked"})
	require.NoError(t, ops.SaveBang(ctx, rec))
	require.NoError(t, ops.DestroyBang(ctx, rec))
	assert.Equal(t, []string{"before_save", "after_save", "before_destroy", "after_destroy"}, trail)

	halt := errors.New("halted")
	ops = NewOperations(WithHook(BeforeSave, func(ctx context.Context, rec *record.Record) error { return halt }))
	_, err := ops.Save(ctx, m.New(map[string]interface{}{"title": "Stopped"}))
	assert.ErrorIs(t, err, halt)
}

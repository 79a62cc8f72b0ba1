package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	t.Run("register and get", func(t *testing.T) {
		reg := NewRegistry()
		m, err := reg.Define("blog.Post", "id")
		require.NoError(t, err)

		got, ok := reg.Get("blog.Post")
		require.True(t, ok)
		assert.Same(t, m, got)
		assert.Same(t, reg, m.Registry())
	})

	t.Run("duplicate registration", func(t *testing.T) {
		reg := NewRegistry()
		_, err := reg.Define("blog.Post", "id")
		require.NoError(t, err)
		_, err = reg.Define("blog.Post", "id")
		assert.Error(t, err)
	})

	t.Run("list is sorted", func(t *testing.T) {
		reg := NewRegistry()
		for _, name := range []string{"User", "Post", "Comment"} {
			_, err := reg.Define(name)
			require.NoError(t, err)
		}
		assert.Equal(t, []string{"Comment", "Post", "User"}, reg.List())
	})

	t.Run("reset", func(t *testing.T) {
		reg := NewRegistry()
		_, _ = reg.Define("User")
		reg.Reset()
		assert.Empty(t, reg.List())
	})

	t.Run("unregistered models use the default registry", func(t *testing.T) {
		assert.Same(t, Default(), NewModel("Loose").Registry())
	})
}

func TestRegistry_Extensions(t *testing.T) {
	reg := NewRegistry()
	site, err := reg.Define("core.Site", "id", "name")
	require.NoError(t, err)

	first, err := site.Subtype("v1.Site")
	require.NoError(t, err)
	second, err := site.Subtype("v2.Site")
	require.NoError(t, err)
	grandchild, err := second.Subtype("v3.Site")
	require.NoError(t, err)

	// different base name: a subtype, not an extension
	_, err = site.Subtype("core.Venue")
	require.NoError(t, err)

	assert.Equal(t, []string{"v1.Site", "v2.Site"}, reg.Extensions("core.Site"))
	assert.Same(t, grandchild, reg.ResolveLeaf(site))
	assert.Same(t, grandchild, reg.ResolveLeaf(second))
	assert.Same(t, first, reg.ResolveLeaf(first))
	assert.Same(t, site, grandchild.Parent().Parent())
}

func TestSubtype_CopiesDeclarations(t *testing.T) {
	reg := NewRegistry()
	article, err := reg.Define("blog.Article", "id", "site_id")
	require.NoError(t, err)
	article.BelongsTo("site", AssociationOptions{ClassName: "blog.Site"})

	child, err := article.Subtype("ext.Article")
	require.NoError(t, err)

	assoc, ok := child.Association("site")
	require.True(t, ok)
	assert.Same(t, child, assoc.Source())
	assert.True(t, child.HasField("site_id"))

	// the parent is untouched by later declarations on the child
	child.HasMany("comments", AssociationOptions{ClassName: "blog.Comment"})
	_, ok = article.Association("comments")
	assert.False(t, ok)

	_, err = article.Subtype("ext.Article")
	assert.Error(t, err)
}

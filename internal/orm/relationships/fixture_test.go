package relationships

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/perry-go/perry/internal/adapter"
	"github.com/perry-go/perry/internal/cache"
	"github.com/perry-go/perry/internal/orm/query"
	"github.com/perry-go/perry/internal/orm/record"
	"github.com/perry-go/perry/internal/orm/schema"
	"github.com/perry-go/perry/internal/transport/memory"
)

// blog is a small fixture domain served from a memory store:
//
//	Site    has_many articles, has_many comments as parent
//	Article belongs_to site, has_many comments as parent,
//	        has_many authors through comments, has_many recent (instance finder)
//	Comment belongs_to parent (polymorphic), belongs_to author
//	Person  has_many comments via author_id
type blog struct {
	reg   *schema.Registry
	store *memory.Store

	site, article, comment, person *schema.Model
}

func newBlog(t *testing.T) *blog {
	t.Helper()

	b := &blog{reg: schema.NewRegistry(), store: memory.NewStore()}
	caching := cache.NewCaching()

	var err error
	b.site, err = b.reg.Define("blog.Site", "id", "name")
	require.NoError(t, err)
	b.article, err = b.reg.Define("blog.Article", "id", "title", "site_id")
	require.NoError(t, err)
	b.comment, err = b.reg.Define("blog.Comment", "id", "body", "parent_id", "parent_type", "author_id")
	require.NoError(t, err)
	b.person, err = b.reg.Define("blog.Person", "id", "name")
	require.NoError(t, err)

	b.site.HasMany("articles", schema.AssociationOptions{ClassName: "blog.Article"})
	b.site.HasMany("comments", schema.AssociationOptions{ClassName: "blog.Comment", As: "parent"})

	b.article.BelongsTo("site", schema.AssociationOptions{ClassName: "blog.Site"})
	b.article.HasMany("comments", schema.AssociationOptions{ClassName: "blog.Comment", As: "parent"})
	b.article.HasMany("authors", schema.AssociationOptions{Through: "comments", Source: "author"})
	b.article.HasMany("recent", schema.AssociationOptions{
		ClassName: "blog.Comment",
		As:        "parent",
		FinderFunc: func(rec *record.Record) query.FinderOptions {
			return query.FinderOptions{Order: []string{"id desc"}}
		},
	})

	b.comment.BelongsTo("parent", schema.AssociationOptions{Polymorphic: true, PolymorphicNamespace: "blog"})
	b.comment.BelongsTo("author", schema.AssociationOptions{ClassName: "blog.Person"})

	b.person.HasMany("comments", schema.AssociationOptions{ClassName: "blog.Comment", ForeignKey: "author_id"})

	for _, m := range []*schema.Model{b.site, b.article, b.comment, b.person} {
		require.NoError(t, m.ReadWith(memory.TypeName, b.store.Context(), adapter.Config{Caching: caching}))
	}

	b.store.Seed("blog.Site",
		adapter.Row{"id": 1, "name": "Perry"},
		adapter.Row{"id": 2, "name": "Empty"},
	)
	b.store.Seed("blog.Article",
		adapter.Row{"id": 1, "title": "One", "site_id": 1},
		adapter.Row{"id": 2, "title": "Two", "site_id": 1},
		adapter.Row{"id": 3, "title": "Orphan"},
	)
	b.store.Seed("blog.Comment",
		adapter.Row{"id": 1, "body": "a", "parent_id": 1, "parent_type": "Article", "author_id": 10},
		adapter.Row{"id": 2, "body": "b", "parent_id": 1, "parent_type": "Article", "author_id": 11},
		adapter.Row{"id": 3, "body": "c", "parent_id": 2, "parent_type": "Article", "author_id": 10},
		adapter.Row{"id": 4, "body": "d", "parent_id": 1, "parent_type": "Site", "author_id": 11},
		adapter.Row{"id": 5, "body": "e", "parent_id": 1, "parent_type": "Article", "author_id": 10},
	)
	b.store.Seed("blog.Person",
		adapter.Row{"id": 10, "name": "Ada"},
		adapter.Row{"id": 11, "name": "Grace"},
		adapter.Row{"id": 12, "name": "Linus"},
	)
	return b
}

func (b *blog) assoc(t *testing.T, m *schema.Model, name string) *schema.Association {
	t.Helper()
	a, ok := m.Association(name)
	require.True(t, ok, name)
	return a
}

// articles loads every article and forgets the dispatch
func (b *blog) articles(t *testing.T) []*record.Record {
	t.Helper()
	records, err := b.article.Scoped().Order("id").All(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)
	b.store.ResetCalls()
	return records
}

func (b *blog) reads() int {
	return b.store.CallCount(adapter.ModeRead)
}

func field(records []*record.Record, name string) []interface{} {
	out := make([]interface{}, 0, len(records))
	for _, r := range records {
		out = append(out, r.Get(name))
	}
	return out
}

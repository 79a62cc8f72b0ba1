package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewIncludes(t *testing.T) {
	tests := []struct {
		name  string
		specs []interface{}
		want  string
	}{
		{"single name", []interface{}{"site"}, "site"},
		{"dotted path", []interface{}{"comments.author"}, "comments.author"},
		{"string slice", []interface{}{[]string{"site", "comments"}}, "site,comments"},
		{"nested map", []interface{}{map[string]interface{}{"comments": []string{"author", "votes"}}}, "comments.author,comments.votes"},
		{"duplicates merge", []interface{}{"comments", "comments.author", "site"}, "comments.author,site"},
		{"nil and empty ignored", []interface{}{nil, ""}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewIncludes(tt.specs...).String())
		})
	}
}

func TestIncludes_MergeIsDeep(t *testing.T) {
	a := NewIncludes(map[string]interface{}{"articles": map[string]interface{}{"comments": nil}})
	b := NewIncludes(map[string]interface{}{"articles": "author"}, "site")

	merged := a.Merge(b)
	assert.Equal(t, []string{"articles", "site"}, merged.Names())
	assert.Equal(t, []string{"comments", "author"}, merged.Child("articles").Names())

	// inputs are untouched
	assert.Equal(t, []string{"comments"}, a.Child("articles").Names())
	assert.Equal(t, []string{"articles", "site"}, b.Names())
}

func TestIncludes_Value(t *testing.T) {
	inc := NewIncludes("comments.author", "site")
	assert.Equal(t, map[string]interface{}{
		"comments": map[string]interface{}{"author": map[string]interface{}{}},
		"site":     map[string]interface{}{},
	}, inc.Value())
}

func TestIncludes_NilSafe(t *testing.T) {
	var inc *Includes
	assert.True(t, inc.IsEmpty())
	assert.Nil(t, inc.Names())
	assert.Nil(t, inc.Child("x"))
	assert.Equal(t, "", inc.String())
}

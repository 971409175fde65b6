package sqlxrepos

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/geoffroyotegbeye/codesens/core"
	"github.com/geoffroyotegbeye/codesens/core/blog"
	"github.com/geoffroyotegbeye/codesens/core/user"
	"github.com/geoffroyotegbeye/codesens/tests"
)

func postSlugs(posts []blog.Post) []string {
	slugs := make([]string, 0, len(posts))
	for _, p := range posts {
		slugs = append(slugs, p.Slug)
	}
	return slugs
}

func TestBlog(t *testing.T) {
	ctx := context.Background()
	db := testutil.PrepareDB(t)
	author := testutil.CreateUser(t, NewUserRepository(db), "Ada Writer", "ada", "ada@test.com", "", []string{user.RoleAdmin}, true)
	svc := blog.NewService(NewBlogRepository(db), nil, testutil.NewLogger())

	golang, err := svc.CreateCategory(ctx, blog.NewCategory{Name: "Go Lang"})
	require.NoError(t, err)
	assert.Equal(t, "go-lang", golang.Slug)

	t.Run("category uniqueness", func(t *testing.T) {
		_, err := svc.CreateCategory(ctx, blog.NewCategory{Name: "go lang"})
		var vErr *core.ValidationError
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "name", vErr.Fields[0].Field)

		_, err = svc.CreateCategory(ctx, blog.NewCategory{Name: "Other", Slug: "go-lang"})
		require.True(t, errors.As(err, &vErr))
		assert.Equal(t, "slug", vErr.Fields[0].Field)
	})

	first, err := svc.CreatePost(ctx, author, blog.NewPost{
		Title:      "Hello World",
		Content:    `<p>Hello <b>world</b></p><script>alert(1)</script>`,
		CategoryID: golang.ID,
		Tags:       []string{"intro", "go"},
		Status:     blog.StatusPublished,
	})
	require.NoError(t, err)
	second, err := svc.CreatePost(ctx, author, blog.NewPost{Title: "Hello World", Content: "<p>Draft about testing</p>", Tags: []string{"testing"}})
	require.NoError(t, err)

	t.Run("created", func(t *testing.T) {
		assert.Equal(t, "hello-world", first.Slug)
		assert.Equal(t, "hello-world-2", second.Slug)
		assert.NotContains(t, first.Content, "script")
		assert.Equal(t, "Hello world", first.Excerpt)
		assert.Equal(t, "Go Lang", first.CategoryName)
		assert.Equal(t, "Ada Writer", first.AuthorName)
		assert.True(t, first.PublishedAt.Valid)
		assert.False(t, second.PublishedAt.Valid)
		assert.Equal(t, blog.StatusDraft, second.Status)
		assert.Equal(t, core.StringList{"intro", "go"}, first.Tags)
	})

	t.Run("query", func(t *testing.T) {
		tests := []struct {
			name   string
			filter *blog.PostFilter
			want   []string
		}{
			{name: "published", filter: &blog.PostFilter{Status: blog.StatusPublished}, want: []string{"hello-world"}},
			{name: "drafts", filter: &blog.PostFilter{Status: blog.StatusDraft}, want: []string{"hello-world-2"}},
			{name: "category", filter: &blog.PostFilter{Category: "go-lang"}, want: []string{"hello-world"}},
			{name: "tag", filter: &blog.PostFilter{Tag: "testing"}, want: []string{"hello-world-2"}},
			{name: "partial tag", filter: &blog.PostFilter{Tag: "test"}, want: []string{}},
			{name: "search", filter: &blog.PostFilter{Search: "DRAFT"}, want: []string{"hello-world-2"}},
			{name: "author", filter: &blog.PostFilter{AuthorID: author.ID, Status: blog.StatusPublished}, want: []string{"hello-world"}},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				posts, total, err := svc.QueryPosts(ctx, tt.filter, nil, core.Page{})
				require.NoError(t, err)
				assert.Equal(t, tt.want, postSlugs(posts))
				assert.Equal(t, len(tt.want), total)
			})
		}

		posts, total, err := svc.QueryPosts(ctx, nil, []core.DBOrdering{{Field: "title", Ascending: true}}, core.Page{Limit: 1, Offset: 1})
		require.NoError(t, err)
		assert.Equal(t, 2, total)
		assert.Len(t, posts, 1)
	})

	t.Run("publish keeps first date", func(t *testing.T) {
		published, err := svc.Publish(ctx, second)
		require.NoError(t, err)
		require.True(t, published.PublishedAt.Valid)
		firstDate := published.PublishedAt.Time

		draft, err := svc.Unpublish(ctx, published)
		require.NoError(t, err)
		assert.Equal(t, blog.StatusDraft, draft.Status)

		republished, err := svc.Publish(ctx, draft)
		require.NoError(t, err)
		assert.True(t, republished.PublishedAt.Time.Equal(firstDate))

		n, err := svc.CountPosts(ctx, blog.StatusPublished)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	})

	t.Run("update keeps slug", func(t *testing.T) {
		updated, err := svc.UpdatePost(ctx, first, blog.NewPost{Title: first.Title, Content: "<p>New body</p>"})
		require.NoError(t, err)
		assert.Equal(t, first.Slug, updated.Slug)
		assert.Equal(t, "New body", updated.Excerpt)
		assert.Equal(t, "", updated.CategoryID)
	})

	t.Run("delete category unlinks posts", func(t *testing.T) {
		post, err := svc.UpdatePost(ctx, first, blog.NewPost{Title: first.Title, Content: "<p>x</p>", CategoryID: golang.ID})
		require.NoError(t, err)
		require.NoError(t, svc.DeleteCategory(ctx, golang.ID))
		post, err = svc.GetPost(ctx, blog.GetFilter{Slug: post.Slug})
		require.NoError(t, err)
		assert.Equal(t, "", post.CategoryID)
		assert.Equal(t, blog.ErrCategoryNotFound, errors.Cause(svc.DeleteCategory(ctx, golang.ID)))
	})

	t.Run("not found", func(t *testing.T) {
		_, err := svc.GetPost(ctx, blog.GetFilter{Slug: "nope"})
		assert.Equal(t, blog.ErrPostNotFound, errors.Cause(err))
		assert.Equal(t, blog.ErrPostNotFound, errors.Cause(svc.DeletePost(ctx, "bad-id")))
	})
}

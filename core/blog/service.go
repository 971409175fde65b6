package blog

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/geoffroyotegbeye/codesens/core"
	"github.com/geoffroyotegbeye/codesens/core/user"
)

var (
	// errors
	ErrCategoryNotFound = errors.New("category not found")
	ErrPostNotFound     = errors.New("post not found")
)

type (
	Repository interface {
		CategorySlugExists(ctx context.Context, slug string, exclID string) (bool, error)
		CategoryNameExists(ctx context.Context, name string, exclID string) (bool, error)
		CreateCategory(ctx context.Context, cat Category) (Category, error)
		QueryCategories(ctx context.Context) ([]Category, error)
		GetCategory(ctx context.Context, filter GetFilter) (Category, error)
		UpdateCategory(ctx context.Context, cat Category) (Category, error)
		DeleteCategory(ctx context.Context, id string) error

		PostSlugExists(ctx context.Context, slug string, exclID string) (bool, error)
		CreatePost(ctx context.Context, post Post) (Post, error)
		// QueryPosts returns the requested page and the total number of matching posts.
		QueryPosts(ctx context.Context, filter *PostFilter, ordering []core.DBOrdering, page core.Page) ([]Post, int, error)
		GetPost(ctx context.Context, filter GetFilter) (Post, error)
		UpdatePost(ctx context.Context, post Post) (Post, error)
		DeletePost(ctx context.Context, id string) error
		CountPosts(ctx context.Context, status string) (int, error)
	}

	Service interface {
		CreateCategory(ctx context.Context, nc NewCategory) (Category, error)
		ListCategories(ctx context.Context) ([]Category, error)
		GetCategory(ctx context.Context, filter GetFilter) (Category, error)
		UpdateCategory(ctx context.Context, cat Category, uc NewCategory) (Category, error)
		DeleteCategory(ctx context.Context, id string) error

		CreatePost(ctx context.Context, author user.User, np NewPost) (Post, error)
		QueryPosts(ctx context.Context, filter *PostFilter, ordering []core.DBOrdering, page core.Page) ([]Post, int, error)
		GetPost(ctx context.Context, filter GetFilter) (Post, error)
		UpdatePost(ctx context.Context, post Post, up NewPost) (Post, error)
		Publish(ctx context.Context, post Post) (Post, error)
		Unpublish(ctx context.Context, post Post) (Post, error)
		DeletePost(ctx context.Context, id string) error
		CountPosts(ctx context.Context, status string) (int, error)
	}

	service struct {
		repo   Repository
		cache  core.Cache
		logger core.Logger
		now    func() time.Time // mockable
	}
)

var _ Service = (*service)(nil)

// NewService returns the blog service. cache holds the course pages, which embed category names.
func NewService(repo Repository, cache core.Cache, logger core.Logger) Service {
	if cache == nil {
		cache = core.NopCache{}
	}
	return &service{repo: repo, cache: cache, logger: logger, now: time.Now}
}

// Categories

func (svc *service) checkCategoryName(ctx context.Context, name, exclID string) error {
	exists, err := svc.repo.CategoryNameExists(ctx, name, exclID)
	if err != nil {
		return errors.Wrap(err, "checking category name")
	}
	if exists {
		return core.NewValidationError(nil, core.FieldError{Field: "name", Error: "a category with this name already exists"})
	}
	return nil
}

func (svc *service) categorySlug(ctx context.Context, nc NewCategory, exclID string) (string, error) {
	exists := func(ctx context.Context, slug string) (bool, error) {
		return svc.repo.CategorySlugExists(ctx, slug, exclID)
	}
	if nc.Slug == "" {
		return core.UniqueSlug(ctx, nc.Name, exists)
	}
	taken, err := exists(ctx, nc.Slug)
	if err != nil {
		return "", errors.Wrap(err, "checking category slug")
	}
	if taken {
		return "", core.NewValidationError(nil, core.FieldError{Field: "slug", Error: "a category with this slug already exists"})
	}
	return nc.Slug, nil
}

func (svc *service) CreateCategory(ctx context.Context, nc NewCategory) (Category, error) {
	if err := svc.checkCategoryName(ctx, nc.Name, ""); err != nil {
		return Category{}, err
	}
	slug, err := svc.categorySlug(ctx, nc, "")
	if err != nil {
		return Category{}, err
	}
	now := svc.now().UTC()
	return svc.repo.CreateCategory(ctx, Category{
		Name:        nc.Name,
		Slug:        slug,
		Description: nc.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
}

func (svc *service) ListCategories(ctx context.Context) ([]Category, error) {
	return svc.repo.QueryCategories(ctx)
}

func (svc *service) GetCategory(ctx context.Context, filter GetFilter) (Category, error) {
	return svc.repo.GetCategory(ctx, filter)
}

func (svc *service) UpdateCategory(ctx context.Context, cat Category, uc NewCategory) (Category, error) {
	if err := svc.checkCategoryName(ctx, uc.Name, cat.ID); err != nil {
		return Category{}, err
	}
	if uc.Slug == "" && uc.Name == cat.Name {
		uc.Slug = cat.Slug
	}
	slug, err := svc.categorySlug(ctx, uc, cat.ID)
	if err != nil {
		return Category{}, err
	}
	cat.Name = uc.Name
	cat.Slug = slug
	cat.Description = uc.Description
	cat.UpdatedAt = svc.now().UTC()
	cat, err = svc.repo.UpdateCategory(ctx, cat)
	if err != nil {
		return Category{}, err
	}
	core.InvalidatePrefix(ctx, svc.cache, svc.logger, core.CatalogCachePrefix)
	return cat, nil
}

func (svc *service) DeleteCategory(ctx context.Context, id string) error {
	if err := svc.repo.DeleteCategory(ctx, id); err != nil {
		return err
	}
	core.InvalidatePrefix(ctx, svc.cache, svc.logger, core.CatalogCachePrefix)
	return nil
}

// Posts

func (svc *service) postSlug(ctx context.Context, np NewPost, exclID string) (string, error) {
	exists := func(ctx context.Context, slug string) (bool, error) {
		return svc.repo.PostSlugExists(ctx, slug, exclID)
	}
	if np.Slug == "" {
		return core.UniqueSlug(ctx, np.Title, exists)
	}
	taken, err := exists(ctx, np.Slug)
	if err != nil {
		return "", errors.Wrap(err, "checking post slug")
	}
	if taken {
		return "", core.NewValidationError(nil, core.FieldError{Field: "slug", Error: "a post with this slug already exists"})
	}
	return np.Slug, nil
}

func (svc *service) checkCategory(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if _, err := svc.repo.GetCategory(ctx, GetFilter{ID: id}); err != nil {
		if errors.Cause(err) == ErrCategoryNotFound {
			return core.NewValidationError(err, core.FieldError{Field: "category_id", Error: "unknown category"})
		}
		return errors.Wrap(err, "getting category")
	}
	return nil
}

// applyContent fills the fields derived from the post body.
func applyContent(post *Post, np NewPost) {
	post.Title = np.Title
	post.Content = Sanitize(np.Content)
	post.Excerpt = np.Excerpt
	if post.Excerpt == "" {
		post.Excerpt = Excerpt(post.Content)
	}
	post.ReadingMinutes = ReadingMinutes(post.Content)
	post.CoverImage = np.CoverImage
	post.CategoryID = np.CategoryID
	post.Tags = np.Tags
	if post.Tags == nil {
		post.Tags = core.StringList{}
	}
}

func (svc *service) CreatePost(ctx context.Context, author user.User, np NewPost) (Post, error) {
	if err := svc.checkCategory(ctx, np.CategoryID); err != nil {
		return Post{}, err
	}
	slug, err := svc.postSlug(ctx, np, "")
	if err != nil {
		return Post{}, err
	}

	now := svc.now().UTC()
	post := Post{
		Slug:      slug,
		AuthorID:  author.ID,
		Status:    StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyContent(&post, np)
	if np.Status == StatusPublished {
		post.Status = StatusPublished
		post.PublishedAt = null.TimeFrom(now)
	}
	return svc.repo.CreatePost(ctx, post)
}

func (svc *service) QueryPosts(ctx context.Context, filter *PostFilter, ordering []core.DBOrdering, page core.Page) ([]Post, int, error) {
	return svc.repo.QueryPosts(ctx, filter, ordering, page)
}

func (svc *service) GetPost(ctx context.Context, filter GetFilter) (Post, error) {
	return svc.repo.GetPost(ctx, filter)
}

func (svc *service) UpdatePost(ctx context.Context, post Post, up NewPost) (Post, error) {
	if err := svc.checkCategory(ctx, up.CategoryID); err != nil {
		return Post{}, err
	}
	if up.Slug == "" && up.Title == post.Title {
		up.Slug = post.Slug
	}
	slug, err := svc.postSlug(ctx, up, post.ID)
	if err != nil {
		return Post{}, err
	}
	post.Slug = slug
	applyContent(&post, up)

	now := svc.now().UTC()
	switch up.Status {
	case StatusPublished:
		setPublished(&post, now)
	case StatusDraft:
		post.Status = StatusDraft
	}
	post.UpdatedAt = now
	return svc.repo.UpdatePost(ctx, post)
}

// setPublished keeps the date of the first publication.
func setPublished(post *Post, now time.Time) {
	post.Status = StatusPublished
	if !post.PublishedAt.Valid {
		post.PublishedAt = null.TimeFrom(now)
	}
}

func (svc *service) Publish(ctx context.Context, post Post) (Post, error) {
	if post.IsPublished() {
		return post, nil
	}
	now := svc.now().UTC()
	setPublished(&post, now)
	post.UpdatedAt = now
	return svc.repo.UpdatePost(ctx, post)
}

func (svc *service) Unpublish(ctx context.Context, post Post) (Post, error) {
	if !post.IsPublished() {
		return post, nil
	}
	post.Status = StatusDraft
	post.UpdatedAt = svc.now().UTC()
	return svc.repo.UpdatePost(ctx, post)
}

func (svc *service) DeletePost(ctx context.Context, id string) error {
	return svc.repo.DeletePost(ctx, id)
}

func (svc *service) CountPosts(ctx context.Context, status string) (int, error) {
	return svc.repo.CountPosts(ctx, status)
}

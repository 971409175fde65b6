package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/geoffroyotegbeye/codesens/core"
	"github.com/geoffroyotegbeye/codesens/core/blog"
)

const postSelect = `
	SELECT p.*, COALESCE(c.name, '') AS category_name, COALESCE(u.name, '') AS author_name
	FROM posts p
	LEFT JOIN categories c ON c.id = p.category_id
	LEFT JOIN users u ON u.id = p.author_id`

var postOrderings = map[string]string{
	"title":           "p.title",
	"published_at":    "p.published_at",
	"created_at":      "p.created_at",
	"updated_at":      "p.updated_at",
	"reading_minutes": "p.reading_minutes",
}

type categoryRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Slug        string    `db:"slug"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

func (r categoryRow) toCategory() blog.Category {
	return blog.Category{
		ID:          r.ID,
		Name:        r.Name,
		Slug:        r.Slug,
		Description: r.Description,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

type postRow struct {
	ID             string          `db:"id"`
	Title          string          `db:"title"`
	Slug           string          `db:"slug"`
	Excerpt        string          `db:"excerpt"`
	Content        string          `db:"content"`
	CoverImage     string          `db:"cover_image"`
	CategoryID     null.String     `db:"category_id"`
	AuthorID       null.String     `db:"author_id"`
	Status         string          `db:"status"`
	Tags           core.StringList `db:"tags"`
	ReadingMinutes int             `db:"reading_minutes"`
	PublishedAt    null.Time       `db:"published_at"`
	CreatedAt      time.Time       `db:"created_at"`
	UpdatedAt      time.Time       `db:"updated_at"`

	// joined
	CategoryName string `db:"category_name"`
	AuthorName   string `db:"author_name"`
}

func toPostRow(post blog.Post) postRow {
	tags := post.Tags
	if tags == nil {
		tags = core.StringList{}
	}
	return postRow{
		ID:             post.ID,
		Title:          post.Title,
		Slug:           post.Slug,
		Excerpt:        post.Excerpt,
		Content:        post.Content,
		CoverImage:     post.CoverImage,
		CategoryID:     null.NewString(post.CategoryID, post.CategoryID != ""),
		AuthorID:       null.NewString(post.AuthorID, post.AuthorID != ""),
		Status:         post.Status,
		Tags:           tags,
		ReadingMinutes: post.ReadingMinutes,
		PublishedAt:    utcNull(post.PublishedAt),
		CreatedAt:      post.CreatedAt.UTC(),
		UpdatedAt:      post.UpdatedAt.UTC(),
	}
}

func (r postRow) toPost() blog.Post {
	tags := r.Tags
	if tags == nil {
		tags = core.StringList{}
	}
	return blog.Post{
		ID:             r.ID,
		Title:          r.Title,
		Slug:           r.Slug,
		Excerpt:        r.Excerpt,
		Content:        r.Content,
		CoverImage:     r.CoverImage,
		CategoryID:     r.CategoryID.String,
		CategoryName:   r.CategoryName,
		AuthorID:       r.AuthorID.String,
		AuthorName:     r.AuthorName,
		Status:         r.Status,
		Tags:           tags,
		ReadingMinutes: r.ReadingMinutes,
		PublishedAt:    utcNull(r.PublishedAt),
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

type blogRepository struct {
	exec core.DBExecutor
}

var _ blog.Repository = (*blogRepository)(nil) // interface compliance check

func NewBlogRepository(exec core.DBExecutor) blog.Repository {
	return &blogRepository{exec: exec}
}

// Categories

func (repo *blogRepository) CategorySlugExists(ctx context.Context, slug string, exclID string) (bool, error) {
	n, err := count(ctx, repo.exec, "SELECT COUNT(*) FROM categories WHERE slug = ? AND id <> ?", slug, exclID)
	return n > 0, errors.Wrap(err, "checking category slug")
}

func (repo *blogRepository) CategoryNameExists(ctx context.Context, name string, exclID string) (bool, error) {
	n, err := count(ctx, repo.exec, "SELECT COUNT(*) FROM categories WHERE LOWER(name) = LOWER(?) AND id <> ?", name, exclID)
	return n > 0, errors.Wrap(err, "checking category name")
}

func (repo *blogRepository) CreateCategory(ctx context.Context, cat blog.Category) (blog.Category, error) {
	cat.ID = newID()
	_, err := exec(ctx, repo.exec,
		"INSERT INTO categories (id, name, slug, description, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		cat.ID, cat.Name, cat.Slug, cat.Description, cat.CreatedAt.UTC(), cat.UpdatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return blog.Category{}, core.NewValidationError(err, core.FieldError{Field: "slug", Error: "a category with this slug already exists"})
		}
		return blog.Category{}, errors.Wrap(err, "inserting category")
	}
	return cat, nil
}

func (repo *blogRepository) QueryCategories(ctx context.Context) ([]blog.Category, error) {
	var rows []categoryRow
	if err := sel(ctx, repo.exec, &rows, "SELECT * FROM categories ORDER BY name"); err != nil {
		return nil, errors.Wrap(err, "querying categories")
	}
	cats := make([]blog.Category, 0, len(rows))
	for _, r := range rows {
		cats = append(cats, r.toCategory())
	}
	return cats, nil
}

func (repo *blogRepository) GetCategory(ctx context.Context, filter blog.GetFilter) (blog.Category, error) {
	var (
		row categoryRow
		err error
	)
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return blog.Category{}, blog.ErrCategoryNotFound
		}
		err = get(ctx, repo.exec, &row, "SELECT * FROM categories WHERE id = ?", filter.ID)
	case filter.Slug != "":
		err = get(ctx, repo.exec, &row, "SELECT * FROM categories WHERE slug = ?", filter.Slug)
	default:
		return blog.Category{}, blog.ErrCategoryNotFound
	}
	if err != nil {
		return blog.Category{}, trapNoRowsErr(err, blog.ErrCategoryNotFound, "finding category")
	}
	return row.toCategory(), nil
}

func (repo *blogRepository) UpdateCategory(ctx context.Context, cat blog.Category) (blog.Category, error) {
	res, err := exec(ctx, repo.exec,
		"UPDATE categories SET name = ?, slug = ?, description = ?, updated_at = ? WHERE id = ?",
		cat.Name, cat.Slug, cat.Description, cat.UpdatedAt.UTC(), cat.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return blog.Category{}, core.NewValidationError(err, core.FieldError{Field: "slug", Error: "a category with this slug already exists"})
		}
		return blog.Category{}, errors.Wrap(err, "updating category")
	}
	return cat, checkAffected(res, blog.ErrCategoryNotFound)
}

func (repo *blogRepository) DeleteCategory(ctx context.Context, id string) error {
	if !validID(id) {
		return blog.ErrCategoryNotFound
	}
	res, err := exec(ctx, repo.exec, "DELETE FROM categories WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting category")
	}
	return checkAffected(res, blog.ErrCategoryNotFound)
}

// Posts

func (repo *blogRepository) PostSlugExists(ctx context.Context, slug string, exclID string) (bool, error) {
	n, err := count(ctx, repo.exec, "SELECT COUNT(*) FROM posts WHERE slug = ? AND id <> ?", slug, exclID)
	return n > 0, errors.Wrap(err, "checking post slug")
}

func (repo *blogRepository) CreatePost(ctx context.Context, post blog.Post) (blog.Post, error) {
	post.ID = newID()
	row := toPostRow(post)
	_, err := repo.exec.NamedExecContext(ctx, `
		INSERT INTO posts (id, title, slug, excerpt, content, cover_image, category_id, author_id, status, tags,
			reading_minutes, published_at, created_at, updated_at)
		VALUES (:id, :title, :slug, :excerpt, :content, :cover_image, :category_id, :author_id, :status, :tags,
			:reading_minutes, :published_at, :created_at, :updated_at)`,
		row)
	if err != nil {
		if isUniqueViolation(err) {
			return blog.Post{}, core.NewValidationError(err, core.FieldError{Field: "slug", Error: "a post with this slug already exists"})
		}
		return blog.Post{}, errors.Wrap(err, "inserting post")
	}
	return repo.GetPost(ctx, blog.GetFilter{ID: post.ID})
}

func postFilterClause(filter *blog.PostFilter) *whereClause {
	w := new(whereClause)
	if filter == nil {
		return w
	}
	if filter.Status != "" {
		w.add("p.status = ?", filter.Status)
	}
	if filter.Category != "" {
		w.add("c.slug = ?", filter.Category)
	}
	if filter.Tag != "" {
		w.add("p.tags LIKE ?", `%"`+filter.Tag+`"%`)
	}
	if filter.AuthorID != "" {
		w.add("p.author_id = ?", filter.AuthorID)
	}
	w.search(filter.Search, "p.title", "p.excerpt")
	return w
}

func (repo *blogRepository) QueryPosts(ctx context.Context, filter *blog.PostFilter, ordering []core.DBOrdering, page core.Page) ([]blog.Post, int, error) {
	w := postFilterClause(filter)

	total, err := count(ctx, repo.exec, `
		SELECT COUNT(*) FROM posts p LEFT JOIN categories c ON c.id = p.category_id`+w.String(), w.args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting posts")
	}

	q, args := limit(postSelect+w.String()+core.OrderByClause(ordering, postOrderings, "COALESCE(p.published_at, p.created_at) DESC, p.id"), w.args, page)
	var rows []postRow
	if err = sel(ctx, repo.exec, &rows, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying posts")
	}
	posts := make([]blog.Post, 0, len(rows))
	for _, r := range rows {
		posts = append(posts, r.toPost())
	}
	return posts, total, nil
}

func (repo *blogRepository) GetPost(ctx context.Context, filter blog.GetFilter) (blog.Post, error) {
	var (
		row postRow
		err error
	)
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return blog.Post{}, blog.ErrPostNotFound
		}
		err = get(ctx, repo.exec, &row, postSelect+" WHERE p.id = ?", filter.ID)
	case filter.Slug != "":
		err = get(ctx, repo.exec, &row, postSelect+" WHERE p.slug = ?", filter.Slug)
	default:
		return blog.Post{}, blog.ErrPostNotFound
	}
	if err != nil {
		return blog.Post{}, trapNoRowsErr(err, blog.ErrPostNotFound, "finding post")
	}
	return row.toPost(), nil
}

func (repo *blogRepository) UpdatePost(ctx context.Context, post blog.Post) (blog.Post, error) {
	row := toPostRow(post)
	res, err := repo.exec.NamedExecContext(ctx, `
		UPDATE posts SET title = :title, slug = :slug, excerpt = :excerpt, content = :content,
			cover_image = :cover_image, category_id = :category_id, status = :status, tags = :tags,
			reading_minutes = :reading_minutes, published_at = :published_at, updated_at = :updated_at
		WHERE id = :id`,
		row)
	if err != nil {
		if isUniqueViolation(err) {
			return blog.Post{}, core.NewValidationError(err, core.FieldError{Field: "slug", Error: "a post with this slug already exists"})
		}
		return blog.Post{}, errors.Wrap(err, "updating post")
	}
	if err = checkAffected(res, blog.ErrPostNotFound); err != nil {
		return blog.Post{}, err
	}
	return repo.GetPost(ctx, blog.GetFilter{ID: post.ID})
}

func (repo *blogRepository) DeletePost(ctx context.Context, id string) error {
	if !validID(id) {
		return blog.ErrPostNotFound
	}
	res, err := exec(ctx, repo.exec, "DELETE FROM posts WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting post")
	}
	return checkAffected(res, blog.ErrPostNotFound)
}

func (repo *blogRepository) CountPosts(ctx context.Context, status string) (int, error) {
	q, args := "SELECT COUNT(*) FROM posts", []interface{}{}
	if status != "" {
		q, args = q+" WHERE status = ?", append(args, status)
	}
	n, err := count(ctx, repo.exec, q, args...)
	return n, errors.Wrap(err, "counting posts")
}

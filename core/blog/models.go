package blog

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"

	"github.com/geoffroyotegbeye/codesens/core"
)

// Post statuses
const (
	StatusDraft     = "draft"
	StatusPublished = "published"
)

// Category groups blog posts and courses.
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type NewCategory struct {
	Name        string `json:"name" validate:"required,max=100"`
	Slug        string `json:"slug" validate:"omitempty,slug"`
	Description string `json:"description"`
}

func (nc *NewCategory) Validate(validate *validator.Validate) error {
	nc.Name = core.CleanString(nc.Name)
	nc.Slug = core.CleanString(nc.Slug, true /* lower */)
	nc.Description = core.CleanString(nc.Description)
	return validate.Struct(nc)
}

type Post struct {
	ID             string          `json:"id"`
	Title          string          `json:"title"`
	Slug           string          `json:"slug"`
	Excerpt        string          `json:"excerpt"`
	Content        string          `json:"content"`
	CoverImage     string          `json:"cover_image"`
	CategoryID     string          `json:"category_id"`
	CategoryName   string          `json:"category_name"`
	AuthorID       string          `json:"author_id"`
	AuthorName     string          `json:"author_name"`
	Status         string          `json:"status"`
	Tags           core.StringList `json:"tags"`
	ReadingMinutes int             `json:"reading_minutes"`
	PublishedAt    null.Time       `json:"published_at"` // UTC
	CreatedAt      time.Time       `json:"created_at"`   // UTC
	UpdatedAt      time.Time       `json:"updated_at"`   // UTC
}

func (p *Post) IsPublished() bool {
	return p.Status == StatusPublished
}

// NewPost is also used to replace an existing post.
type NewPost struct {
	Title      string   `json:"title" validate:"required,max=200"`
	Slug       string   `json:"slug" validate:"omitempty,slug"`
	Excerpt    string   `json:"excerpt" validate:"max=500"`
	Content    string   `json:"content" validate:"required"`
	CoverImage string   `json:"cover_image" validate:"omitempty,uri"`
	CategoryID string   `json:"category_id"`
	Status     string   `json:"status" validate:"omitempty,oneof=draft published"`
	Tags       []string `json:"tags" validate:"omitempty,max=20,dive,max=50"`
}

func (np *NewPost) Validate(validate *validator.Validate) error {
	np.Title = core.CleanString(np.Title)
	np.Slug = core.CleanString(np.Slug, true /* lower */)
	np.Excerpt = core.CleanString(np.Excerpt)
	np.CoverImage = core.CleanString(np.CoverImage)
	np.CategoryID = core.CleanString(np.CategoryID)
	np.Status = core.CleanString(np.Status, true /* lower */)
	np.Tags = dedupe(core.CleanStrings(np.Tags, true /* lower */))
	if PlainText(np.Content) == "" && !hasImage(np.Content) {
		np.Content = ""
	}
	return validate.Struct(np)
}

type PostFilter struct {
	Status   string `query:"status"`
	Category string `query:"category"` // slug
	Tag      string `query:"tag"`
	Search   string `query:"search"`
	AuthorID string `query:"author_id"`
}

func (pf *PostFilter) Clean() {
	pf.Status = core.CleanString(pf.Status, true /* lower */)
	pf.Category = core.CleanString(pf.Category, true /* lower */)
	pf.Tag = core.CleanString(pf.Tag, true /* lower */)
	pf.Search = core.CleanString(pf.Search)
	pf.AuthorID = core.CleanString(pf.AuthorID)
}

// GetFilter selects a single Post or Category. The first non-empty field wins.
type GetFilter struct {
	ID   string
	Slug string
}

func dedupe(list []string) []string {
	if list == nil {
		return nil
	}
	seen := make(map[string]bool, len(list))
	out := make([]string, 0, len(list))
	for _, s := range list {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

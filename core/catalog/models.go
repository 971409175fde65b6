package catalog

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/geoffroyotegbeye/codesens/core"
)

// Course levels
const (
	LevelBeginner     = "beginner"
	LevelIntermediate = "intermediate"
	LevelAdvanced     = "advanced"
)

var Levels = []string{LevelBeginner, LevelIntermediate, LevelAdvanced}

type Course struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Slug            string    `json:"slug"`
	Summary         string    `json:"summary"`
	Description     string    `json:"description"`
	CategoryID      string    `json:"category_id"`
	CategoryName    string    `json:"category_name"`
	InstructorID    string    `json:"instructor_id"`
	InstructorName  string    `json:"instructor_name"`
	Level           string    `json:"level"`
	PriceCents      int64     `json:"price_cents"`
	Currency        string    `json:"currency"`
	ThumbnailURL    string    `json:"thumbnail_url"`
	DurationMinutes int       `json:"duration_minutes"`
	IsPublished     bool      `json:"is_published"`
	CreatedAt       time.Time `json:"created_at"` // UTC
	UpdatedAt       time.Time `json:"updated_at"` // UTC
}

func (c *Course) IsFree() bool {
	return c.PriceCents == 0
}

// NewCourse is also used to replace an existing course.
type NewCourse struct {
	Title           string `json:"title" validate:"required,max=200"`
	Slug            string `json:"slug" validate:"omitempty,slug"`
	Summary         string `json:"summary" validate:"max=500"`
	Description     string `json:"description"`
	CategoryID      string `json:"category_id"`
	InstructorID    string `json:"instructor_id"`
	Level           string `json:"level" validate:"omitempty,level"`
	PriceCents      int64  `json:"price_cents" validate:"gte=0"`
	Currency        string `json:"currency" validate:"omitempty,currency"`
	ThumbnailURL    string `json:"thumbnail_url" validate:"omitempty,uri"`
	DurationMinutes int    `json:"duration_minutes" validate:"gte=0"`
	IsPublished     bool   `json:"is_published"`
}

func (nc *NewCourse) Validate(validate *validator.Validate) error {
	nc.Title = core.CleanString(nc.Title)
	nc.Slug = core.CleanString(nc.Slug, true /* lower */)
	nc.Summary = core.CleanString(nc.Summary)
	nc.CategoryID = core.CleanString(nc.CategoryID)
	nc.InstructorID = core.CleanString(nc.InstructorID)
	nc.Level = core.CleanString(nc.Level, true /* lower */)
	if nc.Level == "" {
		nc.Level = LevelBeginner
	}
	nc.Currency = core.CleanString(nc.Currency)
	if nc.Currency == "" {
		nc.Currency = DefaultCurrency
	}
	nc.ThumbnailURL = core.CleanString(nc.ThumbnailURL)
	return validate.Struct(nc)
}

type CourseFilter struct {
	Category     string `query:"category"` // slug
	Level        string `query:"level"`
	Search       string `query:"search"`
	FreeOnly     bool   `query:"free"`
	InstructorID string `query:"instructor_id"`
	// IsPublished is forced to true for anonymous and non-admin callers.
	IsPublished *bool `query:"is_published"`
}

func (cf *CourseFilter) Clean() {
	cf.Category = core.CleanString(cf.Category, true /* lower */)
	cf.Level = core.CleanString(cf.Level, true /* lower */)
	cf.Search = core.CleanString(cf.Search)
	cf.InstructorID = core.CleanString(cf.InstructorID)
}

// OnlyPublished restricts the filter to the public catalog.
func (cf *CourseFilter) OnlyPublished() {
	published := true
	cf.IsPublished = &published
}

func (cf *CourseFilter) IsPublicCatalog() bool {
	return cf.IsPublished != nil && *cf.IsPublished
}

type GetFilter struct {
	ID   string
	Slug string
}

type Enrollment struct {
	ID        string    `json:"id"`
	CourseID  string    `json:"course_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"` // UTC
	Course    *Course   `json:"course,omitempty"`
}

// CoursePage is a page of courses along with the total number of matching courses.
type CoursePage struct {
	Count   int      `json:"count"`
	Results []Course `json:"results"`
}

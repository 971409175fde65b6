package sqlxrepos

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/geoffroyotegbeye/codesens/core"
	"github.com/geoffroyotegbeye/codesens/core/catalog"
)

const courseSelect = `
	SELECT co.*, COALESCE(c.name, '') AS category_name, COALESCE(u.name, '') AS instructor_name
	FROM courses co
	LEFT JOIN categories c ON c.id = co.category_id
	LEFT JOIN users u ON u.id = co.instructor_id`

var courseOrderings = map[string]string{
	"title":            "co.title",
	"price_cents":      "co.price_cents",
	"duration_minutes": "co.duration_minutes",
	"level":            "co.level",
	"created_at":       "co.created_at",
	"updated_at":       "co.updated_at",
}

type courseRow struct {
	ID              string      `db:"id"`
	Title           string      `db:"title"`
	Slug            string      `db:"slug"`
	Summary         string      `db:"summary"`
	Description     string      `db:"description"`
	CategoryID      null.String `db:"category_id"`
	InstructorID    null.String `db:"instructor_id"`
	Level           string      `db:"level"`
	PriceCents      int64       `db:"price_cents"`
	Currency        string      `db:"currency"`
	ThumbnailURL    string      `db:"thumbnail_url"`
	DurationMinutes int         `db:"duration_minutes"`
	IsPublished     bool        `db:"is_published"`
	CreatedAt       time.Time   `db:"created_at"`
	UpdatedAt       time.Time   `db:"updated_at"`

	// joined
	CategoryName   string `db:"category_name"`
	InstructorName string `db:"instructor_name"`
}

func toCourseRow(c catalog.Course) courseRow {
	return courseRow{
		ID:              c.ID,
		Title:           c.Title,
		Slug:            c.Slug,
		Summary:         c.Summary,
		Description:     c.Description,
		CategoryID:      null.NewString(c.CategoryID, c.CategoryID != ""),
		InstructorID:    null.NewString(c.InstructorID, c.InstructorID != ""),
		Level:           c.Level,
		PriceCents:      c.PriceCents,
		Currency:        c.Currency,
		ThumbnailURL:    c.ThumbnailURL,
		DurationMinutes: c.DurationMinutes,
		IsPublished:     c.IsPublished,
		CreatedAt:       c.CreatedAt.UTC(),
		UpdatedAt:       c.UpdatedAt.UTC(),
	}
}

func (r courseRow) toCourse() catalog.Course {
	return catalog.Course{
		ID:              r.ID,
		Title:           r.Title,
		Slug:            r.Slug,
		Summary:         r.Summary,
		Description:     r.Description,
		CategoryID:      r.CategoryID.String,
		CategoryName:    r.CategoryName,
		InstructorID:    r.InstructorID.String,
		InstructorName:  r.InstructorName,
		Level:           r.Level,
		PriceCents:      r.PriceCents,
		Currency:        r.Currency,
		ThumbnailURL:    r.ThumbnailURL,
		DurationMinutes: r.DurationMinutes,
		IsPublished:     r.IsPublished,
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

type enrollmentRow struct {
	ID        string    `db:"id"`
	CourseID  string    `db:"course_id"`
	UserID    string    `db:"user_id"`
	CreatedAt time.Time `db:"created_at"`
}

func (r enrollmentRow) toEnrollment() catalog.Enrollment {
	return catalog.Enrollment{ID: r.ID, CourseID: r.CourseID, UserID: r.UserID, CreatedAt: r.CreatedAt.UTC()}
}

type catalogRepository struct {
	exec core.DBExecutor
}

var _ catalog.Repository = (*catalogRepository)(nil) // interface compliance check

func NewCatalogRepository(exec core.DBExecutor) catalog.Repository {
	return &catalogRepository{exec: exec}
}

func (repo *catalogRepository) CourseSlugExists(ctx context.Context, slug string, exclID string) (bool, error) {
	n, err := count(ctx, repo.exec, "SELECT COUNT(*) FROM courses WHERE slug = ? AND id <> ?", slug, exclID)
	return n > 0, errors.Wrap(err, "checking course slug")
}

func (repo *catalogRepository) CreateCourse(ctx context.Context, course catalog.Course) (catalog.Course, error) {
	course.ID = newID()
	_, err := repo.exec.NamedExecContext(ctx, `
		INSERT INTO courses (id, title, slug, summary, description, category_id, instructor_id, level, price_cents,
			currency, thumbnail_url, duration_minutes, is_published, created_at, updated_at)
		VALUES (:id, :title, :slug, :summary, :description, :category_id, :instructor_id, :level, :price_cents,
			:currency, :thumbnail_url, :duration_minutes, :is_published, :created_at, :updated_at)`,
		toCourseRow(course))
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.Course{}, core.NewValidationError(err, core.FieldError{Field: "slug", Error: "a course with this slug already exists"})
		}
		return catalog.Course{}, errors.Wrap(err, "inserting course")
	}
	return repo.GetCourse(ctx, catalog.GetFilter{ID: course.ID})
}

func courseFilterClause(filter *catalog.CourseFilter) *whereClause {
	w := new(whereClause)
	if filter == nil {
		return w
	}
	if filter.Category != "" {
		w.add("c.slug = ?", filter.Category)
	}
	if filter.Level != "" {
		w.add("co.level = ?", filter.Level)
	}
	if filter.FreeOnly {
		w.add("co.price_cents = 0")
	}
	if filter.InstructorID != "" {
		w.add("co.instructor_id = ?", filter.InstructorID)
	}
	if filter.IsPublished != nil {
		w.add("co.is_published = ?", *filter.IsPublished)
	}
	w.search(filter.Search, "co.title", "co.summary")
	return w
}

func (repo *catalogRepository) QueryCourses(ctx context.Context, filter *catalog.CourseFilter, ordering []core.DBOrdering, page core.Page) ([]catalog.Course, int, error) {
	w := courseFilterClause(filter)

	total, err := count(ctx, repo.exec, `
		SELECT COUNT(*) FROM courses co LEFT JOIN categories c ON c.id = co.category_id`+w.String(), w.args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "counting courses")
	}

	q, args := limit(courseSelect+w.String()+core.OrderByClause(ordering, courseOrderings, "co.created_at DESC, co.id"), w.args, page)
	var rows []courseRow
	if err = sel(ctx, repo.exec, &rows, q, args...); err != nil {
		return nil, 0, errors.Wrap(err, "querying courses")
	}
	courses := make([]catalog.Course, 0, len(rows))
	for _, r := range rows {
		courses = append(courses, r.toCourse())
	}
	return courses, total, nil
}

func (repo *catalogRepository) GetCourse(ctx context.Context, filter catalog.GetFilter) (catalog.Course, error) {
	var (
		row courseRow
		err error
	)
	switch {
	case filter.ID != "":
		if !validID(filter.ID) {
			return catalog.Course{}, catalog.ErrCourseNotFound
		}
		err = get(ctx, repo.exec, &row, courseSelect+" WHERE co.id = ?", filter.ID)
	case filter.Slug != "":
		err = get(ctx, repo.exec, &row, courseSelect+" WHERE co.slug = ?", filter.Slug)
	default:
		return catalog.Course{}, catalog.ErrCourseNotFound
	}
	if err != nil {
		return catalog.Course{}, trapNoRowsErr(err, catalog.ErrCourseNotFound, "finding course")
	}
	return row.toCourse(), nil
}

func (repo *catalogRepository) UpdateCourse(ctx context.Context, course catalog.Course) (catalog.Course, error) {
	res, err := repo.exec.NamedExecContext(ctx, `
		UPDATE courses SET title = :title, slug = :slug, summary = :summary, description = :description,
			category_id = :category_id, instructor_id = :instructor_id, level = :level, price_cents = :price_cents,
			currency = :currency, thumbnail_url = :thumbnail_url, duration_minutes = :duration_minutes,
			is_published = :is_published, updated_at = :updated_at
		WHERE id = :id`,
		toCourseRow(course))
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.Course{}, core.NewValidationError(err, core.FieldError{Field: "slug", Error: "a course with this slug already exists"})
		}
		return catalog.Course{}, errors.Wrap(err, "updating course")
	}
	if err = checkAffected(res, catalog.ErrCourseNotFound); err != nil {
		return catalog.Course{}, err
	}
	return repo.GetCourse(ctx, catalog.GetFilter{ID: course.ID})
}

func (repo *catalogRepository) DeleteCourse(ctx context.Context, id string) error {
	if !validID(id) {
		return catalog.ErrCourseNotFound
	}
	res, err := exec(ctx, repo.exec, "DELETE FROM courses WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return checkAffected(res, catalog.ErrCourseNotFound)
}

func (repo *catalogRepository) CountCourses(ctx context.Context, publishedOnly bool) (int, error) {
	q, args := "SELECT COUNT(*) FROM courses", []interface{}{}
	if publishedOnly {
		q, args = q+" WHERE is_published = ?", append(args, true)
	}
	n, err := count(ctx, repo.exec, q, args...)
	return n, errors.Wrap(err, "counting courses")
}

func (repo *catalogRepository) CreateEnrollment(ctx context.Context, enr catalog.Enrollment) (catalog.Enrollment, error) {
	enr.ID = newID()
	_, err := exec(ctx, repo.exec,
		"INSERT INTO enrollments (id, course_id, user_id, created_at) VALUES (?, ?, ?, ?)",
		enr.ID, enr.CourseID, enr.UserID, enr.CreatedAt.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return catalog.Enrollment{}, catalog.ErrAlreadyEnrolled
		}
		return catalog.Enrollment{}, errors.Wrap(err, "inserting enrollment")
	}
	return enr, nil
}

func (repo *catalogRepository) GetEnrollment(ctx context.Context, courseID, userID string) (catalog.Enrollment, error) {
	var row enrollmentRow
	err := get(ctx, repo.exec, &row, "SELECT * FROM enrollments WHERE course_id = ? AND user_id = ?", courseID, userID)
	if err != nil {
		return catalog.Enrollment{}, trapNoRowsErr(err, catalog.ErrEnrollmentNotFound, "finding enrollment")
	}
	return row.toEnrollment(), nil
}

func (repo *catalogRepository) QueryEnrollments(ctx context.Context, userID string) ([]catalog.Enrollment, error) {
	var rows []enrollmentRow
	if err := sel(ctx, repo.exec, &rows, "SELECT * FROM enrollments WHERE user_id = ? ORDER BY created_at DESC", userID); err != nil {
		return nil, errors.Wrap(err, "querying enrollments")
	}
	if len(rows) == 0 {
		return []catalog.Enrollment{}, nil
	}

	courseIDs := make([]string, 0, len(rows))
	for _, r := range rows {
		courseIDs = append(courseIDs, r.CourseID)
	}
	q, args, err := in(courseSelect+" WHERE co.id IN (?)", courseIDs)
	if err != nil {
		return nil, err
	}
	var courseRows []courseRow
	if err = sel(ctx, repo.exec, &courseRows, q, args...); err != nil {
		return nil, errors.Wrap(err, "querying enrolled courses")
	}
	courses := make(map[string]catalog.Course, len(courseRows))
	for _, cr := range courseRows {
		courses[cr.ID] = cr.toCourse()
	}

	enrollments := make([]catalog.Enrollment, 0, len(rows))
	for _, r := range rows {
		enr := r.toEnrollment()
		if course, ok := courses[enr.CourseID]; ok {
			enr.Course = &course
		}
		enrollments = append(enrollments, enr)
	}
	return enrollments, nil
}

func (repo *catalogRepository) DeleteEnrollment(ctx context.Context, courseID, userID string) error {
	res, err := exec(ctx, repo.exec, "DELETE FROM enrollments WHERE course_id = ? AND user_id = ?", courseID, userID)
	if err != nil {
		return errors.Wrap(err, "deleting enrollment")
	}
	return checkAffected(res, catalog.ErrEnrollmentNotFound)
}

func (repo *catalogRepository) CountEnrollments(ctx context.Context, userID string) (int, error) {
	q, args := "SELECT COUNT(*) FROM enrollments", []interface{}{}
	if userID != "" {
		q, args = q+" WHERE user_id = ?", append(args, userID)
	}
	n, err := count(ctx, repo.exec, q, args...)
	return n, errors.Wrap(err, "counting enrollments")
}

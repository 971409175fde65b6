package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/geoffroyotegbeye/codesens/core"
	"github.com/geoffroyotegbeye/codesens/core/blog"
	"github.com/geoffroyotegbeye/codesens/core/user"
)

const cachePrefix = core.CatalogCachePrefix

var (
	// errors
	ErrCourseNotFound     = errors.New("course not found")
	ErrEnrollmentNotFound = errors.New("enrollment not found")
	ErrAlreadyEnrolled    = errors.New("already enrolled in this course")
)

type (
	Repository interface {
		CourseSlugExists(ctx context.Context, slug string, exclID string) (bool, error)
		CreateCourse(ctx context.Context, course Course) (Course, error)
		QueryCourses(ctx context.Context, filter *CourseFilter, ordering []core.DBOrdering, page core.Page) ([]Course, int, error)
		GetCourse(ctx context.Context, filter GetFilter) (Course, error)
		UpdateCourse(ctx context.Context, course Course) (Course, error)
		DeleteCourse(ctx context.Context, id string) error
		// CountCourses counts all courses, or only the published ones.
		CountCourses(ctx context.Context, publishedOnly bool) (int, error)

		// CreateEnrollment returns ErrAlreadyEnrolled when the user is already enrolled.
		CreateEnrollment(ctx context.Context, enr Enrollment) (Enrollment, error)
		GetEnrollment(ctx context.Context, courseID, userID string) (Enrollment, error)
		// QueryEnrollments lists the enrollments of a user, most recent first, with their course.
		QueryEnrollments(ctx context.Context, userID string) ([]Enrollment, error)
		DeleteEnrollment(ctx context.Context, courseID, userID string) error
		// CountEnrollments counts all enrollments, or those of a single user.
		CountEnrollments(ctx context.Context, userID string) (int, error)
	}

	Service interface {
		Create(ctx context.Context, nc NewCourse) (Course, error)
		Query(ctx context.Context, filter *CourseFilter, ordering []core.DBOrdering, page core.Page) (CoursePage, error)
		Get(ctx context.Context, filter GetFilter) (Course, error)
		// GetPublished only finds published courses. Results are cached.
		GetPublished(ctx context.Context, slug string) (Course, error)
		Update(ctx context.Context, course Course, uc NewCourse) (Course, error)
		Delete(ctx context.Context, id string) error
		Count(ctx context.Context, publishedOnly bool) (int, error)

		Enroll(ctx context.Context, usr user.User, courseID string) (Enrollment, error)
		Unenroll(ctx context.Context, usr user.User, courseID string) error
		Enrollments(ctx context.Context, usr user.User) ([]Enrollment, error)
		CountEnrollments(ctx context.Context, userID string) (int, error)
	}

	service struct {
		repo     Repository
		blogSvc  blog.Service
		usrSvc   user.Service
		cache    core.Cache
		cacheTTL time.Duration
		logger   core.Logger
		now      func() time.Time // mockable
	}
)

var _ Service = (*service)(nil)

func NewService(repo Repository, blogSvc blog.Service, usrSvc user.Service, cache core.Cache, conf *core.Config, logger core.Logger) Service {
	if cache == nil {
		cache = core.NopCache{}
	}
	return &service{
		repo:     repo,
		blogSvc:  blogSvc,
		usrSvc:   usrSvc,
		cache:    cache,
		cacheTTL: conf.Redis.CatalogTTL,
		logger:   logger,
		now:      time.Now,
	}
}

func (svc *service) slug(ctx context.Context, nc NewCourse, exclID string) (string, error) {
	exists := func(ctx context.Context, slug string) (bool, error) {
		return svc.repo.CourseSlugExists(ctx, slug, exclID)
	}
	if nc.Slug == "" {
		return core.UniqueSlug(ctx, nc.Title, exists)
	}
	taken, err := exists(ctx, nc.Slug)
	if err != nil {
		return "", errors.Wrap(err, "checking course slug")
	}
	if taken {
		return "", core.NewValidationError(nil, core.FieldError{Field: "slug", Error: "a course with this slug already exists"})
	}
	return nc.Slug, nil
}

// checkRelations makes sure the referenced category and instructor exist.
func (svc *service) checkRelations(ctx context.Context, nc NewCourse) error {
	if nc.CategoryID != "" {
		if _, err := svc.blogSvc.GetCategory(ctx, blog.GetFilter{ID: nc.CategoryID}); err != nil {
			if errors.Cause(err) == blog.ErrCategoryNotFound {
				return core.NewValidationError(err, core.FieldError{Field: "category_id", Error: "unknown category"})
			}
			return errors.Wrap(err, "getting category")
		}
	}
	if nc.InstructorID != "" {
		instructor, err := svc.usrSvc.GetByID(ctx, nc.InstructorID)
		if err != nil {
			if errors.Cause(err) == user.ErrNotFound {
				return core.NewValidationError(err, core.FieldError{Field: "instructor_id", Error: "unknown instructor"})
			}
			return errors.Wrap(err, "getting instructor")
		}
		if !instructor.CanMentor() {
			return core.NewValidationError(nil, core.FieldError{Field: "instructor_id", Error: "user cannot teach courses"})
		}
	}
	return nil
}

func apply(course *Course, nc NewCourse) {
	course.Title = nc.Title
	course.Summary = nc.Summary
	course.Description = blog.Sanitize(nc.Description)
	course.CategoryID = nc.CategoryID
	course.InstructorID = nc.InstructorID
	course.Level = nc.Level
	course.PriceCents = nc.PriceCents
	course.Currency = nc.Currency
	course.ThumbnailURL = nc.ThumbnailURL
	course.DurationMinutes = nc.DurationMinutes
	course.IsPublished = nc.IsPublished
	if course.Summary == "" {
		course.Summary = blog.Excerpt(course.Description)
	}
}

func (svc *service) Create(ctx context.Context, nc NewCourse) (Course, error) {
	if err := svc.checkRelations(ctx, nc); err != nil {
		return Course{}, err
	}
	slug, err := svc.slug(ctx, nc, "")
	if err != nil {
		return Course{}, err
	}

	now := svc.now().UTC()
	course := Course{Slug: slug, CreatedAt: now, UpdatedAt: now}
	apply(&course, nc)
	if course, err = svc.repo.CreateCourse(ctx, course); err != nil {
		return Course{}, err
	}
	svc.invalidate(ctx)
	return course, nil
}

func (svc *service) Query(ctx context.Context, filter *CourseFilter, ordering []core.DBOrdering, page core.Page) (CoursePage, error) {
	var (
		res CoursePage
		key string
	)
	if filter == nil {
		filter = new(CourseFilter)
	}
	if filter.IsPublicCatalog() {
		key = listCacheKey(filter, ordering, page)
		if svc.fromCache(ctx, key, &res) {
			return res, nil
		}
	}

	courses, count, err := svc.repo.QueryCourses(ctx, filter, ordering, page)
	if err != nil {
		return CoursePage{}, err
	}
	res = CoursePage{Count: count, Results: courses}
	if key != "" {
		svc.toCache(ctx, key, res)
	}
	return res, nil
}

func (svc *service) Get(ctx context.Context, filter GetFilter) (Course, error) {
	return svc.repo.GetCourse(ctx, filter)
}

func (svc *service) GetPublished(ctx context.Context, slug string) (Course, error) {
	key := cachePrefix + "course:" + slug
	var course Course
	if svc.fromCache(ctx, key, &course) {
		return course, nil
	}

	course, err := svc.repo.GetCourse(ctx, GetFilter{Slug: slug})
	if err != nil {
		return Course{}, err
	}
	if !course.IsPublished {
		return Course{}, ErrCourseNotFound
	}
	svc.toCache(ctx, key, course)
	return course, nil
}

func (svc *service) Update(ctx context.Context, course Course, uc NewCourse) (Course, error) {
	if err := svc.checkRelations(ctx, uc); err != nil {
		return Course{}, err
	}
	if uc.Slug == "" && uc.Title == course.Title {
		uc.Slug = course.Slug
	}
	slug, err := svc.slug(ctx, uc, course.ID)
	if err != nil {
		return Course{}, err
	}
	course.Slug = slug
	apply(&course, uc)
	course.UpdatedAt = svc.now().UTC()
	if course, err = svc.repo.UpdateCourse(ctx, course); err != nil {
		return Course{}, err
	}
	svc.invalidate(ctx)
	return course, nil
}

func (svc *service) Delete(ctx context.Context, id string) error {
	if err := svc.repo.DeleteCourse(ctx, id); err != nil {
		return err
	}
	svc.invalidate(ctx)
	return nil
}

func (svc *service) Count(ctx context.Context, publishedOnly bool) (int, error) {
	return svc.repo.CountCourses(ctx, publishedOnly)
}

func (svc *service) Enroll(ctx context.Context, usr user.User, courseID string) (Enrollment, error) {
	course, err := svc.repo.GetCourse(ctx, GetFilter{ID: courseID})
	if err != nil {
		return Enrollment{}, err
	}
	if !course.IsPublished {
		return Enrollment{}, ErrCourseNotFound
	}

	enr, err := svc.repo.CreateEnrollment(ctx, Enrollment{
		CourseID:  course.ID,
		UserID:    usr.ID,
		CreatedAt: svc.now().UTC(),
	})
	if err != nil {
		if errors.Cause(err) == ErrAlreadyEnrolled {
			return Enrollment{}, core.NewConflictError(ErrAlreadyEnrolled.Error())
		}
		return Enrollment{}, err
	}
	enr.Course = &course
	return enr, nil
}

func (svc *service) Unenroll(ctx context.Context, usr user.User, courseID string) error {
	if _, err := svc.repo.GetEnrollment(ctx, courseID, usr.ID); err != nil {
		return err
	}
	return svc.repo.DeleteEnrollment(ctx, courseID, usr.ID)
}

func (svc *service) Enrollments(ctx context.Context, usr user.User) ([]Enrollment, error) {
	return svc.repo.QueryEnrollments(ctx, usr.ID)
}

func (svc *service) CountEnrollments(ctx context.Context, userID string) (int, error) {
	return svc.repo.CountEnrollments(ctx, userID)
}

// cache

func listCacheKey(filter *CourseFilter, ordering []core.DBOrdering, page core.Page) string {
	var b strings.Builder
	b.WriteString(cachePrefix + "list:")
	fmt.Fprintf(&b, "c=%s|l=%s|s=%s|f=%t|i=%s|o=", filter.Category, filter.Level, strings.ToLower(filter.Search), filter.FreeOnly, filter.InstructorID)
	for _, ord := range ordering {
		b.WriteString(ord.String() + ",")
	}
	fmt.Fprintf(&b, "|p=%d:%d", page.Limit, page.Offset)
	return b.String()
}

func (svc *service) fromCache(ctx context.Context, key string, dest interface{}) bool {
	found, err := svc.cache.Get(ctx, key, dest)
	if err != nil {
		svc.logger.Warn("reading catalog cache", err, ctx)
		return false
	}
	return found
}

func (svc *service) toCache(ctx context.Context, key string, val interface{}) {
	if err := svc.cache.Set(ctx, key, val, svc.cacheTTL); err != nil {
		svc.logger.Warn("writing catalog cache", err, ctx)
	}
}

func (svc *service) invalidate(ctx context.Context) {
	core.InvalidatePrefix(ctx, svc.cache, svc.logger, cachePrefix)
}

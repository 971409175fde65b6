package echoapi

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/geoffroyotegbeye/codesens/core/catalog"
	"github.com/geoffroyotegbeye/codesens/core/user"
)

type courseApi struct {
	svc      catalog.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerCourseAPI(g *echo.Group, authed, optAuth echo.MiddlewareFunc, opts *Options) {
	api := courseApi{
		svc:      opts.CatalogSvc,
		usrSvc:   opts.UserSvc,
		validate: opts.Validate,
	}
	active := activeUserMiddleware(api.usrSvc)

	cg := g.Group("/courses")
	cg.GET("", api.query, optAuth)
	cg.GET("/:slug", api.retrieve, optAuth)
	cg.POST("", api.create, authed, active, adminMiddleware())
	cg.PUT("/:id", api.update, authed, active, adminMiddleware())
	cg.DELETE("/:id", api.destroy, authed, active, adminMiddleware())

	cg.POST("/:id/enrollment", api.enroll, authed, active)
	cg.DELETE("/:id/enrollment", api.unenroll, authed, active)

	g.GET("/users/me/enrollments", api.myEnrollments, authed, active)
}

func (api *courseApi) query(ctx echo.Context) error {
	filter := new(catalog.CourseFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, catalog.CoursePage{Results: []catalog.Course{}})
	}
	filter.Clean()
	if !contextIsAdmin(ctx) {
		filter.OnlyPublished()
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	page, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying courses")
	}
	if page.Results == nil {
		page.Results = []catalog.Course{}
	}
	return ctx.JSON(http.StatusOK, page)
}

func (api *courseApi) retrieve(ctx echo.Context) error {
	var course catalog.Course
	var err error
	if contextIsAdmin(ctx) {
		course, err = api.svc.Get(ctx.Request().Context(), catalog.GetFilter{Slug: ctx.Param("slug")})
	} else {
		course, err = api.svc.GetPublished(ctx.Request().Context(), ctx.Param("slug"))
	}
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, course)
}

func (api *courseApi) create(ctx echo.Context) error {
	var data catalog.NewCourse
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	course, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating course")
	}
	return ctx.JSON(http.StatusCreated, course)
}

func (api *courseApi) update(ctx echo.Context) error {
	course, err := api.svc.Get(ctx.Request().Context(), catalog.GetFilter{ID: ctx.Param("id")})
	if err != nil {
		return err
	}

	var data catalog.NewCourse
	if err = ctx.Bind(&data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	course, err = api.svc.Update(ctx.Request().Context(), course, data)
	if err != nil {
		return errors.Wrap(err, "updating course")
	}
	return ctx.JSON(http.StatusOK, course)
}

func (api *courseApi) destroy(ctx echo.Context) error {
	if err := api.svc.Delete(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting course")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Enrollments

func (api *courseApi) enroll(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	enr, err := api.svc.Enroll(ctx.Request().Context(), usr, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "enrolling")
	}
	return ctx.JSON(http.StatusCreated, enr)
}

func (api *courseApi) unenroll(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	if err = api.svc.Unenroll(ctx.Request().Context(), usr, ctx.Param("id")); err != nil {
		return errors.Wrap(err, "unenrolling")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *courseApi) myEnrollments(ctx echo.Context) error {
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	enrs, err := api.svc.Enrollments(ctx.Request().Context(), usr)
	if err != nil {
		return errors.Wrap(err, "listing enrollments")
	}
	if enrs == nil {
		enrs = []catalog.Enrollment{}
	}
	return ctx.JSON(http.StatusOK, enrs)
}

package echoapi

import (
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/geoffroyotegbeye/codesens/core"
	"github.com/geoffroyotegbeye/codesens/core/blog"
	"github.com/geoffroyotegbeye/codesens/core/catalog"
	"github.com/geoffroyotegbeye/codesens/core/mentoring"
	"github.com/geoffroyotegbeye/codesens/core/user"
)

const upcomingSessionsLimit = 5

type dashboardApi struct {
	usrSvc       user.Service
	blogSvc      blog.Service
	catalogSvc   catalog.Service
	mentoringSvc mentoring.Service
	clock        clockwork.Clock
}

type (
	Total struct {
		Total     int `json:"total"`
		Published int `json:"published"`
	}

	DashboardStats struct {
		Users       int            `json:"users"`
		Courses     Total          `json:"courses"`
		Posts       Total          `json:"posts"`
		Mentees     int            `json:"mentees"`
		Enrollments int            `json:"enrollments"`
		Sessions    map[string]int `json:"sessions"`
	}

	MyDashboard struct {
		Enrollments      int                 `json:"enrollments"`
		UpcomingSessions []mentoring.Session `json:"upcoming_sessions"`
		PendingRequests  int                 `json:"pending_requests"`
	}
)

func registerDashboardAPI(g *echo.Group, authed echo.MiddlewareFunc, opts *Options) {
	api := dashboardApi{
		usrSvc:       opts.UserSvc,
		blogSvc:      opts.BlogSvc,
		catalogSvc:   opts.CatalogSvc,
		mentoringSvc: opts.MentoringSvc,
		clock:        opts.Clock,
	}

	dg := g.Group("/dashboard", authed, activeUserMiddleware(api.usrSvc))
	dg.GET("/stats", api.stats, adminMiddleware())
	dg.GET("/me", api.me)
}

func (api *dashboardApi) stats(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	var stats DashboardStats
	var err error

	if stats.Users, err = api.usrSvc.Count(reqCtx); err != nil {
		return errors.Wrap(err, "counting users")
	}
	if stats.Courses.Total, err = api.catalogSvc.Count(reqCtx, false); err != nil {
		return errors.Wrap(err, "counting courses")
	}
	if stats.Courses.Published, err = api.catalogSvc.Count(reqCtx, true); err != nil {
		return errors.Wrap(err, "counting published courses")
	}
	if stats.Posts.Total, err = api.blogSvc.CountPosts(reqCtx, ""); err != nil {
		return errors.Wrap(err, "counting posts")
	}
	if stats.Posts.Published, err = api.blogSvc.CountPosts(reqCtx, blog.StatusPublished); err != nil {
		return errors.Wrap(err, "counting published posts")
	}
	if stats.Mentees, err = api.mentoringSvc.CountMentees(reqCtx); err != nil {
		return errors.Wrap(err, "counting mentees")
	}
	if stats.Enrollments, err = api.catalogSvc.CountEnrollments(reqCtx, ""); err != nil {
		return errors.Wrap(err, "counting enrollments")
	}
	if stats.Sessions, err = api.mentoringSvc.CountSessionsByStatus(reqCtx, nil); err != nil {
		return errors.Wrap(err, "counting sessions")
	}
	return ctx.JSON(http.StatusOK, stats)
}

func (api *dashboardApi) me(ctx echo.Context) error {
	reqCtx := ctx.Request().Context()
	usr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}

	var dash MyDashboard
	if dash.Enrollments, err = api.catalogSvc.CountEnrollments(reqCtx, usr.ID); err != nil {
		return errors.Wrap(err, "counting enrollments")
	}
	dash.UpcomingSessions, _, err = api.mentoringSvc.QuerySessions(reqCtx, &mentoring.SessionFilter{
		Status:        mentoring.StatusConfirmed,
		From:          api.clock.Now().UTC(),
		ParticipantID: usr.ID,
	}, core.Page{Limit: upcomingSessionsLimit})
	if err != nil {
		return errors.Wrap(err, "querying upcoming sessions")
	}
	if dash.UpcomingSessions == nil {
		dash.UpcomingSessions = []mentoring.Session{}
	}
	counts, err := api.mentoringSvc.CountSessionsByStatus(reqCtx, &mentoring.SessionFilter{ParticipantID: usr.ID})
	if err != nil {
		return errors.Wrap(err, "counting sessions")
	}
	dash.PendingRequests = counts[mentoring.StatusPending]
	return ctx.JSON(http.StatusOK, dash)
}

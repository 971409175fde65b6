package echoapi

import (
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/geoffroyotegbeye/codesens/core/mentoring"
	"github.com/geoffroyotegbeye/codesens/core/user"
)

type mentoringApi struct {
	svc      mentoring.Service
	usrSvc   user.Service
	validate *validator.Validate
}

func registerMentoringAPI(g *echo.Group, authed, optAuth, limiter echo.MiddlewareFunc, opts *Options) {
	api := mentoringApi{
		svc:      opts.MentoringSvc,
		usrSvc:   opts.UserSvc,
		validate: opts.Validate,
	}
	active := activeUserMiddleware(api.usrSvc)
	admin := []echo.MiddlewareFunc{authed, active, adminMiddleware()}
	staff := []echo.MiddlewareFunc{authed, active, staffMiddleware()}

	mg := g.Group("/mentoring")

	mg.POST("/requests", api.request, limiter, optAuth)

	mg.GET("/pricing", api.queryPricing, optAuth)
	mg.POST("/pricing", api.createPricing, admin...)
	mg.PUT("/pricing/:id", api.updatePricing, admin...)
	mg.DELETE("/pricing/:id", api.destroyPricing, admin...)

	mg.GET("/availability", api.queryAvailability)
	mg.POST("/availability", api.createAvailability, staff...)
	mg.PUT("/availability/:id", api.updateAvailability, staff...)
	mg.DELETE("/availability/:id", api.destroyAvailability, staff...)

	eg := mg.Group("/mentees", admin...)
	eg.GET("", api.queryMentees)
	eg.POST("", api.createMentee)
	eg.GET("/:id", api.retrieveMentee)
	eg.PUT("/:id", api.updateMentee)
	eg.DELETE("/:id", api.destroyMentee)

	sg := mg.Group("/sessions", authed, active)
	sg.GET("", api.querySessions, staffMiddleware())
	dg := sg.Group("/:id", sessionMiddleware(api.svc, api.usrSvc))
	dg.GET("", api.retrieveSession)
	dg.PUT("", api.updateSession, adminMiddleware())
	dg.DELETE("", api.destroySession, adminMiddleware())
	dg.POST("/confirm", api.confirmSession, staffMiddleware())
	dg.POST("/cancel", api.cancelSession)
	dg.POST("/complete", api.completeSession)
	if opts.CallHub != nil {
		dg.GET("/call", newCallHandler(opts))
	}

	g.GET("/users/me/sessions", api.mySessions, authed, active)
}

// sessionMiddleware loads the session into the context for its participants and admins.
// Everyone else gets a 404.
func sessionMiddleware(svc mentoring.Service, usrSvc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			ctxUsr, err := getContextUser(ctx, usrSvc)
			if err != nil {
				return err
			}
			sess, err := svc.GetSession(ctx.Request().Context(), ctx.Param("id"))
			if err != nil {
				return err
			}
			if !ctxUsr.IsAdmin() && !sess.HasParticipant(ctxUsr.ID) {
				return mentoring.ErrSessionNotFound
			}
			ctx.Set("object", sess)
			return next(ctx)
		}
	}
}

func contextSession(ctx echo.Context) (mentoring.Session, error) {
	sess, ok := ctx.Get("object").(mentoring.Session)
	if !ok {
		return mentoring.Session{}, errors.Wrap(errObjNotFoundInCtx, "retrieving session")
	}
	return sess, nil
}

// Requests

func (api *mentoringApi) request(ctx echo.Context) error {
	var data mentoring.MentoringRequest
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	var requester *user.User
	if isAuthenticated(ctx) {
		usr, err := getContextUser(ctx, api.usrSvc)
		if err != nil {
			return err
		}
		requester = &usr
	}

	sess, err := api.svc.RequestMentoring(ctx.Request().Context(), requester, data)
	if err != nil {
		return errors.Wrap(err, "requesting mentoring")
	}
	return ctx.JSON(http.StatusCreated, sess)
}

// Pricing

func (api *mentoringApi) queryPricing(ctx echo.Context) error {
	all, _ := strconv.ParseBool(ctx.QueryParam("all"))
	activeOnly := !(all && contextIsAdmin(ctx))

	plans, err := api.svc.QueryPricingPlans(ctx.Request().Context(), activeOnly)
	if err != nil {
		return errors.Wrap(err, "querying pricing plans")
	}
	if plans == nil {
		plans = []mentoring.PricingPlan{}
	}
	return ctx.JSON(http.StatusOK, plans)
}

func (api *mentoringApi) createPricing(ctx echo.Context) error {
	var data mentoring.NewPricingPlan
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	plan, err := api.svc.CreatePricingPlan(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating pricing plan")
	}
	return ctx.JSON(http.StatusCreated, plan)
}

func (api *mentoringApi) updatePricing(ctx echo.Context) error {
	plan, err := api.svc.GetPricingPlan(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}

	var data mentoring.NewPricingPlan
	if err = ctx.Bind(&data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	plan, err = api.svc.UpdatePricingPlan(ctx.Request().Context(), plan, data)
	if err != nil {
		return errors.Wrap(err, "updating pricing plan")
	}
	return ctx.JSON(http.StatusOK, plan)
}

func (api *mentoringApi) destroyPricing(ctx echo.Context) error {
	if err := api.svc.DeletePricingPlan(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting pricing plan")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Availability

func (api *mentoringApi) queryAvailability(ctx echo.Context) error {
	windows, err := api.svc.QueryAvailabilities(ctx.Request().Context(), ctx.QueryParam("mentor_id"))
	if err != nil {
		return errors.Wrap(err, "querying availabilities")
	}
	if windows == nil {
		windows = []mentoring.Availability{}
	}
	return ctx.JSON(http.StatusOK, windows)
}

func (api *mentoringApi) createAvailability(ctx echo.Context) error {
	var data mentoring.NewAvailability
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	av, err := api.svc.CreateAvailability(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating availability")
	}
	return ctx.JSON(http.StatusCreated, av)
}

// ownAvailability loads the availability of the path, which mentors may only touch when it is theirs.
func (api *mentoringApi) ownAvailability(ctx echo.Context) (mentoring.Availability, error) {
	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return mentoring.Availability{}, err
	}
	av, err := api.svc.GetAvailability(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return mentoring.Availability{}, err
	}
	if !actor.IsAdmin() && av.MentorID != actor.ID {
		return mentoring.Availability{}, errHttpForbidden
	}
	return av, nil
}

func (api *mentoringApi) updateAvailability(ctx echo.Context) error {
	av, err := api.ownAvailability(ctx)
	if err != nil {
		return err
	}

	var data mentoring.NewAvailability
	if err = ctx.Bind(&data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	av, err = api.svc.UpdateAvailability(ctx.Request().Context(), av, data)
	if err != nil {
		return errors.Wrap(err, "updating availability")
	}
	return ctx.JSON(http.StatusOK, av)
}

func (api *mentoringApi) destroyAvailability(ctx echo.Context) error {
	av, err := api.ownAvailability(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteAvailability(ctx.Request().Context(), av.ID); err != nil {
		return errors.Wrap(err, "deleting availability")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Mentees

func (api *mentoringApi) queryMentees(ctx echo.Context) error {
	filter := new(mentoring.MenteeFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, PageResponse{Results: []mentoring.Mentee{}})
	}
	filter.Clean()

	mentees, count, err := api.svc.QueryMentees(ctx.Request().Context(), filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying mentees")
	}
	if mentees == nil {
		mentees = []mentoring.Mentee{}
	}
	return ctx.JSON(http.StatusOK, PageResponse{Count: count, Results: mentees})
}

func (api *mentoringApi) createMentee(ctx echo.Context) error {
	var data mentoring.NewMentee
	if err := ctx.Bind(&data); err != nil {
		return err
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}

	mentee, err := api.svc.CreateMentee(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating mentee")
	}
	return ctx.JSON(http.StatusCreated, mentee)
}

func (api *mentoringApi) retrieveMentee(ctx echo.Context) error {
	mentee, err := api.svc.GetMentee(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, mentee)
}

func (api *mentoringApi) updateMentee(ctx echo.Context) error {
	mentee, err := api.svc.GetMentee(ctx.Request().Context(), ctx.Param("id"))
	if err != nil {
		return err
	}

	var data mentoring.NewMentee
	if err = ctx.Bind(&data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	mentee, err = api.svc.UpdateMentee(ctx.Request().Context(), mentee, data)
	if err != nil {
		return errors.Wrap(err, "updating mentee")
	}
	return ctx.JSON(http.StatusOK, mentee)
}

func (api *mentoringApi) destroyMentee(ctx echo.Context) error {
	if err := api.svc.DeleteMentee(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return errors.Wrap(err, "deleting mentee")
	}
	return ctx.NoContent(http.StatusNoContent)
}

// Sessions

func (api *mentoringApi) querySessions(ctx echo.Context) error {
	filter := new(mentoring.SessionFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, PageResponse{Results: []mentoring.Session{}})
	}
	filter.Clean()

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	if !ctxUsr.IsAdmin() {
		// mentors only see their own sessions
		filter.MentorID = ctxUsr.ID
	}
	return api.sessionPage(ctx, filter)
}

func (api *mentoringApi) mySessions(ctx echo.Context) error {
	filter := new(mentoring.SessionFilter)
	if err := ctx.Bind(filter); err != nil {
		return ctx.JSON(http.StatusOK, PageResponse{Results: []mentoring.Session{}})
	}
	filter.Clean()

	ctxUsr, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	filter.ParticipantID = ctxUsr.ID
	return api.sessionPage(ctx, filter)
}

func (api *mentoringApi) sessionPage(ctx echo.Context, filter *mentoring.SessionFilter) error {
	sessions, count, err := api.svc.QuerySessions(ctx.Request().Context(), filter, bindPage(ctx))
	if err != nil {
		return errors.Wrap(err, "querying sessions")
	}
	if sessions == nil {
		sessions = []mentoring.Session{}
	}
	return ctx.JSON(http.StatusOK, PageResponse{Count: count, Results: sessions})
}

func (api *mentoringApi) retrieveSession(ctx echo.Context) error {
	sess, err := contextSession(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *mentoringApi) updateSession(ctx echo.Context) error {
	sess, err := contextSession(ctx)
	if err != nil {
		return err
	}

	var data mentoring.UpdateSession
	if err = ctx.Bind(&data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	sess, err = api.svc.UpdateSession(ctx.Request().Context(), sess, data)
	if err != nil {
		return errors.Wrap(err, "updating session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *mentoringApi) destroySession(ctx echo.Context) error {
	sess, err := contextSession(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.DeleteSession(ctx.Request().Context(), sess.ID); err != nil {
		return errors.Wrap(err, "deleting session")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *mentoringApi) confirmSession(ctx echo.Context) error {
	sess, err := contextSession(ctx)
	if err != nil {
		return err
	}

	var data mentoring.ConfirmSession
	if err = ctx.Bind(&data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	sess, err = api.svc.Confirm(ctx.Request().Context(), sess, actor, data)
	if err != nil {
		return errors.Wrap(err, "confirming session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *mentoringApi) cancelSession(ctx echo.Context) error {
	sess, err := contextSession(ctx)
	if err != nil {
		return err
	}

	var data mentoring.CancelSession
	if err = ctx.Bind(&data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	sess, err = api.svc.Cancel(ctx.Request().Context(), sess, data)
	if err != nil {
		return errors.Wrap(err, "cancelling session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

func (api *mentoringApi) completeSession(ctx echo.Context) error {
	sess, err := contextSession(ctx)
	if err != nil {
		return err
	}

	actor, err := getContextUser(ctx, api.usrSvc)
	if err != nil {
		return err
	}
	if !actor.IsAdmin() && sess.MentorID != actor.ID {
		return errHttpForbidden
	}

	sess, err = api.svc.Complete(ctx.Request().Context(), sess)
	if err != nil {
		return errors.Wrap(err, "completing session")
	}
	return ctx.JSON(http.StatusOK, sess)
}

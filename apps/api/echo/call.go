package echoapi

import (
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/geoffroyotegbeye/codesens/core"
	"github.com/geoffroyotegbeye/codesens/core/mentoring"
	"github.com/geoffroyotegbeye/codesens/services/callroom"
)

func newUpgrader(conf *core.Config) websocket.Upgrader {
	allowed := make(map[string]bool, len(conf.Server.CORSAllowedOrigins))
	for _, origin := range conf.Server.CORSAllowedOrigins {
		allowed[origin] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get(echo.HeaderOrigin)
			return origin == "" || conf.Debug || allowed["*"] || allowed[origin]
		},
	}
}

// newCallHandler upgrades a participant of a confirmed session to the session's call room.
// The session is loaded by sessionMiddleware.
func newCallHandler(opts *Options) echo.HandlerFunc {
	upgrader := newUpgrader(opts.Conf)

	return func(ctx echo.Context) error {
		sess, err := contextSession(ctx)
		if err != nil {
			return err
		}
		if sess.Status != mentoring.StatusConfirmed {
			return core.NewConflictError("only confirmed sessions can be joined")
		}
		usr, err := getContextUser(ctx, opts.UserSvc)
		if err != nil {
			return err
		}

		role := callroom.RoleMentee
		switch {
		case sess.MentorID == usr.ID:
			role = callroom.RoleMentor
		case !sess.HasParticipant(usr.ID):
			role = callroom.RoleAdmin
		}

		conn, err := upgrader.Upgrade(ctx.Response(), ctx.Request(), nil)
		if err != nil {
			// the upgrader already answered the client
			return nil
		}
		if err = opts.CallHub.Serve(ctx.Request().Context(), sess.ID, conn, callroom.Participant{
			UserID: usr.ID,
			Name:   usr.Name,
			Role:   role,
		}); err != nil {
			opts.Logger.Info("call refused", map[string]interface{}{"session_id": sess.ID, "reason": err.Error()}, usr, ctx.Request().Context())
		}
		return nil
	}
}

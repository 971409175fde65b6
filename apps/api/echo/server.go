package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/geoffroyotegbeye/codesens/core"
	"github.com/geoffroyotegbeye/codesens/core/blog"
	"github.com/geoffroyotegbeye/codesens/core/catalog"
	"github.com/geoffroyotegbeye/codesens/core/mentoring"
	"github.com/geoffroyotegbeye/codesens/core/user"
	"github.com/geoffroyotegbeye/codesens/services/callroom"
)

type (
	// Pinger reports whether the database answers.
	Pinger interface {
		PingContext(ctx context.Context) error
	}

	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		DisableReqLogs bool
		DB             Pinger
		Validate       *validator.Validate
		Translator     ut.Translator
		Clock          clockwork.Clock
		UserSvc        user.Service
		BlogSvc        blog.Service
		CatalogSvc     catalog.Service
		MentoringSvc   mentoring.Service
		CallHub        *callroom.Hub
		// Storage files are served under Conf.Uploads.BaseURL.
		Storage core.FileStorage
	}

	Server struct {
		opts     *Options
		app      *echo.Echo
		jwt      JWTConfig
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(opts *Options) *Server {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	s := &Server{
		opts:     opts,
		app:      echo.New(),
		jwt:      NewJWTConfig(opts.Conf),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.HidePort = true
	s.app.Debug = conf.Debug
	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.SignalShutdown)
	s.app.Server.ReadTimeout = conf.Server.ReadTimeout
	s.app.Server.WriteTimeout = conf.Server.WriteTimeout

	s.app.Pre(middleware.RemoveTrailingSlash())
	s.app.Use(requestIDMiddleware())
	if !s.opts.DisableReqLogs {
		s.app.Use(requestLoggerMiddleware(s.opts.Logger))
	}
	s.app.Use(metricsMiddleware())
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	s.app.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: conf.Server.CORSAllowedOrigins,
		AllowHeaders: []string{
			echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept,
			echo.HeaderAuthorization, echo.HeaderXRequestID,
		},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
	}))
	if conf.Server.BodyLimit != "" {
		s.app.Use(middleware.BodyLimit(conf.Server.BodyLimit))
	}

	s.app.GET("/", home)
	s.app.GET("/health", s.health)
	s.app.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	if s.opts.Storage != nil {
		s.app.GET(conf.Uploads.BaseURL+"/:filename", serveUpload(s.opts.Storage))
	}

	v1 := s.app.Group("/api/v1")
	authed := s.jwt.jwtMiddleware(false)
	optAuth := s.jwt.jwtMiddleware(true)
	limiter := rateLimitMiddleware(conf)

	registerUserAPI(v1, authed, limiter, s.opts, s.jwt)
	registerBlogAPI(v1, authed, optAuth, s.opts)
	registerCourseAPI(v1, authed, optAuth, s.opts)
	registerMentoringAPI(v1, authed, optAuth, limiter, s.opts)
	registerUploadAPI(v1, authed, s.opts)
	registerDashboardAPI(v1, authed, s.opts)
}

// Start listens until the server is shut down. Listen errors are reported on Errors.
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.opts.Conf.Server.Address); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

// ShutdownSignal receives SIGINT, SIGTERM and the shutdown requests of the error handler.
func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) SignalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already signaled
	}
}

// Shutdown stops accepting requests and waits for the in-flight ones. Call rooms are closed first
// since hijacked websocket connections are not tracked by the http server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.opts.CallHub != nil {
		s.opts.CallHub.Stop()
	}
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.app.ServeHTTP(w, r)
}

func home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Welcome to CodeSens API!")
}

func (s *Server) health(ctx echo.Context) error {
	if s.opts.DB != nil {
		if err := s.opts.DB.PingContext(ctx.Request().Context()); err != nil {
			s.opts.Logger.Error("health check failed", err, ctx.Request().Context())
			return ctx.JSON(http.StatusServiceUnavailable, echo.Map{"status": "unavailable"})
		}
	}
	return ctx.JSON(http.StatusOK, echo.Map{"status": "ok"})
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/geoffroyotegbeye/codesens/apps/api/echo"
	"github.com/geoffroyotegbeye/codesens/core"
	"github.com/geoffroyotegbeye/codesens/core/blog"
	"github.com/geoffroyotegbeye/codesens/core/catalog"
	"github.com/geoffroyotegbeye/codesens/core/mentoring"
	"github.com/geoffroyotegbeye/codesens/core/user"
	"github.com/geoffroyotegbeye/codesens/services/callroom"
	emailsvc "github.com/geoffroyotegbeye/codesens/services/email"
	logsvc "github.com/geoffroyotegbeye/codesens/services/logger"
	"github.com/geoffroyotegbeye/codesens/storage/cache"
	"github.com/geoffroyotegbeye/codesens/storage/database"
	"github.com/geoffroyotegbeye/codesens/storage/database/sqlxrepos"
	"github.com/geoffroyotegbeye/codesens/storage/files"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// cacheCloser closes the connection of the catalog cache.
type cacheCloser func() error

// storageCloser releases the uploads bucket.
type storageCloser func() error

func newRootLogger(conf *core.Config) *logsvc.RollbarLogger {
	logger := logsvc.NewRollbarLogger(os.Stdout, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newLogger(root *logsvc.RollbarLogger) core.Logger {
	return root.With("component", "api")
}

func newDBLogger(root *logsvc.RollbarLogger) core.Logger {
	return root.With("component", "db")
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) (*sqlx.DB, core.DB) {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(context.Background(), conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
			_ = db.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db, db
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	if conf.Debug {
		return emailsvc.NewConsoleService(conf, logger)
	}
	return emailsvc.NewSendgridService(conf, logger)
}

func newCache(conf *core.Config, logger core.Logger) (core.Cache, cacheCloser) {
	c, closeFn := cache.New(context.Background(), conf, logger)
	return c, closeFn
}

func newFileStorage(conf *core.Config, logger core.Logger) (core.FileStorage, storageCloser) {
	storage, err := files.NewStorage(context.Background(), conf)
	if err != nil {
		logger.Fatal("setting up file storage", err)
	}
	return storage, storage.Close
}

func newCallHub(clock clockwork.Clock, logger core.Logger) *callroom.Hub {
	return callroom.NewHub(clock, logger, callroom.Options{})
}

type serverParams struct {
	dig.In

	Conf         *core.Config
	Logger       core.Logger
	DB           *sqlx.DB
	Validate     *validator.Validate
	Translator   ut.Translator
	Clock        clockwork.Clock
	UserSvc      user.Service
	BlogSvc      blog.Service
	CatalogSvc   catalog.Service
	MentoringSvc mentoring.Service
	CallHub      *callroom.Hub
	Storage      core.FileStorage
}

func newServer(p serverParams) *echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Conf:         p.Conf,
		Logger:       p.Logger,
		DB:           p.DB,
		Validate:     p.Validate,
		Translator:   p.Translator,
		Clock:        p.Clock,
		UserSvc:      p.UserSvc,
		BlogSvc:      p.BlogSvc,
		CatalogSvc:   p.CatalogSvc,
		MentoringSvc: p.MentoringSvc,
		CallHub:      p.CallHub,
		Storage:      p.Storage,
	})
}

// newContainer returns the dependency injection container of the api.
func newContainer() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newRootLogger))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(clockwork.NewRealClock))
	must(c.Provide(newEmailService))
	must(c.Provide(newCache))
	must(c.Provide(newFileStorage))
	must(c.Provide(newCallHub))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))

	must(c.Provide(func(db *sqlx.DB) user.Repository { return sqlxrepos.NewUserRepository(db) }))
	must(c.Provide(func(db *sqlx.DB) blog.Repository { return sqlxrepos.NewBlogRepository(db) }))
	must(c.Provide(func(db *sqlx.DB) catalog.Repository { return sqlxrepos.NewCatalogRepository(db) }))
	must(c.Provide(func(db core.DB) mentoring.Repository { return sqlxrepos.NewMentoringRepository(db) }))

	must(c.Provide(user.NewService))
	must(c.Provide(blog.NewService))
	must(c.Provide(catalog.NewService))
	must(c.Provide(mentoring.NewService))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}

package main

import (
	"context"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"

	"github.com/geoffroyotegbeye/codesens/core"
	"github.com/geoffroyotegbeye/codesens/core/blog"
	"github.com/geoffroyotegbeye/codesens/core/catalog"
	"github.com/geoffroyotegbeye/codesens/core/mentoring"
	"github.com/geoffroyotegbeye/codesens/core/user"
	emailsvc "github.com/geoffroyotegbeye/codesens/services/email"
	logsvc "github.com/geoffroyotegbeye/codesens/services/logger"
	"github.com/geoffroyotegbeye/codesens/storage/cache"
	"github.com/geoffroyotegbeye/codesens/storage/database"
	"github.com/geoffroyotegbeye/codesens/storage/database/sqlxrepos"
)

func main() {
	conf := core.NewConfig()
	rootLogger := logsvc.NewRollbarLogger(os.Stderr, conf)
	logger := rootLogger.With("component", "admin")

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal("opening database", err)
	}
	if err = db.Ping(); err != nil {
		logger.Fatal("pinging database", err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	catalog.InitValidators(validate, translator)
	mentoring.InitValidators(validate, translator)
	user.LoadCommonPasswords(logger)

	// shared with the API so catalog writes drop its cached pages
	catalogCache, closeCache := cache.New(context.Background(), conf, logger)

	// set up services
	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, emailsvc.NewConsoleService(conf, logger), catalogCache, conf, logger)
	blogSvc := blog.NewService(sqlxrepos.NewBlogRepository(db), catalogCache, logger)

	// start CLI
	cli := commandLine{
		db:           db,
		out:          os.Stdout,
		validate:     validate,
		usrRepo:      usrRepo,
		usrSvc:       usrSvc,
		blogSvc:      blogSvc,
		catalogSvc:   catalog.NewService(sqlxrepos.NewCatalogRepository(db), blogSvc, usrSvc, catalogCache, conf, logger),
		mentoringSvc: mentoring.NewService(sqlxrepos.NewMentoringRepository(db), usrSvc, emailsvc.NewConsoleService(conf, logger), conf, clockwork.NewRealClock()),
	}
	err = cli.run(os.Args)
	_ = closeCache()
	_ = db.Close()
	_ = rootLogger.Close()
	if err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		os.Exit(1)
	}
}

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/afero"

	echoapi "github.com/ecolehq/ecole/api/echo"
	"github.com/ecolehq/ecole/core"
	"github.com/ecolehq/ecole/core/contact"
	"github.com/ecolehq/ecole/core/course"
	"github.com/ecolehq/ecole/core/storage"
	"github.com/ecolehq/ecole/core/user"
	emailsvc "github.com/ecolehq/ecole/services/email"
	logsvc "github.com/ecolehq/ecole/services/logger"
	"github.com/ecolehq/ecole/storage/database"
	pgrepos "github.com/ecolehq/ecole/storage/database/postgres"
)

const shutdownTimeout = 20 * time.Second

func main() {
	conf := core.LoadConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	// set up DB
	db, err := setUpDB(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() { _ = db.Close() }()

	// set up services
	store, err := storage.NewFileStore(afero.NewOsFs(), conf.Media.Root, conf.Media.BaseURL)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file store: %v", err), err)
	}

	var mailSvc core.EmailService
	if conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}

	usrSvc := user.NewService(pgrepos.NewUserRepository(db), mailSvc)
	courseSvc := course.NewService(pgrepos.NewCourseRepository(db), store)
	contactSvc := contact.NewService(pgrepos.NewContactRepository(db), mailSvc)

	validate, translator := core.NewValidator()

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// start API server
	server := echoapi.NewServer(&echoapi.Options{
		Address:    conf.ServerAddress(),
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
		UserSvc:    usrSvc,
		CourseSvc:  courseSvc,
		ContactSvc: contactSvc,
		Store:      store,
	})
	go server.Start()

	// block until a shutdown signal arrives, then give outstanding requests a
	// deadline for completion
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sig:
		logger.Info(fmt.Sprintf("%v: start shutdown...", s))
	case <-server.ShutdownSignal():
		logger.Info("unrecoverable error: start shutdown...")
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err = server.Stop(ctx); err != nil {
		logger.Fatal(fmt.Sprintf("could not stop server gracefully: %v", err), err)
	}
}

func setUpDB(conf *core.Config) (*sqlx.DB, error) {
	if err := database.CreateIfNotExist(conf); err != nil {
		return nil, err
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(db.DB); err != nil {
		return nil, err
	}
	return db, nil
}

package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	echoapi "github.com/uniroute/uniroute/apps/api/echo"
	"github.com/uniroute/uniroute/core"
	"github.com/uniroute/uniroute/core/application"
	"github.com/uniroute/uniroute/core/university"
	"github.com/uniroute/uniroute/core/user"
	"github.com/uniroute/uniroute/services/docstore"
	emailsvc "github.com/uniroute/uniroute/services/email"
	logsvc "github.com/uniroute/uniroute/services/logger"
	paymentsvc "github.com/uniroute/uniroute/services/payment"
	"github.com/uniroute/uniroute/storage/database"
	sqlxrepos "github.com/uniroute/uniroute/storage/database/sqlx"
	"github.com/uniroute/uniroute/storage/idempotency"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	logger := newLogger()

	db, err := setUpDB()
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = db.Close(); err != nil {
			logger.Error("closing database", err)
		}
	}()
	sdb := sqlx.NewDb(db, core.Conf.Database.Engine)

	docs, err := docstore.NewDiskStore(core.Conf.Document.Root)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up document store: %v", err), err)
	}

	idem, closeIdem := setUpIdempotencyStore(logger)
	defer closeIdem()

	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}

	var gateway application.PaymentGateway
	if core.Conf.Payment.GatewayURL != "" {
		gateway = paymentsvc.NewHTTPGateway(core.Conf.Payment, logger)
	} else {
		gateway = paymentsvc.NewConsoleGateway(logger)
	}

	usrSvc := user.NewService(sqlxrepos.NewUserRepository(sdb), mailSvc)
	uniSvc := university.NewService(sqlxrepos.NewUniversityRepository(sdb))
	appSvc := application.NewService(
		sqlxrepos.NewApplicationRepository(sdb),
		uniSvc,
		docs,
		gateway,
		idem,
		mailSvc,
	)

	// =========================================================================
	// Start API Service

	logger.Info(fmt.Sprintf("Application initializing : version %q", core.Conf.Build))
	defer logger.Info("Application stopped")

	server := echoapi.NewServer(&echoapi.Options{
		Address: core.Conf.Server.Address(),
		Logger:  logger,
		AppSvc:  appSvc,
		UniSvc:  uniSvc,
		UserSvc: usrSvc,
		Docs:    docs,
	})

	go server.Start()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), core.Conf.Server.ShutdownTimeout)
		defer cancel()

		if err = server.Shutdown(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

			if err = server.Close(); err != nil {
				logger.Fatal(fmt.Sprintf("could not force stop server: %v", err), err)
			}
		}
	}
}

func newLogger() core.Logger {
	if core.Conf.Debug {
		logger, err := logsvc.NewZapLogger(core.Conf)
		if err != nil {
			log.Fatalf("setting up logger: %v", err)
		}
		return logger
	}
	return logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		core.Conf,
	)
}

func setUpDB() (*sql.DB, error) {
	if err := database.CreateIfNotExist(core.Conf); err != nil {
		return nil, err
	}
	db, err := database.Open(core.Conf)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// setUpIdempotencyStore reaches for redis; DEV falls back to the in-memory
// store when redis is unreachable.
func setUpIdempotencyStore(logger core.Logger) (application.IdempotencyStore, func()) {
	store := idempotency.NewRedisStore(core.Conf.Redis)
	if err := store.Ping(context.Background()); err != nil {
		if !core.Conf.Debug {
			logger.Fatal(fmt.Sprintf("connecting to redis: %v", err), err)
		}
		logger.Warn(fmt.Sprintf("redis unreachable, using in-memory idempotency store: %v", err))
		_ = store.Close()
		return idempotency.NewInMemStore(), func() {}
	}
	return store, func() {
		if err := store.Close(); err != nil {
			logger.Error("closing redis", err)
		}
	}
}

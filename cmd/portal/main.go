// @title        Survey Portal BFF
// @version      1.0
// @description  Session and tenant-scoping gateway for the survey platform.
// @BasePath     /
//
// @securityDefinitions.apikey  BearerAuth
// @in                          header
// @name                        Authorization
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	mongodriver "go.mongodb.org/mongo-driver/mongo"

	"github.com/surveyhub/portal/internal/api"
	"github.com/surveyhub/portal/internal/api/handler"
	"github.com/surveyhub/portal/internal/core/permission"
	"github.com/surveyhub/portal/internal/core/ports"
	"github.com/surveyhub/portal/internal/core/service"
	"github.com/surveyhub/portal/internal/infrastructure/config"
	"github.com/surveyhub/portal/internal/infrastructure/db/mongo"
	redisdb "github.com/surveyhub/portal/internal/infrastructure/db/redis"
	"github.com/surveyhub/portal/internal/infrastructure/http/handlers"
	"github.com/surveyhub/portal/internal/infrastructure/issuer"
	"github.com/surveyhub/portal/internal/infrastructure/queue"
	"github.com/surveyhub/portal/pkg/logger"
)

const (
	appName         = "survey-portal"
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		return err
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: appName,
	})
	if cfg.IsDevelopment() {
		figure.NewFigure("survey portal", "cybermedium", true).Print()
		fmt.Println()
	}

	if err := permission.Validate(); err != nil {
		return err
	}

	upstream, err := handler.ParseUpstream(cfg.API.BaseURL)
	if err != nil {
		return err
	}

	rdb, err := redisdb.Connect(ctx, redisdb.Config{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	})
	if err != nil {
		return err
	}
	defer closeRedis(rdb, log)
	log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to redis")

	checks := map[string]handlers.Check{"redis": handlers.RedisCheck(rdb)}

	var (
		auditLog                          = logger.Component(log, "audit")
		auditRepo   ports.AuditRepository = queue.NewLogRepository(auditLog)
		auditReader ports.AuditReader
	)
	if cfg.Mongo.URI != "" {
		client, db, err := mongo.Connect(ctx, mongo.Config{
			URI:         cfg.Mongo.URI,
			Database:    cfg.Mongo.Database,
			AppName:     appName,
			MaxPoolSize: cfg.Mongo.MaxPoolSize,
		})
		if err != nil {
			return err
		}
		defer disconnectMongo(client, log)

		repo := mongo.NewAuditRepository(db)
		if err := repo.EnsureIndexes(ctx, cfg.Audit.Retention); err != nil {
			return err
		}
		auditRepo, auditReader = repo, repo
		checks["mongo"] = handlers.MongoCheck(db)
		log.Info().Str("database", cfg.Mongo.Database).Msg("connected to mongo")
	} else {
		log.Warn().Msg("MONGO_URI not set, session audit events go to the log only")
	}

	// The dispatcher outlives the request context so it can drain on shutdown.
	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	dispatcher := queue.NewDispatcher(cfg.Audit.Workers, auditRepo, auditLog)
	dispatcher.Start(dispatchCtx)

	iss := issuer.NewClient(cfg.Issuer.BaseURL, cfg.Issuer.Timeout, logger.Component(log, "issuer"))
	svc := service.NewAuthService(
		iss,
		redisdb.NewCredentialRepository(rdb, cfg.Session.TTL),
		dispatcher,
		service.SessionConfig{
			RefreshInterval: cfg.Session.RefreshInterval,
			RenewBuffer:     cfg.Session.RenewBuffer,
		},
		logger.Component(log, "sessions"),
	)

	e := api.NewRouter(api.Deps{
		Issuer:   iss,
		Sessions: svc,
		Audit:    auditReader,
		Upstream: upstream,
		Cookie: handler.SessionCookie{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.CookieSecure,
			TTL:    cfg.Session.TTL,
		},
		AccessCookie: cfg.Session.AccessCookie,
		Checks:       checks,
		Log:          logger.Component(log, "http"),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.Error().Err(err).Msg("server failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}

	// Schedulers stop before the dispatcher so no refresh event races the drain.
	log.Info().Int("sessions", svc.Active()).Msg("closing sessions")
	svc.Close()
	cancelDispatch()
	dispatcher.Wait()

	log.Info().Msg("server stopped")
	return nil
}

func closeRedis(rdb *redis.Client, log zerolog.Logger) {
	if err := rdb.Close(); err != nil {
		log.Warn().Err(err).Msg("redis close")
	}
}

func disconnectMongo(client *mongodriver.Client, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		log.Warn().Err(err).Msg("mongo disconnect")
	}
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/shrimpsense/shrimpsense-api/services/auth-service/internal/config"
	"github.com/shrimpsense/shrimpsense-api/services/auth-service/internal/handler"
	"github.com/shrimpsense/shrimpsense-api/services/auth-service/internal/repository"
	"github.com/shrimpsense/shrimpsense-api/services/auth-service/internal/usecase"
	"github.com/shrimpsense/shrimpsense-api/shared/auth"
	"github.com/shrimpsense/shrimpsense-api/shared/logger"
	"github.com/shrimpsense/shrimpsense-api/shared/mailer"
	"github.com/shrimpsense/shrimpsense-api/shared/ratelimit"
	"github.com/shrimpsense/shrimpsense-api/shared/security"
	"github.com/shrimpsense/shrimpsense-api/shared/validator"
)

const serviceName = "auth-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Str("service", serviceName).Logger()
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.NewStdout(cfg.Logger, serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("auth service stopped")
	}
}

func run(ctx context.Context, cfg *config.AuthServiceConfig, log *zerolog.Logger) error {
	mongoClient, err := mongo.Connect(options.Client().
		ApplyURI(cfg.Mongo.URI).
		SetTimeout(cfg.Mongo.Timeout))
	if err != nil {
		return err
	}
	defer func() {
		if err := mongoClient.Disconnect(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to disconnect from mongo")
		}
	}()

	initCtx, cancel := context.WithTimeout(ctx, cfg.Mongo.Timeout)
	defer cancel()

	if err := mongoClient.Ping(initCtx, nil); err != nil {
		return err
	}

	userRepo, err := repository.NewUserMongoRepository(initCtx, mongoClient.Database(cfg.Mongo.Database))
	if err != nil {
		return err
	}

	mail, err := mailer.NewMailer(cfg.SMTP, log)
	if err != nil {
		return err
	}

	hasher := security.NewPasswordHasher()
	jwtAuth := auth.NewJWTAuthenticator(cfg.Token.Audience, cfg.Token.Issuer, cfg.Token.Secret)

	v, err := validator.New()
	if err != nil {
		return err
	}

	var resetOpts []usecase.PasswordResetOption
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		resetOpts = append(resetOpts, usecase.WithThrottle(ratelimit.NewFixedWindow(rdb, ratelimit.Config{
			Prefix: "recover",
			Window: cfg.Redis.RecoverWindow,
			Limit:  cfg.Redis.RecoverMaxHits,
		})))
		log.Info().Str("addr", cfg.Redis.Addr).Msg("recovery throttle enabled")
	}

	authUsecase := usecase.NewAuthUsecase(log, userRepo, hasher, jwtAuth, usecase.AuthOptions{
		UnifyLoginErrors: cfg.Auth.LoginUnifyErrors,
	})
	passwordResetUsecase := usecase.NewPasswordResetUsecase(log, userRepo, hasher, mail, resetOpts...)

	srv := &http.Server{
		Addr: cfg.HTTP.Addr,
		Handler: handler.NewRouter(handler.Deps{
			Logger:               log,
			AuthUsecase:          authUsecase,
			PasswordResetUsecase: passwordResetUsecase,
			Validator:            v,
			TokenParser:          jwtAuth,
			Store:                userRepo,
			CORSAllowedOrigin:    cfg.HTTP.CORSAllowedOrigin,
			MaxBodyBytes:         cfg.HTTP.MaxBodyBytes,
			OperationTimeout:     cfg.Auth.OperationTimeout,
		}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTP.Addr).Msg("auth service listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancelShutdown()

	return srv.Shutdown(shutdownCtx)
}

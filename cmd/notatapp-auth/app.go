package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/redis/go-redis/v9"

	"github.com/MishC/NotatApp/adapters/events"
	"github.com/MishC/NotatApp/adapters/notifier"
	"github.com/MishC/NotatApp/adapters/store"
	"github.com/MishC/NotatApp/adapters/store/postgres"
	"github.com/MishC/NotatApp/adapters/store/sqlite"
	"github.com/MishC/NotatApp/adapters/throttle"
	"github.com/MishC/NotatApp/adapters/tokenizer"
	"github.com/MishC/NotatApp/config"
	"github.com/MishC/NotatApp/service"
)

// app owns the wired service and everything that must be closed on shutdown
type app struct {
	auth    *service.AuthService
	closers []io.Closer
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i].Close()
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	tok, err := tokenizer.NewJWTTokenizer(cfg.TokenizerConfig())
	if err != nil {
		return nil, fmt.Errorf("tokenizer: %w", err)
	}

	deps := service.Dependencies{
		Tokenizer: tok,
		Logger:    logger,
	}

	if err := a.wireStorage(ctx, cfg, &deps); err != nil {
		return nil, err
	}
	if err := a.wireRedis(ctx, cfg, logger, &deps); err != nil {
		return nil, err
	}
	if err := wireNotifiers(ctx, cfg, logger, &deps); err != nil {
		return nil, err
	}

	a.auth, err = service.NewAuthService(deps, cfg.ServiceConfig())
	if err != nil {
		return nil, err
	}
	ok = true
	return a, nil
}

func (a *app) wireStorage(ctx context.Context, cfg config.Config, deps *service.Dependencies) error {
	hasher := store.NewBcryptHasher(cfg.Lockout.BcryptCost)
	policy := cfg.LockoutPolicy()

	switch cfg.Storage.Driver {
	case config.DriverSQLite:
		s, err := sqlite.New(ctx, cfg.Storage.DSN, hasher, policy)
		if err != nil {
			return fmt.Errorf("sqlite storage: %w", err)
		}
		a.closers = append(a.closers, s)
		deps.Credentials, deps.Sessions = s, s
	case config.DriverPostgres:
		db, err := postgres.Connect(ctx, cfg.Storage.DSN, cfg.Storage.MaxConns)
		if err != nil {
			return err
		}
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, sqlDB)
		}
		if err := postgres.RunMigrations(ctx, db); err != nil {
			return err
		}
		s := postgres.NewStore(db, hasher, policy)
		deps.Credentials, deps.Sessions = s, s
	default:
		deps.Credentials = store.NewMemoryCredentialStore(hasher, policy)
		deps.Sessions = store.NewMemorySessionStore()
	}
	return nil
}

// wireRedis moves challenges, sessions, throttle and events onto Redis when it is configured
func (a *app) wireRedis(ctx context.Context, cfg config.Config, logger *slog.Logger, deps *service.Dependencies) error {
	if cfg.Redis.URL == "" {
		deps.Challenges = store.NewMemoryChallengeStore()
		deps.Throttle = throttle.NewMemoryThrottle(cfg.ThrottleConfig())
		return nil
	}

	client, err := store.ConnectRedis(ctx, cfg.Redis.URL)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, client)

	deps.Challenges = store.NewRedisChallengeStore(client)
	deps.Throttle = throttle.NewRedisThrottle(client, cfg.ThrottleConfig())
	if cfg.Storage.Driver == config.DriverMemory {
		deps.Sessions = store.NewRedisSessionStore(client)
	}

	publisher, err := newEventPublisher(client, logger)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, closerFunc(publisher.Close))
	deps.Events = events.NewWatermillPublisher(publisher, cfg.Redis.EventsTopic)
	return nil
}

func newEventPublisher(client redis.UniversalClient, logger *slog.Logger) (*redisstream.Publisher, error) {
	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: client,
		},
		watermill.NewSlogLogger(logger.With("component", "watermill")),
	)
	if err != nil {
		return nil, fmt.Errorf("redis stream publisher: %w", err)
	}
	return publisher, nil
}

func wireNotifiers(ctx context.Context, cfg config.Config, logger *slog.Logger, deps *service.Dependencies) error {
	logCodes := cfg.LogCodes()
	deps.EmailNotifier = notifier.NewLogNotifier(logger, "email", logCodes)
	deps.SMSNotifier = notifier.NewLogNotifier(logger, "sms", logCodes)
	if cfg.UsesLogNotifier() && !logCodes {
		logger.Warn("second factor is enforced but a log notifier is selected; codes are redacted and never delivered",
			"email_notifier", cfg.Notifier.Email,
			"sms_notifier", cfg.Notifier.SMS,
		)
	}
	if cfg.Notifier.Email == config.ProviderLog && cfg.Notifier.SMS == config.ProviderLog {
		return nil
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Notifier.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Notifier.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return fmt.Errorf("load aws config: %w", err)
	}

	if cfg.Notifier.Email == config.ProviderSES {
		deps.EmailNotifier = notifier.NewSESNotifier(sesv2.NewFromConfig(awsCfg), cfg.Notifier.FromAddress, logger)
	}
	if cfg.Notifier.SMS == config.ProviderSNS {
		deps.SMSNotifier = notifier.NewSNSNotifier(sns.NewFromConfig(awsCfg), cfg.Notifier.SMSRate, logger)
	}
	return nil
}

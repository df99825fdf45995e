package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vibast-solutions/ms-go-mailqueue/app/lock"
	"github.com/vibast-solutions/ms-go-mailqueue/app/logger"
	"github.com/vibast-solutions/ms-go-mailqueue/app/provider"
	"github.com/vibast-solutions/ms-go-mailqueue/app/queue"
	"github.com/vibast-solutions/ms-go-mailqueue/app/repository"
	"github.com/vibast-solutions/ms-go-mailqueue/config"
)

// mustLoad loads configuration and builds the process logger, exiting on error.
func mustLoad() (*config.Config, zerolog.Logger) {
	cfg, err := config.Load()
	if err != nil {
		boot := zerolog.New(os.Stderr).With().Timestamp().Logger()
		boot.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.NewFromConfig(logger.Config{
		Level:     cfg.LogLevel,
		Output:    cfg.LogOutput,
		FilePath:  cfg.LogFile,
		MaxSizeMB: cfg.LogMaxSizeMB,
		MaxFiles:  cfg.LogMaxFiles,
	})
	return cfg, log
}

// openDB opens and pings the message store.
func openDB(cfg *config.Config) (*sql.DB, repository.Dialect, error) {
	driver, dialect := "mysql", repository.DialectMySQL
	if cfg.DBDriver == "postgres" {
		driver, dialect = "pgx", repository.DialectPostgres
	}

	db, err := sql.Open(driver, cfg.DBDSN)
	if err != nil {
		return nil, "", fmt.Errorf("open %s: %w", driver, err)
	}
	db.SetMaxOpenConns(cfg.DBMaxOpen)
	db.SetMaxIdleConns(cfg.DBMaxIdle)
	db.SetConnMaxLifetime(cfg.DBMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, dialect, nil
}

// buildLocker returns the per-message lock backend and a cleanup func.
func buildLocker(ctx context.Context, cfg *config.Config, db *sql.DB) (lock.Locker, func(), error) {
	switch cfg.LockBackend {
	case "redis":
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		return lock.NewRedisLocker(rdb), func() { _ = rdb.Close() }, nil
	case "mysql":
		return lock.NewMySQLLocker(db), func() {}, nil
	case "none":
		return lock.NewNoopLocker(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported LOCK_BACKEND: %s", cfg.LockBackend)
	}
}

func buildEmailProvider(ctx context.Context, cfg *config.Config, log zerolog.Logger) (provider.EmailProvider, error) {
	switch cfg.EmailProvider {
	case "smtp":
		tlsMode, err := provider.ParseTLSMode(cfg.SMTPTLS)
		if err != nil {
			return nil, err
		}
		return provider.NewSMTPProvider(provider.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUser,
			Password: cfg.SMTPPassword,
			TLS:      tlsMode,
			Timeout:  cfg.SendTimeout,
		}, cfg.FromEmail), nil
	case "ses":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
		if err != nil {
			return nil, err
		}
		return provider.NewSESProvider(awsCfg, cfg.FromEmail, cfg.SESConfigSet), nil
	case "noop":
		return provider.NewNoopProvider(log), nil
	default:
		return nil, fmt.Errorf("unsupported EMAIL_PROVIDER: %s", cfg.EmailProvider)
	}
}

func newTopology(cfg *config.Config) queue.Topology {
	return queue.Topology{
		Exchange:          cfg.AMQPExchange,
		WorkQueue:         cfg.WorkQueue,
		InitialDelayQueue: cfg.InitialDelayQueue,
		RetryDelayQueue:   cfg.RetryDelayQueue,
		InitialDelay:      cfg.InitialDelay,
		RetryDelay:        cfg.RetryDelay,
	}
}

// connectBroker dials RabbitMQ and declares the topology on a throwaway channel.
func connectBroker(cfg *config.Config) (*queue.Broker, error) {
	broker, err := queue.Dial(cfg.AMQPURL)
	if err != nil {
		return nil, err
	}

	ch, err := broker.Channel()
	if err != nil {
		_ = broker.Close()
		return nil, err
	}
	defer ch.Close()

	if err := newTopology(cfg).Declare(ch); err != nil {
		_ = broker.Close()
		return nil, err
	}
	return broker, nil
}

// newPublisher opens a dedicated publishing channel on broker.
func newPublisher(cfg *config.Config, broker *queue.Broker) (*queue.Publisher, error) {
	ch, err := broker.Channel()
	if err != nil {
		return nil, err
	}
	publisher, err := queue.NewPublisher(ch, cfg.PublisherConfirms)
	if err != nil {
		_ = ch.Close()
		return nil, err
	}
	return publisher, nil
}

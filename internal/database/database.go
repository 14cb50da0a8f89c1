package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"entitlement-api/internal/models"
	"entitlement-api/pkg/logging"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrStore marks every persistence failure surfaced by Store.
	ErrStore = errors.New("store error")
	// ErrProfileNotFound is returned when a flag update matches no profile row.
	ErrProfileNotFound = errors.New("profile not found")
)

// Store is the entitlement store. It owns the subscriptions table and mutates
// the subscription flags of the profiles table.
type Store struct {
	db *gorm.DB
}

// Options configures Open.
type Options struct {
	// DatabaseURL selects PostgreSQL. Empty falls back to SQLite at SQLitePath.
	DatabaseURL string
	SQLitePath  string
	LogLevel    logger.LogLevel
}

// Open connects to the database and migrates the tables.
func Open(opts Options) (*Store, error) {
	if opts.LogLevel == 0 {
		opts.LogLevel = logger.Warn
	}
	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(opts.LogLevel),
	}

	var (
		db  *gorm.DB
		err error
	)
	if opts.DatabaseURL == "" {
		logging.Infof("Database URL not set, using SQLite at %s", opts.SQLitePath)
		db, err = gorm.Open(sqlite.Open(opts.SQLitePath), gormConfig)
	} else {
		db, err = gorm.Open(postgres.Open(opts.DatabaseURL), gormConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if opts.DatabaseURL == "" {
		// SQLite allows a single writer
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.SetMaxOpenConns(1)
		}
	}

	if err := autoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	logging.Infof("Database connected successfully")
	return &Store{db: db}, nil
}

// autoMigrate performs database migration
func autoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Subscription{},
		&models.Profile{},
	)
}

// DB returns the underlying connection.
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrStore, err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// OpenRedis connects to Redis and checks the connection.
func OpenRedis(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("REDIS_URL is not set")
	}

	logging.Infof("Connecting to Redis: %s", maskRedisURL(redisURL))

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logging.Infof("Redis connected successfully")
	return client, nil
}

// maskRedisURL masks sensitive information in Redis URL for logging
func maskRedisURL(url string) string {
	if len(url) > 20 {
		return url[:10] + "***" + url[len(url)-10:]
	}
	return "***"
}

package database

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"membership-api/internal/config"
	"membership-api/pkg/logging"

	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	DB          *gorm.DB
	RedisClient *redis.Client
)

// InitDatabase initializes database connection
func InitDatabase(ctx context.Context) error {
	db, err := Open(config.AppConfig.DatabaseURL, config.AppConfig.SQLitePath, config.AppConfig.Mode)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	DB = db

	if err := Migrate(ctx, DB); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	if err := initRedis(ctx); err != nil {
		return fmt.Errorf("failed to initialize Redis: %w", err)
	}

	return nil
}

// Open connects to PostgreSQL, or to a local SQLite file when no database URL is set.
func Open(databaseURL, sqlitePath, mode string) (*gorm.DB, error) {
	gormCfg := &gorm.Config{
		Logger:         newGormLogger(os.Stdout, mode),
		NowFunc:        func() time.Time { return time.Now().UTC() },
		TranslateError: true,
	}

	var (
		db  *gorm.DB
		err error
	)
	if databaseURL == "" {
		// Fallback to SQLite for development
		logging.Infof("Database URL not set, using SQLite at %s", sqlitePath)
		db, err = gorm.Open(sqlite.Open(sqlitePath+"?_busy_timeout=5000&_foreign_keys=on"), gormCfg)
		if err == nil {
			// SQLite allows a single writer; one connection avoids SQLITE_BUSY under load.
			if sqlDB, dbErr := db.DB(); dbErr == nil {
				sqlDB.SetMaxOpenConns(1)
			}
		}
	} else {
		db, err = gorm.Open(postgres.Open(databaseURL), gormCfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logging.Infof("Database connected successfully (%s)", db.Dialector.Name())
	return db, nil
}

// newGormLogger logs SQL in debug mode and only slow queries and failures in
// release. A missing row is an expected answer here, not a failure.
func newGormLogger(w io.Writer, mode string) logger.Interface {
	level := logger.Info
	if mode == "release" {
		level = logger.Warn
	}
	return logger.New(log.New(w, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  level,
		IgnoreRecordNotFoundError: true,
		Colorful:                  mode != "release",
	})
}

// initRedis connects to Redis. Without REDIS_URL the service runs with in-process locks.
func initRedis(ctx context.Context) error {
	redisURL := config.AppConfig.RedisURL
	if redisURL == "" {
		logging.Warnf("REDIS_URL not set, reference locks and rate limits stay in-process")
		return nil
	}

	logging.Infof("Connecting to Redis: %s", maskRedisURL(redisURL))

	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	RedisClient = client
	logging.Infof("Redis connected successfully")
	return nil
}

// maskRedisURL masks sensitive information in Redis URL for logging
func maskRedisURL(url string) string {
	if len(url) > 20 {
		return url[:10] + "***" + url[len(url)-10:]
	}
	return "***"
}

// CloseDatabase closes database connections
func CloseDatabase() error {
	if DB != nil {
		if sqlDB, err := DB.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				logging.Errorf("Failed to close database: %v", err)
			}
		}
	}

	if RedisClient != nil {
		if err := RedisClient.Close(); err != nil {
			logging.Errorf("Failed to close Redis: %v", err)
		}
	}

	return nil
}

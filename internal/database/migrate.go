package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"sync"

	"membership-api/pkg/logging"

	"github.com/pressly/goose/v3"
	"gorm.io/gorm"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrationsFS embed.FS

var (
	ErrFailedToApplyMigrations = errors.New("failed to apply migrations")

	// goose keeps its dialect and filesystem in package state.
	gooseMu sync.Mutex
)

// Migrate brings the schema up to date for whichever driver db was opened with.
func Migrate(ctx context.Context, db *gorm.DB) error {
	dialect, dir := "postgres", "migrations/postgres"
	if db.Dialector.Name() == "sqlite" {
		dialect, dir = "sqlite3", "migrations/sqlite"
	}

	sqlDB, err := db.DB()
	if err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrationsFS)
	goose.SetLogger(gooseLogger{})
	if err := goose.SetDialect(dialect); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	if err := goose.UpContext(ctx, sqlDB, dir); err != nil {
		return errors.Join(ErrFailedToApplyMigrations, err)
	}
	return nil
}

// gooseLogger routes goose output through the service logger.
type gooseLogger struct{}

func (gooseLogger) Fatalf(format string, v ...any) {
	logging.Errorf("goose: %s", fmt.Sprintf(format, v...))
}

func (gooseLogger) Printf(format string, v ...any) {
	logging.Infof("goose: %s", fmt.Sprintf(format, v...))
}

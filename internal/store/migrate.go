package store

import (
	"context"
	"embed"
	"fmt"
	"sync"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/postgres/*.sql migrations/sqlite/*.sql
var migrations embed.FS

// goose keeps its base FS and dialect in package state.
var gooseMu sync.Mutex

func (s *Store) migrationDir() (dir, dialect string) {
	if s.pg {
		return "migrations/postgres", "postgres"
	}
	return "migrations/sqlite", "sqlite3"
}

func (s *Store) withGoose(fn func(dir string) error) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	dir, dialect := s.migrationDir()
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(dialect); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	return fn(dir)
}

// Migrate runs all pending database migrations.
func (s *Store) Migrate(ctx context.Context) error {
	return s.withGoose(func(dir string) error {
		if err := goose.UpContext(ctx, s.db, dir); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		return nil
	})
}

// MigrationVersion returns the current migration version.
func (s *Store) MigrationVersion(ctx context.Context) (int64, error) {
	var version int64
	err := s.withGoose(func(string) error {
		v, err := goose.GetDBVersionContext(ctx, s.db)
		version = v
		return err
	})
	return version, err
}

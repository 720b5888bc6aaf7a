package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/MishC/NotatApp/adapters/store"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Storage keeps credentials and their refresh session in one SQLite table.
// It implements both ports.CredentialStore and ports.SessionStore.
type Storage struct {
	db     *sql.DB
	hasher *store.BcryptHasher
	policy store.LockoutPolicy
	nowFn  func() time.Time
}

// New opens the database at dbPath and applies migrations.
// Use ":memory:" for an in-memory database.
func New(ctx context.Context, dbPath string, hasher *store.BcryptHasher, policy store.LockoutPolicy) (*Storage, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// single writer; keeps ":memory:" on one connection as well
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
		"PRAGMA busy_timeout = 5000;",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	s := &Storage{
		db:     db,
		hasher: hasher,
		policy: policy.WithDefaults(),
		nowFn:  time.Now,
	}

	if err := s.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// SetClock overrides the time source used for lockout decisions
func (s *Storage) SetClock(nowFn func() time.Time) {
	s.nowFn = nowFn
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) runMigrations(ctx context.Context) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, s.db, "migrations"); err != nil {
		return fmt.Errorf("goose up failed: %w", err)
	}
	return nil
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

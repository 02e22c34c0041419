package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrations embed.FS

const migrationsDir = "migrations"

// goose keeps its dialect, logger and base FS in package globals.
var gooseMu sync.Mutex

// Open opens the SQLite database at path. File databases use WAL journaling and a
// busy timeout so readers are not starved by the single writer; ":memory:" is
// pinned to one connection so every query sees the same database.
func Open(path string) (*sql.DB, error) {
	dsn := path
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", path)
	}
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		conn.SetMaxOpenConns(1)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	return conn, nil
}

// InitDB applies all pending migrations.
func InitDB(conn *sql.DB) error {
	return Migrate(context.Background(), conn, nil)
}

// Migrate applies the embedded migrations, logging goose output through log.
func Migrate(ctx context.Context, conn *sql.DB, log *zap.Logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()
	if err := configureGoose(log); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, conn, migrationsDir); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// Reset rolls every migration back and applies them again, leaving empty tables.
func Reset(ctx context.Context, conn *sql.DB, log *zap.Logger) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()
	if err := configureGoose(log); err != nil {
		return err
	}
	if err := goose.ResetContext(ctx, conn, migrationsDir); err != nil {
		return fmt.Errorf("reset migrations: %w", err)
	}
	if err := goose.UpContext(ctx, conn, migrationsDir); err != nil {
		return fmt.Errorf("reapply migrations: %w", err)
	}
	return nil
}

func configureGoose(log *zap.Logger) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if log == nil {
		goose.SetLogger(goose.NopLogger())
	} else {
		goose.SetLogger(&gooseLogger{log: log.Named("migrations").Sugar()})
	}
	return nil
}

// gooseLogger adapts zap to goose's Printf/Fatalf logger.
type gooseLogger struct {
	log *zap.SugaredLogger
}

func (l *gooseLogger) Printf(format string, v ...interface{}) {
	l.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l *gooseLogger) Fatalf(format string, v ...interface{}) {
	l.log.Fatal(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

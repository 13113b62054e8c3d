// Package store persists the labeled observations, the station catalog and
// the prediction history in SQL. SQLite is the default backend; PostgreSQL
// is used through the pgx stdlib driver.
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrations embed.FS

// Supported drivers, named as registered with database/sql.
const (
	DriverSQLite = "sqlite"
	DriverPgx    = "pgx"
)

// DB is a migrated connection pool plus the dialect it speaks.
type DB struct {
	conn   *sql.DB
	driver string
	logger *slog.Logger
}

// Open connects, applies pending migrations, and returns the pool.
func Open(ctx context.Context, driver, dsn string, logger *slog.Logger) (*DB, error) {
	if err := checkDriver(driver); err != nil {
		return nil, err
	}
	if err := Migrate(driver, dsn); err != nil {
		return nil, err
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// One writer at a time avoids SQLITE_BUSY under concurrent requests.
		conn.SetMaxOpenConns(1)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("ping database: %w", err)
	}

	logger.Info("database ready", "driver", driver)
	return &DB{conn: conn, driver: driver, logger: logger.With("component", "store")}, nil
}

// Close releases the pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// CheckReadiness pings the database.
func (db *DB) CheckReadiness(ctx context.Context) error {
	if err := db.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return nil
}

// Migrate applies every pending up migration for the driver's dialect.
func Migrate(driver, dsn string) error {
	m, err := NewMigrator(driver, dsn)
	if err != nil {
		return err
	}
	defer m.Close() //nolint:errcheck // closes the migrator's own handle

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// NewMigrator returns a migrator over the embedded migrations. It owns a
// dedicated connection which Close releases.
func NewMigrator(driver, dsn string) (*migrate.Migrate, error) {
	if err := checkDriver(driver); err != nil {
		return nil, err
	}
	dir := "migrations/sqlite"
	if driver == DriverPgx {
		dir = "migrations/postgres"
	}
	src, err := iofs.New(migrations, dir)
	if err != nil {
		return nil, fmt.Errorf("load migrations: %w", err)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	var target database.Driver
	switch driver {
	case DriverPgx:
		target, err = migratepgx.WithInstance(conn, &migratepgx.Config{})
	default:
		target, err = migratesqlite.WithInstance(conn, &migratesqlite.Config{})
	}
	if err != nil {
		conn.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, driver, target)
	if err != nil {
		target.Close() //nolint:errcheck // already failing
		return nil, fmt.Errorf("create migrator: %w", err)
	}
	return m, nil
}

func checkDriver(driver string) error {
	switch driver {
	case DriverSQLite, DriverPgx:
		return nil
	default:
		return fmt.Errorf("unsupported database driver %q", driver)
	}
}

// rebind rewrites ? placeholders as $1, $2... for PostgreSQL.
func (db *DB) rebind(query string) string {
	if db.driver != DriverPgx {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

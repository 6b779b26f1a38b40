// Package database owns the relational store behind the importer.
//
// The store runs on database/sql with two interchangeable drivers: the
// embedded pure-Go SQLite driver (the default — the importer is a
// single-writer workload against a local file) and PostgreSQL through the
// pgx stdlib adapter. Dialect differences are confined to DDL; all DML
// written once with ? placeholders and rewritten per dialect by Rebind.
//
// The write path is confined to a single connection regardless of driver,
// so batch transactions never contend with each other.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // postgres driver
	_ "modernc.org/sqlite"             // pure go sqlite driver
)

// Dialect identifies the SQL engine behind a DB handle.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// DB wraps the sql handle together with its dialect.
type DB struct {
	*sql.DB
	dialect Dialect
}

// Open opens the store for the given driver ("sqlite" or "postgres").
//
// For sqlite, dsn is a file path (":memory:" works for tests). Both
// drivers are capped to one open connection: the importer's write phase
// is single-threaded against the store and keeping the cap in the handle
// makes that invariant structural rather than conventional.
func Open(driver, dsn string) (*DB, error) {
	var (
		handle  *sql.DB
		dialect Dialect
		err     error
	)

	switch strings.ToLower(driver) {
	case "sqlite":
		handle, err = sql.Open("sqlite", dsn)
		dialect = DialectSQLite
	case "postgres":
		handle, err = sql.Open("pgx", dsn)
		dialect = DialectPostgres
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}

	handle.SetMaxOpenConns(1)

	db := &DB{DB: handle, dialect: dialect}

	if dialect == DialectSQLite {
		for _, pragma := range []string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA foreign_keys = ON",
			"PRAGMA synchronous = NORMAL",
		} {
			if _, err := handle.Exec(pragma); err != nil {
				handle.Close()
				return nil, fmt.Errorf("%s: %w", pragma, err)
			}
		}
	}

	return db, nil
}

// Dialect returns the engine dialect of this handle.
func (db *DB) Dialect() Dialect {
	return db.dialect
}

// Rebind converts ? placeholders to the dialect's native form.
// Queries throughout the importer are written with ?, which SQLite binds
// natively; for postgres they are rewritten to $1..$n.
func (db *DB) Rebind(query string) string {
	if db.dialect != DialectPostgres {
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

// SerialPK returns the column clause for an auto-assigned integer primary
// key in this dialect. Dictionary and fact tables all key on it.
func (db *DB) SerialPK() string {
	if db.dialect == DialectPostgres {
		return "BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// CreateSchema ensures the fact tables and the import log exist.
// Dictionary tables are created by the dict package through the same
// handle. Safe to call repeatedly.
func (db *DB) CreateSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS vehicles (
			id %s,
			year INTEGER NOT NULL,
			classification_id INTEGER,
			make_id INTEGER,
			model_id INTEGER,
			model_year_id INTEGER,
			color_id INTEGER,
			fuel_type_id INTEGER,
			cylinder_count_id INTEGER,
			axle_count_id INTEGER,
			net_mass_kg INTEGER,
			commercial_lease BOOLEAN NOT NULL DEFAULT FALSE,
			acquired_rights BOOLEAN NOT NULL DEFAULT FALSE,
			admin_region_id INTEGER,
			mrc_id INTEGER,
			municipality_id INTEGER,
			postal_prefix TEXT
		)`, db.SerialPK()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS licenses (
			id %s,
			year INTEGER NOT NULL,
			gender_id INTEGER,
			age_group_id INTEGER,
			license_type_id INTEGER,
			admin_region_id INTEGER,
			mrc_id INTEGER,
			municipality_id INTEGER,
			has_class_1 BOOLEAN NOT NULL DEFAULT FALSE,
			has_class_2 BOOLEAN NOT NULL DEFAULT FALSE,
			has_class_3 BOOLEAN NOT NULL DEFAULT FALSE,
			has_class_4a BOOLEAN NOT NULL DEFAULT FALSE,
			has_class_4b BOOLEAN NOT NULL DEFAULT FALSE,
			has_class_4c BOOLEAN NOT NULL DEFAULT FALSE,
			has_class_5 BOOLEAN NOT NULL DEFAULT FALSE,
			has_class_6a BOOLEAN NOT NULL DEFAULT FALSE,
			has_class_6b BOOLEAN NOT NULL DEFAULT FALSE,
			has_class_6c BOOLEAN NOT NULL DEFAULT FALSE,
			has_class_6d BOOLEAN NOT NULL DEFAULT FALSE,
			has_class_8 BOOLEAN NOT NULL DEFAULT FALSE,
			demerit_points INTEGER
		)`, db.SerialPK()),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS import_log (
			id %s,
			file_name TEXT NOT NULL,
			year INTEGER NOT NULL,
			record_type TEXT NOT NULL,
			record_count INTEGER NOT NULL,
			error_count INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL,
			imported_at TIMESTAMP NOT NULL
		)`, db.SerialPK()),
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// EnsureIndexes (re)creates the secondary indexes on the fact tables.
// Run after bulk imports; both engines treat IF NOT EXISTS as a no-op
// when the index already exists.
func (db *DB) EnsureIndexes(ctx context.Context) error {
	stmts := []string{
		`CREATE INDEX IF NOT EXISTS idx_vehicles_year ON vehicles(year)`,
		`CREATE INDEX IF NOT EXISTS idx_vehicles_make ON vehicles(make_id)`,
		`CREATE INDEX IF NOT EXISTS idx_vehicles_region ON vehicles(admin_region_id)`,
		`CREATE INDEX IF NOT EXISTS idx_licenses_year ON licenses(year)`,
		`CREATE INDEX IF NOT EXISTS idx_licenses_region ON licenses(admin_region_id)`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure indexes: %w", err)
		}
	}
	return nil
}

// CountYear returns how many fact rows the table holds for year.
func (db *DB) CountYear(ctx context.Context, table string, year int) (int64, error) {
	if err := validFactTable(table); err != nil {
		return 0, err
	}
	var n int64
	err := db.QueryRowContext(ctx,
		db.Rebind(fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE year = ?`, table)), year).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s year %d: %w", table, year, err)
	}
	return n, nil
}

// DeleteYear removes every fact row tagged with year from table.
// A year is a fully-replaceable unit: re-imports call this before
// inserting anything, never merge.
func (db *DB) DeleteYear(ctx context.Context, table string, year int) (int64, error) {
	if err := validFactTable(table); err != nil {
		return 0, err
	}
	res, err := db.ExecContext(ctx,
		db.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE year = ?`, table)), year)
	if err != nil {
		return 0, fmt.Errorf("delete %s year %d: %w", table, year, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// validFactTable guards the fmt.Sprintf table interpolation above.
func validFactTable(table string) error {
	switch table {
	case "vehicles", "licenses":
		return nil
	}
	return fmt.Errorf("unknown fact table %q", table)
}

// ImportLogEntry is one appended row of the import log.
type ImportLogEntry struct {
	ID          int64
	FileName    string
	Year        int
	RecordType  string
	RecordCount int
	ErrorCount  int
	Status      string
	ImportedAt  time.Time
}

// AppendImportLog records one completed (non-cancelled) import.
func (db *DB) AppendImportLog(ctx context.Context, e ImportLogEntry) error {
	_, err := db.ExecContext(ctx,
		db.Rebind(`INSERT INTO import_log (file_name, year, record_type, record_count, error_count, status, imported_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`),
		e.FileName, e.Year, e.RecordType, e.RecordCount, e.ErrorCount, e.Status, e.ImportedAt)
	if err != nil {
		return fmt.Errorf("append import log: %w", err)
	}
	return nil
}

// ImportLog returns the most recent import log entries, newest first.
func (db *DB) ImportLog(ctx context.Context, limit int) ([]ImportLogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx,
		db.Rebind(`SELECT id, file_name, year, record_type, record_count, error_count, status, imported_at
		 FROM import_log ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("query import log: %w", err)
	}
	defer rows.Close()

	var entries []ImportLogEntry
	for rows.Next() {
		var e ImportLogEntry
		if err := rows.Scan(&e.ID, &e.FileName, &e.Year, &e.RecordType,
			&e.RecordCount, &e.ErrorCount, &e.Status, &e.ImportedAt); err != nil {
			return nil, fmt.Errorf("scan import log: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Package store keeps sheets in SQLite: their serialized cells, usercode,
// timeout and edit version.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	ErrNotFound = errors.New("sheet not found")
	ErrExists   = errors.New("sheet already exists")
)

// EmptyContents is the serialized form of a sheet with no cells
const EmptyContents = `{"_console_text":[],"_usercode_error":null}`

// Sheet is one stored sheet. Version counts edits; publishing calculation
// results does not change it.
type Sheet struct {
	ID        int64
	Name      string
	Version   int64
	Contents  []byte
	Usercode  string
	Timeout   time.Duration
	UpdatedAt time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS sheets (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    version INTEGER NOT NULL DEFAULT 0,
    contents TEXT NOT NULL,
    usercode TEXT NOT NULL,
    timeout_seconds INTEGER NOT NULL,
    updated_at INTEGER NOT NULL
);
`

const sheetColumns = `id, name, version, contents, usercode, timeout_seconds, updated_at`

// Store is a SQLite-backed sheet store, safe for concurrent use
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Create adds an empty sheet
func (s *Store) Create(ctx context.Context, name, usercode string, timeout time.Duration) (Sheet, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO sheets (name, version, contents, usercode, timeout_seconds, updated_at) VALUES (?, 0, ?, ?, ?, ?)`,
		name, EmptyContents, usercode, int64(timeout/time.Second), now.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return Sheet{}, fmt.Errorf("create %q: %w", name, ErrExists)
		}
		return Sheet{}, fmt.Errorf("create %q: %w", name, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Sheet{}, fmt.Errorf("create %q: %w", name, err)
	}
	return s.Load(ctx, id)
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

// Load returns the sheet with the given id
func (s *Store) Load(ctx context.Context, id int64) (Sheet, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sheetColumns+` FROM sheets WHERE id = ?`, id)
	sheet, err := scanSheet(row)
	if err != nil {
		return Sheet{}, fmt.Errorf("load sheet %d: %w", id, err)
	}
	return sheet, nil
}

// LoadByName returns the sheet called name
func (s *Store) LoadByName(ctx context.Context, name string) (Sheet, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sheetColumns+` FROM sheets WHERE name = ?`, name)
	sheet, err := scanSheet(row)
	if err != nil {
		return Sheet{}, fmt.Errorf("load sheet %q: %w", name, err)
	}
	return sheet, nil
}

// List returns every sheet ordered by id, without contents
func (s *Store) List(ctx context.Context) ([]Sheet, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, version, '', usercode, timeout_seconds, updated_at FROM sheets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list sheets: %w", err)
	}
	defer rows.Close()

	var sheets []Sheet
	for rows.Next() {
		sheet, err := scanSheet(rows)
		if err != nil {
			return nil, fmt.Errorf("list sheets: %w", err)
		}
		sheets = append(sheets, sheet)
	}
	return sheets, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSheet(row scanner) (Sheet, error) {
	var (
		sheet    Sheet
		contents string
		timeout  int64
		updated  int64
	)
	err := row.Scan(&sheet.ID, &sheet.Name, &sheet.Version, &contents, &sheet.Usercode, &timeout, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return Sheet{}, ErrNotFound
	}
	if err != nil {
		return Sheet{}, err
	}
	sheet.Contents = []byte(contents)
	sheet.Timeout = time.Duration(timeout) * time.Second
	sheet.UpdatedAt = time.Unix(0, updated)
	return sheet, nil
}

// SaveContents stores edited cells and returns the new version
func (s *Store) SaveContents(ctx context.Context, id int64, contents []byte) (int64, error) {
	return s.edit(ctx, id, "contents", string(contents))
}

// SetUsercode stores edited usercode and returns the new version
func (s *Store) SetUsercode(ctx context.Context, id int64, usercode string) (int64, error) {
	return s.edit(ctx, id, "usercode", usercode)
}

// SetTimeout changes the calculation timeout and returns the new version
func (s *Store) SetTimeout(ctx context.Context, id int64, timeout time.Duration) (int64, error) {
	return s.edit(ctx, id, "timeout_seconds", int64(timeout/time.Second))
}

// edit sets one column and bumps the version
func (s *Store) edit(ctx context.Context, id int64, column string, value any) (int64, error) {
	var version int64
	err := s.db.QueryRowContext(ctx,
		`UPDATE sheets SET `+column+` = ?, version = version + 1, updated_at = ? WHERE id = ? RETURNING version`,
		value, s.now().UnixNano(), id).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("update %s of sheet %d: %w", column, id, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("update %s of sheet %d: %w", column, id, err)
	}
	return version, nil
}

// Publish replaces the contents of the sheet with a calculation result,
// provided the sheet is still at baseVersion. it reports whether the
// result was applied.
func (s *Store) Publish(ctx context.Context, id, baseVersion int64, contents []byte) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sheets SET contents = ?, updated_at = ? WHERE id = ? AND version = ?`,
		string(contents), s.now().UnixNano(), id, baseVersion)
	if err != nil {
		return false, fmt.Errorf("publish sheet %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("publish sheet %d: %w", id, err)
	}
	if n == 1 {
		return true, nil
	}
	if _, err := s.Load(ctx, id); err != nil {
		return false, fmt.Errorf("publish: %w", err)
	}
	return false, nil
}

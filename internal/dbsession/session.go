package dbsession

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/mattn/go-sqlite3"

	"github.com/backupmerge/backupmerge/internal/logging"
)

var log = logging.GetLogger("dbsession")

// Session wraps a single SQLite connection backed by a private temp
// file. The caller never sees the file path; bytes go in via Open and
// come back out via Export.
type Session struct {
	db      *sql.DB
	path    string
	tempDir string
}

// Open loads a database image from bytes into a fresh temp file and
// opens it. The caller owns the returned Session and must Close it.
func Open(data []byte) (*Session, error) {
	tempDir, err := os.MkdirTemp("", "backupmerge-db-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir for database: %w", err)
	}

	path := filepath.Join(tempDir, "userData.db")
	if err := os.WriteFile(path, data, 0600); err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to write database image: %w", err)
	}

	return openPath(path, tempDir)
}

// OpenEmpty creates a new, empty database session with no schema yet —
// used for the merge target, which starts empty and has the source-0
// schema copied into it verbatim (§3.4, §4.8 step 3).
func OpenEmpty() (*Session, error) {
	tempDir, err := os.MkdirTemp("", "backupmerge-db-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir for database: %w", err)
	}

	path := filepath.Join(tempDir, "userData.db")
	return openPath(path, tempDir)
}

func openPath(path, tempDir string) (*Session, error) {
	dsn := fmt.Sprintf("%s?_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite only supports one writer; the merge engine never shares a
	// session across goroutines anyway (§4.2).
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		os.RemoveAll(tempDir)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &Session{db: db, path: path, tempDir: tempDir}, nil
}

// Export flushes and returns the on-disk database image as bytes. The
// WAL checkpoint is best-effort: a failure is logged and the file is read
// anyway. A failed read of the file is retried up to twice with
// exponential backoff before surfacing as an error.
func (s *Session) Export() ([]byte, error) {
	var data []byte

	op := func() error {
		if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			log.Debug("wal checkpoint failed, continuing", "error", err)
		}
		b, err := os.ReadFile(s.path)
		if err != nil {
			return err
		}
		data = b
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, fmt.Errorf("failed to export database: %w", err)
	}
	return data, nil
}

// Close releases the connection and removes the backing temp file.
func (s *Session) Close() error {
	var closeErr error
	if s.db != nil {
		closeErr = s.db.Close()
	}
	if s.tempDir != "" {
		os.RemoveAll(s.tempDir)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close database: %w", closeErr)
	}
	return nil
}

// Tables returns the names of all user tables in the session, in the
// order sqlite_master reports them.
func (s *Session) Tables() ([]string, error) {
	rows, err := s.db.Query(`
		SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%'
		ORDER BY rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("failed to scan table name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Column describes one column of a table.
type Column struct {
	Name         string
	DeclaredType string
	Nullable     bool
	PrimaryKey   bool
}

// Columns returns the ordered column list for a table via PRAGMA
// table_info, the standard SQLite introspection mechanism.
func (s *Session) Columns(table string) ([]Column, error) {
	rows, err := s.db.Query(fmt.Sprintf("PRAGMA table_info(%q)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to introspect table %s: %w", table, err)
	}
	defer rows.Close()

	var cols []Column
	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull int
		var dflt sql.NullString
		var pk int
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		cols = append(cols, Column{Name: name, DeclaredType: ctype, Nullable: notNull == 0, PrimaryKey: pk != 0})
	}
	return cols, rows.Err()
}

// TableDDL returns the verbatim CREATE TABLE statement sqlite_master has
// recorded for a table, used to copy a source's schema into the target
// byte-for-byte (§4.2, §4.8 step 3).
func (s *Session) TableDDL(table string) (string, error) {
	var ddl sql.NullString
	err := s.db.QueryRow(`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&ddl)
	if err != nil {
		return "", fmt.Errorf("failed to read DDL for %s: %w", table, err)
	}
	return ddl.String, nil
}

// TableExists reports whether a table is present.
func (s *Session) TableExists(name string) (bool, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}
	return count > 0, nil
}

// CreateTable executes verbatim DDL copied from a source database
// (§4.2, §4.8 step 3).
func (s *Session) CreateTable(ddl string) error {
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}
	return nil
}

// Query executes a parameterized query.
func (s *Session) Query(query string, args ...any) (*sql.Rows, error) {
	return s.db.Query(query, args...)
}

// QueryRow executes a parameterized query expected to return one row.
func (s *Session) QueryRow(query string, args ...any) *sql.Row {
	return s.db.QueryRow(query, args...)
}

// Exec executes a parameterized statement.
func (s *Session) Exec(query string, args ...any) (sql.Result, error) {
	return s.db.Exec(query, args...)
}

// Begin starts a transaction on the underlying connection.
func (s *Session) Begin() (*sql.Tx, error) {
	return s.db.Begin()
}

// RowExists reports whether a row with the given primary key value
// exists, used by mergers to verify inserts by reading back (§4.5, §4.6).
func (s *Session) RowExists(table, pkColumn string, id int64) (bool, error) {
	var count int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %q WHERE %q = ?", table, pkColumn)
	if err := s.db.QueryRow(query, id).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to verify row %s=%d in %s: %w", pkColumn, id, table, err)
	}
	return count > 0, nil
}

// MaxID returns the maximum primary-key value currently in a table, or 0
// if the table is empty. Used to seed the next-free-id counters for
// composite/GUID-identity tables (§4.6).
func (s *Session) MaxID(table, pkColumn string) (int64, error) {
	var max sql.NullInt64
	query := fmt.Sprintf("SELECT MAX(%q) FROM %q", pkColumn, table)
	if err := s.db.QueryRow(query).Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to compute max id for %s: %w", table, err)
	}
	if !max.Valid {
		return 0, nil
	}
	return max.Int64, nil
}

// Row is one generically-scanned row: Columns preserves declaration order,
// Values holds the decoded value for each column name.
type Row struct {
	Columns []string
	Values  map[string]any
}

// Get looks up a column value by name.
func (r Row) Get(col string) any { return r.Values[col] }

// SelectAll reads every row of a table, ordered by its primary key when
// orderBy is non-empty (the mergers rely on stable primary-key order
// within a source for reproducible output, §5). Columns are returned
// generically so the mergers can operate on tables the schema model does
// not know by name (§3.3's "tables absent from this list").
func (s *Session) SelectAll(table, orderBy string) ([]Row, error) {
	query := fmt.Sprintf("SELECT * FROM %q", table)
	if orderBy != "" {
		query += fmt.Sprintf(" ORDER BY %q ASC", orderBy)
	}

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to select rows from %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}

	var out []Row
	for rows.Next() {
		dest := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range dest {
			ptrs[i] = &dest[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row of %s: %w", table, err)
		}

		values := make(map[string]any, len(cols))
		for i, c := range cols {
			values[c] = normalizeValue(dest[i])
		}
		out = append(out, Row{Columns: cols, Values: values})
	}
	return out, rows.Err()
}

// normalizeValue collapses driver-specific byte-slice representations of
// text down to plain strings so identity signatures and FK comparisons
// don't have to special-case []byte vs string.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// InsertRow builds and executes a parameterized INSERT for table from an
// ordered column list and a value map, substituting overrideCol/overrideVal
// in place of whatever the row map holds for that column (used to install
// a reassigned primary key without mutating the caller's map). When
// orIgnore is true the statement is `INSERT OR IGNORE`, tolerating a
// primary-key or unique-constraint collision as a no-op rather than an
// error — callers must always verify by read-back afterward (§4.6 step 4,
// §9: INSERT OR IGNORE's silence is never sufficient evidence on its own).
func (s *Session) InsertRow(table string, orIgnore bool, columns []string, values map[string]any, overrideCol string, overrideVal any) (sql.Result, error) {
	verb := "INSERT INTO"
	if orIgnore {
		verb = "INSERT OR IGNORE INTO"
	}

	quoted := make([]string, len(columns))
	placeholders := make([]string, len(columns))
	args := make([]any, len(columns))
	for i, c := range columns {
		quoted[i] = fmt.Sprintf("%q", c)
		placeholders[i] = "?"
		if c == overrideCol {
			args[i] = overrideVal
		} else {
			args[i] = values[c]
		}
	}

	query := fmt.Sprintf("%s %q (%s) VALUES (%s)", verb, table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return res, nil
}

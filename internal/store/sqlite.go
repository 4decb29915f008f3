package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface check.
var _ Cache = (*TableCache)(nil)

// TableCache implements Cache on a single SQLite database file shared by all
// tables. Every write runs in its own transaction and is durable when the
// call returns. It takes no locks of its own: concurrent writers to the same
// table race and the last committed transaction wins.
type TableCache struct {
	db   *sql.DB
	path string
}

// NewTableCache opens (or creates) the SQLite database at path.
func NewTableCache(path string) (*TableCache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &CacheWriteError{Err: fmt.Errorf("creating cache dir: %w", err)}
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, &CacheWriteError{Err: err}
	}
	// One connection keeps writers inside this process from tripping over
	// SQLite's database-level lock.
	db.SetMaxOpenConns(1)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, &CacheWriteError{Err: fmt.Errorf("opening %s: %w", path, err)}
	}
	return &TableCache{db: db, path: path}, nil
}

// Path returns the database file location.
func (c *TableCache) Path() string { return c.path }

// Close closes the underlying database connection.
func (c *TableCache) Close() error {
	return c.db.Close()
}

// Read returns all rows of table ordered by primary key. A table that was
// never written yields no rows and no error.
func (c *TableCache) Read(ctx context.Context, table string) ([]Row, error) {
	if !validIdent(table) {
		return nil, &CacheSchemaError{Table: table, Reason: "invalid table name"}
	}
	pk, ok, err := c.primaryKey(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("reading table %s: %w", table, err)
	}
	if !ok {
		return []Row{}, nil
	}
	rows, err := c.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s ORDER BY %s", quote(table), quote(pk)))
	if err != nil {
		return nil, fmt.Errorf("reading table %s: %w", table, err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// ReadKey returns the row of table whose primary key equals key.
func (c *TableCache) ReadKey(ctx context.Context, table string, key any) (Row, bool, error) {
	if !validIdent(table) {
		return nil, false, &CacheSchemaError{Table: table, Reason: "invalid table name"}
	}
	pk, ok, err := c.primaryKey(ctx, table)
	if err != nil || !ok {
		return nil, false, err
	}
	rows, err := c.db.QueryContext(ctx,
		fmt.Sprintf("SELECT * FROM %s WHERE %s = ? LIMIT 1", quote(table), quote(pk)), key)
	if err != nil {
		return nil, false, fmt.Errorf("reading table %s: %w", table, err)
	}
	defer rows.Close()
	out, err := scanRows(rows)
	if err != nil || len(out) == 0 {
		return nil, false, err
	}
	return out[0], true, nil
}

// Write creates the table from its declaration if absent, then inserts rows.
// A row whose primary key already exists replaces the stored row entirely;
// columns the new row leaves out become NULL.
func (c *TableCache) Write(ctx context.Context, t Table, rows []Row) error {
	return c.write(ctx, t, rows, false)
}

// Replace is Write preceded by deleting every existing row, in the same
// transaction.
func (c *TableCache) Replace(ctx context.Context, t Table, rows []Row) error {
	return c.write(ctx, t, rows, true)
}

// Clear deletes all rows of table. Clearing a missing table is a no-op.
func (c *TableCache) Clear(ctx context.Context, table string) error {
	if !validIdent(table) {
		return &CacheSchemaError{Table: table, Reason: "invalid table name"}
	}
	_, ok, err := c.primaryKey(ctx, table)
	if err != nil || !ok {
		return err
	}
	if _, err := c.db.ExecContext(ctx, "DELETE FROM "+quote(table)); err != nil {
		return &CacheWriteError{Table: table, Err: err}
	}
	return nil
}

// Tables lists the tables present in the cache.
func (c *TableCache) Tables(ctx context.Context) ([]string, error) {
	rows, err := c.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (c *TableCache) write(ctx context.Context, t Table, rows []Row, replace bool) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if err := t.checkRows(rows); err != nil {
		return err
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return &CacheWriteError{Table: t.Name, Err: err}
	}
	if err := writeTx(ctx, tx, t, rows, replace); err != nil {
		tx.Rollback()
		return &CacheWriteError{Table: t.Name, Err: err}
	}
	if err := tx.Commit(); err != nil {
		return &CacheWriteError{Table: t.Name, Err: err}
	}
	return nil
}

func writeTx(ctx context.Context, tx *sql.Tx, t Table, rows []Row, replace bool) error {
	if _, err := tx.ExecContext(ctx, t.createSQL()); err != nil {
		return fmt.Errorf("creating table: %w", err)
	}
	if err := addMissingColumns(ctx, tx, t); err != nil {
		return err
	}
	if replace {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+quote(t.Name)); err != nil {
			return fmt.Errorf("clearing table: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil
	}

	stmt, err := tx.PrepareContext(ctx, t.insertSQL())
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	args := make([]any, len(t.Columns))
	for _, r := range rows {
		for i, col := range t.Columns {
			args[i] = coerce(r[col.Name], col.Type)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("inserting row %v: %w", r[t.PrimaryKey], err)
		}
	}
	return nil
}

// addMissingColumns extends a table created by an older declaration with
// the columns added since.
func addMissingColumns(ctx context.Context, tx *sql.Tx, t Table) error {
	rows, err := tx.QueryContext(ctx, "SELECT name FROM pragma_table_info(?)", t.Name)
	if err != nil {
		return fmt.Errorf("inspecting table: %w", err)
	}
	existing := make(map[string]struct{})
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			rows.Close()
			return err
		}
		existing[n] = struct{}{}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, col := range t.Columns {
		if _, ok := existing[col.Name]; ok {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", quote(t.Name), quote(col.Name), col.Type)
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("adding column %s: %w", col.Name, err)
		}
	}
	return nil
}

// primaryKey returns the primary-key column of table and whether the table
// exists.
func (c *TableCache) primaryKey(ctx context.Context, table string) (string, bool, error) {
	rows, err := c.db.QueryContext(ctx, "SELECT name, pk FROM pragma_table_info(?)", table)
	if err != nil {
		return "", false, err
	}
	defer rows.Close()

	found := false
	pk := "rowid"
	for rows.Next() {
		var name string
		var pos int
		if err := rows.Scan(&name, &pos); err != nil {
			return "", false, err
		}
		found = true
		if pos == 1 {
			pk = name
		}
	}
	return pk, found, rows.Err()
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	out := []Row{}
	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(Row, len(cols))
		for i, name := range cols {
			v := vals[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			r[name] = v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

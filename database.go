// Package novarel is the top-level facade for the novarel engine. A DB serializes
// every statement and direct table access behind one lock, so it can be shared
// by concurrent sessions.
package novarel

import (
	"sync"

	"github.com/tuannm99/novarel/internal/engine"
	"github.com/tuannm99/novarel/internal/export"
	"github.com/tuannm99/novarel/internal/record"
	"github.com/tuannm99/novarel/internal/sql/executor"
	"github.com/tuannm99/novarel/internal/sql/parser"
)

type (
	Database = engine.Database
	Result   = executor.Result
)

var ErrDatabaseClosed = engine.ErrDatabaseClosed

type DB struct {
	mu     sync.RWMutex
	db     *engine.Database
	ex     *executor.Executor
	closed bool
}

// Open loads every table stored under dataDir.
func Open(dataDir string) (*DB, error) {
	db, err := engine.Open(dataDir)
	if err != nil {
		return nil, err
	}
	return &DB{db: db, ex: executor.NewExecutor(db)}, nil
}

func (d *DB) DataDir() string { return d.db.DataDir }

// Exec parses and executes one statement. Only parse errors and a closed DB are
// returned as errors; execution failures are reported in the Result.
func (d *DB) Exec(sql string) (*Result, error) {
	stmt, err := parser.Parse(sql)
	if err != nil {
		return nil, err
	}
	return d.ExecStatement(stmt)
}

func (d *DB) ExecStatement(stmt parser.Statement) (*Result, error) {
	if readOnly(stmt) {
		d.mu.RLock()
		defer d.mu.RUnlock()
	} else {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	if d.closed {
		return nil, ErrDatabaseClosed
	}
	return d.ex.Execute(stmt), nil
}

func readOnly(stmt parser.Statement) bool {
	switch stmt.(type) {
	case *parser.SelectStmt, *parser.ExplainStmt:
		return true
	default:
		return false
	}
}

// View runs fn with shared access to the database. fn must not mutate it.
func (d *DB) View(fn func(db *Database) error) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return ErrDatabaseClosed
	}
	return fn(d.db)
}

// Update runs fn with exclusive access to the database.
func (d *DB) Update(fn func(db *Database) error) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrDatabaseClosed
	}
	return fn(d.db)
}

func (d *DB) ListTables() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db.ListTables()
}

// Schema returns a copy of the named table's schema.
func (d *DB) Schema(table string) (record.Schema, error) {
	var schema record.Schema
	err := d.View(func(db *Database) error {
		tbl, err := db.Table(table)
		if err != nil {
			return err
		}
		schema = tbl.Schema
		schema.Columns = append([]record.Column(nil), tbl.Schema.Columns...)
		return nil
	})
	return schema, err
}

// ExportTable writes one table into dir and returns the file path.
func (d *DB) ExportTable(table, dir string, opts export.DumpOptions) (string, error) {
	var path string
	err := d.View(func(db *Database) error {
		tbl, err := db.Table(table)
		if err != nil {
			return err
		}
		path, err = export.DumpTable(tbl, dir, opts)
		return err
	})
	return path, err
}

// Dump exports every table into dir.
func (d *DB) Dump(dir string, opts export.DumpOptions) ([]string, error) {
	var paths []string
	err := d.View(func(db *Database) error {
		var err error
		paths, err = export.DumpDatabase(db, dir, opts)
		return err
	})
	return paths, err
}

// Close flushes every table. Further calls fail with ErrDatabaseClosed.
func (d *DB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}

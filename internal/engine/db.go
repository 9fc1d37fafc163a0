package engine

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tuannm99/novarel/internal/heap"
	"github.com/tuannm99/novarel/internal/record"
)

var (
	ErrTableExists    = errors.New("table already exists")
	ErrTableNotFound  = errors.New("table not found")
	ErrDatabaseClosed = errors.New("novarel: database is closed")
)

const docExt = ".json"

// DatabaseOperation is the surface collaborators use outside the statement pipeline.
type DatabaseOperation interface {
	CreateTable(schema record.Schema) (*heap.Table, error)
	GetTable(name string) (*heap.Table, bool)
	ListTables() []string
	DropTable(name string) error
	SaveAll() error
	Close() error
}

var _ DatabaseOperation = (*Database)(nil)

// Database is a set of tables bound to one storage directory. Every table is
// persisted as <DataDir>/<table>.json.
//
// Database is not safe for concurrent use.
type Database struct {
	DataDir string

	tables map[string]*heap.Table
	closed bool
}

// Open creates dataDir if needed and loads every table document found in it.
// Documents that fail to load are logged and skipped.
func Open(dataDir string) (*Database, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("engine: create data dir: %w", err)
	}

	db := &Database{
		DataDir: dataDir,
		tables:  make(map[string]*heap.Table),
	}
	if err := db.loadTables(); err != nil {
		return nil, err
	}
	return db, nil
}

func (db *Database) loadTables() error {
	matches, err := filepath.Glob(filepath.Join(db.DataDir, "*"+docExt))
	if err != nil {
		return err
	}
	sort.Strings(matches)

	for _, path := range matches {
		name := strings.TrimSuffix(filepath.Base(path), docExt)
		tbl, err := db.readTable(path)
		if err != nil {
			slog.Warn("engine: could not load table", "table", name, "path", path, "err", err)
			continue
		}
		if tbl.Name != name {
			slog.Warn("engine: table document name mismatch, using file name",
				"file", name, "schema", tbl.Name)
			tbl.Name = name
			tbl.Schema.TableName = name
		}
		db.tables[name] = tbl
		slog.Debug("engine: table loaded", "table", name, "rows", tbl.Len())
	}
	return nil
}

func (db *Database) tablePath(name string) string {
	return filepath.Join(db.DataDir, name+docExt)
}

func (db *Database) readTable(path string) (*heap.Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return heap.DecodeBytes(data)
}

// writeTable overwrites the table document. The new content goes to a temp file in the
// same directory first and is renamed over the old document.
func (db *Database) writeTable(tbl *heap.Table) error {
	var buf bytes.Buffer
	if err := tbl.Encode(&buf); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(db.DataDir, "."+tbl.Name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("engine: save %s: %w", tbl.Name, err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("engine: save %s: %w", tbl.Name, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("engine: save %s: %w", tbl.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("engine: save %s: %w", tbl.Name, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("engine: save %s: %w", tbl.Name, err)
	}
	if err := os.Rename(tmpName, db.tablePath(tbl.Name)); err != nil {
		return fmt.Errorf("engine: save %s: %w", tbl.Name, err)
	}
	return nil
}

func (db *Database) CreateTable(schema record.Schema) (*heap.Table, error) {
	if db.closed {
		return nil, ErrDatabaseClosed
	}
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if _, exists := db.tables[schema.TableName]; exists {
		return nil, fmt.Errorf("%w: %s", ErrTableExists, schema.TableName)
	}

	tbl := heap.NewTable(schema)
	if err := db.writeTable(tbl); err != nil {
		return nil, err
	}
	db.tables[schema.TableName] = tbl
	slog.Info("engine: table created", "table", schema.TableName, "columns", schema.NumCols())
	return tbl, nil
}

func (db *Database) GetTable(name string) (*heap.Table, bool) {
	tbl, ok := db.tables[name]
	return tbl, ok
}

// Table is GetTable returning ErrTableNotFound instead of a bool.
func (db *Database) Table(name string) (*heap.Table, error) {
	tbl, ok := db.tables[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return tbl, nil
}

// ListTables returns table names in sorted order.
func (db *Database) ListTables() []string {
	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DropTable forgets the table and deletes its document.
func (db *Database) DropTable(name string) error {
	if db.closed {
		return ErrDatabaseClosed
	}
	if _, ok := db.tables[name]; !ok {
		return fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	delete(db.tables, name)

	if err := os.Remove(db.tablePath(name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("engine: drop %s: %w", name, err)
	}
	slog.Info("engine: table dropped", "table", name)
	return nil
}

// SaveTable flushes a single table document.
func (db *Database) SaveTable(name string) error {
	if db.closed {
		return ErrDatabaseClosed
	}
	tbl, err := db.Table(name)
	if err != nil {
		return err
	}
	return db.writeTable(tbl)
}

// SaveAll flushes every table, overwriting prior content.
func (db *Database) SaveAll() error {
	if db.closed {
		return ErrDatabaseClosed
	}
	var errs []error
	for _, name := range db.ListTables() {
		if err := db.writeTable(db.tables[name]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close flushes all tables. The handle is unusable afterwards.
func (db *Database) Close() error {
	if db.closed {
		return nil
	}
	err := db.SaveAll()
	db.closed = true
	return err
}

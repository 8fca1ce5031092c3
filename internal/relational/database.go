package relational

import (
	"fmt"
	"os"
)

// Database is a named collection of tables over one data directory,
// each table backed by its own store.Store subdirectory. Grounded on
// _examples/original_source/relational/database.py; supplemented
// beyond spec.md, which does not mention a multi-table container at
// all, because the original has one and it is the natural home for
// wiring several Tables onto independent store.Store instances. No
// cross-table operations (joins, foreign keys) are added here.
type Database struct {
	dir    string
	tables map[string]*Table
}

// Open returns a Database rooted at dir, creating the directory if it
// does not exist. Existing tables under dir are not reopened
// automatically; call CreateTable to reattach one (its data survives
// on disk and will be replayed by store.Open).
func Open(dir string) (*Database, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("relational: create database dir: %w", err)
	}
	return &Database{dir: dir, tables: make(map[string]*Table)}, nil
}

// CreateTable opens (creating on first use) the table named name with
// the given columns.
func (d *Database) CreateTable(name string, columns []Column) (*Table, error) {
	if _, exists := d.tables[name]; exists {
		return nil, fmt.Errorf("relational: table %s already exists", name)
	}
	t, err := openTable(name, columns, tablePath(d.dir, name))
	if err != nil {
		return nil, err
	}
	d.tables[name] = t
	return t, nil
}

// Table returns the named table, or false if it has not been created
// (in this Database instance's lifetime) yet.
func (d *Database) Table(name string) (*Table, bool) {
	t, ok := d.tables[name]
	return t, ok
}

// DropTable closes and permanently deletes a table's data.
func (d *Database) DropTable(name string) error {
	t, ok := d.tables[name]
	if !ok {
		return fmt.Errorf("relational: table %s does not exist", name)
	}
	if err := t.Close(); err != nil {
		return fmt.Errorf("relational: close table %s before drop: %w", name, err)
	}
	delete(d.tables, name)
	if err := os.RemoveAll(tablePath(d.dir, name)); err != nil {
		return fmt.Errorf("relational: remove table %s data: %w", name, err)
	}
	return nil
}

// ListTables returns the names of every table currently open in this
// Database instance.
func (d *Database) ListTables() []string {
	names := make([]string, 0, len(d.tables))
	for name := range d.tables {
		names = append(names, name)
	}
	return names
}

// Close closes every open table.
func (d *Database) Close() error {
	var firstErr error
	for _, t := range d.tables {
		if err := t.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

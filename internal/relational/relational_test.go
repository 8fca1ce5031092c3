package relational_test

import (
	"errors"
	"testing"

	"github.com/duskdb/duskdb/internal/relational"
)

func usersColumns() []relational.Column {
	return []relational.Column{
		{Name: "id", Type: relational.TypeInt64, PrimaryKey: true, Nullable: false},
		{Name: "name", Type: relational.TypeString, Nullable: false},
		{Name: "score", Type: relational.TypeFloat64, Nullable: true},
		{Name: "active", Type: relational.TypeBool, Nullable: true},
	}
}

func openDB(t *testing.T) *relational.Database {
	t.Helper()
	db, err := relational.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestInsertGet(t *testing.T) {
	db := openDB(t)
	tbl, err := db.CreateTable("users", usersColumns())
	if err != nil {
		t.Fatalf("create table: %v", err)
	}

	row := relational.Row{"id": int64(1), "name": "ada", "score": 9.5, "active": true}
	if err := tbl.Insert(row); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, found, err := tbl.Get(int64(1))
	if err != nil || !found {
		t.Fatalf("get: found=%v err=%v", found, err)
	}
	if got["name"] != "ada" || got["score"].(float64) != 9.5 || got["active"] != true {
		t.Fatalf("unexpected row: %+v", got)
	}
}

func TestInsertRejectsUnknownColumn(t *testing.T) {
	db := openDB(t)
	tbl, _ := db.CreateTable("users", usersColumns())

	err := tbl.Insert(relational.Row{"id": int64(1), "nope": "x"})
	var cerr *relational.ConstraintError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConstraintError, got %v", err)
	}
}

func TestInsertRejectsNullNonNullable(t *testing.T) {
	db := openDB(t)
	tbl, _ := db.CreateTable("users", usersColumns())

	err := tbl.Insert(relational.Row{"id": int64(1), "name": nil})
	var cerr *relational.ConstraintError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConstraintError, got %v", err)
	}
}

func TestInsertRejectsDuplicatePrimaryKey(t *testing.T) {
	db := openDB(t)
	tbl, _ := db.CreateTable("users", usersColumns())

	if err := tbl.Insert(relational.Row{"id": int64(1), "name": "a"}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := tbl.Insert(relational.Row{"id": int64(1), "name": "b"})
	var cerr *relational.ConstraintError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConstraintError for duplicate key, got %v", err)
	}
}

func TestUpdateMergesFields(t *testing.T) {
	db := openDB(t)
	tbl, _ := db.CreateTable("users", usersColumns())
	tbl.Insert(relational.Row{"id": int64(1), "name": "ada", "score": 1.0})

	if err := tbl.Update(int64(1), relational.Row{"score": 2.0}); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, _, _ := tbl.Get(int64(1))
	if got["name"] != "ada" {
		t.Fatalf("expected untouched field preserved, got %+v", got)
	}
	if got["score"].(float64) != 2.0 {
		t.Fatalf("expected score updated, got %+v", got)
	}
}

func TestUpdateRejectsMissingKey(t *testing.T) {
	db := openDB(t)
	tbl, _ := db.CreateTable("users", usersColumns())
	err := tbl.Update(int64(99), relational.Row{"name": "x"})
	var cerr *relational.ConstraintError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ConstraintError, got %v", err)
	}
}

func TestDeleteRemovesFromIndexAndScan(t *testing.T) {
	db := openDB(t)
	tbl, _ := db.CreateTable("users", usersColumns())
	tbl.Insert(relational.Row{"id": int64(1), "name": "a"})
	tbl.Insert(relational.Row{"id": int64(2), "name": "b"})

	if err := tbl.Delete(int64(1)); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, found, _ := tbl.Get(int64(1)); found {
		t.Fatalf("expected key 1 gone")
	}
	rows, err := tbl.Scan(nil, nil)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row after delete, got %d", len(rows))
	}
}

func TestScanFullVsRange(t *testing.T) {
	db := openDB(t)
	tbl, _ := db.CreateTable("users", usersColumns())
	for i := int64(0); i < 10; i++ {
		tbl.Insert(relational.Row{"id": i, "name": "u"})
	}

	all, err := tbl.Scan(nil, nil)
	if err != nil || len(all) != 10 {
		t.Fatalf("full scan: got %d rows, err=%v", len(all), err)
	}

	ranged, err := tbl.Scan(int64(2), int64(5))
	if err != nil {
		t.Fatalf("range scan: %v", err)
	}
	if len(ranged) != 4 {
		t.Fatalf("expected 4 rows in [2,5], got %d", len(ranged))
	}
}

func TestDatabaseCreateDropTable(t *testing.T) {
	db := openDB(t)
	if _, err := db.CreateTable("users", usersColumns()); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := db.CreateTable("users", usersColumns()); err == nil {
		t.Fatalf("expected error creating duplicate table")
	}
	if err := db.DropTable("users"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	if _, found := db.Table("users"); found {
		t.Fatalf("expected table gone after drop")
	}
}

func TestIndexSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	db, err := relational.Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	tbl, err := db.CreateTable("users", usersColumns())
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	tbl.Insert(relational.Row{"id": int64(1), "name": "ada"})
	if err := db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := relational.Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	tbl2, err := reopened.CreateTable("users", usersColumns())
	if err != nil {
		t.Fatalf("recreate table: %v", err)
	}
	got, found, err := tbl2.Get(int64(1))
	if err != nil || !found {
		t.Fatalf("expected row to survive reopen: found=%v err=%v", found, err)
	}
	if got["name"] != "ada" {
		t.Fatalf("unexpected row after reopen: %+v", got)
	}
}

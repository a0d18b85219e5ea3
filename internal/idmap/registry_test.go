package idmap

import "testing"

func TestRecordAndLookup(t *testing.T) {
	r := NewRegistry()

	if _, ok := r.Lookup("Tag", 7); ok {
		t.Fatal("expected miss on empty registry")
	}

	r.Record("Tag", 7, 1)
	got, ok := r.Lookup("Tag", 7)
	if !ok || got != 1 {
		t.Fatalf("expected (1, true), got (%d, %v)", got, ok)
	}

	if _, ok := r.Lookup("Tag", 99); ok {
		t.Fatal("expected miss for unrecorded id")
	}
	if _, ok := r.Lookup("Mark", 7); ok {
		t.Fatal("expected miss across tables for same id")
	}
}

func TestClear(t *testing.T) {
	r := NewRegistry()
	r.Record("Location", 1076, 1077)
	r.Clear()

	if _, ok := r.Lookup("Location", 1076); ok {
		t.Fatal("expected registry to be empty after Clear")
	}
	if r.Size("Location") != 0 {
		t.Errorf("expected size 0 after clear, got %d", r.Size("Location"))
	}
}

func TestSizeAndTables(t *testing.T) {
	r := NewRegistry()
	r.Record("Location", 500, 501)
	r.Record("Location", 600, 602)
	r.Record("Mark", 42000, 16311)

	if r.Size("Location") != 2 {
		t.Errorf("expected Location size 2, got %d", r.Size("Location"))
	}
	if r.Size("Tag") != 0 {
		t.Errorf("expected Tag size 0, got %d", r.Size("Tag"))
	}

	tables := r.Tables()
	if len(tables) != 2 {
		t.Errorf("expected 2 tables with mappings, got %d: %v", len(tables), tables)
	}
}

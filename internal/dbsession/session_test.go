package dbsession

import "testing"

func TestOpenEmptyAndCreateTable(t *testing.T) {
	s, err := OpenEmpty()
	if err != nil {
		t.Fatalf("OpenEmpty failed: %v", err)
	}
	defer s.Close()

	if err := s.CreateTable(`CREATE TABLE Tag (TagId INTEGER PRIMARY KEY, Type INTEGER, Name TEXT)`); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}

	exists, err := s.TableExists("Tag")
	if err != nil {
		t.Fatalf("TableExists failed: %v", err)
	}
	if !exists {
		t.Error("expected Tag table to exist")
	}

	tables, err := s.Tables()
	if err != nil {
		t.Fatalf("Tables failed: %v", err)
	}
	if len(tables) != 1 || tables[0] != "Tag" {
		t.Errorf("expected [Tag], got %v", tables)
	}
}

func TestExecQueryAndRowExists(t *testing.T) {
	s, err := OpenEmpty()
	if err != nil {
		t.Fatalf("OpenEmpty failed: %v", err)
	}
	defer s.Close()

	if err := s.CreateTable(`CREATE TABLE Tag (TagId INTEGER PRIMARY KEY, Type INTEGER, Name TEXT)`); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}

	if _, err := s.Exec(`INSERT INTO Tag (TagId, Type, Name) VALUES (?, ?, ?)`, 1, 0, "Favourites"); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}

	exists, err := s.RowExists("Tag", "TagId", 1)
	if err != nil {
		t.Fatalf("RowExists failed: %v", err)
	}
	if !exists {
		t.Error("expected row to exist after insert")
	}

	missing, err := s.RowExists("Tag", "TagId", 2)
	if err != nil {
		t.Fatalf("RowExists failed: %v", err)
	}
	if missing {
		t.Error("expected row 2 to not exist")
	}

	max, err := s.MaxID("Tag", "TagId")
	if err != nil {
		t.Fatalf("MaxID failed: %v", err)
	}
	if max != 1 {
		t.Errorf("expected max id 1, got %d", max)
	}
}

func TestExportAndReopen(t *testing.T) {
	s, err := OpenEmpty()
	if err != nil {
		t.Fatalf("OpenEmpty failed: %v", err)
	}
	if err := s.CreateTable(`CREATE TABLE Tag (TagId INTEGER PRIMARY KEY, Type INTEGER, Name TEXT)`); err != nil {
		t.Fatalf("CreateTable failed: %v", err)
	}
	if _, err := s.Exec(`INSERT INTO Tag (TagId, Type, Name) VALUES (1, 0, 'Favourites')`); err != nil {
		t.Fatalf("Exec failed: %v", err)
	}

	data, err := s.Export()
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	s.Close()

	reopened, err := Open(data)
	if err != nil {
		t.Fatalf("Open(exported bytes) failed: %v", err)
	}
	defer reopened.Close()

	exists, err := reopened.RowExists("Tag", "TagId", 1)
	if err != nil {
		t.Fatalf("RowExists failed: %v", err)
	}
	if !exists {
		t.Error("expected exported+reopened database to contain the inserted row")
	}
}

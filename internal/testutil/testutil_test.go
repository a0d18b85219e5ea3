package testutil

import (
	"testing"

	"github.com/backupmerge/backupmerge/internal/archive"
	"github.com/backupmerge/backupmerge/internal/dbsession"
)

func TestArchiveFixtureBuildsOpenableArchive(t *testing.T) {
	fx := NewArchiveFixture(t, "Test Device")
	fx.InsertLocation(1, 19, 1, "nwt")
	fx.InsertMark(1, "guid-1", 1)

	data := fx.Build()
	if len(data) == 0 {
		t.Fatal("expected non-empty archive bytes")
	}

	r, err := archive.Open(data)
	if err != nil {
		t.Fatalf("archive.Open: %v", err)
	}

	m, err := archive.ParseManifest(r.Manifest())
	if err != nil {
		t.Fatalf("ParseManifest: %v", err)
	}
	if m.UserDataBackup.DatabaseName != "userData.db" {
		t.Errorf("expected databaseName userData.db, got %s", m.UserDataBackup.DatabaseName)
	}

	s, err := dbsession.Open(r.Database())
	if err != nil {
		t.Fatalf("dbsession.Open: %v", err)
	}
	defer s.Close()

	rows, err := s.SelectAll("Location", "LocationId")
	if err != nil {
		t.Fatalf("SelectAll: %v", err)
	}
	if len(rows) != 1 {
		t.Errorf("expected 1 Location row, got %d", len(rows))
	}
}

func TestArchiveFixtureSessionExposesRawAccess(t *testing.T) {
	fx := NewArchiveFixture(t, "Another Device")
	if err := fx.Session().CreateTable(`CREATE TABLE Tag (TagId INTEGER PRIMARY KEY, Name TEXT)`); err != nil {
		t.Fatalf("CreateTable Tag: %v", err)
	}
	if _, err := fx.Session().Exec(`INSERT INTO Tag (TagId, Name) VALUES (1, 'Favorites')`); err != nil {
		t.Fatalf("insert tag: %v", err)
	}

	exists, err := fx.Session().RowExists("Tag", "TagId", 1)
	if err != nil {
		t.Fatalf("RowExists: %v", err)
	}
	if !exists {
		t.Error("expected Tag row 1 to exist")
	}
}

// Package testutil provides shared fixtures for backupmerge's test
// suite: an ArchiveFixture builder that produces real .jwlibrary-shaped
// containers (valid zip + exported SQLite database + manifest) so
// engine and API tests never need to check in binary fixtures.
package testutil

import (
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/backupmerge/backupmerge/internal/archive"
	"github.com/backupmerge/backupmerge/internal/dbsession"
)

// locationDDL and markDDL are a minimal slice of the real schema — enough
// for fixtures that need a couple of related tables without pulling in
// the full catalogue from internal/schema.
const locationDDL = `CREATE TABLE Location (
	LocationId INTEGER PRIMARY KEY,
	BookNumber INTEGER,
	ChapterNumber INTEGER,
	DocumentId INTEGER,
	Track INTEGER,
	IssueTagNumber INTEGER,
	KeySymbol TEXT,
	MepsLanguage INTEGER,
	Type INTEGER,
	Title TEXT
)`

const markDDL = `CREATE TABLE Mark (
	UserMarkId INTEGER PRIMARY KEY,
	UserMarkGuid TEXT,
	LocationId INTEGER
)`

// ArchiveFixture builds a minimal, valid .jwlibrary-shaped container for
// engine-level tests: a fresh SQLite database via dbsession, exported to
// bytes, wrapped with a manifest in a zip. DDL beyond Location/Mark can be
// layered on by callers that open the returned session before Export is
// reached — use Session directly for that case.
type ArchiveFixture struct {
	t          *testing.T
	session    *dbsession.Session
	deviceName string
}

// NewArchiveFixture opens a fresh temp-file-backed session with the
// Location and Mark tables already created, ready for INSERTs.
func NewArchiveFixture(t *testing.T, deviceName string) *ArchiveFixture {
	t.Helper()

	s, err := dbsession.OpenEmpty()
	if err != nil {
		t.Fatalf("OpenEmpty: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.CreateTable(locationDDL); err != nil {
		t.Fatalf("CreateTable Location: %v", err)
	}
	if err := s.CreateTable(markDDL); err != nil {
		t.Fatalf("CreateTable Mark: %v", err)
	}

	return &ArchiveFixture{t: t, session: s, deviceName: deviceName}
}

// Session exposes the underlying session so a caller can create
// additional tables or insert rows with arbitrary SQL before Build.
func (f *ArchiveFixture) Session() *dbsession.Session { return f.session }

// InsertLocation adds one Location row using the Bible-chapter shape.
func (f *ArchiveFixture) InsertLocation(id, book, chapter int64, keySymbol string) {
	f.t.Helper()
	_, err := f.session.Exec(
		`INSERT INTO Location (LocationId, BookNumber, ChapterNumber, Type, KeySymbol) VALUES (?, ?, ?, 0, ?)`,
		id, book, chapter, keySymbol,
	)
	if err != nil {
		f.t.Fatalf("insert location %d: %v", id, err)
	}
}

// InsertMark adds one Mark row pointing at a LocationId.
func (f *ArchiveFixture) InsertMark(id int64, guid string, locationID int64) {
	f.t.Helper()
	_, err := f.session.Exec(
		`INSERT INTO Mark (UserMarkId, UserMarkGuid, LocationId) VALUES (?, ?, ?)`,
		id, guid, locationID,
	)
	if err != nil {
		f.t.Fatalf("insert mark %d: %v", id, err)
	}
}

// Build exports the session and assembles it into archive bytes with a
// generated manifest, ready to feed into internal/merge.Run.
func (f *ArchiveFixture) Build() []byte {
	f.t.Helper()

	dbBytes, err := f.session.Export()
	if err != nil {
		f.t.Fatalf("Export: %v", err)
	}

	manifest := archive.BuildManifest(f.deviceName, 14, dbBytes, time.Now())
	manifestBytes, err := manifest.Bytes()
	if err != nil {
		f.t.Fatalf("manifest bytes: %v", err)
	}

	w := archive.NewWriter()
	w.SetDatabase(dbBytes)
	w.SetManifest(manifestBytes)
	archiveBytes, err := w.Bytes()
	if err != nil {
		f.t.Fatalf("archive bytes: %v", err)
	}
	return archiveBytes
}

package locationmerge

import (
	"context"
	"testing"

	"github.com/backupmerge/backupmerge/internal/dbsession"
	"github.com/backupmerge/backupmerge/internal/idmap"
	"github.com/backupmerge/backupmerge/internal/mergetrace"
)

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

func newSession(t *testing.T) *dbsession.Session {
	t.Helper()
	s, err := dbsession.OpenEmpty()
	if err != nil {
		t.Fatalf("OpenEmpty: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.CreateTable(locationDDL); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}
	return s
}

func insertLocation(t *testing.T, s *dbsession.Session, id int64, book, chapter any, keySymbol string, meps any) {
	t.Helper()
	_, err := s.Exec(
		`INSERT INTO Location (LocationId, BookNumber, ChapterNumber, DocumentId, Track, IssueTagNumber, KeySymbol, MepsLanguage, Type, Title)
		 VALUES (?, ?, ?, NULL, NULL, NULL, ?, ?, 0, NULL)`,
		id, book, chapter, keySymbol, meps,
	)
	if err != nil {
		t.Fatalf("insert location %d: %v", id, err)
	}
}

// S1 — duplicate chapter, no id conflict: two sources share id 1076 for
// the same chapter, plus a distinct id 1083 only in source B.
func TestMergeDuplicateChapterNoIDConflict(t *testing.T) {
	a := newSession(t)
	insertLocation(t, a, 1076, int64(19), int64(1), "pt14", nil)

	b := newSession(t)
	insertLocation(t, b, 1076, int64(19), int64(1), "pt14", nil)
	insertLocation(t, b, 1083, int64(19), int64(2), "pt14", nil)

	target := newSession(t)
	reg := idmap.NewRegistry()

	stats, err := Merge(context.Background(), target, []*dbsession.Session{a, b}, reg, mergetrace.Discard)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if stats.Inserted != 2 {
		t.Errorf("expected 2 inserted rows, got %d", stats.Inserted)
	}
	if stats.Duplicate != 1 {
		t.Errorf("expected 1 duplicate, got %d", stats.Duplicate)
	}

	for _, id := range []int64{1076, 1083} {
		exists, err := target.RowExists("Location", "LocationId", id)
		if err != nil || !exists {
			t.Errorf("expected Location %d in target", id)
		}
	}
	if _, ok := reg.Lookup("Location", 1083); ok {
		t.Error("expected no mapping for 1083, it was never reassigned")
	}
}

// S2 — same primary key, different identity: B's row at the same
// LocationId as A's must be inserted under a fresh id and mapped.
func TestMergeSamePrimaryKeyDifferentIdentity(t *testing.T) {
	a := newSession(t)
	insertLocation(t, a, 500, int64(1), int64(1), "nwt", nil)

	b := newSession(t)
	insertLocation(t, b, 500, int64(2), int64(1), "nwt", nil)

	target := newSession(t)
	reg := idmap.NewRegistry()

	stats, err := Merge(context.Background(), target, []*dbsession.Session{a, b}, reg, mergetrace.Discard)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if stats.Inserted != 2 {
		t.Errorf("expected 2 inserted rows, got %d", stats.Inserted)
	}

	newID, ok := reg.Lookup("Location", 500)
	if !ok {
		t.Fatal("expected a mapping for source B's colliding LocationId 500")
	}
	if newID == 500 {
		t.Error("expected B's row to get a fresh id, not 500")
	}

	exists, err := target.RowExists("Location", "LocationId", 500)
	if err != nil || !exists {
		t.Error("expected original id 500 (A's row) still present")
	}
	exists, err = target.RowExists("Location", "LocationId", newID)
	if err != nil || !exists {
		t.Errorf("expected reassigned id %d present", newID)
	}
}

// S6 — three sources with cascading id reuse on the same LocationId for
// different chapters; every chapter must survive as a distinct row.
func TestMergeThreeSourceCascadingIDReuse(t *testing.T) {
	a := newSession(t)
	insertLocation(t, a, 1076, int64(1), int64(1), "nwt", nil)

	b := newSession(t)
	insertLocation(t, b, 1076, int64(1), int64(2), "nwt", nil)

	c := newSession(t)
	insertLocation(t, c, 1076, int64(1), int64(3), "nwt", nil)

	target := newSession(t)
	reg := idmap.NewRegistry()

	stats, err := Merge(context.Background(), target, []*dbsession.Session{a, b, c}, reg, mergetrace.Discard)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if stats.Inserted != 3 {
		t.Errorf("expected 3 distinct chapters inserted, got %d", stats.Inserted)
	}

	rows, err := target.SelectAll("Location", "LocationId")
	if err != nil {
		t.Fatalf("SelectAll: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows in target, got %d", len(rows))
	}

	sigs := make(map[string]bool)
	for _, r := range rows {
		sigs[Signature(r.Values)] = true
	}
	if len(sigs) != 3 {
		t.Errorf("expected 3 distinct signatures, got %d", len(sigs))
	}
}

// MepsLanguage null and 0 must collapse to the same signature (§8.2).
func TestMepsLanguageNullAndZeroCollapse(t *testing.T) {
	a := newSession(t)
	insertLocation(t, a, 10, int64(1), int64(1), "nwt", nil)

	b := newSession(t)
	insertLocation(t, b, 20, int64(1), int64(1), "nwt", int64(0))

	target := newSession(t)
	reg := idmap.NewRegistry()

	stats, err := Merge(context.Background(), target, []*dbsession.Session{a, b}, reg, mergetrace.Discard)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if stats.Inserted != 1 || stats.Duplicate != 1 {
		t.Errorf("expected a single survivor, got inserted=%d duplicate=%d", stats.Inserted, stats.Duplicate)
	}
}

// A Bible-chapter row and a publication row with otherwise identical
// columns are not duplicates (§8.2).
func TestBibleChapterAndPublicationNeverCollide(t *testing.T) {
	a := newSession(t)
	// Bible chapter: Type=0, BookNumber/ChapterNumber set.
	insertLocation(t, a, 1, int64(1), int64(1), "nwt", nil)

	b := newSession(t)
	// Publication reference: BookNumber/ChapterNumber absent (null/zero).
	insertLocation(t, b, 1, nil, nil, "nwt", nil)

	target := newSession(t)
	reg := idmap.NewRegistry()

	stats, err := Merge(context.Background(), target, []*dbsession.Session{a, b}, reg, mergetrace.Discard)
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if stats.Inserted != 2 {
		t.Errorf("expected both rows inserted as distinct, got inserted=%d", stats.Inserted)
	}
}

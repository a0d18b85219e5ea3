package media

import (
	"context"
	"testing"

	"github.com/backupmerge/backupmerge/internal/archive"
)

func TestMergeDedupesByContentHash(t *testing.T) {
	sourceA := []archive.Entry{{Name: "cover.jpg", Data: []byte("same-bytes")}}
	sourceB := []archive.Entry{{Name: "cover-renamed.jpg", Data: []byte("same-bytes")}}

	out, stats, err := Merge(context.Background(), [][]archive.Entry{sourceA, sourceB})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 surviving entry, got %d", len(out))
	}
	if out[0].Name != "cover.jpg" {
		t.Errorf("expected first source's entry to win, got %s", out[0].Name)
	}
	if stats.DroppedByHash != 1 {
		t.Errorf("expected 1 dropped-by-hash, got %d", stats.DroppedByHash)
	}
}

func TestMergeNameCollisionDifferentContentDropsSecond(t *testing.T) {
	sourceA := []archive.Entry{{Name: "cover.jpg", Data: []byte("content-a")}}
	sourceB := []archive.Entry{{Name: "cover.jpg", Data: []byte("content-b")}}

	out, stats, err := Merge(context.Background(), [][]archive.Entry{sourceA, sourceB})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(out) != 1 || string(out[0].Data) != "content-a" {
		t.Fatalf("expected first source's content to survive, got %+v", out)
	}
	if stats.DroppedByName != 1 {
		t.Errorf("expected 1 dropped-by-name, got %d", stats.DroppedByName)
	}
}

func TestMergeDistinctEntriesAllSurvive(t *testing.T) {
	sourceA := []archive.Entry{{Name: "a.jpg", Data: []byte("a")}}
	sourceB := []archive.Entry{{Name: "b.jpg", Data: []byte("b")}}

	out, stats, err := Merge(context.Background(), [][]archive.Entry{sourceA, sourceB})
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	if len(out) != 2 || stats.Kept != 2 {
		t.Fatalf("expected both entries kept, got %+v stats=%+v", out, stats)
	}
}

// Package locationmerge implements the two-phase Location merger (§4.5):
// the one table in the schema whose semantic identity depends on which of
// two alternative unique constraints applies to a given row, and whose
// primary-key reassignment must be decided globally across every source
// before any row is inserted. Grounded on the teacher's begin-operate-
// verify discipline in internal/database/database.go's InitSchema, and on
// steveyegge-beads/internal/merge/merge.go's "read everything, then
// decide" shape (readIssues for every input before merge3Way resolves
// anything in memory).
package locationmerge

import (
	"context"
	"fmt"

	"github.com/backupmerge/backupmerge/internal/dbsession"
	"github.com/backupmerge/backupmerge/internal/idmap"
	"github.com/backupmerge/backupmerge/internal/mergeerr"
	"github.com/backupmerge/backupmerge/internal/mergetrace"
	"github.com/backupmerge/backupmerge/internal/schema"
)

const (
	tableName  = "Location"
	pkColumn   = "LocationId"
	colType    = "Type"
	colBook    = "BookNumber"
	colChapter = "ChapterNumber"
	colKey     = "KeySymbol"
	colMeps    = "MepsLanguage"
	colIssue   = "IssueTagNumber"
	colDoc     = "DocumentId"
	colTrack   = "Track"
)

// Stats summarizes one Location merge pass.
type Stats struct {
	Inserted  int
	Duplicate int
	Remapped  int // inserted rows whose final id differs from their original id
}

// locationRow is one row collected during the global scan, tagged with
// its computed signature and, once resolved, its final primary key.
type locationRow struct {
	sourceIdx int
	origID    int64
	columns   []string
	values    map[string]any
	sig       string
}

// Signature computes §4.5's identity: a Bible-chapter rule when Type=0
// and both BookNumber and ChapterNumber are present and non-zero, else
// the publication/document rule. The literal "bible:"/"pub:" prefix keeps
// the two rule families from ever colliding even if their column values
// happen to coincide (§8.2: a Bible-chapter row and a publication row
// with identical other columns are not duplicates). Exported so the
// Integrity Validator can recompute it independently post-merge (§4.9).
func Signature(values map[string]any) string {
	typ := asInt64(values[colType])

	if typ == 0 && nonZero(values[colBook]) && nonZero(values[colChapter]) {
		return fmt.Sprintf("bible:%s", schema.Signature(
			schema.IdentityRule{colBook, colChapter, colKey, colMeps, colType},
			values,
		))
	}
	return fmt.Sprintf("pub:%s", schema.Signature(
		schema.IdentityRule{colKey, colIssue, colMeps, colDoc, colTrack, colType},
		values,
	))
}

func nonZero(v any) bool {
	if v == nil {
		return false
	}
	return asInt64(v) != 0
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case nil:
		return 0
	default:
		return 0
	}
}

// Merge runs the global scan (phase 1) and the ordered insert pass
// (phase 2) of §4.5 against every source's Location table, recording
// surviving-id mappings in reg and emitting trace events for every
// decision. sources are consulted in caller order; rows within a source
// are read in primary-key order (§5's determinism guarantee).
func Merge(ctx context.Context, target *dbsession.Session, sources []*dbsession.Session, reg *idmap.Registry, trace mergetrace.Sink) (Stats, error) {
	var stats Stats

	var columns []string
	var scanned []*locationRow
	firstOccurrence := make(map[string]*locationRow)

	for srcIdx, src := range sources {
		if err := ctx.Err(); err != nil {
			return stats, mergeerr.Wrap(mergeerr.Cancelled, err)
		}

		exists, err := src.TableExists(tableName)
		if err != nil {
			return stats, mergeerr.Wrap(mergeerr.Internal, err)
		}
		if !exists {
			continue
		}

		rows, err := src.SelectAll(tableName, pkColumn)
		if err != nil {
			return stats, mergeerr.Wrap(mergeerr.Internal, err)
		}
		if columns == nil && len(rows) > 0 {
			columns = rows[0].Columns
		}

		for _, row := range rows {
			origID := asInt64(row.Values[pkColumn])
			lr := &locationRow{
				sourceIdx: srcIdx,
				origID:    origID,
				columns:   row.Columns,
				values:    row.Values,
				sig:       Signature(row.Values),
			}
			scanned = append(scanned, lr)
			if _, ok := firstOccurrence[lr.sig]; !ok {
				firstOccurrence[lr.sig] = lr
			}
		}
	}

	if len(scanned) == 0 {
		return stats, nil
	}

	used := make(map[int64]bool)
	finalIDs := make(map[*locationRow]int64)

	for _, row := range scanned {
		if err := ctx.Err(); err != nil {
			return stats, mergeerr.Wrap(mergeerr.Cancelled, err)
		}

		survivor := firstOccurrence[row.sig]
		if survivor != row {
			finalID, resolved := finalIDs[survivor]
			if !resolved {
				// The survivor is always encountered earlier in scan
				// order than any duplicate of its signature, so this
				// should never happen; treat it as a programming error
				// rather than silently mis-mapping a duplicate.
				return stats, mergeerr.New(mergeerr.Internal, "location merge: duplicate of %s processed before its survivor", row.sig)
			}
			reg.Record(tableName, row.origID, finalID)
			stats.Duplicate++
			trace(mergetrace.Event{Kind: mergetrace.Duplicate, Table: tableName, OrigID: row.origID, NewID: finalID})
			continue
		}

		finalID := row.origID
		if used[finalID] {
			finalID = nextFree(used, row.origID+1)
		}

		if _, err := target.InsertRow(tableName, false, row.columns, row.values, pkColumn, finalID); err != nil {
			return stats, mergeerr.Wrap(mergeerr.MergeConflict, fmt.Errorf("location insert for source %d orig id %d: %w", row.sourceIdx, row.origID, err))
		}

		ok, err := target.RowExists(tableName, pkColumn, finalID)
		if err != nil {
			return stats, mergeerr.Wrap(mergeerr.Internal, err)
		}
		if !ok {
			return stats, mergeerr.New(mergeerr.MergeConflict, "location insert for source %d orig id %d did not verify: final id %d not found in target", row.sourceIdx, row.origID, finalID)
		}

		used[finalID] = true
		finalIDs[row] = finalID
		stats.Inserted++
		trace(mergetrace.Event{Kind: mergetrace.Inserted, Table: tableName, OrigID: row.origID, NewID: finalID})

		if finalID != row.origID {
			reg.Record(tableName, row.origID, finalID)
			stats.Remapped++
			trace(mergetrace.Event{Kind: mergetrace.Remapped, Table: tableName, FKColumn: pkColumn, OrigID: row.origID, NewID: finalID})
		}
	}

	return stats, nil
}

// nextFree finds the smallest integer >= start not already in used.
func nextFree(used map[int64]bool, start int64) int64 {
	for id := start; ; id++ {
		if !used[id] {
			return id
		}
	}
}

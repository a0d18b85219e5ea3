// Package rowmerge implements the generic table-by-table merge driver
// (§4.6): for every table after Location, in dependency order, it applies
// the table's identity rules to detect duplicates, resolves primary-key
// collisions with either the simple-id offset strategy or a bounded
// next-free-id search, rewrites foreign keys through the registry, and
// inserts the survivor — verifying every insert by reading it back rather
// than trusting `INSERT OR IGNORE`'s silence (§9's explicit redesign
// note). Bookmark's, TagMap's, and Item's per-table specializations
// (§4.6) all fall out of this one framework: foreign keys are always
// rewritten before the duplicate check runs, so a composite rule built
// from FK columns (Bookmark, TagMap, the *Map tables) compares against
// values that are already meaningful in the target, and NULL-safe
// columns (Item.ThumbnailFilePath) are handled by the same IS NULL
// predicate every rule gets.
//
// Grounded on untoldecay-BeadsLog/internal/storage/sqlite/ids.go's
// bounded-retry-then-fail id allocation (adapted here from string hash
// collisions to bounded integer primary-key search) and on the teacher's
// CreateMemory/GetMemory round-trip verification pattern in
// internal/database/operations.go.
package rowmerge

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/backupmerge/backupmerge/internal/dbsession"
	"github.com/backupmerge/backupmerge/internal/idmap"
	"github.com/backupmerge/backupmerge/internal/logging"
	"github.com/backupmerge/backupmerge/internal/mergeerr"
	"github.com/backupmerge/backupmerge/internal/mergetrace"
	"github.com/backupmerge/backupmerge/internal/schema"
)

var log = logging.GetLogger("rowmerge")

// maxIDSearchAttempts bounds the next-free-id search for composite/GUID
// identity tables (§4.6 step 2); exhausting it is a MergeConflict (§7).
const maxIDSearchAttempts = 1000

// Stats summarizes one table's merge pass across all sources.
type Stats struct {
	Inserted  int
	Duplicate int
	Orphans   int
}

// MergeTable merges one table from every source into target, in source
// order, rows within a source in primary-key order (§5 determinism). A
// table absent from the target's schema is skipped.
func MergeTable(ctx context.Context, target *dbsession.Session, sources []*dbsession.Session, spec schema.TableSpec, reg *idmap.Registry, trace mergetrace.Sink) (Stats, error) {
	var stats Stats

	present, err := target.TableExists(spec.Name)
	if err != nil {
		return stats, mergeerr.Wrap(mergeerr.Internal, err)
	}
	if !present {
		return stats, nil
	}

	var nextFreeID int64
	if spec.HasPrimaryKey() && !spec.SimpleID {
		max, err := target.MaxID(spec.Name, spec.PrimaryKey)
		if err != nil {
			return stats, mergeerr.Wrap(mergeerr.Internal, err)
		}
		nextFreeID = max + 1
	}

	var offset int64 // simple-id per-source offset (§4.6 step 2)

	for srcIdx, src := range sources {
		exists, err := src.TableExists(spec.Name)
		if err != nil {
			return stats, mergeerr.Wrap(mergeerr.Internal, err)
		}
		if !exists {
			continue
		}

		rows, err := src.SelectAll(spec.Name, spec.PrimaryKey)
		if err != nil {
			return stats, mergeerr.Wrap(mergeerr.Internal, err)
		}

		var sourceMaxID int64
		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return stats, mergeerr.Wrap(mergeerr.Cancelled, err)
			}

			var origID int64
			if spec.HasPrimaryKey() {
				origID = asInt64(row.Values[spec.PrimaryKey])
				if origID > sourceMaxID {
					sourceMaxID = origID
				}
			}

			values, err := rewriteForeignKeys(target, reg, spec, row.Values, origID, trace)
			if err != nil {
				return stats, mergeerr.Wrap(mergeerr.Internal, err)
			}

			existingID, dup, err := findDuplicate(target, spec, values)
			if err != nil {
				return stats, mergeerr.Wrap(mergeerr.Internal, err)
			}
			if dup {
				if spec.HasPrimaryKey() {
					reg.Record(spec.Name, origID, existingID)
				}
				stats.Duplicate++
				trace(mergetrace.Event{Kind: mergetrace.Duplicate, Table: spec.Name, OrigID: origID, NewID: existingID})
				continue
			}

			if !spec.HasPrimaryKey() {
				if _, err := target.InsertRow(spec.Name, true, row.Columns, values, "", nil); err != nil {
					return stats, mergeerr.Wrap(mergeerr.Internal, err)
				}
				stats.Inserted++
				trace(mergetrace.Event{Kind: mergetrace.Inserted, Table: spec.Name, OrigID: origID})
				continue
			}

			finalID, err := allocateID(target, spec, origID, offset, &nextFreeID)
			if err != nil {
				return stats, err
			}

			if _, err := target.InsertRow(spec.Name, true, row.Columns, values, spec.PrimaryKey, finalID); err != nil {
				return stats, mergeerr.Wrap(mergeerr.Internal, err)
			}

			ok, err := target.RowExists(spec.Name, spec.PrimaryKey, finalID)
			if err != nil {
				return stats, mergeerr.Wrap(mergeerr.Internal, err)
			}
			if !ok {
				// §4.6 step 4 / §9: INSERT OR IGNORE's silence is not
				// evidence of success. Do not record a pending mapping.
				log.Warn("insert did not verify, skipping mapping",
					"table", spec.Name, "source_index", srcIdx, "orig_id", origID, "final_id", finalID)
				continue
			}

			if !spec.SimpleID && finalID >= nextFreeID {
				nextFreeID = finalID + 1
			}

			reg.Record(spec.Name, origID, finalID)
			stats.Inserted++
			trace(mergetrace.Event{Kind: mergetrace.Inserted, Table: spec.Name, OrigID: origID, NewID: finalID})
			if finalID != origID {
				trace(mergetrace.Event{Kind: mergetrace.Remapped, Table: spec.Name, FKColumn: spec.PrimaryKey, OrigID: origID, NewID: finalID})
			}
		}

		if spec.SimpleID {
			offset += sourceMaxID + 1
		}
	}

	return stats, nil
}

// allocateID picks the primary key a row will be inserted with: the
// per-source offset bump for simple-id tables, or original-id-if-free
// else a bounded upward search from the running next-free-id counter for
// composite/GUID-identity tables (§4.6 step 2).
func allocateID(target *dbsession.Session, spec schema.TableSpec, origID, offset int64, nextFreeID *int64) (int64, error) {
	if spec.SimpleID {
		return origID + offset, nil
	}

	taken, err := target.RowExists(spec.Name, spec.PrimaryKey, origID)
	if err != nil {
		return 0, mergeerr.Wrap(mergeerr.Internal, err)
	}
	if !taken {
		return origID, nil
	}

	for i := 0; i < maxIDSearchAttempts; i++ {
		candidate := *nextFreeID + int64(i)
		exists, err := target.RowExists(spec.Name, spec.PrimaryKey, candidate)
		if err != nil {
			return 0, mergeerr.Wrap(mergeerr.Internal, err)
		}
		if !exists {
			return candidate, nil
		}
	}
	return 0, mergeerr.New(mergeerr.MergeConflict, "exhausted %d attempts allocating a free id for %s", maxIDSearchAttempts, spec.Name)
}

// rewriteForeignKeys returns a copy of values with every foreign-key
// column substituted through the registry (or left as-is if the original
// value already exists in the target, or left as-is and flagged as a
// trace Orphan if neither holds — the Integrity Validator recomputes
// orphans authoritatively from the database afterward, so this event is
// informational, not load-bearing).
func rewriteForeignKeys(target *dbsession.Session, reg *idmap.Registry, spec schema.TableSpec, values map[string]any, origID int64, trace mergetrace.Sink) (map[string]any, error) {
	if len(spec.ForeignKeys) == 0 {
		return values, nil
	}

	out := make(map[string]any, len(values))
	for k, v := range values {
		out[k] = v
	}

	for _, fk := range spec.ForeignKeys {
		v, present := values[fk.Column]
		if !present || v == nil {
			continue
		}
		fkOrig := asInt64(v)

		if newID, ok := reg.Lookup(fk.ReferredTable, fkOrig); ok {
			out[fk.Column] = newID
			if newID != fkOrig {
				trace(mergetrace.Event{Kind: mergetrace.Remapped, Table: spec.Name, FKColumn: fk.Column, OrigID: origID, NewID: newID})
			}
			continue
		}

		refSpec, known := schema.Lookup(fk.ReferredTable)
		if !known || !refSpec.HasPrimaryKey() {
			continue
		}
		refPresent, err := target.TableExists(fk.ReferredTable)
		if err != nil {
			return nil, err
		}
		found := false
		if refPresent {
			found, err = target.RowExists(fk.ReferredTable, refSpec.PrimaryKey, fkOrig)
			if err != nil {
				return nil, err
			}
		}
		if !found {
			trace(mergetrace.Event{Kind: mergetrace.Orphan, Table: spec.Name, FKColumn: fk.Column, OrigID: origID, MissingValue: fkOrig})
		}
	}

	return out, nil
}

// findDuplicate evaluates a table's identity rules in declared order
// against the target; the first rule that matches an existing row wins
// (§4.6 step 1, TagMap's three independent rules included).
func findDuplicate(target *dbsession.Session, spec schema.TableSpec, values map[string]any) (int64, bool, error) {
	for _, rule := range spec.IdentityRules {
		cond, args := buildPredicate(rule, values)
		if cond == "" {
			continue
		}

		if spec.HasPrimaryKey() {
			query := fmt.Sprintf("SELECT %q FROM %q WHERE %s LIMIT 1", spec.PrimaryKey, spec.Name, cond)
			var id int64
			err := target.QueryRow(query, args...).Scan(&id)
			if err == nil {
				return id, true, nil
			}
			if err != sql.ErrNoRows {
				return 0, false, err
			}
			continue
		}

		query := fmt.Sprintf("SELECT 1 FROM %q WHERE %s LIMIT 1", spec.Name, cond)
		var one int
		err := target.QueryRow(query, args...).Scan(&one)
		if err == nil {
			return 0, true, nil
		}
		if err != sql.ErrNoRows {
			return 0, false, err
		}
	}
	return 0, false, nil
}

// buildPredicate turns an identity rule into a parameterized WHERE
// clause, substituting IS NULL for any column whose value is null so
// NULL-safe columns (Item.ThumbnailFilePath, Bookmark's optional FK)
// compare correctly (§3.2, §4.6).
func buildPredicate(rule schema.IdentityRule, values map[string]any) (string, []any) {
	conds := make([]string, 0, len(rule))
	var args []any
	for _, col := range rule {
		v := values[col]
		if v == nil {
			conds = append(conds, fmt.Sprintf("%q IS NULL", col))
			continue
		}
		conds = append(conds, fmt.Sprintf("%q = ?", col))
		args = append(args, v)
	}
	return strings.Join(conds, " AND "), args
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

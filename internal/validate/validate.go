// Package validate implements the Integrity Validator (§4.9): read-only
// post-merge queries against the target database. It never mutates the
// target; a failing check here is a warning in the Report, not an error
// returned from the merge (§7: orphans are non-fatal).
package validate

import (
	"fmt"

	"github.com/backupmerge/backupmerge/internal/dbsession"
	"github.com/backupmerge/backupmerge/internal/idmap"
	"github.com/backupmerge/backupmerge/internal/locationmerge"
	"github.com/backupmerge/backupmerge/internal/schema"
)

// maxSamples bounds the number of example orphan pairs carried per table
// in the report (§4.9: "up to ten sample (pk, missing_fk) pairs").
const maxSamples = 10

// OrphanSample is one concrete example of a dangling foreign key.
type OrphanSample struct {
	PK        int64
	MissingFK int64
}

// OrphanCheck is one foreign-key closure check against the target.
type OrphanCheck struct {
	Table    string
	Column   string
	RefTable string
	Count    int
	Samples  []OrphanSample
}

// Report is the Integrity Validator's output, attached to every
// successful merge result (§4.8 step 9, §6.3).
type Report struct {
	OrphanedMarks      int
	OrphanedNotes      int
	DuplicateLocations int
	OrphanChecks       []OrphanCheck
	RowCounts          map[string]int
	RegistrySizes      map[string]int
}

// Run executes every read-only check against target and assembles a
// Report. reg supplies the per-table mapping-size summary (§4.9).
func Run(target *dbsession.Session, reg *idmap.Registry) (Report, error) {
	report := Report{
		RowCounts:     make(map[string]int),
		RegistrySizes: make(map[string]int),
	}

	for _, t := range allTables() {
		exists, err := target.TableExists(t)
		if err != nil {
			return report, fmt.Errorf("validate: checking table %s: %w", t, err)
		}
		if !exists {
			continue
		}
		count, err := rowCount(target, t)
		if err != nil {
			return report, fmt.Errorf("validate: counting %s: %w", t, err)
		}
		report.RowCounts[t] = count
	}

	for _, table := range reg.Tables() {
		report.RegistrySizes[table] = reg.Size(table)
	}

	checks := []struct {
		table, column, refTable string
		nullSkip                bool
	}{
		{"Mark", "LocationId", "Location", false},
		{"Note", "LocationId", "Location", true},
		{"Bookmark", "LocationId", "Location", false},
		{"Bookmark", "PublicationLocationId", "Location", true},
	}
	for _, c := range checks {
		exists, err := target.TableExists(c.table)
		if err != nil {
			return report, fmt.Errorf("validate: checking table %s: %w", c.table, err)
		}
		if !exists {
			continue
		}
		check, err := orphanCheck(target, c.table, c.column, c.refTable, c.nullSkip)
		if err != nil {
			return report, fmt.Errorf("validate: orphan check %s.%s: %w", c.table, c.column, err)
		}
		report.OrphanChecks = append(report.OrphanChecks, check)
		switch c.table {
		case "Mark":
			report.OrphanedMarks += check.Count
		case "Note":
			report.OrphanedNotes += check.Count
		}
	}

	dup, err := duplicateLocationSignatures(target)
	if err != nil {
		return report, fmt.Errorf("validate: duplicate location signatures: %w", err)
	}
	report.DuplicateLocations = dup

	return report, nil
}

// allTables returns every table the schema model knows about, in
// dependency order, plus Location (merged by its own specialized pass).
func allTables() []string {
	out := []string{"Location"}
	for _, t := range schema.DependencyOrder {
		out = append(out, t.Name)
	}
	return out
}

func rowCount(s *dbsession.Session, table string) (int, error) {
	var n int
	err := s.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %q", table)).Scan(&n)
	return n, err
}

// orphanCheck counts rows of table whose column does not match any
// primary key of refTable. When nullSkip is true, null values in column
// are excluded (they are simply unset, not orphaned — e.g. Note.LocationId
// and Bookmark.PublicationLocationId are both nullable).
func orphanCheck(target *dbsession.Session, table, column, refTable string, nullSkip bool) (OrphanCheck, error) {
	refSpec, ok := schema.Lookup(refTable)
	pk := "id"
	if ok && refSpec.HasPrimaryKey() {
		pk = refSpec.PrimaryKey
	} else if refTable == "Location" {
		pk = "LocationId"
	}

	nullClause := ""
	if nullSkip {
		nullClause = fmt.Sprintf("%q IS NOT NULL AND ", column)
	}

	spec := schema.TableSpec{}
	if s, ok := schema.Lookup(table); ok {
		spec = s
	}
	pkSelect := "rowid"
	if spec.HasPrimaryKey() {
		pkSelect = fmt.Sprintf("%q", spec.PrimaryKey)
	}

	query := fmt.Sprintf(`
		SELECT %s, %q FROM %q t
		WHERE %s NOT EXISTS (SELECT 1 FROM %q r WHERE r.%q = t.%q)
		LIMIT %d
	`, pkSelect, column, table, nullClause, refTable, pk, column, maxSamples)

	rows, err := target.Query(query)
	if err != nil {
		return OrphanCheck{}, err
	}
	defer rows.Close()

	check := OrphanCheck{Table: table, Column: column, RefTable: refTable}
	for rows.Next() {
		var pkVal, missing int64
		if err := rows.Scan(&pkVal, &missing); err != nil {
			return OrphanCheck{}, err
		}
		check.Samples = append(check.Samples, OrphanSample{PK: pkVal, MissingFK: missing})
	}
	if err := rows.Err(); err != nil {
		return OrphanCheck{}, err
	}

	countQuery := fmt.Sprintf(`
		SELECT COUNT(*) FROM %q t
		WHERE %s NOT EXISTS (SELECT 1 FROM %q r WHERE r.%q = t.%q)
	`, table, nullClause, refTable, pk, column)
	var count int
	if err := target.QueryRow(countQuery).Scan(&count); err != nil {
		return OrphanCheck{}, err
	}
	check.Count = count

	return check, nil
}

// duplicateLocationSignatures recomputes every Location row's identity
// signature (§4.5) and counts how many signatures have more than one
// surviving row — this should always be zero after a correct merge
// (§8.4); a nonzero count means the two-phase algorithm let a collision
// through.
func duplicateLocationSignatures(target *dbsession.Session) (int, error) {
	exists, err := target.TableExists("Location")
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	rows, err := target.SelectAll("Location", "LocationId")
	if err != nil {
		return 0, err
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		sig := locationmerge.Signature(row.Values)
		counts[sig]++
	}

	dup := 0
	for _, n := range counts {
		if n > 1 {
			dup++
		}
	}
	return dup, nil
}

package validate

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/yuin/goldmark"
)

// Markdown renders the report as a human-readable Markdown document, in
// the order: summary counters, per-table row counts, registry sizes, and
// any orphan samples found.
func (r Report) Markdown() string {
	var b strings.Builder

	fmt.Fprintln(&b, "# Merge validation report")
	fmt.Fprintln(&b)
	fmt.Fprintf(&b, "- Orphaned Marks: %d\n", r.OrphanedMarks)
	fmt.Fprintf(&b, "- Orphaned Notes: %d\n", r.OrphanedNotes)
	fmt.Fprintf(&b, "- Duplicate Location signatures: %d\n", r.DuplicateLocations)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "## Row counts")
	for _, t := range sortedKeys(r.RowCounts) {
		fmt.Fprintf(&b, "- %s: %d\n", t, r.RowCounts[t])
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "## ID mapping registry sizes")
	for _, t := range sortedKeys(r.RegistrySizes) {
		fmt.Fprintf(&b, "- %s: %d\n", t, r.RegistrySizes[t])
	}

	for _, c := range r.OrphanChecks {
		if c.Count == 0 {
			continue
		}
		fmt.Fprintln(&b)
		fmt.Fprintf(&b, "## Orphans: %s.%s -> %s (%d)\n", c.Table, c.Column, c.RefTable, c.Count)
		for _, s := range c.Samples {
			fmt.Fprintf(&b, "- pk=%d missing=%d\n", s.PK, s.MissingFK)
		}
	}

	return b.String()
}

// HTML converts the Markdown report to HTML. The CLI prints Markdown and
// the HTTP handler returns the Report as JSON; neither calls HTML.
func (r Report) HTML() (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(r.Markdown()), &buf); err != nil {
		return "", fmt.Errorf("failed to render validation report: %w", err)
	}
	return buf.String(), nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

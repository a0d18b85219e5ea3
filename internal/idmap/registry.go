// Package idmap implements the merge run's ID mapping registry: a
// per-table map from a source row's original primary key to the
// identifier it ended up with in the target database (§4.4).
//
// The registry has a single owner — the orchestrator — and is threaded
// explicitly through the Location merger and the generic row merger. It
// is not a shared mutable singleton (§9): each merge run constructs its
// own Registry and discards it when the run ends.
package idmap

// Registry maps (table, original_id) to the surviving primary key in the
// target database. A miss means "identity" — the caller should treat the
// original id as still valid (it was inserted unchanged).
type Registry struct {
	tables map[string]map[int64]int64
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{tables: make(map[string]map[int64]int64)}
}

// Record stores a mapping. It must only be called after the row bearing
// new has been verified present in the target (§3.4, §4.6 step 4) — a
// mapping to an id that was never actually written would corrupt every
// downstream foreign-key rewrite that consults it.
func (r *Registry) Record(table string, orig, new int64) {
	m, ok := r.tables[table]
	if !ok {
		m = make(map[int64]int64)
		r.tables[table] = m
	}
	m[orig] = new
}

// Lookup returns the surviving id for (table, orig), or ok=false if no
// mapping was recorded — which the caller treats as "keep the original
// value, it's already correct" (§4.4).
func (r *Registry) Lookup(table string, orig int64) (int64, bool) {
	m, ok := r.tables[table]
	if !ok {
		return 0, false
	}
	id, ok := m[orig]
	return id, ok
}

// Clear drops all recorded mappings, resetting the registry for reuse.
func (r *Registry) Clear() {
	r.tables = make(map[string]map[int64]int64)
}

// Size returns the number of mappings recorded for a table, used by the
// Integrity Validator's per-table summary (§4.9).
func (r *Registry) Size(table string) int {
	return len(r.tables[table])
}

// Tables returns the names of tables that have at least one recorded
// mapping, for building the validator's full per-table report.
func (r *Registry) Tables() []string {
	names := make([]string, 0, len(r.tables))
	for name := range r.tables {
		names = append(names, name)
	}
	return names
}

// Package dbsession is the thin contract the merge engine uses over the
// embedded SQL engine (§4.2). It never concatenates user-controlled
// values into SQL — every statement is executed with bound parameters —
// and it exposes only the handful of operations the mergers need:
// structural introspection, parameterized query/exec, and byte-level
// load/export so the engine never has to know where SQLite keeps its
// file on disk.
//
// A Session is not thread-shared (§4.2): it is owned by exactly one
// merger for the run's lifetime, unlike the teacher's Database type which
// guards a long-lived daemon connection with a mutex.
package dbsession

// Package merge is the root of the engine (§4.8): it owns the single
// entry point, Run, that drives the pipeline described in the system
// overview end to end — open sources, copy schema, merge Location, merge
// every other table in dependency order, merge media, assemble the
// output archive, and validate it.
//
// Grounded on the teacher's cyclic-ownership-free one-shot calls
// (internal/memory/service.go's Service methods take everything they
// need as arguments and return a result or an error, never holding a
// handle back to a caller) and on steveyegge-beads' "read everything,
// decide, write everything" pipeline shape.
package merge

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/backupmerge/backupmerge/internal/archive"
	"github.com/backupmerge/backupmerge/internal/dbsession"
	"github.com/backupmerge/backupmerge/internal/idmap"
	"github.com/backupmerge/backupmerge/internal/locationmerge"
	"github.com/backupmerge/backupmerge/internal/logging"
	"github.com/backupmerge/backupmerge/internal/media"
	"github.com/backupmerge/backupmerge/internal/mergeerr"
	"github.com/backupmerge/backupmerge/internal/mergetrace"
	"github.com/backupmerge/backupmerge/internal/rowmerge"
	"github.com/backupmerge/backupmerge/internal/schema"
	"github.com/backupmerge/backupmerge/internal/validate"
)

var log = logging.GetLogger("merge")

// defaultSizeLimitBytes is the resource cap from §5 when the caller
// doesn't override it.
const defaultSizeLimitBytes = 200 * 1024 * 1024

// Code re-exports the error taxonomy for callers that only import this
// package.
type Code = mergeerr.Code

const (
	InputInvalid  = mergeerr.InputInvalid
	BadContainer  = mergeerr.BadContainer
	BadManifest   = mergeerr.BadManifest
	BadDatabase   = mergeerr.BadDatabase
	InputTooLarge = mergeerr.InputTooLarge
	MergeConflict = mergeerr.MergeConflict
	Cancelled     = mergeerr.Cancelled
	Internal      = mergeerr.Internal
)

// IncludeFlags is the data-type configuration → table mask from §6.4.
type IncludeFlags struct {
	Notes       bool
	Bookmarks   bool
	Highlights  bool
	Tags        bool
	InputFields bool
	Playlists   bool
}

// DefaultIncludeFlags enables every data type, matching §6.3's default.
func DefaultIncludeFlags() IncludeFlags {
	return IncludeFlags{Notes: true, Bookmarks: true, Highlights: true, Tags: true, InputFields: true, Playlists: true}
}

// gatedTables maps each table §6.4 gates to the flag guarding it.
// Location, LastModified, and MigrationHistory are absent on purpose —
// they're infrastructural and always merged, as is any table the schema
// model doesn't recognize (§3.3's generic fallback is not a feature a
// user can opt out of).
var gatedTables = map[string]func(IncludeFlags) bool{
	"Note":                func(f IncludeFlags) bool { return f.Notes },
	"Bookmark":            func(f IncludeFlags) bool { return f.Bookmarks },
	"Mark":                func(f IncludeFlags) bool { return f.Highlights },
	"BlockRange":          func(f IncludeFlags) bool { return f.Highlights },
	"Tag":                 func(f IncludeFlags) bool { return f.Tags },
	"TagMap":              func(f IncludeFlags) bool { return f.Tags },
	"InputField":          func(f IncludeFlags) bool { return f.InputFields },
	"Item":                func(f IncludeFlags) bool { return f.Playlists },
	"ItemMarker":          func(f IncludeFlags) bool { return f.Playlists },
	"ItemLocationMap":     func(f IncludeFlags) bool { return f.Playlists },
	"ItemMediaMap":        func(f IncludeFlags) bool { return f.Playlists },
	"MarkerBibleVerseMap": func(f IncludeFlags) bool { return f.Playlists },
	"MarkerParagraphMap":  func(f IncludeFlags) bool { return f.Playlists },
	"Media":               func(f IncludeFlags) bool { return f.Playlists },
	"Accuracy":            func(f IncludeFlags) bool { return f.Playlists },
}

// Config is the engine's input, independent of the viper-backed CLI
// config (§6.3).
type Config struct {
	Include        IncludeFlags
	Progress       func(message string, progress int)
	Cancel         <-chan struct{}
	SizeLimitBytes int64
	// Trace receives every merge-trace event (§9); nil logs them at debug
	// level via logging.TraceSink("merge"). Pass mergetrace.Discard to
	// drop them.
	Trace mergetrace.Sink
}

// Result is the engine's output on success (§6.3).
type Result struct {
	Archive    []byte
	Filename   string
	Validation validate.Report
}

// Run executes the nine-step pipeline of §4.8. A failure during reading
// or validating a source aborts the run with no partial output (§7); the
// only per-row failure that aborts mid-merge is a verified-failed
// first-occurrence Location insert (surfaced as MergeConflict).
func Run(ctx context.Context, sources [][]byte, cfg Config) (Result, error) {
	runID := uuid.New().String()
	runLog := log.With("run_id", runID)

	if len(sources) < 2 {
		return Result{}, mergeerr.New(mergeerr.InputInvalid, "merge requires at least two sources, got %d", len(sources))
	}

	sizeLimit := cfg.SizeLimitBytes
	if sizeLimit <= 0 {
		sizeLimit = defaultSizeLimitBytes
	}
	var totalSize int64
	for _, s := range sources {
		totalSize += int64(len(s))
	}
	if totalSize > sizeLimit {
		return Result{}, mergeerr.New(mergeerr.InputTooLarge, "combined input %d bytes exceeds limit %d bytes", totalSize, sizeLimit)
	}

	ctx, cancel := withCancelChannel(ctx, cfg.Cancel)
	defer cancel()

	progress := noopProgress
	if cfg.Progress != nil {
		progress = cfg.Progress
	}
	trace := logging.TraceSink("merge")
	if cfg.Trace != nil {
		trace = cfg.Trace
	}
	report := func(msg string, pct int) {
		runLog.Debug(msg, "progress", pct)
		progress(msg, pct)
	}

	// Step 1: open every source archive.
	readers := make([]*archive.Reader, len(sources))
	manifests := make([]archive.Manifest, len(sources))
	for i, data := range sources {
		r, err := archive.Open(data)
		if err != nil {
			return Result{}, mergeerr.Wrap(mergeerr.BadContainer, err)
		}
		readers[i] = r

		m, err := archive.ParseManifest(r.Manifest())
		if err != nil {
			return Result{}, mergeerr.Wrap(mergeerr.BadManifest, err)
		}
		manifests[i] = m
	}
	report("opened sources", 10)

	if err := ctx.Err(); err != nil {
		return Result{}, mergeerr.Wrap(mergeerr.Cancelled, err)
	}

	// Step 2: open a session per source database plus an empty target.
	dbSessions := make([]*dbsession.Session, len(sources))
	defer closeAllSessions(dbSessions)
	for i, r := range readers {
		s, err := dbsession.Open(r.Database())
		if err != nil {
			return Result{}, mergeerr.Wrap(mergeerr.BadDatabase, err)
		}
		dbSessions[i] = s
	}

	target, err := dbsession.OpenEmpty()
	if err != nil {
		return Result{}, mergeerr.Wrap(mergeerr.Internal, err)
	}
	defer target.Close()

	if err := requireTables(dbSessions[0]); err != nil {
		return Result{}, err
	}

	// Step 3: copy all CREATE TABLE statements from source 0 verbatim.
	if err := copySchema(dbSessions[0], target); err != nil {
		return Result{}, mergeerr.Wrap(mergeerr.BadDatabase, err)
	}
	report("copied schema", 20)

	// Step 4: fresh ID mapping registry for this run.
	reg := idmap.NewRegistry()

	if err := ctx.Err(); err != nil {
		return Result{}, mergeerr.Wrap(mergeerr.Cancelled, err)
	}

	// Step 5: Location, if any source carries it.
	if hasAny, err := anySourceHasTable(dbSessions, "Location"); err != nil {
		return Result{}, mergeerr.Wrap(mergeerr.Internal, err)
	} else if hasAny {
		if _, err := locationmerge.Merge(ctx, target, dbSessions, reg, trace); err != nil {
			return Result{}, err
		}
	}
	report("merged location", 35)

	// Step 6: every other known table, in dependency order, gated by
	// cfg.Include, then any tables the schema model doesn't know about
	// (§3.3's generic fallback).
	for _, spec := range schema.DependencyOrder {
		if spec.Name == "Location" {
			continue // merged by its own pass in step 5
		}
		if gate, ok := gatedTables[spec.Name]; ok && !gate(cfg.Include) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Result{}, mergeerr.Wrap(mergeerr.Cancelled, err)
		}
		if _, err := rowmerge.MergeTable(ctx, target, dbSessions, spec, reg, trace); err != nil {
			return Result{}, err
		}
	}

	extras, err := unknownTables(dbSessions[0])
	if err != nil {
		return Result{}, mergeerr.Wrap(mergeerr.Internal, err)
	}
	for _, name := range extras {
		spec, err := genericSpecFor(dbSessions[0], name)
		if err != nil {
			return Result{}, mergeerr.Wrap(mergeerr.Internal, err)
		}
		if _, err := rowmerge.MergeTable(ctx, target, dbSessions, spec, reg, trace); err != nil {
			return Result{}, err
		}
	}
	report("merged tables", 70)

	if err := ctx.Err(); err != nil {
		return Result{}, mergeerr.Wrap(mergeerr.Cancelled, err)
	}

	// Step 7: media.
	mediaSources := make([][]archive.Entry, len(readers))
	for i, r := range readers {
		mediaSources[i] = r.Entries()
	}
	mergedMedia, mediaStats, err := media.Merge(ctx, mediaSources)
	if err != nil {
		return Result{}, mergeerr.Wrap(mergeerr.Internal, err)
	}
	runLog.Info("media merged", "kept", mediaStats.Kept, "dropped_by_hash", mediaStats.DroppedByHash, "dropped_by_name", mediaStats.DroppedByName)
	report("merged media", 85)

	// Step 8: export, manifest, assemble.
	dbBytes, err := target.Export()
	if err != nil {
		return Result{}, mergeerr.Wrap(mergeerr.Internal, err)
	}

	now := time.Now()
	manifest := archive.BuildManifest(mergedDeviceName, schemaVersion(manifests), dbBytes, now)
	manifestBytes, err := manifest.Bytes()
	if err != nil {
		return Result{}, mergeerr.Wrap(mergeerr.Internal, err)
	}

	w := archive.NewWriter()
	w.SetDatabase(dbBytes)
	w.SetManifest(manifestBytes)
	for _, e := range mergedMedia {
		w.AddEntry(e.Name, e.Data)
	}
	archiveBytes, err := w.Bytes()
	if err != nil {
		return Result{}, mergeerr.Wrap(mergeerr.Internal, err)
	}
	report("assembled archive", 95)

	// Step 9: integrity validation.
	validation, err := validate.Run(target, reg)
	if err != nil {
		return Result{}, mergeerr.Wrap(mergeerr.Internal, err)
	}
	report("validated", 100)

	return Result{
		Archive:    archiveBytes,
		Filename:   fmt.Sprintf("merged-library-%s.jwlibrary", now.Format("2006-01-02")),
		Validation: validation,
	}, nil
}

func noopProgress(string, int) {}

func withCancelChannel(parent context.Context, cancelCh <-chan struct{}) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	if cancelCh == nil {
		return ctx, cancel
	}
	go func() {
		select {
		case <-cancelCh:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func closeAllSessions(sessions []*dbsession.Session) {
	for _, s := range sessions {
		if s != nil {
			if err := s.Close(); err != nil {
				log.Warn("failed to close session", "error", err)
			}
		}
	}
}

func requireTables(src *dbsession.Session) error {
	exists, err := src.TableExists("Location")
	if err != nil {
		return mergeerr.Wrap(mergeerr.Internal, err)
	}
	if !exists {
		return mergeerr.New(mergeerr.BadDatabase, "first source is missing required table Location")
	}
	return nil
}

func copySchema(src, dst *dbsession.Session) error {
	tables, err := src.Tables()
	if err != nil {
		return err
	}
	for _, t := range tables {
		ddl, err := src.TableDDL(t)
		if err != nil {
			return err
		}
		if ddl == "" {
			continue
		}
		if err := dst.CreateTable(ddl); err != nil {
			return err
		}
	}
	return nil
}

func anySourceHasTable(sessions []*dbsession.Session, table string) (bool, error) {
	for _, s := range sessions {
		exists, err := s.TableExists(table)
		if err != nil {
			return false, err
		}
		if exists {
			return true, nil
		}
	}
	return false, nil
}

func knownTableNames() map[string]bool {
	m := map[string]bool{"Location": true}
	for _, t := range schema.DependencyOrder {
		m[t.Name] = true
	}
	return m
}

func unknownTables(src *dbsession.Session) ([]string, error) {
	tables, err := src.Tables()
	if err != nil {
		return nil, err
	}
	known := knownTableNames()
	var out []string
	for _, t := range tables {
		if !known[t] {
			out = append(out, t)
		}
	}
	return out, nil
}

func genericSpecFor(src *dbsession.Session, table string) (schema.TableSpec, error) {
	cols, err := src.Columns(table)
	if err != nil {
		return schema.TableSpec{}, err
	}
	var names []string
	pk := ""
	for _, c := range cols {
		if c.PrimaryKey {
			pk = c.Name
			continue
		}
		names = append(names, c.Name)
	}
	spec := schema.GenericSpec(table, names)
	spec.PrimaryKey = pk
	return spec, nil
}

// mergedDeviceName is the output manifest's device name (§6.2 example).
const mergedDeviceName = "Merged Library"

func schemaVersion(manifests []archive.Manifest) int {
	if len(manifests) > 0 {
		return manifests[0].UserDataBackup.SchemaVersion
	}
	return 0
}

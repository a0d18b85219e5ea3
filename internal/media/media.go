package media

import (
	"context"
	"crypto/sha256"

	"golang.org/x/sync/errgroup"

	"github.com/backupmerge/backupmerge/internal/archive"
	"github.com/backupmerge/backupmerge/internal/logging"
)

var log = logging.GetLogger("media")

// Stats summarizes one merge run's media deduplication.
type Stats struct {
	Kept            int
	DroppedByHash   int // same content, already seen
	DroppedByName   int // different content, name already used by a different hash
}

// hashed pairs a source entry with its content hash, computed
// concurrently with reading the next entry (§5 suspension points allow
// I/O and hashing to overlap without touching table/row ordering).
type hashed struct {
	entry archive.Entry
	sum   [32]byte
}

// Merge walks archive entries from every source in source order and
// keeps the first occurrence of each distinct content hash. On a name
// collision between two different contents, the first writer wins and
// the second is dropped (§4.7).
func Merge(ctx context.Context, sources [][]archive.Entry) ([]archive.Entry, Stats, error) {
	var stats Stats
	seenHash := make(map[[32]byte]bool)
	seenName := make(map[string][32]byte)
	var out []archive.Entry

	for srcIdx, entries := range sources {
		hashedEntries, err := hashEntries(ctx, entries)
		if err != nil {
			return nil, stats, err
		}

		for _, h := range hashedEntries {
			if seenHash[h.sum] {
				stats.DroppedByHash++
				continue
			}
			if prevSum, nameUsed := seenName[h.entry.Name]; nameUsed && prevSum != h.sum {
				log.Warn("dropping media entry: name collision with different content",
					"name", h.entry.Name, "source_index", srcIdx)
				stats.DroppedByName++
				continue
			}

			seenHash[h.sum] = true
			seenName[h.entry.Name] = h.sum
			out = append(out, h.entry)
			stats.Kept++
		}
	}

	return out, stats, nil
}

// hashEntries computes the content hash of every entry concurrently via
// an errgroup, one goroutine per entry with no limit on how many run at
// once; every entry's bytes are already in memory. Results keep the
// input order.
func hashEntries(ctx context.Context, entries []archive.Entry) ([]hashed, error) {
	out := make([]hashed, len(entries))

	g, _ := errgroup.WithContext(ctx)
	for i, e := range entries {
		i, e := i, e
		g.Go(func() error {
			out[i] = hashed{entry: e, sum: sha256.Sum256(e.Data)}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

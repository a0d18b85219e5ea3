// Package media implements the Media Merger (§4.7): content-addressed
// deduplication of the non-database archive entries across source
// archives. Identity is the SHA-256 of an entry's bytes, not its name —
// two entries with the same name but different content keep the first
// and silently drop the second, a documented limitation carried over
// from the reference application (§4.7, §9).
package media

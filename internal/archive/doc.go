// Package archive implements the Archive Reader/Writer collaborator
// (§4.1, §6.1): a ZIP-compatible container with DEFLATE compression
// holding a JSON manifest, a SQLite database blob, and any number of
// opaque media entries. The container format itself is treated as an
// external collaborator in the specification ("contract only"); this
// package is the thinnest possible wrapper around the standard library's
// archive/zip, since no repo in the retrieval pack reaches for a
// third-party zip library and the format is explicitly out of the merge
// engine's core scope.
package archive

package archive

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
)

const (
	manifestEntryName = "manifest.json"
	databaseEntryName = "userData.db"
)

// ErrBadContainer is returned when a container cannot be read or is
// missing a required entry (§4.1, error taxonomy BadContainer in §7).
type ErrBadContainer struct {
	Reason string
}

func (e *ErrBadContainer) Error() string {
	return fmt.Sprintf("bad container: %s", e.Reason)
}

// Reader exposes the contents of an opened archive.
type Reader struct {
	manifest []byte
	database []byte
	entries  map[string][]byte
	order    []string
}

// Open reads a zip-compressed archive from bytes and extracts the
// manifest, database, and any media entries. It fails with
// ErrBadContainer if the manifest or database entry is absent, or if the
// bytes are not a valid zip stream.
func Open(data []byte) (*Reader, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, &ErrBadContainer{Reason: fmt.Sprintf("malformed container: %v", err)}
	}

	r := &Reader{entries: make(map[string][]byte)}

	for _, f := range zr.File {
		b, err := readZipFile(f)
		if err != nil {
			return nil, &ErrBadContainer{Reason: fmt.Sprintf("failed reading entry %s: %v", f.Name, err)}
		}
		switch f.Name {
		case manifestEntryName:
			r.manifest = b
		case databaseEntryName:
			r.database = b
		default:
			r.entries[f.Name] = b
			r.order = append(r.order, f.Name)
		}
	}

	if r.manifest == nil {
		return nil, &ErrBadContainer{Reason: "missing manifest.json"}
	}
	if r.database == nil {
		return nil, &ErrBadContainer{Reason: "missing userData.db"}
	}

	return r, nil
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// Manifest returns the raw manifest.json bytes.
func (r *Reader) Manifest() []byte { return r.manifest }

// Database returns the raw userData.db bytes.
func (r *Reader) Database() []byte { return r.database }

// Entries yields every archive entry other than the manifest and
// database, in the order they appeared in the zip's central directory
// (source order, §4.7).
func (r *Reader) Entries() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, Entry{Name: name, Data: r.entries[name]})
	}
	return out
}

// Entry is one opaque media blob from an archive.
type Entry struct {
	Name string
	Data []byte
}

// Writer assembles a new archive from a database blob, a manifest, and a
// set of media entries.
type Writer struct {
	manifest []byte
	database []byte
	entries  []Entry
}

// NewWriter returns an empty Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// SetManifest sets the manifest.json bytes.
func (w *Writer) SetManifest(b []byte) { w.manifest = b }

// SetDatabase sets the userData.db bytes.
func (w *Writer) SetDatabase(b []byte) { w.database = b }

// AddEntry appends a media entry. Order is preserved in the output zip.
func (w *Writer) AddEntry(name string, b []byte) {
	w.entries = append(w.entries, Entry{Name: name, Data: b})
}

// Bytes produces the compressed container.
func (w *Writer) Bytes() ([]byte, error) {
	if w.manifest == nil {
		return nil, &ErrBadContainer{Reason: "missing manifest.json"}
	}
	if w.database == nil {
		return nil, &ErrBadContainer{Reason: "missing userData.db"}
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	if err := writeEntry(zw, manifestEntryName, w.manifest); err != nil {
		return nil, err
	}
	if err := writeEntry(zw, databaseEntryName, w.database); err != nil {
		return nil, err
	}
	for _, e := range w.entries {
		if err := writeEntry(zw, e.Name, e.Data); err != nil {
			return nil, err
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}

func writeEntry(zw *zip.Writer, name string, data []byte) error {
	hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
	fw, err := zw.CreateHeader(hdr)
	if err != nil {
		return fmt.Errorf("failed to create entry %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("failed to write entry %s: %w", name, err)
	}
	return nil
}

package archive

import "testing"

func buildArchive(t *testing.T, extra map[string][]byte) []byte {
	t.Helper()
	w := NewWriter()
	w.SetManifest([]byte(`{"name":"test"}`))
	w.SetDatabase([]byte("sqlite-bytes"))
	for name, data := range extra {
		w.AddEntry(name, data)
	}
	b, err := w.Bytes()
	if err != nil {
		t.Fatalf("Bytes() failed: %v", err)
	}
	return b
}

func TestRoundTrip(t *testing.T) {
	data := buildArchive(t, map[string][]byte{"cover.jpg": []byte("jpegdata")})

	r, err := Open(data)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if string(r.Manifest()) != `{"name":"test"}` {
		t.Errorf("unexpected manifest: %s", r.Manifest())
	}
	if string(r.Database()) != "sqlite-bytes" {
		t.Errorf("unexpected database: %s", r.Database())
	}
	entries := r.Entries()
	if len(entries) != 1 || entries[0].Name != "cover.jpg" {
		t.Errorf("unexpected entries: %+v", entries)
	}
}

func TestBytesMissingManifest(t *testing.T) {
	w := NewWriter()
	w.SetDatabase([]byte("sqlite-bytes"))
	data, err := w.Bytes()
	if _, ok := err.(*ErrBadContainer); !ok {
		t.Fatalf("expected ErrBadContainer from Bytes(), got %v (data=%v)", err, data)
	}
}

func TestOpenMalformedContainer(t *testing.T) {
	_, err := Open([]byte("not a zip file"))
	if _, ok := err.(*ErrBadContainer); !ok {
		t.Fatalf("expected ErrBadContainer, got %v", err)
	}
}

func TestEntriesExcludeManifestAndDatabase(t *testing.T) {
	data := buildArchive(t, map[string][]byte{"a.jpg": []byte("1"), "b.jpg": []byte("2")})
	r, err := Open(data)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	entries := r.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 media entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Name == manifestEntryName || e.Name == databaseEntryName {
			t.Errorf("entries should exclude %s", e.Name)
		}
	}
}

package api

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/backupmerge/backupmerge/internal/testutil"
	"github.com/backupmerge/backupmerge/pkg/config"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Logging.Level = "error"
	cfg.RestAPI.CORS = false
	return cfg
}

func TestHealthHandler(t *testing.T) {
	s := NewServer(testConfig())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success=true")
	}
}

func buildMultipartRequest(t *testing.T, path string, archives [][]byte) *http.Request {
	t.Helper()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for i, a := range archives {
		part, err := mw.CreateFormFile("sources", "backup.jwlibrary")
		if err != nil {
			t.Fatalf("CreateFormFile %d: %v", i, err)
		}
		if _, err := part.Write(a); err != nil {
			t.Fatalf("write part %d: %v", i, err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestMergeHandlerRequiresTwoSources(t *testing.T) {
	s := NewServer(testConfig())

	fx := testutil.NewArchiveFixture(t, "Device A")
	fx.InsertLocation(1, 19, 1, "nwt")
	a := fx.Build()

	req := buildMultipartRequest(t, "/api/v1/merge", [][]byte{a})
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a single source, got %d: %s", w.Code, w.Body.String())
	}
}

func TestMergeHandlerReturnsArchive(t *testing.T) {
	s := NewServer(testConfig())

	fxA := testutil.NewArchiveFixture(t, "Device A")
	fxA.InsertLocation(1, 19, 1, "nwt")
	a := fxA.Build()

	fxB := testutil.NewArchiveFixture(t, "Device B")
	fxB.InsertLocation(1, 19, 2, "nwt")
	b := fxB.Build()

	req := buildMultipartRequest(t, "/api/v1/merge", [][]byte{a, b})
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w.Body.Len() == 0 {
		t.Fatal("expected a non-empty archive body")
	}
	if got := w.Header().Get("Content-Disposition"); got == "" {
		t.Error("expected a Content-Disposition header")
	}
}

func TestValidateHandlerReturnsReport(t *testing.T) {
	s := NewServer(testConfig())

	fxA := testutil.NewArchiveFixture(t, "Device A")
	fxA.InsertLocation(1, 19, 1, "nwt")
	a := fxA.Build()

	fxB := testutil.NewArchiveFixture(t, "Device B")
	fxB.InsertLocation(1, 19, 2, "nwt")
	b := fxB.Build()

	req := buildMultipartRequest(t, "/api/v1/validate", [][]byte{a, b})
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success=true")
	}
}

func TestAPIKeyAuthRejectsMissingKey(t *testing.T) {
	cfg := testConfig()
	cfg.RestAPI.APIKey = "secret"
	s := NewServer(cfg)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/merge", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestAPIKeyAuthAllowsHealthWithoutKey(t *testing.T) {
	cfg := testConfig()
	cfg.RestAPI.APIKey = "secret"
	s := NewServer(cfg)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

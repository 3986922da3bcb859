package preflight_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"boletodesk/internal/mockbackend"
	"boletodesk/internal/preflight"
	"boletodesk/internal/services"
	"boletodesk/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := preflight.CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := preflight.CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if !strings.Contains(result.Detail, "does not exist") {
		t.Fatalf("unexpected detail: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := preflight.CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckBackend(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/fidcs" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()
	base := srv.URL + "/api/v1/"

	cases := []struct {
		name    string
		baseURL string
		token   string
		passed  bool
		detail  string
	}{
		{name: "reachable", baseURL: base, token: "good", passed: true, detail: "Reachable"},
		{name: "rejected token", baseURL: base, token: "bad", detail: "auth failed"},
		{name: "no token", baseURL: base, detail: "not logged in"},
		{name: "no url", token: "good", detail: "missing url"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := preflight.CheckBackend(context.Background(), tc.baseURL, tc.token)
			if result.Passed != tc.passed {
				t.Fatalf("passed = %v, want %v (%s)", result.Passed, tc.passed, result.Detail)
			}
			if !strings.Contains(result.Detail, tc.detail) {
				t.Fatalf("detail = %q, want it to contain %q", result.Detail, tc.detail)
			}
		})
	}
}

func TestRunAllReportsEveryCheck(t *testing.T) {
	mb := testsupport.StartMockBackend(t)
	cfg := testsupport.NewConfig(t, testsupport.WithBackendURL(mb.BaseURL), testsupport.WithToken(mb.Token))
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	results := preflight.RunAll(context.Background(), cfg)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for _, result := range results {
		if !result.Passed {
			t.Fatalf("%s failed: %s", result.Name, result.Detail)
		}
	}
	if preflight.RunAll(context.Background(), nil) != nil {
		t.Fatal("expected nil results for nil config")
	}
}

func TestCheckUploadsAcceptsValidFiles(t *testing.T) {
	dir := t.TempDir()
	pdf := testsupport.WritePDF(t, dir, "lote.pdf", mockbackend.DocumentFields{InvoiceNumber: "1"}, mockbackend.DocumentFields{InvoiceNumber: "2"})
	xml := testsupport.WriteNFe(t, dir, "nota.xml", mockbackend.NoteFields{InvoiceNumber: "1"})

	files, err := preflight.CheckUploads(preflight.UploadCollection, []string{pdf})
	if err != nil {
		t.Fatalf("CheckUploads: %v", err)
	}
	if len(files) != 1 || files[0].Pages != 2 {
		t.Fatalf("unexpected files: %+v", files)
	}

	files, err = preflight.CheckUploads(preflight.UploadFiscal, []string{xml, pdf})
	if err != nil {
		t.Fatalf("CheckUploads fiscal: %v", err)
	}
	if len(files) != 2 || files[0].Pages != 0 {
		t.Fatalf("unexpected fiscal files: %+v", files)
	}
}

func TestCheckUploadsReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	xml := testsupport.WriteNFe(t, dir, "nota.xml", mockbackend.NoteFields{InvoiceNumber: "1"})
	empty := testsupport.WriteFile(t, filepath.Join(dir, "empty.pdf"), nil)
	garbage := testsupport.WriteFile(t, filepath.Join(dir, "garbage.pdf"), []byte("definitely not a pdf"))
	missing := filepath.Join(dir, "missing.pdf")

	_, err := preflight.CheckUploads(preflight.UploadCollection, []string{xml, empty, garbage, missing})
	if err == nil {
		t.Fatal("expected preflight failure")
	}
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	msg := err.Error()
	for _, want := range []string{"unsupported extension", "empty file", "invalid pdf", "missing.pdf", "4 collection file(s) rejected"} {
		if !strings.Contains(msg, want) {
			t.Fatalf("error %q missing %q", msg, want)
		}
	}
}

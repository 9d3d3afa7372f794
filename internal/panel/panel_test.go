package panel

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandler_Embedded(t *testing.T) {
	handler := Handler("")

	tests := []struct {
		path     string
		contains string
		cache    string
	}{
		{path: "/", contains: "<!DOCTYPE html>", cache: "no-cache, must-revalidate"},
		{path: "/app.js", contains: "devices.snapshot", cache: "no-cache"},
		{path: "/manifest.json", contains: "Gray Logic Panel", cache: "no-cache"},
		{path: "/style.css", contains: ".badge", cache: "no-cache"},
		// Client-side routes fall back to index.html.
		{path: "/hubs/h1", contains: "<!DOCTYPE html>", cache: "no-cache, must-revalidate"},
		{path: "/nonexistent", contains: "<!DOCTYPE html>", cache: "no-cache, must-revalidate"},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := get(t, handler, tt.path)
			if w.Code != http.StatusOK {
				t.Fatalf("GET %s: status %d, want 200", tt.path, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.contains) {
				t.Errorf("GET %s: body missing %q", tt.path, tt.contains)
			}
			if got := w.Header().Get("Cache-Control"); got != tt.cache {
				t.Errorf("GET %s: Cache-Control = %q, want %q", tt.path, got, tt.cache)
			}
		})
	}
}

func TestHandler_FilesystemMode(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte(`<!DOCTYPE html><html><body>dev panel</body></html>`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "app.js"), []byte("console.log('dev')"), 0644); err != nil {
		t.Fatal(err)
	}

	handler := Handler(dir)

	if w := get(t, handler, "/"); !strings.Contains(w.Body.String(), "dev panel") {
		t.Errorf("GET /: expected filesystem index, got %q", w.Body.String())
	}
	if w := get(t, handler, "/app.js"); !strings.Contains(w.Body.String(), "console.log('dev')") {
		t.Errorf("GET /app.js: expected filesystem asset, got %q", w.Body.String())
	}
	if w := get(t, handler, "/deep/route"); !strings.Contains(w.Body.String(), "dev panel") {
		t.Error("filesystem SPA fallback did not serve index.html")
	}
}

func TestHandler_InvalidDirFallsBackToEmbed(t *testing.T) {
	handler := Handler("/nonexistent/dir/that/does/not/exist")

	w := get(t, handler, "/")
	if w.Code != http.StatusOK {
		t.Errorf("GET /: status %d, want 200", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Gray Logic Panel") {
		t.Error("did not fall back to embedded index.html")
	}
}

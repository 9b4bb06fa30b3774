package testsupport

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteDocument drops a fake document file at the target path, creating
// parent directories as needed. Used to seed inbox directories in tests.
func WriteDocument(t testing.TB, path string, content string) {
	t.Helper()

	if content == "" {
		content = "%PDF-1.7\ntest document\n"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

package storage

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"docflow/internal/extraction"
	"docflow/internal/services"
)

// Format selects the on-disk representation of a saved extraction result.
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// Writer saves extraction results under a base directory.
type Writer struct {
	dir string
}

// NewWriter creates a Writer rooted at dir. The directory must already exist.
func NewWriter(dir string) (*Writer, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "new writer", "output directory", err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrConfiguration, "storage", "new writer",
			fmt.Sprintf("%s is not a directory", dir), nil)
	}
	return &Writer{dir: dir}, nil
}

// Save writes the result in the given format and returns the final path.
func (w *Writer) Save(result *extraction.Result, format Format) (string, error) {
	if result == nil || result.DocumentID == "" {
		return "", services.Wrap(services.ErrValidation, "storage", "save", "result has no document id", nil)
	}

	var (
		content []byte
		err     error
	)
	switch format {
	case FormatJSON:
		content, err = json.MarshalIndent(result, "", "  ")
	case FormatCSV:
		content, err = encodeCSV(result)
	default:
		return "", services.Wrap(services.ErrValidation, "storage", "save",
			fmt.Sprintf("unknown format %q", format), nil)
	}
	if err != nil {
		return "", services.Wrap(services.ErrTransient, "storage", "save", "encode "+string(format), err)
	}

	path := filepath.Join(w.dir, sanitizeName(result.DocumentID)+"."+string(format))
	if err := writeAtomic(path, content); err != nil {
		return "", services.Wrap(services.ErrTransient, "storage", "save", "write "+path, err)
	}
	return path, nil
}

func encodeCSV(result *extraction.Result) ([]byte, error) {
	var sb strings.Builder
	cw := csv.NewWriter(&sb)
	if err := cw.Write([]string{"name", "value", "confidence"}); err != nil {
		return nil, err
	}
	for _, f := range result.Fields {
		record := []string{f.Name, f.Value, strconv.FormatFloat(f.Confidence, 'f', -1, 64)}
		if err := cw.Write(record); err != nil {
			return nil, err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return nil, err
	}
	return []byte(sb.String()), nil
}

// writeAtomic stages content in a temp file next to the target and renames it
// into place. The temp file lives in the same directory so the rename never
// crosses a filesystem boundary.
func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

// sanitizeName strips path separators from a document id so it maps to a
// single file name.
func sanitizeName(id string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", string(filepath.Separator), "_")
	return replacer.Replace(id)
}

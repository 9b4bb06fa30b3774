package storage

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docflow/internal/extraction"
	"docflow/internal/services"
)

func sampleResult() *extraction.Result {
	return &extraction.Result{
		DocumentID: "doc-7",
		Fields: []extraction.Field{
			{Name: "invoice_number", Value: "INV-42", Confidence: 95.5},
			{Name: "total", Value: "1,200.00", Confidence: 80},
		},
		LineItemCount: 3,
		TotalAmount:   1200,
	}
}

func TestSaveJSONRoundTrip(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	path, err := w.Save(sampleResult(), FormatJSON)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if filepath.Base(path) != "doc-7.json" {
		t.Fatalf("path = %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var got extraction.Result
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got.DocumentID != "doc-7" || len(got.Fields) != 2 || got.TotalAmount != 1200 {
		t.Fatalf("round trip = %+v", got)
	}
}

func TestSaveCSVQuotesCommas(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	path, err := w.Save(sampleResult(), FormatCSV)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("records = %d, want header + 2 rows", len(records))
	}
	if records[0][0] != "name" {
		t.Fatalf("header = %v", records[0])
	}
	if records[2][1] != "1,200.00" {
		t.Fatalf("comma value not preserved: %v", records[2])
	}
}

func TestSaveOverwritesAtomically(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	result := sampleResult()
	if _, err := w.Save(result, FormatJSON); err != nil {
		t.Fatalf("first save: %v", err)
	}
	result.Fields[0].Value = "INV-43"
	if _, err := w.Save(result, FormatJSON); err != nil {
		t.Fatalf("second save: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("leftover files: %v", entries)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "doc-7.json"))
	if !strings.Contains(string(data), "INV-43") {
		t.Fatal("overwrite did not land")
	}
}

func TestSaveSanitizesDocumentID(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	result := sampleResult()
	result.DocumentID = "../escape/doc"
	path, err := w.Save(result, FormatJSON)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	rel, err := filepath.Rel(dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		t.Fatalf("path escaped output dir: %s", path)
	}
}

func TestSaveRejectsBadInput(t *testing.T) {
	w, err := NewWriter(t.TempDir())
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if _, err := w.Save(nil, FormatJSON); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("nil result err = %v", err)
	}
	if _, err := w.Save(sampleResult(), Format("parquet")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("unknown format err = %v", err)
	}
}

func TestNewWriterRequiresExistingDirectory(t *testing.T) {
	if _, err := NewWriter(filepath.Join(t.TempDir(), "missing")); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("err = %v, want configuration marker", err)
	}
}

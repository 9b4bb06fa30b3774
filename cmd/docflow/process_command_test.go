package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"docflow/internal/extraction"
	"docflow/internal/review"
	"docflow/internal/testsupport"
)

func newExtractionStub(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(extraction.Result{
			Fields: []extraction.Field{
				{Name: "invoice_number", Value: "INV-77", Confidence: 95},
				{Name: "total", Value: "240.00", Confidence: 81},
			},
			LineItemCount: 3,
			TotalAmount:   240,
		})
	}))
	t.Cleanup(server.Close)
	return server
}

func TestProcessCommandRunsPipeline(t *testing.T) {
	server := newExtractionStub(t)
	env := setupCLITestEnv(t, testsupport.WithExtractionEndpoint(server.URL))

	docPath := filepath.Join(t.TempDir(), "contract-7.pdf")
	testsupport.WriteDocument(t, docPath, "")

	out, _, err := runCLI(t, env.configPath, "process", docPath)
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	requireContains(t, out, "succeeded")
	requireContains(t, out, "extract")

	item, err := env.store.GetItemByDocument(context.Background(), "contract-7")
	if err != nil {
		t.Fatalf("GetItemByDocument: %v", err)
	}
	if item.Status != review.StatusPending {
		t.Fatalf("item status = %s", item.Status)
	}

	// Output files land in the configured output directory.
	for _, name := range []string{"contract-7.json", "contract-7.csv"} {
		if _, err := os.Stat(filepath.Join(env.cfg.Paths.OutputDir, name)); err != nil {
			t.Fatalf("output %s missing: %v", name, err)
		}
	}
}

func TestProcessCommandRejectsUnsupportedFile(t *testing.T) {
	server := newExtractionStub(t)
	env := setupCLITestEnv(t, testsupport.WithExtractionEndpoint(server.URL))

	docPath := filepath.Join(t.TempDir(), "notes.txt")
	testsupport.WriteDocument(t, docPath, "plain text")

	if _, _, err := runCLI(t, env.configPath, "process", docPath); err == nil {
		t.Fatal("expected error for unsupported file type")
	}
}

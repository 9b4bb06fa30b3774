package testsupport

import (
	"context"
	"testing"

	"docflow/internal/config"
	"docflow/internal/review"
)

// MustOpenStore opens a review store for the provided config and registers
// cleanup with the test lifecycle.
func MustOpenStore(t testing.TB, cfg *config.Config) *review.Store {
	t.Helper()

	store, err := review.Open(cfg)
	if err != nil {
		t.Fatalf("open review store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close review store: %v", err)
		}
	})
	return store
}

// MustCreateItem inserts a queue item with reasonable defaults and fails the
// test on error.
func MustCreateItem(t testing.TB, store *review.Store, documentID string) *review.Item {
	t.Helper()

	item, err := store.CreateItem(context.Background(), review.NewItem{
		DocumentID: documentID,
		Fields: []review.FieldInput{
			{Name: "invoice_number", Value: "INV-1", Confidence: 90},
			{Name: "total", Value: "100.00", Confidence: 75},
		},
		LineItemCount: 2,
		TotalAmount:   100,
	})
	if err != nil {
		t.Fatalf("create item %s: %v", documentID, err)
	}
	return item
}

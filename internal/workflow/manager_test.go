package workflow_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"docflow/internal/config"
	"docflow/internal/executor"
	"docflow/internal/extraction"
	"docflow/internal/review"
	"docflow/internal/services"
	"docflow/internal/testsupport"
	"docflow/internal/workflow"
)

type fakeExtractor func(ctx context.Context, documentID string, content []byte, mimeType string) (*extraction.Result, error)

func (f fakeExtractor) Extract(ctx context.Context, documentID string, content []byte, mimeType string) (*extraction.Result, error) {
	return f(ctx, documentID, content, mimeType)
}

func happyExtractor() fakeExtractor {
	return func(_ context.Context, documentID string, _ []byte, _ string) (*extraction.Result, error) {
		return &extraction.Result{
			DocumentID: documentID,
			Fields: []extraction.Field{
				{Name: "invoice_number", Value: "INV-42", Confidence: 92},
				{Name: "total", Value: "5000.00", Confidence: 48},
			},
			LineItemCount: 10,
			TotalAmount:   5000,
		}, nil
	}
}

func newTestManager(t *testing.T, cfg *config.Config, store *review.Store, ext fakeExtractor) *workflow.Manager {
	t.Helper()
	mgr, err := workflow.NewManagerWithExtractor(cfg, store, nil, ext)
	if err != nil {
		t.Fatalf("NewManagerWithExtractor: %v", err)
	}
	return mgr
}

func TestProcessDocumentEndToEnd(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := newTestManager(t, cfg, store, happyExtractor())

	path := filepath.Join(cfg.Paths.StagingDir, "invoice-9.pdf")
	testsupport.WriteDocument(t, path, "")

	result, err := mgr.ProcessDocument(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if result.Status != executor.RunSucceeded {
		t.Fatalf("run status = %s: %+v", result.Status, result.Steps)
	}
	for _, step := range []string{
		workflow.StepExtract,
		workflow.StepSaveJSON,
		workflow.StepSaveCSV,
		workflow.StepCreateReview,
		workflow.StepRecordMetrics,
	} {
		res, ok := result.Step(step)
		if !ok || res.Status != executor.StepSucceeded {
			t.Fatalf("step %s = %+v", step, res)
		}
	}

	for _, name := range []string{"invoice-9.json", "invoice-9.csv"} {
		if _, err := os.Stat(filepath.Join(cfg.Paths.OutputDir, name)); err != nil {
			t.Fatalf("output %s missing: %v", name, err)
		}
	}

	item, err := store.GetItemByDocument(context.Background(), "invoice-9")
	if err != nil {
		t.Fatalf("GetItemByDocument: %v", err)
	}
	if item.Status != review.StatusPending || len(item.Fields) != 2 {
		t.Fatalf("review item = %+v", item)
	}

	recorded, err := mgr.GetRunResult(result.RunID)
	if err != nil {
		t.Fatalf("GetRunResult: %v", err)
	}
	if recorded.RunID != result.RunID {
		t.Fatalf("recorded run = %s, want %s", recorded.RunID, result.RunID)
	}
}

func TestAutoAssignOnCreation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Review.AutoAssign = true
	store := testsupport.MustOpenStore(t, cfg)
	mgr := newTestManager(t, cfg, store, happyExtractor())

	path := filepath.Join(cfg.Paths.StagingDir, "invoice-11.pdf")
	testsupport.WriteDocument(t, path, "")

	result, err := mgr.ProcessDocument(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if result.Status != executor.RunSucceeded {
		t.Fatalf("run status = %s: %+v", result.Status, result.Steps)
	}

	item, err := store.GetItemByDocument(context.Background(), "invoice-11")
	if err != nil {
		t.Fatalf("GetItemByDocument: %v", err)
	}
	if item.Status != review.StatusInReview || item.AssignedTo == "" {
		t.Fatalf("item not auto-assigned: %+v", item)
	}
	if item.ClaimedAt == nil {
		t.Fatal("auto-assigned item has no claim time")
	}
}

func TestProcessDocumentTwiceKeepsOneReviewItem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := newTestManager(t, cfg, store, happyExtractor())

	path := filepath.Join(cfg.Paths.StagingDir, "invoice-9.pdf")
	testsupport.WriteDocument(t, path, "")

	for i := 0; i < 2; i++ {
		result, err := mgr.ProcessDocument(context.Background(), path)
		if err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if result.Status != executor.RunSucceeded {
			t.Fatalf("run %d status = %s: %+v", i, result.Status, result.Steps)
		}
	}

	items, err := store.List(context.Background(), review.ListOptions{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("items = %d, want 1", len(items))
	}
}

func TestExtractionFailureSkipsDownstream(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	boom := services.Wrap(services.ErrValidation, "extraction", "extract", "unreadable document", nil)
	mgr := newTestManager(t, cfg, store, func(context.Context, string, []byte, string) (*extraction.Result, error) {
		return nil, boom
	})

	path := filepath.Join(cfg.Paths.StagingDir, "broken.pdf")
	testsupport.WriteDocument(t, path, "")

	result, err := mgr.ProcessDocument(context.Background(), path)
	if err != nil {
		t.Fatalf("ProcessDocument: %v", err)
	}
	if result.Status != executor.RunFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if res, _ := result.Step(workflow.StepExtract); res.Status != executor.StepFailed {
		t.Fatalf("extract = %+v", res)
	}
	for _, step := range []string{workflow.StepSaveJSON, workflow.StepSaveCSV, workflow.StepCreateReview} {
		res, _ := result.Step(step)
		if res.Status != executor.StepSkipped || res.SkipReason != executor.SkipReasonDependencyFailed {
			t.Fatalf("step %s = %+v, want skipped(dependency failed)", step, res)
		}
	}

	if _, err := store.GetItemByDocument(context.Background(), "broken"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("review item created from failed run: %v", err)
	}
}

func TestSubmitDocumentReturnsRunHandle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	mgr := newTestManager(t, cfg, store, happyExtractor())

	runID, err := mgr.SubmitDocument(context.Background(), "api-doc", []byte("%PDF-1.7"), "application/pdf")
	if err != nil {
		t.Fatalf("SubmitDocument: %v", err)
	}
	if runID == "" {
		t.Fatal("empty run id")
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		result, err := mgr.GetRunResult(runID)
		if err == nil {
			if result.Status != executor.RunSucceeded {
				t.Fatalf("run status = %s: %+v", result.Status, result.Steps)
			}
			break
		}
		if !errors.Is(err, services.ErrNotFound) {
			t.Fatalf("GetRunResult: %v", err)
		}
		if time.Now().After(deadline) {
			t.Fatal("run never completed")
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, err := mgr.SubmitDocument(context.Background(), "", nil, "application/pdf"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("empty id err = %v", err)
	}
}

func TestManagerInboxLoopProcessesFiles(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Workflow.InboxPollInterval = 1
	store := testsupport.MustOpenStore(t, cfg)
	mgr := newTestManager(t, cfg, store, happyExtractor())

	testsupport.WriteDocument(t, filepath.Join(cfg.Paths.InboxDir, "inbox-doc.pdf"), "")
	testsupport.WriteDocument(t, filepath.Join(cfg.Paths.InboxDir, "notes.txt"), "not a document")

	if err := mgr.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer mgr.Stop()

	deadline := time.Now().Add(10 * time.Second)
	for {
		if _, err := store.GetItemByDocument(context.Background(), "inbox-doc"); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("inbox document never processed; last error: %v", mgr.LastError())
		}
		time.Sleep(25 * time.Millisecond)
	}

	// The staged file left the inbox; the unsupported file stays put.
	if _, err := os.Stat(filepath.Join(cfg.Paths.InboxDir, "inbox-doc.pdf")); !os.IsNotExist(err) {
		t.Fatalf("inbox file not staged: %v", err)
	}
	if _, err := os.Stat(filepath.Join(cfg.Paths.InboxDir, "notes.txt")); err != nil {
		t.Fatalf("unsupported file should remain in inbox: %v", err)
	}

	if err := mgr.Start(context.Background()); err == nil {
		t.Fatal("second Start should fail while running")
	}
}

package workflow

import (
	"context"
	"errors"
	"fmt"

	"docflow/internal/config"
	"docflow/internal/dag"
	"docflow/internal/extraction"
	"docflow/internal/review"
	"docflow/internal/services"
	"docflow/internal/storage"
)

// Step ids of the document pipeline.
const (
	StepExtract       = "extract"
	StepSaveJSON      = "save_json"
	StepSaveCSV       = "save_csv"
	StepCreateReview  = "create_review"
	StepRecordMetrics = "record_metrics"
)

// Resource tags shared across concurrent runs.
const (
	TagExtractionAPI = "extraction_api"
	TagReviewDB      = "review_db"
)

// Initial run context keys.
const (
	KeyDocumentID     = "document_id"
	KeyContent        = "content"
	KeyMimeType       = "mime_type"
	KeyCollectMetrics = "collect_metrics"
)

// PipelineDeps are the collaborators the document graph's actions close over.
type PipelineDeps struct {
	Extractor extraction.Extractor
	Writer    *storage.Writer
	Store     *review.Store
}

// BuildDocumentGraph constructs the per-document processing graph:
//
//	extract -> {save_json, save_csv} -> create_review
//	extract -> record_metrics (only when the run asks for metrics)
//
// The graph is built once and executed once per document; all run state
// lives in the executor's run context.
func BuildDocumentGraph(cfg *config.Config, deps PipelineDeps) (*dag.Graph, error) {
	if deps.Extractor == nil || deps.Writer == nil || deps.Store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "build graph", "missing pipeline dependencies", nil)
	}

	return dag.NewBuilder("document").
		Add(dag.StepSpec{
			ID:          StepExtract,
			Action:      extractAction(deps.Extractor),
			ResourceTag: TagExtractionAPI,
			MaxRetries:  cfg.Extraction.MaxRetries,
			Timeout:     cfg.Extraction.TimeoutSeconds,
			BackoffBase: cfg.Workflow.RetryBackoffBase,
		}).
		Add(dag.StepSpec{
			ID:          StepSaveJSON,
			Action:      saveAction(deps.Writer, storage.FormatJSON),
			DependsOn:   []string{StepExtract},
			MaxRetries:  cfg.Workflow.PersistMaxRetries,
			Timeout:     cfg.Workflow.PersistTimeoutSeconds,
			BackoffBase: cfg.Workflow.RetryBackoffBase,
		}).
		Add(dag.StepSpec{
			ID:          StepSaveCSV,
			Action:      saveAction(deps.Writer, storage.FormatCSV),
			DependsOn:   []string{StepExtract},
			MaxRetries:  cfg.Workflow.PersistMaxRetries,
			Timeout:     cfg.Workflow.PersistTimeoutSeconds,
			BackoffBase: cfg.Workflow.RetryBackoffBase,
		}).
		Add(dag.StepSpec{
			ID:          StepCreateReview,
			Action:      createReviewAction(deps.Store, cfg.Review.AutoAssign),
			DependsOn:   []string{StepSaveJSON, StepSaveCSV},
			ResourceTag: TagReviewDB,
			MaxRetries:  cfg.Workflow.PersistMaxRetries,
			BackoffBase: cfg.Workflow.RetryBackoffBase,
		}).
		Add(dag.StepSpec{
			ID:        StepRecordMetrics,
			Action:    metricsAction(deps.Store),
			DependsOn: []string{StepExtract},
			Condition: func(in dag.Inputs) bool {
				v, ok := in.Value(KeyCollectMetrics)
				enabled, isBool := v.(bool)
				return ok && isBool && enabled
			},
			ResourceTag: TagReviewDB,
		}).
		Build()
}

func extractAction(extractor extraction.Extractor) dag.Action {
	return func(ctx context.Context, in dag.Inputs) (any, error) {
		documentID, err := stringValue(in, KeyDocumentID)
		if err != nil {
			return nil, err
		}
		mimeType, err := stringValue(in, KeyMimeType)
		if err != nil {
			return nil, err
		}
		raw, ok := in.Value(KeyContent)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "workflow", StepExtract, "run context has no document content", nil)
		}
		content, ok := raw.([]byte)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "workflow", StepExtract, "document content is not bytes", nil)
		}
		return extractor.Extract(ctx, documentID, content, mimeType)
	}
}

func saveAction(writer *storage.Writer, format storage.Format) dag.Action {
	return func(_ context.Context, in dag.Inputs) (any, error) {
		result, err := extractionOutput(in)
		if err != nil {
			return nil, err
		}
		return writer.Save(result, format)
	}
}

// createReviewAction creates the queue item for a first-time document,
// optionally handing it straight to the least-loaded reviewer. When the
// document already has an item, the fresh extraction is applied over its
// unlocked fields instead.
func createReviewAction(store *review.Store, autoAssign bool) dag.Action {
	return func(ctx context.Context, in dag.Inputs) (any, error) {
		result, err := extractionOutput(in)
		if err != nil {
			return nil, err
		}

		fields := make([]review.FieldInput, 0, len(result.Fields))
		for _, f := range result.Fields {
			fields = append(fields, review.FieldInput{Name: f.Name, Value: f.Value, Confidence: f.Confidence})
		}

		item, err := store.CreateItem(ctx, review.NewItem{
			DocumentID:    result.DocumentID,
			Fields:        fields,
			LineItemCount: result.LineItemCount,
			TotalAmount:   result.TotalAmount,
		})
		if err == nil {
			if autoAssign {
				// An empty roster is not a pipeline failure; the item
				// simply waits for a manual claim.
				if _, assignErr := store.AutoAssign(ctx, item.ID); assignErr != nil && !errors.Is(assignErr, services.ErrConfiguration) {
					return nil, assignErr
				}
			}
			return item.ID, nil
		}
		if !errors.Is(err, services.ErrConflict) {
			return nil, err
		}

		// Re-extraction of a known document: overwrite unlocked fields only.
		if _, err := store.ApplyExtraction(ctx, result.DocumentID, fields); err != nil {
			return nil, err
		}
		existing, err := store.GetItemByDocument(ctx, result.DocumentID)
		if err != nil {
			return nil, err
		}
		return existing.ID, nil
	}
}

func metricsAction(store *review.Store) dag.Action {
	return func(ctx context.Context, _ dag.Inputs) (any, error) {
		return store.QueueStats(ctx)
	}
}

func extractionOutput(in dag.Inputs) (*extraction.Result, error) {
	raw, ok := in.Output(StepExtract)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "workflow", StepExtract, "extraction output missing", nil)
	}
	result, ok := raw.(*extraction.Result)
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "workflow", StepExtract,
			fmt.Sprintf("unexpected extraction output type %T", raw), nil)
	}
	return result, nil
}

func stringValue(in dag.Inputs, key string) (string, error) {
	raw, ok := in.Value(key)
	if !ok {
		return "", services.Wrap(services.ErrValidation, "workflow", "run context", "missing key "+key, nil)
	}
	value, ok := raw.(string)
	if !ok || value == "" {
		return "", services.Wrap(services.ErrValidation, "workflow", "run context", "empty key "+key, nil)
	}
	return value, nil
}

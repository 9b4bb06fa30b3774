package workflow

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"docflow/internal/config"
	"docflow/internal/dag"
	"docflow/internal/executor"
	"docflow/internal/extraction"
	"docflow/internal/logging"
	"docflow/internal/ratelimit"
	"docflow/internal/review"
	"docflow/internal/services"
	"docflow/internal/storage"
)

// Manager coordinates document processing: one executor run per inbox file,
// a shared concurrency bound across runs, and periodic review-claim expiry.
type Manager struct {
	cfg       *config.Config
	store     *review.Store
	exec      *executor.Executor
	runs      *executor.Registry
	graph     *dag.Graph
	logger    *slog.Logger
	extractor extraction.Extractor

	pollInterval       time.Duration
	errorRetryInterval time.Duration
	claimExpiry        time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	inRuns  sync.WaitGroup
	lastErr error
}

// NewManager constructs a workflow manager with the production extraction
// client wrapped in a circuit breaker.
func NewManager(cfg *config.Config, store *review.Store, logger *slog.Logger) (*Manager, error) {
	breaker := extraction.NewBreaker(extraction.BreakerSettings{
		Name:             TagExtractionAPI,
		FailureThreshold: cfg.Extraction.FailureThreshold,
		RecoveryTimeout:  time.Duration(cfg.Extraction.RecoveryTimeoutSeconds) * time.Second,
		HalfOpenMaxCalls: cfg.Extraction.HalfOpenMaxCalls,
		Logger:           logger,
	})
	extractor := extraction.NewGuarded(extraction.NewClient(cfg.Extraction), breaker)
	return NewManagerWithExtractor(cfg, store, logger, extractor)
}

// NewManagerWithExtractor constructs a workflow manager with a custom
// extractor (used in tests).
func NewManagerWithExtractor(cfg *config.Config, store *review.Store, logger *slog.Logger, extractor extraction.Extractor) (*Manager, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "workflow", "new manager", "ensure directories", err)
	}

	writer, err := storage.NewWriter(cfg.Paths.OutputDir)
	if err != nil {
		return nil, err
	}

	graph, err := BuildDocumentGraph(cfg, PipelineDeps{
		Extractor: extractor,
		Writer:    writer,
		Store:     store,
	})
	if err != nil {
		return nil, err
	}

	limits := ratelimit.NewRegistry(map[string]ratelimit.Settings{
		TagExtractionAPI: {Rate: cfg.Extraction.RatePerSecond, Burst: cfg.Extraction.Burst},
		TagReviewDB:      {Rate: cfg.Workflow.DatabaseRatePerSecond, Burst: cfg.Workflow.DatabaseBurst},
	})
	exec, err := executor.New(executor.Options{
		MaxConcurrency:     int64(cfg.Workflow.MaxConcurrency),
		Limits:             limits,
		DefaultTimeout:     time.Duration(cfg.Workflow.StepTimeoutSeconds) * time.Second,
		DefaultBackoffBase: time.Duration(cfg.Workflow.RetryBackoffBase * float64(time.Second)),
		Logger:             logger,
	})
	if err != nil {
		return nil, err
	}

	return &Manager{
		cfg:                cfg,
		store:              store,
		exec:               exec,
		runs:               executor.NewRegistry(cfg.Workflow.RunRetentionMaxEntries),
		graph:              graph,
		logger:             logging.NewComponentLogger(logger, "workflow"),
		extractor:          extractor,
		pollInterval:       time.Duration(cfg.Workflow.InboxPollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Workflow.ErrorRetryInterval) * time.Second,
		claimExpiry:        time.Duration(cfg.Review.ClaimExpiryMinutes) * time.Minute,
	}, nil
}

// Start begins background inbox processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(2)
	m.mu.Unlock()

	go m.runInboxLoop(runCtx)
	go m.runExpiryLoop(runCtx)
	return nil
}

// Stop terminates background processing and waits for in-flight runs.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.inRuns.Wait()
}

// LastError returns the most recent background loop error.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) runInboxLoop(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		staged, err := m.stageInboxFiles()
		if err != nil {
			m.setLastError(err)
			m.logger.Error("inbox scan failed",
				logging.Error(err),
				logging.String(logging.FieldEventType, "inbox_scan_failed"),
				logging.String(logging.FieldErrorHint, "check inbox directory permissions"))
			m.waitOrShutdown(ctx, m.errorRetryInterval)
			continue
		}

		for _, path := range staged {
			m.inRuns.Add(1)
			go func(path string) {
				defer m.inRuns.Done()
				if _, err := m.ProcessDocument(ctx, path); err != nil && !errors.Is(err, context.Canceled) {
					m.setLastError(err)
					m.logger.Error("document run failed",
						logging.Error(err),
						logging.String("path", path),
						logging.String(logging.FieldEventType, "document_run_failed"))
				}
			}(path)
		}

		if len(staged) == 0 {
			m.waitOrShutdown(ctx, m.pollInterval)
		}
	}
}

// runExpiryLoop periodically returns stale InReview claims to Pending.
func (m *Manager) runExpiryLoop(ctx context.Context) {
	defer m.wg.Done()

	interval := m.claimExpiry / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().UTC().Add(-m.claimExpiry)
		released, err := m.store.ReleaseExpiredClaims(ctx, cutoff)
		if err != nil {
			m.setLastError(err)
			m.logger.Warn("claim expiry sweep failed", logging.Error(err))
			continue
		}
		if released > 0 {
			m.logger.Info("released expired claims", logging.Int64("count", released))
		}
	}
}

// stageInboxFiles moves inbox files into the staging directory so a document
// is picked up exactly once across poll cycles.
func (m *Manager) stageInboxFiles() ([]string, error) {
	entries, err := os.ReadDir(m.cfg.Paths.InboxDir)
	if err != nil {
		return nil, err
	}

	var staged []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if _, err := extraction.MimeTypeForPath(entry.Name()); err != nil {
			continue
		}
		src := filepath.Join(m.cfg.Paths.InboxDir, entry.Name())
		dst := filepath.Join(m.cfg.Paths.StagingDir, entry.Name())
		if err := os.Rename(src, dst); err != nil {
			m.logger.Warn("stage inbox file failed",
				logging.Error(err),
				logging.String("path", src))
			continue
		}
		staged = append(staged, dst)
	}
	return staged, nil
}

// ProcessDocument runs the document pipeline for one staged file and records
// the result in the run registry. The RunResult is returned even when steps
// failed; the error return covers only run setup.
func (m *Manager) ProcessDocument(ctx context.Context, path string) (*executor.RunResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "workflow", "process document", "read "+path, err)
	}
	mimeType, err := extraction.MimeTypeForPath(path)
	if err != nil {
		return nil, err
	}

	documentID := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return m.execute(ctx, documentID, content, mimeType)
}

// SubmitDocument launches a pipeline run for in-memory document content and
// returns the run id immediately. Poll GetRunResult for completion.
func (m *Manager) SubmitDocument(ctx context.Context, documentID string, content []byte, mimeType string) (string, error) {
	if documentID == "" {
		return "", services.Wrap(services.ErrValidation, "workflow", "submit document", "document id required", nil)
	}
	if mimeType == "" {
		return "", services.Wrap(services.ErrValidation, "workflow", "submit document", "mime type required", nil)
	}

	runID := uuid.NewString()
	m.inRuns.Add(1)
	go func() {
		defer m.inRuns.Done()
		if _, err := m.executeRun(ctx, runID, documentID, content, mimeType); err != nil && !errors.Is(err, context.Canceled) {
			m.setLastError(err)
		}
	}()
	return runID, nil
}

// GetRunResult returns the recorded result for a run id, or NotFound while
// the run is still in flight.
func (m *Manager) GetRunResult(runID string) (*executor.RunResult, error) {
	return m.runs.Get(runID)
}

func (m *Manager) execute(ctx context.Context, documentID string, content []byte, mimeType string) (*executor.RunResult, error) {
	return m.executeRun(ctx, uuid.NewString(), documentID, content, mimeType)
}

func (m *Manager) executeRun(ctx context.Context, runID, documentID string, content []byte, mimeType string) (*executor.RunResult, error) {
	ctx = services.WithDocumentID(ctx, documentID)
	initial := map[string]any{
		KeyDocumentID:     documentID,
		KeyContent:        content,
		KeyMimeType:       mimeType,
		KeyCollectMetrics: true,
	}

	result, err := m.exec.Execute(ctx, m.graph, runID, initial)
	if err != nil {
		return nil, err
	}
	m.runs.Record(result)

	log := logging.WithContext(ctx, m.logger)
	if result.Status == executor.RunFailed {
		log.Warn("document run completed with failures",
			logging.String(logging.FieldRunID, runID),
			logging.Any("failed_steps", result.FailedSteps()))
	} else {
		log.Info("document run completed",
			logging.String(logging.FieldRunID, runID),
			logging.Duration("duration", result.Duration))
	}
	return result, nil
}

func (m *Manager) waitOrShutdown(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}

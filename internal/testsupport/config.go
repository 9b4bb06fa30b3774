package testsupport

import (
	"path/filepath"
	"testing"

	"docflow/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Paths.InboxDir = filepath.Join(base, "inbox")
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.OutputDir = filepath.Join(base, "output")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Extraction.Endpoint = "http://127.0.0.1:0/extract"
	cfgVal.Extraction.APIKey = "test"
	cfgVal.Review.Reviewers = []string{"alice", "bob", "carol"}

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithReviewers overrides the reviewer roster on the test config.
func WithReviewers(reviewers ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Review.Reviewers = reviewers
	}
}

// WithExtractionEndpoint points the extraction client at a test server.
func WithExtractionEndpoint(url string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Extraction.Endpoint = url
	}
}

package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	InboxDir   string `toml:"inbox_dir"`
	StagingDir string `toml:"staging_dir"`
	OutputDir  string `toml:"output_dir"`
	LogDir     string `toml:"log_dir"`
}

// Logging contains log output configuration.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Extraction contains configuration for the remote extraction service.
type Extraction struct {
	Endpoint               string  `toml:"endpoint"`
	APIKey                 string  `toml:"api_key"`
	TimeoutSeconds         int     `toml:"timeout_seconds"`
	MaxRetries             int     `toml:"max_retries"`
	RatePerSecond          float64 `toml:"rate_per_second"`
	Burst                  int     `toml:"burst"`
	FailureThreshold       int     `toml:"failure_threshold"`
	RecoveryTimeoutSeconds int     `toml:"recovery_timeout_seconds"`
	HalfOpenMaxCalls       int     `toml:"half_open_max_calls"`
}

// Workflow contains configuration for pipeline execution and daemon timing.
type Workflow struct {
	MaxConcurrency         int     `toml:"max_concurrency"`
	InboxPollInterval      int     `toml:"inbox_poll_interval"`
	ErrorRetryInterval     int     `toml:"error_retry_interval"`
	StepTimeoutSeconds     int     `toml:"step_timeout_seconds"`
	RetryBackoffBase       float64 `toml:"retry_backoff_base_seconds"`
	PersistMaxRetries      int     `toml:"persist_max_retries"`
	PersistTimeoutSeconds  int     `toml:"persist_timeout_seconds"`
	DatabaseRatePerSecond  float64 `toml:"database_rate_per_second"`
	DatabaseBurst          int     `toml:"database_burst"`
	RunRetentionMaxEntries int     `toml:"run_retention_max_entries"`
}

// Review contains configuration for the human review queue.
type Review struct {
	Reviewers          []string `toml:"reviewers"`
	AutoAssign         bool     `toml:"auto_assign"`
	SLADefaultHours    int      `toml:"sla_default_hours"`
	ClaimExpiryMinutes int      `toml:"claim_expiry_minutes"`
}

// Config is the root configuration structure.
type Config struct {
	Paths      Paths      `toml:"paths"`
	Logging    Logging    `toml:"logging"`
	Extraction Extraction `toml:"extraction"`
	Workflow   Workflow   `toml:"workflow"`
	Review     Review     `toml:"review"`
}

// Load reads configuration from the provided path (or the default locations
// when path is empty), applies defaults, normalizes paths, and validates the
// result. It returns the config, the resolved path, and whether a file existed.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("docflow.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// DefaultConfigPath returns the expanded default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/docflow/config.toml")
}

// SampleConfig returns the embedded sample configuration document.
func SampleConfig() string {
	return sampleConfig
}

// WriteSample writes the embedded sample configuration to the given path,
// refusing to overwrite an existing file.
func WriteSample(path string) (string, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(expanded); err == nil {
		return "", fmt.Errorf("config file already exists at %s", expanded)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("stat config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(expanded), 0o755); err != nil {
		return "", fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(expanded, []byte(sampleConfig), 0o644); err != nil {
		return "", fmt.Errorf("write sample config: %w", err)
	}
	return expanded, nil
}

// EnsureDirectories creates every configured directory that must exist before
// the daemon or CLI can operate.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Paths.InboxDir, c.Paths.StagingDir, c.Paths.OutputDir, c.Paths.LogDir}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeExtraction()
	c.normalizeWorkflow()
	c.normalizeReview()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.InboxDir, err = expandPath(c.Paths.InboxDir); err != nil {
		return fmt.Errorf("paths.inbox_dir: %w", err)
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeExtraction() {
	if key := strings.TrimSpace(os.Getenv("DOCFLOW_EXTRACTION_API_KEY")); key != "" && strings.TrimSpace(c.Extraction.APIKey) == "" {
		c.Extraction.APIKey = key
	}
	if c.Extraction.TimeoutSeconds <= 0 {
		c.Extraction.TimeoutSeconds = defaultExtractionTimeoutSeconds
	}
	if c.Extraction.MaxRetries < 0 {
		c.Extraction.MaxRetries = 0
	}
	if c.Extraction.RatePerSecond <= 0 {
		c.Extraction.RatePerSecond = defaultExtractionRatePerSecond
	}
	if c.Extraction.Burst <= 0 {
		c.Extraction.Burst = defaultExtractionBurst
	}
	if c.Extraction.FailureThreshold <= 0 {
		c.Extraction.FailureThreshold = defaultBreakerFailureThreshold
	}
	if c.Extraction.RecoveryTimeoutSeconds <= 0 {
		c.Extraction.RecoveryTimeoutSeconds = defaultBreakerRecoverySeconds
	}
	if c.Extraction.HalfOpenMaxCalls <= 0 {
		c.Extraction.HalfOpenMaxCalls = defaultBreakerHalfOpenCalls
	}
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.MaxConcurrency <= 0 {
		c.Workflow.MaxConcurrency = defaultWorkflowMaxConcurrency
	}
	if c.Workflow.InboxPollInterval <= 0 {
		c.Workflow.InboxPollInterval = defaultInboxPollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.StepTimeoutSeconds <= 0 {
		c.Workflow.StepTimeoutSeconds = defaultStepTimeoutSeconds
	}
	if c.Workflow.RetryBackoffBase <= 0 {
		c.Workflow.RetryBackoffBase = defaultRetryBackoffBase
	}
	if c.Workflow.PersistMaxRetries < 0 {
		c.Workflow.PersistMaxRetries = 0
	}
	if c.Workflow.PersistMaxRetries == 0 {
		c.Workflow.PersistMaxRetries = defaultPersistMaxRetries
	}
	if c.Workflow.PersistTimeoutSeconds <= 0 {
		c.Workflow.PersistTimeoutSeconds = defaultPersistTimeoutSeconds
	}
	if c.Workflow.DatabaseRatePerSecond <= 0 {
		c.Workflow.DatabaseRatePerSecond = defaultDatabaseRatePerSecond
	}
	if c.Workflow.DatabaseBurst <= 0 {
		c.Workflow.DatabaseBurst = defaultDatabaseBurst
	}
	if c.Workflow.RunRetentionMaxEntries <= 0 {
		c.Workflow.RunRetentionMaxEntries = defaultRunRetentionMaxEntries
	}
}

func (c *Config) normalizeReview() {
	cleaned := make([]string, 0, len(c.Review.Reviewers))
	for _, reviewer := range c.Review.Reviewers {
		if trimmed := strings.TrimSpace(reviewer); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	c.Review.Reviewers = cleaned
	if c.Review.SLADefaultHours <= 0 {
		c.Review.SLADefaultHours = defaultSLADefaultHours
	}
	if c.Review.ClaimExpiryMinutes <= 0 {
		c.Review.ClaimExpiryMinutes = defaultClaimExpiryMinutes
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", nil
	}
	if trimmed == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return home, nil
	}
	if strings.HasPrefix(trimmed, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, trimmed[2:]), nil
	}
	return filepath.Clean(trimmed), nil
}

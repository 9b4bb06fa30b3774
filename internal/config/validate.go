package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	if err := c.validateExtraction(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateReview(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if strings.TrimSpace(c.Paths.InboxDir) == "" {
		return errors.New("paths.inbox_dir must be set")
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		return errors.New("paths.staging_dir must be set")
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must be set")
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		return errors.New("paths.log_dir must be set")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug/info/warn/error, got %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateExtraction() error {
	if strings.TrimSpace(c.Extraction.Endpoint) == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/docflow/config.toml"
		}
		return fmt.Errorf("extraction.endpoint is required. Edit %s (create with 'docflow config init')", defaultPath)
	}
	if c.Extraction.RatePerSecond <= 0 {
		return errors.New("extraction.rate_per_second must be positive")
	}
	if c.Extraction.Burst < 1 {
		return errors.New("extraction.burst must be at least 1")
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.MaxConcurrency < 1 {
		return errors.New("workflow.max_concurrency must be at least 1")
	}
	if c.Workflow.StepTimeoutSeconds < 1 {
		return errors.New("workflow.step_timeout_seconds must be at least 1")
	}
	if c.Workflow.RetryBackoffBase <= 0 {
		return errors.New("workflow.retry_backoff_base_seconds must be positive")
	}
	return nil
}

func (c *Config) validateReview() error {
	seen := make(map[string]struct{}, len(c.Review.Reviewers))
	for _, reviewer := range c.Review.Reviewers {
		if _, ok := seen[reviewer]; ok {
			return fmt.Errorf("review.reviewers contains duplicate entry %q", reviewer)
		}
		seen[reviewer] = struct{}{}
	}
	if c.Review.SLADefaultHours < 1 {
		return errors.New("review.sla_default_hours must be at least 1")
	}
	if c.Review.ClaimExpiryMinutes < 1 {
		return errors.New("review.claim_expiry_minutes must be at least 1")
	}
	return nil
}

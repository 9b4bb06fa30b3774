package config

const (
	defaultInboxDir  = "~/.local/share/docflow/inbox"
	defaultStaging   = "~/.local/share/docflow/staging"
	defaultOutputDir = "~/.local/share/docflow/output"
	defaultLogDir    = "~/.local/share/docflow/logs"

	defaultLogLevel  = "info"
	defaultLogFormat = "console"

	defaultExtractionTimeoutSeconds = 120
	defaultExtractionMaxRetries     = 3
	defaultExtractionRatePerSecond  = 10.0
	defaultExtractionBurst          = 5
	defaultBreakerFailureThreshold  = 5
	defaultBreakerRecoverySeconds   = 60
	defaultBreakerHalfOpenCalls     = 2

	defaultWorkflowMaxConcurrency = 4
	defaultInboxPollInterval      = 5
	defaultErrorRetryInterval     = 10
	defaultStepTimeoutSeconds     = 300
	defaultRetryBackoffBase       = 1.0
	defaultPersistMaxRetries      = 2
	defaultPersistTimeoutSeconds  = 30
	defaultDatabaseRatePerSecond  = 50.0
	defaultDatabaseBurst          = 20
	defaultRunRetentionMaxEntries = 1000

	defaultSLADefaultHours    = 24
	defaultClaimExpiryMinutes = 120
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			InboxDir:   defaultInboxDir,
			StagingDir: defaultStaging,
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
		},
		Logging: Logging{
			Level:  defaultLogLevel,
			Format: defaultLogFormat,
		},
		Extraction: Extraction{
			TimeoutSeconds:         defaultExtractionTimeoutSeconds,
			MaxRetries:             defaultExtractionMaxRetries,
			RatePerSecond:          defaultExtractionRatePerSecond,
			Burst:                  defaultExtractionBurst,
			FailureThreshold:       defaultBreakerFailureThreshold,
			RecoveryTimeoutSeconds: defaultBreakerRecoverySeconds,
			HalfOpenMaxCalls:       defaultBreakerHalfOpenCalls,
		},
		Workflow: Workflow{
			MaxConcurrency:         defaultWorkflowMaxConcurrency,
			InboxPollInterval:      defaultInboxPollInterval,
			ErrorRetryInterval:     defaultErrorRetryInterval,
			StepTimeoutSeconds:     defaultStepTimeoutSeconds,
			RetryBackoffBase:       defaultRetryBackoffBase,
			PersistMaxRetries:      defaultPersistMaxRetries,
			PersistTimeoutSeconds:  defaultPersistTimeoutSeconds,
			DatabaseRatePerSecond:  defaultDatabaseRatePerSecond,
			DatabaseBurst:          defaultDatabaseBurst,
			RunRetentionMaxEntries: defaultRunRetentionMaxEntries,
		},
		Review: Review{
			SLADefaultHours:    defaultSLADefaultHours,
			ClaimExpiryMinutes: defaultClaimExpiryMinutes,
		},
	}
}

package constants

import "time"

// Centralized default values for timeouts, intervals, and related settings.
// These provide sane defaults; environment/config may override where supported.

const (
	// Database
	DBReadTimeoutDefault  = 8 * time.Second
	DBWriteTimeoutDefault = 6 * time.Second

	// LLM generation (OpenRouter chat completions)
	GenerateTimeoutDefault    = 8 * time.Second
	GenerateOperationTimeout  = 10 * time.Second
	GenerateOpenFor           = 30 * time.Second
	GenerateSlowCallThreshold = 5 * time.Second

	// Breaker trip thresholds for the generation API
	GenerateMaxConsecFailures = 5
	GenerateWindowSize        = 20
	GenerateFailureRate       = 0.5
	GenerateSlowCallRate      = 0.5

	// Google Places lookups
	PlacesRequestTimeout = 10 * time.Second

	// Config watcher
	ConfigWatcherIntervalDefault = 2 * time.Second

	// App shutdown
	GracefulShutdownTimeoutDefault = 10 * time.Second

	// Events store SQL operations
	EventsSQLTimeoutDefault = 5 * time.Second
)

// Batch auto-feedback tuning. The quota and threshold are deliberate product
// decisions, not config knobs: a pair below the pool minimum gets topped up
// to a fixed quota per run.
const (
	MinFeedbackPool     = 5
	FeedbackQuota       = 20
	GenerationBatchSize = 5
	BatchDelay          = 500 * time.Millisecond
	PairDelay           = 1 * time.Second
)

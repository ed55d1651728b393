package model

import "time"

// ================ Config ================

// PlannerModelConfig configures the model used for structured oracle calls
// (intent, plan, alignment, trends, code).
type PlannerModelConfig struct {
	Model       string  `envconfig:"PLANNER_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int     `envconfig:"PLANNER_MAX_TOKENS" default:"4000"`
	Temperature float32 `envconfig:"PLANNER_TEMPERATURE" default:"0.0"`
}

// ExplainerModelConfig configures the model used for free-text explanations.
type ExplainerModelConfig struct {
	Model       string  `envconfig:"EXPLAINER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int     `envconfig:"EXPLAINER_MAX_TOKENS" default:"2000"`
	Temperature float32 `envconfig:"EXPLAINER_TEMPERATURE" default:"0.3"`
}

type WorkflowConfig struct {
	MaxRetries         int           `envconfig:"WORKFLOW_MAX_RETRIES" default:"2"`
	HistoryTurns       int           `envconfig:"WORKFLOW_HISTORY_TURNS" default:"5"`
	ResultPreviewChars int           `envconfig:"WORKFLOW_RESULT_PREVIEW_CHARS" default:"3000"`
	ExecTimeout        time.Duration `envconfig:"WORKFLOW_EXEC_TIMEOUT" default:"0s"`
	RunTimeout         time.Duration `envconfig:"WORKFLOW_RUN_TIMEOUT" default:"5m"`
}

type CacheConfig struct {
	DefaultTTL        time.Duration `envconfig:"CACHE_DEFAULT_TTL" default:"1h"`
	FileMetadataTTL   time.Duration `envconfig:"CACHE_FILE_METADATA_TTL" default:"2h"`
	AnalysisResultTTL time.Duration `envconfig:"CACHE_ANALYSIS_RESULT_TTL" default:"30m"`
	PreviewSize       int           `envconfig:"CACHE_PREVIEW_SIZE" default:"128"`
}

type RateLimitConfig struct {
	PerMinute int `envconfig:"RATE_LIMIT_PER_MINUTE" default:"10"`
	PerHour   int `envconfig:"RATE_LIMIT_PER_HOUR" default:"100"`
}

type HistoryConfig struct {
	TTL time.Duration `envconfig:"HISTORY_TTL" default:"24h"`
}

// DefaultWorkflowConfig mirrors the envconfig defaults for callers that build
// an engine without going through the environment.
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		MaxRetries:         2,
		HistoryTurns:       5,
		ResultPreviewChars: 3000,
		RunTimeout:         5 * time.Minute,
	}
}

// DefaultCacheConfig mirrors the envconfig defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		DefaultTTL:        time.Hour,
		FileMetadataTTL:   2 * time.Hour,
		AnalysisResultTTL: 30 * time.Minute,
		PreviewSize:       128,
	}
}

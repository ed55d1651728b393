package model

import (
	"context"
	"time"
)

// ValidationReport is the validator's verdict. Code holds the possibly
// repaired source and is only meaningful when Valid is true.
type ValidationReport struct {
	Valid  bool
	Errors []string
	Code   string
}

type CodeValidator interface {
	Validate(code string) ValidationReport
}

// ExecutionOutcome pairs the execution record with the normalized result.
// Data is nil unless Result.Success is true.
type ExecutionOutcome struct {
	Result ExecutionResult
	Data   *ResultData
}

// Sandbox executes validated code against the pre-bound library namespace.
type Sandbox interface {
	Execute(ctx context.Context, code string) ExecutionOutcome
}

// PreviewLoader reads the lightweight preview of a file on disk.
type PreviewLoader interface {
	Preview(ctx context.Context, path string) (FilePreview, error)
}

// ResultCache stores terminal states keyed by the run fingerprint.
type ResultCache interface {
	GetAnalysisResult(ctx context.Context, sessionID, query string, fileKeys []string) (*TerminalState, bool)
	SetAnalysisResult(ctx context.Context, sessionID, query string, fileKeys []string, st *TerminalState) bool
}

// RateLimiter is a fixed-window limiter; implementations fail open.
type RateLimiter interface {
	CheckRateLimit(ctx context.Context, identifier string, limit int, window time.Duration) (allowed bool, remaining int)
}

package model

import "context"

// Oracle is the text-generation capability consumed by the planning, code and
// explanation nodes. Implementations surface provider failures and
// unparseable output as errors; nodes turn those into degraded defaults.
type Oracle interface {
	AnalyzeIntent(ctx context.Context, req IntentRequest) (IntentResult, error)
	PlanAnalysis(ctx context.Context, req PlanRequest) (Plan, error)
	ProposeAlignment(ctx context.Context, req AlignmentRequest) (Alignment, error)
	GenerateCode(ctx context.Context, req CodeRequest) (string, error)
	Explain(ctx context.Context, req ExplainRequest) (string, error)
	AnalyzeTrends(ctx context.Context, req TrendRequest) (TrendInsights, error)
}

type IntentRequest struct {
	Query   string
	Files   []FileInfo
	History []ChatMessage
}

type IntentResult struct {
	Intent        string   `json:"intent"`
	OperationType string   `json:"operation_type"`
	FilesNeeded   []string `json:"files_needed"`
	Reasoning     string   `json:"reasoning"`
}

type PlanRequest struct {
	Query         string
	Intent        Intent
	OperationType OperationType
	Files         []FileInfo // all available files
	Selected      []FileInfo // files chosen by intent analysis
}

type AlignmentRequest struct {
	TimePeriods []string
	Files       []FileInfo
}

type CodeRequest struct {
	Query          string
	Plan           Plan
	Alignment      Alignment
	Files          []FileInfo
	PreviousErrors []string
}

type ExplainRequest struct {
	Query        string
	ResultJSON   string
	FilesUsed    []string
	AnalysisType string
}

type TrendRequest struct {
	Query       string
	TimePeriods []string
	DataSummary []map[string]any
	ResultJSON  string
}

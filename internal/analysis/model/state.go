package model

import (
	"strconv"
	"strings"
)

// FileInfo describes one uploaded file as supplied by the file/schema collaborator.
type FileInfo struct {
	ID                 int64             `json:"id,omitempty"`
	Filename           string            `json:"filename"`
	Filepath           string            `json:"filepath"`
	TimePeriod         string            `json:"time_period,omitempty"`
	TimePeriodType     string            `json:"time_period_type,omitempty"`
	RowCount           int               `json:"row_count"`
	Columns            []string          `json:"columns"`
	NumericColumns     []string          `json:"numeric_columns"`
	CategoricalColumns []string          `json:"categorical_columns"`
	DateColumns        []string          `json:"date_columns"`
	Schema             map[string]string `json:"schema,omitempty"`
	SampleRows         []map[string]any  `json:"sample_rows,omitempty"`
}

// Key identifies the file for cache fingerprints: the numeric ID when present,
// otherwise the filename.
func (f FileInfo) Key() string {
	if f.ID != 0 {
		return strconv.FormatInt(f.ID, 10)
	}
	return f.Filename
}

// FileKeys returns the fingerprint keys of files in input order.
func FileKeys(files []FileInfo) []string {
	keys := make([]string, 0, len(files))
	for _, f := range files {
		keys = append(keys, f.Key())
	}
	return keys
}

// ChatMessage is one prior turn of the conversation, most recent last.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// FilePreview is the lightweight view of a file loaded by retrieve_context.
type FilePreview struct {
	Columns  []string          `json:"columns"`
	DTypes   map[string]string `json:"dtypes"`
	RowCount int               `json:"row_count"`
	Sample   []map[string]any  `json:"sample"`
}

// Plan is the planner's free-form analysis plan. Only TimeAlignmentNeeded is
// interpreted by the workflow.
type Plan map[string]any

// TimeAlignmentNeeded reads the time_alignment_needed flag, accepting booleans
// and their common string spellings.
func (p Plan) TimeAlignmentNeeded() bool {
	switch v := p["time_alignment_needed"].(type) {
	case bool:
		return v
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return err == nil && b
	default:
		return false
	}
}

// Alignment is the oracle's join-key / granularity proposal for cross-table work.
type Alignment map[string]any

// TrendInsights is the oracle's trend/pattern/anomaly report.
type TrendInsights map[string]any

// RecommendedActions returns the string entries of recommended_actions.
func (t TrendInsights) RecommendedActions() []string {
	raw, ok := t["recommended_actions"].([]any)
	if !ok {
		if s, ok := t["recommended_actions"].([]string); ok {
			return s
		}
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if s, ok := r.(string); ok && strings.TrimSpace(s) != "" {
			out = append(out, s)
		}
	}
	return out
}

// ExecutionResult records the outcome of running generated code.
type ExecutionResult struct {
	Success         bool    `json:"success"`
	Error           string  `json:"error,omitempty"`
	Traceback       string  `json:"traceback,omitempty"`
	ExecutionTimeMs float64 `json:"execution_time_ms"`
}

// ResultType tags the ResultData union.
type ResultType string

const (
	ResultDataFrame ResultType = "dataframe"
	ResultDict      ResultType = "dict"
	ResultList      ResultType = "list"
	ResultValue     ResultType = "value"
)

// ResultData is the serializable envelope of the value bound to `result`.
// Columns and Shape are only set for dataframes.
type ResultData struct {
	Type    ResultType `json:"type"`
	Data    any        `json:"data"`
	Columns []string   `json:"columns,omitempty"`
	Shape   []int      `json:"shape,omitempty"`
}

// Rows returns the number of records of a dataframe result, or 0.
func (r *ResultData) Rows() int {
	if r == nil || r.Type != ResultDataFrame {
		return 0
	}
	if len(r.Shape) == 2 {
		return r.Shape[0]
	}
	if recs, ok := r.Data.([]map[string]any); ok {
		return len(recs)
	}
	if recs, ok := r.Data.([]any); ok {
		return len(recs)
	}
	return 0
}

// RunStats is graph-local state accumulated by oracle calls during one run.
type RunStats struct {
	OracleCalls      int     `json:"oracle_calls"`
	PromptTokens     int     `json:"prompt_tokens"`
	CompletionTokens int     `json:"completion_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// Input is one invocation of the analysis engine.
type Input struct {
	SessionID   string        `json:"session_id"`
	Query       string        `json:"query"`
	Files       []FileInfo    `json:"files"`
	ChatHistory []ChatMessage `json:"chat_history"`
}

// State is the record threaded through every node of one workflow run.
// NodeHistory and Errors are owned by the orchestrator: nodes report new
// errors through their return value and never write these two fields.
type State struct {
	RunID     string `json:"run_id"`
	SessionID string `json:"session_id"`
	UserQuery string `json:"user_query"`

	AvailableFiles []FileInfo    `json:"available_files"`
	ChatHistory    []ChatMessage `json:"chat_history"`

	ParsedFiles           []FileInfo             `json:"parsed_files"`
	CommonColumns         []string               `json:"common_columns"`
	AllNumericColumns     []string               `json:"all_numeric_columns"`
	AllCategoricalColumns []string               `json:"all_categorical_columns"`
	FileData              map[string]FilePreview `json:"file_data"`

	Intent        Intent        `json:"intent,omitempty"`
	OperationType OperationType `json:"operation_type,omitempty"`
	Plan          Plan          `json:"plan,omitempty"`
	FilesToUse    []string      `json:"files_to_use"`
	AlignmentInfo Alignment     `json:"alignment_info,omitempty"`

	GeneratedCode    string   `json:"generated_code,omitempty"`
	CodeValid        bool     `json:"code_valid"`
	ValidationErrors []string `json:"validation_errors"`

	ExecutionResult *ExecutionResult `json:"execution_result,omitempty"`
	ResultData      *ResultData      `json:"result_data,omitempty"`

	TrendInsights   TrendInsights `json:"trend_insights,omitempty"`
	Explanation     string        `json:"explanation,omitempty"`
	Recommendations []string      `json:"recommendations"`
	FinalResponse   string        `json:"final_response,omitempty"`

	NodeHistory []string `json:"node_history"`
	Errors      []string `json:"errors"`
	RetryCount  int      `json:"retry_count"`

	Stats RunStats `json:"stats"`
}

// NewState creates the initial state for one run.
func NewState(runID string, in Input) *State {
	return &State{
		RunID:            runID,
		SessionID:        in.SessionID,
		UserQuery:        in.Query,
		AvailableFiles:   in.Files,
		ChatHistory:      in.ChatHistory,
		FileData:         map[string]FilePreview{},
		FilesToUse:       []string{},
		ValidationErrors: []string{},
		Recommendations:  []string{},
		NodeHistory:      []string{},
		Errors:           []string{},
	}
}

// SelectedFiles returns the available files named in FilesToUse, or all
// available files when no selection was made.
func (s *State) SelectedFiles() []FileInfo {
	if len(s.FilesToUse) == 0 {
		return s.AvailableFiles
	}
	want := make(map[string]bool, len(s.FilesToUse))
	for _, name := range s.FilesToUse {
		want[name] = true
	}
	var out []FileInfo
	for _, f := range s.AvailableFiles {
		if want[f.Filename] {
			out = append(out, f)
		}
	}
	return out
}

// TerminalState is the part of the final State consumed downstream and cached.
type TerminalState struct {
	RunID           string           `json:"run_id"`
	SessionID       string           `json:"session_id"`
	Query           string           `json:"query"`
	FinalResponse   string           `json:"final_response"`
	Explanation     string           `json:"explanation,omitempty"`
	Intent          Intent           `json:"intent,omitempty"`
	OperationType   OperationType    `json:"operation_type,omitempty"`
	FilesToUse      []string         `json:"files_to_use"`
	AlignmentInfo   Alignment        `json:"alignment_info,omitempty"`
	GeneratedCode   string           `json:"generated_code,omitempty"`
	CodeValid       bool             `json:"code_valid"`
	ExecutionResult *ExecutionResult `json:"execution_result,omitempty"`
	ResultData      *ResultData      `json:"result_data,omitempty"`
	TrendInsights   TrendInsights    `json:"trend_insights,omitempty"`
	Recommendations []string         `json:"recommendations"`
	NodeHistory     []string         `json:"node_history"`
	Errors          []string         `json:"errors"`
	RetryCount      int              `json:"retry_count"`
	Stats           RunStats         `json:"stats"`
	Cached          bool             `json:"cached"`
}

// Terminal projects the state onto the downstream-visible fields.
func (s *State) Terminal() *TerminalState {
	return &TerminalState{
		RunID:           s.RunID,
		SessionID:       s.SessionID,
		Query:           s.UserQuery,
		FinalResponse:   s.FinalResponse,
		Explanation:     s.Explanation,
		Intent:          s.Intent,
		OperationType:   s.OperationType,
		FilesToUse:      s.FilesToUse,
		AlignmentInfo:   s.AlignmentInfo,
		GeneratedCode:   s.GeneratedCode,
		CodeValid:       s.CodeValid,
		ExecutionResult: s.ExecutionResult,
		ResultData:      s.ResultData,
		TrendInsights:   s.TrendInsights,
		Recommendations: s.Recommendations,
		NodeHistory:     s.NodeHistory,
		Errors:          s.Errors,
		RetryCount:      s.RetryCount,
		Stats:           s.Stats,
	}
}

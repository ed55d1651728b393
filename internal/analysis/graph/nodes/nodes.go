// Package nodes holds the workflow node functions. A node receives a copy of
// the run state and returns the updated copy plus any new error entries; it
// never touches NodeHistory or Errors.
package nodes

import (
	"context"
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/pushkal/server/internal/analysis/model"
	logx "github.com/pushkal/server/pkg/logger"
)

// Func is the signature shared by every node.
type Func func(ctx context.Context, s model.State) (model.State, []string)

// Deps are the collaborators the nodes call.
type Deps struct {
	Oracle    model.Oracle
	Validator model.CodeValidator
	Sandbox   model.Sandbox
	Previews  model.PreviewLoader
	Config    model.WorkflowConfig
}

// Nodes binds the node functions to their collaborators.
type Nodes struct {
	oracle    model.Oracle
	validator model.CodeValidator
	sandbox   model.Sandbox
	previews  model.PreviewLoader
	cfg       model.WorkflowConfig
}

func New(d Deps) *Nodes {
	return &Nodes{
		oracle:    d.Oracle,
		validator: d.Validator,
		sandbox:   d.Sandbox,
		previews:  d.Previews,
		cfg:       d.Config,
	}
}

// Funcs returns the node functions keyed by identifier.
func (n *Nodes) Funcs() map[string]Func {
	return map[string]Func{
		NodeIngestQuery:     n.IngestQuery,
		NodeParseFiles:      n.ParseFiles,
		NodeRetrieveContext: n.RetrieveContext,
		NodeAnalyzeIntent:   n.AnalyzeIntent,
		NodePlanAnalysis:    n.PlanAnalysis,
		NodeAlignTimeseries: n.AlignTimeseries,
		NodeGenerateCode:    n.GenerateCode,
		NodeValidateCode:    n.ValidateCode,
		NodeIncrementRetry:  n.IncrementRetry,
		NodeExecuteCode:     n.ExecuteCode,
		NodeTrendAnalysis:   n.TrendAnalysis,
		NodeExplainResult:   n.ExplainResult,
		NodeHandleError:     n.HandleError,
		NodeReturnChat:      n.ReturnChat,
	}
}

func (n *Nodes) IngestQuery(_ context.Context, s model.State) (model.State, []string) {
	s.UserQuery = strings.TrimSpace(s.UserQuery)
	if s.UserQuery == "" {
		return s, []string{"Empty query provided"}
	}
	return s, nil
}

// ParseFiles normalizes the file descriptors and derives the column sets
// shared by the available files.
func (n *Nodes) ParseFiles(_ context.Context, s model.State) (model.State, []string) {
	s.ParsedFiles = []model.FileInfo{}
	s.CommonColumns = []string{}
	s.AllNumericColumns = []string{}
	s.AllCategoricalColumns = []string{}
	if len(s.AvailableFiles) == 0 {
		return s, []string{"No files available for analysis"}
	}

	var numeric, categorical []string
	for i, f := range s.AvailableFiles {
		s.ParsedFiles = append(s.ParsedFiles, normalizeFile(f))
		numeric = append(numeric, f.NumericColumns...)
		categorical = append(categorical, f.CategoricalColumns...)
		if i == 0 {
			s.CommonColumns = append(s.CommonColumns, f.Columns...)
			continue
		}
		s.CommonColumns = intersect(s.CommonColumns, f.Columns)
	}
	s.CommonColumns = dedupe(s.CommonColumns)
	sort.Strings(s.CommonColumns)
	s.AllNumericColumns = sortedUnique(numeric)
	s.AllCategoricalColumns = sortedUnique(categorical)
	return s, nil
}

// RetrieveContext loads a preview of every readable file. Missing or
// unreadable files are skipped.
func (n *Nodes) RetrieveContext(ctx context.Context, s model.State) (model.State, []string) {
	data := make(map[string]model.FilePreview, len(s.AvailableFiles))
	for _, f := range s.AvailableFiles {
		if f.Filepath == "" || n.previews == nil {
			continue
		}
		if _, err := os.Stat(f.Filepath); err != nil {
			continue
		}
		p, err := n.previews.Preview(ctx, f.Filepath)
		if err != nil {
			logx.Debug().Err(err).Str("file", f.Filename).Msg("preview skipped")
			continue
		}
		data[f.Filename] = p
	}
	s.FileData = data
	return s, nil
}

// AnalyzeIntent asks the oracle for intent, operation type and the files to
// use, falling back to a simple query over the first file.
func (n *Nodes) AnalyzeIntent(ctx context.Context, s model.State) (model.State, []string) {
	if !hasInput(&s) {
		setDefaultIntent(&s)
		return s, nil
	}
	res, err := n.oracle.AnalyzeIntent(ctx, model.IntentRequest{
		Query:   s.UserQuery,
		Files:   s.AvailableFiles,
		History: model.RecentMessages(s.ChatHistory, n.cfg.HistoryTurns),
	})
	if err != nil {
		logx.Warn().Err(err).Str("run_id", s.RunID).Msg("intent analysis degraded")
		setDefaultIntent(&s)
		return s, []string{fmt.Sprintf("Intent analysis error: %v", err)}
	}

	intent, ok := model.ParseIntent(res.Intent)
	if !ok {
		intent = model.IntentQuery
	}
	op, ok := model.ParseOperationType(res.OperationType)
	if !ok {
		op = model.OperationSingleTable
	}
	s.Intent, s.OperationType = intent, op
	s.FilesToUse = knownFiles(res.FilesNeeded, s.AvailableFiles)
	if len(s.FilesToUse) == 0 {
		s.FilesToUse = firstFile(s.AvailableFiles)
	}
	return s, nil
}

func (n *Nodes) PlanAnalysis(ctx context.Context, s model.State) (model.State, []string) {
	if !hasInput(&s) {
		s.Plan = defaultPlan(s.OperationType, "Default plan")
		return s, nil
	}
	plan, err := n.oracle.PlanAnalysis(ctx, model.PlanRequest{
		Query:         s.UserQuery,
		Intent:        s.Intent,
		OperationType: s.OperationType,
		Files:         s.AvailableFiles,
		Selected:      s.SelectedFiles(),
	})
	if err != nil || plan == nil {
		if err == nil {
			err = fmt.Errorf("empty plan")
		}
		s.Plan = defaultPlan(s.OperationType, fmt.Sprintf("Default plan (error: %v)", err))
		return s, []string{fmt.Sprintf("Plan analysis error: %v", err)}
	}
	s.Plan = plan
	return s, nil
}

// AlignTimeseries asks for join keys and granularity when a multi-table
// operation selected at least two files; otherwise it passes through.
func (n *Nodes) AlignTimeseries(ctx context.Context, s model.State) (model.State, []string) {
	s.AlignmentInfo = nil
	if !s.OperationType.MultiTable() {
		return s, nil
	}
	selected := s.SelectedFiles()
	if len(selected) < 2 {
		return s, nil
	}
	al, err := n.oracle.ProposeAlignment(ctx, model.AlignmentRequest{
		TimePeriods: timePeriods(selected),
		Files:       selected,
	})
	if err != nil {
		s.AlignmentInfo = model.Alignment{
			"error":            err.Error(),
			"alignment_keys":   []any{},
			"time_granularity": "unknown",
		}
		return s, []string{fmt.Sprintf("Alignment error: %v", err)}
	}
	s.AlignmentInfo = al
	return s, nil
}

func hasInput(s *model.State) bool {
	return s.UserQuery != "" && len(s.AvailableFiles) > 0
}

func setDefaultIntent(s *model.State) {
	s.Intent = model.IntentQuery
	s.OperationType = model.OperationSingleTable
	s.FilesToUse = firstFile(s.AvailableFiles)
}

func defaultPlan(op model.OperationType, reasoning string) model.Plan {
	return model.Plan{
		"operations":            []any{"Load data", "Perform basic analysis"},
		"group_by":              nil,
		"filters":               nil,
		"time_alignment_needed": op == model.OperationCrossTable,
		"reasoning":             reasoning,
	}
}

func firstFile(files []model.FileInfo) []string {
	if len(files) == 0 || files[0].Filename == "" {
		return []string{}
	}
	return []string{files[0].Filename}
}

func knownFiles(names []string, files []model.FileInfo) []string {
	out := []string{}
	for _, name := range names {
		name = strings.TrimSpace(name)
		if slices.ContainsFunc(files, func(f model.FileInfo) bool { return f.Filename == name }) &&
			!slices.Contains(out, name) {
			out = append(out, name)
		}
	}
	return out
}

func timePeriods(files []model.FileInfo) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		if f.TimePeriod == "" {
			out = append(out, "Unknown")
			continue
		}
		out = append(out, f.TimePeriod)
	}
	return out
}

func normalizeFile(f model.FileInfo) model.FileInfo {
	f.Columns = orEmpty(f.Columns)
	f.NumericColumns = orEmpty(f.NumericColumns)
	f.CategoricalColumns = orEmpty(f.CategoricalColumns)
	f.DateColumns = orEmpty(f.DateColumns)
	return f
}

func orEmpty(v []string) []string {
	if v == nil {
		return []string{}
	}
	return slices.Clone(v)
}

func intersect(a, b []string) []string {
	out := []string{}
	for _, v := range a {
		if slices.Contains(b, v) {
			out = append(out, v)
		}
	}
	return out
}

func dedupe(v []string) []string {
	seen := make(map[string]bool, len(v))
	out := make([]string, 0, len(v))
	for _, s := range v {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func sortedUnique(v []string) []string {
	out := dedupe(v)
	sort.Strings(out)
	return out
}

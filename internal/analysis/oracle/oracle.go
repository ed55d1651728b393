// Package oracle implements the analysis Oracle over eino chat models.
package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/pushkal/server/internal/analysis/graph/parsers"
	"github.com/pushkal/server/internal/analysis/graph/prompts"
	"github.com/pushkal/server/internal/analysis/model"
	errx "github.com/pushkal/server/internal/core/error"
	logx "github.com/pushkal/server/pkg/logger"
)

const maxSummaryColumns = 5

// ChatOracle sends rendered prompts to a planner model (structured output)
// and an explainer model (free text).
type ChatOracle struct {
	planner        einomodel.BaseChatModel
	explainer      einomodel.BaseChatModel
	plannerModel   string
	explainerModel string
}

func New(planner, explainer einomodel.BaseChatModel, plannerModel, explainerModel string) *ChatOracle {
	if explainer == nil {
		explainer, explainerModel = planner, plannerModel
	}
	return &ChatOracle{
		planner:        planner,
		explainer:      explainer,
		plannerModel:   plannerModel,
		explainerModel: explainerModel,
	}
}

func NewFromChatModels(cms *ChatModels) *ChatOracle {
	return New(cms.Planner, cms.Explainer, cms.PlannerModelName, cms.ExplainerModelName)
}

func (o *ChatOracle) AnalyzeIntent(ctx context.Context, req model.IntentRequest) (model.IntentResult, error) {
	msgs, err := prompts.Intent(ctx, req.Query, fileSummaries(req.Files), req.History)
	if err != nil {
		return model.IntentResult{}, err
	}
	content, err := o.generate(ctx, "analyze_intent", o.planner, o.plannerModel, msgs)
	if err != nil {
		return model.IntentResult{}, err
	}
	var res model.IntentResult
	if err := parsers.DecodeJSON(content, &res); err != nil {
		return model.IntentResult{}, errx.Malformed(err)
	}
	return res, nil
}

func (o *ChatOracle) PlanAnalysis(ctx context.Context, req model.PlanRequest) (model.Plan, error) {
	schemas := map[string]any{}
	for _, f := range req.Selected {
		schemas[f.Filename] = map[string]any{
			"columns":             f.Columns,
			"numeric_columns":     f.NumericColumns,
			"categorical_columns": f.CategoricalColumns,
			"time_period":         f.TimePeriod,
		}
	}
	msgs, err := prompts.Plan(ctx, req.Query, req.Intent, req.OperationType, periodSummaries(req.Files), toJSON(schemas))
	if err != nil {
		return nil, err
	}
	content, err := o.generate(ctx, "plan_analysis", o.planner, o.plannerModel, msgs)
	if err != nil {
		return nil, err
	}
	m, err := parsers.DecodeObject(content)
	if err != nil {
		return nil, errx.Malformed(err)
	}
	return model.Plan(m), nil
}

func (o *ChatOracle) ProposeAlignment(ctx context.Context, req model.AlignmentRequest) (model.Alignment, error) {
	files := make([]map[string]any, 0, len(req.Files))
	for _, f := range req.Files {
		files = append(files, map[string]any{
			"filename":            f.Filename,
			"time_period":         f.TimePeriod,
			"columns":             f.Columns,
			"numeric_columns":     f.NumericColumns,
			"categorical_columns": f.CategoricalColumns,
		})
	}
	msgs, err := prompts.Align(ctx, req.TimePeriods, toJSON(files))
	if err != nil {
		return nil, err
	}
	content, err := o.generate(ctx, "align_timeseries", o.planner, o.plannerModel, msgs)
	if err != nil {
		return nil, err
	}
	m, err := parsers.DecodeObject(content)
	if err != nil {
		return nil, errx.Malformed(err)
	}
	return model.Alignment(m), nil
}

func (o *ChatOracle) GenerateCode(ctx context.Context, req model.CodeRequest) (string, error) {
	schemas := map[string]any{}
	for _, f := range req.Files {
		sample := f.SampleRows
		if len(sample) > 2 {
			sample = sample[:2]
		}
		schemas[f.Filename] = map[string]any{
			"filepath":            f.Filepath,
			"columns":             f.Columns,
			"numeric_columns":     f.NumericColumns,
			"categorical_columns": f.CategoricalColumns,
			"time_period":         f.TimePeriod,
			"sample":              sample,
		}
	}
	vars := prompts.CodeVars{
		Query:          req.Query,
		Plan:           toJSON(req.Plan),
		Files:          req.Files,
		Schemas:        toJSON(schemas),
		PreviousErrors: req.PreviousErrors,
	}
	if len(req.Alignment) > 0 {
		vars.Alignment = toJSON(req.Alignment)
	}
	msgs, err := prompts.Code(ctx, vars)
	if err != nil {
		return "", err
	}
	content, err := o.generate(ctx, "generate_code", o.planner, o.plannerModel, msgs)
	if err != nil {
		return "", err
	}
	code := parsers.ExtractCode(content)
	if code == "" {
		return "", errx.Malformed(parsers.ErrEmpty)
	}
	return code, nil
}

func (o *ChatOracle) Explain(ctx context.Context, req model.ExplainRequest) (string, error) {
	msgs, err := prompts.Explain(ctx, req.Query, req.ResultJSON, strings.Join(req.FilesUsed, ", "), req.AnalysisType)
	if err != nil {
		return "", err
	}
	content, err := o.generate(ctx, "explain_result", o.explainer, o.explainerModel, msgs)
	if err != nil {
		return "", err
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return "", errx.Malformed(parsers.ErrEmpty)
	}
	return content, nil
}

func (o *ChatOracle) AnalyzeTrends(ctx context.Context, req model.TrendRequest) (model.TrendInsights, error) {
	msgs, err := prompts.Trend(ctx, req.Query, req.TimePeriods, toJSON(req.DataSummary), req.ResultJSON)
	if err != nil {
		return nil, err
	}
	content, err := o.generate(ctx, "trend_analysis", o.planner, o.plannerModel, msgs)
	if err != nil {
		return nil, err
	}
	m, err := parsers.DecodeObject(content)
	if err != nil {
		return nil, errx.Malformed(err)
	}
	return model.TrendInsights(m), nil
}

func (o *ChatOracle) generate(ctx context.Context, node string, cm einomodel.BaseChatModel, modelName string, msgs []*schema.Message) (string, error) {
	if cm == nil {
		return "", errx.WrapOracle(errors.New("chat model not configured"))
	}
	ctx = callbacks.ReuseHandlers(ctx, &callbacks.RunInfo{
		Name:      node,
		Type:      modelName,
		Component: components.ComponentOfChatModel,
	})
	out, err := cm.Generate(ctx, msgs)
	if err != nil {
		logx.Warn().Err(err).Str("node", node).Str("model", modelName).Msg("oracle call failed")
		return "", errx.WrapOracle(err)
	}
	if out == nil {
		return "", errx.Malformed(errors.New("nil message"))
	}
	recordUsage(ctx, node, modelName, out)
	return out.Content, nil
}

// recordUsage logs token usage and folds it into the run's local stats when
// called inside a graph run.
func recordUsage(ctx context.Context, node, modelName string, out *schema.Message) {
	var usage *schema.TokenUsage
	if out.ResponseMeta != nil {
		usage = out.ResponseMeta.Usage
	}
	inC, outC, totalC := model.ComputeCost(usage, model.ResolvePricing(modelName))
	if usage != nil {
		logx.Debug().
			Str("node", node).
			Str("model", modelName).
			Int("prompt_tokens", usage.PromptTokens).
			Int("completion_tokens", usage.CompletionTokens).
			Int("total_tokens", usage.TotalTokens).
			Float64("input_cost_usd", inC).
			Float64("output_cost_usd", outC).
			Float64("total_cost_usd", totalC).
			Msg("LLM usage")
	}
	_ = compose.ProcessState(ctx, func(_ context.Context, s *model.RunStats) error {
		s.Add(usage, totalC)
		return nil
	})
}

func fileSummaries(files []model.FileInfo) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		cols := f.Columns
		more := ""
		if len(cols) > maxSummaryColumns {
			cols, more = cols[:maxSummaryColumns], "..."
		}
		out = append(out, fmt.Sprintf("%s - %s, %d rows, columns: %s%s",
			f.Filename, periodOrUnknown(f.TimePeriod), f.RowCount, strings.Join(cols, ", "), more))
	}
	return out
}

func periodSummaries(files []model.FileInfo) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, fmt.Sprintf("%s - %s", f.Filename, periodOrUnknown(f.TimePeriod)))
	}
	return out
}

func periodOrUnknown(p string) string {
	if strings.TrimSpace(p) == "" {
		return "Unknown period"
	}
	return p
}

func toJSON(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

var _ model.Oracle = (*ChatOracle)(nil)

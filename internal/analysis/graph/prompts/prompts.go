// Package prompts renders the oracle prompts through the eino prompt
// component so prompt callbacks fire for every call.
package prompts

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/pushkal/server/internal/analysis/model"
)

var (
	//go:embed template/intent.txt
	intentPrompt string
	//go:embed template/plan.txt
	planPrompt string
	//go:embed template/align.txt
	alignPrompt string
	//go:embed template/code.txt
	codePrompt string
	//go:embed template/explain.txt
	explainPrompt string
	//go:embed template/trend.txt
	trendPrompt string
)

// render formats a system template plus the user query as a Go template.
func render(ctx context.Context, name, system, user string, vars map[string]any) ([]*schema.Message, error) {
	tpl := prompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	msgs, err := tpl.Format(ctx, vars)
	if err != nil {
		return nil, fmt.Errorf("%s prompt render: %w", name, err)
	}
	if len(msgs) == 0 || msgs[0] == nil {
		return nil, fmt.Errorf("%s prompt render: empty result", name)
	}
	return msgs, nil
}

const queryMessage = "User query: {{.Query}}"

// Intent renders the intent-classification prompt. files are one-line file
// summaries; history is already trimmed to the configured number of turns.
func Intent(ctx context.Context, query string, files []string, history []model.ChatMessage) ([]*schema.Message, error) {
	return render(ctx, "intent", intentPrompt, queryMessage, map[string]any{
		"Query":   query,
		"Files":   files,
		"History": history,
	})
}

// Plan renders the planning prompt; schemas is pre-serialized JSON.
func Plan(ctx context.Context, query string, intent model.Intent, op model.OperationType, files []string, schemas string) ([]*schema.Message, error) {
	return render(ctx, "plan", planPrompt, queryMessage, map[string]any{
		"Query":         query,
		"Intent":        string(intent),
		"OperationType": string(op),
		"Files":         files,
		"Schemas":       schemas,
	})
}

func Align(ctx context.Context, timePeriods []string, files string) ([]*schema.Message, error) {
	return render(ctx, "align", alignPrompt, "Propose the alignment.", map[string]any{
		"TimePeriods": timePeriods,
		"Files":       files,
	})
}

// CodeVars carries the pre-serialized inputs of the code-generation prompt.
type CodeVars struct {
	Query          string
	Plan           string
	Alignment      string
	Files          []model.FileInfo
	Schemas        string
	PreviousErrors []string
}

func Code(ctx context.Context, v CodeVars) ([]*schema.Message, error) {
	return render(ctx, "code", codePrompt, queryMessage, map[string]any{
		"Query":          v.Query,
		"Plan":           v.Plan,
		"Alignment":      v.Alignment,
		"Files":          v.Files,
		"Schemas":        v.Schemas,
		"PreviousErrors": v.PreviousErrors,
	})
}

func Explain(ctx context.Context, query, result, filesUsed, analysisType string) ([]*schema.Message, error) {
	return render(ctx, "explain", explainPrompt, queryMessage, map[string]any{
		"Query":        query,
		"Result":       result,
		"FilesUsed":    filesUsed,
		"AnalysisType": analysisType,
	})
}

func Trend(ctx context.Context, query string, timePeriods []string, dataSummary, result string) ([]*schema.Message, error) {
	return render(ctx, "trend", trendPrompt, queryMessage, map[string]any{
		"Query":       query,
		"TimePeriods": timePeriods,
		"DataSummary": dataSummary,
		"Result":      result,
	})
}

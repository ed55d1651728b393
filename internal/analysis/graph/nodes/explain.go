package nodes

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/pushkal/server/internal/analysis/graph/parsers"
	"github.com/pushkal/server/internal/analysis/model"
	logx "github.com/pushkal/server/pkg/logger"
)

const maxRecommendations = 5

var trendKeywords = []string{"trend", "growth", "change", "compare", "anomal", "pattern", "season"}

// wantsTrends reports whether the run asked for trend, comparison or anomaly work.
func wantsTrends(s *model.State) bool {
	if s.Intent == model.IntentTrend || s.Intent == model.IntentCompare {
		return true
	}
	q := strings.ToLower(s.UserQuery)
	for _, kw := range trendKeywords {
		if strings.Contains(q, kw) {
			return true
		}
	}
	return false
}

// TrendAnalysis asks the oracle for growth, patterns, anomalies and
// correlations when the query calls for them, and merges its recommended
// actions after the existing recommendations.
func (n *Nodes) TrendAnalysis(ctx context.Context, s model.State) (model.State, []string) {
	s.TrendInsights = nil
	if !wantsTrends(&s) || s.ResultData == nil {
		return s, nil
	}
	selected := s.SelectedFiles()
	summary := make([]map[string]any, 0, len(selected))
	for _, f := range selected {
		summary = append(summary, map[string]any{
			"file":         f.Filename,
			"period":       f.TimePeriod,
			"rows":         f.RowCount,
			"numeric_cols": f.NumericColumns,
		})
	}
	insights, err := n.oracle.AnalyzeTrends(ctx, model.TrendRequest{
		Query:       s.UserQuery,
		TimePeriods: timePeriods(selected),
		DataSummary: summary,
		ResultJSON:  n.resultPreview(s.ResultData),
	})
	if err != nil {
		logx.Warn().Err(err).Str("run_id", s.RunID).Msg("trend analysis degraded")
		s.TrendInsights = model.TrendInsights{"error": err.Error()}
		return s, nil
	}
	s.TrendInsights = insights
	s.Recommendations = mergeRecommendations(s.Recommendations, insights.RecommendedActions())
	return s, nil
}

// ExplainResult turns the result into a natural-language explanation and
// extracts its recommendations.
func (n *Nodes) ExplainResult(ctx context.Context, s model.State) (model.State, []string) {
	if s.ExecutionResult == nil || !s.ExecutionResult.Success {
		msg := "Unknown error"
		if s.ExecutionResult != nil && s.ExecutionResult.Error != "" {
			msg = s.ExecutionResult.Error
		}
		s.Explanation = "I encountered an error while analyzing your data: " + msg
		s.Recommendations = []string{
			"Please try rephrasing your question",
			"Make sure the data contains the columns you're asking about",
		}
		return s, nil
	}
	if s.ResultData == nil {
		s.Explanation = "No results were generated from the analysis."
		s.Recommendations = []string{"Please try a different query"}
		return s, nil
	}

	text, err := n.oracle.Explain(ctx, model.ExplainRequest{
		Query:        s.UserQuery,
		ResultJSON:   n.resultPreview(s.ResultData),
		FilesUsed:    slices.Clone(s.FilesToUse),
		AnalysisType: analysisType(&s),
	})
	if err != nil {
		logx.Warn().Err(err).Str("run_id", s.RunID).Msg("explanation degraded")
		s.Explanation = "Analysis complete. Here are the results based on your query."
		s.Recommendations = mergeRecommendations([]string{"Review the data table for detailed insights"}, s.Recommendations)
		return s, []string{fmt.Sprintf("Explanation generation error: %v", err)}
	}

	body, recs := parsers.SplitRecommendations(text)
	s.Explanation = body
	recs = mergeRecommendations(recs, s.Recommendations)
	if len(recs) == 0 {
		recs = []string{"Consider exploring related metrics"}
	}
	s.Recommendations = recs
	return s, nil
}

// HandleError builds the user-facing failure message from the first three
// recorded errors.
func (n *Nodes) HandleError(_ context.Context, s model.State) (model.State, []string) {
	all := make([]string, 0, len(s.Errors)+len(s.ValidationErrors))
	all = append(all, s.Errors...)
	all = append(all, s.ValidationErrors...)
	if len(all) == 0 {
		all = []string{"An unknown error occurred during analysis"}
	}
	if len(all) > 3 {
		all = all[:3]
	}

	var b strings.Builder
	b.WriteString("I wasn't able to complete your analysis:\n\n")
	for i, e := range all {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString("• ")
		b.WriteString(e)
	}
	b.WriteString("\n\nPlease try rephrasing your question or check if the data contains the requested columns.")

	s.Explanation = b.String()
	s.FinalResponse = s.Explanation
	s.Recommendations = []string{
		"Try a simpler query first",
		"Check available column names in your files",
	}
	return s, nil
}

// ReturnChat assembles the final response.
func (n *Nodes) ReturnChat(_ context.Context, s model.State) (model.State, []string) {
	var resp string
	if len(s.Errors) > 0 && s.Explanation == "" {
		lines := make([]string, 0, len(s.Errors))
		for _, e := range s.Errors {
			lines = append(lines, "- "+e)
		}
		resp = "I encountered some issues while processing your request:\n" + strings.Join(lines, "\n")
	} else {
		resp = s.Explanation
	}
	if rows := s.ResultData.Rows(); rows > 0 {
		resp += fmt.Sprintf("\n\n*Result: %d rows returned*", rows)
	}
	if strings.TrimSpace(resp) == "" {
		resp = "Analysis complete."
	}
	s.FinalResponse = resp
	return s, nil
}

func analysisType(s *model.State) string {
	intent, op := s.Intent, s.OperationType
	if intent == "" {
		intent = model.IntentQuery
	}
	if op == "" {
		op = model.OperationSingleTable
	}
	return fmt.Sprintf("%s (%s)", intent, op)
}

// resultPreview serializes the result, truncated to the configured size.
func (n *Nodes) resultPreview(r *model.ResultData) string {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprint(r)
	}
	limit := n.cfg.ResultPreviewChars
	if limit > 0 && len(b) > limit {
		// cut on a rune boundary
		for limit > 0 && !utf8.RuneStart(b[limit]) {
			limit--
		}
		b = b[:limit]
	}
	return string(b)
}

// mergeRecommendations appends extra after first, dropping duplicates, and
// keeps at most maxRecommendations entries.
func mergeRecommendations(first, extra []string) []string {
	out := make([]string, 0, len(first)+len(extra))
	for _, r := range append(slices.Clone(first), extra...) {
		r = strings.TrimSpace(r)
		if r == "" || slices.Contains(out, r) {
			continue
		}
		out = append(out, r)
	}
	if len(out) > maxRecommendations {
		out = out[:maxRecommendations]
	}
	return out
}

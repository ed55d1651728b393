package nodes

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushkal/server/internal/analysis/model"
	"github.com/pushkal/server/internal/analysis/oracle/oracletest"
	"github.com/pushkal/server/internal/analysis/validator"
)

type stubSandbox struct {
	out   model.ExecutionOutcome
	calls int
}

func (s *stubSandbox) Execute(context.Context, string) model.ExecutionOutcome {
	s.calls++
	return s.out
}

type stubPreviews struct{ seen []string }

func (p *stubPreviews) Preview(_ context.Context, path string) (model.FilePreview, error) {
	p.seen = append(p.seen, path)
	if strings.HasSuffix(path, ".bad.csv") {
		return model.FilePreview{}, errors.New("unreadable")
	}
	return model.FilePreview{Columns: []string{"Region"}, RowCount: 7}, nil
}

var (
	octFile = model.FileInfo{
		Filename:           "sales_oct.csv",
		TimePeriod:         "2024-10",
		RowCount:           6,
		Columns:            []string{"Region", "Product", "Revenue", "Discount"},
		NumericColumns:     []string{"Revenue", "Discount"},
		CategoricalColumns: []string{"Region", "Product"},
	}
	novFile = model.FileInfo{
		Filename:           "sales_nov.csv",
		TimePeriod:         "2024-11",
		RowCount:           7,
		Columns:            []string{"Product", "Region", "Revenue", "Units"},
		NumericColumns:     []string{"Units", "Revenue"},
		CategoricalColumns: []string{"Region"},
	}
)

func newTestNodes(o model.Oracle, sb model.Sandbox) *Nodes {
	return New(Deps{
		Oracle:    o,
		Validator: validator.New(),
		Sandbox:   sb,
		Previews:  &stubPreviews{},
		Config:    model.DefaultWorkflowConfig(),
	})
}

func baseState(query string, files ...model.FileInfo) model.State {
	return *model.NewState("run-1", model.Input{SessionID: "s1", Query: query, Files: files})
}

func TestIngestQuery(t *testing.T) {
	n := newTestNodes(&oracletest.Scripted{}, &stubSandbox{})

	s, errs := n.IngestQuery(context.Background(), baseState("  total revenue  "))
	assert.Empty(t, errs)
	assert.Equal(t, "total revenue", s.UserQuery)

	_, errs = n.IngestQuery(context.Background(), baseState("   "))
	assert.Equal(t, []string{"Empty query provided"}, errs)
}

func TestParseFiles(t *testing.T) {
	n := newTestNodes(&oracletest.Scripted{}, &stubSandbox{})

	s, errs := n.ParseFiles(context.Background(), baseState("q", octFile, novFile))
	require.Empty(t, errs)
	if diff := cmp.Diff([]string{"Product", "Region", "Revenue"}, s.CommonColumns); diff != "" {
		t.Errorf("common columns (-want +got):\n%s", diff)
	}
	assert.Equal(t, []string{"Discount", "Revenue", "Units"}, s.AllNumericColumns)
	assert.Equal(t, []string{"Product", "Region"}, s.AllCategoricalColumns)
	require.Len(t, s.ParsedFiles, 2)
	assert.NotNil(t, s.ParsedFiles[0].DateColumns)

	s, errs = n.ParseFiles(context.Background(), baseState("q"))
	assert.Equal(t, []string{"No files available for analysis"}, errs)
	assert.Empty(t, s.CommonColumns)
}

func TestRetrieveContextSkipsMissingFiles(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "sales_nov.csv")
	bad := filepath.Join(dir, "sales_oct.bad.csv")
	require.NoError(t, os.WriteFile(good, []byte("Region\nNorth\n"), 0o600))
	require.NoError(t, os.WriteFile(bad, []byte("x"), 0o600))

	previews := &stubPreviews{}
	n := New(Deps{Previews: previews, Config: model.DefaultWorkflowConfig()})
	nov, oct, gone := novFile, octFile, novFile
	nov.Filepath, oct.Filepath = good, bad
	gone.Filename, gone.Filepath = "gone.csv", filepath.Join(dir, "gone.csv")

	s, errs := n.RetrieveContext(context.Background(), baseState("q", nov, oct, gone))
	assert.Empty(t, errs)
	assert.Len(t, s.FileData, 1)
	assert.Contains(t, s.FileData, "sales_nov.csv")
	assert.Equal(t, []string{good, bad}, previews.seen)
}

func TestAnalyzeIntent(t *testing.T) {
	tests := []struct {
		name      string
		oracle    *oracletest.Scripted
		wantFiles []string
		wantOp    model.OperationType
		wantInt   model.Intent
		wantErr   string
	}{
		{
			name: "oracle answer",
			oracle: &oracletest.Scripted{Intent: model.IntentResult{
				Intent: "compare", OperationType: "temporal", FilesNeeded: []string{"sales_oct.csv", "sales_nov.csv"},
			}},
			wantFiles: []string{"sales_oct.csv", "sales_nov.csv"},
			wantOp:    model.OperationTemporal,
			wantInt:   model.IntentCompare,
		},
		{
			name: "pipe separated intent and unknown files",
			oracle: &oracletest.Scripted{Intent: model.IntentResult{
				Intent: "trend|compare", OperationType: "bogus", FilesNeeded: []string{"missing.csv"},
			}},
			wantFiles: []string{"sales_oct.csv"},
			wantOp:    model.OperationSingleTable,
			wantInt:   model.IntentTrend,
		},
		{
			name:      "oracle failure",
			oracle:    &oracletest.Scripted{IntentErr: errors.New("provider down")},
			wantFiles: []string{"sales_oct.csv"},
			wantOp:    model.OperationSingleTable,
			wantInt:   model.IntentQuery,
			wantErr:   "Intent analysis error: provider down",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNodes(tt.oracle, &stubSandbox{})
			s, errs := n.AnalyzeIntent(context.Background(), baseState("compare revenue", octFile, novFile))
			assert.Equal(t, tt.wantInt, s.Intent)
			assert.Equal(t, tt.wantOp, s.OperationType)
			assert.Equal(t, tt.wantFiles, s.FilesToUse)
			if tt.wantErr == "" {
				assert.Empty(t, errs)
			} else {
				assert.Equal(t, []string{tt.wantErr}, errs)
			}
		})
	}
}

func TestOracleNodesPassThroughWithoutInput(t *testing.T) {
	o := &oracletest.Scripted{}
	n := newTestNodes(o, &stubSandbox{})
	ctx := context.Background()

	s := baseState("total revenue")
	s, _ = n.AnalyzeIntent(ctx, s)
	s, _ = n.PlanAnalysis(ctx, s)
	s, _ = n.GenerateCode(ctx, s)

	assert.Zero(t, o.TotalCalls())
	assert.Equal(t, model.IntentQuery, s.Intent)
	assert.Empty(t, s.FilesToUse)
	assert.Equal(t, "Default plan", s.Plan["reasoning"])
	assert.Empty(t, s.GeneratedCode)
}

func TestPlanAnalysisDefault(t *testing.T) {
	n := newTestNodes(&oracletest.Scripted{PlanErr: errors.New("bad json")}, &stubSandbox{})
	s := baseState("q", octFile, novFile)
	s.OperationType = model.OperationCrossTable

	s, errs := n.PlanAnalysis(context.Background(), s)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "bad json")
	assert.True(t, s.Plan.TimeAlignmentNeeded())
	assert.Equal(t, []any{"Load data", "Perform basic analysis"}, s.Plan["operations"])
	assert.Equal(t, "Default plan (error: bad json)", s.Plan["reasoning"])
}

func TestAlignTimeseries(t *testing.T) {
	ctx := context.Background()

	t.Run("single table passes through", func(t *testing.T) {
		o := &oracletest.Scripted{}
		s := baseState("q", octFile, novFile)
		s.OperationType = model.OperationSingleTable
		s, errs := newTestNodes(o, &stubSandbox{}).AlignTimeseries(ctx, s)
		assert.Empty(t, errs)
		assert.Nil(t, s.AlignmentInfo)
		assert.Zero(t, o.TotalCalls())
	})

	t.Run("one selected file passes through", func(t *testing.T) {
		o := &oracletest.Scripted{}
		s := baseState("q", octFile, novFile)
		s.OperationType = model.OperationTemporal
		s.FilesToUse = []string{"sales_nov.csv"}
		s, _ = newTestNodes(o, &stubSandbox{}).AlignTimeseries(ctx, s)
		assert.Nil(t, s.AlignmentInfo)
		assert.Zero(t, o.TotalCalls())
	})

	t.Run("oracle failure flags alignment", func(t *testing.T) {
		o := &oracletest.Scripted{AlignmentErr: errors.New("timeout")}
		s := baseState("q", octFile, novFile)
		s.OperationType = model.OperationCrossTable
		s.FilesToUse = []string{"sales_oct.csv", "sales_nov.csv"}
		s, errs := newTestNodes(o, &stubSandbox{}).AlignTimeseries(ctx, s)
		assert.Equal(t, []string{"Alignment error: timeout"}, errs)
		assert.Equal(t, "unknown", s.AlignmentInfo["time_granularity"])
		assert.Equal(t, "timeout", s.AlignmentInfo["error"])
	})
}

func TestGenerateCodePassesPreviousErrors(t *testing.T) {
	o := &oracletest.Scripted{Codes: []string{"var result = 1"}}
	n := newTestNodes(o, &stubSandbox{})
	s := baseState("q", octFile, novFile)
	s.FilesToUse = []string{"sales_nov.csv"}
	s.ValidationErrors = []string{"Code must define a 'result' variable"}

	s, errs := n.GenerateCode(context.Background(), s)
	assert.Empty(t, errs)
	assert.Equal(t, "var result = 1", s.GeneratedCode)
	reqs := o.CodeRequests()
	require.Len(t, reqs, 1)
	assert.Equal(t, []string{"Code must define a 'result' variable"}, reqs[0].PreviousErrors)
	require.Len(t, reqs[0].Files, 1)
	assert.Equal(t, "sales_nov.csv", reqs[0].Files[0].Filename)
}

func TestValidateCode(t *testing.T) {
	n := newTestNodes(&oracletest.Scripted{}, &stubSandbox{})
	ctx := context.Background()

	s := baseState("q")
	s.GeneratedCode = `exec.Command("ls")`
	s, _ = n.ValidateCode(ctx, s)
	assert.False(t, s.CodeValid)
	assert.Contains(t, s.ValidationErrors, "Forbidden pattern detected: exec.command")
	assert.Equal(t, `exec.Command("ls")`, s.GeneratedCode)

	s.GeneratedCode = "var result = floats.Sum([]float64{1, 2})"
	s, _ = n.ValidateCode(ctx, s)
	assert.True(t, s.CodeValid)
	assert.Empty(t, s.ValidationErrors)
	assert.Contains(t, s.GeneratedCode, "package main")
	assert.Contains(t, s.GeneratedCode, `"gonum.org/v1/gonum/floats"`)
}

func TestExecuteCode(t *testing.T) {
	ctx := context.Background()
	data := &model.ResultData{Type: model.ResultValue, Data: int64(3)}

	sb := &stubSandbox{out: model.ExecutionOutcome{Result: model.ExecutionResult{Success: true}, Data: data}}
	s := baseState("q")
	s.GeneratedCode, s.CodeValid = "package main\nvar result = 3", true
	s, errs := newTestNodes(&oracletest.Scripted{}, sb).ExecuteCode(ctx, s)
	assert.Empty(t, errs)
	assert.Same(t, data, s.ResultData)

	sb = &stubSandbox{out: model.ExecutionOutcome{Result: model.ExecutionResult{Error: "no result variable defined"}}}
	s, errs = newTestNodes(&oracletest.Scripted{}, sb).ExecuteCode(ctx, s)
	assert.Equal(t, []string{"Execution error: no result variable defined"}, errs)
	assert.Nil(t, s.ResultData)

	s.CodeValid = false
	s, errs = newTestNodes(&oracletest.Scripted{}, sb).ExecuteCode(ctx, s)
	assert.Equal(t, []string{"Execution error: No valid code to execute"}, errs)
	assert.Equal(t, 1, sb.calls)
}

func TestTrendAnalysis(t *testing.T) {
	ctx := context.Background()
	result := &model.ResultData{Type: model.ResultDict, Data: map[string]any{"growth": 0.1}}

	o := &oracletest.Scripted{Trends: model.TrendInsights{
		"recommended_actions": []any{"Stock up for December", "Review discounts", "Expand North", "Audit returns", "Keep pricing"},
	}}
	s := baseState("how did revenue change", octFile)
	s.ResultData = result
	s.Recommendations = []string{"Existing first"}
	s, errs := newTestNodes(o, &stubSandbox{}).TrendAnalysis(ctx, s)
	assert.Empty(t, errs)
	assert.Equal(t, []string{"Existing first", "Stock up for December", "Review discounts", "Expand North", "Audit returns"}, s.Recommendations)

	o = &oracletest.Scripted{}
	s = baseState("total revenue", octFile)
	s.Intent, s.ResultData = model.IntentAggregate, result
	s, _ = newTestNodes(o, &stubSandbox{}).TrendAnalysis(ctx, s)
	assert.Nil(t, s.TrendInsights)
	assert.Zero(t, o.TotalCalls())

	o = &oracletest.Scripted{TrendsErr: errors.New("unparseable")}
	s = baseState("total revenue", octFile)
	s.Intent, s.ResultData = model.IntentTrend, result
	s, errs = newTestNodes(o, &stubSandbox{}).TrendAnalysis(ctx, s)
	assert.Empty(t, errs)
	assert.Equal(t, model.TrendInsights{"error": "unparseable"}, s.TrendInsights)
}

func TestExplainResult(t *testing.T) {
	ctx := context.Background()
	ok := &model.ExecutionResult{Success: true}
	data := &model.ResultData{Type: model.ResultValue, Data: 42.0}

	t.Run("recommendations extracted", func(t *testing.T) {
		o := &oracletest.Scripted{Explanation: "North leads.\n\n**Recommendations:**\n- Grow South\n* Watch discounts"}
		s := baseState("q", novFile)
		s.ExecutionResult, s.ResultData = ok, data
		s, errs := newTestNodes(o, &stubSandbox{}).ExplainResult(ctx, s)
		assert.Empty(t, errs)
		assert.Equal(t, "North leads.", s.Explanation)
		assert.Equal(t, []string{"Grow South", "Watch discounts"}, s.Recommendations)
	})

	t.Run("generic recommendation", func(t *testing.T) {
		o := &oracletest.Scripted{Explanation: "North leads."}
		s := baseState("q", novFile)
		s.ExecutionResult, s.ResultData = ok, data
		s, _ = newTestNodes(o, &stubSandbox{}).ExplainResult(ctx, s)
		assert.Equal(t, []string{"Consider exploring related metrics"}, s.Recommendations)
	})

	t.Run("oracle failure", func(t *testing.T) {
		o := &oracletest.Scripted{ExplainErr: errors.New("quota")}
		s := baseState("q", novFile)
		s.ExecutionResult, s.ResultData = ok, data
		s, errs := newTestNodes(o, &stubSandbox{}).ExplainResult(ctx, s)
		assert.Equal(t, []string{"Explanation generation error: quota"}, errs)
		assert.Equal(t, "Analysis complete. Here are the results based on your query.", s.Explanation)
		assert.Equal(t, []string{"Review the data table for detailed insights"}, s.Recommendations)
	})

	t.Run("empty result", func(t *testing.T) {
		o := &oracletest.Scripted{}
		s := baseState("q", novFile)
		s.ExecutionResult = ok
		s, _ = newTestNodes(o, &stubSandbox{}).ExplainResult(ctx, s)
		assert.Equal(t, "No results were generated from the analysis.", s.Explanation)
		assert.Zero(t, o.TotalCalls())
	})

	t.Run("execution failed", func(t *testing.T) {
		s := baseState("q", novFile)
		s.ExecutionResult = &model.ExecutionResult{Error: "division by zero"}
		s, _ = newTestNodes(&oracletest.Scripted{}, &stubSandbox{}).ExplainResult(ctx, s)
		assert.Equal(t, "I encountered an error while analyzing your data: division by zero", s.Explanation)
	})
}

func TestResultPreviewTruncated(t *testing.T) {
	n := newTestNodes(&oracletest.Scripted{}, &stubSandbox{})
	n.cfg.ResultPreviewChars = 20
	got := n.resultPreview(&model.ResultData{Type: model.ResultValue, Data: strings.Repeat("x", 100)})
	assert.Len(t, got, 20)
}

func TestResultPreviewKeepsRunesWhole(t *testing.T) {
	n := newTestNodes(&oracletest.Scripted{}, &stubSandbox{})
	data := &model.ResultData{Type: model.ResultValue, Data: strings.Repeat("é", 50)}
	full := n.resultPreview(data)

	for limit := 30; limit < 40; limit++ {
		n.cfg.ResultPreviewChars = limit
		got := n.resultPreview(data)
		assert.True(t, utf8.ValidString(got), "limit %d", limit)
		assert.LessOrEqual(t, len(got), limit)
		assert.GreaterOrEqual(t, len(got), limit-1)
		assert.True(t, strings.HasPrefix(full, got))
	}
}

func TestHandleError(t *testing.T) {
	n := newTestNodes(&oracletest.Scripted{}, &stubSandbox{})

	s := baseState("q")
	s.Errors = []string{"Code generation error: a", "Code generation error: b"}
	s.ValidationErrors = []string{"No code generated", "never shown"}
	s, errs := n.HandleError(context.Background(), s)
	assert.Empty(t, errs)
	want := "I wasn't able to complete your analysis:\n\n" +
		"• Code generation error: a\n• Code generation error: b\n• No code generated" +
		"\n\nPlease try rephrasing your question or check if the data contains the requested columns."
	assert.Equal(t, want, s.FinalResponse)
	assert.Equal(t, want, s.Explanation)
	assert.Len(t, s.Recommendations, 2)

	s, _ = n.HandleError(context.Background(), baseState("q"))
	assert.Contains(t, s.FinalResponse, "An unknown error occurred during analysis")
}

func TestReturnChat(t *testing.T) {
	n := newTestNodes(&oracletest.Scripted{}, &stubSandbox{})
	ctx := context.Background()

	s := baseState("q")
	s.Explanation = "Revenue by region."
	s.ResultData = &model.ResultData{Type: model.ResultDataFrame, Shape: []int{7, 3}}
	s, _ = n.ReturnChat(ctx, s)
	assert.Equal(t, "Revenue by region.\n\n*Result: 7 rows returned*", s.FinalResponse)

	s = baseState("q")
	s.Errors = []string{"Empty query provided"}
	s, _ = n.ReturnChat(ctx, s)
	assert.Equal(t, "I encountered some issues while processing your request:\n- Empty query provided", s.FinalResponse)
}

func TestIncrementRetry(t *testing.T) {
	n := newTestNodes(&oracletest.Scripted{}, &stubSandbox{})
	s, _ := n.IncrementRetry(context.Background(), baseState("q"))
	s, _ = n.IncrementRetry(context.Background(), s)
	assert.Equal(t, 2, s.RetryCount)
}

package oracle

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	einomodel "github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pushkal/server/internal/analysis/model"
	errx "github.com/pushkal/server/internal/core/error"
)

type scriptedModel struct {
	replies []string
	err     error
	seen    [][]*schema.Message
}

func (m *scriptedModel) Generate(_ context.Context, in []*schema.Message, _ ...einomodel.Option) (*schema.Message, error) {
	m.seen = append(m.seen, in)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.replies) == 0 {
		return nil, nil
	}
	content := m.replies[0]
	m.replies = m.replies[1:]
	return &schema.Message{
		Role:    schema.Assistant,
		Content: content,
		ResponseMeta: &schema.ResponseMeta{
			Usage: &schema.TokenUsage{PromptTokens: 100, CompletionTokens: 20, TotalTokens: 120},
		},
	}, nil
}

func (m *scriptedModel) Stream(context.Context, []*schema.Message, ...einomodel.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not supported")
}

var salesFiles = []model.FileInfo{
	{
		Filename:       "sales_nov.csv",
		Filepath:       "/data/sales_nov.csv",
		TimePeriod:     "2024-11",
		RowCount:       7,
		Columns:        []string{"Order ID", "Order Date", "Region", "Product", "Units", "Revenue"},
		NumericColumns: []string{"Units", "Revenue"},
	},
}

func TestAnalyzeIntent(t *testing.T) {
	planner := &scriptedModel{replies: []string{"Sure:\n```json\n{\"intent\":\"aggregate\",\"operation_type\":\"single_table\",\"files_needed\":[\"sales_nov.csv\"],\"reasoning\":\"totals\"}\n```"}}
	o := New(planner, nil, "gemini-2.5-flash", "")

	res, err := o.AnalyzeIntent(context.Background(), model.IntentRequest{Query: "total revenue by region", Files: salesFiles})
	require.NoError(t, err)
	assert.Equal(t, "aggregate", res.Intent)
	assert.Equal(t, []string{"sales_nov.csv"}, res.FilesNeeded)

	require.Len(t, planner.seen, 1)
	var rendered strings.Builder
	for _, m := range planner.seen[0] {
		rendered.WriteString(m.Content)
	}
	assert.Contains(t, rendered.String(), "sales_nov.csv - 2024-11, 7 rows, columns: Order ID, Order Date, Region, Product, Units...")
	assert.Contains(t, rendered.String(), "total revenue by region")
}

func TestAnalyzeIntentMalformed(t *testing.T) {
	o := New(&scriptedModel{replies: []string{"I could not decide"}}, nil, "m", "")

	_, err := o.AnalyzeIntent(context.Background(), model.IntentRequest{Query: "q", Files: salesFiles})
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrMalformedResponse)
	assert.Equal(t, http.StatusUnprocessableEntity, errx.StatusOf(err))
}

func TestProviderFailure(t *testing.T) {
	o := New(&scriptedModel{err: errors.New("429 RESOURCE_EXHAUSTED")}, nil, "m", "")

	_, err := o.PlanAnalysis(context.Background(), model.PlanRequest{Query: "q", Files: salesFiles, Selected: salesFiles})
	require.Error(t, err)
	assert.ErrorIs(t, err, errx.ErrRateLimited)
}

func TestNilReplyIsMalformed(t *testing.T) {
	o := New(&scriptedModel{}, nil, "m", "")

	_, err := o.Explain(context.Background(), model.ExplainRequest{Query: "q", ResultJSON: "{}"})
	assert.ErrorIs(t, err, errx.ErrMalformedResponse)
}

func TestPlanAndAlignment(t *testing.T) {
	planner := &scriptedModel{replies: []string{
		`{"operations":["Load data","Group by Region"],"group_by":["Region"],"time_alignment_needed":false}`,
		`{"alignment_keys":["Region"],"time_granularity":"monthly"}`,
	}}
	o := New(planner, nil, "m", "")
	ctx := context.Background()

	plan, err := o.PlanAnalysis(ctx, model.PlanRequest{Query: "q", Files: salesFiles, Selected: salesFiles})
	require.NoError(t, err)
	assert.False(t, plan.TimeAlignmentNeeded())
	assert.Equal(t, []any{"Region"}, plan["group_by"])

	al, err := o.ProposeAlignment(ctx, model.AlignmentRequest{TimePeriods: []string{"2024-10", "2024-11"}, Files: salesFiles})
	require.NoError(t, err)
	assert.Equal(t, "monthly", al["time_granularity"])
}

func TestGenerateCode(t *testing.T) {
	planner := &scriptedModel{replies: []string{
		"Here you go:\n```go\npackage main\n\nvar result = 42\n```\n",
		"",
	}}
	o := New(planner, nil, "m", "")
	ctx := context.Background()
	req := model.CodeRequest{
		Query:          "q",
		Plan:           model.Plan{"operations": []any{"Load data"}},
		Files:          salesFiles,
		PreviousErrors: []string{"Code must define a 'result' variable"},
	}

	code, err := o.GenerateCode(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "package main\n\nvar result = 42", code)

	var rendered strings.Builder
	for _, m := range planner.seen[0] {
		rendered.WriteString(m.Content)
	}
	assert.Contains(t, rendered.String(), "Code must define a 'result' variable")
	assert.Contains(t, rendered.String(), "/data/sales_nov.csv")

	_, err = o.GenerateCode(ctx, req)
	assert.ErrorIs(t, err, errx.ErrMalformedResponse)
}

func TestExplainUsesExplainerModel(t *testing.T) {
	planner := &scriptedModel{}
	explainer := &scriptedModel{replies: []string{"  Revenue is highest in the North.\n\n**Recommendations:**\n- Check the South  "}}
	o := New(planner, explainer, "p", "e")

	text, err := o.Explain(context.Background(), model.ExplainRequest{
		Query:        "which region sells most",
		ResultJSON:   `{"type":"value","data":1}`,
		FilesUsed:    []string{"sales_nov.csv"},
		AnalysisType: "aggregate (single_table)",
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(text, "Revenue is highest"))
	assert.Empty(t, planner.seen)
	assert.Len(t, explainer.seen, 1)
}

func TestAnalyzeTrends(t *testing.T) {
	planner := &scriptedModel{replies: []string{`{"trends":["up"],"recommended_actions":["Stock more widgets"]}`}}
	o := New(planner, nil, "m", "")

	ins, err := o.AnalyzeTrends(context.Background(), model.TrendRequest{
		Query:       "revenue trend",
		TimePeriods: []string{"2024-11"},
		DataSummary: []map[string]any{{"filename": "sales_nov.csv", "rows": 7}},
		ResultJSON:  "{}",
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Stock more widgets"}, ins.RecommendedActions())
}

func TestUnconfiguredModel(t *testing.T) {
	o := New(nil, nil, "", "")

	_, err := o.GenerateCode(context.Background(), model.CodeRequest{Query: "q"})
	assert.ErrorIs(t, err, errx.ErrOracleUnavailable)
}

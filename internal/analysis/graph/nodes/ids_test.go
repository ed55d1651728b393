package nodes

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pushkal/server/internal/analysis/model"
)

func TestRouteAfterPlan(t *testing.T) {
	tests := []struct {
		op   model.OperationType
		plan model.Plan
		want string
	}{
		{model.OperationCrossTable, model.Plan{"time_alignment_needed": true}, NodeAlignTimeseries},
		{model.OperationTemporal, model.Plan{"time_alignment_needed": "true"}, NodeAlignTimeseries},
		{model.OperationTemporal, model.Plan{"time_alignment_needed": false}, NodeGenerateCode},
		{model.OperationSingleTable, model.Plan{"time_alignment_needed": true}, NodeGenerateCode},
		{"", nil, NodeGenerateCode},
	}
	for _, tt := range tests {
		s := &model.State{OperationType: tt.op, Plan: tt.plan}
		assert.Equal(t, tt.want, RouteAfterPlan(s), "op=%s plan=%v", tt.op, tt.plan)
	}
}

func TestRouteAfterValidate(t *testing.T) {
	assert.Equal(t, NodeExecuteCode, RouteAfterValidate(&model.State{CodeValid: true, RetryCount: 2}, 2))
	assert.Equal(t, NodeIncrementRetry, RouteAfterValidate(&model.State{RetryCount: 0}, 2))
	assert.Equal(t, NodeIncrementRetry, RouteAfterValidate(&model.State{RetryCount: 1}, 2))
	assert.Equal(t, NodeHandleError, RouteAfterValidate(&model.State{RetryCount: 2}, 2))
	assert.Equal(t, NodeHandleError, RouteAfterValidate(&model.State{}, 0))
}

func TestRouteAfterExecute(t *testing.T) {
	assert.Equal(t, NodeTrendAnalysis, RouteAfterExecute(&model.State{ExecutionResult: &model.ExecutionResult{Success: true}}))
	assert.Equal(t, NodeHandleError, RouteAfterExecute(&model.State{ExecutionResult: &model.ExecutionResult{}}))
	assert.Equal(t, NodeHandleError, RouteAfterExecute(&model.State{}))
}

func TestNextWalksRetryLoop(t *testing.T) {
	s := &model.State{}
	path := []string{NodeIngestQuery}
	for cur := NodeIngestQuery; cur != NodeReturnChat; {
		cur = Next(cur, s, 2)
		if cur == NodeIncrementRetry {
			s.RetryCount++
		}
		path = append(path, cur)
	}
	assert.NoError(t, ValidatePath(path))
	assert.Equal(t, []string{
		NodeIngestQuery, NodeParseFiles, NodeRetrieveContext, NodeAnalyzeIntent, NodePlanAnalysis,
		NodeGenerateCode, NodeValidateCode, NodeIncrementRetry,
		NodeGenerateCode, NodeValidateCode, NodeIncrementRetry,
		NodeGenerateCode, NodeValidateCode, NodeHandleError, NodeReturnChat,
	}, path)
	assert.Equal(t, End, Next(NodeReturnChat, s, 2))
}

func TestValidatePath(t *testing.T) {
	assert.Error(t, ValidatePath(nil))
	assert.Error(t, ValidatePath([]string{NodeParseFiles, NodeReturnChat}))
	assert.Error(t, ValidatePath([]string{NodeIngestQuery, NodeReturnChat}))
	assert.Error(t, ValidatePath([]string{NodeIngestQuery, NodeParseFiles}))
}

func TestEdgesAreUnconditional(t *testing.T) {
	for _, e := range Edges() {
		assert.Len(t, Successors(e[0]), 1, e[0])
	}
	assert.Len(t, Edges(), 10)
}

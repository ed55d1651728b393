package nodes

import (
	"fmt"

	"github.com/pushkal/server/internal/analysis/model"
)

// Node identifiers
const (
	NodeIngestQuery     = "ingest_query"
	NodeParseFiles      = "parse_files"
	NodeRetrieveContext = "retrieve_context"
	NodeAnalyzeIntent   = "analyze_intent"
	NodePlanAnalysis    = "plan_analysis"
	NodeAlignTimeseries = "align_timeseries"
	NodeGenerateCode    = "generate_code"
	NodeValidateCode    = "validate_code"
	NodeIncrementRetry  = "increment_retry"
	NodeExecuteCode     = "execute_code"
	NodeTrendAnalysis   = "trend_analysis"
	NodeExplainResult   = "explain_result"
	NodeHandleError     = "handle_error"
	NodeReturnChat      = "return_chat"
)

// End marks the terminal transition out of return_chat.
const End = ""

// edges lists every allowed successor per node. Nodes with more than one
// successor are resolved by a route predicate.
var edges = map[string][]string{
	NodeIngestQuery:     {NodeParseFiles},
	NodeParseFiles:      {NodeRetrieveContext},
	NodeRetrieveContext: {NodeAnalyzeIntent},
	NodeAnalyzeIntent:   {NodePlanAnalysis},
	NodePlanAnalysis:    {NodeAlignTimeseries, NodeGenerateCode},
	NodeAlignTimeseries: {NodeGenerateCode},
	NodeGenerateCode:    {NodeValidateCode},
	NodeValidateCode:    {NodeExecuteCode, NodeIncrementRetry, NodeHandleError},
	NodeIncrementRetry:  {NodeGenerateCode},
	NodeExecuteCode:     {NodeTrendAnalysis, NodeHandleError},
	NodeTrendAnalysis:   {NodeExplainResult},
	NodeExplainResult:   {NodeReturnChat},
	NodeHandleError:     {NodeReturnChat},
	NodeReturnChat:      {End},
}

// Successors returns the allowed next nodes of id.
func Successors(id string) []string {
	return edges[id]
}

// Edges returns the unconditional transitions as (from, to) pairs.
func Edges() [][2]string {
	var out [][2]string
	for _, from := range All() {
		next := edges[from]
		if len(next) == 1 && next[0] != End {
			out = append(out, [2]string{from, next[0]})
		}
	}
	return out
}

// All returns every node identifier in declaration order.
func All() []string {
	return []string{
		NodeIngestQuery, NodeParseFiles, NodeRetrieveContext, NodeAnalyzeIntent,
		NodePlanAnalysis, NodeAlignTimeseries, NodeGenerateCode, NodeValidateCode,
		NodeIncrementRetry, NodeExecuteCode, NodeTrendAnalysis, NodeExplainResult,
		NodeHandleError, NodeReturnChat,
	}
}

// RouteAfterPlan sends multi-table plans that ask for time alignment to
// align_timeseries.
func RouteAfterPlan(s *model.State) string {
	if s.OperationType.MultiTable() && s.Plan.TimeAlignmentNeeded() {
		return NodeAlignTimeseries
	}
	return NodeGenerateCode
}

// RouteAfterValidate executes valid code and regenerates invalid code while
// retries remain.
func RouteAfterValidate(s *model.State, maxRetries int) string {
	switch {
	case s.CodeValid:
		return NodeExecuteCode
	case s.RetryCount < maxRetries:
		return NodeIncrementRetry
	default:
		return NodeHandleError
	}
}

func RouteAfterExecute(s *model.State) string {
	if s.ExecutionResult != nil && s.ExecutionResult.Success {
		return NodeTrendAnalysis
	}
	return NodeHandleError
}

// Next is the transition function of the workflow.
func Next(current string, s *model.State, maxRetries int) string {
	switch current {
	case NodePlanAnalysis:
		return RouteAfterPlan(s)
	case NodeValidateCode:
		return RouteAfterValidate(s, maxRetries)
	case NodeExecuteCode:
		return RouteAfterExecute(s)
	}
	if next := edges[current]; len(next) > 0 {
		return next[0]
	}
	return End
}

// ValidatePath checks that path starts at ingest_query, follows declared
// edges and ends at return_chat.
func ValidatePath(path []string) error {
	if len(path) == 0 {
		return fmt.Errorf("empty path")
	}
	if path[0] != NodeIngestQuery {
		return fmt.Errorf("path starts at %q", path[0])
	}
	for i := 1; i < len(path); i++ {
		if !allowed(path[i-1], path[i]) {
			return fmt.Errorf("no edge %s -> %s at position %d", path[i-1], path[i], i)
		}
	}
	if last := path[len(path)-1]; last != NodeReturnChat {
		return fmt.Errorf("path ends at %q", last)
	}
	return nil
}

func allowed(from, to string) bool {
	for _, n := range edges[from] {
		if n == to {
			return true
		}
	}
	return false
}

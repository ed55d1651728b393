// Package oracletest provides a scripted model.Oracle for tests.
package oracletest

import (
	"context"
	"sync"

	"github.com/pushkal/server/internal/analysis/model"
)

// Method names reported by Calls.
const (
	MethodIntent    = "AnalyzeIntent"
	MethodPlan      = "PlanAnalysis"
	MethodAlignment = "ProposeAlignment"
	MethodCode      = "GenerateCode"
	MethodExplain   = "Explain"
	MethodTrends    = "AnalyzeTrends"
)

// Scripted returns canned replies. Codes are handed out in order and the
// last one repeats.
type Scripted struct {
	Intent    model.IntentResult
	IntentErr error

	Plan    model.Plan
	PlanErr error

	Alignment    model.Alignment
	AlignmentErr error

	Codes   []string
	CodeErr error

	Explanation string
	ExplainErr  error

	Trends    model.TrendInsights
	TrendsErr error

	mu           sync.Mutex
	calls        map[string]int
	codeRequests []model.CodeRequest
}

func (o *Scripted) record(method string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.calls == nil {
		o.calls = map[string]int{}
	}
	o.calls[method]++
}

// Calls returns how many times method was invoked.
func (o *Scripted) Calls(method string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[method]
}

// TotalCalls returns the number of oracle invocations of any kind.
func (o *Scripted) TotalCalls() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	total := 0
	for _, n := range o.calls {
		total += n
	}
	return total
}

// CodeRequests returns the requests received by GenerateCode.
func (o *Scripted) CodeRequests() []model.CodeRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]model.CodeRequest(nil), o.codeRequests...)
}

func (o *Scripted) AnalyzeIntent(context.Context, model.IntentRequest) (model.IntentResult, error) {
	o.record(MethodIntent)
	return o.Intent, o.IntentErr
}

func (o *Scripted) PlanAnalysis(context.Context, model.PlanRequest) (model.Plan, error) {
	o.record(MethodPlan)
	return o.Plan, o.PlanErr
}

func (o *Scripted) ProposeAlignment(context.Context, model.AlignmentRequest) (model.Alignment, error) {
	o.record(MethodAlignment)
	return o.Alignment, o.AlignmentErr
}

func (o *Scripted) GenerateCode(_ context.Context, req model.CodeRequest) (string, error) {
	o.mu.Lock()
	n := len(o.codeRequests)
	o.codeRequests = append(o.codeRequests, req)
	o.mu.Unlock()
	o.record(MethodCode)
	if o.CodeErr != nil {
		return "", o.CodeErr
	}
	if len(o.Codes) == 0 {
		return "", nil
	}
	if n >= len(o.Codes) {
		n = len(o.Codes) - 1
	}
	return o.Codes[n], nil
}

func (o *Scripted) Explain(context.Context, model.ExplainRequest) (string, error) {
	o.record(MethodExplain)
	return o.Explanation, o.ExplainErr
}

func (o *Scripted) AnalyzeTrends(context.Context, model.TrendRequest) (model.TrendInsights, error) {
	o.record(MethodTrends)
	return o.Trends, o.TrendsErr
}

var _ model.Oracle = (*Scripted)(nil)

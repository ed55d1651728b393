package graph

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/compose"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/pushkal/server/internal/analysis/graph/nodes"
	"github.com/pushkal/server/internal/analysis/graph/observers"
	"github.com/pushkal/server/internal/analysis/model"
	errx "github.com/pushkal/server/internal/core/error"
	logx "github.com/pushkal/server/pkg/logger"
)

// ErrRateLimited is returned, wrapped in an AppError, when a session exceeds
// its per-minute or per-hour run budget.
var ErrRateLimited = errors.New("rate limit exceeded")

const rateLimitedResponse = "Rate limit exceeded. Too many requests. Please slow down."

// Config holds the collaborators of an Engine. Cache and Limiter are optional.
type Config struct {
	Oracle    model.Oracle
	Validator model.CodeValidator
	Sandbox   model.Sandbox
	Previews  model.PreviewLoader
	Cache     model.ResultCache
	Limiter   model.RateLimiter
	Workflow  model.WorkflowConfig
	RateLimit model.RateLimitConfig
	// Callbacks default to the logging observers.
	Callbacks []einocb.Handler
}

// Engine runs analyses. It is safe for concurrent use; runs share only the
// cache and the rate limiter.
type Engine struct {
	runnable  compose.Runnable[*model.State, *model.State]
	cache     model.ResultCache
	limiter   model.RateLimiter
	workflow  model.WorkflowConfig
	rateLimit model.RateLimitConfig
	callbacks []einocb.Handler
}

// Outcome is the single value delivered by RunAsync.
type Outcome struct {
	State *model.TerminalState
	Err   error
}

func New(ctx context.Context, cfg Config) (*Engine, error) {
	if cfg.Oracle == nil || cfg.Validator == nil || cfg.Sandbox == nil {
		return nil, fmt.Errorf("oracle, validator and sandbox are required")
	}
	n := nodes.New(nodes.Deps{
		Oracle:    cfg.Oracle,
		Validator: cfg.Validator,
		Sandbox:   cfg.Sandbox,
		Previews:  cfg.Previews,
		Config:    cfg.Workflow,
	})
	runnable, err := BuildGraph(ctx, n, cfg.Workflow)
	if err != nil {
		return nil, err
	}
	handlers := cfg.Callbacks
	if handlers == nil {
		handlers = []einocb.Handler{observers.NewAllCallbacks()}
	}
	return &Engine{
		runnable:  runnable,
		cache:     cfg.Cache,
		limiter:   cfg.Limiter,
		workflow:  cfg.Workflow,
		rateLimit: cfg.RateLimit,
		callbacks: handlers,
	}, nil
}

// Run executes one analysis. A cached terminal state for the same session,
// query and file set is returned without entering the graph. Only graph
// failures (cancellation, step limit) and rate limiting produce an error;
// every other failure is reported through the terminal state.
func (e *Engine) Run(ctx context.Context, in model.Input) (*model.TerminalState, error) {
	runID := uuid.NewString()

	if !e.allow(ctx, in.SessionID) {
		logx.Warn().Str("session_id", in.SessionID).Str("run_id", runID).Msg("Rate limit exceeded")
		return rejected(runID, in), errx.New(ErrRateLimited, http.StatusTooManyRequests, rateLimitedResponse)
	}

	fileKeys := model.FileKeys(in.Files)
	if e.cache != nil {
		if st, ok := e.cache.GetAnalysisResult(ctx, in.SessionID, in.Query, fileKeys); ok {
			logx.Info().Str("session_id", in.SessionID).Str("run_id", st.RunID).Msg("Analysis cache hit")
			st.Cached = true
			return st, nil
		}
	}

	runCtx := ctx
	if e.workflow.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, e.workflow.RunTimeout)
		defer cancel()
	}

	out, err := e.runnable.Invoke(runCtx, model.NewState(runID, in), compose.WithCallbacks(e.callbacks...))
	if err != nil {
		logx.Error().Err(err).Str("session_id", in.SessionID).Str("run_id", runID).Msg("Analysis run failed")
		return nil, fmt.Errorf("run analysis %s: %w", runID, err)
	}
	if out == nil {
		return nil, fmt.Errorf("run analysis %s: empty terminal state", runID)
	}

	term := out.Terminal()
	if e.cache != nil {
		e.cache.SetAnalysisResult(ctx, in.SessionID, in.Query, fileKeys, term)
	}
	return term, nil
}

// RunAsync runs the analysis on its own goroutine and delivers exactly one
// Outcome on the returned channel.
func (e *Engine) RunAsync(ctx context.Context, in model.Input) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		defer close(ch)
		st, err := e.Run(ctx, in)
		ch <- Outcome{State: st, Err: err}
	}()
	return ch
}

// RunBatch runs independent analyses with at most limit in flight. Outcomes
// are returned in input order; one failing run does not cancel the others.
func (e *Engine) RunBatch(ctx context.Context, inputs []model.Input, limit int) []Outcome {
	out := make([]Outcome, len(inputs))
	g, gctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, in := range inputs {
		g.Go(func() error {
			st, err := e.Run(gctx, in)
			out[i] = Outcome{State: st, Err: err}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// allow checks the per-minute and per-hour windows of the session. Both
// windows are always counted.
func (e *Engine) allow(ctx context.Context, sessionID string) bool {
	if e.limiter == nil {
		return true
	}
	allowed := true
	if e.rateLimit.PerMinute > 0 {
		ok, remaining := e.limiter.CheckRateLimit(ctx, "minute:"+sessionID, e.rateLimit.PerMinute, time.Minute)
		logx.Debug().Str("session_id", sessionID).Int("remaining_minute", remaining).Msg("rate limit checked")
		allowed = allowed && ok
	}
	if e.rateLimit.PerHour > 0 {
		ok, remaining := e.limiter.CheckRateLimit(ctx, "hour:"+sessionID, e.rateLimit.PerHour, time.Hour)
		logx.Debug().Str("session_id", sessionID).Int("remaining_hour", remaining).Msg("rate limit checked")
		allowed = allowed && ok
	}
	return allowed
}

func rejected(runID string, in model.Input) *model.TerminalState {
	return &model.TerminalState{
		RunID:           runID,
		SessionID:       in.SessionID,
		Query:           in.Query,
		FinalResponse:   rateLimitedResponse,
		FilesToUse:      []string{},
		Recommendations: []string{},
		NodeHistory:     []string{},
		Errors:          []string{ErrRateLimited.Error()},
	}
}

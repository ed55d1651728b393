package observers

import (
	"context"
	"time"

	einocb "github.com/cloudwego/eino/callbacks"

	"github.com/pushkal/server/internal/analysis/model"
	logx "github.com/pushkal/server/pkg/logger"
)

type startKey struct{ name string }

func newNodeHandler() einocb.Handler {
	return einocb.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *einocb.RunInfo, input einocb.CallbackInput) context.Context {
			logx.Debug().Str("node", info.Name).Str("run_id", runID(input)).Msg("node start")
			return context.WithValue(ctx, startKey{info.Name}, time.Now())
		}).
		OnEndFn(func(ctx context.Context, info *einocb.RunInfo, output einocb.CallbackOutput) context.Context {
			ev := logx.Debug().Str("node", info.Name)
			if st, ok := output.(*model.State); ok && st != nil {
				ev = ev.Str("run_id", st.RunID).Int("errors", len(st.Errors)).Int("retry_count", st.RetryCount)
			}
			ev.Dur("elapsed", since(ctx, info.Name)).Msg("node end")
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Err(err).Str("node", info.Name).Dur("elapsed", since(ctx, info.Name)).Msg("node failed")
			return ctx
		}).
		Build()
}

func newGraphHandler() einocb.Handler {
	return einocb.NewHandlerBuilder().
		OnStartFn(func(ctx context.Context, info *einocb.RunInfo, input einocb.CallbackInput) context.Context {
			ev := logx.Info().Str("graph", info.Name)
			if st, ok := input.(*model.State); ok && st != nil {
				ev = ev.Str("run_id", st.RunID).Str("session_id", st.SessionID).Int("files", len(st.AvailableFiles))
			}
			ev.Msg("analysis started")
			return context.WithValue(ctx, startKey{"graph:" + info.Name}, time.Now())
		}).
		OnEndFn(func(ctx context.Context, info *einocb.RunInfo, output einocb.CallbackOutput) context.Context {
			ev := logx.Info().Str("graph", info.Name)
			if st, ok := output.(*model.State); ok && st != nil {
				ev = ev.Str("run_id", st.RunID).
					Strs("path", st.NodeHistory).
					Int("errors", len(st.Errors)).
					Int("oracle_calls", st.Stats.OracleCalls).
					Float64("cost_usd", st.Stats.CostUSD)
			}
			ev.Dur("elapsed", since(ctx, "graph:"+info.Name)).Msg("analysis finished")
			return ctx
		}).
		OnErrorFn(func(ctx context.Context, info *einocb.RunInfo, err error) context.Context {
			logx.Error().Err(err).Str("graph", info.Name).Msg("analysis aborted")
			return ctx
		}).
		Build()
}

func runID(input einocb.CallbackInput) string {
	if st, ok := input.(*model.State); ok && st != nil {
		return st.RunID
	}
	return ""
}

func since(ctx context.Context, name string) time.Duration {
	if t, ok := ctx.Value(startKey{name}).(time.Time); ok {
		return time.Since(t)
	}
	return 0
}

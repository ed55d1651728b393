// Package graph composes the analysis workflow as an eino graph and runs it
// behind the result cache and rate limiter.
package graph

import (
	"context"
	"fmt"
	"slices"

	"github.com/cloudwego/eino/compose"

	"github.com/pushkal/server/internal/analysis/graph/nodes"
	"github.com/pushkal/server/internal/analysis/model"
	logx "github.com/pushkal/server/pkg/logger"
)

// GraphName is reported to callbacks as the graph's run name.
const GraphName = "analysis"

// GraphBuilder handles the construction of the analysis graph.
type GraphBuilder struct {
	nodes      *nodes.Nodes
	maxRetries int
	graph      *compose.Graph[*model.State, *model.State]
}

// BuildGraph constructs and compiles the analysis graph.
func BuildGraph(ctx context.Context, n *nodes.Nodes, wf model.WorkflowConfig) (compose.Runnable[*model.State, *model.State], error) {
	if n == nil {
		return nil, fmt.Errorf("nodes are nil")
	}
	b := &GraphBuilder{
		nodes:      n,
		maxRetries: wf.MaxRetries,
		graph: compose.NewGraph[*model.State, *model.State](
			compose.WithGenLocalState(func(ctx context.Context) *model.RunStats {
				return &model.RunStats{}
			}),
		),
	}
	if err := b.addNodes(); err != nil {
		return nil, err
	}
	if err := b.addEdges(); err != nil {
		return nil, err
	}
	if err := b.addBranches(); err != nil {
		return nil, err
	}
	return b.compile(ctx)
}

// addNodes adds every workflow node as a lambda wrapped by step.
func (b *GraphBuilder) addNodes() error {
	funcs := b.nodes.Funcs()
	for _, id := range nodes.All() {
		opts := []compose.GraphAddNodeOpt{compose.WithNodeName(id)}
		if id == nodes.NodeReturnChat {
			opts = append(opts, compose.WithStatePostHandler(copyRunStats))
		}
		if err := b.graph.AddLambdaNode(id, compose.InvokableLambda(step(id, funcs[id])), opts...); err != nil {
			return fmt.Errorf("add node %s: %w", id, err)
		}
	}
	return nil
}

// addEdges creates the unconditional transitions.
func (b *GraphBuilder) addEdges() error {
	edges := append([][2]string{{compose.START, nodes.NodeIngestQuery}}, nodes.Edges()...)
	edges = append(edges, [2]string{nodes.NodeReturnChat, compose.END})
	for _, e := range edges {
		if err := b.graph.AddEdge(e[0], e[1]); err != nil {
			return fmt.Errorf("add edge %s -> %s: %w", e[0], e[1], err)
		}
	}
	return nil
}

// addBranches wires the three conditional transitions to their predicates.
func (b *GraphBuilder) addBranches() error {
	branches := []struct {
		from  string
		route func(*model.State) string
	}{
		{nodes.NodePlanAnalysis, nodes.RouteAfterPlan},
		{nodes.NodeValidateCode, func(s *model.State) string { return nodes.RouteAfterValidate(s, b.maxRetries) }},
		{nodes.NodeExecuteCode, nodes.RouteAfterExecute},
	}
	for _, br := range branches {
		route := br.route
		ends := map[string]bool{}
		for _, to := range nodes.Successors(br.from) {
			ends[to] = true
		}
		branch := compose.NewGraphBranch(func(_ context.Context, s *model.State) (string, error) {
			return route(s), nil
		}, ends)
		if err := b.graph.AddBranch(br.from, branch); err != nil {
			logx.Error().Err(err).Str("node", br.from).Msg("Error adding branch")
			return fmt.Errorf("add branch after %s: %w", br.from, err)
		}
	}
	return nil
}

func (b *GraphBuilder) compile(ctx context.Context) (compose.Runnable[*model.State, *model.State], error) {
	runnable, err := b.graph.Compile(ctx,
		compose.WithGraphName(GraphName),
		compose.WithMaxRunSteps(maxRunSteps(b.maxRetries)),
	)
	if err != nil {
		logx.Error().Err(err).Msg("Error compiling graph")
		return nil, fmt.Errorf("error compiling graph: %w", err)
	}
	logx.Debug().Int("max_retries", b.maxRetries).Msg("Analysis graph compiled")
	return runnable, nil
}

// maxRunSteps bounds the longest path: the linear nodes plus one
// generate/validate/increment round per retry.
func maxRunSteps(maxRetries int) int {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return 12 + 3*(maxRetries+1) + 5
}

// step adapts a node function to the graph. It owns the append-only fields:
// the node id goes to NodeHistory and reported errors to Errors. A panicking
// node is recorded as an error and leaves the state unchanged.
func step(id string, fn nodes.Func) func(context.Context, *model.State) (*model.State, error) {
	return func(ctx context.Context, in *model.State) (*model.State, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if in == nil {
			return nil, fmt.Errorf("%s: nil state", id)
		}
		next, errs := invoke(ctx, id, fn, *in)
		next.NodeHistory = append(slices.Clone(in.NodeHistory), id)
		next.Errors = append(slices.Clone(in.Errors), errs...)
		return &next, nil
	}
}

func invoke(ctx context.Context, id string, fn nodes.Func, s model.State) (next model.State, errs []string) {
	defer func() {
		if r := recover(); r != nil {
			logx.Error().Str("node", id).Str("run_id", s.RunID).Msgf("node panic recovered: %v", r)
			next, errs = s, []string{fmt.Sprintf("Internal error in %s: %v", id, r)}
		}
	}()
	return fn(ctx, s)
}

func copyRunStats(_ context.Context, out *model.State, stats *model.RunStats) (*model.State, error) {
	if out != nil && stats != nil {
		out.Stats = *stats
	}
	return out, nil
}

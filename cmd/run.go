package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pushkal/server/internal/analysis/model"
	logx "github.com/pushkal/server/pkg/logger"
	"github.com/pushkal/server/pkg/tabular"
)

var (
	runSession string
	runQuery   string
	runFiles   []string
	runJSON    bool
	runNoSave  bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Answer a question about one or more files",
	Long: `Run executes the analysis workflow for a query over the given files.

Each --file takes a path with an optional time period label, for example
--file sales_q1.csv:Q1-2024 --file sales_q2.csv:Q2-2024. The session's recent
conversation is passed to the workflow and the exchange is appended to it.`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runSession, "session", "s", "default", "session identifier")
	runCmd.Flags().StringVarP(&runQuery, "query", "q", "", "natural-language question")
	runCmd.Flags().StringArrayVarP(&runFiles, "file", "f", nil, "data file as path[:time period] (repeatable)")
	runCmd.Flags().BoolVar(&runJSON, "json", false, "print the full terminal state as JSON")
	runCmd.Flags().BoolVar(&runNoSave, "no-history", false, "do not append this exchange to the session history")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a := connect(ctx, cfg)
	defer a.Close()

	files, err := describeFiles(runFiles)
	if err != nil {
		return err
	}
	if len(files) > 0 {
		a.cache.SetSessionFiles(ctx, runSession, files)
	} else if cached, ok := a.cache.GetSessionFiles(ctx, runSession); ok {
		files = cached
	}

	var history []model.ChatMessage
	if a.history != nil {
		msgs, err := a.history.LoadHistory(ctx, runSession)
		if err != nil {
			logx.Warn().Err(err).Str("session_id", runSession).Msg("history unavailable")
		}
		history = model.RecentMessages(msgs, cfg.Workflow.HistoryTurns)
	}

	engine, err := a.engine(ctx)
	if err != nil {
		return err
	}

	st, runErr := engine.Run(ctx, model.Input{
		SessionID:   runSession,
		Query:       runQuery,
		Files:       files,
		ChatHistory: history,
	})
	if st == nil {
		return runErr
	}

	if a.history != nil && !runNoSave && runErr == nil {
		for _, msg := range []model.ChatMessage{
			{Role: "user", Content: runQuery},
			{Role: "assistant", Content: st.FinalResponse},
		} {
			if err := a.history.AddMessage(ctx, runSession, msg); err != nil {
				logx.Warn().Err(err).Str("session_id", runSession).Msg("history append failed")
				break
			}
		}
	}

	if err := printState(cmd.OutOrStdout(), st, runJSON); err != nil {
		return err
	}
	return runErr
}

// describeFiles turns path[:period] specs into file descriptors.
func describeFiles(specs []string) ([]model.FileInfo, error) {
	files := make([]model.FileInfo, 0, len(specs))
	for _, spec := range specs {
		path, period := splitFileSpec(spec)
		fi, err := tabular.Describe(path, period)
		if err != nil {
			return nil, fmt.Errorf("describe %s: %w", path, err)
		}
		files = append(files, fi)
	}
	return files, nil
}

// splitFileSpec splits "path:period" at the last colon. A colon followed by a
// path separator is part of the path.
func splitFileSpec(spec string) (string, string) {
	i := strings.LastIndexByte(spec, ':')
	if i <= 0 || i == len(spec)-1 || strings.ContainsAny(spec[i+1:], `/\`) {
		return strings.TrimSuffix(spec, ":"), ""
	}
	return spec[:i], strings.TrimSpace(spec[i+1:])
}

func printState(w io.Writer, st *model.TerminalState, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(st)
	}
	fmt.Fprintln(w, st.FinalResponse)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "path:   %s\n", strings.Join(st.NodeHistory, " -> "))
	if st.Cached {
		fmt.Fprintln(w, "cached: true")
	}
	if st.RetryCount > 0 {
		fmt.Fprintf(w, "retries: %d\n", st.RetryCount)
	}
	if st.Stats.OracleCalls > 0 {
		fmt.Fprintf(w, "oracle: %d calls, %d tokens, $%.6f\n", st.Stats.OracleCalls, st.Stats.PromptTokens+st.Stats.CompletionTokens, st.Stats.CostUSD)
	}
	return nil
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	invalidateSession string
	invalidateHistory bool
)

var invalidateCmd = &cobra.Command{
	Use:   "invalidate",
	Short: "Drop cached results and file metadata for a session",
	RunE:  runInvalidate,
}

func init() {
	rootCmd.AddCommand(invalidateCmd)

	invalidateCmd.Flags().StringVarP(&invalidateSession, "session", "s", "", "session identifier")
	invalidateCmd.Flags().BoolVar(&invalidateHistory, "history", false, "also clear the conversation history")
	_ = invalidateCmd.MarkFlagRequired("session")
}

func runInvalidate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a := connect(ctx, cfg)
	defer a.Close()
	if !a.cache.Connected() {
		return fmt.Errorf("redis is not available")
	}

	n := a.cache.InvalidateSession(ctx, invalidateSession)
	fmt.Fprintf(cmd.OutOrStdout(), "removed %d cache entries\n", n)

	if invalidateHistory {
		if err := a.history.ClearHistory(ctx, invalidateSession); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "history cleared")
	}
	return nil
}

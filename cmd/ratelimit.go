package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var ratelimitSession string

var ratelimitCmd = &cobra.Command{
	Use:   "ratelimit",
	Short: "Show the rate limit windows of a session",
	RunE:  runRatelimit,
}

func init() {
	rootCmd.AddCommand(ratelimitCmd)

	ratelimitCmd.Flags().StringVarP(&ratelimitSession, "session", "s", "", "session identifier")
	_ = ratelimitCmd.MarkFlagRequired("session")
}

func runRatelimit(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a := connect(ctx, cfg)
	defer a.Close()

	w := cmd.OutOrStdout()
	for _, win := range []struct {
		name  string
		limit int
	}{
		{"minute", cfg.RateLimit.PerMinute},
		{"hour", cfg.RateLimit.PerHour},
	} {
		info := a.cache.GetRateLimitInfo(ctx, win.name+":"+ratelimitSession)
		fmt.Fprintf(w, "%-6s %d/%d  resets in %s\n", win.name, info.Requests, win.limit, info.TTL.Round(time.Second))
	}
	return nil
}

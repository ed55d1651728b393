package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "analyst",
	Short: "Natural-language analysis over tabular files",
	Long: `Analyst answers questions about CSV and Excel files by planning an
analysis, generating Go code for it, validating and executing that code in an
interpreter, and explaining the result.

Configuration is read from the environment (and a .env file when present).`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
}

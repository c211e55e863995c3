package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configPath string
	envFile    string

	// run flags, shared by the root command
	stages    []int
	geminiKey string
)

// rootCmd runs the pipeline when invoked without a subcommand
var rootCmd = &cobra.Command{
	Use:   "polyscribe",
	Short: "Scrape Polymarket, parse it with Gemini and archive daily snapshots",
	Long: `polyscribe renders the Polymarket front page through the Jina Reader,
strips link targets, asks Gemini to turn the page into structured market
data, archives a dated snapshot and reports odds changes since the previous
snapshot.

Run without a subcommand to execute all four stages.`,
	SilenceUsage: true,
	Args:         cobra.NoArgs,
	RunE:         runPipeline,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run pipeline stages (1 fetch, 2 intelligence, 3 snapshot, 4 automation)",
	Example: `  polyscribe run
  polyscribe run --stages 2,3
  polyscribe run --stages 2 --gemini-key $KEY`,
	Args: cobra.NoArgs,
	RunE: runPipeline,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to a dotenv file with API keys")

	addRunFlags(rootCmd)
	addRunFlags(runCmd)

	rootCmd.AddCommand(runCmd, cleanCmd, extractCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().IntSliceVar(&stages, "stages", []int{1, 2, 3, 4}, "Stages to run, in order")
	cmd.Flags().StringVar(&geminiKey, "gemini-key", "", "Gemini API key (overrides config and GEMINI_API_KEY)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// Command skein runs LLM plan/execute pipelines from the terminal.
package main

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/skeinworks/skein/internal/logging"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var logLevel string
	var pretty bool

	root := &cobra.Command{
		Use:   "skein",
		Short: "Plan/execute LLM orchestration",
		Long: `skein compiles a natural-language task into a dependency graph of tool
and LLM calls, executes ready tasks concurrently, and joins the results into
a final answer. The react and rewoo subcommands run the sequential agent
variants instead.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Missing .env is fine; API keys may come from the environment.
			_ = godotenv.Load()
			logging.Setup(logLevel, pretty)
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&pretty, "pretty", true, "human-readable log output")

	root.AddCommand(
		newRunCommand(),
		newReactCommand(),
		newRewooCommand(),
		newPlanCommand(),
		newToolsCommand(),
	)
	return root
}

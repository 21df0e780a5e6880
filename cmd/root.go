/*
Copyright © 2023 Glossopoeia
*/
package cmd

import (
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/glossopoeia/bobatrace/stacktrace"
)

var (
	captureConfig = stacktrace.DefaultConfig()
	debugLogging  bool
)

var rootCmd = &cobra.Command{
	Use:   "bobatrace",
	Short: "Run boba assembly programs and report their stack traces",
	Long: `bobatrace assembles and runs boba bytecode programs. Uncaught exceptions
and calls to StackTrace.current produce stack traces that are mapped back to
the assembly source.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if debugLogging {
			logrus.SetLevel(logrus.DebugLevel)
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&debugLogging, "debug", false, "enable debug logging")
	flags.BoolVar(&captureConfig.LazyAsyncStacks, "lazy-async-stacks", false,
		"collect stack traces in one pass into a growable buffer")
	flags.BoolVar(&captureConfig.CausalAsyncStacks, "causal-async-stacks", false,
		"link stack traces inside async tasks to the stack that started them")
	flags.BoolVar(&captureConfig.ShowInvisibleFrames, "show-invisible-frames", false,
		"include hidden runtime functions in stack traces")
}

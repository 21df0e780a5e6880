/*
Copyright © 2023 Glossopoeia
*/
package cmd

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/glossopoeia/bobatrace/compiler"
	"github.com/glossopoeia/bobatrace/runtime"
	"github.com/glossopoeia/bobatrace/stacktrace"
)

var (
	traceExecution bool
	entryFunction  string
)

var runCmd = &cobra.Command{
	Use:   "run FILE",
	Short: "Assemble and run a program",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := load(args[0])
		if err != nil {
			return err
		}
		if traceExecution {
			m.TraceFrames = true
			m.TraceExecution = true
		}

		result, err := m.RunFunction(entryFunction)
		var exception *runtime.UncaughtException
		if errors.As(err, &exception) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Unhandled exception:\n%v\n", exception.Value)
			writeTrace(cmd.ErrOrStderr(), args[0], exception.Trace)
			return exception
		}
		if err != nil {
			return err
		}

		if trace, ok := result.(*stacktrace.Snapshot); ok {
			writeTrace(cmd.OutOrStdout(), args[0], trace)
		} else if result != nil {
			fmt.Fprintln(cmd.OutOrStdout(), result)
		}
		return nil
	},
}

func load(path string) (*runtime.Machine, error) {
	source, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading program")
	}
	m := runtime.NewReleaseMachine(captureConfig)
	if err := compiler.Assemble(m, string(source)); err != nil {
		return nil, errors.Wrapf(err, "assembling %s", path)
	}
	return m, nil
}

func init() {
	runCmd.Flags().BoolVar(&traceExecution, "trace", false, "print every instruction and the frame stack while running")
	runCmd.Flags().StringVar(&entryFunction, "entry", "main", "function to start running")
	rootCmd.AddCommand(runCmd)
}

/*
Copyright © 2023 Glossopoeia
*/
package cmd

import (
	"github.com/spf13/cobra"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm FILE",
	Short: "Assemble a program and print its bytecode",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := load(args[0])
		if err != nil {
			return err
		}
		m.Disassemble(cmd.OutOrStdout())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(disasmCmd)
}

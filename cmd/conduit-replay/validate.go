// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/bassosimone/conduit/dpi"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <scenario.yaml>",
	Short: "Check a scenario without replaying it",
	Long:  `Parses the scenario, compiles its script, and encodes and decodes every packet.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sc, err := LoadScenario(args[0])
		if err != nil {
			return err
		}
		return runValidate(cmd.OutOrStdout(), sc)
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(w io.Writer, sc *Scenario) error {
	if sc.Script != "" {
		if _, err := dpi.NewScriptedMux(sc.Script); err != nil {
			return err
		}
	}
	if _, err := sc.Messages(time.Now()); err != nil {
		return err
	}
	fmt.Fprintf(w, "scenario %q is valid (%d packets)\n", sc.Name, len(sc.Packets))
	return nil
}

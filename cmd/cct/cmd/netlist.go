package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var netlistCmd = &cobra.Command{
	Use:   "netlist",
	Short: "Write the scenario netlist of every transmitter",
	Long: `Prune the channel network and write one scenario netlist per transmitter
under <workdir>/netlist without simulating.

Examples:
  cct netlist --touchstone pcb.s40p --metadata ports.json --settings cct.yaml --workdir work`,
	Args: cobra.NoArgs,
	RunE: runNetlist,
}

func init() {
	rootCmd.AddCommand(netlistCmd)
	addCheckFlags(netlistCmd)
}

func runNetlist(cmd *cobra.Command, args []string) error {
	checker, _, err := newChecker(cmd)
	if err != nil {
		return err
	}

	for _, tx := range checker.Topology().TXs() {
		if _, _, err := checker.Scenario(tx); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), checker.DebugNetlistPath(tx))
	}
	return nil
}

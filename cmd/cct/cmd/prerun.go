package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/linmingchih/channel-check-tool-v2/pkg/cct"
)

var prerunCmd = &cobra.Command{
	Use:   "prerun",
	Short: "Show how many ports each transmitter keeps at a threshold",
	Long: `Prune the channel network for every transmitter without simulating and
print the kept port ratios.

Examples:
  cct prerun --touchstone pcb.s40p --metadata ports.json --settings cct.yaml --threshold-db -40`,
	Args: cobra.NoArgs,
	RunE: runPrerun,
}

func init() {
	rootCmd.AddCommand(prerunCmd)
	addCheckFlags(prerunCmd)
}

func runPrerun(cmd *cobra.Command, args []string) error {
	checker, _, err := newChecker(cmd)
	if err != nil {
		return err
	}

	stats, err := checker.PreRun()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), cct.SummarizePreRun(stats, checker.Threshold()))
	return nil
}

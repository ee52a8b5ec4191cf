package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/linmingchih/channel-check-tool-v2/pkg/chart"
)

var (
	outputPath string
	chartPath  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate every transmitter and write the channel report",
	Long: `Simulate one scenario per transmitter group, collect the receiver
waveforms and write the CSV report.

Examples:
  cct run --touchstone pcb.s40p --metadata ports.json --settings cct.yaml
  cct run --touchstone pcb.s40p --metadata ports.json --settings cct.yaml --chart waves.html`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addCheckFlags(runCmd)

	runCmd.Flags().StringVarP(&outputPath, "output", "o", "",
		"report CSV path (default <metadata>_cct.csv)")
	runCmd.Flags().StringVar(&chartPath, "chart", "",
		"write the receiver waveforms as an HTML chart page")
}

// defaultOutput is <metadata stem>_cct.csv next to the metadata file.
func defaultOutput(metadata string) string {
	stem := strings.TrimSuffix(filepath.Base(metadata), filepath.Ext(metadata))
	return filepath.Join(filepath.Dir(metadata), stem+"_cct.csv")
}

func runRun(cmd *cobra.Command, args []string) error {
	checker, settings, err := newChecker(cmd)
	if err != nil {
		return err
	}

	if err := checker.Run(cmd.Context(), settings.Run); err != nil {
		return err
	}

	output := outputPath
	if output == "" {
		output = defaultOutput(metadataPath)
	}
	if _, err := checker.WriteReport(output); err != nil {
		return err
	}

	if chartPath != "" {
		f, err := os.Create(chartPath)
		if err != nil {
			return fmt.Errorf("creating chart: %w", err)
		}
		defer f.Close()
		if err := chart.Render(f, checker.Aggregator(), checker.Topology()); err != nil {
			return fmt.Errorf("rendering chart: %w", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "CCT results saved to %s\n", output)
	return nil
}

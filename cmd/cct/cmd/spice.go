package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/linmingchih/channel-check-tool-v2/pkg/analysis"
	"github.com/linmingchih/channel-check-tool-v2/pkg/circuit"
	"github.com/linmingchih/channel-check-tool-v2/pkg/netlist"
	"github.com/linmingchih/channel-check-tool-v2/pkg/util"
)

var spiceCmd = &cobra.Command{
	Use:   "spice <netlist-file>",
	Short: "Run the local transient engine over a netlist",
	Long: `Parse a netlist (R, L, C, V, I and S elements with .op or .tran) and
print the node voltages and branch currents.

Examples:
  cct spice rc.cir
  cct spice scenario.cir`,
	Args: cobra.ExactArgs(1),
	RunE: runSpice,
}

func init() {
	rootCmd.AddCommand(spiceCmd)
}

func runSpice(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("reading netlist file: %w", err)
	}

	data, err := netlist.Parse(string(content))
	if err != nil {
		return fmt.Errorf("parsing netlist: %w", err)
	}

	ckt := circuit.New(data.Title)
	defer ckt.Destroy()
	if err := ckt.Setup(data); err != nil {
		return fmt.Errorf("setting up circuit: %w", err)
	}
	log.V(1).Info("circuit ready", "elements", len(data.Elements), "nodes", ckt.GetNumNodes())

	var results map[string][]float64
	switch data.Analysis {
	case netlist.AnalysisTRAN:
		param := data.TranParam
		tr := analysis.NewTransient(param.TStart, param.TStop, param.TStep, false)
		if err := tr.Setup(ckt); err != nil {
			return fmt.Errorf("analysis setup failed: %w", err)
		}
		if err := tr.ExecuteContext(cmd.Context()); err != nil {
			return fmt.Errorf("analysis execution failed: %w", err)
		}
		results = tr.GetResults()
	default:
		op := analysis.NewOP()
		if err := op.Setup(ckt); err != nil {
			return fmt.Errorf("analysis setup failed: %w", err)
		}
		if err := op.Execute(); err != nil {
			return fmt.Errorf("analysis execution failed: %w", err)
		}
		results = op.GetResults()
	}

	printResults(cmd.OutOrStdout(), results)
	return nil
}

func signalNames(results map[string][]float64) (voltages, currents []string) {
	for name := range results {
		if strings.HasPrefix(name, "V(") {
			voltages = append(voltages, name)
		} else if strings.HasPrefix(name, "I(") {
			currents = append(currents, name)
		}
	}
	sort.Strings(voltages)
	sort.Strings(currents)
	return voltages, currents
}

func printResults(w io.Writer, results map[string][]float64) {
	fmt.Fprintln(w, "\nAnalysis Results:")
	fmt.Fprintln(w, "================")

	voltageNames, currentNames := signalNames(results)

	// Operating point
	times, isTran := results["TIME"]
	if !isTran || len(times) <= 1 {
		fmt.Fprintln(w, "\nNode Voltages:")
		for _, name := range voltageNames {
			fmt.Fprintf(w, "%s = %s\n", name, util.FormatValueFactor(results[name][0], "V"))
		}
		fmt.Fprintln(w, "\nBranch Currents:")
		for _, name := range currentNames {
			fmt.Fprintf(w, "%s = %s\n", name, util.FormatValueFactor(results[name][0], "A"))
		}
		return
	}

	// Transient
	fmt.Fprintf(w, "\nTransient Analysis Results (%d time points):\n", len(times))
	fmt.Fprintln(w, "Time        Node Voltages        Branch Currents")
	fmt.Fprintln(w, "------------------------------------------------")

	for i, t := range times {
		fmt.Fprintf(w, "%9s  ", util.FormatValueFactor(t, "s"))
		for _, name := range voltageNames {
			fmt.Fprintf(w, "%s=%s  ", name, util.FormatValueFactor(results[name][i], "V"))
		}
		for _, name := range currentNames {
			fmt.Fprintf(w, "%s=%s  ", name, util.FormatValueFactor(results[name][i], "A"))
		}
		fmt.Fprintln(w)
	}
}

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/linmingchih/channel-check-tool-v2/internal/logging"
)

var (
	// Global flags
	verbose bool

	log = logr.Discard()
)

var rootCmd = &cobra.Command{
	Use:   "cct",
	Short: "Channel check tool for multi-port memory interfaces",
	Long: `Simulate every transmitter of a multi-port channel network against its
receivers and report signal, ISI and crosstalk energy per receiver.

Examples:
  cct prerun --touchstone pcb.s40p --metadata ports.json --settings cct.yaml --threshold-db -40
  cct run --touchstone pcb.s40p --metadata ports.json --settings cct.yaml --output report.csv
  cct netlist --touchstone pcb.s40p --metadata ports.json --settings cct.yaml --workdir work
  cct spice rc.cir`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log = logging.New(cmd.ErrOrStderr(), verbose)
	},
}

// Execute runs the root command and leaves through atexit so registered
// handlers, such as the run recorder, are flushed.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

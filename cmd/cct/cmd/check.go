package cmd

import (
	"github.com/spf13/cobra"

	"github.com/linmingchih/channel-check-tool-v2/pkg/cct"
	"github.com/linmingchih/channel-check-tool-v2/pkg/config"
	"github.com/linmingchih/channel-check-tool-v2/pkg/record"
	"github.com/linmingchih/channel-check-tool-v2/pkg/sim"
)

// Flags shared by run, prerun and netlist.
var (
	touchstonePath string
	metadataPath   string
	settingsPath   string
	workdir        string
	recordName     string
	thresholdDB    float64
)

func addCheckFlags(c *cobra.Command) {
	f := c.Flags()
	f.StringVar(&touchstonePath, "touchstone", "", "channel network Touchstone file (.sNp)")
	f.StringVar(&metadataPath, "metadata", "", "port metadata JSON file")
	f.StringVar(&settingsPath, "settings", "", "settings file (YAML or JSON)")
	f.StringVar(&workdir, "workdir", "", "directory for trimmed networks and debug netlists")
	f.Float64Var(&thresholdDB, "threshold-db", 0, "prune threshold in dB; unset keeps every port")
	f.StringVar(&recordName, "record", "", "record prune stats and report rows into <name>.sqlite3")

	_ = c.MarkFlagRequired("touchstone")
	_ = c.MarkFlagRequired("metadata")
	_ = c.MarkFlagRequired("settings")
}

// newChecker loads the settings, applies flag overrides and returns a
// checker with TX and RX configured.
func newChecker(c *cobra.Command) (*cct.Checker, config.Settings, error) {
	settings, err := config.Load(settingsPath)
	if err != nil {
		return nil, config.Settings{}, err
	}
	if c.Flags().Changed("threshold-db") {
		v := thresholdDB
		settings.Options.ThresholdDB = &v
	}
	if workdir != "" {
		settings.Options.Workdir = workdir
	}

	opts := cct.Options{
		TouchstonePath: touchstonePath,
		MetadataPath:   metadataPath,
		Workdir:        settings.Options.Workdir,
		ThresholdDB:    settings.Options.ThresholdDB,
		CircuitVersion: settings.Options.CircuitVersion,
		Driver:         sim.NewLocalDriver(log),
		Logger:         log,
	}
	if recordName != "" {
		rec, err := record.New(recordName, log)
		if err != nil {
			return nil, config.Settings{}, err
		}
		opts.Recorder = rec
	}

	checker, err := cct.New(opts)
	if err != nil {
		return nil, config.Settings{}, err
	}
	checker.SetTx(settings.Tx)
	if err := checker.SetRx(settings.Rx); err != nil {
		return nil, config.Settings{}, err
	}
	return checker, settings, nil
}

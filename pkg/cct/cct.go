// Package cct runs a channel check: classify the ports, prune the network
// per transmitter, simulate one scenario per TX group and reduce the RX
// waveforms to a signal integrity report.
package cct

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-logr/logr"

	"github.com/linmingchih/channel-check-tool-v2/internal/consts"
	"github.com/linmingchih/channel-check-tool-v2/pkg/config"
	"github.com/linmingchih/channel-check-tool-v2/pkg/metrics"
	"github.com/linmingchih/channel-check-tool-v2/pkg/netlist"
	"github.com/linmingchih/channel-check-tool-v2/pkg/network"
	"github.com/linmingchih/channel-check-tool-v2/pkg/port"
	"github.com/linmingchih/channel-check-tool-v2/pkg/prune"
	"github.com/linmingchih/channel-check-tool-v2/pkg/sim"
	"github.com/linmingchih/channel-check-tool-v2/pkg/topology"
	"github.com/linmingchih/channel-check-tool-v2/pkg/waveform"
)

// Recorder persists run results. record.Recorder implements it.
type Recorder interface {
	RecordPrune(stats prune.Stats) error
	RecordRows(rows []metrics.Row) error
}

// Options wires a Checker. Catalog and Network take precedence over
// MetadataPath and reading TouchstonePath.
type Options struct {
	TouchstonePath string
	MetadataPath   string
	Catalog        *port.Catalog
	Network        *network.Network
	Workdir        string
	ThresholdDB    *float64
	CircuitVersion string
	Driver         sim.Driver
	Recorder       Recorder
	Logger         logr.Logger
}

// Checker drives the scenarios of one port catalog. It is not safe for
// concurrent use.
type Checker struct {
	catalog  *port.Catalog
	engine   *prune.Engine
	driver   sim.Driver
	recorder Recorder
	workdir  string
	version  string
	log      logr.Logger

	tx        *config.Tx
	agg       *waveform.Aggregator
	summaries []prune.Stats
}

func New(opts Options) (*Checker, error) {
	log := opts.Logger
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	log = log.WithName("cct")

	if opts.Driver == nil {
		return nil, fmt.Errorf("no simulation driver")
	}

	catalog := opts.Catalog
	if catalog == nil {
		var err error
		if catalog, err = port.LoadFile(opts.MetadataPath); err != nil {
			return nil, err
		}
	}

	nw := opts.Network
	if nw == nil && opts.TouchstonePath != "" {
		var err error
		nw, err = network.ReadFile(opts.TouchstonePath)
		if err != nil {
			log.Info("channel network unavailable", "touchstone", opts.TouchstonePath, "reason", err.Error())
		}
	}
	if nw != nil && nw.Ports() != catalog.Len() {
		return nil, fmt.Errorf("%w: network has %d ports, metadata has %d",
			network.ErrPortCount, nw.Ports(), catalog.Len())
	}

	workdir := opts.Workdir
	if workdir == "" {
		workdir = "."
	}

	c := &Checker{
		catalog:  catalog,
		driver:   opts.Driver,
		recorder: opts.Recorder,
		workdir:  workdir,
		version:  config.CircuitVersion(opts.CircuitVersion, catalog.Meta.CircuitVersion),
		log:      log,
		agg:      waveform.NewAggregator(),
	}
	c.engine = prune.New(prune.Config{
		Catalog:        catalog,
		Network:        nw,
		TouchstonePath: opts.TouchstonePath,
		Workdir:        workdir,
		Logger:         log,
	})
	if opts.ThresholdDB != nil {
		c.engine.SetThreshold(opts.ThresholdDB)
	}

	topo := c.engine.Topology()
	c.log.Info("ports classified",
		"ports", catalog.Len(),
		"tx", len(topo.TXs()),
		"rx", len(topo.RXs()),
		"circuit_version", c.version)
	return c, nil
}

func (c *Checker) Catalog() *port.Catalog { return c.catalog }

func (c *Checker) Topology() *topology.Topology { return c.engine.Topology() }

func (c *Checker) Aggregator() *waveform.Aggregator { return c.agg }

// CircuitVersion is the explicit version, else the metadata hint, else the
// default.
func (c *Checker) CircuitVersion() string { return c.version }

func (c *Checker) SetTx(tx config.Tx) {
	c.tx = &tx
	c.engine.SetTx(tx)
	c.summaries = nil
}

// SetRx sets the RX termination and drops captured waveforms. SetTx has to
// be called first.
func (c *Checker) SetRx(rx config.Rx) error {
	if err := c.engine.SetRx(rx); err != nil {
		return err
	}
	c.agg.Reset()
	c.summaries = nil
	return nil
}

// SetThreshold sets the prune threshold in dB; nil keeps every port.
func (c *Checker) SetThreshold(db *float64) {
	c.engine.SetThreshold(db)
	c.summaries = nil
}

func (c *Checker) Threshold() *float64 { return c.engine.Threshold() }

// PreRun computes the prune result of every TX group without simulating.
func (c *Checker) PreRun() ([]prune.Stats, error) {
	if !c.engine.Configured() {
		return nil, prune.ErrNotConfigured
	}

	summaries := make([]prune.Stats, 0, len(c.Topology().TXs()))
	for _, tx := range c.Topology().TXs() {
		res, err := c.engine.Compute(tx)
		if err != nil {
			return nil, err
		}
		if err := c.reportStats(res.Stats); err != nil {
			return nil, err
		}
		summaries = append(summaries, res.Stats)
	}

	c.summaries = summaries
	return summaries, nil
}

// Run simulates one scenario per TX group, in classification order, and
// captures the RX waveforms. A driver failure aborts the run.
func (c *Checker) Run(ctx context.Context, run config.Run) error {
	if !c.engine.Configured() {
		return prune.ErrNotConfigured
	}

	c.agg.Reset()
	for _, tx := range c.Topology().TXs() {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, text, err := c.Scenario(tx)
		if err != nil {
			return err
		}

		c.log.Info("simulating", "tx", tx.Label(), "ports", len(res.KeptSequences))
		probes, err := c.driver.Run(ctx, text, run)
		if err != nil {
			return fmt.Errorf("simulating %s: %w", tx.Label(), err)
		}

		stored := c.agg.Store(res, tx, probes)
		c.log.V(1).Info("waveforms stored", "tx", tx.Label(), "probes", len(probes), "rx", stored)
	}
	return nil
}

// Scenario prunes the network for tx, builds the netlist with tx active
// and writes it to DebugNetlistPath.
func (c *Checker) Scenario(tx topology.Group) (*prune.Result, string, error) {
	if !c.engine.Configured() {
		return nil, "", prune.ErrNotConfigured
	}

	res, err := c.engine.Compute(tx)
	if err != nil {
		return nil, "", err
	}
	if c.summaries == nil {
		if err := c.reportStats(res.Stats); err != nil {
			return nil, "", err
		}
	}

	text, err := netlist.Build(res, tx)
	if err != nil {
		return nil, "", err
	}
	if err := c.writeDebugNetlist(tx, text); err != nil {
		return nil, "", err
	}
	return res, text, nil
}

// Calculate reduces the captured waveforms to report rows.
func (c *Checker) Calculate() ([]metrics.Row, error) {
	if c.tx == nil {
		return nil, prune.ErrNotConfigured
	}

	rows, err := metrics.Compute(c.Topology(), c.agg, c.tx.UnitIntervalPS())
	if err != nil {
		return nil, err
	}
	if c.recorder != nil {
		if err := c.recorder.RecordRows(rows); err != nil {
			return nil, fmt.Errorf("recording report: %w", err)
		}
	}
	return rows, nil
}

// WriteReport calculates the report and writes it as CSV to path.
func (c *Checker) WriteReport(path string) ([]metrics.Row, error) {
	rows, err := c.Calculate()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating report directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating report: %w", err)
	}
	defer f.Close()

	if err := metrics.WriteCSV(f, rows); err != nil {
		return nil, fmt.Errorf("writing report: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("writing report: %w", err)
	}

	c.log.Info("report written", "path", path, "rows", len(rows))
	return rows, nil
}

// DebugNetlistPath is where the scenario of tx is written before the
// driver call.
func (c *Checker) DebugNetlistPath(tx topology.Group) string {
	name := fmt.Sprintf("netlist_%03d_%s.cir", tx.MinSequence(), prune.SanitizeLabel(tx.Label()))
	return filepath.Join(c.workdir, consts.NetlistDebugDir, name)
}

func (c *Checker) writeDebugNetlist(tx topology.Group, text string) error {
	if text == "" {
		return nil
	}

	path := c.DebugNetlistPath(tx)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating netlist directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("writing netlist: %w", err)
	}
	c.log.V(1).Info("netlist written", "tx", tx.Label(), "path", path)
	return nil
}

func (c *Checker) reportStats(s prune.Stats) error {
	kv := []any{
		"tx", s.TxLabel,
		"ports", fmt.Sprintf("%d/%d", s.KeptPortCount, s.TotalPortCount),
	}
	if s.TotalRxPortCount > 0 {
		kv = append(kv, "rx_ports", fmt.Sprintf("%d/%d", s.KeptRxPortCount, s.TotalRxPortCount))
	}
	if s.ThresholdDB != nil {
		kv = append(kv, "threshold_db", *s.ThresholdDB)
	}
	c.log.Info("prune", kv...)

	if c.recorder == nil {
		return nil
	}
	if err := c.recorder.RecordPrune(s); err != nil {
		return fmt.Errorf("recording prune stats: %w", err)
	}
	return nil
}

// Package sim runs scenario netlists and returns the probe waveforms.
package sim

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	"github.com/go-logr/logr"
	"github.com/rs/xid"

	"github.com/linmingchih/channel-check-tool-v2/internal/consts"
	"github.com/linmingchih/channel-check-tool-v2/pkg/analysis"
	"github.com/linmingchih/channel-check-tool-v2/pkg/circuit"
	"github.com/linmingchih/channel-check-tool-v2/pkg/config"
	"github.com/linmingchih/channel-check-tool-v2/pkg/netlist"
	"github.com/linmingchih/channel-check-tool-v2/pkg/waveform"
)

// Driver solves one scenario netlist and returns a waveform per probed
// port sequence, time in picoseconds and voltage in volts. Calls are
// sequential; an error aborts the enclosing run.
type Driver interface {
	Run(ctx context.Context, netlist string, run config.Run) (map[int]waveform.Waveform, error)
}

// LocalDriver solves scenarios with the built-in transient engine. Every
// call builds a fresh circuit.
type LocalDriver struct {
	log logr.Logger
}

var _ Driver = (*LocalDriver)(nil)

func NewLocalDriver(log logr.Logger) *LocalDriver {
	if log.GetSink() == nil {
		log = logr.Discard()
	}
	return &LocalDriver{log: log.WithName("sim")}
}

// Run parses text, runs an operating point and a transient over run and
// returns V(net_<n>) for every port node. A zero run falls back to the
// netlist's .tran card.
func (d *LocalDriver) Run(ctx context.Context, text string, run config.Run) (map[int]waveform.Waveform, error) {
	data, err := netlist.Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parsing netlist: %w", err)
	}

	step, stop := run.Step, run.Stop
	if step <= 0 || stop <= 0 {
		if data.Analysis != netlist.AnalysisTRAN {
			return nil, fmt.Errorf("no transient settings")
		}
		step, stop = data.TranParam.TStep, data.TranParam.TStop
	}

	session := xid.New().String()
	ckt := circuit.New(session)
	defer ckt.Destroy()

	if err := ckt.Setup(data); err != nil {
		return nil, fmt.Errorf("session %s: %w", session, err)
	}

	tr := analysis.NewTransient(0, stop, step, false)
	if err := tr.Setup(ckt); err != nil {
		return nil, fmt.Errorf("session %s: %w", session, err)
	}
	if err := tr.ExecuteContext(ctx); err != nil {
		return nil, fmt.Errorf("session %s: %w", session, err)
	}

	probes := Probes(tr.GetResults())
	d.log.V(1).Info("transient solved",
		"session", session,
		"nodes", ckt.GetNumNodes(),
		"probes", len(probes),
		"points", len(tr.GetResults()["TIME"]))
	return probes, nil
}

var portProbe = regexp.MustCompile(`^V\(net_(\d+)\)$`)

// Probes picks the V(net_<n>) series out of a transient result map and
// converts time to picoseconds.
func Probes(results map[string][]float64) map[int]waveform.Waveform {
	times := results["TIME"]
	ps := make([]float64, len(times))
	for i, t := range times {
		ps[i] = t * consts.SecondsToPicoseconds
	}

	probes := make(map[int]waveform.Waveform)
	for name, values := range results {
		m := portProbe.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		seq, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		probes[seq] = waveform.Waveform{
			Time:    append([]float64(nil), ps...),
			Voltage: append([]float64(nil), values...),
		}
	}
	return probes
}

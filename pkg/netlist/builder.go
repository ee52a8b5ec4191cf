package netlist

import (
	"fmt"
	"strings"

	"github.com/linmingchih/channel-check-tool-v2/internal/consts"
	"github.com/linmingchih/channel-check-tool-v2/pkg/config"
	"github.com/linmingchih/channel-check-tool-v2/pkg/prune"
	"github.com/linmingchih/channel-check-tool-v2/pkg/topology"
	"github.com/linmingchih/channel-check-tool-v2/pkg/util"
)

// ErrNotConfigured is returned when a scenario is built without TX and RX
// settings.
var ErrNotConfigured = prune.ErrNotConfigured

// Build assembles the scenario netlist for one active TX group: the channel
// model, the N-port instance, every TX (active or passive) and every RX
// termination, one statement per line.
func Build(res *prune.Result, active topology.Group) (string, error) {
	if res == nil || res.Topology == nil || !res.Configured {
		return "", ErrNotConfigured
	}

	lines := []string{
		ModelLine(res.TouchstonePath),
		InstanceLine(len(res.Ports)),
	}

	activeKey := active.Key()
	for _, tx := range res.Topology.TXs() {
		lines = append(lines, TxLines(tx, res.Tx, tx.Key() == activeKey)...)
	}
	for _, rx := range res.Topology.RXs() {
		lines = append(lines, RxLines(rx, res.Rx)...)
	}

	return strings.Join(lines, "\n"), nil
}

// ModelLine references the Touchstone file of the scenario.
func ModelLine(touchstonePath string) string {
	return fmt.Sprintf(`.model "%s" S TSTONEFILE="%s" INTERPOLATION=LINEAR INTDATTYP=MA HIGHPASS=10 LOWPASS=10 convolution=1 enforce_passivity=0 Noisemodel=External`,
		consts.ChannelModelName, touchstonePath)
}

// InstanceLine instantiates the channel with one net_<n> node per kept port.
func InstanceLine(ports int) string {
	nodes := make([]string, ports)
	for i := range nodes {
		nodes[i] = netName(i + 1)
	}
	return fmt.Sprintf(`S1 %s FQMODEL="%s"`, strings.Join(nodes, " "), consts.ChannelModelName)
}

// TxLines emits a pulse source, series resistor and shunt capacitor per leg
// when active, only the resistor and capacitor otherwise. Differential legs
// swing +Vhigh/2 and -Vhigh/2.
func TxLines(g topology.Group, tx config.Tx, active bool) []string {
	amplitudes := []float64{tx.VHigh}
	if g.IsDifferential() {
		amplitudes = []float64{0.5 * tx.VHigh, -0.5 * tx.VHigh}
	}

	var lines []string
	for i, p := range g.Ports {
		seq := p.Sequence
		if active {
			lines = append(lines, fmt.Sprintf("V%d netb_%d 0 PULSE(0 %s %s %s %s %s %s)",
				seq, seq,
				util.FormatNumber(amplitudes[i]),
				util.FormatNumber(consts.PulseDelay),
				util.FormatNumber(tx.RiseTime),
				util.FormatNumber(tx.RiseTime),
				util.FormatNumber(tx.UnitInterval),
				util.FormatNumber(consts.PulseHold)))
		}
		lines = append(lines,
			fmt.Sprintf("R%d netb_%d %s %s", seq, seq, netName(seq), util.FormatNumber(tx.Resistance)),
			fmt.Sprintf("C%d netb_%d 0 %s", seq, seq, util.FormatNumber(tx.Capacitance)))
	}
	return lines
}

// RxLines terminates every leg with a resistor and capacitor to ground.
func RxLines(g topology.Group, rx config.Rx) []string {
	var lines []string
	for _, p := range g.Ports {
		seq := p.Sequence
		lines = append(lines,
			fmt.Sprintf("R%d %s 0 %s", seq, netName(seq), util.FormatNumber(rx.Resistance)),
			fmt.Sprintf("C%d %s 0 %s", seq, netName(seq), util.FormatNumber(rx.Capacitance)))
	}
	return lines
}

func netName(seq int) string {
	return fmt.Sprintf("net_%d", seq)
}

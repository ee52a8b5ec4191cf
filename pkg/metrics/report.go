package metrics

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/linmingchih/channel-check-tool-v2/pkg/topology"
	"github.com/linmingchih/channel-check-tool-v2/pkg/waveform"
)

// Header is the first line of the report.
const Header = "tx_name, rx_name, sig(V*ps), isi(V*ps), xtalk(V*ps), pseudo_eye(V*ps), power_ratio"

// Row is one RX group of the report. Energies are in V*ps.
type Row struct {
	Tx         string
	Rx         string
	Sig        float64
	ISI        float64
	Xtalk      float64
	PseudoEye  float64
	PowerRatio float64
}

// String renders the row with three decimals per value.
func (r Row) String() string {
	return strings.Join([]string{
		r.Tx, r.Rx,
		formatValue(r.Sig),
		formatValue(r.ISI),
		formatValue(r.Xtalk),
		formatValue(r.PseudoEye),
		formatValue(r.PowerRatio),
	}, ", ")
}

func formatValue(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	case math.IsNaN(v):
		return "nan"
	}
	return fmt.Sprintf("%.3f", v)
}

// NewRow derives pseudo eye and power ratio. A zero isi+xtalk gives an
// infinite power ratio.
func NewRow(tx, rx string, sig, isi, xtalk float64) Row {
	ratio := math.Inf(1)
	if denom := isi + xtalk; denom != 0 {
		ratio = sig / denom
	}
	return Row{
		Tx:         tx,
		Rx:         rx,
		Sig:        sig,
		ISI:        isi,
		Xtalk:      xtalk,
		PseudoEye:  sig - isi - xtalk,
		PowerRatio: ratio,
	}
}

// Compute builds one row per RX group of topo that has a waveform from its
// expected TX. Every other TX waveform on the group counts as crosstalk.
// uiPS is the unit interval in picoseconds.
func Compute(topo *topology.Topology, agg *waveform.Aggregator, uiPS float64) ([]Row, error) {
	var rows []Row
	for _, rx := range topo.RXs() {
		primary, ok := topo.ExpectedTx(rx)
		if !ok {
			continue
		}
		entries := agg.Entries(rx.Key())
		if _, ok := agg.Get(rx.Key(), primary.Key()); !ok {
			continue
		}

		var sig, isi, xtalk float64
		for _, e := range entries {
			w := e.Waveform
			if e.Tx.Key() == primary.Key() {
				var err error
				sig, isi, err = SlidingWindowEnergy(w.Time, w.Voltage, uiPS)
				if err != nil {
					return nil, fmt.Errorf("rx %s: %w", rx.Label(), err)
				}
				continue
			}
			abs := make([]float64, len(w.Voltage))
			for i, v := range w.Voltage {
				abs[i] = math.Abs(v)
			}
			xtalk += TrapezoidalIntegral(w.Time, abs)
		}

		rows = append(rows, NewRow(primary.Label(), rx.Label(), sig, isi, xtalk))
	}
	return rows, nil
}

// WriteCSV writes the header, a newline, then the rows separated by
// newlines. The last row has no trailing newline.
func WriteCSV(w io.Writer, rows []Row) error {
	bw := bufio.NewWriter(w)
	bw.WriteString(Header + "\n")
	for i, r := range rows {
		if i > 0 {
			bw.WriteString("\n")
		}
		bw.WriteString(r.String())
	}
	return bw.Flush()
}

package netlist

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linmingchih/channel-check-tool-v2/pkg/config"
	"github.com/linmingchih/channel-check-tool-v2/pkg/port"
	"github.com/linmingchih/channel-check-tool-v2/pkg/prune"
	"github.com/linmingchih/channel-check-tool-v2/pkg/topology"
)

var (
	testTx = config.Tx{VHigh: 0.8, RiseTime: 30e-12, UnitInterval: 133e-12, Resistance: 40, Capacitance: 1e-12}
	testRx = config.Rx{Resistance: 30, Capacitance: 1.8e-12}
)

func strPtr(s string) *string { return &s }

func result(t *testing.T, path string, entries ...port.Entry) *prune.Result {
	t.Helper()

	cat, err := port.New(port.Metadata{Ports: entries})
	require.NoError(t, err)

	return &prune.Result{
		Ports:          cat.Records,
		Topology:       topology.Classify(cat.Records),
		TouchstonePath: path,
		Tx:             testTx,
		Rx:             testRx,
		Configured:     true,
	}
}

func single(comp, role, net string) port.Entry {
	return port.Entry{Name: net + "_" + comp, Component: comp, ComponentRole: role, Net: net, NetType: "single"}
}

func diff(comp, role, net, pair, polarity string) port.Entry {
	return port.Entry{
		Name:          net + "_" + comp,
		Component:     comp,
		ComponentRole: role,
		Net:           net,
		NetType:       "differential",
		Pair:          strPtr(pair),
		Polarity:      strPtr(polarity),
	}
}

func TestBuildSingleEnded(t *testing.T) {
	res := result(t, "/w/pcb.s4p",
		single("U1", "controller", "A"),
		single("U1", "controller", "B"),
		single("U2", "dram", "A"),
		single("U2", "dram", "B"),
	)

	text, err := Build(res, res.Topology.TxSingle[0])
	require.NoError(t, err)

	want := strings.Join([]string{
		`.model "Channel" S TSTONEFILE="/w/pcb.s4p" INTERPOLATION=LINEAR INTDATTYP=MA HIGHPASS=10 LOWPASS=10 convolution=1 enforce_passivity=0 Noisemodel=External`,
		`S1 net_1 net_2 net_3 net_4 FQMODEL="Channel"`,
		"V1 netb_1 0 PULSE(0 0.8 1e-10 3e-11 3e-11 1.33e-10 1.5e+100)",
		"R1 netb_1 net_1 40",
		"C1 netb_1 0 1e-12",
		"R2 netb_2 net_2 40",
		"C2 netb_2 0 1e-12",
		"R3 net_3 0 30",
		"C3 net_3 0 1.8e-12",
		"R4 net_4 0 30",
		"C4 net_4 0 1.8e-12",
	}, "\n")
	assert.Equal(t, want, text)
}

func TestBuildDifferentialAmplitudes(t *testing.T) {
	res := result(t, "pcb.s4p",
		diff("U1", "controller", "DQS_P", "DQS0", "positive"),
		diff("U1", "controller", "DQS_N", "DQS0", "negative"),
		diff("U2", "dram", "DQS_P", "DQS0", "positive"),
		diff("U2", "dram", "DQS_N", "DQS0", "negative"),
	)
	require.Len(t, res.Topology.TxDiff, 1)

	text, err := Build(res, res.Topology.TxDiff[0])
	require.NoError(t, err)

	assert.Contains(t, text, "V1 netb_1 0 PULSE(0 0.4 1e-10 3e-11 3e-11 1.33e-10 1.5e+100)")
	assert.Contains(t, text, "V2 netb_2 0 PULSE(0 -0.4 1e-10 3e-11 3e-11 1.33e-10 1.5e+100)")
	assert.Contains(t, text, "R3 net_3 0 30")
	assert.Contains(t, text, "C4 net_4 0 1.8e-12")
}

func TestBuildOnlyActiveTxGetsSources(t *testing.T) {
	res := result(t, "pcb.s4p",
		single("U1", "controller", "A"),
		single("U1", "controller", "B"),
		single("U2", "dram", "A"),
		single("U2", "dram", "B"),
	)

	text, err := Build(res, res.Topology.TxSingle[1])
	require.NoError(t, err)
	assert.NotContains(t, text, "V1 ")
	assert.Contains(t, text, "V2 netb_2 0 PULSE(")
	assert.Equal(t, 1, strings.Count(text, "PULSE("))
}

func TestBuildRequiresConfiguration(t *testing.T) {
	_, err := Build(nil, topology.Group{})
	assert.ErrorIs(t, err, ErrNotConfigured)

	res := result(t, "pcb.s2p", single("U1", "controller", "A"), single("U2", "dram", "A"))
	res.Configured = false
	_, err = Build(res, res.Topology.TxSingle[0])
	assert.ErrorIs(t, err, prune.ErrNotConfigured)

	// an RX-less result is refused even when the TX looks complete
	res = result(t, "pcb.s2p", single("U1", "controller", "A"), single("U2", "dram", "A"))
	res.Rx = config.Rx{}
	res.Configured = false
	_, err = Build(res, res.Topology.TxSingle[0])
	assert.ErrorIs(t, err, ErrNotConfigured)
}

package sim

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"testing"

	"github.com/go-logr/logr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/linmingchih/channel-check-tool-v2/pkg/config"
	"github.com/linmingchih/channel-check-tool-v2/pkg/network"
)

// matchedLoad writes a 1-port network that looks like a 50 ohm load.
func matchedLoad(t *testing.T) string {
	t.Helper()

	nw, err := network.New([]float64{1e9}, []*mat.CDense{mat.NewCDense(1, 1, nil)}, 50)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "load.s1p")
	require.NoError(t, nw.WriteFile(path))
	return path
}

func scenario(path, tran string) string {
	return fmt.Sprintf(`.model "Channel" S TSTONEFILE="%s" INTERPOLATION=LINEAR
S1 net_1 FQMODEL="Channel"
V1 netb_1 0 PULSE(0 0.8 1e-10 3e-11 3e-11 1.33e-10 1.5e+100)
R1 netb_1 net_1 50
C1 netb_1 0 1e-12
%s`, path, tran)
}

func sampleAt(t *testing.T, times, values []float64, ps float64) float64 {
	t.Helper()
	for i, tm := range times {
		if math.Abs(tm-ps) < 1e-3 {
			return values[i]
		}
	}
	t.Fatalf("no sample at %g ps", ps)
	return 0
}

func TestLocalDriverDividesIntoMatchedLoad(t *testing.T) {
	d := NewLocalDriver(logr.Discard())

	out, err := d.Run(context.Background(), scenario(matchedLoad(t), ""), config.Run{Step: 1e-12, Stop: 500e-12})
	require.NoError(t, err)
	require.Len(t, out, 1)

	w, ok := out[1]
	require.True(t, ok)
	require.Equal(t, len(w.Time), len(w.Voltage))
	assert.Equal(t, 0.0, w.Time[0])
	assert.InDelta(t, 500, w.Time[len(w.Time)-1], 1e-6)

	assert.InDelta(t, 0.0, sampleAt(t, w.Time, w.Voltage, 50), 1e-9)
	assert.InDelta(t, 0.4, sampleAt(t, w.Time, w.Voltage, 200), 1e-6)
	assert.InDelta(t, 0.0, sampleAt(t, w.Time, w.Voltage, 400), 1e-6)
}

func TestLocalDriverFallsBackToTranCard(t *testing.T) {
	d := NewLocalDriver(logr.Logger{})

	out, err := d.Run(context.Background(), scenario(matchedLoad(t), ".tran 10p 300p\n"), config.Run{})
	require.NoError(t, err)
	require.Contains(t, out, 1)
	assert.Len(t, out[1].Time, 31)

	_, err = d.Run(context.Background(), scenario(matchedLoad(t), ""), config.Run{})
	assert.Error(t, err)
}

func TestLocalDriverStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLocalDriver(logr.Discard()).Run(ctx, scenario(matchedLoad(t), ""), config.Run{Step: 1e-12, Stop: 1e-9})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLocalDriverRejectsBadNetlists(t *testing.T) {
	d := NewLocalDriver(logr.Discard())
	run := config.Run{Step: 1e-12, Stop: 1e-10}

	_, err := d.Run(context.Background(), "Q1 a b c 1\n", run)
	assert.Error(t, err)

	_, err = d.Run(context.Background(), scenario(filepath.Join(t.TempDir(), "absent.s1p"), ""), run)
	assert.Error(t, err)
}

func TestProbes(t *testing.T) {
	got := Probes(map[string][]float64{
		"TIME":      {0, 1e-12, 2e-12},
		"V(net_3)":  {0, 0.1, 0.2},
		"V(net_12)": {0, -0.1, -0.2},
		"V(netb_3)": {1, 1, 1},
		"I(V1)":     {0, 0, 0},
		"V(net_x)":  {0, 0, 0},
	})

	require.Len(t, got, 2)
	require.Len(t, got[3].Time, 3)
	assert.InDelta(t, 2, got[3].Time[2], 1e-9)
	assert.Equal(t, []float64{0, -0.1, -0.2}, got[12].Voltage)
}

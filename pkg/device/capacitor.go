package device

import (
	"fmt"

	"github.com/linmingchih/channel-check-tool-v2/pkg/matrix"
	"github.com/linmingchih/channel-check-tool-v2/pkg/util"
)

// Capacitor integrates i = C dv/dt with a fixed-step BDF of status.Order.
type Capacitor struct {
	BaseDevice
	history [2]float64 // v(n-1), v(n-2)
}

var _ TimeDependent = (*Capacitor)(nil)

func NewCapacitor(name string, nodeNames []string, value float64) (*Capacitor, error) {
	if len(nodeNames) != 2 {
		return nil, fmt.Errorf("capacitor %s: requires exactly 2 nodes", name)
	}
	if value < 0 {
		return nil, fmt.Errorf("capacitor %s: negative capacitance %g", name, value)
	}
	return &Capacitor{BaseDevice: newBaseDevice(name, value, nodeNames)}, nil
}

func (c *Capacitor) GetType() string { return "C" }

func (c *Capacitor) Stamp(matrix matrix.DeviceMatrix, status *CircuitStatus) error {
	n1, n2 := c.Nodes[0], c.Nodes[1]

	switch status.Mode {
	case OperatingPointAnalysis:
		gmin := status.Gmin
		if gmin < 1e-12 {
			gmin = 1e-12
		}
		stampConductance(matrix, n1, n2, gmin)

	case TransientAnalysis:
		if status.TimeStep <= 0 {
			return fmt.Errorf("capacitor %s: time step must be positive", c.Name)
		}
		order := min(max(status.Order, 1), len(c.history))
		coeffs := util.GetBDFcoeffs(order, status.TimeStep)

		geq := c.Value * coeffs[0]
		ieq := 0.0
		for k := 1; k <= order; k++ {
			ieq += c.Value * coeffs[k] * c.history[k-1]
		}

		// i(n) = geq*v(n) + ieq
		stampConductance(matrix, n1, n2, geq)
		if n1 != 0 {
			matrix.AddRHS(n1, -ieq)
		}
		if n2 != 0 {
			matrix.AddRHS(n2, ieq)
		}
	}

	return nil
}

func (c *Capacitor) voltage(voltages []float64) float64 {
	return nodeVoltage(voltages, c.Nodes[0]) - nodeVoltage(voltages, c.Nodes[1])
}

func (c *Capacitor) InitState(voltages []float64) {
	vd := c.voltage(voltages)
	c.history = [2]float64{vd, vd}
}

func (c *Capacitor) UpdateState(voltages []float64, status *CircuitStatus) {
	c.history[1] = c.history[0]
	c.history[0] = c.voltage(voltages)
}

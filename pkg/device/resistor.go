package device

import (
	"fmt"

	"github.com/linmingchih/channel-check-tool-v2/pkg/matrix"
)

type Resistor struct {
	BaseDevice
}

func NewResistor(name string, nodeNames []string, value float64) (*Resistor, error) {
	if len(nodeNames) != 2 {
		return nil, fmt.Errorf("resistor %s: requires exactly 2 nodes", name)
	}
	if value <= 0 {
		return nil, fmt.Errorf("resistor %s: resistance must be positive, got %g", name, value)
	}
	return &Resistor{BaseDevice: newBaseDevice(name, value, nodeNames)}, nil
}

func (r *Resistor) GetType() string { return "R" }

func (r *Resistor) Stamp(matrix matrix.DeviceMatrix, status *CircuitStatus) error {
	stampConductance(matrix, r.Nodes[0], r.Nodes[1], 1.0/r.Value)
	return nil
}

package device

import (
	"fmt"

	"github.com/linmingchih/channel-check-tool-v2/pkg/matrix"
)

// CurrentSource drives current from n1 through the source into n2.
type CurrentSource struct {
	BaseDevice
	ctype   SourceType
	dcValue float64
	pulse   Pulse
}

func NewDCCurrentSource(name string, nodeNames []string, value float64) (*CurrentSource, error) {
	if len(nodeNames) != 2 {
		return nil, fmt.Errorf("current source %s: requires exactly 2 nodes", name)
	}
	return &CurrentSource{
		BaseDevice: newBaseDevice(name, value, nodeNames),
		ctype:      DC,
		dcValue:    value,
	}, nil
}

func NewPulseCurrentSource(name string, nodeNames []string, p Pulse) (*CurrentSource, error) {
	if len(nodeNames) != 2 {
		return nil, fmt.Errorf("current source %s: requires exactly 2 nodes", name)
	}
	if !p.validate() {
		return nil, fmt.Errorf("current source %s: negative pulse timing", name)
	}
	return &CurrentSource{
		BaseDevice: newBaseDevice(name, p.V1, nodeNames),
		ctype:      PULSE,
		pulse:      p,
	}, nil
}

func (i *CurrentSource) GetCurrent(t float64) float64 {
	if i.ctype == PULSE {
		return i.pulse.At(t)
	}
	return i.dcValue
}

func (i *CurrentSource) GetType() string { return "I" }

func (i *CurrentSource) Stamp(matrix matrix.DeviceMatrix, status *CircuitStatus) error {
	n1, n2 := i.Nodes[0], i.Nodes[1]
	current := i.GetCurrent(status.Time)

	// leaves n1, enters n2
	if n1 != 0 {
		matrix.AddRHS(n1, -current)
	}
	if n2 != 0 {
		matrix.AddRHS(n2, current)
	}
	return nil
}

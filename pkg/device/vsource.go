package device

import (
	"fmt"

	"github.com/linmingchih/channel-check-tool-v2/pkg/matrix"
)

type VoltageSource struct {
	BaseDevice
	vtype     SourceType
	dcValue   float64
	pulse     Pulse
	branchIdx int // MNA branch row
}

var _ BranchDevice = (*VoltageSource)(nil)

func NewDCVoltageSource(name string, nodeNames []string, value float64) (*VoltageSource, error) {
	if len(nodeNames) != 2 {
		return nil, fmt.Errorf("voltage source %s: requires exactly 2 nodes", name)
	}
	return &VoltageSource{
		BaseDevice: newBaseDevice(name, value, nodeNames),
		vtype:      DC,
		dcValue:    value,
	}, nil
}

func NewPulseVoltageSource(name string, nodeNames []string, p Pulse) (*VoltageSource, error) {
	if len(nodeNames) != 2 {
		return nil, fmt.Errorf("voltage source %s: requires exactly 2 nodes", name)
	}
	if !p.validate() {
		return nil, fmt.Errorf("voltage source %s: negative pulse timing", name)
	}
	return &VoltageSource{
		BaseDevice: newBaseDevice(name, p.V1, nodeNames),
		vtype:      PULSE,
		pulse:      p,
	}, nil
}

func (v *VoltageSource) GetVoltage(t float64) float64 {
	if v.vtype == PULSE {
		return v.pulse.At(t)
	}
	return v.dcValue
}

func (v *VoltageSource) GetType() string { return "V" }

func (v *VoltageSource) Stamp(matrix matrix.DeviceMatrix, status *CircuitStatus) error {
	n1, n2 := v.Nodes[0], v.Nodes[1]
	bIdx := v.branchIdx
	if bIdx == 0 {
		return fmt.Errorf("voltage source %s: no branch assigned", v.Name)
	}

	// v1 - v2 = V
	if n1 != 0 {
		matrix.AddElement(bIdx, n1, 1)
		matrix.AddElement(n1, bIdx, 1)
	}
	if n2 != 0 {
		matrix.AddElement(bIdx, n2, -1)
		matrix.AddElement(n2, bIdx, -1)
	}

	matrix.AddRHS(bIdx, v.GetVoltage(status.Time))
	return nil
}

func (v *VoltageSource) BranchIndex() int {
	return v.branchIdx
}

func (v *VoltageSource) SetBranchIndex(idx int) {
	v.branchIdx = idx
}

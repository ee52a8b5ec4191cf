package device

import (
	"github.com/linmingchih/channel-check-tool-v2/pkg/matrix"
)

type Device interface {
	GetName() string
	GetType() string
	GetNodeNames() []string
	GetNodes() []int
	Stamp(matrix matrix.DeviceMatrix, status *CircuitStatus) error
	SetNodes(nodes []int)
}

type BaseDevice struct {
	Name      string
	Nodes     []int
	Value     float64
	NodeNames []string
}

// ModelParam is a .model card. Numeric parameters land in Params, the rest
// (file names, keywords) in Options. Keys are lower case.
type ModelParam struct {
	Type    string
	Name    string
	Params  map[string]float64
	Options map[string]string
}

// TimeDependent devices keep history between accepted time points.
type TimeDependent interface {
	// InitState seeds the history from the operating point.
	InitState(voltages []float64)
	UpdateState(voltages []float64, status *CircuitStatus)
}

// BranchDevice adds one MNA branch row (voltage sources).
type BranchDevice interface {
	Device
	BranchIndex() int
	SetBranchIndex(idx int)
}

type SourceType int

const (
	DC SourceType = iota
	PULSE
)

type AnalysisMode int

const (
	OperatingPointAnalysis AnalysisMode = iota
	TransientAnalysis
)

type CircuitStatus struct {
	Time     float64
	TimeStep float64
	Gmin     float64
	Mode     AnalysisMode
	Order    int // integration order, 1 = backward Euler
}

func (d *BaseDevice) GetName() string {
	return d.Name
}

func (d *BaseDevice) GetNodes() []int {
	return d.Nodes
}

func (d *BaseDevice) GetNodeNames() []string {
	return d.NodeNames
}

func (d *BaseDevice) GetValue() float64 {
	return d.Value
}

func (d *BaseDevice) SetNodes(nodes []int) {
	d.Nodes = nodes
}

func newBaseDevice(name string, value float64, nodeNames []string) BaseDevice {
	return BaseDevice{
		Name:      name,
		Value:     value,
		NodeNames: nodeNames,
		Nodes:     make([]int, len(nodeNames)),
	}
}

// stampConductance stamps g between n1 and n2, skipping ground.
func stampConductance(m matrix.DeviceMatrix, n1, n2 int, g float64) {
	if n1 != 0 {
		m.AddElement(n1, n1, g)
		if n2 != 0 {
			m.AddElement(n1, n2, -g)
		}
	}
	if n2 != 0 {
		if n1 != 0 {
			m.AddElement(n2, n1, -g)
		}
		m.AddElement(n2, n2, g)
	}
}

func nodeVoltage(voltages []float64, node int) float64 {
	if node == 0 || node >= len(voltages) {
		return 0
	}
	return voltages[node]
}

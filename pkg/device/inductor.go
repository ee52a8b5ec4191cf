package device

import (
	"fmt"

	"github.com/linmingchih/channel-check-tool-v2/pkg/matrix"
	"github.com/linmingchih/channel-check-tool-v2/pkg/util"
)

// Inductor carries its current i(n1->n2) as an MNA branch unknown and
// integrates v = L di/dt with a fixed-step BDF of status.Order. At the
// operating point it is a short.
type Inductor struct {
	BaseDevice
	branchIdx int
	history   [2]float64 // i(n-1), i(n-2)
}

var (
	_ BranchDevice  = (*Inductor)(nil)
	_ TimeDependent = (*Inductor)(nil)
)

func NewInductor(name string, nodeNames []string, value float64) (*Inductor, error) {
	if len(nodeNames) != 2 {
		return nil, fmt.Errorf("inductor %s: requires exactly 2 nodes", name)
	}
	if value <= 0 {
		return nil, fmt.Errorf("inductor %s: inductance must be positive, got %g", name, value)
	}
	return &Inductor{BaseDevice: newBaseDevice(name, value, nodeNames)}, nil
}

func (l *Inductor) GetType() string { return "L" }

func (l *Inductor) Stamp(matrix matrix.DeviceMatrix, status *CircuitStatus) error {
	n1, n2 := l.Nodes[0], l.Nodes[1]
	bIdx := l.branchIdx
	if bIdx == 0 {
		return fmt.Errorf("inductor %s: no branch assigned", l.Name)
	}

	if n1 != 0 {
		matrix.AddElement(n1, bIdx, 1)
		matrix.AddElement(bIdx, n1, 1)
	}
	if n2 != 0 {
		matrix.AddElement(n2, bIdx, -1)
		matrix.AddElement(bIdx, n2, -1)
	}

	switch status.Mode {
	case OperatingPointAnalysis:
		// v1 - v2 = 0, keep the diagonal allocated for the transient
		matrix.AddElement(bIdx, bIdx, 0)

	case TransientAnalysis:
		if status.TimeStep <= 0 {
			return fmt.Errorf("inductor %s: time step must be positive", l.Name)
		}
		order := min(max(status.Order, 1), len(l.history))
		coeffs := util.GetBDFcoeffs(order, status.TimeStep)

		// v1 - v2 - L*c0*i(n) = L * sum(ck * i(n-k))
		matrix.AddElement(bIdx, bIdx, -l.Value*coeffs[0])
		rhs := 0.0
		for k := 1; k <= order; k++ {
			rhs += l.Value * coeffs[k] * l.history[k-1]
		}
		matrix.AddRHS(bIdx, rhs)
	}
	return nil
}

func (l *Inductor) current(solution []float64) float64 {
	if l.branchIdx <= 0 || l.branchIdx >= len(solution) {
		return 0
	}
	return solution[l.branchIdx]
}

func (l *Inductor) InitState(solution []float64) {
	i := l.current(solution)
	l.history = [2]float64{i, i}
}

func (l *Inductor) UpdateState(solution []float64, status *CircuitStatus) {
	l.history[1] = l.history[0]
	l.history[0] = l.current(solution)
}

func (l *Inductor) BranchIndex() int {
	return l.branchIdx
}

func (l *Inductor) SetBranchIndex(idx int) {
	l.branchIdx = idx
}

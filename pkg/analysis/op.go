package analysis

import (
	"fmt"
	"math"

	"github.com/linmingchih/channel-check-tool-v2/pkg/circuit"
	"github.com/linmingchih/channel-check-tool-v2/pkg/device"
)

type OperatingPoint struct{ BaseAnalysis }

func NewOP() *OperatingPoint {
	return &OperatingPoint{
		BaseAnalysis: *NewBaseAnalysis(),
	}
}

func (op *OperatingPoint) Setup(ckt *circuit.Circuit) error {
	op.Circuit = ckt
	return nil
}

func (op *OperatingPoint) doNRiter(gmin float64, maxIter int) error {
	ckt := op.Circuit
	mat := ckt.GetMatrix()
	var oldSolution []float64
	cktStatus := &device.CircuitStatus{
		Time: 0,
		Mode: device.OperatingPointAnalysis,
		Gmin: gmin,
	}

	for iter := range maxIter {
		mat.Clear()

		if err := ckt.Stamp(cktStatus); err != nil {
			return fmt.Errorf("stamping error: %w", err)
		}
		mat.LoadGmin(gmin)

		if err := mat.Solve(); err != nil {
			return fmt.Errorf("matrix solve error: %w", err)
		}

		solution := mat.Solution()
		if iter > 0 && op.CheckConvergence(oldSolution, solution) {
			return nil
		}

		if oldSolution == nil {
			oldSolution = make([]float64, len(solution))
		}
		copy(oldSolution, solution)
	}

	return fmt.Errorf("failed to converge in %d iterations", maxIter)
}

func (op *OperatingPoint) Execute() error {
	if op.Circuit == nil {
		return fmt.Errorf("circuit not set")
	}
	mat := op.Circuit.GetMatrix()

	err := op.doNRiter(0, op.convergence.maxIter)
	if err == nil {
		op.storeResults()
		return nil
	}

	numGminSteps := 10
	startGmin := float64(mat.Size) * 0.001
	gmin := startGmin * math.Pow(10, float64(numGminSteps))

	for i := 0; i <= numGminSteps; i++ {
		if err := op.doNRiter(gmin, op.convergence.maxIter); err != nil {
			return fmt.Errorf("gmin stepping failed at %g: %w", gmin, err)
		}
		gmin /= 10
	}

	if err := op.doNRiter(0, op.convergence.maxIter); err != nil {
		return fmt.Errorf("final solution failed with zero gmin: %w", err)
	}

	op.storeResults()
	return nil
}

func (op *OperatingPoint) storeResults() {
	for name, value := range op.Circuit.GetSolution() {
		op.results[name] = []float64{value}
	}
}

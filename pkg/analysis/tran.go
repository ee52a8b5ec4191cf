package analysis

import (
	"context"
	"fmt"

	"github.com/linmingchih/channel-check-tool-v2/pkg/circuit"
	"github.com/linmingchih/channel-check-tool-v2/pkg/device"
)

// Transient integrates a linear circuit with a fixed time step: backward
// Euler on the first step and after a shortened step, BDF2 otherwise.
// Sources are evaluated at the end of each step.
type Transient struct {
	BaseAnalysis
	op        *OperatingPoint
	time      float64
	startTime float64
	stopTime  float64
	timeStep  float64
	useUIC    bool

	prevStep float64
}

func NewTransient(tStart, tStop, tStep float64, uic bool) *Transient {
	return &Transient{
		BaseAnalysis: *NewBaseAnalysis(),
		op:           NewOP(),
		startTime:    tStart,
		stopTime:     tStop,
		timeStep:     tStep,
		useUIC:       uic,
	}
}

func (tr *Transient) Setup(ckt *circuit.Circuit) error {
	if tr.timeStep <= 0 || tr.stopTime <= 0 {
		return fmt.Errorf("invalid transient window: step %g, stop %g", tr.timeStep, tr.stopTime)
	}
	tr.Circuit = ckt

	if !tr.useUIC {
		if err := tr.op.Setup(ckt); err != nil {
			return fmt.Errorf("operating point setup error: %w", err)
		}
		if err := tr.op.Execute(); err != nil {
			return fmt.Errorf("operating point analysis error: %w", err)
		}
	}

	ckt.InitState()
	if tr.startTime <= 0 {
		tr.StoreTimeResult(0, ckt.GetSolution())
	}
	return nil
}

func (tr *Transient) Execute() error {
	return tr.ExecuteContext(context.Background())
}

// ExecuteContext runs the time loop, checking ctx between steps.
func (tr *Transient) ExecuteContext(ctx context.Context) error {
	if tr.Circuit == nil {
		return fmt.Errorf("circuit not set")
	}

	// last step is dropped when it would be shorter than this
	eps := tr.timeStep * 1e-9

	for tr.stopTime-tr.time > eps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("transient stopped at t=%g: %w", tr.time, err)
		}

		dt := min(tr.timeStep, tr.stopTime-tr.time)
		order := 2
		if tr.prevStep != dt {
			order = 1
		}

		status := &device.CircuitStatus{
			Time:     tr.time + dt,
			TimeStep: dt,
			Mode:     device.TransientAnalysis,
			Order:    order,
		}
		if err := tr.solveStep(status); err != nil {
			return fmt.Errorf("t=%g: %w", status.Time, err)
		}

		tr.Circuit.Update(status)
		tr.time = status.Time
		tr.prevStep = dt

		if tr.time >= tr.startTime {
			tr.StoreTimeResult(tr.time, tr.Circuit.GetSolution())
		}
	}

	return nil
}

func (tr *Transient) solveStep(status *device.CircuitStatus) error {
	mat := tr.Circuit.GetMatrix()
	mat.Clear()

	if err := tr.Circuit.Stamp(status); err != nil {
		return fmt.Errorf("stamping error: %w", err)
	}

	if err := mat.Solve(); err != nil {
		return fmt.Errorf("matrix solve error: %w", err)
	}
	return nil
}

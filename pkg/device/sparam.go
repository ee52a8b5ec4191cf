package device

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"github.com/linmingchih/channel-check-tool-v2/pkg/matrix"
	"github.com/linmingchih/channel-check-tool-v2/pkg/network"
)

// SParameterBlock stands in for an N-port S-parameter model with its
// low-frequency admittance Y = (I - S0)(I + S0)^-1 / Z0, where S0 is the real
// part of the lowest frequency sample. Every port is referenced to ground.
type SParameterBlock struct {
	BaseDevice
	y *mat.Dense
}

func NewSParameterBlock(name string, nodeNames []string, nw *network.Network) (*SParameterBlock, error) {
	if nw == nil {
		return nil, fmt.Errorf("s block %s: no network", name)
	}
	n := nw.Ports()
	if len(nodeNames) != n {
		return nil, fmt.Errorf("s block %s: %w: %d nodes for a %d-port network", name, network.ErrPortCount, len(nodeNames), n)
	}

	y, err := admittance(nw)
	if err != nil {
		return nil, fmt.Errorf("s block %s: %w", name, err)
	}

	return &SParameterBlock{
		BaseDevice: newBaseDevice(name, 0, nodeNames),
		y:          y,
	}, nil
}

func admittance(nw *network.Network) (*mat.Dense, error) {
	n := nw.Ports()
	s0 := nw.S[nw.LowestFrequency()]

	minus := mat.NewDense(n, n, nil)
	plus := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			id := 0.0
			if i == j {
				id = 1
			}
			re := real(s0.At(i, j))
			minus.Set(i, j, id-re)
			plus.Set(i, j, id+re)
		}
	}

	var inv mat.Dense
	if err := inv.Inverse(plus); err != nil {
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, fmt.Errorf("I + S is singular at %g Hz: %w", nw.Freq[nw.LowestFrequency()], err)
		}
	}

	y := mat.NewDense(n, n, nil)
	y.Mul(minus, &inv)
	y.Scale(1/nw.Z0, y)
	return y, nil
}

func (s *SParameterBlock) GetType() string { return "S" }

// Admittance returns Y[i, j] in siemens.
func (s *SParameterBlock) Admittance(i, j int) float64 {
	return s.y.At(i, j)
}

func (s *SParameterBlock) Stamp(matrix matrix.DeviceMatrix, status *CircuitStatus) error {
	for i, ni := range s.Nodes {
		if ni == 0 {
			continue
		}
		for j, nj := range s.Nodes {
			if nj == 0 {
				continue
			}
			if g := s.y.At(i, j); g != 0 {
				matrix.AddElement(ni, nj, g)
			}
		}
	}
	return nil
}

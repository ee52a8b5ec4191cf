// Package network holds a frequency-domain multi-port S-parameter network.
package network

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"gonum.org/v1/gonum/mat"
)

// ErrPortCount reports a network whose size does not match what the caller
// expects.
var ErrPortCount = errors.New("port count mismatch")

// Network is an immutable N-port S-parameter set sampled over frequency.
type Network struct {
	Freq []float64     // Hz, ascending
	S    []*mat.CDense // one N x N matrix per frequency
	Z0   float64       // reference impedance (ohm)

	ports int
}

// New builds a network from per-frequency S matrices.
func New(freq []float64, s []*mat.CDense, z0 float64) (*Network, error) {
	if len(freq) != len(s) {
		return nil, fmt.Errorf("%d frequencies but %d matrices", len(freq), len(s))
	}
	if len(s) == 0 {
		return nil, fmt.Errorf("network has no frequency samples")
	}

	n, c := s[0].Dims()
	if n != c {
		return nil, fmt.Errorf("%w: S matrix is %dx%d", ErrPortCount, n, c)
	}
	for i, m := range s[1:] {
		r, c := m.Dims()
		if r != n || c != n {
			return nil, fmt.Errorf("%w: sample %d is %dx%d, want %dx%d", ErrPortCount, i+1, r, c, n, n)
		}
	}
	if z0 <= 0 {
		z0 = 50
	}

	return &Network{Freq: freq, S: s, Z0: z0, ports: n}, nil
}

// Ports returns N.
func (n *Network) Ports() int { return n.ports }

// At returns S[row, col] at frequency sample f.
func (n *Network) At(f, row, col int) complex128 {
	return n.S[f].At(row, col)
}

// PeakMagnitudeDB returns max over frequency and the given TX indices of
// 20*log10|S[rx, tx]|, or -Inf when every magnitude is zero. Indices are
// 0-based.
func (n *Network) PeakMagnitudeDB(rx int, txs []int) float64 {
	peak := 0.0
	for _, s := range n.S {
		for _, tx := range txs {
			if mag := cmplx.Abs(s.At(rx, tx)); mag > peak {
				peak = mag
			}
		}
	}
	if peak <= 0 {
		return math.Inf(-1)
	}
	return 20 * math.Log10(peak)
}

// Subnetwork returns a new network restricted to the given 0-based ports,
// in the order given.
func (n *Network) Subnetwork(indices []int) (*Network, error) {
	for _, idx := range indices {
		if idx < 0 || idx >= n.ports {
			return nil, fmt.Errorf("%w: port index %d outside 0..%d", ErrPortCount, idx, n.ports-1)
		}
	}

	k := len(indices)
	subs := make([]*mat.CDense, len(n.S))
	for f, s := range n.S {
		sub := mat.NewCDense(k, k, nil)
		for i, ri := range indices {
			for j, cj := range indices {
				sub.Set(i, j, s.At(ri, cj))
			}
		}
		subs[f] = sub
	}

	freq := append([]float64(nil), n.Freq...)
	return &Network{Freq: freq, S: subs, Z0: n.Z0, ports: k}, nil
}

// LowestFrequency returns the index of the lowest frequency sample.
func (n *Network) LowestFrequency() int {
	lowest := 0
	for i, f := range n.Freq {
		if f < n.Freq[lowest] {
			lowest = i
		}
	}
	return lowest
}

// Package metrics turns aggregated waveforms into the signal integrity
// report: signal energy, ISI, crosstalk, pseudo eye and power ratio.
package metrics

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrDomain reports waveforms the sliding window cannot be applied to.
var ErrDomain = errors.New("invalid waveform for sliding window")

// TrapezoidalIntegral is sum 0.5*(y[i]+y[i+1])*(x[i+1]-x[i]) over the
// common length of x and y.
func TrapezoidalIntegral(x, y []float64) float64 {
	n := min(len(x), len(y))
	total := 0.0
	for i := 0; i+1 < n; i++ {
		total += 0.5 * (y[i] + y[i+1]) * (x[i+1] - x[i])
	}
	return total
}

// SlidingWindowEnergy slides a window of width ui over the waveform and
// returns the largest signed integral that fits entirely inside the capture
// (sig), and the absolute integral outside that window (isi).
func SlidingWindowEnergy(time, voltage []float64, ui float64) (sig, isi float64, err error) {
	if len(time) != len(voltage) {
		return 0, 0, fmt.Errorf("%w: %d time samples, %d voltage samples", ErrDomain, len(time), len(voltage))
	}
	if !(ui > 0) {
		return 0, 0, fmt.Errorf("%w: unit interval %g", ErrDomain, ui)
	}
	n := len(time)
	if n == 0 {
		return 0, 0, fmt.Errorf("%w: empty waveform", ErrDomain)
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return time[order[a]] < time[order[b]] })
	t := make([]float64, n)
	v := make([]float64, n)
	for k, idx := range order {
		t[k], v[k] = time[idx], voltage[idx]
	}

	if t[n-1]-t[0] < ui {
		return 0, 0, fmt.Errorf("%w: capture of %g is shorter than the unit interval %g", ErrDomain, t[n-1]-t[0], ui)
	}

	trap := make([]float64, n)
	trapAbs := make([]float64, n)
	for k := 1; k < n; k++ {
		dt := t[k] - t[k-1]
		trap[k] = trap[k-1] + 0.5*(v[k-1]+v[k])*dt
		trapAbs[k] = trapAbs[k-1] + 0.5*(math.Abs(v[k-1])+math.Abs(v[k]))*dt
	}
	totalAbs := trapAbs[n-1]

	// last start index with t[i] + ui <= t[n-1]
	target := t[n-1] - ui
	lastI := sort.Search(n, func(k int) bool { return t[k] > target }) - 1
	if lastI < 0 {
		return 0, 0, fmt.Errorf("%w: no complete window", ErrDomain)
	}

	// tail integrates from t[j] to tEnd when tEnd falls strictly inside
	// (t[j], t[j+1]).
	tail := func(j int, tEnd float64, value func(float64) float64) float64 {
		if j+1 >= n || !(t[j] < tEnd && tEnd < t[j+1]) {
			return 0
		}
		vEnd := v[j] + (v[j+1]-v[j])*(tEnd-t[j])/(t[j+1]-t[j])
		return 0.5 * (value(v[j]) + value(vEnd)) * (tEnd - t[j])
	}
	identity := func(x float64) float64 { return x }

	sig = math.Inf(-1)
	bestI, bestJ, bestEnd := 0, 0, 0.0
	j := 0
	for i := 0; i <= lastI; i++ {
		tEnd := t[i] + ui
		for j+1 < n && t[j+1] <= tEnd {
			j++
		}

		integ := trap[j] - trap[i] + tail(j, tEnd, identity)
		if integ > sig {
			sig = integ
			bestI, bestJ, bestEnd = i, j, tEnd
		}
	}

	window := trapAbs[bestJ] - trapAbs[bestI] + tail(bestJ, bestEnd, math.Abs)
	return sig, totalAbs - window, nil
}

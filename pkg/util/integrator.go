package util

// bdf holds the history weights a and step weight b of a fixed-step BDF:
// x(n) = sum(a[k] * x(n-1-k)) + b * dt * x'(n).
type bdf struct {
	a []float64
	b float64
}

var bdfTable = []bdf{
	{a: []float64{1}, b: 1},
	{a: []float64{4.0 / 3.0, -1.0 / 3.0}, b: 2.0 / 3.0},
	{a: []float64{18.0 / 11.0, -9.0 / 11.0, 2.0 / 11.0}, b: 6.0 / 11.0},
}

// MaxBDFOrder is the highest order GetBDFcoeffs supports.
var MaxBDFOrder = len(bdfTable)

// GetBDFcoeffs returns the derivative weights of a fixed-step BDF of the
// given order: x'(n) ~ coeffs[0]*x(n) + coeffs[1]*x(n-1) + ... + coeffs[order]*x(n-order).
// Order 1 is backward Euler; an unsupported order falls back to it.
func GetBDFcoeffs(order int, dt float64) []float64 {
	if order < 1 || order > MaxBDFOrder {
		order = 1
	}

	f := bdfTable[order-1]
	inv := 1 / (f.b * dt)

	coeffs := make([]float64, 0, order+1)
	coeffs = append(coeffs, inv)
	for _, a := range f.a {
		coeffs = append(coeffs, -a*inv)
	}
	return coeffs
}

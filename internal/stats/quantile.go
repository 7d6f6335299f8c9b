package stats

import "sort"

// p2Estimator is the P² streaming quantile estimator (Jain & Chlamtac). It
// keeps five markers instead of the sample set, so memory stays constant
// under sustained load; the estimate converges, it is not exact.
type p2Estimator struct {
	p     float64
	q     [5]float64 // marker heights
	n     [5]float64 // marker positions
	np    [5]float64 // desired positions
	dn    [5]float64 // desired position increments
	count int
}

func newP2(p float64) *p2Estimator {
	e := &p2Estimator{p: p}
	e.dn = [5]float64{0, p / 2, p, (1 + p) / 2, 1}
	return e
}

// Add folds one observation into the estimator.
func (e *p2Estimator) Add(x float64) {
	if e.count < 5 {
		e.q[e.count] = x
		e.count++
		if e.count == 5 {
			sort.Float64s(e.q[:])
			for i := 0; i < 5; i++ {
				e.n[i] = float64(i + 1)
			}
			e.np = [5]float64{1, 1 + 2*e.p, 1 + 4*e.p, 3 + 2*e.p, 5}
		}
		return
	}

	// Find the cell the observation falls into and stretch the extremes.
	var k int
	switch {
	case x < e.q[0]:
		e.q[0] = x
		k = 0
	case x < e.q[1]:
		k = 0
	case x < e.q[2]:
		k = 1
	case x < e.q[3]:
		k = 2
	case x <= e.q[4]:
		k = 3
	default:
		e.q[4] = x
		k = 3
	}

	for i := k + 1; i < 5; i++ {
		e.n[i]++
	}
	for i := 0; i < 5; i++ {
		e.np[i] += e.dn[i]
	}

	// Adjust the three middle markers toward their desired positions,
	// parabolic where possible, linear otherwise.
	for i := 1; i <= 3; i++ {
		d := e.np[i] - e.n[i]
		if (d >= 1 && e.n[i+1]-e.n[i] > 1) || (d <= -1 && e.n[i-1]-e.n[i] < -1) {
			sign := 1.0
			if d < 0 {
				sign = -1.0
			}
			qn := e.parabolic(i, sign)
			if e.q[i-1] < qn && qn < e.q[i+1] {
				e.q[i] = qn
			} else {
				e.q[i] = e.linear(i, sign)
			}
			e.n[i] += sign
		}
	}
	e.count++
}

func (e *p2Estimator) parabolic(i int, d float64) float64 {
	return e.q[i] + d/(e.n[i+1]-e.n[i-1])*
		((e.n[i]-e.n[i-1]+d)*(e.q[i+1]-e.q[i])/(e.n[i+1]-e.n[i])+
			(e.n[i+1]-e.n[i]-d)*(e.q[i]-e.q[i-1])/(e.n[i]-e.n[i-1]))
}

func (e *p2Estimator) linear(i int, d float64) float64 {
	idx := i + int(d)
	return e.q[i] + d*(e.q[idx]-e.q[i])/(e.n[idx]-e.n[i])
}

// Value returns the current quantile estimate. Below five observations it
// falls back to the exact small-sample quantile.
func (e *p2Estimator) Value() float64 {
	if e.count == 0 {
		return 0
	}
	if e.count < 5 {
		tmp := make([]float64, e.count)
		copy(tmp, e.q[:e.count])
		sort.Float64s(tmp)
		idx := int(e.p * float64(e.count-1))
		return tmp[idx]
	}
	return e.q[2]
}

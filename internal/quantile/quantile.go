package quantile

import (
	"math"
	"sort"
)

// Quantile is a collection of data points.
type Quantile struct {
	// Xs is the slice of sample values.
	Xs []float64

	// Sorted indicates that Xs is sorted in ascending order.
	Sorted bool
}

// Bounds returns the minimum and maximum values of xs.
func Bounds(xs []float64) (min float64, max float64) {
	if len(xs) == 0 {
		return 0, 0
	}
	min, max = xs[0], xs[0]
	for _, x := range xs {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	return
}

// Bounds returns the minimum and maximum values of the Quantile. This is
// constant time if q.Sorted.
func (q Quantile) Bounds() (min float64, max float64) {
	if len(q.Xs) == 0 || !q.Sorted {
		return Bounds(q.Xs)
	}
	return q.Xs[0], q.Xs[len(q.Xs)-1]
}

// Sum returns the sum of the Quantile.
func (q Quantile) Sum() float64 {
	sum := 0.0
	for _, x := range q.Xs {
		sum += x
	}
	return sum
}

// Mean returns the arithmetic mean of xs.
func Mean(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	}
	m := 0.0
	for i, x := range xs {
		m += (x - m) / float64(i+1)
	}
	return m
}

func (q Quantile) Mean() float64 {
	return Mean(q.Xs)
}

// Variance returns the sample variance of xs.
func Variance(xs []float64) float64 {
	if len(xs) == 0 {
		return math.NaN()
	} else if len(xs) <= 1 {
		return 0
	}

	// Welford's online algorithm.
	mean, M2 := 0.0, 0.0
	for n, x := range xs {
		delta := x - mean
		mean += delta / float64(n+1)
		M2 += delta * (x - mean)
	}
	return M2 / float64(len(xs)-1)
}

// StdDev returns the sample standard deviation of the Quantile.
func (q Quantile) StdDev() float64 {
	return math.Sqrt(Variance(q.Xs))
}

// Percentile returns the pctileth value from the Quantile. This uses
// interpolation method R8 from Hyndman and Fan (1996).
//
// pctile will be capped to the range [0, 1]. If len(xs) == 0, returns 0.
//
// This is constant time if q.Sorted.
func (q Quantile) Percentile(pctile float64) float64 {
	if len(q.Xs) == 0 {
		return 0
	} else if pctile <= 0 {
		min, _ := q.Bounds()
		return min
	} else if pctile >= 1 {
		_, max := q.Bounds()
		return max
	}

	if !q.Sorted {
		q = *q.Copy().Sort()
	}

	N := float64(len(q.Xs))
	n := 1/3.0 + pctile*(N+1/3.0) // R8
	kf, frac := math.Modf(n)
	k := int(kf)
	if k <= 0 {
		return q.Xs[0]
	} else if k >= len(q.Xs) {
		return q.Xs[len(q.Xs)-1]
	}
	return q.Xs[k-1] + frac*(q.Xs[k]-q.Xs[k-1])
}

// Sort sorts the samples in place and returns q.
func (q *Quantile) Sort() *Quantile {
	if !q.Sorted && !sort.Float64sAreSorted(q.Xs) {
		sort.Float64s(q.Xs)
	}
	q.Sorted = true
	return q
}

// Copy returns a copy of the Quantile sharing no data with the original.
func (q Quantile) Copy() *Quantile {
	xs := make([]float64, len(q.Xs))
	copy(xs, q.Xs)
	return &Quantile{Xs: xs, Sorted: q.Sorted}
}

func (q *Quantile) Add(v ...float64) {
	q.Xs = append(q.Xs, v...)
	q.Sorted = false
}

// Package regression computes ordinary least-squares fits over candle
// close windows. The x axis is the integer index 0..L-1, not candle
// timestamps, so slopes read as price change per candle.
package regression

import (
	"fmt"
	"math"
)

// Result holds one regression fit plus the population standard
// deviation of its residuals.
type Result struct {
	Slope     float64 `json:"slope"`
	Intercept float64 `json:"intercept"`
	RValue    float64 `json:"r_value"`
	StdDev    float64 `json:"std_dev"`
}

// Linear fits y = intercept + slope*x over x = 0..len(closes)-1 with
// closes in ascending-time order.
//
// Degenerate input conventions: a constant series yields slope 0,
// intercept equal to the constant, r 0 and std_dev 0. Fewer than two
// points is an error.
func Linear(closes []float64) (Result, error) {
	n := len(closes)
	if n < 2 {
		return Result{}, fmt.Errorf("regression needs at least 2 points, got %d", n)
	}

	fn := float64(n)
	var sx, sy, sxx, syy, sxy float64
	for i, y := range closes {
		x := float64(i)
		sx += x
		sy += y
		sxx += x * x
		syy += y * y
		sxy += x * y
	}

	// x is 0..n-1 so the denominator is never zero for n >= 2.
	denom := fn*sxx - sx*sx
	slope := (fn*sxy - sx*sy) / denom
	intercept := (sy - slope*sx) / fn

	var r float64
	yVar := fn*syy - sy*sy
	if yVar > 0 {
		r = (fn*sxy - sx*sy) / math.Sqrt(denom*yVar)
		// Guard against float noise pushing |r| past 1.
		if r > 1 {
			r = 1
		} else if r < -1 {
			r = -1
		}
	}

	var ssRes float64
	for i, y := range closes {
		e := y - (intercept + slope*float64(i))
		ssRes += e * e
	}
	stdDev := math.Sqrt(ssRes / fn) // population divisor

	return Result{Slope: slope, Intercept: intercept, RValue: r, StdDev: stdDev}, nil
}

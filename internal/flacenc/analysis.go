package flacenc

import (
	"github.com/seekflac/flac/frame"
)

// Analyze decides on the prediction method (constant, verbatim or fixed) for
// the given subblock of samples coded at the given sample depth. It picks the
// encoding that yields the fewest estimated bits when assuming a single Rice
// partition. Wasted bits-per-sample common to every sample are factored out.
func Analyze(samples []int64, depth uint) *Subframe {
	subframe := &Subframe{Samples: samples}
	subframe.Wasted = wastedBits(samples, depth)
	depth -= subframe.Wasted
	scaled := make([]int64, len(samples))
	for i, sample := range samples {
		scaled[i] = sample >> subframe.Wasted
	}

	// --- Constant predictor.
	allEqual := true
	for _, sample := range scaled[1:] {
		if sample != scaled[0] {
			allEqual = false
			break
		}
	}
	if allEqual {
		subframe.Pred = frame.PredConstant
		return subframe
	}

	// --- Verbatim predictor cost.
	bestBits := uint64(len(scaled)) * uint64(depth)
	subframe.Pred = frame.PredVerbatim

	// --- Fixed predictor; try orders 0 through 4.
	for order := 0; order <= 4 && order < len(scaled); order++ {
		residuals := Residuals(scaled, frame.FixedCoeffs[order], 0)[order:]
		k := chooseRice(residuals, 14)
		// Warm-up samples, Rice parameter and residuals.
		n := uint64(order)*uint64(depth) + 4 + riceBits(residuals, k)
		if n < bestBits {
			bestBits = n
			subframe.Pred = frame.PredFixed
			subframe.Order = order
		}
	}
	return subframe
}

// wastedBits returns the number of trailing zero bits common to every sample,
// at most depth. A subblock of zeros has no wasted bits.
func wastedBits(samples []int64, depth uint) uint {
	var or int64
	for _, sample := range samples {
		or |= sample
	}
	if or == 0 {
		return 0
	}
	var n uint
	for or&1 == 0 && n < depth {
		or >>= 1
		n++
	}
	return n
}

package flacenc

import (
	mathbits "math/bits"

	"github.com/icza/bitio"
	"github.com/mewkiz/pkg/errutil"
	"github.com/seekflac/flac/frame"
	"github.com/seekflac/flac/internal/bits"
)

// A Subframe is the subblock of one channel to encode, together with the
// prediction method and residual coding used to encode it.
type Subframe struct {
	// Prediction method, prediction order and wasted bits-per-sample.
	frame.SubHeader
	// Audio samples of the subblock, including wasted bits.
	Samples []int64
	// Quantized LPC coefficients, their precision in bits and the shift of the
	// prediction; only used by PredLPC.
	Coeffs    []int32
	Precision uint
	Shift     uint
	// Rice2 specifies that Rice parameters are stored using 5 bits instead of 4.
	Rice2 bool
	// Partition order of the residuals.
	PartOrder uint
	// Rice parameter of each partition; chosen to minimize the encoded size if
	// nil. The escape parameter (15, or 31 for Rice2) stores the residuals of a
	// partition unencoded.
	Params []uint
}

// encodeSubframe encodes the given subframe at the given sample depth, writing
// to bw.
func encodeSubframe(bw *bitio.Writer, subframe *Subframe, depth uint, blockSize int) error {
	if len(subframe.Samples) != blockSize {
		return errutil.Newf("block size and sample count mismatch; expected %d, got %d", blockSize, len(subframe.Samples))
	}
	if err := encodeSubframeHeader(bw, subframe.SubHeader); err != nil {
		return errutil.Err(err)
	}

	// Remove wasted bits-per-sample.
	if subframe.Wasted > depth {
		return errutil.Newf("%d wasted bits-per-sample exceeds sample depth %d", subframe.Wasted, depth)
	}
	depth -= subframe.Wasted
	samples := make([]int64, blockSize)
	for i, sample := range subframe.Samples {
		if sample&(1<<subframe.Wasted-1) != 0 {
			return errutil.Newf("sample %d has fewer than %d wasted bits-per-sample", sample, subframe.Wasted)
		}
		samples[i] = sample >> subframe.Wasted
	}

	switch subframe.Pred {
	case frame.PredConstant:
		// Unencoded constant value of the subblock.
		for _, sample := range samples[1:] {
			if sample != samples[0] {
				return errutil.Newf("constant sample mismatch; expected %v, got %v", samples[0], sample)
			}
		}
		return bits.WriteSigned(bw, samples[0], depth)
	case frame.PredVerbatim:
		// Unencoded subblock.
		for _, sample := range samples {
			if err := bits.WriteSigned(bw, sample, depth); err != nil {
				return errutil.Err(err)
			}
		}
		return nil
	case frame.PredFixed:
		if subframe.Order > 4 {
			return errutil.Newf("invalid fixed prediction order %d", subframe.Order)
		}
		if err := writeWarmUp(bw, samples[:subframe.Order], depth); err != nil {
			return errutil.Err(err)
		}
		residuals := Residuals(samples, frame.FixedCoeffs[subframe.Order], 0)
		return encodeResiduals(bw, subframe, residuals)
	case frame.PredLPC:
		if subframe.Order != len(subframe.Coeffs) || subframe.Order < 1 || subframe.Order > 32 {
			return errutil.Newf("invalid LPC prediction order %d for %d coefficients", subframe.Order, len(subframe.Coeffs))
		}
		if err := writeWarmUp(bw, samples[:subframe.Order], depth); err != nil {
			return errutil.Err(err)
		}
		// Quantized linear predictor coefficient precision in bits, minus one.
		if subframe.Precision < 1 || subframe.Precision > 15 {
			return errutil.Newf("invalid coefficient precision %d", subframe.Precision)
		}
		if err := bw.WriteBits(uint64(subframe.Precision-1), 4); err != nil {
			return errutil.Err(err)
		}
		// Quantized linear predictor coefficient shift needed in bits.
		if subframe.Shift > 15 {
			return errutil.Newf("invalid coefficient shift %d", subframe.Shift)
		}
		if err := bw.WriteBits(uint64(subframe.Shift), 5); err != nil {
			return errutil.Err(err)
		}
		for _, c := range subframe.Coeffs {
			if err := bits.WriteSigned(bw, int64(c), subframe.Precision); err != nil {
				return errutil.Err(err)
			}
		}
		residuals := Residuals(samples, subframe.Coeffs, subframe.Shift)
		return encodeResiduals(bw, subframe, residuals)
	}
	return errutil.Newf("support for prediction method %v not yet implemented", subframe.Pred)
}

// encodeSubframeHeader encodes the given subframe header, writing to bw.
func encodeSubframeHeader(bw *bitio.Writer, subHdr frame.SubHeader) error {
	// Zero bit padding, to prevent sync-fooling string of 1s.
	if err := bw.WriteBits(0x0, 1); err != nil {
		return errutil.Err(err)
	}

	// Subframe type:
	//     000000 : SUBFRAME_CONSTANT
	//     000001 : SUBFRAME_VERBATIM
	//     00001x : reserved
	//     0001xx : reserved
	//     001xxx : if(xxx <= 4) SUBFRAME_FIXED, xxx=order ; else reserved
	//     01xxxx : reserved
	//     1xxxxx : SUBFRAME_LPC, xxxxx=order-1
	var x uint64
	switch subHdr.Pred {
	case frame.PredConstant:
		x = 0x00
	case frame.PredVerbatim:
		x = 0x01
	case frame.PredFixed:
		x = 0x08 | uint64(subHdr.Order)
	case frame.PredLPC:
		x = 0x20 | uint64(subHdr.Order-1)
	}
	if err := bw.WriteBits(x, 6); err != nil {
		return errutil.Err(err)
	}

	// <1+k> 'Wasted bits-per-sample' flag:
	//
	//     0 : no wasted bits-per-sample in source subblock, k=0
	//     1 : k wasted bits-per-sample in source subblock, k-1 follows, unary coded; e.g. k=3 => 001 follows, k=7 => 0000001 follows.
	hasWastedBits := subHdr.Wasted > 0
	if err := bw.WriteBool(hasWastedBits); err != nil {
		return errutil.Err(err)
	}
	if hasWastedBits {
		if err := bits.WriteUnary(bw, uint64(subHdr.Wasted-1)); err != nil {
			return errutil.Err(err)
		}
	}
	return nil
}

// writeWarmUp writes the unencoded warm-up samples of a predicted subframe.
func writeWarmUp(bw *bitio.Writer, warmUp []int64, depth uint) error {
	for _, sample := range warmUp {
		if err := bits.WriteSigned(bw, sample, depth); err != nil {
			return errutil.Err(err)
		}
	}
	return nil
}

// Residuals returns the residuals (signal errors of the prediction) of samples,
// predicting each sample from the preceding len(coeffs) samples using the given
// coefficients and shift. The first len(coeffs) residuals are the warm-up
// samples themselves.
func Residuals(samples []int64, coeffs []int32, shift uint) []int64 {
	residuals := make([]int64, len(samples))
	for i, sample := range samples {
		if i < len(coeffs) {
			residuals[i] = sample
			continue
		}
		var sum int64
		for j, c := range coeffs {
			sum += int64(c) * samples[i-j-1]
		}
		residuals[i] = sample - sum>>shift
	}
	return residuals
}

// encodeResiduals encodes the residuals (prediction method error signals) of the
// subframe.
//
// ref: https://www.xiph.org/flac/format.html#residual
func encodeResiduals(bw *bitio.Writer, subframe *Subframe, residuals []int64) error {
	// 2 bits: Residual coding method.
	//    00: Rice coding with a 4-bit Rice parameter.
	//    01: Rice coding with a 5-bit Rice parameter.
	paramSize := uint8(4)
	if subframe.Rice2 {
		paramSize = 5
	}
	if err := bw.WriteBits(uint64(paramSize-4), 2); err != nil {
		return errutil.Err(err)
	}
	escape := uint(1)<<paramSize - 1

	// 4 bits: Partition order.
	if err := bw.WriteBits(uint64(subframe.PartOrder), 4); err != nil {
		return errutil.Err(err)
	}
	nparts := 1 << subframe.PartOrder
	if len(residuals)%nparts != 0 || len(residuals)/nparts < subframe.Order {
		return errutil.Newf("block size %d incompatible with partition order %d", len(residuals), subframe.PartOrder)
	}
	if subframe.Params != nil && len(subframe.Params) != nparts {
		return errutil.Newf("partition count mismatch; expected %d, got %d", nparts, len(subframe.Params))
	}
	size := len(residuals) / nparts
	for i := 0; i < nparts; i++ {
		start, end := i*size, (i+1)*size
		if i == 0 {
			start = subframe.Order
		}
		part := residuals[start:end]
		var param uint
		if subframe.Params != nil {
			param = subframe.Params[i]
		} else {
			param = chooseRice(part, escape-1)
		}
		if err := bw.WriteBits(uint64(param), paramSize); err != nil {
			return errutil.Err(err)
		}
		if param == escape {
			// Escaped partition; 5 bits: number of bits per residual.
			n := signedWidth(part)
			if err := bw.WriteBits(uint64(n), 5); err != nil {
				return errutil.Err(err)
			}
			for _, residual := range part {
				if err := bits.WriteSigned(bw, residual, n); err != nil {
					return errutil.Err(err)
				}
			}
			continue
		}
		for _, residual := range part {
			if err := bits.WriteRice(bw, param, residual); err != nil {
				return errutil.Err(err)
			}
		}
	}
	return nil
}

// chooseRice returns the Rice parameter k in [0, max] that minimizes the
// encoded length of the residuals.
func chooseRice(residuals []int64, max uint) uint {
	bestK := uint(0)
	bestBits := riceBits(residuals, 0)
	for k := uint(1); k <= max; k++ {
		if n := riceBits(residuals, k); n < bestBits {
			bestK, bestBits = k, n
		}
	}
	return bestK
}

// riceBits returns the number of bits needed to Rice code the residuals using
// the Rice parameter k.
func riceBits(residuals []int64, k uint) uint64 {
	var n uint64
	for _, r := range residuals {
		// unary + stop bit + k LSBs
		n += bits.EncodeZigZag(r)>>k + 1 + uint64(k)
	}
	return n
}

// signedWidth returns the smallest number of bits that stores every value as a
// signed integer; 0 if every value is 0.
func signedWidth(values []int64) uint {
	n := 0
	for _, v := range values {
		if v == 0 {
			continue
		}
		if v < 0 {
			v = ^v
		}
		// Sign bit.
		if m := mathbits.Len64(uint64(v)) + 1; m > n {
			n = m
		}
	}
	return uint(n)
}

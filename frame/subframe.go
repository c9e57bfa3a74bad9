package frame

import (
	"github.com/pkg/errors"
	"github.com/seekflac/flac/internal/bits"
)

// A SubHeader specifies the prediction method and order of a subframe.
//
// ref: https://www.xiph.org/flac/format.html#subframe_header
type SubHeader struct {
	// Specifies the prediction method used to encode the audio sample of the
	// subframe.
	Pred Pred
	// Prediction order used by fixed and LPC decoding.
	Order int
	// Wasted bits-per-sample.
	Wasted uint
}

// Pred specifies the prediction method used to encode the audio samples of a
// subframe.
type Pred uint8

// Prediction methods.
const (
	// PredConstant specifies that the subframe contains a constant sound. The
	// audio samples are encoded using run-length encoding. Since every audio
	// sample has the same constant value, a single unencoded audio sample is
	// stored in practice. It is replicated a number of times, as specified by
	// BlockSize in the frame header.
	PredConstant Pred = iota
	// PredVerbatim specifies that the subframe contains unencoded audio samples.
	// Random sound is often stored verbatim, since no prediction method can
	// compress it sufficiently.
	PredVerbatim
	// PredFixed specifies that the statistical characteristics of the subframe
	// is predicted using a fixed set of polynomial coefficients.
	PredFixed
	// PredLPC specifies that the statistical characteristics of the subframe is
	// predicted using linear prediction coding with quantized coefficients
	// stored in the subframe.
	PredLPC
)

// predNames maps from prediction methods to their names.
var predNames = [...]string{
	PredConstant: "constant",
	PredVerbatim: "verbatim",
	PredFixed:    "fixed",
	PredLPC:      "LPC",
}

func (pred Pred) String() string {
	if int(pred) < len(predNames) {
		return predNames[pred]
	}
	return "reserved"
}

// FixedCoeffs maps from prediction order to the LPC coefficients used in fixed
// encoding.
//
//	x_0[n] = 0
//	x_1[n] = x[n-1]
//	x_2[n] = 2*x[n-1] - x[n-2]
//	x_3[n] = 3*x[n-1] - 3*x[n-2] + x[n-3]
//	x_4[n] = 4*x[n-1] - 6*x[n-2] + 4*x[n-3] - x[n-4]
var FixedCoeffs = [...][]int32{
	0: {},
	1: {1},
	2: {2, -1},
	3: {3, -3, 1},
	4: {4, -6, 4, -1},
}

// decodeSubframe reads one subframe, coded at the given sample depth, and
// stores its block of decoded samples in dst.
//
// Subframe format (pseudo code):
//
//	type SUBFRAME struct {
//	   _            uint1 // zero bit padding, to prevent sync-fooling string of 1s.
//	   type         uint6
//	   has_wasted   bool
//	   if has_wasted {
//	      wasted    unary // k-1 coded in unary.
//	   }
//	   switch type {
//	   case 000000:       SUBFRAME_CONSTANT
//	   case 000001:       SUBFRAME_VERBATIM
//	   case 001xxx:       SUBFRAME_FIXED; if xxx <= 4, order = xxx.
//	   case 1xxxxx:       SUBFRAME_LPC; order = xxxxx+1.
//	   }
//	}
//
// ref: https://www.xiph.org/flac/format.html#subframe
func (dec *Decoder) decodeSubframe(depth uint, dst []int64) error {
	br := dec.br
	subHdr, err := parseSubHeader(br, depth)
	if err != nil {
		return err
	}
	depth -= subHdr.Wasted

	switch subHdr.Pred {
	case PredConstant:
		// Unencoded constant value of the subblock.
		x, err := br.ReadSigned(depth)
		if err != nil {
			return err
		}
		for i := range dst {
			dst[i] = x
		}
	case PredVerbatim:
		// Unencoded subblock.
		for i := range dst {
			x, err := br.ReadSigned(depth)
			if err != nil {
				return err
			}
			dst[i] = x
		}
	case PredFixed:
		if err := dec.decodeFixed(subHdr.Order, depth, dst); err != nil {
			return err
		}
	case PredLPC:
		if err := dec.decodeLPC(subHdr.Order, depth, dst); err != nil {
			return err
		}
	}

	// Restore wasted bits.
	if subHdr.Wasted > 0 {
		for i := range dst {
			dst[i] <<= subHdr.Wasted
		}
	}
	return nil
}

// parseSubHeader reads and parses the header of a subframe coded at the given
// sample depth.
func parseSubHeader(br *bits.Reader, depth uint) (SubHeader, error) {
	var subHdr SubHeader
	// Zero bit padding, to prevent sync-fooling string of 1s.
	x, err := br.Read(1)
	if err != nil {
		return subHdr, err
	}
	if x != 0 {
		return subHdr, errors.Wrap(bits.ErrDataFormat, "frame.parseSubHeader: non-zero padding bit")
	}

	// Subframe type:
	//     000000 : SUBFRAME_CONSTANT
	//     000001 : SUBFRAME_VERBATIM
	//     00001x : reserved
	//     0001xx : reserved
	//     001xxx : if(xxx <= 4) SUBFRAME_FIXED, xxx=order ; else reserved
	//     01xxxx : reserved
	//     1xxxxx : SUBFRAME_LPC, xxxxx=order-1
	t, err := br.Read(6)
	if err != nil {
		return subHdr, err
	}
	switch {
	case t == 0:
		subHdr.Pred = PredConstant
	case t == 1:
		subHdr.Pred = PredVerbatim
	case t >= 8 && t <= 12:
		subHdr.Pred = PredFixed
		subHdr.Order = int(t - 8)
	case t >= 32:
		subHdr.Pred = PredLPC
		subHdr.Order = int(t - 31)
	default:
		return subHdr, errors.Wrapf(bits.ErrDataFormat, "frame.parseSubHeader: reserved subframe type bit pattern (%06b)", t)
	}

	// <1+k> 'Wasted bits-per-sample' flag:
	//
	//     0 : no wasted bits-per-sample in source subblock, k=0
	//     1 : k wasted bits-per-sample in source subblock, k-1 follows, unary coded; e.g. k=3 => 001 follows, k=7 => 0000001 follows.
	hasWasted, err := br.Read(1)
	if err != nil {
		return subHdr, err
	}
	if hasWasted == 1 {
		k, err := br.ReadUnary()
		if err != nil {
			return subHdr, err
		}
		if k+1 > uint64(depth) {
			return subHdr, errors.Wrapf(bits.ErrDataFormat, "frame.parseSubHeader: %d wasted bits-per-sample exceeds sample depth %d", k+1, depth)
		}
		subHdr.Wasted = uint(k) + 1
	}
	return subHdr, nil
}

// decodeFixed decodes a subframe predicted using one of the fixed polynomial
// predictors.
//
//	type SUBFRAME_FIXED struct {
//	   warm_up  [order]int(depth)
//	   residual RESIDUAL
//	}
//
// ref: https://www.xiph.org/flac/format.html#subframe_fixed
func (dec *Decoder) decodeFixed(order int, depth uint, dst []int64) error {
	if order > len(dst) {
		return errors.Wrapf(bits.ErrDataFormat, "frame.Decoder.decodeFixed: prediction order %d exceeds block size %d", order, len(dst))
	}
	// Unencoded warm-up samples.
	for i := 0; i < order; i++ {
		x, err := dec.br.ReadSigned(depth)
		if err != nil {
			return err
		}
		dst[i] = x
	}
	if err := dec.readResiduals(order, dst); err != nil {
		return err
	}
	return RestoreLPC(dst, FixedCoeffs[order], depth, 0)
}

// decodeLPC decodes a subframe predicted using linear prediction with
// quantized coefficients stored in the subframe.
//
//	type SUBFRAME_LPC struct {
//	   warm_up   [order]int(depth)
//	   precision uint4 // precision-1; 1111 is invalid.
//	   shift     int5
//	   coeffs    [order]int(precision)
//	   residual  RESIDUAL
//	}
//
// ref: https://www.xiph.org/flac/format.html#subframe_lpc
func (dec *Decoder) decodeLPC(order int, depth uint, dst []int64) error {
	br := dec.br
	if order > len(dst) {
		return errors.Wrapf(bits.ErrDataFormat, "frame.Decoder.decodeLPC: prediction order %d exceeds block size %d", order, len(dst))
	}
	// Unencoded warm-up samples.
	for i := 0; i < order; i++ {
		x, err := br.ReadSigned(depth)
		if err != nil {
			return err
		}
		dst[i] = x
	}

	// Quantized linear predictor coefficient precision in bits.
	x, err := br.Read(4)
	if err != nil {
		return err
	}
	if x == 0xF {
		return errors.Wrap(bits.ErrDataFormat, "frame.Decoder.decodeLPC: invalid coefficient precision bit pattern (1111)")
	}
	prec := uint(x) + 1

	// Quantized linear predictor coefficient shift needed in bits.
	shift, err := br.ReadSigned(5)
	if err != nil {
		return err
	}
	if shift < 0 {
		return errors.Wrapf(bits.ErrDataFormat, "frame.Decoder.decodeLPC: negative coefficient shift (%d)", shift)
	}

	// Unencoded predictor coefficients.
	var coeffs [32]int32
	for i := 0; i < order; i++ {
		c, err := br.ReadSigned(prec)
		if err != nil {
			return err
		}
		coeffs[i] = int32(c)
	}
	if err := dec.readResiduals(order, dst); err != nil {
		return err
	}
	return RestoreLPC(dst, coeffs[:order], depth, uint(shift))
}

// RestoreLPC replaces the residuals in samples[len(coeffs):] with the samples
// they encode, predicting each sample from the preceding ones:
//
//	samples[i] += (coeffs[0]*samples[i-1] + ... + coeffs[order-1]*samples[i-order]) >> shift
//
// The first len(coeffs) samples are the warm-up samples. With at most 32
// coefficients of 15 bits and samples of at most 33 bits the prediction fits in
// 53 bits. ErrDataFormat is returned for any restored sample which does not fit
// in a signed integer of depth bits, where depth is at most 33.
func RestoreLPC(samples []int64, coeffs []int32, depth, shift uint) error {
	if depth > 33 || shift > 63 || len(coeffs) > 32 {
		return errors.Wrapf(bits.ErrInvalidArgument, "frame.RestoreLPC: depth %d, shift %d or order %d out of range", depth, shift, len(coeffs))
	}
	// A depth of 0 remains when every bit of a sample is wasted.
	var lo, hi int64
	if depth > 0 {
		lo = int64(-1) << (depth - 1)
		hi = -(lo + 1)
	}
	for i := len(coeffs); i < len(samples); i++ {
		var sum int64
		for j, c := range coeffs {
			sum += samples[i-1-j] * int64(c)
		}
		x := samples[i] + sum>>shift
		if x < lo || x > hi {
			return errors.Wrapf(bits.ErrDataFormat, "frame.RestoreLPC: post-LPC result %d exceeds bit depth %d", x, depth)
		}
		samples[i] = x
	}
	return nil
}

// readResiduals reads the Rice coded residuals of dst[warmup:].
//
//	type RESIDUAL struct {
//	   method          uint2 // 00: 4-bit Rice parameters; 01: 5-bit Rice parameters.
//	   partition_order uint4
//	   partitions      [1 << partition_order]RICE_PARTITION
//	}
//
//	type RICE_PARTITION struct {
//	   param           uint4 or uint5
//	   if param == escape {
//	      nbits        uint5
//	      residuals    [n]int(nbits)
//	   } else {
//	      residuals    [n]rice(param)
//	   }
//	}
//
// ref: https://www.xiph.org/flac/format.html#residual
func (dec *Decoder) readResiduals(warmup int, dst []int64) error {
	br := dec.br
	method, err := br.Read(2)
	if err != nil {
		return err
	}
	var paramSize uint
	switch method {
	case 0:
		paramSize = 4
	case 1:
		paramSize = 5
	default:
		return errors.Wrapf(bits.ErrDataFormat, "frame.Decoder.readResiduals: reserved residual coding method bit pattern (%02b)", method)
	}
	escape := uint64(1)<<paramSize - 1

	order, err := br.Read(4)
	if err != nil {
		return err
	}
	nparts := 1 << order
	if len(dst)%nparts != 0 {
		return errors.Wrapf(bits.ErrDataFormat, "frame.Decoder.readResiduals: block size %d not divisible by %d Rice partitions", len(dst), nparts)
	}
	size := len(dst) / nparts
	if warmup > size {
		return errors.Wrapf(bits.ErrDataFormat, "frame.Decoder.readResiduals: prediction order %d exceeds Rice partition size %d", warmup, size)
	}

	// The first partition holds size-warmup residuals.
	start := warmup
	for end := size; end <= len(dst); end += size {
		param, err := br.Read(paramSize)
		if err != nil {
			return err
		}
		if param == escape {
			// Escaped partition; residuals stored as raw signed integers.
			n, err := br.Read(5)
			if err != nil {
				return err
			}
			for i := start; i < end; i++ {
				x, err := br.ReadSigned(uint(n))
				if err != nil {
					return err
				}
				dst[i] = x
			}
		} else if err := br.ReadRice(uint(param), dst[start:end]); err != nil {
			return err
		}
		start = end
	}
	return nil
}

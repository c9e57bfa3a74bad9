package bits

import (
	"io"
	mathbits "math/bits"

	"github.com/icza/bitio"
	"github.com/pkg/errors"
)

// ReadUnary decodes and returns an unary coded integer, whose value is
// represented by the number of leading zeros before a one.
//
// Examples of unary coded binary on the left and decoded decimal on the right:
//
//	1       => 0
//	01      => 1
//	001     => 2
//	0001    => 3
//	00001   => 4
//	000001  => 5
//	0000001 => 6
func (br *Reader) ReadUnary() (x uint64, err error) {
	return br.readUnary(1 << 63)
}

// readUnary decodes an unary coded integer, failing with ErrDataFormat once
// the count of zeros reaches limit.
func (br *Reader) readUnary(limit uint64) (x uint64, err error) {
	for {
		if br.nbits == 0 {
			if err := br.fill(1); err != nil {
				if err == io.EOF {
					return 0, errors.Wrap(ErrEndOfStream, "bits.Reader.ReadUnary")
				}
				return 0, err
			}
		}
		// Left align the valid bits of the accumulator.
		v := br.acc << (64 - br.nbits)
		if v == 0 {
			x += uint64(br.nbits)
			br.nbits = 0
		} else {
			zeros := uint(mathbits.LeadingZeros64(v))
			x += uint64(zeros)
			br.nbits -= zeros + 1
			if x >= limit {
				break
			}
			return x, nil
		}
		if x >= limit {
			break
		}
	}
	return 0, errors.Wrap(ErrDataFormat, "bits.Reader.ReadUnary: residual too large")
}

// WriteUnary encodes x as an unary coded integer, whose value is represented by
// the number of leading zeros before a one.
//
// Examples of unary coded binary on the left and decoded decimal on the right:
//
//	0 => 1
//	1 => 01
//	2 => 001
//	3 => 0001
//	4 => 00001
//	5 => 000001
//	6 => 0000001
func WriteUnary(bw *bitio.Writer, x uint64) error {
	for ; x > 8; x -= 8 {
		if err := bw.WriteByte(0x0); err != nil {
			return errors.WithStack(err)
		}
	}

	bits := uint64(1)
	n := byte(x + 1)
	if err := bw.WriteBits(bits, n); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

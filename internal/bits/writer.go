package bits

import (
	"github.com/icza/bitio"
	"github.com/pkg/errors"
)

// WriteRice encodes x as a Rice coded signed integer with the given Rice
// parameter; the inverse of Reader.ReadRice.
func WriteRice(bw *bitio.Writer, param uint, x int64) error {
	u := EncodeZigZag(x)
	if err := WriteUnary(bw, u>>param); err != nil {
		return err
	}
	if param == 0 {
		return nil
	}
	if err := bw.WriteBits(u&(1<<param-1), uint8(param)); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// WriteSigned writes the n lowest bits of the two's complement representation
// of x.
func WriteSigned(bw *bitio.Writer, x int64, n uint) error {
	if n == 0 {
		return nil
	}
	if err := bw.WriteBits(uint64(x)&(1<<n-1), uint8(n)); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

// "UTF-8" coding limits.
const (
	tx = 0x80 // 1000 0000
	t2 = 0xC0 // 1100 0000
	t3 = 0xE0 // 1110 0000
	t4 = 0xF0 // 1111 0000
	t5 = 0xF8 // 1111 1000
	t6 = 0xFC // 1111 1100
	t7 = 0xFE // 1111 1110

	maskx = 0x3F // 0011 1111
	mask2 = 0x1F // 0001 1111
	mask3 = 0x0F // 0000 1111
	mask4 = 0x07 // 0000 0111
	mask5 = 0x03 // 0000 0011
	mask6 = 0x01 // 0000 0001

	rune1Max = 1<<7 - 1
	rune2Max = 1<<11 - 1
	rune3Max = 1<<16 - 1
	rune4Max = 1<<21 - 1
	rune5Max = 1<<26 - 1
	rune6Max = 1<<31 - 1
	rune7Max = 1<<36 - 1
)

// WriteUTF8 encodes x, at most 36 bits, as a "UTF-8" coded number.
func WriteUTF8(bw *bitio.Writer, x uint64) error {
	// 1-byte, 7-bit sequence?
	if x <= rune1Max {
		if err := bw.WriteBits(x, 8); err != nil {
			return errors.WithStack(err)
		}
		return nil
	}

	// Number of continuation bytes and the bits of c0.
	var (
		l  int
		c0 uint64
	)
	switch {
	case x <= rune2Max:
		// 110xxxxx; 11 bits (5 + 6)
		l, c0 = 1, t2|(x>>6)&mask2
	case x <= rune3Max:
		// 1110xxxx; 16 bits (4 + 6 + 6)
		l, c0 = 2, t3|(x>>(6*2))&mask3
	case x <= rune4Max:
		// 11110xxx; 21 bits (3 + 6 + 6 + 6)
		l, c0 = 3, t4|(x>>(6*3))&mask4
	case x <= rune5Max:
		// 111110xx; 26 bits (2 + 6 + 6 + 6 + 6)
		l, c0 = 4, t5|(x>>(6*4))&mask5
	case x <= rune6Max:
		// 1111110x; 31 bits (1 + 6 + 6 + 6 + 6 + 6)
		l, c0 = 5, t6|(x>>(6*5))&mask6
	case x <= rune7Max:
		// 11111110; 36 bits (0 + 6 + 6 + 6 + 6 + 6 + 6)
		l, c0 = 6, t7
	default:
		return errors.Wrapf(ErrInvalidArgument, "bits.WriteUTF8: %d exceeds 36 bits", x)
	}
	if err := bw.WriteBits(c0, 8); err != nil {
		return errors.WithStack(err)
	}

	// Continuation bytes.
	for i := l - 1; i >= 0; i-- {
		if err := bw.WriteBits(tx|(x>>uint(6*i))&maskx, 8); err != nil {
			return errors.WithStack(err)
		}
	}
	return nil
}

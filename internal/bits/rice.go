package bits

import (
	"sync"

	"github.com/pkg/errors"
)

// Rice decoding table parameters.
const (
	// RiceTableBits is the number of lookahead bits used to index the Rice
	// decoding tables.
	RiceTableBits = 13
	// RiceChunk is the number of table lookups performed per accumulator
	// refill; RiceChunk*RiceTableBits must not exceed 56.
	RiceChunk = 4
	// MaxRiceParam is the largest supported Rice parameter.
	MaxRiceParam = 30

	riceTableMask = 1<<RiceTableBits - 1
)

// Rice decoding tables, indexed by Rice parameter and the next RiceTableBits
// bits of the stream. A consumed length of 0 marks codes which do not fit in
// the lookahead window.
var (
	riceOnce     sync.Once
	riceConsumed [MaxRiceParam + 1][1 << RiceTableBits]uint8
	riceValues   [MaxRiceParam + 1][1 << RiceTableBits]int32
)

// initRice populates the Rice decoding tables.
func initRice() {
	riceOnce.Do(func() {
		for param := uint(0); param <= MaxRiceParam; param++ {
			consumed := &riceConsumed[param]
			values := &riceValues[param]
			for i := uint32(0); ; i++ {
				n := uint(i>>param) + 1 + param
				if n > RiceTableBits {
					break
				}
				code := 1<<param | i&(1<<param-1)
				shift := RiceTableBits - n
				for j := uint32(0); j < 1<<shift; j++ {
					consumed[code<<shift|j] = uint8(n)
					values[code<<shift|j] = int32(i>>1) ^ -int32(i&1)
				}
			}
		}
	})
}

// ReadRice decodes len(dst) Rice coded signed integers with the given Rice
// parameter into dst.
//
// Each value is stored as a unary coded quotient q followed by a param-bit
// remainder r, which together form the ZigZag encoded value q<<param | r.
// Decoded values are limited to the range of a signed 53-bit integer.
//
// ref: https://www.xiph.org/flac/format.html#partitioned_rice
func (br *Reader) ReadRice(param uint, dst []int64) error {
	if param > MaxRiceParam {
		return errors.Wrapf(ErrInvalidArgument, "bits.Reader.ReadRice: Rice parameter %d out of range", param)
	}
	initRice()
	consumed := &riceConsumed[param]
	values := &riceValues[param]
	limit := uint64(1) << (53 - param)
	i, end := 0, len(dst)
	for {
	fast:
		for i+RiceChunk <= end {
			if br.nbits < RiceChunk*RiceTableBits {
				// Only take whole bytes already in the read buffer; refills are left
				// to the slow path.
				if br.idx > br.n-8 {
					break
				}
				for br.nbits <= 56 {
					br.acc = br.acc<<8 | uint64(br.buf[br.idx])
					br.idx++
					br.nbits += 8
				}
			}
			for k := 0; k < RiceChunk; k++ {
				bits := br.acc >> (br.nbits - RiceTableBits) & riceTableMask
				n := uint(consumed[bits])
				if n == 0 {
					break fast
				}
				br.nbits -= n
				dst[i] = int64(values[bits])
				i++
			}
		}
		if i >= end {
			return nil
		}
		// Decode one value a bit at a time.
		q, err := br.readUnary(limit)
		if err != nil {
			return err
		}
		r, err := br.Read(param)
		if err != nil {
			return err
		}
		dst[i] = DecodeZigZag(q<<param | r)
		i++
	}
}

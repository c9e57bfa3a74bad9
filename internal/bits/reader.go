// Package bits implements bit level access to FLAC bitstreams: an MSB-first
// bit reader which tracks the CRC-8 and CRC-16 of consumed bytes, Rice
// decoding, and helpers for writing the same encodings.
package bits

import (
	"io"

	"github.com/pkg/errors"
)

// bufSize is the size in bytes of the read buffer of a Reader.
const bufSize = 4096

// A Reader reads bits, MSB first, from an underlying io.Reader. Bytes are read
// into an internal buffer and moved from there into a 64-bit accumulator as
// bits are requested.
//
// A Reader keeps a running CRC-8 and CRC-16 of every byte consumed since the
// most recent call to ResetCRC.
type Reader struct {
	// Underlying reader.
	r io.Reader
	// Read buffer; buf[idx:n] has not yet been moved into the accumulator.
	buf []byte
	n   int
	idx int
	// Stream offset of buf[0].
	start int64
	// Bit accumulator; only the low nbits bits are valid.
	acc   uint64
	nbits uint
	// Running checksums of buf[crcStart:] up to the consumed position.
	crc8     uint8
	crc16    uint16
	crcStart int
}

// NewReader returns a new bit reader for r. The position of the reader is
// relative to the current offset of r, which is assumed to be 0 for the
// purposes of Pos and SeekTo.
func NewReader(r io.Reader) *Reader {
	initCRC()
	return &Reader{r: r, buf: make([]byte, bufSize)}
}

// Pos returns the offset in bytes of the next unread byte; a partially read
// byte counts as unread.
func (br *Reader) Pos() int64 {
	return br.start + int64(br.idx) - int64((br.nbits+7)/8)
}

// BitPos returns the number of bits already consumed from the current byte, in
// the range [0, 7].
func (br *Reader) BitPos() int {
	return int(-br.nbits & 7)
}

// Aligned reports whether the reader is positioned at a byte boundary.
func (br *Reader) Aligned() bool {
	return br.nbits%8 == 0
}

// Read reads and returns the next n bits, at most 64, as an unsigned integer.
func (br *Reader) Read(n uint) (uint64, error) {
	switch {
	case n == 0:
		return 0, nil
	case n > 64:
		return 0, errors.Wrapf(ErrInvalidArgument, "bits.Reader.Read: bit count %d out of range", n)
	case n > 32:
		hi, err := br.Read(n - 32)
		if err != nil {
			return 0, err
		}
		lo, err := br.Read(32)
		if err != nil {
			return 0, err
		}
		return hi<<32 | lo, nil
	}
	if br.nbits < n {
		if err := br.fill(n); err != nil {
			if err == io.EOF {
				return 0, errors.Wrapf(ErrEndOfStream, "bits.Reader.Read: reading %d bits", n)
			}
			return 0, err
		}
	}
	br.nbits -= n
	return br.acc >> br.nbits & (1<<n - 1), nil
}

// ReadSigned reads the next n bits, at most 64, as a two's complement signed
// integer.
func (br *Reader) ReadSigned(n uint) (int64, error) {
	x, err := br.Read(n)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	return IntN(x, n), nil
}

// ReadByte reads the next byte. The reader must be at a byte boundary. io.EOF
// is returned if the stream ends before the byte, which makes ReadByte suitable
// to detect a clean end of stream.
func (br *Reader) ReadByte() (byte, error) {
	if !br.Aligned() {
		return 0, errors.Wrap(ErrAlignment, "bits.Reader.ReadByte")
	}
	if br.nbits == 0 {
		if err := br.fill(8); err != nil {
			return 0, err
		}
	}
	br.nbits -= 8
	return byte(br.acc >> br.nbits), nil
}

// ReadAligned reads exactly len(p) bytes into p. The reader must be at a byte
// boundary.
func (br *Reader) ReadAligned(p []byte) error {
	if !br.Aligned() {
		return errors.Wrap(ErrAlignment, "bits.Reader.ReadAligned")
	}
	i := 0
	// Drain the accumulator.
	for ; i < len(p) && br.nbits > 0; i++ {
		br.nbits -= 8
		p[i] = byte(br.acc >> br.nbits)
	}
	for i < len(p) {
		if br.idx >= br.n {
			if err := br.refill(); err != nil {
				if err == io.EOF {
					return errors.Wrapf(ErrEndOfStream, "bits.Reader.ReadAligned: read %d of %d bytes", i, len(p))
				}
				return err
			}
		}
		m := copy(p[i:], br.buf[br.idx:br.n])
		br.idx += m
		i += m
	}
	return nil
}

// fill tops up the accumulator with whole bytes from the read buffer, reading
// from the underlying reader only while fewer than need bits are available.
// Any refill happens while every accumulated bit is about to be consumed, which
// keeps the CRC accounting of refill exact.
func (br *Reader) fill(need uint) error {
	for {
		for br.nbits <= 56 && br.idx < br.n {
			br.acc = br.acc<<8 | uint64(br.buf[br.idx])
			br.idx++
			br.nbits += 8
		}
		if br.nbits >= need {
			return nil
		}
		if err := br.refill(); err != nil {
			return err
		}
	}
}

// refill replaces the exhausted read buffer with the next chunk of the
// underlying reader. It returns io.EOF at the end of the underlying stream.
func (br *Reader) refill() error {
	br.updateCRC(0)
	br.start += int64(br.n)
	br.n, br.idx, br.crcStart = 0, 0, 0
	for {
		n, err := br.r.Read(br.buf)
		if n > 0 {
			br.n = n
			return nil
		}
		if err == io.EOF {
			return io.EOF
		}
		if err != nil {
			return errors.WithStack(err)
		}
	}
}

// --- [ CRC ] -----------------------------------------------------------------

// ResetCRC marks the current byte boundary as the start of the CRC-8 and CRC-16
// computations.
func (br *Reader) ResetCRC() error {
	if !br.Aligned() {
		return errors.Wrap(ErrAlignment, "bits.Reader.ResetCRC")
	}
	br.crcStart = br.idx - int(br.nbits/8)
	br.crc8, br.crc16 = 0, 0
	return nil
}

// CRC8 returns the CRC-8 of the bytes consumed since the last call to ResetCRC.
func (br *Reader) CRC8() (uint8, error) {
	if !br.Aligned() {
		return 0, errors.Wrap(ErrAlignment, "bits.Reader.CRC8")
	}
	br.updateCRC(int(br.nbits / 8))
	return br.crc8, nil
}

// CRC16 returns the CRC-16 of the bytes consumed since the last call to
// ResetCRC.
func (br *Reader) CRC16() (uint16, error) {
	if !br.Aligned() {
		return 0, errors.Wrap(ErrAlignment, "bits.Reader.CRC16")
	}
	br.updateCRC(int(br.nbits / 8))
	return br.crc16, nil
}

// updateCRC adds buf[crcStart:idx-unused] to the running checksums.
func (br *Reader) updateCRC(unused int) {
	end := br.idx - unused
	for _, b := range br.buf[br.crcStart:end] {
		br.crc8 = crc8Table[br.crc8^b]
		br.crc16 = crc16Table[byte(br.crc16>>8)^b] ^ br.crc16<<8
	}
	br.crcStart = end
}

// --- [ Random access ] -------------------------------------------------------

// SeekTo moves the reader to the given byte offset of the underlying stream,
// discarding all buffered data and resetting the checksums. The underlying
// reader must implement io.Seeker.
func (br *Reader) SeekTo(pos int64) error {
	s, ok := br.r.(io.Seeker)
	if !ok {
		return errors.Wrap(ErrUnsupported, "bits.Reader.SeekTo: source is not seekable")
	}
	if pos < 0 {
		return errors.Wrapf(ErrInvalidArgument, "bits.Reader.SeekTo: negative offset %d", pos)
	}
	if _, err := s.Seek(pos, io.SeekStart); err != nil {
		return errors.WithStack(err)
	}
	br.start = pos
	br.n, br.idx = 0, 0
	br.acc, br.nbits = 0, 0
	br.crcStart, br.crc8, br.crc16 = 0, 0, 0
	return nil
}

// sizer is implemented by sources which know their total length, such as
// *bytes.Reader.
type sizer interface {
	Size() int64
}

// Len returns the total length in bytes of the underlying stream. The source
// must either provide a Size method or implement io.Seeker.
func (br *Reader) Len() (int64, error) {
	switch r := br.r.(type) {
	case sizer:
		if n := r.Size(); n >= 0 {
			return n, nil
		}
	case io.Seeker:
		cur, err := r.Seek(0, io.SeekCurrent)
		if err != nil {
			return 0, errors.WithStack(err)
		}
		end, err := r.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, errors.WithStack(err)
		}
		if _, err := r.Seek(cur, io.SeekStart); err != nil {
			return 0, errors.WithStack(err)
		}
		return end, nil
	}
	return 0, errors.Wrap(ErrUnsupported, "bits.Reader.Len: source length unknown")
}

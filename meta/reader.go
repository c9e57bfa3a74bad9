package meta

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/seekflac/flac/internal/bits"
)

// A body is a cursor over the payload of a metadata block.
type body struct {
	// Name of the parse function, for error messages.
	fn   string
	data []byte
}

// bytes returns the next n bytes of the payload. The returned slice aliases the
// payload.
func (b *body) bytes(n uint64) ([]byte, error) {
	if n > uint64(len(b.data)) {
		return nil, errors.Wrapf(bits.ErrDataFormat, "%s: field of %d bytes exceeds the %d remaining bytes", b.fn, n, len(b.data))
	}
	p := b.data[:n]
	b.data = b.data[n:]
	return p, nil
}

// uint32 returns the next 32-bit integer of the payload, in the given byte
// order.
func (b *body) uint32(order binary.ByteOrder) (uint32, error) {
	p, err := b.bytes(4)
	if err != nil {
		return 0, err
	}
	return order.Uint32(p), nil
}

// string returns a string prefixed by its 32-bit length in the given byte order.
func (b *body) string(order binary.ByteOrder) (string, error) {
	n, err := b.uint32(order)
	if err != nil {
		return "", err
	}
	p, err := b.bytes(uint64(n))
	if err != nil {
		return "", err
	}
	return string(p), nil
}

// uint8 returns the next byte of the payload.
func (b *body) uint8() (uint8, error) {
	p, err := b.bytes(1)
	if err != nil {
		return 0, err
	}
	return p[0], nil
}

// uint64 returns the next big-endian 64-bit integer of the payload.
func (b *body) uint64() (uint64, error) {
	p, err := b.bytes(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(p), nil
}

// zero skips n reserved bytes of the payload, which must be zero.
func (b *body) zero(n uint64) error {
	p, err := b.bytes(n)
	if err != nil {
		return err
	}
	for _, x := range p {
		if x != 0 {
			return errors.Wrapf(bits.ErrDataFormat, "%s: all reserved bits must be 0", b.fn)
		}
	}
	return nil
}

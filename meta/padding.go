package meta

import (
	"github.com/pkg/errors"
	"github.com/seekflac/flac/internal/bits"
)

// Padding is the body of a Padding metadata block, which only contains zero
// bytes.
//
// ref: https://www.xiph.org/flac/format.html#metadata_block_padding
type Padding struct {
	// Number of padding bytes.
	N int
}

// ParsePadding verifies that the body of a Padding metadata block only
// contains zero-padding.
func ParsePadding(data []byte) (*Padding, error) {
	for i, b := range data {
		if b != 0 {
			return nil, errors.Wrapf(bits.ErrDataFormat, "meta.ParsePadding: non-zero byte 0x%02X at offset %d", b, i)
		}
	}
	return &Padding{N: len(data)}, nil
}

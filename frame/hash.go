package frame

import (
	"io"

	"github.com/pkg/errors"
)

// Hash writes the audio samples samples[ch][offset:offset+n] of every channel
// to w, interleaved and in little-endian byte order using (bps+7)/8 bytes per
// sample. This is the form over which the MD5 checksum of StreamInfo is
// computed.
func Hash(w io.Writer, samples [][]int32, offset, n int, bps uint) error {
	size := int(bps+7) / 8
	buf := make([]byte, 0, n*len(samples)*size)
	for i := offset; i < offset+n; i++ {
		for _, channel := range samples {
			x := channel[i]
			for j := 0; j < size; j++ {
				buf = append(buf, byte(x>>(8*uint(j))))
			}
		}
	}
	if _, err := w.Write(buf); err != nil {
		return errors.WithStack(err)
	}
	return nil
}

package meta

import (
	"bytes"
	"fmt"

	"github.com/icza/bitio"
	"github.com/pkg/errors"
	"github.com/seekflac/flac/internal/bits"
)

// StreamInfoSize is the size in bytes of a StreamInfo metadata block body.
const StreamInfoSize = 34

// StreamInfo contains the basic properties of a FLAC audio stream, such as its
// sample rate and channel count. It is the only mandatory metadata block and
// must be present as the first metadata block of a FLAC stream.
//
// ref: https://www.xiph.org/flac/format.html#metadata_block_streaminfo
type StreamInfo struct {
	// Minimum block size (in samples) used in the stream; between 16 and 65535
	// samples.
	BlockSizeMin uint16
	// Maximum block size (in samples) used in the stream; between 16 and 65535
	// samples.
	BlockSizeMax uint16
	// Minimum frame size in bytes; a 0 value implies unknown.
	FrameSizeMin uint32
	// Maximum frame size in bytes; a 0 value implies unknown.
	FrameSizeMax uint32
	// Sample rate in Hz; between 1 and 655350 Hz.
	SampleRate uint32
	// Number of channels; between 1 and 8 channels.
	NChannels uint8
	// Sample size in bits-per-sample; between 4 and 32 bits.
	BitsPerSample uint8
	// Total number of inter-channel samples in the stream. One inter-channel
	// sample contains one sample for each channel. A 0 value implies unknown.
	NSamples uint64
	// MD5 checksum of the unencoded audio data; all zero if not computed.
	MD5sum [16]uint8
}

// ParseStreamInfo parses the body of a StreamInfo metadata block and validates
// it.
//
// StreamInfo format (pseudo code):
//
//	type METADATA_BLOCK_STREAMINFO struct {
//	   block_size_min  uint16
//	   block_size_max  uint16
//	   frame_size_min  uint24
//	   frame_size_max  uint24
//	   sample_rate     uint20
//	   channel_count   uint3 // channels-1.
//	   bits_per_sample uint5 // bits-1.
//	   sample_count    uint36
//	   md5sum          [16]byte
//	}
//
// ref: https://www.xiph.org/flac/format.html#metadata_block_streaminfo
func ParseStreamInfo(data []byte) (*StreamInfo, error) {
	if len(data) != StreamInfoSize {
		return nil, errors.Wrapf(bits.ErrDataFormat, "meta.ParseStreamInfo: invalid length; expected %d bytes, got %d", StreamInfoSize, len(data))
	}
	br := bitio.NewReader(bytes.NewReader(data))
	var fields [8]uint64
	for i, n := range [...]uint8{16, 16, 24, 24, 20, 3, 5, 36} {
		x, err := br.ReadBits(n)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		fields[i] = x
	}
	si := &StreamInfo{
		BlockSizeMin:  uint16(fields[0]),
		BlockSizeMax:  uint16(fields[1]),
		FrameSizeMin:  uint32(fields[2]),
		FrameSizeMax:  uint32(fields[3]),
		SampleRate:    uint32(fields[4]),
		NChannels:     uint8(fields[5]) + 1,
		BitsPerSample: uint8(fields[6]) + 1,
		NSamples:      fields[7],
	}
	copy(si.MD5sum[:], data[18:])
	if err := si.Validate(); err != nil {
		return nil, err
	}
	return si, nil
}

// Validate checks the invariants of the stream properties.
func (si *StreamInfo) Validate() error {
	fail := func(format string, args ...interface{}) error {
		return errors.Wrap(bits.ErrDataFormat, "meta.StreamInfo.Validate: "+fmt.Sprintf(format, args...))
	}
	switch {
	case si.BlockSizeMin < 16:
		return fail("minimum block size %d below 16", si.BlockSizeMin)
	case si.BlockSizeMax < si.BlockSizeMin:
		return fail("maximum block size %d below minimum block size %d", si.BlockSizeMax, si.BlockSizeMin)
	case si.FrameSizeMin != 0 && si.FrameSizeMax != 0 && si.FrameSizeMax < si.FrameSizeMin:
		return fail("maximum frame size %d below minimum frame size %d", si.FrameSizeMax, si.FrameSizeMin)
	case si.SampleRate == 0 || si.SampleRate > 655350:
		return fail("sample rate %d out of range [1, 655350]", si.SampleRate)
	case si.NChannels < 1 || si.NChannels > 8:
		return fail("channel count %d out of range [1, 8]", si.NChannels)
	case si.BitsPerSample < 4 || si.BitsPerSample > 32:
		return fail("sample size %d out of range [4, 32]", si.BitsPerSample)
	case si.NSamples>>36 != 0:
		return fail("sample count %d exceeds 36 bits", si.NSamples)
	}
	return nil
}

// A FrameProps holds the properties of a decoded frame which must agree with
// the StreamInfo of the stream. Zero SampleRate and BitsPerSample fields are
// deferred to the StreamInfo.
type FrameProps struct {
	// Number of samples per channel.
	BlockSize uint32
	// Sample rate in Hz, or 0.
	SampleRate uint32
	// Number of channels.
	NChannels int
	// Sample size in bits-per-sample, or 0.
	BitsPerSample uint8
	// Size of the frame in bytes.
	FrameSize int
}

// CheckFrame checks that the properties of a decoded frame agree with the
// stream properties. The block size is not checked against the minimum block
// size, since the last frame of a stream may be shorter.
func (si *StreamInfo) CheckFrame(f FrameProps) error {
	fail := func(format string, args ...interface{}) error {
		return errors.Wrap(bits.ErrDataFormat, "meta.StreamInfo.CheckFrame: "+fmt.Sprintf(format, args...))
	}
	switch {
	case f.NChannels != int(si.NChannels):
		return fail("channel count mismatch; expected %d, got %d", si.NChannels, f.NChannels)
	case f.SampleRate != 0 && f.SampleRate != si.SampleRate:
		return fail("sample rate mismatch; expected %d, got %d", si.SampleRate, f.SampleRate)
	case f.BitsPerSample != 0 && f.BitsPerSample != si.BitsPerSample:
		return fail("sample size mismatch; expected %d, got %d", si.BitsPerSample, f.BitsPerSample)
	case si.NSamples != 0 && uint64(f.BlockSize) > si.NSamples:
		return fail("block size %d exceeds sample count %d", f.BlockSize, si.NSamples)
	case f.BlockSize > uint32(si.BlockSizeMax):
		return fail("block size %d exceeds maximum %d", f.BlockSize, si.BlockSizeMax)
	case si.FrameSizeMin != 0 && f.FrameSize < int(si.FrameSizeMin):
		return fail("frame size %d below minimum %d", f.FrameSize, si.FrameSizeMin)
	case si.FrameSizeMax != 0 && f.FrameSize > int(si.FrameSizeMax):
		return fail("frame size %d exceeds maximum %d", f.FrameSize, si.FrameSizeMax)
	}
	return nil
}

// HasMD5 reports whether the MD5 checksum of the unencoded audio data is
// known.
func (si *StreamInfo) HasMD5() bool {
	return si.MD5sum != [16]uint8{}
}

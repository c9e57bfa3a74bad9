package frame

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/seekflac/flac/internal/bits"
)

// A Header contains the basic properties of an audio frame, such as its sample
// rate and channel count. To facilitate random access decoding each frame
// header starts with a sync-code. This allows the decoder to synchronize and
// locate the start of a frame header.
//
// ref: https://www.xiph.org/flac/format.html#frame_header
type Header struct {
	// Specifies if the block size is fixed or variable.
	HasFixedBlockSize bool
	// Block size in inter-channel samples, i.e. the number of audio samples in
	// each subframe; in the range [1, 65536].
	BlockSize uint32
	// Sample rate in Hz; a 0 value implies unknown, get sample rate from
	// StreamInfo.
	SampleRate uint32
	// Specifies the number of channels (subframes) that exist in the frame,
	// their order and possible inter-channel decorrelation.
	Channels Channels
	// Sample size in bits-per-sample; a 0 value implies unknown, get sample size
	// from StreamInfo.
	BitsPerSample uint8
	// Specifies the frame number if the block size is fixed, and the first
	// sample number in the frame otherwise. When using fixed block size, the
	// first sample number in the frame can be derived by multiplying the frame
	// number with the block size (in samples).
	Num uint64
	// Size of the frame in bytes, from the first byte of the sync code to the
	// last byte of the CRC-16; only set once the entire frame has been read.
	FrameSize int
}

// FrameIndex returns the frame number of a frame from a fixed block size
// stream. The boolean result is false for variable block size streams.
func (hdr *Header) FrameIndex() (uint32, bool) {
	if !hdr.HasFixedBlockSize {
		return 0, false
	}
	return uint32(hdr.Num), true
}

// SampleOffset returns the number of the first sample of a frame from a
// variable block size stream. The boolean result is false for fixed block size
// streams.
func (hdr *Header) SampleOffset() (uint64, bool) {
	if hdr.HasFixedBlockSize {
		return 0, false
	}
	return hdr.Num, true
}

// FirstSample returns the number of the first sample of the frame. Frames of
// fixed block size streams only record their frame number, which is scaled by
// the maximum block size of the stream.
func (hdr *Header) FirstSample(maxBlockSize uint32) uint64 {
	if off, ok := hdr.SampleOffset(); ok {
		return off
	}
	return hdr.Num * uint64(maxBlockSize)
}

// SyncCode is the 14-bit sync code of frame headers; 11111111111110.
const SyncCode = 0x3FFE

// Channels specifies the number of channels (subframes) that exist in a frame,
// their order and possible inter-channel decorrelation.
type Channels uint8

// Channel assignments. The following abbreviations are used:
//
//	C:   center (directly in front)
//	R:   right (standard stereo)
//	Sr:  side right (directly to the right)
//	Rs:  right surround (back right)
//	Cs:  center surround (rear center)
//	Ls:  left surround (back left)
//	Sl:  side left (directly to the left)
//	L:   left (standard stereo)
//	Lfe: low-frequency effect (placed according to room acoustics)
//
// The first 6 channel constants follow the SMPTE/ITU-R channel order:
//
//	L R C Lfe Ls Rs
const (
	ChannelsMono           Channels = iota // 1 channel: mono.
	ChannelsLR                             // 2 channels: left, right.
	ChannelsLRC                            // 3 channels: left, right, center.
	ChannelsLRLsRs                         // 4 channels: left, right, left surround, right surround.
	ChannelsLRCLsRs                        // 5 channels: left, right, center, left surround, right surround.
	ChannelsLRCLfeLsRs                     // 6 channels: left, right, center, LFE, left surround, right surround.
	ChannelsLRCLfeCsSlSr                   // 7 channels: left, right, center, LFE, center surround, side left, side right.
	ChannelsLRCLfeLsRsSlSr                 // 8 channels: left, right, center, LFE, left surround, right surround, side left, side right.
	ChannelsLeftSide                       // 2 channels: left, side; using inter-channel decorrelation.
	ChannelsSideRight                      // 2 channels: side, right; using inter-channel decorrelation.
	ChannelsMidSide                        // 2 channels: mid, side; using inter-channel decorrelation.
)

// nChannels specifies the number of channels used by each channel assignment.
var nChannels = [...]int{
	ChannelsMono:           1,
	ChannelsLR:             2,
	ChannelsLRC:            3,
	ChannelsLRLsRs:         4,
	ChannelsLRCLsRs:        5,
	ChannelsLRCLfeLsRs:     6,
	ChannelsLRCLfeCsSlSr:   7,
	ChannelsLRCLfeLsRsSlSr: 8,
	ChannelsLeftSide:       2,
	ChannelsSideRight:      2,
	ChannelsMidSide:        2,
}

// Count returns the number of channels (subframes) used by the provided
// channel assignment.
func (channels Channels) Count() int {
	if int(channels) >= len(nChannels) {
		return 0
	}
	return nChannels[channels]
}

// IsStereo reports whether the channel assignment uses inter-channel
// decorrelation.
func (channels Channels) IsStereo() bool {
	return channels >= ChannelsLeftSide && channels <= ChannelsMidSide
}

func (channels Channels) String() string {
	switch channels {
	case ChannelsLeftSide:
		return "left-side"
	case ChannelsSideRight:
		return "side-right"
	case ChannelsMidSide:
		return "mid-side"
	}
	if n := channels.Count(); n > 0 {
		return fmt.Sprintf("independent(%d)", n)
	}
	return fmt.Sprintf("reserved(%d)", uint8(channels))
}

// ParseHeader reads and parses the header of an audio frame. The reader must
// be positioned at a byte boundary, and the running CRCs of the reader are reset
// at the start of the header. io.EOF is returned if the stream ends before the
// first byte of the header.
//
// Frame header format (pseudo code):
//
//	type FRAME_HEADER struct {
//	   sync_code                uint14
//	   _                        uint1
//	   has_variable_block_size  bool
//	   block_size_spec          uint4
//	   sample_rate_spec         uint4
//	   channel_assignment       uint4
//	   sample_size_spec         uint3
//	   _                        uint1
//	   if has_variable_block_size {
//	      // "UTF-8" coded int, from 1 to 7 bytes.
//	      sample_num            uint36
//	   } else {
//	      // "UTF-8" coded int, from 1 to 6 bytes.
//	      frame_num             uint31
//	   }
//	   switch block_size_spec {
//	   case 0110:
//	      block_size            uint8  // block_size-1
//	   case 0111:
//	      block_size            uint16 // block_size-1
//	   }
//	   switch sample_rate_spec {
//	   case 1100:
//	      sample_rate           uint8  // sample rate in Hz.
//	   case 1101:
//	      sample_rate           uint16 // sample rate in Hz.
//	   case 1110:
//	      sample_rate           uint16 // sample rate in daHz (tens of Hz).
//	   }
//	   crc8                     uint8
//	}
//
// ref: https://www.xiph.org/flac/format.html#frame_header
func ParseHeader(br *bits.Reader) (*Header, error) {
	if err := br.ResetCRC(); err != nil {
		return nil, err
	}
	b0, err := br.ReadByte()
	if err != nil {
		// io.EOF signals a clean end of stream.
		return nil, err
	}
	rest, err := br.Read(24)
	if err != nil {
		return nil, err
	}

	// The first 32 bits are arranged according to the following masks.
	const (
		SyncCodeMask          = 0xFFFC0000 // 14 bits   shift right: 18
		Reserved1Mask         = 0x00020000 // 1 bit     shift right: 17
		BlockingStrategyMask  = 0x00010000 // 1 bit     shift right: 16
		BlockSizeSpecMask     = 0x0000F000 // 4 bits    shift right: 12
		SampleRateSpecMask    = 0x00000F00 // 4 bits    shift right: 8
		ChannelAssignmentMask = 0x000000F0 // 4 bits    shift right: 4
		SampleSizeSpecMask    = 0x0000000E // 3 bits    shift right: 1
		Reserved2Mask         = 0x00000001 // 1 bit     shift right: 0
	)
	x := uint32(b0)<<24 | uint32(rest)

	// Sync code.
	if sync := x & SyncCodeMask >> 18; sync != SyncCode {
		return nil, errors.Wrapf(bits.ErrDataFormat, "frame.ParseHeader: invalid sync code; expected '%014b', got '%014b'", SyncCode, sync)
	}

	// Reserved.
	if x&Reserved1Mask != 0 || x&Reserved2Mask != 0 {
		return nil, errors.Wrap(bits.ErrDataFormat, "frame.ParseHeader: all reserved bits must be 0")
	}

	// Blocking strategy:
	//    0: fixed-blocksize stream; frame header encodes the frame number.
	//    1: variable-blocksize stream; frame header encodes the sample number.
	hdr := &Header{HasFixedBlockSize: x&BlockingStrategyMask == 0}

	// Channel assignment.
	//    0000-0111: (number of independent channels)-1.
	//    1000: left/side stereo:  left, side (difference)
	//    1001: side/right stereo: side (difference), right
	//    1010: mid/side stereo:   mid (average), side (difference)
	//    1011-1111: reserved
	hdr.Channels = Channels(x & ChannelAssignmentMask >> 4)
	if hdr.Channels > ChannelsMidSide {
		return nil, errors.Wrapf(bits.ErrDataFormat, "frame.ParseHeader: reserved channel assignment bit pattern (%04b)", uint8(hdr.Channels))
	}

	// Sample size.
	//    000: get from STREAMINFO metadata block.
	//    001: 8 bits per sample.
	//    010: 12 bits per sample.
	//    011: reserved.
	//    100: 16 bits per sample.
	//    101: 20 bits per sample.
	//    110: 24 bits per sample.
	//    111: reserved.
	switch n := x & SampleSizeSpecMask >> 1; n {
	case 0:
		// 000: get from STREAMINFO metadata block.
	case 1:
		hdr.BitsPerSample = 8
	case 2:
		hdr.BitsPerSample = 12
	case 4:
		hdr.BitsPerSample = 16
	case 5:
		hdr.BitsPerSample = 20
	case 6:
		hdr.BitsPerSample = 24
	default:
		// 011: reserved.
		// 111: reserved.
		return nil, errors.Wrapf(bits.ErrDataFormat, "frame.ParseHeader: reserved sample size bit pattern (%03b)", n)
	}

	// "UTF-8" coded frame number or sample number.
	num, err := decodeUTF8Int(br)
	if err != nil {
		return nil, err
	}
	if hdr.HasFixedBlockSize && num>>31 != 0 {
		return nil, errors.Wrapf(bits.ErrDataFormat, "frame.ParseHeader: frame number %d exceeds 31 bits", num)
	}
	hdr.Num = num

	// Block size.
	//    0000: reserved.
	//    0001: 192 samples.
	//    0010-0101: 576 * (2^(n-2)) samples, i.e. 576/1152/2304/4608.
	//    0110: get 8 bit (blocksize-1) from end of header.
	//    0111: get 16 bit (blocksize-1) from end of header.
	//    1000-1111: 256 * (2^(n-8)) samples, i.e. 256/512/1024/2048/4096/8192/
	//               16384/32768.
	switch n := x & BlockSizeSpecMask >> 12; {
	case n == 0:
		return nil, errors.Wrap(bits.ErrDataFormat, "frame.ParseHeader: reserved block size bit pattern (0000)")
	case n == 1:
		hdr.BlockSize = 192
	case n >= 2 && n <= 5:
		hdr.BlockSize = 576 << (n - 2)
	case n == 6, n == 7:
		nbits := uint(8)
		if n == 7 {
			nbits = 16
		}
		v, err := br.Read(nbits)
		if err != nil {
			return nil, err
		}
		hdr.BlockSize = uint32(v) + 1
	default:
		hdr.BlockSize = 256 << (n - 8)
	}

	// Sample rate.
	//    0000: get from STREAMINFO metadata block.
	//    0001: 88.2 kHz.
	//    0010: 176.4 kHz.
	//    0011: 192 kHz.
	//    0100: 8 kHz.
	//    0101: 16 kHz.
	//    0110: 22.05 kHz.
	//    0111: 24 kHz.
	//    1000: 32 kHz.
	//    1001: 44.1 kHz.
	//    1010: 48 kHz.
	//    1011: 96 kHz.
	//    1100: get 8 bit sample rate (in Hz) from end of header.
	//    1101: get 16 bit sample rate (in Hz) from end of header.
	//    1110: get 16 bit sample rate (in tens of Hz) from end of header.
	//    1111: invalid, to prevent sync-fooling string of 1s.
	switch n := x & SampleRateSpecMask >> 8; n {
	case 0:
		// 0000: get from STREAMINFO metadata block.
	case 12, 13, 14:
		nbits := uint(16)
		if n == 12 {
			nbits = 8
		}
		v, err := br.Read(nbits)
		if err != nil {
			return nil, err
		}
		hdr.SampleRate = uint32(v)
		if n == 14 {
			hdr.SampleRate *= 10
		}
	case 15:
		return nil, errors.Wrap(bits.ErrDataFormat, "frame.ParseHeader: invalid sample rate bit pattern (1111)")
	default:
		hdr.SampleRate = sampleRates[n]
	}

	// CRC-8 of everything before the crc, including the sync code.
	want, err := br.CRC8()
	if err != nil {
		return nil, err
	}
	got, err := br.Read(8)
	if err != nil {
		return nil, err
	}
	if uint8(got) != want {
		return nil, errors.Wrapf(bits.ErrDataFormat, "frame.ParseHeader: CRC-8 checksum mismatch; expected 0x%02X, got 0x%02X", want, got)
	}
	return hdr, nil
}

// sampleRates maps from the sample rate bit patterns 0001-1011 to sample rates
// in Hz.
var sampleRates = [...]uint32{
	1:  88200,
	2:  176400,
	3:  192000,
	4:  8000,
	5:  16000,
	6:  22050,
	7:  24000,
	8:  32000,
	9:  44100,
	10: 48000,
	11: 96000,
}

// decodeUTF8Int decodes a "UTF-8" coded number of at most 36 bits, as used for
// frame and sample numbers.
//
// The number of leading 1 bits of the first byte gives the total number of
// bytes of the sequence; each continuation byte has the form 10xxxxxx.
//
//	0xxxxxxx                                                        7 bits
//	110xxxxx 10xxxxxx                                              11 bits
//	1110xxxx 10xxxxxx 10xxxxxx                                     16 bits
//	11110xxx 10xxxxxx 10xxxxxx 10xxxxxx                            21 bits
//	111110xx 10xxxxxx 10xxxxxx 10xxxxxx 10xxxxxx                   26 bits
//	1111110x 10xxxxxx 10xxxxxx 10xxxxxx 10xxxxxx 10xxxxxx          31 bits
//	11111110 10xxxxxx 10xxxxxx 10xxxxxx 10xxxxxx 10xxxxxx 10xxxxxx 36 bits
//
// ref: https://www.xiph.org/flac/format.html#frame_header
func decodeUTF8Int(br *bits.Reader) (uint64, error) {
	c0, err := br.Read(8)
	if err != nil {
		return 0, err
	}
	// Count leading 1 bits.
	n := 0
	for ; n < 8 && c0&(0x80>>uint(n)) != 0; n++ {
	}
	switch n {
	case 0:
		return c0, nil
	case 1, 8:
		return 0, errors.Wrapf(bits.ErrDataFormat, "frame.decodeUTF8Int: invalid leading byte 0x%02X", c0)
	}
	x := c0 & (0x7F >> uint(n))
	for i := 1; i < n; i++ {
		c, err := br.Read(8)
		if err != nil {
			return 0, err
		}
		if c&0xC0 != 0x80 {
			return 0, errors.Wrapf(bits.ErrDataFormat, "frame.decodeUTF8Int: expected continuation byte, got 0x%02X", c)
		}
		x = x<<6 | c&0x3F
	}
	return x, nil
}

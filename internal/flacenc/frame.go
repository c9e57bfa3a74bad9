package flacenc

import (
	"bytes"
	"io"

	"github.com/icza/bitio"
	"github.com/mewkiz/pkg/errutil"
	"github.com/seekflac/flac/frame"
	"github.com/seekflac/flac/internal/bits"
)

// A Frame is an audio frame to encode.
type Frame struct {
	// Frame header; FrameSize is ignored.
	frame.Header
	// One subframe per channel, after inter-channel decorrelation.
	Subframes []*Subframe
}

// WriteFrame encodes the frame to w and returns the number of bytes written.
// Subframes are coded at the sample size of the frame header, or at bps if the
// header defers the sample size to StreamInfo.
func WriteFrame(w io.Writer, f *Frame, bps uint) (int, error) {
	if len(f.Subframes) != f.Channels.Count() {
		return 0, errutil.Newf("subframe count mismatch; expected %d, got %d", f.Channels.Count(), len(f.Subframes))
	}
	buf := new(bytes.Buffer)
	bw := bitio.NewWriter(buf)
	if err := encodeFrameHeader(bw, &f.Header); err != nil {
		return 0, errutil.Err(err)
	}
	if _, err := bw.Align(); err != nil {
		return 0, errutil.Err(err)
	}
	// CRC-8 (polynomial = x^8 + x^2 + x^1 + x^0, initialized with 0) of
	// everything before the crc, including the sync code.
	buf.WriteByte(bits.Checksum8(buf.Bytes()))

	if f.BitsPerSample != 0 {
		bps = uint(f.BitsPerSample)
	}
	for i, subframe := range f.Subframes {
		depth := bps
		if isSide(f.Channels, i) {
			depth++
		}
		if err := encodeSubframe(bw, subframe, depth, int(f.BlockSize)); err != nil {
			return 0, errutil.Err(err)
		}
	}
	// Zero padding to byte alignment.
	if _, err := bw.Align(); err != nil {
		return 0, errutil.Err(err)
	}
	// CRC-16 (polynomial = x^16 + x^15 + x^2 + x^0, initialized with 0) of
	// everything before the crc, including the sync code.
	crc := bits.Checksum16(buf.Bytes())
	buf.WriteByte(byte(crc >> 8))
	buf.WriteByte(byte(crc))
	n, err := w.Write(buf.Bytes())
	if err != nil {
		return n, errutil.Err(err)
	}
	return n, nil
}

// isSide reports whether the i:th subframe of a frame with the given channel
// assignment is a side channel, which is coded using one extra bit.
func isSide(channels frame.Channels, i int) bool {
	switch channels {
	case frame.ChannelsLeftSide, frame.ChannelsMidSide:
		return i == 1
	case frame.ChannelsSideRight:
		return i == 0
	}
	return false
}

// encodeFrameHeader encodes the given frame header, writing to bw.
func encodeFrameHeader(bw *bitio.Writer, hdr *frame.Header) error {
	//  Sync code: 11111111111110
	if err := bw.WriteBits(frame.SyncCode, 14); err != nil {
		return errutil.Err(err)
	}

	// Reserved: 0
	if err := bw.WriteBits(0x0, 1); err != nil {
		return errutil.Err(err)
	}

	// Blocking strategy:
	//    0 : fixed-blocksize stream; frame header encodes the frame number
	//    1 : variable-blocksize stream; frame header encodes the sample number
	if err := bw.WriteBool(!hdr.HasFixedBlockSize); err != nil {
		return errutil.Err(err)
	}

	// Block size in inter-channel samples:
	//    0000 : reserved
	//    0001 : 192 samples
	//    0010-0101 : 576 * (2^(n-2)) samples, i.e. 576/1152/2304/4608
	//    0110 : get 8 bit (blocksize-1) from end of header
	//    0111 : get 16 bit (blocksize-1) from end of header
	//    1000-1111 : 256 * (2^(n-8)) samples, i.e. 256/512/1024/2048/4096/8192/16384/32768
	var (
		x uint64
		// number of bits used to store block size after the frame header.
		nblockSizeSuffixBits uint8
	)
	switch hdr.BlockSize {
	case 192:
		x = 0x1
	case 576:
		x = 0x2
	case 1152:
		x = 0x3
	case 2304:
		x = 0x4
	case 4608:
		x = 0x5
	case 256, 512, 1024, 2048, 4096, 8192, 16384, 32768:
		x = 0x8
		for n := hdr.BlockSize; n > 256; n >>= 1 {
			x++
		}
	default:
		switch {
		case hdr.BlockSize < 1 || hdr.BlockSize > frame.MaxBlockSize:
			return errutil.Newf("invalid block size %d", hdr.BlockSize)
		case hdr.BlockSize <= 256:
			x = 0x6
			nblockSizeSuffixBits = 8
		default:
			x = 0x7
			nblockSizeSuffixBits = 16
		}
	}
	if err := bw.WriteBits(x, 4); err != nil {
		return errutil.Err(err)
	}

	// Sample rate:
	//    0000 : get from STREAMINFO metadata block
	//    0001-1011 : 88.2/176.4/192/8/16/22.05/24/32/44.1/48/96 kHz
	//    1100 : get 8 bit sample rate (in Hz) from end of header
	//    1101 : get 16 bit sample rate (in Hz) from end of header
	//    1110 : get 16 bit sample rate (in tens of Hz) from end of header
	//    1111 : invalid, to prevent sync-fooling string of 1s
	var (
		// bits used to store sample rate after the frame header.
		sampleRateSuffixBits uint64
		// number of bits used to store sample rate after the frame header.
		nsampleRateSuffixBits uint8
	)
	x = 0
	for code, rate := range sampleRates {
		if rate == hdr.SampleRate {
			x = uint64(code)
		}
	}
	switch {
	case hdr.SampleRate == 0 || x != 0:
	case hdr.SampleRate <= 255:
		x = 0xC
		sampleRateSuffixBits = uint64(hdr.SampleRate)
		nsampleRateSuffixBits = 8
	case hdr.SampleRate <= 65535:
		x = 0xD
		sampleRateSuffixBits = uint64(hdr.SampleRate)
		nsampleRateSuffixBits = 16
	case hdr.SampleRate <= 655350 && hdr.SampleRate%10 == 0:
		x = 0xE
		sampleRateSuffixBits = uint64(hdr.SampleRate / 10)
		nsampleRateSuffixBits = 16
	default:
		return errutil.Newf("unable to encode sample rate %v", hdr.SampleRate)
	}
	if err := bw.WriteBits(x, 4); err != nil {
		return errutil.Err(err)
	}

	// Channel assignment.
	//    0000-0111 : (number of independent channels)-1.
	//    1000 : left/side stereo
	//    1001 : side/right stereo
	//    1010 : mid/side stereo
	//    1011-1111 : reserved
	if hdr.Channels > frame.ChannelsMidSide {
		return errutil.Newf("invalid channel assignment %v", hdr.Channels)
	}
	if err := bw.WriteBits(uint64(hdr.Channels), 4); err != nil {
		return errutil.Err(err)
	}

	// Sample size in bits:
	//    000 : get from STREAMINFO metadata block
	//    001 : 8 bits per sample
	//    010 : 12 bits per sample
	//    011 : reserved
	//    100 : 16 bits per sample
	//    101 : 20 bits per sample
	//    110 : 24 bits per sample
	//    111 : reserved
	code, ok := SampleSizeCode(hdr.BitsPerSample)
	if !ok {
		return errutil.Newf("unable to encode sample size %v", hdr.BitsPerSample)
	}
	if err := bw.WriteBits(code, 3); err != nil {
		return errutil.Err(err)
	}

	// Reserved: 0
	if err := bw.WriteBits(0x0, 1); err != nil {
		return errutil.Err(err)
	}

	//    if (variable blocksize)
	//       <8-56>:"UTF-8" coded sample number (decoded number is 36 bits)
	//    else
	//       <8-48>:"UTF-8" coded frame number (decoded number is 31 bits)
	if err := bits.WriteUTF8(bw, hdr.Num); err != nil {
		return errutil.Err(err)
	}

	// Write block size after the frame header (used for uncommon block sizes).
	if nblockSizeSuffixBits > 0 {
		if err := bw.WriteBits(uint64(hdr.BlockSize-1), nblockSizeSuffixBits); err != nil {
			return errutil.Err(err)
		}
	}

	// Write sample rate after the frame header (used for uncommon sample rates).
	if nsampleRateSuffixBits > 0 {
		if err := bw.WriteBits(sampleRateSuffixBits, nsampleRateSuffixBits); err != nil {
			return errutil.Err(err)
		}
	}
	return nil
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

// SampleSizeCode returns the frame header bit pattern of the given sample size
// in bits-per-sample. The boolean result is false if the sample size cannot be
// stored in a frame header.
func SampleSizeCode(bps uint8) (uint64, bool) {
	switch bps {
	case 0:
		return 0x0, true
	case 8:
		return 0x1, true
	case 12:
		return 0x2, true
	case 16:
		return 0x4, true
	case 20:
		return 0x5, true
	case 24:
		return 0x6, true
	}
	return 0, false
}

// Package frame implements access to FLAC audio frames.
//
// A brief introduction of the FLAC audio frame format [1] follows. FLAC
// encoders divide the audio stream into blocks through a process called
// blocking [2]. A block contains the unencoded audio samples from all channels
// during a short period of time. Each audio block is divided into subblocks,
// one per channel.
//
// There is often a correlation between the left and right channel of stereo
// audio. Using inter-channel decorrelation [3] it is possible to store only one
// of the channels and the difference between the channels, or store the average
// of the channels and their difference. An encoder decorrelates audio samples
// as follows:
//
//	mid = (left + right)/2 // average of the channels
//	side = left - right    // difference between the channels
//
// The blocks are encoded using a variety of prediction methods [4][5] and
// stored in frames. Blocks and subblocks contain unencoded audio samples while
// frames and subframes contain encoded audio samples. A FLAC stream contains
// one or more audio frames.
//
//	[1]: https://www.xiph.org/flac/format.html#frame
//	[2]: https://www.xiph.org/flac/format.html#blocking
//	[3]: https://www.xiph.org/flac/format.html#interchannel
//	[4]: https://www.xiph.org/flac/format.html#prediction
//	[5]: https://godoc.org/github.com/seekflac/flac/frame#Pred
package frame

import (
	"io"

	"github.com/pkg/errors"
	"github.com/seekflac/flac/internal/bits"
)

// MaxBlockSize is the largest number of samples per channel of a frame.
const MaxBlockSize = 65536

// ErrConcurrentCall is returned when ReadFrame is called on a Decoder which is
// already decoding a frame.
var ErrConcurrentCall = errors.New("frame: concurrent call of Decoder.ReadFrame")

// A Decoder decodes the audio frames of a FLAC stream. Its scratch buffers are
// allocated once and reused for every frame.
type Decoder struct {
	// Bit reader positioned at the start of the next frame.
	br *bits.Reader
	// Sample depth in bits-per-sample of the stream, in the range [4, 32].
	bps uint
	// Decoded subframes; two are needed for stereo decorrelation.
	temp0, temp1 []int64
	// Set while a frame is being decoded.
	busy bool
}

// NewDecoder returns a new frame decoder reading from br, for a stream with the
// given sample depth in bits-per-sample.
func NewDecoder(br *bits.Reader, bps uint8) *Decoder {
	return &Decoder{
		br:    br,
		bps:   uint(bps),
		temp0: make([]int64, MaxBlockSize),
		temp1: make([]int64, MaxBlockSize),
	}
}

// ReadFrame reads and decodes the next frame, storing the audio samples of each
// channel in samples[ch][offset:offset+BlockSize], and returns the frame
// header. io.EOF is returned if the stream ends cleanly before the frame.
//
// Frame format (pseudo code):
//
//	type FRAME struct {
//	   header    FRAME_HEADER
//	   subframes [nchannels]SUBFRAME
//	   _         uint0-7 // zero padding to byte alignment.
//	   crc16     uint16  // CRC-16 of everything before the crc, including the sync code.
//	}
//
// ref: https://www.xiph.org/flac/format.html#frame
func (dec *Decoder) ReadFrame(samples [][]int32, offset int) (*Header, error) {
	if dec.busy {
		return nil, errors.WithStack(ErrConcurrentCall)
	}
	dec.busy = true
	defer func() { dec.busy = false }()
	start := dec.br.Pos()
	hdr, err := ParseHeader(dec.br)
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, err
	}
	if hdr.BitsPerSample != 0 && uint(hdr.BitsPerSample) != dec.bps {
		return nil, errors.Wrapf(bits.ErrDataFormat, "frame.Decoder.ReadFrame: sample depth mismatch; expected %d, got %d", dec.bps, hdr.BitsPerSample)
	}

	// Check output buffers.
	n := int(hdr.BlockSize)
	nchannels := hdr.Channels.Count()
	if len(samples) < nchannels {
		return nil, errors.Wrapf(bits.ErrInvalidArgument, "frame.Decoder.ReadFrame: %d output channels for a frame of %d channels", len(samples), nchannels)
	}
	for ch := 0; ch < nchannels; ch++ {
		if offset < 0 || offset+n > len(samples[ch]) {
			return nil, errors.Wrapf(bits.ErrInvalidArgument, "frame.Decoder.ReadFrame: output channel %d too small for %d samples at offset %d", ch, n, offset)
		}
	}

	if err := dec.decodeSubframes(hdr.Channels, n, samples, offset); err != nil {
		return nil, err
	}

	// Zero padding to byte alignment.
	pad, err := dec.br.Read(uint(8-dec.br.BitPos()) % 8)
	if err != nil {
		return nil, err
	}
	if pad != 0 {
		return nil, errors.Wrap(bits.ErrDataFormat, "frame.Decoder.ReadFrame: invalid padding bits")
	}

	// CRC-16 of everything before the crc, including the sync code.
	want, err := dec.br.CRC16()
	if err != nil {
		return nil, err
	}
	got, err := dec.br.Read(16)
	if err != nil {
		return nil, err
	}
	if uint16(got) != want {
		return nil, errors.Wrapf(bits.ErrDataFormat, "frame.Decoder.ReadFrame: CRC-16 checksum mismatch; expected 0x%04X, got 0x%04X", want, got)
	}
	hdr.FrameSize = int(dec.br.Pos() - start)
	return hdr, nil
}

// decodeSubframes decodes one subframe of n samples per channel and undoes any
// inter-channel decorrelation.
//
// ref: https://www.xiph.org/flac/format.html#interchannel
func (dec *Decoder) decodeSubframes(channels Channels, n int, samples [][]int32, offset int) error {
	bps := dec.bps
	temp0, temp1 := dec.temp0[:n], dec.temp1[:n]
	if !channels.IsStereo() {
		// Independently coded channels.
		for ch := 0; ch < channels.Count(); ch++ {
			if err := dec.decodeSubframe(bps, temp0); err != nil {
				return err
			}
			if err := copyChecked(samples[ch][offset:offset+n], temp0, bps); err != nil {
				return err
			}
		}
		return nil
	}

	// The side channel requires one extra bit.
	bps0, bps1 := bps, bps+1
	if channels == ChannelsSideRight {
		bps0, bps1 = bps+1, bps
	}
	if err := dec.decodeSubframe(bps0, temp0); err != nil {
		return err
	}
	if err := dec.decodeSubframe(bps1, temp1); err != nil {
		return err
	}
	switch channels {
	case ChannelsLeftSide:
		// 2 channels: left, side.
		//    right = left - side
		for i := range temp1 {
			temp1[i] = temp0[i] - temp1[i]
		}
	case ChannelsSideRight:
		// 2 channels: side, right.
		//    left = side + right
		for i := range temp0 {
			temp0[i] += temp1[i]
		}
	case ChannelsMidSide:
		// 2 channels: mid, side. The least significant bit of the sum of left and
		// right, lost when averaging, is the least significant bit of side.
		//    right = mid - side>>1
		//    left  = right + side
		for i := range temp0 {
			side := temp1[i]
			right := temp0[i] - side>>1
			temp1[i] = right
			temp0[i] = right + side
		}
	}
	if err := copyChecked(samples[0][offset:offset+n], temp0, bps); err != nil {
		return err
	}
	return copyChecked(samples[1][offset:offset+n], temp1, bps)
}

// copyChecked copies src to dst, checking that each sample fits in a signed
// integer of bps bits.
func copyChecked(dst []int32, src []int64, bps uint) error {
	for i, x := range src {
		if x>>(bps-1) != x>>bps {
			return errors.Wrapf(bits.ErrDataFormat, "frame: sample %d is not a signed %d-bit value", x, bps)
		}
		dst[i] = int32(x)
	}
	return nil
}

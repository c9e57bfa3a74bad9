// Package flacenc encodes audio samples into FLAC streams. It produces the
// streams used to exercise the decoder: every prediction method, residual
// coding and inter-channel decorrelation may be selected explicitly, and
// metadata blocks may be crafted with invalid contents.
package flacenc

import (
	"bytes"
	"crypto/md5"
	"io"

	"github.com/mewkiz/pkg/errutil"
	"github.com/seekflac/flac/frame"
	"github.com/seekflac/flac/meta"
)

// Options control the blocking and the metadata of an encoded stream.
type Options struct {
	// Block sizes of consecutive frames, repeated as needed; the last frame may
	// be shorter. A single block size gives a fixed block size stream unless
	// Variable is set.
	BlockSizes []int
	// Variable specifies that frame headers store sample numbers rather than
	// frame numbers.
	Variable bool
	// Inter-channel decorrelation of two channel streams: ChannelsLeftSide,
	// ChannelsSideRight or ChannelsMidSide. Channels are coded independently
	// otherwise.
	Decorrelation frame.Channels
	// SeekInterval specifies the distance in samples between seek points; no
	// seek table is stored if zero.
	SeekInterval uint64
	// Number of placeholder seek points appended to the seek table.
	Placeholders int
	// Metadata blocks stored after the seek table; only Type and Data are used.
	Blocks []*meta.Block
	// DeferHeader specifies that frame headers defer the sample rate and sample
	// size to StreamInfo.
	DeferHeader bool
}

// A Result describes an encoded stream.
type Result struct {
	// StreamInfo of the stream, including the MD5 checksum of the audio samples.
	Info meta.StreamInfo
	// Offset in bytes of the first frame.
	FramesStart int64
	// Offset relative to FramesStart, first sample number and block size of each
	// frame.
	Frames []meta.SeekPoint
	// Seek table stored in the stream, or nil.
	SeekTable *meta.SeekTable
}

// EncodeStream encodes the audio samples of each channel to w as a FLAC
// stream. The sample rate and sample size are taken from info; the remaining
// StreamInfo fields are computed, except for non-zero block size limits.
func EncodeStream(w io.Writer, info meta.StreamInfo, samples [][]int32, opts Options) (*Result, error) {
	if len(samples) < 1 || len(samples) > 8 {
		return nil, errutil.Newf("invalid channel count %d", len(samples))
	}
	if len(opts.BlockSizes) == 0 {
		return nil, errutil.Newf("no block sizes")
	}
	nsamples := len(samples[0])
	info.NChannels = uint8(len(samples))
	info.NSamples = uint64(nsamples)
	if info.BlockSizeMax == 0 {
		min, max := opts.BlockSizes[0], opts.BlockSizes[0]
		for _, n := range opts.BlockSizes {
			if n < min {
				min = n
			}
			if n > max {
				max = n
			}
		}
		if min < 16 {
			min = 16
		}
		info.BlockSizeMin, info.BlockSizeMax = uint16(min), uint16(max)
	}
	h := md5.New()
	if err := frame.Hash(h, samples, 0, nsamples, uint(info.BitsPerSample)); err != nil {
		return nil, errutil.Err(err)
	}
	copy(info.MD5sum[:], h.Sum(nil))

	// Encode frames.
	res := &Result{}
	frames := new(bytes.Buffer)
	for i, offset := 0, 0; offset < nsamples; i++ {
		n := opts.BlockSizes[i%len(opts.BlockSizes)]
		if offset+n > nsamples {
			n = nsamples - offset
		}
		f := &Frame{Header: frame.Header{
			HasFixedBlockSize: !opts.Variable,
			BlockSize:         uint32(n),
			SampleRate:        info.SampleRate,
			BitsPerSample:     info.BitsPerSample,
			Num:               uint64(i),
		}}
		if opts.Variable {
			f.Num = uint64(offset)
		}
		if _, ok := SampleSizeCode(info.BitsPerSample); !ok || opts.DeferHeader {
			f.BitsPerSample = 0
		}
		if opts.DeferHeader {
			f.SampleRate = 0
		}
		f.Channels, f.Subframes = decorrelate(samples, offset, n, uint(info.BitsPerSample), opts.Decorrelation)
		point := meta.SeekPoint{SampleNum: uint64(offset), Offset: uint64(frames.Len()), NSamples: uint16(n)}
		size, err := WriteFrame(frames, f, uint(info.BitsPerSample))
		if err != nil {
			return nil, errutil.Err(err)
		}
		if info.FrameSizeMin == 0 || uint32(size) < info.FrameSizeMin {
			info.FrameSizeMin = uint32(size)
		}
		if uint32(size) > info.FrameSizeMax {
			info.FrameSizeMax = uint32(size)
		}
		res.Frames = append(res.Frames, point)
		offset += n
	}
	res.Info = info

	// Encode metadata.
	head := new(bytes.Buffer)
	head.Write(Signature)
	type block struct {
		t    meta.Type
		body []byte
	}
	blocks := []block{{meta.TypeStreamInfo, StreamInfoBody(&info)}}
	if opts.SeekInterval > 0 {
		res.SeekTable = seekTable(res.Frames, opts.SeekInterval, opts.Placeholders)
		blocks = append(blocks, block{meta.TypeSeekTable, SeekTableBody(res.SeekTable)})
	}
	for _, b := range opts.Blocks {
		blocks = append(blocks, block{b.Type, b.Data})
	}
	for i, b := range blocks {
		if err := WriteBlock(head, b.t, i == len(blocks)-1, b.body); err != nil {
			return nil, errutil.Err(err)
		}
	}
	res.FramesStart = int64(head.Len())
	if _, err := io.Copy(w, io.MultiReader(head, frames)); err != nil {
		return nil, errutil.Err(err)
	}
	return res, nil
}

// decorrelate returns the channel assignment and the analyzed subframes of the
// block samples[:][offset:offset+n].
func decorrelate(samples [][]int32, offset, n int, bps uint, mode frame.Channels) (frame.Channels, []*Subframe) {
	block := make([][]int64, len(samples))
	for ch := range samples {
		block[ch] = make([]int64, n)
		for i := range block[ch] {
			block[ch][i] = int64(samples[ch][offset+i])
		}
	}
	channels := frame.Channels(len(samples) - 1)
	if len(samples) == 2 && mode.IsStereo() {
		channels = mode
		left, right := block[0], block[1]
		side := make([]int64, n)
		for i := range side {
			side[i] = left[i] - right[i]
		}
		switch mode {
		case frame.ChannelsLeftSide:
			block[1] = side
		case frame.ChannelsSideRight:
			block[0] = side
		case frame.ChannelsMidSide:
			mid := make([]int64, n)
			for i := range mid {
				mid[i] = (left[i] + right[i]) >> 1
			}
			block[0], block[1] = mid, side
		}
	}
	subframes := make([]*Subframe, len(block))
	for ch, subblock := range block {
		depth := bps
		if isSide(channels, ch) {
			depth++
		}
		subframes[ch] = Analyze(subblock, depth)
	}
	return channels, subframes
}

// seekTable returns a seek table with one seek point for the frame containing
// each multiple of interval, followed by the given number of placeholder
// points.
func seekTable(frames []meta.SeekPoint, interval uint64, placeholders int) *meta.SeekTable {
	table := &meta.SeekTable{}
	var next uint64
	for i, f := range frames {
		end := f.SampleNum + uint64(f.NSamples)
		if next >= end {
			continue
		}
		table.Points = append(table.Points, frames[i])
		for next < end {
			next += interval
		}
	}
	for i := 0; i < placeholders; i++ {
		table.Points = append(table.Points, meta.SeekPoint{SampleNum: meta.PlaceholderPoint})
	}
	return table
}

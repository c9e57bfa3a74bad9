package flac

import (
	"io"

	"github.com/pkg/errors"
	"github.com/seekflac/flac/frame"
)

// SeekTableGapThreshold is the largest distance in samples between a seek
// target and the closest preceding seek point for which frames are decoded
// sequentially from the seek point. Larger gaps are narrowed by a binary search
// over the frames of the stream.
var SeekTableGapThreshold uint64 = 300000

// BinarySearchStopBytes is the size in bytes of the stream range below which
// the binary search over frames stops.
var BinarySearchStopBytes int64 = 100000

// position is a frame position in the stream.
type position struct {
	// Number of the first sample of the frame.
	sample uint64
	// Offset in bytes of the frame header, relative to the first frame.
	offset int64
}

// SeekAndReadAudioBlock seeks to the given sample number and decodes the frame
// containing it. The samples from the target sample up to the end of the frame
// are stored in samples[ch][offset:], and their count per channel is returned.
// A count of 0 is returned if the target lies beyond the end of the stream.
//
// Later calls of ReadAudioBlock continue with the frame following the target
// frame.
func (dec *Decoder) SeekAndReadAudioBlock(target uint64, samples [][]int32, offset int) (int, error) {
	if err := dec.checkReady("flac.Decoder.SeekAndReadAudioBlock"); err != nil {
		return 0, err
	}
	// Reject unusable output buffers before the stream position changes.
	nchannels := int(dec.Info.NChannels)
	if len(samples) < nchannels {
		return 0, errors.Wrapf(ErrInvalidArgument, "flac.Decoder.SeekAndReadAudioBlock: %d output channels for a stream of %d channels", len(samples), nchannels)
	}
	if offset < 0 {
		return 0, errors.Wrapf(ErrInvalidArgument, "flac.Decoder.SeekAndReadAudioBlock: negative output offset %d", offset)
	}
	pos := dec.bestSeekPoint(target)
	if target-pos.sample > SeekTableGapThreshold {
		p, ok, err := dec.seekBySync(target)
		if err != nil {
			return 0, err
		}
		if ok {
			pos = p
		}
	}
	if err := dec.br.SeekTo(dec.metadataEnd + pos.offset); err != nil {
		return 0, err
	}

	if dec.scratch == nil {
		dec.scratch = make([][]int32, nchannels)
		for ch := range dec.scratch {
			dec.scratch[ch] = make([]int32, frame.MaxBlockSize)
		}
	}
	cur := pos.sample
	for {
		hdr, err := dec.ReadFrame(dec.scratch, 0)
		if err != nil {
			if err == io.EOF {
				return 0, nil
			}
			return 0, err
		}
		next := cur + uint64(hdr.BlockSize)
		if next <= target {
			cur = next
			continue
		}
		start, n := int(target-cur), int(next-target)
		for ch := 0; ch < nchannels; ch++ {
			if offset+n > len(samples[ch]) {
				return 0, errors.Wrapf(ErrInvalidArgument, "flac.Decoder.SeekAndReadAudioBlock: output channel %d too small for %d samples at offset %d", ch, n, offset)
			}
			copy(samples[ch][offset:offset+n], dec.scratch[ch][start:start+n])
		}
		return n, nil
	}
}

// bestSeekPoint returns the position of the last seek point at or before the
// target sample, or the position of the first frame if there is none.
func (dec *Decoder) bestSeekPoint(target uint64) position {
	if dec.SeekTable == nil {
		return position{}
	}
	point, ok := dec.SeekTable.BestPoint(target)
	if !ok {
		return position{}
	}
	return position{sample: point.SampleNum, offset: int64(point.Offset)}
}

// seekBySync returns the position of a frame starting at or before the target
// sample, found by a binary search over the byte range of the audio frames.
// Each midpoint resynchronizes on the next frame header. The boolean result is
// false if no frame header could be located.
func (dec *Decoder) seekBySync(target uint64) (position, bool, error) {
	end, err := dec.br.Len()
	if err != nil {
		return position{}, false, err
	}
	start := dec.metadataEnd
	for end-start > BinarySearchStopBytes {
		mid := start + (end-start)/2
		p, ok, err := dec.nextFrameOffsets(mid)
		if err != nil {
			return position{}, false, err
		}
		if !ok || p.sample > target {
			end = mid
		} else {
			start = dec.metadataEnd + p.offset
		}
	}
	return dec.nextFrameOffsets(start)
}

// nextFrameOffsets returns the position of the first frame whose header starts
// at or after the given absolute byte offset. Candidate sync codes which do not
// start a valid frame header are skipped. The boolean result is false if the
// stream ends before a frame header is found.
func (dec *Decoder) nextFrameOffsets(off int64) (position, bool, error) {
	for {
		if err := dec.br.SeekTo(off); err != nil {
			return position{}, false, err
		}
		// Match the 2-byte sync sequence: 0xFF followed by 0xF8 or 0xF9.
		prev := byte(0)
		for {
			b, err := dec.br.ReadByte()
			if err != nil {
				if err == io.EOF {
					return position{}, false, nil
				}
				return position{}, false, err
			}
			if prev == 0xFF && b&0xFE == 0xF8 {
				break
			}
			prev = b
		}

		// Sync found; rewind 2 bytes and try to parse the frame header.
		off = dec.br.Pos() - 2
		if err := dec.br.SeekTo(off); err != nil {
			return position{}, false, err
		}
		hdr, err := frame.ParseHeader(dec.br)
		switch {
		case err == nil && dec.plausible(hdr):
			p := position{sample: hdr.FirstSample(uint32(dec.Info.BlockSizeMax)), offset: off - dec.metadataEnd}
			return p, true, nil
		case err == nil || errors.Is(err, ErrDataFormat):
			// Advance past the sync and search again.
			off += 2
		case errors.Is(err, ErrEndOfStream):
			return position{}, false, nil
		default:
			return position{}, false, err
		}
	}
}

// plausible reports whether a frame header found by sync search agrees with
// the StreamInfo of the stream.
func (dec *Decoder) plausible(hdr *frame.Header) bool {
	si := dec.Info
	switch {
	case hdr.Channels.Count() != int(si.NChannels):
		return false
	case hdr.BlockSize > uint32(si.BlockSizeMax):
		return false
	case hdr.SampleRate != 0 && hdr.SampleRate != si.SampleRate:
		return false
	case hdr.BitsPerSample != 0 && hdr.BitsPerSample != si.BitsPerSample:
		return false
	}
	return true
}

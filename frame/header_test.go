package frame_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/pkg/errors"
	"github.com/seekflac/flac/frame"
	"github.com/seekflac/flac/internal/bits"
	"github.com/seekflac/flac/internal/flacenc"
)

// rawHeader returns a frame header built from the first 32 bits x, the coded
// frame or sample number and the suffix bytes, followed by a valid CRC-8.
func rawHeader(x uint32, num []byte, suffix ...byte) []byte {
	buf := []byte{byte(x >> 24), byte(x >> 16), byte(x >> 8), byte(x)}
	buf = append(buf, num...)
	buf = append(buf, suffix...)
	return append(buf, bits.Checksum8(buf))
}

// headerBits returns the first 32 bits of a frame header.
func headerBits(variable bool, blockSize, sampleRate, channels, sampleSize uint32) uint32 {
	x := uint32(frame.SyncCode)<<18 | blockSize<<12 | sampleRate<<8 | channels<<4 | sampleSize<<1
	if variable {
		x |= 1 << 16
	}
	return x
}

func TestParseHeader(t *testing.T) {
	golden := []frame.Header{
		// Common block size, sample rate and sample size.
		{HasFixedBlockSize: true, BlockSize: 4096, SampleRate: 44100, Channels: frame.ChannelsLR, BitsPerSample: 16, Num: 7},
		{HasFixedBlockSize: true, BlockSize: 192, SampleRate: 88200, Channels: frame.ChannelsMono, BitsPerSample: 8, Num: 0},
		{HasFixedBlockSize: true, BlockSize: 4608, SampleRate: 192000, Channels: frame.ChannelsMidSide, BitsPerSample: 24, Num: 1<<31 - 1},
		// 8-bit block size suffix and 8-bit sample rate in Hz.
		{HasFixedBlockSize: true, BlockSize: 17, SampleRate: 255, Channels: frame.ChannelsLeftSide, BitsPerSample: 12, Num: 1000},
		// 16-bit block size suffix and 16-bit sample rate in Hz.
		{HasFixedBlockSize: false, BlockSize: 1000, SampleRate: 12345, Channels: frame.ChannelsSideRight, BitsPerSample: 20, Num: 1<<36 - 1},
		// 16-bit sample rate in tens of Hz.
		{HasFixedBlockSize: false, BlockSize: 65536, SampleRate: 96010, Channels: frame.ChannelsLRCLfeLsRsSlSr, BitsPerSample: 16, Num: 123456789},
		// Sample rate and sample size deferred to StreamInfo.
		{HasFixedBlockSize: false, BlockSize: 32768, SampleRate: 0, Channels: frame.ChannelsLRC, BitsPerSample: 0, Num: 70},
	}
	for i, want := range golden {
		f := &flacenc.Frame{Header: want}
		for ch := 0; ch < want.Channels.Count(); ch++ {
			f.Subframes = append(f.Subframes, &flacenc.Subframe{
				SubHeader: frame.SubHeader{Pred: frame.PredConstant},
				Samples:   make([]int64, want.BlockSize),
			})
		}
		buf := new(bytes.Buffer)
		if _, err := flacenc.WriteFrame(buf, f, 16); err != nil {
			t.Errorf("i=%d: unable to encode frame; %v", i, err)
			continue
		}
		br := bits.NewReader(buf)
		got, err := frame.ParseHeader(br)
		if err != nil {
			t.Errorf("i=%d: unable to parse frame header; %v", i, err)
			continue
		}
		if *got != want {
			t.Errorf("i=%d: frame header mismatch; expected %#v, got %#v", i, want, *got)
		}
	}
}

func TestParseHeaderAccessors(t *testing.T) {
	fixed := &frame.Header{HasFixedBlockSize: true, BlockSize: 4096, Num: 3}
	if idx, ok := fixed.FrameIndex(); !ok || idx != 3 {
		t.Errorf("frame index mismatch; expected 3, got %d (%v)", idx, ok)
	}
	if _, ok := fixed.SampleOffset(); ok {
		t.Errorf("unexpected sample offset of fixed block size frame")
	}
	if got := fixed.FirstSample(4608); got != 3*4608 {
		t.Errorf("first sample mismatch; expected %d, got %d", 3*4608, got)
	}
	variable := &frame.Header{BlockSize: 100, Num: 12345}
	if off, ok := variable.SampleOffset(); !ok || off != 12345 {
		t.Errorf("sample offset mismatch; expected 12345, got %d (%v)", off, ok)
	}
	if _, ok := variable.FrameIndex(); ok {
		t.Errorf("unexpected frame index of variable block size frame")
	}
	if got := variable.FirstSample(4608); got != 12345 {
		t.Errorf("first sample mismatch; expected 12345, got %d", got)
	}
}

func TestParseHeaderInvalid(t *testing.T) {
	valid := headerBits(false, 0x9, 0x9, 0x1, 0x4)
	golden := []struct {
		name string
		data []byte
	}{
		{name: "sync code", data: rawHeader(valid^1<<18, []byte{0})},
		{name: "first reserved bit", data: rawHeader(valid|1<<17, []byte{0})},
		{name: "second reserved bit", data: rawHeader(valid|1, []byte{0})},
		{name: "block size 0000", data: rawHeader(headerBits(false, 0x0, 0x9, 0x1, 0x4), []byte{0})},
		{name: "sample rate 1111", data: rawHeader(headerBits(false, 0x9, 0xF, 0x1, 0x4), []byte{0})},
		{name: "channels 1011", data: rawHeader(headerBits(false, 0x9, 0x9, 0xB, 0x4), []byte{0})},
		{name: "channels 1111", data: rawHeader(headerBits(false, 0x9, 0x9, 0xF, 0x4), []byte{0})},
		{name: "sample size 011", data: rawHeader(headerBits(false, 0x9, 0x9, 0x1, 0x3), []byte{0})},
		{name: "sample size 111", data: rawHeader(headerBits(false, 0x9, 0x9, 0x1, 0x7), []byte{0})},
		// 0xFE followed by six continuation bytes codes 1<<35.
		{name: "frame number exceeds 31 bits", data: rawHeader(headerBits(false, 0x9, 0x9, 0x1, 0x4), []byte{0xFE, 0xA0, 0x80, 0x80, 0x80, 0x80, 0x80})},
		{name: "continuation byte", data: rawHeader(valid, []byte{0xC2, 0x41})},
		{name: "leading byte", data: rawHeader(valid, []byte{0x80})},
		{name: "CRC-8", data: rawHeader(valid, []byte{0})},
	}
	// Corrupt checksum.
	golden[len(golden)-1].data[5] ^= 0xFF
	for _, g := range golden {
		br := bits.NewReader(bytes.NewReader(g.data))
		_, err := frame.ParseHeader(br)
		if !errors.Is(err, bits.ErrDataFormat) {
			t.Errorf("%s: expected data format error, got %v", g.name, err)
		}
	}
}

func TestParseHeaderVariableSampleNumber(t *testing.T) {
	// Sample numbers of variable block size streams may exceed 31 bits.
	data := rawHeader(headerBits(true, 0x9, 0x9, 0x1, 0x4), []byte{0xFE, 0xA0, 0x80, 0x80, 0x80, 0x80, 0x80})
	hdr, err := frame.ParseHeader(bits.NewReader(bytes.NewReader(data)))
	if err != nil {
		t.Fatal(err)
	}
	if off, ok := hdr.SampleOffset(); !ok || off != 1<<35 {
		t.Errorf("sample offset mismatch; expected %d, got %d", uint64(1)<<35, off)
	}
}

func TestParseHeaderEOF(t *testing.T) {
	// Clean end of stream.
	br := bits.NewReader(bytes.NewReader(nil))
	if _, err := frame.ParseHeader(br); err != io.EOF {
		t.Errorf("expected io.EOF, got %v", err)
	}
	// Truncated header.
	data := rawHeader(headerBits(false, 0x6, 0x9, 0x1, 0x4), []byte{0}, 0x10)
	for n := 1; n < len(data); n++ {
		br := bits.NewReader(bytes.NewReader(data[:n]))
		if _, err := frame.ParseHeader(br); !errors.Is(err, bits.ErrEndOfStream) {
			t.Errorf("n=%d: expected end of stream error, got %v", n, err)
		}
	}
}

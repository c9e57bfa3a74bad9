package flac_test

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/pkg/errors"
	"github.com/seekflac/flac"
	"github.com/seekflac/flac/frame"
	"github.com/seekflac/flac/internal/flacenc"
	"github.com/seekflac/flac/meta"
)

// audio returns n samples per channel of pseudo-random audio which fits in
// bps bits. Smooth audio compresses well; noisy audio is stored verbatim.
func audio(seed int64, nchannels, n int, bps uint, noisy bool) [][]int32 {
	r := rand.New(rand.NewSource(seed))
	max := int64(1)<<(bps-1) - 1
	samples := make([][]int32, nchannels)
	for ch := range samples {
		samples[ch] = make([]int32, n)
		var x, dx int64
		for i := range samples[ch] {
			if noisy {
				samples[ch][i] = int32(r.Int63n(2*max+1) - max)
				continue
			}
			dx += r.Int63n(33) - 16
			if dx > max/32 || dx < -max/32 {
				dx /= 2
			}
			x += dx
			if x > max || x < -max {
				x, dx = x/2, 0
			}
			samples[ch][i] = int32(x)
		}
	}
	return samples
}

// encode returns an encoded FLAC stream of the given samples.
func encode(t *testing.T, info meta.StreamInfo, samples [][]int32, opts flacenc.Options) ([]byte, *flacenc.Result) {
	t.Helper()
	buf := new(bytes.Buffer)
	res, err := flacenc.EncodeStream(buf, info, samples, opts)
	if err != nil {
		t.Fatalf("unable to encode stream; %v", err)
	}
	return buf.Bytes(), res
}

// newDecoder returns a decoder of data which has read every metadata block.
func newDecoder(t *testing.T, data []byte) *flac.Decoder {
	t.Helper()
	dec, err := flac.New(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dec.ReadAllMetadata(); err != nil {
		t.Fatal(err)
	}
	return dec
}

// outputBuffers returns output buffers of frame.MaxBlockSize samples per
// channel.
func outputBuffers(nchannels int) [][]int32 {
	samples := make([][]int32, nchannels)
	for ch := range samples {
		samples[ch] = make([]int32, frame.MaxBlockSize)
	}
	return samples
}

// decodeAll decodes every audio block of the stream sequentially.
func decodeAll(t *testing.T, dec *flac.Decoder) [][]int32 {
	t.Helper()
	nchannels := int(dec.Info.NChannels)
	all := make([][]int32, nchannels)
	buf := outputBuffers(nchannels)
	for {
		n, err := dec.ReadAudioBlock(buf, 0)
		if err != nil {
			t.Fatal(err)
		}
		if n == 0 {
			return all
		}
		for ch := range all {
			all[ch] = append(all[ch], buf[ch][:n]...)
		}
	}
}

func TestConstantStream(t *testing.T) {
	info := meta.StreamInfo{BlockSizeMin: 16, BlockSizeMax: 4096, SampleRate: 8000, BitsPerSample: 16}
	data, _ := encode(t, info, [][]int32{{100, 100, 100, 100}}, flacenc.Options{BlockSizes: []int{4}})
	dec := newDecoder(t, data)
	defer dec.Close()
	if dec.Info.SampleRate != 8000 || dec.Info.NChannels != 1 || dec.Info.BitsPerSample != 16 {
		t.Errorf("StreamInfo mismatch; got %+v", dec.Info)
	}
	samples := outputBuffers(1)
	hdr, err := dec.ReadFrame(samples, 0)
	if err != nil {
		t.Fatal(err)
	}
	if hdr.BlockSize != 4 {
		t.Fatalf("block size mismatch; expected 4, got %d", hdr.BlockSize)
	}
	for i, sample := range samples[0][:4] {
		if sample != 100 {
			t.Errorf("sample %d mismatch; expected 100, got %d", i, sample)
		}
	}
	if hdr.FrameSize < 10 {
		t.Errorf("frame size %d below 10", hdr.FrameSize)
	}
	if n, err := dec.ReadAudioBlock(samples, 0); err != nil || n != 0 {
		t.Errorf("expected end of stream, got %d samples (%v)", n, err)
	}
}

// A seekStream is an encoded stream used to test seeking.
type seekStream struct {
	name    string
	info    meta.StreamInfo
	samples [][]int32
	opts    flacenc.Options
}

func seekStreams() []seekStream {
	return []seekStream{
		{
			name:    "fixed stereo seek table",
			info:    meta.StreamInfo{SampleRate: 44100, BitsPerSample: 16},
			samples: audio(1, 2, 50000, 16, false),
			opts:    flacenc.Options{BlockSizes: []int{4096}, Decorrelation: frame.ChannelsMidSide, SeekInterval: 10000, Placeholders: 2},
		},
		{
			name:    "variable mono",
			info:    meta.StreamInfo{SampleRate: 96000, BitsPerSample: 24},
			samples: audio(2, 1, 30000, 24, false),
			opts:    flacenc.Options{BlockSizes: []int{1000, 4096, 17, 2500}, Variable: true},
		},
		{
			name:    "fixed deferred header",
			info:    meta.StreamInfo{SampleRate: 12345, BitsPerSample: 20},
			samples: audio(3, 3, 20000, 20, false),
			opts:    flacenc.Options{BlockSizes: []int{1152}, DeferHeader: true},
		},
		{
			name:    "variable side-right seek table",
			info:    meta.StreamInfo{SampleRate: 8000, BitsPerSample: 8},
			samples: audio(4, 2, 40000, 8, true),
			opts:    flacenc.Options{BlockSizes: []int{576, 4608}, Variable: true, Decorrelation: frame.ChannelsSideRight, SeekInterval: 5000},
		},
	}
}

// seekTargets returns the sample numbers to seek to in a stream of n samples;
// the first, last and a random sample of every step:th frame among them.
func seekTargets(n int, frames []meta.SeekPoint, step int) []uint64 {
	targets := []uint64{0, 1, uint64(n) - 1, uint64(n)}
	r := rand.New(rand.NewSource(int64(n)))
	for i := 0; i < len(frames); i += step {
		f := frames[i]
		end := f.SampleNum + uint64(f.NSamples)
		targets = append(targets, f.SampleNum, end-1, f.SampleNum+uint64(r.Int63n(int64(f.NSamples))))
	}
	for i := 0; i < 20; i++ {
		targets = append(targets, uint64(r.Int63n(int64(n))))
	}
	// Seek backwards.
	return append(targets, 0)
}

// checkSeek seeks to every target and compares the decoded samples with the
// sequentially decoded samples want.
func checkSeek(t *testing.T, name string, dec *flac.Decoder, want [][]int32, frames []meta.SeekPoint, step int) {
	t.Helper()
	nsamples := len(want[0])
	buf := outputBuffers(len(want))
	for _, target := range seekTargets(nsamples, frames, step) {
		n, err := dec.SeekAndReadAudioBlock(target, buf, 0)
		if err != nil {
			t.Errorf("%s: target %d: unable to seek; %v", name, target, err)
			continue
		}
		if target >= uint64(nsamples) {
			if n != 0 {
				t.Errorf("%s: target %d: expected end of stream, got %d samples", name, target, n)
			}
			continue
		}
		// The block extends to the end of the frame containing the target.
		var end uint64
		for _, f := range frames {
			if f.SampleNum <= target {
				end = f.SampleNum + uint64(f.NSamples)
			}
		}
		if uint64(n) != end-target {
			t.Errorf("%s: target %d: sample count mismatch; expected %d, got %d", name, target, end-target, n)
			continue
		}
		for ch := range want {
			if !equal(buf[ch][:n], want[ch][target:end]) {
				t.Errorf("%s: target %d: channel %d samples mismatch", name, target, ch)
			}
		}
		// Sequential decoding continues after the target frame.
		m, err := dec.ReadAudioBlock(buf, 0)
		if err != nil {
			t.Errorf("%s: target %d: unable to read next block; %v", name, target, err)
			continue
		}
		for ch := range want {
			if !equal(buf[ch][:m], want[ch][end:end+uint64(m)]) {
				t.Errorf("%s: target %d: channel %d samples of next block mismatch", name, target, ch)
			}
		}
	}
}

func equal(a, b []int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSeekAndReadAudioBlock(t *testing.T) {
	for _, s := range seekStreams() {
		data, res := encode(t, s.info, s.samples, s.opts)
		dec := newDecoder(t, data)
		got := decodeAll(t, dec)
		for ch := range s.samples {
			if !equal(got[ch], s.samples[ch]) {
				t.Fatalf("%s: channel %d: sequentially decoded samples mismatch", s.name, ch)
			}
		}
		if (dec.SeekTable != nil) != (s.opts.SeekInterval > 0) {
			t.Errorf("%s: seek table presence mismatch", s.name)
		}
		checkSeek(t, s.name, dec, s.samples, res.Frames, 1)
		if err := dec.Close(); err != nil {
			t.Errorf("%s: unable to close decoder; %v", s.name, err)
		}
	}
}

// setSearchLimits lowers the limits of the binary search over frames, so that
// short streams are searched.
func setSearchLimits(t *testing.T, gap uint64, stop int64) {
	oldGap, oldStop := flac.SeekTableGapThreshold, flac.BinarySearchStopBytes
	flac.SeekTableGapThreshold, flac.BinarySearchStopBytes = gap, stop
	t.Cleanup(func() {
		flac.SeekTableGapThreshold, flac.BinarySearchStopBytes = oldGap, oldStop
	})
}

func TestSeekBinarySearch(t *testing.T) {
	setSearchLimits(t, 0, 64)
	for _, s := range seekStreams() {
		data, res := encode(t, s.info, s.samples, s.opts)
		dec := newDecoder(t, data)
		checkSeek(t, s.name, dec, s.samples, res.Frames, 1)
		dec.Close()
	}
}

func TestSeekLargeStream(t *testing.T) {
	// Noise is stored verbatim, which gives a stream of about 700 KB; seek
	// targets far from the only seek point use a binary search.
	samples := audio(5, 1, 700000, 8, true)
	golden := []flacenc.Options{
		{BlockSizes: []int{4608}},
		{BlockSizes: []int{4608}, SeekInterval: 1 << 30},
		{BlockSizes: []int{4096, 4608, 1152}, Variable: true},
	}
	for i, opts := range golden {
		data, res := encode(t, meta.StreamInfo{SampleRate: 8000, BitsPerSample: 8}, samples, opts)
		dec := newDecoder(t, data)
		checkSeek(t, fmt.Sprintf("i=%d", i), dec, samples, res.Frames, 20)
		dec.Close()
	}
}

func TestOpen(t *testing.T) {
	setSearchLimits(t, 0, 1000)
	samples := audio(6, 2, 100000, 16, false)
	data, res := encode(t, meta.StreamInfo{SampleRate: 48000, BitsPerSample: 16}, samples, flacenc.Options{BlockSizes: []int{4096}, Decorrelation: frame.ChannelsLeftSide})
	path := filepath.Join(t.TempDir(), "test.flac")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	dec, err := flac.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dec.ReadAllMetadata(); err != nil {
		t.Fatal(err)
	}
	if dec.Info.NSamples != uint64(len(samples[0])) {
		t.Errorf("sample count mismatch; expected %d, got %d", len(samples[0]), dec.Info.NSamples)
	}
	checkSeek(t, path, dec, samples, res.Frames, 1)
	if err := dec.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := flac.Open(filepath.Join(t.TempDir(), "missing.flac")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestMD5(t *testing.T) {
	samples := audio(7, 2, 10000, 24, false)
	data, _ := encode(t, meta.StreamInfo{SampleRate: 44100, BitsPerSample: 24}, samples, flacenc.Options{BlockSizes: []int{4096}})
	dec := newDecoder(t, data)
	got := decodeAll(t, dec)
	h := md5.New()
	if err := frame.Hash(h, got, 0, len(got[0]), 24); err != nil {
		t.Fatal(err)
	}
	if !dec.Info.HasMD5() || !bytes.Equal(h.Sum(nil), dec.Info.MD5sum[:]) {
		t.Errorf("MD5 checksum mismatch; expected %x, got %x", dec.Info.MD5sum, h.Sum(nil))
	}
}

// metadataStream returns a FLAC stream with the given metadata blocks followed
// by the frames of a short stream.
func metadataStream(t *testing.T, blocks ...metadataBlock) []byte {
	t.Helper()
	info := meta.StreamInfo{SampleRate: 44100, BitsPerSample: 16}
	data, res := encode(t, info, audio(8, 1, 100, 16, false), flacenc.Options{BlockSizes: []int{64}})
	buf := bytes.NewBuffer(append([]byte(nil), flacenc.Signature...))
	for i, b := range blocks {
		body := b.body
		if b.t == meta.TypeStreamInfo && body == nil {
			body = flacenc.StreamInfoBody(&res.Info)
		}
		if err := flacenc.WriteBlock(buf, b.t, i == len(blocks)-1, body); err != nil {
			t.Fatal(err)
		}
	}
	buf.Write(data[res.FramesStart:])
	return buf.Bytes()
}

type metadataBlock struct {
	t meta.Type
	// Body of the block; the StreamInfo of the stream if nil.
	body []byte
}

func TestReadMetadataBlock(t *testing.T) {
	table := flacenc.SeekTableBody(&meta.SeekTable{Points: []meta.SeekPoint{{SampleNum: 0, NSamples: 64}}})
	data := metadataStream(t,
		metadataBlock{t: meta.TypeStreamInfo},
		metadataBlock{t: meta.TypePadding, body: make([]byte, 8)},
		metadataBlock{t: 42, body: []byte("opaque")},
		metadataBlock{t: meta.TypeSeekTable, body: table},
	)
	dec, err := flac.New(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	// Audio may not be read before the metadata.
	buf := outputBuffers(1)
	if _, err := dec.ReadAudioBlock(buf, 0); !errors.Is(err, flac.ErrMetadata) {
		t.Errorf("expected metadata error, got %v", err)
	}
	if _, err := dec.SeekAndReadAudioBlock(0, buf, 0); !errors.Is(err, flac.ErrMetadata) {
		t.Errorf("expected metadata error, got %v", err)
	}
	blocks, err := dec.ReadAllMetadata()
	if err != nil {
		t.Fatal(err)
	}
	wantTypes := []meta.Type{meta.TypeStreamInfo, meta.TypePadding, 42, meta.TypeSeekTable}
	if len(blocks) != len(wantTypes) {
		t.Fatalf("block count mismatch; expected %d, got %d", len(wantTypes), len(blocks))
	}
	for i, want := range wantTypes {
		if blocks[i].Type != want {
			t.Errorf("block %d: type mismatch; expected %v, got %v", i, want, blocks[i].Type)
		}
	}
	if blocks[2].Body != nil || string(blocks[2].Data) != "opaque" {
		t.Errorf("opaque block mismatch; got body %v and data %q", blocks[2].Body, blocks[2].Data)
	}
	if dec.SeekTable == nil || len(dec.SeekTable.Points) != 1 {
		t.Errorf("seek table mismatch; got %v", dec.SeekTable)
	}
	if _, err := dec.ReadMetadataBlock(); err != io.EOF {
		t.Errorf("expected io.EOF after last metadata block, got %v", err)
	}
	if n, err := dec.ReadAudioBlock(buf, 0); err != nil || n != 64 {
		t.Errorf("expected 64 samples, got %d (%v)", n, err)
	}
}

func TestReadMetadataBlockInvalid(t *testing.T) {
	table := flacenc.SeekTableBody(&meta.SeekTable{})
	golden := []struct {
		name   string
		blocks []metadataBlock
	}{
		{name: "first block not StreamInfo", blocks: []metadataBlock{{t: meta.TypePadding, body: make([]byte, 4)}, {t: meta.TypeStreamInfo}}},
		{name: "duplicate StreamInfo", blocks: []metadataBlock{{t: meta.TypeStreamInfo}, {t: meta.TypeStreamInfo}}},
		{name: "duplicate SeekTable", blocks: []metadataBlock{{t: meta.TypeStreamInfo}, {t: meta.TypeSeekTable, body: table}, {t: meta.TypeSeekTable, body: table}}},
		{name: "invalid block type", blocks: []metadataBlock{{t: meta.TypeStreamInfo}, {t: meta.TypeInvalid}}},
		{name: "invalid StreamInfo", blocks: []metadataBlock{{t: meta.TypeStreamInfo, body: make([]byte, meta.StreamInfoSize)}}},
	}
	for _, g := range golden {
		dec, err := flac.New(bytes.NewReader(metadataStream(t, g.blocks...)))
		if err != nil {
			t.Fatal(err)
		}
		if _, err := dec.ReadAllMetadata(); !errors.Is(err, flac.ErrDataFormat) {
			t.Errorf("%s: expected data format error, got %v", g.name, err)
		}
	}

	if _, err := flac.New(bytes.NewReader([]byte("RIFF...."))); !errors.Is(err, flac.ErrDataFormat) {
		t.Errorf("invalid signature: expected data format error, got %v", err)
	}
	if _, err := flac.New(bytes.NewReader([]byte("fL"))); !errors.Is(err, flac.ErrEndOfStream) {
		t.Errorf("short signature: expected end of stream error, got %v", err)
	}
	// Truncated metadata block body.
	data := metadataStream(t, metadataBlock{t: meta.TypeStreamInfo})
	dec, err := flac.New(bytes.NewReader(data[:4+meta.HeaderSize+10]))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dec.ReadMetadataBlock(); !errors.Is(err, flac.ErrEndOfStream) {
		t.Errorf("truncated block: expected end of stream error, got %v", err)
	}
}

func TestCheckFrame(t *testing.T) {
	// StreamInfo understates the maximum block size.
	info := meta.StreamInfo{BlockSizeMin: 16, BlockSizeMax: 1024, SampleRate: 44100, BitsPerSample: 16}
	data, _ := encode(t, info, audio(9, 1, 8192, 16, false), flacenc.Options{BlockSizes: []int{4096}})
	dec := newDecoder(t, data)
	if _, err := dec.ReadAudioBlock(outputBuffers(1), 0); !errors.Is(err, flac.ErrDataFormat) {
		t.Errorf("expected data format error, got %v", err)
	}
}

func TestClose(t *testing.T) {
	data, _ := encode(t, meta.StreamInfo{SampleRate: 44100, BitsPerSample: 16}, audio(10, 1, 1000, 16, false), flacenc.Options{BlockSizes: []int{256}})
	dec := newDecoder(t, data)
	if err := dec.Close(); err != nil {
		t.Fatal(err)
	}
	buf := outputBuffers(1)
	if _, err := dec.ReadAudioBlock(buf, 0); !errors.Is(err, flac.ErrClosed) {
		t.Errorf("ReadAudioBlock: expected closed error, got %v", err)
	}
	if _, err := dec.SeekAndReadAudioBlock(0, buf, 0); !errors.Is(err, flac.ErrClosed) {
		t.Errorf("SeekAndReadAudioBlock: expected closed error, got %v", err)
	}
	if _, err := dec.ReadMetadataBlock(); !errors.Is(err, flac.ErrClosed) {
		t.Errorf("ReadMetadataBlock: expected closed error, got %v", err)
	}
	if err := dec.Close(); !errors.Is(err, flac.ErrClosed) {
		t.Errorf("Close: expected closed error, got %v", err)
	}
}

func TestSeekUnsupported(t *testing.T) {
	data, _ := encode(t, meta.StreamInfo{SampleRate: 44100, BitsPerSample: 16}, audio(11, 1, 1000, 16, false), flacenc.Options{BlockSizes: []int{256}})
	// Hide the io.Seeker implementation of bytes.Reader.
	r := struct{ io.Reader }{bytes.NewReader(data)}
	dec, err := flac.New(r)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dec.ReadAllMetadata(); err != nil {
		t.Fatal(err)
	}
	if _, err := dec.SeekAndReadAudioBlock(300, outputBuffers(1), 0); !errors.Is(err, flac.ErrUnsupported) {
		t.Errorf("expected unsupported error, got %v", err)
	}
}

func TestSeekOutputBuffers(t *testing.T) {
	want := audio(12, 2, 1000, 16, false)
	data, _ := encode(t, meta.StreamInfo{SampleRate: 44100, BitsPerSample: 16}, want, flacenc.Options{BlockSizes: []int{256}})
	dec := newDecoder(t, data)
	if _, err := dec.SeekAndReadAudioBlock(600, outputBuffers(1), 0); !errors.Is(err, flac.ErrInvalidArgument) {
		t.Errorf("missing channel: expected invalid argument error, got %v", err)
	}
	if _, err := dec.SeekAndReadAudioBlock(600, outputBuffers(2), -1); !errors.Is(err, flac.ErrInvalidArgument) {
		t.Errorf("negative offset: expected invalid argument error, got %v", err)
	}
	// Rejected calls leave the stream position at the first frame.
	first := outputBuffers(2)
	if n, err := dec.ReadAudioBlock(first, 0); err != nil || n != 256 {
		t.Fatalf("first frame: expected 256 samples, got %d (%v)", n, err)
	}
	for ch := range first {
		if !reflect.DeepEqual(first[ch][:256], want[ch][:256]) {
			t.Errorf("first frame: channel %d sample mismatch", ch)
		}
	}
	short := [][]int32{make([]int32, 100), make([]int32, 100)}
	if _, err := dec.SeekAndReadAudioBlock(10, short, 0); !errors.Is(err, flac.ErrInvalidArgument) {
		t.Errorf("short channel: expected invalid argument error, got %v", err)
	}
	// The output offset applies to every channel.
	buf := [][]int32{make([]int32, 300), make([]int32, 300)}
	if n, err := dec.SeekAndReadAudioBlock(500, buf, 44); err != nil || n != 12 {
		t.Errorf("offset: expected 12 samples, got %d (%v)", n, err)
	}
}

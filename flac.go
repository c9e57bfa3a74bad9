// Package flac provides access to FLAC (Free Lossless Audio Codec) streams. [1]
//
// The basic structure of a FLAC bitstream is:
//   - The four byte string signature "fLaC".
//   - The StreamInfo metadata block.
//   - Zero or more other metadata blocks.
//   - One or more audio frames.
//
// A Decoder reads the metadata blocks one at a time, after which audio blocks
// may be read sequentially or from an arbitrary sample position.
//
// [1]: https://www.xiph.org/flac/format.html
package flac

import (
	"io"
	"os"

	"github.com/pkg/errors"
	"github.com/seekflac/flac/frame"
	"github.com/seekflac/flac/internal/bits"
	"github.com/seekflac/flac/internal/bufseekio"
	"github.com/seekflac/flac/meta"
)

// Error kinds reported by the decoder; test for them with errors.Is.
var (
	// ErrEndOfStream is returned when the stream ends in the middle of a
	// metadata block or an audio frame.
	ErrEndOfStream = bits.ErrEndOfStream
	// ErrDataFormat is returned for malformed or inconsistent streams.
	ErrDataFormat = bits.ErrDataFormat
	// ErrUnsupported is returned when seeking on a source which is not an
	// io.Seeker.
	ErrUnsupported = bits.ErrUnsupported
	// ErrAlignment is returned for byte oriented reads at a bit position which
	// is not a byte boundary.
	ErrAlignment = bits.ErrAlignment
	// ErrInvalidArgument is returned for output buffers which are too small.
	ErrInvalidArgument = bits.ErrInvalidArgument
	// ErrClosed is returned by every method of a closed decoder.
	ErrClosed = errors.New("flac: use of closed decoder")
	// ErrMetadata is returned when audio is read before the last metadata block
	// has been consumed.
	ErrMetadata = errors.New("flac: metadata blocks not fully consumed")
)

// signature is present at the beginning of each FLAC stream.
const signature = "fLaC"

// state is the state of a Decoder.
type state uint8

// Decoder states.
const (
	// The signature has not been read.
	stateAwaitingMagic state = iota
	// Metadata blocks remain to be read.
	stateReadingMetadata
	// Every metadata block has been read; audio frames follow.
	stateReady
	stateClosed
)

// A Decoder decodes the metadata blocks and audio frames of a FLAC stream. A
// Decoder is not safe for concurrent use.
type Decoder struct {
	// StreamInfo of the stream; nil until the first metadata block is read.
	Info *meta.StreamInfo
	// SeekTable of the stream, or nil.
	SeekTable *meta.SeekTable
	// Metadata blocks read so far, in stream order.
	Blocks []*meta.Block

	state state
	br    *bits.Reader
	// Underlying source, closed by Close if it implements io.Closer.
	r io.Reader
	// Offset in bytes of the first audio frame; seek table offsets are relative
	// to it.
	metadataEnd int64
	frames      *frame.Decoder
	// Scratch buffers of the frame containing a seek target.
	scratch [][]int32
}

// New returns a new decoder for the FLAC stream read from r, verifying its
// signature. Seeking requires r to implement io.Seeker and the position of r to
// be the start of the stream.
func New(r io.Reader) (*Decoder, error) {
	dec := &Decoder{br: bits.NewReader(r), r: r}
	var buf [len(signature)]byte
	if err := dec.br.ReadAligned(buf[:]); err != nil {
		return nil, err
	}
	if sig := string(buf[:]); sig != signature {
		return nil, errors.Wrapf(ErrDataFormat, "flac.New: invalid signature; expected %q, got %q", signature, sig)
	}
	dec.state = stateReadingMetadata
	return dec, nil
}

// Open opens the provided file for decoding; the file is buffered to keep the
// short seeks of sample position searches cheap. Callers should close the
// decoder when done.
func Open(path string) (*Decoder, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	dec, err := New(&file{ReadSeeker: bufseekio.NewReadSeeker(f), f: f})
	if err != nil {
		f.Close()
		return nil, err
	}
	return dec, nil
}

// file is a buffered file which closes the file itself.
type file struct {
	*bufseekio.ReadSeeker
	f *os.File
}

func (f *file) Close() error {
	return f.f.Close()
}

// ReadMetadataBlock reads and returns the next metadata block. StreamInfo must
// be the first block and may not be repeated; SeekTable may occur at most once.
// Blocks of reserved types are returned with a nil body. io.EOF is returned
// once the last metadata block has been read.
func (dec *Decoder) ReadMetadataBlock() (*meta.Block, error) {
	switch dec.state {
	case stateClosed:
		return nil, errors.WithStack(ErrClosed)
	case stateReady:
		return nil, io.EOF
	}
	var buf [meta.HeaderSize]byte
	if err := dec.br.ReadAligned(buf[:]); err != nil {
		return nil, err
	}
	hdr, err := meta.ParseHeader(buf)
	if err != nil {
		return nil, err
	}
	data := make([]byte, hdr.Length)
	if err := dec.br.ReadAligned(data); err != nil {
		return nil, err
	}

	// The first block type must be StreamInfo.
	switch {
	case hdr.Type == meta.TypeStreamInfo && dec.Info != nil:
		return nil, errors.Wrap(ErrDataFormat, "flac.Decoder.ReadMetadataBlock: duplicate StreamInfo block")
	case hdr.Type != meta.TypeStreamInfo && dec.Info == nil:
		return nil, errors.Wrapf(ErrDataFormat, "flac.Decoder.ReadMetadataBlock: first block type is invalid; expected %v, got %v", meta.TypeStreamInfo, hdr.Type)
	case hdr.Type == meta.TypeSeekTable && dec.SeekTable != nil:
		return nil, errors.Wrap(ErrDataFormat, "flac.Decoder.ReadMetadataBlock: duplicate SeekTable block")
	}
	block, err := meta.ParseBlock(hdr, data)
	if err != nil {
		return nil, err
	}
	switch body := block.Body.(type) {
	case *meta.StreamInfo:
		dec.Info = body
	case *meta.SeekTable:
		dec.SeekTable = body
	}
	dec.Blocks = append(dec.Blocks, block)

	if hdr.IsLast {
		dec.metadataEnd = dec.br.Pos()
		dec.frames = frame.NewDecoder(dec.br, dec.Info.BitsPerSample)
		dec.state = stateReady
	}
	return block, nil
}

// ReadAllMetadata reads the remaining metadata blocks and returns every
// metadata block of the stream.
func (dec *Decoder) ReadAllMetadata() ([]*meta.Block, error) {
	for {
		if _, err := dec.ReadMetadataBlock(); err != nil {
			if err == io.EOF {
				return dec.Blocks, nil
			}
			return nil, err
		}
	}
}

// ReadFrame reads and decodes the next audio frame into
// samples[ch][offset:offset+BlockSize] and returns its header. The frame is
// checked against the StreamInfo of the stream. io.EOF is returned at the end
// of the stream.
func (dec *Decoder) ReadFrame(samples [][]int32, offset int) (*frame.Header, error) {
	if err := dec.checkReady("flac.Decoder.ReadFrame"); err != nil {
		return nil, err
	}
	hdr, err := dec.frames.ReadFrame(samples, offset)
	if err != nil {
		return nil, err
	}
	props := meta.FrameProps{
		BlockSize:     hdr.BlockSize,
		SampleRate:    hdr.SampleRate,
		NChannels:     hdr.Channels.Count(),
		BitsPerSample: hdr.BitsPerSample,
		FrameSize:     hdr.FrameSize,
	}
	if err := dec.Info.CheckFrame(props); err != nil {
		return nil, err
	}
	return hdr, nil
}

// ReadAudioBlock reads and decodes the next audio frame into
// samples[ch][offset:] and returns the number of samples per channel, in the
// range [1, 65536]. A count of 0 is returned at the end of the stream.
func (dec *Decoder) ReadAudioBlock(samples [][]int32, offset int) (int, error) {
	hdr, err := dec.ReadFrame(samples, offset)
	if err != nil {
		if err == io.EOF {
			return 0, nil
		}
		return 0, err
	}
	return int(hdr.BlockSize), nil
}

// checkReady returns an error unless audio frames may be read.
func (dec *Decoder) checkReady(fn string) error {
	switch dec.state {
	case stateClosed:
		return errors.WithStack(ErrClosed)
	case stateReady:
		return nil
	}
	return errors.Wrap(ErrMetadata, fn)
}

// Close closes the underlying source if it implements io.Closer. Every later
// call of a decoder method returns ErrClosed.
func (dec *Decoder) Close() error {
	if dec.state == stateClosed {
		return errors.WithStack(ErrClosed)
	}
	dec.state = stateClosed
	dec.Info, dec.SeekTable, dec.Blocks = nil, nil, nil
	dec.frames, dec.scratch = nil, nil
	if c, ok := dec.r.(io.Closer); ok {
		return errors.WithStack(c.Close())
	}
	return nil
}

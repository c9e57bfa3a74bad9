// Package meta implements access to FLAC metadata blocks.
//
// A brief introduction of the FLAC metadata format [1] follows. Each metadata
// block starts with a block header, which specifies if the block is the last
// metadata block before the audio frames, the type of the block and the length
// of its body. The StreamInfo block [2] is mandatory and must be the first
// metadata block of a FLAC stream; the SeekTable block [3] is optional and may
// occur at most once.
//
//	[1]: https://www.xiph.org/flac/format.html#format_overview
//	[2]: https://www.xiph.org/flac/format.html#metadata_block_streaminfo
//	[3]: https://www.xiph.org/flac/format.html#metadata_block_seektable
package meta

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/seekflac/flac/internal/bits"
)

// A Block contains the header and body of a metadata block.
//
// ref: https://www.xiph.org/flac/format.html#metadata_block
type Block struct {
	// Metadata block header.
	Header
	// Metadata block body: *StreamInfo, *SeekTable, *Padding, *Application,
	// *VorbisComment, *CueSheet or *Picture. Body is nil for blocks of other types, which
	// are kept as opaque payload in Data.
	Body interface{}
	// Raw payload of the metadata block, Length bytes.
	Data []byte
}

// Type represents the type of a metadata block body.
type Type uint8

// Metadata block body types.
const (
	TypeStreamInfo    Type = 0
	TypePadding       Type = 1
	TypeApplication   Type = 2
	TypeSeekTable     Type = 3
	TypeVorbisComment Type = 4
	TypeCueSheet      Type = 5
	TypePicture       Type = 6
	// TypeInvalid is invalid, to avoid confusion with a frame sync code.
	TypeInvalid Type = 127
)

func (t Type) String() string {
	switch t {
	case TypeStreamInfo:
		return "stream info"
	case TypePadding:
		return "padding"
	case TypeApplication:
		return "application"
	case TypeSeekTable:
		return "seek table"
	case TypeVorbisComment:
		return "vorbis comment"
	case TypeCueSheet:
		return "cue sheet"
	case TypePicture:
		return "picture"
	default:
		return fmt.Sprintf("<unknown block type %d>", uint8(t))
	}
}

// HeaderSize is the size in bytes of a metadata block header.
const HeaderSize = 4

// A Header contains information about the type and length of a metadata block.
//
// ref: https://www.xiph.org/flac/format.html#metadata_block_header
type Header struct {
	// Metadata block body type.
	Type Type
	// Length of body data in bytes.
	Length int64
	// IsLast specifies if the block is the last metadata block.
	IsLast bool
}

// ParseHeader parses the metadata block header stored in buf.
//
// Metadata block header format (pseudo code):
//
//	type METADATA_BLOCK_HEADER struct {
//	   is_last    bool
//	   block_type uint7
//	   length     uint24
//	}
//
// ref: https://www.xiph.org/flac/format.html#metadata_block_header
func ParseHeader(buf [HeaderSize]byte) (Header, error) {
	// 1 bit: IsLast.
	// 7 bits: Type.
	// 24 bits: Length.
	x := uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
	hdr := Header{
		IsLast: x&0x80000000 != 0,
		Type:   Type(x >> 24 & 0x7F),
		Length: int64(x & 0x00FFFFFF),
	}
	// Block type.
	//    0:     Streaminfo
	//    1:     Padding
	//    2:     Application
	//    3:     Seektable
	//    4:     Vorbis_comment
	//    5:     Cuesheet
	//    6:     Picture
	//    7-126: reserved
	//    127:   invalid, to avoid confusion with a frame sync code
	if hdr.Type == TypeInvalid {
		return hdr, errors.Wrap(bits.ErrDataFormat, "meta.ParseHeader: invalid block type")
	}
	return hdr, nil
}

// ParseBlock parses the body of a metadata block from its payload data, which
// must be exactly hdr.Length bytes. Reserved block types are returned with a
// nil body.
func ParseBlock(hdr Header, data []byte) (*Block, error) {
	if int64(len(data)) != hdr.Length {
		return nil, errors.Wrapf(bits.ErrInvalidArgument, "meta.ParseBlock: payload of %d bytes for block of length %d", len(data), hdr.Length)
	}
	block := &Block{Header: hdr, Data: data}
	var err error
	switch hdr.Type {
	case TypeStreamInfo:
		block.Body, err = ParseStreamInfo(data)
	case TypePadding:
		block.Body, err = ParsePadding(data)
	case TypeApplication:
		block.Body, err = ParseApplication(data)
	case TypeSeekTable:
		block.Body, err = ParseSeekTable(data)
	case TypeVorbisComment:
		block.Body, err = ParseVorbisComment(data)
	case TypeCueSheet:
		block.Body, err = ParseCueSheet(data)
	case TypePicture:
		block.Body, err = ParsePicture(data)
	}
	if err != nil {
		return nil, err
	}
	return block, nil
}

package meta

import (
	"encoding/binary"
	"strings"

	"github.com/pkg/errors"
	"github.com/seekflac/flac/internal/bits"
)

// A VorbisComment metadata block is for storing a list of human-readable
// name/value pairs. Values are encoded using UTF-8. It is an implementation of
// the Vorbis comment specification (without the framing bit). This is the only
// officially supported tagging mechanism in FLAC. There may be only one
// VORBIS_COMMENT block in a stream.
//
// ref: https://www.xiph.org/flac/format.html#metadata_block_vorbis_comment
type VorbisComment struct {
	// Vendor name.
	Vendor string
	// A list of tags, each represented by a name-value pair.
	Tags [][2]string
}

// ParseVorbisComment parses the body of a VorbisComment metadata block. Unlike
// the rest of FLAC, its integers are little-endian.
//
// Vorbis comment format (pseudo code):
//
//	type METADATA_BLOCK_VORBIS_COMMENT struct {
//	   vendor_length uint32
//	   vendor_string [vendor_length]byte
//	   comment_count uint32
//	   comments      [comment_count]comment
//	}
//
//	type comment struct {
//	   vector_length uint32
//	   // vector_string is a name/value pair. Example: "NAME=value".
//	   vector_string [length]byte
//	}
func ParseVorbisComment(data []byte) (*VorbisComment, error) {
	b := &body{fn: "meta.ParseVorbisComment", data: data}
	vendor, err := b.string(binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	n, err := b.uint32(binary.LittleEndian)
	if err != nil {
		return nil, err
	}
	// Each comment takes at least 4 bytes.
	if uint64(n)*4 > uint64(len(b.data)) {
		return nil, errors.Wrapf(bits.ErrDataFormat, "meta.ParseVorbisComment: %d comments exceed the %d remaining bytes", n, len(b.data))
	}
	comment := &VorbisComment{Vendor: vendor, Tags: make([][2]string, n)}
	for i := range comment.Tags {
		vector, err := b.string(binary.LittleEndian)
		if err != nil {
			return nil, err
		}
		pos := strings.Index(vector, "=")
		if pos == -1 {
			return nil, errors.Wrapf(bits.ErrDataFormat, "meta.ParseVorbisComment: invalid comment vector; no '=' present in: %q", vector)
		}
		comment.Tags[i] = [2]string{vector[:pos], vector[pos+1:]}
	}
	return comment, nil
}

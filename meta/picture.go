package meta

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/seekflac/flac/internal/bits"
)

// A Picture metadata block is for storing pictures associated with the file,
// most commonly cover art from CDs. There may be more than one PICTURE block in
// a file.
//
// ref: https://www.xiph.org/flac/format.html#metadata_block_picture
type Picture struct {
	// The picture type according to the ID3v2 APIC frame:
	//     0: Other
	//     1: 32x32 pixels 'file icon' (PNG only)
	//     2: Other file icon
	//     3: Cover (front)
	//     4: Cover (back)
	//     5: Leaflet page
	//     6: Media (e.g. label side of CD)
	//     7: Lead artist/lead performer/soloist
	//     8: Artist/performer
	//     9: Conductor
	//    10: Band/Orchestra
	//    11: Composer
	//    12: Lyricist/text writer
	//    13: Recording Location
	//    14: During recording
	//    15: During performance
	//    16: Movie/video screen capture
	//    17: A bright coloured fish
	//    18: Illustration
	//    19: Band/artist logotype
	//    20: Publisher/Studio logotype
	//
	// Others are reserved and should not be used.
	Type uint32
	// The MIME type string, in printable ASCII characters 0x20-0x7E. The MIME
	// type may also be --> to signify that the data part is a URL of the picture
	// instead of the picture data itself.
	MIME string
	// The description of the picture, in UTF-8.
	Desc string
	// The width of the picture in pixels.
	Width uint32
	// The height of the picture in pixels.
	Height uint32
	// The color depth of the picture in bits-per-pixel.
	Depth uint32
	// For indexed-color pictures (e.g. GIF), the number of colors used, or 0 for
	// non-indexed pictures.
	NPalColors uint32
	// The binary picture data.
	Data []byte
}

// ParsePicture parses the body of a Picture metadata block.
//
// Picture format (pseudo code):
//
//	type METADATA_BLOCK_PICTURE struct {
//	   type        uint32
//	   mime_length uint32
//	   mime_string [mime_length]byte
//	   desc_length uint32
//	   desc_string [desc_length]byte
//	   width       uint32
//	   height      uint32
//	   color_depth uint32
//	   color_count uint32
//	   data_length uint32
//	   data        [data_length]byte
//	}
func ParsePicture(data []byte) (*Picture, error) {
	b := &body{fn: "meta.ParsePicture", data: data}
	pic := new(Picture)
	var err error
	if pic.Type, err = b.uint32(binary.BigEndian); err != nil {
		return nil, err
	}
	if pic.Type > 20 {
		return nil, errors.Wrapf(bits.ErrDataFormat, "meta.ParsePicture: reserved picture type %d", pic.Type)
	}
	if pic.MIME, err = b.string(binary.BigEndian); err != nil {
		return nil, err
	}
	for _, r := range pic.MIME {
		if r < 0x20 || r > 0x7E {
			return nil, errors.Wrapf(bits.ErrDataFormat, "meta.ParsePicture: invalid character in MIME type; expected >= 0x20 and <= 0x7E, got 0x%02X", r)
		}
	}
	if pic.Desc, err = b.string(binary.BigEndian); err != nil {
		return nil, err
	}
	for _, field := range []*uint32{&pic.Width, &pic.Height, &pic.Depth, &pic.NPalColors} {
		if *field, err = b.uint32(binary.BigEndian); err != nil {
			return nil, err
		}
	}
	n, err := b.uint32(binary.BigEndian)
	if err != nil {
		return nil, err
	}
	if pic.Data, err = b.bytes(uint64(n)); err != nil {
		return nil, err
	}
	if len(b.data) != 0 {
		return nil, errors.Wrapf(bits.ErrDataFormat, "meta.ParsePicture: %d trailing bytes after picture data", len(b.data))
	}
	return pic, nil
}

package flacenc

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/icza/bitio"
	"github.com/mewkiz/pkg/errutil"
	"github.com/seekflac/flac/meta"
)

// Signature marks the beginning of a FLAC stream.
var Signature = []byte("fLaC")

// WriteBlock writes a metadata block of the given type to w.
func WriteBlock(w io.Writer, t meta.Type, isLast bool, body []byte) error {
	if len(body) >= 1<<24 {
		return errutil.Newf("metadata block body of %d bytes exceeds 24-bit length", len(body))
	}
	buf := new(bytes.Buffer)
	bw := bitio.NewWriter(buf)
	// 1 bit: IsLast.
	if err := bw.WriteBool(isLast); err != nil {
		return errutil.Err(err)
	}
	// 7 bits: Type.
	if err := bw.WriteBits(uint64(t), 7); err != nil {
		return errutil.Err(err)
	}
	// 24 bits: Length.
	if err := bw.WriteBits(uint64(len(body)), 24); err != nil {
		return errutil.Err(err)
	}
	buf.Write(body)
	if _, err := w.Write(buf.Bytes()); err != nil {
		return errutil.Err(err)
	}
	return nil
}

// StreamInfoBody returns the body of a StreamInfo metadata block. It does not
// validate the stream properties, so that invalid blocks may be crafted.
func StreamInfoBody(si *meta.StreamInfo) []byte {
	buf := new(bytes.Buffer)
	bw := bitio.NewWriter(buf)
	// Fields have fixed widths and bytes.Buffer never fails to write.
	fields := []struct {
		x uint64
		n uint8
	}{
		{uint64(si.BlockSizeMin), 16},
		{uint64(si.BlockSizeMax), 16},
		{uint64(si.FrameSizeMin), 24},
		{uint64(si.FrameSizeMax), 24},
		{uint64(si.SampleRate), 20},
		{uint64(si.NChannels - 1), 3},
		{uint64(si.BitsPerSample - 1), 5},
		{si.NSamples, 36},
	}
	for _, f := range fields {
		bw.WriteBits(f.x&(1<<f.n-1), f.n)
	}
	bw.Write(si.MD5sum[:])
	bw.Align()
	return buf.Bytes()
}

// SeekTableBody returns the body of a SeekTable metadata block.
func SeekTableBody(table *meta.SeekTable) []byte {
	buf := make([]byte, 0, len(table.Points)*meta.SeekPointSize)
	for _, point := range table.Points {
		buf = binary.BigEndian.AppendUint64(buf, point.SampleNum)
		buf = binary.BigEndian.AppendUint64(buf, point.Offset)
		buf = binary.BigEndian.AppendUint16(buf, point.NSamples)
	}
	return buf
}

// VorbisCommentBody returns the body of a VorbisComment metadata block.
func VorbisCommentBody(comment *meta.VorbisComment) []byte {
	var buf []byte
	appendString := func(s string) {
		buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
		buf = append(buf, s...)
	}
	appendString(comment.Vendor)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(comment.Tags)))
	for _, tag := range comment.Tags {
		appendString(tag[0] + "=" + tag[1])
	}
	return buf
}

// PictureBody returns the body of a Picture metadata block.
func PictureBody(pic *meta.Picture) []byte {
	var buf []byte
	appendBytes := func(p []byte) {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(p)))
		buf = append(buf, p...)
	}
	buf = binary.BigEndian.AppendUint32(buf, pic.Type)
	appendBytes([]byte(pic.MIME))
	appendBytes([]byte(pic.Desc))
	for _, x := range []uint32{pic.Width, pic.Height, pic.Depth, pic.NPalColors} {
		buf = binary.BigEndian.AppendUint32(buf, x)
	}
	appendBytes(pic.Data)
	return buf
}

// CueSheetBody returns the body of a CueSheet metadata block. Strings longer
// than their fields are truncated.
func CueSheetBody(cs *meta.CueSheet) []byte {
	var buf []byte
	appendSZ := func(s string, n int) {
		field := make([]byte, n)
		copy(field, s)
		buf = append(buf, field...)
	}
	appendSZ(cs.MCN, 128)
	buf = binary.BigEndian.AppendUint64(buf, cs.NLeadInSamples)
	var flags byte
	if cs.IsCompactDisc {
		flags |= 0x80
	}
	buf = append(buf, flags)
	buf = append(buf, make([]byte, 258)...)
	buf = append(buf, byte(len(cs.Tracks)))
	for _, track := range cs.Tracks {
		buf = binary.BigEndian.AppendUint64(buf, track.Offset)
		buf = append(buf, track.Num)
		appendSZ(track.ISRC, 12)
		var flags byte
		if !track.IsAudio {
			flags |= 0x80
		}
		if track.HasPreEmphasis {
			flags |= 0x40
		}
		buf = append(buf, flags)
		buf = append(buf, make([]byte, 13)...)
		buf = append(buf, byte(len(track.Indicies)))
		for _, index := range track.Indicies {
			buf = binary.BigEndian.AppendUint64(buf, index.Offset)
			buf = append(buf, index.Num, 0, 0, 0)
		}
	}
	return buf
}

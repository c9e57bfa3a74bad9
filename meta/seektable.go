package meta

import (
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/seekflac/flac/internal/bits"
)

// SeekPointSize is the size in bytes of a seek point.
const SeekPointSize = 18

// PlaceholderPoint is the sample number used by placeholder seek points.
const PlaceholderPoint = 0xFFFFFFFFFFFFFFFF

// SeekTable contains one or more pre-calculated audio frame seek points.
//
// ref: https://www.xiph.org/flac/format.html#metadata_block_seektable
type SeekTable struct {
	// One or more seek points.
	Points []SeekPoint
}

// A SeekPoint specifies the byte offset and initial sample number of a given
// target frame.
//
// ref: https://www.xiph.org/flac/format.html#seekpoint
type SeekPoint struct {
	// Sample number of the first sample in the target frame, or
	// 0xFFFFFFFFFFFFFFFF for a placeholder point.
	SampleNum uint64
	// Offset in bytes from the first byte of the first frame header to the first
	// byte of the target frame's header.
	Offset uint64
	// Number of samples in the target frame.
	NSamples uint16
}

// ParseSeekTable parses the body of a SeekTable metadata block and validates
// it.
//
// SeekTable format (pseudo code):
//
//	type METADATA_BLOCK_SEEKTABLE struct {
//	   points [header.Length/18]SEEKPOINT
//	}
//
//	type SEEKPOINT struct {
//	   sample_num uint64
//	   offset     uint64
//	   nsamples   uint16
//	}
//
// ref: https://www.xiph.org/flac/format.html#metadata_block_seektable
func ParseSeekTable(data []byte) (*SeekTable, error) {
	// The number of seek points is derived from the header length, divided by
	// the size of a SeekPoint; which is 18 bytes.
	if len(data)%SeekPointSize != 0 {
		return nil, errors.Wrapf(bits.ErrDataFormat, "meta.ParseSeekTable: length %d not a multiple of %d", len(data), SeekPointSize)
	}
	table := &SeekTable{Points: make([]SeekPoint, len(data)/SeekPointSize)}
	for i := range table.Points {
		p := data[i*SeekPointSize:]
		table.Points[i] = SeekPoint{
			SampleNum: binary.BigEndian.Uint64(p),
			Offset:    binary.BigEndian.Uint64(p[8:]),
			NSamples:  binary.BigEndian.Uint16(p[16:]),
		}
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// Validate checks that the sample numbers of seek points are strictly
// increasing, that their offsets are non-decreasing, and that placeholder
// points trail all other points.
func (table *SeekTable) Validate() error {
	var prev *SeekPoint
	for i := range table.Points {
		point := &table.Points[i]
		if point.SampleNum == PlaceholderPoint {
			prev = point
			continue
		}
		if prev != nil {
			switch {
			case prev.SampleNum == PlaceholderPoint:
				return errors.Wrapf(bits.ErrDataFormat, "meta.SeekTable.Validate: seek point %d follows a placeholder point", i)
			case point.SampleNum <= prev.SampleNum:
				return errors.Wrapf(bits.ErrDataFormat, "meta.SeekTable.Validate: sample number %d of seek point %d not above %d", point.SampleNum, i, prev.SampleNum)
			case point.Offset < prev.Offset:
				return errors.Wrapf(bits.ErrDataFormat, "meta.SeekTable.Validate: offset %d of seek point %d below %d", point.Offset, i, prev.Offset)
			}
		}
		prev = point
	}
	return nil
}

// BestPoint returns the last seek point whose sample number is at or before
// the target sample. The boolean result is false if no such point exists.
func (table *SeekTable) BestPoint(target uint64) (SeekPoint, bool) {
	var best SeekPoint
	found := false
	for _, point := range table.Points {
		if point.SampleNum == PlaceholderPoint || point.SampleNum > target {
			break
		}
		best, found = point, true
	}
	return best, found
}

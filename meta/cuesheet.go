package meta

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
	"github.com/seekflac/flac/internal/bits"
)

// A CueSheet metadata block stores track and index points, compatible with Red
// Book CD digital audio discs, as well as other CD-DA metadata such as the media
// catalog number and track ISRCs.
//
// ref: https://www.xiph.org/flac/format.html#metadata_block_cuesheet
type CueSheet struct {
	// Media catalog number, in ASCII printable characters 0x20-0x7E. Trailing
	// NUL padding is removed.
	MCN string
	// Number of lead-in samples; only meaningful for CD-DA cue sheets, 0
	// otherwise.
	NLeadInSamples uint64
	// Specifies if the cue sheet corresponds to a Compact Disc.
	IsCompactDisc bool
	// One or more tracks. The last track is the lead-out track, numbered 170 for
	// CD-DA and 255 otherwise.
	Tracks []CueSheetTrack
}

// A CueSheetTrack contains information about a track within a CueSheet.
type CueSheetTrack struct {
	// Track offset in samples, relative to the beginning of the audio stream.
	// For CD-DA it is a multiple of 588 samples (1/75th of a second at 44.1
	// kHz).
	Offset uint64
	// Track number; 0 is reserved for the lead-in.
	Num uint8
	// Track ISRC, a 12-digit alphanumeric code; empty if absent.
	ISRC string
	// The track type: true for audio, false for non-audio.
	IsAudio bool
	// Specifies if the track has pre-emphasis.
	HasPreEmphasis bool
	// Index points; at least one for every track except the lead-out track,
	// which has none.
	Indicies []CueSheetTrackIndex
}

// A CueSheetTrackIndex contains information about an index point in a track.
type CueSheetTrackIndex struct {
	// Offset in samples, relative to the track offset.
	Offset uint64
	// Index point number; 0 denotes the track pre-gap.
	Num uint8
}

// ParseCueSheet parses the body of a CueSheet metadata block and validates it.
//
// Cue sheet format (pseudo code):
//
//	type METADATA_BLOCK_CUESHEET struct {
//	   mcn              [128]byte
//	   nlead_in_samples uint64
//	   is_compact_disc  bool
//	   _                uint7
//	   _                [258]byte
//	   ntracks          uint8
//	   tracks           [ntracks]track
//	}
//
//	type track struct {
//	   offset           uint64
//	   num              uint8
//	   isrc             [12]byte
//	   is_audio         bool // 0: audio, 1: non-audio.
//	   has_pre_emphasis bool
//	   _                uint6
//	   _                [13]byte
//	   nindicies        uint8
//	   indicies         [nindicies]track_index
//	}
//
//	type track_index struct {
//	   offset uint64
//	   num    uint8
//	   _      [3]byte
//	}
func ParseCueSheet(data []byte) (*CueSheet, error) {
	const fn = "meta.ParseCueSheet"
	fail := func(format string, args ...interface{}) error {
		return errors.Wrap(bits.ErrDataFormat, fn+": "+fmt.Sprintf(format, args...))
	}
	b := &body{fn: fn, data: data}
	mcn, err := b.bytes(128)
	if err != nil {
		return nil, err
	}
	cs := &CueSheet{MCN: stringFromSZ(mcn)}
	for _, r := range cs.MCN {
		if r < 0x20 || r > 0x7E {
			return nil, fail("invalid character in media catalog number; expected >= 0x20 and <= 0x7E, got 0x%02X", r)
		}
	}
	if cs.NLeadInSamples, err = b.uint64(); err != nil {
		return nil, err
	}
	flags, err := b.uint8()
	if err != nil {
		return nil, err
	}
	cs.IsCompactDisc = flags&0x80 != 0
	if flags&0x7F != 0 {
		return nil, fail("all reserved bits must be 0")
	}
	if err := b.zero(258); err != nil {
		return nil, err
	}
	if !cs.IsCompactDisc && cs.NLeadInSamples != 0 {
		return nil, fail("invalid lead-in sample count for non CD-DA; expected 0, got %d", cs.NLeadInSamples)
	}

	ntracks, err := b.uint8()
	if err != nil {
		return nil, err
	}
	switch {
	case ntracks < 1:
		return nil, fail("at least one track (the lead-out track) is required")
	case cs.IsCompactDisc && ntracks > 100:
		return nil, fail("too many tracks for CD-DA cue sheet; expected <= 100, got %d", ntracks)
	}
	cs.Tracks = make([]CueSheetTrack, ntracks)
	nums := make(map[uint8]bool)
	for i := range cs.Tracks {
		track := &cs.Tracks[i]
		leadOut := i == len(cs.Tracks)-1
		if track.Offset, err = b.uint64(); err != nil {
			return nil, err
		}
		if cs.IsCompactDisc && track.Offset%588 != 0 {
			return nil, fail("invalid track offset %d for CD-DA; must be evenly divisible by 588", track.Offset)
		}
		if track.Num, err = b.uint8(); err != nil {
			return nil, err
		}
		switch {
		case track.Num == 0:
			return nil, fail("track number 0 not allowed")
		case nums[track.Num]:
			return nil, fail("duplicate track number %d", track.Num)
		case leadOut && cs.IsCompactDisc && track.Num != 170:
			return nil, fail("invalid lead-out track number for CD-DA; expected 170, got %d", track.Num)
		case leadOut && !cs.IsCompactDisc && track.Num != 255:
			return nil, fail("invalid lead-out track number for non CD-DA; expected 255, got %d", track.Num)
		case !leadOut && cs.IsCompactDisc && track.Num > 99:
			return nil, fail("invalid track number for CD-DA; expected <= 99, got %d", track.Num)
		}
		nums[track.Num] = true
		isrc, err := b.bytes(12)
		if err != nil {
			return nil, err
		}
		track.ISRC = stringFromSZ(isrc)
		flags, err := b.uint8()
		if err != nil {
			return nil, err
		}
		track.IsAudio = flags&0x80 == 0
		track.HasPreEmphasis = flags&0x40 != 0
		if flags&0x3F != 0 {
			return nil, fail("all reserved bits must be 0")
		}
		if err := b.zero(13); err != nil {
			return nil, err
		}

		n, err := b.uint8()
		if err != nil {
			return nil, err
		}
		switch {
		case leadOut && n != 0:
			return nil, fail("invalid number of index points for the lead-out track; expected 0, got %d", n)
		case !leadOut && n < 1:
			return nil, fail("invalid number of index points; expected >= 1, got %d", n)
		case cs.IsCompactDisc && n > 100:
			return nil, fail("invalid number of index points for CD-DA; expected <= 100, got %d", n)
		}
		if n == 0 {
			continue
		}
		track.Indicies = make([]CueSheetTrackIndex, n)
		for j := range track.Indicies {
			index := &track.Indicies[j]
			if index.Offset, err = b.uint64(); err != nil {
				return nil, err
			}
			if index.Num, err = b.uint8(); err != nil {
				return nil, err
			}
			if err := b.zero(3); err != nil {
				return nil, err
			}
		}
	}
	if len(b.data) != 0 {
		return nil, fail("%d trailing bytes after the last track", len(b.data))
	}
	return cs, nil
}

// stringFromSZ returns the string stored in buf, terminated at the first NUL
// character.
func stringFromSZ(buf []byte) string {
	if pos := bytes.IndexByte(buf, 0); pos != -1 {
		buf = buf[:pos]
	}
	return string(buf)
}

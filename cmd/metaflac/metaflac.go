// metaflac lists the metadata blocks of FLAC files, in the output format of the
// reference metaflac tool.
//
// Usage:
//
//	metaflac [OPTION]... FILE...
package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/mewkiz/pkg/errutil"
	"github.com/seekflac/flac"
	"github.com/seekflac/flac/meta"
)

// flagBlockNum contains an optional comma-separated list of block numbers to
// display.
var flagBlockNum string

func init() {
	flag.StringVar(&flagBlockNum, "block-number", "", "An optional comma-separated list of block numbers to display.")
	flag.Usage = usage
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: metaflac [OPTION]... FILE...")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Flags:")
	flag.PrintDefaults()
}

func main() {
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	blockNums, err := parseBlockNums(flagBlockNum)
	if err != nil {
		log.Fatalf("%+v", err)
	}
	for _, path := range flag.Args() {
		if err := list(path, blockNums); err != nil {
			log.Fatalf("%+v", err)
		}
	}
}

// parseBlockNums parses the comma-separated list of the "-block-number" flag. A
// nil slice selects all blocks.
func parseBlockNums(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	var blockNums []int
	for _, raw := range strings.Split(s, ",") {
		blockNum, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || blockNum < 0 {
			return nil, errutil.Newf("invalid block number %q", raw)
		}
		blockNums = append(blockNums, blockNum)
	}
	return blockNums, nil
}

// list prints the selected metadata blocks of the given FLAC file.
func list(path string, blockNums []int) error {
	dec, err := flac.Open(path)
	if err != nil {
		return err
	}
	defer dec.Close()
	blocks, err := dec.ReadAllMetadata()
	if err != nil {
		return err
	}
	if blockNums == nil {
		for blockNum, block := range blocks {
			listBlock(block, blockNum)
		}
		return nil
	}
	// Only list blocks specified in the "-block-number" command line flag.
	for _, blockNum := range blockNums {
		if blockNum < len(blocks) {
			listBlock(blocks[blockNum], blockNum)
		}
	}
	return nil
}

func listBlock(block *meta.Block, blockNum int) {
	listHeader(&block.Header, blockNum)
	switch body := block.Body.(type) {
	case *meta.StreamInfo:
		listStreamInfo(body)
	case *meta.Application:
		listApplication(body)
	case *meta.SeekTable:
		listSeekTable(body)
	case *meta.VorbisComment:
		listVorbisComment(body)
	case *meta.CueSheet:
		listCueSheet(body)
	case *meta.Picture:
		listPicture(body)
	case nil:
		// Reserved block types are kept opaque.
		fmt.Printf("  data:\n")
		fmt.Print(hex.Dump(block.Data))
	}
}

// typeName maps from metadata block type to a string version of its name.
var typeName = map[meta.Type]string{
	meta.TypeStreamInfo:    "STREAMINFO",
	meta.TypePadding:       "PADDING",
	meta.TypeApplication:   "APPLICATION",
	meta.TypeSeekTable:     "SEEKTABLE",
	meta.TypeVorbisComment: "VORBIS_COMMENT",
	meta.TypeCueSheet:      "CUESHEET",
	meta.TypePicture:       "PICTURE",
}

// Example:
//
//	METADATA block #0
//	  type: 0 (STREAMINFO)
//	  is last: false
//	  length: 34
func listHeader(header *meta.Header, blockNum int) {
	name, ok := typeName[header.Type]
	if !ok {
		name = "UNKNOWN"
	}
	fmt.Printf("METADATA block #%d\n", blockNum)
	fmt.Printf("  type: %d (%s)\n", header.Type, name)
	fmt.Printf("  is last: %t\n", header.IsLast)
	fmt.Printf("  length: %d\n", header.Length)
}

// Example:
//
//	minimum blocksize: 4608 samples
//	maximum blocksize: 4608 samples
//	minimum framesize: 0 bytes
//	maximum framesize: 19024 bytes
//	sample_rate: 44100 Hz
//	channels: 2
//	bits-per-sample: 16
//	total samples: 151007220
//	MD5 signature: 2e6238f5d9fe5c19f3ead628f750fd3d
func listStreamInfo(si *meta.StreamInfo) {
	fmt.Printf("  minimum blocksize: %d samples\n", si.BlockSizeMin)
	fmt.Printf("  maximum blocksize: %d samples\n", si.BlockSizeMax)
	fmt.Printf("  minimum framesize: %d bytes\n", si.FrameSizeMin)
	fmt.Printf("  maximum framesize: %d bytes\n", si.FrameSizeMax)
	fmt.Printf("  sample_rate: %d Hz\n", si.SampleRate)
	fmt.Printf("  channels: %d\n", si.NChannels)
	fmt.Printf("  bits-per-sample: %d\n", si.BitsPerSample)
	fmt.Printf("  total samples: %d\n", si.NSamples)
	fmt.Printf("  MD5 signature: %x\n", si.MD5sum)
}

func listApplication(app *meta.Application) {
	fmt.Printf("  application ID: %x (%v)\n", string(app.ID), app.ID)
	fmt.Println("  data contents:")
	if len(app.Data) > 0 {
		fmt.Print(hex.Dump(app.Data))
	}
}

// Example:
//
//	seek points: 17
//	  point 0: sample_number=0, stream_offset=0, frame_samples=4608
//	  point 1: sample_number=2419200, stream_offset=3733871, frame_samples=4608
func listSeekTable(st *meta.SeekTable) {
	fmt.Printf("  seek points: %d\n", len(st.Points))
	for pointNum, point := range st.Points {
		if point.SampleNum == meta.PlaceholderPoint {
			fmt.Printf("    point %d: PLACEHOLDER\n", pointNum)
			continue
		}
		fmt.Printf("    point %d: sample_number=%d, stream_offset=%d, frame_samples=%d\n", pointNum, point.SampleNum, point.Offset, point.NSamples)
	}
}

func listVorbisComment(vc *meta.VorbisComment) {
	fmt.Printf("  vendor string: %s\n", vc.Vendor)
	fmt.Printf("  comments: %d\n", len(vc.Tags))
	for tagNum, tag := range vc.Tags {
		fmt.Printf("    comment[%d]: %s=%s\n", tagNum, tag[0], tag[1])
	}
}

// Example:
//
//	media catalog number:
//	lead-in: 88200
//	is CD: true
//	number of tracks: 18
//	  track[0]
//	    offset: 0
//	    number: 1
//	    ISRC:
//	    type: AUDIO
//	    pre-emphasis: false
//	    number of index points: 1
//	      index[0]
//	        offset: 0
//	        number: 1
//	  ...
//	  track[17]
//	    offset: 151007220
//	    number: 170 (LEAD-OUT)
func listCueSheet(cs *meta.CueSheet) {
	fmt.Printf("  media catalog number: %s\n", cs.MCN)
	fmt.Printf("  lead-in: %d\n", cs.NLeadInSamples)
	fmt.Printf("  is CD: %t\n", cs.IsCompactDisc)
	fmt.Printf("  number of tracks: %d\n", len(cs.Tracks))
	for trackNum, track := range cs.Tracks {
		fmt.Printf("    track[%d]\n", trackNum)
		fmt.Printf("      offset: %d\n", track.Offset)
		if trackNum == len(cs.Tracks)-1 {
			fmt.Printf("      number: %d (LEAD-OUT)\n", track.Num)
			continue
		}
		fmt.Printf("      number: %d\n", track.Num)
		fmt.Printf("      ISRC: %s\n", track.ISRC)
		trackType := "DATA"
		if track.IsAudio {
			trackType = "AUDIO"
		}
		fmt.Printf("      type: %s\n", trackType)
		fmt.Printf("      pre-emphasis: %t\n", track.HasPreEmphasis)
		fmt.Printf("      number of index points: %d\n", len(track.Indicies))
		for indexNum, index := range track.Indicies {
			fmt.Printf("        index[%d]\n", indexNum)
			fmt.Printf("          offset: %d\n", index.Offset)
			fmt.Printf("          number: %d\n", index.Num)
		}
	}
}

// pictureTypeName maps from ID3v2 APIC picture type to its description.
var pictureTypeName = map[uint32]string{
	0:  "Other",
	1:  "32x32 pixels 'file icon' (PNG only)",
	2:  "Other file icon",
	3:  "Cover (front)",
	4:  "Cover (back)",
	5:  "Leaflet page",
	6:  "Media (e.g. label side of CD)",
	7:  "Lead artist/lead performer/soloist",
	8:  "Artist/performer",
	9:  "Conductor",
	10: "Band/Orchestra",
	11: "Composer",
	12: "Lyricist/text writer",
	13: "Recording Location",
	14: "During recording",
	15: "During performance",
	16: "Movie/video screen capture",
	17: "A bright coloured fish",
	18: "Illustration",
	19: "Band/artist logotype",
	20: "Publisher/Studio logotype",
}

func listPicture(pic *meta.Picture) {
	fmt.Printf("  type: %d (%s)\n", pic.Type, pictureTypeName[pic.Type])
	fmt.Printf("  MIME type: %s\n", pic.MIME)
	fmt.Printf("  description: %s\n", pic.Desc)
	fmt.Printf("  width: %d\n", pic.Width)
	fmt.Printf("  height: %d\n", pic.Height)
	fmt.Printf("  depth: %d\n", pic.Depth)
	fmt.Printf("  colors: %d", pic.NPalColors)
	if pic.NPalColors == 0 {
		fmt.Print(" (unindexed)")
	}
	fmt.Println()
	fmt.Printf("  data length: %d\n", len(pic.Data))
	fmt.Printf("  data:\n")
	fmt.Print(hex.Dump(pic.Data))
}

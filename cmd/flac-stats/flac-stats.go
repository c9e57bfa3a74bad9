// flac-stats decodes FLAC files and prints statistics about their audio frames.
//
// Usage:
//
//	flac-stats [OPTION]... FILE...
//
// Example output (abbreviated):
//
//	==================== Block sizes (samples) ====================
//
//	 4096: ***** (56)
//	 8192: ****************************************************** (177)
//
//	==================== Stereo coding modes ====================
//
//	Independent: **** (83)
//	Left-side  :  (3)
//	Right-side : ************************ (574)
//	Mid-side   : ****************************** (708)
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/kylelemons/godebug/pretty"
	"github.com/pkg/errors"
	"github.com/seekflac/flac"
	"github.com/seekflac/flac/frame"
	"github.com/seekflac/flac/meta"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: flac-stats [OPTION]... FILE...")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Flags:")
	flag.PrintDefaults()
}

func main() {
	// Parse command line arguments.
	var (
		// verbose output; print every frame header.
		verbose bool
	)
	flag.BoolVar(&verbose, "v", false, "verbose output")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	for _, path := range flag.Args() {
		s, err := collect(path, verbose)
		if err != nil {
			log.Fatalf("%+v", err)
		}
		s.print(os.Stdout)
	}
}

// stats holds the properties of every frame of a stream.
type stats struct {
	info       *meta.StreamInfo
	blockSizes []int
	frameSizes []int
	channels   []frame.Channels
}

// collect decodes every frame of the given FLAC file and records its
// properties.
func collect(path string, verbose bool) (*stats, error) {
	dec, err := flac.Open(path)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	if _, err := dec.ReadAllMetadata(); err != nil {
		return nil, err
	}
	s := &stats{info: dec.Info}
	samples := make([][]int32, dec.Info.NChannels)
	for ch := range samples {
		samples[ch] = make([]int32, frame.MaxBlockSize)
	}
	for {
		hdr, err := dec.ReadFrame(samples, 0)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, err
		}
		if verbose {
			pretty.Print(hdr)
		}
		s.add(hdr)
	}
	return s, nil
}

// add records the properties of a decoded frame.
func (s *stats) add(hdr *frame.Header) {
	s.blockSizes = append(s.blockSizes, int(hdr.BlockSize))
	s.frameSizes = append(s.frameSizes, hdr.FrameSize)
	s.channels = append(s.channels, hdr.Channels)
}

// print writes the bar graphs of the collected statistics to w.
func (s *stats) print(w io.Writer) {
	s.printBlockSizes(w)
	s.printFrameSizes(w)
	s.printCompressionRatios(w)
	if s.info.NChannels == 2 {
		s.printStereoModes(w)
	}
}

// sortedKeys returns the keys of m in increasing order.
func sortedKeys(m map[int]int) []int {
	keys := make([]int, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Ints(keys)
	return keys
}

func (s *stats) printBlockSizes(w io.Writer) {
	counts := make(map[int]int)
	for _, bs := range s.blockSizes {
		counts[bs]++
	}
	var labels []string
	var values []float64
	for _, bs := range sortedKeys(counts) {
		labels = append(labels, fmt.Sprintf("%5d", bs))
		values = append(values, float64(counts[bs]))
	}
	printBarGraph(w, "Block sizes (samples)", labels, values)
}

// frameSizeStep is the bucket width in bytes of the frame size histogram.
const frameSizeStep = 1000

func (s *stats) printFrameSizes(w io.Writer) {
	if len(s.frameSizes) == 0 {
		printBarGraph(w, "Frame sizes (bytes)", nil, nil)
		return
	}
	// Frame sizes are rounded to the nearest bucket; empty buckets between the
	// smallest and largest are kept.
	counts := make(map[int]int)
	first, last := math.MaxInt32, 0
	for _, size := range s.frameSizes {
		key := int(math.Round(float64(size) / frameSizeStep))
		counts[key]++
		if key < first {
			first = key
		}
		if key > last {
			last = key
		}
	}
	width := len(strconv.Itoa(last * frameSizeStep))
	var labels []string
	var values []float64
	for key := first; key <= last; key++ {
		labels = append(labels, fmt.Sprintf("%*d", width, key*frameSizeStep))
		values = append(values, float64(counts[key]))
	}
	printBarGraph(w, "Frame sizes (bytes)", labels, values)
}

func (s *stats) printCompressionRatios(w io.Writer) {
	counts := make(map[int]int)
	bytes := make(map[int]int)
	for i, bs := range s.blockSizes {
		counts[bs]++
		bytes[bs] += s.frameSizes[i]
	}
	var labels []string
	var values []float64
	for _, bs := range sortedKeys(counts) {
		// Size of the unencoded audio samples of the frames.
		raw := float64(counts[bs]) * float64(bs) * float64(s.info.NChannels) * float64(s.info.BitsPerSample) / 8
		labels = append(labels, fmt.Sprintf("%5d", bs))
		values = append(values, float64(bytes[bs])/raw)
	}
	printBarGraph(w, "Average compression ratio at block sizes", labels, values)
}

func (s *stats) printStereoModes(w io.Writer) {
	labels := []string{"Independent", "Left-side", "Right-side", "Mid-side"}
	values := make([]float64, len(labels))
	for _, channels := range s.channels {
		switch channels {
		case frame.ChannelsLR:
			values[0]++
		case frame.ChannelsLeftSide:
			values[1]++
		case frame.ChannelsSideRight:
			values[2]++
		case frame.ChannelsMidSide:
			values[3]++
		default:
			// Frames are checked against the channel count of StreamInfo.
			panic(errors.Errorf("invalid channel assignment %v in stereo stream", channels))
		}
	}
	printBarGraph(w, "Stereo coding modes", labels, values)
}

// maxBarWidth is the width in characters of the largest bar of a graph.
const maxBarWidth = 100

// printBarGraph writes a bar graph of the given values to w, with bars scaled
// relative to the largest value.
func printBarGraph(w io.Writer, heading string, labels []string, values []float64) {
	fmt.Fprintf(w, "==================== %s ====================\n\n", heading)
	labelWidth := 0
	for _, label := range labels {
		if len(label) > labelWidth {
			labelWidth = len(label)
		}
	}
	maxValue := 1.0
	for _, value := range values {
		maxValue = math.Max(value, maxValue)
	}
	for i, label := range labels {
		value := values[i]
		bar := strings.Repeat("*", int(math.Round(value/maxValue*maxBarWidth)))
		fmt.Fprintf(w, "%-*s: %s (%s)\n", labelWidth, label, bar, formatValue(value))
	}
	fmt.Fprint(w, "\n\n")
}

// formatValue formats counts as integers and ratios with four decimals.
func formatValue(value float64) string {
	if value == math.Trunc(value) {
		return strconv.FormatInt(int64(value), 10)
	}
	return strconv.FormatFloat(value, 'f', 4, 64)
}

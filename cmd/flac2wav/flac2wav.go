// flac2wav is a tool which converts FLAC files to WAV files.
//
// Usage:
//
//	flac2wav [OPTION]... FILE...
//
// The MD5 checksum of the decoded audio is verified against the StreamInfo
// block when the entire stream is converted.
package main

import (
	"bytes"
	"crypto/md5"
	"flag"
	"fmt"
	"hash"
	"log"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/mewkiz/pkg/errutil"
	"github.com/mewkiz/pkg/osutil"
	"github.com/mewkiz/pkg/pathutil"
	"github.com/pkg/errors"
	"github.com/seekflac/flac"
	"github.com/seekflac/flac/frame"
)

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: flac2wav [OPTION]... FILE...")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Flags:")
	flag.PrintDefaults()
}

func main() {
	// Parse command line arguments.
	var (
		// force overwrite WAV file if already present.
		force bool
		// first sample to convert.
		start uint64
	)
	flag.BoolVar(&force, "f", false, "force overwrite")
	flag.Uint64Var(&start, "seek", 0, "first sample to convert")
	flag.Usage = usage
	flag.Parse()
	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	for _, path := range flag.Args() {
		if err := flac2wav(path, start, force); err != nil {
			log.Fatalf("%+v", err)
		}
	}
}

// flac2wav converts the provided FLAC file to a WAV file, starting at the
// given sample.
func flac2wav(path string, start uint64, force bool) error {
	// Open FLAC file.
	dec, err := flac.Open(path)
	if err != nil {
		return err
	}
	defer dec.Close()
	if _, err := dec.ReadAllMetadata(); err != nil {
		return err
	}
	info := dec.Info
	if info.BitsPerSample%8 != 0 {
		return errutil.Newf("unsupported sample size %d of %q; only whole-byte sample sizes are supported", info.BitsPerSample, path)
	}

	// Create WAV file.
	wavPath := pathutil.TrimExt(path) + ".wav"
	if !force && osutil.Exists(wavPath) {
		return errutil.Newf("WAV file %q already present; use -f flag to force overwrite", wavPath)
	}
	fw, err := os.Create(wavPath)
	if err != nil {
		return errors.WithStack(err)
	}
	defer fw.Close()

	// Create WAV encoder.
	nchannels, bps := int(info.NChannels), int(info.BitsPerSample)
	const wavPCM = 1
	enc := wav.NewEncoder(fw, int(info.SampleRate), bps, nchannels, wavPCM)
	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: nchannels,
			SampleRate:  int(info.SampleRate),
		},
		SourceBitDepth: bps,
	}

	// Decode FLAC audio samples.
	samples := make([][]int32, nchannels)
	for ch := range samples {
		samples[ch] = make([]int32, frame.MaxBlockSize)
	}
	var md5sum hash.Hash
	var n int
	if start > 0 {
		n, err = dec.SeekAndReadAudioBlock(start, samples, 0)
	} else {
		md5sum = md5.New()
		n, err = dec.ReadAudioBlock(samples, 0)
	}
	for ; n > 0; n, err = dec.ReadAudioBlock(samples, 0) {
		if md5sum != nil {
			if err := frame.Hash(md5sum, samples, 0, n, uint(bps)); err != nil {
				return err
			}
		}
		// Encode WAV audio samples.
		buf.Data = interleave(buf.Data[:0], samples, n, bps)
		if err := enc.Write(buf); err != nil {
			return errors.WithStack(err)
		}
	}
	if err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return errors.WithStack(err)
	}

	// Verify MD5 checksum of the decoded audio samples.
	if md5sum != nil {
		switch got := md5sum.Sum(nil); {
		case !info.HasMD5():
			log.Printf("warning: MD5 checksum of %q is blank", path)
		case !bytes.Equal(got, info.MD5sum[:]):
			return errutil.Newf("MD5 checksum mismatch of %q; expected %032x, got %032x", path, info.MD5sum[:], got)
		}
	}
	return nil
}

// interleave appends the first n samples of each channel to data, interleaved
// as in WAV files.
func interleave(data []int, samples [][]int32, n, bps int) []int {
	for i := 0; i < n; i++ {
		for _, subblock := range samples {
			sample := int(subblock[i])
			if bps == 8 {
				// 8-bit WAV samples are unsigned.
				sample += 128
			}
			data = append(data, sample)
		}
	}
	return data
}

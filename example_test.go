package flac_test

import (
	"bytes"
	"fmt"
	"log"

	"github.com/seekflac/flac"
	"github.com/seekflac/flac/internal/flacenc"
	"github.com/seekflac/flac/meta"
)

// ramp returns a mono stream of n samples counting up from 0.
func ramp(n int) []byte {
	samples := make([]int32, n)
	for i := range samples {
		samples[i] = int32(i)
	}
	buf := new(bytes.Buffer)
	info := meta.StreamInfo{SampleRate: 44100, BitsPerSample: 24}
	opts := flacenc.Options{BlockSizes: []int{4096}, SeekInterval: 44100}
	if _, err := flacenc.EncodeStream(buf, info, [][]int32{samples}, opts); err != nil {
		log.Fatalf("%+v", err)
	}
	return buf.Bytes()
}

func ExampleDecoder_ReadAllMetadata() {
	dec, err := flac.New(bytes.NewReader(ramp(100000)))
	if err != nil {
		log.Fatal(err)
	}
	defer dec.Close()
	blocks, err := dec.ReadAllMetadata()
	if err != nil {
		log.Fatal(err)
	}
	for i, block := range blocks {
		fmt.Printf("block %d: %v\n", i, block.Type)
	}
	fmt.Println("sample rate:", dec.Info.SampleRate)
	fmt.Println("samples:", dec.Info.NSamples)
	// Output:
	// block 0: stream info
	// block 1: seek table
	// sample rate: 44100
	// samples: 100000
}

func ExampleDecoder_SeekAndReadAudioBlock() {
	dec, err := flac.New(bytes.NewReader(ramp(100000)))
	if err != nil {
		log.Fatal(err)
	}
	defer dec.Close()
	if _, err := dec.ReadAllMetadata(); err != nil {
		log.Fatal(err)
	}
	samples := [][]int32{make([]int32, 4096)}
	// Sample 50000 lies in the frame of samples [49152, 53248).
	n, err := dec.SeekAndReadAudioBlock(50000, samples, 0)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(n, samples[0][:3])
	// Continue with the next frame.
	n, err = dec.ReadAudioBlock(samples, 0)
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(n, samples[0][:3])
	// Output:
	// 3248 [50000 50001 50002]
	// 4096 [53248 53249 53250]
}

package bits_test

import (
	"bytes"
	"testing"

	"github.com/icza/bitio"
	"github.com/icza/mighty"
	"github.com/pkg/errors"
	"github.com/seekflac/flac/internal/bits"
)

func TestUnary(t *testing.T) {
	w := new(bytes.Buffer)
	bw := bitio.NewWriter(w)

	var want uint64
	for ; want < 1000; want++ {
		// Write unary
		if err := bits.WriteUnary(bw, want); err != nil {
			t.Fatalf("error writing unary: %v", err)
		}
		// Flush buffer
		if err := bw.Close(); err != nil {
			t.Fatalf("error closing the buffer: %v", err)
		}

		// Read written unary
		r := bits.NewReader(w)
		got, err := r.ReadUnary()
		if err != nil {
			t.Fatalf("error reading unary: %v", err)
		}

		if got != want {
			t.Fatalf("the written and read unary doesn't match the original. got: %v, expected: %v", got, want)
		}
	}
}

func TestUnaryEndOfStream(t *testing.T) {
	eq := mighty.Eq(t)
	br := bits.NewReader(bytes.NewReader([]byte{0x00, 0x00}))
	_, err := br.ReadUnary()
	eq(true, errors.Is(err, bits.ErrEndOfStream))
}

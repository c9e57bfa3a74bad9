package bits

import "github.com/pkg/errors"

// Error kinds reported while reading a FLAC bitstream. Errors returned by the
// decoder wrap one of these; use errors.Is to test for them.
var (
	// ErrEndOfStream is returned when the stream ends in the middle of a
	// structure, i.e. after at least one of its bits has been consumed.
	ErrEndOfStream = errors.New("unexpected end of stream")
	// ErrDataFormat is returned for malformed or inconsistent bitstreams.
	ErrDataFormat = errors.New("invalid FLAC data")
	// ErrUnsupported is returned when the operation requires a capability the
	// underlying source lacks, such as seeking.
	ErrUnsupported = errors.New("unsupported operation")
	// ErrAlignment is returned when a byte oriented operation is attempted at a
	// bit position which is not a multiple of 8.
	ErrAlignment = errors.New("not at a byte boundary")
	// ErrInvalidArgument is returned for caller supplied arguments outside of
	// their documented range.
	ErrInvalidArgument = errors.New("invalid argument")
)

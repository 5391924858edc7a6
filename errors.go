package subpic

import "errors"

// Decoding error kinds. Every fallible operation of this module and its
// subpackages wraps one of these sentinels so callers can classify failures
// with errors.Is() without string matching.
var (
	// ErrMalformedHeader is returned when a segment or packet magic/size field
	// is inconsistent with the stream. It is terminal for the stream it
	// occurred on.
	ErrMalformedHeader = errors.New("malformed header")
	// ErrUnexpectedEOF is returned when the input ends before a declared
	// length or pixel count has been satisfied.
	ErrUnexpectedEOF = errors.New("unexpected end of input")
	// ErrMalformedRLE is returned on an impossible run code or a framing
	// violation inside a bitmap decode.
	ErrMalformedRLE = errors.New("malformed RLE data")
	// ErrIndexOutOfRange is returned when a decoded pixel index exceeds the
	// active palette size.
	ErrIndexOutOfRange = errors.New("palette index out of range")
	// ErrUnsupportedSegment is returned for a recognized but not implemented
	// segment type when the caller asked for it explicitly. During normal
	// stream decoding such segments are skipped, not fatal.
	ErrUnsupportedSegment = errors.New("unsupported segment type")
	// ErrInconsistentTiming is returned when an end time precedes its start
	// time or event offsets are not monotonically increasing.
	ErrInconsistentTiming = errors.New("inconsistent timing")
)

// Package pgs decodes Presentation Graphic Stream subtitles, the Blu-ray
// format carried by .sup files: a flat concatenation of self describing
// segments holding palettes, run length encoded bitmaps and composition
// timing.
//
// Format reference:
// https://blog.thescorpius.com/index.php/2017/07/15/presentation-graphic-stream-sup-files-bluray-subtitle-format/
package pgs

import (
	"errors"
	"fmt"
	"io"
	"time"

	subpic "github.com/subpix/go-subpic"
)

const (
	// ClockFrequency is the presentation and decoding timestamps clock base
	// frequency.
	ClockFrequency = 90_000 // 90 kHz

	segmentHeaderLen = 13
)

// magicNumber starts every segment header.
var magicNumber = [2]byte{0x50, 0x47} // "PG"

// SegmentType is the type code of a stream segment.
type SegmentType byte

// Segment type codes defined by the format.
const (
	SegmentPDS SegmentType = 0x14 // Palette Definition Segment
	SegmentODS SegmentType = 0x15 // Object Definition Segment
	SegmentPCS SegmentType = 0x16 // Presentation Composition Segment
	SegmentWDS SegmentType = 0x17 // Window Definition Segment
	SegmentEND SegmentType = 0x80 // End of Display Set
)

// Known reports whether the type code is one defined by the format. Unknown
// codes are carried through by the segment reader so that streams with
// vendor extensions remain decodable.
func (st SegmentType) Known() bool {
	switch st {
	case SegmentPDS, SegmentODS, SegmentPCS, SegmentWDS, SegmentEND:
		return true
	default:
		return false
	}
}

// String implements the fmt.Stringer interface.
// It returns a string that represents the value of the receiver in a form suitable for printing.
// See https://pkg.go.dev/fmt#Stringer
func (st SegmentType) String() string {
	switch st {
	case SegmentPDS:
		return "PDS"
	case SegmentODS:
		return "ODS"
	case SegmentPCS:
		return "PCS"
	case SegmentWDS:
		return "WDS"
	case SegmentEND:
		return "END"
	default:
		return fmt.Sprintf("<unknown segment type 0x%02X>", byte(st))
	}
}

// Segment is one self describing unit of a stream: a typed payload with its
// presentation and decoding timestamps.
type Segment struct {
	Type         SegmentType
	Presentation time.Duration
	Decoding     time.Duration
	Payload      []byte
}

// SegmentReader is a lazy, finite, non restartable iterator over the
// segments of a stream. Framing failures (bad magic, truncated payload) are
// unrecoverable: once one occurred every subsequent Next call returns it.
type SegmentReader struct {
	cursor *subpic.Cursor
	err    error
}

// NewSegmentReader creates a segment iterator over a raw stream.
func NewSegmentReader(stream io.Reader) *SegmentReader {
	return &SegmentReader{
		cursor: subpic.NewCursor(stream),
	}
}

// Next reads the next segment. It returns io.EOF on a clean end of stream,
// an error wrapping subpic.ErrMalformedHeader if the magic number is absent
// and one wrapping subpic.ErrUnexpectedEOF if the stream ends inside a
// segment.
func (sr *SegmentReader) Next() (segment Segment, err error) {
	if sr.err != nil {
		err = sr.err
		return
	}
	defer func() {
		if err != nil {
			sr.err = err
		}
	}()
	// Header
	header, err := sr.cursor.ReadBytes(segmentHeaderLen)
	if err != nil {
		if errors.Is(err, io.EOF) {
			// clean end of stream at a segment boundary
			return
		}
		err = fmt.Errorf("failed to read segment header: %w", err)
		return
	}
	if header[0] != magicNumber[0] || header[1] != magicNumber[1] {
		err = fmt.Errorf("segment magic number not found (got 0x%02X%02X): %w",
			header[0], header[1], subpic.ErrMalformedHeader)
		return
	}
	segment.Presentation = ticksToDuration(uint32(header[2])<<24 | uint32(header[3])<<16 | uint32(header[4])<<8 | uint32(header[5]))
	segment.Decoding = ticksToDuration(uint32(header[6])<<24 | uint32(header[7])<<16 | uint32(header[8])<<8 | uint32(header[9]))
	segment.Type = SegmentType(header[10])
	payloadLen := int(header[11])<<8 | int(header[12])
	// Payload
	if payloadLen > 0 {
		if segment.Payload, err = sr.cursor.ReadBytes(payloadLen); err != nil {
			err = fmt.Errorf("truncated %s segment (declared %d payload bytes): %w",
				segment.Type, payloadLen, subpic.ErrUnexpectedEOF)
			return
		}
	}
	return
}

func ticksToDuration(ticks uint32) time.Duration {
	return time.Duration(uint64(ticks) * uint64(time.Second) / ClockFrequency)
}

package pgs

import (
	"fmt"
	"io"

	subpic "github.com/subpix/go-subpic"
)

// RunReader is the lazy, pull based decoder of the byte oriented RLE dialect
// used by Object Definition Segments. It implements subpic.RunReader.
//
// Codes: a literal non zero byte is one pixel of that color index; a zero
// byte introduces a run header of 1 to 3 more bytes where the two high bits
// of the first select the length encoding and the presence of an explicit
// color; a zero length run (00 00) ends the current line. A line ended
// before the declared width is filled is padded with the background index 0,
// which is a quirk of the format, not an error.
//
// The total pixel count (width*height) is known up front and decoding stops
// exactly there. Restart by creating a new reader on the same payload.
type RunReader struct {
	data     []byte
	width    int
	height   int
	position int
	column   int
	produced int
	err      error
}

// NewRunReader creates a decoder for one reassembled object data payload of
// the given dimensions.
func NewRunReader(data []byte, width, height int) *RunReader {
	return &RunReader{
		data:   data,
		width:  width,
		height: height,
	}
}

// Remaining returns the number of pixels left to produce.
func (rr *RunReader) Remaining() int {
	return rr.width*rr.height - rr.produced
}

// NextRun implements the subpic.RunReader interface. io.EOF is returned once
// width*height pixels have been produced.
func (rr *RunReader) NextRun() (run subpic.PixelRun, err error) {
	if rr.err != nil {
		err = rr.err
		return
	}
	defer func() {
		if err != nil && err != io.EOF {
			rr.err = err
		}
	}()
	for {
		if rr.Remaining() == 0 {
			err = io.EOF
			return
		}
		if rr.position >= len(rr.data) {
			err = fmt.Errorf("object data exhausted with %d pixels missing: %w",
				rr.Remaining(), subpic.ErrUnexpectedEOF)
			return
		}
		code := rr.data[rr.position]
		rr.position++
		if code != 0 {
			// literal byte, one pixel of that color
			run = subpic.PixelRun{Index: code, Count: 1}
			if err = rr.advance(run.Count); err != nil {
				return
			}
			return
		}
		if rr.position >= len(rr.data) {
			err = fmt.Errorf("object data exhausted inside a run header: %w", subpic.ErrUnexpectedEOF)
			return
		}
		header := rr.data[rr.position]
		rr.position++
		if header == 0 {
			// End of line: pad the remainder with the background index. A
			// line already complete just resets the column, and an empty
			// line yields one full background run.
			padding := rr.width - rr.column
			rr.column = 0
			if padding > 0 {
				run = subpic.PixelRun{Index: 0, Count: padding}
				rr.produced += padding
				return
			}
			continue
		}
		var colored, long bool
		length := int(header & 0x3F)
		colored = header&0x80 != 0
		long = header&0x40 != 0
		if long {
			if rr.position >= len(rr.data) {
				err = fmt.Errorf("object data exhausted inside a run header: %w", subpic.ErrUnexpectedEOF)
				return
			}
			length = length<<8 | int(rr.data[rr.position])
			rr.position++
		}
		run = subpic.PixelRun{Count: length}
		if colored {
			if rr.position >= len(rr.data) {
				err = fmt.Errorf("object data exhausted inside a run header: %w", subpic.ErrUnexpectedEOF)
				return
			}
			run.Index = rr.data[rr.position]
			rr.position++
		}
		if run.Count == 0 {
			err = fmt.Errorf("zero length run with %d pixels remaining on the line: %w",
				rr.width-rr.column, subpic.ErrMalformedRLE)
			return
		}
		if err = rr.advance(run.Count); err != nil {
			return
		}
		return
	}
}

// advance moves the line cursor. A run going past the declared width is a
// framing violation inside the decode. The column is only reset by the
// explicit end of line marker, a complete line stays at width until it.
func (rr *RunReader) advance(count int) (err error) {
	if rr.column+count > rr.width {
		err = fmt.Errorf("run of %d pixels at column %d exceeds the declared width %d: %w",
			count, rr.column, rr.width, subpic.ErrMalformedRLE)
		return
	}
	rr.column += count
	rr.produced += count
	return
}

// DecodeObjectData fully decodes a reassembled object data payload into an
// indexed image.
func DecodeObjectData(data []byte, width, height int) (*subpic.IndexedImage, error) {
	return subpic.CollectRuns(NewRunReader(data, width, height), width, height)
}

package vobsub

import (
	"fmt"
	"io"

	subpic "github.com/subpix/go-subpic"
)

// nibbleIterator reads a byte slice half a byte at a time, high nibble first.
type nibbleIterator struct {
	data []byte
	// instructions for next read
	index   int
	readLow bool
}

func (ni *nibbleIterator) Next() (nibble byte, ok bool) {
	if ni.Ended() {
		return
	}
	ok = true
	if !ni.readLow {
		nibble = (ni.data[ni.index] & 0b11110000) >> 4
	} else {
		nibble = ni.data[ni.index] & 0b00001111
		ni.index++
	}
	ni.readLow = !ni.readLow
	return
}

// Align moves the iterator to the next byte boundary, every RLE line starts
// aligned.
func (ni *nibbleIterator) Align() {
	if ni.readLow {
		ni.index++
		ni.readLow = false
	}
}

func (ni *nibbleIterator) Ended() bool {
	return ni.index >= len(ni.data)
}

// decodeRLECode reads one variable length RLE code from the nibble stream.
// Codes are 1 to 4 nibbles long, the leading zero nibbles selecting the
// longer forms:
//
//	1 nibble:  rrcc
//	2 nibbles: 00rr rrcc
//	3 nibbles: 0000 rrrr rrcc
//	4 nibbles: 0000 00rr rrrr rrcc
//
// A repeat of 0 (only encodable by the 4 nibbles form) means "fill to the end
// of the line".
func decodeRLECode(nibbles *nibbleIterator) (repeat int, colorCode uint8, err error) {
	var first, second, third, fourth byte
	var ok bool
	if first, ok = nibbles.Next(); !ok {
		err = fmt.Errorf("nibble stream exhausted: %w", subpic.ErrUnexpectedEOF)
		return
	}
	if first&0b1100 != 0 {
		repeat = int(first&0b1100) >> 2
		colorCode = first & 0b0011
		return
	}
	if second, ok = nibbles.Next(); !ok {
		err = fmt.Errorf("missing second nibble after 0b%04b: %w", first, subpic.ErrUnexpectedEOF)
		return
	}
	if first != 0 {
		repeat = int(first&0b0011)<<2 | int(second&0b1100)>>2
		colorCode = second & 0b0011
		return
	}
	if third, ok = nibbles.Next(); !ok {
		err = fmt.Errorf("missing third nibble after 0b%04b 0b%04b: %w",
			first, second, subpic.ErrUnexpectedEOF)
		return
	}
	if second&0b1100 != 0 {
		repeat = int(second)<<2 | int(third&0b1100)>>2
		colorCode = third & 0b0011
		return
	}
	if fourth, ok = nibbles.Next(); !ok {
		err = fmt.Errorf("missing fourth nibble after 0b%04b 0b%04b 0b%04b: %w",
			first, second, third, subpic.ErrUnexpectedEOF)
		return
	}
	repeat = int(second)<<6 | int(third)<<2 | int(fourth&0b1100)>>2
	colorCode = fourth & 0b0011
	return
}

// FieldReader is the lazy, pull based decoder of the nibble oriented RLE
// dialect over one field (the even or the odd display lines of a subtitle).
// It implements subpic.RunReader for an image of width x lines pixels.
//
// The repeat value 0 fills the current line to its end with the code color
// and the stream re-aligns on a byte boundary at every new line. A run
// overflowing the line is clamped at the line end, players do the same.
type FieldReader struct {
	nibbles  *nibbleIterator
	width    int
	lines    int
	column   int
	line     int
	produced int
	err      error
}

// NewFieldReader creates a decoder over the nibble stream of one field.
func NewFieldReader(data []byte, width, lines int) *FieldReader {
	return &FieldReader{
		nibbles: &nibbleIterator{data: data},
		width:   width,
		lines:   lines,
	}
}

// NextRun implements the subpic.RunReader interface. io.EOF is returned once
// width*lines pixels have been produced, trailing padding nibbles are never
// read.
func (fr *FieldReader) NextRun() (run subpic.PixelRun, err error) {
	if fr.err != nil {
		err = fr.err
		return
	}
	defer func() {
		if err != nil && err != io.EOF {
			fr.err = err
		}
	}()
	if fr.line >= fr.lines {
		err = io.EOF
		return
	}
	if fr.nibbles.Ended() {
		err = fmt.Errorf("field data exhausted with %d pixels missing: %w",
			fr.width*fr.lines-fr.produced, subpic.ErrUnexpectedEOF)
		return
	}
	repeat, colorCode, err := decodeRLECode(fr.nibbles)
	if err != nil {
		err = fmt.Errorf("failed to decode RLE code at line %d column %d: %w", fr.line, fr.column, err)
		return
	}
	remaining := fr.width - fr.column
	if repeat == 0 || repeat > remaining {
		// fill (or clamp) to the end of the line
		repeat = remaining
	}
	run = subpic.PixelRun{Index: colorCode, Count: repeat}
	fr.produced += repeat
	if fr.column += repeat; fr.column == fr.width {
		fr.column = 0
		fr.line++
		fr.nibbles.Align()
	}
	return
}

// decodeFields decodes the two interleaved RLE fields of a subtitle packet
// into a single indexed image: the first field holds the display lines 0, 2,
// 4... and the second the lines 1, 3, 5...
func decodeFields(payload []byte, control controlData, width, height int) (img *subpic.IndexedImage, err error) {
	first, second := control.firstField, control.secondField
	if first < subtitleHeadersTotalLen || second < first || second > len(payload) {
		err = fmt.Errorf("RLE field offsets %d/%d outside the %d bytes packet: %w",
			first, second, len(payload), subpic.ErrMalformedHeader)
		return
	}
	firstLines := (height + 1) / 2
	secondLines := height / 2
	firstRows, err := decodeFieldRows(payload[first:second], width, firstLines)
	if err != nil {
		err = fmt.Errorf("failed to decode first field: %w", err)
		return
	}
	var secondRows [][]subpic.PixelRun
	if secondLines > 0 {
		if secondRows, err = decodeFieldRows(payload[second:], width, secondLines); err != nil {
			err = fmt.Errorf("failed to decode second field: %w", err)
			return
		}
	}
	// interleave the two fields
	runs := make([]subpic.PixelRun, 0, height*2)
	for line := 0; line < height; line++ {
		if line%2 == 0 {
			runs = append(runs, firstRows[line/2]...)
		} else {
			runs = append(runs, secondRows[line/2]...)
		}
	}
	if img, err = subpic.ImageFromRuns(width, height, runs); err != nil {
		err = fmt.Errorf("failed to assemble the interlaced image: %w", err)
		return
	}
	return
}

// decodeFieldRows drains one field into its per line runs.
func decodeFieldRows(data []byte, width, lines int) (rows [][]subpic.PixelRun, err error) {
	img, err := subpic.CollectRuns(NewFieldReader(data, width, lines), width, lines)
	if err != nil {
		return
	}
	rows = make([][]subpic.PixelRun, lines)
	err = img.EachRun(func(x, y int, run subpic.PixelRun) error {
		rows[y] = append(rows[y], run)
		return nil
	})
	return
}

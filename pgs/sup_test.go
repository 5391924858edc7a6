package pgs

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	subpic "github.com/subpix/go-subpic"
)

// testPDSPayload defines 16 palette entries: index 0 fully transparent,
// every other entry opaque white.
func testPDSPayload() []byte {
	payload := []byte{0x00, 0x00} // palette id + version
	for i := 0; i < 16; i++ {
		alpha := byte(0xFF)
		if i == 0 {
			alpha = 0x00
		}
		payload = append(payload, byte(i), 235, 128, 128, alpha)
	}
	return payload
}

// solidRLE encodes a width x height image where every pixel is index.
func solidRLE(index byte, width, height int) []byte {
	var rle []byte
	for i := 0; i < height; i++ {
		rle = append(rle, 0x00, 0x80|byte(width), index, 0x00, 0x00)
	}
	return rle
}

// testODSPayload frames a single fragment object.
func testODSPayload(id uint16, width, height int, rle []byte) []byte {
	declared := len(rle) + 4
	payload := []byte{
		byte(id >> 8), byte(id), // object id
		0x00,                // version
		odsFlagFirstAndLast, // single fragment
		byte(declared >> 16), byte(declared >> 8), byte(declared),
		byte(width >> 8), byte(width),
		byte(height >> 8), byte(height),
	}
	return append(payload, rle...)
}

func ticks(d time.Duration) uint32 {
	return uint32(d * ClockFrequency / time.Second)
}

func TestSupParserSingleComposition(t *testing.T) {
	var stream bytes.Buffer
	pts := ticks(time.Second)
	stream.Write(buildSegment(SegmentPDS, pts, pts, testPDSPayload()))
	stream.Write(buildSegment(SegmentODS, pts, pts, testODSPayload(0, 4, 2, solidRLE(1, 4, 2))))
	stream.Write(buildSegment(SegmentPCS, pts, pts, nil))
	parser := NewSupParser(&stream)
	subtitle, err := parser.Next()
	if err != nil {
		t.Fatalf("failed to decode the subtitle: %v", err)
	}
	if subtitle.Times.Start != time.Second {
		t.Errorf("expected a 1s start, got %s", subtitle.Times.Start)
	}
	if subtitle.Times.HasEnd {
		t.Errorf("expected the last subtitle to be open ended, got end %s", subtitle.Times.End)
	}
	if subtitle.Palette.Len() != 16 {
		t.Errorf("expected a 16 colors palette, got %d", subtitle.Palette.Len())
	}
	if c, paletteErr := subtitle.Palette.Get(0); paletteErr != nil || c.A != 0 {
		t.Errorf("expected a transparent entry 0, got %v (%v)", c, paletteErr)
	}
	if subtitle.Image.Width() != 4 || subtitle.Image.Height() != 2 {
		t.Fatalf("expected a 4x2 image, got %dx%d", subtitle.Image.Width(), subtitle.Image.Height())
	}
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			if got := subtitle.Image.At(x, y); got != 1 {
				t.Errorf("pixel (%d,%d): expected index 1, got %d", x, y, got)
			}
		}
	}
	if _, err = parser.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF after the last subtitle, got: %v", err)
	}
}

func TestSupParserEndBackFill(t *testing.T) {
	var stream bytes.Buffer
	first, second := ticks(time.Second), ticks(3*time.Second)
	stream.Write(buildSegment(SegmentPDS, first, first, testPDSPayload()))
	stream.Write(buildSegment(SegmentODS, first, first, testODSPayload(0, 4, 2, solidRLE(1, 4, 2))))
	stream.Write(buildSegment(SegmentPCS, first, first, nil))
	stream.Write(buildSegment(SegmentODS, second, second, testODSPayload(0, 4, 2, solidRLE(2, 4, 2))))
	stream.Write(buildSegment(SegmentPCS, second, second, nil))
	parser := NewSupParser(&stream)
	subtitle, err := parser.Next()
	if err != nil {
		t.Fatalf("failed to decode the first subtitle: %v", err)
	}
	// the second composition closes the first subtitle
	if !subtitle.Times.HasEnd || subtitle.Times.End != 3*time.Second {
		t.Fatalf("expected the first subtitle to end at 3s, got %s", subtitle.Times)
	}
	if subtitle, err = parser.Next(); err != nil {
		t.Fatalf("failed to decode the second subtitle: %v", err)
	}
	if subtitle.Times.Start != 3*time.Second || subtitle.Times.HasEnd {
		t.Fatalf("expected an open ended subtitle starting at 3s, got %s", subtitle.Times)
	}
	if subtitle.Image.At(0, 0) != 2 {
		t.Fatalf("expected the second object, got index %d", subtitle.Image.At(0, 0))
	}
}

func TestSupParserClearScreen(t *testing.T) {
	var stream bytes.Buffer
	first, second := ticks(time.Second), ticks(2*time.Second)
	stream.Write(buildSegment(SegmentPDS, first, first, testPDSPayload()))
	stream.Write(buildSegment(SegmentODS, first, first, testODSPayload(0, 4, 2, solidRLE(1, 4, 2))))
	stream.Write(buildSegment(SegmentPCS, first, first, nil))
	stream.Write(buildSegment(SegmentPCS, second, second, nil)) // clears the screen
	parser := NewSupParser(&stream)
	subtitle, err := parser.Next()
	if err != nil {
		t.Fatalf("failed to decode the subtitle: %v", err)
	}
	if !subtitle.Times.HasEnd || subtitle.Times.End != 2*time.Second {
		t.Fatalf("expected the clearing composition to close the subtitle at 2s, got %s", subtitle.Times)
	}
	if _, err = parser.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF, got: %v", err)
	}
}

func TestSupParserFragmentedObject(t *testing.T) {
	rle := solidRLE(1, 4, 2)
	pts := ticks(time.Second)
	for split := 1; split < len(rle); split++ {
		var stream bytes.Buffer
		stream.Write(buildSegment(SegmentPDS, pts, pts, testPDSPayload()))
		// first fragment carries the header and the start of the RLE data
		full := testODSPayload(7, 4, 2, rle)
		headerLen := len(full) - len(rle)
		firstFragment := append([]byte{}, full[:headerLen+split]...)
		firstFragment[3] = odsFlagFirst
		stream.Write(buildSegment(SegmentODS, pts, pts, firstFragment))
		// continuation fragment
		continuation := []byte{0x00, 0x07, 0x00, odsFlagLast}
		continuation = append(continuation, rle[split:]...)
		stream.Write(buildSegment(SegmentODS, pts, pts, continuation))
		stream.Write(buildSegment(SegmentPCS, pts, pts, nil))
		parser := NewSupParser(&stream)
		subtitle, err := parser.Next()
		if err != nil {
			t.Fatalf("split at %d: failed to decode: %v", split, err)
		}
		if subtitle.Image.At(3, 1) != 1 {
			t.Fatalf("split at %d: unexpected image content", split)
		}
	}
}

func TestSupParserFragmentFlags(t *testing.T) {
	pds := testPDSPayload()
	pts := ticks(time.Second)
	// a continuation for an object never started
	var stream bytes.Buffer
	stream.Write(buildSegment(SegmentPDS, pts, pts, pds))
	stream.Write(buildSegment(SegmentODS, pts, pts, []byte{0x00, 0x01, 0x00, odsFlagLast, 0x01}))
	parser := NewSupParser(&stream)
	if _, err := parser.Next(); !errors.Is(err, subpic.ErrMalformedHeader) {
		t.Fatalf("expected ErrMalformedHeader on an orphan continuation, got: %v", err)
	}
	// a last fragment closing short of the declared length
	stream.Reset()
	rle := solidRLE(1, 4, 2)
	truncated := testODSPayload(0, 4, 2, rle)
	truncated = truncated[:len(truncated)-2]
	stream.Write(buildSegment(SegmentPDS, pts, pts, pds))
	stream.Write(buildSegment(SegmentODS, pts, pts, truncated))
	parser = NewSupParser(&stream)
	if _, err := parser.Next(); !errors.Is(err, subpic.ErrUnexpectedEOF) {
		t.Fatalf("expected ErrUnexpectedEOF on a short object, got: %v", err)
	}
}

func TestSupParserEventErrorDoesNotLoseSubtitle(t *testing.T) {
	var stream bytes.Buffer
	first, second := ticks(time.Second), ticks(2*time.Second)
	stream.Write(buildSegment(SegmentPDS, first, first, testPDSPayload()))
	stream.Write(buildSegment(SegmentODS, first, first, testODSPayload(0, 4, 2, solidRLE(1, 4, 2))))
	stream.Write(buildSegment(SegmentPCS, first, first, nil))
	// second object declares the right length but its RLE overflows the line
	stream.Write(buildSegment(SegmentODS, second, second, testODSPayload(0, 4, 2, []byte{
		0x00, 0x88, 0x01, 0x00, 0x00,
		0x00, 0x84, 0x01, 0x00, 0x00,
	})))
	stream.Write(buildSegment(SegmentPCS, second, second, nil))
	parser := NewSupParser(&stream)
	// the first subtitle is fine and must be delivered despite the broken
	// event that closes it
	subtitle, err := parser.Next()
	if err != nil {
		t.Fatalf("failed to decode the first subtitle: %v", err)
	}
	if !subtitle.Times.HasEnd || subtitle.Times.End != 2*time.Second {
		t.Fatalf("expected the first subtitle to end at 2s, got %s", subtitle.Times)
	}
	// the broken event is reported on the next pull
	if _, err = parser.Next(); !errors.Is(err, subpic.ErrMalformedRLE) {
		t.Fatalf("expected ErrMalformedRLE for the broken event, got: %v", err)
	}
	// and the stream keeps going afterwards
	if _, err = parser.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF, got: %v", err)
	}
}

func TestSupParserNextTimes(t *testing.T) {
	var stream bytes.Buffer
	first, second := ticks(time.Second), ticks(3*time.Second)
	// no PDS and garbage RLE of the declared length: the fast path never
	// touches either
	garbage := bytes.Repeat([]byte{0xFF}, 10)
	stream.Write(buildSegment(SegmentODS, first, first, testODSPayload(0, 4, 2, garbage)))
	stream.Write(buildSegment(SegmentPCS, first, first, nil))
	stream.Write(buildSegment(SegmentODS, second, second, testODSPayload(0, 4, 2, garbage)))
	stream.Write(buildSegment(SegmentPCS, second, second, nil))
	parser := NewSupParser(&stream)
	times, err := parser.NextTimes()
	if err != nil {
		t.Fatalf("failed to read the first times: %v", err)
	}
	if times.Start != time.Second || !times.HasEnd || times.End != 3*time.Second {
		t.Fatalf("unexpected first times: %s", times)
	}
	if times, err = parser.NextTimes(); err != nil {
		t.Fatalf("failed to read the second times: %v", err)
	}
	if times.Start != 3*time.Second || times.HasEnd {
		t.Fatalf("unexpected second times: %s", times)
	}
	if _, err = parser.NextTimes(); err != io.EOF {
		t.Fatalf("expected io.EOF, got: %v", err)
	}
}

func TestSupParserStrict(t *testing.T) {
	pts := ticks(time.Second)
	build := func() *bytes.Buffer {
		var stream bytes.Buffer
		stream.Write(buildSegment(SegmentType(0x99), pts, pts, []byte{0x01}))
		stream.Write(buildSegment(SegmentPDS, pts, pts, testPDSPayload()))
		stream.Write(buildSegment(SegmentODS, pts, pts, testODSPayload(0, 4, 2, solidRLE(1, 4, 2))))
		stream.Write(buildSegment(SegmentPCS, pts, pts, nil))
		return &stream
	}
	// lenient by default
	parser := NewSupParser(build())
	if _, err := parser.Next(); err != nil {
		t.Fatalf("unknown segments must be skipped by default: %v", err)
	}
	// strict on demand
	parser = NewSupParser(build())
	parser.Strict = true
	if _, err := parser.Next(); !errors.Is(err, subpic.ErrUnsupportedSegment) {
		t.Fatalf("expected ErrUnsupportedSegment, got: %v", err)
	}
}

func TestCountCompositions(t *testing.T) {
	var stream bytes.Buffer
	pts := ticks(time.Second)
	stream.Write(buildSegment(SegmentPDS, pts, pts, testPDSPayload()))
	stream.Write(buildSegment(SegmentPCS, pts, pts, nil))
	stream.Write(buildSegment(SegmentWDS, pts, pts, nil))
	stream.Write(buildSegment(SegmentPCS, pts, pts, nil))
	stream.Write(buildSegment(SegmentEND, pts, pts, nil))
	count, err := CountCompositions(&stream)
	if err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 compositions, got %d", count)
	}
}

package vobsub

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/klauspost/compress/zlib"
	subpic "github.com/subpix/go-subpic"
	"golang.org/x/text/language"
)

// packHeaderBytes is a minimal valid pack header with no stuffing bytes.
var packHeaderBytes = []byte{
	0x00, 0x00, 0x01, StreamIDPackHeader,
	0x44, 0x00, 0x04, 0x00, 0x04, 0x01, 0x00, 0x00, 0x03, 0x00,
}

func encodePTS(pts time.Duration) []byte {
	ticks := uint64(pts) * PTSClockFrequency / uint64(time.Second)
	return []byte{
		0b00100001 | byte((ticks>>30)&0b111)<<1,
		byte(ticks >> 22),
		byte((ticks>>15)&0x7F)<<1 | 1,
		byte(ticks >> 7),
		byte(ticks&0x7F)<<1 | 1,
	}
}

// wrapPES frames one private stream 1 packet around (a fragment of) a
// subtitle packet.
func wrapPES(payload []byte, pts time.Duration, withPTS bool) []byte {
	extension := []byte{0x80, 0x00, 0x00}
	var ptsBytes []byte
	if withPTS {
		extension[1] = 0x80
		extension[2] = 5
		ptsBytes = encodePTS(pts)
	}
	packetLength := len(extension) + int(extension[2]) + 1 + len(payload)
	packet := []byte{0x00, 0x00, 0x01, StreamIDPrivateStream1, byte(packetLength >> 8), byte(packetLength)}
	packet = append(packet, extension...)
	packet = append(packet, ptsBytes...)
	packet = append(packet, 0x20) // sub stream id
	return append(packet, payload...)
}

// testRLE is a 10x10 image: even display lines of color code 2, odd display
// lines of color code 3.
func testRLE() []byte {
	rle := bytes.Repeat([]byte{0x2A}, 5) // first field, run of 10 color 2
	return append(rle, bytes.Repeat([]byte{0x2B}, 5)...)
}

func testMetadata(entries []IndexEntry) Metadata {
	triples := make([][3]uint8, subpic.VobSubPaletteSize)
	triples[2] = [3]uint8{0xFF, 0x00, 0x00}
	triples[3] = [3]uint8{0x00, 0xFF, 0x00}
	return Metadata{
		Width:      718,
		Height:     480,
		AlphaRatio: 1,
		Palette:    subpic.PaletteFromRGB(triples, 255),
		Languages: []Language{
			{Tag: language.English, Index: 0, Entries: entries},
		},
	}
}

func checkTestImage(t *testing.T, subtitle Subtitle) {
	t.Helper()
	if subtitle.Area.Width() != 10 || subtitle.Area.Height() != 10 {
		t.Fatalf("unexpected area: %+v", subtitle.Area)
	}
	if subtitle.Image.Width() != 10 || subtitle.Image.Height() != 10 {
		t.Fatalf("unexpected image size: %dx%d", subtitle.Image.Width(), subtitle.Image.Height())
	}
	for y := 0; y < 10; y++ {
		expected := uint8(2)
		if y%2 == 1 {
			expected = 3
		}
		for x := 0; x < 10; x++ {
			if got := subtitle.Image.At(x, y); got != expected {
				t.Fatalf("pixel (%d,%d): expected index %d, got %d", x, y, expected, got)
			}
		}
	}
	if subtitle.Palette.Len() != 4 {
		t.Fatalf("expected a 4 colors event palette, got %d", subtitle.Palette.Len())
	}
	red, err := subtitle.Palette.Get(2)
	if err != nil {
		t.Fatalf("failed to get event color 2: %v", err)
	}
	if red.R != 0xFF || red.G != 0 || red.A != 255 {
		t.Fatalf("expected an opaque red for color code 2, got %v", red)
	}
}

func TestParser(t *testing.T) {
	// two packets: one at offset 0 with a stop date, one at offset 0x800
	// without (closed by nothing, it is the last entry)
	var stream bytes.Buffer
	stream.Write(packHeaderBytes)
	stream.Write(wrapPES(buildTestPacket(t, testRLE(), 200, false), time.Second, true))
	stream.Write(make([]byte, 0x800-stream.Len()))
	stream.Write(packHeaderBytes)
	stream.Write(wrapPES(buildTestPacket(t, testRLE(), -1, true), 0, false))
	metadata := testMetadata([]IndexEntry{
		{Timestamp: time.Second, FilePos: 0},
		{Timestamp: 90*time.Second + 500*time.Millisecond, FilePos: 0x800},
	})
	parser, err := NewParser(metadata, bytes.NewReader(stream.Bytes()))
	if err != nil {
		t.Fatalf("failed to create the parser: %v", err)
	}
	if parser.Remaining() != 2 {
		t.Fatalf("expected 2 entries, got %d", parser.Remaining())
	}
	subtitle, err := parser.Next()
	if err != nil {
		t.Fatalf("failed to decode the first subtitle: %v", err)
	}
	if subtitle.Times.Start != time.Second {
		t.Errorf("expected a 1s start, got %s", subtitle.Times.Start)
	}
	// the stop date of the packet is 200 ticks of 10ms after its timestamp
	if !subtitle.Times.HasEnd || subtitle.Times.End != 3*time.Second {
		t.Errorf("expected a 3s end, got %s", subtitle.Times)
	}
	if subtitle.Forced {
		t.Error("unexpected forced flag on the first subtitle")
	}
	checkTestImage(t, subtitle)
	if subtitle, err = parser.Next(); err != nil {
		t.Fatalf("failed to decode the second subtitle: %v", err)
	}
	if subtitle.Times.Start != 90*time.Second+500*time.Millisecond {
		t.Errorf("unexpected second start: %s", subtitle.Times.Start)
	}
	if subtitle.Times.HasEnd {
		t.Errorf("expected the last subtitle to be open ended, got %s", subtitle.Times)
	}
	if !subtitle.Forced {
		t.Error("expected the forced flag on the second subtitle")
	}
	if _, err = parser.Next(); err != io.EOF {
		t.Fatalf("expected io.EOF, got: %v", err)
	}
}

func TestParserEndBackFill(t *testing.T) {
	// the first packet has no stop date: the second entry closes it
	var stream bytes.Buffer
	stream.Write(packHeaderBytes)
	stream.Write(wrapPES(buildTestPacket(t, testRLE(), -1, false), time.Second, true))
	stream.Write(make([]byte, 0x800-stream.Len()))
	stream.Write(packHeaderBytes)
	stream.Write(wrapPES(buildTestPacket(t, testRLE(), -1, false), 0, false))
	metadata := testMetadata([]IndexEntry{
		{Timestamp: time.Second, FilePos: 0},
		{Timestamp: 4 * time.Second, FilePos: 0x800},
	})
	parser, err := NewParser(metadata, bytes.NewReader(stream.Bytes()))
	if err != nil {
		t.Fatalf("failed to create the parser: %v", err)
	}
	times, err := parser.NextTimes()
	if err != nil {
		t.Fatalf("failed to read the first times: %v", err)
	}
	if times.Start != time.Second || !times.HasEnd || times.End != 4*time.Second {
		t.Fatalf("unexpected first times: %s", times)
	}
	if times, err = parser.NextTimes(); err != nil {
		t.Fatalf("failed to read the second times: %v", err)
	}
	if times.Start != 4*time.Second || times.HasEnd {
		t.Fatalf("unexpected second times: %s", times)
	}
}

func TestParserSplitPacket(t *testing.T) {
	// one subtitle packet split over two PES packets, each under its own
	// pack header
	packet := buildTestPacket(t, testRLE(), 200, false)
	var stream bytes.Buffer
	stream.Write(packHeaderBytes)
	stream.Write(wrapPES(packet[:10], time.Second, true))
	stream.Write(packHeaderBytes)
	stream.Write(wrapPES(packet[10:], 0, false))
	metadata := testMetadata([]IndexEntry{{Timestamp: time.Second, FilePos: 0}})
	parser, err := NewParser(metadata, bytes.NewReader(stream.Bytes()))
	if err != nil {
		t.Fatalf("failed to create the parser: %v", err)
	}
	subtitle, err := parser.Next()
	if err != nil {
		t.Fatalf("failed to decode the split subtitle: %v", err)
	}
	checkTestImage(t, subtitle)
}

func TestParserNonMonotonicIndex(t *testing.T) {
	var stream bytes.Buffer
	stream.Write(packHeaderBytes)
	stream.Write(wrapPES(buildTestPacket(t, testRLE(), 200, false), time.Second, true))
	metadata := testMetadata([]IndexEntry{
		{Timestamp: time.Second, FilePos: 0},
		{Timestamp: 2 * time.Second, FilePos: 0}, // behind the first packet end
	})
	parser, err := NewParser(metadata, bytes.NewReader(stream.Bytes()))
	if err != nil {
		t.Fatalf("failed to create the parser: %v", err)
	}
	if _, err = parser.Next(); err != nil {
		t.Fatalf("failed to decode the first subtitle: %v", err)
	}
	if _, err = parser.Next(); !errors.Is(err, subpic.ErrInconsistentTiming) {
		t.Fatalf("expected ErrInconsistentTiming, got: %v", err)
	}
}

func TestParserLanguageSelection(t *testing.T) {
	metadata := testMetadata(nil)
	metadata.Languages = append(metadata.Languages, Language{
		Tag: language.French, Index: 1,
		Entries: []IndexEntry{{Timestamp: time.Second, FilePos: 0}},
	})
	metadata.LangIdx = 1
	parser, err := NewParser(metadata, bytes.NewReader(nil))
	if err != nil {
		t.Fatalf("failed to create the parser: %v", err)
	}
	if parser.Remaining() != 1 {
		t.Fatalf("expected the french entries to be selected, got %d entries", parser.Remaining())
	}
	if _, err = NewParser(Metadata{}, bytes.NewReader(nil)); !errors.Is(err, subpic.ErrMalformedHeader) {
		t.Fatalf("expected ErrMalformedHeader without languages, got: %v", err)
	}
}

func TestDecodeRawPacket(t *testing.T) {
	metadata := testMetadata(nil)
	packet := buildTestPacket(t, testRLE(), 200, false)
	subtitle, err := DecodeRawPacket(metadata, packet, time.Second)
	if err != nil {
		t.Fatalf("failed to decode the raw packet: %v", err)
	}
	if subtitle.Times.Start != time.Second || subtitle.Times.End != 3*time.Second {
		t.Fatalf("unexpected times: %s", subtitle.Times)
	}
	checkTestImage(t, subtitle)
}

func TestDecodeRawPacketCompressed(t *testing.T) {
	metadata := testMetadata(nil)
	packet := buildTestPacket(t, testRLE(), 200, false)
	var compressed bytes.Buffer
	writer := zlib.NewWriter(&compressed)
	if _, err := writer.Write(packet); err != nil {
		t.Fatalf("failed to compress the packet: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed to close the compressor: %v", err)
	}
	if compressed.Bytes()[0] != zlibHeaderByte {
		t.Fatalf("expected a zlib stream, got 0x%02X", compressed.Bytes()[0])
	}
	subtitle, err := DecodeRawPacket(metadata, compressed.Bytes(), time.Second)
	if err != nil {
		t.Fatalf("failed to decode the compressed packet: %v", err)
	}
	checkTestImage(t, subtitle)
}

package vobsub

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/zlib"
	subpic "github.com/subpix/go-subpic"
)

// zlibHeaderByte is the first byte of every zlib stream (CMF with the
// deflate compression method).
const zlibHeaderByte = 0x78

// DecodeRawPacket decodes one subtitle packet outside of any MPEG Program
// Stream wrapping, as stored in Matroska VOBSUB tracks: one block is one
// reassembled subtitle packet, optionally zlib compressed. The block
// timestamp of the container is the time base of the control sequence
// delays.
//
// The Idx metadata comes from the track CodecPrivate, which holds the same
// textual content as a .idx file minus the language blocks.
func DecodeRawPacket(metadata Metadata, block []byte, at time.Duration) (subtitle Subtitle, err error) {
	if len(block) > 0 && block[0] == zlibHeaderByte {
		if block, err = inflate(block); err != nil {
			err = fmt.Errorf("failed to decompress the block: %w", err)
			return
		}
	}
	control, err := parseControl(block)
	if err != nil {
		err = fmt.Errorf("failed to parse control sequences: %w", err)
		return
	}
	base := metadata.TimeOffset + at
	start := base + control.startDelay
	if control.hasStop {
		if subtitle.Times, err = subpic.NewTimeSpan(start, base+control.stopDelay); err != nil {
			err = fmt.Errorf("invalid control sequence dates: %w", err)
			return
		}
	} else {
		// the container block duration closes it, not our concern here
		subtitle.Times = subpic.OpenTimeSpan(start)
	}
	subtitle.Forced = control.forced
	if !control.hasArea || !control.hasOffsets || !control.hasPalette {
		err = fmt.Errorf("subtitle packet misses a mandatory control command: %w", subpic.ErrMalformedHeader)
		return
	}
	subtitle.Area = control.area
	if subtitle.Palette, err = eventPalette(metadata, control); err != nil {
		err = fmt.Errorf("failed to build the subtitle palette: %w", err)
		return
	}
	if subtitle.Image, err = decodeFields(block, control, subtitle.Area.Width(), subtitle.Area.Height()); err != nil {
		err = fmt.Errorf("failed to decode RLE fields: %w", err)
		subtitle.Palette = subpic.Palette{}
		return
	}
	return
}

func inflate(block []byte) (inflated []byte, err error) {
	reader, err := zlib.NewReader(bytes.NewReader(block))
	if err != nil {
		return
	}
	defer reader.Close()
	if inflated, err = io.ReadAll(reader); err != nil {
		return
	}
	return
}

package vobsub

import (
	"fmt"
	"time"

	subpic "github.com/subpix/go-subpic"
)

const (
	subtitleHeaderLen       = 2
	subtitleDataHeaderLen   = 2
	subtitleHeadersTotalLen = subtitleHeaderLen + subtitleDataHeaderLen

	ctrlSeqDateLen            = 2
	ctrlSeqHeaderLen          = ctrlSeqDateLen + 2 // date + next sequence offset
	ctrlCmdForceDisplaying    = 0x00
	ctrlCmdStartDate          = 0x01
	ctrlCmdStopDate           = 0x02
	ctrlCmdPalette            = 0x03
	ctrlCmdPaletteArgsLen     = 2
	ctrlCmdAlphaChannel       = 0x04
	ctrlCmdAlphaChannelArgs   = 2
	ctrlCmdCoordinates        = 0x05
	ctrlCmdCoordinatesArgsLen = 6
	ctrlCmdRLEOffsets         = 0x06
	ctrlCmdRLEOffsetsArgsLen  = 4
	ctrlCmdEnd                = 0xff

	// control sequence dates tick at 1/100th of a second
	ctrlSeqDateUnit = time.Second / 100
)

// controlData is the consolidated rendering metadata of one subtitle packet,
// gathered over its control sequences. Most packets have two sequences: the
// first carrying coordinates, palette and RLE offsets, the second only the
// stop date.
type controlData struct {
	startDelay     time.Duration
	stopDelay      time.Duration
	hasStop        bool
	forced         bool
	paletteIndices [4]uint8 // index into the 16 colors Idx palette, per 2 bits color code
	alphas         [4]uint8
	area           subpic.Area
	firstField     int // payload offset of the RLE stream of display lines 0, 2, 4...
	secondField    int // payload offset of the RLE stream of display lines 1, 3, 5...
	hasPalette     bool
	hasAlpha       bool
	hasArea        bool
	hasOffsets     bool
}

// parseControl walks the control sequences area of a reassembled subtitle
// packet payload. The payload starts with its own 2 bytes size (already
// verified during reassembly) then the 2 bytes offset of the control area;
// every in-packet offset is relative to the payload start.
func parseControl(payload []byte) (control controlData, err error) {
	if len(payload) < subtitleHeadersTotalLen {
		err = fmt.Errorf("subtitle packet of %d bytes can not hold its headers: %w",
			len(payload), subpic.ErrUnexpectedEOF)
		return
	}
	controlOffset := int(payload[2])<<8 | int(payload[3])
	if controlOffset < subtitleHeadersTotalLen || controlOffset >= len(payload) {
		err = fmt.Errorf("control area offset %d outside the %d bytes packet: %w",
			controlOffset, len(payload), subpic.ErrMalformedHeader)
		return
	}
	nbSeqs := 0
	current := controlOffset
	for {
		nbSeqs++
		var next int
		if next, err = parseControlSequence(payload, current, &control); err != nil {
			err = fmt.Errorf("failed to parse control sequence #%d: %w", nbSeqs, err)
			return
		}
		if next == current {
			// a sequence pointing to itself is the last one
			break
		}
		// offsets are forward only, a backward pointer would make the walk
		// cycle forever
		if next < current {
			err = fmt.Errorf("control sequence #%d points backward to offset %d: %w",
				nbSeqs, next, subpic.ErrMalformedHeader)
			return
		}
		if next >= len(payload) {
			err = fmt.Errorf("control sequence #%d points outside the control area (%d): %w",
				nbSeqs, next, subpic.ErrMalformedHeader)
			return
		}
		current = next
	}
	return
}

// parseControlSequence parses the sequence starting at offset and reports
// the offset of the next one (itself for the last sequence of the packet).
func parseControlSequence(payload []byte, offset int, control *controlData) (next int, err error) {
	if offset+ctrlSeqHeaderLen > len(payload) {
		err = fmt.Errorf("control sequence at offset %d can not hold its date and next offset: %w",
			offset, subpic.ErrUnexpectedEOF)
		return
	}
	date := time.Duration(int(payload[offset])<<8|int(payload[offset+1])) * ctrlSeqDateUnit
	next = int(payload[offset+2])<<8 | int(payload[offset+3])
	index := offset + ctrlSeqHeaderLen
	for {
		if index >= len(payload) {
			err = fmt.Errorf("control sequence truncated before its end command: %w", subpic.ErrUnexpectedEOF)
			return
		}
		cmd := payload[index]
		index++
		switch cmd {
		case ctrlCmdForceDisplaying:
			control.forced = true
		case ctrlCmdStartDate:
			control.startDelay = date
		case ctrlCmdStopDate:
			control.stopDelay = date
			control.hasStop = true
		case ctrlCmdPalette:
			if index+ctrlCmdPaletteArgsLen > len(payload) {
				err = commandTruncated(cmd, ctrlCmdPaletteArgsLen)
				return
			}
			control.paletteIndices[3] = payload[index] >> 4
			control.paletteIndices[2] = payload[index] & 0b00001111
			control.paletteIndices[1] = payload[index+1] >> 4
			control.paletteIndices[0] = payload[index+1] & 0b00001111
			control.hasPalette = true
			index += ctrlCmdPaletteArgsLen
		case ctrlCmdAlphaChannel:
			if index+ctrlCmdAlphaChannelArgs > len(payload) {
				err = commandTruncated(cmd, ctrlCmdAlphaChannelArgs)
				return
			}
			// 4 bits alpha levels, 0 transparent to 15 opaque
			control.alphas[3] = (payload[index] >> 4) * 17
			control.alphas[2] = (payload[index] & 0b00001111) * 17
			control.alphas[1] = (payload[index+1] >> 4) * 17
			control.alphas[0] = (payload[index+1] & 0b00001111) * 17
			control.hasAlpha = true
			index += ctrlCmdAlphaChannelArgs
		case ctrlCmdCoordinates:
			if index+ctrlCmdCoordinatesArgsLen > len(payload) {
				err = commandTruncated(cmd, ctrlCmdCoordinatesArgsLen)
				return
			}
			x1 := int(payload[index])<<4 | int(payload[index+1])>>4
			x2 := int(payload[index+1]&0b00001111)<<8 | int(payload[index+2])
			y1 := int(payload[index+3])<<4 | int(payload[index+4])>>4
			y2 := int(payload[index+4]&0b00001111)<<8 | int(payload[index+5])
			if control.area, err = subpic.NewArea(x1, y1, x2, y2); err != nil {
				err = fmt.Errorf("invalid subtitle coordinates: %w", err)
				return
			}
			control.hasArea = true
			index += ctrlCmdCoordinatesArgsLen
		case ctrlCmdRLEOffsets:
			if index+ctrlCmdRLEOffsetsArgsLen > len(payload) {
				err = commandTruncated(cmd, ctrlCmdRLEOffsetsArgsLen)
				return
			}
			control.firstField = int(payload[index])<<8 | int(payload[index+1])
			control.secondField = int(payload[index+2])<<8 | int(payload[index+3])
			control.hasOffsets = true
			index += ctrlCmdRLEOffsetsArgsLen
		case ctrlCmdEnd:
			return
		default:
			err = fmt.Errorf("unknown control command 0x%02x: %w", cmd, subpic.ErrMalformedHeader)
			return
		}
	}
}

func commandTruncated(cmd byte, argsLen int) error {
	return fmt.Errorf("control command 0x%02x truncated (%d argument bytes expected): %w",
		cmd, argsLen, subpic.ErrUnexpectedEOF)
}

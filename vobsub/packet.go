package vobsub

import (
	"errors"
	"fmt"
	"io"
	"time"

	subpic "github.com/subpix/go-subpic"
)

const pesExtensionMarker = 0b10

// pesPacket is one Private Stream 1 packet extracted from the program
// stream. Continuation packets of a subtitle split over several PES packets
// carry no PTS.
type pesPacket struct {
	pts       time.Duration
	hasPTS    bool
	substream byte
	payload   []byte
}

// readPacket reads the next program stream unit at the current cursor
// position. It returns a nil packet for units that carry no subtitle data
// (pack headers, padding and other elementary streams, which are skipped
// relatively), and end=true on a clean end of stream or a program end code.
func readPacket(cursor *subpic.Cursor) (packet *pesPacket, end bool, err error) {
	var mph MPEGHeader
	if err = cursor.ReadFull(mph[:]); err != nil {
		if errors.Is(err, io.EOF) {
			// missing program end code, seen in the wild
			end = true
			err = nil
		} else {
			err = fmt.Errorf("failed to read start code header: %w", err)
		}
		return
	}
	if err = mph.Validate(); err != nil {
		err = fmt.Errorf("invalid MPEG header: %w", err)
		return
	}
	switch mph.StreamID() {
	case StreamIDPackHeader:
		var ph PackHeader
		if err = cursor.ReadFull(ph[:]); err != nil {
			err = fmt.Errorf("failed to read pack header: %w", err)
			return
		}
		if err = ph.Validate(); err != nil {
			err = fmt.Errorf("invalid pack header: %w", err)
			return
		}
		if err = cursor.Skip(ph.StuffingBytesLength()); err != nil {
			err = fmt.Errorf("failed to skip pack header stuffing bytes: %w", err)
			return
		}
		return
	case StreamIDPrivateStream1:
		if packet, err = readPrivateStream1Packet(cursor); err != nil {
			err = fmt.Errorf("failed to parse subtitle stream (private stream 1) packet: %w", err)
			return
		}
		return
	case StreamIDPaddingStream, StreamIDSystemHeader:
		var length uint16
		if length, err = cursor.ReadU16(); err != nil {
			err = fmt.Errorf("failed to read %s length: %w", mph.StreamID(), err)
			return
		}
		if err = cursor.Skip(int64(length)); err != nil {
			err = fmt.Errorf("failed to skip %s: %w", mph.StreamID(), err)
			return
		}
		return
	case StreamIDProgramEnd:
		end = true
		return
	default:
		if sid := mph.StreamID(); sid == 0xBF || (sid >= 0xC0 && sid <= 0xEF) {
			// audio/video elementary streams are valid MPEG but out of scope
			err = fmt.Errorf("stream ID %s: %w", sid, subpic.ErrUnsupportedSegment)
			return
		}
		err = fmt.Errorf("unexpected stream ID %s: %w", mph.StreamID(), subpic.ErrMalformedHeader)
		return
	}
}

// readPrivateStream1Packet finishes reading a PES packet once its start code
// identified a private stream 1: packet length, extension (with the optional
// PTS), sub stream ID and payload.
func readPrivateStream1Packet(cursor *subpic.Cursor) (packet *pesPacket, err error) {
	packetLength, err := cursor.ReadU16()
	if err != nil {
		err = fmt.Errorf("failed to read PES packet length: %w", err)
		return
	}
	// 0xBD stream type has a PES header extension
	var extension [3]byte
	if err = cursor.ReadFull(extension[:]); err != nil {
		err = fmt.Errorf("failed to read PES extension header: %w", err)
		return
	}
	if extension[0]>>6 != pesExtensionMarker {
		err = fmt.Errorf("invalid PES extension header marker 0b%02b: %w",
			extension[0]>>6, subpic.ErrMalformedHeader)
		return
	}
	packet = new(pesPacket)
	remaining := int64(extension[2])
	if extension[1]&0b10000000 != 0 {
		// PTS present (possibly followed by a DTS, skipped with the rest)
		var rawPTS [5]byte
		if err = cursor.ReadFull(rawPTS[:]); err != nil {
			err = fmt.Errorf("failed to read PTS: %w", err)
			return
		}
		packet.pts = computePTS(rawPTS)
		packet.hasPTS = true
		remaining -= int64(len(rawPTS))
	}
	if remaining < 0 {
		err = fmt.Errorf("PES extension remaining length %d can not hold its declared fields: %w",
			extension[2], subpic.ErrMalformedHeader)
		return
	}
	if err = cursor.Skip(remaining); err != nil {
		err = fmt.Errorf("failed to skip PES extension data: %w", err)
		return
	}
	if packet.substream, err = cursor.ReadByte(); err != nil {
		err = fmt.Errorf("failed to read sub stream ID: %w", err)
		return
	}
	payloadLen := int(packetLength) - len(extension) - int(extension[2]) - 1
	if payloadLen < 0 {
		err = fmt.Errorf("PES packet length %d can not hold its own headers: %w",
			packetLength, subpic.ErrMalformedHeader)
		return
	}
	if packet.payload, err = cursor.ReadBytes(payloadLen); err != nil {
		err = fmt.Errorf("failed to read the payload: %w", err)
		return
	}
	return
}

// readSubtitlePacket reassembles one subtitle packet starting at the current
// cursor position: private stream 1 payloads are concatenated until the size
// declared by the first 2 bytes of the reassembled payload is reached, or
// until limit (the offset of the next subtitle, -1 for none) is hit. All
// inter packet moves are relative skips.
func readSubtitlePacket(cursor *subpic.Cursor, limit int64) (payload []byte, pts time.Duration, err error) {
	var declared int
	for payload == nil || len(payload) < declared {
		if payload != nil && limit >= 0 && cursor.Position() >= limit {
			// next subtitle offset is authoritative
			break
		}
		packet, end, readErr := readPacket(cursor)
		if readErr != nil {
			err = fmt.Errorf("failed to parse packet: %w", readErr)
			return
		}
		if end {
			break
		}
		if packet == nil {
			continue
		}
		if payload == nil {
			if len(packet.payload) < subtitleHeadersTotalLen {
				err = fmt.Errorf("first subtitle packet holds %d bytes: %w",
					len(packet.payload), subpic.ErrUnexpectedEOF)
				return
			}
			pts = packet.pts
			payload = packet.payload
			declared = int(payload[0])<<8 | int(payload[1])
		} else {
			// subtitle split over multiple packets, concatenate
			payload = append(payload, packet.payload...)
		}
	}
	if payload == nil {
		err = fmt.Errorf("no subtitle packet found: %w", subpic.ErrUnexpectedEOF)
		return
	}
	if len(payload) < declared {
		err = fmt.Errorf("reassembled %d payload bytes out of %d declared: %w",
			len(payload), declared, subpic.ErrUnexpectedEOF)
		payload = nil
		return
	}
	if len(payload) > declared {
		err = fmt.Errorf("reassembled %d payload bytes for %d declared: %w",
			len(payload), declared, subpic.ErrMalformedHeader)
		payload = nil
		return
	}
	return
}

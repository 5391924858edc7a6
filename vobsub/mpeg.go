// Package vobsub decodes DVD subtitles in VobSub format: a textual .idx
// index describing palette, languages and packet offsets, and a .sub binary
// which is an MPEG-2 Program Stream multiplexing the subtitle packets.
//
// References:
//   - https://dvd.sourceforge.net/dvdinfo/mpeghdrs.html
//   - https://dvd.sourceforge.net/dvdinfo/packhdr.html
//   - https://dvd.sourceforge.net/dvdinfo/pes-hdr.html
//   - http://sam.zoy.org/writings/dvd/subtitles/
package vobsub

import (
	"encoding/binary"
	"fmt"
	"time"

	subpic "github.com/subpix/go-subpic"
)

const (
	// StartCodeMarker is the 3 bytes value that marks the beginning of a MPEG
	// header, Pack header and PES header.
	StartCodeMarker = 0x000001

	// SCRFrequency is the System Clock Reference base frequency.
	SCRFrequency = 27_000_000 // 27 MHz
	// PTSClockFrequency is the Presentation TimeStamp clock base frequency.
	PTSClockFrequency = 90_000 // 90 kHz

	// StreamIDPackHeader is the ID of a Pack header.
	StreamIDPackHeader = 0xBA
	// StreamIDSystemHeader is the ID of a System header.
	StreamIDSystemHeader = 0xBB
	// StreamIDPrivateStream1 is the ID of a Private Stream 1, the stream
	// carrying DVD subtitles.
	StreamIDPrivateStream1 = 0xBD
	// StreamIDPaddingStream is the ID of a Padding Stream.
	StreamIDPaddingStream = 0xBE
	// StreamIDProgramEnd is the ID marking the end of a stream.
	StreamIDProgramEnd = 0xB9
)

// StreamID represents a MPEG Stream ID.
type StreamID byte

// String implements the fmt.Stringer interface.
// It returns a string that represents the value of the receiver in a form suitable for printing.
// See https://pkg.go.dev/fmt#Stringer
func (sid StreamID) String() string {
	switch {
	case sid == StreamIDProgramEnd:
		return "Program end"
	case sid == StreamIDPackHeader:
		return "Pack header"
	case sid == StreamIDSystemHeader:
		return "System Header"
	case sid == StreamIDPrivateStream1:
		return "Private stream 1"
	case sid == StreamIDPaddingStream:
		return "Padding stream"
	case sid == 0xBF:
		return "Private stream 2"
	case sid >= 0xC0 && sid <= 0xDF:
		return "MPEG-1 or MPEG-2 audio stream"
	case sid >= 0xE0 && sid <= 0xEF:
		return "MPEG-1 or MPEG-2 video stream"
	default:
		return fmt.Sprintf("<stream ID 0x%02X>", byte(sid))
	}
}

// MPEGHeader represents the top level header encountered in a packetized
// MPEG stream.
type MPEGHeader [4]byte

// Validate verifies the content of the header.
func (mph MPEGHeader) Validate() error {
	if binary.BigEndian.Uint32(mph[:])>>8 != StartCodeMarker {
		return fmt.Errorf("invalid start code marker 0x%06x: %w",
			binary.BigEndian.Uint32(mph[:])>>8, subpic.ErrMalformedHeader)
	}
	return nil
}

// StreamID returns the Stream ID contained within the header.
func (mph MPEGHeader) StreamID() StreamID {
	return StreamID(mph[3])
}

// PackHeader contains the data of the MPEG pack header following its MPEG
// header.
type PackHeader [10]byte

// Validate checks the fixed bits of the pack header.
func (ph PackHeader) Validate() error {
	if ph[0]>>6 != 0b01 {
		return fmt.Errorf("invalid SCR 1st fixed bits 0b%02b: %w", ph[0]>>6, subpic.ErrMalformedHeader)
	}
	if (ph[0]&0b00000100)>>2 != 0b1 {
		return fmt.Errorf("invalid SCR 2nd fixed bit: %w", subpic.ErrMalformedHeader)
	}
	if (ph[2]&0b00000100)>>2 != 0b1 {
		return fmt.Errorf("invalid SCR 3rd fixed bit: %w", subpic.ErrMalformedHeader)
	}
	if (ph[4]&0b00000100)>>2 != 0b1 {
		return fmt.Errorf("invalid SCR 4th fixed bit: %w", subpic.ErrMalformedHeader)
	}
	if ph[5]&0b00000001 != 0b1 {
		return fmt.Errorf("invalid SCR 5th fixed bit: %w", subpic.ErrMalformedHeader)
	}
	if ph[8]&0b00000011 != 0b11 {
		return fmt.Errorf("invalid mux rate fixed bits: %w", subpic.ErrMalformedHeader)
	}
	return nil
}

// SCR returns the parsed and computed System Clock Reference contained in
// the pack header.
func (ph PackHeader) SCR() time.Duration {
	var quotient, remainder uint64
	quotient = uint64(ph[0]&0b00111000)<<(30-3) | uint64(ph[0]&0b00000011)<<28
	quotient |= uint64(ph[1]) << 20
	quotient |= uint64(ph[2]&0b11111000)<<(15-3) | uint64(ph[2]&0b00000011)<<13
	quotient |= uint64(ph[3]) << 5
	quotient |= uint64(ph[4]) >> 3
	remainder = uint64(ph[4]&0b00000011) << 7
	remainder |= uint64(ph[5]) >> 1
	ticks := quotient*(SCRFrequency/PTSClockFrequency) + remainder
	return time.Duration(ticks * uint64(time.Second) / SCRFrequency)
}

// StuffingBytesLength returns the number of padding bytes (0xff) that follow
// the pack header in the stream.
func (ph PackHeader) StuffingBytesLength() int64 {
	return int64(ph[9] & 0b00000111)
}

// computePTS converts the 5 bytes encoded form of a Presentation TimeStamp
// to the duration it represents.
func computePTS(raw [5]byte) time.Duration {
	var ticks uint64
	ticks |= (uint64(raw[0]&0b00001110) >> 1) << 30
	ticks |= uint64(raw[1]) << 22
	ticks |= (uint64(raw[2]&0b11111110) >> 1) << 15
	ticks |= uint64(raw[3]) << 7
	ticks |= uint64(raw[4]&0b11111110) >> 1
	return time.Duration(ticks * uint64(time.Second) / PTSClockFrequency)
}

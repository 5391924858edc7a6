package pgs

import (
	"fmt"

	subpic "github.com/subpix/go-subpic"
)

// Object Definition Segment sequence flags. An object bigger than the 64KB a
// single segment can carry is split over several ODS, each one tagged with
// its position in the sequence.
const (
	odsFlagLast         = 0x40
	odsFlagFirst        = 0x80
	odsFlagFirstAndLast = odsFlagFirst | odsFlagLast
)

// objectAccumulator reassembles the data of one graphic object spread over
// one or more Object Definition Segments. It is keyed by object id and
// dropped as soon as the last fragment has been seen.
type objectAccumulator struct {
	id       uint16
	width    int
	height   int
	declared int // RLE bytes announced by the first fragment
	data     []byte
}

// completeObject is a fully reassembled, not yet decoded graphic object.
type completeObject struct {
	width  int
	height int
	data   []byte
}

// accumulateObject feeds one ODS payload into the accumulator set. It
// returns the reassembled object once its last fragment has been seen, nil
// otherwise.
func accumulateObject(payload []byte, accumulators map[uint16]*objectAccumulator) (object *completeObject, err error) {
	if len(payload) < 4 {
		err = fmt.Errorf("object definition of %d bytes can not hold its id, version and sequence flag: %w",
			len(payload), subpic.ErrMalformedHeader)
		return
	}
	id := uint16(payload[0])<<8 | uint16(payload[1])
	flag := payload[3]
	rest := payload[4:]
	accumulator, continuing := accumulators[id]
	if flag&odsFlagFirst != 0 {
		if continuing {
			// a new first fragment supersedes an unfinished sequence
			delete(accumulators, id)
		}
		// First fragment: 3 bytes data length (which includes the 4 bytes of
		// width and height), then the image dimensions, then RLE data.
		if len(rest) < 7 {
			err = fmt.Errorf("first object fragment of %d bytes can not hold its data length and dimensions: %w",
				len(payload), subpic.ErrMalformedHeader)
			return
		}
		declared := int(rest[0])<<16 | int(rest[1])<<8 | int(rest[2])
		if declared < 4 {
			err = fmt.Errorf("object data length %d can not even hold the dimensions fields: %w",
				declared, subpic.ErrMalformedHeader)
			return
		}
		declared -= 4
		accumulator = &objectAccumulator{
			id:       id,
			width:    int(rest[3])<<8 | int(rest[4]),
			height:   int(rest[5])<<8 | int(rest[6]),
			declared: declared,
			data:     make([]byte, 0, declared),
		}
		rest = rest[7:]
	} else if !continuing {
		err = fmt.Errorf("continuation fragment for unknown object #%d: %w", id, subpic.ErrMalformedHeader)
		return
	}
	accumulator.data = append(accumulator.data, rest...)
	if len(accumulator.data) > accumulator.declared {
		delete(accumulators, id)
		err = fmt.Errorf("object #%d got %d RLE bytes for %d declared: %w",
			id, len(accumulator.data), accumulator.declared, subpic.ErrMalformedHeader)
		return
	}
	if flag&odsFlagLast == 0 {
		// more fragments to come
		accumulators[id] = accumulator
		return
	}
	delete(accumulators, id)
	if len(accumulator.data) != accumulator.declared {
		err = fmt.Errorf("object #%d last fragment seen with %d RLE bytes out of %d declared: %w",
			id, len(accumulator.data), accumulator.declared, subpic.ErrUnexpectedEOF)
		return
	}
	object = &completeObject{
		width:  accumulator.width,
		height: accumulator.height,
		data:   accumulator.data,
	}
	return
}

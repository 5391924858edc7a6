package pgs

import (
	"errors"
	"fmt"
	"io"

	subpic "github.com/subpix/go-subpic"
)

// Subtitle is one decoded subtitle event: its display window, its bitmap as
// palette indices and the palette active when it was composed.
type Subtitle struct {
	Times   subpic.TimeSpan
	Image   *subpic.IndexedImage
	Palette subpic.Palette
}

// SupParser is a stateful sequence processor over a segment stream, yielding
// one subtitle per presentation composition. It performs no internal
// concurrency: decoding is pull based and the caller cancels by simply not
// pulling anymore.
//
// End times are lazily back filled: a composition with no explicit end is
// closed by the timestamp of the next composition, so a completed subtitle
// is buffered until the segment delimiting it has been seen. The last
// subtitle of a stream may be emitted open ended, which the caller must
// accept as a terminal state.
type SupParser struct {
	// Strict makes unrecognized segment types fail the current event wrapping
	// subpic.ErrUnsupportedSegment instead of being silently skipped.
	Strict bool

	segments *SegmentReader
	palette  sessionPalette
	objects  map[uint16]*objectAccumulator
	object   *completeObject // reassembled, waiting for its composition
	pending  *Subtitle       // composed, waiting for its end time
	eventErr error           // failure of one event, delivered on the next pull
	err      error           // terminal failure of the whole stream
}

// NewSupParser creates a parser over a raw .sup stream.
func NewSupParser(stream io.Reader) *SupParser {
	return &SupParser{
		segments: NewSegmentReader(stream),
		objects:  make(map[uint16]*objectAccumulator),
	}
}

// Next decodes until the next subtitle can be emitted. It returns io.EOF
// once the stream is done. A decoding error aborts only the current event:
// unless it came from the framing layer (in which case it repeats forever),
// the caller may keep calling Next to get the subsequent events.
func (sp *SupParser) Next() (subtitle Subtitle, err error) {
	return sp.next(true)
}

// NextTimes is the fast path of Next when only timing is wanted: composition
// bookkeeping is identical but the RLE payloads are never decoded.
func (sp *SupParser) NextTimes() (times subpic.TimeSpan, err error) {
	subtitle, err := sp.next(false)
	if err != nil {
		return
	}
	times = subtitle.Times
	return
}

func (sp *SupParser) next(decodeImage bool) (subtitle Subtitle, err error) {
	if sp.err != nil {
		err = sp.err
		return
	}
	if sp.eventErr != nil {
		err = sp.eventErr
		sp.eventErr = nil
		return
	}
	var segment Segment
	for {
		if segment, err = sp.segments.Next(); err != nil {
			if errors.Is(err, io.EOF) && sp.pending != nil {
				// last subtitle of the stream, emitted open ended
				subtitle = *sp.pending
				sp.pending = nil
				err = nil
				return
			}
			// framing errors as well as the final io.EOF repeat forever
			sp.err = err
			return
		}
		switch segment.Type {
		case SegmentPDS:
			if err = sp.palette.apply(segment.Payload); err != nil {
				err = fmt.Errorf("failed to apply palette definition: %w", err)
				return
			}
		case SegmentODS:
			if sp.object, err = accumulateObject(segment.Payload, sp.objects); err != nil {
				err = fmt.Errorf("failed to reassemble object: %w", err)
				return
			}
		case SegmentPCS:
			var emit *Subtitle
			emit, err = sp.compose(segment, decodeImage)
			if emit != nil {
				if err != nil {
					// the previous, fully decoded subtitle is emitted now,
					// the failure of the new event is reported next pull
					sp.eventErr = err
					err = nil
				}
				subtitle = *emit
				return
			}
			if err != nil {
				return
			}
		case SegmentWDS, SegmentEND:
			// window geometry and display set ends do not carry anything the
			// indexed image model needs
		default:
			// unrecognized segment types are skippable, their payload has
			// already been consumed by the framing layer
			if sp.Strict {
				err = fmt.Errorf("segment type %s: %w", segment.Type, subpic.ErrUnsupportedSegment)
				return
			}
		}
	}
}

// compose handles one presentation composition segment: it closes and
// returns the buffered subtitle if any, and turns the currently reassembled
// object (if any) into the new buffered subtitle starting at the composition
// timestamp.
func (sp *SupParser) compose(segment Segment, decodeImage bool) (emit *Subtitle, err error) {
	if sp.pending != nil {
		closed := *sp.pending
		sp.pending = nil
		if !closed.Times.HasEnd {
			if closed.Times, err = closed.Times.WithEnd(segment.Presentation); err != nil {
				err = fmt.Errorf("failed to close subtitle time span: %w", err)
				return
			}
		}
		emit = &closed
	}
	if sp.object == nil {
		// composition without a new object clears the screen
		return
	}
	object := sp.object
	sp.object = nil
	pending := Subtitle{
		Times: subpic.OpenTimeSpan(segment.Presentation),
	}
	if decodeImage {
		if !sp.palette.defined() {
			err = fmt.Errorf("composition without a palette definition: %w", subpic.ErrMalformedHeader)
			return
		}
		if pending.Image, err = DecodeObjectData(object.data, object.width, object.height); err != nil {
			err = fmt.Errorf("failed to decode object data: %w", err)
			return
		}
		if pending.Palette, err = sp.palette.snapshot(); err != nil {
			return
		}
		if int(pending.Image.MaxIndex()) >= pending.Palette.Len() {
			err = fmt.Errorf("image uses index %d on a %d colors palette: %w",
				pending.Image.MaxIndex(), pending.Palette.Len(), subpic.ErrIndexOutOfRange)
			pending.Image = nil
			return
		}
	}
	sp.pending = &pending
	return
}

// CountCompositions scans a whole stream and counts its presentation
// composition segments, which is the number of subtitles a parser will
// yield. It consumes the reader: rewind it before parsing for real.
func CountCompositions(stream io.Reader) (count int, err error) {
	segments := NewSegmentReader(stream)
	var segment Segment
	for {
		if segment, err = segments.Next(); err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
				return
			}
			err = fmt.Errorf("failed to scan stream: %w", err)
			return
		}
		if segment.Type == SegmentPCS {
			count++
		}
	}
}

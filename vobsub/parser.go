package vobsub

import (
	"fmt"
	"image/color"
	"io"

	subpic "github.com/subpix/go-subpic"
)

// Subtitle is one decoded subtitle event of a VobSub track.
type Subtitle struct {
	Times   subpic.TimeSpan
	Image   *subpic.IndexedImage
	Palette subpic.Palette
	Area    subpic.Area
	Forced  bool
}

// Parser decodes the subtitles of one language of a VobSub track, lazily:
// one packet is read and decoded per pull. The .sub stream is only ever
// walked forward with relative skips, so any io.Reader works, a seeker is
// just faster over large streams.
//
// Events without an explicit stop date are closed by the start of the next
// index entry, known up front from the Idx metadata. The last event of a
// track may be emitted open ended.
type Parser struct {
	metadata Metadata
	entries  []IndexEntry
	cursor   *subpic.Cursor
	index    int
}

// NewParser creates a parser over the .sub stream for the language the Idx
// metadata designates as default (its langidx value).
func NewParser(metadata Metadata, sub io.Reader) (*Parser, error) {
	return NewLanguageParser(metadata, sub, metadata.LangIdx)
}

// NewLanguageParser creates a parser for a specific language index of the
// track.
func NewLanguageParser(metadata Metadata, sub io.Reader, langIndex int) (parser *Parser, err error) {
	if len(metadata.Languages) == 0 {
		err = fmt.Errorf("Idx metadata holds no language block: %w", subpic.ErrMalformedHeader)
		return
	}
	selected := metadata.Languages[0]
	for _, lang := range metadata.Languages {
		if lang.Index == langIndex {
			selected = lang
			break
		}
	}
	parser = &Parser{
		metadata: metadata,
		entries:  selected.Entries,
		cursor:   subpic.NewCursor(sub),
	}
	return
}

// Remaining returns the number of index entries left to decode.
func (p *Parser) Remaining() int {
	return len(p.entries) - p.index
}

// Next decodes the subtitle of the next index entry. It returns io.EOF once
// the index is exhausted. A decoding error aborts only the current entry,
// the caller may keep pulling for the subsequent ones.
func (p *Parser) Next() (subtitle Subtitle, err error) {
	return p.next(true)
}

// NextTimes is the fast path of Next when only timing is wanted: the packet
// is still read and its control sequences parsed (the stop date lives
// there), but the RLE payload is never decoded.
func (p *Parser) NextTimes() (times subpic.TimeSpan, err error) {
	subtitle, err := p.next(false)
	if err != nil {
		return
	}
	times = subtitle.Times
	return
}

func (p *Parser) next(decodeImage bool) (subtitle Subtitle, err error) {
	if p.index >= len(p.entries) {
		err = io.EOF
		return
	}
	entry := p.entries[p.index]
	limit := int64(-1)
	if p.index+1 < len(p.entries) {
		limit = p.entries[p.index+1].FilePos
	}
	p.index++
	defer func() {
		if err != nil {
			err = fmt.Errorf("failed to decode subtitle #%d: %w", p.index, err)
		}
	}()
	// move forward to the packet, the index must be sorted by file position
	delta := entry.FilePos - p.cursor.Position()
	if delta < 0 {
		err = fmt.Errorf("index entry at offset %d is behind the stream position %d: %w",
			entry.FilePos, p.cursor.Position(), subpic.ErrInconsistentTiming)
		return
	}
	if err = p.cursor.Skip(delta); err != nil {
		err = fmt.Errorf("failed to skip to the packet at offset %d: %w", entry.FilePos, err)
		return
	}
	payload, _, err := readSubtitlePacket(p.cursor, limit)
	if err != nil {
		err = fmt.Errorf("failed to read subtitle packet: %w", err)
		return
	}
	control, err := parseControl(payload)
	if err != nil {
		err = fmt.Errorf("failed to parse control sequences: %w", err)
		return
	}
	base := p.metadata.TimeOffset + entry.Timestamp
	start := base + control.startDelay
	switch {
	case control.hasStop:
		if subtitle.Times, err = subpic.NewTimeSpan(start, base+control.stopDelay); err != nil {
			err = fmt.Errorf("invalid control sequence dates: %w", err)
			return
		}
	case p.index < len(p.entries):
		// no stop date, the next entry closes this one
		next := p.metadata.TimeOffset + p.entries[p.index].Timestamp
		if subtitle.Times, err = subpic.NewTimeSpan(start, next); err != nil {
			err = fmt.Errorf("next index entry precedes the current one: %w", err)
			return
		}
	default:
		// last entry of the track, emitted open ended
		subtitle.Times = subpic.OpenTimeSpan(start)
	}
	subtitle.Forced = control.forced
	if !control.hasArea {
		err = fmt.Errorf("subtitle packet carries no coordinates command: %w", subpic.ErrMalformedHeader)
		return
	}
	subtitle.Area = control.area
	if !decodeImage {
		return
	}
	if !control.hasOffsets {
		err = fmt.Errorf("subtitle packet carries no RLE offsets command: %w", subpic.ErrMalformedHeader)
		return
	}
	if !control.hasPalette {
		err = fmt.Errorf("subtitle packet carries no palette command: %w", subpic.ErrMalformedHeader)
		return
	}
	if subtitle.Palette, err = eventPalette(p.metadata, control); err != nil {
		err = fmt.Errorf("failed to build the subtitle palette: %w", err)
		return
	}
	if subtitle.Image, err = decodeFields(payload, control, subtitle.Area.Width(), subtitle.Area.Height()); err != nil {
		err = fmt.Errorf("failed to decode RLE fields: %w", err)
		subtitle.Palette = subpic.Palette{}
		return
	}
	return
}

// eventPalette resolves the 4 colors palette of one event: each of the 4 RLE
// color codes selects an entry of the 16 colors track palette, with the
// event's own alpha levels applied.
func eventPalette(metadata Metadata, control controlData) (palette subpic.Palette, err error) {
	if metadata.Palette.Len() != subpic.VobSubPaletteSize {
		err = fmt.Errorf("Idx metadata holds a %d colors palette instead of %d: %w",
			metadata.Palette.Len(), subpic.VobSubPaletteSize, subpic.ErrMalformedHeader)
		return
	}
	entries := make([]color.RGBA, 4)
	for code := range entries {
		c, getErr := metadata.Palette.Get(int(control.paletteIndices[code]))
		if getErr != nil {
			err = getErr
			return
		}
		if control.hasAlpha {
			c.A = control.alphas[code]
		}
		entries[code] = c
	}
	palette = subpic.NewPalette(4)
	if err = palette.Update(0, entries); err != nil {
		return
	}
	return
}

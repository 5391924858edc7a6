package pgs

import (
	"fmt"
	"image/color"

	subpic "github.com/subpix/go-subpic"
)

const pdsEntryLen = 5

// sessionPalette is the single writer palette state of one decode session.
// Palette Definition Segments patch it entry by entry: a full definition
// covers every index, a partial one only the indices it declares, later
// definitions overriding earlier ones at matching indices.
type sessionPalette struct {
	entries [subpic.PGSPaletteSize]color.RGBA
	size    int // highest defined index + 1
}

// apply patches the palette with the entries of one Palette Definition
// Segment payload: a 2 bytes header (palette id + version) followed by 5
// bytes entries (index, Y, Cr, Cb, alpha).
func (sp *sessionPalette) apply(payload []byte) (err error) {
	if len(payload) < 2 {
		err = fmt.Errorf("palette definition of %d bytes can not hold its id and version: %w",
			len(payload), subpic.ErrMalformedHeader)
		return
	}
	entries := payload[2:]
	if len(entries)%pdsEntryLen != 0 {
		err = fmt.Errorf("palette definition entries length (%d) is not a multiple of %d: %w",
			len(entries), pdsEntryLen, subpic.ErrMalformedHeader)
		return
	}
	for i := 0; i < len(entries); i += pdsEntryLen {
		index := int(entries[i])
		r, g, b := color.YCbCrToRGB(entries[i+1], entries[i+3], entries[i+2])
		sp.entries[index] = color.RGBA{
			R: r,
			G: g,
			B: b,
			A: entries[i+4],
		}
		if index+1 > sp.size {
			sp.size = index + 1
		}
	}
	return
}

// snapshot clones the currently defined entries into an immutable palette so
// that later updates do not mutate already emitted subtitles.
func (sp *sessionPalette) snapshot() (palette subpic.Palette, err error) {
	palette = subpic.NewPalette(sp.size)
	if err = palette.Update(0, sp.entries[:sp.size]); err != nil {
		err = fmt.Errorf("failed to snapshot session palette: %w", err)
		return
	}
	return
}

// defined reports whether at least one palette entry has been seen.
func (sp *sessionPalette) defined() bool {
	return sp.size > 0
}

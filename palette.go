package subpic

import (
	"fmt"
	"image/color"
)

const (
	// VobSubPaletteSize is the number of colors of a DVD subtitle palette.
	VobSubPaletteSize = 16
	// PGSPaletteSize is the maximum number of colors of a Blu-ray subtitle palette.
	PGSPaletteSize = 256
)

// Palette is an ordered set of indexed RGBA colors. Index lookups are bound
// checked: a decoded pixel index beyond the palette length is a decode error,
// never a panic. Channel values are raw 0-255 passthrough, no gamma or
// colorspace conversion is applied.
type Palette struct {
	colors []color.RGBA
}

// NewPalette returns a palette of size fully transparent black entries.
func NewPalette(size int) Palette {
	return Palette{
		colors: make([]color.RGBA, size),
	}
}

// PaletteFromRGB builds a palette from raw RGB triples, all entries getting
// the same alpha channel value.
func PaletteFromRGB(triples [][3]uint8, defaultAlpha uint8) (palette Palette) {
	palette.colors = make([]color.RGBA, len(triples))
	for index, triple := range triples {
		palette.colors[index] = color.RGBA{
			R: triple[0],
			G: triple[1],
			B: triple[2],
			A: defaultAlpha,
		}
	}
	return
}

// Len returns the number of entries within the palette.
func (p Palette) Len() int {
	return len(p.colors)
}

// Get returns the color stored at index. It fails wrapping ErrIndexOutOfRange
// if index is equal or greater than the palette length.
func (p Palette) Get(index int) (c color.RGBA, err error) {
	if index < 0 || index >= len(p.colors) {
		err = fmt.Errorf("index %d on a %d colors palette: %w", index, len(p.colors), ErrIndexOutOfRange)
		return
	}
	c = p.colors[index]
	return
}

// Update patches a sub range of the palette starting at offset. Later updates
// override earlier ones at matching indices.
func (p *Palette) Update(offset int, entries []color.RGBA) (err error) {
	if offset < 0 || offset+len(entries) > len(p.colors) {
		err = fmt.Errorf("update of %d entries at offset %d on a %d colors palette: %w",
			len(entries), offset, len(p.colors), ErrIndexOutOfRange)
		return
	}
	copy(p.colors[offset:], entries)
	return
}

// ApplyAlpha mutates the alpha channel of the given indices only. Both slices
// must have the same length.
func (p *Palette) ApplyAlpha(indices []uint8, alphas []uint8) (err error) {
	if len(indices) != len(alphas) {
		err = fmt.Errorf("got %d indices for %d alpha values", len(indices), len(alphas))
		return
	}
	for i, index := range indices {
		if int(index) >= len(p.colors) {
			err = fmt.Errorf("alpha target index %d on a %d colors palette: %w", index, len(p.colors), ErrIndexOutOfRange)
			return
		}
		p.colors[index].A = alphas[i]
	}
	return
}

// SetCustom overlays up to 4 custom colors at the beginning of the palette,
// with one entry designated as fully transparent. This matches the optional
// "custom colors" override of Idx files.
func (p *Palette) SetCustom(transparentIndex uint8, customs []color.RGBA) (err error) {
	if len(customs) > 4 {
		err = fmt.Errorf("got %d custom colors, 4 maximum allowed", len(customs))
		return
	}
	if len(customs) > len(p.colors) {
		err = fmt.Errorf("%d custom colors on a %d colors palette: %w", len(customs), len(p.colors), ErrIndexOutOfRange)
		return
	}
	if int(transparentIndex) >= len(p.colors) {
		err = fmt.Errorf("transparent index %d on a %d colors palette: %w", transparentIndex, len(p.colors), ErrIndexOutOfRange)
		return
	}
	copy(p.colors, customs)
	p.colors[transparentIndex].A = 0
	return
}

// Clone returns an independent copy of the palette. Decoders hand out clones
// so that palette updates from later events do not mutate already emitted
// subtitles.
func (p Palette) Clone() (clone Palette) {
	clone.colors = make([]color.RGBA, len(p.colors))
	copy(clone.colors, p.colors)
	return
}

// Colors converts the palette to the stdlib image/color type.
func (p Palette) Colors() color.Palette {
	colors := make(color.Palette, len(p.colors))
	for index, c := range p.colors {
		colors[index] = c
	}
	return colors
}

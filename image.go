package subpic

import (
	"fmt"
	"io"
)

// PixelRun is a horizontal run of identical pixels: the next Count pixels of
// the current line all carry the palette index Index.
type PixelRun struct {
	Index uint8
	Count int
}

// RunReader is the pull based producer interface shared by both RLE dialects.
// Decoding is lazy: nothing is read from the underlying payload until the
// caller pulls. A reader is not resumable mid stream, restart by re-invoking
// the decode on the same payload.
type RunReader interface {
	// NextRun returns the next pixel run. Runs never cross line boundaries.
	// io.EOF is returned once the declared pixel count has been produced.
	NextRun() (PixelRun, error)
}

// IndexedImage is a raster whose pixels are palette indices, stored compactly
// as line bounded runs. It is immutable after construction.
type IndexedImage struct {
	width, height int
	runs          []PixelRun
}

// CollectRuns drains a RunReader into an IndexedImage of the given
// dimensions. Runs crossing a line boundary are split so that the stored runs
// are always line bounded. It fails wrapping ErrMalformedRLE if the reader
// produces more pixels than width*height, and ErrUnexpectedEOF if it stops
// producing before that count is reached.
func CollectRuns(reader RunReader, width, height int) (img *IndexedImage, err error) {
	if width <= 0 || height <= 0 {
		err = fmt.Errorf("invalid image dimensions %dx%d", width, height)
		return
	}
	img = &IndexedImage{
		width:  width,
		height: height,
		runs:   make([]PixelRun, 0, height), // at least one run per line
	}
	var (
		run    PixelRun
		total  int
		column int
	)
	target := width * height
	for {
		if run, err = reader.NextRun(); err != nil {
			if err == io.EOF {
				err = nil
				break
			}
			img = nil
			return
		}
		if run.Count <= 0 {
			continue
		}
		if total+run.Count > target {
			err = fmt.Errorf("run of %d pixels overflows the %d pixels image (%d already decoded): %w",
				run.Count, target, total, ErrMalformedRLE)
			img = nil
			return
		}
		total += run.Count
		// split on line boundaries
		for run.Count > 0 {
			remaining := width - column
			if run.Count < remaining {
				img.runs = append(img.runs, run)
				column += run.Count
				break
			}
			img.runs = append(img.runs, PixelRun{Index: run.Index, Count: remaining})
			run.Count -= remaining
			column = 0
		}
	}
	if total != target {
		err = fmt.Errorf("decoded %d pixels for a %d pixels image: %w", total, target, ErrUnexpectedEOF)
		img = nil
		return
	}
	return
}

// ImageFromRuns builds an IndexedImage directly from already line bounded
// runs. Mostly useful to assemble images programmatically.
func ImageFromRuns(width, height int, runs []PixelRun) (*IndexedImage, error) {
	return CollectRuns(&sliceRunReader{runs: runs}, width, height)
}

type sliceRunReader struct {
	runs []PixelRun
	next int
}

func (srr *sliceRunReader) NextRun() (run PixelRun, err error) {
	if srr.next >= len(srr.runs) {
		err = io.EOF
		return
	}
	run = srr.runs[srr.next]
	srr.next++
	return
}

// Width returns the image width in pixels.
func (img *IndexedImage) Width() int {
	return img.width
}

// Height returns the image height in pixels.
func (img *IndexedImage) Height() int {
	return img.height
}

// At returns the palette index of the pixel at (x, y).
func (img *IndexedImage) At(x, y int) uint8 {
	if x < 0 || x >= img.width || y < 0 || y >= img.height {
		return 0
	}
	target := y*img.width + x
	position := 0
	for _, run := range img.runs {
		if target < position+run.Count {
			return run.Index
		}
		position += run.Count
	}
	return 0
}

// MaxIndex returns the highest palette index used by the image.
func (img *IndexedImage) MaxIndex() (max uint8) {
	for _, run := range img.runs {
		if run.Index > max {
			max = run.Index
		}
	}
	return
}

// EachRun walks the image runs in raster order, calling walk with the
// coordinates of the first pixel of each run. Iteration stops on the first
// error returned by walk.
func (img *IndexedImage) EachRun(walk func(x, y int, run PixelRun) error) (err error) {
	var x, y int
	for _, run := range img.runs {
		if err = walk(x, y, run); err != nil {
			return
		}
		if x += run.Count; x >= img.width {
			x = 0
			y++
		}
	}
	return
}

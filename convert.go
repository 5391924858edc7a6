package subpic

import (
	"fmt"
	"image"
	"image/color"

	"golang.org/x/image/draw"
)

// ToImage converts an indexed image and its palette to a full RGBA raster.
// Each pixel is a straight palette lookup, no interpolation. The conversion
// is pure: converting the same pair twice yields byte identical rasters. It
// fails wrapping ErrIndexOutOfRange if the image uses an index beyond the
// palette length.
func ToImage(img *IndexedImage, palette Palette) (raster *image.RGBA, err error) {
	raster = image.NewRGBA(image.Rect(0, 0, img.Width(), img.Height()))
	err = img.EachRun(func(x, y int, run PixelRun) error {
		c, walkErr := palette.Get(int(run.Index))
		if walkErr != nil {
			return walkErr
		}
		for i := 0; i < run.Count; i++ {
			raster.SetRGBA(x+i, y, c)
		}
		return nil
	})
	if err != nil {
		raster = nil
		err = fmt.Errorf("failed to convert indexed image: %w", err)
		return
	}
	return
}

// OcrOptions tunes the grayscale conversion done by ToOcrImage.
type OcrOptions struct {
	// Border is the number of background pixels added around the image.
	Border int
	// TextShade is the gray value given to the brightest foreground pixels.
	TextShade uint8
	// BackgroundShade is the gray value of the background.
	BackgroundShade uint8
	// BackgroundIndex is the palette index treated as background.
	BackgroundIndex uint8
	// Scale is an integer upscale factor applied to the final raster. OCR
	// engines behave poorly on the small glyphs of SD subtitles. Values
	// below 2 leave the raster untouched.
	Scale int
}

// DefaultOcrOptions returns the options used by most OCR pipelines: black
// text over white background with a 5 pixels border.
func DefaultOcrOptions() OcrOptions {
	return OcrOptions{
		Border:          5,
		TextShade:       0,
		BackgroundShade: 255,
	}
}

// ToOcrImage converts an indexed image to a single channel grayscale raster
// tuned for text recognition. Pixels of the background index and fully
// transparent palette entries become the background shade; every other pixel
// is mapped between the background and text shades by its luminance, the
// brightest colors (the letters themselves on virtually every subtitle)
// landing on the text shade. Like ToImage the conversion is pure.
func ToOcrImage(img *IndexedImage, palette Palette, opt OcrOptions) (raster *image.Gray, err error) {
	width := img.Width() + 2*opt.Border
	height := img.Height() + 2*opt.Border
	raster = image.NewGray(image.Rect(0, 0, width, height))
	for i := range raster.Pix {
		raster.Pix[i] = opt.BackgroundShade
	}
	err = img.EachRun(func(x, y int, run PixelRun) error {
		c, walkErr := palette.Get(int(run.Index))
		if walkErr != nil {
			return walkErr
		}
		if run.Index == opt.BackgroundIndex || c.A == 0 {
			return nil
		}
		// Rec. 601 luma, then inverted into the [text, background] range.
		luma := (299*int(c.R) + 587*int(c.G) + 114*int(c.B)) / 1000
		shade := uint8(int(opt.BackgroundShade) + (int(opt.TextShade)-int(opt.BackgroundShade))*luma/255)
		for i := 0; i < run.Count; i++ {
			raster.SetGray(x+opt.Border+i, y+opt.Border, color.Gray{Y: shade})
		}
		return nil
	})
	if err != nil {
		raster = nil
		err = fmt.Errorf("failed to convert indexed image: %w", err)
		return
	}
	if opt.Scale > 1 {
		scaled := image.NewGray(image.Rect(0, 0, width*opt.Scale, height*opt.Scale))
		draw.NearestNeighbor.Scale(scaled, scaled.Bounds(), raster, raster.Bounds(), draw.Src, nil)
		raster = scaled
	}
	return
}

package main

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"

	subpic "github.com/subpix/go-subpic"
	"github.com/subpix/go-subpic/pgs"
	"github.com/subpix/go-subpic/vobsub"
)

// set to true to generate the high contrast grayscale renditions OCR engines
// prefer instead of the original colors
const ocrImages = false

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <subtitles.sup|subtitles.sub|subtitles.idx>\n", os.Args[0])
		os.Exit(1)
	}
	path := os.Args[1]
	var err error
	switch filepath.Ext(path) {
	case ".sup":
		err = dumpSup(path)
	case ".sub", ".idx":
		err = dumpVobSub(path)
	default:
		err = fmt.Errorf("unsupported file extension: %q", filepath.Ext(path))
	}
	if err != nil {
		panic(err)
	}
}

func dumpSup(path string) (err error) {
	fd, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open the .sup file: %w", err)
	}
	defer fd.Close()
	parser := pgs.NewSupParser(fd)
	for index := 1; ; index++ {
		subtitle, decodeErr := parser.Next()
		if decodeErr != nil {
			if errors.Is(decodeErr, io.EOF) {
				return
			}
			// a bad event does not condemn the rest of the stream
			fmt.Printf("Subtitle #%d skipped: %v\n", index, decodeErr)
			continue
		}
		fmt.Printf("Subtitle #%d: %s\n", index, subtitle.Times)
		if err = dumpImage(index, subtitle.Image, subtitle.Palette); err != nil {
			return
		}
	}
}

func dumpVobSub(path string) (err error) {
	_, subtitles, skipped, err := vobsub.DecodeFile(path)
	if err != nil {
		return
	}
	if len(skipped) > 0 {
		// this can happen and should normally be discarded, printing for information/debug
		fmt.Printf("Skipped %d bad subtitles:\n", len(skipped))
		for _, skipErr := range skipped {
			fmt.Printf("\t%v\n", skipErr)
		}
	}
	for index, subtitle := range subtitles {
		fmt.Printf("Subtitle #%d: %s (forced: %v)\n", index+1, subtitle.Times, subtitle.Forced)
		if err = dumpImage(index+1, subtitle.Image, subtitle.Palette); err != nil {
			return
		}
	}
	return
}

func dumpImage(index int, indexed *subpic.IndexedImage, palette subpic.Palette) (err error) {
	var img image.Image
	if ocrImages {
		if img, err = subpic.ToOcrImage(indexed, palette, subpic.DefaultOcrOptions()); err != nil {
			return fmt.Errorf("failed to convert subtitle #%d for OCR: %w", index, err)
		}
	} else {
		if img, err = subpic.ToImage(indexed, palette); err != nil {
			return fmt.Errorf("failed to convert subtitle #%d: %w", index, err)
		}
	}
	return writePNG(fmt.Sprintf("sub-%04d.png", index), img)
}

func writePNG(filename string, img image.Image) (err error) {
	file, err := os.Create(filename)
	if err != nil {
		return
	}
	defer file.Close()
	return png.Encode(file, img)
}

package vobsub

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DecodeFile decodes every subtitle of the default language of a VobSub
// track. path can point to either file of the pair, the companion is derived
// by swapping the extension. Packets that fail to decode are skipped (seen
// in the wild on otherwise fine tracks) and reported in skipped.
func DecodeFile(path string) (metadata Metadata, subtitles []Subtitle, skipped []error, err error) {
	var idxPath, subPath string
	switch extension := filepath.Ext(path); extension {
	case ".sub":
		subPath = path
		idxPath = path[:len(path)-len(extension)] + ".idx"
	case ".idx":
		idxPath = path
		subPath = path[:len(path)-len(extension)] + ".sub"
	default:
		err = fmt.Errorf("expected a .sub or .idx file extension, got %q", extension)
		return
	}
	if metadata, err = decodeIdxFile(idxPath); err != nil {
		err = fmt.Errorf("failed to read the Idx file: %w", err)
		return
	}
	fd, err := os.Open(subPath)
	if err != nil {
		err = fmt.Errorf("failed to open the .sub file: %w", err)
		return
	}
	defer fd.Close()
	parser, err := NewParser(metadata, fd)
	if err != nil {
		err = fmt.Errorf("failed to initialize the parser: %w", err)
		return
	}
	subtitles = make([]Subtitle, 0, parser.Remaining())
	for {
		subtitle, decodeErr := parser.Next()
		if decodeErr != nil {
			if errors.Is(decodeErr, io.EOF) {
				return
			}
			skipped = append(skipped, decodeErr)
			continue
		}
		subtitles = append(subtitles, subtitle)
	}
}

func decodeIdxFile(path string) (metadata Metadata, err error) {
	fd, err := os.Open(path)
	if err != nil {
		err = fmt.Errorf("failed to open file: %w", err)
		return
	}
	defer fd.Close()
	if metadata, err = ParseIdx(fd); err != nil {
		err = fmt.Errorf("failed to parse Idx metadata: %w", err)
		return
	}
	return
}

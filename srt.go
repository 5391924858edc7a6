package subpic

import (
	"fmt"
	"io"
)

// TimedText pairs a subtitle time span with its recognized text, ready to be
// exported. Producing the text itself (OCR) is not part of this module.
type TimedText struct {
	Times TimeSpan
	Text  string
}

// WriteSRT writes subtitles in the SubRip format. All spans must be closed:
// an open ended span fails wrapping ErrInconsistentTiming since SubRip has no
// way to express it, back-fill ends before exporting.
func WriteSRT(writer io.Writer, subtitles []TimedText) (err error) {
	for index, subtitle := range subtitles {
		if !subtitle.Times.HasEnd {
			err = fmt.Errorf("subtitle #%d has no end time: %w", index+1, ErrInconsistentTiming)
			return
		}
		if _, err = fmt.Fprintf(writer, "%d\n%s\n%s\n\n", index+1, subtitle.Times, subtitle.Text); err != nil {
			err = fmt.Errorf("failed to write subtitle #%d: %w", index+1, err)
			return
		}
	}
	return
}

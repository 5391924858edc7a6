package vobsub

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"image/color"
	"io"
	"strconv"
	"strings"
	"time"

	subpic "github.com/subpix/go-subpic"
	"golang.org/x/text/language"
)

const (
	idxSizePrefix         = "size: "
	idxOriginPrefix       = "org: "
	idxAlphaRatioPrefix   = "alpha: "
	idxSmoothPrefix       = "smooth: "
	idxFadePrefix         = "fadein/out: "
	idxFadeUnit           = time.Millisecond
	idxAlignPrefix        = "align: "
	idxTimeOffsetPrefix   = "time offset: "
	idxTimeOffsetUnit     = time.Millisecond
	idxForcedSubsPrefix   = "forced subs: "
	idxLangIdxPrefix      = "langidx: "
	idxPalettePrefix      = "palette: "
	idxCustomColorsPrefix = "custom colors: "
	idxLanguagePrefix     = "id: "
	idxTimestampPrefix    = "timestamp: "
)

// Coordinate is a position on the video frame.
type Coordinate struct {
	X, Y int
}

// Metadata is the content of an Idx file: the global rendering parameters of
// a subtitles track and, per language, the index of the subtitle packets
// within the companion .sub file.
type Metadata struct {
	Width, Height   int
	Origin          Coordinate
	AlphaRatio      float64
	Smooth          bool
	FadeIn, FadeOut time.Duration
	Align           string
	TimeOffset      time.Duration
	ForcedSubs      bool
	LangIdx         int
	Palette         subpic.Palette
	Languages       []Language
}

// Language is one language block of an Idx file.
type Language struct {
	Tag     language.Tag
	Index   int
	Entries []IndexEntry
}

// IndexEntry locates one subtitle packet: its start timestamp and the byte
// offset of its first MPEG packet within the .sub file.
type IndexEntry struct {
	Timestamp time.Duration
	FilePos   int64
}

// ParseIdx parses the textual Idx sidecar. Unknown and comment lines are
// skipped. All parse failures wrap subpic.ErrMalformedHeader.
func ParseIdx(reader io.Reader) (metadata Metadata, err error) {
	metadata.AlphaRatio = 1
	scanner := bufio.NewScanner(reader)
	lineNb := 0
	for scanner.Scan() {
		lineNb++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err = parseIdxLine(line, &metadata); err != nil {
			err = fmt.Errorf("failed to parse Idx line %d: %w", lineNb, err)
			return
		}
	}
	if err = scanner.Err(); err != nil {
		err = fmt.Errorf("error while scanning Idx content: %w", err)
		return
	}
	return
}

func parseIdxLine(line string, metadata *Metadata) (err error) {
	switch {
	// Width, Height
	case strings.HasPrefix(line, idxSizePrefix):
		values := strings.Split(line[len(idxSizePrefix):], "x")
		if len(values) != 2 {
			return malformedIdx("expecting size to have exactly two values: %v", values)
		}
		if metadata.Width, err = strconv.Atoi(values[0]); err != nil {
			return malformedIdx("failed to convert width to integer: %s", err)
		}
		if metadata.Height, err = strconv.Atoi(values[1]); err != nil {
			return malformedIdx("failed to convert height to integer: %s", err)
		}
	// Origin
	case strings.HasPrefix(line, idxOriginPrefix):
		values := strings.Split(line[len(idxOriginPrefix):], ", ")
		if len(values) != 2 {
			return malformedIdx("expecting origin to have exactly two values: %v", values)
		}
		if metadata.Origin.X, err = strconv.Atoi(values[0]); err != nil {
			return malformedIdx("failed to convert origin X to integer: %s", err)
		}
		if metadata.Origin.Y, err = strconv.Atoi(values[1]); err != nil {
			return malformedIdx("failed to convert origin Y to integer: %s", err)
		}
	// Alpha ratio
	case strings.HasPrefix(line, idxAlphaRatioPrefix):
		value := line[len(idxAlphaRatioPrefix):]
		if !strings.HasSuffix(value, "%") {
			return malformedIdx("alpha ratio line should end with '%%': %q", value)
		}
		var intValue int
		if intValue, err = strconv.Atoi(value[:len(value)-1]); err != nil {
			return malformedIdx("can not parse alpha value %q as integer: %s", value, err)
		}
		if metadata.AlphaRatio = float64(intValue) / 100; metadata.AlphaRatio <= 0 || metadata.AlphaRatio > 1 {
			return malformedIdx("alpha ratio must be within ]0%%, 100%%]: %d%%", intValue)
		}
	// Smooth
	case strings.HasPrefix(line, idxSmoothPrefix):
		if metadata.Smooth, err = parseIdxSwitch(line[len(idxSmoothPrefix):]); err != nil {
			return malformedIdx("unexpected smooth value: %s", err)
		}
	// Fade in / Fade out
	case strings.HasPrefix(line, idxFadePrefix):
		values := strings.Split(line[len(idxFadePrefix):], ", ")
		if len(values) != 2 {
			return malformedIdx("expecting fade in/out to have exactly two values: %v", values)
		}
		var fadeValue int
		if fadeValue, err = strconv.Atoi(values[0]); err != nil {
			return malformedIdx("failed to convert fade in to integer: %s", err)
		}
		metadata.FadeIn = time.Duration(fadeValue) * idxFadeUnit
		if fadeValue, err = strconv.Atoi(values[1]); err != nil {
			return malformedIdx("failed to convert fade out to integer: %s", err)
		}
		metadata.FadeOut = time.Duration(fadeValue) * idxFadeUnit
	// Align
	case strings.HasPrefix(line, idxAlignPrefix):
		metadata.Align = line[len(idxAlignPrefix):]
	// Time offset, can be negative
	case strings.HasPrefix(line, idxTimeOffsetPrefix):
		var valueRaw int
		if valueRaw, err = strconv.Atoi(line[len(idxTimeOffsetPrefix):]); err != nil {
			return malformedIdx("failed to convert time offset to integer: %s", err)
		}
		metadata.TimeOffset = time.Duration(valueRaw) * idxTimeOffsetUnit
	// Forced subs
	case strings.HasPrefix(line, idxForcedSubsPrefix):
		if metadata.ForcedSubs, err = parseIdxSwitch(line[len(idxForcedSubsPrefix):]); err != nil {
			return malformedIdx("unexpected forced subs value: %s", err)
		}
	// Language index
	case strings.HasPrefix(line, idxLangIdxPrefix):
		if metadata.LangIdx, err = strconv.Atoi(line[len(idxLangIdxPrefix):]); err != nil {
			return malformedIdx("failed to convert language index to integer: %s", err)
		}
	// Palette
	case strings.HasPrefix(line, idxPalettePrefix):
		return parseIdxPalette(line[len(idxPalettePrefix):], metadata)
	// Custom colors
	case strings.HasPrefix(line, idxCustomColorsPrefix):
		return parseIdxCustomColors(line[len(idxCustomColorsPrefix):], metadata)
	// Language block start
	case strings.HasPrefix(line, idxLanguagePrefix):
		return parseIdxLanguage(line[len(idxLanguagePrefix):], metadata)
	// Timestamp of the current language block
	case strings.HasPrefix(line, idxTimestampPrefix):
		return parseIdxTimestamp(line[len(idxTimestampPrefix):], metadata)
	default:
		// skip line
	}
	return
}

func parseIdxSwitch(value string) (on bool, err error) {
	switch value {
	case "ON":
		on = true
	case "OFF":
	default:
		err = fmt.Errorf("expecting ON or OFF, got %q", value)
	}
	return
}

func parseIdxPalette(value string, metadata *Metadata) (err error) {
	values := strings.Split(strings.ReplaceAll(value, ", ", ","), ",") // both separators seen in the wild
	if len(values) != subpic.VobSubPaletteSize {
		return malformedIdx("palette should have %d colors, got %d: %v",
			subpic.VobSubPaletteSize, len(values), values)
	}
	triples := make([][3]uint8, len(values))
	for index, colorStr := range values {
		var colorValues []byte
		if colorValues, err = parseIdxColor(colorStr); err != nil {
			return malformedIdx("invalid palette color at index #%d: %s", index, err)
		}
		triples[index] = [3]uint8{colorValues[0], colorValues[1], colorValues[2]}
	}
	metadata.Palette = subpic.PaletteFromRGB(triples, uint8(255*metadata.AlphaRatio))
	return
}

// parseIdxCustomColors handles the optional palette override, e.g.
// "custom colors: ON, tridx: 1000, colors: 000000, 828282, 828282, ffffff".
// The tridx flags mark which of the 4 colors are fully transparent.
func parseIdxCustomColors(value string, metadata *Metadata) (err error) {
	fields := strings.SplitN(value, ", tridx: ", 2)
	if len(fields) != 2 {
		return malformedIdx("custom colors line misses its tridx field: %q", value)
	}
	var on bool
	if on, err = parseIdxSwitch(fields[0]); err != nil {
		return malformedIdx("unexpected custom colors value: %s", err)
	}
	fields = strings.SplitN(fields[1], ", colors: ", 2)
	if len(fields) != 2 {
		return malformedIdx("custom colors line misses its colors field: %q", value)
	}
	if !on {
		return
	}
	if metadata.Palette.Len() == 0 {
		return malformedIdx("custom colors line found before the palette line")
	}
	var tridx uint64
	if tridx, err = strconv.ParseUint(fields[0], 2, 8); err != nil {
		return malformedIdx("failed to parse tridx %q as binary flags: %s", fields[0], err)
	}
	values := strings.Split(strings.ReplaceAll(fields[1], ", ", ","), ",")
	if len(values) != 4 {
		return malformedIdx("custom colors should have 4 colors, got %d: %v", len(values), values)
	}
	customs := make([]color.RGBA, len(values))
	for index, colorStr := range values {
		var colorValues []byte
		if colorValues, err = parseIdxColor(colorStr); err != nil {
			return malformedIdx("invalid custom color at index #%d: %s", index, err)
		}
		customs[index] = color.RGBA{
			R: colorValues[0],
			G: colorValues[1],
			B: colorValues[2],
			A: uint8(255 * metadata.AlphaRatio),
		}
	}
	// tridx digits map left to right to the colors 0 to 3
	transparents := make([]uint8, 0, 4)
	for i := 0; i < 4; i++ {
		if tridx&(0b1000>>i) != 0 {
			transparents = append(transparents, uint8(i))
		}
	}
	if len(transparents) == 0 {
		return metadata.Palette.Update(0, customs)
	}
	if err = metadata.Palette.SetCustom(transparents[0], customs); err != nil {
		return fmt.Errorf("failed to apply custom colors: %w", err)
	}
	for _, index := range transparents[1:] {
		if err = metadata.Palette.ApplyAlpha([]uint8{index}, []uint8{0}); err != nil {
			return fmt.Errorf("failed to apply custom colors transparency: %w", err)
		}
	}
	return
}

func parseIdxColor(colorStr string) (colorValues []byte, err error) {
	if len(colorStr) != 6 {
		err = fmt.Errorf("hex color %q must be 6 characters long", colorStr)
		return
	}
	if colorValues, err = hex.DecodeString(colorStr); err != nil {
		err = fmt.Errorf("failed to decode hex color %q: %s", colorStr, err)
		return
	}
	return
}

// parseIdxLanguage starts a new language block, e.g. "id: en, index: 0".
// Identifiers that are not valid BCP 47 tags (seen in the wild) fall back to
// the undetermined language instead of failing the whole file.
func parseIdxLanguage(value string, metadata *Metadata) (err error) {
	fields := strings.SplitN(value, ", index: ", 2)
	if len(fields) != 2 {
		return malformedIdx("language line misses its index field: %q", value)
	}
	lang := Language{Tag: language.Und}
	if tag, tagErr := language.Parse(fields[0]); tagErr == nil {
		lang.Tag = tag
	}
	if lang.Index, err = strconv.Atoi(fields[1]); err != nil {
		return malformedIdx("failed to convert language index to integer: %s", err)
	}
	metadata.Languages = append(metadata.Languages, lang)
	return
}

// parseIdxTimestamp adds one packet index entry to the current language
// block, e.g. "timestamp: 00:03:28:308, filepos: 00000d000" (the file
// position is hexadecimal).
func parseIdxTimestamp(value string, metadata *Metadata) (err error) {
	if len(metadata.Languages) == 0 {
		return malformedIdx("timestamp line found before any language line")
	}
	fields := strings.SplitN(value, ", filepos: ", 2)
	if len(fields) != 2 {
		return malformedIdx("timestamp line misses its filepos field: %q", value)
	}
	var entry IndexEntry
	if entry.Timestamp, err = parseIdxDuration(fields[0]); err != nil {
		return malformedIdx("failed to parse timestamp: %s", err)
	}
	if entry.FilePos, err = strconv.ParseInt(fields[1], 16, 64); err != nil {
		return malformedIdx("failed to parse filepos %q as hexadecimal: %s", fields[1], err)
	}
	current := &metadata.Languages[len(metadata.Languages)-1]
	current.Entries = append(current.Entries, entry)
	return
}

// parseIdxDuration parses the "hh:mm:ss:mmm" timestamps of Idx files, with
// an optional leading minus sign.
func parseIdxDuration(value string) (d time.Duration, err error) {
	negative := strings.HasPrefix(value, "-")
	if negative {
		value = value[1:]
	}
	fields := strings.Split(value, ":")
	if len(fields) != 4 {
		err = fmt.Errorf("expecting hh:mm:ss:mmm, got %q", value)
		return
	}
	units := [4]time.Duration{time.Hour, time.Minute, time.Second, time.Millisecond}
	for i, field := range fields {
		var fieldValue int
		if fieldValue, err = strconv.Atoi(field); err != nil {
			err = fmt.Errorf("failed to convert %q to integer: %s", field, err)
			return
		}
		d += time.Duration(fieldValue) * units[i]
	}
	if negative {
		d = -d
	}
	return
}

func malformedIdx(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, subpic.ErrMalformedHeader)...)
}

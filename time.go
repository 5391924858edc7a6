package subpic

import (
	"fmt"
	"time"
)

// TimeSpan is the display window of one subtitle event. The end is optional:
// some events carry no explicit end marker and stay open until the start of
// the next event is known. The last event of a stream may remain open ended,
// which is a valid terminal state for the caller, not an error.
type TimeSpan struct {
	Start  time.Duration
	End    time.Duration
	HasEnd bool
}

// NewTimeSpan creates a closed time span. It fails wrapping
// ErrInconsistentTiming if end precedes start.
func NewTimeSpan(start, end time.Duration) (ts TimeSpan, err error) {
	if end < start {
		err = fmt.Errorf("end %s precedes start %s: %w", end, start, ErrInconsistentTiming)
		return
	}
	ts = TimeSpan{
		Start:  start,
		End:    end,
		HasEnd: true,
	}
	return
}

// OpenTimeSpan creates a span with no end time yet.
func OpenTimeSpan(start time.Duration) TimeSpan {
	return TimeSpan{
		Start: start,
	}
}

// WithEnd closes the span at the given time, with the same check as
// NewTimeSpan.
func (ts TimeSpan) WithEnd(end time.Duration) (TimeSpan, error) {
	return NewTimeSpan(ts.Start, end)
}

// Duration returns the display duration of the span. ok is false for an open
// ended span.
func (ts TimeSpan) Duration() (d time.Duration, ok bool) {
	if !ts.HasEnd {
		return
	}
	return ts.End - ts.Start, true
}

// String implements the fmt.Stringer interface using the SubRip timestamps
// format. An open end is rendered as "--:--:--,---".
func (ts TimeSpan) String() string {
	if !ts.HasEnd {
		return fmt.Sprintf("%s --> --:--:--,---", FormatTimestamp(ts.Start))
	}
	return fmt.Sprintf("%s --> %s", FormatTimestamp(ts.Start), FormatTimestamp(ts.End))
}

// FormatTimestamp renders a duration as a SubRip "hh:mm:ss,mmm" timestamp.
func FormatTimestamp(d time.Duration) string {
	negative := ""
	if d < 0 {
		negative = "-"
		d = -d
	}
	return fmt.Sprintf("%s%02d:%02d:%02d,%03d", negative,
		int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60, d.Milliseconds()%1000,
	)
}

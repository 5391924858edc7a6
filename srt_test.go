package subpic

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestWriteSRT(t *testing.T) {
	first, err := NewTimeSpan(time.Second, 2*time.Second)
	if err != nil {
		t.Fatalf("failed to create a span: %v", err)
	}
	second, err := NewTimeSpan(2500*time.Millisecond, 4*time.Second)
	if err != nil {
		t.Fatalf("failed to create a span: %v", err)
	}
	var builder strings.Builder
	err = WriteSRT(&builder, []TimedText{
		{Times: first, Text: "Hello."},
		{Times: second, Text: "It's me\nagain."},
	})
	if err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	expected := "1\n00:00:01,000 --> 00:00:02,000\nHello.\n\n" +
		"2\n00:00:02,500 --> 00:00:04,000\nIt's me\nagain.\n\n"
	if diff := cmp.Diff(expected, builder.String()); diff != "" {
		t.Fatalf("unexpected output (-want +got):\n%s", diff)
	}
}

func TestWriteSRTOpenSpan(t *testing.T) {
	var builder strings.Builder
	err := WriteSRT(&builder, []TimedText{
		{Times: OpenTimeSpan(time.Second), Text: "never ends"},
	})
	if !errors.Is(err, ErrInconsistentTiming) {
		t.Fatalf("expected ErrInconsistentTiming, got: %v", err)
	}
}

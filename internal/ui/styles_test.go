package ui

import (
	"strings"
	"testing"
	"time"
)

func TestRenderWithoutColor(t *testing.T) {
	SetColor(false)
	t.Cleanup(func() { SetColor(false) })

	for name, fn := range map[string]func(string) string{
		"accent": RenderAccent,
		"pass":   RenderPass,
		"warn":   RenderWarn,
		"fail":   RenderFail,
		"dim":    RenderDim,
	} {
		if got := fn("text"); got != "text" {
			t.Errorf("%s: got %q, want plain text", name, got)
		}
	}

	if got := RenderBox("a", "b"); got != "  a\n  b" {
		t.Errorf("RenderBox = %q", got)
	}
}

func TestRenderWithColorKeepsText(t *testing.T) {
	SetColor(true)
	t.Cleanup(func() { SetColor(false) })

	got := RenderPass("ok")
	if !strings.Contains(got, "ok") {
		t.Errorf("RenderPass dropped text: %q", got)
	}
	if !strings.Contains(got, "\x1b[") {
		t.Errorf("RenderPass with color has no escape sequence: %q", got)
	}
	if got := RenderBox("line"); !strings.Contains(got, "line") {
		t.Errorf("RenderBox dropped text: %q", got)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{-time.Second, "0s"},
		{1234567 * time.Nanosecond, "1ms"},
		{4600 * time.Millisecond, "4.6s"},
		{15 * time.Second, "15s"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.in); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatCount(t *testing.T) {
	if got := FormatCount(1, "note"); got != "1 note" {
		t.Errorf("got %q", got)
	}
	if got := FormatCount(3, "change"); got != "3 changes" {
		t.Errorf("got %q", got)
	}
}

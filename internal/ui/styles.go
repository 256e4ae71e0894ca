// Package ui renders the small amount of colored CLI output encryptic
// prints. Colors are dropped when stdout is not a terminal.
package ui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
	"golang.org/x/term"
)

const (
	accentColorCode = "39"
	passColorCode   = "42"
	warnColorCode   = "214"
	failColorCode   = "196"
	dimColorCode    = "245"
)

// colorEnabled is resolved once; tests flip it with SetColor.
var colorEnabled = term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == ""

// SetColor forces colored output on or off.
func SetColor(enabled bool) {
	colorEnabled = enabled
	if enabled {
		lipgloss.SetColorProfile(termenv.ANSI256)
	} else {
		lipgloss.SetColorProfile(termenv.Ascii)
	}
}

func AccentColor() lipgloss.Color { return lipgloss.Color(accentColorCode) }
func PassColor() lipgloss.Color   { return lipgloss.Color(passColorCode) }
func WarnColor() lipgloss.Color   { return lipgloss.Color(warnColorCode) }
func FailColor() lipgloss.Color   { return lipgloss.Color(failColorCode) }
func DimColor() lipgloss.Color    { return lipgloss.Color(dimColorCode) }

// AccentStyle is used for headings and markers.
func AccentStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(AccentColor()).Bold(true)
}

// PassStyle is used for successful outcomes.
func PassStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(PassColor()).Bold(true)
}

// WarnStyle is used for recoverable conditions.
func WarnStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(WarnColor())
}

// FailStyle is used for errors.
func FailStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(FailColor()).Bold(true)
}

// DimStyle is used for secondary details.
func DimStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(DimColor())
}

// BoxStyle frames the status summary.
func BoxStyle() lipgloss.Style {
	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(AccentColor()).
		Padding(0, 1)
}

func render(style lipgloss.Style, s string) string {
	if !colorEnabled {
		return s
	}
	return style.Render(s)
}

func RenderAccent(s string) string { return render(AccentStyle(), s) }
func RenderPass(s string) string   { return render(PassStyle(), s) }
func RenderWarn(s string) string   { return render(WarnStyle(), s) }
func RenderFail(s string) string   { return render(FailStyle(), s) }
func RenderDim(s string) string    { return render(DimStyle(), s) }

// RenderBox frames lines in a rounded border, or indents them when color
// is off.
func RenderBox(lines ...string) string {
	body := strings.Join(lines, "\n")
	if !colorEnabled {
		return "  " + strings.ReplaceAll(body, "\n", "\n  ")
	}
	return BoxStyle().Render(body)
}

// FormatDuration rounds d for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	default:
		return d.Round(100 * time.Millisecond).String()
	}
}

// FormatCount renders "n noun" with a naive plural.
func FormatCount(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

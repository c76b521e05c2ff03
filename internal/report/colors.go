// Package report contains the metrics sinks a run renders to: the console
// table, the measurement log file and the Prometheus collector.
package report

import (
	"io"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/wesleyorama2/stampede/internal/metrics"
)

// ColorScheme defines the colors used for different elements of the table.
type ColorScheme struct {
	Title      *color.Color
	Rule       *color.Color
	Header     *color.Color
	StatusOK   *color.Color
	StatusWarn *color.Color
	StatusFail *color.Color
	Dim        *color.Color
}

// DefaultColorScheme returns the default color scheme.
func DefaultColorScheme() *ColorScheme {
	return &ColorScheme{
		Title:      color.New(color.Bold),
		Rule:       color.New(color.FgCyan),
		Header:     color.New(color.FgYellow),
		StatusOK:   color.New(color.FgGreen, color.Bold),
		StatusWarn: color.New(color.FgYellow, color.Bold),
		StatusFail: color.New(color.FgRed, color.Bold),
		Dim:        color.New(color.Faint),
	}
}

// NoColorScheme returns a color scheme with all colors disabled.
func NoColorScheme() *ColorScheme {
	scheme := DefaultColorScheme()
	for _, c := range []*color.Color{
		scheme.Title, scheme.Rule, scheme.Header,
		scheme.StatusOK, scheme.StatusWarn, scheme.StatusFail, scheme.Dim,
	} {
		c.DisableColor()
	}
	return scheme
}

// Status picks the color for a measurement status.
func (s *ColorScheme) Status(status string) *color.Color {
	switch status {
	case metrics.StatusOK:
		return s.StatusOK
	case metrics.StatusNA, metrics.StatusKO:
		return s.StatusFail
	}
	code, err := strconv.Atoi(status)
	switch {
	case err != nil:
		return s.StatusWarn
	case code >= 500:
		return s.StatusFail
	case code >= 400:
		return s.StatusWarn
	default:
		return s.StatusOK
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// supportsColors checks the environment for color preferences.
func supportsColors() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	if os.Getenv("FORCE_COLOR") != "" {
		return true
	}
	term := os.Getenv("TERM")
	return term != "" && term != "dumb"
}

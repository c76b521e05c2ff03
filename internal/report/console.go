package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/wesleyorama2/stampede/internal/metrics"
)

const ruleWidth = 72

// ConsoleConfig contains configuration for Console.
type ConsoleConfig struct {
	RunName string
	RunID   string
	Writer  io.Writer
	// Quiet suppresses periodic tables; the final table is always printed.
	Quiet       bool
	ForceColors bool
}

// Console renders snapshots as a table.
type Console struct {
	runName string
	runID   string
	writer  io.Writer
	quiet   bool
	colors  *ColorScheme
}

// NewConsole creates a console sink.
func NewConsole(config ConsoleConfig) *Console {
	if config.Writer == nil {
		config.Writer = os.Stdout
	}

	colors := NoColorScheme()
	if config.ForceColors || (isTerminal(config.Writer) && supportsColors()) {
		colors = DefaultColorScheme()
	}

	return &Console{
		runName: config.RunName,
		runID:   config.RunID,
		writer:  config.Writer,
		quiet:   config.Quiet,
		colors:  colors,
	}
}

// Consume implements metrics.Sink. The console only renders snapshots.
func (c *Console) Consume(metrics.Batch) {}

// Render implements metrics.Sink.
func (c *Console) Render(snap *metrics.Snapshot, final bool) {
	if c.quiet && !final {
		return
	}

	rule := c.colors.Rule.Sprint(strings.Repeat("━", ruleWidth))
	title := fmt.Sprintf("%s  elapsed %s", c.runName, snap.Elapsed.Round(time.Second))
	if final {
		title += "  (final)"
	}
	if c.runID != "" {
		title += c.colors.Dim.Sprintf("  run %s", c.runID)
	}

	fmt.Fprintln(c.writer, rule)
	fmt.Fprintln(c.writer, c.colors.Title.Sprint(title))
	fmt.Fprintln(c.writer, rule)

	tw := tabwriter.NewWriter(c.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, c.colors.Header.Sprint("SCENARIO\tSTEP\tSTATUS\tCOUNT\tMEAN\tP50\tP90\tP99\t"))
	for _, e := range snap.Entries {
		stats := e.Window
		if final {
			stats = e.Overall
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\t%s\t%s\t\n",
			e.Scenario,
			e.Step,
			c.colors.Status(e.Status).Sprint(e.Status),
			e.Count,
			formatDuration(e.MeanElapsed()),
			formatDuration(stats.P50),
			formatDuration(stats.P90),
			formatDuration(stats.P99),
		)
	}
	_ = tw.Flush()

	if len(snap.Cycles) > 0 {
		fmt.Fprintln(c.writer)
		for _, cy := range snap.Cycles {
			failed := fmt.Sprintf("%d failed", cy.Failed)
			if cy.Failed > 0 {
				failed = c.colors.StatusFail.Sprint(failed)
			}
			fmt.Fprintf(c.writer, "cycles %s: %d completed, %s\n", cy.Scenario, cy.Completed, failed)
		}
	}

	fmt.Fprintf(c.writer, "measurements: %d, errors: %.2f%%\n", snap.TotalMeasurements, snap.ErrorRate()*100)
}

func formatDuration(d time.Duration) string {
	switch {
	case d == 0:
		return "-"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

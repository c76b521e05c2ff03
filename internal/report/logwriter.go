package report

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/wesleyorama2/stampede/internal/metrics"
)

// Log formats.
const (
	FormatDefault = "default"
	FormatGatling = "gatling"
)

// gatlingVersion is the simulation.log format version written in the RUN
// header; Gatling refuses logs from other major versions.
const gatlingVersion = "3.0.0-RC4"

// LogWriter streams every measurement to a log, either tab separated or in
// Gatling's simulation.log format so `gatling.sh -ro` can build reports.
type LogWriter struct {
	format string
	out    *bufio.Writer
	closer io.Closer
	err    error
}

// LogWriterConfig contains configuration for LogWriter.
type LogWriterConfig struct {
	Format  string
	RunName string
	RunID   string
	Start   time.Time
}

// NewLogWriter creates a log sink writing to w. If w is an io.Closer it is
// closed by Close.
func NewLogWriter(w io.Writer, config LogWriterConfig) (*LogWriter, error) {
	format := strings.ToLower(config.Format)
	if format == "" {
		format = FormatDefault
	}
	if format != FormatDefault && format != FormatGatling {
		return nil, fmt.Errorf("unknown log format %q (want %s or %s)", config.Format, FormatDefault, FormatGatling)
	}

	lw := &LogWriter{format: format, out: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		lw.closer = c
	}

	if format == FormatGatling {
		start := config.Start
		if start.IsZero() {
			start = time.Now()
		}
		lw.printf("RUN\t%s\t%s\t%d\tstampede\t%s\n", config.RunName, config.RunID, millis(start), gatlingVersion)
	}
	return lw, nil
}

// Consume implements metrics.Sink.
func (l *LogWriter) Consume(batch metrics.Batch) {
	if l.format == FormatGatling && batch.Cycle.Scenario != "" {
		c := batch.Cycle
		l.printf("USER\t%s\t%s\tSTART\t%d\t%d\n", c.Scenario, c.UserID, millis(c.Start), millis(c.Start))
	}

	for _, m := range batch.Measurements {
		switch l.format {
		case FormatGatling:
			status := "OK"
			if m.Failed() {
				status = "KO"
			}
			l.printf("REQUEST\t%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
				m.UserID, m.Scenario, m.Step, millis(m.Start), millis(m.End), status, m.Message)
		default:
			l.printf("%q\t%q\t%s\t%d\t%d\t%d\t%s\n",
				m.Scenario, m.Step, m.UserID, millis(m.Start), millis(m.End), m.ElapsedMillis(), m.Status)
		}
	}

	if l.format == FormatGatling && batch.Cycle.Scenario != "" {
		c := batch.Cycle
		l.printf("USER\t%s\t%s\tEND\t%d\t%d\n", c.Scenario, c.UserID, millis(c.Start), millis(c.End))
	}
}

// Render implements metrics.Sink by flushing buffered lines.
func (l *LogWriter) Render(_ *metrics.Snapshot, _ bool) {
	if err := l.out.Flush(); err != nil && l.err == nil {
		l.err = err
	}
}

// Err returns the first write error.
func (l *LogWriter) Err() error {
	return l.err
}

// Close flushes and closes the underlying writer.
func (l *LogWriter) Close() error {
	if err := l.out.Flush(); err != nil && l.err == nil {
		l.err = err
	}
	if l.closer != nil {
		if err := l.closer.Close(); err != nil && l.err == nil {
			l.err = err
		}
	}
	return l.err
}

func (l *LogWriter) printf(format string, args ...any) {
	if l.err != nil {
		return
	}
	if _, err := fmt.Fprintf(l.out, format, args...); err != nil {
		l.err = err
	}
}

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"time"

	"github.com/wesleyorama2/stampede/internal/metrics"
)

// HTMLConfig contains configuration for HTML.
type HTMLConfig struct {
	RunName string
	RunID   string
	// Path is written once, when the final snapshot is rendered
	Path string
}

// HTML writes a standalone report page when the run is flushed. Periodic
// snapshots become the throughput chart.
type HTML struct {
	config HTMLConfig
	start  time.Time
	points []timePoint
	last   int64
	err    error
}

// timePoint is one periodic snapshot in the chart series.
type timePoint struct {
	Elapsed   float64 `json:"elapsed"`
	Total     int64   `json:"total"`
	Interval  int64   `json:"interval"`
	ErrorRate float64 `json:"errorRate"`
}

// reportData is the template input.
type reportData struct {
	RunName   string
	RunID     string
	Generated time.Time
	Snapshot  *metrics.Snapshot
	Series    template.JS
}

// NewHTML creates an HTML report sink.
func NewHTML(config HTMLConfig) *HTML {
	return &HTML{config: config, start: time.Now()}
}

// Consume implements metrics.Sink. The page is built from snapshots only.
func (h *HTML) Consume(metrics.Batch) {}

// Render implements metrics.Sink.
func (h *HTML) Render(snap *metrics.Snapshot, final bool) {
	h.points = append(h.points, timePoint{
		Elapsed:   snap.Elapsed.Seconds(),
		Total:     snap.TotalMeasurements,
		Interval:  snap.TotalMeasurements - h.last,
		ErrorRate: snap.ErrorRate(),
	})
	h.last = snap.TotalMeasurements

	if !final {
		return
	}
	page, err := h.Generate(snap)
	if err != nil {
		h.err = err
		return
	}
	if err := os.WriteFile(h.config.Path, page, 0o644); err != nil {
		h.err = fmt.Errorf("failed to write HTML report: %w", err)
	}
}

// Err returns the error of the final write, if any.
func (h *HTML) Err() error {
	return h.err
}

// Generate renders the report page for snap.
func (h *HTML) Generate(snap *metrics.Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, fmt.Errorf("snapshot cannot be nil")
	}

	tmpl, err := template.New("report").Funcs(templateFuncs()).Parse(htmlTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	series, err := json.Marshal(h.points)
	if err != nil {
		return nil, fmt.Errorf("failed to encode series: %w", err)
	}
	if h.points == nil {
		series = []byte("[]")
	}

	data := reportData{
		RunName:   h.config.RunName,
		RunID:     h.config.RunID,
		Generated: time.Now(),
		Snapshot:  snap,
		Series:    template.JS(series),
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, fmt.Errorf("failed to execute template: %w", err)
	}
	return buf.Bytes(), nil
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"latency": formatDuration,
		"number":  formatNumber,
		"percent": func(f float64) string { return fmt.Sprintf("%.2f%%", f*100) },
	}
}

// formatNumber formats n with thousands separators.
func formatNumber(n int64) string {
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	str := fmt.Sprintf("%d", n)
	if len(str) <= 3 {
		return str
	}

	var b bytes.Buffer
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}

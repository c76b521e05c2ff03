package report

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.RunName}} - Load Test Report</title>
    <script src="https://cdn.jsdelivr.net/npm/chart.js"></script>
    <style>
        :root {
            --bg-primary: #ffffff;
            --bg-secondary: #f8fafc;
            --text-primary: #1e293b;
            --text-secondary: #64748b;
            --border-color: #e2e8f0;
            --accent-primary: #3b82f6;
            --accent-success: #22c55e;
            --accent-error: #ef4444;
        }
        * { margin: 0; padding: 0; box-sizing: border-box; }
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, Arial, sans-serif;
            background-color: var(--bg-secondary);
            color: var(--text-primary);
            line-height: 1.6;
        }
        .container { max-width: 1400px; margin: 0 auto; padding: 2rem; }
        header { margin-bottom: 2rem; }
        header .meta { color: var(--text-secondary); font-size: 0.875rem; }
        .cards { display: grid; grid-template-columns: repeat(auto-fit, minmax(200px, 1fr)); gap: 1rem; margin-bottom: 2rem; }
        .card { background: var(--bg-primary); border: 1px solid var(--border-color); border-radius: 8px; padding: 1rem; }
        .card .label { color: var(--text-secondary); font-size: 0.75rem; text-transform: uppercase; }
        .card .value { font-size: 1.5rem; font-weight: 600; }
        section { background: var(--bg-primary); border: 1px solid var(--border-color); border-radius: 8px; padding: 1rem; margin-bottom: 2rem; }
        h2 { font-size: 1.125rem; margin-bottom: 1rem; }
        table { width: 100%; border-collapse: collapse; font-size: 0.875rem; }
        th, td { text-align: left; padding: 0.5rem; border-bottom: 1px solid var(--border-color); }
        th { color: var(--text-secondary); font-weight: 500; }
        td.ok { color: var(--accent-success); }
        td.ko { color: var(--accent-error); }
    </style>
</head>
<body>
<div class="container">
    <header>
        <h1>{{.RunName}}</h1>
        <p class="meta">run {{.RunID}} &middot; generated {{.Generated.Format "2006-01-02 15:04:05"}} &middot; elapsed {{latency .Snapshot.Elapsed}}</p>
    </header>

    <div class="cards">
        <div class="card"><div class="label">Measurements</div><div class="value">{{number .Snapshot.TotalMeasurements}}</div></div>
        <div class="card"><div class="label">Failed</div><div class="value">{{number .Snapshot.FailedMeasurements}}</div></div>
        <div class="card"><div class="label">Error rate</div><div class="value">{{percent .Snapshot.ErrorRate}}</div></div>
    </div>

    <section>
        <h2>Throughput</h2>
        <canvas id="throughput" height="80"></canvas>
    </section>

    <section>
        <h2>Steps</h2>
        <table>
            <thead>
            <tr><th>Scenario</th><th>Step</th><th>Status</th><th>Count</th><th>Mean</th><th>Min</th><th>P50</th><th>P90</th><th>P95</th><th>P99</th><th>Max</th></tr>
            </thead>
            <tbody>
            {{range .Snapshot.Entries}}
            <tr>
                <td>{{.Scenario}}</td>
                <td>{{.Step}}</td>
                <td class="{{if .Failed}}ko{{else}}ok{{end}}">{{.Status}}</td>
                <td>{{number .Count}}</td>
                <td>{{latency .MeanElapsed}}</td>
                <td>{{latency .Overall.Min}}</td>
                <td>{{latency .Overall.P50}}</td>
                <td>{{latency .Overall.P90}}</td>
                <td>{{latency .Overall.P95}}</td>
                <td>{{latency .Overall.P99}}</td>
                <td>{{latency .Overall.Max}}</td>
            </tr>
            {{end}}
            </tbody>
        </table>
    </section>

    {{if .Snapshot.Cycles}}
    <section>
        <h2>Cycles</h2>
        <table>
            <thead><tr><th>Scenario</th><th>Completed</th><th>Failed</th><th>Total time</th></tr></thead>
            <tbody>
            {{range .Snapshot.Cycles}}
            <tr>
                <td>{{.Scenario}}</td>
                <td>{{number .Completed}}</td>
                <td class="{{if .Failed}}ko{{else}}ok{{end}}">{{number .Failed}}</td>
                <td>{{latency .TotalDuration}}</td>
            </tr>
            {{end}}
            </tbody>
        </table>
    </section>
    {{end}}
</div>
<script>
    const series = {{.Series}};
    new Chart(document.getElementById('throughput'), {
        type: 'line',
        data: {
            labels: series.map(p => p.elapsed.toFixed(0) + 's'),
            datasets: [
                { label: 'measurements / interval', data: series.map(p => p.interval), borderColor: '#3b82f6', yAxisID: 'y' },
                { label: 'error rate', data: series.map(p => p.errorRate * 100), borderColor: '#ef4444', yAxisID: 'y1' }
            ]
        },
        options: {
            scales: {
                y: { beginAtZero: true },
                y1: { beginAtZero: true, position: 'right', grid: { drawOnChartArea: false } }
            }
        }
    });
</script>
</body>
</html>
`

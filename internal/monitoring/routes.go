// Package monitoring serves the operator station's debug pages: a JSON
// status snapshot and charts of recent guidance telemetry.
package monitoring

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/erov.guidance/internal/guidance"
	"github.com/banshee-data/erov.guidance/internal/telemetry"
	"github.com/banshee-data/erov.guidance/internal/version"
)

const echartsAssetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

// defaultChartRecords is how many records guidance-chart plots by default.
const defaultChartRecords = 300

// Sources are what the debug routes report on. Any field may be nil.
type Sources struct {
	Status func() guidance.Status
	Hub    *telemetry.Hub
	// Extra values are included by name in the guidance JSON, e.g. link
	// or recorder counters.
	Extra map[string]func() any
}

// Snapshot is the body of /debug/guidance.
type Snapshot struct {
	Version   string              `json:"version"`
	GitSHA    string              `json:"git_sha"`
	Status    *guidance.Status    `json:"status,omitempty"`
	Telemetry *telemetry.HubStats `json:"telemetry,omitempty"`
	Extra     map[string]any      `json:"extra,omitempty"`
}

// Snapshot collects the current values of s.
func (s Sources) Snapshot() Snapshot {
	snap := Snapshot{Version: version.Version, GitSHA: version.GitSHA}
	if s.Status != nil {
		st := s.Status()
		snap.Status = &st
	}
	if s.Hub != nil {
		hs := s.Hub.Stats()
		snap.Telemetry = &hs
	}
	if len(s.Extra) > 0 {
		snap.Extra = make(map[string]any, len(s.Extra))
		for name, fn := range s.Extra {
			snap.Extra[name] = fn()
		}
	}
	return snap
}

// AttachDebugRoutes registers guidance and guidance-chart under /debug/.
func AttachDebugRoutes(mux *http.ServeMux, src Sources) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("guidance", "Guidance loop status (JSON)", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(src.Snapshot()); err != nil {
			opsf("encode guidance snapshot: %v", err)
		}
	})

	debug.HandleFunc("guidance-chart", "Recent guidance error and command per axis", func(w http.ResponseWriter, r *http.Request) {
		if src.Hub == nil {
			http.Error(w, "telemetry not available", http.StatusServiceUnavailable)
			return
		}
		n := defaultChartRecords
		if v := r.URL.Query().Get("n"); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil || parsed <= 0 {
				http.Error(w, "n must be a positive integer", http.StatusBadRequest)
				return
			}
			n = parsed
		}

		var buf bytes.Buffer
		if err := RenderChart(&buf, src.Hub.Recent(n)); err != nil {
			http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	})
}

// RenderChart writes an HTML page with one line chart of the per-axis
// error and one of the per-axis command.
func RenderChart(w io.Writer, records []telemetry.Record) error {
	labels := make([]string, len(records))
	for i, rec := range records {
		labels[i] = rec.Time.Format("15:04:05.000")
	}

	errChart := axisChart("Error (body frame)", "m / rad", labels, records,
		func(r telemetry.Record) telemetry.Axes { return r.Error })
	cmdChart := axisChart("Command (native units)", "", labels, records,
		func(r telemetry.Record) telemetry.Axes { return r.Commanded })

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsHost)
	page.AddCharts(errChart, cmdChart)
	return page.Render(w)
}

func axisChart(title, unit string, labels []string, records []telemetry.Record, pick func(telemetry.Record) telemetry.Axes) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "420px", AssetsHost: echartsAssetsHost}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%d records", len(records))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithYAxisOpts(opts.YAxis{Name: unit}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
	)

	series := map[string][]opts.LineData{}
	names := []string{"x", "y", "z", "yaw"}
	for _, rec := range records {
		a := pick(rec)
		for i, v := range []float64{a.X, a.Y, a.Z, a.Yaw} {
			series[names[i]] = append(series[names[i]], opts.LineData{Value: v})
		}
	}

	line.SetXAxis(labels)
	for _, name := range names {
		line.AddSeries(name, series[name], charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}
	return line
}

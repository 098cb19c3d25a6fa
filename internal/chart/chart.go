// Package chart renders filtered track outputs as interactive HTML line
// charts with go-echarts and serves them over HTTP.
package chart

import (
	"bytes"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"

	"github.com/banshee-data/radartrack/internal/track"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

const assetsHost = "https://go-echarts.github.io/go-echarts-assets/assets/"

type component struct {
	title string
	unit  string
	value func(track.Output) float64
}

var panels = []component{
	{"Range", "m", func(o track.Output) float64 { return o.Range }},
	{"Azimuth", "deg", func(o track.Output) float64 { return o.AzimuthDeg }},
	{"Elevation", "deg", func(o track.Output) float64 { return o.ElevationDeg }},
}

// Render writes an HTML page with range, azimuth and elevation line charts
// for a single run.
func Render(w io.Writer, title string, outs []track.Output) error {
	return RenderRuns(w, title, map[string][]track.Output{title: outs})
}

// RenderRuns writes one page in which every chart carries a series per run,
// ordered by run name.
func RenderRuns(w io.Writer, title string, runs map[string][]track.Output) error {
	names := make([]string, 0, len(runs))
	for name := range runs {
		names = append(names, name)
	}
	sort.Strings(names)

	page := components.NewPage()
	page.SetAssetsHost(assetsHost)
	page.PageTitle = title

	for _, c := range panels {
		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "360px", AssetsHost: assetsHost}),
			charts.WithTitleOpts(opts.Title{Title: c.title, Subtitle: title}),
			charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
			charts.WithLegendOpts(opts.Legend{Show: opts.Bool(len(names) > 1)}),
			charts.WithXAxisOpts(opts.XAxis{Type: "value", Name: "Time (s)", NameLocation: "middle", NameGap: 25}),
			charts.WithYAxisOpts(opts.YAxis{Type: "value", Name: fmt.Sprintf("%s (%s)", c.title, c.unit)}),
			charts.WithDataZoomOpts(opts.DataZoom{Type: "inside"}),
		)
		for _, name := range names {
			line.AddSeries(name, lineData(runs[name], c.value),
				charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}),
			)
		}
		page.AddCharts(line)
	}

	return page.Render(w)
}

// lineData emits [time, value] pairs, dropping non-finite values which the
// JSON encoder cannot represent.
func lineData(outs []track.Output, value func(track.Output) float64) []opts.LineData {
	data := make([]opts.LineData, 0, len(outs))
	for _, o := range outs {
		v := value(o)
		if !finite(v) || !finite(o.Time) {
			continue
		}
		data = append(data, opts.LineData{Value: []interface{}{o.Time, v}})
	}
	return data
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Handler serves the page for whatever outputs source returns at request
// time.
func Handler(title string, source func() []track.Output) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var buf bytes.Buffer
		if err := Render(&buf, title, source()); err != nil {
			http.Error(w, fmt.Sprintf("render error: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(buf.Bytes())
	})
}

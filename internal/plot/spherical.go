// Package plot renders filtered track outputs as PNG time series: one image
// each for range, azimuth and elevation against time.
package plot

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/banshee-data/radartrack/internal/track"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// ErrNoOutputs is returned when there is nothing to plot.
var ErrNoOutputs = errors.New("plot: no outputs")

const (
	width  = 14 * vg.Inch
	height = 6 * vg.Inch
)

// series describes one spherical component.
type series struct {
	suffix string
	title  string
	yLabel string
	value  func(track.Output) float64
}

var components = []series{
	{"range", "Range", "Range (m)", func(o track.Output) float64 { return o.Range }},
	{"azimuth", "Azimuth", "Azimuth (deg)", func(o track.Output) float64 { return o.AzimuthDeg }},
	{"elevation", "Elevation", "Elevation (deg)", func(o track.Output) float64 { return o.ElevationDeg }},
}

// WriteSphericalPlots writes <prefix>_range.png, <prefix>_azimuth.png and
// <prefix>_elevation.png into outputDir and returns their paths.
func WriteSphericalPlots(outputDir, prefix string, outs []track.Output) ([]string, error) {
	return WriteComparisonPlots(outputDir, prefix, map[string][]track.Output{prefix: outs})
}

// WriteComparisonPlots overlays several runs, one colored line per run, on
// the same three plots. Legend entries are the map keys in sorted order.
func WriteComparisonPlots(outputDir, prefix string, runs map[string][]track.Output) ([]string, error) {
	names := make([]string, 0, len(runs))
	for name, outs := range runs {
		if len(outs) > 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil, ErrNoOutputs
	}
	sort.Strings(names)

	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("create plot dir: %w", err)
	}

	colors := generateColors(len(names))
	var files []string
	for _, c := range components {
		p := plot.New()
		p.Title.Text = fmt.Sprintf("%s vs Time", c.title)
		p.X.Label.Text = "Time (s)"
		p.Y.Label.Text = c.yLabel
		p.Add(plotter.NewGrid())

		for i, name := range names {
			pts := points(runs[name], c.value)
			if len(pts) == 0 {
				continue
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return files, fmt.Errorf("%s line for %s: %w", c.suffix, name, err)
			}
			line.Color = colors[i]
			line.Width = vg.Points(1)
			p.Add(line)
			if len(names) > 1 {
				p.Legend.Add(name, line)
			}
		}

		p.Legend.Top = true
		p.Legend.Left = false
		p.Legend.XOffs = -10
		p.Legend.YOffs = -10

		file := filepath.Join(outputDir, fmt.Sprintf("%s_%s.png", prefix, c.suffix))
		if err := p.Save(width, height, file); err != nil {
			return files, fmt.Errorf("save %s plot: %w", c.suffix, err)
		}
		files = append(files, file)
	}
	return files, nil
}

// points skips non-finite samples, which plotter.NewLine rejects.
func points(outs []track.Output, value func(track.Output) float64) plotter.XYs {
	pts := make(plotter.XYs, 0, len(outs))
	for _, o := range outs {
		y := value(o)
		if math.IsNaN(y) || math.IsInf(y, 0) || math.IsNaN(o.Time) || math.IsInf(o.Time, 0) {
			continue
		}
		pts = append(pts, plotter.XY{X: o.Time, Y: y})
	}
	return pts
}

// generateColors spreads n hues evenly around the color wheel.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}
	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		r, g, b := hslToRGB(float64(i)/float64(n), 0.7, 0.45)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	if s == 0 {
		v := uint8(l * 255)
		return v, v, v
	}
	q := l + s - l*s
	if l < 0.5 {
		q = l * (1 + s)
	}
	p := 2*l - q
	return uint8(hueToRGB(p, q, h+1.0/3.0) * 255),
		uint8(hueToRGB(p, q, h) * 255),
		uint8(hueToRGB(p, q, h-1.0/3.0) * 255)
}

func hueToRGB(p, q, t float64) float64 {
	switch {
	case t < 0:
		t++
	case t > 1:
		t--
	}
	switch {
	case t < 1.0/6.0:
		return p + (q-p)*6*t
	case t < 1.0/2.0:
		return q
	case t < 2.0/3.0:
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}

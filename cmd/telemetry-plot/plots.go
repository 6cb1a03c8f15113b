package main

import (
	"fmt"
	"image/color"
	"os"
	"path/filepath"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/erov.guidance/internal/telemetry"
)

var axisColors = []color.Color{
	color.RGBA{R: 31, G: 119, B: 180, A: 255},
	color.RGBA{R: 255, G: 127, B: 14, A: 255},
	color.RGBA{R: 44, G: 160, B: 44, A: 255},
	color.RGBA{R: 214, G: 39, B: 40, A: 255},
}

// series picks one group of axes out of a record.
type series struct {
	name  string
	title string
	yUnit string
	axes  func(telemetry.Record) telemetry.Axes
}

var plotSeries = []series{
	{"error", "Pose error (vehicle frame)", "m / rad", func(r telemetry.Record) telemetry.Axes { return r.Error }},
	{"output", "PID output", "normalised", func(r telemetry.Record) telemetry.Axes { return r.Output }},
	{"command", "Shaped command", "native", func(r telemetry.Record) telemetry.Axes { return r.Commanded }},
}

// generatePlots writes one PNG per series plus a distance plot into dir and
// returns the written paths. X values are seconds since the first record.
func generatePlots(records []telemetry.Record, dir string) ([]string, error) {
	if len(records) == 0 {
		return nil, fmt.Errorf("no records")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output dir: %w", err)
	}

	start := records[0].Time
	elapsed := func(r telemetry.Record) float64 { return r.Time.Sub(start).Seconds() }

	var files []string
	for _, s := range plotSeries {
		p := plot.New()
		p.Title.Text = s.title
		p.X.Label.Text = "Time (s)"
		p.Y.Label.Text = s.yUnit

		pts := [4]plotter.XYs{}
		for _, r := range records {
			a := s.axes(r)
			t := elapsed(r)
			pts[0] = append(pts[0], plotter.XY{X: t, Y: a.X})
			pts[1] = append(pts[1], plotter.XY{X: t, Y: a.Y})
			pts[2] = append(pts[2], plotter.XY{X: t, Y: a.Z})
			pts[3] = append(pts[3], plotter.XY{X: t, Y: a.Yaw})
		}
		for i, label := range []string{"x", "y", "z", "yaw"} {
			line, err := plotter.NewLine(pts[i])
			if err != nil {
				return files, fmt.Errorf("%s %s line: %w", s.name, label, err)
			}
			line.Color = axisColors[i]
			line.Width = vg.Points(1)
			p.Add(line)
			p.Legend.Add(label, line)
		}
		p.Legend.Top = true
		p.Legend.Left = false
		p.Legend.XOffs = -10
		p.Legend.YOffs = -10
		p.Add(plotter.NewGrid())

		file := filepath.Join(dir, s.name+".png")
		if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
			return files, fmt.Errorf("failed to save %s: %w", file, err)
		}
		files = append(files, file)
	}

	p := plot.New()
	p.Title.Text = "Distance to target"
	p.X.Label.Text = "Time (s)"
	p.Y.Label.Text = "m"
	pts := make(plotter.XYs, 0, len(records))
	for _, r := range records {
		pts = append(pts, plotter.XY{X: elapsed(r), Y: r.Distance})
	}
	line, err := plotter.NewLine(pts)
	if err != nil {
		return files, fmt.Errorf("distance line: %w", err)
	}
	line.Width = vg.Points(1)
	p.Add(line, plotter.NewGrid())
	file := filepath.Join(dir, "distance.png")
	if err := p.Save(14*vg.Inch, 6*vg.Inch, file); err != nil {
		return files, fmt.Errorf("failed to save %s: %w", file, err)
	}
	return append(files, file), nil
}

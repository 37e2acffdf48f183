package monitor

import (
	"bytes"
	"fmt"
	"image/color"
	"io"
	"math"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/conescan/internal/lidar"
	"github.com/banshee-data/conescan/internal/lidar/l4perception"
)

const (
	topViewWidth  = 10 * vg.Inch
	topViewHeight = 10 * vg.Inch

	// maxHTMLPoints caps the points embedded in the HTML view; larger clouds
	// are voxel-thinned first.
	maxHTMLPoints = 20000
	htmlLeafSize  = 0.05
)

// NewTopViewPlot builds a bird's-eye scatter of cloud with one coloured
// series per cluster label. Noise-labelled centroids are drawn grey.
func NewTopViewPlot(title string, cloud lidar.PointCloud, centroids []l4perception.Centroid) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	if len(cloud) > 0 {
		pts := make(plotter.XYs, len(cloud))
		for i, v := range cloud {
			pts[i].X = v.X
			pts[i].Y = v.Y
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create point scatter: %w", err)
		}
		s.GlyphStyle.Color = color.RGBA{R: 90, G: 90, B: 90, A: 255}
		s.GlyphStyle.Radius = vg.Points(0.8)
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(s)
		p.Legend.Add(fmt.Sprintf("points (%d)", len(cloud)), s)
	}

	colors := generateColors(len(centroids))
	for i, c := range centroids {
		s, err := plotter.NewScatter(plotter.XYs{{X: c.Position.X, Y: c.Position.Y}})
		if err != nil {
			return nil, fmt.Errorf("failed to create centroid scatter: %w", err)
		}
		s.GlyphStyle.Radius = vg.Points(5)
		s.GlyphStyle.Shape = draw.CrossGlyph{}
		s.GlyphStyle.Color = colors[i]
		if c.Label == l4perception.NoiseLabel {
			s.GlyphStyle.Color = color.Gray{Y: 160}
			s.GlyphStyle.Shape = draw.RingGlyph{}
		}
		p.Add(s)
		p.Legend.Add(centroidLegend(c), s)
	}

	return p, nil
}

// SaveTopView renders the top view to path. The format follows the file
// extension (png, svg, pdf, ...).
func SaveTopView(path string, cloud lidar.PointCloud, centroids []l4perception.Centroid) error {
	p, err := NewTopViewPlot(path, cloud, centroids)
	if err != nil {
		return err
	}
	if err := p.Save(topViewWidth, topViewHeight, path); err != nil {
		return fmt.Errorf("failed to save top view: %w", err)
	}
	return nil
}

// WriteTopViewPNG writes the top view as PNG to w.
func WriteTopViewPNG(w io.Writer, title string, cloud lidar.PointCloud, centroids []l4perception.Centroid) error {
	p, err := NewTopViewPlot(title, cloud, centroids)
	if err != nil {
		return err
	}
	wt, err := p.WriterTo(topViewWidth, topViewHeight, "png")
	if err != nil {
		return fmt.Errorf("failed to create png writer: %w", err)
	}
	_, err = wt.WriteTo(w)
	return err
}

// RenderTopViewHTML writes an interactive scatter of cloud with points
// coloured by height and centroids as a separate series.
func RenderTopViewHTML(w io.Writer, title string, cloud lidar.PointCloud, centroids []l4perception.Centroid) error {
	shown := cloud
	if len(shown) > maxHTMLPoints {
		shown = l4perception.VoxelDownsample(cloud, htmlLeafSize)
	}

	minX, maxX, minY, maxY, minZ, maxZ := topViewExtent(shown, centroids)

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "900px", Height: "900px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    title,
			Subtitle: fmt.Sprintf("%d points (%d shown), %d centroids", len(cloud), len(shown), len(centroids)),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Min: minX, Max: maxX, Name: "X (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Min: minY, Max: maxY, Name: "Y (m)", NameLocation: "middle", NameGap: 30}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        float32(minZ),
			Max:        float32(maxZ),
			Dimension:  "2",
			InRange: &opts.VisualMapInRange{
				Color: []string{"#440154", "#3b528b", "#21918c", "#5ec962", "#fde725"},
			},
		}),
	)

	points := make([]opts.ScatterData, 0, len(shown))
	for _, v := range shown {
		points = append(points, opts.ScatterData{Value: []interface{}{v.X, v.Y, v.Z}})
	}
	scatter.AddSeries("points", points, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))

	if len(centroids) > 0 {
		marks := make([]opts.ScatterData, 0, len(centroids))
		for _, c := range centroids {
			marks = append(marks, opts.ScatterData{
				Name:       centroidLegend(c),
				Value:      []interface{}{c.Position.X, c.Position.Y, c.Position.Z},
				Symbol:     "diamond",
				SymbolSize: 12,
			})
		}
		scatter.AddSeries("centroids", marks)
	}

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		return fmt.Errorf("failed to render top view: %w", err)
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func centroidLegend(c l4perception.Centroid) string {
	if c.Label == l4perception.NoiseLabel {
		return fmt.Sprintf("noise (%d)", c.Count)
	}
	return fmt.Sprintf("cluster %d (%d)", c.Label, c.Count)
}

// topViewExtent returns rounded axis bounds covering points and centroids.
func topViewExtent(cloud lidar.PointCloud, centroids []l4perception.Centroid) (minX, maxX, minY, maxY, minZ, maxZ float64) {
	all := cloud.Clone()
	for _, c := range centroids {
		all = append(all, c.Position)
	}
	lo, hi, ok := all.Bounds()
	if !ok {
		return -1, 1, -1, 1, 0, 1
	}
	if hi.Z <= lo.Z {
		hi.Z = lo.Z + 1
	}
	return math.Floor(lo.X), math.Ceil(hi.X), math.Floor(lo.Y), math.Ceil(hi.Y), lo.Z, hi.Z
}

// generateColors returns n evenly spaced hues.
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
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

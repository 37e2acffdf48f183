package monitor

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"

	"github.com/banshee-data/conescan/internal/lidar"
	"github.com/banshee-data/conescan/internal/lidar/sim"
	"github.com/banshee-data/conescan/internal/lidar/track"
)

// fovArcPoints is the number of points on the outer arc of the field of view.
const fovArcPoints = 48

var (
	fovColor     = color.RGBA{R: 255, G: 165, B: 0, A: 60}
	markerColors = map[track.Kind]color.Color{
		track.KindMark:   color.RGBA{R: 230, G: 110, B: 20, A: 255},
		track.KindBlue:   color.RGBA{R: 30, G: 90, B: 220, A: 255},
		track.KindYellow: color.RGBA{R: 220, G: 190, B: 0, A: 255},
	}
)

// FieldOfViewWedge outlines the area a scan from pose can see: a closed
// polygon from the mounted sensor position out to an arc of radius
// MaxScanDistance spanning the field width.
func FieldOfViewWedge(pose lidar.Pose, params sim.Params) plotter.XYs {
	sensor := pose.Mounted(params.SensorDisplacement, params.SensorOrientation)
	radius := params.MaxScanDistance(sensor.Z)
	start := sensor.Yaw + params.FieldCenter - 0.5*params.FieldWidth
	step := params.FieldWidth / (fovArcPoints - 1)

	wedge := make(plotter.XYs, 0, fovArcPoints+2)
	wedge = append(wedge, plotter.XY{X: sensor.X, Y: sensor.Y})
	for i := 0; i < fovArcPoints; i++ {
		a := start + float64(i)*step
		wedge = append(wedge, plotter.XY{X: sensor.X + radius*math.Cos(a), Y: sensor.Y + radius*math.Sin(a)})
	}
	return append(wedge, wedge[0])
}

// NewTrackViewPlot draws the track layout seen from above: markers coloured by
// kind, the centre line, the vehicle at pose and its field of view. Markers
// within scanning range are ringed.
func NewTrackViewPlot(title string, trk *track.Track, pose lidar.Pose, params sim.Params) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "X (m)"
	p.Y.Label.Text = "Y (m)"
	p.Add(plotter.NewGrid())

	wedge := FieldOfViewWedge(pose, params)
	fov, err := plotter.NewPolygon(wedge)
	if err != nil {
		return nil, fmt.Errorf("failed to create field of view: %w", err)
	}
	fov.Color = fovColor
	fov.LineStyle.Width = 0
	p.Add(fov)
	p.Legend.Add("field of view", fov)

	if len(trk.CenterLine) > 1 {
		pts := make(plotter.XYs, len(trk.CenterLine))
		for i, c := range trk.CenterLine {
			pts[i] = plotter.XY{X: c.X, Y: c.Y}
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create centre line: %w", err)
		}
		line.Color = color.Gray{Y: 140}
		line.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
		p.Add(line)
		p.Legend.Add("centre line", line)
	}

	for _, kind := range []track.Kind{track.KindMark, track.KindBlue, track.KindYellow} {
		var pts plotter.XYs
		for _, m := range trk.Markers {
			if m.Kind == kind {
				pts = append(pts, plotter.XY{X: m.Position.X, Y: m.Position.Y})
			}
		}
		if len(pts) == 0 {
			continue
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s markers: %w", kind, err)
		}
		s.GlyphStyle.Color = markerColors[kind]
		s.GlyphStyle.Radius = vg.Points(3)
		s.GlyphStyle.Shape = draw.CircleGlyph{}
		p.Add(s)
		p.Legend.Add(fmt.Sprintf("%s (%d)", kind, len(pts)), s)
	}

	sensorZ := pose.Z + params.SensorDisplacement.Z
	if nearby := trk.NearbyMarkers(pose, params.MaxScanDistance(sensorZ)); len(nearby) > 0 {
		pts := make(plotter.XYs, len(nearby))
		for i, m := range nearby {
			pts[i] = plotter.XY{X: m.Position.X, Y: m.Position.Y}
		}
		s, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-range markers: %w", err)
		}
		s.GlyphStyle.Color = color.Black
		s.GlyphStyle.Radius = vg.Points(5)
		s.GlyphStyle.Shape = draw.RingGlyph{}
		p.Add(s)
		p.Legend.Add(fmt.Sprintf("in range (%d)", len(nearby)), s)
	}

	vehicle, err := plotter.NewScatter(plotter.XYs{{X: pose.X, Y: pose.Y}})
	if err != nil {
		return nil, fmt.Errorf("failed to create vehicle marker: %w", err)
	}
	vehicle.GlyphStyle.Color = color.RGBA{R: 200, G: 20, B: 20, A: 255}
	vehicle.GlyphStyle.Radius = vg.Points(5)
	vehicle.GlyphStyle.Shape = draw.PyramidGlyph{}
	p.Add(vehicle)
	p.Legend.Add("vehicle", vehicle)

	setSquareRange(p, trackViewExtent(trk, wedge))
	return p, nil
}

// SaveTrackView renders the track view for pose to path, in the format given
// by the file extension.
func SaveTrackView(path string, trk *track.Track, pose lidar.Pose, params sim.Params) error {
	title := fmt.Sprintf("pose (%.1f, %.1f) heading %.0f°", pose.X, pose.Y, pose.Yaw*180/math.Pi)
	p, err := NewTrackViewPlot(title, trk, pose, params)
	if err != nil {
		return err
	}
	if err := p.Save(topViewWidth, topViewHeight, path); err != nil {
		return fmt.Errorf("failed to save track view: %w", err)
	}
	return nil
}

// trackViewExtent returns the points that must be visible in a track view.
func trackViewExtent(trk *track.Track, wedge plotter.XYs) plotter.XYs {
	pts := append(plotter.XYs{}, wedge...)
	for _, m := range trk.Markers {
		pts = append(pts, plotter.XY{X: m.Position.X, Y: m.Position.Y})
	}
	for _, c := range trk.CenterLine {
		pts = append(pts, plotter.XY{X: c.X, Y: c.Y})
	}
	return pts
}

// setSquareRange sets equal x and y spans covering pts so distances read the
// same along both axes on a square canvas.
func setSquareRange(p *plot.Plot, pts plotter.XYs) {
	if len(pts) == 0 {
		return
	}
	minX, maxX, minY, maxY := pts[0].X, pts[0].X, pts[0].Y, pts[0].Y
	for _, pt := range pts[1:] {
		minX, maxX = math.Min(minX, pt.X), math.Max(maxX, pt.X)
		minY, maxY = math.Min(minY, pt.Y), math.Max(maxY, pt.Y)
	}
	half := 0.5*math.Max(maxX-minX, maxY-minY) + 1
	cx, cy := 0.5*(minX+maxX), 0.5*(minY+maxY)
	p.X.Min, p.X.Max = cx-half, cx+half
	p.Y.Min, p.Y.Max = cy-half, cy+half
}

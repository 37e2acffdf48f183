// Package track loads circuit layouts (marker positions and a centre line)
// and derives the vehicle poses and visible markers used to drive scans.
package track

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/golang/geo/r2"

	"github.com/banshee-data/conescan/internal/lidar"
)

// maxTrackFileSize bounds the size of a track file read from disk.
const maxTrackFileSize = 16 * 1024 * 1024

// ErrPoseIndex is returned for a centre-line index with no following point.
var ErrPoseIndex = errors.New("pose index out of range")

// Kind identifies which marker list a marker came from.
type Kind int

const (
	KindMark Kind = iota
	KindBlue
	KindYellow
)

func (k Kind) String() string {
	switch k {
	case KindMark:
		return "mark"
	case KindBlue:
		return "blue"
	case KindYellow:
		return "yellow"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Marker is a cone standing on the ground at Position.
type Marker struct {
	Position r2.Point
	Kind     Kind
}

// Track is a circuit: its markers, in file order (mark, blue, then yellow
// cones), and the centre line the vehicle drives along.
type Track struct {
	Markers    []Marker
	CenterLine []r2.Point
}

type trackFile struct {
	MarkCones   [][]float64 `json:"mark_cones"`
	BlueCones   [][]float64 `json:"blue_cones"`
	YellowCones [][]float64 `json:"yellow_cones"`
	CenterLine  [][]float64 `json:"center_line"`
}

// Load reads a track from a JSON file.
func Load(path string) (*Track, error) {
	if filepath.Ext(path) != ".json" {
		return nil, fmt.Errorf("track file must be .json, got %q", path)
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat track file: %w", err)
	}
	if info.Size() > maxTrackFileSize {
		return nil, fmt.Errorf("track file too large: %d bytes (max %d)", info.Size(), maxTrackFileSize)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open track file: %w", err)
	}
	defer f.Close()

	t, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Decode parses a track document. Coordinates are [x, y] pairs; any extra
// component (such as a height) is ignored.
func Decode(r io.Reader) (*Track, error) {
	var tf trackFile
	if err := json.NewDecoder(r).Decode(&tf); err != nil {
		return nil, fmt.Errorf("failed to parse track JSON: %w", err)
	}

	t := &Track{}
	lists := []struct {
		name   string
		kind   Kind
		points [][]float64
	}{
		{"mark_cones", KindMark, tf.MarkCones},
		{"blue_cones", KindBlue, tf.BlueCones},
		{"yellow_cones", KindYellow, tf.YellowCones},
	}
	for _, l := range lists {
		for i, raw := range l.points {
			p, err := toPoint(raw)
			if err != nil {
				return nil, fmt.Errorf("%s[%d]: %w", l.name, i, err)
			}
			t.Markers = append(t.Markers, Marker{Position: p, Kind: l.kind})
		}
	}

	for i, raw := range tf.CenterLine {
		p, err := toPoint(raw)
		if err != nil {
			return nil, fmt.Errorf("center_line[%d]: %w", i, err)
		}
		t.CenterLine = append(t.CenterLine, p)
	}
	if len(t.CenterLine) < 2 {
		return nil, fmt.Errorf("center_line needs at least 2 points, got %d", len(t.CenterLine))
	}
	return t, nil
}

func toPoint(raw []float64) (r2.Point, error) {
	if len(raw) < 2 {
		return r2.Point{}, fmt.Errorf("expected [x, y], got %v", raw)
	}
	return r2.Point{X: raw[0], Y: raw[1]}, nil
}

// PoseCount is the number of centre-line indices PoseAt accepts.
func (t *Track) PoseCount() int {
	return len(t.CenterLine) - 1
}

// PoseAt returns the vehicle pose at centre-line point index, heading towards
// the next point. The pose lies on the ground (Z = 0).
func (t *Track) PoseAt(index int) (lidar.Pose, error) {
	if index < 0 || index >= t.PoseCount() {
		return lidar.Pose{}, fmt.Errorf("%w: %d not in [0, %d)", ErrPoseIndex, index, t.PoseCount())
	}
	here, next := t.CenterLine[index], t.CenterLine[index+1]
	dir := next.Sub(here)
	return lidar.Pose{X: here.X, Y: here.Y, Yaw: math.Atan2(dir.Y, dir.X)}, nil
}

// NearbyMarkers returns the markers strictly closer than maxDistance to the
// pose in the ground plane, in track order.
func (t *Track) NearbyMarkers(pose lidar.Pose, maxDistance float64) []Marker {
	origin := r2.Point{X: pose.X, Y: pose.Y}
	max2 := maxDistance * maxDistance

	var out []Marker
	for _, m := range t.Markers {
		d := m.Position.Sub(origin)
		if d.Dot(d) < max2 {
			out = append(out, m)
		}
	}
	return out
}

// Positions extracts the ground positions of markers.
func Positions(markers []Marker) []r2.Point {
	out := make([]r2.Point, len(markers))
	for i, m := range markers {
		out[i] = m.Position
	}
	return out
}

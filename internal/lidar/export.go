package lidar

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/golang/geo/r3"

	"github.com/banshee-data/conescan/internal/monitoring"
)

// CSVHeader is the header row of the flat point table.
var CSVHeader = []string{"x", "y", "z"}

// ErrEmptyPointCloud is returned when there is nothing to export.
var ErrEmptyPointCloud = errors.New("no points to export")

// WriteCSV writes the cloud as a flat table with an "x,y,z" header and one row per point.
func WriteCSV(w io.Writer, cloud PointCloud) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(CSVHeader); err != nil {
		return err
	}
	row := make([]string, 3)
	for _, p := range cloud {
		row[0] = strconv.FormatFloat(p.X, 'g', -1, 64)
		row[1] = strconv.FormatFloat(p.Y, 'g', -1, 64)
		row[2] = strconv.FormatFloat(p.Z, 'g', -1, 64)
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSV parses a flat point table written by WriteCSV. The first row must be
// the x,y,z header. Extra trailing columns are ignored.
func ReadCSV(r io.Reader) (PointCloud, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("missing header row")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) < 3 || !strings.EqualFold(header[0], "x") || !strings.EqualFold(header[1], "y") || !strings.EqualFold(header[2], "z") {
		return nil, fmt.Errorf("unexpected header %v, want x,y,z", header)
	}

	cloud := PointCloud{}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		p, err := parseXYZ(rec)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		cloud = append(cloud, p)
	}
	return cloud, nil
}

// ReadText parses whitespace separated rows of 3 or 4 columns (x y z [intensity]).
// Rows with any other shape are skipped; the number skipped is returned.
func ReadText(r io.Reader) (PointCloud, int, error) {
	cloud := PointCloud{}
	skipped := 0
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 3 && len(fields) != 4 {
			skipped++
			continue
		}
		p, err := parseXYZ(fields)
		if err != nil {
			skipped++
			continue
		}
		cloud = append(cloud, p)
	}
	if err := sc.Err(); err != nil {
		return nil, skipped, err
	}
	return cloud, skipped, nil
}

// ReadPointCloudFile loads a cloud from disk. Files with a .csv extension are
// read as flat x,y,z tables; anything else is read as whitespace separated text.
func ReadPointCloudFile(path string) (PointCloud, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return ReadCSV(f)
	}
	cloud, skipped, err := ReadText(f)
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		monitoring.Logf("[PointCloud] %s: skipped %d malformed lines", path, skipped)
	}
	return cloud, nil
}

// WritePointCloudFile writes the cloud to path as a flat x,y,z table.
func WritePointCloudFile(path string, cloud PointCloud) error {
	if len(cloud) == 0 {
		return ErrEmptyPointCloud
	}
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return err
	}
	if err := WriteCSV(f, cloud); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func parseXYZ(fields []string) (r3.Vector, error) {
	if len(fields) < 3 {
		return r3.Vector{}, fmt.Errorf("expected at least 3 columns, got %d", len(fields))
	}
	var v [3]float64
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(strings.TrimSpace(fields[i]), 64)
		if err != nil {
			return r3.Vector{}, fmt.Errorf("column %d: %w", i, err)
		}
		v[i] = f
	}
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}, nil
}

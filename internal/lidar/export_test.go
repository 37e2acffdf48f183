package lidar

import (
	"bytes"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteCSV_Header(t *testing.T) {
	var buf bytes.Buffer
	cloud := PointCloud{{X: 1, Y: 2, Z: 3}, {X: -0.5, Y: 0.25, Z: -1.1}}

	require.NoError(t, WriteCSV(&buf, cloud))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "x,y,z", lines[0])
	assert.Equal(t, "1,2,3", lines[1])
	assert.Equal(t, "-0.5,0.25,-1.1", lines[2])
}

func TestReadCSV_RoundTripPreservesOrder(t *testing.T) {
	cloud := PointCloud{{X: 0.1, Y: 0.2, Z: 0.3}, {X: 4, Y: 5, Z: 6}, {X: -7, Y: 8.5, Z: 0}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, cloud))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Equal(t, cloud, got)
}

func TestReadCSV_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"wrong header", "a,b,c\n1,2,3\n"},
		{"bad number", "x,y,z\n1,two,3\n"},
		{"short row", "x,y,z\n1,2\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadCSV(strings.NewReader(tt.input))
			assert.Error(t, err)
		})
	}
}

func TestReadText_SkipsMalformedRows(t *testing.T) {
	input := "1 2 3\n" +
		"4    5   6  200\n" +
		"\n" +
		"7 8\n" +
		"a b c\n" +
		"9 10 11\n"

	cloud, skipped, err := ReadText(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, 3, skipped)
	assert.Equal(t, PointCloud{{X: 1, Y: 2, Z: 3}, {X: 4, Y: 5, Z: 6}, {X: 9, Y: 10, Z: 11}}, cloud)
}

func TestPointCloudFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pcl_0.csv")
	cloud := PointCloud{{X: 1, Y: 1, Z: -1.1}, {X: 2.5, Y: -0.3, Z: -0.9}}

	require.NoError(t, WritePointCloudFile(path, cloud))
	got, err := ReadPointCloudFile(path)
	require.NoError(t, err)
	assert.Equal(t, cloud, got)

	txt := filepath.Join(dir, "scan.txt")
	require.NoError(t, os.WriteFile(txt, []byte("1 1 -1.1\n2.5 -0.3 -0.9 17\n"), 0644))
	got, err = ReadPointCloudFile(txt)
	require.NoError(t, err)
	assert.Equal(t, cloud, got)
}

func TestWritePointCloudFile_Empty(t *testing.T) {
	err := WritePointCloudFile(filepath.Join(t.TempDir(), "empty.csv"), nil)
	assert.True(t, errors.Is(err, ErrEmptyPointCloud))
}

func TestPointCloudShuffled(t *testing.T) {
	cloud := make(PointCloud, 50)
	for i := range cloud {
		cloud[i] = r3.Vector{X: float64(i)}
	}
	original := cloud.Clone()

	a := cloud.Shuffled(rand.NewPCG(7, 7))
	b := cloud.Shuffled(rand.NewPCG(7, 7))

	assert.Equal(t, original, cloud, "input must not be permuted in place")
	assert.Equal(t, a, b, "same seed must give the same permutation")
	assert.ElementsMatch(t, original, a)
	assert.NotEqual(t, original, a)
}

func TestPointCloudBounds(t *testing.T) {
	_, _, ok := PointCloud{}.Bounds()
	assert.False(t, ok)

	lo, hi, ok := PointCloud{{X: 1, Y: -2, Z: 3}, {X: -4, Y: 5, Z: 0}}.Bounds()
	require.True(t, ok)
	assert.Equal(t, r3.Vector{X: -4, Y: -2, Z: 0}, lo)
	assert.Equal(t, r3.Vector{X: 1, Y: 5, Z: 3}, hi)
}

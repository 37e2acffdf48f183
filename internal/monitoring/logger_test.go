package monitoring

import (
	"fmt"
	"testing"
)

// capture replaces Logf for the duration of the test and returns the lines
// written to it.
func capture(t *testing.T) *[]string {
	t.Helper()
	original := Logf
	t.Cleanup(func() { Logf = original })

	var lines []string
	SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})
	return &lines
}

func TestSetLogger_Replaces(t *testing.T) {
	lines := capture(t)

	Logf("floor inliers=%d", 412)

	if len(*lines) != 1 || (*lines)[0] != "floor inliers=412" {
		t.Errorf("captured %q, want [\"floor inliers=412\"]", *lines)
	}
}

func TestSetLogger_NilMutes(t *testing.T) {
	lines := capture(t)

	SetLogger(nil)
	Logf("dropped")

	if len(*lines) != 0 {
		t.Errorf("muted logger still wrote %q", *lines)
	}
}

func TestLogf_DefaultIsSet(t *testing.T) {
	if Logf == nil {
		t.Fatal("Logf should not be nil by default")
	}
}

func TestPrefixed(t *testing.T) {
	lines := capture(t)

	logf := Prefixed("Sim")
	logf("channel=%d points=%d", 2, 360)

	if len(*lines) != 1 || (*lines)[0] != "[Sim] channel=2 points=360" {
		t.Errorf("captured %q", *lines)
	}

	// Loggers created before SetLogger follow the replacement.
	SetLogger(nil)
	logf("muted")
	if len(*lines) != 1 {
		t.Errorf("expected muted logger, got %q", *lines)
	}
}

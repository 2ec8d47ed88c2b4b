package calibration

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"spineforge/internal/models"
)

// TestUnscaled verifies the identity calibration reports pixels
func TestUnscaled(t *testing.T) {
	c := Unscaled()
	if c.Calibrated() {
		t.Error("Expected unscaled calibration to be uncalibrated")
	}
	if c.LengthUnit() != models.Pixels {
		t.Errorf("Expected unit px, got %s", c.LengthUnit())
	}
	if c.RowSpacing != 1 || c.ColSpacing != 1 {
		t.Errorf("Expected unit spacing, got %v x %v", c.RowSpacing, c.ColSpacing)
	}
	if err := c.Validate(); err != nil {
		t.Errorf("Unexpected validation error: %v", err)
	}
}

// TestManual checks validation of user supplied spacings
func TestManual(t *testing.T) {
	c, err := Manual(0.15, 0.2)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !c.Calibrated() || c.LengthUnit() != models.Millimetres {
		t.Errorf("Expected a calibrated mm calibration, got %s", c)
	}
	if c.Source != SourceManual {
		t.Errorf("Expected source manual, got %s", c.Source)
	}

	for _, bad := range [][2]float64{{0, 1}, {1, -1}, {math.NaN(), 1}, {1, math.Inf(1)}} {
		c, err := Manual(bad[0], bad[1])
		if !errors.Is(err, ErrInvalidSpacing) {
			t.Errorf("Expected ErrInvalidSpacing for %v, got %v", bad, err)
		}
		if c.Calibrated() {
			t.Errorf("Expected fallback to unscaled for %v", bad)
		}
	}
}

// TestFromReference derives an isotropic spacing from a known distance
func TestFromReference(t *testing.T) {
	c, err := FromReference(models.Point{X: 0, Y: 0}, models.Point{X: 30, Y: 40}, 25)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if c.RowSpacing != 0.5 || c.ColSpacing != 0.5 {
		t.Errorf("Expected 0.5 mm/px, got %v x %v", c.RowSpacing, c.ColSpacing)
	}
	if c.Source != SourceReference {
		t.Errorf("Expected source reference, got %s", c.Source)
	}

	p := models.Point{X: 3, Y: 3}
	if _, err := FromReference(p, p, 10); !errors.Is(err, ErrInvalidSpacing) {
		t.Errorf("Expected ErrInvalidSpacing for coincident points, got %v", err)
	}
	if _, err := FromReference(p, models.Point{}, 0); !errors.Is(err, ErrInvalidSpacing) {
		t.Errorf("Expected ErrInvalidSpacing for zero length, got %v", err)
	}
}

// TestParseSpacing covers the decimal string forms found in headers
func TestParseSpacing(t *testing.T) {
	cases := []struct {
		in       []string
		row, col float64
	}{
		{[]string{"0.143", "0.15"}, 0.143, 0.15},
		{[]string{` 0.2 `}, 0.2, 0.2},
		{[]string{`0.1\0.3`}, 0.1, 0.3},
	}
	for _, tc := range cases {
		row, col, err := parseSpacing(tc.in)
		if err != nil {
			t.Errorf("Unexpected error for %q: %v", tc.in, err)
			continue
		}
		if row != tc.row || col != tc.col {
			t.Errorf("Expected %v x %v for %q, got %v x %v", tc.row, tc.col, tc.in, row, col)
		}
	}

	for _, bad := range [][]string{nil, {"a"}, {"0", "1"}, {"1", "2", "3"}, {"-0.1"}} {
		if _, _, err := parseSpacing(bad); !errors.Is(err, ErrInvalidSpacing) {
			t.Errorf("Expected ErrInvalidSpacing for %q, got %v", bad, err)
		}
	}
}

// TestFromDICOMErrors verifies unreadable files fall back to unscaled
func TestFromDICOMErrors(t *testing.T) {
	dir := t.TempDir()

	c, err := FromDICOM(filepath.Join(dir, "missing.dcm"))
	if err == nil {
		t.Fatal("Expected an error for a missing file")
	}
	if c.Calibrated() {
		t.Error("Expected unscaled calibration on error")
	}

	junk := filepath.Join(dir, "junk.dcm")
	if err := os.WriteFile(junk, []byte("not a dicom file"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}
	if _, err := FromDICOM(junk); err == nil {
		t.Error("Expected an error for a non-DICOM file")
	}
}

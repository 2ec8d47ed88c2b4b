package calibration

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// spacingTags are tried in order; PixelSpacing is corrected to the patient
// plane while ImagerPixelSpacing is measured at the detector
var spacingTags = []tag.Tag{tag.PixelSpacing, tag.ImagerPixelSpacing}

// FromDICOM reads the pixel spacing from a DICOM file header.
// Pixel data is skipped. ErrNoPixelSpacing is returned when neither
// spacing attribute is present.
func FromDICOM(path string) (Calibration, error) {
	ds, err := dicom.ParseFile(path, nil, dicom.SkipPixelData())
	if err != nil {
		return Unscaled(), fmt.Errorf("error reading DICOM file: %w", err)
	}

	for _, t := range spacingTags {
		elem, err := ds.FindElementByTag(t)
		if err != nil {
			continue
		}
		values, ok := elem.Value.GetValue().([]string)
		if !ok {
			continue
		}
		row, col, err := parseSpacing(values)
		if err != nil {
			return Unscaled(), err
		}
		return Calibration{RowSpacing: row, ColSpacing: col, Source: SourceDICOM}, nil
	}

	return Unscaled(), fmt.Errorf("%w in %s", ErrNoPixelSpacing, path)
}

// parseSpacing decodes a DICOM decimal-string pair "row\col".
// A single value is treated as isotropic.
func parseSpacing(values []string) (row, col float64, err error) {
	if len(values) == 1 && strings.Contains(values[0], `\`) {
		values = strings.Split(values[0], `\`)
	}
	if len(values) == 0 || len(values) > 2 {
		return 0, 0, fmt.Errorf("%w: expected 1 or 2 values, got %d", ErrInvalidSpacing, len(values))
	}

	parsed := make([]float64, len(values))
	for i, v := range values {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, 0, fmt.Errorf("%w: %q", ErrInvalidSpacing, v)
		}
		if !validSpacing(f) {
			return 0, 0, fmt.Errorf("%w: %v", ErrInvalidSpacing, f)
		}
		parsed[i] = f
	}

	if len(parsed) == 1 {
		return parsed[0], parsed[0], nil
	}
	return parsed[0], parsed[1], nil
}

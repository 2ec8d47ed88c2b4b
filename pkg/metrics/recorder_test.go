package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spineforge/internal/models"
	"spineforge/pkg/measurement"
)

func results(valid int, degenerate int, cc measurement.CrossCheck) measurement.Results {
	var rs measurement.Results
	for i := 0; i < valid; i++ {
		rs.Params = append(rs.Params, measurement.Result{Name: models.CBVA, Valid: true})
	}
	for i := 0; i < degenerate; i++ {
		rs.Params = append(rs.Params, measurement.Result{Name: models.T1Slope, Err: measurement.ErrDegenerateGeometry})
	}
	rs.Params = append(rs.Params, measurement.Result{Name: models.GlobalSVA, Err: measurement.ErrInsufficientLandmarks})
	rs.CrossCheck = cc
	return rs
}

func TestRecorderCounts(t *testing.T) {
	r, err := NewRecorder()
	require.NoError(t, err)

	r.LandmarkEvent("placed")
	r.LandmarkEvent("placed")
	r.LandmarkEvent("reset")
	assert.Equal(t, 2.0, testutil.ToFloat64(r.landmarkEvents.WithLabelValues("placed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.landmarkEvents.WithLabelValues("reset")))

	r.ObserveResults(results(3, 1, measurement.CrossCheck{Checked: true, Agrees: false}), 7)
	r.ObserveResults(results(2, 0, measurement.CrossCheck{Checked: true, Agrees: true}), 5)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.recomputations))
	assert.Equal(t, 5.0, testutil.ToFloat64(r.placedLandmarks))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.validParameters))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.piDisagreements))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.invalidParameters.WithLabelValues("degenerate_geometry")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.invalidParameters.WithLabelValues("insufficient_landmarks")))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	assert.NotPanics(t, func() {
		r.LandmarkEvent("placed")
		r.ObserveResults(measurement.Results{}, 0)
	})
	assert.NoError(t, r.WriteTextfile(filepath.Join(t.TempDir(), "m.prom")))
}

func TestDuplicateRegistrationFails(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := NewRecorder(WithRegistry(reg))
	require.NoError(t, err)

	_, err = NewRecorder(WithRegistry(reg))
	assert.Error(t, err)

	_, err = NewRecorder(WithRegistry(reg), WithNamespace("other"))
	assert.NoError(t, err)
}

func TestWriteTextfile(t *testing.T) {
	r, err := NewRecorder(WithNamespace("test"))
	require.NoError(t, err)
	r.LandmarkEvent("cleared")

	path := filepath.Join(t.TempDir(), "spineforge.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `test_landmark_events_total{kind="cleared"} 1`))
}

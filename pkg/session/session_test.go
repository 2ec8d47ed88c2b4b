package session

import (
	"io"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spineforge/internal/models"
	"spineforge/pkg/calibration"
	"spineforge/pkg/geometry"
	"spineforge/pkg/landmarks"
	"spineforge/pkg/measurement"
	"spineforge/pkg/metrics"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

var spine = map[models.LandmarkName]models.Point{
	models.Brow:        {X: 380, Y: 60},
	models.Chin:        {X: 370, Y: 160},
	models.C2Anterior:  {X: 420, Y: 220},
	models.C2Posterior: {X: 455, Y: 212},
	models.C7Anterior:  {X: 430, Y: 420},
	models.C7Posterior: {X: 470, Y: 408},
	models.T1Anterior:  {X: 435, Y: 450},
	models.T1Posterior: {X: 475, Y: 436},
	models.L1Anterior:  {X: 440, Y: 900},
	models.L1Posterior: {X: 490, Y: 905},
	models.L5Anterior:  {X: 430, Y: 1180},
	models.L5Posterior: {X: 480, Y: 1165},
	models.S1Anterior:  {X: 440, Y: 1240},
	models.S1Posterior: {X: 490, Y: 1210},
	models.HipLeft:     {X: 400, Y: 1330},
	models.HipRight:    {X: 410, Y: 1340},
}

func placeAll(t *testing.T, s *Session) {
	t.Helper()
	for _, name := range models.AllLandmarks() {
		if p, ok := spine[name]; ok {
			require.NoError(t, s.Place(name, p))
		}
	}
}

func TestNewSessionIsEmpty(t *testing.T) {
	s := New(WithLogger(quietLogger()))
	defer s.Close()

	assert.NotEmpty(t, s.ID())
	assert.NotEqual(t, s.ID(), New(WithLogger(quietLogger())).ID())
	assert.Empty(t, s.Results().Valid())
	assert.False(t, s.Calibration().Calibrated())
	assert.Equal(t, geometry.FacingLeft, s.Facing())
}

func TestChinBrowOnly(t *testing.T) {
	s := New(WithLogger(quietLogger()))
	defer s.Close()

	require.NoError(t, s.Place(models.Chin, spine[models.Chin]))
	require.NoError(t, s.Place(models.Brow, spine[models.Brow]))

	for _, r := range s.Results().Params {
		assert.Equal(t, r.Name == models.CBVA, r.Valid, r.Name)
	}
}

func TestResetInvalidatesEverything(t *testing.T) {
	s := New(WithLogger(quietLogger()))
	defer s.Close()

	placeAll(t, s)
	require.Len(t, s.Results().Valid(), len(models.AllParameters()))

	s.Reset()
	for name, lm := range s.Landmarks() {
		assert.False(t, lm.Placed, name)
	}
	for _, r := range s.Results().Params {
		assert.False(t, r.Valid, r.Name)
		assert.Zero(t, r.Value, r.Name)
	}
}

func TestClearInvalidatesDependents(t *testing.T) {
	s := New(WithLogger(quietLogger()))
	defer s.Close()
	placeAll(t, s)

	require.NoError(t, s.Clear(models.HipRight))

	for _, name := range []models.ParameterName{models.PelvicTilt, models.PIVector, models.PISum} {
		r, ok := s.Result(name)
		require.True(t, ok)
		assert.False(t, r.Valid, name)
		assert.Equal(t, []models.LandmarkName{models.HipRight}, r.Missing)
	}
	r, _ := s.Result(models.SacralSlope)
	assert.True(t, r.Valid)
	assert.False(t, s.Results().CrossCheck.Checked)
}

func TestLoadImage(t *testing.T) {
	s := New(WithLogger(quietLogger()))
	defer s.Close()
	placeAll(t, s)

	cal, err := calibration.Manual(0.2, 0.2)
	require.NoError(t, err)
	s.LoadImage(cal)

	assert.Empty(t, s.Results().Valid())
	assert.True(t, s.Calibration().Calibrated())

	placeAll(t, s)
	sva, _ := s.Result(models.GlobalSVA)
	assert.Equal(t, models.Millimetres, sva.Unit)
	assert.True(t, sva.Scaled)
}

func TestSetCalibrationRescalesLengths(t *testing.T) {
	s := New(WithLogger(quietLogger()))
	defer s.Close()
	placeAll(t, s)

	px, _ := s.Result(models.GlobalSVA)
	cal, err := calibration.Manual(0.5, 0.5)
	require.NoError(t, err)
	s.SetCalibration(cal)

	mm, _ := s.Result(models.GlobalSVA)
	assert.InDelta(t, px.Value*0.5, mm.Value, 1e-9)
	assert.Equal(t, models.Millimetres, mm.Unit)
}

func TestSetFacingFlipsSigns(t *testing.T) {
	s := New(WithLogger(quietLogger()))
	defer s.Close()
	placeAll(t, s)

	left, _ := s.Result(models.GlobalSVA)
	s.SetFacing(geometry.FacingRight)
	right, _ := s.Result(models.GlobalSVA)

	assert.Equal(t, geometry.FacingRight, s.Facing())
	assert.InDelta(t, -left.Value, right.Value, 1e-9)
}

func TestOnUpdate(t *testing.T) {
	s := New(WithLogger(quietLogger()))
	defer s.Close()

	var updates []measurement.Results
	unsubscribe := s.OnUpdate(func(rs measurement.Results) {
		updates = append(updates, rs)
	})

	require.NoError(t, s.Place(models.Chin, spine[models.Chin]))
	require.NoError(t, s.Place(models.Brow, spine[models.Brow]))
	require.Len(t, updates, 2)

	cbva, _ := updates[1].Get(models.CBVA)
	assert.True(t, cbva.Valid)
	first, _ := updates[0].Get(models.CBVA)
	assert.False(t, first.Valid)

	unsubscribe()
	s.Reset()
	assert.Len(t, updates, 2)
}

func TestCloseStopsMeasuring(t *testing.T) {
	s := New(WithLogger(quietLogger()))
	s.Close()

	require.NoError(t, s.Place(models.Chin, spine[models.Chin]))
	require.NoError(t, s.Place(models.Brow, spine[models.Brow]))
	assert.Empty(t, s.Results().Valid())

	lm, err := s.Landmark(models.Chin)
	require.NoError(t, err)
	assert.True(t, lm.Placed)
}

func TestIndependentSessions(t *testing.T) {
	a := New(WithLogger(quietLogger()))
	b := New(WithLogger(quietLogger()))
	defer a.Close()
	defer b.Close()

	placeAll(t, a)
	assert.Len(t, a.Results().Valid(), len(models.AllParameters()))
	assert.Empty(t, b.Results().Valid())
}

func TestConcurrentPlacement(t *testing.T) {
	s := New(WithLogger(quietLogger()))
	defer s.Close()

	var wg sync.WaitGroup
	for name, p := range spine {
		wg.Add(1)
		go func(name models.LandmarkName, p models.Point) {
			defer wg.Done()
			assert.NoError(t, s.Place(name, p))
		}(name, p)
	}
	wg.Wait()

	// whatever the interleaving, the final results match the final landmarks
	assert.Len(t, s.Results().Valid(), len(models.AllParameters()))
}

func TestRecomputeCatchesUnannouncedEdits(t *testing.T) {
	s := New(WithLogger(quietLogger()))
	// detach so placements land in the store without events, as when another
	// goroutine's edit is still waiting for its notification
	s.Close()

	for _, name := range []models.LandmarkName{models.T1Anterior, models.T1Posterior, models.Brow, models.Chin} {
		require.NoError(t, s.Place(name, spine[name]))
	}
	s.onChange(landmarks.Change{Kind: landmarks.Placed, Names: []models.LandmarkName{models.Chin}})

	for _, name := range []models.ParameterName{models.CBVA, models.T1Slope} {
		r, ok := s.Result(name)
		require.True(t, ok)
		assert.True(t, r.Valid, name)
	}

	// the late event for T1 finds nothing left to do
	before := s.Results()
	s.onChange(landmarks.Change{Kind: landmarks.Placed, Names: []models.LandmarkName{models.T1Posterior}})
	assert.Equal(t, before, s.Results())
}

func TestLogsDegenerateAndMetrics(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewRecorder(metrics.WithRegistry(reg))
	require.NoError(t, err)

	s := New(WithLogger(logger), WithMetrics(rec))
	defer s.Close()

	p := models.Point{X: 10, Y: 10}
	require.NoError(t, s.Place(models.T1Anterior, p))
	require.NoError(t, s.Place(models.T1Posterior, p))

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Level == logrus.WarnLevel && e.Data["parameter"] == models.T1Slope.DisplayName() {
			warned = true
			assert.Equal(t, s.ID(), e.Data["session"])
		}
	}
	assert.True(t, warned, "expected a warning for coincident T1 corners")

	expected := `
# HELP spineforge_recomputations_total Parameter recomputation passes.
# TYPE spineforge_recomputations_total counter
spineforge_recomputations_total 2
`
	assert.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected), "spineforge_recomputations_total"))
}

func TestPICrossCheckWarning(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	s := New(WithLogger(logger), WithPITolerance(0))
	defer s.Close()

	placeAll(t, s)
	// swapped sacral corners
	require.NoError(t, s.Place(models.S1Anterior, spine[models.S1Posterior]))
	require.NoError(t, s.Place(models.S1Posterior, spine[models.S1Anterior]))

	cc := s.Results().CrossCheck
	require.True(t, cc.Checked)
	assert.False(t, cc.Agrees)

	var warned bool
	for _, e := range hook.AllEntries() {
		if e.Message == "pelvic incidence derivations disagree" {
			warned = true
		}
	}
	assert.True(t, warned)
}

func TestDisplayMap(t *testing.T) {
	s := New(WithLogger(quietLogger()))
	defer s.Close()
	require.NoError(t, s.Place(models.Chin, spine[models.Chin]))
	require.NoError(t, s.Place(models.Brow, spine[models.Brow]))

	d := s.Display(1)
	require.Len(t, d, len(models.AllParameters()))

	cbva := d["CBVA"]
	require.NotNil(t, cbva.Value)
	assert.True(t, cbva.Valid)
	assert.Equal(t, "°", cbva.Unit)
	assert.False(t, math.IsNaN(*cbva.Value))

	sva := d["SVA"]
	assert.Nil(t, sva.Value)
	assert.False(t, sva.Valid)
	assert.Equal(t, measurement.Placeholder, sva.Text)
	assert.Equal(t, "px", sva.Unit)
}

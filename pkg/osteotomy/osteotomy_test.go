package osteotomy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spineforge/internal/models"
	"spineforge/pkg/measurement"
)

func baseline(svaUnit models.Unit, sva float64) measurement.Results {
	deg := func(name models.ParameterName, v float64) measurement.Result {
		return measurement.Result{Name: name, Value: v, Unit: models.Degrees, Valid: true, Scaled: true}
	}
	return measurement.Results{Params: []measurement.Result{
		deg(models.CBVA, 5),
		deg(models.CervicalLordosis, 10),
		{Name: models.CervicalSVA, Err: measurement.ErrInsufficientLandmarks, Unit: svaUnit},
		deg(models.T1Slope, 25),
		deg(models.LumbarLordosis, 20),
		deg(models.SacralSlope, 25),
		deg(models.PelvicTilt, 30),
		deg(models.PIVector, 55),
		deg(models.PISum, 55),
		{Name: models.GlobalSVA, Value: sva, Unit: svaUnit, Valid: true, Scaled: svaUnit == models.Millimetres},
	}}
}

func value(t *testing.T, rs measurement.Results, name models.ParameterName) float64 {
	t.Helper()
	r, ok := rs.Get(name)
	require.True(t, ok)
	return r.Value
}

// TestExpectedCorrection checks the per-type corrections and modifiers
func TestExpectedCorrection(t *testing.T) {
	cases := []struct {
		plan Plan
		want float64
	}{
		{Plan{Type: SPO, Technique: Wedge, Side: Symmetric, Levels: 1}, 10},
		{Plan{Type: SPO, Technique: Wedge, Side: Symmetric, Levels: 3}, 30},
		{Plan{Type: SPO, Technique: Wedge, Side: Symmetric, Levels: 0}, 10},
		{Plan{Type: PSO, Technique: Wedge, Side: Symmetric}, 30},
		{Plan{Type: VCR, Technique: Resect, Side: Symmetric}, 45},
		{Plan{Type: PSO, Technique: Wedge, Side: Left}, 21},
		{Plan{Type: PSO, Technique: Open, Side: Symmetric}, 24},
		{Plan{Type: VCR, Technique: Open, Side: Right}, 45 * 0.7 * 0.8},
	}
	for _, tc := range cases {
		assert.InDelta(t, tc.want, tc.plan.ExpectedCorrection(), 1e-9, "%+v", tc.plan)
	}
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("l3")
	require.NoError(t, err)
	assert.Equal(t, Level{Region: Lumbar, Number: 3}, l)
	assert.Equal(t, "L3", l.String())

	for _, bad := range []string{"", "L", "L6", "C0", "T13", "X1", "Lx"} {
		_, err := ParseLevel(bad)
		assert.ErrorIs(t, err, ErrInvalidPlan, bad)
	}
}

func TestParsePlan(t *testing.T) {
	p, err := ParsePlan("pso:L3")
	require.NoError(t, err)
	assert.Equal(t, Plan{Type: PSO, Technique: Wedge, Side: Symmetric, Level: Level{Lumbar, 3}, Levels: 1}, p)

	p, err = ParsePlan("SPO:T10:open:left:2")
	require.NoError(t, err)
	assert.Equal(t, Plan{Type: SPO, Technique: Open, Side: Left, Level: Level{Thoracic, 10}, Levels: 2}, p)

	for _, bad := range []string{"PSO", "ABC:L3", "PSO:L3:Drill", "PSO:L3:Wedge:Up", "SPO:L3:Wedge:Left:x", "PSO:L3:a:b:1:extra"} {
		_, err := ParsePlan(bad)
		assert.True(t, errors.Is(err, ErrInvalidPlan), "expected ErrInvalidPlan for %q, got %v", bad, err)
	}
}

func TestSimulateLumbarPSO(t *testing.T) {
	base := baseline(models.Millimetres, 100)
	plan, err := NewPlan(PSO, "L3")
	require.NoError(t, err)

	sim, err := Simulate(base, []Plan{plan})
	require.NoError(t, err)

	assert.InDelta(t, 50, value(t, sim, models.LumbarLordosis), 1e-9)
	assert.InDelta(t, 18, value(t, sim, models.PelvicTilt), 1e-9)
	assert.InDelta(t, 37, value(t, sim, models.SacralSlope), 1e-9)
	assert.InDelta(t, 25, value(t, sim, models.GlobalSVA), 1e-9)

	// morphology and untouched regions stay put
	assert.InDelta(t, 55, value(t, sim, models.PIVector), 1e-9)
	assert.InDelta(t, 55, value(t, sim, models.PISum), 1e-9)
	assert.InDelta(t, 25, value(t, sim, models.T1Slope), 1e-9)
	assert.InDelta(t, 10, value(t, sim, models.CervicalLordosis), 1e-9)

	// baseline is not modified
	assert.InDelta(t, 20, value(t, base, models.LumbarLordosis), 1e-9)
}

func TestSimulateCombinedPlans(t *testing.T) {
	spo, err := NewPlan(SPO, "L4", WithLevels(2))
	require.NoError(t, err)
	upper, err := NewPlan(PSO, "T3")
	require.NoError(t, err)
	lower, err := NewPlan(PSO, "T8")
	require.NoError(t, err)
	cervical, err := NewPlan(VCR, "C7", WithSide(Left))
	require.NoError(t, err)

	sim, err := Simulate(baseline(models.Millimetres, 200), []Plan{spo, upper, lower, cervical})
	require.NoError(t, err)

	assert.InDelta(t, 20+16, value(t, sim, models.LumbarLordosis), 1e-9)
	assert.InDelta(t, 30-4, value(t, sim, models.PelvicTilt), 1e-9)
	assert.InDelta(t, 25+4, value(t, sim, models.SacralSlope), 1e-9)
	assert.InDelta(t, 25+18, value(t, sim, models.T1Slope), 1e-9, "only upper thoracic levels move T1")
	assert.InDelta(t, 10+0.7*31.5, value(t, sim, models.CervicalLordosis), 1e-9)
	assert.InDelta(t, 200-20-36-36-37.8, value(t, sim, models.GlobalSVA), 1e-9)
}

func TestSimulateSVAFloorsAtZero(t *testing.T) {
	plan, err := NewPlan(PSO, "L2")
	require.NoError(t, err)

	sim, err := Simulate(baseline(models.Millimetres, 40), []Plan{plan})
	require.NoError(t, err)
	assert.Equal(t, 0.0, value(t, sim, models.GlobalSVA))

	sim, err = Simulate(baseline(models.Millimetres, -100), []Plan{plan})
	require.NoError(t, err)
	assert.InDelta(t, -25, value(t, sim, models.GlobalSVA), 1e-9)
}

func TestSimulateSkipsUnscaledSVAAndInvalidValues(t *testing.T) {
	plan, err := NewPlan(PSO, "L3")
	require.NoError(t, err)

	base := baseline(models.Pixels, 300)
	sim, err := Simulate(base, []Plan{plan})
	require.NoError(t, err)
	assert.InDelta(t, 300, value(t, sim, models.GlobalSVA), 1e-9)

	r, _ := sim.Get(models.CervicalSVA)
	assert.False(t, r.Valid)
	assert.Zero(t, r.Value)
}

func TestSimulateRejectsInvalidPlan(t *testing.T) {
	_, err := Simulate(baseline(models.Millimetres, 0), []Plan{{Type: "XYZ"}})
	assert.ErrorIs(t, err, ErrInvalidPlan)
}

func TestSimulateWithoutPlans(t *testing.T) {
	base := baseline(models.Millimetres, 100)
	sim, err := Simulate(base, nil)
	require.NoError(t, err)
	assert.Equal(t, base, sim)
}

package diagnostics

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Asw1n/advancedwind/internal/attitude"
	"github.com/Asw1n/advancedwind/internal/polar"
	"github.com/Asw1n/advancedwind/internal/windcorrect"
)

var t0 = time.Date(2026, 9, 2, 11, 0, 0, 0, time.UTC)

func TestCollectorRecordsRun(t *testing.T) {
	c := NewCollector(map[string]any{"heightAboveWater": 15})
	assert.Nil(t, c.Report())

	p, err := windcorrect.New(windcorrect.Config{
		CorrectMisalignment: true,
		SensorMisalignment:  10 * math.Pi / 180,
		CorrectMastHeel:     true,
	}, c)
	require.NoError(t, err)
	p.ObserveAttitude(attitude.Sample{Roll: 0.1, Pitch: 0.05, Time: t0})
	p.ObserveBoatSpeed(1/1.94384, t0)
	p.ObserveApparentWind(10/1.94384, 0, t0)
	_, err = p.Run(t0)
	require.NoError(t, err)

	r := c.Report()
	require.NotNil(t, r)
	assert.Equal(t, t0, r.Timestamp)
	assert.Equal(t, uint64(1), r.Run)
	assert.Equal(t, map[string]any{"heightAboveWater": 15}, r.Options)

	wantWind := []Step{
		{Label: windcorrect.LabelApparentWind, Speed: 10, Angle: 0},
		{Label: windcorrect.LabelMisalignment, Speed: 10, Angle: -10},
	}
	if diff := cmp.Diff(wantWind, r.WindSteps[:2], cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("wind steps mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, windcorrect.LabelMastHeel, r.WindSteps[2].Label)
	assert.Equal(t, windcorrect.LabelTrueWind, r.WindSteps[3].Label)

	require.Len(t, r.BoatSteps, 1)
	assert.InDelta(t, 1, r.BoatSteps[0].Speed, 1e-9)

	require.Len(t, r.AttitudeSteps, 1)
	assert.InDelta(t, 0.1*180/math.Pi, r.AttitudeSteps[0].Roll, 1e-9)
	assert.InDelta(t, 0.05*180/math.Pi, r.AttitudeSteps[0].Pitch, 1e-9)
}

func TestReportIsACopy(t *testing.T) {
	c := NewCollector(nil)
	c.Begin(t0, windcorrect.Config{HeightAboveWater: 12})
	c.Wind("a", polar.FromPolar(1, 0, polar.Symmetric))
	c.End(windcorrect.Result{Run: 3})

	r := c.Report()
	r.WindSteps[0].Label = "changed"
	assert.Equal(t, "a", c.Report().WindSteps[0].Label)
	assert.Equal(t, windcorrect.Config{HeightAboveWater: 12}, r.Options)
}

func TestDisabledCollectorKeepsResult(t *testing.T) {
	c := NewCollector(nil)
	c.SetEnabled(false)
	c.Begin(t0, windcorrect.Config{})
	c.Wind("a", polar.Vector{})
	c.Delta("mast angle", 1)
	c.End(windcorrect.Result{Run: 7})

	assert.Nil(t, c.Report())
	res, ok := c.Result()
	assert.True(t, ok)
	assert.Equal(t, uint64(7), res.Run)

	c.Reset()
	_, ok = c.Result()
	assert.False(t, ok)
}

func TestSetEnabledTakesEffectAtNextRun(t *testing.T) {
	c := NewCollector(nil)
	assert.True(t, c.IsEnabled())

	c.Begin(t0, windcorrect.Config{})
	c.SetEnabled(false)
	assert.False(t, c.IsEnabled())
	c.Wind("a", polar.FromPolar(1, 0, polar.Symmetric))
	c.End(windcorrect.Result{Run: 1})
	r := c.Report()
	require.NotNil(t, r)
	require.Len(t, r.WindSteps, 1, "run started enabled is recorded in full")

	c.Begin(t0.Add(time.Second), windcorrect.Config{})
	c.SetEnabled(true)
	c.Wind("b", polar.FromPolar(1, 0, polar.Symmetric))
	c.End(windcorrect.Result{Run: 2})
	r = c.Report()
	require.NotNil(t, r)
	assert.Equal(t, uint64(1), r.Run, "run started disabled publishes no report")
	res, _ := c.Result()
	assert.Equal(t, uint64(2), res.Run)
}

func TestSetEnabledDuringRuns(t *testing.T) {
	c := NewCollector(nil)
	p, err := windcorrect.New(windcorrect.Config{}, c)
	require.NoError(t, err)
	p.ObserveBoatSpeed(2, t0)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			c.SetEnabled(i%2 == 0)
			_ = c.Report()
		}
	}()
	for i := 0; i < 500; i++ {
		at := t0.Add(time.Duration(i) * time.Millisecond)
		p.ObserveApparentWind(6, 0, at)
		_, err := p.Run(at)
		require.NoError(t, err)
	}
	<-done

	c.SetEnabled(true)
	_, err = p.Run(t0.Add(time.Second))
	require.NoError(t, err)
	r := c.Report()
	require.NotNil(t, r)
	assert.Equal(t, windcorrect.LabelApparentWind, r.WindSteps[0].Label)
	assert.Equal(t, windcorrect.LabelTrueWind, r.WindSteps[len(r.WindSteps)-1].Label)
}

func TestReportJSONShape(t *testing.T) {
	c := NewCollector(nil)
	c.Begin(t0, windcorrect.Config{})
	c.Delta(windcorrect.LabelMastAngle, math.Pi/2)
	c.End(windcorrect.Result{})

	b, err := json.Marshal(c.Report())
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	for _, key := range []string{"timestamp", "options", "windSteps", "boatSteps", "attitudeSteps", "deltas"} {
		assert.Contains(t, m, key)
	}
	deltas := m["deltas"].([]any)
	require.Len(t, deltas, 1)
	assert.InDelta(t, 90, deltas[0].(map[string]any)["value"], 1e-9)
}

func TestVectors(t *testing.T) {
	res := windcorrect.Result{
		MeasuredWind:   polar.FromPolar(10, 0.5, polar.Symmetric),
		TrueWind:       polar.FromPolar(7, 0.8, polar.Symmetric),
		ApparentWind:   polar.FromPolar(9.5, 0.55, polar.Symmetric),
		BackCalculated: true,
		GroundWind:     polar.FromPolar(6, 2, polar.Positive),
		GroundSpeed:    polar.FromPolar(3, 1.5, polar.Positive),
		HasGround:      true,
		BoatSpeed:      polar.FromPolar(3, -0.02, polar.Symmetric),
		SensorSpeed:    polar.FromPolar(0.3, 1, polar.Symmetric),
		Heading:        1.4,
		Mast:           0.2,
		Attitude:       attitude.Sample{Roll: 0.1, Pitch: 0.02},
	}

	t.Run("minimal", func(t *testing.T) {
		s := Vectors(res, windcorrect.Config{HeightAboveWater: 15})
		var ids []string
		for _, p := range s.Polars {
			ids = append(ids, p.ID)
		}
		assert.Equal(t, []string{"apparentWind", "trueWind", "calculatedWind", "groundWind", "groundSpeed", "boatSpeed"}, ids)
		assert.Equal(t, 15.0, s.Height)
		assert.Equal(t, []Delta{{ID: "heading", Value: 1.4}}, s.Deltas)
	})

	t.Run("with mast corrections", func(t *testing.T) {
		s := Vectors(res, windcorrect.Config{CorrectMastMovement: true, CorrectMastRotation: true})
		sensor, ok := s.Find("sensorSpeed")
		require.True(t, ok)
		assert.Equal(t, PlaneMast, sensor.Plane)
		assert.Equal(t, "sensor", sensor.Label)
		require.Len(t, s.Deltas, 3)
		assert.Equal(t, "attitude", s.Deltas[1].ID)
		assert.Equal(t, Delta{ID: "mast", Value: 0.2}, s.Deltas[2])
	})

	t.Run("planes", func(t *testing.T) {
		s := Vectors(res, windcorrect.Config{})
		ground, ok := s.Find("groundWind")
		require.True(t, ok)
		assert.Equal(t, PlaneGround, ground.Plane)
		boat, _ := s.Find("boatSpeed")
		assert.Equal(t, PlaneBoat, boat.Plane)
		assert.InDelta(t, -0.02, boat.Angle, 1e-12)
		_, ok = s.Find("missing")
		assert.False(t, ok)
	})
}

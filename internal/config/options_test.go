package config

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyOptionsDefaults(t *testing.T) {
	o := EmptyOptions()
	assert.False(t, o.GetCorrectForMisalign())
	assert.False(t, o.GetBackCalculate())
	assert.True(t, o.GetPreventDuplication())
	assert.Equal(t, 15.0, o.GetHeightAboveWater())
	assert.Equal(t, 0.14, o.GetWindExponent())
	assert.Equal(t, 0.05, o.GetUpwashSlope())
	assert.Equal(t, 1.5, o.GetUpwashOffset())
	assert.Equal(t, 10.0, o.GetKFactor())
	assert.Equal(t, 1.0, o.GetTimeConstant())
	assert.Equal(t, 0.0, o.GetInputTimeConstant())
	assert.Equal(t, 200*time.Millisecond, o.GetReadinessInterval())
	assert.Equal(t, 10*time.Second, o.GetReadinessTimeout())
	assert.Equal(t, 5.0, o.GetStaleFactor())
	assert.Equal(t, "", o.GetRotationPath())
}

func TestDefaultOptionsMatchesFile(t *testing.T) {
	fromFile := MustLoadDefaultOptions()
	defaults := DefaultOptions()

	// Source filters are not part of the defaults file.
	defaults.ApparentWindSource = nil
	defaults.BoatSpeedSource = nil
	defaults.HeadingSource = nil
	defaults.AttitudeSource = nil
	defaults.GroundSpeedSource = nil
	defaults.MastSource = nil

	if diff := cmp.Diff(defaults, fromFile); diff != "" {
		t.Errorf("defaults file drifted from DefaultOptions (-want +got):\n%s", diff)
	}
	require.NoError(t, defaults.Validate())
}

func TestParseOptionsPartial(t *testing.T) {
	o, err := ParseOptions([]byte(`{"correctForHeight": true, "heightAboveWater": 20}`))
	require.NoError(t, err)
	assert.True(t, o.GetCorrectForHeight())
	assert.Equal(t, 20.0, o.GetHeightAboveWater())
	assert.Equal(t, 0.14, o.GetWindExponent(), "omitted field keeps default")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"valid", `{"upwashSlope": 0.3, "upwashOffset": -1}`, ""},
		{"slope too high", `{"upwashSlope": 0.31}`, "upwashSlope"},
		{"offset too low", `{"upwashOffset": -1.5}`, "upwashOffset"},
		{"time constant", `{"timeConstant": 11}`, "timeConstant"},
		{"negative height", `{"heightAboveWater": -1}`, "heightAboveWater"},
		{"bad duration", `{"readinessTimeout": "soon"}`, "readinessTimeout"},
		{"zero duration", `{"readinessInterval": "0s"}`, "readinessInterval"},
		{"interval over timeout", `{"readinessInterval": "2s", "readinessTimeout": "1s"}`, "exceeds"},
		{"stale factor", `{"staleFactor": 0.5}`, "staleFactor"},
		{"not json", `{`, "parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseOptions([]byte(tt.doc))
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestPipelineConvertsUnits(t *testing.T) {
	o, err := ParseOptions([]byte(`{
		"correctForMisalign": true,
		"correctForUpwash": true,
		"sensorMisalignment": 90,
		"upwashOffset": 2,
		"rotationPath": "sensors.mast.angle"
	}`))
	require.NoError(t, err)

	cfg := o.Pipeline()
	assert.True(t, cfg.CorrectMisalignment)
	assert.True(t, cfg.CorrectUpwash)
	assert.InDelta(t, math.Pi/2, cfg.SensorMisalignment, 1e-12)
	assert.InDelta(t, 2*math.Pi/180, cfg.UpwashOffset, 1e-12)
	assert.Equal(t, "sensors.mast.angle", cfg.MastRotationPath)
	assert.True(t, cfg.PreventDuplication)
	assert.Equal(t, 15.0, cfg.HeightAboveWater)
}

func TestLoadOptions(t *testing.T) {
	dir := t.TempDir()

	t.Run("valid", func(t *testing.T) {
		path := filepath.Join(dir, "opts.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"kFactor": 12}`), 0o644))
		o, err := LoadOptions(path)
		require.NoError(t, err)
		assert.Equal(t, 12.0, o.GetKFactor())
	})

	t.Run("wrong extension", func(t *testing.T) {
		path := filepath.Join(dir, "opts.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`{}`), 0o644))
		_, err := LoadOptions(path)
		assert.ErrorContains(t, err, ".json")
	})

	t.Run("missing", func(t *testing.T) {
		_, err := LoadOptions(filepath.Join(dir, "nope.json"))
		assert.Error(t, err)
	})

	t.Run("too large", func(t *testing.T) {
		path := filepath.Join(dir, "big.json")
		big := `{"rotationPath": "` + strings.Repeat("x", maxFileSize) + `"}`
		require.NoError(t, os.WriteFile(path, []byte(big), 0o644))
		_, err := LoadOptions(path)
		assert.ErrorContains(t, err, "too large")
	})
}

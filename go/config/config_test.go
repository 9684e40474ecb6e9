package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	expect "github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testProfileConfig and testEngineConfig mirror the shape of the real
// cmd/transfers-update Config, without importing it (config must not depend
// on its own callers).
type testProfileConfig struct {
	WalkingSpeedMPS float64
	DurationLimitS  float64
}

type testEngineConfig struct {
	DBFilePath             string
	OSMPath                string
	MaxMatchingDist        float64
	MaxBusStopMatchingDist float64
	RouteTimeout           Duration
	Profiles               map[string]testProfileConfig
}

func TestDuration(t *testing.T) {
	type dummy struct {
		Dur Duration
	}
	orig := dummy{
		Dur: Duration{5 * time.Second},
	}
	enc, err := json.Marshal(&orig)
	require.NoError(t, err)
	expect.Equal(t, `{"Dur":"5s"}`, string(enc))

	parsed := dummy{}
	require.NoError(t, json.Unmarshal(enc, &parsed))
	require.Equal(t, orig, parsed)
}

func TestParseConfigFile(t *testing.T) {
	configFile := filepath.Join("testdata", "TestParseConfigFile.json5")
	parsed := testEngineConfig{}
	require.NoError(t, ParseConfigFile(configFile, "", &parsed))
	expected := testEngineConfig{
		DBFilePath:             "/var/transfers/store.db",
		OSMPath:                "/var/transfers/extract.osm.pbf",
		MaxMatchingDist:        400,
		MaxBusStopMatchingDist: 120,
		RouteTimeout:           Duration{30 * time.Second},
		Profiles: map[string]testProfileConfig{
			"default": {WalkingSpeedMPS: 1.4, DurationLimitS: 300},
			"fast":    {WalkingSpeedMPS: 2.0, DurationLimitS: 600},
		},
	}
	require.Equal(t, expected, parsed)
}

func TestParseConfigFileDoesntExist(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "nonexistent-file.json5")
	parsed := testEngineConfig{}
	err := ParseConfigFile(configFile, "--config", &parsed)
	require.Error(t, err)
	require.Regexp(t, `Unable to read --config file ".*/nonexistent-file.json5":.* no such file or directory`, err.Error())
}

func TestParseConfigFileInvalid(t *testing.T) {
	dir := t.TempDir()
	configFile := filepath.Join(dir, "invalid.json5")
	require.NoError(t, os.WriteFile(configFile, []byte("not json"), os.ModePerm))
	parsed := testEngineConfig{}
	err := ParseConfigFile(configFile, "", &parsed)
	require.Error(t, err)
	require.Regexp(t, `Unable to parse file ".*/invalid.json5": invalid character 'o' in literal null`, err.Error())
}

package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCameraSourceRoundTripsDeviceIndex(t *testing.T) {
	src := CameraSource{IsDevice: true, Device: 2}

	data, err := json.Marshal(src)
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))

	var got CameraSource
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, src, got)
}

func TestCameraSourceRoundTripsPath(t *testing.T) {
	src := CameraSource{Path: "rtsp://camera-1/stream"}

	data, err := json.Marshal(src)
	require.NoError(t, err)
	assert.Equal(t, `"rtsp://camera-1/stream"`, string(data))

	var got CameraSource
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, src, got)
}

func TestCameraSourceUnmarshalsNumericStringAsDevice(t *testing.T) {
	var got CameraSource
	require.NoError(t, got.UnmarshalJSON([]byte(`"0"`)))
	assert.True(t, got.IsDevice)
	assert.Equal(t, 0, got.Device)
}

func TestCameraSourceUnmarshalRejectsNonStringNonNumber(t *testing.T) {
	var got CameraSource
	err := got.UnmarshalJSON([]byte(`true`))
	assert.Error(t, err)
}

func TestLoadLauncherConfigParsesMultiCameraShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cameras.json")
	contents := `{
		"platform-1": {"source": 0, "name": "Platform 1", "conf_person": 0.6},
		"platform-2": {"source": "data/seq/platform-2", "resize": [640, 480], "max_frames": 500}
	}`
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := LoadLauncherConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg, 2)

	p1 := cfg["platform-1"]
	assert.True(t, p1.Source.IsDevice)
	assert.Equal(t, 0, p1.Source.Device)
	assert.Equal(t, "Platform 1", p1.Name)
	assert.Equal(t, 0.6, p1.ConfPerson)

	p2 := cfg["platform-2"]
	assert.False(t, p2.Source.IsDevice)
	assert.Equal(t, "data/seq/platform-2", p2.Source.Path)
	assert.Equal(t, [2]int{640, 480}, p2.Resize)
	assert.Equal(t, 500, p2.MaxFrames)
}

func TestLoadLauncherConfigMissingFileErrors(t *testing.T) {
	_, err := LoadLauncherConfig(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoadLauncherConfigInvalidJSONErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cameras.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	_, err := LoadLauncherConfig(path)
	assert.Error(t, err)
}

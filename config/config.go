// Package config implements the layered configuration of spec.md §4.9:
// literal defaults, an optional config.yaml file overriding them, and
// per-camera constructor overrides from the multi-camera launcher
// config (spec.md §6), applied in that order. Grounded on
// original_source/src/services/config.py and src/core/config_loader.py
// (the same three-layer precedence, minus the source's dynamic-map
// deep-merge — spec.md §9 Design Notes calls for a typed record
// instead).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Detection holds detector-facing options.
type Detection struct {
	Model     string `yaml:"model"`
	ImageSize int    `yaml:"image_size"`
}

// Confidence holds the global and class-conditional score floors.
type Confidence struct {
	Threshold float64 `yaml:"threshold"`
	Person    float64 `yaml:"person"`
	Vehicle   float64 `yaml:"vehicle"`
}

// NMS holds non-max-suppression parameters for the out-of-scope
// detector's post-processing.
type NMS struct {
	IoUThreshold float64 `yaml:"iou_threshold"`
}

// Tracker holds spec.md §4.2 tracker parameters.
type Tracker struct {
	IoUThreshold  float64 `yaml:"iou_threshold"`
	MaxLost       int     `yaml:"max_lost"`
	UsePrediction bool    `yaml:"use_prediction"`
	// PredictionModel is "velocity" (spec-mandated default) or
	// "kalman" (the optional KalmanPredictor, see tracker/kalman.go).
	PredictionModel string `yaml:"prediction_model"`
	// MatcherModel is "greedy" (spec-mandated default, see
	// tracker/greedy.go) or "optimal" (the Hungarian-assignment
	// OptimalMatcher, see tracker/optimal.go).
	MatcherModel string `yaml:"matcher_model"`
}

// ActivityPerson holds spec.md §4.3 person-branch parameters.
type ActivityPerson struct {
	SpeedThreshold float64 `yaml:"speed_threshold"`
}

// ActivityVehicle holds spec.md §4.3 vehicle-branch parameters.
type ActivityVehicle struct {
	DisplacementThreshold float64 `yaml:"displacement_threshold"`
	MinHistory            int     `yaml:"min_history"`
}

// Activity holds spec.md §4.3/§4.9 activity-classifier parameters.
type Activity struct {
	Window  int             `yaml:"window"`
	Person  ActivityPerson  `yaml:"person"`
	Vehicle ActivityVehicle `yaml:"vehicle"`
}

// HighVis holds spec.md §4.4 HSV-gate parameters.
type HighVis struct {
	HMin     float64 `yaml:"h_min"`
	HMax     float64 `yaml:"h_max"`
	SMin     float64 `yaml:"s_min"`
	VMin     float64 `yaml:"v_min"`
	Coverage float64 `yaml:"coverage"`
}

// Clothing holds spec.md §4.4/§4.9 PPE parameters.
type Clothing struct {
	Enabled bool    `yaml:"enabled"`
	HighVis HighVis `yaml:"high_vis"`
}

// Video holds spec.md §4.6 video-source parameters.
type Video struct {
	DefaultFPS float64 `yaml:"default_fps"`
	Resize     [2]int  `yaml:"resize"`
}

// Sync holds spec.md §4.7 staleness-rule parameters.
type Sync struct {
	HeartbeatTimeoutSeconds float64 `yaml:"heartbeat_timeout"`
	StopGraceSeconds        float64 `yaml:"stop_grace"`
}

// Intervals holds spec.md §4.6/§4.8 cadence parameters, in seconds.
type Intervals struct {
	Heartbeat float64 `yaml:"heartbeat_interval"`
	Log       float64 `yaml:"log_interval"`
	Periodic  float64 `yaml:"periodic_log_interval"`
	LogFlush  float64 `yaml:"log_flush_interval"`
}

// Config is the full layered configuration record of spec.md §4.9.
type Config struct {
	Detection  Detection  `yaml:"detection"`
	Confidence Confidence `yaml:"confidence"`
	NMS        NMS        `yaml:"nms"`
	Tracker    Tracker    `yaml:"tracker"`
	Activity   Activity   `yaml:"activity"`
	Clothing   Clothing   `yaml:"clothing"`
	Video      Video      `yaml:"video"`
	Sync       Sync       `yaml:"sync"`
	Intervals  Intervals  `yaml:"intervals"`
}

// Defaults returns the literal, implementation-baked defaults of
// spec.md §4.9.
func Defaults() Config {
	return Config{
		Detection: Detection{Model: "yolov8n", ImageSize: 640},
		Confidence: Confidence{
			Threshold: 0.25,
			Person:    0.35,
			Vehicle:   0.65,
		},
		NMS: NMS{IoUThreshold: 0.45},
		Tracker: Tracker{
			IoUThreshold:    0.20,
			MaxLost:         45,
			UsePrediction:   true,
			PredictionModel: "velocity",
			MatcherModel:    "greedy",
		},
		Activity: Activity{
			Window: 15,
			Person: ActivityPerson{SpeedThreshold: 15},
			Vehicle: ActivityVehicle{
				DisplacementThreshold: 8,
				MinHistory:            5,
			},
		},
		Clothing: Clothing{
			Enabled: true,
			HighVis: HighVis{HMin: 5, HMax: 35, SMin: 100, VMin: 100, Coverage: 0.03},
		},
		Video: Video{DefaultFPS: 25, Resize: [2]int{640, 480}},
		Sync:  Sync{HeartbeatTimeoutSeconds: 60, StopGraceSeconds: 300},
		Intervals: Intervals{
			Heartbeat: 5,
			Log:       10,
			Periodic:  30,
			LogFlush:  30,
		},
	}
}

// Load returns Defaults() deep-merged with the contents of path, if
// path is non-empty and the file exists. Unknown YAML keys are
// ignored, per spec.md §4.9 and §9 Design Notes ("unknown keys are a
// warning, not an error"); a missing file is not an error (the file
// layer is optional), but a malformed one is logged and skipped rather
// than propagated — configuration errors must never crash the
// pipeline before a single camera has started.
func Load(path string, logger *zap.SugaredLogger) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		if logger != nil {
			logger.Warnw("malformed config file, falling back to defaults", "path", path, "error", err)
		}
		return Defaults(), nil
	}
	return cfg, nil
}

// CameraSource holds spec.md §6's launcher-config "source" field,
// which is either a JSON integer (device index) or a JSON string
// (file path or URL).
type CameraSource struct {
	Device   int
	IsDevice bool
	Path     string
}

// MarshalJSON emits a bare integer for a device source or a bare
// string otherwise, mirroring UnmarshalJSON's accepted shapes.
func (s CameraSource) MarshalJSON() ([]byte, error) {
	if s.IsDevice {
		return json.Marshal(s.Device)
	}
	return json.Marshal(s.Path)
}

// UnmarshalJSON accepts either a bare integer or a bare string.
func (s *CameraSource) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		s.Device, s.IsDevice, s.Path = n, true, ""
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("camera source must be an integer device index or a string path: %w", err)
	}
	// Accept a digit-only string as a device index too, matching
	// original_source/src/core/config_loader.py's coercion of
	// CLI --source values.
	if n, err := strconv.Atoi(str); err == nil {
		s.Device, s.IsDevice, s.Path = n, true, ""
		return nil
	}
	s.Device, s.IsDevice, s.Path = 0, false, str
	return nil
}

// CameraSpec is one entry of the spec.md §6 multi-camera launcher
// config.
type CameraSpec struct {
	Source        CameraSource `json:"source"`
	Name          string       `json:"name,omitempty"`
	Output        string       `json:"output,omitempty"`
	DetModel      string       `json:"det_model,omitempty"`
	ImageSize     int          `json:"imgsz,omitempty"`
	ConfThreshold float64      `json:"conf_threshold,omitempty"`
	ConfPerson    float64      `json:"conf_person,omitempty"`
	ConfVehicle   float64      `json:"conf_vehicle,omitempty"`
	Resize        [2]int       `json:"resize,omitempty"`
	MaxFrames     int          `json:"max_frames,omitempty"`
}

// LauncherConfig maps camera id to its CameraSpec, per spec.md §6.
type LauncherConfig map[string]CameraSpec

// LoadLauncherConfig parses a spec.md §6 multi-camera launcher config
// file. A missing or malformed file is an error here, unlike Load:
// spec.md §6 requires the camera CLI to exit non-zero on a missing
// config or invalid JSON.
func LoadLauncherConfig(path string) (LauncherConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading launcher config %s: %w", path, err)
	}
	var cfg LauncherConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing launcher config %s: %w", path, err)
	}
	return cfg, nil
}

// Package activity implements the class-conditional activity
// classifier of spec.md §4.3: a single entry point
// (Classifier.UpdateTracks) dispatched
// by class family, as spec.md §9 Design Notes requires ("downstream
// code should never branch on class names outside the classifier").
// Grounded 1:1 on original_source/src/services/activity.py.
package activity

import (
	"math"
	"sort"

	"github.com/trackwatch/railwatch/track"
)

// personClasses and vehicleClasses are the class-name sets routed to
// the person and vehicle branches respectively; every other class
// clears the activity.
var (
	personClasses  = map[string]bool{"person": true}
	vehicleClasses = map[string]bool{"train": true, "truck": true, "bus": true, "car": true}
)

// Result is the label and confidence the classifier assigns.
type Result struct {
	Label      string
	Confidence float64
}

// Config holds the classifier's tunable parameters. Zero values are
// replaced with spec.md §4.3/§4.9 defaults by NewClassifier.
type Config struct {
	// FPS is the source's effective frame rate, used to convert the
	// per-frame median displacement into a px/s speed.
	FPS float64

	// Window is the number of trailing history points considered for
	// a person's speed. Default 15.
	Window int

	// PersonSpeedThreshold is the stand/move cutoff in px/s. Default 15.
	PersonSpeedThreshold float64

	// VehicleDisplacementThreshold is the stop/move cutoff in px.
	// Default 8.
	VehicleDisplacementThreshold float64

	// VehicleMinHistory is the number of history points required
	// before a vehicle is classified as anything but "stopped".
	// Default 5.
	VehicleMinHistory int
}

// DefaultConfig returns spec.md's tracker-level defaults (the ones the
// pipeline actually uses — see DESIGN.md "Open Question decisions").
func DefaultConfig() Config {
	return Config{
		FPS:                          25,
		Window:                       15,
		PersonSpeedThreshold:         15,
		VehicleDisplacementThreshold: 8,
		VehicleMinHistory:            5,
	}
}

// Classifier classifies tracks into standing/moving/stopped.
type Classifier struct {
	cfg Config
}

// NewClassifier creates a Classifier, filling zero fields in cfg from
// DefaultConfig().
func NewClassifier(cfg Config) *Classifier {
	def := DefaultConfig()
	if cfg.FPS == 0 {
		cfg.FPS = def.FPS
	}
	if cfg.Window == 0 {
		cfg.Window = def.Window
	}
	if cfg.PersonSpeedThreshold == 0 {
		cfg.PersonSpeedThreshold = def.PersonSpeedThreshold
	}
	if cfg.VehicleDisplacementThreshold == 0 {
		cfg.VehicleDisplacementThreshold = def.VehicleDisplacementThreshold
	}
	if cfg.VehicleMinHistory == 0 {
		cfg.VehicleMinHistory = def.VehicleMinHistory
	}
	return &Classifier{cfg: cfg}
}

// UpdateTracks classifies every track in place, setting Activity and
// ActivityConfidence.
func (c *Classifier) UpdateTracks(tracks []*track.Track) {
	for _, t := range tracks {
		c.classify(t)
	}
}

func (c *Classifier) classify(t *track.Track) {
	switch {
	case personClasses[t.ClassName]:
		speed := c.computeSpeed(t)
		result := c.classifyPerson(speed)
		t.Activity, t.ActivityConfidence = result.Label, result.Confidence
	case vehicleClasses[t.ClassName]:
		result := c.classifyVehicle(t)
		t.Activity, t.ActivityConfidence = result.Label, result.Confidence
	default:
		t.Activity = ""
		t.ActivityConfidence = 0
	}
}

func (c *Classifier) classifyPerson(speed float64) Result {
	if speed < c.cfg.PersonSpeedThreshold {
		return Result{"standing", 0.90}
	}
	return Result{"moving", 0.90}
}

func (c *Classifier) classifyVehicle(t *track.Track) Result {
	if len(t.History) < c.cfg.VehicleMinHistory {
		return Result{"stopped", 0.85}
	}
	start, end := t.History[0], t.History[len(t.History)-1]
	displacement := math.Hypot(end.X-start.X, end.Y-start.Y)
	if displacement < c.cfg.VehicleDisplacementThreshold {
		return Result{"stopped", 0.95}
	}
	return Result{"moving", 0.90}
}

// computeSpeed returns the median pixel distance between consecutive
// centers over the trailing Window history points, scaled to px/s by
// FPS. The median (rather than the mean) is chosen for robustness to
// single-frame outliers, per spec.md §4.3.
func (c *Classifier) computeSpeed(t *track.Track) float64 {
	if len(t.History) < 3 {
		return 0
	}

	pts := t.History
	if len(pts) > c.cfg.Window {
		pts = pts[len(pts)-c.cfg.Window:]
	}

	distances := make([]float64, 0, len(pts)-1)
	for i := 1; i < len(pts); i++ {
		distances = append(distances, math.Hypot(pts[i].X-pts[i-1].X, pts[i].Y-pts[i-1].Y))
	}
	if len(distances) == 0 {
		return 0
	}

	// Floor-middle element of the sorted distances, matching
	// original_source/src/services/activity.py exactly
	// (distances.sort(); distances[len(distances)//2]) — gonum's
	// stat.Quantile(0.5, ...) disagrees on even-length windows, so we
	// keep the plain sort here rather than reach for it.
	sort.Float64s(distances)
	median := distances[len(distances)/2]
	return median * c.cfg.FPS
}

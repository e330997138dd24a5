package tracker

import (
	"github.com/trackwatch/railwatch/geometry"
	"github.com/trackwatch/railwatch/track"
)

// VelocityPredictor is the spec-mandated default Predictor: it decays
// the track's velocity by max(0.5, 1 - 0.02*lostFrames) and shifts
// BBox by the decayed velocity, per spec.md §4.2 step 6. Grounded on
// original_source/src/services/tracker.py::TrackManager._apply_prediction.
type VelocityPredictor struct{}

// NewVelocityPredictor returns the default Predictor.
func NewVelocityPredictor() *VelocityPredictor {
	return &VelocityPredictor{}
}

// Predict implements Predictor.
func (VelocityPredictor) Predict(t *track.Track) geometry.Box {
	decay := 1.0 - float64(t.LostFrames)*0.02
	if decay < 0.5 {
		decay = 0.5
	}
	t.Velocity.VX *= decay
	t.Velocity.VY *= decay
	return t.BBox.Translate(t.Velocity.VX, t.Velocity.VY)
}

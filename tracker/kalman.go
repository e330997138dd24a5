package tracker

import (
	"gonum.org/v1/gonum/mat"

	"github.com/trackwatch/railwatch/geometry"
	"github.com/trackwatch/railwatch/internal/filterpy"
	"github.com/trackwatch/railwatch/track"
)

// KalmanPredictor is an alternate, non-default Predictor backed by a
// constant-velocity Kalman filter per track, adapted from the
// teacher's internal/filterpy (a Go port of filterpy.KalmanFilter).
// State is [cx, cy, vx, vy]; only the center is observed, box size is
// carried forward unchanged from the last detection. Selected via
// config.Tracker.PredictionModel == "kalman"; the spec-mandated
// default remains VelocityPredictor.
type KalmanPredictor struct {
	filters map[int]*filterpy.KalmanFilter
}

// NewKalmanPredictor returns a KalmanPredictor with its own per-track
// filter bank.
func NewKalmanPredictor() *KalmanPredictor {
	return &KalmanPredictor{filters: make(map[int]*filterpy.KalmanFilter)}
}

// Predict implements Predictor: advances (or lazily creates) the
// track's Kalman filter one step and returns the box recentered on the
// filter's predicted position, preserving the track's last known
// width/height.
func (kp *KalmanPredictor) Predict(t *track.Track) geometry.Box {
	kf, ok := kp.filters[t.ID]
	if !ok {
		kf = filterpy.NewKalmanFilter(4, 2)
		// Constant-velocity transition: cx' = cx + vx, cy' = cy + vy.
		kf.GetF().Set(0, 2, 1)
		kf.GetF().Set(1, 3, 1)
		cx, cy := t.BBox.Center()
		kf.SetState(mat.NewDense(4, 1, []float64{cx, cy, t.Velocity.VX, t.Velocity.VY}))
		kp.filters[t.ID] = kf
	}

	kf.Predict()
	state := kf.GetState()
	cx, cy := state.At(0, 0), state.At(1, 0)
	vx, vy := state.At(2, 0), state.At(3, 0)

	w, h := t.BBox.Width(), t.BBox.Height()
	t.Velocity = track.Velocity{VX: vx, VY: vy}

	return geometry.Box{
		X1: cx - w/2,
		Y1: cy - h/2,
		X2: cx + w/2,
		Y2: cy + h/2,
	}
}

// Observe feeds a fresh detection's center back into the track's
// filter on a matched frame, keeping the estimate locked to real
// measurements instead of drifting during long active runs. Callers
// that use KalmanPredictor should invoke this after a successful
// match; VelocityPredictor-based trackers never need it.
func (kp *KalmanPredictor) Observe(t *track.Track) {
	kf, ok := kp.filters[t.ID]
	if !ok {
		return
	}
	cx, cy := t.BBox.Center()
	kf.Update(mat.NewDense(2, 1, []float64{cx, cy}), nil, nil)
}

// Forget releases the filter state for a deleted track id.
func (kp *KalmanPredictor) Forget(id int) {
	delete(kp.filters, id)
}

// Package worker implements the bounded single-slot detection worker
// of spec.md §4.5: a long-lived background goroutine bound to one
// camera that decouples frame ingestion from inference.
package worker

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/trackwatch/railwatch/activity"
	"github.com/trackwatch/railwatch/geometry"
	"github.com/trackwatch/railwatch/ppe"
	"github.com/trackwatch/railwatch/track"
	"github.com/trackwatch/railwatch/tracker"

	"gocv.io/x/gocv"
)

// RawDetection is a single (box, class_id, score) triple straight off
// the out-of-scope detector, before confidence filtering or class-name
// resolution — spec.md §1's "predict(frame) -> list of (box, class_id,
// score)".
type RawDetection struct {
	Box     geometry.Box
	ClassID int
	Score   float64
}

// Detector is the out-of-scope collaborator: a pretrained model that
// predicts raw detections for a frame. Implementations are expected to
// be safe for sequential reuse by a single worker goroutine.
type Detector interface {
	Predict(frame gocv.Mat) ([]RawDetection, error)
}

// ClassNames resolves a detector's class ids to names (e.g. the COCO
// label set, or a rail-specific fine-tune's label map).
type ClassNames interface {
	Name(classID int) string
}

// ClassNameFunc adapts a plain function to ClassNames.
type ClassNameFunc func(classID int) string

// Name implements ClassNames.
func (f ClassNameFunc) Name(classID int) string { return f(classID) }

// ConfidenceThresholds holds the class-conditional confidence floors
// of spec.md §4.9. A detection is kept iff its score is >= the
// threshold for its resolved class name; classes with no configured
// threshold are dropped.
type ConfidenceThresholds struct {
	Person  float64
	Vehicle float64
}

var vehicleClassNames = map[string]bool{"train": true, "truck": true, "bus": true, "car": true}

func (c ConfidenceThresholds) pass(className string, score float64) bool {
	switch {
	case className == "person":
		return score >= c.Person
	case vehicleClassNames[className]:
		return score >= c.Vehicle
	default:
		return false
	}
}

// Config configures a Worker.
type Config struct {
	Detector         Detector
	ClassNames       ClassNames
	Confidence       ConfidenceThresholds
	Tracker          *tracker.Tracker
	Activity         *activity.Classifier
	PPE              *ppe.Detector
	PPEEnabled       bool
	InputWaitTimeout time.Duration // default 10ms
	Logger           *zap.SugaredLogger
}

// Worker runs detection + tracking + classification for one camera on
// its own goroutine, publishing the resulting track snapshot under a
// lock on every iteration.
type Worker struct {
	cfg   Config
	frame *frameSlot[gocv.Mat]

	mu     sync.RWMutex
	latest []*track.Track

	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates a Worker. It does not start the background goroutine;
// call Start for that.
func New(cfg Config) *Worker {
	if cfg.InputWaitTimeout == 0 {
		cfg.InputWaitTimeout = 10 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Worker{
		cfg:    cfg,
		frame:  newFrameSlot[gocv.Mat](),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Submit attempts to place frame into the single-slot input queue.
// Non-blocking: if the slot is occupied, the existing pending frame is
// discarded and replaced (spec.md §4.5).
func (w *Worker) Submit(frame gocv.Mat) {
	w.frame.Put(frame)
}

// Snapshot returns a copy of the latest published track list. Readers
// always see a consistent snapshot, never a partial update (spec.md
// §4.5 "Ordering and visibility").
func (w *Worker) Snapshot() []*track.Track {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]*track.Track, len(w.latest))
	copy(out, w.latest)
	return out
}

// Start launches the background inference loop.
func (w *Worker) Start() {
	go w.loop()
}

// Stop requests termination and waits up to timeout for the loop to
// exit. It returns false if the loop did not exit in time.
func (w *Worker) Stop(timeout time.Duration) bool {
	close(w.stopCh)
	select {
	case <-w.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

func (w *Worker) loop() {
	defer close(w.doneCh)
	for {
		select {
		case <-w.stopCh:
			return
		default:
		}

		frame, ok := w.frame.Take(w.cfg.InputWaitTimeout)
		if !ok {
			continue
		}
		w.processFrame(frame)
	}
}

// processFrame runs one full inference+tracking+classification cycle.
// Detector/frame errors are caught and degrade to an empty detection
// list for the frame, per spec.md §7 — the track set still ages
// normally on the next Tracker.Update call.
func (w *Worker) processFrame(frame gocv.Mat) {
	defer frame.Close()

	raw, err := w.safePredict(frame)
	if err != nil {
		w.cfg.Logger.Warnw("detector error, degrading to empty detection list", "error", err)
		raw = nil
	}

	filtered := make([]tracker.Detection, 0, len(raw))
	for _, d := range raw {
		name := w.cfg.ClassNames.Name(d.ClassID)
		if name == "" {
			continue // unknown classes are dropped
		}
		if !w.cfg.Confidence.pass(name, d.Score) {
			continue
		}
		filtered = append(filtered, tracker.Detection{Box: d.Box, ClassID: d.ClassID, Score: d.Score})
	}

	tracks := w.cfg.Tracker.Update(filtered)
	for _, t := range tracks {
		t.ClassName = w.cfg.ClassNames.Name(t.ClassID)
	}

	w.safeClassify(tracks)
	if w.cfg.PPEEnabled && w.cfg.PPE != nil {
		w.safePPE(tracks, frame)
	}

	w.mu.Lock()
	w.latest = tracks
	w.mu.Unlock()
}

func (w *Worker) safePredict(frame gocv.Mat) (raw []RawDetection, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = asError(r)
		}
	}()
	return w.cfg.Detector.Predict(frame)
}

// safeClassify guards against a panicking classifier, per spec.md §7
// "classification/PPE errors": the offending track(s) simply end up
// with activity cleared rather than crashing the worker.
func (w *Worker) safeClassify(tracks []*track.Track) {
	defer func() {
		if r := recover(); r != nil {
			w.cfg.Logger.Warnw("activity classification panicked, clearing activity", "error", r)
			for _, t := range tracks {
				t.Activity = ""
				t.ActivityConfidence = 0
			}
		}
	}()
	w.cfg.Activity.UpdateTracks(tracks)
}

func (w *Worker) safePPE(tracks []*track.Track, frame gocv.Mat) {
	defer func() {
		if r := recover(); r != nil {
			w.cfg.Logger.Warnw("PPE detection panicked, marking unknown", "error", r)
			for _, t := range tracks {
				if t.IsPerson() {
					t.Clothing = track.ClothingUnknown
				}
			}
		}
	}()
	w.cfg.PPE.UpdateTracks(tracks, frame)
}

func asError(r interface{}) error {
	if err, ok := r.(error); ok {
		return err
	}
	return &panicError{r}
}

type panicError struct{ v interface{} }

func (p *panicError) Error() string { return "panic: " + toString(p.v) }

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "unknown panic value"
}

// Package tracker implements the greedy IoU-based multi-object tracker
// of spec.md §4.2: data association, track lifecycle, and motion
// prediction. The default matching and prediction strategies are the
// spec-mandated deterministic greedy-argmax and velocity-decay
// algorithms; alternate strategies (OptimalMatcher, KalmanPredictor)
// are available but never the default, per DESIGN.md's Open Question
// decisions.
package tracker

import (
	"time"

	"github.com/trackwatch/railwatch/geometry"
	"github.com/trackwatch/railwatch/track"
)

// Detection is a single frame's raw detector output: a box, a class
// id, and a confidence score. Detections carry no identity.
type Detection struct {
	Box     geometry.Box
	ClassID int
	Score   float64
}

// Matcher assigns detection indices to existing track indices given an
// IoU matrix. Implementations must be deterministic for identical
// input, per spec.md §8 "greedy tie-break determinism".
type Matcher interface {
	// Match returns, for each matched pair, the detection index and
	// track index. Unmatched detections/tracks are simply absent from
	// the result.
	Match(iou [][]float64, threshold float64) (detIdx, trackIdx []int)
}

// Predictor projects a lost track's box forward by one frame and
// decays its velocity estimate.
type Predictor interface {
	// Predict returns the box to use for matching/drawing this frame,
	// and mutates t.Velocity according to the strategy's decay model.
	Predict(t *track.Track) geometry.Box
}

// Config holds the Tracker's tunable parameters. Zero values are
// replaced by the spec.md §4.2 defaults in NewTracker.
type Config struct {
	// IoUThreshold is the minimum IoU for a valid association.
	// Default 0.2.
	IoUThreshold float64

	// MaxLost is the number of consecutive unmatched frames a track
	// survives before deletion. Default 45.
	MaxLost int

	// UsePrediction enables velocity forward-projection for lost
	// tracks. Default true.
	UsePrediction bool

	// Matcher is the association strategy. Default: NewGreedyMatcher().
	Matcher Matcher

	// Predictor is the motion-prediction strategy. Default:
	// NewVelocityPredictor().
	Predictor Predictor
}

// DefaultConfig returns the spec.md §4.2 default configuration.
func DefaultConfig() Config {
	return Config{
		IoUThreshold:  0.2,
		MaxLost:       45,
		UsePrediction: true,
		Matcher:       NewGreedyMatcher(),
		Predictor:     NewVelocityPredictor(),
	}
}

// Tracker maintains a set of persistent Tracks across frames by
// running the 6-step algorithm of spec.md §4.2 on every Update call.
type Tracker struct {
	cfg    Config
	tracks map[int]*track.Track
	nextID int
}

// NewTracker creates a Tracker. Zero-valued fields in cfg are replaced
// with DefaultConfig()'s values field by field, so callers may specify
// only the parameters they want to override.
func NewTracker(cfg Config) *Tracker {
	def := DefaultConfig()
	if cfg.IoUThreshold == 0 {
		cfg.IoUThreshold = def.IoUThreshold
	}
	if cfg.MaxLost == 0 {
		cfg.MaxLost = def.MaxLost
	}
	if cfg.Matcher == nil {
		cfg.Matcher = def.Matcher
	}
	if cfg.Predictor == nil {
		cfg.Predictor = def.Predictor
	}
	return &Tracker{
		cfg:    cfg,
		tracks: make(map[int]*track.Track),
		nextID: 1,
	}
}

// Update runs one frame of the tracking algorithm: predict, score,
// greedily associate, update matched tracks, spawn new tracks for
// unmatched detections, and age/evict unmatched existing tracks. It
// never panics (spec.md §4.2 "Failure modes"): an empty detection
// list ages every existing track, and a zero-area box scores IoU 0
// against every track and so spawns a new one.
func (tk *Tracker) Update(detections []Detection) []*track.Track {
	ids := tk.sortedTrackIDs()

	// Step 1: predict a matching box for each existing track.
	matchBoxes := make([]geometry.Box, len(ids))
	for i, id := range ids {
		tr := tk.tracks[id]
		if tr.LostFrames > 0 && tk.cfg.UsePrediction {
			matchBoxes[i] = tr.PredictedBBox()
		} else {
			matchBoxes[i] = tr.BBox
		}
	}

	// Step 2: score all detection x track pairs by IoU.
	iouMatrix := make([][]float64, len(detections))
	for i, d := range detections {
		row := make([]float64, len(ids))
		for j, b := range matchBoxes {
			row[j] = geometry.IoU(d.Box, b)
		}
		iouMatrix[i] = row
	}

	// Step 3: greedy (or alternate) association.
	detIdx, trackIdx := tk.cfg.Matcher.Match(iouMatrix, tk.cfg.IoUThreshold)

	matchedDet := make(map[int]bool, len(detIdx))
	matchedTrack := make(map[int]bool, len(trackIdx))
	now := time.Now()

	// Step 4: update matched tracks.
	for k := range detIdx {
		di, ti := detIdx[k], trackIdx[k]
		d := detections[di]
		tr := tk.tracks[ids[ti]]

		tr.BBox = d.Box
		tr.ClassID = d.ClassID
		tr.Score = d.Score
		tr.LastSeen = now
		tr.Hits++
		tr.LostFrames = 0
		tr.AppendHistory(tr.Center())
		tr.RecomputeVelocity()

		matchedDet[di] = true
		matchedTrack[ti] = true
	}

	// Step 5: spawn a new track for each unmatched detection.
	for i, d := range detections {
		if matchedDet[i] {
			continue
		}
		tr := &track.Track{
			ID:         tk.nextID,
			BBox:       d.Box,
			ClassID:    d.ClassID,
			Score:      d.Score,
			Hits:       1,
			LostFrames: 0,
			LastSeen:   now,
		}
		tr.AppendHistory(tr.Center())
		tk.nextID++
		tk.tracks[tr.ID] = tr
	}

	// Step 6: age or evict unmatched existing tracks.
	for j, id := range ids {
		if matchedTrack[j] {
			continue
		}
		tr := tk.tracks[id]
		tr.LostFrames++
		if tr.LostFrames > tk.cfg.MaxLost {
			delete(tk.tracks, id)
			continue
		}
		if tk.cfg.UsePrediction {
			tr.BBox = tk.cfg.Predictor.Predict(tr)
			tr.AppendHistory(tr.Center())
		}
	}

	return tk.activeTracks()
}

// Tracks returns the current set of live tracks, in ascending id
// order.
func (tk *Tracker) Tracks() []*track.Track {
	return tk.activeTracks()
}

func (tk *Tracker) activeTracks() []*track.Track {
	ids := tk.sortedTrackIDs()
	out := make([]*track.Track, len(ids))
	for i, id := range ids {
		out[i] = tk.tracks[id]
	}
	return out
}

func (tk *Tracker) sortedTrackIDs() []int {
	ids := make([]int, 0, len(tk.tracks))
	for id := range tk.tracks {
		ids = append(ids, id)
	}
	// Insertion sort: track counts are small (tens, not thousands) per
	// camera, and this keeps iteration order deterministic without
	// pulling in sort for a handful of elements.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

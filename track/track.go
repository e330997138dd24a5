// Package track declares the persistent per-object record the tracker
// maintains across frames, per spec.md §3. Every field is explicit and
// typed — spec.md's Design Notes call out the source's dynamic
// attribute insertion (getattr(track, "x", None)) as an accretive
// anti-pattern to replace with a fixed record shape.
package track

import (
	"time"

	"github.com/trackwatch/railwatch/geometry"
)

// MaxHistory is the cap on the number of center points retained in a
// track's History, oldest dropped first.
const MaxHistory = 50

// Clothing is the PPE label attached to person tracks. The zero value
// ClothingAbsent marks a non-person track that PPE detection never
// runs against.
type Clothing int

const (
	ClothingAbsent Clothing = iota
	ClothingUnknown
	ClothingNone
	ClothingHighVis
)

func (c Clothing) String() string {
	switch c {
	case ClothingHighVis:
		return "high-vis"
	case ClothingNone:
		return "none"
	case ClothingUnknown:
		return "unknown"
	default:
		return ""
	}
}

// Point is a history sample: a bounding-box center at some frame.
type Point struct {
	X, Y float64
}

// Velocity is a per-frame pixel displacement estimate.
type Velocity struct {
	VX, VY float64
}

// Track is the persistent identity assigned to a sequence of
// detections across frames. See spec.md §3 for field semantics and
// invariants.
type Track struct {
	// ID is assigned once at creation and never reused.
	ID int

	// BBox is the last known box, actual while matched or predicted
	// while lost.
	BBox geometry.Box

	// ClassID, ClassName, Score are the latest observation. They keep
	// their last matched values while the track is lost (aging does
	// not touch them).
	ClassID   int
	ClassName string
	Score     float64

	// Hits is the number of matched frames; always >= 1 once created.
	Hits int

	// LostFrames is the number of consecutive unmatched frames; 0
	// while fresh.
	LostFrames int

	// History is the ordered sequence of center points, oldest first,
	// capped at MaxHistory.
	History []Point

	// Velocity is (0, 0) while len(History) < 2.
	Velocity Velocity

	// Activity, ActivityConfidence, PreviousActivity: current label,
	// its confidence, and the last label persisted to the activity
	// log for this track.
	Activity           string
	ActivityConfidence float64
	PreviousActivity   string

	// Clothing is ClothingAbsent for non-person tracks.
	Clothing Clothing

	// LastSeen is the wall-clock time of the last match.
	LastSeen time.Time
}

// Center returns the current bounding-box center.
func (t *Track) Center() Point {
	cx, cy := t.BBox.Center()
	return Point{cx, cy}
}

// IsPerson reports whether the track's class is "person" — the only
// class PPE detection and the person activity branch apply to.
func (t *Track) IsPerson() bool {
	return t.ClassName == "person"
}

// AppendHistory appends p to History, dropping the oldest sample once
// MaxHistory is exceeded.
func (t *Track) AppendHistory(p Point) {
	t.History = append(t.History, p)
	if len(t.History) > MaxHistory {
		t.History = t.History[len(t.History)-MaxHistory:]
	}
}

// RecomputeVelocity recomputes Velocity as a recency-weighted average
// of the center displacements within the last min(5, len(History))
// points (so at most 4 displacements), per spec.md §4.2: wi = i
// (1-based) over the displacement pairs (History[i-1], History[i]).
func (t *Track) RecomputeVelocity() {
	n := len(t.History)
	if n < 2 {
		t.Velocity = Velocity{}
		return
	}

	tail := n
	if tail > 5 {
		tail = 5
	}
	pts := t.History[n-tail:]

	var sumW, sumWVX, sumWVY float64
	for i := 1; i < len(pts); i++ {
		w := float64(i)
		sumW += w
		sumWVX += w * (pts[i].X - pts[i-1].X)
		sumWVY += w * (pts[i].Y - pts[i-1].Y)
	}
	if sumW == 0 {
		t.Velocity = Velocity{}
		return
	}
	t.Velocity = Velocity{VX: sumWVX / sumW, VY: sumWVY / sumW}
}

// PredictedBBox returns BBox shifted by Velocity, the box the tracker
// uses for matching/drawing while the track is lost.
func (t *Track) PredictedBBox() geometry.Box {
	return t.BBox.Translate(t.Velocity.VX, t.Velocity.VY)
}

// Snapshot is the light, read-only, serializable view of a Track. The
// sync store does not persist this type; it keeps its own
// syncstore.TrackSnapshot shape.
type Snapshot struct {
	ID                 int       `json:"id"`
	Box                [4]float64 `json:"box"`
	ClassID            int       `json:"class_id"`
	ClassName          string    `json:"class_name"`
	Score              float64   `json:"score"`
	Hits               int       `json:"hits"`
	LostFrames         int       `json:"lost_frames"`
	Activity           string    `json:"activity"`
	ActivityConfidence float64   `json:"activity_confidence"`
	Clothing           string    `json:"clothing,omitempty"`
	LastSeen           float64   `json:"last_seen"`
}

// ToSnapshot converts a Track to its serializable Snapshot view.
func (t *Track) ToSnapshot() Snapshot {
	return Snapshot{
		ID:                 t.ID,
		Box:                [4]float64{t.BBox.X1, t.BBox.Y1, t.BBox.X2, t.BBox.Y2},
		ClassID:            t.ClassID,
		ClassName:          t.ClassName,
		Score:              t.Score,
		Hits:               t.Hits,
		LostFrames:         t.LostFrames,
		Activity:           t.Activity,
		ActivityConfidence: t.ActivityConfidence,
		Clothing:           t.Clothing.String(),
		LastSeen:           float64(t.LastSeen.UnixNano()) / 1e9,
	}
}

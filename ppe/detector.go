// Package ppe implements the HSV-coverage high-visibility-clothing
// test of spec.md §4.4. It is applied only to person tracks, over the
// upper 45% of the track's bounding box (the torso sub-region).
package ppe

import (
	"image"

	"gocv.io/x/gocv"

	"github.com/trackwatch/railwatch/geometry"
	"github.com/trackwatch/railwatch/track"
)

// Config holds the HSV gate and coverage threshold. Zero values are
// replaced with spec.md §4.9 defaults by NewDetector.
type Config struct {
	// HMin, HMax, SMin, VMin bound the high-vis orange/yellow range in
	// OpenCV's 0-179 hue / 0-255 sat-val convention. Defaults: 5, 35,
	// 100, 100.
	HMin, HMax, SMin, VMin float64

	// Coverage is the minimum fraction of torso pixels that must fall
	// in the high-vis gate for the track to be labeled "high-vis".
	// Default 0.03.
	Coverage float64
}

// DefaultConfig returns spec.md §4.9's clothing.high_vis defaults.
func DefaultConfig() Config {
	return Config{HMin: 5, HMax: 35, SMin: 100, VMin: 100, Coverage: 0.03}
}

// Detector applies the HSV coverage test to person track torsos.
type Detector struct {
	cfg Config
}

// NewDetector creates a Detector, filling zero fields in cfg from
// DefaultConfig().
func NewDetector(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.HMax == 0 {
		cfg.HMin, cfg.HMax = def.HMin, def.HMax
	}
	if cfg.SMin == 0 {
		cfg.SMin = def.SMin
	}
	if cfg.VMin == 0 {
		cfg.VMin = def.VMin
	}
	if cfg.Coverage == 0 {
		cfg.Coverage = def.Coverage
	}
	return &Detector{cfg: cfg}
}

// Detect classifies a single person track's clothing against the
// current frame. Degenerate (zero or negative area) boxes are labeled
// ClothingUnknown per spec.md §4.4 step 4; all other errors degrade to
// ClothingUnknown too (spec.md §7 "classification/PPE errors").
func (d *Detector) Detect(box geometry.Box, frame gocv.Mat) track.Clothing {
	torso := d.torsoRegion(box, frame)
	if torso.Empty() {
		return track.ClothingUnknown
	}
	defer torso.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(torso, &hsv, gocv.ColorBGRToHSV)

	mask := gocv.NewMat()
	defer mask.Close()
	lower := gocv.NewScalar(d.cfg.HMin, d.cfg.SMin, d.cfg.VMin, 0)
	upper := gocv.NewScalar(d.cfg.HMax, 255, 255, 0)
	gocv.InRangeWithScalar(hsv, lower, upper, &mask)

	total := mask.Rows() * mask.Cols()
	if total == 0 {
		return track.ClothingUnknown
	}

	highVis := gocv.CountNonZero(mask)
	ratio := float64(highVis) / float64(total)
	if ratio > d.cfg.Coverage {
		return track.ClothingHighVis
	}
	return track.ClothingNone
}

// UpdateTracks runs Detect against every person track and writes the
// result into Track.Clothing, leaving non-person tracks untouched
// (ClothingAbsent).
func (d *Detector) UpdateTracks(tracks []*track.Track, frame gocv.Mat) {
	for _, t := range tracks {
		if !t.IsPerson() {
			continue
		}
		t.Clothing = d.Detect(t.BBox, frame)
	}
}

// torsoRegion extracts the upper 45% (by height, full width) of box
// from frame, clamped to frame bounds — grounded on the teacher's
// region-extraction pattern in utils.go (clamp then gocv.Mat.Region).
func (d *Detector) torsoRegion(box geometry.Box, frame gocv.Mat) gocv.Mat {
	if box.Area() <= 0 {
		return gocv.NewMat()
	}

	x1, y1 := int(box.X1), int(box.Y1)
	x2 := int(box.X2)
	y2 := y1 + int(box.Height()*0.45)

	w, h := frame.Cols(), frame.Rows()
	if x1 < 0 {
		x1 = 0
	}
	if y1 < 0 {
		y1 = 0
	}
	if x2 > w {
		x2 = w
	}
	if y2 > h {
		y2 = h
	}
	if x1 >= x2 || y1 >= y2 {
		return gocv.NewMat()
	}

	return frame.Region(image.Rect(x1, y1, x2, y2))
}

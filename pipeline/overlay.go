package pipeline

import (
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"math"

	"gocv.io/x/gocv"

	"github.com/trackwatch/railwatch/internal/imaging"
	"github.com/trackwatch/railwatch/track"
)

// colorForID picks a deterministic, well-spread palette color per track
// id via an FNV hash over the Tableau-10 palette, the same by-id
// coloring scheme the teacher's drawing package uses, reusing its
// color/internal/imaging palette directly rather than a second copy.
func colorForID(id int) color.RGBA {
	h := fnv.New32a()
	fmt.Fprintf(h, "%d", id)
	return imaging.Tab10[int(h.Sum32())%len(imaging.Tab10)].ToRGBA()
}

// OverlayConfig tunes the annotated-frame renderer.
type OverlayConfig struct {
	BoxThickness  int
	TextScale     float64
	HistoryPoints int // how many of the trailing history points to draw, max track.MaxHistory
	// LostGraceFrames is the number of LostFrames within which a lost
	// track's box is still drawn (dashed); beyond it, nothing is drawn
	// for that track even though the tracker hasn't evicted it yet.
	LostGraceFrames int
}

// DefaultOverlayConfig returns the overlay renderer's defaults.
func DefaultOverlayConfig() OverlayConfig {
	return OverlayConfig{
		BoxThickness:    2,
		TextScale:       0.5,
		HistoryPoints:   50,
		LostGraceFrames: 15,
	}
}

// DrawTracks renders the annotated-frame overlay contract of spec.md
// §6 onto frame in place: per visible track a rectangle (solid while
// matched, dashed while lost within grace, hidden beyond it), a label
// strip ("class #id score" or "class #id (lost)"), an activity badge,
// a "PPE:<label>" suffix for persons when known, and a fading
// polyline of trailing history points.
//
// Grounded on the teacher's drawing.Drawer primitives (Rectangle,
// Text, Line) and drawing.DrawBoxes' per-object loop, adapted from
// the teacher's generic Detection/TrackedObject drawables to this
// package's concrete *track.Track.
func DrawTracks(frame gocv.Mat, tracks []*track.Track, cfg OverlayConfig) {
	for _, t := range tracks {
		if t.LostFrames > cfg.LostGraceFrames {
			continue
		}
		col := colorForID(t.ID)
		drawBox(frame, t, col, cfg)
		drawLabel(frame, t, col, cfg)
		drawHistory(frame, t, col, cfg)
	}
}

func drawBox(frame gocv.Mat, t *track.Track, col color.RGBA, cfg OverlayConfig) {
	pt1 := image.Point{X: int(t.BBox.X1), Y: int(t.BBox.Y1)}
	pt2 := image.Point{X: int(t.BBox.X2), Y: int(t.BBox.Y2)}
	rect := image.Rectangle{Min: pt1, Max: pt2}

	if t.LostFrames == 0 {
		gocv.Rectangle(&frame, rect, col, cfg.BoxThickness)
		return
	}
	drawDashedRect(frame, rect, col, cfg.BoxThickness)
}

// drawDashedRect approximates a dashed rectangle with short line
// segments along each edge, since gocv has no native dashed-line
// primitive.
func drawDashedRect(frame gocv.Mat, rect image.Rectangle, col color.RGBA, thickness int) {
	const dash, gap = 10, 6
	edges := [][2]image.Point{
		{{X: rect.Min.X, Y: rect.Min.Y}, {X: rect.Max.X, Y: rect.Min.Y}},
		{{X: rect.Max.X, Y: rect.Min.Y}, {X: rect.Max.X, Y: rect.Max.Y}},
		{{X: rect.Max.X, Y: rect.Max.Y}, {X: rect.Min.X, Y: rect.Max.Y}},
		{{X: rect.Min.X, Y: rect.Max.Y}, {X: rect.Min.X, Y: rect.Min.Y}},
	}
	for _, e := range edges {
		drawDashedLine(frame, e[0], e[1], col, thickness, dash, gap)
	}
}

func drawDashedLine(frame gocv.Mat, p1, p2 image.Point, col color.RGBA, thickness, dash, gap int) {
	dx, dy := float64(p2.X-p1.X), float64(p2.Y-p1.Y)
	length := math.Hypot(dx, dy)
	if length == 0 {
		return
	}
	ux, uy := dx/length, dy/length
	step := float64(dash + gap)
	for d := 0.0; d < length; d += step {
		segEnd := d + float64(dash)
		if segEnd > length {
			segEnd = length
		}
		start := image.Point{X: p1.X + int(ux*d), Y: p1.Y + int(uy*d)}
		end := image.Point{X: p1.X + int(ux*segEnd), Y: p1.Y + int(uy*segEnd)}
		gocv.Line(&frame, start, end, col, thickness)
	}
}

func drawLabel(frame gocv.Mat, t *track.Track, col color.RGBA, cfg OverlayConfig) {
	x := int(t.BBox.X1)
	y := int(t.BBox.Y1) - 6
	if y < 12 {
		y = 12
	}

	var line string
	if t.LostFrames == 0 {
		line = fmt.Sprintf("%s #%d %.2f", t.ClassName, t.ID, t.Score)
	} else {
		line = fmt.Sprintf("%s #%d (lost)", t.ClassName, t.ID)
	}
	putText(frame, line, image.Point{X: x, Y: y}, col, cfg.TextScale)

	badgeY := y + textLineHeight(cfg.TextScale)
	if t.Activity != "" {
		badge := t.Activity
		if t.IsPerson() && t.Clothing != track.ClothingAbsent {
			badge = fmt.Sprintf("%s PPE:%s", badge, t.Clothing.String())
		}
		putText(frame, badge, image.Point{X: x, Y: badgeY}, col, cfg.TextScale)
	} else if t.IsPerson() && t.Clothing != track.ClothingAbsent {
		putText(frame, "PPE:"+t.Clothing.String(), image.Point{X: x, Y: badgeY}, col, cfg.TextScale)
	}
}

func textLineHeight(scale float64) int {
	return int(20 * scale)
}

func putText(frame gocv.Mat, text string, pos image.Point, col color.RGBA, scale float64) {
	shadow := image.Point{X: pos.X + 1, Y: pos.Y + 1}
	gocv.PutTextWithParams(&frame, text, shadow, gocv.FontHersheySimplex, scale, color.RGBA{A: 255}, 1, gocv.LineAA, false)
	gocv.PutTextWithParams(&frame, text, pos, gocv.FontHersheySimplex, scale, col, 1, gocv.LineAA, false)
}

// drawHistory renders a fading polyline over a track's trailing
// history points, all one pixel thick: the oldest segment drawn
// dimmest, each later segment brighter, the most recent at (n-1)/n of
// full color for n drawn points, matching the teacher's path.go idiom
// of a gradient trail rather than a single uniform polyline.
func drawHistory(frame gocv.Mat, t *track.Track, col color.RGBA, cfg OverlayConfig) {
	n := len(t.History)
	if n < 2 {
		return
	}
	tail := cfg.HistoryPoints
	if tail > n {
		tail = n
	}
	pts := t.History[n-tail:]

	for i := 1; i < len(pts); i++ {
		frac := float64(i) / float64(len(pts))
		faded := fade(col, frac)
		p1 := image.Point{X: int(pts[i-1].X), Y: int(pts[i-1].Y)}
		p2 := image.Point{X: int(pts[i].X), Y: int(pts[i].Y)}
		gocv.Line(&frame, p1, p2, faded, 1)
	}
}

// fade interpolates col towards black as frac shrinks, so the oldest
// history segments appear dimmest.
func fade(col color.RGBA, frac float64) color.RGBA {
	return color.RGBA{
		R: uint8(float64(col.R) * frac),
		G: uint8(float64(col.G) * frac),
		B: uint8(float64(col.B) * frac),
		A: 255,
	}
}

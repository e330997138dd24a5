// Package detector provides the boundary implementation of the
// out-of-scope object detector collaborator described in spec.md §1:
// "a pretrained convolutional model exposing predict(frame) -> list of
// (box, class_id, score)". Only the interface matters to the rest of
// this repository; weight loading, inference, and the model zoo
// (original_source/src/services/detector.py's ultralytics YOLO
// wrapper) are explicitly out of scope.
//
// Null is a placeholder that always reports no detections, so the
// camera CLI can wire a complete pipeline without a real model
// present. It satisfies worker.Detector.
package detector

import (
	"gocv.io/x/gocv"

	"github.com/trackwatch/railwatch/worker"
)

// Null is a worker.Detector that never detects anything. It exists so
// the pipeline can be exercised end to end (decoding, tracking,
// overlay, sync store, activity log) without a real detector model
// wired in.
type Null struct{}

// Predict implements worker.Detector.
func (Null) Predict(gocv.Mat) ([]worker.RawDetection, error) {
	return nil, nil
}

// cocoNames maps the subset of COCO class ids this system cares about
// (spec.md §4.3's person/vehicle families) to their names, matching
// the label set original_source/src/services/detector.py's ultralytics
// YOLO wrapper loads by default.
var cocoNames = map[int]string{
	0: "person",
	2: "car",
	5: "bus",
	6: "train",
	7: "truck",
}

// COCONames resolves a COCO class id to its name, or "" if the id
// isn't one of the classes spec.md §4.3 routes to an activity branch.
type COCONames struct{}

// Name implements worker.ClassNames.
func (COCONames) Name(classID int) string {
	return cocoNames[classID]
}

package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"gocv.io/x/gocv"
	"gopkg.in/ini.v1"
)

// FrameSource produces a sequence of frames and releases its resources
// on Close. Grounded on the teacher's Video/VideoFromFrames pair in
// video.go — the same Frames() channel shape, generalized behind an
// interface so Driver doesn't care whether frames come from a camera
// device, a video file, or an MOT-style image sequence.
type FrameSource interface {
	Frames() <-chan gocv.Mat
	Close() error
}

// VideoSource reads from an OpenCV-backed camera device or video file.
type VideoSource struct {
	capture *gocv.VideoCapture
	label   string
}

// NewVideoSource opens source, which is either a camera device index
// given as a decimal string ("0", "1", ..., parsed here by
// parseDeviceIndex) or a file path / URL, matching spec.md §6's launcher
// config "source is either an integer (device index) or a string
// (file path or URL)".
func NewVideoSource(source string, label string) (*VideoSource, error) {
	var capture *gocv.VideoCapture
	var err error

	if device, ok := parseDeviceIndex(source); ok {
		capture, err = gocv.OpenVideoCapture(device)
	} else {
		capture, err = gocv.OpenVideoCapture(source)
	}
	if err != nil {
		return nil, fmt.Errorf("opening video source %q: %w", source, err)
	}
	return &VideoSource{capture: capture, label: label}, nil
}

func parseDeviceIndex(s string) (int, bool) {
	if len(s) == 0 {
		return 0, false
	}
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

// FPS reports the source's native frame rate, or 0 if unknown.
func (v *VideoSource) FPS() float64 {
	return v.capture.Get(gocv.VideoCaptureFPS)
}

// Frames returns a channel yielding decoded frames until the source is
// exhausted, per the teacher's video.go Frames() producer.
func (v *VideoSource) Frames() <-chan gocv.Mat {
	out := make(chan gocv.Mat)
	go func() {
		defer close(out)
		for {
			frame := gocv.NewMat()
			if ok := v.capture.Read(&frame); !ok || frame.Empty() {
				frame.Close()
				return
			}
			out <- frame
		}
	}()
	return out
}

// Close releases the underlying capture device.
func (v *VideoSource) Close() error {
	return v.capture.Close()
}

// FrameSequenceSource reads an MOT-Challenge-style directory of
// numbered images described by a seqinfo.ini manifest — a feature the
// teacher's video.go already supports for benchmark replay
// (VideoFromFrames), generalized here into a camera-grade FrameSource
// so a rail yard's archived frame dumps can be replayed through the
// same pipeline as a live camera.
type FrameSequenceSource struct {
	dir    string
	imDir  string
	imExt  string
	length int
	fps    float64
}

// NewFrameSequenceSource parses dir/seqinfo.ini and prepares to serve
// its numbered frames in order.
func NewFrameSequenceSource(dir string) (*FrameSequenceSource, error) {
	cfg, err := ini.Load(filepath.Join(dir, "seqinfo.ini"))
	if err != nil {
		return nil, fmt.Errorf("loading seqinfo.ini: %w", err)
	}
	section := cfg.Section("Sequence")

	length := section.Key("seqLength").MustInt(0)
	if length == 0 {
		return nil, fmt.Errorf("seqinfo.ini missing seqLength")
	}

	return &FrameSequenceSource{
		dir:    dir,
		imDir:  section.Key("imDir").MustString("img1"),
		imExt:  section.Key("imExt").MustString(".jpg"),
		length: length,
		fps:    float64(section.Key("frameRate").MustInt(30)),
	}, nil
}

// FPS reports the sequence's declared frame rate.
func (f *FrameSequenceSource) FPS() float64 { return f.fps }

// Frames yields the sequence's frames in numeric order, skipping any
// image that fails to decode.
func (f *FrameSequenceSource) Frames() <-chan gocv.Mat {
	out := make(chan gocv.Mat)
	go func() {
		defer close(out)
		for i := 1; i <= f.length; i++ {
			path := filepath.Join(f.dir, f.imDir, fmt.Sprintf("%06d%s", i, f.imExt))
			frame := gocv.IMRead(path, gocv.IMReadColor)
			if frame.Empty() {
				frame.Close()
				continue
			}
			out <- frame
		}
	}()
	return out
}

// Close is a no-op: FrameSequenceSource holds no live handles between
// reads.
func (f *FrameSequenceSource) Close() error { return nil }

// Sink writes annotated frames to an output video file, lazily
// creating the writer on the first frame (so the encoder can be sized
// to the actual frame dimensions), per the teacher's Video.Write.
type Sink struct {
	path   string
	fps    float64
	writer *gocv.VideoWriter
}

// NewSink prepares (but does not yet open) an output video sink at
// path, creating its parent directory if necessary.
func NewSink(path string, fps float64) (*Sink, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}
	return &Sink{path: path, fps: fps}, nil
}

// Write encodes frame to the sink, opening the writer on first use.
func (s *Sink) Write(frame gocv.Mat) error {
	if s.writer == nil {
		w, err := gocv.VideoWriterFile(s.path, "mp4v", s.fps, frame.Cols(), frame.Rows(), true)
		if err != nil {
			return fmt.Errorf("opening video writer: %w", err)
		}
		s.writer = w
	}
	return s.writer.Write(frame)
}

// Close releases the writer, if one was opened.
func (s *Sink) Close() error {
	if s.writer != nil {
		return s.writer.Close()
	}
	return nil
}

// Package pipeline implements the per-camera driver of spec.md §4.6:
// the frame-I/O loop that reads frames, hands them to the worker,
// draws the annotated overlay, writes to an optional sink/window,
// and maintains the sync store and activity log on their own
// cadences.
//
// Grounded on the teacher's video.go (Frames()/Write()/Show() and the
// progress-bar-driven read loop) and on
// original_source/src/services/pipeline/processor.py for the
// heartbeat/log/periodic-flush cadence and graceful-shutdown sequence.
package pipeline

import (
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
	"gocv.io/x/gocv"

	"go.uber.org/zap"

	"github.com/trackwatch/railwatch/activitylog"
	"github.com/trackwatch/railwatch/syncstore"
	"github.com/trackwatch/railwatch/track"
	"github.com/trackwatch/railwatch/worker"
)

// Config configures a Driver. Every field except CameraID, Source, and
// Worker is optional.
type Config struct {
	CameraID string
	Name     string

	Source FrameSource
	Worker *worker.Worker

	// Sink, if non-nil, receives every annotated frame.
	Sink *Sink
	// ShowWindow displays the annotated frame in a GUI window; a quit
	// key (ESC or 'q') stops the driver.
	ShowWindow bool
	// ShowProgress renders a terminal progress bar (frame count, fps,
	// ETA when MaxFrames is set), per the teacher's video.go progress
	// bar. Silently degrades to nothing when stdout isn't a terminal.
	ShowProgress bool

	SyncStore   *syncstore.Store
	ActivityLog *activitylog.Store

	Overlay OverlayConfig

	// Resize, if both dimensions are positive, scales every incoming
	// frame before submission and drawing.
	Resize image.Point

	HeartbeatInterval   time.Duration // default 5s
	LogInterval         time.Duration // default 10s
	PeriodicLogInterval time.Duration // default 30s, activity-log force flush
	// MaxFrames bounds processing; 0 means unbounded.
	MaxFrames int

	Logger *zap.SugaredLogger
}

// Driver runs one camera's frame loop to completion (source
// exhaustion, MaxFrames reached, quit key, or Stop).
type Driver struct {
	cfg Config

	frameCount  int
	classCounts map[string]int
	startTime   time.Time

	lastHeartbeat   time.Time
	lastLog         time.Time
	lastPeriodicLog time.Time

	bar *progressbar.ProgressBar

	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a Driver, filling unset cadence fields with spec.md
// §4.9-adjacent defaults.
func New(cfg Config) *Driver {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 5 * time.Second
	}
	if cfg.LogInterval == 0 {
		cfg.LogInterval = 10 * time.Second
	}
	if cfg.PeriodicLogInterval == 0 {
		cfg.PeriodicLogInterval = 30 * time.Second
	}
	if cfg.Overlay == (OverlayConfig{}) {
		cfg.Overlay = DefaultOverlayConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Driver{
		cfg:         cfg,
		classCounts: make(map[string]int),
		stopCh:      make(chan struct{}),
	}
}

// Stop requests the driver's Run loop to terminate before its source
// is exhausted. Safe to call from another goroutine and more than
// once (the quit key and a shutdown signal may both call it); only
// the first call has an effect.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// Run executes the driver loop until the source is exhausted,
// MaxFrames is reached, a quit key is pressed, or Stop is called. It
// always performs the graceful-shutdown sequence of spec.md §4.6 on
// return: stop the worker (bounded 2s), release source/sink, mark the
// camera stopped in the sync store, clear its tracks.
func (d *Driver) Run() error {
	d.startTime = time.Now()
	d.lastHeartbeat = d.startTime
	d.lastLog = d.startTime
	d.lastPeriodicLog = d.startTime

	if d.cfg.SyncStore != nil {
		d.cfg.SyncStore.RegisterStart(d.cfg.CameraID, d.startTime)
	}
	if d.cfg.ShowProgress {
		d.bar = newProgressBar(d.cfg.CameraID, d.cfg.MaxFrames)
	}
	d.cfg.Worker.Start()
	defer d.shutdown()

	frames := d.cfg.Source.Frames()
	for {
		select {
		case <-d.stopCh:
			return nil
		default:
		}

		frame, ok := <-frames
		if !ok {
			return nil
		}

		if err := d.processFrame(frame); err != nil {
			frame.Close()
			return err
		}
		frame.Close()
		if d.bar != nil {
			d.bar.Add(1)
		}

		d.frameCount++
		if d.cfg.MaxFrames > 0 && d.frameCount >= d.cfg.MaxFrames {
			return nil
		}
	}
}

func (d *Driver) processFrame(frame gocv.Mat) error {
	work := frame
	if d.cfg.Resize.X > 0 && d.cfg.Resize.Y > 0 {
		resized := gocv.NewMat()
		gocv.Resize(frame, &resized, d.cfg.Resize, 0, 0, gocv.InterpolationLinear)
		defer resized.Close()
		work = resized
	}

	submitted := work.Clone()
	d.cfg.Worker.Submit(submitted)

	tracks := d.cfg.Worker.Snapshot()
	d.tallyClasses(tracks)

	DrawTracks(work, tracks, d.cfg.Overlay)

	if d.cfg.Sink != nil {
		if err := d.cfg.Sink.Write(work); err != nil {
			d.cfg.Logger.Warnw("sink write failed", "camera", d.cfg.CameraID, "error", err)
		}
	}
	if d.cfg.ShowWindow {
		key := gocv.WaitKey(1)
		if key == 27 || key == 'q' {
			d.Stop()
		}
	}

	now := time.Now()
	d.logTransitions(tracks, now)
	d.maybeHeartbeat(tracks, now)
	d.maybeLog(now)
	d.maybePeriodicFlush(tracks, now)

	return nil
}

// logTransitions writes a change-triggered activity-log entry for
// every track whose activity first differs from its previously
// logged value, per spec.md §4.8.
func (d *Driver) logTransitions(tracks []*track.Track, now time.Time) {
	if d.cfg.ActivityLog == nil {
		return
	}
	for _, t := range tracks {
		if err := LogActivityTransition(d.cfg.ActivityLog, d.cfg.CameraID, t, now); err != nil {
			d.cfg.Logger.Warnw("activity log write failed", "camera", d.cfg.CameraID, "track", t.ID, "error", err)
		}
	}
}

func (d *Driver) tallyClasses(tracks []*track.Track) {
	for _, t := range tracks {
		d.classCounts[t.ClassName]++
	}
}

func (d *Driver) maybeHeartbeat(tracks []*track.Track, now time.Time) {
	if d.cfg.SyncStore == nil || now.Sub(d.lastHeartbeat) < d.cfg.HeartbeatInterval {
		return
	}
	d.lastHeartbeat = now

	snaps := make([]syncstore.TrackSnapshot, 0, len(tracks))
	for _, t := range tracks {
		snaps = append(snaps, toSyncSnapshot(t))
	}
	d.cfg.SyncStore.SaveTracks(d.cfg.CameraID, snaps, now)
}

func toSyncSnapshot(t *track.Track) syncstore.TrackSnapshot {
	return syncstore.TrackSnapshot{
		ID:                 t.ID,
		ClassName:          t.ClassName,
		Score:              t.Score,
		X1:                 t.BBox.X1,
		Y1:                 t.BBox.Y1,
		X2:                 t.BBox.X2,
		Y2:                 t.BBox.Y2,
		Activity:           t.Activity,
		ActivityConfidence: t.ActivityConfidence,
		Clothing:           t.Clothing.String(),
		LostFrames:         t.LostFrames,
	}
}

func (d *Driver) maybeLog(now time.Time) {
	if now.Sub(d.lastLog) < d.cfg.LogInterval {
		return
	}
	elapsed := now.Sub(d.startTime).Seconds()
	fps := 0.0
	if elapsed > 0 {
		fps = float64(d.frameCount) / elapsed
	}
	d.cfg.Logger.Infow("pipeline progress",
		"camera", d.cfg.CameraID,
		"frames", d.frameCount,
		"fps", fmt.Sprintf("%.1f", fps),
		"classes", d.classCounts,
	)
	d.lastLog = now
}

// maybePeriodicFlush implements spec.md §4.8's force-flush cadence:
// every PeriodicLogInterval, persist every loggable track's current
// activity without touching PreviousActivity, so the next
// transition-triggered write still fires correctly.
func (d *Driver) maybePeriodicFlush(tracks []*track.Track, now time.Time) {
	if d.cfg.ActivityLog == nil || now.Sub(d.lastPeriodicLog) < d.cfg.PeriodicLogInterval {
		return
	}
	d.lastPeriodicLog = now

	for _, t := range tracks {
		if t.Activity == "" || !activitylog.ShouldLog(t.ClassName, t.Activity, "") {
			continue
		}
		entry := activitylog.Entry{
			TrackID:    t.ID,
			CameraID:   d.cfg.CameraID,
			ClassName:  t.ClassName,
			Activity:   t.Activity,
			Confidence: t.ActivityConfidence,
			Timestamp:  now,
		}
		if err := d.cfg.ActivityLog.Append(entry); err != nil {
			d.cfg.Logger.Warnw("periodic activity flush failed", "camera", d.cfg.CameraID, "track", t.ID, "error", err)
		}
	}
}

// LogActivityTransition writes a change-triggered activity-log entry
// for t if its activity differs from its previously-logged value, and
// advances t.PreviousActivity on success — called by the driver's
// logTransitions after each Worker.Snapshot, per spec.md §4.8.
func LogActivityTransition(store *activitylog.Store, cameraID string, t *track.Track, now time.Time) error {
	if !activitylog.ShouldLog(t.ClassName, t.Activity, t.PreviousActivity) {
		return nil
	}
	err := store.Append(activitylog.Entry{
		TrackID:    t.ID,
		CameraID:   cameraID,
		ClassName:  t.ClassName,
		Activity:   t.Activity,
		Confidence: t.ActivityConfidence,
		Timestamp:  now,
	})
	if err != nil {
		return err
	}
	t.PreviousActivity = t.Activity
	return nil
}

// shutdown performs spec.md §4.6's graceful-termination sequence.
func (d *Driver) shutdown() {
	if d.bar != nil {
		d.bar.Close()
	}
	if !d.cfg.Worker.Stop(2 * time.Second) {
		d.cfg.Logger.Warnw("worker did not stop within grace period", "camera", d.cfg.CameraID)
	}
	if d.cfg.Sink != nil {
		d.cfg.Sink.Close()
	}
	if err := d.cfg.Source.Close(); err != nil {
		d.cfg.Logger.Warnw("source close failed", "camera", d.cfg.CameraID, "error", err)
	}
	if d.cfg.SyncStore != nil {
		d.cfg.SyncStore.RegisterStop(d.cfg.CameraID, time.Now())
	}
}

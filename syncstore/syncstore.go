// Package syncstore implements the cross-process state-sync document of
// spec.md §4.7: one JSON file shared by every camera process and the
// query API process, recording per-camera tracks, heartbeat, and
// running/stopped status.
//
// Grounded on original_source/src/utils/state_sync.py for the exact
// per-camera document shape and the running predicate in
// _is_camera_running, but the write path follows spec.md §9 Design
// Notes' redesign: instead of the original's whole-file
// read-modify-write retried up to 5 times on failure, writes go to a
// temp file in the same directory, fsynced, then renamed into place —
// a single rename is atomic on POSIX filesystems, so concurrent
// readers never observe a partial document and a write never needs to
// retry past a transient open/write error on the final file.
package syncstore

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Status is a camera's lifecycle state within the shared document.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

// TrackSnapshot is the JSON shape of one tracked object within a
// camera's document entry. It is its own shape (box as x1/y1/x2/y2,
// no class id, hits or last_seen), not track.Snapshot, so this package
// has no compile-time dependency on the track package.
type TrackSnapshot struct {
	ID                 int     `json:"id"`
	ClassName          string  `json:"class_name"`
	Score              float64 `json:"score"`
	X1                 float64 `json:"x1"`
	Y1                 float64 `json:"y1"`
	X2                 float64 `json:"x2"`
	Y2                 float64 `json:"y2"`
	Activity           string  `json:"activity,omitempty"`
	ActivityConfidence float64 `json:"activity_confidence,omitempty"`
	Clothing           string  `json:"clothing,omitempty"`
	LostFrames         int     `json:"lost_frames"`
}

// cameraData is one camera's entry in the shared document, matching
// original_source's _create_camera_data plus a stop_time field.
type cameraData struct {
	Tracks    []TrackSnapshot `json:"tracks"`
	Heartbeat float64         `json:"heartbeat"`
	StartTime float64         `json:"start_time"`
	Status    Status          `json:"status"`
	StopTime  float64         `json:"stop_time,omitempty"`
}

func newCameraData(now time.Time) cameraData {
	return cameraData{
		Tracks:    []TrackSnapshot{},
		Heartbeat: unixSeconds(now),
		StartTime: unixSeconds(now),
		Status:    StatusRunning,
	}
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Stats summarizes a camera's currently tracked objects by class.
type Stats struct {
	Person int `json:"person"`
	Train  int `json:"train"`
	Total  int `json:"total"`
}

// Config configures a Store.
type Config struct {
	// Path is the shared JSON document's location on disk.
	Path string
	// HeartbeatTimeout is the max age a heartbeat may reach before a
	// camera is considered no longer running (default 60s).
	HeartbeatTimeout time.Duration
	// StopGrace is how long a just-stopped camera is excluded from the
	// running set even if re-heartbeated, to avoid a race between a
	// shutdown write and a straggling in-flight heartbeat (default 300s,
	// matching original_source's STOP_TIMEOUT).
	StopGrace time.Duration
	Logger    *zap.SugaredLogger
}

// Store is the cross-process, file-backed state-sync document.
// Safe for concurrent use by multiple goroutines within one process;
// cross-process safety comes from the atomic rename on every write and
// retried reads tolerating a write in flight.
type Store struct {
	cfg Config
	mu  sync.Mutex // serializes this process's own writers
}

// New returns a Store backed by cfg.Path, creating its parent directory
// if necessary.
func New(cfg Config) (*Store, error) {
	if cfg.HeartbeatTimeout == 0 {
		cfg.HeartbeatTimeout = 60 * time.Second
	}
	if cfg.StopGrace == 0 {
		cfg.StopGrace = 300 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	return &Store{cfg: cfg}, nil
}

// readDocument reads and parses the shared document, retrying on
// transient I/O or JSON errors. Returns an empty document on a missing
// file or on exhausting retries, per original_source's _read_file.
func (s *Store) readDocument() map[string]cameraData {
	const maxRetries = 3
	const retryDelay = 10 * time.Millisecond

	for attempt := 0; attempt < maxRetries; attempt++ {
		data, err := os.ReadFile(s.cfg.Path)
		if err != nil {
			if os.IsNotExist(err) {
				return map[string]cameraData{}
			}
			if attempt < maxRetries-1 {
				time.Sleep(retryDelay)
				continue
			}
			return map[string]cameraData{}
		}
		if len(data) == 0 {
			return map[string]cameraData{}
		}
		var doc map[string]cameraData
		if err := json.Unmarshal(data, &doc); err != nil {
			if attempt < maxRetries-1 {
				time.Sleep(retryDelay)
				continue
			}
			return map[string]cameraData{}
		}
		return doc
	}
	return map[string]cameraData{}
}

// writeDocument writes doc atomically: serialize to a temp file in the
// same directory, fsync, then rename over the final path. A failure at
// any step is logged and swallowed — a missed sync-file write degrades
// the query API's freshness, it must never crash the camera process.
func (s *Store) writeDocument(doc map[string]cameraData) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		s.cfg.Logger.Errorw("marshaling sync document", "error", err)
		return
	}

	dir := filepath.Dir(s.cfg.Path)
	tmp, err := os.CreateTemp(dir, ".synctmp-*")
	if err != nil {
		s.cfg.Logger.Errorw("creating sync document temp file", "error", err)
		return
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once the rename below succeeds

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		s.cfg.Logger.Errorw("writing sync document temp file", "error", err)
		return
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		s.cfg.Logger.Errorw("fsyncing sync document temp file", "error", err)
		return
	}
	if err := tmp.Close(); err != nil {
		s.cfg.Logger.Errorw("closing sync document temp file", "error", err)
		return
	}
	if err := os.Rename(tmpPath, s.cfg.Path); err != nil {
		s.cfg.Logger.Errorw("renaming sync document into place", "error", err)
	}
}

// mutate performs a read-modify-write cycle under the store's own
// write lock, serializing this process's writers; other processes'
// writers interleave at the atomic-rename boundary.
func (s *Store) mutate(fn func(doc map[string]cameraData)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.readDocument()
	fn(doc)
	s.writeDocument(doc)
}

// RegisterStart registers a camera as newly running, clearing any
// prior stop_time.
func (s *Store) RegisterStart(cameraID string, now time.Time) {
	s.mutate(func(doc map[string]cameraData) {
		entry := newCameraData(now)
		doc[cameraID] = entry
	})
}

// RegisterStop marks a camera stopped and clears its tracks and
// heartbeat immediately, per original_source's register_camera_stop.
func (s *Store) RegisterStop(cameraID string, now time.Time) {
	s.mutate(func(doc map[string]cameraData) {
		entry, ok := doc[cameraID]
		if !ok {
			return
		}
		entry.Status = StatusStopped
		entry.StopTime = unixSeconds(now)
		entry.Tracks = []TrackSnapshot{}
		entry.Heartbeat = 0
		doc[cameraID] = entry
	})
}

// Heartbeat refreshes a camera's liveness timestamp, creating the
// entry if absent. It does not clear a pending stop_time: only
// RegisterStart does, so a straggling heartbeat from a just-stopped
// process can never make isRunning see the camera as running again
// before StopGrace elapses.
func (s *Store) Heartbeat(cameraID string, now time.Time) {
	s.mutate(func(doc map[string]cameraData) {
		entry, ok := doc[cameraID]
		if !ok {
			doc[cameraID] = newCameraData(now)
			return
		}
		entry.Heartbeat = unixSeconds(now)
		entry.Status = StatusRunning
		doc[cameraID] = entry
	})
}

// SaveTracks publishes a camera's current track list, implicitly
// heartbeating it. Like Heartbeat, it leaves any pending stop_time
// untouched.
func (s *Store) SaveTracks(cameraID string, tracks []TrackSnapshot, now time.Time) {
	s.mutate(func(doc map[string]cameraData) {
		entry, ok := doc[cameraID]
		if !ok {
			entry = newCameraData(now)
		}
		entry.Tracks = tracks
		entry.Heartbeat = unixSeconds(now)
		entry.Status = StatusRunning
		doc[cameraID] = entry
	})
}

// isRunning implements original_source's _is_camera_running.
func (s *Store) isRunning(entry cameraData, now time.Time) bool {
	if entry.Status == StatusStopped {
		return false
	}
	nowSec := unixSeconds(now)
	if entry.StopTime > 0 && nowSec-entry.StopTime < s.cfg.StopGrace.Seconds() {
		return false
	}
	if entry.Heartbeat <= 0 {
		return false
	}
	age := nowSec - entry.Heartbeat
	return age < s.cfg.HeartbeatTimeout.Seconds()
}

// RunningIDs returns the camera IDs currently considered running.
func (s *Store) RunningIDs(now time.Time) []string {
	doc := s.readDocument()
	var ids []string
	for id, entry := range doc {
		if s.isRunning(entry, now) {
			ids = append(ids, id)
		}
	}
	return ids
}

// KnownIDs returns every camera ID that has ever been registered in
// the document, regardless of current running/stale status. Callers
// distinguishing "never registered" (404) from "registered but
// currently stopped or stale" (zero-valued stats) use this instead of
// RunningIDs.
func (s *Store) KnownIDs() []string {
	doc := s.readDocument()
	ids := make([]string, 0, len(doc))
	for id := range doc {
		ids = append(ids, id)
	}
	return ids
}

// Known reports whether cameraID has ever been registered in the
// document, regardless of its current running/stale status.
func (s *Store) Known(cameraID string) bool {
	doc := s.readDocument()
	_, ok := doc[cameraID]
	return ok
}

// AllTracks returns the track lists of every currently running camera.
func (s *Store) AllTracks(now time.Time) map[string][]TrackSnapshot {
	doc := s.readDocument()
	out := make(map[string][]TrackSnapshot)
	for id, entry := range doc {
		if s.isRunning(entry, now) {
			out[id] = entry.Tracks
		}
	}
	return out
}

// CameraStats returns class-conditional counts for one running camera;
// a non-running or unknown camera yields all-zero stats.
func (s *Store) CameraStats(cameraID string, now time.Time) Stats {
	doc := s.readDocument()
	entry, ok := doc[cameraID]
	if !ok || !s.isRunning(entry, now) {
		return Stats{}
	}
	return statsFromTracks(entry.Tracks)
}

func statsFromTracks(tracks []TrackSnapshot) Stats {
	var s Stats
	for _, t := range tracks {
		switch t.ClassName {
		case "person":
			s.Person++
		case "train":
			s.Train++
		}
		s.Total++
	}
	return s
}

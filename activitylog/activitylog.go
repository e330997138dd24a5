// Package activitylog implements the durable, queryable activity
// history of spec.md §4.8: an append-only record of activity-label
// transitions per track, persisted across process restarts.
//
// Grounded on banshee-data-velocity.report's db/db.go for the
// database/sql + modernc.org/sqlite wiring pattern (sql.Open("sqlite",
// path), CREATE TABLE IF NOT EXISTS, parameterized INSERT/SELECT), and
// on original_source/src/services/activity.py for which transitions
// are loggable.
package activitylog

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"go.uber.org/zap"
)

// Entry is one row of the activity log.
type Entry struct {
	ID         int64
	TrackID    int
	CameraID   string
	ClassName  string
	Activity   string
	Confidence float64
	Timestamp  time.Time
}

// loggableClasses mirrors original_source's ActivityClassifier class
// sets: only person and rail-vehicle activity transitions are worth
// persisting.
var loggableClasses = map[string]bool{
	"person": true, "train": true, "truck": true, "bus": true, "car": true,
}

// Store is the sqlite-backed activity log.
type Store struct {
	db     *sql.DB
	logger *zap.SugaredLogger
}

// Open opens (creating if necessary) the sqlite database at path and
// ensures its schema exists.
func Open(path string, logger *zap.SugaredLogger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening activity log database: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS activity_log (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			track_id INTEGER NOT NULL,
			camera_id TEXT NOT NULL DEFAULT '',
			class TEXT NOT NULL,
			activity TEXT NOT NULL,
			confidence DOUBLE NOT NULL,
			timestamp DOUBLE NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_activity_log_camera ON activity_log(camera_id);
		CREATE INDEX IF NOT EXISTS idx_activity_log_class ON activity_log(class);
		CREATE INDEX IF NOT EXISTS idx_activity_log_activity ON activity_log(activity);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating activity_log schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// ShouldLog reports whether a track's current activity represents a
// loggable transition: its class is one of the loggable classes,
// its activity is non-empty, and it differs from previousActivity.
// Mirrors spec.md §4.8's "write-on-transition-change" rule.
func ShouldLog(className, activity, previousActivity string) bool {
	if activity == "" {
		return false
	}
	if !loggableClasses[className] {
		return false
	}
	return activity != previousActivity
}

// Append inserts one activity log entry. The caller is responsible for
// applying ShouldLog (or bypassing it for a periodic force-flush) and
// for stamping cameraID.
func (s *Store) Append(e Entry) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := s.db.Exec(
		`INSERT INTO activity_log (track_id, camera_id, class, activity, confidence, timestamp) VALUES (?, ?, ?, ?, ?, ?)`,
		e.TrackID, e.CameraID, e.ClassName, e.Activity, e.Confidence, unixSeconds(e.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("inserting activity log entry: %w", err)
	}
	return nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

// Query selects pages of activity log entries, most recent first.
type Query struct {
	Limit          int // clamped to [1, 1000], default 100
	Offset         int // clamped to >= 0
	CameraID       string
	ClassFilter    string
	ActivityFilter string
}

func (q Query) normalized() Query {
	if q.Limit <= 0 {
		q.Limit = 100
	}
	if q.Limit > 1000 {
		q.Limit = 1000
	}
	if q.Offset < 0 {
		q.Offset = 0
	}
	return q
}

// Read returns entries matching q, ordered by timestamp descending
// then id descending (spec.md §4.8's tie-break for entries sharing a
// timestamp).
func (s *Store) Read(q Query) ([]Entry, error) {
	q = q.normalized()

	clause := "WHERE 1=1"
	args := []interface{}{}
	if q.CameraID != "" {
		clause += " AND camera_id = ?"
		args = append(args, q.CameraID)
	}
	if q.ClassFilter != "" {
		clause += " AND class = ?"
		args = append(args, q.ClassFilter)
	}
	if q.ActivityFilter != "" {
		clause += " AND activity = ?"
		args = append(args, q.ActivityFilter)
	}
	args = append(args, q.Limit, q.Offset)

	rows, err := s.db.Query(
		`SELECT id, track_id, camera_id, class, activity, confidence, timestamp
		 FROM activity_log `+clause+`
		 ORDER BY timestamp DESC, id DESC
		 LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying activity log: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var ts float64
		if err := rows.Scan(&e.ID, &e.TrackID, &e.CameraID, &e.ClassName, &e.Activity, &e.Confidence, &ts); err != nil {
			return nil, fmt.Errorf("scanning activity log row: %w", err)
		}
		e.Timestamp = time.Unix(0, int64(ts*1e9))
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

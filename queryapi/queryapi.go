// Package queryapi implements the HTTP query surface of spec.md §6: a
// read-only view over the live sync store and the durable activity
// log, served to dashboards and other out-of-process consumers.
//
// Grounded on DimaJoyti-go-coffee's internal/kitchen/transport/server.go
// for the gorilla/mux router + rs/cors middleware + route-registration
// idiom, and its consumer/metrics/metrics.go for the promauto metric
// idiom. Request-id tagging uses google/uuid, matching the teacher
// pack's web3-wallet-backend/internal/common/middleware.go usage of
// uuid.New() for correlation ids.
package queryapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/trackwatch/railwatch/activitylog"
	"github.com/trackwatch/railwatch/syncstore"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "railwatch_api_requests_total",
		Help: "Total HTTP requests served by the query API, by route and status.",
	}, []string{"route", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "railwatch_api_request_duration_seconds",
		Help:    "Query API request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

// CameraInfo resolves a camera id to display metadata not held in the
// sync store (its configured name). Implementations typically read
// from the launcher config.
type CameraInfo interface {
	Name(cameraID string) string
}

// CameraInfoFunc adapts a plain function to CameraInfo.
type CameraInfoFunc func(cameraID string) string

// Name implements CameraInfo.
func (f CameraInfoFunc) Name(cameraID string) string { return f(cameraID) }

// Config configures the query API server.
type Config struct {
	SyncStore   *syncstore.Store
	ActivityLog *activitylog.Store
	CameraInfo  CameraInfo
	Logger      *zap.SugaredLogger
}

// Server wires the query API's routes onto an *http.Server.
type Server struct {
	cfg    Config
	router *mux.Router
}

// New builds a Server with every route registered.
func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	s := &Server{cfg: cfg, router: mux.NewRouter()}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the server's http.Handler, ready to pass to
// http.Server or httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	})
	s.router.Use(c.Handler)
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.metricsMiddleware)
}

type contextKey string

const requestIDKey contextKey = "request_id"

func (s *Server) requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()
		w.Header().Set("X-Request-ID", id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// statusRecorder captures the response status for metrics, since
// http.ResponseWriter doesn't expose it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if cur := mux.CurrentRoute(r); cur != nil {
			if tmpl, err := cur.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		requestsTotal.WithLabelValues(route, strconv.Itoa(rec.status)).Inc()
		requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/", s.handleRoot).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/detections", s.handleLogQuery).Methods(http.MethodGet)
	s.router.HandleFunc("/logs", s.handleLogQuery).Methods(http.MethodGet)
	s.router.HandleFunc("/stats/current", s.handleCurrentStats).Methods(http.MethodGet)
	s.router.HandleFunc("/cameras", s.handleCameras).Methods(http.MethodGet)
	s.router.HandleFunc("/cameras/{id}/stats", s.handleCameraStats).Methods(http.MethodGet)
	s.router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    "railwatch query api",
		"version": "1",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

var validClassFilters = map[string]bool{"person": true, "train": true}
var validActivityFilters = map[string]bool{"standing": true, "moving": true, "stopped": true}

func (s *Server) handleLogQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	query := activitylog.Query{
		Limit:          atoiDefault(q.Get("limit"), 100),
		Offset:         atoiDefault(q.Get("offset"), 0),
		CameraID:       q.Get("camera_id"),
		ClassFilter:    q.Get("class_filter"),
		ActivityFilter: q.Get("activity_filter"),
	}
	if query.ClassFilter != "" && !validClassFilters[query.ClassFilter] {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid class_filter"})
		return
	}
	if query.ActivityFilter != "" && !validActivityFilters[query.ActivityFilter] {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid activity_filter"})
		return
	}

	entries, err := s.cfg.ActivityLog.Read(query)
	if err != nil {
		s.cfg.Logger.Errorw("activity log query failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"total":      len(entries),
		"limit":      query.Limit,
		"offset":     query.Offset,
		"detections": entries,
	})
}

func atoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func (s *Server) handleCurrentStats(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	all := s.cfg.SyncStore.AllTracks(now)

	var personCount, trainCount, total int
	for _, tracks := range all {
		for _, t := range tracks {
			switch t.ClassName {
			case "person":
				personCount++
			case "train":
				trainCount++
			}
			total++
		}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"person_count": personCount,
		"train_count":  trainCount,
		"total_tracks": total,
		"timestamp":    now.Unix(),
	})
}

func (s *Server) handleCameras(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	ids := s.cfg.SyncStore.RunningIDs(now)

	cameras := make([]map[string]interface{}, 0, len(ids))
	for _, id := range ids {
		name := id
		if s.cfg.CameraInfo != nil {
			if n := s.cfg.CameraInfo.Name(id); n != "" {
				name = n
			}
		}
		stats := s.cfg.SyncStore.CameraStats(id, now)
		cameras = append(cameras, map[string]interface{}{
			"id":     id,
			"name":   name,
			"status": "running",
			"stats":  stats,
		})
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"cameras": cameras})
}

// handleCameraStats serves spec.md's "GET /cameras/{id}/stats": 404
// only for a camera id that has never been registered, never for one
// that's merely stopped or stale — that case returns the zero-valued
// stats object, matching CameraStats's own degrade behavior.
func (s *Server) handleCameraStats(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	if !s.cfg.SyncStore.Known(id) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "camera not found"})
		return
	}

	writeJSON(w, http.StatusOK, s.cfg.SyncStore.CameraStats(id, time.Now()))
}

// Command railwatch-camera is the camera-manager process of spec.md
// §6: it runs one camera directly (--camera/--source) or a whole
// launcher config of cameras (--config) as a pool of driver/worker
// pairs, one per spec.md §5's "independent processes ... no shared
// in-memory state" model — this binary itself fans cameras out across
// goroutines within one process for convenience, but nothing here
// prevents running one instance per camera in production.
//
// Grounded on DimaJoyti-go-coffee's cmd/gocoffee-cli/main.go for the
// cobra root command plus signal.NotifyContext shutdown wiring, and
// its cmd/task-cli/commands/list.go for flag registration style.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trackwatch/railwatch/activity"
	"github.com/trackwatch/railwatch/activitylog"
	"github.com/trackwatch/railwatch/config"
	"github.com/trackwatch/railwatch/internal/detector"
	"github.com/trackwatch/railwatch/internal/logging"
	"github.com/trackwatch/railwatch/pipeline"
	"github.com/trackwatch/railwatch/ppe"
	"github.com/trackwatch/railwatch/syncstore"
	"github.com/trackwatch/railwatch/tracker"
	"github.com/trackwatch/railwatch/worker"
)

var flags struct {
	appConfig    string
	launcher     string
	camera       string
	source       string
	output       string
	createConfig string
	show         bool
	progress     bool
	logLevel     string
	syncPath     string
	activityPath string
}

func main() {
	root := &cobra.Command{
		Use:           "railwatch-camera",
		Short:         "Run one or more rail-platform camera pipelines",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	root.Flags().StringVar(&flags.appConfig, "app-config", "", "path to config.yaml (optional)")
	root.Flags().StringVar(&flags.launcher, "config", "", "path to a multi-camera launcher config (JSON)")
	root.Flags().StringVar(&flags.camera, "camera", "", "camera id (used with --source)")
	root.Flags().StringVar(&flags.source, "source", "", "camera source: device index, file path, or URL (used with --camera)")
	root.Flags().StringVar(&flags.output, "output", "", "annotated-video output path (single-camera mode only)")
	root.Flags().StringVar(&flags.createConfig, "create-config", "", "write a template launcher config to this path and exit")
	root.Flags().BoolVar(&flags.show, "show", false, "display each camera's annotated frames in a window")
	root.Flags().BoolVar(&flags.progress, "progress", false, "render a terminal progress bar per camera")
	root.Flags().StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.Flags().StringVar(&flags.syncPath, "sync-state", "data/shared_state_sync.json", "path to the live camera state file")
	root.Flags().StringVar(&flags.activityPath, "activity-db", "data/database/logs.db", "path to the activity log database")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if flags.createConfig != "" {
		return writeTemplateConfig(flags.createConfig)
	}

	logger, err := logging.New(flags.logLevel)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	appCfg, err := config.Load(flags.appConfig, logger)
	if err != nil {
		return err
	}

	cameras, err := resolveCameraSpecs()
	if err != nil {
		return err
	}

	syncStore, err := syncstore.New(syncstore.Config{
		Path:             flags.syncPath,
		HeartbeatTimeout: time.Duration(appCfg.Sync.HeartbeatTimeoutSeconds * float64(time.Second)),
		StopGrace:        time.Duration(appCfg.Sync.StopGraceSeconds * float64(time.Second)),
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("opening sync store: %w", err)
	}
	activityStore, err := activitylog.Open(flags.activityPath, logger)
	if err != nil {
		return fmt.Errorf("opening activity log: %w", err)
	}
	defer activityStore.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	return runCameras(ctx, cameras, appCfg, syncStore, activityStore, logger)
}

// resolveCameraSpecs builds the set of cameras to run, either from a
// launcher config file or from --camera/--source, per spec.md §6's
// CLI surface.
func resolveCameraSpecs() (config.LauncherConfig, error) {
	if flags.launcher != "" {
		cfg, err := config.LoadLauncherConfig(flags.launcher)
		if err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if flags.camera != "" && flags.source != "" {
		return config.LauncherConfig{
			flags.camera: {
				Source: parseSourceFlag(flags.source),
				Output: flags.output,
			},
		}, nil
	}
	return nil, fmt.Errorf("specify either --config <file> or both --camera <id> and --source <s>")
}

func parseSourceFlag(s string) config.CameraSource {
	var src config.CameraSource
	// CameraSource.UnmarshalJSON expects a JSON-encoded value, so the
	// raw flag text is always quoted as a JSON string; UnmarshalJSON
	// then turns an all-digit string into a device index.
	_ = src.UnmarshalJSON([]byte(fmt.Sprintf("%q", s)))
	return src
}

func runCameras(ctx context.Context, cameras config.LauncherConfig, appCfg config.Config, syncStore *syncstore.Store, activityStore *activitylog.Store, logger *zap.SugaredLogger) error {
	var wg sync.WaitGroup
	drivers := make([]*pipeline.Driver, 0, len(cameras))

	for id, spec := range cameras {
		d, err := buildDriver(id, spec, appCfg, syncStore, activityStore, logger)
		if err != nil {
			logger.Errorw("skipping camera: failed to build pipeline", "camera", id, "error", err)
			continue
		}
		drivers = append(drivers, d)

		wg.Add(1)
		go func(id string, d *pipeline.Driver) {
			defer wg.Done()
			if err := d.Run(); err != nil {
				logger.Errorw("camera pipeline exited with error", "camera", id, "error", err)
			}
		}(id, d)
	}

	if len(drivers) == 0 {
		return fmt.Errorf("no camera could be started")
	}

	go func() {
		<-ctx.Done()
		logger.Infow("shutdown signal received, stopping all cameras")
		for _, d := range drivers {
			d.Stop()
		}
	}()

	wg.Wait()
	return nil
}

func buildDriver(cameraID string, spec config.CameraSpec, appCfg config.Config, syncStore *syncstore.Store, activityStore *activitylog.Store, logger *zap.SugaredLogger) (*pipeline.Driver, error) {
	src, fps, err := openSource(spec, appCfg)
	if err != nil {
		return nil, fmt.Errorf("opening source for camera %s: %w", cameraID, err)
	}

	confidence := worker.ConfidenceThresholds{
		Person:  orDefault(spec.ConfPerson, appCfg.Confidence.Person),
		Vehicle: orDefault(spec.ConfVehicle, appCfg.Confidence.Vehicle),
	}

	var predictor tracker.Predictor
	if appCfg.Tracker.PredictionModel == "kalman" {
		predictor = tracker.NewKalmanPredictor()
	}
	var matcher tracker.Matcher
	if appCfg.Tracker.MatcherModel == "optimal" {
		matcher = tracker.NewOptimalMatcher()
	}
	trk := tracker.NewTracker(tracker.Config{
		IoUThreshold:  appCfg.Tracker.IoUThreshold,
		MaxLost:       appCfg.Tracker.MaxLost,
		UsePrediction: appCfg.Tracker.UsePrediction,
		Predictor:     predictor,
		Matcher:       matcher,
	})

	actClassifier := activity.NewClassifier(activity.Config{
		FPS:                          fps,
		Window:                       appCfg.Activity.Window,
		PersonSpeedThreshold:         appCfg.Activity.Person.SpeedThreshold,
		VehicleDisplacementThreshold: appCfg.Activity.Vehicle.DisplacementThreshold,
		VehicleMinHistory:            appCfg.Activity.Vehicle.MinHistory,
	})

	var ppeDetector *ppe.Detector
	if appCfg.Clothing.Enabled {
		ppeDetector = ppe.NewDetector(ppe.Config{
			HMin:     appCfg.Clothing.HighVis.HMin,
			HMax:     appCfg.Clothing.HighVis.HMax,
			SMin:     appCfg.Clothing.HighVis.SMin,
			VMin:     appCfg.Clothing.HighVis.VMin,
			Coverage: appCfg.Clothing.HighVis.Coverage,
		})
	}

	w := worker.New(worker.Config{
		Detector:   detector.Null{},
		ClassNames: detector.COCONames{},
		Confidence: confidence,
		Tracker:    trk,
		Activity:   actClassifier,
		PPE:        ppeDetector,
		PPEEnabled: appCfg.Clothing.Enabled,
		Logger:     logger,
	})

	var sink *pipeline.Sink
	if spec.Output != "" {
		sink, err = pipeline.NewSink(spec.Output, fps)
		if err != nil {
			return nil, fmt.Errorf("opening output sink: %w", err)
		}
	}

	resize := appCfg.Video.Resize
	if spec.Resize[0] > 0 && spec.Resize[1] > 0 {
		resize = spec.Resize
	}

	return pipeline.New(pipeline.Config{
		CameraID:     cameraID,
		Name:         spec.Name,
		Source:       src,
		Worker:       w,
		Sink:         sink,
		ShowWindow:   flags.show,
		ShowProgress: flags.progress,
		SyncStore:    syncStore,
		ActivityLog:  activityStore,
		Resize:       image.Pt(resize[0], resize[1]),
		MaxFrames:    spec.MaxFrames,
		Logger:       logger,
	}), nil
}

func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// openSource picks the FrameSource implementation from spec.md §6's
// camera-source shape: a device index, a frame-sequence directory
// (one carrying seqinfo.ini), or a plain video file/URL.
func openSource(spec config.CameraSpec, appCfg config.Config) (pipeline.FrameSource, float64, error) {
	if spec.Source.IsDevice {
		vs, err := pipeline.NewVideoSource(fmt.Sprintf("%d", spec.Source.Device), "")
		if err != nil {
			return nil, 0, err
		}
		return vs, fpsOrDefault(vs.FPS(), appCfg.Video.DefaultFPS), nil
	}

	if info, err := os.Stat(filepath.Join(spec.Source.Path, "seqinfo.ini")); err == nil && !info.IsDir() {
		fs, err := pipeline.NewFrameSequenceSource(spec.Source.Path)
		if err != nil {
			return nil, 0, err
		}
		return fs, fpsOrDefault(fs.FPS(), appCfg.Video.DefaultFPS), nil
	}

	vs, err := pipeline.NewVideoSource(spec.Source.Path, "")
	if err != nil {
		return nil, 0, err
	}
	return vs, fpsOrDefault(vs.FPS(), appCfg.Video.DefaultFPS), nil
}

func fpsOrDefault(fps, def float64) float64 {
	if fps <= 0 {
		return def
	}
	return fps
}

// writeTemplateConfig writes a minimal, valid launcher config to path,
// per spec.md §6's CLI surface --create-config option.
func writeTemplateConfig(path string) error {
	tmpl := config.LauncherConfig{
		"platform-1": {
			Source: config.CameraSource{IsDevice: true, Device: 0},
			Name:   "Platform 1",
			Output: "data/output/platform-1.mp4",
		},
	}
	data, err := json.MarshalIndent(tmpl, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding template config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing template config: %w", err)
	}
	return nil
}

// Command railwatch-api serves spec.md §6's read-only HTTP query
// surface over the live sync store and the durable activity log. It
// never touches a camera or a detector — those live entirely in
// railwatch-camera; this process only reads the two on-disk stores
// spec.md §6's "On-disk layout" names.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/trackwatch/railwatch/activitylog"
	"github.com/trackwatch/railwatch/config"
	"github.com/trackwatch/railwatch/internal/logging"
	"github.com/trackwatch/railwatch/queryapi"
	"github.com/trackwatch/railwatch/syncstore"
)

var flags struct {
	appConfig    string
	addr         string
	syncPath     string
	activityPath string
	launcher     string
	logLevel     string
}

func main() {
	root := &cobra.Command{
		Use:           "railwatch-api",
		Short:         "Serve the rail-platform query API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          run,
	}

	root.Flags().StringVar(&flags.appConfig, "app-config", "", "path to config.yaml (optional)")
	root.Flags().StringVar(&flags.addr, "addr", ":8080", "HTTP listen address")
	root.Flags().StringVar(&flags.syncPath, "sync-state", "data/shared_state_sync.json", "path to the live camera state file")
	root.Flags().StringVar(&flags.activityPath, "activity-db", "data/database/logs.db", "path to the activity log database")
	root.Flags().StringVar(&flags.launcher, "config", "config/cameras.json", "path to the multi-camera launcher config, used only to resolve camera display names")
	root.Flags().StringVar(&flags.logLevel, "log-level", "info", "log level: debug, info, warn, error")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger, err := logging.New(flags.logLevel)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer logger.Sync()

	appCfg, err := config.Load(flags.appConfig, logger)
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

	server := queryapi.New(queryapi.Config{
		SyncStore:   syncStore,
		ActivityLog: activityStore,
		CameraInfo:  loadCameraNames(flags.launcher, logger),
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:    flags.addr,
		Handler: server.Handler(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		logger.Infow("query api listening", "addr", flags.addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Infow("shutdown signal received")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("query api server: %w", err)
		}
		return nil
	}
}

// loadCameraNames resolves a camera id to its launcher-config display
// name, if the launcher config can be read; otherwise every camera
// falls back to its id (queryapi.Server already does this when
// CameraInfo is nil or returns "").
func loadCameraNames(path string, logger *zap.SugaredLogger) queryapi.CameraInfoFunc {
	cameras, err := config.LoadLauncherConfig(path)
	if err != nil {
		logger.Warnw("could not load launcher config for camera names, falling back to camera ids", "path", path, "error", err)
		return func(cameraID string) string { return "" }
	}
	return func(cameraID string) string {
		if spec, ok := cameras[cameraID]; ok {
			return spec.Name
		}
		return ""
	}
}

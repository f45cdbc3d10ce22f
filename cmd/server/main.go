package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/Brownie44l1/recycle-api/internal/artifact"
	"github.com/Brownie44l1/recycle-api/internal/config"
	"github.com/Brownie44l1/recycle-api/internal/handlers"
	"github.com/Brownie44l1/recycle-api/internal/inference"
	"github.com/Brownie44l1/recycle-api/internal/model"
	"github.com/Brownie44l1/recycle-api/internal/onnx"
	"github.com/Brownie44l1/recycle-api/internal/preprocess"
	"github.com/Brownie44l1/recycle-api/internal/tensor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.SetLevel(cfg.LogLevel)
	if cfg.LogJSON {
		log.SetFormatter(&log.JSONFormatter{})
	}
	gin.SetMode(cfg.GinMode)

	source, err := artifact.Parse(cfg.ModelSource, cfg.ArtifactOptions())
	if err != nil {
		log.Fatalf("Invalid model source: %v", err)
	}

	tracker := tensor.NewTracker()
	cache := model.NewCache(&onnx.Loader{
		Source:      source,
		LibraryPath: cfg.OrtLibrary,
		Tracker:     tracker,
	}, cfg.FetchTimeout)
	defer onnx.ShutdownRuntime()
	defer func() {
		if err := cache.Close(); err != nil {
			log.WithError(err).Warn("[Server] Failed to close model")
		}
	}()

	prep := preprocess.New(preprocess.Options{
		MaxPixels: cfg.MaxPixels,
		Tracker:   tracker,
	})
	engine := inference.NewEngine(cache, prep, tracker)
	router := handlers.NewRouter(handlers.NewHandler(engine, cache, cfg.MaxUpload))

	if cfg.PreloadModel {
		go func() {
			if _, err := cache.Get(); err != nil {
				log.WithError(err).Error("[Server] Model preload failed, will retry on first request")
			}
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.WithFields(log.Fields{
		"port":   cfg.Port,
		"source": source.String(),
	}).Info("[Server] Server starting")
	log.Info("Endpoints:")
	log.Info("  GET  /health        - Health check")
	log.Info("  GET  /ready         - Model readiness")
	log.Info("  POST /predict       - Predict from raw image body")
	log.Info("  POST /predict/image - Predict from image upload")
	log.Infof("Upload test: curl -X POST -F \"image=@bottle.jpg\" http://localhost:%s/predict/image", cfg.Port)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("[Server] Server failed")
		}
	case <-ctx.Done():
		log.Info("[Server] Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.WithError(err).Warn("[Server] Graceful shutdown failed")
		}
	}

	log.WithField("live_tensors", tracker.Live()).Info("[Server] Stopped")
}

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/facecheck/internal/api"
	"github.com/your-org/facecheck/internal/api/ws"
	"github.com/your-org/facecheck/internal/config"
	"github.com/your-org/facecheck/internal/enroll"
	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/internal/observability"
	"github.com/your-org/facecheck/internal/queue"
	"github.com/your-org/facecheck/internal/storage"
	"github.com/your-org/facecheck/internal/vision"
	"github.com/your-org/facecheck/pkg/dto"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facecheck API service", "port", cfg.Server.Port)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to MinIO
	photos, err := storage.NewPhotoStore(cfg.MinIO)
	if err != nil {
		slog.Error("connect to minio", "error", err)
		os.Exit(1)
	}
	if err := photos.EnsureBucket(context.Background()); err != nil {
		slog.Warn("ensure minio bucket", "error", err)
	}

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// Initialize ONNX Runtime and load the detector and recognition models.
	// The models are mandatory here: unlike an optional enrichment pipeline,
	// every endpoint this service exposes needs embeddings.
	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Error("onnx runtime init", "error", err)
		os.Exit(1)
	}
	defer ort.DestroyEnvironment()

	extractor, err := vision.NewExtractor(cfg.Vision, cfg.Recognition.MinFaceConfidence)
	if err != nil {
		slog.Error("load vision models", "error", err)
		os.Exit(1)
	}
	defer extractor.Close()

	service := enroll.NewService(db, photos, extractor, producer, cfg.Recognition)

	// WebSocket hub
	hub := ws.NewHub()
	go hub.Run()

	// Broadcast attendance audit events to dashboard clients.
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create attendance consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeAttendance(ctx, "api-broadcast", func(ctx context.Context, msg jetstream.Msg) error {
		var event models.AttendanceEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			return err
		}

		evtType := strings.TrimPrefix(msg.Subject(), queue.AttendanceSubjectBase+".")

		hub.BroadcastEvent(&dto.WSEvent{
			Type:      evtType,
			StudentID: event.StudentID,
			Data: dto.AttendanceEventResponse{
				ID:         event.ID,
				StudentID:  event.StudentID,
				Verified:   event.Verified,
				Confidence: event.Confidence,
				Threshold:  event.Threshold,
				ModelName:  event.ModelName,
				OccurredAt: event.OccurredAt.Format(time.RFC3339),
			},
		})

		return nil
	})
	if err != nil {
		slog.Warn("start attendance consumer", "error", err)
	}

	// Setup router
	router := api.NewRouter(api.RouterConfig{
		APIKey:          cfg.Server.APIKey,
		DB:              db,
		Photos:          photos,
		Producer:        producer,
		Hub:             hub,
		Service:         service,
		DefaultModel:    cfg.Vision.DefaultModel,
		SupportedModels: vision.SupportedModels(),
	})

	// Start HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down API server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}

	slog.Info("API server stopped")
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "linux":
		return "libonnxruntime.so"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "onnxruntime.dll"
	}
}

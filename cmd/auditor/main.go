package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/facecheck/internal/config"
	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/internal/observability"
	"github.com/your-org/facecheck/internal/queue"
	"github.com/your-org/facecheck/internal/storage"
)

// The auditor persists verification decisions from the attendance stream so
// the audit trail survives even if the API crashes after responding.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting facecheck auditor")

	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	err = consumer.ConsumeAttendance(ctx, "auditor", func(ctx context.Context, msg jetstream.Msg) error {
		if msg.Subject() != queue.SubjectVerified {
			return nil
		}

		var event models.AttendanceEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			slog.Error("decode attendance event", "error", err)
			return nil // poison message, drop it
		}

		if err := db.InsertAttendanceEvent(ctx, &event); err != nil {
			return err
		}

		slog.Info("attendance event recorded",
			"student_id", event.StudentID,
			"verified", event.Verified,
			"confidence", event.Confidence,
		)
		return nil
	})
	if err != nil {
		slog.Error("start attendance consumer", "error", err)
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("auditor stopped")
}

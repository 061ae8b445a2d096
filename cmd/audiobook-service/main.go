// main package for the audiobook-service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/audiobook-service/internal/assemble"
	"github.com/book-expert/audiobook-service/internal/config"
	"github.com/book-expert/audiobook-service/internal/extract"
	"github.com/book-expert/audiobook-service/internal/jobstore"
	"github.com/book-expert/audiobook-service/internal/publish"
	"github.com/book-expert/audiobook-service/internal/runner"
	"github.com/book-expert/audiobook-service/internal/synth"
	"github.com/book-expert/audiobook-service/internal/worker"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "audiobook-service-bootstrap.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create bootstrap logger: %w", err)
	}

	return log, nil
}

func run() error {
	// 1. Create a temporary logger for the bootstrap process
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		// If bootstrap logger fails, we can only print to stderr
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	// 2. Load configuration using the central configurator
	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	// 3. Initialize the final logger based on the loaded configuration
	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	return runService(cfg, finalLog)
}

func runService(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at '%s': %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}

	store, err := jobstore.Open(ctx, cfg.Jobs.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open job store: %w", err)
	}

	defer func() {
		closeErr := store.Close()
		if closeErr != nil {
			log.Error("Failed to close job store: %v", closeErr)
		}
	}()

	publisher, err := publish.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}

	jobRunner := runner.New(runner.Deps{
		Store:       store,
		Extractor:   extract.New(cfg.Extract, log),
		Synthesizer: synth.NewClient(cfg.TTS, log),
		Assembler:   assemble.New(cfg.Audio, log),
		Publisher:   publisher,
	}, cfg, log)

	jobTimeout := time.Duration(cfg.Jobs.MaxWaitSeconds) * time.Second

	natsWorker, err := worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.AudiobookRequestedSubject,
		store,
		jobRunner,
		jobTimeout,
		log,
	)
	if err != nil {
		return fmt.Errorf("failed to create worker: %w", err)
	}

	log.System(
		"Audiobook-Service successfully initialized. Listening for jobs on subject: %s",
		cfg.NATS.AudiobookRequestedSubject,
	)

	err = natsWorker.Run(ctx)
	if err != nil {
		return fmt.Errorf("worker stopped with error: %w", err)
	}

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}

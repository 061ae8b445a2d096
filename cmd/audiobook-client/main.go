// main package for the audiobook command-line client. It submits a document
// for conversion, follows the job's progress, and downloads the finished
// audio.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/book-expert/audiobook-service/internal/config"
	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/audiobook-service/internal/fsutil"
	"github.com/book-expert/audiobook-service/internal/jobstore"
	"github.com/book-expert/audiobook-service/internal/progress"
	"github.com/book-expert/audiobook-service/internal/publish"
	"github.com/book-expert/audiobook-service/internal/runner"
	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Flag descriptions.
const (
	flagFileDesc   = "Path to the document to convert (required)"
	flagVoiceDesc  = "Voice id or display name (defaults to the configured voice)"
	flagLangDesc   = "Document language hint for text extraction"
	flagConfigDesc = "Path to the service TOML configuration file"
	flagOutputDesc = "Directory to download the finished audio into"
)

// Flag names.
const (
	flagFile   = "file"
	flagVoice  = "voice"
	flagLang   = "lang"
	flagConfig = "config"
	flagOutput = "output"
)

const (
	logFileName       = "audiobook-client.log"
	defaultConfigPath = "audiobook.toml"
)

var errFileRequired = errors.New("--file must be provided")

// appFlags holds the parsed command-line flag values.
type appFlags struct {
	file   string
	voice  string
	lang   string
	config string
	output string
}

func main() {
	err := run()
	if err != nil {
		// A logger might not be initialized yet, so use the standard log package.
		log.Fatalf("Error: %v", err)
	}
}

// run is the main application entry point, returning an error on failure.
func run() error {
	flags := parseFlags()
	if flags.file == "" {
		flag.Usage()

		return errFileRequired
	}

	cfg, err := config.LoadFromFile(flags.config)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	clientLog, err := logger.New(cfg.Paths.BaseLogsDir, logFileName)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = clientLog.Close() }()

	return submitAndFollow(cfg, clientLog, flags)
}

// parseFlags defines and parses command-line flags, returning them in a struct.
func parseFlags() appFlags {
	var flags appFlags
	flag.StringVar(&flags.file, flagFile, "", flagFileDesc)
	flag.StringVar(&flags.voice, flagVoice, "", flagVoiceDesc)
	flag.StringVar(&flags.lang, flagLang, "", flagLangDesc)
	flag.StringVar(&flags.config, flagConfig, defaultConfigPath, flagConfigDesc)
	flag.StringVar(&flags.output, flagOutput, "", flagOutputDesc)
	flag.Parse()

	return flags
}

func submitAndFollow(cfg *config.Config, clientLog *logger.Logger, flags appFlags) error {
	maxWait := time.Duration(cfg.Jobs.MaxWaitSeconds) * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), maxWait)
	defer cancel()

	store, err := jobstore.Open(ctx, cfg.Jobs.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open job store: %w", err)
	}
	defer func() { _ = store.Close() }()

	absolutePath, err := filepath.Abs(flags.file)
	if err != nil {
		return fmt.Errorf("failed to resolve path '%s': %w", flags.file, err)
	}

	job, err := runner.Submit(ctx, store, filepath.Base(absolutePath), flags.voice, flags.lang)
	if err != nil {
		return err
	}

	clientLog.Info("Submitted job '%s' for '%s'", job.ID, absolutePath)
	fmt.Printf("Job %s submitted\n", job.ID)

	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at '%s': %w", cfg.NATS.URL, err)
	}
	defer natsConnection.Close()

	err = publishRequest(natsConnection, cfg.NATS.AudiobookRequestedSubject, job, absolutePath)
	if err != nil {
		return err
	}

	pollInterval := time.Duration(cfg.Jobs.PollIntervalSeconds) * time.Second
	watcher := progress.New(store, pollInterval, maxWait, clientLog)

	final, err := follow(ctx, watcher, job.ID)
	if err != nil {
		return err
	}

	finished, getErr := store.Get(ctx, job.ID)
	if getErr == nil && finished.DurationSeconds > 0 {
		fmt.Printf("Finished: %s of audio\n", fsutil.FormatDuration(finished.DurationSeconds))
	}

	if flags.output == "" {
		return nil
	}

	return download(ctx, natsConnection, cfg.NATS.AudioObjectStoreBucket, final, flags.output)
}

// publishRequest dispatches the conversion request event for an already
// registered job.
func publishRequest(natsConnection *nats.Conn, subject string, job *core.Job, sourcePath string) error {
	event := core.AudiobookRequestedEvent{
		Header: events.EventHeader{
			Timestamp:  time.Now().UTC(),
			WorkflowID: uuid.NewString(),
			EventID:    uuid.NewString(),
			UserID:     "",
			TenantID:   "",
		},
		JobID:      job.ID,
		SourcePath: sourcePath,
		Voice:      job.Voice,
		Language:   job.Language,
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal request event: %w", err)
	}

	err = natsConnection.Publish(subject, data)
	if err != nil {
		return fmt.Errorf("failed to publish request event: %w", err)
	}

	return nil
}

// follow prints job state changes until the job reaches a terminal state.
func follow(ctx context.Context, watcher *progress.Watcher, jobID string) (progress.Snapshot, error) {
	var last progress.Snapshot

	for snapshot := range watcher.Watch(ctx, jobID) {
		fmt.Printf("Job %s: %s\n", snapshot.ID, snapshot.Status)

		last = snapshot
	}

	if last.Status == core.StatusError {
		return last, fmt.Errorf("job %s failed: %s", jobID, last.Error)
	}

	if last.Status != core.StatusDone {
		return last, fmt.Errorf("job %s did not finish: last status %s", jobID, last.Status)
	}

	return last, nil
}

// download fetches both published artifacts into the output directory.
func download(
	ctx context.Context,
	natsConnection *nats.Conn,
	bucket string,
	final progress.Snapshot,
	outputDir string,
) error {
	err := fsutil.EnsureDir(outputDir)
	if err != nil {
		return err
	}

	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to get JetStream context: %w", err)
	}

	publisher, err := publish.New(jetstreamContext, bucket)
	if err != nil {
		return fmt.Errorf("failed to bind to artifact bucket: %w", err)
	}

	for _, location := range []string{final.MP3Location, final.M4BLocation} {
		key, err := publish.ParseLocation(location, bucket)
		if err != nil {
			return err
		}

		data, err := publisher.Fetch(ctx, key)
		if err != nil {
			return err
		}

		localPath := filepath.Join(outputDir, final.ID+filepath.Ext(key))

		err = os.WriteFile(localPath, data, 0o600)
		if err != nil {
			return fmt.Errorf("failed to write '%s': %w", localPath, err)
		}

		fmt.Printf("Downloaded %s (%s)\n", localPath, fsutil.FormatFileSize(int64(len(data))))
	}

	return nil
}

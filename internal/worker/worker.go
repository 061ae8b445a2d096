// Package worker provides a NATS worker that processes audiobook conversion
// jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
)

var (
	// ErrJobIDEmpty indicates a request event without a job id.
	ErrJobIDEmpty = errors.New("job id cannot be empty")
	// ErrSourcePathEmpty indicates a request event without a source document.
	ErrSourcePathEmpty = errors.New("source path cannot be empty")
)

// JobRunner executes one conversion job to its terminal state.
type JobRunner interface {
	Run(ctx context.Context, jobID, sourcePath, voice, language string) error
}

// NatsWorker listens for conversion requests on a NATS subject and runs them.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	store          core.JobStore
	runner         JobRunner
	jobTimeout     time.Duration
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker. jobTimeout bounds a
// single conversion end to end.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	store core.JobStore,
	runner JobRunner,
	jobTimeout time.Duration,
	log *logger.Logger,
) (*NatsWorker, error) {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		store:          store,
		runner:         runner,
		jobTimeout:     jobTimeout,
		log:            log,
	}, nil
}

// Run starts the worker and begins listening for messages.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.Background(), w.jobTimeout)
	defer cancel()

	event, err := w.parseAndValidateEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse and validate event: %v", err)

		return
	}

	w.log.Info("Processing conversion job '%s' for '%s'", event.JobID, event.SourcePath)

	runErr := w.runner.Run(ctx, event.JobID, event.SourcePath, event.Voice, event.Language)
	if runErr != nil {
		w.log.Error("Failed to run job '%s': %v", event.JobID, runErr)

		return
	}

	// The reply reports the job's terminal state, which exists even when the
	// run ended by hitting the job timeout.
	err = w.publishReplyEvent(context.WithoutCancel(ctx), msg, event)
	if err != nil {
		w.log.Error("Failed to publish reply event for job '%s': %v", event.JobID, err)
	}
}

// publishReplyEvent reports the job's terminal state on the message's reply
// subject, when the requester asked for one.
func (w *NatsWorker) publishReplyEvent(
	ctx context.Context,
	msg *nats.Msg,
	event *core.AudiobookRequestedEvent,
) error {
	if msg.Reply == "" {
		return nil
	}

	job, err := w.store.Get(ctx, event.JobID)
	if err != nil {
		return fmt.Errorf("failed to load job '%s' for reply: %w", event.JobID, err)
	}

	replyEvent := &core.AudiobookCompletedEvent{
		Header:      event.Header,
		JobID:       job.ID,
		Status:      job.Status,
		MP3Location: job.MP3Location,
		M4BLocation: job.M4BLocation,
		Error:       job.Error,
	}

	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	err = msg.Respond(replyData)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func (w *NatsWorker) parseAndValidateEvent(msg *nats.Msg) (*core.AudiobookRequestedEvent, error) {
	var event core.AudiobookRequestedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal event: %w", err)
	}

	if event.JobID == "" {
		return nil, ErrJobIDEmpty
	}

	if event.SourcePath == "" {
		return nil, ErrSourcePathEmpty
	}

	return &event, nil
}

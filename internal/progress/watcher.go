// Package progress streams job state changes to interested clients by
// polling the job store and emitting a snapshot whenever the visible state
// changes.
package progress

import (
	"context"
	"errors"
	"time"

	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/logger"
)

// Snapshot is one observed job state. Consecutive snapshots on a watch
// channel always differ.
type Snapshot struct {
	ID          string         `json:"id"`
	Status      core.JobStatus `json:"status"`
	MP3Location string         `json:"output_mp3_url,omitempty"`
	M4BLocation string         `json:"output_m4b_url,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// vanishedJobError marks a job record that disappeared while being watched.
const vanishedJobError = "job no longer exists"

// Watcher turns the pull-based job store into a push-style change feed.
type Watcher struct {
	store        core.JobStore
	pollInterval time.Duration
	maxWait      time.Duration
	log          *logger.Logger
}

// New creates a watcher polling at pollInterval. A watch ends after maxWait
// even when the job never reaches a terminal state.
func New(store core.JobStore, pollInterval, maxWait time.Duration, log *logger.Logger) *Watcher {
	return &Watcher{
		store:        store,
		pollInterval: pollInterval,
		maxWait:      maxWait,
		log:          log,
	}
}

// Subscription is a pull-style view over a watch channel.
type Subscription struct {
	updates <-chan Snapshot
	cancel  context.CancelFunc
}

// Subscribe starts watching the job. The caller must Close the subscription
// when done with it.
func (w *Watcher) Subscribe(jobID string) *Subscription {
	ctx, cancel := context.WithCancel(context.Background())

	return &Subscription{
		updates: w.Watch(ctx, jobID),
		cancel:  cancel,
	}
}

// Next blocks until the next state change. The second return value is false
// once the watch has ended.
func (s *Subscription) Next(ctx context.Context) (Snapshot, bool) {
	select {
	case snapshot, open := <-s.updates:
		return snapshot, open
	case <-ctx.Done():
		return Snapshot{}, false
	}
}

// Close stops the underlying watch.
func (s *Subscription) Close() {
	s.cancel()
}

// Watch emits a snapshot for every observed state change of the job, starting
// with its current state. The channel closes after a terminal snapshot, after
// the job vanishes, when maxWait elapses, or when ctx is cancelled.
func (w *Watcher) Watch(ctx context.Context, jobID string) <-chan Snapshot {
	updates := make(chan Snapshot)

	go w.poll(ctx, jobID, updates)

	return updates
}

func (w *Watcher) poll(ctx context.Context, jobID string, updates chan<- Snapshot) {
	defer close(updates)

	deadline := time.NewTimer(w.maxWait)
	defer deadline.Stop()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	var (
		last    Snapshot
		emitted bool
	)

	for {
		snapshot, done := w.observe(ctx, jobID, emitted)
		if done && !emitted {
			// The job was never visible at all; report that once.
			if !send(ctx, updates, snapshot) {
				return
			}

			return
		}

		if !emitted || snapshot != last {
			if !send(ctx, updates, snapshot) {
				return
			}

			last = snapshot
			emitted = true
		}

		if done || snapshot.Status.Terminal() {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			w.log.Warn("Watch for job '%s' exceeded %s, closing", jobID, w.maxWait)

			return
		case <-ticker.C:
		}
	}
}

// observe reads the current job state. done is true when watching cannot
// continue, which happens when the record has vanished.
func (w *Watcher) observe(ctx context.Context, jobID string, seen bool) (Snapshot, bool) {
	job, err := w.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, core.ErrJobNotFound) {
			if seen {
				w.log.Warn("Job '%s' vanished while being watched", jobID)
			}

			return Snapshot{
				ID:          jobID,
				Status:      core.StatusError,
				MP3Location: "",
				M4BLocation: "",
				Error:       vanishedJobError,
			}, true
		}

		w.log.Error("Failed to read job '%s' while watching: %v", jobID, err)

		return Snapshot{
			ID:          jobID,
			Status:      core.StatusError,
			MP3Location: "",
			M4BLocation: "",
			Error:       err.Error(),
		}, true
	}

	return Snapshot{
		ID:          job.ID,
		Status:      job.Status,
		MP3Location: job.MP3Location,
		M4BLocation: job.M4BLocation,
		Error:       job.Error,
	}, false
}

func send(ctx context.Context, updates chan<- Snapshot, snapshot Snapshot) bool {
	select {
	case updates <- snapshot:
		return true
	case <-ctx.Done():
		return false
	}
}

// Package progress_test tests the job state change feed.
package progress_test

import (
	"context"
	"testing"
	"time"

	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/audiobook-service/internal/jobstore"
	"github.com/book-expert/audiobook-service/internal/progress"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testPollInterval = 10 * time.Millisecond
	testMaxWait      = 2 * time.Second
	receiveTimeout   = 2 * time.Second
)

func newTestWatcher(t *testing.T, store core.JobStore, maxWait time.Duration) *progress.Watcher {
	t.Helper()

	log, err := logger.New(t.TempDir(), "watcher-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return progress.New(store, testPollInterval, maxWait, log)
}

func insertJob(t *testing.T, store core.JobStore, status core.JobStatus) *core.Job {
	t.Helper()

	job := &core.Job{
		ID:              "job-" + string(status),
		CreatedAt:       time.Now().UTC(),
		Status:          status,
		InputFilename:   "book.pdf",
		Language:        "",
		Voice:           "",
		DurationSeconds: 0,
		Error:           "",
		MP3Location:     "",
		M4BLocation:     "",
		PreviewText:     "",
	}
	require.NoError(t, store.Insert(context.Background(), job))

	return job
}

// receive reads one snapshot or fails the test after a timeout. The second
// return value is false when the channel closed.
func receive(t *testing.T, updates <-chan progress.Snapshot) (progress.Snapshot, bool) {
	t.Helper()

	select {
	case snapshot, open := <-updates:
		return snapshot, open
	case <-time.After(receiveTimeout):
		t.Fatal("timed out waiting for a snapshot")

		return progress.Snapshot{}, false
	}
}

func TestWatchTerminalJobEmitsOnceAndCloses(t *testing.T) {
	t.Parallel()

	store := jobstore.NewMemoryStore()
	job := insertJob(t, store, core.StatusDone)
	job.MP3Location = "nats-obj://audiobooks/outputs/x/output.mp3"
	job.M4BLocation = "nats-obj://audiobooks/outputs/x/output.m4b"
	require.NoError(t, store.Update(context.Background(), job))

	watcher := newTestWatcher(t, store, testMaxWait)
	updates := watcher.Watch(context.Background(), job.ID)

	snapshot, open := receive(t, updates)
	require.True(t, open)
	assert.Equal(t, core.StatusDone, snapshot.Status)
	assert.Equal(t, job.MP3Location, snapshot.MP3Location)
	assert.Equal(t, job.M4BLocation, snapshot.M4BLocation)

	_, open = receive(t, updates)
	assert.False(t, open)
}

func TestWatchEmitsOnlyOnChange(t *testing.T) {
	t.Parallel()

	store := jobstore.NewMemoryStore()
	job := insertJob(t, store, core.StatusPending)

	watcher := newTestWatcher(t, store, testMaxWait)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := watcher.Watch(ctx, job.ID)

	first, open := receive(t, updates)
	require.True(t, open)
	assert.Equal(t, core.StatusPending, first.Status)

	// Let several unchanged polls pass, then advance the job.
	time.Sleep(5 * testPollInterval)

	job.Status = core.StatusRunning
	require.NoError(t, store.Update(ctx, job))

	second, open := receive(t, updates)
	require.True(t, open)
	assert.Equal(t, core.StatusRunning, second.Status)

	job.Status = core.StatusDone
	job.MP3Location = "nats-obj://audiobooks/outputs/y/output.mp3"
	job.M4BLocation = "nats-obj://audiobooks/outputs/y/output.m4b"
	require.NoError(t, store.Update(ctx, job))

	third, open := receive(t, updates)
	require.True(t, open)
	assert.Equal(t, core.StatusDone, third.Status)
	assert.NotEmpty(t, third.MP3Location)

	_, open = receive(t, updates)
	assert.False(t, open)
}

func TestWatchVanishedJobEmitsSyntheticError(t *testing.T) {
	t.Parallel()

	store := jobstore.NewMemoryStore()
	job := insertJob(t, store, core.StatusRunning)

	watcher := newTestWatcher(t, store, testMaxWait)
	updates := watcher.Watch(context.Background(), job.ID)

	first, open := receive(t, updates)
	require.True(t, open)
	assert.Equal(t, core.StatusRunning, first.Status)

	store.Delete(context.Background(), job.ID)

	second, open := receive(t, updates)
	require.True(t, open)
	assert.Equal(t, core.StatusError, second.Status)
	assert.Equal(t, "job no longer exists", second.Error)

	_, open = receive(t, updates)
	assert.False(t, open)
}

func TestWatchUnknownJobReportsErrorOnce(t *testing.T) {
	t.Parallel()

	store := jobstore.NewMemoryStore()
	watcher := newTestWatcher(t, store, testMaxWait)

	updates := watcher.Watch(context.Background(), "never-existed")

	snapshot, open := receive(t, updates)
	require.True(t, open)
	assert.Equal(t, core.StatusError, snapshot.Status)
	assert.Equal(t, "job no longer exists", snapshot.Error)

	_, open = receive(t, updates)
	assert.False(t, open)
}

func TestSubscribeNextDeliversChanges(t *testing.T) {
	t.Parallel()

	store := jobstore.NewMemoryStore()
	job := insertJob(t, store, core.StatusRunning)

	watcher := newTestWatcher(t, store, testMaxWait)
	subscription := watcher.Subscribe(job.ID)
	defer subscription.Close()

	ctx := context.Background()

	first, open := subscription.Next(ctx)
	require.True(t, open)
	assert.Equal(t, core.StatusRunning, first.Status)

	job.Status = core.StatusError
	job.Error = "synthesis failed"
	require.NoError(t, store.Update(ctx, job))

	second, open := subscription.Next(ctx)
	require.True(t, open)
	assert.Equal(t, core.StatusError, second.Status)
	assert.Equal(t, "synthesis failed", second.Error)

	_, open = subscription.Next(ctx)
	assert.False(t, open)
}

func TestWatchClosesAfterMaxWait(t *testing.T) {
	t.Parallel()

	store := jobstore.NewMemoryStore()
	job := insertJob(t, store, core.StatusPending)

	watcher := newTestWatcher(t, store, 50*time.Millisecond)
	updates := watcher.Watch(context.Background(), job.ID)

	first, open := receive(t, updates)
	require.True(t, open)
	assert.Equal(t, core.StatusPending, first.Status)

	_, open = receive(t, updates)
	assert.False(t, open)
}

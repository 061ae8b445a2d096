package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/google/uuid"
)

// Submit registers a new PENDING job and returns its record. The caller is
// responsible for dispatching the corresponding work request.
func Submit(
	ctx context.Context,
	store core.JobStore,
	inputFilename, voice, language string,
) (*core.Job, error) {
	job := &core.Job{
		ID:              uuid.NewString(),
		CreatedAt:       time.Now().UTC(),
		Status:          core.StatusPending,
		InputFilename:   inputFilename,
		Language:        language,
		Voice:           voice,
		DurationSeconds: 0,
		Error:           "",
		MP3Location:     "",
		M4BLocation:     "",
		PreviewText:     "",
	}

	err := store.Insert(ctx, job)
	if err != nil {
		return nil, fmt.Errorf("failed to create job for '%s': %w", inputFilename, err)
	}

	return job, nil
}

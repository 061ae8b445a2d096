// Package runner owns the job lifecycle: it drives a single conversion job
// from PENDING through extraction, segmentation, synthesis, assembly,
// packaging, and publication to a terminal DONE or ERROR state.
package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/book-expert/audiobook-service/internal/config"
	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/audiobook-service/internal/fsutil"
	"github.com/book-expert/audiobook-service/internal/segment"
	"github.com/book-expert/audiobook-service/internal/synth"
	"github.com/book-expert/logger"
)

const (
	scratchDirName = "tmp"
	outputDirName  = "outputs"

	pieceFileFormat = "%05d.mp3"
	mp3ObjectName   = "output.mp3"
	m4bObjectName   = "output.m4b"

	previewMaxChars = 500
)

// Deps are the injected collaborators the runner orchestrates. They are
// constructed once at process start and shared across jobs.
type Deps struct {
	Store       core.JobStore
	Extractor   core.Extractor
	Synthesizer core.Synthesizer
	Assembler   core.Assembler
	Publisher   core.Publisher
}

// Runner executes conversion jobs. Exactly one worker runs any given job id
// at a time; the runner is the only writer of that job's record.
type Runner struct {
	deps            Deps
	defaultVoiceID  string
	segmentMaxChars int
	workers         int
	workDir         string
	log             *logger.Logger
}

// New creates a job runner.
func New(deps Deps, cfg *config.Config, log *logger.Logger) *Runner {
	return &Runner{
		deps:            deps,
		defaultVoiceID:  cfg.TTS.DefaultVoiceID,
		segmentMaxChars: cfg.Audio.SegmentMaxChars,
		workers:         cfg.TTS.Workers,
		workDir:         cfg.Paths.WorkDir,
		log:             log,
	}
}

// pipelineResult carries the outputs of a successful run.
type pipelineResult struct {
	mp3Location     string
	m4bLocation     string
	durationSeconds int
	previewText     string
}

// Run executes one job to its terminal state. Any pipeline error is recorded
// on the job record with status ERROR; Run returns an error only when the
// record itself cannot be read or written, so a failed job never kills the
// worker.
func (r *Runner) Run(ctx context.Context, jobID, sourcePath, voice, language string) error {
	job, err := r.deps.Store.Get(ctx, jobID)
	if err != nil {
		// Nothing to update when the job is unknown; abort silently.
		r.log.Warn("Job '%s' not found, skipping run: %v", jobID, err)

		return nil
	}

	if job.Status != core.StatusPending {
		r.log.Warn("Job '%s' is %s, not PENDING; skipping run", jobID, job.Status)

		return nil
	}

	// Persist RUNNING before any expensive work so observers see progress.
	job.Status = core.StatusRunning

	err = r.deps.Store.Update(ctx, job)
	if err != nil {
		return fmt.Errorf("failed to mark job '%s' running: %w", jobID, err)
	}

	result, runErr := r.runPipeline(ctx, job, sourcePath, voice, language)
	if runErr != nil {
		r.log.Error("Job '%s' failed: %v", jobID, runErr)

		job.Status = core.StatusError
		job.Error = runErr.Error()
		job.MP3Location = ""
		job.M4BLocation = ""
	} else {
		job.Status = core.StatusDone
		job.Error = ""
		job.MP3Location = result.mp3Location
		job.M4BLocation = result.m4bLocation
		job.DurationSeconds = result.durationSeconds
		job.PreviewText = result.previewText
	}

	// The run's deadline may already have expired (that expiry is often the
	// failure being recorded), so the terminal write must not share it. A
	// job must never be left RUNNING once Run returns.
	err = r.deps.Store.Update(context.WithoutCancel(ctx), job)
	if err != nil {
		return fmt.Errorf("failed to record terminal state for job '%s': %w", jobID, err)
	}

	return nil
}

func (r *Runner) runPipeline(
	ctx context.Context,
	job *core.Job,
	sourcePath, voice, language string,
) (*pipelineResult, error) {
	voiceID := synth.ResolveVoice(voice, r.defaultVoiceID)

	text, err := r.deps.Extractor.Extract(ctx, sourcePath, language)
	if err != nil {
		return nil, err
	}

	units := segment.Split(text, r.segmentMaxChars)

	scratchDir := filepath.Join(r.workDir, scratchDirName, job.ID)

	err = fsutil.EnsureDir(scratchDir)
	if err != nil {
		return nil, err
	}

	defer func() { _ = os.RemoveAll(scratchDir) }()

	pieces, err := r.synthesizeAll(ctx, units, voiceID, scratchDir)
	if err != nil {
		return nil, err
	}

	outDir := filepath.Join(r.workDir, outputDirName, job.ID)

	err = fsutil.EnsureDir(outDir)
	if err != nil {
		return nil, err
	}

	baseName := fsutil.SafeSlug(job.InputFilename)
	mp3Path := filepath.Join(outDir, baseName+".mp3")

	err = r.deps.Assembler.Concatenate(ctx, pieces, mp3Path)
	if err != nil {
		return nil, err
	}

	m4bPath := filepath.Join(outDir, baseName+".m4b")

	err = r.deps.Assembler.Package(ctx, mp3Path, nil, m4bPath)
	if err != nil {
		return nil, err
	}

	duration, err := r.deps.Assembler.ProbeDuration(ctx, mp3Path)
	if err != nil {
		// Duration is informational; a probe failure does not fail the job.
		r.log.Warn("Failed to probe duration for job '%s': %v", job.ID, err)

		duration = 0
	}

	keyPrefix := outputDirName + "/" + job.ID + "/"

	mp3Location, err := r.deps.Publisher.Publish(ctx, mp3Path, keyPrefix+mp3ObjectName)
	if err != nil {
		return nil, err
	}

	m4bLocation, err := r.deps.Publisher.Publish(ctx, m4bPath, keyPrefix+m4bObjectName)
	if err != nil {
		return nil, err
	}

	return &pipelineResult{
		mp3Location:     mp3Location,
		m4bLocation:     m4bLocation,
		durationSeconds: duration,
		previewText:     preview(text),
	}, nil
}

// synthesizeAll converts every text unit to a scratch audio artifact,
// sequentially or with a small bounded worker pool. Results are addressed by
// segment index so the returned list preserves segment order regardless of
// completion order. The first failure aborts the whole batch.
func (r *Runner) synthesizeAll(
	ctx context.Context,
	units []string,
	voiceID, scratchDir string,
) ([]string, error) {
	pieces := make([]string, len(units))

	var (
		waitGroup sync.WaitGroup
		mutex     sync.Mutex
		firstErr  error
	)

	workers := r.workers
	if workers < 1 {
		workers = 1
	}

	workerPool := make(chan struct{}, workers)

	for unitIndex, unit := range units {
		waitGroup.Add(1)

		go func(index int, text string) {
			defer waitGroup.Done()

			workerPool <- struct{}{}

			defer func() { <-workerPool }()

			mutex.Lock()
			aborted := firstErr != nil
			mutex.Unlock()

			if aborted {
				return
			}

			destination := filepath.Join(scratchDir, fmt.Sprintf(pieceFileFormat, index))

			err := r.deps.Synthesizer.Synthesize(ctx, text, voiceID, destination)
			if err != nil {
				mutex.Lock()

				if firstErr == nil {
					firstErr = fmt.Errorf("segment %d: %w", index, err)
				}

				mutex.Unlock()

				return
			}

			pieces[index] = destination
		}(unitIndex, unit)
	}

	waitGroup.Wait()
	close(workerPool)

	if firstErr != nil {
		return nil, firstErr
	}

	return pieces, nil
}

// preview returns a short excerpt of the extracted text for display.
func preview(text string) string {
	runes := []rune(text)
	if len(runes) <= previewMaxChars {
		return text
	}

	return string(runes[:previewMaxChars])
}

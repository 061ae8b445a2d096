// Package assemble_test tests audio assembly orchestration with a stubbed
// command runner, so no ffmpeg installation is required.
package assemble_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/book-expert/audiobook-service/internal/assemble"
	"github.com/book-expert/audiobook-service/internal/config"
	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errToolFailed = errors.New("tool failed")

type recordedCall struct {
	name string
	args []string
}

// fakeRunner records invocations and simulates ffmpeg by creating the output
// file named by the last argument.
type fakeRunner struct {
	calls  []recordedCall
	fail   bool
	output string
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	f.calls = append(f.calls, recordedCall{name: name, args: args})

	if f.fail {
		return []byte("ffmpeg: boom"), errToolFailed
	}

	if f.output != "" {
		return []byte(f.output), nil
	}

	outPath := args[len(args)-1]

	err := os.WriteFile(outPath, []byte("fake-audio"), 0o600)
	if err != nil {
		return nil, err
	}

	return nil, nil
}

func newTestAssembler(t *testing.T, runner *fakeRunner) *assemble.Assembler {
	t.Helper()

	log, err := logger.New(t.TempDir(), "assemble-test.log")
	require.NoError(t, err)

	cfg := config.AudioConfig{
		FFmpegBinary:    "ffmpeg",
		FFprobeBinary:   "ffprobe",
		LoudnessTarget:  -18,
		TruePeak:        -1.5,
		LoudnessRange:   11,
		MP3Bitrate:      "192k",
		M4BBitrate:      "128k",
		SegmentMaxChars: 1000,
	}

	return assemble.NewWithRunner(cfg, log, runner.run)
}

func writeArtifacts(t *testing.T, names ...string) []string {
	t.Helper()

	dir := t.TempDir()
	paths := make([]string, 0, len(names))

	for _, name := range names {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(name), 0o600))
		paths = append(paths, path)
	}

	return paths
}

func TestConcatenatePreservesInputOrder(t *testing.T) {
	t.Parallel()

	inputs := writeArtifacts(t, "00000.mp3", "00001.mp3", "00002.mp3")
	outPath := filepath.Join(t.TempDir(), "narration.mp3")

	var listContents string

	// Capture the concat list before the assembler removes it.
	assembler := newCapturingAssembler(t,
		func(_ context.Context, _ string, args ...string) ([]byte, error) {
			data, readErr := os.ReadFile(outPath + ".list.txt")
			if readErr == nil {
				listContents = string(data)
			}

			return nil, os.WriteFile(args[len(args)-1], []byte("audio"), 0o600)
		})

	err := assembler.Concatenate(context.Background(), inputs, outPath)
	require.NoError(t, err)

	first := strings.Index(listContents, "00000.mp3")
	second := strings.Index(listContents, "00001.mp3")
	third := strings.Index(listContents, "00002.mp3")
	require.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, second)
	assert.Less(t, second, third)

	_, statErr := os.Stat(outPath)
	assert.NoError(t, statErr)
}

func newCapturingAssembler(
	t *testing.T,
	run func(ctx context.Context, name string, args ...string) ([]byte, error),
) *assemble.Assembler {
	t.Helper()

	log, err := logger.New(t.TempDir(), "assemble-test.log")
	require.NoError(t, err)

	cfg := config.AudioConfig{
		FFmpegBinary:    "ffmpeg",
		FFprobeBinary:   "ffprobe",
		LoudnessTarget:  -18,
		TruePeak:        -1.5,
		LoudnessRange:   11,
		MP3Bitrate:      "192k",
		M4BBitrate:      "128k",
		SegmentMaxChars: 1000,
	}

	return assemble.NewWithRunner(cfg, log, run)
}

func TestConcatenateReversedOrderDiffers(t *testing.T) {
	t.Parallel()

	inputs := writeArtifacts(t, "a.mp3", "b.mp3")
	reversed := []string{inputs[1], inputs[0]}

	forwardList := captureConcatList(t, inputs)
	reversedList := captureConcatList(t, reversed)

	assert.NotEqual(t, forwardList, reversedList)
}

func captureConcatList(t *testing.T, inputs []string) string {
	t.Helper()

	outPath := filepath.Join(t.TempDir(), "out.mp3")

	var listContents string

	assembler := newCapturingAssembler(t,
		func(_ context.Context, _ string, args ...string) ([]byte, error) {
			data, readErr := os.ReadFile(outPath + ".list.txt")
			if readErr == nil {
				listContents = string(data)
			}

			return nil, os.WriteFile(args[len(args)-1], []byte("audio"), 0o600)
		})

	require.NoError(t, assembler.Concatenate(context.Background(), inputs, outPath))

	// Compare only the file ordering, not the temp dir prefixes.
	var names []string

	for _, line := range strings.Split(listContents, "\n") {
		if line == "" {
			continue
		}

		names = append(names, filepath.Base(strings.Trim(line, "file '")))
	}

	return strings.Join(names, ",")
}

func TestConcatenateZeroInputsFailsFast(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{calls: nil, fail: false, output: ""}
	assembler := newTestAssembler(t, runner)
	outPath := filepath.Join(t.TempDir(), "narration.mp3")

	err := assembler.Concatenate(context.Background(), nil, outPath)
	require.Error(t, err)

	var asmErr *core.AssemblyError

	require.True(t, errors.As(err, &asmErr))
	require.ErrorIs(t, err, core.ErrNoInputArtifacts)

	// No command ran and no output file exists.
	assert.Empty(t, runner.calls)

	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestConcatenateToolFailureLeavesNoOutput(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{calls: nil, fail: true, output: ""}
	assembler := newTestAssembler(t, runner)
	inputs := writeArtifacts(t, "00000.mp3")
	outPath := filepath.Join(t.TempDir(), "narration.mp3")

	err := assembler.Concatenate(context.Background(), inputs, outPath)
	require.Error(t, err)

	var asmErr *core.AssemblyError

	require.True(t, errors.As(err, &asmErr))
	assert.Contains(t, asmErr.Output, "boom")

	_, statErr := os.Stat(outPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPackageTranscodesToM4B(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{calls: nil, fail: false, output: ""}
	assembler := newTestAssembler(t, runner)
	track := writeArtifacts(t, "narration.mp3")[0]
	outPath := filepath.Join(t.TempDir(), "narration.m4b")

	err := assembler.Package(context.Background(), track, nil, outPath)
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	args := strings.Join(runner.calls[0].args, " ")
	assert.Contains(t, args, "-c:a aac")
	assert.Contains(t, args, "-f ipod")
	assert.NotContains(t, args, "copy")

	_, statErr := os.Stat(outPath)
	assert.NoError(t, statErr)
}

func TestPackageWithChaptersWritesMetadata(t *testing.T) {
	t.Parallel()

	var metadata string

	track := writeArtifacts(t, "narration.mp3")[0]
	outPath := filepath.Join(t.TempDir(), "narration.m4b")

	assembler := newCapturingAssembler(t,
		func(_ context.Context, _ string, args ...string) ([]byte, error) {
			data, readErr := os.ReadFile(outPath + ".ffmetadata")
			if readErr == nil {
				metadata = string(data)
			}

			return nil, os.WriteFile(args[len(args)-1], []byte("m4b"), 0o600)
		})

	chapters := []core.Chapter{
		{Title: "Chapter 1", Start: 0, End: 90 * time.Second},
		{Title: "Chapter 2", Start: 90 * time.Second, End: 200 * time.Second},
	}

	err := assembler.Package(context.Background(), track, chapters, outPath)
	require.NoError(t, err)

	assert.Contains(t, metadata, ";FFMETADATA1")
	assert.Contains(t, metadata, "title=Chapter 1")
	assert.Contains(t, metadata, "START=90000")
	assert.Contains(t, metadata, "END=200000")
}

func TestPackageMissingTrack(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{calls: nil, fail: false, output: ""}
	assembler := newTestAssembler(t, runner)

	err := assembler.Package(
		context.Background(),
		filepath.Join(t.TempDir(), "absent.mp3"),
		nil,
		filepath.Join(t.TempDir(), "out.m4b"),
	)
	require.Error(t, err)
	assert.Empty(t, runner.calls)
}

func TestProbeDuration(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{calls: nil, fail: false, output: "123.45\n"}
	assembler := newTestAssembler(t, runner)

	seconds, err := assembler.ProbeDuration(context.Background(), "/tmp/narration.mp3")
	require.NoError(t, err)
	assert.Equal(t, 123, seconds)
}

func TestProbeDurationGarbageOutput(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{calls: nil, fail: false, output: "N/A"}
	assembler := newTestAssembler(t, runner)

	_, err := assembler.ProbeDuration(context.Background(), "/tmp/narration.mp3")
	require.Error(t, err)
}

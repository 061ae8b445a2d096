// Package assemble concatenates ordered per-segment audio artifacts into one
// loudness-normalized track and repackages it into a chaptered M4B container,
// by driving an external ffmpeg process.
package assemble

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/book-expert/audiobook-service/internal/config"
	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/logger"
)

// Stages reported in assembly errors.
const (
	stageConcatenate = "concatenate"
	stagePackage     = "package"
	stageProbe       = "probe"
)

const (
	listFileSuffix  = ".list.txt"
	tempFileSuffix  = ".tmp"
	filePermissions = 0o600
)

// runFunc executes an external command and returns its combined output.
// Injectable so the orchestration is testable without ffmpeg installed.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Assembler implements core.Assembler on top of ffmpeg and ffprobe.
// Both operations are atomic from the caller's point of view: output is
// written to a temporary path and moved into place on success only.
type Assembler struct {
	cfg config.AudioConfig
	log *logger.Logger
	run runFunc
}

// New creates an assembler using the configured ffmpeg/ffprobe binaries.
func New(cfg config.AudioConfig, log *logger.Logger) *Assembler {
	return &Assembler{cfg: cfg, log: log, run: runCommand}
}

// NewWithRunner creates an assembler with a custom command runner. This
// constructor is primarily for testing purposes.
func NewWithRunner(cfg config.AudioConfig, log *logger.Logger, run runFunc) *Assembler {
	return &Assembler{cfg: cfg, log: log, run: run}
}

// Concatenate joins the input artifacts in list order into one MP3 track and
// applies EBU R128 loudness normalization once over the whole track.
// Normalizing per segment instead would produce audible level jumps at the
// boundaries. Zero inputs is a contract violation.
func (a *Assembler) Concatenate(ctx context.Context, inputs []string, outPath string) error {
	if len(inputs) == 0 {
		return &core.AssemblyError{
			Stage:  stageConcatenate,
			Output: "",
			Err:    core.ErrNoInputArtifacts,
		}
	}

	listPath := outPath + listFileSuffix

	err := writeConcatList(listPath, inputs)
	if err != nil {
		return &core.AssemblyError{Stage: stageConcatenate, Output: "", Err: err}
	}

	defer func() { _ = os.Remove(listPath) }()

	tmpPath := outPath + tempFileSuffix + ".mp3"
	loudnorm := fmt.Sprintf(
		"loudnorm=I=%g:TP=%g:LRA=%g",
		a.cfg.LoudnessTarget, a.cfg.TruePeak, a.cfg.LoudnessRange,
	)

	output, err := a.run(ctx, a.cfg.FFmpegBinary,
		"-y",
		"-f", "concat", "-safe", "0", "-i", listPath,
		"-filter:a", loudnorm,
		"-c:a", "libmp3lame", "-b:a", a.cfg.MP3Bitrate,
		tmpPath,
	)
	if err != nil {
		_ = os.Remove(tmpPath)

		return &core.AssemblyError{Stage: stageConcatenate, Output: string(output), Err: err}
	}

	err = os.Rename(tmpPath, outPath)
	if err != nil {
		_ = os.Remove(tmpPath)

		return &core.AssemblyError{Stage: stageConcatenate, Output: "", Err: err}
	}

	return nil
}

// Package transcodes the normalized MP3 track into an M4B container with
// optional chapter markers. The MP4 container does not accept MP3 audio, so
// this is always a transcode to AAC, never a stream copy.
func (a *Assembler) Package(
	ctx context.Context,
	trackPath string,
	chapters []core.Chapter,
	outPath string,
) error {
	_, err := os.Stat(trackPath)
	if err != nil {
		return &core.AssemblyError{Stage: stagePackage, Output: "", Err: err}
	}

	args := []string{"-y", "-i", trackPath}

	var metadataPath string

	if len(chapters) > 0 {
		metadataPath = outPath + ".ffmetadata"

		err = writeChapterMetadata(metadataPath, chapters)
		if err != nil {
			return &core.AssemblyError{Stage: stagePackage, Output: "", Err: err}
		}

		defer func() { _ = os.Remove(metadataPath) }()

		args = append(args, "-i", metadataPath, "-map_metadata", "1")
	}

	tmpPath := outPath + tempFileSuffix + ".m4b"
	args = append(args,
		"-vn",
		"-c:a", "aac", "-b:a", a.cfg.M4BBitrate,
		"-movflags", "faststart",
		"-f", "ipod",
		tmpPath,
	)

	output, err := a.run(ctx, a.cfg.FFmpegBinary, args...)
	if err != nil {
		_ = os.Remove(tmpPath)

		return &core.AssemblyError{Stage: stagePackage, Output: string(output), Err: err}
	}

	err = os.Rename(tmpPath, outPath)
	if err != nil {
		_ = os.Remove(tmpPath)

		return &core.AssemblyError{Stage: stagePackage, Output: "", Err: err}
	}

	return nil
}

// ProbeDuration returns the track length in whole seconds via ffprobe.
func (a *Assembler) ProbeDuration(ctx context.Context, path string) (int, error) {
	output, err := a.run(ctx, a.cfg.FFprobeBinary,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, &core.AssemblyError{Stage: stageProbe, Output: string(output), Err: err}
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(output)), 64)
	if err != nil {
		return 0, &core.AssemblyError{Stage: stageProbe, Output: string(output), Err: err}
	}

	return int(math.Round(seconds)), nil
}

// writeConcatList writes the concat demuxer list file. List order is
// authoritative for the final track ordering.
func writeConcatList(path string, inputs []string) error {
	var builder strings.Builder

	for _, input := range inputs {
		absPath, err := filepath.Abs(input)
		if err != nil {
			return fmt.Errorf("failed to resolve input path '%s': %w", input, err)
		}

		builder.WriteString("file '")
		builder.WriteString(strings.ReplaceAll(absPath, "'", `'\''`))
		builder.WriteString("'\n")
	}

	err := os.WriteFile(path, []byte(builder.String()), filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write concat list: %w", err)
	}

	return nil
}

// writeChapterMetadata renders chapters in ffmpeg's FFMETADATA format.
func writeChapterMetadata(path string, chapters []core.Chapter) error {
	var builder strings.Builder

	builder.WriteString(";FFMETADATA1\n")

	escaper := strings.NewReplacer(
		`\`, `\\`, "=", `\=`, ";", `\;`, "#", `\#`, "\n", `\
`,
	)

	for _, chapter := range chapters {
		builder.WriteString("[CHAPTER]\nTIMEBASE=1/1000\n")
		fmt.Fprintf(&builder, "START=%d\n", chapter.Start.Milliseconds())
		fmt.Fprintf(&builder, "END=%d\n", chapter.End.Milliseconds())
		fmt.Fprintf(&builder, "title=%s\n", escaper.Replace(chapter.Title))
	}

	err := os.WriteFile(path, []byte(builder.String()), filePermissions)
	if err != nil {
		return fmt.Errorf("failed to write chapter metadata: %w", err)
	}

	return nil
}

// runCommand executes the external tool, capturing stdout/stderr verbatim so
// failures carry the tool's own diagnostics.
func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	// #nosec G204 -- binary and arguments come from validated configuration
	cmd := exec.CommandContext(ctx, name, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s execution failed: %w", name, err)
	}

	return output, nil
}

// Package extract adapts an external text-extraction tool (OCR or PDF text
// dump) behind the core.Extractor contract.
package extract

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	"github.com/book-expert/audiobook-service/internal/config"
	"github.com/book-expert/audiobook-service/internal/core"
	"github.com/book-expert/logger"
)

// ExecExtractor runs a configured command to turn a source document into
// plain text. The command receives the source path and an output path; the
// extracted text is read back from the output file. A language flag is
// passed when the tool supports one.
type ExecExtractor struct {
	command string
	args    []string
	log     *logger.Logger
}

// New creates an extractor from the extraction configuration.
func New(cfg config.ExtractConfig, log *logger.Logger) *ExecExtractor {
	return &ExecExtractor{command: cfg.Command, args: cfg.Args, log: log}
}

// Extract converts the source document to text. Any tool failure is an
// ExtractionError carrying the tool's combined output; the caller treats it
// as fatal for the job.
func (e *ExecExtractor) Extract(ctx context.Context, sourcePath, language string) (string, error) {
	// A unique output file per call: concurrent jobs may extract documents
	// sharing a base filename.
	outFile, err := os.CreateTemp("", "extracted-*.txt")
	if err != nil {
		return "", fmt.Errorf("failed to create extraction output file: %w", err)
	}

	outPath := outFile.Name()
	_ = outFile.Close()

	defer func() { _ = os.Remove(outPath) }()

	args := make([]string, 0, len(e.args)+2)

	// A literal "{lang}" in the configured args is replaced with the
	// requested language (OCR tools take one, plain dumpers do not).
	for _, arg := range e.args {
		if arg == "{lang}" {
			arg = language
		}

		args = append(args, arg)
	}

	args = append(args, sourcePath, outPath)

	// #nosec G204 -- command and arguments come from validated configuration
	cmd := exec.CommandContext(ctx, e.command, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return "", &core.ExtractionError{
			Source: sourcePath,
			Output: string(output),
			Err:    err,
		}
	}

	text, err := os.ReadFile(outPath)
	if err != nil {
		return "", &core.ExtractionError{
			Source: sourcePath,
			Output: "",
			Err:    fmt.Errorf("failed to read extracted text: %w", err),
		}
	}

	e.log.Info("Extracted %d bytes of text from %s (language %s)", len(text), sourcePath, language)

	return string(text), nil
}

package core

import (
	"errors"
	"fmt"
)

var (
	// ErrJobNotFound indicates that a job id is unknown to the store.
	ErrJobNotFound = errors.New("job not found")
	// ErrNoInputArtifacts indicates an assembly call with zero input files.
	ErrNoInputArtifacts = errors.New("no input artifacts to assemble")
)

// SynthesisError is returned when the speech provider rejects a request or
// the transport to it fails. StatusCode and Body are zero-valued for pure
// transport failures.
type SynthesisError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *SynthesisError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("synthesis failed: %v", e.Err)
	}

	return fmt.Sprintf("synthesis provider returned HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *SynthesisError) Unwrap() error { return e.Err }

// ExtractionError is returned when the source document cannot be read.
type ExtractionError struct {
	Source string
	Output string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction of %s failed: %v: %s", e.Source, e.Err, e.Output)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// AssemblyError is returned when the external audio tool fails or the
// assembly contract is violated. Output carries the tool's combined
// stdout/stderr verbatim.
type AssemblyError struct {
	Stage  string
	Output string
	Err    error
}

func (e *AssemblyError) Error() string {
	if e.Output == "" {
		return fmt.Sprintf("assembly %s failed: %v", e.Stage, e.Err)
	}

	return fmt.Sprintf("assembly %s failed: %v: %s", e.Stage, e.Err, e.Output)
}

func (e *AssemblyError) Unwrap() error { return e.Err }

// PublishError is returned when durable storage rejects an artifact.
type PublishError struct {
	Key string
	Err error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publish of key '%s' failed: %v", e.Key, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }

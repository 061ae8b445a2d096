// Package core defines the domain model, collaborator contracts, and error
// taxonomy for the audiobook service.
package core

import "time"

// JobStatus is the lifecycle state of a conversion job.
type JobStatus string

// Job lifecycle states. Transitions are one-directional:
// PENDING -> RUNNING -> DONE | ERROR.
const (
	StatusPending JobStatus = "PENDING"
	StatusRunning JobStatus = "RUNNING"
	StatusDone    JobStatus = "DONE"
	StatusError   JobStatus = "ERROR"
)

// Terminal reports whether no further transition can occur.
func (s JobStatus) Terminal() bool {
	return s == StatusDone || s == StatusError
}

// Job is one document-to-audio conversion request and its tracked lifecycle.
//
// Invariants: Error is non-empty if and only if Status is ERROR;
// MP3Location and M4BLocation are non-empty if and only if Status is DONE.
type Job struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Status        JobStatus `json:"status"`
	InputFilename string    `json:"input_filename"`
	Language      string    `json:"language,omitempty"`
	Voice         string    `json:"voice,omitempty"`

	// DurationSeconds is the length of the final track, filled on completion.
	DurationSeconds int `json:"duration_sec"`

	Error string `json:"error,omitempty"`

	MP3Location string `json:"output_mp3_url,omitempty"`
	M4BLocation string `json:"output_m4b_url,omitempty"`

	// PreviewText is a short excerpt of the extracted text, set during a run.
	PreviewText string `json:"preview_text,omitempty"`
}

// Chapter is an optional chapter marker for the packaged container.
type Chapter struct {
	Title string
	Start time.Duration
	End   time.Duration
}

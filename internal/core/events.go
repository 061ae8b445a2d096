package core

import "github.com/book-expert/events"

// AudiobookRequestedEvent asks a worker to run a conversion job that was
// previously registered in the job store.
type AudiobookRequestedEvent struct {
	Header     events.EventHeader `json:"header"`
	JobID      string             `json:"job_id"`
	SourcePath string             `json:"source_path"`
	Voice      string             `json:"voice,omitempty"`
	Language   string             `json:"language,omitempty"`
}

// AudiobookCompletedEvent reports the terminal state of a finished job back
// to the requester.
type AudiobookCompletedEvent struct {
	Header      events.EventHeader `json:"header"`
	JobID       string             `json:"job_id"`
	Status      JobStatus          `json:"status"`
	MP3Location string             `json:"output_mp3_url,omitempty"`
	M4BLocation string             `json:"output_m4b_url,omitempty"`
	Error       string             `json:"error,omitempty"`
}

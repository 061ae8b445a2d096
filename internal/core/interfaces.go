package core

import "context"

// JobStore is a keyed store for job records. Updates must be immediately
// visible to subsequent reads from any reader.
type JobStore interface {
	Insert(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	Update(ctx context.Context, job *Job) error
	ListRecent(ctx context.Context, limit int) ([]*Job, error)
}

// Extractor turns a source document into plain text.
type Extractor interface {
	Extract(ctx context.Context, sourcePath, language string) (string, error)
}

// Synthesizer turns one text unit into one audio file at destination.
// On failure nothing is written to destination.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, voiceID, destination string) error
}

// Assembler concatenates ordered per-segment artifacts into one normalized
// track and repackages it into a chaptered container.
type Assembler interface {
	Concatenate(ctx context.Context, inputs []string, outPath string) error
	Package(ctx context.Context, trackPath string, chapters []Chapter, outPath string) error
	ProbeDuration(ctx context.Context, path string) (int, error)
}

// Publisher persists a local file to durable storage under a logical key and
// returns its addressable location. The location is opaque to the caller.
type Publisher interface {
	Publish(ctx context.Context, localPath, key string) (string, error)
}

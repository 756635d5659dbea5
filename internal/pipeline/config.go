package pipeline

import "time"

// Config tunes the Runner's deadlines.
type Config struct {
	// JobDeadline is the hard cancellation deadline for an entire run.
	JobDeadline time.Duration
	// HeartbeatInterval is how often updatedAt is refreshed while a job is
	// in flight, so dedup and polling clients can observe liveness.
	HeartbeatInterval time.Duration
	// StageTimeout bounds a single language-model call within a stage.
	StageTimeout time.Duration
	// PipelineVersion is stamped onto every RouteMapping; it participates
	// in the cache fingerprint so a pipeline change invalidates old cache
	// entries.
	PipelineVersion string
}

// DefaultConfig matches spec.md §4.3's suggested constants.
func DefaultConfig() Config {
	return Config{
		JobDeadline:       30 * time.Second,
		HeartbeatInterval: 15 * time.Second,
		StageTimeout:      8 * time.Second,
		PipelineVersion:   "v1",
	}
}

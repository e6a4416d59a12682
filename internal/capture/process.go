package capture

import (
	"context"
	"io"
)

// Spawner starts the external producer for a target.
type Spawner interface {
	Spawn(ctx context.Context, target Target) (Process, error)
}

// Process is an owned, running producer. Stdout carries the MJPEG stream;
// Stderr is diagnostic text only. Both reach EOF once the producer exits and
// are closed by the consumer.
type Process interface {
	Stdout() io.ReadCloser
	Stderr() io.ReadCloser
	// Wait blocks until the producer has exited and returns its exit error.
	Wait() error
	// Kill terminates the producer. It must be safe to call after exit and
	// more than once.
	Kill() error
}

// Package messagequeue defines the message queue port and the worker
// protocol spoken between the coordinator and agent workers.
package messagequeue

import "context"

// Handler processes a message received from the queue. The context carries
// request-scoped values such as the request ID.
type Handler func(ctx context.Context, subject string, data []byte) error

// Queue is the port interface for publishing and subscribing to messages.
type Queue interface {
	// Publish sends a message to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for messages on the given subject.
	// The returned function cancels the subscription.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Drain gracefully drains all subscriptions before closing.
	Drain() error

	// Close shuts down the queue connection immediately.
	Close() error

	// IsConnected reports whether the queue is currently connected.
	IsConnected() bool
}

// Subject constants for the agent worker protocol.
const (
	// Coordinator → worker
	SubjectAgentSpawn         = "agents.spawn"          // start executing an instance
	SubjectAgentCancel        = "agents.cancel"         // stop an instance
	SubjectAgentResume        = "agents.resume"         // resume after a conflict pause
	SubjectAgentWriteResponse = "agents.write.response" // write-access decision

	// Worker → coordinator
	SubjectAgentWriteRequest = "agents.write.request" // request write access for a path
	SubjectAgentWriteRelease = "agents.write.release" // release a held write lock
	SubjectAgentFileModified = "agents.file.modified" // record a file modification
	SubjectAgentComplete     = "agents.complete"      // run loop finished
)

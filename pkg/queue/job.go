package queue

import "context"

// Job consumes messages of one type from the queue.
type Job interface {
	// Name identifies the job in logs.
	Name() string

	// Type is the message type this job handles. One job per type.
	Type() string

	// Handle processes a dequeued payload. A returned error sends the
	// message to the retry queue until the retry limit is reached.
	Handle(ctx context.Context, payload interface{}) error
}

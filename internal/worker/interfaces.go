package worker

import (
	"context"

	"viammo.app/tripscan/internal/queue"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// ScanRunner runs one scan to a terminal state. Abandon marks a scan failed
// once its message is given up on.
type ScanRunner interface {
	Process(ctx context.Context, scanID int64) error
	Abandon(ctx context.Context, scanID int64, cause error)
}

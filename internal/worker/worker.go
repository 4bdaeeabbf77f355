package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"viammo.app/tripscan/common/logger"
	"viammo.app/tripscan/internal/queue"
)

type Config struct {
	MaxAttempts int
}

type Worker struct {
	consumer Consumer
	runner   ScanRunner
	cfg      Config

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(consumer Consumer, runner ScanRunner, cfg Config) *Worker {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Worker{
		consumer:  consumer,
		runner:    runner,
		cfg:       cfg,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

func (w *Worker) Run(ctx context.Context) error {
	defer close(w.stoppedCh)

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "tripscan.worker"})
	slog.InfoContext(ctx, "worker started", "max_attempts", w.cfg.MaxAttempts)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stopCh:
			slog.InfoContext(ctx, "worker stopping")
			return nil
		default:
			if err := w.processOneBatch(ctx); err != nil {
				slog.ErrorContext(ctx, "batch processing error", "error", err)
				select {
				case <-ctx.Done():
				case <-time.After(time.Second):
				}
			}
		}
	}
}

func (w *Worker) Stop() {
	close(w.stopCh)
	<-w.stoppedCh
}

func (w *Worker) processOneBatch(ctx context.Context) error {
	messages, err := w.consumer.Read(ctx)
	if err != nil {
		return fmt.Errorf("reading from stream: %w", err)
	}

	for _, msg := range messages {
		_ = w.Handle(ctx, msg)
	}
	return nil
}

// Handle processes msg and settles it: ack on success, requeue or DLQ on
// failure. It always returns nil so the reclaimer can share it.
func (w *Worker) Handle(ctx context.Context, msg queue.Message) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		ScanID:    logger.Ptr(msg.ScanID),
		MessageID: logger.Ptr(msg.ID),
	})

	if err := w.processMessageSafe(ctx, msg); err != nil {
		slog.ErrorContext(ctx, "message processing failed",
			"error", err,
			"attempt", msg.Attempt)
		w.handleFailedMessage(ctx, msg, err)
	}
	return nil
}

func (w *Worker) processMessageSafe(ctx context.Context, msg queue.Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in message processing", "panic", r)
			err = NewFatalError(fmt.Errorf("panic: %v", r))
		}
	}()
	return w.ProcessMessage(ctx, msg)
}

// ProcessMessage runs the scan and acks msg once it reached a terminal state.
func (w *Worker) ProcessMessage(ctx context.Context, msg queue.Message) error {
	sc := logger.StartSpanFromTraceID(ctx, msg.TraceID, "worker.process_scan")
	defer sc.End()
	ctx = sc.Context()

	slog.InfoContext(ctx, "processing scan", "attempt", msg.Attempt)

	start := time.Now()
	if err := w.runner.Process(ctx, msg.ScanID); err != nil {
		return err
	}

	if err := w.consumer.Ack(ctx, msg); err != nil {
		// The reclaimer will see it again and skip the finished scan.
		slog.WarnContext(ctx, "failed to ACK message", "error", err)
	}

	slog.InfoContext(ctx, "scan processed", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (w *Worker) handleFailedMessage(ctx context.Context, msg queue.Message, err error) {
	if !IsRetryable(err) || msg.Attempt >= w.cfg.MaxAttempts {
		slog.ErrorContext(ctx, "giving up on scan, sending to DLQ",
			"attempts", msg.Attempt,
			"retryable", IsRetryable(err))
		w.runner.Abandon(ctx, msg.ScanID, err)
		if dlqErr := w.consumer.SendDLQ(ctx, msg, err.Error()); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to send to DLQ", "error", dlqErr)
		}
		return
	}

	slog.WarnContext(ctx, "requeuing failed scan", "attempt", msg.Attempt)
	if requeueErr := w.consumer.Requeue(ctx, msg, err.Error()); requeueErr != nil {
		slog.ErrorContext(ctx, "failed to requeue message", "error", requeueErr)
	}
}

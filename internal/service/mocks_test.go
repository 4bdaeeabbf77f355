package service_test

import (
	"context"

	"viammo.app/tripscan/internal/queue"
)

type mockProducer struct {
	enqueueFn func(ctx context.Context, msg queue.ScanMessage) error
	enqueued  []queue.ScanMessage
}

func (m *mockProducer) Enqueue(ctx context.Context, msg queue.ScanMessage) error {
	m.enqueued = append(m.enqueued, msg)
	if m.enqueueFn != nil {
		return m.enqueueFn(ctx, msg)
	}
	return nil
}

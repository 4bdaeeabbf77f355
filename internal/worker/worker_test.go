package worker_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"viammo.app/tripscan/internal/queue"
	"viammo.app/tripscan/internal/worker"
)

var _ = Describe("Worker", func() {
	var (
		ctx      context.Context
		consumer *mockConsumer
		runner   *mockRunner
		w        *worker.Worker
	)

	BeforeEach(func() {
		ctx = context.Background()
		consumer = &mockConsumer{}
		runner = &mockRunner{}
		w = worker.New(consumer, runner, worker.Config{MaxAttempts: 3})
	})

	msg := func(attempt int) queue.Message {
		return queue.Message{ID: "1-0", ScanID: 77, Attempt: attempt}
	}

	It("acks a processed scan", func() {
		Expect(w.Handle(ctx, msg(1))).To(Succeed())

		Expect(runner.processed()).To(Equal([]int64{77}))
		Expect(consumer.acked).To(Equal([]string{"1-0"}))
		Expect(consumer.requeued).To(BeEmpty())
		Expect(consumer.dead).To(BeEmpty())
	})

	It("requeues a retryable failure below the attempt limit", func() {
		runner.processFn = func(context.Context, int64) error {
			return worker.NewRetryableError(errors.New("redis timeout"))
		}

		Expect(w.Handle(ctx, msg(2))).To(Succeed())

		Expect(consumer.requeued).To(Equal([]string{"1-0"}))
		Expect(consumer.reasons).To(ConsistOf("redis timeout"))
		Expect(consumer.acked).To(BeEmpty())
		Expect(runner.abandonedScans()).To(BeEmpty())
	})

	It("dead-letters a retryable failure on the last attempt", func() {
		runner.processFn = func(context.Context, int64) error {
			return errors.New("redis timeout")
		}

		Expect(w.Handle(ctx, msg(3))).To(Succeed())

		Expect(consumer.dead).To(Equal([]string{"1-0"}))
		Expect(consumer.requeued).To(BeEmpty())
		Expect(runner.abandonedScans()).To(Equal([]int64{77}))
	})

	It("dead-letters a fatal failure at once", func() {
		runner.processFn = func(context.Context, int64) error {
			return worker.NewFatalError(errors.New("scan not found"))
		}

		Expect(w.Handle(ctx, msg(1))).To(Succeed())

		Expect(consumer.dead).To(Equal([]string{"1-0"}))
	})

	It("survives a panicking scan", func() {
		runner.processFn = func(context.Context, int64) error {
			panic("nil map")
		}

		Expect(w.Handle(ctx, msg(1))).To(Succeed())

		Expect(consumer.dead).To(Equal([]string{"1-0"}))
		Expect(consumer.reasons[0]).To(ContainSubstring("nil map"))
		Expect(runner.abandonedScans()).To(Equal([]int64{77}))
	})

	It("processes what it reads until stopped", func() {
		delivered := false
		consumer.readFn = func(context.Context) ([]queue.Message, error) {
			if delivered {
				return nil, nil
			}
			delivered = true
			return []queue.Message{msg(1)}, nil
		}

		done := make(chan error)
		go func() { done <- w.Run(ctx) }()

		Eventually(runner.processed).Should(Equal([]int64{77}))
		w.Stop()
		Eventually(done).Should(Receive(BeNil()))
	})
})

var _ = Describe("IsRetryable", func() {
	It("classifies errors", func() {
		Expect(worker.IsRetryable(errors.New("plain"))).To(BeTrue())
		Expect(worker.IsRetryable(worker.NewFatalError(errors.New("x")))).To(BeFalse())
		Expect(worker.IsRetryable(worker.NewRetryableError(errors.New("x")))).To(BeTrue())
	})
})

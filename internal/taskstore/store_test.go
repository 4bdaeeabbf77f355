package taskstore_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"viammo.app/tripscan/internal/model"
	"viammo.app/tripscan/internal/taskstore"
)

func behavesLikeAStore(newStore func() taskstore.Store) {
	var (
		store taskstore.Store
		ctx   context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = newStore()
	})

	It("returns ErrNotFound for unknown scans", func() {
		_, err := store.Get(ctx, 99)
		Expect(errors.Is(err, taskstore.ErrNotFound)).To(BeTrue())

		err = store.Update(ctx, 99, func(*model.ScanState) error { return nil })
		Expect(errors.Is(err, taskstore.ErrNotFound)).To(BeTrue())
	})

	It("round-trips state", func() {
		Expect(store.Put(ctx, &model.ScanState{ID: 1, Status: model.ScanStatusInProgress, Message: "queued"})).To(Succeed())

		got, err := store.Get(ctx, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Message).To(Equal("queued"))
		Expect(got.CreatedAt).NotTo(BeZero())
	})

	It("merges events through Update", func() {
		Expect(store.Put(ctx, &model.ScanState{ID: 2, Status: model.ScanStatusInProgress})).To(Succeed())
		insights := "## Group 1: Summer beach"

		Expect(store.Update(ctx, 2, func(s *model.ScanState) error {
			s.Apply(model.ProgressEvent{Message: "grouped", Progress: 85, Status: model.ScanStatusInProgress, TripInsights: &insights, Timestamp: time.Now()})
			return nil
		})).To(Succeed())
		Expect(store.Update(ctx, 2, func(s *model.ScanState) error {
			s.Apply(model.ProgressEvent{Message: "done", Progress: 100, Status: model.ScanStatusCompleted, Timestamp: time.Now()})
			return nil
		})).To(Succeed())

		got, err := store.Get(ctx, 2)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Status).To(Equal(model.ScanStatusCompleted))
		Expect(got.TripInsights).To(HaveValue(Equal(insights)))
	})

	It("leaves state untouched when fn fails", func() {
		Expect(store.Put(ctx, &model.ScanState{ID: 3, Message: "before"})).To(Succeed())
		boom := errors.New("boom")

		err := store.Update(ctx, 3, func(s *model.ScanState) error {
			s.Message = "after"
			return boom
		})

		Expect(err).To(MatchError(boom))
		got, _ := store.Get(ctx, 3)
		Expect(got.Message).To(Equal("before"))
	})

	It("does not lose concurrent updates", func() {
		Expect(store.Put(ctx, &model.ScanState{ID: 4})).To(Succeed())

		var wg sync.WaitGroup
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func() {
				defer GinkgoRecover()
				defer wg.Done()
				Expect(store.Update(ctx, 4, func(s *model.ScanState) error {
					s.Progress++
					return nil
				})).To(Succeed())
			}()
		}
		wg.Wait()

		got, err := store.Get(ctx, 4)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Progress).To(Equal(4))
	})
}

var _ = Describe("MemoryStore", func() {
	behavesLikeAStore(func() taskstore.Store { return taskstore.NewMemoryStore() })
})

var _ = Describe("RedisStore", func() {
	var mr *miniredis.Miniredis

	BeforeEach(func() {
		mr = miniredis.NewMiniRedis()
		Expect(mr.Start()).To(Succeed())
		DeferCleanup(mr.Close)
	})

	behavesLikeAStore(func() taskstore.Store {
		return taskstore.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Hour)
	})

	It("expires state after the ttl", func() {
		store := taskstore.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), time.Minute)
		Expect(store.Put(context.Background(), &model.ScanState{ID: 5})).To(Succeed())

		mr.FastForward(2 * time.Minute)

		_, err := store.Get(context.Background(), 5)
		Expect(errors.Is(err, taskstore.ErrNotFound)).To(BeTrue())
	})
})

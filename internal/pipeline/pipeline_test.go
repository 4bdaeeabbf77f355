package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/alicebob/miniredis/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/redis/go-redis/v9"

	"viammo.app/tripscan/core/config"
	"viammo.app/tripscan/internal/model"
	"viammo.app/tripscan/internal/pipeline"
	"viammo.app/tripscan/internal/progress"
	"viammo.app/tripscan/internal/taskstore"
)

const oneTrip = `[{"name":"Tahoe Family","startDate":"2027-02-17","endDate":"2027-02-21","destination":{"city":"Palisades Tahoe","state":"CA","country":"USA"},"numberOfGuests":4,"notes":"ski","totalBudget":"$$$$","purpose":"Family vacation"}]`

func refs(n int) []model.MessageRef {
	out := make([]model.MessageRef, n)
	for i := range out {
		out[i] = model.MessageRef(fmt.Sprintf("m%02d", i))
	}
	return out
}

func scanConfig() config.ScanConfig {
	return config.ScanConfig{
		MaxSearchResults:    5000,
		SkipReplies:         true,
		FetchConcurrency:    5,
		LLMConcurrency:      10,
		ItemTimeout:         5 * time.Second,
		BatchSize:           20,
		MaxNumTripGroups:    10,
		MaxYearsBack:        10,
		MaxEmailsToGroup:    200,
		NumRecommendations:  5,
		ClassifierMaxTokens: 8,
	}
}

var _ = Describe("Pipeline", func() {
	var (
		ctx       context.Context
		gateway   *mockGateway
		fast      *fastModel
		reasoning *reasoningModel
		recorder  *progress.Recorder
		extra     progress.Sink
		cfg       config.ScanConfig
	)

	BeforeEach(func() {
		ctx = context.Background()
		gateway = &mockGateway{}
		fast = &fastModel{accept: map[string]bool{}, titles: map[string]bool{}, years: map[string]string{}, lengths: map[string]string{}}
		reasoning = &reasoningModel{trips: oneTrip}
		recorder = &progress.Recorder{}
		extra = progress.Discard
		cfg = scanConfig()
	})

	run := func() (*pipeline.Result, error) {
		p := pipeline.New(pipeline.Deps{
			Gateway:   gateway,
			Fast:      fast,
			Reasoning: reasoning,
			Sink:      progress.Multi(recorder, extra),
			Now:       func() time.Time { return time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC) },
		}, cfg, []string{"booking confirmation", "your stay"})
		return p.Run(ctx)
	}

	Context("when the search finds nothing", func() {
		It("fails with No emails found", func() {
			res, err := run()

			Expect(res).To(BeNil())
			Expect(errors.Is(err, pipeline.ErrNoEmailsFound)).To(BeTrue())

			last, ok := recorder.Last()
			Expect(ok).To(BeTrue())
			Expect(last.Status).To(Equal(model.ScanStatusFailed))
			Expect(last.Message).To(ContainSubstring("No emails found"))
			Expect(last.Error).To(ContainSubstring("goroutine"))
			Expect(fast.classified()).To(BeEmpty())
		})
	})

	It("searches with the quoted keyword query", func() {
		gateway.searchFn = func(context.Context, string, int) ([]model.MessageRef, error) {
			return nil, nil
		}

		_, _ = run()

		Expect(gateway.queries).To(ConsistOf(`"booking confirmation" OR "your stay"`))
	})

	It("fails when the search errors", func() {
		gateway.searchFn = func(context.Context, string, int) ([]model.MessageRef, error) {
			return nil, errors.New("401 invalid credentials")
		}

		_, err := run()

		Expect(err).To(MatchError(ContainSubstring("searching emails")))
		last, _ := recorder.Last()
		Expect(last.Status).To(Equal(model.ScanStatusFailed))
	})

	Context("with 50 candidates of which 10 are reservations", func() {
		BeforeEach(func() {
			gateway.searchFn = func(context.Context, string, int) ([]model.MessageRef, error) {
				return refs(50), nil
			}
			for i := 0; i < 50; i += 5 {
				id := fmt.Sprintf("m%02d", i)
				fast.accept[id] = true
				fast.years[id] = "2024"
				fast.lengths[id] = fmt.Sprint(i % 7)
			}
		})

		It("extracts exactly the accepted emails", func() {
			res, err := run()

			Expect(err).NotTo(HaveOccurred())
			Expect(fast.classified()).To(HaveLen(50))
			Expect(fast.extracted()).To(HaveLen(10))
			Expect(res.Emails).To(HaveLen(10))
			for _, e := range res.Emails {
				Expect(e.Body).To(BeEmpty())
				Expect(e.KeyInsights).To(Equal("insights for " + e.ID))
				Expect(e.StayYear).To(Equal(2024))
			}
		})

		It("ends with a completed event carrying every artifact", func() {
			res, err := run()
			Expect(err).NotTo(HaveOccurred())

			last, _ := recorder.Last()
			Expect(last.Status).To(Equal(model.ScanStatusCompleted))
			Expect(last.Progress).To(Equal(100))
			Expect(last.Emails).To(HaveLen(10))
			Expect(last.TripInsights).NotTo(BeNil())
			Expect(*last.TripInsights).To(HavePrefix("## Group 1: Ski week"))
			Expect(last.Recommendations).To(HaveLen(1))
			Expect(res.Recommendations[0].Name).To(Equal("Tahoe Family"))

			for _, ev := range recorder.Events()[:len(recorder.Events())-1] {
				Expect(ev.Status).To(Equal(model.ScanStatusInProgress))
			}
		})

		It("drops replies before fetching full emails", func() {
			gateway.fetchMetadataFn = func(_ context.Context, id model.MessageRef) (*model.EmailRecord, error) {
				rec := &model.EmailRecord{ID: string(id), InReplyTo: model.UnknownInReplyTo}
				if id == "m00" {
					rec.InReplyTo = "<parent@example.com>"
				}
				if id == "m01" {
					return nil, errors.New("metadata unavailable")
				}
				return rec, nil
			}

			res, err := run()

			Expect(err).NotTo(HaveOccurred())
			Expect(fast.classified()).To(HaveLen(48))
			Expect(fast.classified()).NotTo(ContainElements("m00", "m01"))
			Expect(res.Emails).To(HaveLen(9))
			Expect(recorder.Messages()).To(ContainElement(ContainSubstring("Filtered down to 48 by removing emails that are replies")))
		})

		It("keeps replies when the filter is off", func() {
			cfg.SkipReplies = false
			gateway.fetchMetadataFn = func(context.Context, model.MessageRef) (*model.EmailRecord, error) {
				return nil, errors.New("must not be called")
			}

			_, err := run()

			Expect(err).NotTo(HaveOccurred())
			Expect(fast.classified()).To(HaveLen(50))
		})

		Context("with the title filter on", func() {
			BeforeEach(func() {
				cfg.TitleFilter = true
				for _, id := range refs(50)[20:] {
					fast.titles[string(id)] = false
				}
			})

			It("fetches bodies only for emails whose metadata looks like a reservation", func() {
				var (
					mu      sync.Mutex
					fetched []model.MessageRef
				)
				gateway.fetchFullFn = func(_ context.Context, id model.MessageRef) (*model.EmailRecord, error) {
					mu.Lock()
					fetched = append(fetched, id)
					mu.Unlock()
					return &model.EmailRecord{ID: string(id), Subject: "Your stay", Body: "Booking " + string(id)}, nil
				}

				res, err := run()

				Expect(err).NotTo(HaveOccurred())
				Expect(fast.titled()).To(HaveLen(50))
				Expect(fetched).To(ConsistOf(refs(20)))
				Expect(fast.classified()).To(HaveLen(20))
				Expect(res.Emails).To(HaveLen(4))
				Expect(recorder.Messages()).To(ContainElements(
					"Filtering emails based on title...",
					"Filtered down to 20 based on title.",
					"Filtering emails based on body...",
				))
			})

			It("classifies titles only after dropping replies", func() {
				gateway.fetchMetadataFn = func(_ context.Context, id model.MessageRef) (*model.EmailRecord, error) {
					rec := &model.EmailRecord{ID: string(id), Subject: "Subject " + string(id), InReplyTo: model.UnknownInReplyTo}
					if id == "m03" {
						rec.InReplyTo = "<parent@example.com>"
					}
					return rec, nil
				}

				_, err := run()

				Expect(err).NotTo(HaveOccurred())
				Expect(fast.titled()).To(HaveLen(49))
				Expect(fast.titled()).NotTo(ContainElement("m03"))
				Expect(fast.classified()).To(HaveLen(19))
			})

			It("reports the title pass before the body pass", func() {
				_, err := run()

				Expect(err).NotTo(HaveOccurred())
				var titleAt, bodyAt int
				for _, ev := range recorder.Events() {
					switch ev.Message {
					case "Filtered down to 20 based on title.":
						titleAt = ev.Progress
					case "Filtering emails based on body...":
						bodyAt = ev.Progress
					}
				}
				Expect(titleAt).To(Equal(35))
				Expect(bodyAt).To(BeNumerically(">", titleAt))
			})
		})

		It("makes no title calls when the title filter is off", func() {
			_, err := run()

			Expect(err).NotTo(HaveOccurred())
			Expect(fast.titled()).To(BeEmpty())
			Expect(recorder.Messages()).NotTo(ContainElement(ContainSubstring("based on title")))
		})
	})

	It("groups 45 eligible emails in three batches that each see the prior state", func() {
		gateway.searchFn = func(context.Context, string, int) ([]model.MessageRef, error) {
			return refs(45), nil
		}
		for _, id := range refs(45) {
			fast.accept[string(id)] = true
			fast.years[string(id)] = "2023"
		}

		_, err := run()

		Expect(err).NotTo(HaveOccurred())
		folds := reasoning.foldPrompts()
		Expect(folds).To(HaveLen(3))
		Expect(folds[0]).To(ContainSubstring("(none yet)"))
		Expect(folds[1]).To(ContainSubstring("- Trip: Everline | 2024-02-17"))
		Expect(folds[2]).To(ContainSubstring("- Trip: Everline | 2024-02-17"))
		Expect(promptID.FindAllString(folds[2], -1)).To(HaveLen(5))
	})

	It("fails when the context is cancelled mid-scan", func() {
		cancelled, cancel := context.WithCancel(ctx)
		ctx = cancelled
		gateway.searchFn = func(context.Context, string, int) ([]model.MessageRef, error) {
			cancel()
			return refs(3), nil
		}

		_, err := run()

		Expect(errors.Is(err, context.Canceled)).To(BeTrue())
		last, _ := recorder.Last()
		Expect(last.Status).To(Equal(model.ScanStatusFailed))
	})

	It("persists the failed status even though the scan context is cancelled", func() {
		mr := miniredis.NewMiniRedis()
		Expect(mr.Start()).To(Succeed())
		DeferCleanup(mr.Close)
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		DeferCleanup(rdb.Close)

		store := taskstore.NewRedisStore(rdb, time.Hour)
		Expect(store.Put(ctx, &model.ScanState{ID: 7, Status: model.ScanStatusInProgress})).To(Succeed())
		extra = progress.NewStoreSink(store, 7)

		cancelled, cancel := context.WithCancel(ctx)
		ctx = cancelled
		gateway.searchFn = func(context.Context, string, int) ([]model.MessageRef, error) {
			cancel()
			return refs(3), nil
		}

		_, err := run()
		Expect(errors.Is(err, context.Canceled)).To(BeTrue())

		state, err := store.Get(context.Background(), 7)
		Expect(err).NotTo(HaveOccurred())
		Expect(state.Status).To(Equal(model.ScanStatusFailed))
		Expect(state.Progress).To(Equal(100))
		Expect(state.Message).To(Equal(context.Canceled.Error()))
	})

	It("labels the stack of an ordinary failure as the driver's", func() {
		gateway.searchFn = func(context.Context, string, int) ([]model.MessageRef, error) {
			return nil, errors.New("gmail down")
		}

		_, err := run()

		Expect(err).To(HaveOccurred())
		last, _ := recorder.Last()
		Expect(last.Message).To(Equal("searching emails: gmail down"))
		Expect(last.Error).To(HavePrefix("searching emails: gmail down\n\ndriver stack:\n"))
	})

	It("reports a panic as a failed scan", func() {
		gateway.searchFn = func(context.Context, string, int) ([]model.MessageRef, error) {
			panic("boom")
		}

		_, err := run()

		Expect(err).To(MatchError(ContainSubstring("boom")))
		last, _ := recorder.Last()
		Expect(last.Status).To(Equal(model.ScanStatusFailed))
		Expect(last.Error).To(HavePrefix("scan panicked: boom\n\n"))
		Expect(last.Error).To(ContainSubstring("goroutine"))
		Expect(last.Error).NotTo(ContainSubstring("driver stack"))
	})
})

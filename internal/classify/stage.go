// Package classify fetches each candidate email in full and keeps only the
// ones a model confirms are hotel reservation confirmations.
package classify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"viammo.app/tripscan/common/llm"
	"viammo.app/tripscan/common/logger"
	"viammo.app/tripscan/internal/mailbox"
	"viammo.app/tripscan/internal/model"
	"viammo.app/tripscan/internal/progress"
	"viammo.app/tripscan/internal/taskrunner"
)

const promptTemplate = `Here is data for an email, is it a hotel reservation confirmation? Make sure to only keep hotel reservations (and filter out restaurant reservations and other travel related emails). Just answer True or False and nothing else.

Email:
%s`

type Options struct {
	Concurrency int
	ItemTimeout time.Duration
	MaxTokens   int
	Temperature *float64
	TopP        *float64

	// Progress is the percentage attached to events this stage emits.
	Progress int
}

// Stage fetches and classifies in one task per email so rejected bodies are
// released as soon as their verdict is known.
type Stage struct {
	gateway mailbox.Gateway
	llm     llm.Completer
	sink    progress.Sink
	opts    Options
}

func NewStage(gateway mailbox.Gateway, completer llm.Completer, sink progress.Sink, opts Options) *Stage {
	if sink == nil {
		sink = progress.Discard
	}
	return &Stage{gateway: gateway, llm: completer, sink: sink, opts: opts}
}

// Prompt builds the classification prompt for rec.
func Prompt(rec *model.EmailRecord) string {
	return fmt.Sprintf(promptTemplate, rec.Describe())
}

// Classify asks the model about one fetched email.
func (s *Stage) Classify(ctx context.Context, rec *model.EmailRecord) (Verdict, error) {
	resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
		Prompt:      Prompt(rec),
		MaxTokens:   s.opts.MaxTokens,
		Temperature: s.opts.Temperature,
		TopP:        s.opts.TopP,
	})
	if err != nil {
		return Reject, fmt.Errorf("classifying %s: %w", rec.ID, err)
	}
	return ParseVerdict(resp.Text), nil
}

// Run returns the accepted emails, bodies included, in the order of ids.
// Emails that fail to fetch or classify are dropped and reported to the sink.
func (s *Stage) Run(ctx context.Context, ids []model.MessageRef) []*model.EmailRecord {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Stage: logger.Ptr("classify")})
	sc := logger.StartSpan(ctx, "pipeline.classify")
	defer sc.End()
	ctx = sc.Context()

	results := taskrunner.Run(ctx, ids, func(ctx context.Context, id model.MessageRef) (*model.EmailRecord, error) {
		ctx = logger.WithLogFields(ctx, logger.LogFields{EmailID: logger.Ptr(string(id))})

		rec, err := s.gateway.FetchFull(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetching %s: %w", id, err)
		}

		verdict, err := s.Classify(ctx, rec)
		if err != nil {
			return nil, err
		}

		slog.DebugContext(ctx, "email classified",
			"verdict", verdict.String(),
			"subject", logger.Truncate(rec.Subject, 80))

		if !verdict.Keep() {
			return nil, nil
		}
		return rec, nil
	}, taskrunner.Options[model.MessageRef]{
		Concurrency: s.opts.Concurrency,
		ItemTimeout: s.opts.ItemTimeout,
		OnProgress: func(done, total int) {
			progress.Report(ctx, s.sink, s.opts.Progress, "Classified %d / %d emails", done, total)
		},
		OnError: func(id model.MessageRef, err error) {
			progress.Report(ctx, s.sink, s.opts.Progress, "Error processing email %s: %v", id, err)
		},
	})

	kept := make([]*model.EmailRecord, 0)
	seen := make(map[model.MessageRef]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if res := results[id]; res.Err == nil && res.Value != nil {
			kept = append(kept, res.Value)
		}
	}

	slog.InfoContext(ctx, "classification finished",
		"candidates", len(results),
		"kept", len(kept))

	return kept
}

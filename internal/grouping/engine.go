// Package grouping folds extracted emails into a bounded list of trip groups,
// one batch at a time.
package grouping

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"viammo.app/tripscan/common/llm"
	"viammo.app/tripscan/common/logger"
	"viammo.app/tripscan/internal/model"
	"viammo.app/tripscan/internal/progress"
)

const (
	DefaultBatchSize = 20
	DefaultMaxGroups = 10
)

type Options struct {
	BatchSize int
	MaxGroups int

	// ReshuffleEvery issues a reorganise-only call after every n-th batch.
	// Zero disables it.
	ReshuffleEvery int

	MaxTokens   int
	Temperature *float64
	TopP        *float64
	ItemTimeout time.Duration

	// Progress events move from ProgressStart to ProgressEnd across batches.
	ProgressStart int
	ProgressEnd   int
}

// Engine threads the trip group state through sequential model calls. Each
// call sees the entire previous state, so the state never depends on the
// model remembering anything.
type Engine struct {
	llm  llm.Completer
	sink progress.Sink
	opts Options
}

func NewEngine(completer llm.Completer, sink progress.Sink, opts Options) *Engine {
	if sink == nil {
		sink = progress.Discard
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxGroups <= 0 {
		opts.MaxGroups = DefaultMaxGroups
	}
	if opts.ProgressEnd < opts.ProgressStart {
		opts.ProgressEnd = opts.ProgressStart
	}
	return &Engine{llm: completer, sink: sink, opts: opts}
}

// Batches splits records into consecutive chunks of at most size, keeping order.
func Batches(records []*model.EmailRecord, size int) [][]*model.EmailRecord {
	if size <= 0 {
		size = DefaultBatchSize
	}
	var out [][]*model.EmailRecord
	for start := 0; start < len(records); start += size {
		end := min(start+size, len(records))
		out = append(out, records[start:end])
	}
	return out
}

// Fold runs one call per batch and returns the final state, "" if the model
// never produced one. Only context cancellation is returned as an error.
func (e *Engine) Fold(ctx context.Context, records []*model.EmailRecord) (string, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Stage: logger.Ptr("grouping")})
	sc := logger.StartSpan(ctx, "pipeline.grouping")
	defer sc.End()
	ctx = sc.Context()

	batches := Batches(records, e.opts.BatchSize)
	// nil means the last call produced nothing; the next prompt treats it as empty.
	var state *string

	for i, batch := range batches {
		if err := ctx.Err(); err != nil {
			return deref(state), err
		}

		text, err := e.complete(ctx, BuildPrompt(deref(state), batch, e.opts.MaxGroups))
		switch {
		case err == nil:
			state = &text
		case errors.Is(err, llm.ErrEmptyCompletion):
			progress.Report(ctx, e.sink, e.progressAt(i+1, len(batches)),
				"LLM did not return a response to generate trip insights for batch %d / %d", i+1, len(batches))
			state = nil
		case ctx.Err() != nil:
			return deref(state), ctx.Err()
		default:
			// A failed call leaves the previous groups in place.
			progress.Report(ctx, e.sink, e.progressAt(i+1, len(batches)),
				"Error generating trip insights for batch %d / %d: %v", i+1, len(batches), err)
		}

		slog.InfoContext(ctx, "trip grouping batch finished",
			"batch", i+1,
			"batches", len(batches),
			"batch_emails", len(batch),
			"state_bytes", len(deref(state)))

		if e.shouldReshuffle(i+1) && state != nil {
			state = e.reshuffle(ctx, *state)
		}

		progress.Report(ctx, e.sink, e.progressAt(i+1, len(batches)),
			"Generated insights for %d / %d batches of emails", i+1, len(batches))
	}

	return deref(state), nil
}

func (e *Engine) shouldReshuffle(batchNum int) bool {
	return e.opts.ReshuffleEvery > 0 && batchNum%e.opts.ReshuffleEvery == 0
}

func (e *Engine) reshuffle(ctx context.Context, state string) *string {
	text, err := e.complete(ctx, BuildReshufflePrompt(state, e.opts.MaxGroups))
	if err != nil {
		slog.WarnContext(ctx, "trip group reshuffle failed, keeping groups as they were", "error", err)
		return &state
	}
	return &text
}

func (e *Engine) complete(ctx context.Context, prompt string) (string, error) {
	if e.opts.ItemTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.ItemTimeout)
		defer cancel()
	}
	return llm.CompleteText(ctx, e.llm, llm.CompletionRequest{
		Prompt:      prompt,
		MaxTokens:   e.opts.MaxTokens,
		Temperature: e.opts.Temperature,
		TopP:        e.opts.TopP,
	})
}

func (e *Engine) progressAt(done, total int) int {
	if total == 0 {
		return e.opts.ProgressEnd
	}
	return e.opts.ProgressStart + (e.opts.ProgressEnd-e.opts.ProgressStart)*done/total
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

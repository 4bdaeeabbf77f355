package classify

import (
	"context"
	"fmt"
	"log/slog"

	"viammo.app/tripscan/common/llm"
	"viammo.app/tripscan/common/logger"
	"viammo.app/tripscan/internal/model"
	"viammo.app/tripscan/internal/progress"
	"viammo.app/tripscan/internal/taskrunner"
)

const titlePromptTemplate = `Here is metadata for an email, is it a hotel reservation confirmation? Just answer True or False and nothing else.

Metadata:
%s`

// TitleStage screens emails on metadata alone, before anything is fetched in
// full. Only the headers already in hand are sent to the model.
type TitleStage struct {
	llm  llm.Completer
	sink progress.Sink
	opts Options
}

func NewTitleStage(completer llm.Completer, sink progress.Sink, opts Options) *TitleStage {
	if sink == nil {
		sink = progress.Discard
	}
	return &TitleStage{llm: completer, sink: sink, opts: opts}
}

func TitlePrompt(meta *model.EmailRecord) string {
	return fmt.Sprintf(titlePromptTemplate, meta.Describe())
}

// Run returns the ids of the accepted emails in input order. A failed call
// rejects the email.
func (s *TitleStage) Run(ctx context.Context, metas []*model.EmailRecord) []model.MessageRef {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Stage: logger.Ptr("classify_title")})
	sc := logger.StartSpan(ctx, "pipeline.classify_title")
	defer sc.End()
	ctx = sc.Context()

	byID := make(map[model.MessageRef]*model.EmailRecord, len(metas))
	ids := make([]model.MessageRef, 0, len(metas))
	for _, m := range metas {
		ref := model.MessageRef(m.ID)
		if _, ok := byID[ref]; ok {
			continue
		}
		byID[ref] = m
		ids = append(ids, ref)
	}

	results := taskrunner.Run(ctx, ids, func(ctx context.Context, id model.MessageRef) (Verdict, error) {
		resp, err := s.llm.Complete(ctx, llm.CompletionRequest{
			Prompt:      TitlePrompt(byID[id]),
			MaxTokens:   s.opts.MaxTokens,
			Temperature: s.opts.Temperature,
			TopP:        s.opts.TopP,
		})
		if err != nil {
			return Reject, fmt.Errorf("classifying %s by title: %w", id, err)
		}
		return ParseVerdict(resp.Text), nil
	}, taskrunner.Options[model.MessageRef]{
		Concurrency: s.opts.Concurrency,
		ItemTimeout: s.opts.ItemTimeout,
		OnProgress: func(done, total int) {
			progress.Report(ctx, s.sink, s.opts.Progress, "Classified %d / %d titles", done, total)
		},
		OnError: func(id model.MessageRef, err error) {
			progress.Report(ctx, s.sink, s.opts.Progress, "Error processing email %s: %v", id, err)
		},
	})

	kept := make([]model.MessageRef, 0)
	for _, id := range ids {
		if res := results[id]; res.Err == nil && res.Value.Keep() {
			kept = append(kept, id)
		}
	}

	slog.InfoContext(ctx, "title classification finished",
		"candidates", len(ids),
		"kept", len(kept))

	return kept
}

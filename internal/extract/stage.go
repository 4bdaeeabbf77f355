// Package extract pulls trip signals out of confirmed reservation emails.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"viammo.app/tripscan/common/llm"
	"viammo.app/tripscan/common/logger"
	"viammo.app/tripscan/internal/model"
	"viammo.app/tripscan/internal/progress"
	"viammo.app/tripscan/internal/taskrunner"
)

type Options struct {
	Concurrency int
	ItemTimeout time.Duration

	// InsightsMaxTokens bounds the free-text answer; NumberMaxTokens the
	// integer answers.
	InsightsMaxTokens int
	NumberMaxTokens   int
	Temperature       *float64
	TopP              *float64

	Progress int
}

type Stage struct {
	llm  llm.Completer
	sink progress.Sink
	opts Options
}

func NewStage(completer llm.Completer, sink progress.Sink, opts Options) *Stage {
	if sink == nil {
		sink = progress.Discard
	}
	if opts.NumberMaxTokens == 0 {
		opts.NumberMaxTokens = 16
	}
	return &Stage{llm: completer, sink: sink, opts: opts}
}

// ParseInt reads a bare integer answer. Anything else, such as
// "approximately 3", yields 0.
func ParseInt(text string) int {
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return 0
	}
	return n
}

type question struct {
	name      string
	template  string
	maxTokens int
}

// Run attaches insights, stay length and stay year to every record and
// clears the bodies. Records are mutated in place and returned.
func (s *Stage) Run(ctx context.Context, records []*model.EmailRecord) []*model.EmailRecord {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Stage: logger.Ptr("extract")})
	sc := logger.StartSpan(ctx, "pipeline.extract")
	defer sc.End()
	ctx = sc.Context()

	byID := make(map[string]*model.EmailRecord, len(records))
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		if _, dup := byID[rec.ID]; dup {
			continue
		}
		byID[rec.ID] = rec
		ids = append(ids, rec.ID)
	}

	insights := s.ask(ctx, ids, byID, question{"key insights", keyInsightsPrompt, s.opts.InsightsMaxTokens})
	lengths := s.ask(ctx, ids, byID, question{"stay length", stayLengthPrompt, s.opts.NumberMaxTokens})
	years := s.ask(ctx, ids, byID, question{"stay year", stayYearPrompt, s.opts.NumberMaxTokens})

	for _, id := range ids {
		key := insights[id].Value
		if insights[id].Failed() {
			key = insights[id].ErrorMarker()
		}
		byID[id].Attach(model.Insights{
			KeyInsights: key,
			StayLength:  ParseInt(lengths[id].Value),
			StayYear:    ParseInt(years[id].Value),
		})
	}

	slog.InfoContext(ctx, "extraction finished", "emails", len(ids))
	return records
}

func (s *Stage) ask(ctx context.Context, ids []string, byID map[string]*model.EmailRecord, q question) map[string]taskrunner.Result[string] {
	progress.Report(ctx, s.sink, s.opts.Progress, "Getting %s from %d emails...", q.name, len(ids))

	return taskrunner.Run(ctx, ids, func(ctx context.Context, id string) (string, error) {
		return llm.CompleteText(ctx, s.llm, llm.CompletionRequest{
			Prompt:      fmt.Sprintf(q.template, byID[id].Describe()),
			MaxTokens:   q.maxTokens,
			Temperature: s.opts.Temperature,
			TopP:        s.opts.TopP,
		})
	}, taskrunner.Options[string]{
		Concurrency: s.opts.Concurrency,
		ItemTimeout: s.opts.ItemTimeout,
		OnProgress: func(done, total int) {
			progress.Report(ctx, s.sink, s.opts.Progress, "Completed %s %d / %d", q.name, done, total)
		},
		OnError: func(id string, err error) {
			progress.Report(ctx, s.sink, s.opts.Progress, "Error getting %s for email %s: %v", q.name, id, err)
		},
	})
}

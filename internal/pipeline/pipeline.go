// Package pipeline runs one mailbox scan end to end: search, classify,
// extract, group and recommend.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"viammo.app/tripscan/common/llm"
	"viammo.app/tripscan/common/logger"
	"viammo.app/tripscan/core/config"
	"viammo.app/tripscan/internal/classify"
	"viammo.app/tripscan/internal/extract"
	"viammo.app/tripscan/internal/grouping"
	"viammo.app/tripscan/internal/mailbox"
	"viammo.app/tripscan/internal/model"
	"viammo.app/tripscan/internal/progress"
	"viammo.app/tripscan/internal/recommend"
	"viammo.app/tripscan/internal/taskrunner"
)

//nolint:staticcheck // surfaced verbatim to users
var ErrNoEmailsFound = errors.New("No emails found")

// Sampling used for the fast model. The reasoning model keeps its defaults.
const terminalEmitTimeout = 10 * time.Second

var (
	fastTemperature = llm.Float(0.6)
	fastTopP        = llm.Float(1.0)
)

// Deps are the capabilities a scan runs against. Fast handles the per-email
// fan-out; Reasoning handles grouping and recommendations.
type Deps struct {
	Gateway   mailbox.Gateway
	Fast      llm.Completer
	Reasoning llm.Completer
	Sink      progress.Sink

	// Now defaults to time.Now. The current year bounds eligible stays.
	Now func() time.Time
}

type Result struct {
	Emails          []*model.EmailRecord
	TripInsights    string
	Recommendations []model.TripRecommendation
}

type Pipeline struct {
	deps     Deps
	cfg      config.ScanConfig
	keywords []string
}

func New(deps Deps, cfg config.ScanConfig, keywords []string) *Pipeline {
	if deps.Sink == nil {
		deps.Sink = progress.Discard
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if len(keywords) == 0 {
		keywords = mailbox.DefaultKeywords
	}
	return &Pipeline{deps: deps, cfg: cfg, keywords: keywords}
}

// Run executes the scan. It ends with exactly one terminal event on the sink:
// completed with every artifact, or failed with the error and a stack trace:
// the panicking goroutine's for a panic, the driver's otherwise.
func (p *Pipeline) Run(ctx context.Context) (res *Result, err error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "tripscan.pipeline"})
	sc := logger.StartSpan(ctx, "pipeline.run")
	defer sc.End()
	ctx = sc.Context()

	defer func() {
		detail := ""
		if r := recover(); r != nil {
			err = fmt.Errorf("scan panicked: %v", r)
			res = nil
			detail = fmt.Sprintf("%v\n\n%s", err, debug.Stack())
		}
		if err != nil {
			if detail == "" {
				detail = fmt.Sprintf("%v\n\ndriver stack:\n%s", err, debug.Stack())
			}
			p.emitTerminal(ctx, model.ProgressEvent{
				Message:   err.Error(),
				Progress:  100,
				Status:    model.ScanStatusFailed,
				Error:     detail,
				Timestamp: time.Now().UTC(),
			})
		}
	}()

	res, err = p.run(ctx)
	return res, err
}

func (p *Pipeline) run(ctx context.Context) (*Result, error) {
	sink := p.deps.Sink

	progress.Report(ctx, sink, 5, "Searching for emails...")
	ids, err := p.deps.Gateway.Search(ctx, mailbox.BuildSearchQuery(p.keywords), p.cfg.MaxSearchResults)
	if err != nil {
		return nil, fmt.Errorf("searching emails: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrNoEmailsFound
	}
	progress.Report(ctx, sink, 10, "Found %d emails", len(ids))
	found := len(ids)

	if p.cfg.SkipReplies || p.cfg.TitleFilter {
		progress.Report(ctx, sink, 15, "Getting metadata for emails...")
		metas := p.fetchMetadata(ctx, ids)

		if p.cfg.SkipReplies {
			metas = dropReplies(metas)
			progress.Report(ctx, sink, 20,
				"Filtered down to %d by removing emails that are replies to another email in the same thread.", len(metas))
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if p.cfg.TitleFilter {
			progress.Report(ctx, sink, 25, "Filtering emails based on title...")
			ids = classify.NewTitleStage(p.deps.Fast, sink, classify.Options{
				Concurrency: p.cfg.LLMConcurrency,
				ItemTimeout: p.cfg.ItemTimeout,
				MaxTokens:   p.cfg.ClassifierMaxTokens,
				Temperature: fastTemperature,
				TopP:        fastTopP,
				Progress:    30,
			}).Run(ctx, metas)
			progress.Report(ctx, sink, 35, "Filtered down to %d based on title.", len(ids))
		} else {
			ids = refsOf(metas)
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Without the title pass the body pass spans the whole 25-50 range.
	bodyStart, bodyProgress := 25, 30
	if p.cfg.TitleFilter {
		bodyStart, bodyProgress = 40, 45
	}
	progress.Report(ctx, sink, bodyStart, "Filtering emails based on body...")
	reservations := classify.NewStage(p.deps.Gateway, p.deps.Fast, sink, classify.Options{
		Concurrency: p.cfg.LLMConcurrency,
		ItemTimeout: p.cfg.ItemTimeout,
		MaxTokens:   p.cfg.ClassifierMaxTokens,
		Temperature: fastTemperature,
		TopP:        fastTopP,
		Progress:    bodyProgress,
	}).Run(ctx, ids)
	progress.Report(ctx, sink, 50, "Filtered down to %d based on body.", len(reservations))
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	progress.Report(ctx, sink, 55, "Getting key insights from each email...")
	emails := extract.NewStage(p.deps.Fast, sink, extract.Options{
		Concurrency: p.cfg.LLMConcurrency,
		ItemTimeout: p.cfg.ItemTimeout,
		Temperature: fastTemperature,
		TopP:        fastTopP,
		Progress:    55,
	}).Run(ctx, reservations)
	progress.Report(ctx, sink, 60, "Completed getting key insights from each email...")
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	eligible := Eligible(emails, p.deps.Now().Year(), p.cfg.MaxYearsBack, p.cfg.MaxEmailsToGroup)
	progress.Report(ctx, sink, 65, "Selected %d of %d emails with stays in the last %d years", len(eligible), len(emails), p.cfg.MaxYearsBack)

	progress.Report(ctx, sink, 75, "Generating insights from all emails...")
	state, err := grouping.NewEngine(p.deps.Reasoning, sink, grouping.Options{
		BatchSize:      p.cfg.BatchSize,
		MaxGroups:      p.cfg.MaxNumTripGroups,
		ReshuffleEvery: p.cfg.ReshuffleEvery,
		ItemTimeout:    p.cfg.ItemTimeout,
		ProgressStart:  75,
		ProgressEnd:    85,
	}).Fold(ctx, eligible)
	if err != nil {
		return nil, fmt.Errorf("grouping trips: %w", err)
	}
	for _, dup := range grouping.AuditDuplicates(state) {
		progress.Report(ctx, sink, 85, "Trip %s appears in groups %v", dup.Key, dup.Groups)
	}
	progress.Report(ctx, sink, 85, "Completed generating insights from all emails...")

	n := p.cfg.NumRecommendations
	if n <= 0 {
		n = recommend.DefaultCount
	}
	progress.Report(ctx, sink, 95, "Generating up to %d trip metadatas...", n)
	trips := recommend.NewGenerator(p.deps.Reasoning, sink, recommend.Options{
		Timeout:  p.cfg.ItemTimeout,
		Progress: 95,
	}).Generate(ctx, state, n)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	slog.InfoContext(ctx, "scan finished",
		"searched", found,
		"reservations", len(reservations),
		"eligible", len(eligible),
		"recommendations", len(trips))

	p.emitTerminal(ctx, model.ProgressEvent{
		Message:         fmt.Sprintf("Completed generating up to %d trip metadatas...", n),
		Progress:        100,
		Status:          model.ScanStatusCompleted,
		Emails:          emails,
		TripInsights:    &state,
		Recommendations: trips,
		Timestamp:       time.Now().UTC(),
	})

	return &Result{Emails: emails, TripInsights: state, Recommendations: trips}, nil
}

// emitTerminal delivers the final event even when the scan's context is
// already cancelled, so the stored status always leaves in_progress.
func (p *Pipeline) emitTerminal(ctx context.Context, ev model.ProgressEvent) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalEmitTimeout)
	defer cancel()
	p.deps.Sink.Emit(ctx, ev)
}

// fetchMetadata returns the metadata of ids in input order. Emails whose
// metadata cannot be fetched are dropped.
func (p *Pipeline) fetchMetadata(ctx context.Context, ids []model.MessageRef) []*model.EmailRecord {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Stage: logger.Ptr("metadata")})

	results := taskrunner.Run(ctx, ids, func(ctx context.Context, id model.MessageRef) (*model.EmailRecord, error) {
		rec, err := p.deps.Gateway.FetchMetadata(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("fetching metadata for %s: %w", id, err)
		}
		return rec, nil
	}, taskrunner.Options[model.MessageRef]{
		Concurrency: p.cfg.FetchConcurrency,
		ItemTimeout: p.cfg.ItemTimeout,
		OnProgress: func(done, total int) {
			progress.Report(ctx, p.deps.Sink, 15, "Fetched metadata for %d / %d emails", done, total)
		},
		OnError: func(id model.MessageRef, err error) {
			progress.Report(ctx, p.deps.Sink, 15, "Message %s generated an exception: %v", id, err)
		},
	})

	metas := make([]*model.EmailRecord, 0, len(results))
	seen := make(map[model.MessageRef]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if res := results[id]; !res.Failed() && res.Value != nil {
			if res.Value.ID == "" {
				res.Value.ID = string(id)
			}
			metas = append(metas, res.Value)
		}
	}
	return metas
}

// dropReplies keeps the emails with no In-Reply-To header.
func dropReplies(metas []*model.EmailRecord) []*model.EmailRecord {
	kept := make([]*model.EmailRecord, 0, len(metas))
	for _, m := range metas {
		if !m.IsReply() {
			kept = append(kept, m)
		}
	}
	return kept
}

func refsOf(metas []*model.EmailRecord) []model.MessageRef {
	out := make([]model.MessageRef, len(metas))
	for i, m := range metas {
		out[i] = model.MessageRef(m.ID)
	}
	return out
}

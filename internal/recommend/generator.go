// Package recommend turns the final trip groups into future trip proposals.
package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"viammo.app/tripscan/common/llm"
	"viammo.app/tripscan/common/logger"
	"viammo.app/tripscan/internal/model"
	"viammo.app/tripscan/internal/progress"
)

const DefaultCount = 5

type Options struct {
	MaxTokens   int
	Temperature *float64
	TopP        *float64
	Timeout     time.Duration
	Progress    int
}

type Generator struct {
	llm  llm.Completer
	sink progress.Sink
	opts Options
}

func NewGenerator(completer llm.Completer, sink progress.Sink, opts Options) *Generator {
	if sink == nil {
		sink = progress.Discard
	}
	return &Generator{llm: completer, sink: sink, opts: opts}
}

// Generate asks for up to n trips grounded in state. It returns nil when the
// model fails or its answer is not a JSON list of trips; the reason goes to
// the sink.
func (g *Generator) Generate(ctx context.Context, state string, n int) []model.TripRecommendation {
	ctx = logger.WithLogFields(ctx, logger.LogFields{Stage: logger.Ptr("recommend")})
	sc := logger.StartSpan(ctx, "pipeline.recommend")
	defer sc.End()
	ctx = sc.Context()

	if n <= 0 {
		n = DefaultCount
	}

	if g.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.opts.Timeout)
		defer cancel()
	}

	text, err := llm.CompleteText(ctx, g.llm, llm.CompletionRequest{
		Prompt:      BuildPrompt(state, n),
		MaxTokens:   g.opts.MaxTokens,
		Temperature: g.opts.Temperature,
		TopP:        g.opts.TopP,
	})
	if errors.Is(err, llm.ErrEmptyCompletion) {
		progress.Report(ctx, g.sink, g.opts.Progress, "LLM did not return a response to generate trip metadata")
		return nil
	}
	if err != nil {
		progress.Report(ctx, g.sink, g.opts.Progress, "Error generating trip metadata: %v", err)
		return nil
	}

	trips, err := Parse(text)
	if err != nil {
		progress.Report(ctx, g.sink, g.opts.Progress, "Error parsing JSON response: %v Raw response: %s", err, text)
		return nil
	}

	if len(trips) > n {
		trips = trips[:n]
	}

	slog.InfoContext(ctx, "trip recommendations generated",
		"requested", n,
		"returned", len(trips))

	return trips
}

// Parse decodes a JSON list of trips. A single surrounding markdown code
// fence is tolerated; anything else that is not valid JSON is an error.
func Parse(text string) ([]model.TripRecommendation, error) {
	text = stripFence(strings.TrimSpace(text))

	var trips []model.TripRecommendation
	if err := json.Unmarshal([]byte(text), &trips); err != nil {
		return nil, fmt.Errorf("decoding trip list: %w", err)
	}
	if trips == nil {
		return nil, errors.New("decoding trip list: null")
	}
	return trips, nil
}

func stripFence(text string) string {
	if !strings.HasPrefix(text, "```") || !strings.HasSuffix(text, "```") || len(text) < 6 {
		return text
	}
	body := strings.TrimSuffix(text[3:], "```")
	// Drop the language tag line, e.g. "json".
	if i := strings.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	}
	return strings.TrimSpace(body)
}

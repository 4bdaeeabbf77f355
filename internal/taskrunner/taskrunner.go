// Package taskrunner fans a function out over a set of items with bounded
// concurrency and collects one result per item.
package taskrunner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

const DefaultConcurrency = 20

// Result is the outcome of one item. Exactly one of Value or Err is meaningful.
type Result[V any] struct {
	Value V
	Err   error
}

func (r Result[V]) Failed() bool {
	return r.Err != nil
}

// ErrorMarker renders the error the way downstream prompts expect to see a
// failed item, or "" when the item succeeded.
func (r Result[V]) ErrorMarker() string {
	if r.Err == nil {
		return ""
	}
	return "ERROR: " + r.Err.Error()
}

type Options[K comparable] struct {
	// Concurrency caps in-flight items. Zero means DefaultConcurrency.
	Concurrency int

	// ItemTimeout fails an item that has not returned in time. The item's
	// goroutine is abandoned, not killed, so fn should honour ctx.
	ItemTimeout time.Duration

	// OnProgress is called after every Concurrency-th completion.
	OnProgress func(completed, total int)

	// OnError is called once per failed item.
	OnError func(item K, err error)
}

// Run calls fn for every distinct item and returns a result for each of them.
// A failing or panicking item never affects its siblings, and nothing is retried.
func Run[K comparable, V any](ctx context.Context, items []K, fn func(context.Context, K) (V, error), opts Options[K]) map[K]Result[V] {
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	unique := dedupe(items)
	results := make(map[K]Result[V], len(unique))
	if len(unique) == 0 {
		return results
	}

	var (
		mu        sync.Mutex
		completed int
		g         errgroup.Group
	)
	g.SetLimit(concurrency)

	for _, item := range unique {
		g.Go(func() error {
			var res Result[V]
			if err := ctx.Err(); err != nil {
				res.Err = err
			} else {
				res.Value, res.Err = call(ctx, item, fn, opts.ItemTimeout)
			}

			mu.Lock()
			defer mu.Unlock()

			results[item] = res
			completed++
			if res.Err != nil && opts.OnError != nil {
				opts.OnError(item, res.Err)
			}
			if opts.OnProgress != nil && completed%concurrency == 0 {
				opts.OnProgress(completed, len(unique))
			}
			// Item failures live in the result map, never in the group.
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func call[K comparable, V any](ctx context.Context, item K, fn func(context.Context, K) (V, error), timeout time.Duration) (V, error) {
	if timeout <= 0 {
		return callSafe(ctx, item, fn)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Result[V], 1)
	go func() {
		v, err := callSafe(ctx, item, fn)
		done <- Result[V]{Value: v, Err: err}
	}()

	select {
	case res := <-done:
		return res.Value, res.Err
	case <-ctx.Done():
		var zero V
		return zero, fmt.Errorf("item %v timed out after %s: %w", item, timeout, ctx.Err())
	}
}

func callSafe[K comparable, V any](ctx context.Context, item K, fn func(context.Context, K) (V, error)) (v V, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in task",
				"panic", r,
				"item", fmt.Sprint(item))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx, item)
}

func dedupe[K comparable](items []K) []K {
	seen := make(map[K]struct{}, len(items))
	out := make([]K, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

// Package fanout runs independent units of work concurrently, waits for all
// of them, and flattens their nested results into one ordered slice.
//
// Every combinator preserves the order of the originating units and the
// order within each unit. A unit that panics is logged and contributes
// nothing.
package fanout

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Unit is one independently schedulable piece of work.
type Unit[T any] func(ctx context.Context) T

type options struct {
	limit  int
	logger *zap.Logger
}

// Option configures a fan-out.
type Option func(*options)

// WithLimit caps the number of units running at once. Zero or negative
// means unbounded.
func WithLimit(n int) Option {
	return func(o *options) {
		o.limit = n
	}
}

// WithLogger sets the logger used to report panicking units.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Units builds one unit per item.
func Units[In, T any](items []In, fn func(context.Context, In) T) []Unit[T] {
	units := make([]Unit[T], len(items))
	for i, item := range items {
		units[i] = func(ctx context.Context) T {
			return fn(ctx, item)
		}
	}
	return units
}

// Join runs every unit and returns their results in unit order.
func Join[T any](ctx context.Context, units []Unit[T], opts ...Option) []T {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	results := make([]T, len(units))
	var g errgroup.Group
	if o.limit > 0 {
		g.SetLimit(o.limit)
	}
	for i, unit := range units {
		g.Go(func() error {
			results[i] = run(ctx, unit, i, o.logger)
			return nil
		})
	}
	// Units never return errors; failures are absences.
	_ = g.Wait()
	return results
}

func run[T any](ctx context.Context, unit Unit[T], index int, logger *zap.Logger) (out T) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Fan-out unit panicked",
				zap.Int("unit", index),
				zap.String("panic", fmt.Sprint(rec)),
			)
			var zero T
			out = zero
		}
	}()
	return unit(ctx)
}

// JoinSome runs units yielding optional values and keeps the present ones.
func JoinSome[T any](ctx context.Context, units []Unit[Maybe[T]], opts ...Option) []T {
	return Compact(Join(ctx, units, opts...))
}

// JoinFlat runs units yielding lists and concatenates them.
func JoinFlat[T any](ctx context.Context, units []Unit[[]T], opts ...Option) []T {
	return Flatten(Join(ctx, units, opts...))
}

// JoinFlat2 runs units yielding lists of lists and flattens both levels.
func JoinFlat2[T any](ctx context.Context, units []Unit[[][]T], opts ...Option) []T {
	return Flatten2(Join(ctx, units, opts...))
}

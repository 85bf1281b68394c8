// Package command provides the validate-then-run skeleton shared by state-changing operations.
//
// A command checks every caller-fixable precondition in Validate, before any side effect, and performs
// its store operation in Run. Execute enforces that ordering and logs the outcome.
package command

import (
	"context"
	"log/slog"
	"time"
)

// Command is a single state-changing operation producing a T.
type Command[T any] interface {
	// Name identifies the command in logs, e.g. "apikey.create".
	Name() string
	// Validate returns a validation error, or nil when Run may proceed. It must not mutate state.
	Validate(ctx context.Context) error
	// Run performs the operation. It is only called after Validate succeeded.
	Run(ctx context.Context) (T, error)
}

// Execute validates cmd and, if validation passes, runs it.
func Execute[T any](ctx context.Context, logger *slog.Logger, cmd Command[T]) (T, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var zero T

	if err := cmd.Validate(ctx); err != nil {
		logger.LogAttrs(ctx, slog.LevelInfo, "command rejected",
			slog.String("command", cmd.Name()),
			slog.String("reason", err.Error()),
		)
		return zero, err
	}

	start := time.Now()
	out, err := cmd.Run(ctx)
	if err != nil {
		logger.LogAttrs(ctx, slog.LevelError, "command failed",
			slog.String("command", cmd.Name()),
			slog.Duration("duration", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return zero, err
	}

	logger.LogAttrs(ctx, slog.LevelDebug, "command completed",
		slog.String("command", cmd.Name()),
		slog.Duration("duration", time.Since(start)),
	)
	return out, nil
}

// Rule is one validation check. Rules are evaluated in order and the first failure wins.
type Rule func(ctx context.Context) error

// Check runs rules in order and returns the first error.
func Check(ctx context.Context, rules ...Rule) error {
	for _, r := range rules {
		if err := r(ctx); err != nil {
			return err
		}
	}
	return nil
}

package tvremote

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// CleanupResult reports the outcome of a best-effort cleanup step.
type CleanupResult struct {
	Step    string
	Err     error
	Elapsed time.Duration
}

// OK reports whether the step completed without error.
func (r CleanupResult) OK() bool { return r.Err == nil }

// BestEffort runs fn and converts any error or panic into a CleanupResult.
// The result is logged and never propagated.
func BestEffort(ctx context.Context, log zerolog.Logger, step string, fn func(context.Context) error) (result CleanupResult) {
	start := time.Now()
	result.Step = step

	defer func() {
		if r := recover(); r != nil {
			result.Err = fmt.Errorf("panic: %v", r)
		}
		result.Elapsed = time.Since(start)
		if result.Err != nil {
			log.Warn().Err(result.Err).Str("step", step).Dur("elapsed", result.Elapsed).Msg("cleanup step failed")
			return
		}
		log.Debug().Str("step", step).Dur("elapsed", result.Elapsed).Msg("cleanup step done")
	}()

	result.Err = fn(ctx)
	return result
}

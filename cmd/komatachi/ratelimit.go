package main

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/linustan/komatachi/pkg/turn"
)

// defaultCallsPerSecond bounds outbound model calls. A turn can issue up to
// 25 model calls (pkg/turn's own per-turn cap) plus up to two compaction
// summarizer calls; this keeps a pathological turn from hammering the API
// faster than a human-paced conversation ever would.
const defaultCallsPerSecond = 2

// rateLimited wraps a turn.ModelFunc with a token-bucket limiter. Wait
// blocks until a token is available or ctx is cancelled, so cancellation
// still propagates through the same path as any other model-call error.
func rateLimited(inner turn.ModelFunc, limiter *rate.Limiter) turn.ModelFunc {
	return func(ctx context.Context, req turn.ModelRequest) (turn.ModelResponse, error) {
		if err := limiter.Wait(ctx); err != nil {
			return turn.ModelResponse{}, err
		}
		return inner(ctx, req)
	}
}

func newDefaultLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Limit(defaultCallsPerSecond), defaultCallsPerSecond)
}

package gptbatch

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// admission throttles attempts by request rate and prompt-token rate. A nil
// limiter inside admits immediately.
type admission struct {
	requests *rate.Limiter
	tokens   *rate.Limiter
}

func newAdmission(requestsPerSecond float64, tokensPerMinute int) *admission {
	a := &admission{}
	if requestsPerSecond > 0 {
		a.requests = rate.NewLimiter(rate.Limit(requestsPerSecond), 1)
	}
	if tokensPerMinute > 0 {
		a.tokens = rate.NewLimiter(rate.Limit(float64(tokensPerMinute)/60), tokensPerMinute)
	}
	return a
}

func (a *admission) countsTokens() bool {
	return a.tokens != nil
}

// wait blocks until one request costing tokens may go out, or ctx ends.
func (a *admission) wait(ctx context.Context, tokens int) error {
	if a.requests != nil {
		if err := a.requests.Wait(ctx); err != nil {
			return limiterError(ctx, err)
		}
	}
	if a.tokens != nil {
		// WaitN rejects n above the burst; a prompt that large waits for a full bucket.
		if tokens > a.tokens.Burst() {
			tokens = a.tokens.Burst()
		}
		if err := a.tokens.WaitN(ctx, tokens); err != nil {
			return limiterError(ctx, err)
		}
	}
	return nil
}

// limiterError makes a limiter failure read as the context error behind it.
// The limiter refuses up front when the next token falls after ctx's
// deadline, before ctx itself has expired.
func limiterError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
}

package gptbatch

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

// tracker renders batch progress on an optional mpb container. Every method
// is safe to call when no container was configured.
type tracker struct {
	progress *mpb.Progress
	overall  *mpb.Bar
	total    atomic.Int64
}

func newTracker(progress *mpb.Progress, totalTokens int64) *tracker {
	t := &tracker{progress: progress}
	t.total.Store(totalTokens)
	if progress == nil {
		return t
	}
	// Add a high priority progress bar to track overall completion
	t.overall = progress.AddBar(totalTokens,
		mpb.BarPriority(-1),
		mpb.PrependDecorators(
			decor.Name("Overall: "),
			decor.CountersNoUnit(" (%d/%d)"),
		),
		mpb.AppendDecorators(
			decor.OnComplete(
				decor.AverageETA(decor.ET_STYLE_GO, decor.WCSyncWidth), "completed",
			),
		),
	)
	return t
}

// grow raises the overall total for work arriving after the bar was created.
func (t *tracker) grow(tokens int64) {
	if t.overall == nil {
		return
	}
	t.overall.SetTotal(t.total.Add(tokens), false)
}

func (t *tracker) completed(tokens int64) {
	if t.overall != nil {
		t.overall.IncrInt64(tokens)
	}
}

func (t *tracker) finish() {
	if t.overall != nil {
		t.overall.Abort(true)
	}
}

// retrying shows a bar that fills over the backoff delay and removes itself.
// It never blocks the caller.
func (t *tracker) retrying(ctx context.Context, name string, err error, delay time.Duration) {
	if t.progress == nil {
		return
	}

	barName := name + " Retry"
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.Type != "" {
		barName = barName + " " + apiErr.Type
	}

	//We are backed off for time.Duration.
	//Render a 'retrying bar' that completes with duration is up.
	retryBar := t.progress.AddBar(int64(delay),
		mpb.PrependDecorators(
			decor.Name(barName),
		),
		mpb.AppendDecorators(
			decor.OnComplete(
				decor.AverageETA(decor.ET_STYLE_GO, decor.WCSyncWidth), "retrying",
			),
		),
		mpb.BarRemoveOnComplete(),
	)

	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		startTime := time.Now()
		for {
			select {
			case <-ctx.Done():
				retryBar.Abort(true)
				return
			case <-ticker.C:
				elapsed := time.Since(startTime)
				if elapsed >= delay {
					retryBar.SetCurrent(int64(delay))
					return
				}
				retryBar.SetCurrent(int64(elapsed))
			}
		}
	}()
}

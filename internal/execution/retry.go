package execution

import (
	"context"
	"time"
)

// Outcome classifies one execution attempt.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRetry
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetry:
		return "retry"
	default:
		return "fatal"
	}
}

// Clock is the engine's only source of time and waiting.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SystemClock is the wall clock.
func SystemClock() Clock { return systemClock{} }

// RetryPolicy allows MaxRetries retries after the first attempt. The n-th
// retry waits BaseDelay * 2^(n-1).
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
}

func (p RetryPolicy) Delay(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	return p.BaseDelay << (retry - 1)
}

// Attempt runs attempt number n, starting at 1.
type Attempt func(ctx context.Context, n int) (Outcome, error)

// Run drives attempt until it succeeds, fails fatally or the retry budget is
// spent. onRetry is called before each backoff wait. It returns the number of
// attempts made and the last error.
func (p RetryPolicy) Run(ctx context.Context, clock Clock, onRetry func(retry int, err error), attempt Attempt) (int, error) {
	if clock == nil {
		clock = SystemClock()
	}
	maxRetries := p.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	for n := 1; ; n++ {
		outcome, err := attempt(ctx, n)
		switch outcome {
		case OutcomeSuccess:
			return n, nil
		case OutcomeFatal:
			return n, err
		}
		if n > maxRetries {
			return n, err
		}
		if onRetry != nil {
			onRetry(n, err)
		}
		if serr := clock.Sleep(ctx, p.Delay(n)); serr != nil {
			return n, serr
		}
	}
}

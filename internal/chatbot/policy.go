package chatbot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// ErrAttemptsExhausted returned when every attempt allowed by the policy failed.
var ErrAttemptsExhausted = errors.New("chatbot: attempts exhausted")

// Candidate one (api key, model) pair to try.
type Candidate struct {
	Key   string
	Model string
}

// AttemptPolicy bounds how many calls are made and for how long.
type AttemptPolicy struct {
	// MaxAttempts total calls across all candidates; <= 0 means one per candidate.
	// Fewer attempts than candidates leaves the tail untried, more cycles back to the first.
	MaxAttempts int
	MaxElapsed  time.Duration
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // fraction of the delay, 0..1

	timer backoff.Timer
	now   func() time.Time
}

func DefaultAttemptPolicy() AttemptPolicy {
	return AttemptPolicy{
		MaxAttempts: 4,
		MaxElapsed:  20 * time.Second,
		BaseDelay:   250 * time.Millisecond,
		MaxDelay:    2 * time.Second,
		Jitter:      0.2,
	}
}

type clockFunc func() time.Time

func (f clockFunc) Now() time.Time { return f() }

// backOff exponential schedule: BaseDelay doubling up to MaxDelay, +/- Jitter,
// stopping once MaxElapsed has passed.
func (p AttemptPolicy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BaseDelay
	b.MaxInterval = p.MaxDelay
	if b.MaxInterval <= 0 {
		b.MaxInterval = time.Hour
	}
	b.Multiplier = 2
	b.RandomizationFactor = p.Jitter
	b.MaxElapsedTime = p.MaxElapsed
	if p.now != nil {
		b.Clock = clockFunc(p.now)
	}
	b.Reset()
	return b
}

// Run calls fn with candidates in order until one succeeds.
// It stops after MaxAttempts calls or once MaxElapsed has passed, whichever comes first;
// the last error is wrapped in ErrAttemptsExhausted.
func (p AttemptPolicy) Run(ctx context.Context, candidates []Candidate, fn func(context.Context, Candidate) (string, error)) (string, error) {
	if len(candidates) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrAttemptsExhausted)
	}
	max := p.MaxAttempts
	if max <= 0 {
		max = len(candidates)
	}
	if p.MaxElapsed > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.MaxElapsed)
		defer cancel()
	}

	var (
		lastErr  error
		attempts int
	)
	b := backoff.WithContext(backoff.WithMaxRetries(p.backOff(), uint64(max-1)), ctx)
	out, err := backoff.RetryNotifyWithTimerAndData(func() (string, error) {
		c := candidates[attempts%len(candidates)]
		attempts++
		out, err := fn(ctx, c)
		if err != nil {
			lastErr = err
		}
		return out, err
	}, b, nil, p.timer)
	if err == nil {
		return out, nil
	}
	if lastErr == nil {
		lastErr = err
	}
	return "", fmt.Errorf("%w after %d attempt(s): %w", ErrAttemptsExhausted, attempts, lastErr)
}

// Candidates expands keys × models, keys outermost.
func Candidates(keys, models []string) []Candidate {
	out := make([]Candidate, 0, len(keys)*len(models))
	for _, k := range keys {
		if k == "" {
			continue
		}
		for _, m := range models {
			if m == "" {
				continue
			}
			out = append(out, Candidate{Key: k, Model: m})
		}
	}
	return out
}

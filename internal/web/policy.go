package web

import (
	"context"
	"time"
)

const (
	MaxAttempts      = 10
	DefaultBaseDelay = 10 * time.Second
	DefaultTimeout   = 40 * time.Second
)

// Policy decides how often and how patiently a request is repeated.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Sleep waits between attempts; tests swap it for a recorder.
	Sleep func(ctx context.Context, d time.Duration) error
}

func DefaultPolicy() Policy {
	return Policy{MaxAttempts: MaxAttempts, BaseDelay: DefaultBaseDelay}
}

// Attempts is the effective attempt budget, never above MaxAttempts.
func (p Policy) Attempts() int {
	if p.MaxAttempts <= 0 || p.MaxAttempts > MaxAttempts {
		return MaxAttempts
	}
	return p.MaxAttempts
}

// Backoff is the wait after the given zero-based attempt failed:
// 2^(attempt+1) seconds on top of the base delay.
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > MaxAttempts {
		attempt = MaxAttempts
	}
	base := p.BaseDelay
	if base < 0 {
		base = 0
	}
	return time.Duration(1<<(attempt+1))*time.Second + base
}

// Wait sleeps for d or until ctx is done.
func (p Policy) Wait(ctx context.Context, d time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, d)
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

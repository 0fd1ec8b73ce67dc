package core

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

// ErrTooManyDecodes is returned when every decode slot stays busy for the
// whole wait. Clients should retry after a short delay.
var ErrTooManyDecodes = errors.New("too many concurrent uploads, please try again later")

const (
	// DefaultMaxConcurrentDecodes is the default number of decode slots.
	DefaultMaxConcurrentDecodes = 5

	// DefaultMaxWaitTime is how long Acquire waits for a slot.
	DefaultMaxWaitTime = 30 * time.Second

	drainPoll = 25 * time.Millisecond
)

// DecodeLimiter hands out a fixed number of decode slots. Workbook decoding
// holds the whole file in memory, so parallel loads share the slots.
type DecodeLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
	active  atomic.Int32
}

// NewDecodeLimiter allows at most maxConcurrent simultaneous decodes.
// Non-positive arguments fall back to the defaults.
func NewDecodeLimiter(maxConcurrent int, maxWait time.Duration) *DecodeLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentDecodes
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &DecodeLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot, waiting up to the limiter's max wait. It returns
// ctx.Err() when ctx ends first and ErrTooManyDecodes when the wait runs
// out. Every successful Acquire must be paired with Release.
func (l *DecodeLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		l.active.Add(1)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrTooManyDecodes
	}
}

// Release frees a slot taken by Acquire.
func (l *DecodeLimiter) Release() {
	l.active.Add(-1)
	<-l.slots
}

// WaitForDrain blocks until no decode holds a slot or ctx is done.
func (l *DecodeLimiter) WaitForDrain(ctx context.Context) error {
	if l.active.Load() == 0 {
		return nil
	}

	ticker := time.NewTicker(drainPoll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if l.active.Load() == 0 {
				return nil
			}
		}
	}
}

// LimiterStatus is a snapshot of the limiter for the health endpoint.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"maxConcurrent"`
}

func (l *DecodeLimiter) Status() LimiterStatus {
	return LimiterStatus{
		Active:        int(l.active.Load()),
		Available:     cap(l.slots) - len(l.slots),
		MaxConcurrent: cap(l.slots),
	}
}

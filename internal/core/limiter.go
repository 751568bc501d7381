package core

// limiter.go bounds the number of top-level operations running at once.
//
// Each InitializeTenantDatabase, SeedWorkspaceData and ApplyWorkspaceConfig
// call holds one slot for its whole run. When all slots are taken, callers
// wait up to maxWait before failing with ErrTooManyOperations. WaitForDrain
// is used on shutdown so in-flight operations reach a terminal status.

import (
	"context"
	"errors"
	"time"
)

// ErrTooManyOperations is returned when no operation slot frees up in time.
var ErrTooManyOperations = errors.New("too many concurrent operations, please try again later")

// DefaultMaxConcurrentOperations is the default limit for parallel operations.
const DefaultMaxConcurrentOperations = 8

// DefaultMaxWaitTime is how long to wait for a slot before rejecting.
const DefaultMaxWaitTime = 30 * time.Second

// OperationLimiter is a semaphore over top-level operations. A held slot is
// one element in the channel.
type OperationLimiter struct {
	slots   chan struct{}
	maxWait time.Duration
}

// NewOperationLimiter creates a limiter allowing maxConcurrent simultaneous operations.
func NewOperationLimiter(maxConcurrent int, maxWait time.Duration) *OperationLimiter {
	if maxConcurrent <= 0 {
		maxConcurrent = DefaultMaxConcurrentOperations
	}
	if maxWait <= 0 {
		maxWait = DefaultMaxWaitTime
	}
	return &OperationLimiter{
		slots:   make(chan struct{}, maxConcurrent),
		maxWait: maxWait,
	}
}

// Acquire takes a slot, waiting up to maxWait.
// The caller must call Release once the operation is finished.
func (l *OperationLimiter) Acquire(ctx context.Context) error {
	timer := time.NewTimer(l.maxWait)
	defer timer.Stop()

	select {
	case l.slots <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrTooManyOperations
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees a slot taken by Acquire.
func (l *OperationLimiter) Release() {
	<-l.slots
}

// WaitForDrain blocks until no operation is running or ctx is done.
func (l *OperationLimiter) WaitForDrain(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for len(l.slots) > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
	return nil
}

// LimiterStatus is a snapshot of limiter occupancy, reported by /healthz.
type LimiterStatus struct {
	Active        int `json:"active"`
	Available     int `json:"available"`
	MaxConcurrent int `json:"max_concurrent"`
}

// Status returns the current limiter state.
func (l *OperationLimiter) Status() LimiterStatus {
	active := len(l.slots)
	return LimiterStatus{
		Active:        active,
		Available:     cap(l.slots) - active,
		MaxConcurrent: cap(l.slots),
	}
}

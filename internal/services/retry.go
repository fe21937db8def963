package services

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// retryBudget is the backoff sleep remaining for one logical fetch, shared by all of its requests.
type retryBudget struct {
	mu        sync.Mutex
	remaining time.Duration
}

func newRetryBudget(d time.Duration) *retryBudget {
	return &retryBudget{remaining: d}
}

// take reserves d and reports whether the budget covered it.
func (b *retryBudget) take(d time.Duration) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d > b.remaining {
		b.remaining = 0
		return false
	}
	b.remaining -= d
	return true
}

// budgetBackOff stops retrying once the shared budget cannot cover the next wait.
type budgetBackOff struct {
	backoff.BackOff
	budget *retryBudget
}

func (b *budgetBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop || !b.budget.take(next) {
		return backoff.Stop
	}
	return next
}

// newBackOff builds the per-request policy: exponential waits capped by max retries,
// all drawn from budget.
func (s *TautulliService) newBackOff(budget *retryBudget) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.initialInterval
	exp.MaxInterval = maxRetryInterval
	exp.MaxElapsedTime = 0

	retries := s.maxRetries
	if retries < 0 {
		retries = 0
	}
	return &budgetBackOff{
		BackOff: backoff.WithMaxRetries(exp, uint64(retries)),
		budget:  budget,
	}
}

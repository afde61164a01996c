// Copyright 2019 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package state

import (
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/juju/errors"
	"github.com/juju/loggo/v2"
	"github.com/juju/retry"
)

var logger = loggo.GetLogger("kernel.state")

const (
	// DefaultMaxRetries is how many times a transient backend fault is
	// retried after the initial attempt.
	DefaultMaxRetries = 4

	// DefaultBackoffFactor scales the delay sequence: the n-th retry
	// waits factor * 2^(n-1) seconds.
	DefaultBackoffFactor = 1.2
)

// RetryPolicy is the bounded exponential backoff applied to every
// backend call.
type RetryPolicy struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BackoffFactor is the first delay, in seconds. Each further delay
	// doubles it.
	BackoffFactor float64

	// Clock drives the waits; tests pass a testclock.
	Clock clock.Clock
}

// DefaultRetryPolicy returns the policy used when configuration does
// not override it.
func DefaultRetryPolicy(clk clock.Clock) RetryPolicy {
	return RetryPolicy{
		MaxRetries:    DefaultMaxRetries,
		BackoffFactor: DefaultBackoffFactor,
		Clock:         clk,
	}
}

func (p RetryPolicy) initialDelay() time.Duration {
	return time.Duration(p.BackoffFactor * float64(time.Second))
}

// call runs fn under the policy. Errors not marked Retryable are fatal
// and pass through unchanged, so NotFound and AlreadyExists keep their
// kinds. When the budget runs out the last backend error is folded
// into a RetryExhausted.
func (p RetryPolicy) call(op string, fn func() error) error {
	err := retry.Call(retry.CallArgs{
		Func: fn,
		IsFatalError: func(err error) bool {
			return !IsRetryable(err)
		},
		NotifyFunc: func(err error, attempt int) {
			logger.Warningf("attempt %d to %s failed: %v", attempt, op, err)
		},
		Attempts:    p.MaxRetries + 1,
		Delay:       p.initialDelay(),
		BackoffFunc: retry.DoubleDelay,
		Clock:       p.Clock,
	})
	if retry.IsAttemptsExceeded(err) {
		return fmt.Errorf("%s gave up after %d attempts: %v%w",
			op, p.MaxRetries+1, retry.LastError(err), errors.Hide(RetryExhausted))
	}
	return errors.Trace(err)
}

// retryingDataStore decorates a DataStore with the retry policy.
type retryingDataStore[M any] struct {
	store  DataStore[M]
	policy RetryPolicy
	kind   string
}

// NewRetryingDataStore wraps store so that every call is retried
// according to policy.
func NewRetryingDataStore[M any](kind string, store DataStore[M], policy RetryPolicy) DataStore[M] {
	return &retryingDataStore[M]{store: store, policy: policy, kind: kind}
}

func (s *retryingDataStore[M]) Add(manifest M) error {
	return errors.Trace(s.policy.call("add "+s.kind, func() error {
		return s.store.Add(manifest)
	}))
}

func (s *retryingDataStore[M]) Update(manifest M) error {
	return errors.Trace(s.policy.call("update "+s.kind, func() error {
		return s.store.Update(manifest)
	}))
}

func (s *retryingDataStore[M]) Fetch(id string) (M, error) {
	var out M
	err := s.policy.call("fetch "+s.kind, func() error {
		var err error
		out, err = s.store.Fetch(id)
		return err
	})
	return out, errors.Trace(err)
}

func (s *retryingDataStore[M]) Delete(id string) error {
	return errors.Trace(s.policy.call("delete "+s.kind, func() error {
		return s.store.Delete(id)
	}))
}

// retryingChangesStore decorates a ChangesDataStore with the retry
// policy.
type retryingChangesStore struct {
	store  ChangesDataStore
	policy RetryPolicy
}

// NewRetryingChangesStore wraps store so that every call is retried
// according to policy.
func NewRetryingChangesStore(store ChangesDataStore, policy RetryPolicy) ChangesDataStore {
	return &retryingChangesStore{store: store, policy: policy}
}

func (s *retryingChangesStore) Add(change Change) error {
	return errors.Trace(s.policy.call("add change", func() error {
		return s.store.Add(change)
	}))
}

func (s *retryingChangesStore) Filter(since string, limit int) ([]Change, error) {
	var out []Change
	err := s.policy.call("filter changes", func() error {
		var err error
		out, err = s.store.Filter(since, limit)
		return err
	})
	return out, errors.Trace(err)
}

package resilient

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Layer is one retry rule of a Policy.
type Layer struct {
	Name     string
	MaxTries uint64
	// Retry selects the errors this layer handles; others pass through untouched.
	Retry func(error) bool
	// GiveUp stops retrying a handled error immediately. Optional.
	GiveUp     func(error) bool
	NewBackOff func() backoff.BackOff
}

// Policy is an ordered list of retry layers, outermost first, wrapped around
// a single attempt. Each layer retries the whole stack beneath it, so attempt
// budgets multiply.
type Policy struct {
	Layers []Layer
}

// Notify is called before each retry wait.
type Notify func(layer string, err error, wait time.Duration)

// ExponentialBackOff is the schedule used by DefaultPolicy. Only the attempt
// budget of a layer ends it, never elapsed time.
func ExponentialBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// DefaultPolicy builds the standard stack:
//
//	transport: up to 6 tries on transport errors and 5xx, giving up on 4xx
//	rate_limit: up to 24 tries while the local limiter rejects the call
//	empty: up to 8 tries on empty responses
//
// A nil newBackOff uses ExponentialBackOff.
func DefaultPolicy(newBackOff func() backoff.BackOff) Policy {
	if newBackOff == nil {
		newBackOff = ExponentialBackOff
	}
	return Policy{Layers: []Layer{
		{
			Name:     "transport",
			MaxTries: 6,
			Retry: func(err error) bool {
				return !errors.Is(err, ErrRateLimited) && !errors.Is(err, ErrEmptyResponse)
			},
			GiveUp:     IsClientError,
			NewBackOff: newBackOff,
		},
		{
			Name:       "rate_limit",
			MaxTries:   24,
			Retry:      func(err error) bool { return errors.Is(err, ErrRateLimited) },
			NewBackOff: newBackOff,
		},
		{
			Name:       "empty",
			MaxTries:   8,
			Retry:      func(err error) bool { return errors.Is(err, ErrEmptyResponse) },
			NewBackOff: newBackOff,
		},
	}}
}

// Run executes op under every layer. After a layer exhausts its budget the
// last error from op is returned as is.
func (p Policy) Run(ctx context.Context, op func(context.Context) error, notify Notify) error {
	call := func() error { return op(ctx) }
	for i := len(p.Layers) - 1; i >= 0; i-- {
		call = p.Layers[i].wrap(ctx, call, notify)
	}
	return call()
}

func (l Layer) wrap(ctx context.Context, next func() error, notify Notify) func() error {
	return func() error {
		var retries uint64
		if l.MaxTries > 1 {
			retries = l.MaxTries - 1
		}
		b := backoff.WithContext(backoff.WithMaxRetries(l.NewBackOff(), retries), ctx)
		return backoff.RetryNotify(func() error {
			err := next()
			if err == nil {
				return nil
			}
			if !l.Retry(err) || (l.GiveUp != nil && l.GiveUp(err)) {
				return backoff.Permanent(err)
			}
			return err
		}, b, func(err error, wait time.Duration) {
			if notify != nil {
				notify(l.Name, err, wait)
			}
		})
	}
}

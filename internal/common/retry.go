// Copyright © 2017 Microsoft <wastore@microsoft.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package common

import (
	"context"
	"time"

	retrygo "github.com/avast/retry-go"
)

// Classification tells RetryWithPolicy what to do after an attempt failed.
type Classification int

const (
	// Fatal means: stop retrying, surface the error as-is.
	Fatal Classification = iota
	// Retryable means: sleep and try again, counting against the budget.
	Retryable
	// RetryableFree means: sleep and try again, but do NOT count against
	// the budget (used for HTTP 503 + Retry-After).
	RetryableFree
)

// RetryPolicy centralizes the scattered retry/backoff logic the design
// notes call out: one combinator, parameterized by a classifier, used by
// the API client, the chunk upload path, and close polling.
type RetryPolicy struct {
	MaxTries  uint
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Classify  func(err error) (Classification, time.Duration) // second return: delay override (0 = use default backoff)
}

// ErrStopRetrying wraps a Fatal-classified error so retry-go does not retry it.
type fatalError struct{ err error }

func (f *fatalError) Error() string { return f.err.Error() }
func (f *fatalError) Unwrap() error { return f.err }

// Do runs fn, retrying per the policy. fn should return a fresh error each
// attempt; Do classifies it via policy.Classify to decide whether to retry,
// sleep for a free/counted delay, or give up.
func (p RetryPolicy) Do(ctx context.Context, fn func(attempt uint) error) error {
	tries := uint(0)
	var lastErr error

	err := retrygo.Do(
		func() error {
			for {
				tries++
				err := fn(tries)
				if err == nil {
					return nil
				}
				lastErr = err

				class, delayOverride := p.Classify(err)
				switch class {
				case Fatal:
					return retrygo.Unrecoverable(err)
				case RetryableFree:
					// Does not count against the budget: sleep and call fn
					// again here, without handing the error to retry-go.
					tries--
					if delayOverride <= 0 {
						delayOverride = p.BaseDelay
					}
					sleep(ctx, delayOverride)
					if ctx.Err() != nil {
						return retrygo.Unrecoverable(err)
					}
					continue
				default: // Retryable
					return err
				}
			}
		},
		retrygo.Attempts(p.MaxTries+1), // +1: Attempts counts the first try too
		retrygo.Context(ctx),
		retrygo.DelayType(func(n uint, _ error, _ *retrygo.Config) time.Duration {
			d := p.BaseDelay * (1 << n)
			if p.MaxDelay > 0 && d > p.MaxDelay {
				d = p.MaxDelay
			}
			return d
		}),
		retrygo.LastErrorOnly(true),
	)
	if err != nil {
		if lastErr != nil {
			return lastErr
		}
		return err
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

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

// Package memgovernor samples process RSS against a limit computed from
// system-available memory, and backs off the Read stage when the process
// is close to that limit.
package memgovernor

import (
	"context"
	"sync"
	"time"
)

// occupancyFraction is the fraction of available memory the governor
// allows the process to climb to before it starts throttling.
const occupancyFraction = 0.8

const (
	minBackoff = 2 * time.Second
	maxBackoff = 16 * time.Second
)

// Governor holds an RSS budget: rssLimit starts at 0.8 * available memory
// and is recomputed (never only shrunk) on every backoff, so a machine
// that frees memory mid-run raises the limit back up.
type Governor struct {
	mu       sync.Mutex
	rssLimit int64
}

// New measures available memory once at startup and sets the initial
// limit, once, before any Read worker starts.
func New() (*Governor, error) {
	avail, err := availableMemoryBytes()
	if err != nil {
		return nil, err
	}
	return &Governor{rssLimit: int64(float64(avail) * occupancyFraction)}, nil
}

// Limit reports the current RSS limit in bytes.
func (g *Governor) Limit() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rssLimit
}

// recomputeLimit re-samples available memory and raises rssLimit if the
// system now has more free memory than the limit implies -- it never
// lowers the limit mid-run, only raises it, matching "re-sample M on each
// back-off and raise the limit if the system itself has more free memory
// than before."
func (g *Governor) recomputeLimit() error {
	avail, err := availableMemoryBytes()
	if err != nil {
		return err
	}
	candidate := int64(float64(avail) * occupancyFraction)

	g.mu.Lock()
	defer g.mu.Unlock()
	if candidate > g.rssLimit {
		g.rssLimit = candidate
	}
	return nil
}

// ThrottleIfNeeded samples current RSS; if it exceeds the limit, it sleeps
// 2s, 4s, 8s, ... up to 16s, doubling on every iteration still over the
// limit, re-sampling both RSS and the limit each time. It returns when a
// sample comes back under the limit, or ctx is cancelled.
//
// The RSS sample itself is serialized by g.mu (some platforms' RSS query
// is not safe for concurrent callers); the sleep happens outside the lock
// so other Read workers can still sample while this one backs off.
func (g *Governor) ThrottleIfNeeded(ctx context.Context) error {
	backoff := minBackoff
	for {
		over, err := g.isOverLimit()
		if err != nil {
			return err
		}
		if !over {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		if err := g.recomputeLimit(); err != nil {
			return err
		}
		if backoff < maxBackoff {
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	}
}

func (g *Governor) isOverLimit() (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rss, err := currentRSSBytes()
	if err != nil {
		return false, err
	}
	return rss > g.rssLimit, nil
}

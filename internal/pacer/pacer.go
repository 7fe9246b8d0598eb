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

// Package pacer throttles chunk uploads to a target aggregate rate. It is
// a single-direction adaptation of azcopy's ste.tokenBucketPacer: UA only
// ever paces uploads (never a concurrent upload+download mix), so the
// request-admission machinery azcopy needs for S2S transfers has no
// analogue here and is not reproduced.
package pacer

import (
	"context"
	"errors"
	"sync/atomic"
	"time"
)

const (
	bucketFillInterval    = 100 * time.Millisecond
	bucketDrainRetryBase  = 333 * time.Millisecond
	maxSecondsOverpopulate = 2.5
)

// Pacer controls the aggregate upload rate across every worker sharing it.
// A target of 0 means unthrottled: RequestTrafficAllocation returns
// immediately and merely tracks the cumulative byte count.
type Pacer struct {
	bucket       int64 // atomic
	target       int64 // atomic, bytes/sec; 0 == unthrottled
	grandTotal   int64 // atomic
	waitCount    int64 // atomic
	expectedSize int64
	done         chan struct{}
}

// New builds a Pacer capped at targetBytesPerSecond (0 disables throttling)
// sized for uploads around expectedChunkBytes. cmd/ua builds one Pacer
// from the whole --throttle value and shares it across all upload
// workers, so the cap applies to their combined rate; no per-worker
// share is computed.
func New(targetBytesPerSecond, expectedChunkBytes int64) *Pacer {
	p := &Pacer{
		bucket:       targetBytesPerSecond / 4,
		target:       targetBytesPerSecond,
		expectedSize: expectedChunkBytes,
		done:         make(chan struct{}),
	}
	go p.fill()
	return p
}

// RequestTrafficAllocation blocks the caller until byteCount bytes are
// available in the bucket, or ctx is cancelled.
func (p *Pacer) RequestTrafficAllocation(ctx context.Context, byteCount int64) error {
	target := atomic.LoadInt64(&p.target)
	if target == 0 {
		atomic.AddInt64(&p.grandTotal, byteCount)
		return nil
	}
	if target < byteCount {
		return errors.New("pacer: requested allocation exceeds the configured throttle; lower --chunk-size or raise --throttle")
	}

	for atomic.AddInt64(&p.bucket, -byteCount) < 0 {
		atomic.AddInt64(&p.bucket, byteCount)

		n := atomic.AddInt64(&p.waitCount, 1)
		wait := time.Duration(float64(bucketDrainRetryBase) * (float64(n%10) + 5) / 10)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if atomic.LoadInt64(&p.target) == 0 {
			atomic.AddInt64(&p.grandTotal, byteCount)
			return nil
		}
	}
	atomic.AddInt64(&p.grandTotal, byteCount)
	return nil
}

// SetTargetBytesPerSecond updates the throttle, taking effect on the next
// fill tick.
func (p *Pacer) SetTargetBytesPerSecond(v int64) {
	atomic.StoreInt64(&p.target, v)
}

// TotalTraffic reports the cumulative bytes issued, for the CLI's final
// throughput summary.
func (p *Pacer) TotalTraffic() int64 { return atomic.LoadInt64(&p.grandTotal) }

// Close stops the fill goroutine.
func (p *Pacer) Close() { close(p.done) }

func (p *Pacer) fill() {
	last := time.Now()
	for {
		select {
		case <-p.done:
			return
		default:
		}
		time.Sleep(bucketFillInterval)

		target := atomic.LoadInt64(&p.target)
		elapsed := time.Since(last).Seconds()
		released := int64(float64(target) * elapsed)
		newCount := atomic.AddInt64(&p.bucket, released)

		maxUnsent := int64(float64(target) * maxSecondsOverpopulate)
		if maxUnsent < p.expectedSize {
			maxUnsent = p.expectedSize
		}
		if newCount > maxUnsent {
			atomic.StoreInt64(&p.bucket, maxUnsent)
		}
		last = time.Now()
	}
}

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

// Package model holds the plain value types shared by the pipeline, the
// resume logic and the verifier: File and Chunk. Chunks flow through
// common.BoundedQueue by value (carrying only small fields plus a byte slice); the
// owning File is referenced by index, never by pointer that could outlive
// it, per ownership rules.
package model

import (
	"fmt"
	"sync"
)

// Chunk is a contiguous byte range of one File, identified by
// (FileIndex, PartIndex). PartIndex is 1-based, matching the platform's
// part-numbering contract.
type Chunk struct {
	FileIndex int
	PartIndex int // >= 1

	Start int64
	End   int64 // [Start, End)
	Last  bool

	ToCompress bool

	Data       []byte
	RespBody   string
	TriesLeft  int
	MaxTries   int // TriesLeft's starting value, so retry backoff can derive the attempt number

	HostName   string
	ResolvedIP string
}

// Len returns the number of bytes this chunk spans in the local file
// (before compression, if any).
func (c Chunk) Len() int64 { return c.End - c.Start }

// Clear releases Data and RespBody immediately after a successful upload,
// or before a retry forces a re-read -- Chunk lifecycle rule.
func (c *Chunk) Clear() {
	c.Data = nil
	c.RespBody = ""
}

func (c Chunk) String() string {
	return fmt.Sprintf("[file=%d part=%d %d-%d tries=%d size=%d compress=%v]",
		c.FileIndex, c.PartIndex, c.Start, c.End, c.TriesLeft, len(c.Data), c.ToCompress)
}

// InstantaneousSample is one (timestamp-seconds, bytes) entry in the
// rolling throughput window used to estimate instantaneous upload speed.
type InstantaneousSample struct {
	UnixSeconds int64
	Bytes       int64
}

// ThroughputWindow is the bounded queue of (timestamp, bytes) pairs (size
// <= 5000) used to compute short-window throughput, guarded by its own
// mutex.
type ThroughputWindow struct {
	mu       sync.Mutex
	samples  []InstantaneousSample
	sum      int64
	capacity int
}

func NewThroughputWindow(capacity int) *ThroughputWindow {
	return &ThroughputWindow{capacity: capacity}
}

// Record adds a sample, evicting the oldest one if the window is full.
func (w *ThroughputWindow) Record(unixSeconds, bytes int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) >= w.capacity {
		oldest := w.samples[0]
		w.samples = w.samples[1:]
		w.sum -= oldest.Bytes
	}
	w.samples = append(w.samples, InstantaneousSample{UnixSeconds: unixSeconds, Bytes: bytes})
	w.sum += bytes
}

// Estimate returns the instantaneous bytes-per-second estimate and whether
// the window's head is older than 90s (in which case callers should
// reset it).
func (w *ThroughputWindow) Estimate(nowUnixSeconds int64) (bytesPerSecond float64, stale bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.samples) == 0 {
		return 0, false
	}
	head := w.samples[0]
	age := nowUnixSeconds - head.UnixSeconds
	if age > 90 {
		w.samples = nil
		w.sum = 0
		return 0, true
	}
	elapsed := nowUnixSeconds - head.UnixSeconds
	if elapsed <= 0 {
		elapsed = 1
	}
	return float64(w.sum) / float64(elapsed), false
}

// Reset clears the window; called when staleness is detected.
func (w *ThroughputWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = nil
	w.sum = 0
}

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

package engine

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/dnanexus/upload-agent/internal/model"
)

// ProgressReporter prints one line per file every interval, with
// percent-complete and an instantaneous throughput estimate -- the
// streaming report original_source's progress_func produces on stderr.
type ProgressReporter struct {
	files    []*model.File
	window   *model.ThroughputWindow
	out      io.Writer
	interval time.Duration
	nowUnix  func() int64
}

// NewProgressReporter builds a reporter over files, using nowUnix as the
// clock source (injected so tests can drive it deterministically).
func NewProgressReporter(files []*model.File, out io.Writer, interval time.Duration, nowUnix func() int64) *ProgressReporter {
	return &ProgressReporter{
		files:    files,
		window:   model.NewThroughputWindow(5000),
		out:      out,
		interval: interval,
		nowUnix:  nowUnix,
	}
}

// RecordBytes feeds n newly-uploaded bytes into the rolling throughput
// window; callers call this from the upload stage's success path.
func (r *ProgressReporter) RecordBytes(n int64) {
	r.window.Record(r.nowUnix(), n)
}

// Run prints a progress line every interval until ctx is cancelled.
func (r *ProgressReporter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reportOnce()
		}
	}
}

func (r *ProgressReporter) reportOnce() {
	bps, stale := r.window.Estimate(r.nowUnix())
	if stale {
		r.window.Reset()
	}
	for _, f := range r.files {
		failed, reason := f.Failed()
		if failed {
			fmt.Fprintf(r.out, "%s: failed (%s)\n", f.LocalPath, reason)
			continue
		}
		pct := 100.0
		if f.Size > 0 {
			pct = float64(f.BytesUploaded()) / float64(f.Size) * 100.0
		}
		fmt.Fprintf(r.out, "%s: %.1f%% (%s/s)\n", f.LocalPath, pct, humanize.Bytes(uint64(bps)))
	}
}

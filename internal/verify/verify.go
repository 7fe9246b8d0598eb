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

package verify

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/dnanexus/upload-agent/internal/apiclient"
	"github.com/dnanexus/upload-agent/internal/common"
)

// Options configures a Run: how many local/remote file pairs to check and
// how many read/MD5 worker goroutines to give each stage.
type Options struct {
	ReadThreads int
	MD5Threads  int
	QueueDepth  int
}

// DefaultOptions mirrors options.cpp's defaults: a handful of worker
// threads per stage, enough to saturate disk I/O and hashing without
// holding unbounded file data in memory at once.
func DefaultOptions() Options {
	return Options{ReadThreads: 4, MD5Threads: 4, QueueDepth: 16}
}

// Result is one file pair's outcome: Identical mirrors main.cpp printing
// "identical"/"mismatch" per file, with Reason carrying the first check
// that failed when Identical is false.
type Result struct {
	LocalPath    string
	RemoteFileID string
	Identical    bool
	Reason       string
}

// Run describes every (local, remote) pair, builds their part-aligned
// chunks, and drives them through the read/MD5 pipeline to completion,
// returning one Result per input pair in the same order they were given.
func Run(ctx context.Context, client *apiclient.Client, localPaths, remoteFileIDs []string, opts Options, logger common.ILogger) ([]Result, error) {
	if logger == nil {
		logger = common.NopLogger
	}

	files := make([]*File, len(localPaths))
	for i := range localPaths {
		f, err := NewFile(ctx, client, localPaths[i], remoteFileIDs[i], i)
		if err != nil {
			return nil, err
		}
		files[i] = f
	}

	var allChunks []Chunk
	for _, f := range files {
		if mismatched, _ := f.Mismatched(); mismatched {
			continue // already known bad from init()'s sanity checks; nothing to read
		}
		allChunks = append(allChunks, f.Chunks()...)
	}

	p := NewPipeline(files, len(allChunks), opts.QueueDepth, logger)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < opts.ReadThreads; i++ {
		g.Go(func() error { return runReadStage(gctx, p) })
	}
	for i := 0; i < opts.MD5Threads; i++ {
		g.Go(func() error { return runMD5Stage(gctx, p) })
	}

	for _, c := range allChunks {
		if err := p.Enqueue(gctx, c); err != nil {
			break
		}
	}
	p.CloseInputs()

	g.Go(func() error { return RunMonitor(gctx, p, logger) })

	if err := g.Wait(); err != nil {
		return nil, err
	}

	results := make([]Result, len(files))
	for i, f := range files {
		mismatched, reason := f.Mismatched()
		results[i] = Result{
			LocalPath:    f.LocalPath,
			RemoteFileID: f.RemoteFileID,
			Identical:    !mismatched,
			Reason:       reason,
		}
	}
	return results, nil
}

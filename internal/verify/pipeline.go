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
	"fmt"
	"time"

	"github.com/dnanexus/upload-agent/internal/common"
)

const monitorInterval = time.Second

// Pipeline is the two-stage (read, MD5) bounded-queue worker pool behind
// Run, structured the same way internal/engine's three-stage pipeline is:
// a shared queue per stage, terminal queues for the three outcomes a chunk
// can reach, and a monitor loop that decides when every chunk has landed
// in one of them.
type Pipeline struct {
	files []*File

	readQueue   *common.BoundedQueue[Chunk]
	md5Queue    *common.BoundedQueue[Chunk]
	finished    *common.BoundedQueue[Chunk]
	mismatched  *common.BoundedQueue[Chunk]
	skipped     *common.BoundedQueue[Chunk]

	logger common.ILogger
	total  int
}

func NewPipeline(files []*File, totalChunks, queueCapacity int, logger common.ILogger) *Pipeline {
	if logger == nil {
		logger = common.NopLogger
	}
	return &Pipeline{
		files:      files,
		readQueue:  common.NewBoundedQueue[Chunk](queueCapacity),
		md5Queue:   common.NewBoundedQueue[Chunk](queueCapacity),
		finished:   common.NewBoundedQueue[Chunk](-1),
		mismatched: common.NewBoundedQueue[Chunk](-1),
		skipped:    common.NewBoundedQueue[Chunk](-1),
		logger:     logger,
		total:      totalChunks,
	}
}

func (p *Pipeline) Enqueue(ctx context.Context, c Chunk) error {
	return p.readQueue.Produce(ctx, c)
}

func (p *Pipeline) CloseInputs() { p.readQueue.Close() }

func (p *Pipeline) closeAll() {
	p.readQueue.Close()
	p.md5Queue.Close()
	p.finished.Close()
	p.mismatched.Close()
	p.skipped.Close()
}

func (p *Pipeline) done() bool {
	return p.finished.Len()+p.mismatched.Len()+p.skipped.Len() >= p.total
}

// FinishedCount, MismatchedCount and SkippedCount report the terminal
// queue depths once a run completes.
func (p *Pipeline) FinishedCount() int   { return p.finished.Len() }
func (p *Pipeline) MismatchedCount() int { return p.mismatched.Len() }
func (p *Pipeline) SkippedCount() int    { return p.skipped.Len() }

// runReadStage drains the read queue. A chunk belonging to a file already
// marked mismatched is routed straight to skipped without touching disk,
// mirroring main.cpp's readChunks(): once a file is known bad, there is no
// point spending I/O confirming it further.
func runReadStage(ctx context.Context, p *Pipeline) error {
	for {
		c, err := p.readQueue.Consume(ctx)
		if err != nil {
			return drainOK(err)
		}
		f := p.files[c.FileIndex]
		if mismatched, _ := f.Mismatched(); mismatched {
			if err := p.skipped.Produce(ctx, c); err != nil {
				return drainOK(err)
			}
			continue
		}
		if err := c.read(f.LocalPath); err != nil {
			f.markMismatched(err.Error())
			if err := p.skipped.Produce(ctx, c); err != nil {
				return drainOK(err)
			}
			continue
		}
		if err := p.md5Queue.Produce(ctx, c); err != nil {
			return drainOK(err)
		}
	}
}

// runMD5Stage drains the MD5 queue, computing and comparing each chunk's
// hash. The first mismatch for a file marks it mismatched; every chunk
// for that file still in flight is then skipped rather than hashed,
// mirroring main.cpp's verifyChunkMD5().
func runMD5Stage(ctx context.Context, p *Pipeline) error {
	for {
		c, err := p.md5Queue.Consume(ctx)
		if err != nil {
			return drainOK(err)
		}
		f := p.files[c.FileIndex]
		if mismatched, _ := f.Mismatched(); mismatched {
			c.clear()
			if err := p.skipped.Produce(ctx, c); err != nil {
				return drainOK(err)
			}
			continue
		}
		got := c.computeMD5()
		c.clear()
		if got != c.ExpectedMD5 {
			f.markMismatched(fmt.Sprintf("part %d: expected md5 %q, computed %q", c.PartIndex, c.ExpectedMD5, got))
			if err := p.mismatched.Produce(ctx, c); err != nil {
				return drainOK(err)
			}
			continue
		}
		if err := p.finished.Produce(ctx, c); err != nil {
			return drainOK(err)
		}
	}
}

func drainOK(err error) error {
	if err == common.ErrQueueClosed {
		return nil
	}
	return err
}

// RunMonitor polls the terminal queues every second and closes every stage
// queue once all p.total chunks have landed in one of finished/mismatched/
// skipped, the same completion rule main.cpp's monitor() thread applies.
func RunMonitor(ctx context.Context, p *Pipeline, logger common.ILogger) error {
	if logger == nil {
		logger = common.NopLogger
	}
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			p.closeAll()
			return ctx.Err()
		case <-ticker.C:
			logger.Log(common.ELogLevel.Debug(), fmt.Sprintf(
				"to read: %d  to compute md5: %d  skipped: %d  finished: %d  mismatched: %d",
				p.readQueue.Len(), p.md5Queue.Len(), p.skipped.Len(), p.finished.Len(), p.mismatched.Len()))
			if p.done() {
				p.closeAll()
				return nil
			}
		}
	}
}

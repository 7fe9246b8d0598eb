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

// Package engine implements the bounded-queue read/compress/upload pipeline
// the monitor, progress reporter, and completion/close
// repair pass.
package engine

import (
	"context"
	"os"

	"github.com/dnanexus/upload-agent/internal/common"
	"github.com/dnanexus/upload-agent/internal/model"
)

// readChunk loads [Start, End) from the local file into Data, mirroring
// original_source/src/ua/chunk.cpp's Chunk::read(): open, seek, read exactly
// len bytes, surface any failure as an IOError naming the offset.
func readChunk(localPath string, c *model.Chunk) error {
	length := c.Len()
	c.Data = make([]byte, length)
	if length == 0 {
		return nil
	}

	f, err := os.Open(localPath)
	if err != nil {
		return common.NewIOError(localPath, c.Start, "cannot open for reading: %v", err)
	}
	defer f.Close()

	if _, err := f.Seek(c.Start, 0); err != nil {
		return common.NewIOError(localPath, c.Start, "cannot seek: %v", err)
	}

	if _, err := readFull(f, c.Data); err != nil {
		return common.NewIOError(localPath, c.Start, "short read: %v", err)
	}
	return nil
}

func readFull(f *os.File, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := f.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			break
		}
	}
	return total, nil
}

// runReadStage drains the Read queue, reads each chunk's bytes, and forwards
// it to the Compress queue (or directly to the Upload queue when toCompress
// is false). Cancellation is observed only at
// queue waits, per cooperative-interruption rule.
func runReadStage(ctx context.Context, p *Pipeline) error {
	for {
		c, err := p.readQueue.Consume(ctx)
		if err != nil {
			return drainOK(err)
		}
		if p.governor != nil {
			if err := p.governor.ThrottleIfNeeded(ctx); err != nil {
				return err
			}
		}
		f := p.files[c.FileIndex]
		if err := readChunk(f.LocalPath, &c); err != nil {
			p.failChunk(c, err)
			continue
		}
		next := p.compressQueue
		if !c.ToCompress {
			next = p.uploadQueueFor(c)
		}
		if err := next.Produce(ctx, c); err != nil {
			return drainOK(err)
		}
	}
}

// drainOK treats a closed-queue error as a normal worker exit (the monitor
// closes queues once totalChunks is accounted for) while still propagating
// genuine context cancellation to errgroup.
func drainOK(err error) error {
	if err == common.ErrQueueClosed {
		return nil
	}
	return err
}

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
	"bytes"
	"context"
	"sync"

	"github.com/klauspost/compress/gzip"

	"github.com/dnanexus/upload-agent/internal/common"
	"github.com/dnanexus/upload-agent/internal/model"
)

var (
	emptyGzipOnce sync.Once
	emptyGzipRec  []byte
)

// emptyStringGzip returns the gzip encoding of the empty string, computed
// once per process, mirroring original_source/src/ua/chunk.cpp's
// get_empty_string_gzip(): used to pad an under-5MiB non-final compressed
// chunk up to the platform's minimum part size.
func emptyStringGzip() []byte {
	emptyGzipOnce.Do(func() {
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		w.Close()
		emptyGzipRec = buf.Bytes()
	})
	return emptyGzipRec
}

// compressChunk gzips c.Data in place. A non-final chunk whose compressed
// size falls under common.MinChunkSize (5MiB, the platform's minimum
// non-final part size) is padded with concatenated empty-string gzip
// records until it clears the threshold -- each record is independently
// valid gzip, so the concatenation decompresses to the same original bytes.
func compressChunk(c *model.Chunk) error {
	if len(c.Data) == 0 {
		return nil
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(c.Data); err != nil {
		return common.NewIOError("", c.Start, "gzip write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		return common.NewIOError("", c.Start, "gzip close failed: %v", err)
	}

	out := buf.Bytes()
	if !c.Last && int64(len(out)) < common.MinChunkSize {
		pad := emptyStringGzip()
		padded := make([]byte, len(out), common.MinChunkSize+int64(len(pad)))
		copy(padded, out)
		for int64(len(padded)) < common.MinChunkSize {
			padded = append(padded, pad...)
		}
		out = padded
	}
	c.Data = out
	return nil
}

// runCompressStage drains the Compress queue, compresses each chunk, and
// forwards it to the Upload queue for its worker index.
func runCompressStage(ctx context.Context, p *Pipeline) error {
	for {
		c, err := p.compressQueue.Consume(ctx)
		if err != nil {
			return drainOK(err)
		}
		if err := compressChunk(&c); err != nil {
			p.failChunk(c, err)
			continue
		}
		if err := p.uploadQueueFor(c).Produce(ctx, c); err != nil {
			return drainOK(err)
		}
	}
}

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

// Package engine implements bounded-queue pipeline: the
// read/compress/upload worker stages, the monitor and progress reporter,
// and the completion/close repair pass.
package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dnanexus/upload-agent/internal/apiclient"
	"github.com/dnanexus/upload-agent/internal/common"
	"github.com/dnanexus/upload-agent/internal/memgovernor"
	"github.com/dnanexus/upload-agent/internal/model"
)

// Pipeline owns the bounded queues chunks flow through and the File slice
// they belong to. A chunk is never shared between stages concurrently: it
// moves from queue to queue by value, and the owning *model.File (found by
// FileIndex) is the only thing stages mutate concurrently, under its own
// mutex.
type Pipeline struct {
	files []*model.File

	readQueue     *common.BoundedQueue[model.Chunk]
	compressQueue *common.BoundedQueue[model.Chunk]
	uploadQueue   *common.BoundedQueue[model.Chunk]
	finishedQueue *common.BoundedQueue[model.Chunk]
	failedQueue   *common.BoundedQueue[model.Chunk]

	client   *apiclient.Client
	pacer    Pacer
	logger   common.ILogger
	dns      *DNSResolver
	noRR     bool // skip DNS resolution of upload hosts; no CLI flag sets it
	governor *memgovernor.Governor
	total    int
}

// Pacer is the throttle interface the upload stage consults before each
// chunk PUT, satisfied by internal/pacer.Pacer. Declared here (rather than
// imported) to keep internal/engine from depending on internal/pacer's
// concrete type, mirroring azcopy's ste.pacer usage through an interface.
type Pacer interface {
	RequestTrafficAllocation(ctx context.Context, byteCount int64) error
}

// NewPipeline builds a Pipeline sized for totalChunks items across all
// files, with per-stage queue capacity queueCapacity (a small multiple of
// the worker-pool size works well, so a slow stage applies backpressure
// instead of buffering unbounded memory).
func NewPipeline(files []*model.File, totalChunks, queueCapacity int, client *apiclient.Client, pacer Pacer, dns *DNSResolver, noRoundRobinDNS bool, governor *memgovernor.Governor, logger common.ILogger) *Pipeline {
	return &Pipeline{
		files:         files,
		readQueue:     common.NewBoundedQueue[model.Chunk](queueCapacity),
		compressQueue: common.NewBoundedQueue[model.Chunk](queueCapacity),
		uploadQueue:   common.NewBoundedQueue[model.Chunk](queueCapacity),
		finishedQueue: common.NewBoundedQueue[model.Chunk](-1),
		failedQueue:   common.NewBoundedQueue[model.Chunk](-1),
		client:        client,
		pacer:         pacer,
		dns:           dns,
		noRR:          noRoundRobinDNS,
		governor:      governor,
		logger:        logger,
		total:         totalChunks,
	}
}

// Enqueue seeds the Read queue with a chunk still needing its bytes
// loaded from disk. Called once per pending part at startup ("parts
// already complete on resume are never re-enqueued").
func (p *Pipeline) Enqueue(ctx context.Context, c model.Chunk) error {
	return p.readQueue.Produce(ctx, c)
}

// CloseInputs closes the Read queue once every chunk for this run has been
// enqueued, letting idle Read-stage workers drain out.
func (p *Pipeline) CloseInputs() { p.readQueue.Close() }

// uploadQueueFor returns the queue a chunk should join once it has its
// final (possibly compressed) bytes. Every chunk shares one Upload queue;
// the worker pool's size (not per-chunk routing) is what bounds upload
// concurrency, matching azcopy's single shared chunk channel per job.
func (p *Pipeline) uploadQueueFor(c model.Chunk) *common.BoundedQueue[model.Chunk] {
	return p.uploadQueue
}

// failChunk marks c's owning File permanently failed and accounts for it
// on the failed queue so the monitor's completion check
// (len(finished)+len(failed) == total) still terminates. It never blocks:
// the failed queue is unbounded, and a stuck accounting push would wedge
// every stage behind it.
func (p *Pipeline) failChunk(c model.Chunk, err error) {
	c.Clear()
	f := p.files[c.FileIndex]
	f.MarkFailed(err.Error())
	p.logger.Log(common.ELogLevel.Error(), fmt.Sprintf("file %s: part %d failed permanently: %v", f.LocalPath, c.PartIndex, err))
	_ = p.failedQueue.Produce(context.Background(), c)
}

// requeueForRetry sends c back to the Read queue so its bytes are
// re-read (compression and signed URLs are not reusable across retries)
// after a transient upload failure. The caller has
// already decremented TriesLeft and slept the backoff interval.
func (p *Pipeline) requeueForRetry(ctx context.Context, c model.Chunk) error {
	c.Clear()
	return p.readQueue.Produce(ctx, c)
}

// finishChunk credits the owning File and accounts for c on the finished
// queue.
func (p *Pipeline) finishChunk(c model.Chunk) {
	f := p.files[c.FileIndex]
	f.AddBytesUploaded(c.Len())
	_ = p.finishedQueue.Produce(context.Background(), c)
}

// Done reports whether every chunk in this run has either finished or
// failed permanently -- the monitor's termination condition.
func (p *Pipeline) Done() bool {
	return p.finishedQueue.Len()+p.failedQueue.Len() >= p.total
}

// FailedCount and FinishedCount back the CLI's end-of-run summary.
func (p *Pipeline) FailedCount() int   { return p.failedQueue.Len() }
func (p *Pipeline) FinishedCount() int { return p.finishedQueue.Len() }

// QueueDepths reports the instantaneous depth of each stage queue, used
// by the monitor's periodic log line.
type QueueDepths struct {
	Read, Compress, Upload, Finished, Failed int
}

func (p *Pipeline) QueueDepths() QueueDepths {
	return QueueDepths{
		Read:     p.readQueue.Len(),
		Compress: p.compressQueue.Len(),
		Upload:   p.uploadQueue.Len(),
		Finished: p.finishedQueue.Len(),
		Failed:   p.failedQueue.Len(),
	}
}

// CloseStageQueues closes every downstream queue once the monitor has
// observed completion, waking any worker still parked in Consume.
func (p *Pipeline) CloseStageQueues() {
	p.compressQueue.Close()
	p.uploadQueue.Close()
}

const monitorInterval = time.Second

// Run spawns readThreads/compressThreads/uploadThreads workers for each
// stage plus the monitor, and blocks until every chunk enqueued before the
// caller calls p.CloseInputs has either finished or failed permanently.
// Callers enqueue chunks and call CloseInputs concurrently with Run, the
// same arrangement exercised by TestPipelineEndToEndSingleChunk.
func Run(ctx context.Context, p *Pipeline, readThreads, compressThreads, uploadThreads int, logger common.ILogger) error {
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < readThreads; i++ {
		g.Go(func() error { return runReadStage(gctx, p) })
	}
	for i := 0; i < compressThreads; i++ {
		g.Go(func() error { return runCompressStage(gctx, p) })
	}
	for i := 0; i < uploadThreads; i++ {
		g.Go(func() error { return runUploadStage(gctx, p) })
	}
	g.Go(func() error { return RunMonitor(gctx, p, logger) })
	return g.Wait()
}

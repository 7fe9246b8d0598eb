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
	"time"

	"github.com/dnanexus/upload-agent/internal/apiclient"
	"github.com/dnanexus/upload-agent/internal/common"
	"github.com/dnanexus/upload-agent/internal/model"
)

// NumChunkChecks bounds the number of repair passes FinalizeFile will run
// before giving up and marking the file failed, mirroring original_source's
// NUM_CHUNK_CHECKS constant.
const NumChunkChecks = 3

// closePollInterval/closePollTimeout bound how long WaitOnClose will poll
// the platform for a file to leave the "closing" state.
const (
	closePollInterval = 2 * time.Second
	closePollTimeout  = 30 * time.Minute
)

// FinalizeFile re-checks a file's part manifest against what this run
// believes it uploaded, re-running the read/compress/upload worker pool over
// any part the server doesn't yet show as complete, for up to NumChunkChecks
// passes. A part missing on pass N+1 after having been re-sent on pass N
// does not count against pass N's budget -- each pass starts its failure
// count at zero, per resolved Open Question (documented in DESIGN.md). Only
// once every part is confirmed complete does it call FileClose.
//
// p supplies the client/pacer/dns/governor/logger configuration the repair
// pool reuses; readThreads/compressThreads/uploadThreads size that pool, the
// same way they sized the original run's.
func FinalizeFile(ctx context.Context, client *apiclient.Client, p *Pipeline, f *model.File, readThreads, compressThreads, uploadThreads int) error {
	for pass := 1; pass <= NumChunkChecks; pass++ {
		state, parts, err := client.FileDescribe(ctx, f.RemoteFileID)
		if err != nil {
			return err
		}
		if state == string(common.EFileState.Closing()) || state == string(common.EFileState.Closed()) {
			return nil
		}

		missing := missingParts(f, parts)
		if len(missing) == 0 {
			break
		}
		if err := runRepairPass(ctx, p, missing, readThreads, compressThreads, uploadThreads); err != nil {
			return err
		}
	}

	state, parts, err := client.FileDescribe(ctx, f.RemoteFileID)
	if err != nil {
		return err
	}
	if state != string(common.EFileState.Closing()) && state != string(common.EFileState.Closed()) {
		if missing := missingParts(f, parts); len(missing) > 0 {
			return common.NewChunkUploadError(f.FileIndex, missing[0].PartIndex, fmt.Sprintf("still missing after %d repair passes", NumChunkChecks))
		}
	}

	return client.FileClose(ctx, f.RemoteFileID)
}

// runRepairPass re-reads, re-compresses and re-uploads every chunk in
// missing through a freshly spawned worker pool. By the time FinalizeFile
// runs, the original pipeline's queues are already closed -- CloseInputs
// and the monitor's CloseStageQueues both fire once the first pass's chunks
// drain -- so the repair set cannot simply be Enqueue'd onto p; it gets its
// own short-lived Pipeline instead, carrying over only p's
// client/pacer/dns/governor/logger configuration and Files slice.
func runRepairPass(ctx context.Context, p *Pipeline, missing []model.Chunk, readThreads, compressThreads, uploadThreads int) error {
	queueCapacity := 2 * maxOf3(readThreads, compressThreads, uploadThreads)
	repair := NewPipeline(p.files, len(missing), queueCapacity, p.client, p.pacer, p.dns, p.noRR, p.governor, p.logger)
	for _, c := range missing {
		if err := repair.Enqueue(ctx, c); err != nil {
			return err
		}
	}
	repair.CloseInputs()
	return Run(ctx, repair, readThreads, compressThreads, uploadThreads, p.logger)
}

func maxOf3(a, b, c int) int {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

// missingParts compares the platform's reported part manifest against
// f's expected part count and returns a re-readable Chunk for every part
// not in the "complete" state.
func missingParts(f *model.File, parts map[int]apiclient.PartInfo) []model.Chunk {
	var out []model.Chunk
	n := f.PartCount()
	for i := 1; i <= n; i++ {
		info, ok := parts[i]
		if ok && info.State == string(common.EPartState.Complete()) {
			continue
		}
		out = append(out, chunkForPart(f, i))
	}
	return out
}

// PlanChunks is missingParts exported for startup chunk planning: it
// returns a Chunk for every part of f not already reported complete in
// completedParts (empty for a brand-new file), with tries seeded from
// triesPerChunk instead of the completion pass's fixed retry budget.
func PlanChunks(f *model.File, completedParts map[int]apiclient.PartInfo, triesPerChunk int) []model.Chunk {
	chunks := missingParts(f, completedParts)
	for i := range chunks {
		chunks[i].TriesLeft = triesPerChunk
		chunks[i].MaxTries = triesPerChunk
	}
	return chunks
}

// chunkForPart rebuilds the byte range and compression flag for part i of
// f, the same derivation used at initial chunk-planning time.
func chunkForPart(f *model.File, i int) model.Chunk {
	start := int64(i-1) * f.ChunkSize
	end := start + f.ChunkSize
	last := i == f.PartCount()
	if last || end > f.Size {
		end = f.Size
	}
	return model.Chunk{
		FileIndex:  f.FileIndex,
		PartIndex:  i,
		Start:      start,
		End:        end,
		Last:       last,
		ToCompress: f.ToCompress,
		TriesLeft:  maxUploadRetries,
		MaxTries:   maxUploadRetries,
	}
}

// WaitOnClose polls FileDescribe until f's remote state leaves "closing",
// for callers that passed --wait-on-close. It returns nil as soon as the
// state is "closed", or an error if closePollTimeout elapses first.
func WaitOnClose(ctx context.Context, client *apiclient.Client, f *model.File) error {
	deadline := time.Now().Add(closePollTimeout)
	ticker := time.NewTicker(closePollInterval)
	defer ticker.Stop()

	for {
		state, _, err := client.FileDescribe(ctx, f.RemoteFileID)
		if err != nil {
			return err
		}
		if state == string(common.EFileState.Closed()) {
			return nil
		}
		if time.Now().After(deadline) {
			return common.NewAPIError(f.RemoteFileID+"/describe", 0, "", "timed out waiting for file to close")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

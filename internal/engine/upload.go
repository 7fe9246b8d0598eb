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
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/dnanexus/upload-agent/internal/common"
	"github.com/dnanexus/upload-agent/internal/model"
)

// lowSpeedWindow and lowSpeedMinBytes carry chunk.cpp's
// CURLOPT_LOW_SPEED_LIMIT/CURLOPT_LOW_SPEED_TIME values, but nothing reads
// them: no low-speed abort is performed, and a stalled PUT ends only when
// overallTimeout (applied to each PUT's request context) expires. The
// connect timeout is set on the shared HTTP transport in apiclient.
const (
	connectTimeout   = 30 * time.Second
	overallTimeout   = 1800 * time.Second
	lowSpeedWindow   = 60 * time.Second
	lowSpeedMinBytes = 1
	maxUploadRetries = 9
)

// runUploadStage drains the Upload queue, PUTs each chunk's bytes to its
// signed URL, and accounts for success/failure. Workers share one Upload
// queue; the caller starts as many goroutines as --threads requests.
func runUploadStage(ctx context.Context, p *Pipeline) error {
	for {
		c, err := p.uploadQueue.Consume(ctx)
		if err != nil {
			return drainOK(err)
		}
		if err := uploadChunk(ctx, p, c); err != nil {
			if c.TriesLeft <= 1 {
				p.failChunk(c, err)
				continue
			}
			c.TriesLeft--
			p.logger.Log(common.ELogLevel.Warning(), fmt.Sprintf("file %d part %d: %v (retrying, %d tries left)", c.FileIndex, c.PartIndex, err, c.TriesLeft))
			time.Sleep(retryBackoff(c.MaxTries, c.TriesLeft))
			if err := p.requeueForRetry(ctx, c); err != nil {
				return drainOK(err)
			}
			continue
		}
		p.finishChunk(c)
	}
}

// retryBackoff mirrors main.cpp's capped exponential backoff: 4s * 2^n,
// capped at 256s, keyed off the number of attempts already made against
// this chunk's own try budget (maxTries), not the completion pass's fixed
// retry constant -- a chunk seeded with --tries=3 and one failure behind it
// is on its first retry (attempt=1, 8s), regardless of what the repair
// pass's budget happens to be.
func retryBackoff(maxTries, triesLeft int) time.Duration {
	attempt := maxTries - triesLeft
	d := 4 * time.Second
	for i := 0; i < attempt && d < 256*time.Second; i++ {
		d *= 2
	}
	if d > 256*time.Second {
		d = 256 * time.Second
	}
	return d
}

// uploadChunk performs the three-step upload of one chunk: request a
// signed URL, PUT the (possibly gzipped) bytes with their MD5, and let the
// platform validate the part. Compression and URL signing are redone on
// every attempt, mirroring chunk.cpp's Chunk::upload() re-entrancy.
func uploadChunk(ctx context.Context, p *Pipeline, c model.Chunk) error {
	f := p.files[c.FileIndex]

	sum := md5.Sum(c.Data)
	md5hex := hex.EncodeToString(sum[:])

	signed, err := p.client.FileUpload(ctx, f.RemoteFileID, c.PartIndex, int64(len(c.Data)), md5hex)
	if err != nil {
		return err
	}

	if p.pacer != nil {
		if err := p.pacer.RequestTrafficAllocation(ctx, int64(len(c.Data))); err != nil {
			return err
		}
	}

	uploadURL := signed.URL
	if p.dns != nil && !p.noRR {
		if host := ExtractHost(uploadURL); host != "" {
			if ip, err := p.dns.Resolve(ctx, host); err == nil && ip != "" {
				c.HostName, c.ResolvedIP = host, ip
			}
		}
	}

	reqCtx, cancel := context.WithTimeout(ctx, overallTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPut, uploadURL, bytes.NewReader(c.Data))
	if err != nil {
		return common.NewIOError(f.LocalPath, c.Start, "building upload request: %v", err)
	}
	req.ContentLength = int64(len(c.Data))
	req.Header.Set("Content-MD5", md5hex)
	req.Header.Set("Content-Length", strconv.Itoa(len(c.Data)))
	for k, v := range signed.Headers {
		req.Header.Set(k, v)
	}
	req.Header.Del("Content-Type")

	resp, err := p.client.HTTPClient().Do(req)
	if err != nil {
		return common.NewConnectionError(err, "upload part %d of %s", c.PartIndex, f.LocalPath)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return common.NewChunkUploadError(c.FileIndex, c.PartIndex, fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)))
	}
	return nil
}

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

	"github.com/dnanexus/upload-agent/internal/common"
)

// RunMonitor polls queue depths once a second, logs them at Debug, and
// returns once every chunk has finished or failed -- at which point it
// closes the downstream stage queues so idle workers can exit. It does not
// itself return an error on cancellation; the caller's errgroup observes
// ctx via the stage workers blocked in Consume/Produce.
func RunMonitor(ctx context.Context, p *Pipeline, logger common.ILogger) error {
	ticker := time.NewTicker(monitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.CloseStageQueues()
			return ctx.Err()
		case <-ticker.C:
			d := p.QueueDepths()
			logger.Log(common.ELogLevel.Debug(), fmt.Sprintf(
				"queues: read=%d compress=%d upload=%d finished=%d failed=%d",
				d.Read, d.Compress, d.Upload, d.Finished, d.Failed))
			if p.Done() {
				p.CloseStageQueues()
				return nil
			}
		}
	}
}

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

package main

import (
	"context"
	"fmt"

	"github.com/dnanexus/upload-agent/internal/apiclient"
	"github.com/dnanexus/upload-agent/internal/common"
	"github.com/dnanexus/upload-agent/internal/verify"
)

// run checks every (local, remote) pair cooked names and prints one line
// per pair, "identical" or "mismatch", in input order -- the same report
// main.cpp's final loop produces. anyMismatch drives the process exit code.
func (cooked cookedVerifyArgs) run(ctx context.Context, logger common.ILogger) (anyMismatch bool, err error) {
	client := apiclient.New(cooked.cfg, logger)

	results, err := verify.Run(ctx, client, cooked.localFiles, cooked.remoteFiles, cooked.opts, logger)
	if err != nil {
		return false, err
	}

	for _, r := range results {
		if r.Identical {
			fmt.Println("identical")
			continue
		}
		anyMismatch = true
		fmt.Println("mismatch")
		logger.Log(common.ELogLevel.Error(), fmt.Sprintf("%s vs %s: %s", r.LocalPath, r.RemoteFileID, r.Reason))
	}

	return anyMismatch, nil
}

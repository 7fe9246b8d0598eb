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

package apiclient

import (
	"context"
	"runtime"

	"github.com/dnanexus/upload-agent/internal/common"
)

// GreetResult is the platform's update advisory for this client.
type GreetResult struct {
	MustUpgrade bool
	ShouldUpgrade bool
	Message       string
}

// Greet wraps POST /system/greet, the update-advisory call .
// A MustUpgrade response maps the CLI to exit code 3; a ShouldUpgrade one is
// logged at Warning and otherwise ignored.
func (c *Client) Greet(ctx context.Context, version string) (GreetResult, error) {
	body := map[string]interface{}{
		"client":   "dx-upload-agent",
		"version":  version,
		"platform": runtime.GOOS + "/" + runtime.GOARCH,
	}
	resp, err := c.Request(ctx, "/system/greet", body, true, nil)
	if err != nil {
		// The advisory is best-effort: a failure here should never block
		// the upload itself.
		c.logger.Log(common.ELogLevel.Warning(), "update advisory check failed: "+err.Error())
		return GreetResult{}, nil
	}
	update, _ := resp["update"].(map[string]interface{})
	return GreetResult{
		MustUpgrade:   boolField(update, "must"),
		ShouldUpgrade: boolField(update, "should"),
		Message:       stringField(update, "message"),
	}, nil
}

func boolField(m map[string]interface{}, key string) bool {
	if m == nil {
		return false
	}
	b, _ := m[key].(bool)
	return b
}

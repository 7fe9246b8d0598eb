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

	"github.com/dnanexus/upload-agent/internal/common"
)

// AppRun wraps POST /app-<importer>/run for the follow-on import apps
// (reads_importer, sam_importer, vcf_importer), grounded on
// original_source/src/ua/import_apps.cpp's runApp_helper. Never safe to
// retry: a duplicate call would start a second job.
func (c *Client) AppRun(ctx context.Context, appName, jobName, project, folder string, input map[string]interface{}) (jobID string, err error) {
	body := map[string]interface{}{
		"name":    jobName,
		"input":   input,
		"project": project,
		"folder":  folder,
	}
	resp, err := c.Request(ctx, "/"+appName+"/run", body, false, nil)
	if err != nil {
		return "", err
	}
	id := stringField(resp, "id")
	if id == "" {
		return "", common.NewParseError("/"+appName+"/run", "response missing \"id\"")
	}
	return id, nil
}

// DNALink renders the {"$dnanexus_link": "..."} reference format the
// platform API uses for object inputs.
func DNALink(objectID string) map[string]interface{} {
	return map[string]interface{}{"$dnanexus_link": objectID}
}

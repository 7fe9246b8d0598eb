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
	"fmt"

	"github.com/dnanexus/upload-agent/internal/common"
	"github.com/dnanexus/upload-agent/internal/model"
)

// ProjectSummary is one candidate returned by FindProjects or ProjectDescribe.
type ProjectSummary struct {
	ID    string
	Name  string
	Level string
}

// FindProjects wraps POST /system/findProjects -- the name-based half of
// resolveProject. Always safe to retry: a pure read.
func (c *Client) FindProjects(ctx context.Context, name string) ([]ProjectSummary, error) {
	body := map[string]interface{}{"name": name, "level": "UPLOAD"}
	resp, err := c.Request(ctx, "/system/findProjects", body, true, nil)
	if err != nil {
		return nil, err
	}
	results, _ := resp["results"].([]interface{})
	var out []ProjectSummary
	for _, r := range results {
		m, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, ProjectSummary{
			ID:    stringField(m, "id"),
			Name:  stringField(m, "name"),
			Level: stringField(m, "level"),
		})
	}
	return out, nil
}

// ProjectDescribe wraps POST /<projectId>/describe -- the ID-based half of
// resolveProject. Not found or insufficient permission surfaces as an
// *common.APIError the resolver interprets, not a transport failure.
func (c *Client) ProjectDescribe(ctx context.Context, projectID string) (ProjectSummary, error) {
	resp, err := c.Request(ctx, "/"+projectID+"/describe", nil, true, nil)
	if err != nil {
		return ProjectSummary{}, err
	}
	return ProjectSummary{
		ID:    stringField(resp, "id"),
		Name:  stringField(resp, "name"),
		Level: stringField(resp, "level"),
	}, nil
}

// NewFolder wraps POST /<projectId>/newFolder with parents=true -- idempotent
//.
func (c *Client) NewFolder(ctx context.Context, projectID, folder string) error {
	body := map[string]interface{}{"folder": folder, "parents": true}
	_, err := c.Request(ctx, "/"+projectID+"/newFolder", body, true, nil)
	return err
}

// FileNewRequest carries the fields POST /file/new accepts.
type FileNewRequest struct {
	Project    string
	Folder     string
	Name       string
	Media      string
	Properties map[string]string
	Type       string
	Tags       []string
	Details    interface{}
	Hidden     bool
}

// FileNew wraps POST /file/new. Never safe to retry blindly: a duplicate
// call would create a second file, so callers must only invoke it once per
// logical file (resume detection happens before this is reached).
func (c *Client) FileNew(ctx context.Context, r FileNewRequest) (string, error) {
	body := map[string]interface{}{
		"project":    r.Project,
		"folder":     r.Folder,
		"name":       r.Name,
		"media":      r.Media,
		"properties": r.Properties,
		"tags":       r.Tags,
		"hidden":     r.Hidden,
	}
	if r.Type != "" {
		body["type"] = r.Type
	}
	if r.Details != nil {
		body["details"] = r.Details
	}
	resp, err := c.Request(ctx, "/file/new", body, false, nil)
	if err != nil {
		return "", err
	}
	id := stringField(resp, "id")
	if id == "" {
		return "", common.NewParseError("/file/new", "response missing \"id\"")
	}
	return id, nil
}

// PartInfo is one entry of a file's part manifest.
type PartInfo struct {
	Index int
	State string // "pending" or "complete"
	Size  int64
	MD5   string
}

// FileDescribe wraps POST /<fileId>/describe with parts=true.
func (c *Client) FileDescribe(ctx context.Context, fileID string) (state string, parts map[int]PartInfo, err error) {
	state, _, parts, err = c.FileDescribeWithSize(ctx, fileID)
	return state, parts, err
}

// FileDescribeWithSize is FileDescribe plus the top-level "size" field,
// needed by the verifier's local-vs-remote size check.
func (c *Client) FileDescribeWithSize(ctx context.Context, fileID string) (state string, size int64, parts map[int]PartInfo, err error) {
	resp, err := c.Request(ctx, "/"+fileID+"/describe", map[string]interface{}{"parts": true}, true, nil)
	if err != nil {
		return "", 0, nil, err
	}
	state = stringField(resp, "state")
	size = int64Field(resp, "size")
	parts = map[int]PartInfo{}
	rawParts, _ := resp["parts"].(map[string]interface{})
	for k, v := range rawParts {
		m, ok := v.(map[string]interface{})
		if !ok {
			continue
		}
		var idx int
		fmt.Sscanf(k, "%d", &idx)
		parts[idx] = PartInfo{
			Index: idx,
			State: stringField(m, "state"),
			Size:  int64Field(m, "size"),
			MD5:   stringField(m, "md5"),
		}
	}
	return state, size, parts, nil
}

// UploadURL is the signed-URL response from POST /<fileId>/upload.
type UploadURL struct {
	URL     string
	Headers map[string]string
}

// FileUpload wraps POST /<fileId>/upload with {index, size, md5}.
func (c *Client) FileUpload(ctx context.Context, fileID string, index int, size int64, md5hex string) (UploadURL, error) {
	body := map[string]interface{}{"index": index, "size": size, "md5": md5hex}
	resp, err := c.Request(ctx, "/"+fileID+"/upload", body, true, nil)
	if err != nil {
		return UploadURL{}, err
	}
	u := UploadURL{URL: stringField(resp, "url"), Headers: map[string]string{}}
	if rawHeaders, ok := resp["headers"].(map[string]interface{}); ok {
		for k, v := range rawHeaders {
			if s, ok := v.(string); ok {
				u.Headers[k] = s
			}
		}
	}
	if u.URL == "" {
		return UploadURL{}, common.NewParseError(fmt.Sprintf("/%s/upload", fileID), "response missing \"url\"")
	}
	return u, nil
}

// FileClose wraps POST /<fileId>/close.
func (c *Client) FileClose(ctx context.Context, fileID string) error {
	_, err := c.Request(ctx, "/"+fileID+"/close", nil, true, nil)
	return err
}

// FoundObject is one match from FindDataObjects, used by resume detection.
type FoundObject struct {
	ID    string
	State string
	Parts map[int]PartInfo
}

// FindDataObjects wraps POST /system/findDataObjects filtered by class:file
// and the resume fingerprint property.
func (c *Client) FindDataObjects(ctx context.Context, projectID, fingerprint string) ([]FoundObject, error) {
	body := map[string]interface{}{
		"class": "file",
		"scope": map[string]interface{}{"project": projectID},
		"properties": map[string]interface{}{
			model.FileSignatureProperty: fingerprint,
		},
		"visibility": "either",
		"describe":   map[string]interface{}{"parts": true},
	}
	resp, err := c.Request(ctx, "/system/findDataObjects", body, true, nil)
	if err != nil {
		return nil, err
	}
	results, _ := resp["results"].([]interface{})
	var out []FoundObject
	for _, r := range results {
		m, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		desc, _ := m["describe"].(map[string]interface{})
		fo := FoundObject{ID: stringField(m, "id")}
		if desc != nil {
			fo.State = stringField(desc, "state")
			fo.Parts = map[int]PartInfo{}
			rawParts, _ := desc["parts"].(map[string]interface{})
			for k, v := range rawParts {
				pm, ok := v.(map[string]interface{})
				if !ok {
					continue
				}
				var idx int
				fmt.Sscanf(k, "%d", &idx)
				fo.Parts[idx] = PartInfo{Index: idx, State: stringField(pm, "state"), Size: int64Field(pm, "size"), MD5: stringField(pm, "md5")}
			}
		}
		out = append(out, fo)
	}
	return out, nil
}

// FindPublicProject wraps POST /system/findProjects scoped to a public,
// VIEW-level project owned by a given billTo org -- the shape
// import_apps.cpp's findRefGenomeProjID() uses to locate the platform's
// "Reference Genomes" project.
func (c *Client) FindPublicProject(ctx context.Context, name, billTo string) ([]ProjectSummary, error) {
	body := map[string]interface{}{
		"name":    name,
		"level":   "VIEW",
		"public":  true,
		"billTo":  billTo,
		"describe": false,
	}
	resp, err := c.Request(ctx, "/system/findProjects", body, true, nil)
	if err != nil {
		return nil, err
	}
	results, _ := resp["results"].([]interface{})
	var out []ProjectSummary
	for _, r := range results {
		m, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		out = append(out, ProjectSummary{ID: stringField(m, "id")})
	}
	return out, nil
}

// FindClosedRecord wraps POST /system/findDataObjects scoped to a closed
// record of the given type within projectID -- the shape
// import_apps.cpp's getRefGenomeID() uses to resolve a reference genome
// name to its record-xxxx ID.
func (c *Client) FindClosedRecord(ctx context.Context, projectID, name, recordType string) ([]string, error) {
	body := map[string]interface{}{
		"name":  name,
		"state": "closed",
		"class": "record",
		"type":  recordType,
		"scope": map[string]interface{}{"project": projectID},
	}
	resp, err := c.Request(ctx, "/system/findDataObjects", body, true, nil)
	if err != nil {
		return nil, err
	}
	results, _ := resp["results"].([]interface{})
	var ids []string
	for _, r := range results {
		m, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		ids = append(ids, stringField(m, "id"))
	}
	return ids, nil
}

func stringField(m map[string]interface{}, key string) string {
	if m == nil {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func int64Field(m map[string]interface{}, key string) int64 {
	if m == nil {
		return 0
	}
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

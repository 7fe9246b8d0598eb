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

// Package resolver turns a user-supplied project spec (an ID or a name)
// into a single, permission-checked project ID, and creates destination
// folders idempotently. Results are memoized per process, the same way
// azcopy's common.LFUCache memoizes other per-process lookups.
package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dnanexus/upload-agent/internal/apiclient"
	"github.com/dnanexus/upload-agent/internal/common"
)

const uploadLevel = "UPLOAD"

// NotFoundError means no project matched spec at all.
type NotFoundError struct{ Spec string }

func (e *NotFoundError) Error() string { return fmt.Sprintf("no project found matching %q (with at least UPLOAD permission)", e.Spec) }

// AmbiguousError means more than one project matched spec.
type AmbiguousError struct {
	Spec       string
	Candidates []apiclient.ProjectSummary
}

func (e *AmbiguousError) Error() string {
	names := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		names[i] = fmt.Sprintf("%s (%s)", c.ID, c.Name)
	}
	return fmt.Sprintf("%q is ambiguous: matches %s -- use a project ID or disable resume", e.Spec, strings.Join(names, ", "))
}

// Resolver resolves project specs to IDs, memoizing per process.
type Resolver struct {
	client *apiclient.Client
	cache  sync.Map // spec string -> string (resolved project ID)
}

func New(client *apiclient.Client) *Resolver {
	return &Resolver{client: client}
}

// ResolveProject implements resolveProject: describe spec as
// an ID, find projects named spec, union the results. Memoized per process
// per distinct spec string.
func (r *Resolver) ResolveProject(ctx context.Context, spec string) (string, error) {
	if cached, ok := r.cache.Load(spec); ok {
		return cached.(string), nil
	}

	candidates := map[string]apiclient.ProjectSummary{}

	if strings.HasPrefix(spec, "project-") {
		if p, err := r.client.ProjectDescribe(ctx, spec); err == nil && hasUploadPermission(p.Level) {
			candidates[p.ID] = p
		}
	}

	named, err := r.client.FindProjects(ctx, spec)
	if err != nil {
		return "", err
	}
	for _, p := range named {
		if hasUploadPermission(p.Level) {
			candidates[p.ID] = p
		}
	}

	switch len(candidates) {
	case 0:
		return "", common.NewConfigError("%s", (&NotFoundError{Spec: spec}).Error())
	case 1:
		for id := range candidates {
			r.cache.Store(spec, id)
			return id, nil
		}
	}

	list := make([]apiclient.ProjectSummary, 0, len(candidates))
	for _, p := range candidates {
		list = append(list, p)
	}
	return "", common.NewConfigError("%s", (&AmbiguousError{Spec: spec, Candidates: list}).Error())
}

func hasUploadPermission(level string) bool {
	switch level {
	case "UPLOAD", "CONTRIBUTE", "ADMINISTER":
		return true
	default:
		return false
	}
}

// CreateFolder implements createFolder: idempotent,
// parents=true.
func (r *Resolver) CreateFolder(ctx context.Context, projectID, folder string) error {
	if folder == "" || folder == "/" {
		return nil
	}
	return r.client.NewFolder(ctx, projectID, folder)
}

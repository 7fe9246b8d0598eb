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

package importer

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnanexus/upload-agent/internal/apiclient"
	"github.com/dnanexus/upload-agent/internal/common"
	"github.com/dnanexus/upload-agent/internal/model"
)

func testClient(t *testing.T, handler http.HandlerFunc) *apiclient.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := common.Config{AuthToken: "Bearer t", UserAgent: "importer-test"}
	return apiclient.NewWithBaseURL(cfg, common.NopLogger, srv.URL, srv.Client())
}

func TestResolveRefGenomePassesThroughRecordID(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not call the API for a literal record ID")
	})
	id, err := ResolveRefGenome(context.Background(), client, "record-000000000000000000000000")
	require.NoError(t, err)
	assert.Equal(t, "record-000000000000000000000000", id)
}

func TestResolveRefGenomeLooksUpByName(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/system/findProjects":
			w.Write([]byte(`{"results":[{"id":"project-000000000000000000000000"}]}`))
		case "/system/findDataObjects":
			w.Write([]byte(`{"results":[{"id":"record-000000000000000000000001"}]}`))
		}
	})
	id, err := ResolveRefGenome(context.Background(), client, "hg19")
	require.NoError(t, err)
	assert.Equal(t, "record-000000000000000000000001", id)
}

func TestResolveRefGenomeRejectsAmbiguousName(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/system/findProjects":
			w.Write([]byte(`{"results":[{"id":"project-000000000000000000000000"}]}`))
		case "/system/findDataObjects":
			w.Write([]byte(`{"results":[{"id":"record-1"},{"id":"record-2"}]}`))
		}
	})
	_, err := ResolveRefGenome(context.Background(), client, "hg19")
	require.Error(t, err)
}

func TestRunSkipsFailedFiles(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not call /run for a failed file")
	})
	f := &model.File{LocalPath: "/tmp/a.fq", RemoteFileID: "file-1"}
	f.MarkFailed("boom")

	require.NoError(t, Run(context.Background(), client, common.NopLogger, KindReads, "", []*model.File{f}))
	jobID := f.JobID()
	assert.Equal(t, "failed", jobID)
}

func TestRunReadsStartsAppAndRecordsJobID(t *testing.T) {
	var gotInput map[string]interface{}
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]interface{}
		_ = json.Unmarshal(body, &req)
		gotInput, _ = req["input"].(map[string]interface{})
		w.Write([]byte(`{"id":"job-000000000000000000000001"}`))
	})
	f := &model.File{LocalPath: "/tmp/a.fq", RemoteFileID: "file-1", Dest: model.Destination{ProjectID: "project-1", Folder: "/"}}

	require.NoError(t, Run(context.Background(), client, common.NopLogger, KindReads, "", []*model.File{f}))
	assert.Equal(t, "job-000000000000000000000001", f.JobID())
	require.NotNil(t, gotInput)
	assert.Equal(t, "file-1", gotInput["file"].(map[string]interface{})["$dnanexus_link"])
}

func TestRunPairedReadsAssignsSameJobIDToBothFiles(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"job-000000000000000000000002"}`))
	})
	f1 := &model.File{LocalPath: "/tmp/a_1.fq", RemoteFileID: "file-1", Dest: model.Destination{ProjectID: "project-1"}}
	f2 := &model.File{LocalPath: "/tmp/a_2.fq", RemoteFileID: "file-2", Dest: model.Destination{ProjectID: "project-1"}}

	require.NoError(t, Run(context.Background(), client, common.NopLogger, KindPairedReads, "", []*model.File{f1, f2}))
	assert.Equal(t, "job-000000000000000000000002", f1.JobID())
	assert.Equal(t, "job-000000000000000000000002", f2.JobID())
}


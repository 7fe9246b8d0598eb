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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnanexus/upload-agent/internal/common"
)

// fakePlatform serves just enough of the API surface for one small,
// uncompressed, non-resumed file to travel through run() end to end: greet,
// project lookup, folder creation, resume lookup, file creation, the part
// upload URL and its storage PUT, file close, and describe for the
// completion repair pass.
type fakePlatform struct {
	storage *httptest.Server
	api     *httptest.Server

	mu     sync.Mutex
	closed bool
	part1  bool
}

func newFakePlatform(t *testing.T) *fakePlatform {
	fp := &fakePlatform{}
	fp.storage = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fp.mu.Lock()
		fp.part1 = true
		fp.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))

	fp.api = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		_ = json.NewDecoder(r.Body).Decode(&body)

		switch r.URL.Path {
		case "/system/greet":
			writeJSON(w, map[string]interface{}{"update": map[string]interface{}{"must": false, "should": false}})
		case "/system/findProjects":
			writeJSON(w, map[string]interface{}{"results": []interface{}{
				map[string]interface{}{"id": "project-000000000000000000000001", "name": "test", "level": "CONTRIBUTE"},
			}})
		case "/project-000000000000000000000001/newFolder":
			writeJSON(w, map[string]interface{}{})
		case "/system/findDataObjects":
			writeJSON(w, map[string]interface{}{"results": []interface{}{}})
		case "/file/new":
			writeJSON(w, map[string]interface{}{"id": "file-000000000000000000000001"})
		case "/file-000000000000000000000001/upload":
			writeJSON(w, map[string]interface{}{"url": fp.storage.URL, "headers": map[string]interface{}{}})
		case "/file-000000000000000000000001/close":
			fp.mu.Lock()
			fp.closed = true
			fp.mu.Unlock()
			writeJSON(w, map[string]interface{}{})
		case "/file-000000000000000000000001/describe":
			fp.mu.Lock()
			state := "open"
			if fp.closed {
				state = "closed"
			}
			partState := "pending"
			if fp.part1 {
				partState = "complete"
			}
			fp.mu.Unlock()
			writeJSON(w, map[string]interface{}{
				"state": state,
				"size":  20,
				"parts": map[string]interface{}{
					"1": map[string]interface{}{"state": partState, "size": 20},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	return fp
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func (fp *fakePlatform) close() {
	fp.storage.Close()
	fp.api.Close()
}

func TestRunUploadsSingleFileEndToEnd(t *testing.T) {
	fp := newFakePlatform(t)
	defer fp.close()

	dir := t.TempDir()
	path := filepath.Join(dir, "small.bin")
	require.NoError(t, os.WriteFile(path, []byte("the quick brown fox!"), 0o644))

	apiURL, err := url.Parse(fp.api.URL)
	require.NoError(t, err)

	raw := rawUploadArgs{
		files:             []string{path},
		authToken:         "secret",
		apiserverProtocol: apiURL.Scheme,
		apiserverHost:     apiURL.Hostname(),
		apiserverPort:     apiURL.Port(),
		projects:          []string{"test-project"},
		readThreads:       1,
		compressThreads:   1,
		uploadThreads:     1,
		tries:             defaultTries,
		chunkSize:         defaultChunkSize,
		doNotCompress:     true,
	}
	cooked, err := raw.cook(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	anyFailed, err := cooked.run(ctx, common.NopLogger)
	require.NoError(t, err)
	assert.False(t, anyFailed)
	assert.True(t, fp.closed)
}

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

package verify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnanexus/upload-agent/internal/apiclient"
	"github.com/dnanexus/upload-agent/internal/common"
)

func writeTempFile(t *testing.T, content []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "local.bin")
	require.NoError(t, os.WriteFile(p, content, 0o644))
	return p
}

func clientAgainst(t *testing.T, body string) *apiclient.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	cfg := common.Config{AuthToken: "Bearer t", UserAgent: "verify-test"}
	return apiclient.NewWithBaseURL(cfg, common.NopLogger, srv.URL, srv.Client())
}

func TestNewFileAcceptsMatchingClosedFile(t *testing.T) {
	local := writeTempFile(t, []byte("0123456789"))
	client := clientAgainst(t, `{"state":"closed","size":10,"parts":{"1":{"state":"complete","size":10,"md5":"abc"}}}`)

	f, err := NewFile(context.Background(), client, local, "file-1", 0)
	require.NoError(t, err)
	mismatched, _ := f.Mismatched()
	assert.False(t, mismatched)
	require.Len(t, f.Chunks(), 1)
	assert.Equal(t, "abc", f.Chunks()[0].ExpectedMD5)
}

func TestNewFileMarksSizeMismatch(t *testing.T) {
	local := writeTempFile(t, []byte("0123456789"))
	client := clientAgainst(t, `{"state":"closed","size":999,"parts":{"1":{"state":"complete","size":999,"md5":"abc"}}}`)

	f, err := NewFile(context.Background(), client, local, "file-1", 0)
	require.NoError(t, err)
	mismatched, reason := f.Mismatched()
	assert.True(t, mismatched)
	assert.Contains(t, reason, "!=")
}

func TestNewFileRejectsOpenFile(t *testing.T) {
	local := writeTempFile(t, []byte("x"))
	client := clientAgainst(t, `{"state":"open","size":1,"parts":{}}`)

	f, err := NewFile(context.Background(), client, local, "file-1", 0)
	require.NoError(t, err)
	mismatched, reason := f.Mismatched()
	assert.True(t, mismatched)
	assert.Contains(t, reason, "not closed")
}

func TestChunksAreOrderedAndContiguous(t *testing.T) {
	local := writeTempFile(t, []byte("0123456789"))
	client := clientAgainst(t, `{"state":"closed","size":10,"parts":{"2":{"state":"complete","size":5,"md5":"b"},"1":{"state":"complete","size":5,"md5":"a"}}}`)

	f, err := NewFile(context.Background(), client, local, "file-1", 0)
	require.NoError(t, err)
	chunks := f.Chunks()
	require.Len(t, chunks, 2)
	assert.Equal(t, 1, chunks[0].PartIndex)
	assert.Equal(t, int64(0), chunks[0].Start)
	assert.Equal(t, int64(5), chunks[0].End)
	assert.Equal(t, 2, chunks[1].PartIndex)
	assert.Equal(t, int64(5), chunks[1].Start)
	assert.Equal(t, int64(10), chunks[1].End)
}

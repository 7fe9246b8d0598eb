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
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseVerifyArgs(t *testing.T) rawVerifyArgs {
	dir := t.TempDir()
	path := filepath.Join(dir, "a.txt")
	require.NoError(t, os.WriteFile(path, []byte("hello"), 0o644))
	return rawVerifyArgs{
		authToken:   "secret",
		localFiles:  []string{path},
		remoteFiles: []string{"file-000000000000000000000001"},
		readThreads: defaultReadThreads,
		md5Threads:  defaultMD5Threads(),
	}
}

func TestCookRejectsMismatchedLocalRemoteCounts(t *testing.T) {
	raw := baseVerifyArgs(t)
	raw.remoteFiles = append(raw.remoteFiles, "file-000000000000000000000002")
	_, err := raw.cook(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "equal numbers")
}

func TestCookRejectsEmptyFileList(t *testing.T) {
	raw := baseVerifyArgs(t)
	raw.localFiles = nil
	raw.remoteFiles = nil
	_, err := raw.cook(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one")
}

func TestCookRejectsNonexistentLocalFile(t *testing.T) {
	raw := baseVerifyArgs(t)
	raw.localFiles = []string{filepath.Join(t.TempDir(), "missing.txt")}
	_, err := raw.cook(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestCookRejectsMissingAuthToken(t *testing.T) {
	raw := baseVerifyArgs(t)
	raw.authToken = ""
	_, err := raw.cook(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "auth token")
}

func TestCookRejectsNonPositiveReadThreads(t *testing.T) {
	raw := baseVerifyArgs(t)
	raw.readThreads = 0
	_, err := raw.cook(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read threads")
}

func TestCookRejectsNonPositiveMD5Threads(t *testing.T) {
	raw := baseVerifyArgs(t)
	raw.md5Threads = 0
	_, err := raw.cook(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MD5 compute threads")
}

func TestCookBuildsQueueDepthFromThreadCounts(t *testing.T) {
	raw := baseVerifyArgs(t)
	raw.readThreads = 2
	raw.md5Threads = 3
	cooked, err := raw.cook(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, 20, cooked.opts.QueueDepth)
}

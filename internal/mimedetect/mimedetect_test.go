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

package mimedetect

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectFileUsesExtensionWhenKnown(t *testing.T) {
	p := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, os.WriteFile(p, []byte(`{"a":1}`), 0o644))
	assert.Equal(t, "application/json", DetectFile(p))
}

func TestDetectFileSniffsWhenExtensionUnknown(t *testing.T) {
	p := filepath.Join(t.TempDir(), "data.xyzabc")
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4 not really a pdf"), 0o644))
	got := DetectFile(p)
	assert.NotEmpty(t, got)
}

func TestDetectFileHandlesMissingFileGracefully(t *testing.T) {
	got := DetectFile(filepath.Join(t.TempDir(), "does-not-exist.xyzabc"))
	assert.Equal(t, "application/octet-stream", got)
}

func TestIsCompressedRecognizesArchiveTypes(t *testing.T) {
	assert.True(t, IsCompressed("application/x-gzip"))
	assert.True(t, IsCompressed("application/zip"))
	assert.False(t, IsCompressed("text/plain"))
	assert.False(t, IsCompressed(""))
}

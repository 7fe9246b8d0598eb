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

// Package verify implements dx-verify-file: given a local path and the
// remote file it was supposedly uploaded to, it re-reads the local file in
// chunks aligned to the remote part boundaries and confirms each chunk's
// MD5 matches what the platform recorded for that part.
package verify

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/dnanexus/upload-agent/internal/apiclient"
	"github.com/dnanexus/upload-agent/internal/common"
)

// File is one local/remote pair under verification. matchStatus starts
// optimistic and is flipped permanently to mismatched the first time any
// check -- size, part state, or a chunk's MD5 -- fails; once flipped every
// remaining chunk for this file is skipped rather than read.
type File struct {
	LocalPath    string
	RemoteFileID string
	FileIndex    int
	Size         int64

	parts []apiclient.PartInfo // sorted by Index ascending

	mu          sync.Mutex
	mismatched  bool
	mismatchMsg string
}

// NewFile stats the local file, describes the remote one, and runs the
// same sanity checks as original_source/src/dx-verify-file/File.cpp's
// init(): the remote file must be closed, every part must be complete,
// and both the remote "size" and the sum of part sizes must equal the
// local file size. Any check failing marks the file mismatched rather
// than returning an error -- verification proceeds to report it, not abort.
// Errors are returned only when the local stat or the describe call fails.
func NewFile(ctx context.Context, client *apiclient.Client, localPath, remoteFileID string, fileIndex int) (*File, error) {
	info, err := os.Stat(localPath)
	if err != nil {
		return nil, common.NewIOError(localPath, -1, "cannot stat local file: %v", err)
	}

	f := &File{LocalPath: localPath, RemoteFileID: remoteFileID, FileIndex: fileIndex, Size: info.Size()}

	state, remoteSize, rawParts, err := client.FileDescribeWithSize(ctx, remoteFileID)
	if err != nil {
		return nil, err
	}
	if state != string(common.EFileState.Closed()) {
		f.markMismatched(fmt.Sprintf("remote file is %q, not closed", state))
		return f, nil
	}
	if remoteSize != f.Size {
		f.markMismatched(fmt.Sprintf("local size %d != remote size %d", f.Size, remoteSize))
		return f, nil
	}

	var totalPartSize int64
	for idx, p := range rawParts {
		if p.State != string(common.EPartState.Complete()) {
			f.markMismatched(fmt.Sprintf("part %d is not complete", idx))
			return f, nil
		}
		totalPartSize += p.Size
		f.parts = append(f.parts, apiclient.PartInfo{Index: idx, State: p.State, Size: p.Size, MD5: p.MD5})
	}
	sort.Slice(f.parts, func(i, j int) bool { return f.parts[i].Index < f.parts[j].Index })

	if totalPartSize != f.Size {
		f.markMismatched(fmt.Sprintf("local size %d != sum of remote part sizes %d", f.Size, totalPartSize))
	}
	return f, nil
}

func (f *File) markMismatched(reason string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.mismatched {
		f.mismatched = true
		f.mismatchMsg = reason
	}
}

// Mismatched reports whether this file has failed any check so far.
func (f *File) Mismatched() (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mismatched, f.mismatchMsg
}

// Chunks builds one Chunk per remote part, in ascending part order, each
// carrying the byte range to re-read locally and the MD5 the platform
// recorded for that part.
func (f *File) Chunks() []Chunk {
	chunks := make([]Chunk, 0, len(f.parts))
	var start int64
	for _, p := range f.parts {
		chunks = append(chunks, Chunk{
			FileIndex:   f.FileIndex,
			PartIndex:   p.Index,
			Start:       start,
			End:         start + p.Size,
			ExpectedMD5: p.MD5,
		})
		start += p.Size
	}
	return chunks
}

func (f *File) String() string {
	return fmt.Sprintf("%s (%s)", f.LocalPath, f.RemoteFileID)
}

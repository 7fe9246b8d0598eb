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

package model

import (
	"fmt"
	"math"
	"sync"
)

// FileSignatureProperty is the name of the remote property holding the
// resume fingerprint, stored as a remote property.
const FileSignatureProperty = ".system-fileSignature"

// Destination groups everything about where a File lands on the platform:
// project, folder, remote name, visibility and the describe-time metadata
// (properties/tags/type/details).
type Destination struct {
	ProjectSpec string // as given by the user; resolved to ProjectID at init
	ProjectID   string
	Folder      string
	Name        string
	Hidden      bool
	Properties  map[string]string
	Tags        []string
	Type        string
	Details     interface{}
}

// File is the in-memory representation of File: a local path
// plus a destination, derived metadata, and mutable upload-progress state.
// It is created at startup, mutated only by its owning Chunks
// (BytesUploaded) and the main goroutine (Close/UpdateState), and is never
// referenced by Chunks except via FileIndex.
type File struct {
	LocalPath string
	Dest      Destination
	FileIndex int

	// Derived at init.
	Size       int64
	ModTime    int64 // unix seconds
	MimeType   string
	ToCompress bool
	ChunkSize  int64

	RemoteFileID     string
	IsRemoteFileOpen bool
	WaitOnClose      bool
	JobKind          string // "" or one of reads/paired-reads/mappings/variants
	RefGenome        string

	mu                 sync.Mutex
	bytesUploaded      int64
	failed             bool
	failReason         string
	atLeastOnePartDone bool
	closed             bool
	jobID              string
}

// Fingerprint builds the deterministic resume signature string of
// the deterministic resume signature: "<size> <mtime> <toCompress> <chunkSize> <canonical-path>".
func Fingerprint(size, mtime int64, toCompress bool, chunkSize int64, canonicalPath string) string {
	return fmt.Sprintf("%d %d %v %d %s", size, mtime, toCompress, chunkSize, canonicalPath)
}

// Fingerprint returns this file's resume signature given its current
// derived fields and its canonical local path.
func (f *File) Fingerprint(canonicalPath string) string {
	return Fingerprint(f.Size, f.ModTime, f.ToCompress, f.ChunkSize, canonicalPath)
}

// RemoteName is the name the object should be created with: the requested
// name, with ".gz" appended when the upload will compress locally.
func (f *File) RemoteName() string {
	if f.ToCompress {
		return f.Dest.Name + ".gz"
	}
	return f.Dest.Name
}

// PartCount returns ceil(size/chunkSize), with the empty-file special case
// of exactly one (zero-byte) part and §4.7.
func (f *File) PartCount() int {
	if f.Size == 0 {
		return 1
	}
	return int(math.Ceil(float64(f.Size) / float64(f.ChunkSize)))
}

// AddBytesUploaded credits n bytes toward this file's progress, under the
// shared bytes mutex.
func (f *File) AddBytesUploaded(n int64) {
	f.mu.Lock()
	f.bytesUploaded += n
	f.atLeastOnePartDone = true
	f.mu.Unlock()
}

func (f *File) BytesUploaded() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bytesUploaded
}

func (f *File) SetBytesUploaded(n int64) {
	f.mu.Lock()
	f.bytesUploaded = n
	f.mu.Unlock()
}

// MarkFailed records that this file can no longer be completed; the reason
// is surfaced in the CLI's one-line-per-failure report.
func (f *File) MarkFailed(reason string) {
	f.mu.Lock()
	f.failed = true
	f.failReason = reason
	f.mu.Unlock()
}

func (f *File) Failed() (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failed, f.failReason
}

func (f *File) AtLeastOnePartDone() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.atLeastOnePartDone
}

func (f *File) SetAtLeastOnePartDone() {
	f.mu.Lock()
	f.atLeastOnePartDone = true
	f.mu.Unlock()
}

func (f *File) SetClosed(v bool) {
	f.mu.Lock()
	f.closed = v
	f.mu.Unlock()
}

func (f *File) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *File) SetJobID(id string) {
	f.mu.Lock()
	f.jobID = id
	f.mu.Unlock()
}

func (f *File) JobID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.jobID
}

// PercentComplete mirrors original_source/src/ua/file.cpp's
// percentageComplete(): it is computed from completed-part accounting
// rather than raw bytesUploaded, so that a freshly-resumed file reports
// accurate progress before any chunk in this run has completed.
func PercentComplete(completedParts, lastPartIndex int, lastPartDone bool, size, chunkSize int64) float64 {
	if size == 0 {
		if lastPartDone {
			return 100.0
		}
		return 0.0
	}
	var totalBytesUploaded int64
	if lastPartDone {
		lastPartSize := size % chunkSize
		if lastPartSize == 0 {
			lastPartSize = chunkSize
		}
		totalBytesUploaded = int64(completedParts-1)*chunkSize + lastPartSize
	} else {
		totalBytesUploaded = int64(completedParts) * chunkSize
	}
	return float64(totalBytesUploaded) / float64(size) * 100.0
}

func (f File) String() string {
	return fmt.Sprintf("%s (%s)", f.LocalPath, f.RemoteFileID)
}

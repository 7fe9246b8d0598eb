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
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/dnanexus/upload-agent/internal/common"
)

// Chunk is one remote part's byte range in the local file, plus the MD5
// the platform recorded when that part was uploaded. It is a near-twin of
// original_source/src/dx-verify-file/chunk.cpp's Chunk: read, compute,
// clear, nothing else -- there is no compression or upload step here.
type Chunk struct {
	FileIndex int
	PartIndex int

	Start int64
	End   int64

	ExpectedMD5 string
	Data        []byte
}

func (c Chunk) Len() int64 { return c.End - c.Start }

func (c Chunk) String() string {
	return fmt.Sprintf("[file=%d part=%d %d-%d]", c.FileIndex, c.PartIndex, c.Start, c.End)
}

// read loads [Start, End) of localPath into c.Data, mirroring
// Chunk::read(): open, seek, read exactly length bytes.
func (c *Chunk) read(localPath string) error {
	length := c.Len()
	c.Data = make([]byte, length)
	if length == 0 {
		return nil
	}
	f, err := os.Open(localPath)
	if err != nil {
		return common.NewIOError(localPath, c.Start, "cannot open for reading: %v", err)
	}
	defer f.Close()

	if _, err := f.Seek(c.Start, 0); err != nil {
		return common.NewIOError(localPath, c.Start, "cannot seek: %v", err)
	}
	total := 0
	for total < len(c.Data) {
		n, err := f.Read(c.Data[total:])
		total += n
		if err != nil {
			return common.NewIOError(localPath, c.Start, "short read: %v", err)
		}
		if n == 0 {
			break
		}
	}
	return nil
}

// computeMD5 hashes c.Data, hex-encoded, matching the platform's own
// part-MD5 encoding.
func (c *Chunk) computeMD5() string {
	sum := md5.Sum(c.Data)
	return hex.EncodeToString(sum[:])
}

// clear releases Data once it has been hashed, mirroring Chunk::clear()'s
// eager deallocation -- verification holds many chunks' worth of bytes in
// flight at once, so freeing promptly matters.
func (c *Chunk) clear() {
	c.Data = nil
}

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

// Package mimedetect guesses the media type recorded against an uploaded
// file, the same two-step strategy azcopy's getBlobHttpHeaders/
// GetContentTypeMap use: prefer the extension's registered type, falling
// back to content sniffing when the extension is unknown.
package mimedetect

import (
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const sniffLen = 512

// DetectFile guesses localPath's media type. The extension is tried
// first via the OS mime-type registry (mime.TypeByExtension, which on
// Unix also consults /etc/mime.types the way azcopy's --content-type
// help text documents); an unknown extension falls back to sniffing the
// first 512 bytes with http.DetectContentType. A path that cannot be
// opened falls back to the generic "application/octet-stream" sniff
// result rather than failing the upload over a cosmetic header.
func DetectFile(localPath string) string {
	if t := byExtension(localPath); t != "" {
		return t
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "application/octet-stream"
	}
	defer f.Close()

	buf := make([]byte, sniffLen)
	n, _ := f.Read(buf)
	return http.DetectContentType(buf[:n])
}

func byExtension(localPath string) string {
	ext := filepath.Ext(localPath)
	if ext == "" {
		return ""
	}
	guessed := mime.TypeByExtension(ext)
	if guessed == "" {
		return ""
	}
	return strings.Split(guessed, ";")[0]
}

// compressedMimeTypes lists the media types the upload path treats as
// already compressed, so it never re-gzips an archive. Ported from
// mime.cpp's isCompressed table.
var compressedMimeTypes = map[string]bool{
	"application/x-bzip2":              true,
	"application/zip":                  true,
	"application/x-gzip":               true,
	"application/x-lzip":               true,
	"application/x-lzma":                true,
	"application/x-lzop":                true,
	"application/x-xz":                  true,
	"application/x-compress":            true,
	"application/x-7z-compressed":       true,
	"application/x-ace-compressed":      true,
	"application/x-alz-compressed":      true,
	"application/x-astrotite-afa":       true,
	"application/x-arj":                 true,
	"application/x-cfs-compressed":      true,
	"application/x-lzx":                 true,
	"application/x-lzh":                 true,
	"application/x-lzh-compressed":      true,
	"application/x-gca-compressed":      true,
	"application/x-apple-diskimage":     true,
	"application/x-dgc-compressed":      true,
	"application/x-dar":                 true,
	"application/vnd.ms-cab-compressed": true,
	"application/x-rar-compressed":      true,
	"application/x-stuffit":             true,
	"application/x-stuffitx":            true,
	"application/x-gtar":                true,
	"application/x-zoo":                 true,
	"application/x-empty":               true,
	"inode/x-empty":                     true,
}

// IsCompressed reports whether mimeType names a format the upload path
// should not try to gzip further. An empty mimeType is treated as "not
// compressed" -- no evidence either way.
func IsCompressed(mimeType string) bool {
	return compressedMimeTypes[mimeType]
}

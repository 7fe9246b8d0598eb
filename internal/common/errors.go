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

package common

import (
	"fmt"

	"github.com/pkg/errors"
)

// ConfigError covers missing/invalid startup configuration: a missing auth
// token or API base, non-positive thread counts, a chunk size below 5MiB,
// a throttle below 4KiB/s, mismatched counts of projects/folders/names vs.
// files, ref-genome/import-flag mismatches, an odd file count under
// --paired-reads.
type ConfigError struct {
	Msg string
}

func (e *ConfigError) Error() string   { return "configuration error: " + e.Msg }
func (e *ConfigError) Kind() ErrorKind { return EErrorKind.Config() }

func NewConfigError(format string, args ...interface{}) error {
	return errors.WithStack(&ConfigError{Msg: fmt.Sprintf(format, args...)})
}

// IOError covers local file absence, non-regular files, unreadable files,
// and seek/read failures; Offset is -1 when not applicable.
type IOError struct {
	Path   string
	Offset int64
	Msg    string
}

func (e *IOError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("io error on %q at offset %d: %s", e.Path, e.Offset, e.Msg)
	}
	return fmt.Sprintf("io error on %q: %s", e.Path, e.Msg)
}
func (e *IOError) Kind() ErrorKind { return EErrorKind.IO() }

func NewIOError(path string, offset int64, format string, args ...interface{}) error {
	return errors.WithStack(&IOError{Path: path, Offset: offset, Msg: fmt.Sprintf(format, args...)})
}

// APIError is raised when retries are exhausted and a recognized server
// error envelope (or bare HTTP status) was received.
type APIError struct {
	Route   string
	Status  int
	ErrKind string // the server's own error-kind string, e.g. "InvalidAuthentication"
	Message string
}

func (e *APIError) Error() string {
	if e.Status == 401 {
		return fmt.Sprintf("%s: invalid auth token (HTTP 401) -- check your --auth-token or DX_SECURITY_CONTEXT", e.Route)
	}
	return fmt.Sprintf("%s: HTTP %d %s: %s", e.Route, e.Status, e.ErrKind, e.Message)
}
func (e *APIError) Kind() ErrorKind { return EErrorKind.API() }

func NewAPIError(route string, status int, errKind, message string) error {
	return errors.WithStack(&APIError{Route: route, Status: status, ErrKind: errKind, Message: message})
}

// ConnectionError is raised when retries are exhausted without ever
// receiving a response.
type ConnectionError struct {
	Message    string
	Underlying error
}

func (e *ConnectionError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("connection error: %s: %v", e.Message, e.Underlying)
	}
	return "connection error: " + e.Message
}
func (e *ConnectionError) Kind() ErrorKind { return EErrorKind.Connection() }
func (e *ConnectionError) Unwrap() error   { return e.Underlying }

func NewConnectionError(underlying error, format string, args ...interface{}) error {
	return errors.WithStack(&ConnectionError{Message: fmt.Sprintf(format, args...), Underlying: underlying})
}

// ParseError is raised only after the retry budget is exhausted on a 2xx
// response whose body did not parse as JSON.
type ParseError struct {
	Route string
	Msg   string
}

func (e *ParseError) Error() string   { return fmt.Sprintf("%s: could not parse response: %s", e.Route, e.Msg) }
func (e *ParseError) Kind() ErrorKind { return EErrorKind.Parse() }

func NewParseError(route, format string, args ...interface{}) error {
	return errors.WithStack(&ParseError{Route: route, Msg: fmt.Sprintf(format, args...)})
}

// ChunkUploadError is raised when a single chunk exhausts triesLeft.
type ChunkUploadError struct {
	FileIndex    int
	PartIndex    int
	LastResponse string
}

func (e *ChunkUploadError) Error() string {
	return fmt.Sprintf("part %d of file %d failed all tries; last server response: %s", e.PartIndex, e.FileIndex, e.LastResponse)
}
func (e *ChunkUploadError) Kind() ErrorKind { return EErrorKind.ChunkUpload() }

func NewChunkUploadError(fileIndex, partIndex int, lastResponse string) error {
	return errors.WithStack(&ChunkUploadError{FileIndex: fileIndex, PartIndex: partIndex, LastResponse: lastResponse})
}

// OutOfMemoryError is the error kind for a worker running out of memory.
// Nothing in this module constructs it, and no once-only guard around its
// handling exists.
type OutOfMemoryError struct {
	Msg string
}

func (e *OutOfMemoryError) Error() string   { return "out of memory: " + e.Msg }
func (e *OutOfMemoryError) Kind() ErrorKind { return EErrorKind.OutOfMemory() }

func NewOutOfMemoryError(format string, args ...interface{}) error {
	return errors.WithStack(&OutOfMemoryError{Msg: fmt.Sprintf(format, args...)})
}

// Kinded is implemented by every error type above, exposing its ErrorKind.
type Kinded interface {
	error
	Kind() ErrorKind
}

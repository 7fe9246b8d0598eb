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
	"reflect"

	"github.com/JeffreyRichter/enum/enum"
)

// FileState mirrors the magic-number state strings the platform returns for
// a remote file's overall lifecycle. The wire contract keeps using the
// strings below; internally we always compare against this enum.
type FileState string

var EFileState FileState

func (FileState) Open() FileState    { return FileState("open") }
func (FileState) Closing() FileState { return FileState("closing") }
func (FileState) Closed() FileState  { return FileState("closed") }

func (f *FileState) Parse(s string) error {
	val, err := enum.Parse(reflect.TypeOf(f), s, false)
	if err == nil {
		*f = val.(FileState)
	}
	return err
}

func (f FileState) String() string {
	return enum.StringInt(f, reflect.TypeOf(f))
}

// PartState mirrors the per-part state strings found in a file's part
// manifest.
type PartState string

var EPartState PartState

func (PartState) Pending() PartState  { return PartState("pending") }
func (PartState) Complete() PartState { return PartState("complete") }

func (p *PartState) Parse(s string) error {
	val, err := enum.Parse(reflect.TypeOf(p), s, false)
	if err == nil {
		*p = val.(PartState)
	}
	return err
}

func (p PartState) String() string {
	return enum.StringInt(p, reflect.TypeOf(p))
}

// LogLevel controls which messages reach the job log. Values run from
// None and the most severe (Error) to the least severe (Debug), same
// ordering convention as the teacher's common.LogLevel.
type LogLevel uint8

var ELogLevel LogLevel

func (LogLevel) None() LogLevel    { return LogLevel(0) }
func (LogLevel) Error() LogLevel   { return LogLevel(1) }
func (LogLevel) Warning() LogLevel { return LogLevel(2) }
func (LogLevel) Info() LogLevel    { return LogLevel(3) }
func (LogLevel) Debug() LogLevel   { return LogLevel(4) }

func (l *LogLevel) Parse(s string) error {
	val, err := enum.Parse(reflect.TypeOf(l), s, true)
	if err == nil {
		*l = val.(LogLevel)
	}
	return err
}

func (l LogLevel) String() string {
	return enum.StringInt(l, reflect.TypeOf(l))
}

// ErrorKind tags the propagated error variants of spec §7, so callers can
// branch on kind without string-matching messages.
type ErrorKind uint8

var EErrorKind ErrorKind

func (ErrorKind) Config() ErrorKind      { return ErrorKind(1) }
func (ErrorKind) IO() ErrorKind          { return ErrorKind(2) }
func (ErrorKind) API() ErrorKind         { return ErrorKind(3) }
func (ErrorKind) Connection() ErrorKind  { return ErrorKind(4) }
func (ErrorKind) Parse() ErrorKind       { return ErrorKind(5) }
func (ErrorKind) ChunkUpload() ErrorKind { return ErrorKind(6) }
func (ErrorKind) OutOfMemory() ErrorKind { return ErrorKind(7) }

func (k ErrorKind) String() string {
	return enum.StringInt(k, reflect.TypeOf(k))
}

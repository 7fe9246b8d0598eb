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
	"io"
	"log"
	"os"
	"sync"
)

// ILogger is the narrow logging surface every package depends on; nothing
// outside this file knows that the implementation is a wrapped
// *log.Logger.
type ILogger interface {
	ShouldLog(level LogLevel) bool
	Log(level LogLevel, msg string)
}

type stdLogger struct {
	mu                sync.Mutex
	minimumLevelToLog LogLevel
	logger            *log.Logger
	file              io.Closer
}

// NewStdLogger builds a logger that writes to w (stderr for the CLI)
// filtered at minimumLevelToLog.
func NewStdLogger(w io.Writer, minimumLevelToLog LogLevel) ILogger {
	return &stdLogger{
		minimumLevelToLog: minimumLevelToLog,
		logger:            log.New(w, "", log.LstdFlags|log.LUTC),
	}
}

// NewFileLogger opens path for append and logs to it; the file is never
// rotated. Errors opening the file demote logging to stderr rather than
// aborting the run.
func NewFileLogger(path string, minimumLevelToLog LogLevel) ILogger {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		l := NewStdLogger(os.Stderr, minimumLevelToLog).(*stdLogger)
		l.Log(ELogLevel.Warning(), fmt.Sprintf("could not open log file %q: %v; logging to stderr", path, err))
		return l
	}
	return &stdLogger{
		minimumLevelToLog: minimumLevelToLog,
		logger:            log.New(f, "", log.LstdFlags|log.LUTC),
		file:              f,
	}
}

func (l *stdLogger) ShouldLog(level LogLevel) bool {
	if level == ELogLevel.None() {
		return false
	}
	return level <= l.minimumLevelToLog
}

func (l *stdLogger) Log(level LogLevel, msg string) {
	if !l.ShouldLog(level) {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logger.Println(level.String() + ": " + msg)
}

func (l *stdLogger) Close() {
	if l.file != nil {
		_ = l.file.Close()
	}
}

// nopLogger discards everything; used in tests.
type nopLogger struct{}

func (nopLogger) ShouldLog(LogLevel) bool  { return false }
func (nopLogger) Log(LogLevel, string)     {}

var NopLogger ILogger = nopLogger{}

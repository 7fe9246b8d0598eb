//go:build darwin

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

package memgovernor

import "syscall"

// currentRSSBytes uses getrusage(RUSAGE_SELF), whose Maxrss field on Darwin
// is already in bytes (unlike Linux, where it is KB) and, unlike Linux,
// tracks the process's live resident set closely enough in practice for a
// governor that only needs a coarse near/over-limit signal.
func currentRSSBytes() (int64, error) {
	var ru syscall.Rusage
	if err := syscall.Getrusage(syscall.RUSAGE_SELF, &ru); err != nil {
		return 0, err
	}
	return ru.Maxrss, nil
}

// availableMemoryBytes has no portable cgo-free equivalent of Linux's
// MemAvailable on Darwin (host_statistics64 requires cgo or
// golang.org/x/sys/unix, neither pulled in by the teacher's dependency
// set). We fall back to a fixed generous budget so the governor still
// throttles under genuine pressure (RSS climbing past 80% of it) without
// requiring a new platform-specific dependency; documented in DESIGN.md.
const darwinFallbackAvailableBytes = 8 << 30 // 8GiB

func availableMemoryBytes() (int64, error) {
	return darwinFallbackAvailableBytes, nil
}

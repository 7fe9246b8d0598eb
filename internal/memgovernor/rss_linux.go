//go:build linux

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

import (
	"bufio"
	"os"
	"strconv"
	"strings"
)

// currentRSSBytes reads VmRSS out of /proc/self/status. There is no
// syscall.Getrusage(RUSAGE_SELF) substitute on Linux that reports live RSS
// (it reports the high-water mark, Maxrss, not the current value), so
// /proc is the only source for a sample that can go back down.
func currentRSSBytes() (int64, error) {
	return readProcStatusField("/proc/self/status", "VmRSS:")
}

// availableMemoryBytes reads MemAvailable out of /proc/meminfo, the
// kernel's own free-for-allocation estimate (accounts for reclaimable
// cache, unlike MemFree alone).
func availableMemoryBytes() (int64, error) {
	return readProcStatusField("/proc/meminfo", "MemAvailable:")
}

func readProcStatusField(path, prefix string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		kb, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, err
		}
		return kb * 1024, nil
	}
	return 0, scanner.Err()
}

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
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
)

const (
	MiB int64 = 1024 * 1024
	KiB int64 = 1024

	MinChunkSize    = 5 * MiB
	MinThrottleRate = 4 * KiB
)

// ParseByteSizeSuffix parses the CLI grammar used for --chunk-size
// and --throttle: a plain integer optionally followed by a single-letter
// suffix B/K/M/G (binary multiples). This is a narrower grammar than
// humanize.ParseBytes accepts (which wants "KB"/"MiB"-style units), so it
// is hand-rolled; ByteSizeToString below reuses humanize for the inverse,
// human-facing direction.
func ParseByteSizeSuffix(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	suffix := s[len(s)-1]
	var mult int64 = 1
	numPart := s
	switch suffix {
	case 'B', 'b':
		mult = 1
		numPart = s[:len(s)-1]
	case 'K', 'k':
		mult = KiB
		numPart = s[:len(s)-1]
	case 'M', 'm':
		mult = MiB
		numPart = s[:len(s)-1]
	case 'G', 'g':
		mult = MiB * 1024
		numPart = s[:len(s)-1]
	default:
		numPart = s
	}
	n, err := strconv.ParseInt(strings.TrimSpace(numPart), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return n * mult, nil
}

// ByteSizeToString renders a byte count for progress/log output, e.g. for
// the streaming progress reporter (spec §4.6).
func ByteSizeToString(n int64) string {
	return humanize.IBytes(uint64(n))
}

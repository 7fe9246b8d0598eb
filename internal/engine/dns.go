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

package engine

import (
	"context"
	"math/rand"
	"net"
	"regexp"
)

// hostFromURL extracts the host component of a signed upload URL, mirroring
// original_source/src/ua/chunk.cpp's extractHostFromURL regex.
var hostFromURL = regexp.MustCompile(`^http[s]?://([^/:]+)(/|:|$)`)

// ipLiteral matches a dotted-quad so attemptResolve can skip DNS entirely
// when the URL already names an IP, per chunk.cpp's attemptExplicitDNSResolve.
var ipLiteral = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)

// ExtractHost returns the hostname embedded in rawURL, or "" if none matched.
func ExtractHost(rawURL string) string {
	m := hostFromURL.FindStringSubmatch(rawURL)
	if m == nil {
		return ""
	}
	return m[1]
}

// DNSResolver hands out one IP for a host, picking a random entry of the
// answer set on every call -- grounded on chunk.cpp's Chunk::uploadURL +
// getRandomIP. uploadChunk records the pick on the chunk (HostName,
// ResolvedIP) only; the PUT itself dials the URL's host name through the
// shared HTTP client, so the pick does not choose the A record used.
type DNSResolver struct {
	resolver *net.Resolver
}

// NewDNSResolver builds a resolver using the system default lookup.
func NewDNSResolver() *DNSResolver {
	return &DNSResolver{resolver: net.DefaultResolver}
}

// Resolve returns one randomly-chosen IP address for host, or ("", nil) if
// host is already an IP literal (no resolution needed).
func (d *DNSResolver) Resolve(ctx context.Context, host string) (string, error) {
	if ipLiteral.MatchString(host) {
		return "", nil
	}
	addrs, err := d.resolver.LookupIPAddr(ctx, host)
	if err != nil || len(addrs) == 0 {
		return "", err
	}
	return addrs[rand.Intn(len(addrs))].String(), nil
}

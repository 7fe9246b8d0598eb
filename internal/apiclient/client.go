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

// Package apiclient implements the single retrying call the platform API
// surface is built from, plus typed route wrappers in routes.go and greet.go.
package apiclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"runtime"
	"strconv"
	"sync"
	"time"

	"golang.org/x/net/http/httpproxy"

	"github.com/dnanexus/upload-agent/internal/common"
)

const (
	apiVersion          = "1.0.0"
	connectTimeout      = 30 * time.Second
	overallTimeout      = 1800 * time.Second
	defaultRetryAfter   = 60 * time.Second
	maxRetries          = 5
	retryBaseDelay      = 2 * time.Second
	concurrentDialsPerCPU = 10
)

var (
	globalHTTPClient     *http.Client
	globalHTTPClientOnce sync.Once
)

// getGlobalHTTPClient returns the process-wide *http.Client, built once.
// Mirrors azcopy's GetGlobalHTTPClient: one client, one connection pool,
// shared by every route call and every chunk upload.
func getGlobalHTTPClient(caCertPath string) *http.Client {
	globalHTTPClientOnce.Do(func() {
		tlsConfig := &tls.Config{}
		if caCertPath == "NOVERIFY" {
			tlsConfig.InsecureSkipVerify = true
		}
		globalHTTPClient = &http.Client{
			Timeout: overallTimeout,
			Transport: &http.Transport{
				Proxy:               httpproxy.FromEnvironment().ProxyFunc(),
				DialContext:         (&net.Dialer{Timeout: connectTimeout}).DialContext,
				TLSClientConfig:     tlsConfig,
				MaxConnsPerHost:     concurrentDialsPerCPU * runtime.NumCPU(),
				MaxIdleConnsPerHost: concurrentDialsPerCPU * runtime.NumCPU(),
				IdleConnTimeout:     180 * time.Second,
				TLSHandshakeTimeout: connectTimeout,
				DisableCompression:  true,
			},
		}
	})
	return globalHTTPClient
}

// Client is the handle every component makes API calls through. It carries
// the frozen Config snapshot and the shared HTTP transport.
type Client struct {
	cfg        common.Config
	httpClient *http.Client
	logger     common.ILogger

	// baseURLOverride replaces cfg.BaseURL() when set; used only by tests
	// to point Request at an httptest.Server.
	baseURLOverride string
}

func New(cfg common.Config, logger common.ILogger) *Client {
	if logger == nil {
		logger = common.NopLogger
	}
	return &Client{
		cfg:        cfg,
		httpClient: getGlobalHTTPClient(cfg.CACertPath),
		logger:     logger,
	}
}

// NewWithBaseURL builds a Client that sends every request to baseURL
// instead of cfg.BaseURL(), bypassing the global HTTP client's connection
// pool in favor of httpClient. Only tests call it, to run against an
// httptest.Server.
func NewWithBaseURL(cfg common.Config, logger common.ILogger, baseURL string, httpClient *http.Client) *Client {
	if logger == nil {
		logger = common.NopLogger
	}
	return &Client{
		cfg:             cfg,
		httpClient:      httpClient,
		logger:          logger,
		baseURLOverride: baseURL,
	}
}

// HTTPClient exposes the shared client so the chunk-upload path (which PUTs
// straight to a signed URL, bypassing Request) can reuse the same transport
// and connection pool.
func (c *Client) HTTPClient() *http.Client { return c.httpClient }

// always-safe errors: connection never established, TLS handshake failure,
// DNS failure. Retryable regardless of safeToRetry, because the request
// body was never sent (or never acknowledged) by the server. A *url.Error
// wrapping a post-send read/write failure does not qualify -- the server
// may already have acted on the request, so retrying a non-idempotent call
// on that basis is unsafe.
func isAlwaysSafeTransportError(err error) bool {
	if err == nil {
		return false
	}

	var urlErr *url.Error
	if !errors.As(err, &urlErr) {
		return false
	}
	inner := urlErr.Err

	var dnsErr *net.DNSError
	if errors.As(inner, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(inner, &opErr) {
		return opErr.Op == "dial"
	}

	var unknownAuth x509.UnknownAuthorityError
	if errors.As(inner, &unknownAuth) {
		return true
	}
	var hostnameErr x509.HostnameError
	if errors.As(inner, &hostnameErr) {
		return true
	}
	var recordHeaderErr tls.RecordHeaderError
	if errors.As(inner, &recordHeaderErr) {
		return true
	}

	return false
}

// apiErrorEnvelope is the server's own JSON error body shape.
type apiErrorEnvelope struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Request implements the single retrying call . route is
// appended to the configured base URL; body, if non-nil, is marshaled as
// the request body. safeToRetry widens the retry set to cover 5xx/dropped
// connections that happened after bytes were already written server-side
// (only safe when the call is known idempotent, e.g. GETs and describes).
func (c *Client) Request(ctx context.Context, route string, body interface{}, safeToRetry bool, extraHeaders map[string]string) (map[string]interface{}, error) {
	var payload []byte
	if body != nil {
		b, err := common.JSONMarshal(body)
		if err != nil {
			return nil, common.NewConfigError("marshaling request body for %s: %v", route, err)
		}
		payload = b
	}

	policy := common.RetryPolicy{
		MaxTries:  maxRetries,
		BaseDelay: retryBaseDelay,
		MaxDelay:  0,
		Classify: func(err error) (common.Classification, time.Duration) {
			if ra, ok := err.(*retryAfterError); ok {
				return common.RetryableFree, ra.wait
			}
			if _, ok := err.(*fatalAPIError); ok {
				return common.Fatal, 0
			}
			return common.Retryable, 0
		},
	}

	var result map[string]interface{}
	err := policy.Do(ctx, func(attempt uint) error {
		select {
		case <-ctx.Done():
			return common.NewConnectionError(ctx.Err(), "cancelled before sending request to %s", route)
		default:
		}

		req, err := c.newRequest(ctx, route, payload, extraHeaders)
		if err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if safeToRetry || isAlwaysSafeTransportError(err) {
				return common.NewConnectionError(err, "transport error calling %s", route)
			}
			return &fatalAPIError{common.NewConnectionError(err, "transport error calling %s (not safe to retry)", route)}
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusServiceUnavailable {
			wait := defaultRetryAfter
			if ra := resp.Header.Get("Retry-After"); ra != "" {
				if secs, perr := strconv.Atoi(ra); perr == nil {
					wait = time.Duration(secs) * time.Second
				}
			}
			io.Copy(io.Discard, resp.Body)
			return &retryAfterError{wait: wait}
		}

		bodyBytes, readErr := io.ReadAll(resp.Body)

		if resp.StatusCode >= 500 {
			if safeToRetry {
				return common.NewAPIError(route, resp.StatusCode, "ServerError", string(bodyBytes))
			}
			return &fatalAPIError{decodeAPIError(route, resp.StatusCode, bodyBytes)}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return &fatalAPIError{decodeAPIError(route, resp.StatusCode, bodyBytes)}
		}

		// 2xx: check Content-Length against what we actually read.
		declared := resp.ContentLength
		if readErr != nil {
			return common.NewConnectionError(readErr, "reading response body from %s", route)
		}
		if declared >= 0 && declared != int64(len(bodyBytes)) {
			if safeToRetry {
				return common.NewConnectionError(nil, "short read from %s: declared %d got %d bytes", route, declared, len(bodyBytes))
			}
			return &fatalAPIError{common.NewParseError(route, "content-length mismatch and not safe to retry")}
		}

		var parsed map[string]interface{}
		if err := common.JSONUnmarshal(bodyBytes, &parsed); err != nil {
			// Retried whether or not Content-Length was declared; surfaces
			// as a ParseError once the retry budget is exhausted.
			return common.NewParseError(route, "invalid JSON body: %v", err)
		}
		result = parsed
		return nil
	})

	if err != nil {
		if fe, ok := err.(*fatalAPIError); ok {
			return nil, fe.err
		}
		return nil, err
	}
	return result, nil
}

// fatalAPIError marks an error as non-retryable for RetryPolicy.Classify,
// while still carrying the real common.Kinded error to surface to the caller.
type fatalAPIError struct{ err error }

func (f *fatalAPIError) Error() string { return f.err.Error() }
func (f *fatalAPIError) Unwrap() error { return f.err }

// retryAfterError signals the HTTP 503 + Retry-After case; classified
// RetryableFree so the sleep does not count against the retry budget.
type retryAfterError struct{ wait time.Duration }

func (e *retryAfterError) Error() string { return fmt.Sprintf("503 Service Unavailable, retry after %s", e.wait) }

func (c *Client) newRequest(ctx context.Context, route string, payload []byte, extraHeaders map[string]string) (*http.Request, error) {
	base := c.cfg.BaseURL()
	if c.baseURLOverride != "" {
		base = c.baseURLOverride
	}
	fullURL := base + route
	var bodyReader io.Reader
	if payload != nil {
		bodyReader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fullURL, bodyReader)
	if err != nil {
		return nil, common.NewConfigError("building request to %s: %v", route, err)
	}

	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", c.cfg.AuthToken)
	req.Header.Set("DNAnexus-API", apiVersion)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}
	return req, nil
}

func decodeAPIError(route string, status int, body []byte) error {
	var env apiErrorEnvelope
	if err := common.JSONUnmarshal(body, &env); err == nil && env.Error.Type != "" {
		return common.NewAPIError(route, status, env.Error.Type, env.Error.Message)
	}
	return common.NewAPIError(route, status, "Unknown", string(body))
}

package apiclient

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnanexus/upload-agent/internal/common"
)

func clientForServer(srv *httptest.Server) *Client {
	cfg := common.Config{AuthToken: "Bearer testtoken", UserAgent: "dx-upload-agent-test"}
	return NewWithBaseURL(cfg, common.NopLogger, srv.URL, srv.Client())
}

func TestRequestSuccessParsesJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer testtoken", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"file-000000000000000000000001"}`))
	}))
	defer srv.Close()

	c := clientForServer(srv)
	resp, err := c.Request(context.Background(), "/file/new", map[string]interface{}{"name": "x"}, false, nil)
	require.NoError(t, err)
	assert.Equal(t, "file-000000000000000000000001", resp["id"])
}

func TestRequestRetriesOn5xxWhenSafe(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := clientForServer(srv)
	resp, err := c.Request(context.Background(), "/system/findProjects", nil, true, nil)
	require.NoError(t, err)
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, int32(3), atomic.LoadInt32(&attempts))
}

func TestRequestDoesNotRetry5xxWhenUnsafe(t *testing.T) {
	var attempts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":{"type":"InternalError","message":"boom"}}`))
	}))
	defer srv.Close()

	c := clientForServer(srv)
	_, err := c.Request(context.Background(), "/file/new", nil, false, nil)
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&attempts))

	var apiErr *common.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "InternalError", apiErr.ErrKind)
}

func TestRequestMandatoryHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1.0.0", r.Header.Get("DNAnexus-API"))
		assert.Equal(t, "dx-upload-agent-test", r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json; charset=utf-8", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := clientForServer(srv)
	_, err := c.Request(context.Background(), "/system/findProjects", nil, true, nil)
	require.NoError(t, err)
}

func TestIsAlwaysSafeTransportErrorOnDialFailure(t *testing.T) {
	err := &url.Error{Op: "Put", URL: "https://example.invalid/x", Err: &net.OpError{Op: "dial", Err: assertableErr("refused")}}
	assert.True(t, isAlwaysSafeTransportError(err))
}

func TestIsAlwaysSafeTransportErrorOnDNSFailure(t *testing.T) {
	err := &url.Error{Op: "Put", URL: "https://example.invalid/x", Err: &net.DNSError{Err: "no such host", Name: "example.invalid"}}
	assert.True(t, isAlwaysSafeTransportError(err))
}

func TestIsAlwaysSafeTransportErrorNotOnPostSendReadFailure(t *testing.T) {
	// An OpError whose Op is "read" (or "write") means the request already
	// reached the server -- retrying blindly risks replaying a non-idempotent
	// call, so this must not be classified as always-safe.
	err := &url.Error{Op: "Put", URL: "https://example.invalid/x", Err: &net.OpError{Op: "read", Err: assertableErr("connection reset")}}
	assert.False(t, isAlwaysSafeTransportError(err))
}

func TestIsAlwaysSafeTransportErrorOnNonURLError(t *testing.T) {
	assert.False(t, isAlwaysSafeTransportError(assertableErr("some other error")))
}

type assertableErr string

func (e assertableErr) Error() string { return string(e) }

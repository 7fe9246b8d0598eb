package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnanexus/upload-agent/internal/apiclient"
	"github.com/dnanexus/upload-agent/internal/common"
)

func newTestResolver(t *testing.T, handler http.HandlerFunc) (*Resolver, func()) {
	t.Helper()
	srv := httptest.NewServer(handler)
	cfg := common.Config{AuthToken: "Bearer testtoken", UserAgent: "dx-upload-agent-test"}
	c := apiclient.NewWithBaseURL(cfg, common.NopLogger, srv.URL, srv.Client())
	return New(c), srv.Close
}

func TestResolveProjectSingleMatchByName(t *testing.T) {
	r, closeSrv := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		switch req.URL.Path {
		case "/system/findProjects":
			w.Write([]byte(`{"results":[{"id":"project-000000000000000000000001","name":"MyProj","level":"UPLOAD"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	defer closeSrv()

	id, err := r.ResolveProject(context.Background(), "MyProj")
	require.NoError(t, err)
	assert.Equal(t, "project-000000000000000000000001", id)

	// second call is memoized -- no further HTTP traffic needed, so hit it
	// again against the same (closed-after-test) resolver to confirm cache.
	id2, err := r.ResolveProject(context.Background(), "MyProj")
	require.NoError(t, err)
	assert.Equal(t, id, id2)
}

func TestResolveProjectNotFound(t *testing.T) {
	r, closeSrv := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	})
	defer closeSrv()

	_, err := r.ResolveProject(context.Background(), "nope")
	require.Error(t, err)
}

func TestResolveProjectAmbiguous(t *testing.T) {
	r, closeSrv := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"results":[
			{"id":"project-000000000000000000000001","name":"Dup","level":"UPLOAD"},
			{"id":"project-000000000000000000000002","name":"Dup","level":"CONTRIBUTE"}
		]}`))
	})
	defer closeSrv()

	_, err := r.ResolveProject(context.Background(), "Dup")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ambiguous")
}

func TestCreateFolderSkipsRoot(t *testing.T) {
	called := false
	r, closeSrv := newTestResolver(t, func(w http.ResponseWriter, req *http.Request) {
		called = true
		w.Write([]byte(`{}`))
	})
	defer closeSrv()

	err := r.CreateFolder(context.Background(), "project-000000000000000000000001", "/")
	require.NoError(t, err)
	assert.False(t, called)
}

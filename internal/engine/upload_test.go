package engine

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnanexus/upload-agent/internal/apiclient"
	"github.com/dnanexus/upload-agent/internal/common"
	"github.com/dnanexus/upload-agent/internal/model"
)

func TestUploadChunkSendsSignedPUT(t *testing.T) {
	var gotBody []byte
	var gotMD5 string

	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotMD5 = r.Header.Get("Content-MD5")
		w.WriteHeader(http.StatusOK)
	}))
	defer storage.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"url":"` + storage.URL + `","headers":{}}`))
	}))
	defer api.Close()

	cfg := common.Config{AuthToken: "Bearer t", UserAgent: "ua-test"}
	client := apiclient.NewWithBaseURL(cfg, common.NopLogger, api.URL, api.Client())

	f := &model.File{RemoteFileID: "file-1", LocalPath: "/tmp/x"}
	p := &Pipeline{files: []*model.File{f}, client: client}

	c := model.Chunk{FileIndex: 0, PartIndex: 1, Data: []byte("payload"), TriesLeft: 3}
	require.NoError(t, uploadChunk(context.Background(), p, c))
	assert.Equal(t, []byte("payload"), gotBody)
	assert.NotEmpty(t, gotMD5)
}

func TestUploadChunkSurfacesStorageError(t *testing.T) {
	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer storage.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"url":"` + storage.URL + `","headers":{}}`))
	}))
	defer api.Close()

	cfg := common.Config{AuthToken: "Bearer t", UserAgent: "ua-test"}
	client := apiclient.NewWithBaseURL(cfg, common.NopLogger, api.URL, api.Client())

	f := &model.File{RemoteFileID: "file-1"}
	p := &Pipeline{files: []*model.File{f}, client: client}

	c := model.Chunk{FileIndex: 0, PartIndex: 1, Data: []byte("payload"), TriesLeft: 3}
	err := uploadChunk(context.Background(), p, c)
	require.Error(t, err)
}

func TestRetryBackoffGrowsAndCaps(t *testing.T) {
	first := retryBackoff(maxUploadRetries, maxUploadRetries-1)
	later := retryBackoff(maxUploadRetries, 1)
	assert.Less(t, first, later)
	assert.LessOrEqual(t, later.Seconds(), 256.0)
}

func TestRetryBackoffKeyedOffChunkOwnTryBudgetNotCompletionConstant(t *testing.T) {
	// A chunk seeded from --tries=3 on its first retry (TriesLeft
	// decremented from 3 to 2) must back off the same 8s a fresh first
	// retry always does, independent of maxUploadRetries.
	fromDefaultTries := retryBackoff(3, 2)
	fromCompletionPass := retryBackoff(maxUploadRetries, maxUploadRetries-1)
	assert.Equal(t, fromCompletionPass, fromDefaultTries)
	assert.Equal(t, 8*time.Second, fromDefaultTries)
}

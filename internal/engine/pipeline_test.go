package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/dnanexus/upload-agent/internal/apiclient"
	"github.com/dnanexus/upload-agent/internal/common"
	"github.com/dnanexus/upload-agent/internal/model"
)

// TestPipelineEndToEndSingleChunk drives one small, uncompressed chunk all
// the way from Read through Upload against a fake storage+API server, then
// confirms the monitor observes completion and closes the queues so every
// worker exits cleanly.
func TestPipelineEndToEndSingleChunk(t *testing.T) {
	content := []byte("the quick brown fox")
	tmp, err := os.CreateTemp(t.TempDir(), "ua-test-*")
	require.NoError(t, err)
	_, err = tmp.Write(content)
	require.NoError(t, err)
	require.NoError(t, tmp.Close())

	storage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer storage.Close()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"url":"` + storage.URL + `","headers":{}}`))
	}))
	defer api.Close()

	cfg := common.Config{AuthToken: "Bearer t", UserAgent: "ua-test"}
	client := apiclient.NewWithBaseURL(cfg, common.NopLogger, api.URL, api.Client())

	f := &model.File{LocalPath: tmp.Name(), RemoteFileID: "file-1", Size: int64(len(content)), ChunkSize: int64(len(content))}
	p := NewPipeline([]*model.File{f}, 1, 4, client, nil, nil, true, nil, common.NopLogger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error { return runReadStage(ctx, p) })
	g.Go(func() error { return runCompressStage(ctx, p) })
	g.Go(func() error { return runUploadStage(ctx, p) })

	require.NoError(t, p.Enqueue(ctx, model.Chunk{
		FileIndex: 0, PartIndex: 1, Start: 0, End: int64(len(content)), Last: true,
		ToCompress: false, TriesLeft: 3,
	}))
	p.CloseInputs()

	require.NoError(t, RunMonitor(ctx, p, common.NopLogger))
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, p.FinishedCount())
	assert.Equal(t, 0, p.FailedCount())
	assert.Equal(t, int64(len(content)), f.BytesUploaded())
}

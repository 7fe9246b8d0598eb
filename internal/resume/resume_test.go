package resume

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnanexus/upload-agent/internal/apiclient"
	"github.com/dnanexus/upload-agent/internal/common"
	"github.com/dnanexus/upload-agent/internal/model"
)

func testClient(t *testing.T, body string) (*apiclient.Client, func()) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body))
	}))
	cfg := common.Config{AuthToken: "Bearer t", UserAgent: "ua-test"}
	return apiclient.NewWithBaseURL(cfg, common.NopLogger, srv.URL, srv.Client()), srv.Close
}

func TestFindResumeTargetNoMatches(t *testing.T) {
	c, closeSrv := testClient(t, `{"results":[]}`)
	defer closeSrv()

	target, err := FindResumeTarget(context.Background(), c, "project-1", "fp")
	require.NoError(t, err)
	assert.Equal(t, OutcomeNew, target.Outcome)
}

func TestFindResumeTargetAlreadyClosed(t *testing.T) {
	c, closeSrv := testClient(t, `{"results":[{"id":"file-1","describe":{"state":"closed","parts":{}}}]}`)
	defer closeSrv()

	target, err := FindResumeTarget(context.Background(), c, "project-1", "fp")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyComplete, target.Outcome)
	assert.Equal(t, "file-1", target.RemoteFileID)
}

func TestFindResumeTargetOpenAdoptsParts(t *testing.T) {
	c, closeSrv := testClient(t, `{"results":[{"id":"file-1","describe":{"state":"open","parts":{"1":{"state":"complete","size":5242880,"md5":"x"},"2":{"state":"pending","size":1000,"md5":""}}}}]}`)
	defer closeSrv()

	target, err := FindResumeTarget(context.Background(), c, "project-1", "fp")
	require.NoError(t, err)
	assert.Equal(t, OutcomeResumeOpen, target.Outcome)
	assert.Equal(t, "complete", target.Parts[1].State)
}

func TestFindResumeTargetAmbiguous(t *testing.T) {
	c, closeSrv := testClient(t, `{"results":[{"id":"file-1","describe":{"state":"open","parts":{}}},{"id":"file-2","describe":{"state":"open","parts":{}}}]}`)
	defer closeSrv()

	target, err := FindResumeTarget(context.Background(), c, "project-1", "fp")
	require.NoError(t, err)
	assert.Equal(t, OutcomeAmbiguous, target.Outcome)
	assert.ElementsMatch(t, []string{"file-1", "file-2"}, target.Candidates)
}

func TestApplyResumeCreditsCompletedParts(t *testing.T) {
	f := &model.File{Size: 12 * 1024 * 1024, ChunkSize: 5 * 1024 * 1024}
	target := Target{
		Outcome:      OutcomeResumeOpen,
		RemoteFileID: "file-1",
		Parts: map[int]apiclient.PartInfo{
			1: {State: "complete", Size: 5 * 1024 * 1024},
			2: {State: "pending", Size: 5 * 1024 * 1024},
		},
	}
	ApplyResume(f, target)
	assert.Equal(t, "file-1", f.RemoteFileID)
	assert.Equal(t, int64(5*1024*1024), f.BytesUploaded())
}

func TestDetectCrossFileCollision(t *testing.T) {
	groups := GroupByFingerprint("project-1", []string{"/a.txt", "/b.txt"}, []string{"fp-same", "fp-same"})
	err := DetectCrossFileCollision(groups)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "identical fingerprints")
}

func TestDetectCrossFileCollisionNoneWhenDistinct(t *testing.T) {
	groups := GroupByFingerprint("project-1", []string{"/a.txt", "/b.txt"}, []string{"fp-a", "fp-b"})
	require.NoError(t, DetectCrossFileCollision(groups))
}

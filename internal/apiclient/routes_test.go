package apiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileUploadParsesSignedURLAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"url":"https://upload.example.com/part1","headers":{"x-upload-id":"abc123"}}`))
	}))
	defer srv.Close()

	c := clientForServer(srv)
	u, err := c.FileUpload(context.Background(), "file-000000000000000000000001", 1, 5242880, "d41d8cd98f00b204e9800998ecf8427e")
	require.NoError(t, err)
	assert.Equal(t, "https://upload.example.com/part1", u.URL)
	assert.Equal(t, "abc123", u.Headers["x-upload-id"])
}

func TestFileDescribeParsesPartManifest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"state":"open","parts":{"1":{"state":"complete","size":5242880,"md5":"abc"},"2":{"state":"pending","size":1000,"md5":""}}}`))
	}))
	defer srv.Close()

	c := clientForServer(srv)
	state, parts, err := c.FileDescribe(context.Background(), "file-000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "open", state)
	require.Contains(t, parts, 1)
	assert.Equal(t, "complete", parts[1].State)
	assert.Equal(t, int64(5242880), parts[1].Size)
	assert.Equal(t, "pending", parts[2].State)
}

func TestFindDataObjectsParsesDescribedResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"results":[{"id":"file-000000000000000000000002","describe":{"state":"closed","parts":{"1":{"state":"complete","size":10,"md5":"x"}}}}]}`))
	}))
	defer srv.Close()

	c := clientForServer(srv)
	found, err := c.FindDataObjects(context.Background(), "project-000000000000000000000000", "10 1700000000 false 5242880 /a/b.txt")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "file-000000000000000000000002", found[0].ID)
	assert.Equal(t, "closed", found[0].State)
	assert.Equal(t, "complete", found[0].Parts[1].State)
}

func TestFindProjectsParsesResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"results":[{"id":"project-000000000000000000000000","name":"MyProj","level":"UPLOAD"}]}`))
	}))
	defer srv.Close()

	c := clientForServer(srv)
	projs, err := c.FindProjects(context.Background(), "MyProj")
	require.NoError(t, err)
	require.Len(t, projs, 1)
	assert.Equal(t, "project-000000000000000000000000", projs[0].ID)
}

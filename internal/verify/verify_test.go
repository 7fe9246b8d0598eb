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

package verify

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dnanexus/upload-agent/internal/apiclient"
	"github.com/dnanexus/upload-agent/internal/common"
)

func hexMD5(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func TestRunReportsIdenticalWhenEveryPartMatches(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog")
	local := writeTempFile(t, content)
	md5hex := hexMD5(content)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"state":"closed","size":` + strconv.Itoa(len(content)) + `,"parts":{"1":{"state":"complete","size":` + strconv.Itoa(len(content)) + `,"md5":"` + md5hex + `"}}}`))
	}))
	defer api.Close()

	cfg := common.Config{AuthToken: "Bearer t", UserAgent: "verify-test"}
	client := apiclient.NewWithBaseURL(cfg, common.NopLogger, api.URL, api.Client())

	results, err := Run(context.Background(), client, []string{local}, []string{"file-1"}, DefaultOptions(), common.NopLogger)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Identical)
}

func TestRunReportsMismatchOnBadMD5(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog")
	local := writeTempFile(t, content)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"state":"closed","size":` + strconv.Itoa(len(content)) + `,"parts":{"1":{"state":"complete","size":` + strconv.Itoa(len(content)) + `,"md5":"deadbeef"}}}`))
	}))
	defer api.Close()

	cfg := common.Config{AuthToken: "Bearer t", UserAgent: "verify-test"}
	client := apiclient.NewWithBaseURL(cfg, common.NopLogger, api.URL, api.Client())

	results, err := Run(context.Background(), client, []string{local}, []string{"file-1"}, DefaultOptions(), common.NopLogger)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Identical)
	assert.Contains(t, results[0].Reason, "expected md5")
}

func TestRunReportsMismatchWhenOnePartIsBad(t *testing.T) {
	content := make([]byte, 20)
	local := writeTempFile(t, content)

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"state":"closed","size":20,"parts":{"1":{"state":"complete","size":10,"md5":"deadbeef"},"2":{"state":"complete","size":10,"md5":"` + hexMD5(content[10:20]) + `"}}}`))
	}))
	defer api.Close()

	cfg := common.Config{AuthToken: "Bearer t", UserAgent: "verify-test"}
	client := apiclient.NewWithBaseURL(cfg, common.NopLogger, api.URL, api.Client())

	results, err := Run(context.Background(), client, []string{local}, []string{"file-1"}, DefaultOptions(), common.NopLogger)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Identical)
}

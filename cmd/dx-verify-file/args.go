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

package main

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/dnanexus/upload-agent/internal/common"
	"github.com/dnanexus/upload-agent/internal/verify"
)

const defaultReadThreads = 1

func defaultMD5Threads() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// rawVerifyArgs holds exactly what pflag parsed, unvalidated, following
// options.cpp's flat field layout.
type rawVerifyArgs struct {
	authToken         string
	apiserverProtocol string
	apiserverHost     string
	apiserverPort     string
	certificateFile   string

	localFiles  []string
	remoteFiles []string

	readThreads int
	md5Threads  int
	verbose     bool
}

// cookedVerifyArgs is the validated form raw.cook() produces.
type cookedVerifyArgs struct {
	localFiles  []string
	remoteFiles []string
	cfg         common.Config
	opts        verify.Options
}

// cook validates raw the way options.cpp's validate() does: an equal,
// nonzero number of --local-file/--remote-file pairs, every local file
// resolved to its canonical (symlink-free) path, positive thread counts.
func (raw rawVerifyArgs) cook(configDir string) (cookedVerifyArgs, error) {
	var cooked cookedVerifyArgs

	if len(raw.localFiles) != len(raw.remoteFiles) {
		return cooked, common.NewConfigError(
			"equal numbers of --local-file and --remote-file must be specified; got %d local files and %d remote files",
			len(raw.localFiles), len(raw.remoteFiles))
	}
	if len(raw.localFiles) < 1 {
		return cooked, common.NewConfigError("at least one --local-file/--remote-file pair must be specified")
	}

	localFiles := make([]string, len(raw.localFiles))
	for i, p := range raw.localFiles {
		if _, err := os.Stat(p); err != nil {
			return cooked, common.NewConfigError("file %q does not exist", p)
		}
		resolved, err := filepath.EvalSymlinks(p)
		if err != nil {
			resolved = p
		}
		localFiles[i] = resolved
	}
	cooked.localFiles = localFiles
	cooked.remoteFiles = raw.remoteFiles

	cliOverrides := map[string]string{}
	if raw.apiserverProtocol != "" {
		cliOverrides["DX_APISERVER_PROTOCOL"] = raw.apiserverProtocol
	}
	if raw.apiserverHost != "" {
		cliOverrides["DX_APISERVER_HOST"] = raw.apiserverHost
	}
	if raw.apiserverPort != "" {
		cliOverrides["DX_APISERVER_PORT"] = raw.apiserverPort
	}
	if raw.certificateFile != "" {
		cliOverrides["DX_CA_CERT"] = raw.certificateFile
	}
	if raw.authToken != "" {
		cliOverrides["DX_SECURITY_CONTEXT"] = `{"auth_token_type":"Bearer","auth_token":"` + raw.authToken + `"}`
	}
	cfg, warnings := common.LoadConfig(configDir, cliOverrides)
	for _, w := range warnings {
		os.Stderr.WriteString("WARNING: " + w + "\n")
	}
	if cfg.AuthToken == "" {
		return cooked, common.NewConfigError("no auth token available; pass --auth-token or set DX_SECURITY_CONTEXT")
	}
	cooked.cfg = cfg

	if raw.readThreads < 1 {
		return cooked, common.NewConfigError("number of read threads must be positive: %d", raw.readThreads)
	}
	if raw.md5Threads < 1 {
		return cooked, common.NewConfigError("number of MD5 compute threads must be positive: %d", raw.md5Threads)
	}
	cooked.opts = verify.Options{
		ReadThreads: raw.readThreads,
		MD5Threads:  raw.md5Threads,
		QueueDepth:  4 * (raw.readThreads + raw.md5Threads),
	}

	return cooked, nil
}

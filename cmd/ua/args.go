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
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/dnanexus/upload-agent/internal/common"
	"github.com/dnanexus/upload-agent/internal/importer"
)

const (
	defaultChunkSize      = "75M"
	defaultReadThreads    = 2
	defaultUploadThreads  = 8
	defaultTries          = 3
	defaultFolder         = "/"
)

func defaultCompressThreads() int {
	n := runtime.NumCPU() - 1
	if n > 8 {
		n = 8
	}
	if n < 1 {
		n = 1
	}
	return n
}

// rawUploadArgs holds exactly what pflag parsed, unvalidated. cook()
// derives a cookedUploadArgs from it, mirroring rawCopyCmdArgs/cook() in
// azcopy's cmd package.
type rawUploadArgs struct {
	files []string

	authToken          string
	apiserverProtocol  string
	apiserverHost      string
	apiserverPort      string
	certificateFile    string

	projects []string
	folders  []string
	names    []string

	readThreads     int
	compressThreads int
	uploadThreads   int
	chunkSize       string
	throttle        string
	tries           int

	doNotCompress bool
	progress      bool
	verbose       bool
	waitOnClose   bool
	doNotResume   bool

	reads       bool
	pairedReads bool
	mappings    bool
	variants    bool
	refGenome   string
}

// cookedUploadArgs is the validated, derived form raw.cook() produces:
// one project/folder/name triple per file, already defaulted and
// count-checked.
type cookedUploadArgs struct {
	files    []string
	projects []string
	folders  []string
	names    []string

	cfg common.Config

	readThreads     int
	compressThreads int
	uploadThreads   int
	chunkSize       int64
	throttle        int64 // -1 == unthrottled
	tries           int

	doNotCompress bool
	progress      bool
	waitOnClose   bool
	doNotResume   bool

	importKind  importer.Kind // "" when no import flag was given
	refGenome   string
}

// cook validates raw and expands its per-file flag sets to one entry per
// file, following options.cpp's validate(): a single project/folder
// broadcasts to every file, an explicit list must match the file count
// exactly, and --name (when given) needs one entry per file; anything else
// is a ConfigError.
func (raw rawUploadArgs) cook(configDir string) (cookedUploadArgs, error) {
	var cooked cookedUploadArgs

	if len(raw.files) == 0 {
		return cooked, common.NewConfigError("must specify at least one file to upload")
	}
	cooked.files = raw.files

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
		cliOverrides["DX_SECURITY_CONTEXT"] = fmt.Sprintf(`{"auth_token_type":"Bearer","auth_token":%q}`, raw.authToken)
	}
	cfg, warnings := common.LoadConfig(configDir, cliOverrides)
	for _, w := range warnings {
		os.Stderr.WriteString("WARNING: " + w + "\n")
	}
	if cfg.AuthToken == "" {
		return cooked, common.NewConfigError("no auth token available; pass --auth-token or set DX_SECURITY_CONTEXT")
	}
	cooked.cfg = cfg

	names := raw.names
	if len(names) == 0 {
		names = make([]string, len(raw.files))
		for i, f := range raw.files {
			names[i] = filepath.Base(f)
		}
	} else if len(names) != len(raw.files) {
		return cooked, common.NewConfigError(
			"must specify a name for each file; there are %d files but %d names were provided", len(raw.files), len(names))
	}
	cooked.names = names

	projects := raw.projects
	if len(projects) == 0 {
		if cfg.Project == "" {
			return cooked, common.NewConfigError("a project must be specified with --project (or DX_PROJECT_CONTEXT_ID)")
		}
		projects = []string{cfg.Project}
	}
	if len(projects) == 1 {
		broadcast := projects[0]
		projects = make([]string, len(raw.files))
		for i := range projects {
			projects[i] = broadcast
		}
	} else if len(projects) != len(raw.files) {
		return cooked, common.NewConfigError(
			"must specify a project for each file; there are %d files but %d projects were provided", len(raw.files), len(projects))
	}
	cooked.projects = projects

	folders := raw.folders
	if len(folders) == 0 {
		folders = []string{defaultFolder}
	}
	if len(folders) == 1 {
		broadcast := folders[0]
		folders = make([]string, len(raw.files))
		for i := range folders {
			folders[i] = broadcast
		}
	} else if len(folders) != len(raw.files) {
		return cooked, common.NewConfigError(
			"must specify a folder for each file; there are %d files but %d folders were provided", len(raw.files), len(folders))
	}
	cooked.folders = folders

	if raw.readThreads < 1 {
		return cooked, common.NewConfigError("number of read threads must be positive: %d", raw.readThreads)
	}
	if raw.compressThreads < 1 {
		return cooked, common.NewConfigError("number of compression threads must be positive: %d", raw.compressThreads)
	}
	if raw.uploadThreads < 1 {
		return cooked, common.NewConfigError("number of upload threads must be positive: %d", raw.uploadThreads)
	}
	cooked.readThreads = raw.readThreads
	cooked.compressThreads = raw.compressThreads
	cooked.uploadThreads = raw.uploadThreads
	cooked.tries = raw.tries
	if cooked.tries < 1 {
		return cooked, common.NewConfigError("number of tries per chunk must be positive: %d", raw.tries)
	}

	chunkSize, err := common.ParseByteSizeSuffix(raw.chunkSize)
	if err != nil {
		return cooked, common.NewConfigError("invalid --chunk-size %q: %v", raw.chunkSize, err)
	}
	if chunkSize < common.MinChunkSize {
		return cooked, common.NewConfigError("minimum chunk size is %d (5 MiB): %d", common.MinChunkSize, chunkSize)
	}
	cooked.chunkSize = chunkSize

	cooked.throttle = -1
	if raw.throttle != "" {
		throttle, err := common.ParseByteSizeSuffix(raw.throttle)
		if err != nil {
			return cooked, common.NewConfigError("invalid --throttle %q: %v", raw.throttle, err)
		}
		if throttle < common.MinThrottleRate {
			return cooked, common.NewConfigError("uploads are throttled to %d bytes/sec, below the %d bytes/sec minimum", throttle, common.MinThrottleRate)
		}
		cooked.throttle = throttle
	}

	cooked.doNotCompress = raw.doNotCompress
	cooked.progress = raw.progress
	cooked.waitOnClose = raw.waitOnClose
	cooked.doNotResume = raw.doNotResume

	importFlags := 0
	if raw.reads {
		importFlags++
	}
	if raw.pairedReads {
		importFlags++
	}
	if raw.mappings {
		importFlags++
	}
	if raw.variants {
		importFlags++
	}
	if importFlags > 1 {
		return cooked, common.NewConfigError("only one of --reads, --paired-reads, --mappings, --variants may be given")
	}
	needsRefGenome := raw.mappings || raw.variants
	if needsRefGenome && raw.refGenome == "" {
		return cooked, common.NewConfigError("--ref-genome is required with --mappings or --variants")
	}
	if !needsRefGenome && raw.refGenome != "" {
		return cooked, common.NewConfigError("--ref-genome is only valid with --mappings or --variants")
	}
	switch {
	case raw.reads:
		cooked.importKind = importer.KindReads
	case raw.pairedReads:
		cooked.importKind = importer.KindPairedReads
		if len(raw.files)%2 != 0 {
			return cooked, common.NewConfigError("an even number of files (left/right read pairs) is required with --paired-reads")
		}
	case raw.mappings:
		cooked.importKind = importer.KindMappings
	case raw.variants:
		cooked.importKind = importer.KindVariants
	}
	cooked.refGenome = raw.refGenome

	return cooked, nil
}

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

// Command dx-upload-agent wires flag parsing and validation
// (rawUploadArgs.cook), orchestration of resolver/resume/engine/importer
// (run.go), and the process exit code.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dnanexus/upload-agent/internal/common"
)

// exitCode is set by RunE's error path and read by main() after Execute
// returns, since cobra itself only distinguishes "error" from "no error".
var exitCode int

var raw rawUploadArgs

var rootCmd = &cobra.Command{
	Use:   "dx-upload-agent [file ...]",
	Short: "Upload local files to the DNAnexus platform",
	Long: `dx-upload-agent uploads one or more local files to a DNAnexus project as
multipart objects, resuming an interrupted upload by fingerprint and
optionally chaining a follow-on import applet once every upload closes.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw.files = args
		cooked, err := raw.cook(os.Getenv("DX_USER_CONF_DIR"))
		if err != nil {
			exitCode = 1
			return err
		}

		logLevel := common.ELogLevel.Info()
		if raw.verbose {
			logLevel = common.ELogLevel.Debug()
		}
		logger := common.NewStdLogger(os.Stderr, logLevel)

		anyFailed, err := cooked.run(cmd.Context(), logger)
		if err != nil {
			var mustUpgrade *errMustUpgrade
			if errors.As(err, &mustUpgrade) {
				exitCode = 3
			} else {
				exitCode = 1
			}
			return err
		}
		if anyFailed {
			exitCode = 1
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&raw.authToken, "auth-token", "", "API authentication token")
	flags.StringVar(&raw.apiserverProtocol, "apiserver-protocol", "", "API server protocol (https)")
	flags.StringVar(&raw.apiserverHost, "apiserver-host", "", "API server host")
	flags.StringVar(&raw.apiserverPort, "apiserver-port", "", "API server port")
	flags.StringVar(&raw.certificateFile, "certificate-file", "", "certificate file for verifying peer; NOVERIFY disables the check")

	flags.StringArrayVar(&raw.projects, "project", nil, "destination project ID or name (one, or one per file)")
	flags.StringArrayVar(&raw.folders, "folder", nil, "destination folder (one, or one per file; default \"/\")")
	flags.StringArrayVar(&raw.names, "name", nil, "remote object name (one per file; defaults to the local basename)")

	flags.IntVar(&raw.readThreads, "read-threads", defaultReadThreads, "number of parallel disk read threads")
	flags.IntVar(&raw.compressThreads, "compress-threads", defaultCompressThreads(), "number of parallel compression threads")
	flags.IntVar(&raw.uploadThreads, "upload-threads", defaultUploadThreads, "number of parallel upload threads")
	flags.StringVar(&raw.chunkSize, "chunk-size", defaultChunkSize, "chunk size, e.g. 75M (suffix B/K/M/G)")
	flags.StringVar(&raw.throttle, "throttle", "", "cap aggregate upload speed, e.g. 3M (suffix B/K/M/G); unset disables throttling")
	flags.IntVar(&raw.tries, "tries", defaultTries, "number of tries per chunk")

	flags.BoolVar(&raw.doNotCompress, "do-not-compress", false, "never gzip file contents before upload")
	flags.BoolVar(&raw.progress, "progress", false, "print a periodic progress report to stderr")
	flags.BoolVar(&raw.verbose, "verbose", false, "enable debug-level logging")
	flags.BoolVar(&raw.waitOnClose, "wait-on-close", false, "block until the platform reports the file fully closed")
	flags.BoolVar(&raw.doNotResume, "do-not-resume", false, "always create a new remote file instead of resuming")

	flags.BoolVar(&raw.reads, "reads", false, "run the reads importer once uploads close")
	flags.BoolVar(&raw.pairedReads, "paired-reads", false, "run the paired-reads importer, consuming files as L/R pairs")
	flags.BoolVar(&raw.mappings, "mappings", false, "run the mappings importer once uploads close")
	flags.BoolVar(&raw.variants, "variants", false, "run the variants importer once uploads close")
	flags.StringVar(&raw.refGenome, "ref-genome", "", "reference genome ID or name (required by --mappings/--variants)")
}

// Execute runs the root command and returns the process exit code.
func Execute() int {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ERROR:", err)
		if exitCode == 0 {
			exitCode = 1
		}
	}
	return exitCode
}

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

// Command dx-verify-file checks that one or more previously-uploaded
// remote files match their local originals, part by part, via MD5.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dnanexus/upload-agent/internal/common"
)

// exitCode mirrors main.cpp's return convention: 0 all identical, 1 a
// startup/config/IO error, 4 at least one mismatch found.
var exitCode int

var raw rawVerifyArgs

var rootCmd = &cobra.Command{
	Use:   "dx-verify-file",
	Short: "Verify that remote DNAnexus files match their local originals",
	Long: `dx-verify-file re-reads the corresponding local bytes of each part of
one or more remote files, compares their MD5 with the part MD5 the platform
recorded (nothing is downloaded), and reports
"identical" or "mismatch" for each --local-file/--remote-file pair given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
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

		anyMismatch, err := cooked.run(cmd.Context(), logger)
		if err != nil {
			exitCode = 1
			return err
		}
		if anyMismatch {
			exitCode = 4
		}
		return nil
	},
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&raw.authToken, "auth-token", "a", "", "API authentication token")
	flags.StringVar(&raw.apiserverProtocol, "apiserver-protocol", "", "API server protocol (https)")
	flags.StringVar(&raw.apiserverHost, "apiserver-host", "", "API server host")
	flags.StringVar(&raw.apiserverPort, "apiserver-port", "", "API server port")
	flags.StringVar(&raw.certificateFile, "certificate-file", "", "certificate file for verifying peer; NOVERIFY disables the check")

	flags.StringArrayVarP(&raw.localFiles, "local-file", "l", nil, "local file path (one per --remote-file, in order)")
	flags.StringArrayVarP(&raw.remoteFiles, "remote-file", "r", nil, "ID of the remote file to check against")

	flags.IntVar(&raw.readThreads, "read-threads", defaultReadThreads, "number of parallel disk read threads")
	flags.IntVar(&raw.md5Threads, "md5-threads", defaultMD5Threads(), "number of parallel MD5 compute threads")
	flags.BoolVarP(&raw.verbose, "verbose", "v", false, "enable debug-level logging")
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

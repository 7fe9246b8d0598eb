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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dnanexus/upload-agent/internal/apiclient"
	"github.com/dnanexus/upload-agent/internal/common"
	"github.com/dnanexus/upload-agent/internal/engine"
	"github.com/dnanexus/upload-agent/internal/importer"
	"github.com/dnanexus/upload-agent/internal/memgovernor"
	"github.com/dnanexus/upload-agent/internal/mimedetect"
	"github.com/dnanexus/upload-agent/internal/model"
	"github.com/dnanexus/upload-agent/internal/pacer"
	"github.com/dnanexus/upload-agent/internal/resolver"
	"github.com/dnanexus/upload-agent/internal/resume"
)

// errMustUpgrade signals the platform's update advisory requires a newer
// client before any upload is attempted; root.go maps it to exit code 3.
type errMustUpgrade struct{ message string }

func (e *errMustUpgrade) Error() string {
	return fmt.Sprintf("a required client update is available: %s", e.message)
}

// run drives one end-to-end upload invocation: stat and describe every
// local file, resolve resume targets, run the pipeline to completion, close
// every file, run the optional importer, and print the stdout manifest.
// anyFailed reports whether at least one input File ended up failed,
// mirroring "the process exit code reflects whether any failure occurred".
func (cooked cookedUploadArgs) run(ctx context.Context, logger common.ILogger) (anyFailed bool, err error) {
	client := apiclient.New(cooked.cfg, logger)

	greet, _ := client.Greet(ctx, common.AgentVersion)
	if greet.MustUpgrade {
		return false, &errMustUpgrade{message: greet.Message}
	}
	if greet.ShouldUpgrade {
		logger.Log(common.ELogLevel.Warning(), "update advisory: "+greet.Message)
	}

	res := resolver.New(client)
	files, err := cooked.buildFiles(ctx, res)
	if err != nil {
		return false, err
	}

	if !cooked.doNotResume {
		if err := cooked.detectCollisions(files); err != nil {
			return false, err
		}
	}

	totalChunks := 0
	for _, f := range files {
		chunks, err := cooked.resolveOrCreate(ctx, client, f)
		if err != nil {
			return false, err
		}
		f.pendingChunks = chunks
		totalChunks += len(chunks)
	}

	var p *engine.Pipeline
	if totalChunks > 0 {
		p, err = cooked.runPipeline(ctx, client, files, totalChunks, logger)
		if err != nil {
			return false, err
		}
	}

	for _, fw := range files {
		f := fw.File
		if failed, _ := f.Failed(); failed {
			continue
		}
		if f.Closed() {
			continue
		}
		if err := engine.FinalizeFile(ctx, client, p, f, cooked.readThreads, cooked.compressThreads, cooked.uploadThreads); err != nil {
			f.MarkFailed(err.Error())
			continue
		}
		f.SetClosed(true)
		if cooked.waitOnClose {
			if err := engine.WaitOnClose(ctx, client, f); err != nil {
				f.MarkFailed(err.Error())
			}
		}
	}

	if cooked.importKind != "" {
		refGenomeID := ""
		if cooked.refGenome != "" {
			refGenomeID, err = importer.ResolveRefGenome(ctx, client, cooked.refGenome)
			if err != nil {
				return false, err
			}
		}
		plain := make([]*model.File, len(files))
		for i, fw := range files {
			plain[i] = fw.File
		}
		if err := importer.Run(ctx, client, logger, cooked.importKind, refGenomeID, plain); err != nil {
			return false, err
		}
	}

	for _, fw := range files {
		f := fw.File
		failed, reason := f.Failed()
		if failed {
			anyFailed = true
			fmt.Fprintf(os.Stderr, "%s: failed (%s)\n", f.LocalPath, reason)
			fmt.Println("failed")
			continue
		}
		if jobID := f.JobID(); jobID != "" {
			fmt.Println(jobID)
		} else {
			fmt.Println(f.RemoteFileID)
		}
	}

	return anyFailed, nil
}

// fileWork bundles a model.File with the bookkeeping run() needs between
// building it and running the pipeline.
type fileWork struct {
	*model.File
	canonicalPath string
	pendingChunks []model.Chunk
}

// buildFiles stats every input, detects its MIME type and compression
// decision, and resolves its destination project, creating the destination
// folder. It aborts on the first problem rather than partially building
// the set, per "startup errors abort before any chunk is dispatched".
func (cooked cookedUploadArgs) buildFiles(ctx context.Context, res *resolver.Resolver) ([]*fileWork, error) {
	files := make([]*fileWork, len(cooked.files))
	for i, path := range cooked.files {
		info, err := os.Stat(path)
		if err != nil {
			return nil, common.NewIOError(path, -1, "cannot stat: %v", err)
		}
		if info.IsDir() {
			return nil, common.NewConfigError("%s is a directory; directory upload is not supported", path)
		}
		if !info.Mode().IsRegular() {
			return nil, common.NewIOError(path, -1, "not a regular file")
		}

		canonical, err := filepath.Abs(path)
		if err != nil {
			canonical = path
		}
		if resolved, err := filepath.EvalSymlinks(canonical); err == nil {
			canonical = resolved
		}

		detected := mimedetect.DetectFile(path)
		toCompress := !cooked.doNotCompress && !mimedetect.IsCompressed(detected) && info.Size() > 0
		mimeType := detected
		if toCompress {
			mimeType = "application/x-gzip"
		}

		projectID, err := res.ResolveProject(ctx, cooked.projects[i])
		if err != nil {
			return nil, err
		}
		if err := res.CreateFolder(ctx, projectID, cooked.folders[i]); err != nil {
			return nil, err
		}

		f := &model.File{
			LocalPath: path,
			FileIndex: i,
			Size:      info.Size(),
			ModTime:   info.ModTime().Unix(),
			MimeType:  mimeType,
			ToCompress: toCompress,
			ChunkSize: cooked.chunkSize,
			Dest: model.Destination{
				ProjectSpec: cooked.projects[i],
				ProjectID:   projectID,
				Folder:      cooked.folders[i],
				Name:        cooked.names[i],
			},
			WaitOnClose: cooked.waitOnClose,
		}
		files[i] = &fileWork{File: f, canonicalPath: canonical}
	}
	return files, nil
}

// detectCollisions aborts the whole run, before any upload, if two local
// files targeted at the same project share a resume fingerprint --
// scenario 6.
func (cooked cookedUploadArgs) detectCollisions(files []*fileWork) error {
	grouped := map[string][]string{}
	for _, fw := range files {
		fp := fw.Fingerprint(fw.canonicalPath)
		key := fw.Dest.ProjectID + "\x00" + fp
		grouped[key] = append(grouped[key], fw.LocalPath)
	}
	return resume.DetectCrossFileCollision(grouped)
}

// resolveOrCreate looks up a resume target for f (unless --do-not-resume),
// adopts it or creates a brand-new remote file, and returns the Chunks
// still needing upload.
func (cooked cookedUploadArgs) resolveOrCreate(ctx context.Context, client *apiclient.Client, fw *fileWork) ([]model.Chunk, error) {
	f := fw.File

	if cooked.doNotResume {
		return cooked.createRemoteFile(ctx, client, fw, "")
	}

	fp := fw.Fingerprint(fw.canonicalPath)
	target, err := resume.FindResumeTarget(ctx, client, f.Dest.ProjectID, fp)
	if err != nil {
		return nil, err
	}

	switch target.Outcome {
	case resume.OutcomeNew:
		return cooked.createRemoteFile(ctx, client, fw, fp)
	case resume.OutcomeAlreadyComplete:
		resume.ApplyResume(f, target)
		f.SetBytesUploaded(f.Size)
		f.SetAtLeastOnePartDone()
		f.SetClosed(true)
		return nil, nil
	case resume.OutcomeResumeOpen:
		resume.ApplyResume(f, target)
		return engine.PlanChunks(f, target.Parts, cooked.tries), nil
	default: // OutcomeAmbiguous
		f.MarkFailed(fmt.Sprintf("fingerprint matches %d remote files; cannot determine resume target", len(target.Candidates)))
		return nil, nil
	}
}

// createRemoteFile calls FileNew, stamping the resume fingerprint property
// unless resume is disabled for this run (fingerprint == "").
func (cooked cookedUploadArgs) createRemoteFile(ctx context.Context, client *apiclient.Client, fw *fileWork, fingerprint string) ([]model.Chunk, error) {
	f := fw.File
	props := map[string]string{}
	if fingerprint != "" {
		props[model.FileSignatureProperty] = fingerprint
	}
	id, err := client.FileNew(ctx, apiclient.FileNewRequest{
		Project:    f.Dest.ProjectID,
		Folder:     f.Dest.Folder,
		Name:       f.RemoteName(),
		Media:      f.MimeType,
		Properties: props,
	})
	if err != nil {
		return nil, err
	}
	f.RemoteFileID = id
	f.IsRemoteFileOpen = true
	return engine.PlanChunks(f, nil, cooked.tries), nil
}

// runPipeline spins up the read/compress/upload worker pool plus the
// monitor (and, if requested, the progress reporter), enqueues every
// pending chunk, and waits for the run to drain.
func (cooked cookedUploadArgs) runPipeline(ctx context.Context, client *apiclient.Client, files []*fileWork, totalChunks int, logger common.ILogger) (*engine.Pipeline, error) {
	plain := make([]*model.File, len(files))
	for i, fw := range files {
		plain[i] = fw.File
	}

	var pc engine.Pacer
	if cooked.throttle >= 0 {
		pr := pacer.New(cooked.throttle, cooked.chunkSize)
		defer pr.Close()
		pc = pr
	}

	governor, err := memgovernor.New()
	if err != nil {
		logger.Log(common.ELogLevel.Warning(), "memory governor disabled: "+err.Error())
		governor = nil
	}

	queueCapacity := 2 * maxInt(cooked.readThreads, maxInt(cooked.compressThreads, cooked.uploadThreads))
	p := engine.NewPipeline(plain, totalChunks, queueCapacity, client, pc, engine.NewDNSResolver(), false, governor, logger)

	if cooked.progress {
		reportCtx, stopReport := context.WithCancel(ctx)
		defer stopReport()
		reporter := engine.NewProgressReporter(plain, os.Stderr, 5*time.Second, func() int64 { return time.Now().Unix() })
		go reporter.Run(reportCtx)
	}

	var g errgroup.Group
	g.Go(func() error { return engine.Run(ctx, p, cooked.readThreads, cooked.compressThreads, cooked.uploadThreads, logger) })

	for _, fw := range files {
		for _, c := range fw.pendingChunks {
			if err := p.Enqueue(ctx, c); err != nil {
				return p, err
			}
		}
	}
	p.CloseInputs()

	if err := g.Wait(); err != nil && err != context.Canceled {
		return p, err
	}
	return p, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

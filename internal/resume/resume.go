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

// Package resume implements fingerprint-based resume
// detection against the destination project's data objects.
package resume

import (
	"context"
	"fmt"

	"github.com/dnanexus/upload-agent/internal/apiclient"
	"github.com/dnanexus/upload-agent/internal/common"
	"github.com/dnanexus/upload-agent/internal/model"
)

// Outcome is the result of matching a File's fingerprint against the
// destination project's data objects.
type Outcome int

const (
	// OutcomeNew means no match was found; create a new remote file.
	OutcomeNew Outcome = iota
	// OutcomeAlreadyComplete means the match is closing/closed; nothing to upload.
	OutcomeAlreadyComplete
	// OutcomeResumeOpen means the match is open; adopt its ID and part manifest.
	OutcomeResumeOpen
	// OutcomeAmbiguous means more than one match was found; the File must be failed.
	OutcomeAmbiguous
)

// Target describes what FindResumeTarget discovered.
type Target struct {
	Outcome      Outcome
	RemoteFileID string
	Parts        map[int]apiclient.PartInfo // only populated for OutcomeResumeOpen
	Candidates   []string                   // only populated for OutcomeAmbiguous
}

// FindResumeTarget implements outcome table. fingerprint is
// the file's precomputed resume signature.
func FindResumeTarget(ctx context.Context, client *apiclient.Client, projectID, fingerprint string) (Target, error) {
	matches, err := client.FindDataObjects(ctx, projectID, fingerprint)
	if err != nil {
		return Target{}, err
	}

	switch len(matches) {
	case 0:
		return Target{Outcome: OutcomeNew}, nil
	case 1:
		m := matches[0]
		switch m.State {
		case string(common.EFileState.Closing()), string(common.EFileState.Closed()):
			return Target{Outcome: OutcomeAlreadyComplete, RemoteFileID: m.ID}, nil
		default: // "open"
			return Target{Outcome: OutcomeResumeOpen, RemoteFileID: m.ID, Parts: m.Parts}, nil
		}
	default:
		ids := make([]string, len(matches))
		for i, m := range matches {
			ids[i] = m.ID
		}
		return Target{Outcome: OutcomeAmbiguous, Candidates: ids}, nil
	}
}

// ApplyResume adopts a resume target onto f: sets its remote ID and credits
// bytesUploaded for every already-complete part, per "exactly
// 1 match, remote state is open" case.
func ApplyResume(f *model.File, t Target) {
	f.RemoteFileID = t.RemoteFileID
	f.IsRemoteFileOpen = true
	if t.Outcome != OutcomeResumeOpen {
		return
	}
	for idx, p := range t.Parts {
		if p.State == string(common.EPartState.Complete()) {
			f.AddBytesUploaded(partByteCount(idx, f.PartCount(), f.Size, f.ChunkSize))
		}
	}
}

func partByteCount(partIndex, lastPartIndex int, size, chunkSize int64) int64 {
	if partIndex < lastPartIndex {
		return chunkSize
	}
	lastSize := size % chunkSize
	if lastSize == 0 {
		lastSize = chunkSize
	}
	return lastSize
}

// DetectCrossFileCollision implements "two local files
// uploading to the same project with equal fingerprints is a configuration
// error detected before upload starts". Callers compute each file's
// fingerprint up front and pass the full set in; this returns an error
// naming the first collision found.
func DetectCrossFileCollision(projectByFingerprint map[string][]string) error {
	for fp, paths := range projectByFingerprint {
		if len(paths) > 1 {
			return common.NewConfigError("local files %v have identical fingerprints (%s) and would resume onto the same remote file -- rename, move, or upload them separately", paths, fp)
		}
	}
	return nil
}

// GroupByFingerprint groups local paths sharing a project (keyed by
// "<projectID>\x00<fingerprint>") so DetectCrossFileCollision can spot
// genuine cross-file collisions scoped per destination project.
func GroupByFingerprint(projectID string, paths []string, fingerprints []string) map[string][]string {
	m := map[string][]string{}
	for i, fp := range fingerprints {
		key := fmt.Sprintf("%s\x00%s", projectID, fp)
		m[key] = append(m[key], paths[i])
	}
	return m
}

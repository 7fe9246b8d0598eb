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

// Package importer runs the follow-on applet a successfully-closed upload
// can trigger: app-reads_importer, app-sam_importer or app-vcf_importer,
// one per --reads/--paired-reads/--mappings/--variants flag. Grounded on
// original_source/src/ua/import_apps.cpp.
package importer

import (
	"context"
	"fmt"

	"github.com/dnanexus/upload-agent/internal/apiclient"
	"github.com/dnanexus/upload-agent/internal/common"
	"github.com/dnanexus/upload-agent/internal/model"
)

// Kind is which importer applet to run; the CLI enforces these are
// mutually exclusive before Run is ever called.
type Kind string

const (
	KindReads       Kind = "reads"
	KindPairedReads Kind = "paired-reads"
	KindMappings    Kind = "mappings"
	KindVariants    Kind = "variants"
)

const (
	readsImporter    = "app-reads_importer"
	mappingsImporter = "app-sam_importer"
	variantsImporter = "app-vcf_importer"

	referenceGenomesProject = "Reference Genomes"
	referenceGenomesBillTo  = "org-dnanexus"
)

// ResolveRefGenome turns the --ref-genome argument into a record-xxxx ID,
// mirroring getRefGenomeID(): a literal record ID passes through
// unchanged, otherwise it is looked up by name within the platform's
// public "Reference Genomes" project.
func ResolveRefGenome(ctx context.Context, client *apiclient.Client, refGenome string) (string, error) {
	if len(refGenome) >= len("record-") && refGenome[:len("record-")] == "record-" {
		return refGenome, nil
	}

	projects, err := client.FindPublicProject(ctx, referenceGenomesProject, referenceGenomesBillTo)
	if err != nil {
		return "", err
	}
	if len(projects) != 1 {
		return "", common.NewConfigError(
			"expected exactly one public project named %q billed to %q, found %d; cannot resolve --ref-genome",
			referenceGenomesProject, referenceGenomesBillTo, len(projects))
	}

	records, err := client.FindClosedRecord(ctx, projects[0].ID, refGenome, "ContigSet")
	if err != nil {
		return "", err
	}
	switch len(records) {
	case 0:
		return "", common.NewConfigError("no reference genome found with name %q", refGenome)
	case 1:
		return records[0], nil
	default:
		return "", common.NewConfigError("ambiguous reference genome name %q: %d matches", refGenome, len(records))
	}
}

// runApp starts jobName against appName and records the resulting job ID
// on every target file; failures are logged, not fatal, mirroring
// runApp_helper()'s "log and return \"failed\"" behavior.
func runApp(ctx context.Context, client *apiclient.Client, logger common.ILogger, appName, jobName string, input map[string]interface{}, f *model.File, extra ...*model.File) {
	jobID, err := client.AppRun(ctx, appName, jobName, f.Dest.ProjectID, f.Dest.Folder, input)
	if err != nil {
		logger.Log(common.ELogLevel.Error(), fmt.Sprintf("running %s for %s: %v", appName, f.LocalPath, err))
		jobID = "failed"
	}
	f.SetJobID(jobID)
	for _, g := range extra {
		g.SetJobID(jobID)
	}
}

// Run fires the importer applet selected by kind across files, skipping
// (and marking jobID "failed" on) any file that failed to upload, exactly
// as runImportApps() does before ever calling the platform. Files are
// consumed in pairs when kind is KindPairedReads, singly otherwise.
func Run(ctx context.Context, client *apiclient.Client, logger common.ILogger, kind Kind, refGenomeID string, files []*model.File) error {
	if logger == nil {
		logger = common.NopLogger
	}
	step := 1
	if kind == KindPairedReads {
		step = 2
	}

	for i := 0; i+step <= len(files); i += step {
		f := files[i]
		var second *model.File
		if step == 2 {
			second = files[i+1]
		}

		failed, _ := f.Failed()
		if second != nil {
			if secondFailed, _ := second.Failed(); secondFailed {
				failed = true
			}
		}
		if failed {
			f.SetJobID("failed")
			if second != nil {
				second.SetJobID("failed")
			}
			logger.Log(common.ELogLevel.Info(), fmt.Sprintf("skipping importer for %s: upload failed", f.LocalPath))
			continue
		}

		switch kind {
		case KindReads:
			input := map[string]interface{}{"file": apiclient.DNALink(f.RemoteFileID)}
			runApp(ctx, client, logger, readsImporter, "import_reads", input, f)
		case KindPairedReads:
			input := map[string]interface{}{
				"file":  apiclient.DNALink(f.RemoteFileID),
				"file2": apiclient.DNALink(second.RemoteFileID),
			}
			runApp(ctx, client, logger, readsImporter, "import_paired_reads", input, f, second)
		case KindMappings:
			input := map[string]interface{}{
				"file":             apiclient.DNALink(f.RemoteFileID),
				"reference_genome": apiclient.DNALink(refGenomeID),
			}
			runApp(ctx, client, logger, mappingsImporter, "import_mappings", input, f)
		case KindVariants:
			input := map[string]interface{}{
				"vcf":       apiclient.DNALink(f.RemoteFileID),
				"reference": apiclient.DNALink(refGenomeID),
			}
			runApp(ctx, client, logger, variantsImporter, "import_vcf", input, f)
		}
	}
	return nil
}

package jobhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"engine/internal/domain"
	"engine/internal/engine"
)

const maxExportJobs = 100

// ExportInput selects which finished generation jobs to bundle. When JobIDs is
// empty the owner's recent completed generation jobs are exported.
type ExportInput struct {
	JobIDs      []string `json:"job_ids,omitempty"`
	ArchiveName string   `json:"archive_name,omitempty"`
}

// ExportResult records the pointer to the bundling job. Callers follow
// child_job_id to learn the true end state of the pipeline; the parent
// completing only means the bundle job was enqueued.
type ExportResult struct {
	ChildJobID string `json:"child_job_id"`
	EntryCount int    `json:"entry_count"`
}

// BundleEntry names one stored artifact and its filename inside the archive.
type BundleEntry struct {
	Key      string `json:"key"`
	Filename string `json:"filename"`
	Format   string `json:"format,omitempty"`
}

// BundleInput is the input payload the export handler writes for its child
// export_bundle job.
type BundleInput struct {
	Entries     []BundleEntry `json:"entries"`
	ArchiveName string        `json:"archive_name,omitempty"`
}

// ExportHandler is step one of the export pipeline: it resolves the owner's
// completed generation jobs into a manifest of storage keys and hands the
// heavy lifting to a child export_bundle job.
type ExportHandler struct {
	jobs domain.JobStore
}

func NewExportHandler(jobs domain.JobStore) *ExportHandler {
	return &ExportHandler{jobs: jobs}
}

func (h *ExportHandler) Type() domain.JobType { return domain.JobTypeExport }

// Cost is zero: exports repackage work that was already billed.
func (h *ExportHandler) Cost(_ *domain.Job) int64 { return 0 }

func (h *ExportHandler) Execute(ctx context.Context, task *engine.Task) ([]byte, error) {
	var input ExportInput
	if len(task.Job.InputJSON) > 0 {
		if err := decodeInput(task.Job, &input); err != nil {
			return nil, err
		}
	}

	if err := report(ctx, task, 20, "collecting assets"); err != nil {
		return nil, err
	}
	sources, err := h.resolveSources(ctx, task.Job.OwnerID, input.JobIDs)
	if err != nil {
		return nil, err
	}
	entries := manifestEntries(sources)
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no completed assets to export", domain.ErrValidation)
	}

	if err := report(ctx, task, 60, "scheduling bundle"); err != nil {
		return nil, err
	}
	bundleInput, err := json.Marshal(BundleInput{
		Entries:     entries,
		ArchiveName: input.ArchiveName,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal bundle input: %w", err)
	}
	childID, err := task.CreateChild(ctx, domain.JobTypeExportBundle, bundleInput, nil)
	if err != nil {
		return nil, err
	}

	result, err := json.Marshal(ExportResult{ChildJobID: childID, EntryCount: len(entries)})
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return result, nil
}

// resolveSources loads the requested jobs, or the owner's recent completed
// jobs when no explicit ids were given. Jobs belonging to other owners or not
// yet completed are validation errors rather than silent skips.
func (h *ExportHandler) resolveSources(ctx context.Context, ownerID string, jobIDs []string) ([]domain.Job, error) {
	if len(jobIDs) == 0 {
		return h.jobs.ListForOwner(ctx, ownerID,
			[]domain.JobStatus{domain.JobStatusCompleted}, maxExportJobs)
	}
	if len(jobIDs) > maxExportJobs {
		return nil, fmt.Errorf("%w: at most %d jobs per export", domain.ErrValidation, maxExportJobs)
	}
	sources := make([]domain.Job, 0, len(jobIDs))
	for _, id := range jobIDs {
		job, err := h.jobs.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("resolve job %s: %w", id, err)
		}
		if job.OwnerID != ownerID {
			return nil, fmt.Errorf("%w: job %s", domain.ErrUnauthorized, id)
		}
		if job.Status != domain.JobStatusCompleted {
			return nil, fmt.Errorf("%w: job %s is not completed", domain.ErrValidation, id)
		}
		sources = append(sources, *job)
	}
	return sources, nil
}

// manifestEntries extracts asset references from generation job results.
// Export jobs themselves are skipped so exports never nest.
func manifestEntries(sources []domain.Job) []BundleEntry {
	var entries []BundleEntry
	for _, job := range sources {
		switch job.Type {
		case domain.JobTypeExport, domain.JobTypeExportBundle:
			continue
		}
		for _, ref := range assetRefsFromResult(job.ResultJSON) {
			filename := fmt.Sprintf("%s_%s", job.Type, baseName(ref.Key))
			entries = append(entries, BundleEntry{
				Key:      ref.Key,
				Filename: filename,
				Format:   ref.Format,
			})
		}
	}
	return entries
}

// assetRefsFromResult reads asset references out of any generation result
// shape: a list under "assets" or a single object under "asset".
func assetRefsFromResult(result []byte) []AssetRef {
	if len(result) == 0 {
		return nil
	}
	var envelope struct {
		Assets []AssetRef `json:"assets"`
		Asset  *AssetRef  `json:"asset"`
	}
	if err := json.Unmarshal(result, &envelope); err != nil {
		return nil
	}
	refs := envelope.Assets
	if envelope.Asset != nil && envelope.Asset.Key != "" {
		refs = append(refs, *envelope.Asset)
	}
	return refs
}

func baseName(key string) string {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '/' {
			return key[i+1:]
		}
	}
	return key
}

var _ engine.Handler = (*ExportHandler)(nil)

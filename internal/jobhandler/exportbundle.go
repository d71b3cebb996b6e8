package jobhandler

import (
	"context"
	"encoding/json"
	"fmt"

	"engine/internal/domain"
	"engine/internal/engine"
	"engine/internal/storage"
	"engine/pkg/zip"
)

// BundleResult is the persisted result of an export_bundle job.
type BundleResult struct {
	ArchiveKey string `json:"archive_key"`
	EntryCount int    `json:"entry_count"`
	SizeBytes  int    `json:"size_bytes"`
}

// ExportBundleHandler is step two of the export pipeline: it downloads every
// manifest entry, zips them, and uploads the archive.
type ExportBundleHandler struct {
	blobs storage.BlobStore
}

func NewExportBundleHandler(blobs storage.BlobStore) *ExportBundleHandler {
	return &ExportBundleHandler{blobs: blobs}
}

func (h *ExportBundleHandler) Type() domain.JobType { return domain.JobTypeExportBundle }

// Cost is zero: bundling repackages work that was already billed.
func (h *ExportBundleHandler) Cost(_ *domain.Job) int64 { return 0 }

func (h *ExportBundleHandler) Execute(ctx context.Context, task *engine.Task) ([]byte, error) {
	var input BundleInput
	if err := decodeInput(task.Job, &input); err != nil {
		return nil, err
	}
	if len(input.Entries) == 0 {
		return nil, fmt.Errorf("%w: bundle has no entries", domain.ErrValidation)
	}

	zipEntries := make([]zip.Entry, 0, len(input.Entries))
	for i, entry := range input.Entries {
		data, err := h.blobs.Read(ctx, entry.Key)
		if err != nil {
			return nil, fmt.Errorf("read asset %s: %w", entry.Key, err)
		}
		zipEntries = append(zipEntries, zip.Entry{
			Filename: entry.Filename,
			MIME:     entry.Format,
			Data:     data,
		})
		progress := 10 + (70*(i+1))/len(input.Entries)
		if err := report(ctx, task, progress, fmt.Sprintf("collected %d/%d assets", i+1, len(input.Entries))); err != nil {
			return nil, err
		}
	}

	archive, err := zip.Archive(zipEntries)
	if err != nil {
		return nil, fmt.Errorf("build archive: %w", err)
	}

	if err := report(ctx, task, 90, "uploading archive"); err != nil {
		return nil, err
	}
	name := input.ArchiveName
	if name == "" {
		name = "export.zip"
	}
	key := assetKey(task.Job.ID, name)
	storedKey, err := h.blobs.Write(ctx, key, "application/zip", archive)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUploadFailure, err)
	}

	result, err := json.Marshal(BundleResult{
		ArchiveKey: storedKey,
		EntryCount: len(zipEntries),
		SizeBytes:  len(archive),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return result, nil
}

var _ engine.Handler = (*ExportBundleHandler)(nil)

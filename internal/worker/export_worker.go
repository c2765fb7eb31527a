// Package worker consumes import events and mirrors them to the audit
// spreadsheet.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"findash/internal/amqp"
	"findash/internal/core"
	"findash/internal/storage"
)

type (
	// FileLookup resolves a file ID against storage.
	FileLookup interface {
		GetImportedFile(ctx context.Context, fileID string) (core.ImportedFile, error)
	}

	// RowAppender writes one audit row per import batch.
	RowAppender interface {
		AppendImportRow(ctx context.Context, event *amqp.ImportEvent) error
	}

	ExportWorker struct {
		files FileLookup
		sheet RowAppender
	}
)

func NewExportWorker(files FileLookup, sheet RowAppender) *ExportWorker {
	return &ExportWorker{files: files, sheet: sheet}
}

// HandleImportEvent verifies the batch still exists and appends its audit
// row. Events for since-deleted batches are dropped, not retried.
func (w *ExportWorker) HandleImportEvent(ctx context.Context, event *amqp.ImportEvent) error {
	file, err := w.files.GetImportedFile(ctx, event.FileID)
	if errors.Is(err, storage.ErrNotFound) {
		slog.WarnContext(ctx, "Import batch deleted before export, dropping event",
			"file_id", event.FileID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("lookup imported file: %w", err)
	}

	if err := w.sheet.AppendImportRow(ctx, event); err != nil {
		return fmt.Errorf("append to export sheet: %w", err)
	}

	slog.InfoContext(ctx, "Import batch exported",
		"file_id", file.ID,
		"file", file.FileName,
		"rows", file.TransactionCount)
	return nil
}

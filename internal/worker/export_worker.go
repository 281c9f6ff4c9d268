// Package worker mirrors persisted transactions to the external spreadsheet.
// The queue is the primary trigger; a periodic sweep over unexported rows
// covers lost messages and worker downtime.
package worker

import (
	"context"
	"fmt"
	"log/slog"

	"tally/internal/amqp"
	"tally/internal/core"
	"tally/internal/export"
	"tally/internal/storage"
)

// ExportStore is the slice of the repository the worker needs.
type ExportStore interface {
	GetTransaction(ctx context.Context, id int64) (core.Transaction, error)
	GetPendingExports(ctx context.Context, limit int) ([]storage.PendingExport, error)
	MarkExported(ctx context.Context, id int64) error
	MarkExportError(ctx context.Context, id int64) error
}

type ExportWorker struct {
	store     ExportStore
	writer    export.TransactionWriter
	batchSize int
}

func NewExportWorker(store ExportStore, writer export.TransactionWriter, batchSize int) *ExportWorker {
	return &ExportWorker{
		store:     store,
		writer:    writer,
		batchSize: batchSize,
	}
}

// HandleSyncMessage processes one transaction sync message from the queue.
// A returned error makes the consumer nack and requeue the delivery.
func (w *ExportWorker) HandleSyncMessage(ctx context.Context, msg *amqp.TransactionSyncMessage) error {
	slog.InfoContext(ctx, "Processing sync message",
		"id", msg.ID,
		"version", msg.Version)

	tx, err := w.store.GetTransaction(ctx, msg.ID)
	if err != nil {
		return fmt.Errorf("load transaction %d: %w", msg.ID, err)
	}
	return w.exportTransaction(ctx, tx)
}

// ProcessPendingExports sweeps up to batchSize unexported rows. Backup path
// for lost queue messages; errors on individual rows are recorded and the
// sweep continues.
func (w *ExportWorker) ProcessPendingExports(ctx context.Context) error {
	pending, err := w.store.GetPendingExports(ctx, w.batchSize)
	if err != nil {
		return fmt.Errorf("get pending exports: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slog.InfoContext(ctx, "Processing pending exports", "count", len(pending))

	for _, p := range pending {
		tx, err := w.store.GetTransaction(ctx, p.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to load pending transaction", "id", p.ID, "error", err)
			if markErr := w.store.MarkExportError(ctx, p.ID); markErr != nil {
				slog.ErrorContext(ctx, "Failed to mark export error", "id", p.ID, "error", markErr)
			}
			continue
		}
		if err := w.exportTransaction(ctx, tx); err != nil {
			slog.ErrorContext(ctx, "Failed to export pending transaction", "id", p.ID, "error", err)
			continue
		}
	}
	return nil
}

// StartupCheck drains the pending backlog with a larger batch before the
// worker starts consuming, recovering from downtime.
func (w *ExportWorker) StartupCheck(ctx context.Context) error {
	pending, err := w.store.GetPendingExports(ctx, w.batchSize*5)
	if err != nil {
		return fmt.Errorf("get pending exports for startup check: %w", err)
	}
	if len(pending) == 0 {
		slog.InfoContext(ctx, "No pending exports on startup")
		return nil
	}

	slog.InfoContext(ctx, "Found pending exports on startup", "count", len(pending))

	exported, failed := 0, 0
	for _, p := range pending {
		tx, err := w.store.GetTransaction(ctx, p.ID)
		if err != nil {
			slog.ErrorContext(ctx, "Failed to load transaction for startup export",
				"id", p.ID, "error", err)
			if markErr := w.store.MarkExportError(ctx, p.ID); markErr != nil {
				slog.ErrorContext(ctx, "Failed to mark export error", "id", p.ID, "error", markErr)
			}
			failed++
			continue
		}
		if err := w.exportTransaction(ctx, tx); err != nil {
			slog.ErrorContext(ctx, "Failed to export during startup", "id", p.ID, "error", err)
			failed++
			continue
		}
		exported++
	}

	slog.InfoContext(ctx, "Startup export check complete",
		"total", len(pending),
		"exported", exported,
		"errors", failed)
	return nil
}

func (w *ExportWorker) exportTransaction(ctx context.Context, tx core.Transaction) error {
	ref, err := w.writer.Append(ctx, tx)
	if err != nil {
		if markErr := w.store.MarkExportError(ctx, tx.ID); markErr != nil {
			slog.ErrorContext(ctx, "Failed to mark export error", "id", tx.ID, "error", markErr)
		}
		return fmt.Errorf("append to sheet: %w", err)
	}

	if err := w.store.MarkExported(ctx, tx.ID); err != nil {
		// The row made it to the sheet; the sweep will retry the flag.
		slog.ErrorContext(ctx, "Failed to mark as exported", "id", tx.ID, "error", err)
	}

	slog.InfoContext(ctx, "Exported transaction",
		"id", tx.ID,
		"row_ref", ref,
		"amount_cents", tx.Amount.Cents)
	return nil
}

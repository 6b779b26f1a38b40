package core

// importer.go writes parsed records to the fact tables in fixed-size
// batches, one transaction per batch.
//
// Error accounting is two-tier. A record that cannot be converted to
// insert arguments (unresolved dictionary field, year mismatch) or whose
// insert statement fails is counted as one error and the batch continues.
// A batch whose transaction cannot begin or commit folds its entire
// record count into the error total and the NEXT batch continues; one
// broken transaction never aborts the import.
//
// Dictionary resolution happens before the transaction opens. The store
// handle is capped at one connection, so interleaving dictionary writes
// with an open transaction would deadlock; resolving first also means a
// batch that later fails to commit has still grown the dictionaries,
// which is harmless because dictionary rows are keyed by value.

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/roadregistry/importer/internal/database"
	"github.com/roadregistry/importer/internal/dict"
	"github.com/roadregistry/importer/internal/parse"
)

// DefaultBatchSize is the number of records per transaction.
const DefaultBatchSize = 50_000

// BatchImporter writes records for one record type.
type BatchImporter struct {
	db        *database.DB
	dicts     *dict.Store
	batchSize int
}

// NewBatchImporter returns an importer writing batchSize records per
// transaction; batchSize <= 0 selects DefaultBatchSize.
func NewBatchImporter(db *database.DB, dicts *dict.Store, batchSize int) *BatchImporter {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &BatchImporter{db: db, dicts: dicts, batchSize: batchSize}
}

// BatchSize returns the configured records-per-transaction.
func (b *BatchImporter) BatchSize() int {
	return b.batchSize
}

// BatchCount returns how many batches total records will produce.
func (b *BatchImporter) BatchCount(total int) int {
	if total == 0 {
		return 0
	}
	return (total + b.batchSize - 1) / b.batchSize
}

// ImportBatch writes one batch of records for year and returns its
// accounting. It never returns an error other than context cancellation:
// every failure mode is folded into the error count.
func (b *BatchImporter) ImportBatch(ctx context.Context, def Definition, records []parse.Record, year int) (BatchResult, error) {
	if len(records) == 0 {
		return BatchResult{}, nil
	}

	// Phase one: resolve dictionary ids and build argument lists outside
	// the transaction.
	args := make([][]any, 0, len(records))
	buildErrors := 0
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return BatchResult{}, err
		}
		a, err := def.BuildArgs(ctx, rec, year, b.dicts)
		if err != nil {
			buildErrors++
			if buildErrors <= 5 {
				slog.Debug("record rejected", "type", def.Key, "year", year, "error", err)
			}
			continue
		}
		args = append(args, a)
	}

	if len(args) == 0 {
		return BatchResult{Errors: buildErrors}, nil
	}

	// Phase two: one transaction for the batch.
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		slog.Error("begin batch transaction", "type", def.Key, "year", year, "error", err)
		return BatchResult{Errors: len(records)}, nil
	}

	stmt, err := tx.PrepareContext(ctx, b.db.Rebind(def.InsertSQL))
	if err != nil {
		_ = tx.Rollback()
		slog.Error("prepare batch insert", "type", def.Key, "error", err)
		return BatchResult{Errors: len(records)}, nil
	}

	inserted := 0
	insertErrors := 0
	for i, a := range args {
		// Savepoint per row so a constraint violation does not poison the
		// surrounding transaction on postgres.
		sp := fmt.Sprintf("rec_%d", i)
		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			if ctxErr := ctx.Err(); ctxErr != nil {
				return BatchResult{}, ctxErr
			}
			slog.Error("create savepoint", "type", def.Key, "error", err)
			return BatchResult{Errors: len(records)}, nil
		}
		if _, err := stmt.ExecContext(ctx, a...); err != nil {
			insertErrors++
			if insertErrors <= 5 {
				slog.Debug("insert failed", "type", def.Key, "year", year, "error", err)
			}
			if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp); err != nil {
				_ = stmt.Close()
				_ = tx.Rollback()
				slog.Error("rollback savepoint", "type", def.Key, "error", err)
				return BatchResult{Errors: len(records)}, nil
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
			_ = stmt.Close()
			_ = tx.Rollback()
			slog.Error("release savepoint", "type", def.Key, "error", err)
			return BatchResult{Errors: len(records)}, nil
		}
		inserted++
	}

	if err := stmt.Close(); err != nil {
		slog.Warn("close batch statement", "error", err)
	}

	if err := tx.Commit(); err != nil {
		slog.Error("commit batch", "type", def.Key, "year", year, "records", len(records), "error", err)
		return BatchResult{Errors: len(records)}, nil
	}

	return BatchResult{Success: inserted, Errors: buildErrors + insertErrors}, nil
}

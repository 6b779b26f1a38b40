package core

// coordinator.go drives one import end to end: duplicate-year handling,
// encoding negotiation, header validation, parallel parse, batched write,
// index refresh, and the import log entry. A year is only ever fully
// replaced, never merged into.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roadregistry/importer/internal/charset"
	"github.com/roadregistry/importer/internal/database"
	"github.com/roadregistry/importer/internal/parse"
)

func (s *Service) processImport(ctx context.Context, imp *activeImport, def Definition, data []byte) {
	start := time.Now()
	log := slog.With("import_id", imp.ID, "type", def.Key, "year", imp.Year)

	defer func() {
		s.limiter.Release()
		imp.closeListeners()
		close(imp.Done)
		imp.Cancel()
		s.cleanup(imp.ID, 5*time.Minute)
	}()

	fail := func(err error) {
		log.Error("import failed", "phase", imp.snapshot().Phase, "error", err)
		imp.update(func(p *ImportProgress) {
			p.Phase = PhaseFailed
			p.Error = err.Error()
		})
		imp.Result = &ImportResult{
			ImportID:   imp.ID,
			RecordType: def.Key,
			FileName:   imp.FileName,
			Year:       imp.Year,
			Duration:   time.Since(start),
			Status:     "failed",
			Error:      err.Error(),
		}
	}

	// Duplicate-year check happens before any byte of the file is read:
	// a declined replace must leave the store untouched.
	existing, err := s.db.CountYear(ctx, def.Table, imp.Year)
	if err != nil {
		fail(err)
		return
	}
	if existing > 0 {
		ok, err := imp.Decider.ConfirmReplace(ctx, imp.Year, existing)
		if err != nil {
			fail(err)
			return
		}
		if !ok {
			log.Info("import cancelled, year already present", "existing", existing)
			imp.update(func(p *ImportProgress) {
				p.Phase = PhaseCancelled
				p.Error = ErrImportCancelled.Error()
			})
			imp.Result = &ImportResult{
				ImportID:   imp.ID,
				RecordType: def.Key,
				FileName:   imp.FileName,
				Year:       imp.Year,
				Duration:   time.Since(start),
				Status:     "cancelled",
				Error:      ErrImportCancelled.Error(),
			}
			return
		}

		imp.update(func(p *ImportProgress) { p.Phase = PhaseReplacingYear })
		deleted, err := s.db.DeleteYear(ctx, def.Table, imp.Year)
		if err != nil {
			fail(err)
			return
		}
		log.Info("replacing year", "deleted", deleted)
	}

	imp.update(func(p *ImportProgress) { p.Phase = PhaseReading })

	text, encoding, err := charset.Resolve(data, charset.DefaultCandidates())
	if err != nil {
		fail(err)
		return
	}
	imp.update(func(p *ImportProgress) { p.Encoding = encoding })
	log.Info("encoding resolved", "encoding", encoding)

	lines := parse.SplitLines(text)
	if len(lines) == 0 {
		fail(ErrEmptyFile)
		return
	}
	headers := parse.ParseLine(lines[0])
	if err := def.ValidateHeader(headers); err != nil {
		fail(fmt.Errorf("%w: got %d columns, want one of %v",
			err, len(headers), def.ColumnCounts))
		return
	}
	dataLines := lines[1:]
	if len(dataLines) == 0 {
		fail(ErrEmptyFile)
		return
	}

	imp.update(func(p *ImportProgress) {
		p.Phase = PhaseParsing
		p.TotalRecords = len(dataLines)
		p.Workers = s.workers
	})

	engine := &parse.Engine{
		Workers: s.workers,
		OnProgress: func(processed, total int) {
			imp.update(func(p *ImportProgress) { p.ProcessedRecords = processed })
		},
	}
	parsed, err := engine.Parse(ctx, dataLines, headers)
	if err != nil {
		fail(err)
		return
	}
	if parsed.Skipped > 0 {
		log.Warn("skipped malformed lines", "count", parsed.Skipped)
	}

	totalBatches := s.importer.BatchCount(len(parsed.Records))
	imp.update(func(p *ImportProgress) {
		p.Phase = PhaseImporting
		p.TotalBatches = totalBatches
	})

	success := 0
	errorCount := parsed.Skipped
	batchSize := s.importer.BatchSize()
	for i := 0; i < totalBatches; i++ {
		lo := i * batchSize
		hi := lo + batchSize
		if hi > len(parsed.Records) {
			hi = len(parsed.Records)
		}
		res, err := s.importer.ImportBatch(ctx, def, parsed.Records[lo:hi], imp.Year)
		if err != nil {
			fail(err)
			return
		}
		success += res.Success
		errorCount += res.Errors

		imp.update(func(p *ImportProgress) {
			p.CurrentBatch = i + 1
			p.SuccessCount = success
			p.ErrorCount = errorCount
		})
	}

	if !imp.SkipIndexing {
		imp.update(func(p *ImportProgress) { p.Phase = PhaseIndexing })
		if err := s.db.EnsureIndexes(ctx); err != nil {
			// The data is committed; a missing index degrades queries,
			// not correctness.
			log.Warn("index refresh failed", "error", err)
		}
		if err := s.dicts.Populate(ctx); err != nil {
			log.Warn("dictionary refresh failed", "error", err)
		}
	}

	status := "success"
	if errorCount > 0 {
		status = "completed_with_errors"
	}
	if err := s.db.AppendImportLog(ctx, database.ImportLogEntry{
		FileName:    imp.FileName,
		Year:        imp.Year,
		RecordType:  def.Key,
		RecordCount: success,
		ErrorCount:  errorCount,
		Status:      status,
		ImportedAt:  time.Now().UTC(),
	}); err != nil {
		log.Warn("append import log failed", "error", err)
	}

	imp.update(func(p *ImportProgress) {
		p.Phase = PhaseCompleted
		p.ProcessedRecords = len(dataLines)
	})

	imp.Result = &ImportResult{
		ImportID:     imp.ID,
		RecordType:   def.Key,
		FileName:     imp.FileName,
		Year:         imp.Year,
		Encoding:     encoding,
		TotalRecords: len(dataLines),
		SuccessCount: success,
		ErrorCount:   errorCount,
		SkippedLines: parsed.SkippedLines,
		Duration:     time.Since(start),
		Status:       status,
	}
	log.Info("import completed",
		"records", len(dataLines),
		"success", success,
		"errors", errorCount,
		"duration", time.Since(start).Round(time.Millisecond))
}

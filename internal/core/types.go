package core

import (
	"context"
	"time"

	"github.com/roadregistry/importer/internal/dict"
	"github.com/roadregistry/importer/internal/parse"
)

// Phase identifies where an import currently is in its lifecycle.
type Phase string

const (
	PhaseIdle          Phase = "idle"
	PhaseReplacingYear Phase = "replacing_year"
	PhaseReading       Phase = "reading"
	PhaseParsing       Phase = "parsing"
	PhaseImporting     Phase = "importing"
	PhaseIndexing      Phase = "indexing"
	PhaseCompleted     Phase = "completed"
	PhaseCancelled     Phase = "cancelled"
	PhaseFailed        Phase = "failed"
)

// Terminal reports whether the phase is an end state.
func (p Phase) Terminal() bool {
	return p == PhaseCompleted || p == PhaseCancelled || p == PhaseFailed
}

// ImportProgress is a snapshot of a running import, safe to serialize
// and send to subscribers.
type ImportProgress struct {
	ImportID         string `json:"import_id"`
	RecordType       string `json:"record_type"`
	FileName         string `json:"file_name"`
	Year             int    `json:"year"`
	Phase            Phase  `json:"phase"`
	Encoding         string `json:"encoding,omitempty"`
	TotalRecords     int    `json:"total_records"`
	ProcessedRecords int    `json:"processed_records"`
	CurrentBatch     int    `json:"current_batch"`
	TotalBatches     int    `json:"total_batches"`
	SuccessCount     int    `json:"success_count"`
	ErrorCount       int    `json:"error_count"`
	Workers          int    `json:"workers,omitempty"`
	Error            string `json:"error,omitempty"`
}

// Percent returns parse progress as a whole percentage. Useful as a
// monotonic event id for progress streams.
func (p ImportProgress) Percent() int {
	if p.TotalRecords == 0 {
		return 0
	}
	return p.ProcessedRecords * 100 / p.TotalRecords
}

// ImportResult is the final accounting for one import.
type ImportResult struct {
	ImportID     string        `json:"import_id"`
	RecordType   string        `json:"record_type"`
	FileName     string        `json:"file_name"`
	Year         int           `json:"year"`
	Encoding     string        `json:"encoding,omitempty"`
	TotalRecords int           `json:"total_records"`
	SuccessCount int           `json:"success_count"`
	ErrorCount   int           `json:"error_count"`
	SkippedLines []int         `json:"skipped_lines,omitempty"`
	Duration     time.Duration `json:"duration"`
	Status       string        `json:"status"`
	Error        string        `json:"error,omitempty"`
}

// SuccessRate returns the fraction of records imported successfully.
func (r *ImportResult) SuccessRate() float64 {
	if r.TotalRecords == 0 {
		return 0
	}
	return float64(r.SuccessCount) / float64(r.TotalRecords)
}

// BatchResult is the accounting for a single batch transaction.
type BatchResult struct {
	Success int
	Errors  int
}

// BuildArgsFunc converts one parsed record into the argument list for the
// record type's insert statement. Categorical fields are resolved to
// dictionary ids through the store; an error means the record cannot be
// imported and is counted against the error total.
type BuildArgsFunc func(ctx context.Context, rec parse.Record, year int, dicts *dict.Store) ([]any, error)

// Definition describes one importable record type.
type Definition struct {
	// Key identifies the type in URLs and the import log ("vehicles").
	Key string

	// Label is a human-readable name for display.
	Label string

	// Table is the fact table rows are written to.
	Table string

	// ColumnCounts lists the accepted header widths. Extracts from
	// different years may carry different layouts.
	ColumnCounts []int

	// InsertSQL is the parameterized insert for one fact row, written
	// with ? placeholders and rebound per dialect at execution time.
	InsertSQL string

	// BuildArgs produces the insert arguments for one record.
	BuildArgs BuildArgsFunc
}

// ValidateHeader checks the header row against the accepted layouts.
// A width mismatch is fatal: it means the file is not the expected
// extract format at all, not a recoverable bad row.
func (d *Definition) ValidateHeader(headers []string) error {
	for _, n := range d.ColumnCounts {
		if len(headers) == n {
			return nil
		}
	}
	return ErrInvalidSchema
}

// ReplaceDecider is consulted when an import targets a year that already
// has rows. Returning false cancels the import before any write.
type ReplaceDecider interface {
	ConfirmReplace(ctx context.Context, year int, existing int64) (bool, error)
}

// StaticDecider answers every replace question with a fixed policy.
// Web requests carry the decision as a form field, so by the time the
// pipeline runs the answer is already known.
type StaticDecider bool

func (d StaticDecider) ConfirmReplace(context.Context, int, int64) (bool, error) {
	return bool(d), nil
}

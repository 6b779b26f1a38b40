package core

import "errors"

var (
	// ErrEmptyFile is returned when an extract contains no data rows.
	ErrEmptyFile = errors.New("file contains no data rows")

	// ErrInvalidSchema is returned when the header row does not match any
	// accepted column layout for the record type.
	ErrInvalidSchema = errors.New("header does not match expected layout")

	// ErrImportCancelled is returned when the caller declines to replace
	// an already imported year.
	ErrImportCancelled = errors.New("import cancelled")

	// ErrImportNotFound is returned when no import exists for an id.
	ErrImportNotFound = errors.New("import not found")

	// ErrTooManyImports is returned when the concurrent import limit is
	// reached and no slot frees up within the configured wait time.
	ErrTooManyImports = errors.New("too many concurrent imports")

	// ErrYearMismatch marks a record whose AN column disagrees with the
	// year the import was started for.
	ErrYearMismatch = errors.New("record year does not match import year")
)

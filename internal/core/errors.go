package core

import "errors"

var (
	// ErrEmptyDataset is returned when the decoded grid has no rows at all.
	ErrEmptyDataset = errors.New("empty dataset: file has no rows")

	// ErrDuplicateHeader is returned when two header cells resolve to the same
	// column name after trimming.
	ErrDuplicateHeader = errors.New("duplicate header")

	// ErrEmptyResult is returned when an export filter selects no rows. No file
	// should be produced.
	ErrEmptyResult = errors.New("empty result: no rows match export criteria")

	// ErrRecordNotFound means a record id did not resolve. Callers only pass
	// ids they got from the same dataset, so this indicates a bug.
	ErrRecordNotFound = errors.New("record not found")

	// ErrSessionNotFound is returned for unknown or expired session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrTooManySessions is returned by Load when the session cap is reached.
	ErrTooManySessions = errors.New("too many sessions open")

	// ErrInvalidSpreadsheet is returned when a file cannot be decoded.
	ErrInvalidSpreadsheet = errors.New("invalid spreadsheet")

	// ErrInvalidExportMode is returned by ParseExportMode.
	ErrInvalidExportMode = errors.New("invalid export mode")
)

// Package core decides which spreadsheet cells are missing, reports how
// complete a dataset is, fills gaps, and selects rows for re-export.
//
// It is independent of any transport: the web server, the CLI and the tests
// all drive the same functions.
//
// # Pipeline
//
// A decoded [Grid] becomes a [Dataset] through [Load]:
//
//  1. [ResolveHeader] names the columns from the first row, dropping blank
//     header cells but remembering each column's original position
//  2. [MaterializeRows] turns every later row into a [Record]
//
// From there:
//
//   - [ComputeStats] derives completeness figures, always in full
//   - [Reconcile] is the only mutator; it fills missing fields and never
//     overwrites data
//   - [FilterExport] selects all or only incomplete records for export
//   - [SearchRecords], [BuildReport] and [BuildHeatmap] are read-only views
//
// Every one of them uses [IsMissing]: a cell is missing when it is absent or
// blank after trimming.
//
// # Sessions
//
// [Service] keeps one [Session] per loaded file. Operations on a session are
// serialized; different sessions run in parallel. Decoding is the only step
// that waits on I/O and is bounded by a [DecodeLimiter] and a timeout.
//
// # Error Handling
//
// Errors wrap the sentinels in errors.go. [MapError] turns them into a
// [UserMessage] with a support code:
//
//   - DS001-DS002: dataset errors (empty file, duplicate header)
//   - EXP001-EXP003: export errors
//   - REC001, SES001-SES002: record and session lookups
//   - FILE001-FILE004, UPL002-UPL005: upload and decode errors
package core

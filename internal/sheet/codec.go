// Package sheet reads uploaded spreadsheets into grids and writes export
// sets back out as xlsx or csv.
//
// Workbooks (.xlsx, .xlsm, .xltx, .xltm) are read with excelize; only the
// first sheet is used. Delimited text (.csv, .txt) is read with encoding/csv
// after BOM removal and UTF-8 cleanup. Empty cells decode as absent.
package sheet

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/JonMunkholm/sheetfill/internal/core"
)

var (
	// ErrUnsupportedFormat is returned for uploads with an unknown extension.
	ErrUnsupportedFormat = errors.New("unsupported file format")

	// ErrUnsupportedExportFormat is returned by Encode for unknown formats.
	ErrUnsupportedExportFormat = errors.New("unsupported export format")

	// ErrFileTooLarge is returned when an upload exceeds the size limit.
	ErrFileTooLarge = errors.New("file too large")

	// ErrInvalidSpreadsheet wraps parser failures.
	ErrInvalidSpreadsheet = core.ErrInvalidSpreadsheet
)

// Export formats.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// ExportSheetName is the name of the single sheet in exported workbooks.
const ExportSheetName = "Data"

// DefaultMaxFileSize is used when a Codec is created without a limit.
const DefaultMaxFileSize int64 = 100 << 20

type kind int

const (
	kindUnknown kind = iota
	kindWorkbook
	kindText
)

func kindOf(fileName string) kind {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".xlsx", ".xlsm", ".xltx", ".xltm":
		return kindWorkbook
	case ".csv", ".txt":
		return kindText
	default:
		return kindUnknown
	}
}

// Supported reports whether fileName has an extension Decode understands.
func Supported(fileName string) bool {
	return kindOf(fileName) != kindUnknown
}

// ParseFormat normalizes an export format name.
func ParseFormat(s string) (string, error) {
	switch f := strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s), ".")); f {
	case "", FormatXLSX:
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedExportFormat, s)
	}
}

// ContentType returns the MIME type of an export format.
func ContentType(format string) string {
	if format == FormatCSV {
		return "text/csv; charset=utf-8"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Codec implements core.Codec.
type Codec struct {
	MaxFileSize int64
}

// New returns a Codec that rejects uploads over maxFileSize bytes.
func New(maxFileSize int64) *Codec {
	if maxFileSize <= 0 {
		maxFileSize = DefaultMaxFileSize
	}
	return &Codec{MaxFileSize: maxFileSize}
}

// Decode reads the first sheet of fileName from r.
func (c *Codec) Decode(ctx context.Context, fileName string, r io.Reader) (core.Grid, error) {
	switch kindOf(fileName) {
	case kindWorkbook:
		return c.decodeWorkbook(ctx, r)
	case kindText:
		return c.decodeText(ctx, r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(fileName))
	}
}

func (c *Codec) decodeWorkbook(ctx context.Context, r io.Reader) (core.Grid, error) {
	f, err := excelize.OpenReader(newLimitReader(r, c.MaxFileSize))
	if err != nil {
		if errors.Is(err, ErrFileTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSpreadsheet, err)
	}
	defer func() { _ = f.Close() }()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return core.Grid{}, nil
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", ErrInvalidSpreadsheet, sheets[0], err)
	}

	grid := make(core.Grid, len(rows))
	for i, row := range rows {
		grid[i] = toCells(row)
		if i%1000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
	}
	return grid, nil
}

func (c *Codec) decodeText(ctx context.Context, r io.Reader) (core.Grid, error) {
	cr := csv.NewReader(wrapText(r, c.MaxFileSize))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var grid core.Grid
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			if errors.Is(err, ErrFileTooLarge) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %v", ErrInvalidSpreadsheet, err)
		}
		grid = append(grid, toCells(row))
	}
	return grid, nil
}

// toCells maps raw strings to cells; empty strings are absent.
func toCells(row []string) []core.Cell {
	cells := make([]core.Cell, len(row))
	for i, v := range row {
		if v == "" {
			cells[i] = core.Null
			continue
		}
		cells[i] = core.Text(v)
	}
	return cells
}

// Encode writes set as an xlsx workbook or csv file.
func (c *Codec) Encode(w io.Writer, format string, set *core.ExportSet) error {
	switch format {
	case FormatXLSX:
		return encodeWorkbook(w, set)
	case FormatCSV:
		return encodeCSV(w, set)
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedExportFormat, format)
	}
}

func encodeWorkbook(w io.Writer, set *core.ExportSet) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName(f.GetSheetName(0), ExportSheetName); err != nil {
		return fmt.Errorf("name sheet: %w", err)
	}

	header := make([]any, len(set.Columns))
	for i, col := range set.Columns {
		header[i] = col
	}
	if err := f.SetSheetRow(ExportSheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, row := range set.Rows {
		values := make([]any, len(set.Columns))
		for j, col := range set.Columns {
			if v := row[col]; v.Valid {
				values[j] = v.String
			} else {
				values[j] = nil
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(ExportSheetName, cell, &values); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func encodeCSV(w io.Writer, set *core.ExportSet) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(set.Columns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	record := make([]string, len(set.Columns))
	for _, row := range set.Rows {
		for j, col := range set.Columns {
			record[j] = row[col].String
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

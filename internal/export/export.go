// Package export writes table contents to CSV, TSV or XLSX files, optionally compressed.
package export

import (
	"compress/gzip"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/zstd"
	"github.com/ulikunitz/xz"
	"github.com/xuri/excelize/v2"

	"github.com/tuannm99/novarel/internal/heap"
)

var ErrUnsupported = errors.New("export: unsupported option")

// TableSource is the read side of a database.
type TableSource interface {
	ListTables() []string
	GetTable(name string) (*heap.Table, bool)
}

// NewCompressedWriter wraps w with the requested compression. The returned close
// function flushes the compressor; it does not close w.
func NewCompressedWriter(w io.Writer, c Compression) (io.Writer, func() error, error) {
	switch c {
	case CompressionNone:
		return w, func() error { return nil }, nil
	case CompressionGZ:
		gz := gzip.NewWriter(w)
		return gz, gz.Close, nil
	case CompressionXZ:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("export: create xz writer: %w", err)
		}
		return xw, xw.Close, nil
	case CompressionZSTD:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return nil, nil, fmt.Errorf("export: create zstd writer: %w", err)
		}
		return zw, zw.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: compression %v", ErrUnsupported, c)
	}
}

// WriteTable streams one table to w in the requested format.
func WriteTable(w io.Writer, tbl *heap.Table, opts DumpOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if opts.Format == FormatXLSX {
		return writeXLSX(w, tbl)
	}

	cw, closeFn, err := NewCompressedWriter(w, opts.Compression)
	if err != nil {
		return err
	}
	if err := writeDelimited(cw, tbl, opts.Format); err != nil {
		_ = closeFn()
		return err
	}
	return closeFn()
}

func writeDelimited(w io.Writer, tbl *heap.Table, f Format) error {
	cw := csv.NewWriter(w)
	if f == FormatTSV {
		cw.Comma = '\t'
	}

	cols := tbl.Schema.ColumnNames()
	if err := cw.Write(cols); err != nil {
		return err
	}

	rec := make([]string, len(cols))
	for _, en := range tbl.Scan() {
		for i, c := range cols {
			rec[i] = formatValue(en.Row[c])
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeXLSX(w io.Writer, tbl *heap.Table) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := tbl.Name
	if len(sheet) > 31 {
		sheet = sheet[:31]
	}
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return fmt.Errorf("export: xlsx sheet: %w", err)
	}

	cols := tbl.Schema.ColumnNames()
	header := make([]any, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return fmt.Errorf("export: xlsx header: %w", err)
	}

	for r, en := range tbl.Scan() {
		row := make([]any, len(cols))
		for i, c := range cols {
			row[i] = en.Row[c]
		}
		cell, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("export: xlsx row %d: %w", r, err)
		}
	}
	return f.Write(w)
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	default:
		return fmt.Sprint(x)
	}
}

// DumpTable writes <dir>/<table><ext> and returns its path.
func DumpTable(tbl *heap.Table, dir string, opts DumpOptions) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("export: create output dir: %w", err)
	}

	path := filepath.Join(dir, tbl.Name+opts.FileExtension())
	file, err := os.Create(path) //nolint:gosec // output path is chosen by the operator
	if err != nil {
		return "", fmt.Errorf("export: create file: %w", err)
	}

	if err := WriteTable(file, tbl, opts); err != nil {
		_ = file.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := file.Sync(); err != nil {
		_ = file.Close()
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// DumpDatabase exports every table into dir, one file per table.
func DumpDatabase(db TableSource, dir string, opts ...DumpOptions) ([]string, error) {
	options := NewDumpOptions()
	if len(opts) > 0 {
		options = opts[0]
	}

	var paths []string
	for _, name := range db.ListTables() {
		tbl, ok := db.GetTable(name)
		if !ok {
			continue
		}
		path, err := DumpTable(tbl, dir, options)
		if err != nil {
			return paths, fmt.Errorf("export: dump %s: %w", name, err)
		}
		paths = append(paths, path)
	}
	return paths, nil
}

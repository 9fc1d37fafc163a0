package export

import (
	"fmt"
	"strings"
)

// Format represents the output file format
type Format int

const (
	FormatCSV Format = iota
	FormatTSV
	FormatXLSX
)

func (f Format) String() string {
	switch f {
	case FormatTSV:
		return "tsv"
	case FormatXLSX:
		return "xlsx"
	default:
		return "csv"
	}
}

// Extension returns the file extension for the format
func (f Format) Extension() string {
	return "." + f.String()
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "csv":
		return FormatCSV, nil
	case "tsv":
		return FormatTSV, nil
	case "xlsx", "excel":
		return FormatXLSX, nil
	default:
		return FormatCSV, fmt.Errorf("%w: format %q", ErrUnsupported, s)
	}
}

// Compression represents the compression applied on top of CSV/TSV output
type Compression int

const (
	CompressionNone Compression = iota
	CompressionGZ
	CompressionXZ
	CompressionZSTD
)

func (c Compression) String() string {
	switch c {
	case CompressionGZ:
		return "gz"
	case CompressionXZ:
		return "xz"
	case CompressionZSTD:
		return "zstd"
	default:
		return "none"
	}
}

// Extension returns the file extension for the compression type
func (c Compression) Extension() string {
	switch c {
	case CompressionGZ:
		return ".gz"
	case CompressionXZ:
		return ".xz"
	case CompressionZSTD:
		return ".zst"
	default:
		return ""
	}
}

func ParseCompression(s string) (Compression, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CompressionNone, nil
	case "gz", "gzip":
		return CompressionGZ, nil
	case "xz":
		return CompressionXZ, nil
	case "zst", "zstd":
		return CompressionZSTD, nil
	default:
		return CompressionNone, fmt.Errorf("%w: compression %q", ErrUnsupported, s)
	}
}

// DumpOptions configures how tables are exported to files.
//
// Example:
//
//	options := NewDumpOptions().
//		WithFormat(FormatTSV).
//		WithCompression(CompressionZSTD)
//
//	paths, err := DumpDatabase(db, "./backup", options)
type DumpOptions struct {
	Format      Format
	Compression Compression
}

// NewDumpOptions creates default export options (CSV, no compression).
func NewDumpOptions() DumpOptions {
	return DumpOptions{
		Format:      FormatCSV,
		Compression: CompressionNone,
	}
}

func (o DumpOptions) WithFormat(format Format) DumpOptions {
	o.Format = format
	return o
}

func (o DumpOptions) WithCompression(compression Compression) DumpOptions {
	o.Compression = compression
	return o
}

// FileExtension returns the complete file extension including compression
func (o DumpOptions) FileExtension() string {
	return o.Format.Extension() + o.Compression.Extension()
}

// Validate rejects compressed XLSX; the workbook is already a zip archive.
func (o DumpOptions) Validate() error {
	if o.Format == FormatXLSX && o.Compression != CompressionNone {
		return fmt.Errorf("%w: xlsx output cannot be compressed with %s", ErrUnsupported, o.Compression)
	}
	return nil
}

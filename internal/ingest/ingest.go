// Package ingest reads sales datasets from CSV and XLSX files into a core.Table.
package ingest

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/leapstack-labs/churnwatch/pkg/core"
)

// Reader reads one file format.
type Reader interface {
	Read(ctx context.Context, path string) (*core.Table, error)
}

// FormatError is returned for files that are neither CSV nor XLSX.
type FormatError struct {
	Path string
	Ext  string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("%s: only CSV or XLSX formats are accepted (got %q)", e.Path, e.Ext)
}

// Loader validates a path and dispatches to the reader for its extension.
type Loader struct {
	readers map[string]Reader
	logger  *slog.Logger
}

// NewLoader creates a Loader with the DuckDB CSV reader and the XLSX reader.
func NewLoader(logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loader{
		readers: map[string]Reader{
			".csv":  NewCSVReader(),
			".xlsx": NewXLSXReader(),
		},
		logger: logger,
	}
}

// WithReader registers r for a file extension such as ".csv".
func (l *Loader) WithReader(ext string, r Reader) *Loader {
	l.readers[strings.ToLower(ext)] = r
	return l
}

// Load reads the file at path. The file must exist and carry a supported
// extension.
func (l *Loader) Load(ctx context.Context, path string) (*core.Table, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file %s does not exist: %w", path, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	reader, ok := l.readers[ext]
	if !ok {
		return nil, &FormatError{Path: path, Ext: ext}
	}

	table, err := reader.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	table.Source = path

	l.logger.Debug("dataset loaded",
		"path", path,
		"format", strings.TrimPrefix(ext, "."),
		"rows", table.Len(),
		"columns", len(table.Columns))
	return table, nil
}
